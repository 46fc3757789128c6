// Command pagestored demonstrates the storage core end to end: a
// catalog of file-backed tables, a lock manager, and a buffer pool,
// driven through begin/insert/commit, begin/insert/abort, and a final
// page read. The demo does not delete tuples.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "pagestored",
	Short: "Transactional page-level storage core demo CLI",
	Long: `pagestored drives the lock manager and buffer pool through a
small scripted transaction scenario against file-backed tables.

Environment Variables:
  TXNSTORE_PAGE_SIZE              Page size in bytes (default 4096)
  TXNSTORE_BUFFER_POOL_CAPACITY   Buffer pool capacity in pages (default 50)
  TXNSTORE_DATA_DIR               Directory table files are created under`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a config file (yaml/json/toml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
