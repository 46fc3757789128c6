package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/relcore/txnstore/bufferpool"
	"github.com/relcore/txnstore/catalog"
	"github.com/relcore/txnstore/config"
	"github.com/relcore/txnstore/internal/telemetry"
	"github.com/relcore/txnstore/lock"
	"github.com/relcore/txnstore/pagestore"
	"github.com/relcore/txnstore/txn"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a scripted begin/insert/commit and begin/insert/abort scenario",
	Args:  cobra.NoArgs,
	RunE:  runDemo,
}

func init() {
	rootCmd.AddCommand(demoCmd)
}

func runDemo(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	pagestore.SetPageSizeForTesting(cfg.PageSize)

	zlog, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("pagestored: build logger: %w", err)
	}
	defer zlog.Sync()
	logger := telemetry.NewLogger(zlog)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("pagestored: create data dir: %w", err)
	}

	cat := catalog.New()
	locks := lock.New(logger)
	bp := bufferpool.New(cfg.BufferPoolCapacity, cat, locks, logger)

	const tableID int32 = 1
	tablePath := filepath.Join(cfg.DataDir, "accounts.tbl")
	if _, err := cat.CreateFileTable(tableID, tablePath); err != nil {
		return fmt.Errorf("pagestored: create table: %w", err)
	}

	// Transaction 1: insert a row and commit it durably.
	t1 := txn.New()
	fmt.Printf("begin %s\n", t1)
	if err := bp.InsertTuple(t1, tableID, []byte("alice:100")); err != nil {
		return err
	}
	fmt.Println("insert alice:100")
	if err := bp.TransactionComplete(t1, true); err != nil {
		return err
	}
	fmt.Printf("commit %s\n", t1)

	// Transaction 2: insert a second row, then abort, proving it never
	// lands on disk.
	t2 := txn.New()
	fmt.Printf("begin %s\n", t2)
	if err := bp.InsertTuple(t2, tableID, []byte("bob:50")); err != nil {
		return err
	}
	fmt.Println("insert bob:50")
	if err := bp.TransactionComplete(t2, false); err != nil {
		return err
	}
	fmt.Printf("abort %s\n", t2)

	// Transaction 3: reads back what survived.
	t3 := txn.New()
	page, err := bp.GetPage(t3, pagestore.ID{TableID: tableID, PageNo: 0}, lock.Shared)
	if err != nil {
		return err
	}
	fmt.Printf("page 0 dirty=%v bytes=%d\n", page.IsDirty(), len(page.Data))
	bp.TransactionComplete(t3, true)

	return nil
}
