package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFileOrEnv(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 4096, cfg.PageSize)
	require.Equal(t, 50, cfg.BufferPoolCapacity)
	require.Equal(t, "./data", cfg.DataDir)
}

func TestLoadReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "txnstore.yaml")
	require.NoError(t, os.WriteFile(path, []byte("page_size: 8192\nbuffer_pool_capacity: 10\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 8192, cfg.PageSize)
	require.Equal(t, 10, cfg.BufferPoolCapacity)
}

func TestLoadRejectsNonPositivePageSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "txnstore.yaml")
	require.NoError(t, os.WriteFile(path, []byte("page_size: 0\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadHonorsEnvironmentOverride(t *testing.T) {
	t.Setenv("TXNSTORE_BUFFER_POOL_CAPACITY", "7")
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 7, cfg.BufferPoolCapacity)
}
