// Package config loads process-wide settings for the storage core
// from defaults, an optional file, and environment variables via
// viper. Three settings exist: page size, buffer pool capacity, and
// the data directory table files are created under.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/relcore/txnstore/bufferpool"
	"github.com/relcore/txnstore/pagestore"
)

// Config holds the process-wide settings read by cmd/pagestored at
// startup.
type Config struct {
	// PageSize is the fixed size, in bytes, of every page in every
	// table file.
	PageSize int `mapstructure:"page_size"`

	// BufferPoolCapacity is the maximum number of pages the buffer
	// pool holds in memory at once.
	BufferPoolCapacity int `mapstructure:"buffer_pool_capacity"`

	// DataDir is the directory table files are created under.
	DataDir string `mapstructure:"data_dir"`
}

// Load reads configuration from (in ascending priority) defaults, an
// optional config file at path (skipped if empty or missing), and
// TXNSTORE_-prefixed environment variables.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetDefault("page_size", pagestore.DefaultPageSize)
	v.SetDefault("buffer_pool_capacity", bufferpool.DefaultCapacity)
	v.SetDefault("data_dir", "./data")

	v.SetEnvPrefix("txnstore")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("config: read %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if cfg.PageSize <= 0 {
		return Config{}, fmt.Errorf("config: page_size must be positive, got %d", cfg.PageSize)
	}
	if cfg.BufferPoolCapacity <= 0 {
		return Config{}, fmt.Errorf("config: buffer_pool_capacity must be positive, got %d", cfg.BufferPoolCapacity)
	}
	return cfg, nil
}
