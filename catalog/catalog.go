// Package catalog maps table identities to the PageStore that backs
// them. Tuple schemas, columns, and index structures live elsewhere
// (or nowhere, in this repository); all BufferPool needs is
// table_id -> PageStore.
package catalog

import (
	"errors"
	"fmt"
	"sync"

	"github.com/relcore/txnstore/pagestore"
)

// ErrTableNotFound is returned when a table_id has no registered
// PageStore.
var ErrTableNotFound = errors.New("catalog: table not found")

// ErrTableExists is returned by CreateFileTable when table_id already
// has a registered PageStore.
var ErrTableExists = errors.New("catalog: table already exists")

// Catalog is a table_id -> PageStore registry.
type Catalog struct {
	mu     sync.RWMutex
	stores map[int32]pagestore.PageStore
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{stores: make(map[int32]pagestore.PageStore)}
}

// Register associates tableID with store. It is the caller's
// responsibility to ensure tableID is unique; Register overwrites any
// prior association.
func (c *Catalog) Register(tableID int32, store pagestore.PageStore) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stores[tableID] = store
}

// CreateFileTable opens (creating if necessary) a file-backed table at
// path and registers it under tableID.
func (c *Catalog) CreateFileTable(tableID int32, path string) (*pagestore.FileStore, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.stores[tableID]; exists {
		return nil, fmt.Errorf("%w: table_id=%d", ErrTableExists, tableID)
	}
	fs, err := pagestore.OpenFileStore(tableID, path)
	if err != nil {
		return nil, err
	}
	c.stores[tableID] = fs
	return fs, nil
}

// Lookup returns the PageStore registered for tableID.
func (c *Catalog) Lookup(tableID int32) (pagestore.PageStore, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	store, ok := c.stores[tableID]
	if !ok {
		return nil, fmt.Errorf("%w: table_id=%d", ErrTableNotFound, tableID)
	}
	return store, nil
}
