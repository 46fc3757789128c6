// Package pagestore defines the external collaborator the storage
// core reads and writes pages through. The core treats PageStore as a
// black box: it never interprets slot headers or tuple bytes itself,
// only the PageId identity and the dirty/clean state of a Page.
//
// FileStore is the one concrete PageStore this repository ships, so
// the lock manager and buffer pool have something real to run
// against in tests and the CLI.
package pagestore

import (
	"errors"
	"fmt"

	"github.com/relcore/txnstore/txn"
)

// ErrOutOfRange is returned by ReadPage when page_no is beyond the
// table's current page count.
var ErrOutOfRange = errors.New("pagestore: page number out of range")

// ID identifies a page by (table_id, page_no). Equality and hashing
// are by both fields, so ID is safe to use as a map key directly.
type ID struct {
	TableID int32
	PageNo  int32
}

// String renders the page id for logging.
func (id ID) String() string {
	return fmt.Sprintf("%d:%d", id.TableID, id.PageNo)
}

// Page is the in-memory image of one on-disk block. DirtyTID is the
// transaction that first dirtied the page since its last clean state,
// or the zero value if the page carries no uncommitted mutations.
type Page struct {
	ID       ID
	Data     []byte
	DirtyTID txn.ID
	dirty    bool
}

// IsDirty reports whether the page carries a dirty marker.
func (p *Page) IsDirty() bool { return p.dirty }

// MarkDirty stamps the page with tid's dirty marker. A page is only
// ever dirty on behalf of one transaction at a time: PageStore
// implementations call this as a side effect of picking which page a
// mutation lands on, before the buffer pool has necessarily acquired
// tid's exclusive lock on that specific page id, but the page is not
// installed in the shared cache - and so not observable by any other
// transaction - until after that lock is held.
func (p *Page) MarkDirty(tid txn.ID) {
	p.dirty = true
	p.DirtyTID = tid
}

// ClearDirty removes the dirty marker, e.g. after a successful flush.
func (p *Page) ClearDirty() {
	p.dirty = false
	p.DirtyTID = txn.ID{}
}

// Clone returns a deep copy of the page, used so callers never
// observe another caller's in-flight mutation of the cached bytes.
func (p *Page) Clone() *Page {
	data := make([]byte, len(p.Data))
	copy(data, p.Data)
	return &Page{ID: p.ID, Data: data, DirtyTID: p.DirtyTID, dirty: p.dirty}
}

// PageStore is the sole external collaborator of the storage core.
// Heap page byte format, slot headers, and tuple serialization live
// entirely behind this interface; the core never reaches past it.
type PageStore interface {
	// ReadPage returns the page at page_no, faulting with
	// ErrOutOfRange if page_no >= NumPages.
	ReadPage(pageNo int32) (*Page, error)

	// WritePage persists page.Data at page.ID.PageNo.
	WritePage(page *Page) error

	// NumPages reports how many pages the table currently has.
	NumPages() int32

	// InsertTuple stores data as a new tuple on behalf of tid and
	// returns every page whose bytes changed as a result (usually
	// one page, occasionally a freshly allocated one). cached is the
	// set of pages the caller already holds in memory for this table
	// (in any dirty state); InsertTuple consults it before reading a
	// page fresh from storage, so an uncommitted mutation already
	// sitting in cache is never shadowed by a stale on-disk read.
	InsertTuple(tid txn.ID, cached []*Page, data []byte) ([]*Page, error)

	// DeleteTuple removes the tuple identified by rid on behalf of
	// tid and returns every page whose bytes changed. cached plays
	// the same role as in InsertTuple.
	DeleteTuple(tid txn.ID, cached []*Page, rid RID) ([]*Page, error)
}
