// Package bufferpool implements a bounded, lock-manager-backed page
// cache: FORCE on commit, discard-dirty on abort, LRU eviction that
// never steals a dirty page.
package bufferpool

import (
	"container/list"
	"errors"
	"fmt"
	"sync"

	"github.com/relcore/txnstore/catalog"
	"github.com/relcore/txnstore/internal/telemetry"
	"github.com/relcore/txnstore/lock"
	"github.com/relcore/txnstore/pagestore"
	"github.com/relcore/txnstore/txn"
)

// ErrTransactionAborted wraps a deadlock surfaced from the lock
// manager.
var ErrTransactionAborted = errors.New("bufferpool: transaction aborted")

// ErrBufferPoolFull is returned when eviction cannot find a clean page
// to make room for a miss.
var ErrBufferPoolFull = errors.New("bufferpool: buffer pool full of dirty pages")

// DefaultCapacity is the buffer pool's default page capacity.
const DefaultCapacity = 50

// entry is one cached page plus its position in the LRU list.
type entry struct {
	page *pagestore.Page
	elem *list.Element
}

// BufferPool is a bounded page cache. All cache state (map, LRU list,
// dirty bookkeeping) is protected by a single mutex. Lock ordering is
// BufferPool -> LockManager, never the reverse: GetPage calls into the
// lock manager before ever touching mu.
type BufferPool struct {
	capacity int
	locks    *lock.LockManager
	cat      *catalog.Catalog
	log      *telemetry.Logger

	mu      sync.Mutex
	entries map[pagestore.ID]*entry
	lru     *list.List // front = least-recently-used, back = most
}

// New constructs a BufferPool of the given capacity, backed by cat for
// page fetches and locks for two-phase locking. A nil logger is
// replaced with a no-op one.
func New(capacity int, cat *catalog.Catalog, locks *lock.LockManager, log *telemetry.Logger) *BufferPool {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if log == nil {
		log = telemetry.Noop()
	}
	return &BufferPool{
		capacity: capacity,
		cat:      cat,
		locks:    locks,
		log:      log,
		entries:  make(map[pagestore.ID]*entry),
		lru:      list.New(),
	}
}

// GetPage acquires tid's lock on pid first, then serves the page from
// cache or fetches it, evicting a clean page first if the pool is at
// capacity. The returned Page is a clone of the cached one: callers
// only ever observe a shared read-only handle, never the live object
// the pool and the PageStore mutate internally, so mutating tuple
// state always goes through InsertTuple/DeleteTuple.
func (bp *BufferPool) GetPage(tid txn.ID, pid pagestore.ID, mode lock.Mode) (*pagestore.Page, error) {
	if err := bp.locks.Acquire(tid, pid, mode); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransactionAborted, err)
	}

	bp.mu.Lock()
	defer bp.mu.Unlock()

	if e, ok := bp.entries[pid]; ok {
		bp.lru.MoveToBack(e.elem)
		return e.page.Clone(), nil
	}

	store, err := bp.cat.Lookup(pid.TableID)
	if err != nil {
		return nil, err
	}
	page, err := store.ReadPage(pid.PageNo)
	if err != nil {
		return nil, err
	}

	if len(bp.entries) >= bp.capacity {
		if err := bp.evictLocked(); err != nil {
			return nil, err
		}
	}
	bp.insertLocked(page)
	return page.Clone(), nil
}

// cachedPages returns every page currently cached for tableID, dirty
// or clean, so a PageStore can consult in-memory state that has not
// yet been flushed instead of re-reading stale bytes from disk.
func (bp *BufferPool) cachedPages(tableID int32) []*pagestore.Page {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	var pages []*pagestore.Page
	for pid, e := range bp.entries {
		if pid.TableID == tableID {
			pages = append(pages, e.page)
		}
	}
	return pages
}

// evictLocked drops the least-recently-used clean page. Caller holds
// mu. A dirty page is never evicted.
func (bp *BufferPool) evictLocked() error {
	for e := bp.lru.Front(); e != nil; e = e.Next() {
		ent := e.Value.(*entry)
		if !ent.page.IsDirty() {
			bp.lru.Remove(e)
			delete(bp.entries, ent.page.ID)
			bp.log.PageEvicted(ent.page.ID.String())
			return nil
		}
	}
	bp.log.BufferPoolFull("")
	return ErrBufferPoolFull
}

// insertLocked adds page at the most-recently-used position. Caller
// holds mu.
func (bp *BufferPool) insertLocked(page *pagestore.Page) {
	elem := bp.lru.PushBack(&entry{page: page})
	bp.entries[page.ID] = &entry{page: page, elem: elem}
	// elem's Value must be the same *entry stored in the map so
	// evictLocked and touches stay consistent.
	elem.Value = bp.entries[page.ID]
}

// InsertTuple delegates to the table's PageStore, then marks every
// affected page dirty by tid and installs it in the cache (evicting a
// clean page first if the pool is at capacity and the page is new).
// The store picks which page to insert into, so the exclusive lock is
// taken on the result rather than in advance; the store's own mutex
// still serializes the underlying mutation against concurrent
// inserters.
func (bp *BufferPool) InsertTuple(tid txn.ID, tableID int32, data []byte) error {
	store, err := bp.cat.Lookup(tableID)
	if err != nil {
		return err
	}
	pages, err := store.InsertTuple(tid, bp.cachedPages(tableID), data)
	if err != nil {
		return err
	}
	for _, page := range pages {
		pid := pagestore.ID{TableID: tableID, PageNo: page.ID.PageNo}
		if err := bp.locks.Acquire(tid, pid, lock.Exclusive); err != nil {
			return fmt.Errorf("%w: %v", ErrTransactionAborted, err)
		}
	}
	return bp.installDirtyPages(tableID, pages)
}

// DeleteTuple is symmetric with InsertTuple, except the affected page
// is known in advance from rid, so its exclusive lock is acquired
// before the store is asked to mutate it.
func (bp *BufferPool) DeleteTuple(tid txn.ID, tableID int32, rid pagestore.RID) error {
	pid := pagestore.ID{TableID: tableID, PageNo: rid.PageNo}
	if err := bp.locks.Acquire(tid, pid, lock.Exclusive); err != nil {
		return fmt.Errorf("%w: %v", ErrTransactionAborted, err)
	}

	store, err := bp.cat.Lookup(tableID)
	if err != nil {
		return err
	}
	pages, err := store.DeleteTuple(tid, bp.cachedPages(tableID), rid)
	if err != nil {
		return err
	}
	return bp.installDirtyPages(tableID, pages)
}

func (bp *BufferPool) installDirtyPages(tableID int32, pages []*pagestore.Page) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	for _, page := range pages {
		page.ID.TableID = tableID
		if e, ok := bp.entries[page.ID]; ok {
			e.page = page
			e.elem.Value = e
			bp.lru.MoveToBack(e.elem)
			continue
		}
		if len(bp.entries) >= bp.capacity {
			if err := bp.evictLocked(); err != nil {
				return err
			}
		}
		bp.insertLocked(page)
	}
	return nil
}

// TransactionComplete ends tid. On commit (FORCE), every page dirtied
// by tid is written back and its dirty marker cleared. On abort, every
// page dirtied by tid is discarded from the cache so the next reader
// refetches the clean on-disk image. Locks are released last, after
// the durability action, so no other transaction can observe tid's
// pages before they are either durable or gone.
func (bp *BufferPool) TransactionComplete(tid txn.ID, commit bool) error {
	if commit {
		if err := bp.flushDirty(tid); err != nil {
			return err
		}
	} else {
		bp.discardDirty(tid)
	}
	bp.locks.ReleaseAll(tid)
	return nil
}

func (bp *BufferPool) flushDirty(tid txn.ID) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	flushed := 0
	for pid, e := range bp.entries {
		if !e.page.IsDirty() || e.page.DirtyTID != tid {
			continue
		}
		store, err := bp.cat.Lookup(pid.TableID)
		if err != nil {
			return err
		}
		if err := store.WritePage(e.page); err != nil {
			return fmt.Errorf("bufferpool: flush page %s: %w", pid, err)
		}
		e.page.ClearDirty()
		flushed++
	}
	bp.log.TransactionCommitted(tid.String(), flushed)
	return nil
}

func (bp *BufferPool) discardDirty(tid txn.ID) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	discarded := 0
	for pid, e := range bp.entries {
		if e.page.IsDirty() && e.page.DirtyTID == tid {
			bp.lru.Remove(e.elem)
			delete(bp.entries, pid)
			discarded++
		}
	}
	bp.log.TransactionAborted(tid.String(), discarded)
}

// FlushAllPages writes every dirty cached page to its store and
// clears its dirty marker. Test-only: production code flushes through
// TransactionComplete so the dirty marker and the lock holder stay in
// sync.
func (bp *BufferPool) FlushAllPages() error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	for pid, e := range bp.entries {
		if !e.page.IsDirty() {
			continue
		}
		store, err := bp.cat.Lookup(pid.TableID)
		if err != nil {
			return err
		}
		if err := store.WritePage(e.page); err != nil {
			return err
		}
		e.page.ClearDirty()
	}
	return nil
}

// DiscardPage drops pid from the cache unconditionally, regardless of
// its dirty marker.
func (bp *BufferPool) DiscardPage(pid pagestore.ID) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	if e, ok := bp.entries[pid]; ok {
		bp.lru.Remove(e.elem)
		delete(bp.entries, pid)
	}
}

// DiscardAllCached drops every cached page unconditionally, simulating
// a cold cache after a process restart: the next GetPage refetches
// from the PageStore rather than trusting anything still in memory.
func (bp *BufferPool) DiscardAllCached() {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	bp.entries = make(map[pagestore.ID]*entry)
	bp.lru = list.New()
}

// ReleasePage releases tid's lock on pid without ending the
// transaction. Most callers should use TransactionComplete instead;
// this exists for the rare operator that proves it no longer needs a
// page before commit.
func (bp *BufferPool) ReleasePage(tid txn.ID, pid pagestore.ID) {
	bp.locks.Release(tid, pid)
}

// Holds reports whether tid currently holds a lock on pid.
func (bp *BufferPool) Holds(tid txn.ID, pid pagestore.ID) bool {
	return bp.locks.Holds(tid, pid)
}

// Size returns the number of pages currently cached, for tests.
func (bp *BufferPool) Size() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return len(bp.entries)
}
