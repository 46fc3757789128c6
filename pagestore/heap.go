package pagestore

import (
	"encoding/binary"
	"fmt"

	"github.com/relcore/txnstore/txn"
)

// RID (row id) locates one tuple within a table: the page it lives on
// and its slot index within that page's slot array.
type RID struct {
	PageNo int32
	Slot   int32
}

// slottedHeaderSize and slottedPointerSize describe the page header: a
// 2-byte slot count, a 2-byte free-space offset, and 4 bytes of
// padding, followed by a 4-byte (offset, len) pointer per slot.
const (
	slottedHeaderSize  = 8
	slottedPointerSize = 4
)

// heapPage is a thin view over a Page's bytes implementing a slotted
// layout: a pointer array grows forward from the header, tuple bytes
// grow backward from the end of the page. Delete tombstones a slot
// rather than compacting, so a RID's slot index stays valid for the
// lifetime of the page.
type heapPage struct {
	page *Page
}

func newHeapPage(p *Page) *heapPage {
	return &heapPage{page: p}
}

func (h *heapPage) body() []byte { return h.page.Data[slottedHeaderSize:] }

func (h *heapPage) numSlots() int {
	return int(binary.LittleEndian.Uint16(h.page.Data[0:2]))
}

func (h *heapPage) setNumSlots(n int) {
	binary.LittleEndian.PutUint16(h.page.Data[0:2], uint16(n))
}

func (h *heapPage) freeSpaceOffset() int {
	return int(binary.LittleEndian.Uint16(h.page.Data[2:4]))
}

func (h *heapPage) setFreeSpaceOffset(off int) {
	binary.LittleEndian.PutUint16(h.page.Data[2:4], uint16(off))
}

// init resets a freshly allocated page to an empty slotted page.
func (h *heapPage) init() {
	h.setNumSlots(0)
	h.setFreeSpaceOffset(len(h.body()))
}

func (h *heapPage) pointersSize() int { return h.numSlots() * slottedPointerSize }

func (h *heapPage) pointer(slot int) (offset, length int) {
	b := h.body()
	base := slot * slottedPointerSize
	return int(binary.LittleEndian.Uint16(b[base:])), int(binary.LittleEndian.Uint16(b[base+2:]))
}

func (h *heapPage) setPointer(slot, offset, length int) {
	b := h.body()
	base := slot * slottedPointerSize
	binary.LittleEndian.PutUint16(b[base:], uint16(offset))
	binary.LittleEndian.PutUint16(b[base+2:], uint16(length))
}

func (h *heapPage) freeSpace() int {
	return h.freeSpaceOffset() - h.pointersSize()
}

// get returns the tuple bytes at slot, or nil if the slot is empty,
// tombstoned, or out of range.
func (h *heapPage) get(slot int) []byte {
	if slot < 0 || slot >= h.numSlots() {
		return nil
	}
	offset, length := h.pointer(slot)
	if length == 0 {
		return nil
	}
	b := h.body()
	return b[offset : offset+length]
}

// insert appends data in a new slot, growing the pointer array by one
// entry, and returns the new slot index. ok is false if the page
// lacks room for both the pointer and the tuple bytes.
func (h *heapPage) insert(data []byte) (slot int, ok bool) {
	needed := slottedPointerSize + len(data)
	if h.freeSpace() < needed {
		return 0, false
	}
	newOffset := h.freeSpaceOffset() - len(data)
	copy(h.body()[newOffset:newOffset+len(data)], data)
	h.setFreeSpaceOffset(newOffset)

	slot = h.numSlots()
	h.setNumSlots(slot + 1)
	h.setPointer(slot, newOffset, len(data))
	return slot, true
}

// delete tombstones slot by zeroing its length; the slot index
// remains allocated so other RIDs on this page stay valid.
func (h *heapPage) delete(slot int) bool {
	if slot < 0 || slot >= h.numSlots() {
		return false
	}
	offset, _ := h.pointer(slot)
	h.setPointer(slot, offset, 0)
	return true
}

// findCached returns the page named pageNo out of cached, or nil if
// the caller holds no in-memory copy of it.
func findCached(cached []*Page, pageNo int32) *Page {
	for _, p := range cached {
		if p.ID.PageNo == pageNo {
			return p
		}
	}
	return nil
}

// pageOrRead returns cached's copy of pageNo if present, otherwise
// reads it fresh from storage. Caller holds fs.mu. Consulting cached
// first matters because an earlier uncommitted InsertTuple/DeleteTuple
// in the same transaction only ever mutates its in-memory *Page - it
// is not written through until the buffer pool flushes it on commit -
// so a bare readPageLocked here would silently lose that mutation.
func (fs *FileStore) pageOrRead(cached []*Page, pageNo int32) (*Page, error) {
	if p := findCached(cached, pageNo); p != nil {
		return p, nil
	}
	return fs.readPageLocked(pageNo)
}

// InsertTuple implements PageStore. It scans existing pages for one
// with room, falling back to allocating a new page.
func (fs *FileStore) InsertTuple(tid txn.ID, cached []*Page, data []byte) ([]*Page, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	n := fs.numPagesLocked()
	for pageNo := int32(0); pageNo < n; pageNo++ {
		page, err := fs.pageOrRead(cached, pageNo)
		if err != nil {
			return nil, err
		}
		hp := newHeapPage(page)
		if _, ok := hp.insert(data); ok {
			// Mutated bytes stay in memory only; WritePage persists them
			// when the buffer pool commits tid.
			page.MarkDirty(tid)
			return []*Page{page}, nil
		}
	}

	page, err := fs.allocatePageLocked()
	if err != nil {
		return nil, err
	}
	hp := newHeapPage(page)
	hp.init()
	if _, ok := hp.insert(data); !ok {
		return nil, fmt.Errorf("pagestore: tuple of %d bytes too large for a fresh page", len(data))
	}
	page.MarkDirty(tid)
	return []*Page{page}, nil
}

// DeleteTuple implements PageStore.
func (fs *FileStore) DeleteTuple(tid txn.ID, cached []*Page, rid RID) ([]*Page, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	page, err := fs.pageOrRead(cached, rid.PageNo)
	if err != nil {
		return nil, err
	}
	hp := newHeapPage(page)
	if !hp.delete(int(rid.Slot)) {
		return nil, fmt.Errorf("pagestore: rid %+v does not name a live slot", rid)
	}
	page.MarkDirty(tid)
	return []*Page{page}, nil
}

// ReadTuple reads the live tuple at rid, for callers (tests, the CLI)
// that already hold the appropriate lock via the buffer pool.
func (fs *FileStore) ReadTuple(rid RID) ([]byte, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	page, err := fs.readPageLocked(rid.PageNo)
	if err != nil {
		return nil, err
	}
	hp := newHeapPage(page)
	data := hp.get(int(rid.Slot))
	if data == nil {
		return nil, fmt.Errorf("pagestore: rid %+v does not name a live slot", rid)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}
