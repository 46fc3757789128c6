package pagestore

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// DefaultPageSize is the process-wide page size used when no override
// is configured. Test-only hooks may change it before any PageStore
// performs I/O.
const DefaultPageSize = 4096

var (
	pageSizeMu sync.Mutex
	pageSize   = DefaultPageSize
)

// PageSize returns the process-wide page size.
func PageSize() int {
	pageSizeMu.Lock()
	defer pageSizeMu.Unlock()
	return pageSize
}

// SetPageSizeForTesting overrides the process-wide page size. It must
// be called before any PageStore performs I/O; it is not safe to call
// concurrently with reads/writes.
func SetPageSizeForTesting(n int) {
	pageSizeMu.Lock()
	defer pageSizeMu.Unlock()
	pageSize = n
}

// FileStore is a PageStore backed by one heap file per table. Pages
// are fixed-size and concatenated in file order: page k occupies byte
// range [k*page_size, (k+1)*page_size).
type FileStore struct {
	tableID int32
	mu      sync.Mutex
	file    *os.File
}

// OpenFileStore opens (creating if necessary) the heap file at path
// for the given table_id.
func OpenFileStore(tableID int32, path string) (*FileStore, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("pagestore: open %s: %w", path, err)
	}
	return &FileStore{tableID: tableID, file: f}, nil
}

// Close releases the underlying file handle.
func (fs *FileStore) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.file.Close()
}

// NumPages implements PageStore.
func (fs *FileStore) NumPages() int32 {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.numPagesLocked()
}

func (fs *FileStore) numPagesLocked() int32 {
	info, err := fs.file.Stat()
	if err != nil {
		return 0
	}
	ps := int64(PageSize())
	return int32((info.Size() + ps - 1) / ps)
}

// ReadPage implements PageStore.
func (fs *FileStore) ReadPage(pageNo int32) (*Page, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.readPageLocked(pageNo)
}

func (fs *FileStore) readPageLocked(pageNo int32) (*Page, error) {
	if pageNo < 0 || pageNo >= fs.numPagesLocked() {
		return nil, ErrOutOfRange
	}

	ps := PageSize()
	data := make([]byte, ps)
	offset := int64(pageNo) * int64(ps)
	if _, err := fs.file.ReadAt(data, offset); err != nil && err != io.EOF {
		return nil, fmt.Errorf("pagestore: read page %d: %w", pageNo, err)
	}

	return &Page{ID: ID{TableID: fs.tableID, PageNo: pageNo}, Data: data}, nil
}

// WritePage implements PageStore.
func (fs *FileStore) WritePage(page *Page) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.writePageLocked(page)
}

func (fs *FileStore) writePageLocked(page *Page) error {
	ps := PageSize()
	if len(page.Data) != ps {
		return fmt.Errorf("pagestore: page %d has %d bytes, want %d", page.ID.PageNo, len(page.Data), ps)
	}
	offset := int64(page.ID.PageNo) * int64(ps)
	if _, err := fs.file.WriteAt(page.Data, offset); err != nil {
		return fmt.Errorf("pagestore: write page %d: %w", page.ID.PageNo, err)
	}
	return fs.file.Sync()
}

// allocatePageLocked extends the file by one zero-filled page and
// returns that new page. Caller must hold fs.mu.
func (fs *FileStore) allocatePageLocked() (*Page, error) {
	pageNo := fs.numPagesLocked()
	ps := PageSize()
	data := make([]byte, ps)
	offset := int64(pageNo) * int64(ps)
	if _, err := fs.file.WriteAt(data, offset); err != nil {
		return nil, fmt.Errorf("pagestore: allocate page %d: %w", pageNo, err)
	}
	return &Page{ID: ID{TableID: fs.tableID, PageNo: pageNo}, Data: data}, nil
}
