package storage

import (
	"fmt"
	"os"
	"sync"
)

// Disk is the page-granular I/O surface the cache loads and flushes through.
// Implementations never see anything above page granularity: no knowledge
// of B+-tree nodes, hash buckets, or tuples lives here.
type Disk interface {
	ReadPage(id PageId) (*Page, error)
	WritePage(id PageId, data *Page) error
	AllocatePage() PageId
}

// FileDisk is a Disk backed by a single file, page id N living at byte
// offset N*PageSize.
type FileDisk struct {
	mu         sync.Mutex
	file       *os.File
	nextPageID PageId
}

// NewFileDisk opens (creating if necessary) the file at path and resumes
// page-id allocation from its current length.
func NewFileDisk(path string) (*FileDisk, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrDisk, path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: stat %s: %v", ErrDisk, path, err)
	}

	return &FileDisk{
		file:       f,
		nextPageID: PageId(info.Size() / PageSize),
	}, nil
}

// ReadPage reads the page at id. A read that falls short of a full page
// (including one entirely past the end of the file) yields a freshly zeroed
// page rather than an error: an unwritten page is indistinguishable from an
// all-zero one.
func (d *FileDisk) ReadPage(id PageId) (*Page, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var page Page
	n, err := d.file.ReadAt(page[:], int64(id)*PageSize)
	if err != nil && n < PageSize {
		return &Page{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read page %d: %v", ErrDisk, id, err)
	}
	return &page, nil
}

// WritePage writes the full page contents at id.
func (d *FileDisk) WritePage(id PageId, data *Page) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.file.WriteAt(data[:], int64(id)*PageSize); err != nil {
		return fmt.Errorf("%w: write page %d: %v", ErrDisk, id, err)
	}
	return nil
}

// AllocatePage returns the next monotonically increasing page id.
func (d *FileDisk) AllocatePage() PageId {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.nextPageID
	d.nextPageID++
	return id
}

// Sync flushes the underlying file to stable storage.
func (d *FileDisk) Sync() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.file.Sync()
}

// Close closes the underlying file.
func (d *FileDisk) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.file.Close()
}

// MemDisk is an in-memory Disk with identical semantics to FileDisk, used by
// tests that must not touch the filesystem.
type MemDisk struct {
	mu         sync.Mutex
	pages      map[PageId]*Page
	nextPageID PageId
}

// NewMemDisk creates an empty in-memory disk.
func NewMemDisk() *MemDisk {
	return &MemDisk{pages: make(map[PageId]*Page)}
}

// ReadPage returns a copy of the stored page, or a zeroed page if id has
// never been written.
func (d *MemDisk) ReadPage(id PageId) (*Page, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.pages[id]
	if !ok {
		return &Page{}, nil
	}
	cp := *p
	return &cp, nil
}

// WritePage stores a copy of data at id.
func (d *MemDisk) WritePage(id PageId, data *Page) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	cp := *data
	d.pages[id] = &cp
	return nil
}

// AllocatePage returns the next monotonically increasing page id.
func (d *MemDisk) AllocatePage() PageId {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.nextPageID
	d.nextPageID++
	return id
}
