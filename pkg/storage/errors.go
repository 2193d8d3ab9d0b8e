package storage

import "errors"

// ErrDisk wraps any I/O failure from a Disk implementation.
var ErrDisk = errors.New("disk error")

// ErrOutOfMemory is returned when the page cache cannot satisfy a request
// because every frame is pinned and none can be evicted.
var ErrOutOfMemory = errors.New("out of memory: no evictable frame")

// ErrNotFound is returned when a page, key, or tuple does not exist.
var ErrNotFound = errors.New("not found")
