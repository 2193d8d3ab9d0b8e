package storage

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/mnohosten/pagestore/pkg/concurrent"
)

// PageCache is the single buffer pool every index and heap structure in
// this module goes through to reach a page. The table lock (mu) protects
// only bookkeeping — the id-to-frame map and the free list — and is never
// held across a frame's own RWMutex or a Disk call. The one exception: a
// pin increment and its matching RecordAccess/SetEvictable(false) call are
// always made under the same mu critical section, so a frame is never
// observably evictable while pinned (see acquireFrame's matching re-check).
type PageCache struct {
	disk     Disk
	replacer Replacer

	mu     sync.Mutex
	frames []*Frame
	table  map[PageId]int // PageId -> index into frames
	free   *concurrent.LockFreeStack[int]

	loading map[PageId]chan struct{}

	hits   *concurrent.Counter
	misses *concurrent.Counter
}

// NewPageCache creates a cache with poolSize frames over disk, evicting via
// replacer.
func NewPageCache(disk Disk, replacer Replacer, poolSize int) *PageCache {
	frames := make([]*Frame, poolSize)
	free := concurrent.NewLockFreeStack[int]()
	for i := 0; i < poolSize; i++ {
		frames[i] = newFrame()
		free.Push(i)
	}

	return &PageCache{
		disk:     disk,
		replacer: replacer,
		frames:   frames,
		table:    make(map[PageId]int),
		free:     free,
		loading:  make(map[PageId]chan struct{}),
		hits:     concurrent.NewCounter(),
		misses:   concurrent.NewCounter(),
	}
}

// acquireFrame returns the index of a free or evicted frame, flushing a
// dirty victim to disk. Must be called without mu held.
func (c *PageCache) acquireFrame() (int, error) {
	if v, ok := c.free.Pop(); ok {
		return v, nil
	}

	for {
		victim, ok := c.replacer.Victim()
		if !ok {
			return 0, ErrOutOfMemory
		}

		c.mu.Lock()
		idx, present := c.table[victim]
		if !present {
			// Already reclaimed by a racing caller; try another victim.
			c.mu.Unlock()
			continue
		}
		if atomic.LoadInt32(&c.frames[idx].pin) != 0 {
			// Victim() sampled a stale evictable flag: someone pinned this
			// frame again after it was marked evictable but before we got
			// here. Re-check under mu rather than repurpose a live frame.
			c.mu.Unlock()
			continue
		}
		delete(c.table, victim)
		c.mu.Unlock()

		frame := c.frames[idx]
		frame.mu.Lock()
		if frame.dirty {
			if err := c.disk.WritePage(frame.id, &frame.data); err != nil {
				frame.mu.Unlock()
				return 0, err
			}
			frame.dirty = false
		}
		frame.mu.Unlock()

		return idx, nil
	}
}

// NewPage allocates a fresh page, pins it, and returns a handle to it.
func (c *PageCache) NewPage() (*PinGuard, error) {
	idx, err := c.acquireFrame()
	if err != nil {
		return nil, err
	}

	id := c.disk.AllocatePage()

	frame := c.frames[idx]
	frame.mu.Lock()
	frame.reset(id)
	atomic.StoreInt32(&frame.pin, 1)
	frame.mu.Unlock()

	c.mu.Lock()
	c.table[id] = idx
	c.replacer.RecordAccess(id)
	c.replacer.SetEvictable(id, false)
	c.mu.Unlock()

	return &PinGuard{cache: c, frameIdx: idx, id: id}, nil
}

// FetchPage returns a pinned handle to id, loading it from disk if it is
// not already resident. Concurrent fetches of the same missing id serialize
// on a single disk load.
func (c *PageCache) FetchPage(id PageId) (*PinGuard, error) {
	for {
		c.mu.Lock()
		if idx, ok := c.table[id]; ok {
			// Pin, RecordAccess, and SetEvictable(false) must land as one
			// critical section: releasing mu between the pin increment and
			// marking the frame non-evictable would leave a window where a
			// concurrent acquireFrame's Victim() can still pick this frame,
			// ghost-evicting a page another goroutine just pinned.
			atomic.AddInt32(&c.frames[idx].pin, 1)
			c.replacer.RecordAccess(id)
			c.replacer.SetEvictable(id, false)
			c.mu.Unlock()
			c.hits.Inc()
			return &PinGuard{cache: c, frameIdx: idx, id: id}, nil
		}

		if ch, inFlight := c.loading[id]; inFlight {
			c.mu.Unlock()
			<-ch
			continue
		}

		ch := make(chan struct{})
		c.loading[id] = ch
		c.mu.Unlock()

		idx, err := c.acquireFrame()
		if err != nil {
			c.mu.Lock()
			delete(c.loading, id)
			c.mu.Unlock()
			close(ch)
			return nil, err
		}

		data, err := c.disk.ReadPage(id)
		if err != nil {
			c.mu.Lock()
			delete(c.loading, id)
			c.mu.Unlock()
			close(ch)
			c.free.Push(idx)
			return nil, err
		}

		frame := c.frames[idx]
		frame.mu.Lock()
		frame.reset(id)
		frame.data = *data
		atomic.StoreInt32(&frame.pin, 1)
		frame.mu.Unlock()

		c.mu.Lock()
		c.table[id] = idx
		delete(c.loading, id)
		c.replacer.RecordAccess(id)
		c.replacer.SetEvictable(id, false)
		c.mu.Unlock()
		close(ch)

		c.misses.Inc()

		return &PinGuard{cache: c, frameIdx: idx, id: id}, nil
	}
}

// RemovePage evicts id from the cache outright. The page must be unpinned.
func (c *PageCache) RemovePage(id PageId) error {
	c.mu.Lock()
	idx, ok := c.table[id]
	if !ok {
		c.mu.Unlock()
		return nil
	}

	frame := c.frames[idx]
	if atomic.LoadInt32(&frame.pin) > 0 {
		c.mu.Unlock()
		return fmt.Errorf("storage: cannot remove pinned page %d", id)
	}

	delete(c.table, id)
	c.mu.Unlock()

	c.replacer.Remove(id)
	c.free.Push(idx)
	return nil
}

// FlushPage writes id to disk if dirty.
func (c *PageCache) FlushPage(id PageId) error {
	c.mu.Lock()
	idx, ok := c.table[id]
	c.mu.Unlock()
	if !ok {
		return nil
	}

	frame := c.frames[idx]
	frame.mu.Lock()
	defer frame.mu.Unlock()
	if !frame.dirty {
		return nil
	}
	if err := c.disk.WritePage(frame.id, &frame.data); err != nil {
		return err
	}
	frame.dirty = false
	return nil
}

// FlushAll writes every dirty frame to disk.
func (c *PageCache) FlushAll() error {
	c.mu.Lock()
	ids := make([]PageId, 0, len(c.table))
	for id := range c.table {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		if err := c.FlushPage(id); err != nil {
			return err
		}
	}
	return nil
}

// Stats reports pool occupancy and the replacer's own counters, for
// observability surfaces.
func (c *PageCache) Stats() map[string]any {
	c.mu.Lock()
	resident := len(c.table)
	poolSize := len(c.frames)
	c.mu.Unlock()

	return map[string]any{
		"pool_size":   poolSize,
		"resident":    resident,
		"free_frames": poolSize - resident,
		"hits":        c.hits.Load(),
		"misses":      c.misses.Load(),
		"replacer":    c.replacer.Stats(),
	}
}

// unpin decrements id's pin count, marking it evictable once it reaches
// zero. Called only from PinGuard.Unpin.
func (c *PageCache) unpin(id PageId, frameIdx int) {
	frame := c.frames[frameIdx]
	if atomic.AddInt32(&frame.pin, -1) == 0 {
		c.replacer.SetEvictable(id, true)
	}
}
