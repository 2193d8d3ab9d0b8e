package storage

// PinGuard is a scoped, non-owning handle to a pinned frame: it holds a
// frame index and a weak reference to the cache that produced it, never an
// owning pointer (dropping a guard must never keep a cache alive past its
// own lifetime). Callers must call Unpin exactly once when done; Go has no
// destructors, so this is typically a defer immediately after the guard is
// obtained.
type PinGuard struct {
	cache    *PageCache
	frameIdx int
	id       PageId
}

// ID returns the page id this guard is pinning.
func (g *PinGuard) ID() PageId {
	return g.id
}

// Read runs fn with read access to the page's bytes. Multiple readers may
// hold the frame concurrently.
func (g *PinGuard) Read(fn func(data *Page)) {
	frame := g.cache.frames[g.frameIdx]
	frame.mu.RLock()
	defer frame.mu.RUnlock()
	fn(&frame.data)
}

// Write runs fn with exclusive access to the page's bytes and marks the
// frame dirty once fn returns, so a crash mid-write never leaves a page
// marked dirty with stale data read back.
func (g *PinGuard) Write(fn func(data *Page)) {
	frame := g.cache.frames[g.frameIdx]
	frame.mu.Lock()
	defer frame.mu.Unlock()
	fn(&frame.data)
	frame.dirty = true
}

// Unpin releases the pin unconditionally. Once every guard on a page has
// been unpinned, the frame becomes eligible for eviction.
func (g *PinGuard) Unpin() {
	g.cache.unpin(g.id, g.frameIdx)
}
