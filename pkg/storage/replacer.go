package storage

import "sync"

// Replacer selects which frame to evict when the cache is full. The calling
// convention mirrors how a buffer pool actually drives it: RecordAccess and
// SetEvictable(false) on pin, SetEvictable(pinCount==0) on unpin, Victim()
// when a new frame is needed and none are free.
type Replacer interface {
	RecordAccess(id PageId)
	SetEvictable(id PageId, evictable bool)
	Remove(id PageId)
	Victim() (PageId, bool)
	Size() int
	Stats() map[string]any
}

// LRUKReplacer implements the LRU-K eviction policy: a frame is evictable
// only once marked so, and among evictable frames the one with the fewest
// recorded accesses (treating "fewer than K" as an infinite backward
// k-distance) is preferred; ties are broken by the oldest earliest access.
type LRUKReplacer struct {
	mu  sync.Mutex
	k   int
	now int64
	nodes map[PageId]*lrukNode
}

type lrukNode struct {
	history   []int64 // most recent access last, bounded to k entries
	evictable bool
}

// NewLRUKReplacer creates a replacer that remembers up to k accesses per
// frame.
func NewLRUKReplacer(k int) *LRUKReplacer {
	if k < 1 {
		k = 1
	}
	return &LRUKReplacer{k: k, nodes: make(map[PageId]*lrukNode)}
}

// RecordAccess logs an access to id at the replacer's internal logical
// clock, creating tracking state for id if this is its first access.
func (r *LRUKReplacer) RecordAccess(id PageId) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.now++
	n, ok := r.nodes[id]
	if !ok {
		n = &lrukNode{}
		r.nodes[id] = n
	}
	n.history = append(n.history, r.now)
	if len(n.history) > r.k {
		n.history = n.history[len(n.history)-r.k:]
	}
}

// SetEvictable marks id as a candidate (or not) for eviction.
func (r *LRUKReplacer) SetEvictable(id PageId, evictable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n, ok := r.nodes[id]; ok {
		n.evictable = evictable
	}
}

// Remove drops all tracking state for id; it must not currently be pinned.
func (r *LRUKReplacer) Remove(id PageId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.nodes, id)
}

// Size returns the number of evictable frames currently tracked.
func (r *LRUKReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, node := range r.nodes {
		if node.evictable {
			n++
		}
	}
	return n
}

// Stats reports replacer-internal counters for observability.
func (r *LRUKReplacer) Stats() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()

	evictable := 0
	for _, n := range r.nodes {
		if n.evictable {
			evictable++
		}
	}
	return map[string]any{
		"k":                r.k,
		"tracked_frames":   len(r.nodes),
		"evictable_frames": evictable,
	}
}

// Victim picks an eviction candidate per the LRU-K algorithm: prefer a frame
// with fewer than k recorded accesses (infinite backward k-distance),
// tie-breaking on the oldest earliest access; otherwise the frame whose kth
// most recent access is oldest, tie-breaking the same way.
func (r *LRUKReplacer) Victim() (PageId, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		found       bool
		victim      PageId
		bestInf     bool
		bestKDist   int64
		bestEarliest int64
	)

	for id, n := range r.nodes {
		if !n.evictable {
			continue
		}

		earliest := n.history[0]
		inf := len(n.history) < r.k
		var kDist int64
		if !inf {
			kDist = n.history[0] // kth most recent access, oldest-first trimmed history
		}

		better := false
		switch {
		case !found:
			better = true
		case inf && !bestInf:
			better = true
		case inf == bestInf && inf:
			better = earliest < bestEarliest
		case inf == bestInf && !inf:
			if kDist != bestKDist {
				better = kDist < bestKDist
			} else {
				better = earliest < bestEarliest
			}
		case !inf && bestInf:
			better = false
		}

		if better {
			found = true
			victim = id
			bestInf = inf
			bestKDist = kDist
			bestEarliest = earliest
		}
	}

	if !found {
		return NoPage, false
	}

	delete(r.nodes, victim)
	return victim, true
}
