package heap

import (
	"sync"

	"github.com/mnohosten/pagestore/pkg/storage"
)

// List is an append-only sequence of tuples spread across a chain of
// pages. FirstPageID/LastPageID are meant to be persisted externally by the
// caller, the same way BTree's root page id is. mu serializes Insert so
// that two goroutines appending at once can't both observe the same
// lastPageID and race to link a new page onto the chain.
type List struct {
	cache       *storage.PageCache
	mu          sync.Mutex
	firstPageID storage.PageId
	lastPageID  storage.PageId
}

// New returns an empty list.
func New(cache *storage.PageCache) *List {
	return &List{cache: cache, firstPageID: storage.NoPage, lastPageID: storage.NoPage}
}

// Open resumes a list whose page chain was already built by a prior
// New/Open + Insert sequence.
func Open(cache *storage.PageCache, first, last storage.PageId) *List {
	return &List{cache: cache, firstPageID: first, lastPageID: last}
}

// FirstPageID returns the head of the page chain, NoPage if empty.
func (l *List) FirstPageID() storage.PageId {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.firstPageID
}

// LastPageID returns the tail of the page chain, NoPage if empty.
func (l *List) LastPageID() storage.PageId {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastPageID
}

func initHeapPage(page *storage.Page) {
	setNextPageID(page, storage.NoPage)
	setSlotCount(page, 0)
}

// Insert appends data as a new tuple, returning its location. If the
// current tail page has no room, a fresh page is linked on and the insert
// retried there; if it still doesn't fit on an empty page, Insert fails
// with ErrTupleTooLarge.
//
// The tail page's existing slot count and the insert attempt itself are
// read and mutated inside one Write closure, so the frame's write lock is
// held across the whole cycle: two concurrent inserts racing for the last
// free slot can never both decode the same existingCount before either's
// insertTuple call lands.
func (l *List) Insert(data []byte, meta TupleMeta) (RId, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var guard *storage.PinGuard
	var err error

	if l.lastPageID == storage.NoPage {
		guard, err = l.cache.NewPage()
		if err != nil {
			return RId{}, err
		}
		guard.Write(initHeapPage)
		l.firstPageID = guard.ID()
		l.lastPageID = guard.ID()
	} else {
		guard, err = l.cache.FetchPage(l.lastPageID)
		if err != nil {
			return RId{}, err
		}
	}

	var existingCount uint32
	var slotID uint32
	var ok bool
	guard.Write(func(p *storage.Page) {
		existingCount = slotCount(p)
		slotID, ok = insertTuple(p, data, meta.Deleted)
	})

	if ok {
		rid := RId{PageID: l.lastPageID, SlotID: slotID}
		guard.Unpin()
		return rid, nil
	}

	if existingCount == 0 {
		guard.Unpin()
		return RId{}, ErrTupleTooLarge
	}

	newGuard, err := l.cache.NewPage()
	if err != nil {
		guard.Unpin()
		return RId{}, err
	}
	newGuard.Write(initHeapPage)

	guard.Write(func(p *storage.Page) { setNextPageID(p, newGuard.ID()) })
	guard.Unpin()
	l.lastPageID = newGuard.ID()

	var newSlotID uint32
	newGuard.Write(func(p *storage.Page) { newSlotID, ok = insertTuple(p, data, meta.Deleted) })
	newGuard.Unpin()
	if !ok {
		return RId{}, ErrTupleTooLarge
	}
	return RId{PageID: l.lastPageID, SlotID: newSlotID}, nil
}

// Get returns the tuple and metadata stored at rid, or storage.ErrNotFound.
func (l *List) Get(rid RId) (Tuple, TupleMeta, error) {
	l.mu.Lock()
	empty := l.firstPageID == storage.NoPage
	l.mu.Unlock()
	if empty {
		return Tuple{}, TupleMeta{}, storage.ErrNotFound
	}

	guard, err := l.cache.FetchPage(rid.PageID)
	if err != nil {
		return Tuple{}, TupleMeta{}, err
	}
	var data []byte
	var deleted, ok bool
	guard.Read(func(p *storage.Page) { data, deleted, ok = getTuple(p, rid.SlotID) })
	guard.Unpin()

	if !ok {
		return Tuple{}, TupleMeta{}, storage.ErrNotFound
	}
	return Tuple{RId: rid, Data: data}, TupleMeta{Deleted: deleted}, nil
}

// Iter walks the list from its first page, yielding tuples in insertion
// order. Its end cursor is fixed at creation time, so inserts made after
// iteration starts are not visible to that iterator.
type Iter struct {
	list *List
	cur  RId
	end  RId
	done bool
}

// Iter returns a fresh iterator over l's current contents.
func (l *List) Iter() (*Iter, error) {
	l.mu.Lock()
	first, last := l.firstPageID, l.lastPageID
	l.mu.Unlock()

	if last == storage.NoPage {
		return &Iter{list: l, done: true}, nil
	}

	guard, err := l.cache.FetchPage(last)
	if err != nil {
		return nil, err
	}
	var count uint32
	guard.Read(func(p *storage.Page) { count = slotCount(p) })
	guard.Unpin()

	end := RId{PageID: last, SlotID: count}
	start := RId{PageID: first, SlotID: 0}
	return &Iter{list: l, cur: start, end: end, done: start == end}, nil
}

// Next returns the next (tuple, meta) pair, or ok=false once exhausted.
func (it *Iter) Next() (Tuple, TupleMeta, bool, error) {
	if it.done {
		return Tuple{}, TupleMeta{}, false, nil
	}

	tuple, meta, err := it.list.Get(it.cur)
	if err != nil {
		return Tuple{}, TupleMeta{}, false, err
	}

	guard, err := it.list.cache.FetchPage(it.cur.PageID)
	if err != nil {
		return Tuple{}, TupleMeta{}, false, err
	}
	var count uint32
	var next storage.PageId
	guard.Read(func(p *storage.Page) {
		count = slotCount(p)
		next = nextPageID(p)
	})
	guard.Unpin()

	switch {
	case it.cur.PageID == it.end.PageID && it.cur.SlotID+1 == it.end.SlotID:
		it.done = true
	case it.cur.SlotID+1 < count:
		it.cur.SlotID++
	case next == storage.NoPage:
		it.done = true
	default:
		it.cur = RId{PageID: next, SlotID: 0}
	}

	return tuple, meta, true, nil
}
