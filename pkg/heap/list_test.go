package heap

import (
	"sync"
	"testing"

	"github.com/mnohosten/pagestore/pkg/storage"
)

func newTestCache(t *testing.T) *storage.PageCache {
	t.Helper()
	return storage.NewMemoryEngine(4, 2)
}

func TestListGetOnUninitializedListReturnsNotFound(t *testing.T) {
	cache := newTestCache(t)
	list := New(cache)
	if _, _, err := list.Get(RId{PageID: 0, SlotID: 0}); err != storage.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListInsertAndGetRoundTrip(t *testing.T) {
	cache := newTestCache(t)
	list := New(cache)

	a := make([]byte, 10)
	for i := range a {
		a[i] = byte(i * 2)
	}
	b := make([]byte, 15)
	for i := range b {
		b[i] = byte(i * 3)
	}
	meta := TupleMeta{Deleted: false}

	ridA, err := list.Insert(a, meta)
	if err != nil {
		t.Fatalf("insert a: %v", err)
	}
	ridB, err := list.Insert(b, meta)
	if err != nil {
		t.Fatalf("insert b: %v", err)
	}

	reopened := Open(cache, list.FirstPageID(), list.LastPageID())
	tupA, _, err := reopened.Get(ridA)
	if err != nil {
		t.Fatalf("get a: %v", err)
	}
	if string(tupA.Data) != string(a) {
		t.Fatalf("tuple a mismatch: got %v, want %v", tupA.Data, a)
	}
	tupB, _, err := reopened.Get(ridB)
	if err != nil {
		t.Fatalf("get b: %v", err)
	}
	if string(tupB.Data) != string(b) {
		t.Fatalf("tuple b mismatch: got %v, want %v", tupB.Data, b)
	}
}

func TestListIterYieldsInsertionOrderAcrossPages(t *testing.T) {
	cache := newTestCache(t)
	list := New(cache)

	const wantLen = 100
	meta := TupleMeta{Deleted: false}
	var tuples [][]byte
	for i := 0; i < wantLen; i++ {
		tup := make([]byte, 150)
		for j := range tup {
			tup[j] = byte(j * i)
		}
		if _, err := list.Insert(tup, meta); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
		tuples = append(tuples, tup)
	}

	it, err := list.Iter()
	if err != nil {
		t.Fatalf("iter: %v", err)
	}

	var got int
	for {
		tup, _, ok, err := it.Next()
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if !ok {
			break
		}
		if string(tup.Data) != string(tuples[got]) {
			t.Fatalf("tuple %d mismatch", got)
		}
		got++
	}
	if got != wantLen {
		t.Fatalf("expected %d tuples, got %d", wantLen, got)
	}
}

// TestConcurrentInsertsDoNotLoseUpdates drives many goroutines appending
// to the same list at once, forcing repeated page-chain rollovers. Without
// the tail page's slot count and insert attempt combined into one
// continuously write-locked cycle (and the chain pointer itself
// serialized), two racing inserts can silently overwrite each other's
// slot; every tuple inserted here must come back out through Get.
func TestConcurrentInsertsDoNotLoseUpdates(t *testing.T) {
	cache := newTestCache(t)
	list := New(cache)

	const goroutines = 8
	const perGoroutine = 20

	type result struct {
		rid  RId
		want byte
	}
	results := make(chan result, goroutines*perGoroutine)

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				want := byte(g*perGoroutine + i)
				rid, err := list.Insert([]byte{want}, TupleMeta{})
				if err != nil {
					t.Errorf("insert: %v", err)
					continue
				}
				results <- result{rid: rid, want: want}
			}
		}(g)
	}
	wg.Wait()
	close(results)

	var count int
	for r := range results {
		tup, _, err := list.Get(r.rid)
		if err != nil {
			t.Fatalf("get(%+v): %v", r.rid, err)
		}
		if len(tup.Data) != 1 || tup.Data[0] != r.want {
			t.Fatalf("get(%+v) = %v, want [%d]", r.rid, tup.Data, r.want)
		}
		count++
	}
	if count != goroutines*perGoroutine {
		t.Fatalf("expected %d inserted tuples, got %d", goroutines*perGoroutine, count)
	}
}

func TestListInsertTooLargeFails(t *testing.T) {
	cache := newTestCache(t)
	list := New(cache)

	huge := make([]byte, storage.PageSize)
	if _, err := list.Insert(huge, TupleMeta{}); err != ErrTupleTooLarge {
		t.Fatalf("expected ErrTupleTooLarge, got %v", err)
	}
}

func TestListInsertsAfterIterationStartAreNotVisible(t *testing.T) {
	cache := newTestCache(t)
	list := New(cache)
	meta := TupleMeta{}

	if _, err := list.Insert([]byte("a"), meta); err != nil {
		t.Fatalf("insert: %v", err)
	}

	it, err := list.Iter()
	if err != nil {
		t.Fatalf("iter: %v", err)
	}

	if _, err := list.Insert([]byte("b"), meta); err != nil {
		t.Fatalf("insert: %v", err)
	}

	var count int
	for {
		_, _, ok, err := it.Next()
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if !ok {
			break
		}
		count++
	}
	if count != 1 {
		t.Fatalf("expected iterator fixed at 1 tuple, got %d", count)
	}
}
