package btree

import (
	"sync"

	"github.com/mnohosten/pagestore/pkg/storable"
	"github.com/mnohosten/pagestore/pkg/storage"
)

// BTree is a sorted index over pages pulled from a single shared
// PageCache. The root page id lives only in this struct (per the data
// model: "Root: PageId stored externally"); a caller that needs the index
// to survive a restart is responsible for persisting Root() and passing it
// back to Open.
//
// mu is the structural latch: it protects the root field itself, separate
// from the per-frame write locks that protect node bytes. Insert holds it
// for the whole call, serializing structure modifications (root
// bootstrap/split) the same way PageCache.mu serializes bookkeeping while
// leaving per-frame RWMutexes to guard data. Get only needs a brief RLock
// to snapshot root before descending through the per-frame locks.
type BTree[K, V any] struct {
	cache    *storage.PageCache
	mu       sync.RWMutex
	root     storage.PageId
	max      uint32
	keyCodec storable.KeyCodec[K]
	valCodec storable.ValueCodec[V]
}

// New creates an empty tree. max bounds the number of slots per node;
// splitting triggers once a node holds max/2 slots or more.
func New[K, V any](cache *storage.PageCache, max uint32, keyCodec storable.KeyCodec[K], valCodec storable.ValueCodec[V]) *BTree[K, V] {
	return &BTree[K, V]{cache: cache, root: storage.NoPage, max: max, keyCodec: keyCodec, valCodec: valCodec}
}

// Open resumes a tree whose root page id was persisted by a prior session.
func Open[K, V any](cache *storage.PageCache, root storage.PageId, max uint32, keyCodec storable.KeyCodec[K], valCodec storable.ValueCodec[V]) *BTree[K, V] {
	return &BTree[K, V]{cache: cache, root: root, max: max, keyCodec: keyCodec, valCodec: valCodec}
}

// Root returns the current root page id, NoPage if the tree is empty.
func (t *BTree[K, V]) Root() storage.PageId {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.root
}

// Get looks up key, returning (value, true, nil) on a hit and
// (zero, false, nil) if key is absent.
func (t *BTree[K, V]) Get(key K) (V, bool, error) {
	var zero V
	t.mu.RLock()
	root := t.root
	t.mu.RUnlock()
	if root == storage.NoPage {
		return zero, false, nil
	}

	cur := root
	for {
		guard, err := t.cache.FetchPage(cur)
		if err != nil {
			return zero, false, err
		}

		var node *Node[K, V]
		guard.Read(func(p *storage.Page) { node = DecodeNode[K, V](p, t.keyCodec, t.valCodec) })

		if node.Type == Leaf {
			v, ok := node.FindValue(key)
			guard.Unpin()
			return v, ok, nil
		}

		next, ok := node.FindChild(key)
		guard.Unpin()
		if !ok {
			return zero, false, nil
		}
		cur = next
	}
}

// Insert adds or replaces the value stored at key, splitting nodes
// top-down and pre-emptively as it descends so no node is ever visited
// twice for the same insert.
//
// Every node Insert touches is decoded, inspected, and (if mutated)
// re-encoded inside a single Write closure, so that node's frame write
// lock is held continuously across its whole read-modify-write cycle —
// two concurrent inserts into the same node can never interleave a decode
// against a write that hasn't landed yet. A parent's write lock (held by
// its own enclosing closure, further up the Go call stack) stays open for
// as long as a child is being fetched, split, and fixed up: the nested
// closures here are this module's "explicit stack of pinned ancestor
// frames" (design note 1) — each stack frame corresponds to one still-held
// frame.mu.Lock(), released only once that level's whole subtree operation
// returns.
//
// t.mu is held for the whole call: structure modifications (root bootstrap
// and root splits) are serialized at the tree level, so a root split can
// never race another goroutine's own attempt to grow the root out from
// under it. Concurrent Get calls only take a brief RLock to snapshot root
// and otherwise proceed through the per-frame locks undisturbed.
func (t *BTree[K, V]) Insert(key K, value V) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.root == storage.NoPage {
		return t.bootstrapRoot(key, value)
	}

	rootGuard, err := t.cache.FetchPage(t.root)
	if err != nil {
		return err
	}
	defer rootGuard.Unpin()

	var opErr error
	rootGuard.Write(func(p *storage.Page) {
		rootNode := DecodeNode[K, V](p, t.keyCodec, t.valCodec)

		if rootNode.AlmostFull() {
			// The root has no parent to fix up after the fact, so it must
			// be split here, before descending further.
			opErr = t.splitRootAndInsert(rootNode, key, value)
			rootNode.EncodeInto(p)
			return
		}

		opErr = t.insertInto(rootNode, key, value)
		rootNode.EncodeInto(p)
	})
	return opErr
}

// insertInto performs the insert starting at node, which is already
// decoded and whose frame write lock is already held by the caller's own
// Write closure. It returns once node (and everything Insert touched
// below it) is fully updated in memory; the caller re-encodes node after
// this returns.
func (t *BTree[K, V]) insertInto(node *Node[K, V], key K, value V) error {
	if node.Type == Leaf {
		node.InsertLeafValue(key, value)
		return nil
	}

	childID, ok := node.FindChild(key)
	if !ok {
		// Invariant violation: every internal node produced by this
		// tree always has its rightmost pointer set once it stops
		// being a lone leaf.
		panic("btree: internal node has no routable child")
	}

	childGuard, err := t.cache.FetchPage(childID)
	if err != nil {
		return err
	}
	defer childGuard.Unpin()

	var opErr error
	childGuard.Write(func(p *storage.Page) {
		childNode := DecodeNode[K, V](p, t.keyCodec, t.valCodec)

		if childNode.AlmostFull() {
			opErr = t.splitChildAndInsert(node, childNode, key, value)
			childNode.EncodeInto(p)
			return
		}

		opErr = t.insertInto(childNode, key, value)
		childNode.EncodeInto(p)
	})
	return opErr
}

// splitChildAndInsert splits child (already known almost full, still
// write-locked by the caller) into child (lower half, mutated in place)
// and a freshly allocated upper sibling, fixes parent's separators for the
// split — while parent's own write lock, held further up the call stack,
// is still open — and continues the insert into whichever half key
// belongs in. The new sibling is unreachable from any other goroutine
// until parent's separators (pointing at it) are themselves written back
// and parent's lock releases, so it is safe to mutate in memory here and
// only persist it just before returning.
func (t *BTree[K, V]) splitChildAndInsert(parent *Node[K, V], child *Node[K, V], key K, value V) error {
	newGuard, err := t.cache.NewPage()
	if err != nil {
		return err
	}
	defer newGuard.Unpin()

	childID := child.Id
	newNode := child.Split(newGuard.ID())

	sepKey, sepPtr := child.Separator()
	newSepKey, newSepPtr := newNode.Separator()
	parent.replaceChildSeparator(childID, sepKey, sepPtr, newSepKey, newSepPtr)

	var opErr error
	if t.keyCodec.Compare(key, newNode.FirstKey()) >= 0 {
		opErr = t.insertInto(newNode, key, value)
	} else {
		opErr = t.insertInto(child, key, value)
	}
	if opErr != nil {
		return opErr
	}

	newGuard.Write(func(p *storage.Page) { newNode.EncodeInto(p) })
	return nil
}

// splitRootAndInsert splits root (already known almost full, still
// write-locked by the caller) into root (lower half, mutated in place) and
// a new upper sibling, builds a brand new top-level internal root over
// both, and continues the insert into whichever half key belongs in — all
// before publishing the new root id, so an interrupted split never leaves
// a half-initialized page installed as root (design note 6).
func (t *BTree[K, V]) splitRootAndInsert(root *Node[K, V], key K, value V) error {
	newGuard, err := t.cache.NewPage()
	if err != nil {
		return err
	}
	defer newGuard.Unpin()

	newNode := root.Split(newGuard.ID())
	root.IsRoot = false

	sepKey, sepPtr := root.Separator()

	topGuard, err := t.cache.NewPage()
	if err != nil {
		return err
	}
	defer topGuard.Unpin()

	topNode := NewNode(topGuard.ID(), Internal, t.max, t.keyCodec, t.valCodec)
	topNode.IsRoot = true
	topNode.InsertSeparator(sepKey, sepPtr)
	topNode.Next = newNode.Id

	var opErr error
	if t.keyCodec.Compare(key, newNode.FirstKey()) >= 0 {
		opErr = t.insertInto(newNode, key, value)
	} else {
		opErr = t.insertInto(root, key, value)
	}
	if opErr != nil {
		return opErr
	}

	newGuard.Write(func(p *storage.Page) { newNode.EncodeInto(p) })
	topGuard.Write(func(p *storage.Page) { topNode.EncodeInto(p) })

	t.root = topGuard.ID()
	return nil
}

// bootstrapRoot allocates, initializes, writes, and only then publishes a
// brand new leaf as the tree's root — an atomic allocate/init/write/publish
// sequence, never a partially-initialized page installed as root.
func (t *BTree[K, V]) bootstrapRoot(key K, value V) error {
	guard, err := t.cache.NewPage()
	if err != nil {
		return err
	}
	node := NewNode(guard.ID(), Leaf, t.max, t.keyCodec, t.valCodec)
	node.IsRoot = true
	node.InsertLeafValue(key, value)
	guard.Write(func(p *storage.Page) { node.EncodeInto(p) })
	guard.Unpin()

	t.root = guard.ID()
	return nil
}

// replaceChildSeparator fixes up n's routing after one of its children
// (identified by its unchanged page id, childID) has been split into
// (childID holding the lower half) and (newPtr holding the upper half).
func (n *Node[K, V]) replaceChildSeparator(childID storage.PageId, sepKey K, sepPtr storage.PageId, newSepKey K, newSepPtr storage.PageId) {
	if n.Next == childID {
		n.InsertSeparator(sepKey, sepPtr)
		n.Next = newSepPtr
		return
	}
	n.removeByPointer(childID)
	n.InsertSeparator(sepKey, sepPtr)
	n.InsertSeparator(newSepKey, newSepPtr)
}

// removeByPointer deletes the slot routing to childID, if any.
func (n *Node[K, V]) removeByPointer(childID storage.PageId) bool {
	for i, s := range n.Slots {
		if s.Tag == 1 && s.Ptr == childID {
			n.Slots = append(n.Slots[:i], n.Slots[i+1:]...)
			return true
		}
	}
	return false
}
