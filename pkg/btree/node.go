// Package btree implements a persistent, page-backed B+-tree with
// top-down pre-emptive splitting.
package btree

import (
	"sort"

	"github.com/mnohosten/pagestore/pkg/storable"
	"github.com/mnohosten/pagestore/pkg/storage"
)

// NodeType distinguishes an internal (routing) node from a leaf (data) node.
type NodeType byte

const (
	Internal NodeType = 1
	Leaf     NodeType = 2
)

const (
	offType   = 0
	offIsRoot = 1
	offLen    = 2
	offMax    = 6
	offNext   = 10
	offID     = 14
	headerLen = 18
)

// Slot is one (key, payload) entry. Tag 0 means Value is live; tag 1 means
// Ptr is live — a tagged sum with an explicit discriminant byte, never a
// union cast.
type Slot[K, V any] struct {
	Key   K
	Tag   byte
	Value V
	Ptr   storage.PageId
}

// Node is one page's worth of B+-tree structure: a header plus a
// key-sorted, fixed-stride slot array starting immediately after it.
type Node[K, V any] struct {
	Type   NodeType
	IsRoot bool
	Max    uint32
	Next   storage.PageId
	Id     storage.PageId
	Slots  []Slot[K, V]

	keyCodec storable.KeyCodec[K]
	valCodec storable.ValueCodec[V]
}

// slotSize returns the fixed byte width of one slot: key bytes, a one-byte
// tag, and a payload region sized to hold either a value or a page pointer.
// ValueCodec.Size must be at least 4 bytes so a PageId fits in that region —
// every value type this tree is instantiated over is expected to satisfy
// that, the same constraint the original Rust implementation relied on.
func slotSize[K, V any](keyCodec storable.KeyCodec[K], valCodec storable.ValueCodec[V]) int {
	return keyCodec.Size + 1 + valCodec.Size
}

// NewNode creates an empty node of the given type.
func NewNode[K, V any](id storage.PageId, t NodeType, max uint32, keyCodec storable.KeyCodec[K], valCodec storable.ValueCodec[V]) *Node[K, V] {
	return &Node[K, V]{
		Type:     t,
		Max:      max,
		Next:     storage.NoPage,
		Id:       id,
		keyCodec: keyCodec,
		valCodec: valCodec,
	}
}

// DecodeNode reads a node's full representation out of a page.
func DecodeNode[K, V any](page *storage.Page, keyCodec storable.KeyCodec[K], valCodec storable.ValueCodec[V]) *Node[K, V] {
	n := &Node[K, V]{keyCodec: keyCodec, valCodec: valCodec}

	n.Type = NodeType(page[offType])
	n.IsRoot = page[offIsRoot] != 0
	length := getU32(page[offLen : offLen+4])
	n.Max = getU32(page[offMax : offMax+4])
	n.Next = storage.PageId(getI32(page[offNext : offNext+4]))
	n.Id = storage.PageId(getI32(page[offID : offID+4]))

	stride := slotSize(keyCodec, valCodec)
	n.Slots = make([]Slot[K, V], length)
	for i := uint32(0); i < length; i++ {
		start := headerLen + int(i)*stride
		keyBytes := page[start : start+keyCodec.Size]
		tag := page[start+keyCodec.Size]
		payload := page[start+keyCodec.Size+1 : start+stride]

		slot := Slot[K, V]{Key: keyCodec.Decode(keyBytes), Tag: tag}
		if tag == 0 {
			slot.Value = valCodec.Decode(payload[:valCodec.Size])
		} else {
			slot.Ptr = storage.PageId(getI32(payload[:4]))
		}
		n.Slots[i] = slot
	}

	return n
}

// EncodeInto serializes n's full representation into page, starting at
// byte 0.
func (n *Node[K, V]) EncodeInto(page *storage.Page) {
	page[offType] = byte(n.Type)
	if n.IsRoot {
		page[offIsRoot] = 1
	} else {
		page[offIsRoot] = 0
	}
	putU32(page[offLen:offLen+4], uint32(len(n.Slots)))
	putU32(page[offMax:offMax+4], n.Max)
	putI32(page[offNext:offNext+4], int32(n.Next))
	putI32(page[offID:offID+4], int32(n.Id))

	stride := slotSize(n.keyCodec, n.valCodec)
	for i, s := range n.Slots {
		start := headerLen + i*stride
		copy(page[start:start+n.keyCodec.Size], n.keyCodec.Encode(s.Key))
		page[start+n.keyCodec.Size] = s.Tag

		payload := page[start+n.keyCodec.Size+1 : start+stride]
		for j := range payload {
			payload[j] = 0
		}
		if s.Tag == 0 {
			copy(payload, n.valCodec.Encode(s.Value))
		} else {
			putI32(payload[:4], int32(s.Ptr))
		}
	}
}

// AlmostFull reports whether n has reached the pre-emptive split threshold.
func (n *Node[K, V]) AlmostFull() bool {
	return uint32(len(n.Slots)) >= n.Max/2
}

// FirstKey returns the smallest key in the node.
func (n *Node[K, V]) FirstKey() K {
	return n.Slots[0].Key
}

// LastKey returns the largest key in the node.
func (n *Node[K, V]) LastKey() K {
	return n.Slots[len(n.Slots)-1].Key
}

// Split moves the upper half of n's slots into a freshly allocated node
// with id newID. For a leaf, the new node inherits n's old successor before
// n is repointed at the new node, so an already-linked leaf never loses its
// chain to a split.
func (n *Node[K, V]) Split(newID storage.PageId) *Node[K, V] {
	mid := len(n.Slots) / 2

	newNode := NewNode(newID, n.Type, n.Max, n.keyCodec, n.valCodec)
	newNode.Slots = append([]Slot[K, V]{}, n.Slots[mid:]...)
	n.Slots = n.Slots[:mid:mid]

	if n.Type == Leaf {
		newNode.Next = n.Next
		n.Next = newID
	}

	return newNode
}

// Separator returns the (key, pointer) pair used to promote n into its
// parent after a split: a leaf's separator is the smallest key strictly
// greater than its last key (so the parent's routing decision never
// ambiguously matches a key that actually lives in the leaf below);
// an internal node's separator is its last key unchanged, since internal
// routing already treats "key >= slot.Key" as "descend past this pointer".
func (n *Node[K, V]) Separator() (K, storage.PageId) {
	if n.Type == Leaf {
		return n.keyCodec.Increment(n.LastKey()), n.Id
	}
	return n.LastKey(), n.Id
}

// FindChild returns the child pointer an internal node would follow to
// reach key. The second return is false for a leaf (there is no child to
// follow; the caller should search this node's own slots instead) or for an
// internal node whose rightmost pointer (Next) is still unset.
func (n *Node[K, V]) FindChild(key K) (storage.PageId, bool) {
	if n.Type == Leaf {
		return storage.NoPage, false
	}
	for _, s := range n.Slots {
		if n.keyCodec.Compare(key, s.Key) < 0 {
			return s.Ptr, true
		}
	}
	if n.Next != storage.NoPage {
		return n.Next, true
	}
	return storage.NoPage, false
}

// FindValue returns the leaf slot matching key, if any.
func (n *Node[K, V]) FindValue(key K) (V, bool) {
	i := n.search(key)
	if i < len(n.Slots) && n.keyCodec.Compare(n.Slots[i].Key, key) == 0 {
		return n.Slots[i].Value, true
	}
	var zero V
	return zero, false
}

// search returns the index of the first slot whose key is >= key.
func (n *Node[K, V]) search(key K) int {
	return sort.Search(len(n.Slots), func(i int) bool {
		return n.keyCodec.Compare(n.Slots[i].Key, key) >= 0
	})
}

// InsertLeafValue inserts key/value into a leaf, replacing any existing
// slot for an equal key.
func (n *Node[K, V]) InsertLeafValue(key K, value V) {
	n.insertSlot(Slot[K, V]{Key: key, Tag: 0, Value: value, Ptr: storage.NoPage})
}

// InsertSeparator inserts a routing (key, child pointer) pair into an
// internal node, replacing any existing slot for an equal key.
func (n *Node[K, V]) InsertSeparator(key K, child storage.PageId) {
	var zero V
	n.insertSlot(Slot[K, V]{Key: key, Tag: 1, Value: zero, Ptr: child})
}

func (n *Node[K, V]) insertSlot(s Slot[K, V]) {
	i := n.search(s.Key)
	if i < len(n.Slots) && n.keyCodec.Compare(n.Slots[i].Key, s.Key) == 0 {
		n.Slots[i] = s
		return
	}
	n.Slots = append(n.Slots, Slot[K, V]{})
	copy(n.Slots[i+1:], n.Slots[i:])
	n.Slots[i] = s
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func getU32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func putI32(b []byte, v int32) { putU32(b, uint32(v)) }
func getI32(b []byte) int32    { return int32(getU32(b)) }
