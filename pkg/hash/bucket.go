package hash

import (
	"github.com/mnohosten/pagestore/pkg/storable"
	"github.com/mnohosten/pagestore/pkg/storage"
)

// DefaultBitSize sizes each bucket's occupied/readable bitmaps at 9 bytes,
// giving a 72-slot bucket for 4-byte keys and values — enough headroom that
// a table built over small keys doesn't thrash on splits while still fitting
// comfortably inside one page alongside both bitmaps.
const DefaultBitSize = 9

// Bucket is one page's worth of hash-table storage: an occupied bitmap, a
// readable bitmap, and a fixed-stride array of (key, value) pairs. Capacity
// is 8*bitSize slots — one bit per slot in each bitmap.
type Bucket[K, V any] struct {
	BitSize  int
	Occupied *storage.Bitmap
	Readable *storage.Bitmap
	Keys     []K
	Values   []V

	keyCodec storable.KeyCodec[K]
	valCodec storable.ValueCodec[V]
}

// Capacity returns the number of (key, value) slots a bucket with this bit
// size holds.
func Capacity(bitSize int) int { return 8 * bitSize }

// NewBucket returns an empty bucket with bitSize-byte bitmaps.
func NewBucket[K, V any](bitSize int, keyCodec storable.KeyCodec[K], valCodec storable.ValueCodec[V]) *Bucket[K, V] {
	cap := Capacity(bitSize)
	return &Bucket[K, V]{
		BitSize:  bitSize,
		Occupied: storage.NewBitmap(make([]byte, bitSize)),
		Readable: storage.NewBitmap(make([]byte, bitSize)),
		Keys:     make([]K, cap),
		Values:   make([]V, cap),
		keyCodec: keyCodec,
		valCodec: valCodec,
	}
}

// DecodeBucket reads a bucket's full representation out of a page.
func DecodeBucket[K, V any](page *storage.Page, bitSize int, keyCodec storable.KeyCodec[K], valCodec storable.ValueCodec[V]) *Bucket[K, V] {
	occupied := append([]byte{}, page[0:bitSize]...)
	readable := append([]byte{}, page[bitSize:2*bitSize]...)

	b := &Bucket[K, V]{
		BitSize:  bitSize,
		Occupied: storage.NewBitmap(occupied),
		Readable: storage.NewBitmap(readable),
		keyCodec: keyCodec,
		valCodec: valCodec,
	}

	cap := Capacity(bitSize)
	stride := keyCodec.Size + valCodec.Size
	base := 2 * bitSize
	b.Keys = make([]K, cap)
	b.Values = make([]V, cap)
	for i := 0; i < cap; i++ {
		start := base + i*stride
		b.Keys[i] = keyCodec.Decode(page[start : start+keyCodec.Size])
		b.Values[i] = valCodec.Decode(page[start+keyCodec.Size : start+stride])
	}
	return b
}

// EncodeInto serializes b's full representation into page, starting at byte 0.
func (b *Bucket[K, V]) EncodeInto(page *storage.Page) {
	copy(page[0:b.BitSize], b.Occupied.Bytes())
	copy(page[b.BitSize:2*b.BitSize], b.Readable.Bytes())

	stride := b.keyCodec.Size + b.valCodec.Size
	base := 2 * b.BitSize
	for i := range b.Keys {
		start := base + i*stride
		copy(page[start:start+b.keyCodec.Size], b.keyCodec.Encode(b.Keys[i]))
		copy(page[start+b.keyCodec.Size:start+stride], b.valCodec.Encode(b.Values[i]))
	}
}

// IsFull reports whether every slot is occupied.
func (b *Bucket[K, V]) IsFull() bool {
	return b.Occupied.IsFull()
}

// Insert writes (k, v) into the first unoccupied slot. The caller must
// check IsFull first; Insert panics if none is available.
func (b *Bucket[K, V]) Insert(k K, v V) {
	cap := Capacity(b.BitSize)
	for i := 0; i < cap; i++ {
		if !b.Occupied.Check(i) {
			b.Keys[i] = k
			b.Values[i] = v
			b.Occupied.Set(i, true)
			b.Readable.Set(i, true)
			return
		}
	}
	panic("hash: Insert called on a full bucket")
}

// Find returns every live value stored under k.
func (b *Bucket[K, V]) Find(k K) []V {
	var out []V
	for i, key := range b.Keys {
		if b.Occupied.Check(i) && b.Readable.Check(i) && b.keyCodec.Compare(key, k) == 0 {
			out = append(out, b.Values[i])
		}
	}
	return out
}

// Remove clears the occupied bit of the first live slot matching (k, v),
// freeing it for reuse. Returns whether a match was found.
func (b *Bucket[K, V]) Remove(k K, v V) bool {
	for i, key := range b.Keys {
		if b.Occupied.Check(i) && b.Readable.Check(i) && b.keyCodec.Compare(key, k) == 0 {
			if equalValue(b.valCodec, b.Values[i], v) {
				b.Occupied.Set(i, false)
				return true
			}
		}
	}
	return false
}

// Pairs returns every live (key, value) entry, used when redistributing a
// full bucket's contents across a split.
func (b *Bucket[K, V]) Pairs() ([]K, []V) {
	var ks []K
	var vs []V
	for i, key := range b.Keys {
		if b.Occupied.Check(i) && b.Readable.Check(i) {
			ks = append(ks, key)
			vs = append(vs, b.Values[i])
		}
	}
	return ks, vs
}

func equalValue[V any](codec storable.ValueCodec[V], a, b V) bool {
	ea, eb := codec.Encode(a), codec.Encode(b)
	if len(ea) != len(eb) {
		return false
	}
	for i := range ea {
		if ea[i] != eb[i] {
			return false
		}
	}
	return true
}
