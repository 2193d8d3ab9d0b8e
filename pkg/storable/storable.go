// Package storable supplies the two small capability descriptions the
// B+-tree and extendible hash table are built over: a fixed-size byte codec
// for values, and the same codec extended with ordering and increment for
// keys. Each instantiation is a plain struct of functions rather than an
// interface hierarchy, so a new key or value type never needs its own named
// type — a KeyCodec/ValueCodec literal is enough.
package storable

// ValueCodec fixed-size-encodes a value of type V. Size must equal
// len(Encode(v)) for every v.
type ValueCodec[V any] struct {
	Size   int
	Encode func(V) []byte
	Decode func([]byte) V
}

// KeyCodec extends ValueCodec with total ordering and "next representable
// key" — the two operations a B+-tree and a hash table actually need from a
// key type, and nothing else.
type KeyCodec[K any] struct {
	ValueCodec[K]
	// Compare returns <0, 0, >0 as a<b, a==b, a>b.
	Compare func(a, b K) int
	// Increment returns the smallest key strictly greater than k. Used to
	// build a leaf's separator key when it is promoted into a parent.
	Increment func(k K) K
}

// Int32Key is the Key codec for a signed 32-bit integer key, the type used
// throughout this module's own tests and scenarios.
var Int32Key = KeyCodec[int32]{
	ValueCodec: ValueCodec[int32]{
		Size: 4,
		Encode: func(v int32) []byte {
			b := make([]byte, 4)
			putI32(b, v)
			return b
		},
		Decode: func(b []byte) int32 { return getI32(b) },
	},
	Compare: func(a, b int32) int {
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		default:
			return 0
		}
	},
	Increment: func(k int32) int32 { return k + 1 },
}

// Int32Value is the fixed-size value codec for a signed 32-bit integer.
var Int32Value = ValueCodec[int32]{
	Size: 4,
	Encode: func(v int32) []byte {
		b := make([]byte, 4)
		putI32(b, v)
		return b
	},
	Decode: func(b []byte) int32 { return getI32(b) },
}

func putI32(b []byte, v int32) {
	u := uint32(v)
	b[0] = byte(u >> 24)
	b[1] = byte(u >> 16)
	b[2] = byte(u >> 8)
	b[3] = byte(u)
}

func getI32(b []byte) int32 {
	u := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	return int32(u)
}
