package heap

import (
	"github.com/mnohosten/pagestore/pkg/storage"
)

// ColumnType identifies how a column's bytes should be interpreted.
type ColumnType byte

const (
	TinyInt ColumnType = iota
	Bool
	Int
	BigInt
	Varchar
)

// Column describes one fixed-position field of a row's raw byte layout.
// Offset is ignored for Varchar's own placement lookup (its inline
// offset/length header is read directly at Offset) but still names where
// that 4-byte header lives.
type Column struct {
	Name   string
	Type   ColumnType
	Offset int
}

// Size returns the number of bytes a column occupies inline. For Varchar
// this is the 4-byte (offset, length) header, not the payload itself.
func (c Column) Size() int {
	switch c.Type {
	case TinyInt, Bool:
		return 1
	case Int:
		return 4
	case BigInt:
		return 8
	case Varchar:
		return 4
	default:
		panic("heap: unknown column type")
	}
}

// Schema is an ordered list of columns describing a row's raw layout.
type Schema []Column

// Value is a decoded column value. Exactly one of the typed fields is
// meaningful, selected by Kind — a tagged sum, not a union cast.
type Value struct {
	Kind    ColumnType
	TinyInt int8
	Bool    bool
	Int     int32
	BigInt  int64
	Varchar string
}

// Compare orders two values of the same kind; comparing across kinds panics.
func (v Value) Compare(other Value) int {
	if v.Kind != other.Kind {
		panic("heap: comparing values of different kinds")
	}
	switch v.Kind {
	case TinyInt:
		return cmpInt(int64(v.TinyInt), int64(other.TinyInt))
	case Bool:
		return cmpInt(boolToInt(v.Bool), boolToInt(other.Bool))
	case Int:
		return cmpInt(int64(v.Int), int64(other.Int))
	case BigInt:
		return cmpInt(v.BigInt, other.BigInt)
	case Varchar:
		switch {
		case v.Varchar < other.Varchar:
			return -1
		case v.Varchar > other.Varchar:
			return 1
		default:
			return 0
		}
	default:
		panic("heap: unknown value kind")
	}
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// ValueAt decodes column col's value out of a tuple's raw bytes.
func ValueAt(col Column, data []byte) Value {
	switch col.Type {
	case TinyInt:
		return Value{Kind: TinyInt, TinyInt: int8(data[col.Offset])}
	case Bool:
		return Value{Kind: Bool, Bool: data[col.Offset] != 0}
	case Int:
		return Value{Kind: Int, Int: getI32(data[col.Offset : col.Offset+4])}
	case BigInt:
		hi := getI32(data[col.Offset : col.Offset+4])
		lo := getI32(data[col.Offset+4 : col.Offset+8])
		return Value{Kind: BigInt, BigInt: int64(hi)<<32 | int64(uint32(lo))}
	case Varchar:
		offset := int(getU16(data[col.Offset : col.Offset+2]))
		length := int(getU16(data[col.Offset+2 : col.Offset+4]))
		return Value{Kind: Varchar, Varchar: string(data[offset : offset+length])}
	default:
		panic("heap: unknown column type")
	}
}

// RId locates a tuple within a List: which page, and which slot on it.
type RId struct {
	PageID storage.PageId
	SlotID uint32
}

// TupleMeta is a tuple's one-byte out-of-band state. Bit 0 is the deleted
// flag, read as a plain nonzero check rather than a ">1" threshold.
type TupleMeta struct {
	Deleted bool
}

// Tuple is a raw row: its location and its encoded bytes.
type Tuple struct {
	RId  RId
	Data []byte
}

// Value decodes a single column's value out of t's raw bytes.
func (t Tuple) Value(col Column) Value {
	return ValueAt(col, t.Data)
}

// Comparand orders two tuples under schema by comparing columns left to
// right, stopping at the first unequal column.
func Comparand(schema Schema, a, b Tuple) int {
	for _, col := range schema {
		if c := a.Value(col).Compare(b.Value(col)); c != 0 {
			return c
		}
	}
	return 0
}

type varcharPatch struct {
	headerOffset int
	payload      []byte
}

// TupleBuilder appends fixed-width columns directly into its buffer and
// defers Varchar payloads, backpatching each one's (offset, length) header
// once its final position in the built buffer is known.
type TupleBuilder struct {
	data     []byte
	variable []varcharPatch
}

// NewTupleBuilder returns an empty builder.
func NewTupleBuilder() *TupleBuilder {
	return &TupleBuilder{}
}

// Add appends v's encoding to the tuple being built.
func (b *TupleBuilder) Add(v Value) *TupleBuilder {
	switch v.Kind {
	case TinyInt:
		b.data = append(b.data, byte(v.TinyInt))
	case Bool:
		if v.Bool {
			b.data = append(b.data, 1)
		} else {
			b.data = append(b.data, 0)
		}
	case Int:
		buf := make([]byte, 4)
		putI32(buf, v.Int)
		b.data = append(b.data, buf...)
	case BigInt:
		buf := make([]byte, 8)
		putI32(buf[0:4], int32(v.BigInt>>32))
		putI32(buf[4:8], int32(v.BigInt))
		b.data = append(b.data, buf...)
	case Varchar:
		headerOffset := len(b.data)
		b.data = append(b.data, 0, 0, 0, 0)
		putU16(b.data[headerOffset+2:headerOffset+4], uint16(len(v.Varchar)))
		b.variable = append(b.variable, varcharPatch{headerOffset: headerOffset, payload: []byte(v.Varchar)})
	default:
		panic("heap: unknown value kind")
	}
	return b
}

// Build finalizes the tuple: every deferred Varchar payload is appended
// past the fixed region and its header backpatched with the final offset.
func (b *TupleBuilder) Build() []byte {
	for _, v := range b.variable {
		offset := len(b.data)
		putU16(b.data[v.headerOffset:v.headerOffset+2], uint16(offset))
		b.data = append(b.data, v.payload...)
	}
	return b.data
}

func putU16(b []byte, v uint16) {
	b[0] = byte(v >> 8)
	b[1] = byte(v)
}

func getU16(b []byte) uint16 {
	return uint16(b[0])<<8 | uint16(b[1])
}
