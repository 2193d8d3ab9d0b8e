package hash

import "github.com/mnohosten/pagestore/pkg/storage"

// DirectorySize bounds the number of directory slots, and therefore the
// maximum global depth (log2(DirectorySize)) a table can grow to while its
// directory still fits in one page: 4 + DirectorySize*(1+4) bytes.
const DirectorySize = 512

const (
	dirOffGlobalDepth = 0
	dirOffLocalDepths = 4
)

func dirOffPageIds() int { return dirOffLocalDepths + DirectorySize }

// Directory is the page-resident routing table: a global depth, and one
// (local depth, bucket page id) pair per slot. page_ids[i] == NoPage means
// that slot has never been assigned a bucket.
type Directory struct {
	GlobalDepth uint32
	LocalDepths [DirectorySize]byte
	PageIds     [DirectorySize]storage.PageId
}

// NewDirectory returns an empty directory: global depth 0, a single live
// slot (index 0), every other slot unassigned.
func NewDirectory() *Directory {
	d := &Directory{}
	for i := range d.PageIds {
		d.PageIds[i] = storage.NoPage
	}
	return d
}

// DecodeDirectory reads a directory's full representation out of a page.
func DecodeDirectory(page *storage.Page) *Directory {
	d := &Directory{}
	d.GlobalDepth = getU32(page[dirOffGlobalDepth : dirOffGlobalDepth+4])
	copy(d.LocalDepths[:], page[dirOffLocalDepths:dirOffLocalDepths+DirectorySize])
	base := dirOffPageIds()
	for i := 0; i < DirectorySize; i++ {
		off := base + i*4
		d.PageIds[i] = storage.PageId(getI32(page[off : off+4]))
	}
	return d
}

// EncodeInto serializes d's full representation into page, starting at byte 0.
func (d *Directory) EncodeInto(page *storage.Page) {
	putU32(page[dirOffGlobalDepth:dirOffGlobalDepth+4], d.GlobalDepth)
	copy(page[dirOffLocalDepths:dirOffLocalDepths+DirectorySize], d.LocalDepths[:])
	base := dirOffPageIds()
	for i := 0; i < DirectorySize; i++ {
		off := base + i*4
		putI32(page[off:off+4], int32(d.PageIds[i]))
	}
}

// GlobalDepthMask masks a hash down to the directory's current capacity.
func (d *Directory) GlobalDepthMask() uint64 {
	return (uint64(1) << d.GlobalDepth) - 1
}

// Index returns the directory slot hash routes to.
func (d *Directory) Index(hash uint64) int {
	return int(hash&d.GlobalDepthMask()) % DirectorySize
}

// LocalDepthMask is the single high bit a bucket split partitions on.
func LocalDepthMask(localDepth byte) uint64 {
	return uint64(1) << localDepth
}

// IncrGlobalDepth doubles the directory's addressable range: every new slot
// mirrors the local depth and page id of the slot it is aliased to before
// the increment.
func (d *Directory) IncrGlobalDepth() {
	oldSpan := uint64(1) << d.GlobalDepth
	d.GlobalDepth++
	newSpan := uint64(1) << d.GlobalDepth
	if newSpan > DirectorySize {
		newSpan = DirectorySize
	}
	for i := oldSpan; i < newSpan; i++ {
		d.LocalDepths[i] = d.LocalDepths[i-oldSpan]
		d.PageIds[i] = d.PageIds[i-oldSpan]
	}
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
