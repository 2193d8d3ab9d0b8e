// Package heap implements an append-only, page-chained tuple store: a
// singly-linked list of slotted pages, each growing its slot directory
// forward from the header and its tuple bodies backward from the end of the
// page, meeting somewhere in the middle.
package heap

import "github.com/mnohosten/pagestore/pkg/storage"

const (
	offNext       = 0
	offSlotCount  = 4
	nodeHeaderLen = 8
	slotStride    = 9 // offset(4) | len(4) | meta(1)
)

const deletedBit = 1 << 0

func nextPageID(page *storage.Page) storage.PageId {
	return storage.PageId(getI32(page[offNext : offNext+4]))
}

func setNextPageID(page *storage.Page, id storage.PageId) {
	putI32(page[offNext:offNext+4], int32(id))
}

func slotCount(page *storage.Page) uint32 {
	return getU32(page[offSlotCount : offSlotCount+4])
}

func setSlotCount(page *storage.Page, n uint32) {
	putU32(page[offSlotCount:offSlotCount+4], n)
}

func slotOffset(i uint32) int {
	return nodeHeaderLen + int(i)*slotStride
}

// slotAt returns slot i's tuple offset, length, and whether it is marked
// deleted.
func slotAt(page *storage.Page, i uint32) (offset, length uint32, deleted bool) {
	start := slotOffset(i)
	offset = getU32(page[start : start+4])
	length = getU32(page[start+4 : start+8])
	deleted = page[start+8]&deletedBit != 0
	return
}

func setSlotAt(page *storage.Page, i uint32, offset, length uint32, deleted bool) {
	start := slotOffset(i)
	putU32(page[start:start+4], offset)
	putU32(page[start+4:start+8], length)
	if deleted {
		page[start+8] = deletedBit
	} else {
		page[start+8] = 0
	}
}

// tupleRegionStart returns the lowest tuple offset any existing slot
// occupies, or the page's size if the node is still empty — the byte just
// past which new tuple data may never be written without colliding with an
// already-placed tuple.
func tupleRegionStart(page *storage.Page) uint32 {
	n := slotCount(page)
	start := uint32(storage.PageSize)
	for i := uint32(0); i < n; i++ {
		off, _, _ := slotAt(page, i)
		if off < start {
			start = off
		}
	}
	return start
}

// insertTuple appends data as a new slot, growing the slot directory
// forward and the tuple region backward. Returns (slotID, false) if data
// does not fit in the remaining free space between them.
func insertTuple(page *storage.Page, data []byte, deleted bool) (uint32, bool) {
	n := slotCount(page)
	newRegionStart := tupleRegionStart(page) - uint32(len(data))
	dirEnd := uint32(slotOffset(n + 1))

	if dirEnd > newRegionStart {
		return 0, false
	}

	copy(page[newRegionStart:newRegionStart+uint32(len(data))], data)
	setSlotAt(page, n, newRegionStart, uint32(len(data)), deleted)
	setSlotCount(page, n+1)
	return n, true
}

// getTuple returns a copy of slot i's tuple bytes and its deleted flag.
func getTuple(page *storage.Page, i uint32) ([]byte, bool, bool) {
	if i >= slotCount(page) {
		return nil, false, false
	}
	offset, length, deleted := slotAt(page, i)
	data := append([]byte{}, page[offset:offset+length]...)
	return data, deleted, true
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
