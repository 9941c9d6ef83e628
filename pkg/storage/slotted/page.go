// Package slotted interprets a page-sized byte buffer as a slotted page:
// a fixed 16-byte header, a slot directory growing down from the header,
// a free gap, and a tuple heap growing up from the end of the page.
//
// Page layout:
//
//	┌─────────────────────────────────────────────┐
//	│ PAGE HEADER (16 bytes)                      │
//	├─────────────────────────────────────────────┤
//	│ SLOT DIRECTORY  (grows →)                   │
//	│   slot 0 | slot 1 | slot 2 | ...            │
//	├─────────────────────────────────────────────┤
//	│           FREE GAP                          │
//	├─────────────────────────────────────────────┤
//	│ TUPLE HEAP  (← grows from the end)          │
//	│   tuple 2 | tuple 1 | tuple 0               │
//	└─────────────────────────────────────────────┘
//
// The package does not own the memory: the buffer pool owns the frame
// bytes and lends them here while the caller holds a pin.
package slotted

import (
	"encoding/binary"
	"errors"
	"fmt"

	"pagedb/pkg/primitives"
)

const (
	// HeaderSize is the fixed page header length in bytes.
	HeaderSize = 16

	// SlotSize is the size of one slot directory entry: a u16 offset and
	// a u16 length. A length of zero marks a tombstone.
	SlotSize = 4
)

// Header field offsets, all little-endian.
const (
	offPageID    = 0  // u32
	offPageType  = 4  // u8
	offReserved  = 5  // u8
	offSlotCount = 6  // u16
	offFreeStart = 8  // u16
	offFreeEnd   = 10 // u16
	offNextPage  = 12 // u32
)

var (
	// ErrNoSpace is returned by Insert when the free gap cannot hold the
	// tuple plus a new slot directory entry.
	ErrNoSpace = errors.New("no space on page")

	// ErrBadSlot is returned for slot indexes at or past the slot count.
	ErrBadSlot = errors.New("bad slot")

	// ErrTombstone is returned when reading a deleted slot.
	ErrTombstone = errors.New("slot is a tombstone")

	// ErrCorrupt reports header or slot arithmetic that violates the page
	// layout invariants. The engine treats it as fatal.
	ErrCorrupt = errors.New("corrupt page")
)

// Page interprets a byte buffer of exactly the engine's page size.
// It never copies: all reads and writes go straight to the buffer.
type Page []byte

// Init formats the buffer as an empty page of the given type: zero slots,
// the free gap spanning everything past the header, and no next page.
func (p Page) Init(pid primitives.PageID, pt primitives.PageType) {
	clear(p)
	binary.LittleEndian.PutUint32(p[offPageID:], uint32(pid))
	p[offPageType] = byte(pt)
	binary.LittleEndian.PutUint16(p[offSlotCount:], 0)
	binary.LittleEndian.PutUint16(p[offFreeStart:], HeaderSize)
	binary.LittleEndian.PutUint16(p[offFreeEnd:], uint16(len(p)))
	binary.LittleEndian.PutUint32(p[offNextPage:], uint32(primitives.InvalidPageID))
}

// PageID reads the page's own ID from the header.
func (p Page) PageID() primitives.PageID {
	return primitives.PageID(binary.LittleEndian.Uint32(p[offPageID:]))
}

// Type reads the page type byte.
func (p Page) Type() primitives.PageType {
	return primitives.PageTypeFromByte(p[offPageType])
}

// SetType overwrites the page type byte.
func (p Page) SetType(pt primitives.PageType) {
	p[offPageType] = byte(pt)
}

// SlotCount returns the number of directory entries, tombstones included.
func (p Page) SlotCount() uint16 {
	return binary.LittleEndian.Uint16(p[offSlotCount:])
}

// FreeStart returns the byte offset where the slot directory ends.
func (p Page) FreeStart() uint16 {
	return binary.LittleEndian.Uint16(p[offFreeStart:])
}

// FreeEnd returns the byte offset where the tuple heap begins.
func (p Page) FreeEnd() uint16 {
	return binary.LittleEndian.Uint16(p[offFreeEnd:])
}

// FreeSpace returns the size of the free gap. Inserting through a fresh
// slot costs SlotSize bytes of this on top of the tuple itself.
func (p Page) FreeSpace() uint16 {
	fs, fe := p.FreeStart(), p.FreeEnd()
	if fe < fs {
		return 0
	}
	return fe - fs
}

// Next returns the next page in the chain, or InvalidPageID at the tail.
func (p Page) Next() primitives.PageID {
	return primitives.PageID(binary.LittleEndian.Uint32(p[offNextPage:]))
}

// SetNext updates the next-page pointer.
func (p Page) SetNext(pid primitives.PageID) {
	binary.LittleEndian.PutUint32(p[offNextPage:], uint32(pid))
}

// Slot returns the raw directory entry for a slot index.
func (p Page) Slot(sid primitives.SlotID) (offset, length uint16, err error) {
	if uint16(sid) >= p.SlotCount() {
		return 0, 0, fmt.Errorf("%w: slot %d of %d", ErrBadSlot, sid, p.SlotCount())
	}
	base := HeaderSize + int(sid)*SlotSize
	return binary.LittleEndian.Uint16(p[base:]), binary.LittleEndian.Uint16(p[base+2:]), nil
}

func (p Page) writeSlot(sid primitives.SlotID, offset, length uint16) {
	base := HeaderSize + int(sid)*SlotSize
	binary.LittleEndian.PutUint16(p[base:], offset)
	binary.LittleEndian.PutUint16(p[base+2:], length)
}

// Insert places tuple bytes in the heap and appends a directory entry for
// them, returning the new slot index. Slots are append-only: tombstones are
// never reused, which keeps every issued row ID stable.
func (p Page) Insert(tuple []byte) (primitives.SlotID, error) {
	need := len(tuple) + SlotSize
	if int(p.FreeSpace()) < need {
		return 0, fmt.Errorf("%w: need %d, have %d", ErrNoSpace, need, p.FreeSpace())
	}

	sc := p.SlotCount()
	newFreeEnd := p.FreeEnd() - uint16(len(tuple))
	copy(p[newFreeEnd:], tuple)
	binary.LittleEndian.PutUint16(p[offFreeEnd:], newFreeEnd)

	sid := primitives.SlotID(sc)
	p.writeSlot(sid, newFreeEnd, uint16(len(tuple)))
	binary.LittleEndian.PutUint16(p[offSlotCount:], sc+1)
	binary.LittleEndian.PutUint16(p[offFreeStart:], HeaderSize+(sc+1)*SlotSize)
	return sid, nil
}

// Read returns a view of the tuple bytes in a slot. The view aliases the
// page buffer and is only valid while the caller's pin is held.
func (p Page) Read(sid primitives.SlotID) ([]byte, error) {
	offset, length, err := p.Slot(sid)
	if err != nil {
		return nil, err
	}
	if length == 0 {
		return nil, fmt.Errorf("%w: slot %d", ErrTombstone, sid)
	}
	if int(offset) < int(p.FreeEnd()) || int(offset)+int(length) > len(p) {
		return nil, fmt.Errorf("%w: slot %d spans [%d, %d) outside heap [%d, %d)",
			ErrCorrupt, sid, offset, int(offset)+int(length), p.FreeEnd(), len(p))
	}
	return p[offset : int(offset)+int(length)], nil
}

// Delete tombstones a slot by zeroing its length. The tuple bytes stay in
// the heap; space comes back only on Compact, table drop, or page free.
// Returns true iff the slot transitioned from live to tombstoned.
func (p Page) Delete(sid primitives.SlotID) bool {
	_, length, err := p.Slot(sid)
	if err != nil || length == 0 {
		return false
	}
	p.writeSlot(sid, 0, 0)
	return true
}

// Compact repacks live tuples against the end of the page, reclaiming the
// bytes of tombstoned tuples. Slot indexes never move, so row IDs survive;
// only the stored offsets change.
func (p Page) Compact() {
	sc := p.SlotCount()

	type live struct {
		sid  primitives.SlotID
		data []byte
	}
	var tuples []live
	for i := uint16(0); i < sc; i++ {
		offset, length, _ := p.Slot(primitives.SlotID(i))
		if length == 0 {
			continue
		}
		buf := make([]byte, length)
		copy(buf, p[offset:int(offset)+int(length)])
		tuples = append(tuples, live{sid: primitives.SlotID(i), data: buf})
	}

	cursor := len(p)
	for _, t := range tuples {
		cursor -= len(t.data)
		copy(p[cursor:], t.data)
		p.writeSlot(t.sid, uint16(cursor), uint16(len(t.data)))
	}

	clear(p[p.FreeStart():cursor])
	binary.LittleEndian.PutUint16(p[offFreeEnd:], uint16(cursor))
}

// Validate checks the layout invariants: the header arithmetic, the slot
// directory bound, and that every live slot lies inside the tuple heap
// without overlapping another. A non-nil error means the page bytes are
// corrupt and the engine must stop mutating.
func (p Page) Validate() error {
	sc := int(p.SlotCount())
	fs, fe := int(p.FreeStart()), int(p.FreeEnd())

	if fs != HeaderSize+sc*SlotSize {
		return fmt.Errorf("%w: free_start %d with %d slots", ErrCorrupt, fs, sc)
	}
	if fs > fe || fe > len(p) {
		return fmt.Errorf("%w: free gap [%d, %d) outside page of %d bytes", ErrCorrupt, fs, fe, len(p))
	}

	type span struct{ start, end int }
	var spans []span
	for i := 0; i < sc; i++ {
		offset, length, _ := p.Slot(primitives.SlotID(i))
		if length == 0 {
			continue
		}
		start, end := int(offset), int(offset)+int(length)
		if start < fe || end > len(p) {
			return fmt.Errorf("%w: slot %d spans [%d, %d) outside heap [%d, %d)",
				ErrCorrupt, i, start, end, fe, len(p))
		}
		for _, s := range spans {
			if start < s.end && s.start < end {
				return fmt.Errorf("%w: slot %d overlaps [%d, %d)", ErrCorrupt, i, s.start, s.end)
			}
		}
		spans = append(spans, span{start, end})
	}
	return nil
}
