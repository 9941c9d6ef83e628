package slotted

import (
	"encoding/binary"
	"fmt"
)

// Overflow pages do not use the slot directory. After the 16-byte header
// they carry a small chunk header and one run of payload bytes:
//
//	total_len : u32  (length of the whole overflow value, every chunk)
//	chunk_len : u32  (payload bytes stored in this page)
//	payload   : chunk_len bytes
//
// next_page_id in the page header links the chunks of one value.
const (
	offTotalLen    = HeaderSize
	offChunkLen    = HeaderSize + 4
	chunkDataStart = HeaderSize + 8
)

// OverflowCapacity returns the payload bytes one overflow page can carry.
func OverflowCapacity(pageSize uint32) int {
	return int(pageSize) - chunkDataStart
}

// SetOverflowChunk writes the chunk header and payload for one overflow page.
func (p Page) SetOverflowChunk(totalLen uint32, chunk []byte) error {
	if len(chunk) > OverflowCapacity(uint32(len(p))) {
		return fmt.Errorf("chunk of %d bytes exceeds page capacity %d",
			len(chunk), OverflowCapacity(uint32(len(p))))
	}
	binary.LittleEndian.PutUint32(p[offTotalLen:], totalLen)
	binary.LittleEndian.PutUint32(p[offChunkLen:], uint32(len(chunk)))
	copy(p[chunkDataStart:], chunk)
	return nil
}

// OverflowTotalLen reads the full value length recorded in this chunk.
func (p Page) OverflowTotalLen() uint32 {
	return binary.LittleEndian.Uint32(p[offTotalLen:])
}

// OverflowChunk returns a view of this page's payload bytes. The view is
// valid only while the caller's pin is held.
func (p Page) OverflowChunk() ([]byte, error) {
	chunkLen := int(binary.LittleEndian.Uint32(p[offChunkLen:]))
	if chunkDataStart+chunkLen > len(p) {
		return nil, fmt.Errorf("%w: chunk of %d bytes exceeds page", ErrCorrupt, chunkLen)
	}
	return p[chunkDataStart : chunkDataStart+chunkLen], nil
}
