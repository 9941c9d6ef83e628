package table

import (
	"encoding/binary"
	"math"

	"pagedb/pkg/primitives"
)

// A forwarding record replaces the inline tuple in a data-page slot when
// the row spilled to an overflow chain:
//
//	marker    : u8   (0xFF)
//	head page : u32  (first overflow page of the chain)
//	total_len : u16  (advisory; saturates at 0xFFFF. Reassembly trusts
//	                  the u32 total_len in the chain's head page)
const (
	forwardMarker     = 0xFF
	forwardRecordSize = 7
)

func encodeForward(head primitives.PageID, totalLen int) []byte {
	rec := make([]byte, forwardRecordSize)
	rec[0] = forwardMarker
	binary.LittleEndian.PutUint32(rec[1:], uint32(head))
	inline := totalLen
	if inline > math.MaxUint16 {
		inline = math.MaxUint16
	}
	binary.LittleEndian.PutUint16(rec[5:], uint16(inline))
	return rec
}

func isForward(b []byte) bool {
	return len(b) == forwardRecordSize && b[0] == forwardMarker
}

func decodeForward(b []byte) primitives.PageID {
	return primitives.PageID(binary.LittleEndian.Uint32(b[1:]))
}
