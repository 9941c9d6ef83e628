// Package snapshot encodes read-only binary projections of engine state
// for observation. All multi-byte values are little-endian so hosts can
// overlay typed arrays on the buffers.
//
// Snapshots never mutate what they observe: no pin is taken, no counter
// moves, and the LRU order is untouched. Page bytes come from the buffer
// pool's non-recording view, which prefers the resident frame (the frame
// is authoritative when dirty) and falls back to the raw disk region.
package snapshot

import (
	"bytes"
	"encoding/binary"
	"sort"

	"pagedb/pkg/memory"
	"pagedb/pkg/primitives"
	"pagedb/pkg/storage/disk"
	"pagedb/pkg/storage/slotted"
	"pagedb/pkg/table"
)

func pushU8(buf *bytes.Buffer, v uint8) { buf.WriteByte(v) }

func pushU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func pushU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func pushU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

// BufferPool encodes the full buffer pool state.
//
// Layout:
//
//	pool_size  : u32
//	page_size  : u32
//	pool_size × { page_id: u32 (sentinel if empty), pin_count: u32,
//	              is_dirty: u8, is_occupied: u8 }
//	page_table_len : u32, then (page_id: u32, frame_id: u32) pairs
//	lru_len        : u32, then frame_id: u32 each, LRU first
//	hits, misses, disk_reads, disk_writes : u64 each
//	disk_num_allocated, disk_max_pages, disk_base_ptr : u32 each
//
// The page table is emitted in ascending page-id order so two snapshots of
// unchanged state are byte-identical. disk_base_ptr is always zero here:
// there is no host-visible linear memory to correlate against.
func BufferPool(bp *memory.BufferPool) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, 512))

	pushU32(buf, bp.PoolSize())
	pushU32(buf, bp.PageSize())

	for fid := primitives.FrameID(0); uint32(fid) < bp.PoolSize(); fid++ {
		info := bp.FrameInfo(fid)
		pushU32(buf, uint32(info.PageID))
		pushU32(buf, info.PinCount)
		pushU8(buf, boolByte(info.IsDirty))
		pushU8(buf, boolByte(info.IsOccupied))
	}

	pageTable := bp.PageTable()
	pids := make([]primitives.PageID, 0, len(pageTable))
	for pid := range pageTable {
		pids = append(pids, pid)
	}
	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })
	pushU32(buf, uint32(len(pids)))
	for _, pid := range pids {
		pushU32(buf, uint32(pid))
		pushU32(buf, uint32(pageTable[pid]))
	}

	lru := bp.LRUOrder()
	pushU32(buf, uint32(len(lru)))
	for _, fid := range lru {
		pushU32(buf, uint32(fid))
	}

	pushU64(buf, bp.HitCount())
	pushU64(buf, bp.MissCount())
	pushU64(buf, bp.DiskReadCount())
	pushU64(buf, bp.DiskWriteCount())
	pushU32(buf, bp.Disk().NumAllocated())
	pushU32(buf, bp.Disk().MaxPages())
	pushU32(buf, 0) // disk_base_ptr
	return buf.Bytes()
}

// Disk encodes the disk overview.
//
// Layout:
//
//	max_pages, page_size, num_allocated, disk_base_ptr : u32 each
//	max_pages × { is_allocated: u8, page_type: u8 }
func Disk(dm *disk.Manager) []byte {
	max := dm.MaxPages()
	buf := bytes.NewBuffer(make([]byte, 0, 16+int(max)*2))

	pushU32(buf, max)
	pushU32(buf, dm.PageSize())
	pushU32(buf, dm.NumAllocated())
	pushU32(buf, 0) // disk_base_ptr

	for pid := primitives.PageID(0); uint32(pid) < max; pid++ {
		allocated, pt := dm.PageMeta(pid)
		pushU8(buf, boolByte(allocated))
		pushU8(buf, uint8(pt))
	}
	return buf.Bytes()
}

// Page encodes a detailed view of one page: the parsed header, the slot
// directory, and the raw bytes.
//
// Layout:
//
//	page_size: u32, page_id: u32, page_type: u8
//	slot_count, free_start, free_end : u16; next_page_id: u32
//	free_space: u16
//	num_slots: u16, then (offset: u16, length: u16) per slot
//	raw page bytes
func Page(bp *memory.BufferPool, pid primitives.PageID) []byte {
	raw := bp.ViewPage(pid)
	page := slotted.Page(raw)
	buf := bytes.NewBuffer(make([]byte, 0, len(raw)+64))

	pushU32(buf, bp.PageSize())
	pushU32(buf, uint32(page.PageID()))
	pushU8(buf, uint8(page.Type()))
	sc := page.SlotCount()
	pushU16(buf, sc)
	pushU16(buf, page.FreeStart())
	pushU16(buf, page.FreeEnd())
	pushU32(buf, uint32(page.Next()))
	pushU16(buf, page.FreeSpace())

	pushU16(buf, sc)
	for sid := uint16(0); sid < sc; sid++ {
		offset, length, err := page.Slot(primitives.SlotID(sid))
		if err != nil {
			break
		}
		pushU16(buf, offset)
		pushU16(buf, length)
	}

	buf.Write(raw)
	return buf.Bytes()
}

// Table encodes a table's catalog entry and page chain.
//
// Layout:
//
//	name_len: u16, name bytes
//	row_count: u32, first_page_id: u32
//	num_cols: u16, then per column:
//	    name_len: u16, name bytes, type_tag: u8, nullable: u8, max_len: u16
//	page_count: u32, then page_id: u32 each, chain order
func Table(t *table.Table, chain []primitives.PageID) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, 256))

	pushU16(buf, uint16(len(t.Name)))
	buf.WriteString(t.Name)
	pushU32(buf, t.RowCount)
	pushU32(buf, uint32(t.FirstPageID))

	pushU16(buf, uint16(len(t.Schema.Columns)))
	for _, col := range t.Schema.Columns {
		pushU16(buf, uint16(len(col.Name)))
		buf.WriteString(col.Name)
		pushU8(buf, col.Type.Tag())
		pushU8(buf, boolByte(col.Nullable))
		pushU16(buf, col.MaxLen)
	}

	pushU32(buf, uint32(len(chain)))
	for _, pid := range chain {
		pushU32(buf, uint32(pid))
	}
	return buf.Bytes()
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
