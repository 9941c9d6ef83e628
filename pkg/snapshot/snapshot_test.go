package snapshot

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagedb/pkg/catalog/schema"
	"pagedb/pkg/memory"
	"pagedb/pkg/primitives"
	"pagedb/pkg/storage/disk"
	"pagedb/pkg/table"
	"pagedb/pkg/types"
)

func makeFixture(t *testing.T) (*memory.BufferPool, *table.Manager) {
	t.Helper()
	pool := memory.NewBufferPool(4, disk.NewManager(128, 16))
	tm := table.NewManager(pool, 64)

	s := schema.NewSchema([]schema.Column{
		schema.NewColumn("id", types.Int32Type, false),
		schema.NewVarColumn("name", types.VarCharType, true, 32),
	})
	require.NoError(t, tm.CreateTable("users", s))
	_, err := tm.Insert("users", []types.Field{types.NewInt32Field(1), types.NewVarCharField("Alice")})
	require.NoError(t, err)
	return pool, tm
}

func TestBufferPoolSnapshotLayout(t *testing.T) {
	pool, _ := makeFixture(t)
	snap := BufferPool(pool)

	le := binary.LittleEndian
	assert.Equal(t, uint32(4), le.Uint32(snap[0:]), "pool_size")
	assert.Equal(t, uint32(128), le.Uint32(snap[4:]), "page_size")

	// Frame 0 holds the table's first page.
	assert.Equal(t, uint32(0), le.Uint32(snap[8:]), "frame 0 page_id")
	assert.Equal(t, uint32(0), le.Uint32(snap[12:]), "frame 0 pin_count")
	assert.Equal(t, uint8(1), snap[16], "frame 0 is_dirty")
	assert.Equal(t, uint8(1), snap[17], "frame 0 is_occupied")

	// Frame 1 is empty: sentinel page id.
	assert.Equal(t, uint32(0xFFFFFFFF), le.Uint32(snap[18:]), "frame 1 page_id")
	assert.Equal(t, uint8(0), snap[27], "frame 1 is_occupied")

	// After 4 frame records (10 bytes each) comes the page table.
	off := 8 + 4*10
	assert.Equal(t, uint32(1), le.Uint32(snap[off:]), "page_table_len")
	assert.Equal(t, uint32(0), le.Uint32(snap[off+4:]), "page table pid")
	assert.Equal(t, uint32(0), le.Uint32(snap[off+8:]), "page table fid")

	off += 4 + 8
	assert.Equal(t, uint32(1), le.Uint32(snap[off:]), "lru_len")
	assert.Equal(t, uint32(0), le.Uint32(snap[off+4:]), "lru frame")

	off += 4 + 4
	hits := le.Uint64(snap[off:])
	misses := le.Uint64(snap[off+8:])
	reads := le.Uint64(snap[off+16:])
	assert.Equal(t, pool.HitCount(), hits)
	assert.Equal(t, pool.MissCount(), misses)
	assert.Equal(t, pool.DiskReadCount(), reads)

	off += 32
	assert.Equal(t, uint32(1), le.Uint32(snap[off:]), "disk_num_allocated")
	assert.Equal(t, uint32(16), le.Uint32(snap[off+4:]), "disk_max_pages")
	assert.Equal(t, uint32(0), le.Uint32(snap[off+8:]), "disk_base_ptr is zero")
	assert.Len(t, snap, off+12)
}

func TestDiskSnapshotLayout(t *testing.T) {
	pool, _ := makeFixture(t)
	snap := Disk(pool.Disk())

	le := binary.LittleEndian
	assert.Equal(t, uint32(16), le.Uint32(snap[0:]), "max_pages")
	assert.Equal(t, uint32(128), le.Uint32(snap[4:]), "page_size")
	assert.Equal(t, uint32(1), le.Uint32(snap[8:]), "num_allocated")
	assert.Equal(t, uint32(0), le.Uint32(snap[12:]), "disk_base_ptr")

	// Page 0: allocated data page. Page 1: free.
	assert.Equal(t, uint8(1), snap[16])
	assert.Equal(t, primitives.DataPage, primitives.PageTypeFromByte(snap[17]))
	assert.Equal(t, uint8(0), snap[18])
	assert.Equal(t, primitives.FreePage, primitives.PageTypeFromByte(snap[19]))
	assert.Len(t, snap, 16+16*2)
}

func TestPageSnapshotLayout(t *testing.T) {
	pool, _ := makeFixture(t)
	snap := Page(pool, 0)

	le := binary.LittleEndian
	assert.Equal(t, uint32(128), le.Uint32(snap[0:]), "page_size")
	assert.Equal(t, uint32(0), le.Uint32(snap[4:]), "page_id")
	assert.Equal(t, uint8(primitives.DataPage), snap[8], "page_type")
	slotCount := le.Uint16(snap[9:])
	assert.Equal(t, uint16(1), slotCount)
	freeStart := le.Uint16(snap[11:])
	freeEnd := le.Uint16(snap[13:])
	assert.Equal(t, uint16(20), freeStart)
	assert.Equal(t, uint32(0xFFFFFFFF), le.Uint32(snap[15:]), "next_page_id")
	assert.Equal(t, freeEnd-freeStart, le.Uint16(snap[19:]), "free_space")

	assert.Equal(t, slotCount, le.Uint16(snap[21:]), "num_slots mirrors slot_count")
	offset := le.Uint16(snap[23:])
	length := le.Uint16(snap[25:])
	assert.Equal(t, freeEnd, offset)
	// Encoded row: 1 bitmap + 4 int + 2 prefix + 5 "Alice".
	assert.Equal(t, uint16(12), length)

	raw := snap[27:]
	assert.Len(t, raw, 128, "raw page bytes trail the snapshot")
}

func TestTableSnapshotLayout(t *testing.T) {
	_, tm := makeFixture(t)
	tab, ok := tm.GetTable("users")
	require.True(t, ok)
	chain, err := tm.PageChain("users")
	require.NoError(t, err)

	snap := Table(tab, chain)
	le := binary.LittleEndian

	nameLen := le.Uint16(snap[0:])
	assert.Equal(t, uint16(5), nameLen)
	assert.Equal(t, "users", string(snap[2:7]))
	assert.Equal(t, uint32(1), le.Uint32(snap[7:]), "row_count")
	assert.Equal(t, uint32(0), le.Uint32(snap[11:]), "first_page_id")

	numCols := le.Uint16(snap[15:])
	require.Equal(t, uint16(2), numCols)

	off := 17
	// Column "id": Int32 (tag 0), not nullable, max_len 0.
	colNameLen := int(le.Uint16(snap[off:]))
	assert.Equal(t, "id", string(snap[off+2:off+2+colNameLen]))
	off += 2 + colNameLen
	assert.Equal(t, uint8(0), snap[off], "type_tag Int32")
	assert.Equal(t, uint8(0), snap[off+1], "nullable")
	assert.Equal(t, uint16(0), le.Uint16(snap[off+2:]), "max_len")
	off += 4

	// Column "name": VarChar (tag 4), nullable, max_len 32.
	colNameLen = int(le.Uint16(snap[off:]))
	assert.Equal(t, "name", string(snap[off+2:off+2+colNameLen]))
	off += 2 + colNameLen
	assert.Equal(t, uint8(4), snap[off], "type_tag VarChar")
	assert.Equal(t, uint8(1), snap[off+1], "nullable")
	assert.Equal(t, uint16(32), le.Uint16(snap[off+2:]), "max_len")
	off += 4

	assert.Equal(t, uint32(1), le.Uint32(snap[off:]), "page_count")
	assert.Equal(t, uint32(0), le.Uint32(snap[off+4:]), "chain page id")
	assert.Len(t, snap, off+8)
}

func TestSnapshotsArePureAndStable(t *testing.T) {
	pool, tm := makeFixture(t)

	hits, misses := pool.HitCount(), pool.MissCount()
	reads, writes := pool.DiskReadCount(), pool.DiskWriteCount()

	first := BufferPool(pool)
	second := BufferPool(pool)
	assert.Equal(t, first, second, "successive snapshots must be byte-identical")

	firstDisk := Disk(pool.Disk())
	secondDisk := Disk(pool.Disk())
	assert.Equal(t, firstDisk, secondDisk)

	firstPage := Page(pool, 0)
	secondPage := Page(pool, 0)
	assert.Equal(t, firstPage, secondPage)

	tab, _ := tm.GetTable("users")
	chain, err := tm.PageChain("users")
	require.NoError(t, err)
	firstTable := Table(tab, chain)
	secondTable := Table(tab, chain)
	assert.Equal(t, firstTable, secondTable)

	assert.Equal(t, hits, pool.HitCount())
	assert.Equal(t, misses, pool.MissCount())
	assert.Equal(t, reads, pool.DiskReadCount())
	assert.Equal(t, writes, pool.DiskWriteCount())
}

func TestPageSnapshotOfEvictedPageUsesDiskBytes(t *testing.T) {
	pool := memory.NewBufferPool(1, disk.NewManager(128, 16))
	tm := table.NewManager(pool, 64)

	s := schema.NewSchema([]schema.Column{schema.NewColumn("id", types.Int32Type, false)})
	require.NoError(t, tm.CreateTable("a", s))
	_, err := tm.Insert("a", []types.Field{types.NewInt32Field(7)})
	require.NoError(t, err)

	require.NoError(t, tm.CreateTable("b", s)) // evicts table a's page
	require.False(t, pool.IsResident(0))

	reads := pool.DiskReadCount()
	snap := Page(pool, 0)
	assert.Equal(t, reads, pool.DiskReadCount(), "snapshot must not count disk reads")
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(snap[9:]), "evicted page's slot survives on disk")
	assert.False(t, pool.IsResident(0), "snapshot must not load the page")
}
