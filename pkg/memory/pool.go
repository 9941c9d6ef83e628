// Package memory implements the buffer pool: a fixed array of page-sized
// frames caching disk pages, with pin counts, dirty bits, and LRU eviction
// of unpinned frames. The pool sits between the table layer and the disk
// manager and is the only component that reads or writes disk pages, so it
// also owns the hit/miss and disk I/O counters.
package memory

import (
	"errors"
	"fmt"
	"sync"

	"pagedb/pkg/logging"
	"pagedb/pkg/primitives"
	"pagedb/pkg/storage/disk"
	"pagedb/pkg/storage/slotted"
)

var (
	// ErrPoolExhausted is returned by Fetch when the page is not resident
	// and every frame is pinned, so no victim exists.
	ErrPoolExhausted = errors.New("buffer pool exhausted")

	// ErrPagePinned is returned by DropPage for a resident pinned page.
	ErrPagePinned = errors.New("page is pinned")

	// ErrInconsistent reports disagreement between the page table, the
	// frames, and the replacer. It is fatal: the engine poisons itself.
	ErrInconsistent = errors.New("buffer pool inconsistent")
)

// BufferPool caches disk pages in a bounded set of frames.
//
// Frames holding a page with a nonzero pin count are never evicted. When a
// fetch misses and no frame is free, the unpinned frame whose most recent
// unpin is oldest is evicted, writing its buffer to disk first if dirty.
type BufferPool struct {
	frames    []frame
	pageTable map[primitives.PageID]primitives.FrameID
	freeList  []primitives.FrameID
	replacer  *LRUReplacer
	disk      *disk.Manager
	pageSize  uint32
	mutex     sync.Mutex

	hitCount       uint64
	missCount      uint64
	diskReadCount  uint64
	diskWriteCount uint64
}

// NewBufferPool creates a pool of poolSize frames over the given disk.
// Every frame buffer is allocated here, once.
func NewBufferPool(poolSize uint32, dm *disk.Manager) *BufferPool {
	pageSize := dm.PageSize()
	frames := make([]frame, poolSize)
	freeList := make([]primitives.FrameID, poolSize)
	for i := range frames {
		frames[i].data = make([]byte, pageSize)
		frames[i].pageID = primitives.InvalidPageID
		freeList[i] = primitives.FrameID(i)
	}

	return &BufferPool{
		frames:    frames,
		pageTable: make(map[primitives.PageID]primitives.FrameID),
		freeList:  freeList,
		replacer:  NewLRUReplacer(),
		disk:      dm,
		pageSize:  pageSize,
	}
}

// Fetch pins the frame holding the page, loading it from disk on a miss.
// The returned pin must be released on every exit path of the caller.
//
// A fetch that fails leaves the pool untouched: no counter moves, no frame
// changes, and no eviction has happened for the error cases the caller can
// see (unknown page, every frame pinned).
func (bp *BufferPool) Fetch(pid primitives.PageID) (*Pin, error) {
	bp.mutex.Lock()
	defer bp.mutex.Unlock()
	return bp.fetch(pid)
}

func (bp *BufferPool) fetch(pid primitives.PageID) (*Pin, error) {
	if fid, ok := bp.pageTable[pid]; ok {
		f := &bp.frames[fid]
		if f.pageID != pid {
			return nil, fmt.Errorf("%w: page table maps %d to frame %d holding %d",
				ErrInconsistent, pid, fid, f.pageID)
		}
		bp.hitCount++
		if f.pinCount == 0 {
			bp.replacer.Remove(fid)
		}
		f.pinCount++
		return &Pin{pool: bp, frameID: fid, pageID: pid}, nil
	}

	// Reject unknown pages before disturbing any frame.
	if !bp.disk.IsAllocated(pid) {
		return nil, fmt.Errorf("%w: page %d", disk.ErrInvalidPage, pid)
	}

	fid, err := bp.acquireFrame()
	if err != nil {
		return nil, err
	}

	bp.missCount++
	f := &bp.frames[fid]
	if err := bp.disk.Read(pid, f.data); err != nil {
		// The frame was already vacated; hand it back before failing.
		bp.freeList = append(bp.freeList, fid)
		return nil, err
	}
	bp.diskReadCount++

	f.pageID = pid
	f.pinCount = 1
	f.isDirty = false
	bp.pageTable[pid] = fid
	return &Pin{pool: bp, frameID: fid, pageID: pid}, nil
}

// acquireFrame returns an empty frame, evicting the LRU unpinned frame if
// none is free. The returned frame is reset and absent from the page table.
func (bp *BufferPool) acquireFrame() (primitives.FrameID, error) {
	if len(bp.freeList) > 0 {
		fid := bp.freeList[0]
		bp.freeList = bp.freeList[1:]
		return fid, nil
	}

	if bp.replacer.Size() == 0 {
		return primitives.InvalidFrameID, ErrPoolExhausted
	}
	victim, _ := bp.replacer.PopLRU()
	f := &bp.frames[victim]
	if !f.occupied() || f.pinCount != 0 {
		return primitives.InvalidFrameID, fmt.Errorf(
			"%w: replacer offered frame %d (page %d, pins %d)",
			ErrInconsistent, victim, f.pageID, f.pinCount)
	}

	if f.isDirty {
		if err := bp.disk.Write(f.pageID, f.data); err != nil {
			return primitives.InvalidFrameID, fmt.Errorf("evicting page %d: %w", f.pageID, err)
		}
		bp.diskWriteCount++
		logging.GetLogger().Debug("evicted dirty page", "page", uint32(f.pageID), "frame", uint32(victim))
	}

	delete(bp.pageTable, f.pageID)
	f.reset()
	return victim, nil
}

// unpin is called by Pin.Release. On the transition to zero pins the frame
// joins the MRU end of the replacer.
func (bp *BufferPool) unpin(fid primitives.FrameID, dirty bool) {
	bp.mutex.Lock()
	defer bp.mutex.Unlock()

	f := &bp.frames[fid]
	if f.pinCount == 0 {
		return
	}
	f.pinCount--
	if dirty {
		f.isDirty = true
	}
	if f.pinCount == 0 {
		bp.replacer.Push(fid)
	}
}

// NewPage allocates a fresh page of the given type on disk, brings it into
// the pool, and formats it as an empty slotted page. The returned pin is
// already marked dirty: a new page must reach disk even if never touched
// again.
func (bp *BufferPool) NewPage(pt primitives.PageType) (primitives.PageID, *Pin, error) {
	pid, err := bp.disk.Allocate(pt)
	if err != nil {
		return primitives.InvalidPageID, nil, err
	}

	pin, err := bp.Fetch(pid)
	if err != nil {
		// Undo the allocation so a pool-exhausted caller sees no change.
		bp.disk.Free(pid)
		return primitives.InvalidPageID, nil, err
	}

	slotted.Page(pin.Data()).Init(pid, pt)
	pin.MarkDirty()
	return pid, pin, nil
}

// FlushPage writes the page to disk if it is resident and dirty, clearing
// the dirty bit. Returns true iff the page is resident.
func (bp *BufferPool) FlushPage(pid primitives.PageID) bool {
	bp.mutex.Lock()
	defer bp.mutex.Unlock()
	return bp.flushPage(pid)
}

func (bp *BufferPool) flushPage(pid primitives.PageID) bool {
	fid, ok := bp.pageTable[pid]
	if !ok {
		return false
	}
	f := &bp.frames[fid]
	if f.isDirty {
		if err := bp.disk.Write(pid, f.data); err != nil {
			logging.GetLogger().Error("flush failed", "page", uint32(pid), "error", err)
			return true
		}
		bp.diskWriteCount++
		f.isDirty = false
	}
	return true
}

// FlushAll writes every dirty resident page to disk in frame order.
func (bp *BufferPool) FlushAll() {
	bp.mutex.Lock()
	defer bp.mutex.Unlock()

	for i := range bp.frames {
		f := &bp.frames[i]
		if f.occupied() && f.isDirty {
			bp.flushPage(f.pageID)
		}
	}
}

// DropPage evicts the page without writing it back and frees it on disk.
// Fails with ErrPagePinned when the page is resident and pinned; freeing a
// page that was never resident only touches the disk manager.
func (bp *BufferPool) DropPage(pid primitives.PageID) error {
	bp.mutex.Lock()
	defer bp.mutex.Unlock()

	if fid, ok := bp.pageTable[pid]; ok {
		f := &bp.frames[fid]
		if f.pinCount > 0 {
			return fmt.Errorf("%w: page %d has %d pins", ErrPagePinned, pid, f.pinCount)
		}
		bp.replacer.Remove(fid)
		delete(bp.pageTable, pid)
		f.reset()
		bp.freeList = append(bp.freeList, fid)
	}
	bp.disk.Free(pid)
	return nil
}

// ViewPage returns a copy of the page bytes without recording a hit, a
// miss, or any disk I/O, and without touching pins or LRU order. Resident
// pages are served from their frame (the frame is authoritative when
// dirty), everything else from the raw disk region.
func (bp *BufferPool) ViewPage(pid primitives.PageID) []byte {
	bp.mutex.Lock()
	if fid, ok := bp.pageTable[pid]; ok {
		out := make([]byte, bp.pageSize)
		copy(out, bp.frames[fid].data)
		bp.mutex.Unlock()
		return out
	}
	bp.mutex.Unlock()
	return bp.disk.PageData(pid)
}

// CheckConsistency verifies the structural agreement between the page
// table, the frames, and the replacer. A non-nil error is fatal.
func (bp *BufferPool) CheckConsistency() error {
	bp.mutex.Lock()
	defer bp.mutex.Unlock()

	occupied := 0
	unpinned := 0
	for i := range bp.frames {
		f := &bp.frames[i]
		if !f.occupied() {
			continue
		}
		occupied++
		if f.pinCount == 0 {
			unpinned++
		}
		fid, ok := bp.pageTable[f.pageID]
		if !ok || fid != primitives.FrameID(i) {
			return fmt.Errorf("%w: frame %d holds page %d missing from page table",
				ErrInconsistent, i, f.pageID)
		}
	}
	if len(bp.pageTable) != occupied {
		return fmt.Errorf("%w: page table has %d entries for %d occupied frames",
			ErrInconsistent, len(bp.pageTable), occupied)
	}
	if bp.replacer.Size() != unpinned {
		return fmt.Errorf("%w: replacer tracks %d frames, %d are unpinned",
			ErrInconsistent, bp.replacer.Size(), unpinned)
	}
	return nil
}

// ── Accessors ──

// PoolSize returns the number of frames.
func (bp *BufferPool) PoolSize() uint32 {
	return uint32(len(bp.frames))
}

// PageSize returns the page size in bytes.
func (bp *BufferPool) PageSize() uint32 {
	return bp.pageSize
}

// Disk returns the underlying disk manager.
func (bp *BufferPool) Disk() *disk.Manager {
	return bp.disk
}

// HitCount returns the number of fetches served from a resident frame.
func (bp *BufferPool) HitCount() uint64 {
	bp.mutex.Lock()
	defer bp.mutex.Unlock()
	return bp.hitCount
}

// MissCount returns the number of fetches that loaded from disk.
func (bp *BufferPool) MissCount() uint64 {
	bp.mutex.Lock()
	defer bp.mutex.Unlock()
	return bp.missCount
}

// DiskReadCount returns the number of page reads issued to the disk.
func (bp *BufferPool) DiskReadCount() uint64 {
	bp.mutex.Lock()
	defer bp.mutex.Unlock()
	return bp.diskReadCount
}

// DiskWriteCount returns the number of page writes issued to the disk.
func (bp *BufferPool) DiskWriteCount() uint64 {
	bp.mutex.Lock()
	defer bp.mutex.Unlock()
	return bp.diskWriteCount
}

// HitRate returns the fraction of fetches served from cache, zero before
// the first fetch.
func (bp *BufferPool) HitRate() float64 {
	bp.mutex.Lock()
	defer bp.mutex.Unlock()

	total := bp.hitCount + bp.missCount
	if total == 0 {
		return 0
	}
	return float64(bp.hitCount) / float64(total)
}

// FrameInfo returns the bookkeeping of one frame for observation.
func (bp *BufferPool) FrameInfo(fid primitives.FrameID) FrameInfo {
	bp.mutex.Lock()
	defer bp.mutex.Unlock()

	f := &bp.frames[fid]
	return FrameInfo{
		PageID:     f.pageID,
		PinCount:   f.pinCount,
		IsDirty:    f.isDirty,
		IsOccupied: f.occupied(),
	}
}

// PageTable returns a copy of the page-id to frame-id mapping.
func (bp *BufferPool) PageTable() map[primitives.PageID]primitives.FrameID {
	bp.mutex.Lock()
	defer bp.mutex.Unlock()

	out := make(map[primitives.PageID]primitives.FrameID, len(bp.pageTable))
	for pid, fid := range bp.pageTable {
		out[pid] = fid
	}
	return out
}

// LRUOrder returns the unpinned occupied frames from LRU to MRU.
func (bp *BufferPool) LRUOrder() []primitives.FrameID {
	bp.mutex.Lock()
	defer bp.mutex.Unlock()
	return bp.replacer.Order()
}

// IsResident reports whether the page currently occupies a frame.
func (bp *BufferPool) IsResident(pid primitives.PageID) bool {
	bp.mutex.Lock()
	defer bp.mutex.Unlock()
	_, ok := bp.pageTable[pid]
	return ok
}
