// Package disk implements the disk manager: a fixed-capacity, in-memory
// byte region carved into fixed-size pages, with per-page allocation state
// and a logical page type. There is no file I/O; the region is the disk.
package disk

import (
	"errors"
	"fmt"
	"sync"

	"pagedb/pkg/primitives"
)

var (
	// ErrDiskFull is returned by Allocate when every page is in use.
	ErrDiskFull = errors.New("disk full")

	// ErrInvalidPage is returned by Read and Write for page IDs that are
	// out of range or not allocated.
	ErrInvalidPage = errors.New("invalid page")
)

// Manager owns a contiguous byte region of maxPages fixed-size pages and
// the allocation record for each. Pages are addressed arithmetically:
// page p occupies bytes [p*pageSize, (p+1)*pageSize).
//
// I/O counters live in the buffer pool, which is the only component that
// performs reads and writes on behalf of the engine.
type Manager struct {
	storage   []byte
	allocated []bool
	pageTypes []primitives.PageType
	numAlloc  uint32
	pageSize  uint32
	maxPages  uint32
	mutex     sync.RWMutex
}

// NewManager creates a disk manager with maxPages pages of pageSize bytes.
// The whole region is allocated up front and never resized.
func NewManager(pageSize, maxPages uint32) *Manager {
	types := make([]primitives.PageType, maxPages)
	for i := range types {
		types[i] = primitives.FreePage
	}
	return &Manager{
		storage:   make([]byte, int(pageSize)*int(maxPages)),
		allocated: make([]bool, maxPages),
		pageTypes: types,
		pageSize:  pageSize,
		maxPages:  maxPages,
	}
}

// Allocate claims the smallest-id free page, marks it with the given type,
// and zeroes its bytes. Returns ErrDiskFull when no page is free.
func (m *Manager) Allocate(pt primitives.PageType) (primitives.PageID, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for i := uint32(0); i < m.maxPages; i++ {
		if m.allocated[i] {
			continue
		}
		m.allocated[i] = true
		m.pageTypes[i] = pt
		m.numAlloc++

		off := m.pageOffset(primitives.PageID(i))
		clear(m.storage[off : off+int(m.pageSize)])
		return primitives.PageID(i), nil
	}
	return primitives.InvalidPageID, ErrDiskFull
}

// Free returns a page to the free pool. Already-free and out-of-range IDs
// are ignored so that drop paths can free chains idempotently.
func (m *Manager) Free(pid primitives.PageID) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if uint32(pid) >= m.maxPages || !m.allocated[pid] {
		return
	}
	m.allocated[pid] = false
	m.pageTypes[pid] = primitives.FreePage
	m.numAlloc--
}

// Read copies the page's bytes into buf, which must hold at least one page.
func (m *Manager) Read(pid primitives.PageID, buf []byte) error {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if err := m.checkAllocated(pid); err != nil {
		return err
	}
	if len(buf) < int(m.pageSize) {
		return fmt.Errorf("read buffer too small: %d < %d", len(buf), m.pageSize)
	}

	off := m.pageOffset(pid)
	copy(buf[:m.pageSize], m.storage[off:off+int(m.pageSize)])
	return nil
}

// Write copies one page of bytes from buf onto the page.
func (m *Manager) Write(pid primitives.PageID, buf []byte) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if err := m.checkAllocated(pid); err != nil {
		return err
	}
	if len(buf) < int(m.pageSize) {
		return fmt.Errorf("write buffer too small: %d < %d", len(buf), m.pageSize)
	}

	off := m.pageOffset(pid)
	copy(m.storage[off:off+int(m.pageSize)], buf[:m.pageSize])
	return nil
}

// SetPageType changes the logical type of an allocated page in place.
func (m *Manager) SetPageType(pid primitives.PageID, pt primitives.PageType) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if err := m.checkAllocated(pid); err != nil {
		return err
	}
	m.pageTypes[pid] = pt
	return nil
}

// IsAllocated reports whether the page is currently allocated.
func (m *Manager) IsAllocated(pid primitives.PageID) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return uint32(pid) < m.maxPages && m.allocated[pid]
}

// PageMeta returns the allocation flag and logical type of a page.
// Out-of-range IDs read as unallocated free pages.
func (m *Manager) PageMeta(pid primitives.PageID) (bool, primitives.PageType) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if uint32(pid) >= m.maxPages {
		return false, primitives.FreePage
	}
	return m.allocated[pid], m.pageTypes[pid]
}

// PageData returns a copy of the page's raw bytes without touching any
// counters. This is the non-recording read path used by snapshots; it works
// for unallocated pages too, which read back as zeroes.
func (m *Manager) PageData(pid primitives.PageID) []byte {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	out := make([]byte, m.pageSize)
	if uint32(pid) >= m.maxPages {
		return out
	}
	off := m.pageOffset(pid)
	copy(out, m.storage[off:off+int(m.pageSize)])
	return out
}

// PageSize returns the size of each page in bytes.
func (m *Manager) PageSize() uint32 {
	return m.pageSize
}

// MaxPages returns the disk capacity in pages.
func (m *Manager) MaxPages() uint32 {
	return m.maxPages
}

// NumAllocated returns the number of currently allocated pages.
func (m *Manager) NumAllocated() uint32 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.numAlloc
}

// StorageSize returns the total size of the backing region in bytes.
func (m *Manager) StorageSize() int {
	return len(m.storage)
}

func (m *Manager) checkAllocated(pid primitives.PageID) error {
	if uint32(pid) >= m.maxPages {
		return fmt.Errorf("%w: page %d out of range [0, %d)", ErrInvalidPage, pid, m.maxPages)
	}
	if !m.allocated[pid] {
		return fmt.Errorf("%w: page %d not allocated", ErrInvalidPage, pid)
	}
	return nil
}

func (m *Manager) pageOffset(pid primitives.PageID) int {
	return int(pid) * int(m.pageSize)
}
