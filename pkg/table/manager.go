package table

import (
	"errors"
	"fmt"
	"sync"

	"pagedb/pkg/catalog/schema"
	"pagedb/pkg/logging"
	"pagedb/pkg/memory"
	"pagedb/pkg/primitives"
	"pagedb/pkg/storage/slotted"
	"pagedb/pkg/tuple"
	"pagedb/pkg/types"
)

// Manager maintains the table catalog and dispatches row operations onto
// page chains through the buffer pool.
//
// Pin discipline: every operation holds at most one pin at a time and
// releases it on every exit path. Chain walks release the current page
// before fetching the next; overflow resolution happens after the data
// page pin is dropped.
type Manager struct {
	pool              *memory.BufferPool
	overflowThreshold uint32
	tables            map[string]*Table
	order             []string // catalog listing order = creation order
	mutex             sync.RWMutex
}

// NewManager creates an empty catalog over the given buffer pool.
func NewManager(pool *memory.BufferPool, overflowThreshold uint32) *Manager {
	return &Manager{
		pool:              pool,
		overflowThreshold: overflowThreshold,
		tables:            make(map[string]*Table),
	}
}

// CreateTable validates the schema, allocates the table's first data page,
// and records the table in the catalog.
func (m *Manager) CreateTable(name string, s *schema.Schema) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if name == "" {
		return fmt.Errorf("%w: table name cannot be empty", schema.ErrInvalidSchema)
	}
	if _, exists := m.tables[name]; exists {
		return fmt.Errorf("%w: %q", ErrTableExists, name)
	}
	if err := s.Validate(); err != nil {
		return err
	}

	pid, pin, err := m.pool.NewPage(primitives.DataPage)
	if err != nil {
		return fmt.Errorf("allocating first page for %q: %w", name, err)
	}
	pin.Release()

	m.tables[name] = &Table{Name: name, Schema: s, FirstPageID: pid}
	m.order = append(m.order, name)
	logging.WithTable(name).Info("table created", "first_page", uint32(pid), "columns", s.NumColumns())
	return nil
}

// Insert encodes the row, spills it to an overflow chain when it exceeds
// the threshold, and places the stored record in the first chain page with
// room, appending a fresh page at the tail when none has any.
func (m *Manager) Insert(name string, fields []types.Field) (primitives.RowID, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	t, ok := m.tables[name]
	if !ok {
		return primitives.RowID{}, fmt.Errorf("%w: %q", ErrUnknownTable, name)
	}

	encoded, err := tuple.Encode(t.Schema, fields)
	if err != nil {
		return primitives.RowID{}, err
	}

	record := encoded
	overflowHead := primitives.InvalidPageID
	if uint32(len(encoded)) > m.overflowThreshold {
		overflowHead, err = writeOverflowChain(m.pool, encoded)
		if err != nil {
			return primitives.RowID{}, err
		}
		record = encodeForward(overflowHead, len(encoded))
	}

	rid, err := m.placeRecord(t, record)
	if err != nil {
		if overflowHead != primitives.InvalidPageID {
			if freeErr := freeOverflowChain(m.pool, overflowHead); freeErr != nil {
				logging.WithTable(name).Error("failed to unwind overflow chain", "error", freeErr)
			}
		}
		return primitives.RowID{}, err
	}

	t.RowCount++
	return rid, nil
}

// placeRecord walks the chain first-fit and inserts the record, splicing a
// new tail page when no existing page has room.
func (m *Manager) placeRecord(t *Table, record []byte) (primitives.RowID, error) {
	maxSteps := m.pool.Disk().MaxPages()
	current := t.FirstPageID
	tail := primitives.InvalidPageID

	for steps := uint32(0); current != primitives.InvalidPageID; steps++ {
		if steps >= maxSteps {
			return primitives.RowID{}, fmt.Errorf("%w: page chain of %q exceeds disk capacity",
				slotted.ErrCorrupt, t.Name)
		}

		pin, err := m.pool.Fetch(current)
		if err != nil {
			return primitives.RowID{}, err
		}
		page := pin.Page()

		if int(page.FreeSpace()) >= len(record)+slotted.SlotSize {
			sid, err := page.Insert(record)
			if err != nil {
				pin.Release()
				return primitives.RowID{}, err
			}
			pin.MarkDirty()
			pin.Release()
			return primitives.NewRowID(current, sid), nil
		}

		next := page.Next()
		pin.Release()
		if next == primitives.InvalidPageID {
			tail = current
		}
		current = next
	}

	// No page in the chain had room; grow it.
	newPid, newPin, err := m.pool.NewPage(primitives.DataPage)
	if err != nil {
		return primitives.RowID{}, err
	}
	sid, err := newPin.Page().Insert(record)
	if err != nil {
		newPin.Release()
		if dropErr := m.pool.DropPage(newPid); dropErr != nil {
			logging.WithTable(t.Name).Error("failed to drop unusable page", "error", dropErr)
		}
		if errors.Is(err, slotted.ErrNoSpace) {
			return primitives.RowID{}, fmt.Errorf("%w: %d bytes", ErrRowTooLarge, len(record))
		}
		return primitives.RowID{}, err
	}
	newPin.MarkDirty()
	newPin.Release()

	tailPin, err := m.pool.Fetch(tail)
	if err != nil {
		return primitives.RowID{}, err
	}
	tailPin.Page().SetNext(newPid)
	tailPin.MarkDirty()
	tailPin.Release()

	logging.WithTable(t.Name).Debug("page chain grew", "new_page", uint32(newPid))
	return primitives.NewRowID(newPid, sid), nil
}

// Get reads one row by ID, reassembling it from its overflow chain when
// the slot holds a forwarding record.
func (m *Manager) Get(name string, rid primitives.RowID) ([]types.Field, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	t, ok := m.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, name)
	}
	if err := m.checkDataPage(rid.PageID); err != nil {
		return nil, err
	}

	pin, err := m.pool.Fetch(rid.PageID)
	if err != nil {
		return nil, err
	}
	record, err := pin.Page().Read(rid.SlotID)
	if err != nil {
		pin.Release()
		return nil, err
	}

	if isForward(record) {
		head := decodeForward(record)
		pin.Release()
		data, err := readOverflowChain(m.pool, head)
		if err != nil {
			return nil, err
		}
		return tuple.Decode(t.Schema, data)
	}

	fields, err := tuple.Decode(t.Schema, record)
	pin.Release()
	return fields, err
}

// Delete tombstones the row's slot and frees its overflow chain if the
// slot held a forwarding record. Returns true iff a live row transitioned
// to tombstoned; deleting an already-dead or out-of-range slot reports
// false without error.
func (m *Manager) Delete(name string, rid primitives.RowID) (bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	t, ok := m.tables[name]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownTable, name)
	}
	if err := m.checkDataPage(rid.PageID); err != nil {
		return false, err
	}

	pin, err := m.pool.Fetch(rid.PageID)
	if err != nil {
		return false, err
	}
	page := pin.Page()

	overflowHead := primitives.InvalidPageID
	record, err := page.Read(rid.SlotID)
	switch {
	case err == nil:
		if isForward(record) {
			overflowHead = decodeForward(record)
		}
	case errors.Is(err, slotted.ErrTombstone), errors.Is(err, slotted.ErrBadSlot):
		pin.Release()
		return false, nil
	default:
		pin.Release()
		return false, err
	}

	deleted := page.Delete(rid.SlotID)
	if deleted {
		pin.MarkDirty()
	}
	pin.Release()

	if deleted && overflowHead != primitives.InvalidPageID {
		if err := freeOverflowChain(m.pool, overflowHead); err != nil {
			return true, err
		}
	}
	if deleted {
		t.RowCount--
	}
	return deleted, nil
}

// Scan walks the page chain in order and emits every live row, slot index
// ascending within a page. Tombstones are skipped; rows whose bytes fail
// to decode are emitted with Err set and the scan continues.
func (m *Manager) Scan(name string) ([]ScanRow, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	t, ok := m.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, name)
	}

	var rows []ScanRow
	maxSteps := m.pool.Disk().MaxPages()
	current := t.FirstPageID

	for steps := uint32(0); current != primitives.InvalidPageID; steps++ {
		if steps >= maxSteps {
			return nil, fmt.Errorf("%w: page chain of %q exceeds disk capacity",
				slotted.ErrCorrupt, name)
		}

		pin, err := m.pool.Fetch(current)
		if err != nil {
			return nil, err
		}
		page := pin.Page()

		// Forwarded rows are resolved after this page's pin is dropped,
		// so only one page is ever pinned at a time.
		type pendingRow struct {
			idx  int
			head primitives.PageID
		}
		var pending []pendingRow

		for sid := uint16(0); sid < page.SlotCount(); sid++ {
			rid := primitives.NewRowID(current, primitives.SlotID(sid))
			record, err := page.Read(primitives.SlotID(sid))
			if errors.Is(err, slotted.ErrTombstone) {
				continue
			}
			if err != nil {
				rows = append(rows, ScanRow{RowID: rid, Err: err})
				continue
			}
			if isForward(record) {
				pending = append(pending, pendingRow{idx: len(rows), head: decodeForward(record)})
				rows = append(rows, ScanRow{RowID: rid})
				continue
			}
			fields, err := tuple.Decode(t.Schema, record)
			rows = append(rows, ScanRow{RowID: rid, Fields: fields, Err: err})
		}

		next := page.Next()
		pin.Release()

		for _, p := range pending {
			fields, err := m.resolveForwarded(t.Schema, p.head)
			rows[p.idx].Fields = fields
			rows[p.idx].Err = err
		}

		current = next
	}
	return rows, nil
}

func (m *Manager) resolveForwarded(s *schema.Schema, head primitives.PageID) ([]types.Field, error) {
	data, err := readOverflowChain(m.pool, head)
	if err != nil {
		return nil, err
	}
	return tuple.Decode(s, data)
}

// DropTable frees every page the table owns, overflow chains before their
// data pages, and removes the catalog entry. Reports false for unknown
// names so callers can drop idempotently.
func (m *Manager) DropTable(name string) (bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	t, ok := m.tables[name]
	if !ok {
		return false, nil
	}

	maxSteps := m.pool.Disk().MaxPages()
	current := t.FirstPageID
	for steps := uint32(0); current != primitives.InvalidPageID; steps++ {
		if steps >= maxSteps {
			return false, fmt.Errorf("%w: page chain of %q exceeds disk capacity",
				slotted.ErrCorrupt, name)
		}

		// Collect forwarding heads under the pin, free the chains after.
		pin, err := m.pool.Fetch(current)
		if err != nil {
			return false, err
		}
		page := pin.Page()
		var heads []primitives.PageID
		for sid := uint16(0); sid < page.SlotCount(); sid++ {
			record, err := page.Read(primitives.SlotID(sid))
			if err == nil && isForward(record) {
				heads = append(heads, decodeForward(record))
			}
		}
		next := page.Next()
		pin.Release()

		for _, head := range heads {
			if err := freeOverflowChain(m.pool, head); err != nil {
				return false, err
			}
		}
		if err := m.pool.DropPage(current); err != nil {
			return false, err
		}
		current = next
	}

	delete(m.tables, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	logging.WithTable(name).Info("table dropped")
	return true, nil
}

// ListTables returns the table names in creation order.
func (m *Manager) ListTables() []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// GetTable returns the catalog entry for a name.
func (m *Manager) GetTable(name string) (*Table, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	t, ok := m.tables[name]
	return t, ok
}

// GetSchema returns a table's schema.
func (m *Manager) GetSchema(name string) (*schema.Schema, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	t, ok := m.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, name)
	}
	return t.Schema, nil
}

// PageChain materializes a table's data-page chain by following next
// pointers through the non-recording read path, so observation never
// disturbs cache state.
func (m *Manager) PageChain(name string) ([]primitives.PageID, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	t, ok := m.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, name)
	}

	var chain []primitives.PageID
	maxSteps := m.pool.Disk().MaxPages()
	current := t.FirstPageID
	for steps := uint32(0); current != primitives.InvalidPageID; steps++ {
		if steps >= maxSteps {
			return nil, fmt.Errorf("%w: page chain of %q exceeds disk capacity",
				slotted.ErrCorrupt, name)
		}
		chain = append(chain, current)
		current = slotted.Page(m.pool.ViewPage(current)).Next()
	}
	return chain, nil
}

// checkDataPage rejects row IDs whose page is out of range, unallocated,
// or not a data page.
func (m *Manager) checkDataPage(pid primitives.PageID) error {
	allocated, pt := m.pool.Disk().PageMeta(pid)
	if !allocated || pt != primitives.DataPage {
		return fmt.Errorf("%w: page %d", ErrBadPage, pid)
	}
	return nil
}
