// Package engine assembles the storage engine: disk manager, buffer pool,
// table catalog, and snapshot surface behind one in-process facade. The
// host constructs an Engine from a config record, drives it through typed
// method calls, and observes it through binary snapshots; nothing survives
// the Engine value itself.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"pagedb/pkg/catalog/schema"
	"pagedb/pkg/config"
	"pagedb/pkg/logging"
	"pagedb/pkg/memory"
	"pagedb/pkg/primitives"
	"pagedb/pkg/snapshot"
	"pagedb/pkg/storage/disk"
	"pagedb/pkg/storage/slotted"
	"pagedb/pkg/table"
	"pagedb/pkg/types"
)

// ErrPoisoned is returned by every mutating call after the engine has
// detected a violated internal invariant. Snapshots stay available so the
// wreckage can be inspected.
var ErrPoisoned = errors.New("engine poisoned by invariant violation")

// Engine is the single entry point for hosts. All entry points are
// synchronous; mutations are totally ordered by call order.
type Engine struct {
	cfg    config.Config
	id     string
	disk   *disk.Manager
	pool   *memory.BufferPool
	tables *table.Manager
	log    *slog.Logger

	poisonMu sync.RWMutex
	poison   error
}

// New validates the configuration and builds an engine: the disk region,
// the frame array, and an empty catalog, all sized once and never resized.
func New(cfg config.Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	log := logging.WithEngine(id)
	if cfg.PoolExceedsDisk() {
		log.Warn("pool is larger than the disk; some frames can never fill",
			"pool_size", cfg.PoolSize, "disk_capacity", cfg.DiskCapacity)
	}

	dm := disk.NewManager(cfg.PageSize, cfg.DiskCapacity)
	pool := memory.NewBufferPool(cfg.PoolSize, dm)

	log.Info("engine created",
		"page_size", cfg.PageSize, "pool_size", cfg.PoolSize,
		"disk_capacity", cfg.DiskCapacity, "overflow_threshold", cfg.OverflowThreshold)

	return &Engine{
		cfg:    cfg,
		id:     id,
		disk:   dm,
		pool:   pool,
		tables: table.NewManager(pool, cfg.OverflowThreshold),
		log:    log,
	}, nil
}

// Config returns the engine's immutable configuration.
func (e *Engine) Config() config.Config {
	return e.cfg
}

// InstanceID returns the unique ID carried in this engine's log fields.
func (e *Engine) InstanceID() string {
	return e.id
}

// ── Table operations ──

// CreateTable registers a table with the given columns and allocates its
// first data page.
func (e *Engine) CreateTable(name string, columns []schema.Column) error {
	if err := e.checkPoisoned(); err != nil {
		return err
	}
	return e.watch(e.tables.CreateTable(name, schema.NewSchema(columns)))
}

// Insert stores one row and returns its ID.
func (e *Engine) Insert(name string, fields []types.Field) (primitives.RowID, error) {
	if err := e.checkPoisoned(); err != nil {
		return primitives.RowID{}, err
	}
	rid, err := e.tables.Insert(name, fields)
	return rid, e.watch(err)
}

// Get reads one row by its textual "page:slot" ID.
func (e *Engine) Get(name, rowID string) ([]types.Field, error) {
	rid, err := primitives.ParseRowID(rowID)
	if err != nil {
		return nil, err
	}
	fields, err := e.tables.Get(name, rid)
	return fields, e.watch(err)
}

// Delete tombstones one row by its textual ID, freeing any overflow chain
// it owned. Reports whether a live row was actually deleted.
func (e *Engine) Delete(name, rowID string) (bool, error) {
	if err := e.checkPoisoned(); err != nil {
		return false, err
	}
	rid, err := primitives.ParseRowID(rowID)
	if err != nil {
		return false, err
	}
	deleted, err := e.tables.Delete(name, rid)
	return deleted, e.watch(err)
}

// Scan returns every live row of a table in page-chain order, slot index
// ascending within each page. Rows that fail to decode are marked, not
// dropped silently, and do not abort the scan.
func (e *Engine) Scan(name string) ([]table.ScanRow, error) {
	rows, err := e.tables.Scan(name)
	return rows, e.watch(err)
}

// DropTable frees every page the table owns and removes it from the
// catalog. Unknown names report false.
func (e *Engine) DropTable(name string) (bool, error) {
	if err := e.checkPoisoned(); err != nil {
		return false, err
	}
	dropped, err := e.tables.DropTable(name)
	return dropped, e.watch(err)
}

// ListTables returns the catalog names in creation order.
func (e *Engine) ListTables() []string {
	return e.tables.ListTables()
}

// GetSchema returns a table's schema.
func (e *Engine) GetSchema(name string) (*schema.Schema, error) {
	return e.tables.GetSchema(name)
}

// ── Buffer pool operations ──

// FlushPage writes one page to disk if resident and dirty. Reports whether
// the page was resident.
func (e *Engine) FlushPage(pid primitives.PageID) (bool, error) {
	if err := e.checkPoisoned(); err != nil {
		return false, err
	}
	return e.pool.FlushPage(pid), nil
}

// FlushAll writes every dirty resident page to disk.
func (e *Engine) FlushAll() error {
	if err := e.checkPoisoned(); err != nil {
		return err
	}
	e.pool.FlushAll()
	return nil
}

// Pool exposes the buffer pool for observation and white-box tests.
func (e *Engine) Pool() *memory.BufferPool {
	return e.pool
}

// ── Snapshots ──
//
// Snapshots remain callable on a poisoned engine and never disturb cache
// state: no pins, no counters, no LRU movement.

// SnapshotBufferPool encodes the buffer pool state.
func (e *Engine) SnapshotBufferPool() []byte {
	return snapshot.BufferPool(e.pool)
}

// SnapshotDisk encodes the disk overview.
func (e *Engine) SnapshotDisk() []byte {
	return snapshot.Disk(e.disk)
}

// SnapshotPage encodes one page in detail.
func (e *Engine) SnapshotPage(pid primitives.PageID) []byte {
	return snapshot.Page(e.pool, pid)
}

// SnapshotTable encodes one table's catalog entry and page chain.
func (e *Engine) SnapshotTable(name string) ([]byte, error) {
	t, ok := e.tables.GetTable(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", table.ErrUnknownTable, name)
	}
	chain, err := e.tables.PageChain(name)
	if err != nil {
		return nil, e.watch(err)
	}
	return snapshot.Table(t, chain), nil
}

// ── Poisoning ──

// checkPoisoned gates mutations once an invariant violation was seen.
func (e *Engine) checkPoisoned() error {
	e.poisonMu.RLock()
	defer e.poisonMu.RUnlock()
	if e.poison != nil {
		return fmt.Errorf("%w: %v", ErrPoisoned, e.poison)
	}
	return nil
}

// watch inspects an operation's error for the fatal kinds (corrupt page
// bytes, pool bookkeeping that disagrees with itself) and poisons the
// engine when it sees one. Ordinary errors pass through untouched.
func (e *Engine) watch(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, slotted.ErrCorrupt) || errors.Is(err, memory.ErrInconsistent) {
		e.poisonMu.Lock()
		if e.poison == nil {
			e.poison = err
			e.log.Error("engine poisoned", "cause", err)
		}
		e.poisonMu.Unlock()
	}
	return err
}

// Poisoned reports whether the engine has refused further mutation, and
// the first violation seen.
func (e *Engine) Poisoned() (bool, error) {
	e.poisonMu.RLock()
	defer e.poisonMu.RUnlock()
	return e.poison != nil, e.poison
}
