// Package table implements the table layer: a catalog of named tables,
// each stored as a singly linked chain of slotted data pages, with rows
// too large for inline storage spilled to overflow page chains.
package table

import (
	"errors"

	"pagedb/pkg/catalog/schema"
	"pagedb/pkg/primitives"
	"pagedb/pkg/types"
)

var (
	// ErrUnknownTable is returned for operations on names not in the catalog.
	ErrUnknownTable = errors.New("unknown table")

	// ErrTableExists is returned by CreateTable for a name already taken.
	ErrTableExists = errors.New("table already exists")

	// ErrBadPage is returned when a row ID names a page that is not an
	// allocated data page.
	ErrBadPage = errors.New("bad page")

	// ErrRowTooLarge is returned when an encoded row cannot fit even an
	// empty data page. Only reachable when the overflow threshold is set
	// above the page payload; spilled rows never hit it because a
	// forwarding record always fits.
	ErrRowTooLarge = errors.New("row too large for any page")
)

// Table is one catalog entry: the schema and the head of the page chain.
// The full chain is materialized on demand by following next pointers.
type Table struct {
	Name        string
	Schema      *schema.Schema
	FirstPageID primitives.PageID
	RowCount    uint32
}

// ScanRow is one row produced by a table scan. A row whose bytes fail to
// decode carries the error in Err and nil Fields; the scan itself is not
// aborted by such rows.
type ScanRow struct {
	RowID  primitives.RowID
	Fields []types.Field

	// Err marks a row that could not be decoded.
	Err error
}
