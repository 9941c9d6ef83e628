package primitives

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidRowID is returned when parsing a row ID from text fails.
var ErrInvalidRowID = errors.New("invalid row id")

// RowID uniquely identifies a row: the page it lives on and the slot index
// within that page's directory. RowIDs are stable for the lifetime of the
// row because slot directories are append-only.
type RowID struct {
	PageID PageID
	SlotID SlotID
}

// NewRowID creates a row ID from its parts.
func NewRowID(pid PageID, sid SlotID) RowID {
	return RowID{PageID: pid, SlotID: sid}
}

// String renders the row ID in its textual "page:slot" form, e.g. "0:3".
func (r RowID) String() string {
	return fmt.Sprintf("%d:%d", r.PageID, r.SlotID)
}

// ParseRowID parses the textual "page:slot" form produced by String.
func ParseRowID(s string) (RowID, error) {
	pagePart, slotPart, found := strings.Cut(s, ":")
	if !found {
		return RowID{}, fmt.Errorf("%w: %q", ErrInvalidRowID, s)
	}

	pid, err := strconv.ParseUint(pagePart, 10, 32)
	if err != nil {
		return RowID{}, fmt.Errorf("%w: bad page in %q", ErrInvalidRowID, s)
	}

	sid, err := strconv.ParseUint(slotPart, 10, 16)
	if err != nil {
		return RowID{}, fmt.Errorf("%w: bad slot in %q", ErrInvalidRowID, s)
	}

	return RowID{PageID: PageID(pid), SlotID: SlotID(sid)}, nil
}
