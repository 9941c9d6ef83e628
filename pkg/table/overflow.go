package table

import (
	"fmt"

	"pagedb/pkg/logging"
	"pagedb/pkg/memory"
	"pagedb/pkg/primitives"
	"pagedb/pkg/storage/slotted"
)

// writeOverflowChain spills data across a linked list of overflow pages
// and returns the head page ID. At most one pin is held at any moment:
// each chunk page is written and released before the previous page is
// refetched to link it in.
//
// On any failure the pages written so far are freed, so a caller that sees
// an error sees no disk-space change.
func writeOverflowChain(bp *memory.BufferPool, data []byte) (primitives.PageID, error) {
	capacity := slotted.OverflowCapacity(bp.PageSize())
	totalLen := uint32(len(data))

	head := primitives.InvalidPageID
	prev := primitives.InvalidPageID
	var written []primitives.PageID

	for remaining := data; len(remaining) > 0; {
		chunkLen := min(len(remaining), capacity)

		pid, pin, err := bp.NewPage(primitives.OverflowPage)
		if err != nil {
			freeOverflowPages(bp, written)
			return primitives.InvalidPageID, fmt.Errorf("allocating overflow chunk: %w", err)
		}
		written = append(written, pid)

		if err := pin.Page().SetOverflowChunk(totalLen, remaining[:chunkLen]); err != nil {
			pin.Release()
			freeOverflowPages(bp, written)
			return primitives.InvalidPageID, err
		}
		pin.MarkDirty()
		pin.Release()

		if head == primitives.InvalidPageID {
			head = pid
		}
		if prev != primitives.InvalidPageID {
			prevPin, err := bp.Fetch(prev)
			if err != nil {
				freeOverflowPages(bp, written)
				return primitives.InvalidPageID, fmt.Errorf("linking overflow chunk: %w", err)
			}
			prevPin.Page().SetNext(pid)
			prevPin.MarkDirty()
			prevPin.Release()
		}

		prev = pid
		remaining = remaining[chunkLen:]
	}

	logging.GetLogger().Debug("wrote overflow chain",
		"head", uint32(head), "pages", len(written), "bytes", totalLen)
	return head, nil
}

// readOverflowChain reassembles a spilled value by walking the chain from
// its head, pinning one overflow page at a time. The walk is bounded by
// the disk capacity so a corrupt next pointer cannot loop forever.
func readOverflowChain(bp *memory.BufferPool, head primitives.PageID) ([]byte, error) {
	var out []byte
	totalLen := uint32(0)

	current := head
	for steps := uint32(0); current != primitives.InvalidPageID; steps++ {
		if steps >= bp.Disk().MaxPages() {
			return nil, fmt.Errorf("%w: overflow chain from page %d exceeds disk capacity",
				slotted.ErrCorrupt, head)
		}

		pin, err := bp.Fetch(current)
		if err != nil {
			return nil, fmt.Errorf("reading overflow chunk %d: %w", current, err)
		}
		page := pin.Page()
		if current == head {
			totalLen = page.OverflowTotalLen()
			out = make([]byte, 0, totalLen)
		}
		chunk, err := page.OverflowChunk()
		if err != nil {
			pin.Release()
			return nil, err
		}
		out = append(out, chunk...)
		next := page.Next()
		pin.Release()
		current = next
	}

	if uint32(len(out)) != totalLen {
		return nil, fmt.Errorf("%w: overflow chain from page %d carries %d bytes, header says %d",
			slotted.ErrCorrupt, head, len(out), totalLen)
	}
	return out, nil
}

// freeOverflowChain walks a chain from its head and returns every page to
// the disk's free pool. Bounded like readOverflowChain.
func freeOverflowChain(bp *memory.BufferPool, head primitives.PageID) error {
	current := head
	for steps := uint32(0); current != primitives.InvalidPageID; steps++ {
		if steps >= bp.Disk().MaxPages() {
			return fmt.Errorf("%w: overflow chain from page %d exceeds disk capacity",
				slotted.ErrCorrupt, head)
		}

		next := primitives.InvalidPageID
		if allocated, _ := bp.Disk().PageMeta(current); allocated {
			next = slotted.Page(bp.ViewPage(current)).Next()
		}
		if err := bp.DropPage(current); err != nil {
			return err
		}
		current = next
	}
	return nil
}

// freeOverflowPages releases the exact set of pages a failed chain write
// produced, newest first so a retry sees the same allocation order.
func freeOverflowPages(bp *memory.BufferPool, pages []primitives.PageID) {
	for i := len(pages) - 1; i >= 0; i-- {
		if err := bp.DropPage(pages[i]); err != nil {
			logging.GetLogger().Error("failed to free partial overflow page",
				"page", uint32(pages[i]), "error", err)
		}
	}
}
