package memory

import (
	"pagedb/pkg/primitives"
	"pagedb/pkg/storage/slotted"
)

// Pin is a scoped borrow of a frame. While held, the frame cannot be
// evicted and its buffer may be read or written through Data and Page.
//
// Every pin must be released exactly once on every exit path of the
// operation that acquired it; the usual shape is
//
//	pin, err := pool.Fetch(pid)
//	if err != nil { ... }
//	defer pin.Release()
//	...
//	pin.MarkDirty()
//
// Release is idempotent so a deferred release composes with early returns.
type Pin struct {
	pool     *BufferPool
	frameID  primitives.FrameID
	pageID   primitives.PageID
	dirty    bool
	released bool
}

// PageID returns the pinned page's ID.
func (p *Pin) PageID() primitives.PageID {
	return p.pageID
}

// FrameID returns the frame holding the pinned page.
func (p *Pin) FrameID() primitives.FrameID {
	return p.frameID
}

// Data returns the frame buffer. The slice is valid only until Release.
func (p *Pin) Data() []byte {
	return p.pool.frames[p.frameID].data
}

// Page returns the frame buffer as a slotted page view.
func (p *Pin) Page() slotted.Page {
	return slotted.Page(p.Data())
}

// MarkDirty records that the holder modified the buffer. The dirty bit is
// applied to the frame when the pin is released.
func (p *Pin) MarkDirty() {
	p.dirty = true
}

// Release drops the pin, OR-ing the accumulated dirty flag into the frame.
// On the transition to zero pins the frame becomes evictable. Calling
// Release again is a no-op.
func (p *Pin) Release() {
	if p.released {
		return
	}
	p.released = true
	p.pool.unpin(p.frameID, p.dirty)
}
