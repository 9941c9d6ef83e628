package memory

import "pagedb/pkg/primitives"

// frame is one page-sized cell in the buffer pool. Its buffer is allocated
// once at pool construction and never resized or reallocated.
type frame struct {
	data     []byte
	pageID   primitives.PageID // InvalidPageID when the frame is empty
	pinCount uint32
	isDirty  bool
}

func (f *frame) occupied() bool {
	return f.pageID != primitives.InvalidPageID
}

func (f *frame) reset() {
	f.pageID = primitives.InvalidPageID
	f.pinCount = 0
	f.isDirty = false
}

// FrameInfo is a read-only projection of one frame's bookkeeping, used by
// the snapshot surface.
type FrameInfo struct {
	PageID     primitives.PageID
	PinCount   uint32
	IsDirty    bool
	IsOccupied bool
}
