package layer

import (
	"unsafe"

	"github.com/joshuapare/poolkit/internal/logger"
	"github.com/joshuapare/poolkit/pool"
)

// Reallocator adds Reallocate to any allocator.
type Reallocator struct {
	pool.Allocator
}

// NewReallocator wraps inner.
func NewReallocator(inner pool.Allocator) *Reallocator {
	return &Reallocator{Allocator: inner}
}

// Reallocate changes the size of *h, moving the allocation when it cannot
// be resized in place:
//
//   - size 0 frees *h and sets it to InvalidHandle
//   - an invalid *h is a plain allocation
//   - a block that already has size bytes is left alone
//   - otherwise the block is resized in place, or copied into a new block
//     and the old one freed
//
// On failure *h still refers to the original, unchanged allocation. Handles
// the allocator does not own are rejected.
func (r *Reallocator) Reallocate(h *pool.Handle, size, align int) bool {
	if h == nil || size < 0 {
		return false
	}
	if size == 0 {
		if !r.Free(*h, false) {
			return false
		}
		*h = pool.InvalidHandle
		return true
	}
	if *h == pool.InvalidHandle {
		nh := r.Allocate(size, align)
		if nh == pool.InvalidHandle {
			return false
		}
		*h = nh
		return true
	}

	if !r.Owns(*h) {
		return false
	}
	old := r.Size(*h)
	if old == size {
		return true
	}
	if r.aligned(*h, align) && r.Resize(h, size, align) {
		return true
	}

	nh := r.Allocate(size, align)
	if nh == pool.InvalidHandle {
		logger.Debug("reallocator: no room to move", "size", size, "align", align, "from", old)
		return false
	}
	copy(r.Resolve(nh)[:min(old, size)], r.Resolve(*h))
	r.Free(*h, false)
	*h = nh
	return true
}

// aligned reports whether the data of h already satisfies align, so that
// an in-place resize keeps the alignment contract.
func (r *Reallocator) aligned(h pool.Handle, align int) bool {
	b := r.Resolve(h)
	if len(b) == 0 {
		return false
	}
	return pool.IsAligned(uintptr(unsafe.Pointer(unsafe.SliceData(b))), uintptr(pool.NormalizeAlign(align)))
}

var _ pool.Reallocating = (*Reallocator)(nil)
