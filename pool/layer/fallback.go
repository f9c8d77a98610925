package layer

import (
	"github.com/joshuapare/poolkit/internal/logger"
	"github.com/joshuapare/poolkit/pool"
)

// FallbackMode selects where a Fallback sends allocations.
type FallbackMode int

const (
	// FallbackDisabled serves every request from the pool.
	FallbackDisabled FallbackMode = iota
	// FallbackEnabled uses the system allocator only when the pool is exhausted.
	FallbackEnabled
	// FallbackAlways bypasses the pool.
	FallbackAlways
)

func (m FallbackMode) String() string {
	switch m {
	case FallbackDisabled:
		return "disabled"
	case FallbackEnabled:
		return "enabled"
	case FallbackAlways:
		return "always"
	}
	return "unknown"
}

// Fallback routes allocations between a pool and a System allocator.
// Frees, resizes and lookups go to whichever side owns the handle; handles
// the pool owns are always freed with the bounds check forced.
type Fallback struct {
	inner pool.Allocator
	sys   System
	mode  FallbackMode
}

// NewFallback wraps inner. A nil sys selects a GoHeap.
func NewFallback(inner pool.Allocator, sys System, mode FallbackMode) *Fallback {
	if sys == nil {
		sys = NewGoHeap()
	}
	return &Fallback{inner: inner, sys: sys, mode: mode}
}

// Mode returns the configured mode.
func (f *Fallback) Mode() FallbackMode { return f.mode }

// System returns the platform allocator.
func (f *Fallback) System() System { return f.sys }

func (f *Fallback) InitMem(size int, data []byte) { f.inner.InitMem(size, data) }

func (f *Fallback) Allocate(size, align int) pool.Handle {
	switch f.mode {
	case FallbackAlways:
		return f.sys.AlignedAlloc(size, align)
	case FallbackEnabled:
		if h := f.inner.Allocate(size, align); h != pool.InvalidHandle {
			return h
		}
		h := f.sys.AlignedAlloc(size, align)
		logger.Debug("fallback: pool exhausted", "size", size, "align", align, "system", h != pool.InvalidHandle)
		return h
	}
	return f.inner.Allocate(size, align)
}

func (f *Fallback) Free(h pool.Handle, force bool) bool {
	if h == pool.InvalidHandle {
		return true
	}
	if f.mode == FallbackDisabled {
		return f.inner.Free(h, force)
	}
	if f.inner.Owns(h) {
		return f.inner.Free(h, true)
	}
	return f.sys.AlignedFree(h)
}

// Resize resizes in place on whichever side owns *h. System blocks can only
// shrink.
func (f *Fallback) Resize(h *pool.Handle, size, align int) bool {
	if h == nil || *h == pool.InvalidHandle {
		return false
	}
	if f.mode != FallbackDisabled && f.sys.Owns(*h) {
		return f.sys.Shrink(*h, size)
	}
	return f.inner.Resize(h, size, align)
}

func (f *Fallback) Resolve(h pool.Handle) []byte {
	if f.mode != FallbackDisabled && f.sys.Owns(h) {
		return f.sys.Resolve(h)
	}
	return f.inner.Resolve(h)
}

func (f *Fallback) Size(h pool.Handle) int {
	if f.mode != FallbackDisabled && f.sys.Owns(h) {
		return f.sys.Size(h)
	}
	return f.inner.Size(h)
}

func (f *Fallback) Owns(h pool.Handle) bool {
	return f.inner.Owns(h) || (f.mode != FallbackDisabled && f.sys.Owns(h))
}

func (f *Fallback) MemSize() int       { return f.inner.MemSize() }
func (f *Fallback) MemFree() int       { return f.inner.MemFree() }
func (f *Fallback) FragmentCount() int { return f.inner.FragmentCount() }
func (f *Fallback) Beat() bool         { return f.inner.Beat() }

var _ pool.Allocator = (*Fallback)(nil)
