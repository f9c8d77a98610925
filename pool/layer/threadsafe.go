package layer

import (
	"sync"

	"github.com/joshuapare/poolkit/pool"
)

// ThreadSafe serializes every call to the wrapped allocator behind one mutex.
//
// Resolve returns a slice into the pool. For referenced pools a Beat from
// another goroutine may move the bytes behind it, so callers that share such
// a pool should touch allocation bytes inside Locked.
type ThreadSafe struct {
	mu    sync.Mutex
	inner pool.Allocator
}

// NewThreadSafe wraps inner.
func NewThreadSafe(inner pool.Allocator) *ThreadSafe {
	return &ThreadSafe{inner: inner}
}

// Locked runs fn with the mutex held. fn must not call back into t.
func (t *ThreadSafe) Locked(fn func(a pool.Allocator)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(t.inner)
}

func (t *ThreadSafe) InitMem(size int, data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inner.InitMem(size, data)
}

func (t *ThreadSafe) Allocate(size, align int) pool.Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inner.Allocate(size, align)
}

func (t *ThreadSafe) Free(h pool.Handle, force bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inner.Free(h, force)
}

func (t *ThreadSafe) Resize(h *pool.Handle, size, align int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inner.Resize(h, size, align)
}

// Reallocate forwards to the wrapped allocator when it can reallocate and
// fails otherwise.
func (t *ThreadSafe) Reallocate(h *pool.Handle, size, align int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok := t.inner.(pool.Reallocating); ok {
		return r.Reallocate(h, size, align)
	}
	return false
}

func (t *ThreadSafe) Resolve(h pool.Handle) []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inner.Resolve(h)
}

func (t *ThreadSafe) Size(h pool.Handle) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inner.Size(h)
}

func (t *ThreadSafe) Owns(h pool.Handle) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inner.Owns(h)
}

func (t *ThreadSafe) MemSize() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inner.MemSize()
}

func (t *ThreadSafe) MemFree() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inner.MemFree()
}

func (t *ThreadSafe) FragmentCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inner.FragmentCount()
}

func (t *ThreadSafe) Beat() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inner.Beat()
}

var _ pool.Reallocating = (*ThreadSafe)(nil)
