package layer

import (
	"unsafe"

	"github.com/joshuapare/poolkit/pool"
)

// System is the platform aligned allocator a Fallback hands requests to when
// the pool cannot serve them.
type System interface {
	AlignedAlloc(size, align int) pool.Handle
	AlignedFree(h pool.Handle) bool
	// Shrink reslices h to size bytes, never past the size it was allocated with.
	Shrink(h pool.Handle, size int) bool
	Resolve(h pool.Handle) []byte
	Size(h pool.Handle) int
	Owns(h pool.Handle) bool
}

// GoHeap allocates from the Go heap. Each block is over-allocated by
// align-1 bytes and the handle is the first aligned address inside it.
// The zero value is not usable; call NewGoHeap.
type GoHeap struct {
	blocks map[pool.Handle][]byte
	bytes  int
}

// NewGoHeap creates an empty heap allocator.
func NewGoHeap() *GoHeap {
	return &GoHeap{blocks: make(map[pool.Handle][]byte)}
}

func (g *GoHeap) AlignedAlloc(size, align int) pool.Handle {
	if size <= 0 {
		return pool.InvalidHandle
	}
	a := pool.NormalizeAlign(align)
	raw := make([]byte, size+a-1)
	base := uintptr(unsafe.Pointer(unsafe.SliceData(raw)))
	off := int(pool.AlignUp(base, uintptr(a)) - base)
	data := raw[off : off+size : off+size]

	h := pool.Handle(base + uintptr(off))
	g.blocks[h] = data
	g.bytes += size
	return h
}

func (g *GoHeap) AlignedFree(h pool.Handle) bool {
	data, ok := g.blocks[h]
	if !ok {
		return false
	}
	g.bytes -= len(data)
	delete(g.blocks, h)
	return true
}

func (g *GoHeap) Shrink(h pool.Handle, size int) bool {
	data, ok := g.blocks[h]
	if !ok || size <= 0 || size > cap(data) {
		return false
	}
	g.bytes += size - len(data)
	g.blocks[h] = data[:size]
	return true
}

func (g *GoHeap) Resolve(h pool.Handle) []byte { return g.blocks[h] }
func (g *GoHeap) Size(h pool.Handle) int       { return len(g.blocks[h]) }
func (g *GoHeap) Owns(h pool.Handle) bool {
	_, ok := g.blocks[h]
	return ok
}

// Live returns the number of outstanding blocks.
func (g *GoHeap) Live() int { return len(g.blocks) }

// Bytes returns the number of bytes handed out.
func (g *GoHeap) Bytes() int { return g.bytes }

var _ System = (*GoHeap)(nil)
