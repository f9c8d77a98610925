// Package region provides the memory a container carves into blocks.
//
// Three backends are available:
//
//   - Fixed owns a buffer whose size is chosen at construction. InitMem
//     ignores its arguments.
//   - Dynamic records a caller-owned buffer passed to InitMem. The caller keeps
//     the buffer alive for as long as the pool is in use.
//   - Mapped is backed by an mmap'ed file or an anonymous mapping and records
//     every byte range the container writes so Flush can msync only the
//     touched pages.
//
// Regions are not safe for concurrent use; wrap the pool in layer.ThreadSafe.
package region

import (
	"unsafe"

	"github.com/cockroachdb/errors"

	"github.com/joshuapare/poolkit/pool"
)

// Fixed is a region of a size fixed at construction.
type Fixed struct {
	buf []byte
}

var _ pool.Region = (*Fixed)(nil)

// NewFixed allocates a fixed region of size bytes.
func NewFixed(size int) *Fixed {
	if size < 0 {
		panic(errors.AssertionFailedf("region: negative size %d", size))
	}
	return &Fixed{buf: make([]byte, size)}
}

// InitMem is a no-op: fixed regions cannot be rebound.
func (f *Fixed) InitMem(int, []byte) {}

func (f *Fixed) Bytes() []byte { return f.buf }
func (f *Fixed) Size() int     { return len(f.buf) }
func (f *Fixed) Base() uintptr { return base(f.buf) }

// Dynamic is a region over a caller-supplied buffer.
type Dynamic struct {
	data []byte
}

var _ pool.Region = (*Dynamic)(nil)

// NewDynamic returns an unbound dynamic region. InitMem must be called before
// the region is used with a non-zero size.
func NewDynamic() *Dynamic { return &Dynamic{} }

// InitMem binds the region to the first size bytes of data.
func (d *Dynamic) InitMem(size int, data []byte) {
	if size < 0 || size > len(data) {
		panic(errors.AssertionFailedf("region: size %d outside buffer of %d bytes", size, len(data)))
	}
	if size == 0 {
		d.data = nil
		return
	}
	d.data = data[:size:size]
}

func (d *Dynamic) Bytes() []byte { return d.data }
func (d *Dynamic) Size() int     { return len(d.data) }
func (d *Dynamic) Base() uintptr { return base(d.data) }

func base(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(b)))
}
