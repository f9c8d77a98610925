package container

import (
	"github.com/joshuapare/poolkit/internal/buf"
	"github.com/joshuapare/poolkit/pool"
)

// In-place block header, stored immediately before the block's data:
//
//	0x00  prev   u32  region offset of the previous header (0xFFFFFFFF = none)
//	0x04  next   u32  region offset of the next header
//	0x08  align  u32  alignment the block was allocated with
//	0x0C  flags  u16
//	0x0E  magic  u16  HeaderMagic
const (
	HeaderSize  = 16
	HeaderMagic = 0xB10C

	hdrPrev  = 0x00
	hdrNext  = 0x04
	hdrAlign = 0x08
	hdrFlags = 0x0C
	hdrMagic = 0x0E
)

const (
	flagInUse    uint16 = 1 << 0
	flagLocked   uint16 = 1 << 1
	flagSentinel uint16 = 1 << 2
)

// header is a view of one in-place header.
type header []byte

func headerAt(mem []byte, off pool.NodeID) (header, bool) {
	b, ok := buf.Slice(mem, int(off), HeaderSize)
	return header(b), ok
}

func (h header) prev() pool.NodeID     { return buf.U32LE(h, hdrPrev) }
func (h header) next() pool.NodeID     { return buf.U32LE(h, hdrNext) }
func (h header) align() int            { return int(buf.U32LE(h, hdrAlign)) }
func (h header) flags() uint16         { return buf.U16LE(h, hdrFlags) }
func (h header) valid() bool           { return buf.U16LE(h, hdrMagic) == HeaderMagic }
func (h header) inUse() bool           { return h.flags()&flagInUse != 0 }
func (h header) locked() bool          { return h.flags()&flagLocked != 0 }
func (h header) sentinel() bool        { return h.flags()&flagSentinel != 0 }
func (h header) setPrev(v pool.NodeID) { buf.PutU32LE(h, hdrPrev, v) }
func (h header) setNext(v pool.NodeID) { buf.PutU32LE(h, hdrNext, v) }
func (h header) setAlign(v int)        { buf.PutU32LE(h, hdrAlign, uint32(v)) }
func (h header) setFlags(v uint16)     { buf.PutU16LE(h, hdrFlags, v) }

func (h header) setFlag(f uint16, on bool) {
	if on {
		h.setFlags(h.flags() | f)
	} else {
		h.setFlags(h.flags() &^ f)
	}
}

// init writes a detached header with the given flags.
func (h header) init(align int, flags uint16) {
	h.setPrev(pool.NilNode)
	h.setNext(pool.NilNode)
	h.setAlign(align)
	h.setFlags(flags)
	buf.PutU16LE(h, hdrMagic, HeaderMagic)
}
