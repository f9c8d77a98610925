package container

import (
	"github.com/cockroachdb/errors"

	"github.com/joshuapare/poolkit/internal/buf"
	"github.com/joshuapare/poolkit/internal/logger"
	"github.com/joshuapare/poolkit/pool"
	"github.com/joshuapare/poolkit/pool/list"
)

// InPlace keeps every block header inline, immediately before the block's
// data. Handles are absolute data addresses: they never move, so the
// container is not defragmentable.
//
// Layout after InitMem on an N byte region:
//
//	0       first sentinel header (in use, size 0)
//	16      free block header, data at 32
//	N-16    last sentinel header (in use, size 0, data at N)
//
// A block's size is the distance from its data to the next header, so list
// order is address order.
type InPlace struct {
	region    pool.Region
	opts      Options
	mem       []byte
	base      uintptr
	list      *list.List[inPlaceLinks]
	allocated int // data + header bytes of every in-use block
	hint      pool.NodeID
	ready     bool
}

var _ pool.Container = (*InPlace)(nil)

type inPlaceLinks struct{ c *InPlace }

func (l inPlaceLinks) Prev(n pool.NodeID) pool.NodeID { return l.c.hdr(n).prev() }
func (l inPlaceLinks) Next(n pool.NodeID) pool.NodeID { return l.c.hdr(n).next() }

func (l inPlaceLinks) SetPrev(n, prev pool.NodeID) {
	l.c.hdr(n).setPrev(prev)
	l.c.mark(int(n)+hdrPrev, 4)
}

func (l inPlaceLinks) SetNext(n, next pool.NodeID) {
	l.c.hdr(n).setNext(next)
	l.c.mark(int(n)+hdrNext, 4)
}

// NewInPlace creates an in-place container over r. An empty region (a
// Dynamic region before InitMem) is accepted; the container stays unusable
// until InitMem binds memory.
func NewInPlace(r pool.Region, opts *Options) (*InPlace, error) {
	c := &InPlace{region: r, opts: opts.withDefaults()}
	c.list = list.New(inPlaceLinks{c})
	c.clear()
	if r.Size() == 0 {
		return c, nil
	}
	if err := c.reset(); err != nil {
		return nil, err
	}
	return c, nil
}

// InitMem rebinds the region and resets the container to a single free
// block. A region that cannot hold the sentinels leaves the container empty.
func (c *InPlace) InitMem(size int, data []byte) {
	c.region.InitMem(size, data)
	if err := c.reset(); err != nil {
		logger.Warn("inplace: region rejected", "size", c.region.Size(), "error", err)
	}
}

func (c *InPlace) clear() {
	c.mem = nil
	c.base = 0
	c.list.Reset()
	c.allocated = 0
	c.hint = pool.NilNode
	c.ready = false
}

func (c *InPlace) reset() error {
	c.clear()
	mem := c.region.Bytes()
	size := len(mem)
	if size < 4*HeaderSize {
		return errors.Wrapf(pool.ErrRegionTooSmall, "inplace: %d bytes, need at least %d", size, 4*HeaderSize)
	}
	if uint64(size) >= uint64(pool.NilNode) {
		return errors.Wrapf(pool.ErrRegionTooLarge, "inplace: %d bytes", size)
	}
	c.mem = mem
	c.base = c.region.Base()

	first, free, last := pool.NodeID(0), pool.NodeID(HeaderSize), pool.NodeID(size-HeaderSize)
	c.writeHeader(first, 1, flagInUse|flagSentinel)
	c.writeHeader(free, 1, 0)
	c.writeHeader(last, 1, flagInUse|flagSentinel)
	c.list.AddLast(first)
	c.list.AddLast(free)
	c.list.AddLast(last)

	c.hint = free
	c.ready = true
	return nil
}

// ---- traversal ----

func (c *InPlace) First() pool.NodeID { return c.list.First() }

func (c *InPlace) Next(n pool.NodeID) pool.NodeID {
	if n == pool.NilNode {
		return pool.NilNode
	}
	return c.hdr(n).next()
}

func (c *InPlace) Prev(n pool.NodeID) pool.NodeID {
	if n == pool.NilNode {
		return pool.NilNode
	}
	return c.hdr(n).prev()
}

func (c *InPlace) IsFree(n pool.NodeID) bool {
	return n != pool.NilNode && !c.hdr(n).inUse()
}

// NodeSize returns the data bytes of block n, derived from the next header.
func (c *InPlace) NodeSize(n pool.NodeID) int {
	next := c.Next(n)
	if next == pool.NilNode {
		return 0
	}
	return int(next) - int(n) - HeaderSize
}

func (c *InPlace) Info(n pool.NodeID) pool.BlockInfo {
	h := c.hdr(n)
	info := pool.BlockInfo{
		Node:     n,
		Handle:   pool.InvalidHandle,
		Offset:   int(n) + HeaderSize,
		Size:     c.NodeSize(n),
		Align:    h.align(),
		InUse:    h.inUse(),
		Locked:   h.locked(),
		Sentinel: h.sentinel(),
	}
	if info.InUse && !info.Sentinel {
		info.Handle = c.handleOf(n)
	}
	return info
}

func (c *InPlace) EmptyHint() pool.NodeID { return c.hint }

// ---- split / merge ----

// placement returns the data offset an allocation of size bytes at align
// would get inside free block n: the block start when it is aligned, else
// the first aligned offset that leaves room for a prefix block of at least
// MinFragment bytes plus the allocation's own header.
func (c *InPlace) placement(n pool.NodeID, size, align int) (int, bool) {
	if size <= 0 || !c.IsFree(n) {
		return 0, false
	}
	a := uintptr(pool.NormalizeAlign(align))
	start := int(n) + HeaderSize
	end := int(c.Next(n))

	d := c.alignedOff(start, a)
	if d != start {
		d = c.alignedOff(start+HeaderSize+c.opts.MinFragment, a)
	}
	if d > end || size > end-d {
		return 0, false
	}
	return d, true
}

func (c *InPlace) Fits(n pool.NodeID, size, align int) bool {
	_, ok := c.placement(n, size, align)
	return ok
}

// Split places the allocation at the lowest usable aligned offset of n. When
// n starts aligned, n itself becomes the allocation; otherwise n keeps the
// free prefix and a new header is written in front of the allocation. A tail
// large enough for a header plus MinFragment bytes becomes a new free block,
// smaller tails stay with the allocation.
func (c *InPlace) Split(n pool.NodeID, size, align int) pool.NodeID {
	d, ok := c.placement(n, size, align)
	if !ok {
		return pool.NilNode
	}
	align = pool.NormalizeAlign(align)
	end := int(c.Next(n))

	alloc := n
	if d == int(n)+HeaderSize {
		c.hdr(n).setAlign(align)
		c.mark(int(n)+hdrAlign, 4)
		if c.hint == n {
			c.hint = pool.NilNode
		}
	} else {
		alloc = pool.NodeID(d - HeaderSize)
		c.writeHeader(alloc, align, 0)
		c.list.AddBehind(alloc, n)
	}

	if tail := d + size; end-tail >= HeaderSize+c.opts.MinFragment {
		t := pool.NodeID(tail)
		c.writeHeader(t, 1, 0)
		c.list.AddBehind(t, alloc)
		c.noteFree(t)
	}
	return alloc
}

func (c *InPlace) MarkUsed(n pool.NodeID) pool.Handle {
	h := c.hdr(n)
	h.setFlag(flagInUse, true)
	c.mark(int(n)+hdrFlags, 2)
	c.allocated += c.NodeSize(n) + HeaderSize
	if c.hint == n {
		c.hint = pool.NilNode
	}
	return c.handleOf(n)
}

// Merge coalesces free block n with every free block that follows and every
// free block that precedes it. Absorbed headers become data of the survivor.
func (c *InPlace) Merge(n pool.NodeID) pool.NodeID {
	if !c.IsFree(n) {
		return n
	}
	for nx := c.Next(n); c.IsFree(nx); nx = c.Next(n) {
		c.list.Remove(nx)
		c.retire(nx)
		if c.hint == nx {
			c.hint = n
		}
	}
	for pv := c.Prev(n); c.IsFree(pv); pv = c.Prev(n) {
		c.list.Remove(n)
		c.retire(n)
		if c.hint == n {
			c.hint = pv
		}
		n = pv
	}
	return n
}

// ---- handle operations ----

// Node returns the node of a live handle, or NilNode.
func (c *InPlace) Node(h pool.Handle) pool.NodeID {
	n, ok := c.lookup(h, true)
	if !ok {
		return pool.NilNode
	}
	return n
}

// Free releases h. InvalidHandle is a successful no-op. With bounds checking
// (container option or boundsCheck) h must start a linked, in-use,
// non-sentinel block with a valid magic; without it only the range and the
// in-use flag are checked.
func (c *InPlace) Free(h pool.Handle, boundsCheck bool) bool {
	if h == pool.InvalidHandle {
		return true
	}
	n, ok := c.lookup(h, boundsCheck || c.opts.BoundsCheck)
	if !ok {
		logger.Debug("inplace: free rejected", "handle", uintptr(h))
		return false
	}
	c.allocated -= c.NodeSize(n) + HeaderSize
	c.hdr(n).setFlags(0)
	c.mark(int(n)+hdrFlags, 2)
	c.noteFree(c.Merge(n))
	return true
}

// ReSize changes the size of live block h without moving it.
//
// Shrinking moves a free successor's header left, keeps a tail too small for
// a header plus MinFragment bytes as slack, or splits off a new free block.
// Growing only succeeds into a free successor with enough room; the successor
// keeps the remainder when a header plus MinFragment bytes still fit and is
// absorbed otherwise.
func (c *InPlace) ReSize(h pool.Handle, size int) bool {
	if size <= 0 {
		return false
	}
	n, ok := c.lookup(h, true)
	if !ok {
		return false
	}
	cur := c.NodeSize(n)
	if size == cur {
		return true
	}
	start := int(n) + HeaderSize
	end := start + cur
	nx := c.Next(n)

	if size < cur {
		newEnd := start + size
		switch {
		case c.IsFree(nx):
			c.moveHeader(nx, newEnd, n)
		case end-newEnd < HeaderSize+c.opts.MinFragment:
			return true
		default:
			t := pool.NodeID(newEnd)
			c.writeHeader(t, 1, 0)
			c.list.AddBehind(t, n)
			c.noteFree(t)
		}
		c.allocated -= cur - size
		return true
	}

	if !c.IsFree(nx) {
		return false
	}
	need := size - cur
	avail := HeaderSize + c.NodeSize(nx)
	if need > avail {
		return false
	}
	if avail-need >= HeaderSize+c.opts.MinFragment {
		c.moveHeader(nx, start+size, n)
		c.allocated += need
		return true
	}
	c.list.Remove(nx)
	c.retire(nx)
	if c.hint == nx {
		c.hint = pool.NilNode
	}
	c.allocated += avail
	return true
}

// Resolve returns the usable bytes of h, or nil.
func (c *InPlace) Resolve(h pool.Handle) []byte {
	n, ok := c.lookup(h, c.opts.BoundsCheck)
	if !ok {
		return nil
	}
	start := int(n) + HeaderSize
	end := start + c.NodeSize(n)
	return c.mem[start:end:end]
}

func (c *InPlace) Size(h pool.Handle) int {
	n, ok := c.lookup(h, c.opts.BoundsCheck)
	if !ok {
		return 0
	}
	return c.NodeSize(n)
}

// Owns reports whether h points into the region.
func (c *InPlace) Owns(h pool.Handle) bool {
	if !c.ready || h == pool.InvalidHandle {
		return false
	}
	addr := uintptr(h)
	return addr >= c.base && addr < c.base+uintptr(len(c.mem))
}

func (c *InPlace) SetLocked(h pool.Handle, locked bool) bool {
	n, ok := c.lookup(h, true)
	if !ok {
		return false
	}
	c.hdr(n).setFlag(flagLocked, locked)
	c.mark(int(n)+hdrFlags, 2)
	return true
}

// Defragmentable is false: callers hold raw addresses.
func (c *InPlace) Defragmentable() bool { return false }

func (c *InPlace) CanStack(pool.NodeID) bool { return false }

func (c *InPlace) Stack(pool.NodeID) pool.NodeID { return pool.NilNode }

func (c *InPlace) MemSize() int { return len(c.mem) }
func (c *InPlace) MemFree() int { return len(c.mem) - c.allocated }

// FragmentCount returns the number of free blocks.
func (c *InPlace) FragmentCount() int {
	count := 0
	for n := c.First(); n != pool.NilNode; n = c.Next(n) {
		if c.IsFree(n) {
			count++
		}
	}
	return count
}

// Validate checks the list links, header magics, sentinels, address order,
// alignment of live blocks, the allocated counter and the empty hint.
func (c *InPlace) Validate() error {
	if !c.ready {
		return nil
	}
	if err := c.list.Validate(); err != nil {
		return errors.Mark(errors.Wrap(err, "inplace"), pool.ErrCorrupt)
	}
	last := pool.NodeID(len(c.mem) - HeaderSize)
	if c.list.First() != 0 || c.list.Last() != last {
		return corrupt("inplace: list spans %d..%d, want 0..%d", c.list.First(), c.list.Last(), last)
	}

	used := 0
	hintSeen := c.hint == pool.NilNode
	prevFree := false
	for n := c.First(); n != pool.NilNode; n = c.Next(n) {
		h, ok := headerAt(c.mem, n)
		if !ok || !h.valid() {
			return corrupt("inplace: node %d has no valid header", n)
		}
		if next := h.next(); next != pool.NilNode && int(next) < int(n)+HeaderSize {
			return corrupt("inplace: node %d overlaps next header %d", n, next)
		}
		if h.sentinel() != (n == 0 || n == last) {
			return corrupt("inplace: node %d sentinel flag misplaced", n)
		}
		free := !h.inUse()
		if free && prevFree {
			return corrupt("inplace: adjacent free blocks at %d", n)
		}
		if !free && !h.sentinel() {
			used += c.NodeSize(n) + HeaderSize
			if !pool.IsAligned(uintptr(c.handleOf(n)), uintptr(h.align())) {
				return corrupt("inplace: node %d data not aligned to %d", n, h.align())
			}
		}
		if n == c.hint {
			if !free {
				return corrupt("inplace: empty hint %d is in use", n)
			}
			hintSeen = true
		}
		prevFree = free
	}
	if used != c.allocated {
		return corrupt("inplace: allocated counter %d, blocks hold %d", c.allocated, used)
	}
	if !hintSeen {
		return corrupt("inplace: empty hint %d not in list", c.hint)
	}
	return nil
}

// ---- internals ----

func (c *InPlace) hdr(n pool.NodeID) header {
	h, ok := headerAt(c.mem, n)
	if !ok {
		panic(errors.AssertionFailedf("inplace: node %d outside region of %d bytes", n, len(c.mem)))
	}
	return h
}

func (c *InPlace) handleOf(n pool.NodeID) pool.Handle {
	return pool.Handle(c.base + uintptr(n) + HeaderSize)
}

func (c *InPlace) alignedOff(off int, align uintptr) int {
	return int(pool.AlignUp(c.base+uintptr(off), align) - c.base)
}

// lookup maps a handle to its node. The address must lie where block data
// can start and the block must be in use; strict additionally requires a
// valid magic, a non-sentinel block and a predecessor that links to it.
func (c *InPlace) lookup(h pool.Handle, strict bool) (pool.NodeID, bool) {
	if !c.ready || h == pool.InvalidHandle {
		return pool.NilNode, false
	}
	addr := uintptr(h)
	if addr < c.base+2*HeaderSize || addr > c.base+uintptr(len(c.mem)-HeaderSize) {
		return pool.NilNode, false
	}
	n := pool.NodeID(addr - c.base - HeaderSize)
	hd := c.hdr(n)
	if strict {
		if !hd.valid() || hd.sentinel() {
			return pool.NilNode, false
		}
		p := hd.prev()
		if p == pool.NilNode || int(p) >= int(n) || c.hdr(p).next() != n {
			return pool.NilNode, false
		}
	}
	if !hd.inUse() {
		return pool.NilNode, false
	}
	return n, true
}

func (c *InPlace) writeHeader(n pool.NodeID, align int, flags uint16) {
	c.hdr(n).init(align, flags)
	c.mark(int(n), HeaderSize)
}

// retire clears the magic of a header that became data.
func (c *InPlace) retire(n pool.NodeID) {
	buf.PutU16LE(c.mem, int(n)+hdrMagic, 0)
	c.mark(int(n)+hdrMagic, 2)
}

// moveHeader relocates free block old to offset to, directly behind pred.
func (c *InPlace) moveHeader(old pool.NodeID, to int, pred pool.NodeID) {
	c.list.Remove(old)
	c.retire(old)
	t := pool.NodeID(to)
	c.writeHeader(t, 1, 0)
	c.list.AddBehind(t, pred)
	if c.hint == old {
		c.hint = t
	} else {
		c.noteFree(t)
	}
}

// noteFree makes n the empty hint when it is larger than the current one.
func (c *InPlace) noteFree(n pool.NodeID) {
	if c.hint == pool.NilNode || c.NodeSize(n) > c.NodeSize(c.hint) {
		c.hint = n
	}
}

func (c *InPlace) mark(off, length int) {
	if c.opts.Tracker != nil {
		c.opts.Tracker.Add(off, length)
	}
}

func corrupt(format string, args ...any) error {
	return errors.Wrapf(pool.ErrCorrupt, format, args...)
}
