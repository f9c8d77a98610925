package container

import (
	"math"

	"github.com/cockroachdb/errors"

	"github.com/joshuapare/poolkit/internal/logger"
	"github.com/joshuapare/poolkit/pool"
	"github.com/joshuapare/poolkit/pool/list"
)

// Referenced keeps block nodes out of band in a NodePool; the whole region is
// data. Handles are node indices, so bytes can move behind them and the
// container supports stack defragmentation.
type Referenced struct {
	region    pool.Region
	opts      Options
	mem       []byte
	base      uintptr
	nodes     *NodePool
	list      *list.List[refLinks]
	allocated int // data bytes of every in-use block
	hint      pool.NodeID
	ready     bool
}

var _ pool.Container = (*Referenced)(nil)

type refLinks struct{ p *NodePool }

func (l refLinks) Prev(n pool.NodeID) pool.NodeID { return l.p.at(n).prev }
func (l refLinks) Next(n pool.NodeID) pool.NodeID { return l.p.at(n).next }
func (l refLinks) SetPrev(n, prev pool.NodeID)    { l.p.at(n).prev = prev }
func (l refLinks) SetNext(n, next pool.NodeID)    { l.p.at(n).next = next }

// NewReferenced creates a referenced container over r with a node pool of
// opts.NodeCount slots. The pool must hold the reserved slot, both sentinels
// and one block.
func NewReferenced(r pool.Region, opts *Options) (*Referenced, error) {
	o := opts.withDefaults()
	if o.NodeCount < 4 {
		return nil, errors.Wrapf(pool.ErrNodePoolTooSmall, "referenced: %d nodes, need at least 4", o.NodeCount)
	}
	c := &Referenced{region: r, opts: o, nodes: NewNodePool(o.NodeCount)}
	c.list = list.New(refLinks{c.nodes})
	c.clear()
	if r.Size() == 0 {
		return c, nil
	}
	if err := c.reset(); err != nil {
		return nil, err
	}
	return c, nil
}

// InitMem rebinds the region and resets the container to a single free block.
func (c *Referenced) InitMem(size int, data []byte) {
	c.region.InitMem(size, data)
	if err := c.reset(); err != nil {
		logger.Warn("referenced: region rejected", "size", c.region.Size(), "error", err)
	}
}

func (c *Referenced) clear() {
	c.mem = nil
	c.base = 0
	c.list.Reset()
	c.nodes.Reset()
	c.allocated = 0
	c.hint = pool.NilNode
	c.ready = false
}

func (c *Referenced) reset() error {
	c.clear()
	mem := c.region.Bytes()
	if len(mem) == 0 {
		return errors.Wrap(pool.ErrRegionTooSmall, "referenced: empty region")
	}
	if uint64(len(mem)) > math.MaxUint32 {
		return errors.Wrapf(pool.ErrRegionTooLarge, "referenced: %d bytes", len(mem))
	}
	c.mem = mem
	c.base = c.region.Base()

	first, free, last := c.get(), c.get(), c.get()
	c.setSentinel(first, 0)
	c.nodes.at(free).data = 0
	c.setSentinel(last, len(mem))
	c.list.AddLast(first)
	c.list.AddLast(free)
	c.list.AddLast(last)

	c.hint = free
	c.ready = true
	return nil
}

func (c *Referenced) setSentinel(n pool.NodeID, data int) {
	node := c.nodes.at(n)
	node.data = uint32(data)
	node.inUse = true
	node.sentinel = true
}

// ---- traversal ----

func (c *Referenced) First() pool.NodeID { return c.list.First() }

func (c *Referenced) Next(n pool.NodeID) pool.NodeID {
	if n == pool.NilNode {
		return pool.NilNode
	}
	return c.nodes.at(n).next
}

func (c *Referenced) Prev(n pool.NodeID) pool.NodeID {
	if n == pool.NilNode {
		return pool.NilNode
	}
	return c.nodes.at(n).prev
}

func (c *Referenced) IsFree(n pool.NodeID) bool {
	return n != pool.NilNode && !c.nodes.at(n).inUse
}

// NodeSize returns the data bytes of block n: the distance to the next
// node's data.
func (c *Referenced) NodeSize(n pool.NodeID) int {
	next := c.Next(n)
	if next == pool.NilNode {
		return 0
	}
	return int(c.nodes.at(next).data) - int(c.nodes.at(n).data)
}

func (c *Referenced) Info(n pool.NodeID) pool.BlockInfo {
	node := c.nodes.at(n)
	info := pool.BlockInfo{
		Node:     n,
		Handle:   pool.InvalidHandle,
		Offset:   int(node.data),
		Size:     c.NodeSize(n),
		Align:    int(node.align),
		InUse:    node.inUse,
		Locked:   node.locked,
		Sentinel: node.sentinel,
	}
	if info.InUse && !info.Sentinel {
		info.Handle = pool.Handle(n)
	}
	return info
}

func (c *Referenced) EmptyHint() pool.NodeID { return c.hint }

// Nodes exposes the node pool for inspection.
func (c *Referenced) Nodes() *NodePool { return c.nodes }

// ---- split / merge ----

func (c *Referenced) placement(n pool.NodeID, size, align int) (int, bool) {
	if size <= 0 || !c.IsFree(n) {
		return 0, false
	}
	start := c.data(n)
	end := c.data(c.Next(n))
	d := c.alignedOff(start, uintptr(pool.NormalizeAlign(align)))
	if d > end || size > end-d {
		return 0, false
	}
	return d, true
}

func (c *Referenced) Fits(n pool.NodeID, size, align int) bool {
	_, ok := c.placement(n, size, align)
	return ok
}

// Split places the allocation at the first aligned offset of n.
//
//   - start aligned: n becomes the allocation
//   - otherwise: n keeps the free prefix and a new node holds the allocation
//
// A tail of at least MinFragment bytes gets a new free node. When the node
// pool cannot supply every node the split needs, nothing is changed and
// NilNode is returned.
func (c *Referenced) Split(n pool.NodeID, size, align int) pool.NodeID {
	d, ok := c.placement(n, size, align)
	if !ok {
		return pool.NilNode
	}
	start := c.data(n)
	end := c.data(c.Next(n))
	prefix := d > start
	tail := end-(d+size) >= c.opts.MinFragment

	need := 0
	if prefix {
		need++
	}
	if tail {
		need++
	}
	if c.nodes.Available() < need {
		logger.Debug("referenced: node pool exhausted", "need", need, "cap", c.nodes.Cap())
		return pool.NilNode
	}

	alloc := n
	if prefix {
		alloc = c.get()
		c.nodes.at(alloc).data = uint32(d)
		c.list.AddBehind(alloc, n)
	} else if c.hint == n {
		c.hint = pool.NilNode
	}
	c.nodes.at(alloc).align = uint32(pool.NormalizeAlign(align))

	if tail {
		t := c.get()
		c.nodes.at(t).data = uint32(d + size)
		c.list.AddBehind(t, alloc)
		c.noteFree(t)
	}
	return alloc
}

func (c *Referenced) MarkUsed(n pool.NodeID) pool.Handle {
	c.nodes.at(n).inUse = true
	c.allocated += c.NodeSize(n)
	if c.hint == n {
		c.hint = pool.NilNode
	}
	return pool.Handle(n)
}

// Merge coalesces free block n with all free neighbours and returns the
// consumed nodes to the pool.
func (c *Referenced) Merge(n pool.NodeID) pool.NodeID {
	if !c.IsFree(n) {
		return n
	}
	for nx := c.Next(n); c.IsFree(nx); nx = c.Next(n) {
		c.list.Remove(nx)
		c.nodes.Put(nx)
		if c.hint == nx {
			c.hint = n
		}
	}
	for pv := c.Prev(n); c.IsFree(pv); pv = c.Prev(n) {
		c.list.Remove(n)
		c.nodes.Put(n)
		if c.hint == n {
			c.hint = pv
		}
		n = pv
	}
	return n
}

// ---- handle operations ----

func (c *Referenced) Node(h pool.Handle) pool.NodeID {
	n, ok := c.lookup(h)
	if !ok {
		return pool.NilNode
	}
	return n
}

// Free releases h. The index is always range checked, so boundsCheck only
// matters to in-place containers.
func (c *Referenced) Free(h pool.Handle, _ bool) bool {
	if h == pool.InvalidHandle {
		return true
	}
	n, ok := c.lookup(h)
	if !ok {
		logger.Debug("referenced: free rejected", "handle", uintptr(h))
		return false
	}
	c.allocated -= c.NodeSize(n)
	node := c.nodes.at(n)
	node.inUse = false
	node.locked = false
	c.noteFree(c.Merge(n))
	return true
}

// ReSize changes the size of h without moving its bytes. Shrinking moves a
// free successor's start left, keeps a tail below MinFragment as slack, or
// splits off a new free node. Growing takes bytes from a free successor and
// returns the successor's node to the pool when less than MinFragment bytes
// would remain.
func (c *Referenced) ReSize(h pool.Handle, size int) bool {
	if size <= 0 {
		return false
	}
	n, ok := c.lookup(h)
	if !ok {
		return false
	}
	cur := c.NodeSize(n)
	if size == cur {
		return true
	}
	start := c.data(n)
	nx := c.Next(n)

	if size < cur {
		switch {
		case c.IsFree(nx):
			c.nodes.at(nx).data = uint32(start + size)
			c.noteFree(nx)
		case cur-size < c.opts.MinFragment:
			return true
		default:
			t, ok := c.nodes.Get()
			if !ok {
				return true
			}
			c.nodes.at(t).data = uint32(start + size)
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
	avail := c.NodeSize(nx)
	if need > avail {
		return false
	}
	if avail-need >= c.opts.MinFragment {
		c.nodes.at(nx).data += uint32(need)
	} else {
		c.list.Remove(nx)
		c.nodes.Put(nx)
		if c.hint == nx {
			c.hint = pool.NilNode
		}
		need = avail
	}
	c.allocated += need
	return true
}

func (c *Referenced) Resolve(h pool.Handle) []byte {
	n, ok := c.lookup(h)
	if !ok {
		return nil
	}
	start := c.data(n)
	end := start + c.NodeSize(n)
	return c.mem[start:end:end]
}

func (c *Referenced) Size(h pool.Handle) int {
	n, ok := c.lookup(h)
	if !ok {
		return 0
	}
	return c.NodeSize(n)
}

// Owns reports whether h is an index of this container's node pool.
func (c *Referenced) Owns(h pool.Handle) bool {
	return c.ready && h != pool.InvalidHandle && uint64(h) < uint64(c.nodes.Cap())
}

func (c *Referenced) SetLocked(h pool.Handle, locked bool) bool {
	n, ok := c.lookup(h)
	if !ok {
		return false
	}
	c.nodes.at(n).locked = locked
	return true
}

// AddressToHandle finds the live block containing addr by scanning every
// node. It returns InvalidHandle when no live block contains addr.
func (c *Referenced) AddressToHandle(addr uintptr) pool.Handle {
	if !c.ready || addr < c.base || addr >= c.base+uintptr(len(c.mem)) {
		return pool.InvalidHandle
	}
	off := int(addr - c.base)
	for n := c.First(); n != pool.NilNode; n = c.Next(n) {
		node := c.nodes.at(n)
		if !node.inUse || node.sentinel {
			continue
		}
		if start := int(node.data); off >= start && off < start+c.NodeSize(n) {
			return pool.Handle(n)
		}
	}
	return pool.InvalidHandle
}

// ---- defragmentation ----

func (c *Referenced) Defragmentable() bool { return true }

// CanStack reports whether free block n is followed by a movable in-use
// block whose alignment can be met at a lower address inside n. When the
// alignment leaves a free prefix in n, the block is only moved if the gap it
// leaves behind merges into a free successor, so a step never adds a
// fragment.
func (c *Referenced) CanStack(n pool.NodeID) bool {
	if !c.IsFree(n) {
		return false
	}
	u := c.Next(n)
	if u == pool.NilNode {
		return false
	}
	un := c.nodes.at(u)
	if !un.inUse || un.locked || un.sentinel {
		return false
	}
	start := c.data(n)
	d := c.alignedOff(start, uintptr(un.align))
	if d >= int(un.data) {
		return false
	}
	if d == start {
		return true
	}
	return c.IsFree(c.Next(u)) && c.nodes.Available() > 0
}

// Stack slides the in-use successor of free block n down to the first offset
// inside n that satisfies its alignment. The successor keeps its node and
// therefore its handle. When the new offset is the start of n, n itself
// becomes the gap behind the moved block; otherwise n stays as the alignment
// prefix and a new node describes the gap. The gap node is returned so the
// caller can merge it.
func (c *Referenced) Stack(n pool.NodeID) pool.NodeID {
	if !c.CanStack(n) {
		return pool.NilNode
	}
	u := c.Next(n)
	un := c.nodes.at(u)
	start := c.data(n)
	from := int(un.data)
	size := c.NodeSize(u)
	d := c.alignedOff(start, uintptr(un.align))

	copy(c.mem[d:d+size], c.mem[from:from+size])
	c.mark(d, size)
	un.data = uint32(d)

	gap := n
	if d == start {
		c.list.Remove(n)
		c.nodes.at(n).data = uint32(d + size)
		c.list.AddBehind(n, u)
	} else {
		gap = c.get()
		c.nodes.at(gap).data = uint32(d + size)
		c.list.AddBehind(gap, u)
		c.noteFree(gap)
	}
	logger.Debug("referenced: stacked block", "handle", u, "from", from, "to", d, "size", size)
	return gap
}

// ---- accounting ----

func (c *Referenced) MemSize() int { return len(c.mem) }
func (c *Referenced) MemFree() int { return len(c.mem) - c.allocated }

func (c *Referenced) FragmentCount() int {
	count := 0
	for n := c.First(); n != pool.NilNode; n = c.Next(n) {
		if c.IsFree(n) {
			count++
		}
	}
	return count
}

// Validate checks the list links, sentinels, address order, alignment of
// live blocks, the allocated counter, the empty hint and that every live
// node pool slot is linked.
func (c *Referenced) Validate() error {
	if !c.ready {
		return nil
	}
	if err := c.list.Validate(); err != nil {
		return errors.Mark(errors.Wrap(err, "referenced"), pool.ErrCorrupt)
	}
	if c.list.Count() != c.nodes.Live() {
		return corrupt("referenced: %d linked nodes, %d live slots", c.list.Count(), c.nodes.Live())
	}
	first, last := c.list.First(), c.list.Last()
	if !c.nodes.at(first).sentinel || c.data(first) != 0 {
		return corrupt("referenced: first node %d is not the start sentinel", first)
	}
	if !c.nodes.at(last).sentinel || c.data(last) != len(c.mem) {
		return corrupt("referenced: last node %d is not the end sentinel", last)
	}

	used := 0
	hintSeen := c.hint == pool.NilNode
	prevFree := false
	prevData := 0
	for n := first; n != pool.NilNode; n = c.Next(n) {
		node := c.nodes.at(n)
		if int(node.data) < prevData {
			return corrupt("referenced: node %d data %d below predecessor %d", n, node.data, prevData)
		}
		prevData = int(node.data)
		if node.sentinel != (n == first || n == last) {
			return corrupt("referenced: node %d sentinel flag misplaced", n)
		}
		free := !node.inUse
		if free && prevFree {
			return corrupt("referenced: adjacent free blocks at %d", n)
		}
		if !free && !node.sentinel {
			used += c.NodeSize(n)
			if !pool.IsAligned(c.base+uintptr(node.data), uintptr(node.align)) {
				return corrupt("referenced: node %d data not aligned to %d", n, node.align)
			}
		}
		if n == c.hint {
			if !free {
				return corrupt("referenced: empty hint %d is in use", n)
			}
			hintSeen = true
		}
		prevFree = free
	}
	if used != c.allocated {
		return corrupt("referenced: allocated counter %d, blocks hold %d", c.allocated, used)
	}
	if !hintSeen {
		return corrupt("referenced: empty hint %d not in list", c.hint)
	}
	return nil
}

// ---- internals ----

func (c *Referenced) data(n pool.NodeID) int { return int(c.nodes.at(n).data) }

func (c *Referenced) alignedOff(off int, align uintptr) int {
	return int(pool.AlignUp(c.base+uintptr(off), align) - c.base)
}

// get takes a node the caller has already checked is available.
func (c *Referenced) get() pool.NodeID {
	n, ok := c.nodes.Get()
	if !ok {
		panic(errors.AssertionFailedf("referenced: node pool exhausted"))
	}
	return n
}

func (c *Referenced) lookup(h pool.Handle) (pool.NodeID, bool) {
	if !c.ready || h == pool.InvalidHandle || uint64(h) >= uint64(c.nodes.Cap()) {
		return pool.NilNode, false
	}
	n := pool.NodeID(h)
	if !c.nodes.Valid(n) {
		return pool.NilNode, false
	}
	node := c.nodes.at(n)
	if !node.inUse || node.sentinel {
		return pool.NilNode, false
	}
	return n, true
}

func (c *Referenced) noteFree(n pool.NodeID) {
	if c.hint == pool.NilNode || c.NodeSize(n) > c.NodeSize(c.hint) {
		c.hint = n
	}
}

func (c *Referenced) mark(off, length int) {
	if c.opts.Tracker != nil {
		c.opts.Tracker.Add(off, length)
	}
}
