package container

import (
	"github.com/cockroachdb/errors"

	"github.com/joshuapare/poolkit/pool"
)

// refNode is one slot of a NodePool. While the slot is unused, next links
// the free slot chain.
type refNode struct {
	prev     pool.NodeID
	next     pool.NodeID
	data     uint32 // region offset of the block's data
	align    uint32
	inUse    bool
	locked   bool
	sentinel bool
	live     bool // slot handed out by Get
}

// NodePool is a fixed-capacity store of block nodes addressed by index.
// Slot 0 is reserved so that index 0 can serve as the invalid handle.
type NodePool struct {
	nodes []refNode
	free  pool.NodeID // head of the free slot chain
	avail int
}

// NewNodePool creates a pool with capacity slots, slot 0 included.
func NewNodePool(capacity int) *NodePool {
	if capacity < 1 || uint64(capacity) >= uint64(pool.NilNode) {
		panic(errors.AssertionFailedf("nodepool: invalid capacity %d", capacity))
	}
	p := &NodePool{nodes: make([]refNode, capacity)}
	p.Reset()
	return p
}

// Reset returns every slot but the reserved one to the free chain.
func (p *NodePool) Reset() {
	p.free = pool.NilNode
	p.avail = 0
	for i := len(p.nodes) - 1; i >= 1; i-- {
		p.nodes[i] = refNode{next: p.free}
		p.free = pool.NodeID(i)
		p.avail++
	}
	p.nodes[0] = refNode{prev: pool.NilNode, next: pool.NilNode}
}

// Get takes a slot from the free chain. The slot comes back zeroed with nil
// links.
func (p *NodePool) Get() (pool.NodeID, bool) {
	id := p.free
	if id == pool.NilNode {
		return pool.NilNode, false
	}
	n := &p.nodes[id]
	p.free = n.next
	p.avail--
	*n = refNode{prev: pool.NilNode, next: pool.NilNode, align: 1, live: true}
	return id, true
}

// Put returns slot id to the free chain.
func (p *NodePool) Put(id pool.NodeID) {
	if id == 0 || int(id) >= len(p.nodes) || !p.nodes[id].live {
		panic(errors.AssertionFailedf("nodepool: put of unowned slot %d", id))
	}
	p.nodes[id] = refNode{next: p.free}
	p.free = id
	p.avail++
}

// Available returns the number of free slots.
func (p *NodePool) Available() int { return p.avail }

// Cap returns the number of slots, the reserved one included.
func (p *NodePool) Cap() int { return len(p.nodes) }

// Live returns the number of slots handed out.
func (p *NodePool) Live() int { return len(p.nodes) - 1 - p.avail }

// Valid reports whether id addresses a live slot.
func (p *NodePool) Valid(id pool.NodeID) bool {
	return id != 0 && int(id) < len(p.nodes) && p.nodes[id].live
}

func (p *NodePool) at(id pool.NodeID) *refNode {
	if !p.Valid(id) {
		panic(errors.AssertionFailedf("nodepool: slot %d is not live", id))
	}
	return &p.nodes[id]
}
