// Package list implements an intrusive doubly linked list. The list owns no
// memory: nodes are addressed by pool.NodeID and their prev/next links live
// wherever the Links implementation keeps them (inline headers in a region,
// or slots of a node pool).
package list

import (
	"github.com/cockroachdb/errors"

	"github.com/joshuapare/poolkit/pool"
)

// validateOnMutate walks the whole list after every mutation (compile-time toggle).
const validateOnMutate = false

// Links reads and writes the prev/next links of a node.
type Links interface {
	Prev(n pool.NodeID) pool.NodeID
	Next(n pool.NodeID) pool.NodeID
	SetPrev(n, prev pool.NodeID)
	SetNext(n, next pool.NodeID)
}

// List orders nodes whose links are stored by L.
type List[L Links] struct {
	links L
	first pool.NodeID
	last  pool.NodeID
	count int
}

// New returns an empty list over links.
func New[L Links](links L) *List[L] {
	return &List[L]{links: links, first: pool.NilNode, last: pool.NilNode}
}

// Reset forgets every node without touching their links.
func (l *List[L]) Reset() {
	l.first = pool.NilNode
	l.last = pool.NilNode
	l.count = 0
}

// First returns the head of the list, or pool.NilNode.
func (l *List[L]) First() pool.NodeID { return l.first }

// Last returns the tail of the list, or pool.NilNode.
func (l *List[L]) Last() pool.NodeID { return l.last }

// Count returns the number of linked nodes.
func (l *List[L]) Count() int { return l.count }

// AddFirst links n in front of the current head.
func (l *List[L]) AddFirst(n pool.NodeID) {
	mustNode(n)
	l.links.SetPrev(n, pool.NilNode)
	l.links.SetNext(n, l.first)
	if l.first != pool.NilNode {
		l.links.SetPrev(l.first, n)
	} else {
		l.last = n
	}
	l.first = n
	l.count++
	l.check()
}

// AddLast links n behind the current tail.
func (l *List[L]) AddLast(n pool.NodeID) {
	mustNode(n)
	l.links.SetNext(n, pool.NilNode)
	l.links.SetPrev(n, l.last)
	if l.last != pool.NilNode {
		l.links.SetNext(l.last, n)
	} else {
		l.first = n
	}
	l.last = n
	l.count++
	l.check()
}

// AddBefore links n directly in front of successor.
func (l *List[L]) AddBefore(n, successor pool.NodeID) {
	mustNode(n)
	mustNode(successor)
	prev := l.links.Prev(successor)
	l.links.SetPrev(n, prev)
	l.links.SetNext(n, successor)
	if prev != pool.NilNode {
		l.links.SetNext(prev, n)
	} else {
		l.first = n
	}
	l.links.SetPrev(successor, n)
	l.count++
	l.check()
}

// AddBehind links n directly behind predecessor.
func (l *List[L]) AddBehind(n, predecessor pool.NodeID) {
	mustNode(n)
	mustNode(predecessor)
	next := l.links.Next(predecessor)
	l.links.SetNext(n, next)
	l.links.SetPrev(n, predecessor)
	if next != pool.NilNode {
		l.links.SetPrev(next, n)
	} else {
		l.last = n
	}
	l.links.SetNext(predecessor, n)
	l.count++
	l.check()
}

// Remove unlinks n and clears its links.
func (l *List[L]) Remove(n pool.NodeID) {
	mustNode(n)
	prev := l.links.Prev(n)
	next := l.links.Next(n)
	if prev != pool.NilNode {
		l.links.SetNext(prev, next)
	} else {
		l.first = next
	}
	if next != pool.NilNode {
		l.links.SetPrev(next, prev)
	} else {
		l.last = prev
	}
	l.links.SetPrev(n, pool.NilNode)
	l.links.SetNext(n, pool.NilNode)
	l.count--
	l.check()
}

// PopFirst unlinks and returns the head, or pool.NilNode when empty.
func (l *List[L]) PopFirst() pool.NodeID {
	n := l.first
	if n != pool.NilNode {
		l.Remove(n)
	}
	return n
}

// PopLast unlinks and returns the tail, or pool.NilNode when empty.
func (l *List[L]) PopLast() pool.NodeID {
	n := l.last
	if n != pool.NilNode {
		l.Remove(n)
	}
	return n
}

// Validate walks the list in both directions and checks that every link is
// mirrored and that the walk ends at the recorded first/last after Count steps.
func (l *List[L]) Validate() error {
	if (l.first == pool.NilNode) != (l.last == pool.NilNode) {
		return errors.Newf("list: first=%d last=%d disagree on emptiness", l.first, l.last)
	}
	if l.first != pool.NilNode && l.links.Prev(l.first) != pool.NilNode {
		return errors.Newf("list: head %d has prev %d", l.first, l.links.Prev(l.first))
	}

	seen := 0
	prev := pool.NilNode
	for n := l.first; n != pool.NilNode; n = l.links.Next(n) {
		if seen > l.count {
			return errors.Newf("list: more than %d nodes reachable (cycle?)", l.count)
		}
		if l.links.Prev(n) != prev {
			return errors.Newf("list: node %d has prev %d, expected %d", n, l.links.Prev(n), prev)
		}
		prev = n
		seen++
	}
	if prev != l.last {
		return errors.Newf("list: walk ended at %d, last is %d", prev, l.last)
	}
	if seen != l.count {
		return errors.Newf("list: walked %d nodes, count is %d", seen, l.count)
	}
	return nil
}

func (l *List[L]) check() {
	if !validateOnMutate {
		return
	}
	if err := l.Validate(); err != nil {
		panic(errors.NewAssertionErrorWithWrappedErrf(err, "list: invalid after mutation"))
	}
}

func mustNode(n pool.NodeID) {
	if n == pool.NilNode {
		panic(errors.AssertionFailedf("list: nil node passed to mutator"))
	}
}
