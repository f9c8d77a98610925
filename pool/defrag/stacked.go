// Package defrag adds stack compaction to a placement strategy.
//
// Each Beat slides one movable block down into the free block in front of it
// and merges the gap it leaves behind. Over many beats long-lived allocations
// migrate toward the start of the region and free space collects at the end.
// Only containers that address blocks through stable handles (referenced
// containers) can be compacted; for everything else Beat is a no-op.
package defrag

import (
	"github.com/cockroachdb/errors"

	"github.com/joshuapare/poolkit/internal/logger"
	"github.com/joshuapare/poolkit/pool"
)

// Inner is an allocator built directly on a container.
type Inner interface {
	pool.Allocator
	pool.ContainerAccess
}

// Stacked wraps a strategy and implements Beat.
type Stacked struct {
	Inner
	beats int
}

// New wraps inner.
func New(inner Inner) *Stacked {
	if inner == nil {
		panic(errors.AssertionFailedf("defrag: nil allocator"))
	}
	return &Stacked{Inner: inner}
}

// Beat performs one compaction step and reports whether it moved a block.
// It returns false when the container is not defragmentable or when no free
// block is followed by a movable one.
func (s *Stacked) Beat() bool {
	c := s.Container()
	if !c.Defragmentable() {
		return false
	}
	for n := c.First(); n != pool.NilNode; n = c.Next(n) {
		if !c.CanStack(n) {
			continue
		}
		gap := c.Stack(n)
		if gap == pool.NilNode {
			return false
		}
		c.Merge(gap)
		s.beats++
		logger.Debug("defrag: beat", "node", n, "beats", s.beats, "fragments", c.FragmentCount())
		return true
	}
	return false
}

// Compact runs Beat until it reports no progress or maxBeats steps have been
// taken. maxBeats <= 0 means no limit. It returns the number of steps taken.
func (s *Stacked) Compact(maxBeats int) int {
	n := 0
	for maxBeats <= 0 || n < maxBeats {
		if !s.Beat() {
			break
		}
		n++
	}
	return n
}

// Beats returns the number of successful steps since construction.
func (s *Stacked) Beats() int { return s.beats }

var _ pool.Allocator = (*Stacked)(nil)
