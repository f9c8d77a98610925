// Package strategy implements placement on top of a container: first fit,
// best fit and worst fit. Each strategy is a pool.Allocator and exposes the
// container it wraps.
//
// Every allocation runs probe, split, mark in use. A failed probe or a split
// the container cannot perform returns pool.InvalidHandle and leaves the
// container untouched; there is no retry with another strategy.
package strategy

import (
	"github.com/joshuapare/poolkit/internal/logger"
	"github.com/joshuapare/poolkit/pool"
)

// base carries the operations all strategies share.
type base struct {
	c pool.Container
}

// Container returns the wrapped container.
func (b base) Container() pool.Container { return b.c }

func (b base) InitMem(size int, data []byte)       { b.c.InitMem(size, data) }
func (b base) Free(h pool.Handle, force bool) bool { return b.c.Free(h, force) }
func (b base) Resolve(h pool.Handle) []byte        { return b.c.Resolve(h) }
func (b base) Size(h pool.Handle) int              { return b.c.Size(h) }
func (b base) Owns(h pool.Handle) bool             { return b.c.Owns(h) }
func (b base) MemSize() int                        { return b.c.MemSize() }
func (b base) MemFree() int                        { return b.c.MemFree() }
func (b base) FragmentCount() int                  { return b.c.FragmentCount() }

// Resize resizes *h in place. The handle never changes; align has no effect
// because the block does not move.
func (b base) Resize(h *pool.Handle, size, _ int) bool {
	if h == nil || *h == pool.InvalidHandle {
		return false
	}
	return b.c.ReSize(*h, size)
}

// Beat never compacts; wrap the strategy in defrag.Stacked for that.
func (b base) Beat() bool { return false }

func (b base) place(n pool.NodeID, size, align int) pool.Handle {
	s := b.c.Split(n, size, align)
	if s == pool.NilNode {
		logger.Debug("strategy: split failed", "node", n, "size", size, "align", align)
		return pool.InvalidHandle
	}
	return b.c.MarkUsed(s)
}

// FirstFit takes the empty hint when it fits, else the first fitting free
// block in address order.
type FirstFit struct{ base }

// NewFirstFit wraps c.
func NewFirstFit(c pool.Container) *FirstFit { return &FirstFit{base{c}} }

func (s *FirstFit) Allocate(size, align int) pool.Handle {
	if size <= 0 {
		return pool.InvalidHandle
	}
	if hint := s.c.EmptyHint(); hint != pool.NilNode && s.c.Fits(hint, size, align) {
		return s.place(hint, size, align)
	}
	for n := s.c.First(); n != pool.NilNode; n = s.c.Next(n) {
		if s.c.Fits(n, size, align) {
			return s.place(n, size, align)
		}
	}
	logger.Debug("firstfit: no free block", "size", size, "align", align, "free", s.MemFree())
	return pool.InvalidHandle
}

// BestFit takes the smallest fitting free block. A block of exactly the
// requested size ends the scan.
type BestFit struct{ base }

// NewBestFit wraps c.
func NewBestFit(c pool.Container) *BestFit { return &BestFit{base{c}} }

func (s *BestFit) Allocate(size, align int) pool.Handle {
	if size <= 0 {
		return pool.InvalidHandle
	}
	best, bestSize := pool.NilNode, 0
	for n := s.c.First(); n != pool.NilNode; n = s.c.Next(n) {
		if !s.c.Fits(n, size, align) {
			continue
		}
		ns := s.c.NodeSize(n)
		if ns == size {
			best = n
			break
		}
		if best == pool.NilNode || ns < bestSize {
			best, bestSize = n, ns
		}
	}
	if best == pool.NilNode {
		logger.Debug("bestfit: no free block", "size", size, "align", align, "free", s.MemFree())
		return pool.InvalidHandle
	}
	return s.place(best, size, align)
}

// WorstFit takes the largest fitting free block.
type WorstFit struct{ base }

// NewWorstFit wraps c.
func NewWorstFit(c pool.Container) *WorstFit { return &WorstFit{base{c}} }

func (s *WorstFit) Allocate(size, align int) pool.Handle {
	if size <= 0 {
		return pool.InvalidHandle
	}
	worst, worstSize := pool.NilNode, 0
	for n := s.c.First(); n != pool.NilNode; n = s.c.Next(n) {
		if !s.c.Fits(n, size, align) {
			continue
		}
		if ns := s.c.NodeSize(n); worst == pool.NilNode || ns > worstSize {
			worst, worstSize = n, ns
		}
	}
	if worst == pool.NilNode {
		logger.Debug("worstfit: no free block", "size", size, "align", align, "free", s.MemFree())
		return pool.InvalidHandle
	}
	return s.place(worst, size, align)
}

var (
	_ pool.Allocator       = (*FirstFit)(nil)
	_ pool.Allocator       = (*BestFit)(nil)
	_ pool.Allocator       = (*WorstFit)(nil)
	_ pool.ContainerAccess = (*FirstFit)(nil)
)
