// Package compose assembles ready-made pools from the building blocks in
// pool/region, pool/container, pool/strategy, pool/defrag and pool/layer.
//
// A Pool is always topped by a Reallocator, so every composed pool offers
// Reallocate. The optional layers stack in a fixed order, outermost first:
//
//	ThreadSafe -> Inspector -> Reallocator -> Fallback -> Stacked -> strategy -> container
package compose

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/joshuapare/poolkit/internal/logger"
	"github.com/joshuapare/poolkit/pool"
	"github.com/joshuapare/poolkit/pool/container"
	"github.com/joshuapare/poolkit/pool/defrag"
	"github.com/joshuapare/poolkit/pool/layer"
	"github.com/joshuapare/poolkit/pool/region"
	"github.com/joshuapare/poolkit/pool/strategy"
)

// Pool is a composed allocator together with handles on its parts.
type Pool struct {
	pool.Reallocating

	// Container is the block container at the bottom of the stack.
	Container pool.Container
	// Region supplies the container's bytes.
	Region pool.Region
	// Inspector is set when the pool is instrumented.
	Inspector *layer.Inspector
	// Defrag is set when the pool compacts.
	Defrag *defrag.Stacked
	// Fallback is set when a fallback mode other than disabled is configured.
	Fallback *layer.Fallback
	// ThreadSafe is set when the pool is serialized.
	ThreadSafe *layer.ThreadSafe
}

// Flush writes dirty pages of a mapped region back to its file. It is a
// no-op for other regions.
func (p *Pool) Flush(ctx context.Context) error {
	m, ok := p.Region.(*region.Mapped)
	if !ok {
		return nil
	}
	return m.Flush(ctx)
}

// Close releases a mapped region. It is a no-op for other regions.
func (p *Pool) Close() error {
	m, ok := p.Region.(*region.Mapped)
	if !ok {
		return nil
	}
	return m.Close()
}

// Stats summarizes the container's blocks.
func (p *Pool) Stats() container.MapStats { return container.Stats(p.Container) }

// Layers describes the composition, outermost first.
type Layers struct {
	Defrag     bool
	Fallback   layer.FallbackMode
	System     layer.System // nil selects a GoHeap
	Instrument bool
	ThreadSafe bool
}

// Kind selects the container.
type Kind string

const (
	InPlace    Kind = "inplace"
	Referenced Kind = "referenced"
)

// Strategy selects placement.
type Strategy string

const (
	FirstFit Strategy = "firstfit"
	BestFit  Strategy = "bestfit"
	WorstFit Strategy = "worstfit"
)

// ErrUnknownKind is returned for container kinds other than InPlace and
// Referenced.
var ErrUnknownKind = errors.New("compose: unknown container kind")

// ErrUnknownStrategy is returned for unrecognized placement strategies.
var ErrUnknownStrategy = errors.New("compose: unknown strategy")

// ErrNotDefragmentable is returned when compaction is requested for an
// in-place container.
var ErrNotDefragmentable = errors.New("compose: container cannot be compacted")

// New builds a pool over r.
func New(r pool.Region, kind Kind, strat Strategy, opts *container.Options, l Layers) (*Pool, error) {
	if r == nil {
		return nil, errors.AssertionFailedf("compose: nil region")
	}
	if opts == nil {
		opts = &container.Options{}
	}
	if opts.Tracker == nil {
		if m, ok := r.(*region.Mapped); ok {
			o := *opts
			o.Tracker = m.Tracker()
			opts = &o
		}
	}

	var c pool.Container
	switch kind {
	case InPlace, "":
		if l.Defrag {
			return nil, ErrNotDefragmentable
		}
		ip, err := container.NewInPlace(r, opts)
		if err != nil {
			return nil, errors.Wrap(err, "compose: in-place container")
		}
		c = ip
	case Referenced:
		rc, err := container.NewReferenced(r, opts)
		if err != nil {
			return nil, errors.Wrap(err, "compose: referenced container")
		}
		c = rc
	default:
		return nil, errors.Wrapf(ErrUnknownKind, "%q", kind)
	}

	var s defrag.Inner
	switch strat {
	case FirstFit, "":
		s = strategy.NewFirstFit(c)
	case BestFit:
		s = strategy.NewBestFit(c)
	case WorstFit:
		s = strategy.NewWorstFit(c)
	default:
		return nil, errors.Wrapf(ErrUnknownStrategy, "%q", strat)
	}

	p := &Pool{Container: c, Region: r}
	var a pool.Allocator = s
	if l.Defrag {
		p.Defrag = defrag.New(s)
		a = p.Defrag
	}
	if l.Fallback != layer.FallbackDisabled {
		p.Fallback = layer.NewFallback(a, l.System, l.Fallback)
		a = p.Fallback
	}
	var top pool.Reallocating = layer.NewReallocator(a)
	if l.Instrument {
		p.Inspector = layer.NewInspector(top)
		top = p.Inspector
	}
	if l.ThreadSafe {
		p.ThreadSafe = layer.NewThreadSafe(top)
		top = p.ThreadSafe
	}
	p.Reallocating = top

	logger.Debug("compose: pool built",
		"kind", string(kind), "strategy", string(strat), "size", r.Size(),
		"defrag", l.Defrag, "fallback", l.Fallback.String(),
		"instrument", l.Instrument, "threadSafe", l.ThreadSafe)
	return p, nil
}

// InPlaceFirstFit is a single-threaded first-fit pool with in-place headers.
func InPlaceFirstFit(r pool.Region, opts *container.Options) (*Pool, error) {
	return New(r, InPlace, FirstFit, opts, Layers{})
}

// InPlaceBestFit is a single-threaded best-fit pool with in-place headers.
func InPlaceBestFit(r pool.Region, opts *container.Options) (*Pool, error) {
	return New(r, InPlace, BestFit, opts, Layers{})
}

// InPlaceWorstFit is a single-threaded worst-fit pool with in-place headers.
func InPlaceWorstFit(r pool.Region, opts *container.Options) (*Pool, error) {
	return New(r, InPlace, WorstFit, opts, Layers{})
}

// ReferencedFirstFit is a first-fit pool with out-of-band nodes and no
// compaction.
func ReferencedFirstFit(r pool.Region, opts *container.Options) (*Pool, error) {
	return New(r, Referenced, FirstFit, opts, Layers{})
}

// ReferencedDefrag is a first-fit pool with out-of-band nodes whose Beat
// compacts the region.
func ReferencedDefrag(r pool.Region, opts *container.Options) (*Pool, error) {
	return New(r, Referenced, FirstFit, opts, Layers{Defrag: true})
}

// Concurrent is a compacting referenced pool behind a mutex.
func Concurrent(r pool.Region, opts *container.Options) (*Pool, error) {
	return New(r, Referenced, FirstFit, opts, Layers{Defrag: true, ThreadSafe: true})
}

// WithFallback is an in-place first-fit pool that overflows to the Go heap.
func WithFallback(r pool.Region, opts *container.Options) (*Pool, error) {
	return New(r, InPlace, FirstFit, opts, Layers{Fallback: layer.FallbackEnabled})
}
