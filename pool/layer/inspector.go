package layer

import (
	"io"
	"math/bits"

	"github.com/cockroachdb/errors"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/joshuapare/poolkit/pool"
)

// Op identifies an instrumented operation.
type Op int

const (
	OpAllocate Op = iota
	OpFree
	OpResize
	OpReallocate
	OpBeat
	numOps
)

var opNames = [numOps]string{"allocate", "free", "resize", "reallocate", "beat"}

func (o Op) String() string {
	if o < 0 || o >= numOps {
		return "unknown"
	}
	return opNames[o]
}

// HistogramBuckets is the number of bit-length buckets. Bucket k counts
// values v with bits.Len(v) == k, so bucket 0 holds zeros and bucket k > 0
// holds [2^(k-1), 2^k).
const HistogramBuckets = 65

// Counter tracks calls and failed calls of one operation.
type Counter struct {
	Calls    uint64
	Failures uint64
}

// Snapshot is a copy of an Inspector's counters.
type Snapshot struct {
	Ops   [numOps]Counter
	Sizes [HistogramBuckets]uint64
	Align [HistogramBuckets]uint64
}

// Op returns the counter for o.
func (s *Snapshot) Op(o Op) Counter { return s.Ops[o] }

// Inspector counts calls and failures and records the distribution of
// requested sizes and alignments. It never changes what the wrapped
// allocator returns. It is not safe for concurrent use on its own; place it
// inside a ThreadSafe layer.
type Inspector struct {
	inner pool.Allocator
	snap  Snapshot
}

// NewInspector wraps inner.
func NewInspector(inner pool.Allocator) *Inspector {
	return &Inspector{inner: inner}
}

func (i *Inspector) record(o Op, ok bool) {
	i.snap.Ops[o].Calls++
	if !ok {
		i.snap.Ops[o].Failures++
	}
}

func (i *Inspector) request(size, align int) {
	i.snap.Sizes[bucket(size)]++
	i.snap.Align[bucket(align)]++
}

func bucket(v int) int {
	if v <= 0 {
		return 0
	}
	return bits.Len(uint(v))
}

func (i *Inspector) InitMem(size int, data []byte) { i.inner.InitMem(size, data) }

func (i *Inspector) Allocate(size, align int) pool.Handle {
	i.request(size, align)
	h := i.inner.Allocate(size, align)
	i.record(OpAllocate, h != pool.InvalidHandle)
	return h
}

func (i *Inspector) Free(h pool.Handle, force bool) bool {
	ok := i.inner.Free(h, force)
	i.record(OpFree, ok)
	return ok
}

func (i *Inspector) Resize(h *pool.Handle, size, align int) bool {
	i.request(size, align)
	ok := i.inner.Resize(h, size, align)
	i.record(OpResize, ok)
	return ok
}

// Reallocate forwards to the wrapped allocator when it can reallocate and
// fails otherwise.
func (i *Inspector) Reallocate(h *pool.Handle, size, align int) bool {
	i.request(size, align)
	ok := false
	if r, can := i.inner.(pool.Reallocating); can {
		ok = r.Reallocate(h, size, align)
	}
	i.record(OpReallocate, ok)
	return ok
}

func (i *Inspector) Beat() bool {
	ok := i.inner.Beat()
	i.record(OpBeat, ok)
	return ok
}

func (i *Inspector) Resolve(h pool.Handle) []byte { return i.inner.Resolve(h) }
func (i *Inspector) Size(h pool.Handle) int       { return i.inner.Size(h) }
func (i *Inspector) Owns(h pool.Handle) bool      { return i.inner.Owns(h) }
func (i *Inspector) MemSize() int                 { return i.inner.MemSize() }
func (i *Inspector) MemFree() int                 { return i.inner.MemFree() }
func (i *Inspector) FragmentCount() int           { return i.inner.FragmentCount() }

// Snapshot returns a copy of the counters.
func (i *Inspector) Snapshot() Snapshot { return i.snap }

// Reset clears the counters.
func (i *Inspector) Reset() { i.snap = Snapshot{} }

// Report writes the counters and both histograms to w, formatting numbers
// for tag. Empty histogram buckets are skipped. A beat that finds nothing
// to move counts as a failure.
func (i *Inspector) Report(w io.Writer, tag language.Tag) error {
	p := message.NewPrinter(tag)
	s := i.snap

	if _, err := p.Fprintf(w, "%-12s %14s %14s\n", "operation", "calls", "failures"); err != nil {
		return errors.Wrap(err, "inspector: write report")
	}
	for o := Op(0); o < numOps; o++ {
		c := s.Ops[o]
		if _, err := p.Fprintf(w, "%-12s %14d %14d\n", o, c.Calls, c.Failures); err != nil {
			return errors.Wrap(err, "inspector: write report")
		}
	}
	if err := writeHistogram(p, w, "request sizes", s.Sizes[:]); err != nil {
		return err
	}
	return writeHistogram(p, w, "alignments", s.Align[:])
}

func writeHistogram(p *message.Printer, w io.Writer, title string, h []uint64) error {
	if _, err := p.Fprintf(w, "\n%s\n", title); err != nil {
		return errors.Wrap(err, "inspector: write histogram")
	}
	for k, n := range h {
		if n == 0 {
			continue
		}
		lo, hi := BucketRange(k)
		if _, err := p.Fprintf(w, "  [%d, %d) %14d\n", lo, hi, n); err != nil {
			return errors.Wrap(err, "inspector: write histogram")
		}
	}
	return nil
}

// BucketRange returns the half-open value range [lo, hi) counted by bucket k.
// The top bucket reports hi as 0 because 2^64 does not fit.
func BucketRange(k int) (lo, hi uint64) {
	if k <= 0 {
		return 0, 1
	}
	lo = 1 << (k - 1)
	if k < 64 {
		hi = 1 << k
	}
	return lo, hi
}

var _ pool.Reallocating = (*Inspector)(nil)
