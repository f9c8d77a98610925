package region

import (
	"os"
	"sort"
)

// defaultRangeCapacity is the pre-allocated capacity for dirty ranges.
const defaultRangeCapacity = 64

// Range is a dirty byte range relative to the start of a region.
type Range struct {
	Off int
	Len int
}

// Tracker accumulates the byte ranges a container writes and coalesces them
// into page-aligned ranges for flushing.
//
// NOT thread-safe. Only one goroutine should use it at a time.
type Tracker struct {
	ranges   []Range
	pageSize int
}

// NewTracker creates a tracker that coalesces at the given page size. A
// pageSize <= 0 selects the OS page size.
func NewTracker(pageSize int) *Tracker {
	if pageSize <= 0 {
		pageSize = os.Getpagesize()
	}
	return &Tracker{
		ranges:   make([]Range, 0, defaultRangeCapacity),
		pageSize: pageSize,
	}
}

// Add records a dirty range. Empty ranges are ignored.
func (t *Tracker) Add(off, length int) {
	if length <= 0 {
		return
	}
	t.ranges = append(t.ranges, Range{Off: off, Len: length})
}

// Len returns the number of raw (uncoalesced) ranges.
func (t *Tracker) Len() int { return len(t.ranges) }

// Reset clears all tracked ranges.
func (t *Tracker) Reset() { t.ranges = t.ranges[:0] }

// Ranges returns a copy of the raw ranges.
func (t *Tracker) Ranges() []Range {
	out := make([]Range, len(t.ranges))
	copy(out, t.ranges)
	return out
}

// Coalesced page-aligns all ranges, sorts them, and merges overlapping or
// adjacent ones.
func (t *Tracker) Coalesced() []Range {
	if len(t.ranges) == 0 {
		return nil
	}

	ps := t.pageSize
	aligned := make([]Range, len(t.ranges))
	for i, r := range t.ranges {
		start := (r.Off / ps) * ps
		end := r.Off + r.Len
		if end%ps != 0 {
			end = (end/ps + 1) * ps
		}
		aligned[i] = Range{Off: start, Len: end - start}
	}

	sort.Slice(aligned, func(i, j int) bool {
		return aligned[i].Off < aligned[j].Off
	})

	merged := make([]Range, 0, len(aligned))
	current := aligned[0]
	for _, next := range aligned[1:] {
		if next.Off <= current.Off+current.Len {
			if end := next.Off + next.Len; end > current.Off+current.Len {
				current.Len = end - current.Off
			}
			continue
		}
		merged = append(merged, current)
		current = next
	}
	return append(merged, current)
}

// clip bounds r to a region of size bytes. It returns false when nothing of r
// remains.
func clip(r Range, size int) (int, int, bool) {
	start, end := r.Off, r.Off+r.Len
	if end > size {
		end = size
	}
	if start < 0 || start >= end {
		return 0, 0, false
	}
	return start, end, true
}
