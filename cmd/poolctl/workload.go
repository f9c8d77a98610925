package main

import (
	"context"
	"math/bits"
	"math/rand"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"github.com/joshuapare/poolkit/pool"
	"github.com/joshuapare/poolkit/pool/compose"
)

// workload describes a seeded random mix of allocations, frees and
// reallocations.
type workload struct {
	Ops       int
	Seed      int64
	MaxSize   int
	MaxAlign  int
	FreeRatio float64
	Workers   int
	// Beats is the number of compaction steps tried after a failed
	// allocation before it counts as a failure.
	Beats int
	// Keep leaves the surviving allocations live when the run ends.
	Keep bool
}

type workloadResult struct {
	Allocations   int           `json:"allocations"`
	Frees         int           `json:"frees"`
	Reallocations int           `json:"reallocations"`
	Failures      int           `json:"failures"`
	Beats         int           `json:"beats"`
	Live          int           `json:"live"`
	Corrupted     int           `json:"corrupted"`
	Duration      time.Duration `json:"durationNs"`
}

func (r *workloadResult) add(o workloadResult) {
	r.Allocations += o.Allocations
	r.Frees += o.Frees
	r.Reallocations += o.Reallocations
	r.Failures += o.Failures
	r.Beats += o.Beats
	r.Live += o.Live
	r.Corrupted += o.Corrupted
}

var errNeedsThreadSafe = errors.New("poolctl: more than one worker needs a thread-safe pool")

// runWorkload drives p with w. Each worker owns its allocations and stamps
// them with its own byte value so that overlapping blocks or a bad move show
// up as corruption.
func runWorkload(ctx context.Context, p *compose.Pool, w workload) (workloadResult, error) {
	if w.Workers <= 0 {
		w.Workers = 1
	}
	if w.Workers > 1 && p.ThreadSafe == nil {
		return workloadResult{}, errNeedsThreadSafe
	}
	if w.MaxSize <= 0 {
		w.MaxSize = 256
	}
	if w.MaxAlign <= 0 {
		w.MaxAlign = 1
	}

	locked := func(fn func(a pool.Allocator)) { fn(p) }
	if p.ThreadSafe != nil {
		locked = p.ThreadSafe.Locked
	}

	start := time.Now()
	results := make([]workloadResult, w.Workers)
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.Workers; i++ {
		g.Go(func() error {
			ops := w.Ops / w.Workers
			if i < w.Ops%w.Workers {
				ops++
			}
			res, err := worker(ctx, p, locked, w, w.Seed+int64(i), byte(i+1), ops)
			results[i] = res
			return err
		})
	}
	err := g.Wait()

	var total workloadResult
	for _, r := range results {
		total.add(r)
	}
	total.Duration = time.Since(start)
	if err != nil {
		return total, err
	}
	if total.Corrupted > 0 {
		return total, errors.Newf("poolctl: %d allocations lost their contents", total.Corrupted)
	}
	return total, nil
}

type liveBlock struct {
	h    pool.Handle
	size int
}

func worker(ctx context.Context, p *compose.Pool, locked func(func(pool.Allocator)), w workload,
	seed int64, stamp byte, ops int,
) (workloadResult, error) {
	var res workloadResult
	rng := rand.New(rand.NewSource(seed))
	var live []liveBlock

	intact := func(b liveBlock) bool {
		ok := true
		locked(func(a pool.Allocator) {
			for _, v := range a.Resolve(b.h)[:b.size] {
				if v != stamp {
					ok = false
					return
				}
			}
		})
		return ok
	}
	stampBlock := func(b liveBlock) {
		locked(func(a pool.Allocator) {
			buf := a.Resolve(b.h)[:b.size]
			for i := range buf {
				buf[i] = stamp
			}
		})
	}

	for i := 0; i < ops; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		size := 1 + rng.Intn(w.MaxSize)
		align := 1 << rng.Intn(bits.Len(uint(w.MaxAlign)))

		switch {
		case len(live) > 0 && rng.Float64() < w.FreeRatio:
			k := rng.Intn(len(live))
			if !intact(live[k]) {
				res.Corrupted++
			}
			if p.Free(live[k].h, false) {
				res.Frees++
			}
			live[k] = live[len(live)-1]
			live = live[:len(live)-1]

		case len(live) > 0 && rng.Intn(8) == 0:
			k := rng.Intn(len(live))
			b := live[k]
			if !intact(b) {
				res.Corrupted++
			}
			if !p.Reallocate(&b.h, size, align) {
				res.Failures++
				continue
			}
			b.size = min(b.size, size)
			live[k] = b
			res.Reallocations++

		default:
			h := p.Allocate(size, align)
			for beats := 0; h == pool.InvalidHandle && beats < w.Beats; beats++ {
				if !p.Beat() {
					break
				}
				res.Beats++
				h = p.Allocate(size, align)
			}
			if h == pool.InvalidHandle {
				res.Failures++
				continue
			}
			b := liveBlock{h, size}
			stampBlock(b)
			live = append(live, b)
			res.Allocations++
		}
	}

	for _, b := range live {
		if !intact(b) {
			res.Corrupted++
		}
	}
	if w.Keep {
		res.Live = len(live)
		return res, nil
	}
	for _, b := range live {
		if p.Free(b.h, false) {
			res.Frees++
		}
	}
	return res, nil
}
