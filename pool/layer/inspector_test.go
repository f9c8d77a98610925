package layer

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/joshuapare/poolkit/pool"
)

func TestInspector_Counts(t *testing.T) {
	in := NewInspector(newInPlace(t, 1024))

	var hs []pool.Handle
	for i := 0; i < 3; i++ {
		h := in.Allocate(100, 8)
		require.NotEqual(t, pool.InvalidHandle, h)
		hs = append(hs, h)
	}
	assert.Equal(t, pool.InvalidHandle, in.Allocate(4096, 1))

	assert.True(t, in.Resize(&hs[2], 150, 8))
	assert.False(t, in.Resize(&hs[0], 4096, 8))
	for _, h := range hs {
		assert.True(t, in.Free(h, false))
	}
	assert.False(t, in.Beat())
	assert.False(t, in.Reallocate(&hs[0], 10, 1), "inner cannot reallocate")

	s := in.Snapshot()
	assert.Equal(t, Counter{Calls: 4, Failures: 1}, s.Op(OpAllocate))
	assert.Equal(t, Counter{Calls: 2, Failures: 1}, s.Op(OpResize))
	assert.Equal(t, Counter{Calls: 3}, s.Op(OpFree))
	assert.Equal(t, Counter{Calls: 1, Failures: 1}, s.Op(OpBeat))
	assert.Equal(t, Counter{Calls: 1, Failures: 1}, s.Op(OpReallocate))

	// 100 -> bucket 7, 150 -> 8, 4096 -> 13, 10 -> 4
	assert.Equal(t, uint64(3), s.Sizes[7])
	assert.Equal(t, uint64(1), s.Sizes[8])
	assert.Equal(t, uint64(2), s.Sizes[13])
	assert.Equal(t, uint64(1), s.Sizes[4])
	// align 8 -> bucket 4, align 1 -> bucket 1
	assert.Equal(t, uint64(5), s.Align[4])
	assert.Equal(t, uint64(2), s.Align[1])

	in.Reset()
	assert.Equal(t, Snapshot{}, in.Snapshot())
}

func TestInspector_DoesNotChangeOutcomes(t *testing.T) {
	bare := newInPlace(t, 8192)
	in := NewInspector(newInPlace(t, 8192))
	bareBase := addrOf(bare.Resolve(bare.Allocate(1, 1)))
	inBase := addrOf(in.Resolve(in.Allocate(1, 1)))

	rng := rand.New(rand.NewSource(42))
	var bh, ih []pool.Handle
	for i := 0; i < 500; i++ {
		if len(bh) > 0 && rng.Intn(3) == 0 {
			k := rng.Intn(len(bh))
			assert.Equal(t, bare.Free(bh[k], false), in.Free(ih[k], false))
			bh = append(bh[:k], bh[k+1:]...)
			ih = append(ih[:k], ih[k+1:]...)
			continue
		}
		size, align := 1+rng.Intn(200), 1<<rng.Intn(5)
		b := bare.Allocate(size, align)
		h := in.Allocate(size, align)
		require.Equal(t, b == pool.InvalidHandle, h == pool.InvalidHandle, "step %d", i)
		if b == pool.InvalidHandle {
			continue
		}
		assert.Equal(t, uintptr(b)-bareBase, uintptr(h)-inBase, "step %d", i)
		bh = append(bh, b)
		ih = append(ih, h)
		assert.Equal(t, bare.MemFree(), in.MemFree())
		assert.Equal(t, bare.FragmentCount(), in.FragmentCount())
	}
}

func TestInspector_Report(t *testing.T) {
	in := NewInspector(newInPlace(t, 64<<10))
	for i := 0; i < 1500; i++ {
		require.NotEqual(t, pool.InvalidHandle, in.Allocate(1, 1))
	}

	var en bytes.Buffer
	require.NoError(t, in.Report(&en, language.English))
	out := en.String()
	assert.Contains(t, out, "allocate")
	assert.Contains(t, out, "1,500")
	assert.Contains(t, out, "request sizes")
	assert.Contains(t, out, "[1, 2)")
	assert.NotContains(t, out, "[2, 4)", "empty buckets are skipped")

	var de bytes.Buffer
	require.NoError(t, in.Report(&de, language.German))
	assert.Contains(t, de.String(), "1.500")
}

func TestBucketRange(t *testing.T) {
	lo, hi := BucketRange(0)
	assert.Equal(t, []uint64{0, 1}, []uint64{lo, hi})
	lo, hi = BucketRange(7)
	assert.Equal(t, []uint64{64, 128}, []uint64{lo, hi})
	lo, hi = BucketRange(64)
	assert.Equal(t, []uint64{1 << 63, 0}, []uint64{lo, hi})
	assert.Equal(t, "allocate", OpAllocate.String())
	assert.Equal(t, "unknown", Op(42).String())
}
