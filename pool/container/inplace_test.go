package container

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/poolkit/pool"
	"github.com/joshuapare/poolkit/pool/region"
)

func newInPlace(t testing.TB, size int, opts *Options) (*InPlace, pool.Region) {
	t.Helper()
	r := region.NewFixed(size)
	c, err := NewInPlace(r, opts)
	require.NoError(t, err)
	return c, r
}

func TestInPlace_InitLayout(t *testing.T) {
	c, r := newInPlace(t, 1024, nil)

	first := c.First()
	require.Equal(t, pool.NodeID(0), first)
	assert.True(t, c.Info(first).Sentinel)
	assert.Equal(t, 0, c.NodeSize(first))

	free := c.Next(first)
	require.Equal(t, pool.NodeID(HeaderSize), free)
	assert.True(t, c.IsFree(free))
	assert.Equal(t, 1024-3*HeaderSize, c.NodeSize(free))
	assert.Equal(t, free, c.EmptyHint())

	last := c.Next(free)
	require.Equal(t, pool.NodeID(1024-HeaderSize), last)
	info := c.Info(last)
	assert.True(t, info.Sentinel)
	assert.Equal(t, 1024, info.Offset)
	assert.Equal(t, pool.NilNode, c.Next(last))

	assert.Equal(t, 1024, c.MemSize())
	assert.Equal(t, 1024, c.MemFree())
	assert.Equal(t, 1, c.FragmentCount())
	assert.False(t, c.Defragmentable())
	assert.Equal(t, uint16(HeaderMagic), uint16(r.Bytes()[hdrMagic])|uint16(r.Bytes()[hdrMagic+1])<<8)
	assertInvariants(t, c, HeaderSize)
}

func TestInPlace_RegionTooSmall(t *testing.T) {
	_, err := NewInPlace(region.NewFixed(4*HeaderSize-1), nil)
	require.ErrorIs(t, err, pool.ErrRegionTooSmall)
}

func TestInPlace_DynamicRegion(t *testing.T) {
	c, err := NewInPlace(region.NewDynamic(), nil)
	require.NoError(t, err)
	assert.Equal(t, pool.NilNode, c.First())
	assert.Equal(t, 0, c.MemSize())
	assert.Equal(t, pool.InvalidHandle, allocate(c, 8, 1))
	assert.False(t, c.Free(pool.Handle(0x1000), true))

	backing := make([]byte, 4096)
	c.InitMem(2048, backing)
	assert.Equal(t, 2048, c.MemSize())
	h := allocate(c, 64, 8)
	require.NotEqual(t, pool.InvalidHandle, h)
	fill(c.Resolve(h), 0x5A)
	assertInvariants(t, c, HeaderSize)

	// rebinding too little memory leaves the container empty
	c.InitMem(16, backing)
	assert.Equal(t, 0, c.MemSize())
	assert.Equal(t, pool.NilNode, c.First())
}

func TestInPlace_SplitStartAligned(t *testing.T) {
	c, r := newInPlace(t, 1024, nil)

	h := allocate(c, 100, 1)
	require.Equal(t, pool.Handle(r.Base()+2*HeaderSize), h)
	assert.Equal(t, 100, c.Size(h))
	assert.Equal(t, 1024-(100+HeaderSize), c.MemFree())

	tail := c.Next(c.Node(h))
	assert.Equal(t, pool.NodeID(2*HeaderSize+100), tail)
	assert.True(t, c.IsFree(tail))
	assert.Equal(t, tail, c.EmptyHint())
	assertInvariants(t, c, HeaderSize)
}

func TestInPlace_SplitFoldsSmallTail(t *testing.T) {
	c, _ := newInPlace(t, 1024, nil)
	avail := 1024 - 3*HeaderSize

	h := allocate(c, avail-20, 1)
	require.NotEqual(t, pool.InvalidHandle, h)
	assert.Equal(t, avail, c.Size(h), "tail too small for a header is folded")
	assert.Equal(t, 0, c.FragmentCount())
	assert.Equal(t, pool.NilNode, c.EmptyHint())
	assert.Equal(t, 2*HeaderSize, c.MemFree())
	assertInvariants(t, c, HeaderSize)
}

func TestInPlace_SplitAligned(t *testing.T) {
	c, _ := newInPlace(t, 4096, nil)

	for _, align := range []int{1, 2, 8, 64, 256, 1024} {
		h := allocate(c, 24, align)
		require.NotEqual(t, pool.InvalidHandle, h, "align %d", align)
		assert.Zero(t, uintptr(h)%uintptr(align), "align %d", align)
		assert.GreaterOrEqual(t, len(c.Resolve(h)), 24)
		assertInvariants(t, c, HeaderSize)
	}
}

func TestInPlace_SplitUnalignedKeepsPrefix(t *testing.T) {
	c, r := newInPlace(t, 4096, nil)

	// push the free block start off a 512 boundary
	first := allocate(c, 40, 1)
	require.NotEqual(t, pool.InvalidHandle, first)

	free := c.Next(c.Node(first))
	h := allocate(c, 64, 512)
	require.NotEqual(t, pool.InvalidHandle, h)
	assert.Zero(t, uintptr(h)%512)

	n := c.Node(h)
	if n != free {
		// the original free block stays in front as the prefix
		assert.True(t, c.IsFree(free))
		assert.Equal(t, free, c.Prev(n))
		assert.GreaterOrEqual(t, c.NodeSize(free), DefaultMinFragment)
	}
	assert.True(t, uintptr(h) > r.Base())
	assertInvariants(t, c, HeaderSize)
}

func TestInPlace_FailureLeavesStateUntouched(t *testing.T) {
	c, r := newInPlace(t, 1024, nil)
	before := append([]byte(nil), r.Bytes()...)

	assert.Equal(t, pool.InvalidHandle, allocate(c, 2048, 1))
	assert.Equal(t, pool.InvalidHandle, allocate(c, 0, 1))
	assert.Equal(t, pool.NilNode, c.Split(c.Next(c.First()), 5000, 1))
	assert.Equal(t, before, r.Bytes())
	assert.Equal(t, 1024, c.MemFree())
}

func TestInPlace_FreeChecks(t *testing.T) {
	c, _ := newInPlace(t, 1024, nil)

	assert.True(t, c.Free(pool.InvalidHandle, true), "invalid handle is a no-op")

	h := allocate(c, 100, 1)
	require.NotEqual(t, pool.InvalidHandle, h)

	assert.False(t, c.Free(h+1, true), "interior address")
	assert.False(t, c.Free(h+100000, true), "outside region")
	assert.True(t, c.Owns(h))
	assert.False(t, c.Owns(h+100000))

	require.True(t, c.Free(h, true))
	assert.False(t, c.Free(h, true), "double free with bounds check")
	assert.False(t, c.Free(h, false), "double free without bounds check")
	assert.Equal(t, 1024, c.MemFree())
	assert.Equal(t, 1, c.FragmentCount())
	assertInvariants(t, c, HeaderSize)
}

func TestInPlace_BoundsCheckOption(t *testing.T) {
	c, _ := newInPlace(t, 1024, &Options{BoundsCheck: true})
	a := allocate(c, 64, 1)
	b := allocate(c, 64, 1)
	require.NotEqual(t, pool.InvalidHandle, b)

	// the retired header inside a merged block must not be accepted
	require.True(t, c.Free(b, false))
	assert.False(t, c.Free(b, false))
	require.True(t, c.Free(a, false))
	assertInvariants(t, c, HeaderSize)
}

func TestInPlace_MergeIsTransitive(t *testing.T) {
	c, _ := newInPlace(t, 1024, nil)
	var hs []pool.Handle
	for range 4 {
		h := allocate(c, 50, 1)
		require.NotEqual(t, pool.InvalidHandle, h)
		hs = append(hs, h)
	}

	require.True(t, c.Free(hs[0], true))
	require.True(t, c.Free(hs[2], true))
	assert.Equal(t, 3, c.FragmentCount())

	require.True(t, c.Free(hs[1], true))
	assert.Equal(t, 2, c.FragmentCount(), "three neighbours collapse into one block")
	merged := c.Next(c.First())
	assert.True(t, c.IsFree(merged))
	assert.Equal(t, 3*50+2*HeaderSize, c.NodeSize(merged))
	assertInvariants(t, c, HeaderSize)

	require.True(t, c.Free(hs[3], true))
	assert.Equal(t, 1, c.FragmentCount())
	assert.Equal(t, 1024, c.MemFree())
	assertInvariants(t, c, HeaderSize)
}

func TestInPlace_ReSize(t *testing.T) {
	c, _ := newInPlace(t, 1024, nil)
	a := allocate(c, 100, 1) // data 32..132
	b := allocate(c, 100, 1) // data 148..248
	require.NotEqual(t, pool.InvalidHandle, b)
	require.Equal(t, 1024-2*(100+HeaderSize), c.MemFree())

	// shrink into a free successor: its header moves left
	require.True(t, c.ReSize(b, 50))
	assert.Equal(t, 50, c.Size(b))
	assert.Equal(t, 842, c.MemFree())
	assertInvariants(t, c, HeaderSize)

	// tail too small for a header: kept as slack
	require.True(t, c.ReSize(a, 90))
	assert.Equal(t, 100, c.Size(a))
	assert.Equal(t, 842, c.MemFree())

	// tail large enough: a new free block is split off
	require.True(t, c.ReSize(a, 60))
	assert.Equal(t, 60, c.Size(a))
	assert.Equal(t, 882, c.MemFree())
	assert.Equal(t, 2, c.FragmentCount())
	assertInvariants(t, c, HeaderSize)

	// grow absorbing the whole successor
	require.True(t, c.ReSize(a, 100))
	assert.Equal(t, 100, c.Size(a))
	assert.Equal(t, 842, c.MemFree())
	assert.Equal(t, 1, c.FragmentCount())
	assertInvariants(t, c, HeaderSize)

	// successor in use
	assert.False(t, c.ReSize(a, 101))

	// grow moving the successor's header right
	require.True(t, c.ReSize(b, 300))
	assert.Equal(t, 300, c.Size(b))
	assert.Equal(t, 592, c.MemFree())
	assertInvariants(t, c, HeaderSize)

	assert.False(t, c.ReSize(b, 1000))
	assert.False(t, c.ReSize(b, 0))
	assert.True(t, c.ReSize(b, 300), "same size is a no-op")
	assertInvariants(t, c, HeaderSize)
}

func TestInPlace_SetLocked(t *testing.T) {
	c, _ := newInPlace(t, 1024, nil)
	h := allocate(c, 32, 1)
	require.True(t, c.SetLocked(h, true))
	assert.True(t, c.Info(c.Node(h)).Locked)
	assert.False(t, c.CanStack(c.EmptyHint()))
	require.True(t, c.Free(h, true))
	assert.False(t, c.SetLocked(h, true))
}

func TestInPlace_DirtyTracking(t *testing.T) {
	tr := region.NewTracker(4096)
	c, _ := newInPlace(t, 8192, &Options{Tracker: tr})
	require.Positive(t, tr.Len(), "InitMem writes headers")

	tr.Reset()
	h := allocate(c, 5000, 1)
	require.NotEqual(t, pool.InvalidHandle, h)
	tail := int(c.Next(c.Node(h)))
	covered := false
	for _, rg := range tr.Coalesced() {
		if rg.Off <= tail && tail+HeaderSize <= rg.Off+rg.Len {
			covered = true
		}
	}
	assert.True(t, covered, "tail header at %d must be dirty", tail)
}

func TestInPlace_WriteDetailedMap(t *testing.T) {
	c, _ := newInPlace(t, 1024, nil)
	h := allocate(c, 100, 1)
	require.True(t, c.SetLocked(h, true))

	out, err := WriteDetailedMap(c)
	require.NoError(t, err)

	var doc struct {
		MemSize        int  `json:"memSize"`
		MemFree        int  `json:"memFree"`
		Fragments      int  `json:"fragments"`
		Defragmentable bool `json:"defragmentable"`
		Allocations    int  `json:"allocations"`
		Blocks         []struct {
			Offset   int    `json:"offset"`
			Size     int    `json:"size"`
			InUse    bool   `json:"inUse"`
			Locked   bool   `json:"locked"`
			Sentinel bool   `json:"sentinel"`
			Handle   string `json:"handle"`
		} `json:"blocks"`
	}
	require.NoError(t, json.Unmarshal(out, &doc))
	assert.Equal(t, 1024, doc.MemSize)
	assert.Equal(t, c.MemFree(), doc.MemFree)
	assert.Equal(t, 1, doc.Fragments)
	assert.Equal(t, 1, doc.Allocations)
	require.Len(t, doc.Blocks, 4)
	assert.True(t, doc.Blocks[0].Sentinel)
	assert.True(t, doc.Blocks[1].InUse)
	assert.True(t, doc.Blocks[1].Locked)
	assert.Equal(t, 100, doc.Blocks[1].Size)
	assert.NotEmpty(t, doc.Blocks[1].Handle)
	assert.False(t, doc.Blocks[2].InUse)
	assert.True(t, doc.Blocks[3].Sentinel)
}

func TestInPlace_RandomOps(t *testing.T) {
	for _, seed := range []int64{1, 7, 42, 1337} {
		rng := rand.New(rand.NewSource(seed))
		c, _ := newInPlace(t, 64*1024, nil)
		live := map[pool.Handle]byte{}
		var order []pool.Handle

		for step := 0; step < 3000; step++ {
			switch op := rng.Intn(10); {
			case op < 5:
				size := 1 + rng.Intn(700)
				align := 1 << rng.Intn(7)
				h := allocate(c, size, align)
				if h == pool.InvalidHandle {
					continue
				}
				require.Zero(t, uintptr(h)%uintptr(align))
				b := c.Resolve(h)
				require.GreaterOrEqual(t, len(b), size)
				v := byte(rng.Intn(255) + 1)
				fill(b, v)
				live[h] = v
				order = append(order, h)
			case op < 8 && len(order) > 0:
				i := rng.Intn(len(order))
				h := order[i]
				requireFilled(t, c.Resolve(h), live[h])
				require.True(t, c.Free(h, true))
				require.False(t, c.Free(h, true))
				delete(live, h)
				order = append(order[:i], order[i+1:]...)
			case len(order) > 0:
				h := order[rng.Intn(len(order))]
				if c.ReSize(h, 1+rng.Intn(900)) {
					fill(c.Resolve(h), live[h])
				}
			}
			if step%50 == 0 {
				assertInvariants(t, c, HeaderSize)
				for h, v := range live {
					requireFilled(t, c.Resolve(h), v)
				}
			}
		}

		for _, h := range order {
			require.True(t, c.Free(h, true))
		}
		assertInvariants(t, c, HeaderSize)
		assert.Equal(t, 64*1024, c.MemFree(), "seed %d", seed)
		assert.Equal(t, 1, c.FragmentCount(), "seed %d", seed)
	}
}
