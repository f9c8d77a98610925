package container

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/poolkit/pool"
)

// allocate is a plain address-order first fit used to drive containers
// without a strategy.
func allocate(c pool.Container, size, align int) pool.Handle {
	for n := c.First(); n != pool.NilNode; n = c.Next(n) {
		if !c.Fits(n, size, align) {
			continue
		}
		s := c.Split(n, size, align)
		if s == pool.NilNode {
			return pool.InvalidHandle
		}
		return c.MarkUsed(s)
	}
	return pool.InvalidHandle
}

// assertInvariants checks structure, no overlap of live blocks and
// conservation of free space. overhead is the per-block header size.
func assertInvariants(t testing.TB, c pool.Container, overhead int) {
	t.Helper()
	require.NoError(t, c.Validate())

	free := 0
	lastEnd := -1
	for n := c.First(); n != pool.NilNode; n = c.Next(n) {
		info := c.Info(n)
		if info.Sentinel {
			continue
		}
		if info.InUse {
			require.GreaterOrEqual(t, info.Offset, lastEnd, "live block %d overlaps its predecessor", n)
			lastEnd = info.Offset + info.Size
			continue
		}
		free += info.Size + overhead
	}
	require.Equal(t, c.MemFree(), free+2*overhead, "free blocks must account for MemFree")
}

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}

func requireFilled(t testing.TB, b []byte, v byte) {
	t.Helper()
	for i, got := range b {
		if got != v {
			require.Failf(t, "corrupted allocation", "byte %d = %#x, want %#x", i, got, v)
		}
	}
}

func unsafeData(b []byte) unsafe.Pointer {
	return unsafe.Pointer(unsafe.SliceData(b))
}
