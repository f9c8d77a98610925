package layer

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/poolkit/pool"
	"github.com/joshuapare/poolkit/pool/container"
	"github.com/joshuapare/poolkit/pool/defrag"
	"github.com/joshuapare/poolkit/pool/region"
	"github.com/joshuapare/poolkit/pool/strategy"
)

func newInPlace(t testing.TB, size int) *strategy.FirstFit {
	t.Helper()
	c, err := container.NewInPlace(region.NewFixed(size), nil)
	require.NoError(t, err)
	return strategy.NewFirstFit(c)
}

func newReferencedDefrag(t testing.TB, size int) *defrag.Stacked {
	t.Helper()
	c, err := container.NewReferenced(region.NewFixed(size), nil)
	require.NoError(t, err)
	return defrag.New(strategy.NewFirstFit(c))
}

func addrOf(b []byte) uintptr { return uintptr(unsafe.Pointer(unsafe.SliceData(b))) }

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}

func requireFilled(t testing.TB, b []byte, v byte) {
	t.Helper()
	for i, got := range b {
		if got != v {
			require.Failf(t, "unexpected byte", "offset %d: got %#x, want %#x", i, got, v)
		}
	}
}

var _ pool.Allocator = (*strategy.FirstFit)(nil)
