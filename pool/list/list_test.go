package list

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/poolkit/pool"
)

type sliceLinks struct {
	prev []pool.NodeID
	next []pool.NodeID
}

func newSliceLinks(n int) *sliceLinks {
	l := &sliceLinks{prev: make([]pool.NodeID, n), next: make([]pool.NodeID, n)}
	for i := range n {
		l.prev[i] = pool.NilNode
		l.next[i] = pool.NilNode
	}
	return l
}

func (s *sliceLinks) Prev(n pool.NodeID) pool.NodeID { return s.prev[n] }
func (s *sliceLinks) Next(n pool.NodeID) pool.NodeID { return s.next[n] }
func (s *sliceLinks) SetPrev(n, prev pool.NodeID)    { s.prev[n] = prev }
func (s *sliceLinks) SetNext(n, next pool.NodeID)    { s.next[n] = next }

func collect(l *List[*sliceLinks]) []pool.NodeID {
	var out []pool.NodeID
	for n := l.First(); n != pool.NilNode; n = l.links.Next(n) {
		out = append(out, n)
	}
	return out
}

func TestList_Empty(t *testing.T) {
	l := New(newSliceLinks(4))
	assert.Equal(t, pool.NilNode, l.First())
	assert.Equal(t, pool.NilNode, l.Last())
	assert.Equal(t, 0, l.Count())
	assert.Equal(t, pool.NilNode, l.PopFirst())
	assert.Equal(t, pool.NilNode, l.PopLast())
	require.NoError(t, l.Validate())
}

func TestList_AddFirstLast(t *testing.T) {
	l := New(newSliceLinks(8))
	l.AddLast(1)
	l.AddLast(2)
	l.AddFirst(0)
	l.AddLast(3)

	require.NoError(t, l.Validate())
	assert.Equal(t, []pool.NodeID{0, 1, 2, 3}, collect(l))
	assert.Equal(t, pool.NodeID(0), l.First())
	assert.Equal(t, pool.NodeID(3), l.Last())
	assert.Equal(t, 4, l.Count())
}

func TestList_AddBeforeBehind(t *testing.T) {
	l := New(newSliceLinks(8))
	l.AddLast(0)
	l.AddLast(4)

	l.AddBehind(2, 0) // 0 2 4
	l.AddBefore(1, 2) // 0 1 2 4
	l.AddBehind(5, 4) // 0 1 2 4 5
	l.AddBefore(6, 0) // 6 0 1 2 4 5
	l.AddBefore(3, 4) // 6 0 1 2 3 4 5

	require.NoError(t, l.Validate())
	assert.Equal(t, []pool.NodeID{6, 0, 1, 2, 3, 4, 5}, collect(l))
	assert.Equal(t, pool.NodeID(6), l.First())
	assert.Equal(t, pool.NodeID(5), l.Last())
}

func TestList_Remove(t *testing.T) {
	links := newSliceLinks(8)
	l := New(links)
	for i := range pool.NodeID(5) {
		l.AddLast(i)
	}

	l.Remove(2)
	assert.Equal(t, []pool.NodeID{0, 1, 3, 4}, collect(l))
	assert.Equal(t, pool.NilNode, links.Prev(2))
	assert.Equal(t, pool.NilNode, links.Next(2))

	l.Remove(0)
	l.Remove(4)
	assert.Equal(t, []pool.NodeID{1, 3}, collect(l))
	assert.Equal(t, pool.NodeID(1), l.First())
	assert.Equal(t, pool.NodeID(3), l.Last())
	require.NoError(t, l.Validate())

	assert.Equal(t, pool.NodeID(1), l.PopFirst())
	assert.Equal(t, pool.NodeID(3), l.PopLast())
	assert.Equal(t, 0, l.Count())
	require.NoError(t, l.Validate())
}

func TestList_Reset(t *testing.T) {
	l := New(newSliceLinks(4))
	l.AddLast(0)
	l.AddLast(1)
	l.Reset()
	assert.Equal(t, 0, l.Count())
	assert.Equal(t, pool.NilNode, l.First())
	require.NoError(t, l.Validate())
}

func TestList_NilNodePanics(t *testing.T) {
	l := New(newSliceLinks(4))
	l.AddLast(0)

	assert.Panics(t, func() { l.AddFirst(pool.NilNode) })
	assert.Panics(t, func() { l.AddLast(pool.NilNode) })
	assert.Panics(t, func() { l.AddBefore(pool.NilNode, 0) })
	assert.Panics(t, func() { l.AddBefore(1, pool.NilNode) })
	assert.Panics(t, func() { l.AddBehind(1, pool.NilNode) })
	assert.Panics(t, func() { l.Remove(pool.NilNode) })
}

func TestList_ValidateDetectsCorruption(t *testing.T) {
	links := newSliceLinks(4)
	l := New(links)
	l.AddLast(0)
	l.AddLast(1)
	l.AddLast(2)
	require.NoError(t, l.Validate())

	// break the back link of the middle node
	links.SetPrev(1, 2)
	require.Error(t, l.Validate())
	links.SetPrev(1, 0)
	require.NoError(t, l.Validate())

	// count drift
	l.count = 5
	require.Error(t, l.Validate())
	l.count = 3

	// cycle
	links.SetNext(2, 0)
	require.Error(t, l.Validate())
}

// Random mutations compared against a plain slice model.
func TestList_RandomOps(t *testing.T) {
	const nodes = 64
	rng := rand.New(rand.NewSource(42))
	l := New(newSliceLinks(nodes))
	var model []pool.NodeID
	linked := make(map[pool.NodeID]bool)

	indexOf := func(n pool.NodeID) int {
		for i, v := range model {
			if v == n {
				return i
			}
		}
		return -1
	}

	for step := 0; step < 5000; step++ {
		n := pool.NodeID(rng.Intn(nodes))
		if linked[n] {
			switch rng.Intn(3) {
			case 0:
				l.Remove(n)
				i := indexOf(n)
				model = append(model[:i], model[i+1:]...)
				delete(linked, n)
			case 1:
				got := l.PopFirst()
				require.Equal(t, model[0], got)
				model = model[1:]
				delete(linked, got)
			default:
				got := l.PopLast()
				require.Equal(t, model[len(model)-1], got)
				model = model[:len(model)-1]
				delete(linked, got)
			}
		} else {
			switch {
			case len(model) == 0 || rng.Intn(4) == 0:
				l.AddLast(n)
				model = append(model, n)
			case rng.Intn(3) == 0:
				l.AddFirst(n)
				model = append([]pool.NodeID{n}, model...)
			case rng.Intn(2) == 0:
				anchor := model[rng.Intn(len(model))]
				l.AddBefore(n, anchor)
				i := indexOf(anchor)
				model = append(model[:i], append([]pool.NodeID{n}, model[i:]...)...)
			default:
				anchor := model[rng.Intn(len(model))]
				l.AddBehind(n, anchor)
				i := indexOf(anchor) + 1
				model = append(model[:i], append([]pool.NodeID{n}, model[i:]...)...)
			}
			linked[n] = true
		}

		if step%97 == 0 {
			require.NoError(t, l.Validate())
			require.Equal(t, len(model), l.Count())
			if len(model) == 0 {
				require.Empty(t, collect(l))
			} else {
				require.Equal(t, model, collect(l))
			}
		}
	}
}
