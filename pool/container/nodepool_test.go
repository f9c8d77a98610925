package container

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/poolkit/pool"
)

func TestNodePool_GetPut(t *testing.T) {
	p := NewNodePool(4)
	assert.Equal(t, 4, p.Cap())
	assert.Equal(t, 3, p.Available())
	assert.Equal(t, 0, p.Live())

	var got []pool.NodeID
	for {
		id, ok := p.Get()
		if !ok {
			break
		}
		got = append(got, id)
	}
	assert.Equal(t, []pool.NodeID{1, 2, 3}, got, "slot 0 is reserved")
	assert.Equal(t, 0, p.Available())
	assert.Equal(t, 3, p.Live())
	assert.True(t, p.Valid(2))
	assert.False(t, p.Valid(0))

	p.Put(2)
	assert.False(t, p.Valid(2))
	id, ok := p.Get()
	require.True(t, ok)
	assert.Equal(t, pool.NodeID(2), id, "last returned slot is reused first")
	assert.Equal(t, pool.NilNode, p.at(id).prev)
	assert.Equal(t, uint32(1), p.at(id).align)
}

func TestNodePool_Misuse(t *testing.T) {
	p := NewNodePool(3)
	assert.Panics(t, func() { p.Put(0) })
	assert.Panics(t, func() { p.Put(1) }, "slot not handed out")
	assert.Panics(t, func() { p.Put(99) })
	assert.Panics(t, func() { NewNodePool(0) })
}

func TestNodePool_Reset(t *testing.T) {
	p := NewNodePool(8)
	for range 5 {
		_, ok := p.Get()
		require.True(t, ok)
	}
	p.Reset()
	assert.Equal(t, 7, p.Available())
	assert.Equal(t, 0, p.Live())
}
