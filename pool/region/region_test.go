package region

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixed(t *testing.T) {
	f := NewFixed(1024)
	require.Equal(t, 1024, f.Size())
	require.Len(t, f.Bytes(), 1024)
	require.NotZero(t, f.Base())

	before := f.Base()
	f.InitMem(16, make([]byte, 16))
	assert.Equal(t, 1024, f.Size(), "InitMem must not rebind a fixed region")
	assert.Equal(t, before, f.Base())
}

func TestFixed_Empty(t *testing.T) {
	f := NewFixed(0)
	assert.Equal(t, 0, f.Size())
	assert.Zero(t, f.Base())
	assert.Panics(t, func() { NewFixed(-1) })
}

func TestDynamic(t *testing.T) {
	d := NewDynamic()
	assert.Equal(t, 0, d.Size())
	assert.Zero(t, d.Base())

	buf := make([]byte, 512)
	d.InitMem(256, buf)
	require.Equal(t, 256, d.Size())
	require.Equal(t, 256, cap(d.Bytes()), "capacity is clipped to the bound size")

	d.Bytes()[0] = 0xAB
	assert.Equal(t, byte(0xAB), buf[0], "dynamic region must alias the caller buffer")
	assert.Equal(t, base(buf), d.Base())

	d.InitMem(0, buf)
	assert.Equal(t, 0, d.Size())

	assert.Panics(t, func() { d.InitMem(1024, buf) })
}
