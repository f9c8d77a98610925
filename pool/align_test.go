package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAlignHelpers(t *testing.T) {
	assert.Equal(t, uintptr(8), AlignUp(1, 8))
	assert.Equal(t, uintptr(8), AlignUp(8, 8))
	assert.Equal(t, uintptr(16), AlignUp(9, 16))
	assert.Equal(t, uintptr(7), AlignUp(7, 1))

	assert.Equal(t, uintptr(0), AlignDown(7, 8))
	assert.Equal(t, uintptr(64), AlignDown(127, 64))

	assert.True(t, IsAligned(128, 64))
	assert.False(t, IsAligned(130, 4))
}

func TestNormalizeAlign(t *testing.T) {
	assert.Equal(t, 1, NormalizeAlign(0))
	assert.Equal(t, 1, NormalizeAlign(-8))
	assert.Equal(t, 1, NormalizeAlign(1))
	assert.Equal(t, 64, NormalizeAlign(64))
	assert.Panics(t, func() { NormalizeAlign(12) })
}
