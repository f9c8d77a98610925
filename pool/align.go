package pool

import (
	"math/bits"

	"github.com/cockroachdb/errors"
)

// NormalizeAlign returns a usable alignment: values below 1 become 1.
// Alignments that are not a power of two are a programming error.
func NormalizeAlign(align int) int {
	if align <= 1 {
		return 1
	}
	if bits.OnesCount(uint(align)) != 1 {
		panic(errors.AssertionFailedf("pool: alignment %d is not a power of two", align))
	}
	return align
}

// AlignUp returns v rounded up to a multiple of align (a power of two).
//
// Example:
//
//	AlignUp(1, 8)  = 8
//	AlignUp(8, 8)  = 8
//	AlignUp(9, 16) = 16
func AlignUp(v, align uintptr) uintptr {
	return (v + align - 1) &^ (align - 1)
}

// AlignDown returns v rounded down to a multiple of align (a power of two).
func AlignDown(v, align uintptr) uintptr {
	return v &^ (align - 1)
}

// IsAligned reports whether v is a multiple of align.
func IsAligned(v, align uintptr) bool {
	return v&(align-1) == 0
}
