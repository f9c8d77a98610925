package pool

import "github.com/cockroachdb/errors"

var (
	// ErrRegionTooSmall indicates the region cannot hold the sentinels plus one block.
	ErrRegionTooSmall = errors.New("pool: region too small")

	// ErrRegionTooLarge indicates the region exceeds 32-bit block offsets.
	ErrRegionTooLarge = errors.New("pool: region too large")

	// ErrNodePoolTooSmall indicates a referenced container cannot hold its sentinels.
	ErrNodePoolTooSmall = errors.New("pool: node pool too small")

	// ErrCorrupt indicates a structural check of the block list failed.
	ErrCorrupt = errors.New("pool: block list corrupt")
)
