package container

import "github.com/joshuapare/poolkit/pool"

const (
	// DefaultMinFragment is the smallest free remainder worth a node of its
	// own. Smaller tails are folded into the allocation.
	DefaultMinFragment = 16

	// DefaultNodeCount is the node pool capacity used when Options.NodeCount is zero.
	DefaultNodeCount = 1024
)

// Options configures a container. The zero value selects the defaults.
type Options struct {
	// MinFragment is the smallest free remainder a split or shrink leaves as
	// its own block. Default: DefaultMinFragment.
	MinFragment int

	// BoundsCheck validates every freed handle even when the caller does not
	// force it.
	BoundsCheck bool

	// NodeCount is the node pool capacity of a referenced container,
	// including the reserved slot 0 and both sentinels.
	// Default: DefaultNodeCount. Ignored by in-place containers.
	NodeCount int

	// Tracker, when set, receives every byte range the container writes
	// (headers, moved blocks).
	Tracker pool.DirtyTracker
}

func (o *Options) withDefaults() Options {
	var out Options
	if o != nil {
		out = *o
	}
	if out.MinFragment <= 0 {
		out.MinFragment = DefaultMinFragment
	}
	if out.NodeCount <= 0 {
		out.NodeCount = DefaultNodeCount
	}
	return out
}
