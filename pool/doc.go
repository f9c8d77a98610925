// Package pool defines the shared types of the poolkit allocator suite.
//
// # Overview
//
// A pool is assembled by nesting small pieces, each wrapping the one below it
// through the same operation surface:
//
//	region -> container -> strategy -> [defrag] -> [layers]
//
// A Region supplies raw bytes. A Container carves them into an address-ordered
// block list bounded by two in-use sentinels. A strategy (first fit, best fit,
// worst fit) picks the free block for each request. defrag.Stacked adds
// compaction, and the layer package adds fallback, instrumentation, locking
// and reallocation.
//
// # Handles
//
// Every allocation is identified by a Handle:
//
//   - In-place containers (container.InPlace) hand out the absolute address of
//     the block's data. Block headers live inside the region.
//   - Referenced containers (container.Referenced) hand out a node pool index.
//     The data address may change when Beat compacts the region, so callers
//     must Resolve the handle again after a Beat.
//
// InvalidHandle (0) signals capacity exhaustion. Freeing it succeeds.
//
// # Usage Example
//
//	p, err := compose.ReferencedDefrag(region.NewFixed(64<<10), nil)
//	if err != nil {
//	    return err
//	}
//
//	h := p.Allocate(256, 8)
//	if h == pool.InvalidHandle {
//	    for p.Beat() {
//	    }
//	    h = p.Allocate(256, 8)
//	}
//	copy(p.Resolve(h), payload)
//	p.Free(h, false)
//
// # Errors
//
// Only construction returns errors (see ErrRegionTooSmall and friends).
// Allocation failures are reported through InvalidHandle or false. Misuse of
// internal structures panics with an assertion failure.
package pool
