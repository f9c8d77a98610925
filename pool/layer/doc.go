// Package layer holds the cross-cutting wrappers that stack on top of any
// pool.Allocator: Fallback, Inspector, ThreadSafe and Reallocator.
//
// Each layer takes the allocator below it and implements the same surface,
// so they compose in any order:
//
//	a := layer.NewThreadSafe(
//	    layer.NewInspector(
//	        layer.NewReallocator(
//	            layer.NewFallback(strategy.NewBestFit(c), nil, layer.FallbackEnabled))))
//
// Only ThreadSafe synchronizes. Inspector and Fallback keep unsynchronized
// state and belong inside it.
package layer
