// Package container implements the block bookkeeping every placement
// strategy is built on.
//
// # Containers
//
// Two containers share the pool.Container contract:
//
//   - InPlace writes a 16 byte header in front of every block. Handles are
//     data addresses, so nothing may move and Defragmentable is false.
//   - Referenced keeps block nodes in a fixed-capacity NodePool. Handles are
//     node indices; Stack may slide bytes behind a handle, so the container
//     can be compacted by pool/defrag.
//
// Both bound the block list with two permanently in-use sentinels, derive a
// block's size from the next block's position, and keep list order equal to
// address order.
//
// # Split
//
// An allocation is placed at the lowest aligned offset of the chosen free
// block. If the block start is aligned the block itself becomes the
// allocation; otherwise the block keeps the free prefix and a new node holds
// the allocation. The remaining tail becomes a new free block only when it is
// at least Options.MinFragment bytes (plus a header for InPlace); smaller
// tails are handed to the caller as part of the allocation.
//
// # Merge
//
// Freeing a block coalesces it with every free neighbour on both sides, so no
// two free blocks are ever adjacent.
//
// # Accounting
//
// MemFree is MemSize minus the bytes held by in-use blocks. InPlace counts a
// block's header as held, so MemFree includes the two sentinel headers;
// Referenced counts data bytes only.
package container
