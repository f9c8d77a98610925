package pool

import "math"

// Handle is an opaque reference to a live allocation.
//
// In-place containers hand out the absolute address of the block's data, so
// the handle is stable for the lifetime of the allocation. Referenced
// containers hand out the index of the block's node in the node pool; the
// index stays valid while defragmentation moves the bytes behind it.
type Handle uintptr

// InvalidHandle is returned when an allocation cannot be satisfied. Freeing it
// is a successful no-op.
const InvalidHandle Handle = 0

// NodeID addresses a block node inside a container: a header offset for
// in-place containers, a node pool slot for referenced ones.
type NodeID = uint32

// NilNode terminates links and marks "no node".
const NilNode NodeID = math.MaxUint32

// BlockInfo describes one block of a container.
type BlockInfo struct {
	Node     NodeID
	Handle   Handle // InvalidHandle for free blocks and sentinels
	Offset   int    // data offset from the start of the region
	Size     int    // usable data bytes
	Align    int
	InUse    bool
	Locked   bool
	Sentinel bool
}

// DirtyTracker is notified of every byte range a container writes, so
// file-backed regions know which pages to flush.
type DirtyTracker interface {
	// Add marks a byte range as dirty.
	// off is the offset from the start of the region, length is the number of bytes.
	Add(off, length int)
}

// Region supplies the bytes a container carves into blocks.
type Region interface {
	// InitMem binds the region to size bytes at data. Fixed regions ignore it.
	InitMem(size int, data []byte)
	// Bytes returns the backing memory.
	Bytes() []byte
	// Size returns len(Bytes()).
	Size() int
	// Base returns the absolute address of Bytes()[0], or 0 when empty.
	Base() uintptr
}

// Container manages the block list of one region: split, merge, resize and
// the bookkeeping every placement strategy is built on.
type Container interface {
	InitMem(size int, data []byte)

	// Block list traversal in address order. First and the last node are
	// permanent in-use sentinels.
	First() NodeID
	Next(n NodeID) NodeID
	Prev(n NodeID) NodeID
	Info(n NodeID) BlockInfo
	IsFree(n NodeID) bool
	NodeSize(n NodeID) int

	// Fits reports whether free block n can hold size bytes at align.
	Fits(n NodeID, size, align int) bool
	// Split carves size bytes at align out of free block n and returns the
	// node to mark in use, or NilNode without touching any state.
	Split(n NodeID, size, align int) NodeID
	// MarkUsed flags a node returned by Split as in use and returns its handle.
	MarkUsed(n NodeID) Handle
	// Merge coalesces free block n with its free neighbours and returns the
	// surviving node.
	Merge(n NodeID) NodeID
	// EmptyHint returns the last known single free block, or NilNode.
	EmptyHint() NodeID

	Node(h Handle) NodeID
	Free(h Handle, boundsCheck bool) bool
	ReSize(h Handle, size int) bool
	Resolve(h Handle) []byte
	Size(h Handle) int
	Owns(h Handle) bool
	SetLocked(h Handle, locked bool) bool

	// Defragmentable reports whether blocks may be moved behind handles.
	Defragmentable() bool
	// CanStack reports whether free block n can take its in-use successor.
	CanStack(n NodeID) bool
	// Stack slides the successor of free block n down into n and returns the
	// node of the free gap it leaves behind, or NilNode.
	Stack(n NodeID) NodeID

	MemSize() int
	MemFree() int
	FragmentCount() int
	Validate() error
}

// Allocator is the operation surface shared by every composed pool, so any
// layer can wrap any other.
type Allocator interface {
	InitMem(size int, data []byte)
	Allocate(size, align int) Handle
	Free(h Handle, forceBoundsCheck bool) bool
	Resize(h *Handle, size, align int) bool
	Resolve(h Handle) []byte
	Size(h Handle) int
	Owns(h Handle) bool
	MemSize() int
	MemFree() int
	FragmentCount() int
	Beat() bool
}

// Reallocating allocators can move an allocation when it cannot grow in place.
type Reallocating interface {
	Allocator
	Reallocate(h *Handle, size, align int) bool
}

// ContainerAccess is implemented by allocators built directly on a Container.
type ContainerAccess interface {
	Container() Container
}
