package shm

import (
	"sync/atomic"
	"unsafe"
)

// The helpers below operate on words inside a mapped region. sync/atomic
// operations are sequentially consistent, so a store or add also orders every
// preceding plain write before it (release) for readers in other processes.

// LoadUint32 loads a uint32 from shared memory atomically.
func LoadUint32(addr unsafe.Pointer) uint32 {
	return atomic.LoadUint32((*uint32)(addr))
}

// StoreUint32 stores a uint32 to shared memory atomically.
func StoreUint32(addr unsafe.Pointer, val uint32) {
	atomic.StoreUint32((*uint32)(addr), val)
}

// AddUint32 adds delta to a uint32 in shared memory and returns the new value.
// Use ^uint32(0) to decrement.
func AddUint32(addr unsafe.Pointer, delta uint32) uint32 {
	return atomic.AddUint32((*uint32)(addr), delta)
}

// CompareAndSwapUint32 atomically compares and swaps a uint32 in shared memory.
func CompareAndSwapUint32(addr unsafe.Pointer, old, new uint32) bool {
	return atomic.CompareAndSwapUint32((*uint32)(addr), old, new)
}

// LoadUint64 loads a uint64 from shared memory atomically.
func LoadUint64(addr unsafe.Pointer) uint64 {
	return atomic.LoadUint64((*uint64)(addr))
}

// StoreUint64 stores a uint64 to shared memory atomically.
func StoreUint64(addr unsafe.Pointer, val uint64) {
	atomic.StoreUint64((*uint64)(addr), val)
}

// AddUint64 adds delta to a uint64 in shared memory and returns the new value.
func AddUint64(addr unsafe.Pointer, delta uint64) uint64 {
	return atomic.AddUint64((*uint64)(addr), delta)
}

// CompareAndSwapUint64 atomically compares and swaps a uint64 in shared memory.
func CompareAndSwapUint64(addr unsafe.Pointer, old, new uint64) bool {
	return atomic.CompareAndSwapUint64((*uint64)(addr), old, new)
}
