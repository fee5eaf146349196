// Package sysmem is the narrow boundary between the allocator engine
// and the operating system's memory primitives: contiguous-heap
// reservation/extension, page mapping for oversize chunks, and page
// advise for trim. malloc depends only on the Source interface; tests
// substitute Fake so they exercise engine logic without real page
// mappings.
package sysmem

import "unsafe"

// Source is everything the engine needs from the OS (or a stand-in)
// to grow, shrink, and release backing memory. Addresses are returned
// and accepted as uintptr since the engine treats them as opaque
// chunk-space offsets, not Go-managed pointers.
type Source interface {
	// PageSize reports the OS page size used to round extend/trim/advise
	// requests.
	PageSize() int64

	// ReserveHeap reserves size bytes of address space, committing
	// nothing. The primary arena calls this once at startup with a
	// large size and relies on overcommit: ExtendHeap later commits
	// pages within the reservation by advancing a logical watermark,
	// which is what gives the "contiguous heap" guarantee without
	// emulating brk/sbrk.
	ReserveHeap(size int64) (base uintptr, err error)

	// ExtendHeap grows the committed (readable/writable) portion of a
	// reservation obtained from ReserveHeap to newSize bytes, which
	// must not exceed the original reservation size. Returns the base
	// again for convenience.
	ExtendHeap(base uintptr, newSize int64) (uintptr, error)

	// ShrinkHeap un-commits the tail of a reservation down to newSize
	// bytes, used by trim. Memory below newSize must remain committed
	// and valid.
	ShrinkHeap(base uintptr, currentSize, newSize int64) error

	// ReleaseHeap releases a reservation or mapping in its entirety
	// (used when an arena's non-primary heap, mapped with MapOversize,
	// is unlinked and freed by heap_trim).
	ReleaseHeap(base uintptr, size int64) error

	// MapOversize creates a fresh, page-aligned anonymous mapping of
	// at least size bytes, used for the mmap-threshold oversize path
	// and for non-primary-arena heap creation.
	MapOversize(size int64) (base uintptr, err error)

	// RemapOversize attempts to resize an existing oversize mapping in
	// place. ok is false when the platform or kernel cannot satisfy an
	// in-place remap, in which case the caller falls back to
	// allocate-copy-release.
	RemapOversize(base uintptr, oldSize, newSize int64) (newBase uintptr, ok bool, err error)

	// UnmapOversize releases a mapping obtained from MapOversize or
	// RemapOversize.
	UnmapOversize(base uintptr, size int64) error

	// Advise tells the OS that [base, base+size) is not needed right
	// now, without changing its addressability (MADV_DONTNEED or
	// equivalent). Used by the per-bin trim advisory pass.
	Advise(base uintptr, size int64) error
}

// AsPointer is a convenience conversion for callers that need to hand
// a reserved/mapped region to the chunk layer as an unsafe.Pointer.
func AsPointer(addr uintptr) unsafe.Pointer { return unsafe.Pointer(addr) }
