//go:build linux

package sysmem

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// OS is the real Source, backed by golang.org/x/sys/unix mmap/mprotect
// /madvise/mremap. A heap reservation is a single large PROT_NONE
// mapping; ExtendHeap mprotects a growing prefix of it to
// PROT_READ|PROT_WRITE. Because the reservation is made once and never
// moves, the committed prefix is contiguous by construction — the
// allocator never needs real sbrk/brk semantics.
type OS struct {
	pageSize int64
}

// NewOS constructs the real OS-backed Source.
func NewOS() *OS {
	return &OS{pageSize: int64(unix.Getpagesize())}
}

func (o *OS) PageSize() int64 { return o.pageSize }

func byteSliceAt(addr uintptr, size int64) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(size))
}

func (o *OS) ReserveHeap(size int64) (uintptr, error) {
	b, err := unix.Mmap(-1, 0, int(size), unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return 0, fmt.Errorf("sysmem: reserve heap of %d bytes: %w", size, err)
	}
	return uintptr(unsafe.Pointer(&b[0])), nil
}

func (o *OS) ExtendHeap(base uintptr, newSize int64) (uintptr, error) {
	sl := byteSliceAt(base, newSize)
	if err := unix.Mprotect(sl, unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return base, fmt.Errorf("sysmem: extend heap to %d bytes: %w", newSize, err)
	}
	return base, nil
}

func (o *OS) ShrinkHeap(base uintptr, currentSize, newSize int64) error {
	tailLen := currentSize - newSize
	if tailLen <= 0 {
		return nil
	}
	sl := byteSliceAt(base+uintptr(newSize), tailLen)
	if err := unix.Mprotect(sl, unix.PROT_NONE); err != nil {
		return fmt.Errorf("sysmem: shrink heap tail: %w", err)
	}
	return unix.Madvise(sl, unix.MADV_DONTNEED)
}

func (o *OS) ReleaseHeap(base uintptr, size int64) error {
	return unix.Munmap(byteSliceAt(base, size))
}

func (o *OS) MapOversize(size int64) (uintptr, error) {
	b, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return 0, fmt.Errorf("sysmem: map oversize of %d bytes: %w", size, err)
	}
	return uintptr(unsafe.Pointer(&b[0])), nil
}

func (o *OS) RemapOversize(base uintptr, oldSize, newSize int64) (uintptr, bool, error) {
	old := byteSliceAt(base, oldSize)
	moved, err := unix.Mremap(old, int(newSize), unix.MREMAP_MAYMOVE)
	if err != nil {
		return 0, false, nil
	}
	return uintptr(unsafe.Pointer(&moved[0])), true, nil
}

func (o *OS) UnmapOversize(base uintptr, size int64) error {
	return unix.Munmap(byteSliceAt(base, size))
}

func (o *OS) Advise(base uintptr, size int64) error {
	return unix.Madvise(byteSliceAt(base, size), unix.MADV_DONTNEED)
}

var _ Source = (*OS)(nil)
