package sysmem

import (
	"sync"
	"unsafe"
)

// Fake is an in-process Source for tests: every reservation or
// oversize mapping is an ordinary Go byte slice, kept alive by a
// reference held here so its address stays valid without any real OS
// page mapping. This lets malloc's tests drive the engine's split,
// coalesce, and arena-growth logic without needing mmap/mprotect
// privileges or real page-sized memory commitments.
type Fake struct {
	mu      sync.Mutex
	regions map[uintptr][]byte
	page    int64
}

// NewFake builds a Fake Source with a conventional 4 KiB page size.
func NewFake() *Fake {
	return &Fake{regions: make(map[uintptr][]byte), page: 4096}
}

func (f *Fake) PageSize() int64 { return f.page }

func (f *Fake) track(b []byte) uintptr {
	f.mu.Lock()
	defer f.mu.Unlock()
	base := uintptr(unsafe.Pointer(&b[0]))
	f.regions[base] = b
	return base
}

// ReserveHeap allocates the full reservation up front: Go has no
// partial-commit primitive, so ExtendHeap on a Fake is a no-op — the
// backing slice already covers the whole requested size.
func (f *Fake) ReserveHeap(size int64) (uintptr, error) {
	return f.track(make([]byte, size)), nil
}

func (f *Fake) ExtendHeap(base uintptr, newSize int64) (uintptr, error) {
	return base, nil
}

func (f *Fake) ShrinkHeap(base uintptr, currentSize, newSize int64) error {
	return nil
}

func (f *Fake) ReleaseHeap(base uintptr, size int64) error {
	f.mu.Lock()
	delete(f.regions, base)
	f.mu.Unlock()
	return nil
}

func (f *Fake) MapOversize(size int64) (uintptr, error) {
	return f.track(make([]byte, size)), nil
}

// RemapOversize always reports failure, so tests exercise the
// allocate-copy-release fallback path rather than an in-place resize.
func (f *Fake) RemapOversize(base uintptr, oldSize, newSize int64) (uintptr, bool, error) {
	return 0, false, nil
}

func (f *Fake) UnmapOversize(base uintptr, size int64) error {
	return f.ReleaseHeap(base, size)
}

func (f *Fake) Advise(base uintptr, size int64) error {
	return nil
}

var _ Source = (*Fake)(nil)
