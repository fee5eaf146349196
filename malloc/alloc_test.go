package malloc

import (
	"os"
	"os/exec"
	"testing"
	"unsafe"

	"github.com/bnclabs/ballast/sysmem"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PrimaryReservation = 4 * 1024 * 1024
	cfg.HeapSize = 256 * 1024
	cfg.ArenaMax = 4
	cfg.ArenaTest = 1
	return cfg
}

func newTestAllocator(t *testing.T) *Allocator {
	t.Helper()
	alloc, err := NewAllocator(testConfig(), sysmem.NewFake())
	if err != nil {
		t.Fatalf("NewAllocator: %v", err)
	}
	return alloc
}

func writePattern(p unsafe.Pointer, n int64, v byte) {
	b := unsafe.Slice((*byte)(p), int(n))
	for i := range b {
		b[i] = v
	}
}

func checkPattern(t *testing.T, p unsafe.Pointer, n int64, v byte) {
	t.Helper()
	b := unsafe.Slice((*byte)(p), int(n))
	for i, got := range b {
		if got != v {
			t.Fatalf("byte %d: got %x want %x", i, got, v)
		}
	}
}

func TestAllocateReleaseRoundtrip(t *testing.T) {
	alloc := newTestAllocator(t)
	m := NewMutator(alloc)

	p, err := m.Allocate(64)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if p == nil {
		t.Fatal("Allocate returned nil")
	}
	writePattern(p, 64, 0xAB)
	checkPattern(t, p, 64, 0xAB)
	m.Release(p)
}

// Freeing and reallocating the same small size should recycle the
// chunk through the fast bin without growing top.
func TestFastBinRecycle(t *testing.T) {
	alloc := newTestAllocator(t)
	m := NewMutator(alloc)
	m.tc.maxCount = 0 // force every release past the tcache, onto the fast bin

	p1, err := m.Allocate(32)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	m.Release(p1)

	p2, err := m.Allocate(32)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if p1 != p2 {
		t.Fatalf("expected fast-bin recycle to reuse address: %v != %v", p1, p2)
	}
	m.Release(p2)
}

// Several adjacent same-size chunks released past the tcache and fast
// bin coalesce with each other and with top, so the next request of the
// same size is carved again from the oldest (lowest) address.
func TestSmallBinFIFO(t *testing.T) {
	alloc := newTestAllocator(t)
	m := NewMutator(alloc)

	m.tc.maxCount = 0 // force releases straight to the arena, in call order

	const n = 200 // bytes, lands in the small-bin (not fast-bin) range
	var ptrs []unsafe.Pointer
	for i := 0; i < 8; i++ {
		p, err := m.Allocate(n)
		if err != nil {
			t.Fatalf("Allocate %d: %v", i, err)
		}
		ptrs = append(ptrs, p)
	}

	for _, p := range ptrs {
		m.Release(p)
	}

	oldest := ptrs[0]
	p, err := m.Allocate(n)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if p != oldest {
		t.Fatalf("expected FIFO reuse of oldest freed chunk %v, got %v", oldest, p)
	}
}

func TestOversizeMmapIsolation(t *testing.T) {
	alloc := newTestAllocator(t)
	m := NewMutator(alloc)

	cfg := alloc.config()
	size := cfg.MmapThreshold + 1024

	p, err := m.Allocate(size)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	c := mem2chunk(p)
	if !c.isMapped() {
		t.Fatal("expected oversize request to be served by a mapped chunk")
	}
	if got := alloc.liveMmapCount(); got != 1 {
		t.Fatalf("liveMmapCount = %d, want 1", got)
	}

	writePattern(p, size, 0xCD)
	checkPattern(t, p, size, 0xCD)

	m.Release(p)
	if got := alloc.liveMmapCount(); got != 0 {
		t.Fatalf("liveMmapCount after release = %d, want 0", got)
	}
}

func TestTcacheBoundedDepth(t *testing.T) {
	alloc := newTestAllocator(t)
	m := NewMutator(alloc)
	m.tc.maxCount = 2

	var ptrs []unsafe.Pointer
	for i := 0; i < 5; i++ {
		p, err := m.Allocate(24)
		if err != nil {
			t.Fatalf("Allocate %d: %v", i, err)
		}
		ptrs = append(ptrs, p)
	}
	for _, p := range ptrs {
		m.Release(p)
	}

	size, _ := requestToChunkSize(24)
	idx, ok := tcacheBinIndex(size, m.tc.maxBins)
	if !ok {
		t.Fatal("expected size to map to a tcache bucket")
	}
	if got := m.tc.count(idx); got != 2 {
		t.Fatalf("tcache count = %d, want capped at 2", got)
	}
}

func TestReallocateGrowForwardExtend(t *testing.T) {
	alloc := newTestAllocator(t)
	m := NewMutator(alloc)

	p1, err := m.Allocate(48)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	writePattern(p1, 48, 0x11)

	// Nothing else allocated afterward, so p1's successor is top:
	// growing should extend in place at the same address.
	p2, err := m.Reallocate(p1, 96)
	if err != nil {
		t.Fatalf("Reallocate: %v", err)
	}
	if p2 != p1 {
		t.Fatalf("expected in-place forward extend, got new address %v != %v", p2, p1)
	}
	checkPattern(t, p2, 48, 0x11)
	m.Release(p2)
}

func TestReallocateShrink(t *testing.T) {
	alloc := newTestAllocator(t)
	m := NewMutator(alloc)

	p1, err := m.Allocate(512)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	writePattern(p1, 64, 0x22)

	p2, err := m.Reallocate(p1, 32)
	if err != nil {
		t.Fatalf("Reallocate: %v", err)
	}
	if p2 != p1 {
		t.Fatalf("expected in-place shrink, got new address %v != %v", p2, p1)
	}
	checkPattern(t, p2, 32, 0x22)
	m.Release(p2)
}

func TestAlignedAllocate(t *testing.T) {
	alloc := newTestAllocator(t)
	m := NewMutator(alloc)

	const align = 4096
	p, err := m.AlignedAllocate(align, 100)
	if err != nil {
		t.Fatalf("AlignedAllocate: %v", err)
	}
	if uintptr(p)%align != 0 {
		t.Fatalf("pointer %v not aligned to %d", p, align)
	}
	writePattern(p, 100, 0x33)
	checkPattern(t, p, 100, 0x33)
	m.Release(p)
}

func TestUsableSizeAtLeastRequested(t *testing.T) {
	alloc := newTestAllocator(t)
	m := NewMutator(alloc)

	p, err := m.Allocate(40)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if got := m.UsableSize(p); got < 40 {
		t.Fatalf("UsableSize = %d, want >= 40", got)
	}
	m.Release(p)
}

func TestTuningFastCeilingDisable(t *testing.T) {
	alloc := newTestAllocator(t)
	if err := alloc.Tuning("fast-ceiling", 0); err != nil {
		t.Fatalf("Tuning(fast-ceiling, 0): %v", err)
	}
	if got := alloc.config().FastCeilingBytes; got != 0 {
		t.Fatalf("FastCeilingBytes = %d, want 0", got)
	}

	m := NewMutator(alloc)
	p, err := m.Allocate(32)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	m.Release(p)
	c := mem2chunk(p)
	_ = c
}

// Two large, differently-sized chunks, kept apart by live guard chunks
// so they cannot coalesce, freed to the unsorted bin should rebin into
// distinct large bins; a request that fits neither exactly should come
// back as the smallest one still big enough (best fit), leaving the
// other undisturbed for a later request.
func TestLargeBinBestFit(t *testing.T) {
	alloc := newTestAllocator(t)
	m := NewMutator(alloc)

	pSmall, err := m.Allocate(2000)
	if err != nil {
		t.Fatalf("Allocate small: %v", err)
	}
	if _, err := m.Allocate(64); err != nil {
		t.Fatalf("Allocate guard: %v", err)
	}
	pBig, err := m.Allocate(5000)
	if err != nil {
		t.Fatalf("Allocate big: %v", err)
	}
	if _, err := m.Allocate(64); err != nil {
		t.Fatalf("Allocate guard: %v", err)
	}
	m.Release(pSmall)
	m.Release(pBig)

	p, err := m.Allocate(2500)
	if err != nil {
		t.Fatalf("Allocate mid: %v", err)
	}
	if p != pBig {
		t.Fatalf("expected best-fit reuse of the larger freed chunk %v, got %v", pBig, p)
	}

	p2, err := m.Allocate(2000)
	if err != nil {
		t.Fatalf("Allocate second small: %v", err)
	}
	if p2 != pSmall {
		t.Fatalf("expected the smaller freed chunk %v to still be available, got %v", pSmall, p2)
	}
}

// Freeing the same pointer twice through the tcache must abort the
// process rather than silently corrupt the bucket. abort() calls
// os.Exit directly, so this drives the scenario in a subprocess and
// checks its exit code.
func TestDoubleFreeAborts(t *testing.T) {
	const childEnv = "BALLAST_DOUBLE_FREE_CHILD"
	if os.Getenv(childEnv) == "1" {
		alloc := newTestAllocator(t)
		m := NewMutator(alloc)
		p, err := m.Allocate(32)
		if err != nil {
			t.Fatalf("Allocate: %v", err)
		}
		m.Release(p)
		m.Release(p)
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestDoubleFreeAborts")
	cmd.Env = append(os.Environ(), childEnv+"=1")
	out, err := cmd.CombinedOutput()

	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		t.Fatalf("expected child process to exit with an error, got %v (output: %s)", err, out)
	}
	if got := exitErr.ExitCode(); got != 134 {
		t.Fatalf("exit code = %d, want 134 (output: %s)", got, out)
	}
}
