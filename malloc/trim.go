package malloc

import (
	"sync/atomic"

	"github.com/bnclabs/ballast/lib"
)

// Trim walks every arena, releasing top-chunk slack beyond pad bytes
// back to the OS and advising the OS to drop pages backing sufficiently
// large free chunks elsewhere. Mirrors spec.md §4.9's malloc_trim.
// Returns true if anything was actually released or advised away.
func (alloc *Allocator) Trim(pad int64) bool {
	alloc.arenaMu.Lock()
	arenas := append([]*arena(nil), alloc.arenas...)
	alloc.arenaMu.Unlock()

	trimmed := false
	for _, a := range arenas {
		a.lock()
		if a.topTrim(alloc, pad) {
			trimmed = true
		}
		if a.mtrim(alloc) {
			trimmed = true
		}
		a.unlock()
	}
	return trimmed
}

// topTrim releases slack in a's top chunk. The primary arena shrinks
// its contiguous reservation's committed watermark; a non-primary
// arena whose top still spans the whole of its most recent heap
// releases that heap outright (heap_trim). A non-primary arena's
// older, already-grown-over heaps never carry a live top remnant (see
// extendAuxTop) so there is nothing further to trim there.
func (a *arena) topTrim(alloc *Allocator, pad int64) bool {
	if atomic.LoadUint32(&a.haveFastChunks) != 0 {
		a.consolidate()
	}
	if !a.top.valid() {
		return false
	}

	pageSize := alloc.src.PageSize()

	if !a.primary && a.heaps != nil && a.top == mem2chunkAt(a.heaps.base) && a.top.size() == a.heaps.committed {
		h := a.heaps
		a.heaps = h.prev
		alloc.heapMu.Lock()
		delete(alloc.heapIndex, h.base)
		alloc.heapMu.Unlock()
		alloc.src.ReleaseHeap(h.rawBase, h.rawSize)
		a.committed -= h.committed
		a.systemMem -= h.committed
		a.top = nilChunk
		return true
	}

	extra := (a.top.size() - pad) &^ (pageSize - 1)
	if extra < pageSize {
		return false
	}

	if a.primary && a.contiguous {
		newCommitted := a.committed - extra
		if err := alloc.src.ShrinkHeap(a.reservationBase, a.committed, newCommitted); err != nil {
			return false
		}
		a.top.setSize(a.top.size() - extra)
		a.committed = newCommitted
		a.systemMem = newCommitted
		return true
	}

	return false
}

// mtrim advises away the page-aligned interior of every free chunk at
// least four pages large, across every small and large bin. Pages
// holding chunk headers or sub-page fragments are left alone.
//
// A bin's free chunks are otherwise untouched between Trim calls, so
// re-scanning and re-advising the same pages on every call would make
// Trim return true forever even with nothing new to release (P9:
// "return 1 then 0"). mtrimGen tracks the freeGen value as of the last
// pass so a call with no intervening bin activity skips the scan and
// reports false.
func (a *arena) mtrim(alloc *Allocator) bool {
	if a.freeGen == a.mtrimGen {
		return false
	}
	a.mtrimGen = a.freeGen

	pageSize := alloc.src.PageSize()
	trimmed := false

	for idx := 2; idx < nBins-1; idx++ {
		bh := &a.bins[idx]
		for c := bh.head; c.valid(); {
			next := c.fd()
			if c.size() >= 4*pageSize {
				base := uintptr(lib.AlignUp(int64(uintptr(c)+uintptr(headerSize)), pageSize))
				end := uintptr(lib.AlignDown(int64(uintptr(c)+uintptr(c.size())), pageSize))
				if end > base {
					if err := alloc.src.Advise(base, int64(end-base)); err == nil {
						trimmed = true
					}
				}
			}
			c = next
		}
	}
	return trimmed
}
