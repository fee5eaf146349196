package malloc

import (
	"os"

	"github.com/bnclabs/ballast/log"
)

// Corruption tags. Every fatal abort path reports one of these exact
// strings, reproduced from spec.md §7 so a caller parsing process
// stderr (or a test asserting on it) sees the familiar diagnostic.
const (
	tagMemCorruptionFast        = "malloc(): memory corruption (fast)"
	tagSmallbinCorrupted        = "malloc(): smallbin double linked list corrupted"
	tagUnsortedCorrupted        = "malloc(): unsorted double linked list corrupted"
	tagCorruptedUnsortedChunks  = "malloc(): corrupted unsorted chunks"
	tagLargebinCorrupted        = "malloc(): largebin double linked list corrupted"
	tagInvalidSizeUnsorted      = "malloc(): invalid size (unsorted)"
	tagInvalidNextSizeUnsorted  = "malloc(): invalid next size (unsorted)"
	tagMismatchNextPrevUnsorted = "malloc(): mismatching next->prev_size (unsorted)"
	tagInvalidNextPrevInUse     = "malloc(): invalid next->prev_inuse (unsorted)"
	tagCorruptedTopSize         = "malloc(): corrupted top size"
	tagFreeInvalidPointer       = "free(): invalid pointer"
	tagFreeInvalidSize          = "free(): invalid size"
	tagFreeInvalidNextSizeFast  = "free(): invalid next size (fast)"
	tagFreeInvalidNextSizeNorm  = "free(): invalid next size (normal)"
	tagDoubleFreeTcache         = "free(): double free detected in tcache 2"
	tagDoubleFreeFasttop        = "double free or corruption (fasttop)"
	tagDoubleFreeTop            = "double free or corruption (top)"
	tagDoubleFreeOut            = "double free or corruption (out)"
	tagDoubleFreeNotPrev        = "double free or corruption (!prev)"
	tagCorruptedSizeVsPrev      = "corrupted size vs. prev_size"
	tagCorruptedSizeVsPrevCons  = "corrupted size vs. prev_size while consolidating"
	tagCorruptedDLL             = "corrupted double-linked list"
	tagCorruptedDLLNotSmall     = "corrupted double-linked list (not small)"
	tagInvalidFastbinEntryFree  = "invalid fastbin entry (free)"
	tagMunmapInvalidPointer     = "munmap_chunk(): invalid pointer"
	tagConsolidateInvalidSize   = "malloc_consolidate(): invalid chunk size"
	tagReallocInvalidPointer    = "realloc(): invalid pointer"
	tagReallocInvalidOldSize    = "realloc(): invalid old size"
	tagReallocInvalidNextSize   = "realloc(): invalid next size"
)

// abort reports a corruption diagnostic and terminates the process
// immediately. No lock is released first: the process is ending and
// the source this engine follows never attempts cleanup on this path.
// Exit code 134 mirrors the SIGABRT a C allocator would raise.
func abort(tag string) {
	log.Fatalf("%s\n", tag)
	os.Exit(134)
}

// checkUnlink verifies the doubly-linked invariant fd.bk == self &&
// bk.fd == self on a chunk about to be removed from a bin, aborting
// with the tag appropriate to the bin kind (small vs. large/other).
func checkUnlink(c chunk, small bool) {
	fd, bk := c.fd(), c.bk()
	okFd := !fd.valid() || fd.bk() == c
	okBk := !bk.valid() || bk.fd() == c
	if !okFd || !okBk {
		if small {
			abort(tagSmallbinCorrupted)
		}
		abort(tagCorruptedDLL)
	}
}

// checkUnlinkNextsize additionally verifies the skip-list link-back
// used by large bins.
func checkUnlinkNextsize(c chunk) {
	if c.fdNextsize().valid() {
		if c.fdNextsize().bkNextsize() != c || c.bkNextsize().fdNextsize() != c {
			abort(tagLargebinCorrupted)
		}
	}
}

// checkFastPop verifies that a chunk popped from fast-bin slot idx
// actually belongs there (P12).
func checkFastPop(c chunk, idx int) {
	if got, ok := fastBinIndex(c.size()); !ok || got != idx {
		abort(tagMemCorruptionFast)
	}
}

// checkFreeSuccessor validates invariant 2/P6/P7 on the chunk about to
// receive a just-freed neighbor: successor size sane and P bit set
// (catches a double free of the chunk being released right now).
func checkFreeSuccessor(a *arena, c chunk) {
	n := c.next()
	if !withinArenaExtent(a, n) {
		abort(tagFreeInvalidNextSizeNorm)
	}
	if !n.prevInUse() {
		abort(tagDoubleFreeNotPrev)
	}
}

// checkFastSuccessor is the fast-bin-specific variant of
// checkFreeSuccessor: successor size must lie in [2*wordSize, arena
// total system memory].
func checkFastSuccessor(a *arena, c chunk) {
	n := c.next()
	sz := n.size()
	if sz < 2*wordSize || int64(sz) > a.systemMem {
		abort(tagFreeInvalidNextSizeFast)
	}
}

// withinArenaExtent reports whether c lies within the memory this
// arena has acquired from the OS: the committed prefix of the primary
// arena's contiguous reservation, or one of a non-primary arena's
// chained heaps. Used as the "successor within arena's extent" check
// named in spec.md §4.10.
func withinArenaExtent(a *arena, c chunk) bool {
	if !c.valid() {
		return false
	}
	addr := uintptr(c)
	if a.primary && a.contiguous {
		return addr >= a.reservationBase && addr < a.reservationBase+uintptr(a.committed)
	}
	for h := a.heaps; h != nil; h = h.prev {
		if addr >= h.base && addr < h.base+uintptr(h.committed) {
			return true
		}
	}
	return false
}

// checkUnsortedChunk runs the battery of checks spec.md §4.5 step 2
// names on a chunk about to be drained from the unsorted bin.
func checkUnsortedChunk(a *arena, t chunk) {
	size := t.size()
	if size < minChunkSize || int64(size) > a.systemMem {
		abort(tagInvalidSizeUnsorted)
	}
	n := t.next()
	nsz := n.size()
	if nsz < minChunkSize || int64(nsz) > a.systemMem {
		abort(tagInvalidNextSizeUnsorted)
	}
	if n.prevSize() != size {
		abort(tagMismatchNextPrevUnsorted)
	}
	if n.prevInUse() {
		abort(tagInvalidNextPrevInUse)
	}
	if fd := t.fd(); fd.valid() && fd.bk() != t {
		abort(tagUnsortedCorrupted)
	}
}

// checkTopSize validates invariant 3/P6 after any top-chunk mutation.
func checkTopSize(a *arena) {
	if a.top == nilChunk {
		return
	}
	if a.top.size() < minChunkSize {
		abort(tagCorruptedTopSize)
	}
}
