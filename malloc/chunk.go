package malloc

import "unsafe"

// wordSize is the machine word ballast targets. See SPEC_FULL.md's ABI
// decision: 64-bit only, no attempt at 32-bit portability.
const wordSize = int64(unsafe.Sizeof(uintptr(0)))

// alignment is the allocation quantum: two machine words.
const alignment = 2 * wordSize

// headerSize is the number of bytes a chunk header occupies ahead of
// the user payload: prevSize word plus sizeAndFlags word.
const headerSize = 2 * wordSize

// minChunkSize is the smallest chunk the allocator will ever hand out
// or place on a free list: two header words plus room for the fd/bk
// free-list pointers a free chunk overlays into its payload.
const minChunkSize = 4 * wordSize

// flags packed into the low bits of a chunk's size word.
const (
	flagPrevInUse    = uintptr(1) << 0 // P: physically-previous chunk is in use
	flagMapped       = uintptr(1) << 1 // M: page-mapped standalone chunk
	flagNonMainArena = uintptr(1) << 2 // A: chunk belongs to a non-primary arena
	flagMask         = flagPrevInUse | flagMapped | flagNonMainArena
)

// chunk is the address of a chunk header. Field access always goes
// through an offset-based accessor rather than a Go struct pointer, so
// the same bytes can be read as an in-use chunk, a free chunk (fd/bk
// overlay), or a large free chunk (additional fd_nextsize/bk_nextsize
// overlay) without ever aliasing one memory region as two conflicting
// Go types at once.
type chunk uintptr

const nilChunk chunk = 0

func (c chunk) valid() bool { return c != 0 }

func (c chunk) addr() unsafe.Pointer { return unsafe.Pointer(uintptr(c)) }

func (c chunk) wordAt(offset int64) *uintptr {
	return (*uintptr)(unsafe.Pointer(uintptr(c) + uintptr(offset)))
}

// prevSize is only meaningful when the physically-previous chunk is
// free: it then holds that chunk's size, written there as a boundary
// tag so backward coalescing is O(1).
func (c chunk) prevSize() int64 { return int64(*c.wordAt(0)) }

func (c chunk) setPrevSize(size int64) { *c.wordAt(0) = uintptr(size) }

func (c chunk) rawSizeAndFlags() uintptr { return *c.wordAt(wordSize) }

func (c chunk) size() int64 { return int64(c.rawSizeAndFlags() &^ flagMask) }

// setSize preserves whatever flags are already set.
func (c chunk) setSize(size int64) {
	flags := c.rawSizeAndFlags() & flagMask
	*c.wordAt(wordSize) = uintptr(size) | flags
}

// setSizeAndFlags overwrites size and flags together; used when
// constructing a chunk from scratch.
func (c chunk) setSizeAndFlags(size int64, flags uintptr) {
	*c.wordAt(wordSize) = uintptr(size) | (flags & flagMask)
}

func (c chunk) prevInUse() bool { return c.rawSizeAndFlags()&flagPrevInUse != 0 }

func (c chunk) setPrevInUse() { *c.wordAt(wordSize) = c.rawSizeAndFlags() | flagPrevInUse }

func (c chunk) clearPrevInUse() { *c.wordAt(wordSize) = c.rawSizeAndFlags() &^ flagPrevInUse }

func (c chunk) isMapped() bool { return c.rawSizeAndFlags()&flagMapped != 0 }

func (c chunk) setMapped() { *c.wordAt(wordSize) = c.rawSizeAndFlags() | flagMapped }

func (c chunk) nonMainArena() bool { return c.rawSizeAndFlags()&flagNonMainArena != 0 }

func (c chunk) setNonMainArena() { *c.wordAt(wordSize) = c.rawSizeAndFlags() | flagNonMainArena }

// --- free-chunk payload overlay ---
//
// A free chunk's payload starts at headerSize and overlays, in order:
// fd (forward bin pointer), bk (backward bin pointer), and — only for
// chunks in a large bin — fd_nextsize/bk_nextsize (the skip-list ring).

func (c chunk) fd() chunk { return chunk(*c.wordAt(headerSize)) }
func (c chunk) setFd(v chunk) { *c.wordAt(headerSize) = uintptr(v) }

func (c chunk) bk() chunk { return chunk(*c.wordAt(headerSize + wordSize)) }
func (c chunk) setBk(v chunk) { *c.wordAt(headerSize + wordSize) = uintptr(v) }

func (c chunk) fdNextsize() chunk { return chunk(*c.wordAt(headerSize + 2*wordSize)) }
func (c chunk) setFdNextsize(v chunk) { *c.wordAt(headerSize + 2*wordSize) = uintptr(v) }

func (c chunk) bkNextsize() chunk { return chunk(*c.wordAt(headerSize + 3*wordSize)) }
func (c chunk) setBkNextsize(v chunk) { *c.wordAt(headerSize + 3*wordSize) = uintptr(v) }

// --- tcache overlay ---
//
// A chunk cached on a Mutator's tcache overlays its payload with a
// singly-linked `next` pointer and a `key` word identifying the owning
// tcache, used as a cheap double-free prefilter.

func (c chunk) tcacheNext() chunk { return chunk(*c.wordAt(headerSize)) }
func (c chunk) setTcacheNext(v chunk) { *c.wordAt(headerSize) = uintptr(v) }

func (c chunk) tcacheKey() uintptr { return *c.wordAt(headerSize + wordSize) }
func (c chunk) setTcacheKey(v uintptr) { *c.wordAt(headerSize + wordSize) = v }

// --- fast-bin overlay ---
//
// A chunk on a fast bin overlays only a singly-linked `next` pointer.

func (c chunk) fastNext() chunk { return chunk(*c.wordAt(headerSize)) }
func (c chunk) setFastNext(v chunk) { *c.wordAt(headerSize) = uintptr(v) }

// mem2chunk converts a user-visible pointer back to its owning chunk.
func mem2chunk(p unsafe.Pointer) chunk {
	return chunk(uintptr(p) - uintptr(headerSize))
}

// chunk2mem converts a chunk to the pointer handed to the caller.
func (c chunk) chunk2mem() unsafe.Pointer {
	return unsafe.Pointer(uintptr(c) + uintptr(headerSize))
}

// next steps to the physically-next chunk, given c's own size.
func (c chunk) next() chunk {
	return chunk(uintptr(c) + uintptr(c.size()))
}

// nextAt steps to the physically-next chunk using an explicit size,
// useful right after a split/coalesce before the header is rewritten.
func (c chunk) nextAt(size int64) chunk {
	return chunk(uintptr(c) + uintptr(size))
}

// prev steps to the physically-previous chunk. Caller must have
// already established that c's P flag is clear (previous is free).
func (c chunk) prev() chunk {
	return chunk(uintptr(c) - uintptr(c.prevSize()))
}

// linkBoundaryTag writes size into the successor's prevSize word and
// clears the successor's P flag, establishing the boundary tag that
// makes c discoverable as free from the successor's side.
func (c chunk) linkBoundaryTag(size int64) {
	n := c.nextAt(size)
	n.setPrevSize(size)
	n.clearPrevInUse()
}

// usableSize returns the number of bytes available to the caller,
// i.e. chunk size minus the header overhead.
func (c chunk) usableSize() int64 {
	return c.size() - headerSize
}

// requestToChunkSize rounds a user request to an allocatable chunk
// size: header overhead, rounded up to the alignment quantum, floored
// at the minimum chunk size. Returns false if the padded size would
// overflow the signed pointer-difference ceiling (size-wrap guard).
func requestToChunkSize(n int64) (int64, bool) {
	if n < 0 {
		return 0, false
	}
	const maxRequest = (int64(1) << 62) - alignment
	if n > maxRequest {
		return 0, false
	}
	size := n + headerSize
	size = (size + alignment - 1) &^ (alignment - 1)
	if size < minChunkSize {
		size = minChunkSize
	}
	return size, true
}
