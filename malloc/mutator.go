package malloc

import "unsafe"

import "github.com/bnclabs/ballast/lib"

// Mutator is the unit of thread affinity for this package: obtain one
// per goroutine with NewMutator and call Allocate/Release/Reallocate/
// AlignedAllocate on it. It owns a private tcache (never touches an
// arena lock) and remembers the last arena it successfully locked, so
// repeat calls from the same goroutine tend to stay on one arena
// instead of round-robining under acquireArena's contention policy.
type Mutator struct {
	alloc   *Allocator
	tc      *tcache
	current *arena
}

// NewMutator builds a Mutator bound to alloc, sizing its tcache from
// alloc's current tuning parameters.
func NewMutator(alloc *Allocator) *Mutator {
	cfg := alloc.config()
	return &Mutator{
		alloc:   alloc,
		tc:      newTcache(cfg.TcacheMax, cfg.TcacheCount, cfg.TcacheUnsortedLimit),
		current: alloc.primary,
	}
}

// Close drains the Mutator's tcache back to the arenas that own each
// cached chunk. Call when a goroutine is done allocating, so its
// cached chunks become available to others.
func (m *Mutator) Close() {
	m.tc.drain(func(c chunk) {
		a := m.alloc.ownerOf(c)
		a.lock()
		a.releaseToArena(c)
		a.unlock()
	})
}

// Allocate returns a pointer to at least n usable bytes, or an error
// if n cannot be satisfied. Mirrors spec.md §4.11's entry-wrapper
// policy: hook check, then tcache before any lock, then the engine.
func (m *Mutator) Allocate(n int64) (unsafe.Pointer, error) {
	if h := m.alloc.getHooks(); h.Allocate != nil {
		if p, ok := h.Allocate(n); ok {
			return unsafe.Pointer(p), nil
		}
	}

	size, ok := requestToChunkSize(n)
	if !ok {
		return nil, ErrRequestTooLarge
	}
	cfg := m.alloc.config()

	if cfg.MmapMax > 0 && size >= cfg.MmapThreshold && int(m.alloc.liveMmapCount()) < cfg.MmapMax {
		c, err := m.alloc.allocateOversize(size)
		if err != nil {
			return nil, err
		}
		perturbOnAlloc(c.chunk2mem(), c.usableSize(), &cfg)
		return c.chunk2mem(), nil
	}

	if tidx, ok := tcacheBinIndex(size, m.tc.maxBins); ok {
		if c := m.tc.pop(tidx); c.valid() {
			perturbOnAlloc(c.chunk2mem(), c.usableSize(), &cfg)
			return c.chunk2mem(), nil
		}
	}

	c, err := m.allocateArenaOnly(size)
	if err != nil {
		return nil, err
	}
	perturbOnAlloc(c.chunk2mem(), c.usableSize(), &cfg)
	return c.chunk2mem(), nil
}

// allocateArenaOnly drives the engine dispatch directly, bypassing
// the mmap-threshold check: AlignedAllocate uses this so its slack
// carving never has to reason about a mapped (M-flagged) chunk.
func (m *Mutator) allocateArenaOnly(size int64) (chunk, error) {
	a := m.alloc.acquireArena(m.current)
	m.current = a
	c, err := m.alloc.allocateFromArena(a, size, m.tc)
	a.unlock()
	return c, err
}

// Release returns p to the allocator. A nil p is a no-op.
func (m *Mutator) Release(p unsafe.Pointer) {
	if p == nil {
		return
	}
	if h := m.alloc.getHooks(); h.Release != nil {
		if h.Release(uintptr(p)) {
			return
		}
	}

	c := mem2chunk(p)
	cfg := m.alloc.config()

	if c.isMapped() {
		perturbOnFree(p, c.usableSize(), &cfg)
		if err := m.alloc.munmapOversizeChunk(c); err != nil {
			abort(tagMunmapInvalidPointer)
		}
		return
	}

	perturbOnFree(p, c.usableSize(), &cfg)

	if tidx, ok := tcacheBinIndex(c.size(), m.tc.maxBins); ok {
		if m.tc.push(tidx, c) {
			return
		}
	}

	a := m.alloc.ownerOf(c)
	a.lock()
	a.releaseToArena(c)
	a.unlock()
}

// UsableSize reports the number of bytes actually available at p,
// which may exceed the size originally requested.
func (m *Mutator) UsableSize(p unsafe.Pointer) int64 {
	if p == nil {
		return 0
	}
	return mem2chunk(p).usableSize()
}

// Reallocate resizes the allocation at p to n bytes, preserving the
// leading min(old, new) bytes of content. p == nil behaves as
// Allocate; n == 0 behaves as Release and returns nil.
func (m *Mutator) Reallocate(p unsafe.Pointer, n int64) (unsafe.Pointer, error) {
	if h := m.alloc.getHooks(); h.Reallocate != nil {
		if np, ok := h.Reallocate(uintptr(p), n); ok {
			return unsafe.Pointer(np), nil
		}
	}
	if p == nil {
		return m.Allocate(n)
	}
	if n == 0 {
		m.Release(p)
		return nil, nil
	}

	newSize, ok := requestToChunkSize(n)
	if !ok {
		return nil, ErrRequestTooLarge
	}
	c := mem2chunk(p)

	if c.isMapped() {
		return m.reallocateMapped(c, newSize, n)
	}
	return m.reallocateArena(c, newSize, n)
}

// reallocateMapped tries an in-place (or OS-assisted move) remap of an
// oversize chunk before falling back to allocate-copy-release.
func (m *Mutator) reallocateMapped(c chunk, newSize, n int64) (unsafe.Pointer, error) {
	lead := c.prevSize()
	rawBase := uintptr(c) - uintptr(lead)
	oldRaw := c.size() + lead
	pageSize := m.alloc.src.PageSize()
	newRaw := roundUpPage(newSize+lead, pageSize)

	if newRaw == oldRaw {
		return c.chunk2mem(), nil
	}

	newBase, ok, err := m.alloc.src.RemapOversize(rawBase, oldRaw, newRaw)
	if err != nil {
		return nil, err
	}
	if ok {
		m.alloc.maybeAdaptMmapThreshold(newSize)
		nc := chunk(newBase + uintptr(lead))
		nc.setPrevSize(lead)
		nc.setSizeAndFlags(newRaw-lead, flagPrevInUse|flagMapped)
		return nc.chunk2mem(), nil
	}

	np, aerr := m.Allocate(n)
	if aerr != nil {
		return nil, aerr
	}
	copyBytes(np, c.chunk2mem(), minInt64(c.usableSize(), n))
	if err := m.alloc.munmapOversizeChunk(c); err != nil {
		return nil, err
	}
	return np, nil
}

// reallocateArena handles a non-mapped chunk: shrink in place, try a
// forward extend into a free successor (or top), or fall back to
// allocate-copy-release.
func (m *Mutator) reallocateArena(c chunk, newSize, n int64) (unsafe.Pointer, error) {
	oldUsable := c.usableSize()

	if newSize <= c.size() {
		a := m.alloc.ownerOf(c)
		a.lock()
		rem := split(c, newSize)
		if rem.valid() {
			// split leaves rem marked free; mark it in use so Release
			// accepts it.
			rem.next().setPrevInUse()
		}
		a.unlock()
		if rem.valid() {
			m.Release(rem.chunk2mem())
		}
		return c.chunk2mem(), nil
	}

	a := m.alloc.ownerOf(c)
	a.lock()
	extended := a.tryForwardExtend(c, newSize)
	a.unlock()
	if extended {
		return c.chunk2mem(), nil
	}

	np, err := m.Allocate(n)
	if err != nil {
		return nil, err
	}
	copyBytes(np, c.chunk2mem(), minInt64(oldUsable, n))
	m.Release(c.chunk2mem())
	return np, nil
}

// AlignedAllocate returns a pointer to at least n usable bytes, aligned
// to align (rounded up to a power of two at least as large as the
// engine's own alignment quantum). Always carves from an arena, never
// the oversize-mmap path, so the leading/trailing slack it releases is
// always an ordinary chunk.
func (m *Mutator) AlignedAllocate(align, n int64) (unsafe.Pointer, error) {
	if h := m.alloc.getHooks(); h.AlignedAllocate != nil {
		if p, ok := h.AlignedAllocate(align, n); ok {
			return unsafe.Pointer(p), nil
		}
	}
	if align <= alignment {
		size, ok := requestToChunkSize(n)
		if !ok {
			return nil, ErrRequestTooLarge
		}
		c, err := m.allocateArenaOnly(size)
		if err != nil {
			return nil, err
		}
		cfg := m.alloc.config()
		perturbOnAlloc(c.chunk2mem(), c.usableSize(), &cfg)
		return c.chunk2mem(), nil
	}

	if !lib.IsPowerOfTwo(align) || align < alignment {
		a2 := int64(alignment)
		for a2 < align {
			a2 <<= 1
		}
		align = a2
	}

	req, ok := requestToChunkSize(n)
	if !ok {
		return nil, ErrRequestTooLarge
	}
	overSize, ok := requestToChunkSize(req - headerSize + align + minChunkSize)
	if !ok {
		return nil, ErrRequestTooLarge
	}

	c, err := m.allocateArenaOnly(overSize)
	if err != nil {
		return nil, err
	}

	base := uintptr(c.chunk2mem())
	alignedMem := (base + uintptr(align) - 1) &^ (uintptr(align) - 1)

	if alignedMem == base {
		m.shrinkAndReleaseTail(c, req)
		cfg := m.alloc.config()
		perturbOnAlloc(c.chunk2mem(), c.usableSize(), &cfg)
		return c.chunk2mem(), nil
	}

	aligned := mem2chunk(unsafe.Pointer(alignedMem))
	lead := int64(uintptr(aligned) - uintptr(c))
	if lead < minChunkSize {
		aligned = aligned.nextAt(align)
		lead = int64(uintptr(aligned) - uintptr(c))
	}

	total := c.size()
	wasAux := c.nonMainArena()
	c.setSize(lead)
	flags := flagPrevInUse
	if wasAux {
		flags |= flagNonMainArena
	}
	aligned.setSizeAndFlags(total-lead, flags)

	m.Release(c.chunk2mem())
	m.shrinkAndReleaseTail(aligned, req)

	cfg := m.alloc.config()
	perturbOnAlloc(aligned.chunk2mem(), aligned.usableSize(), &cfg)
	return aligned.chunk2mem(), nil
}

// shrinkAndReleaseTail splits req bytes off the front of c and, if a
// remainder results, releases it through the ordinary release path.
func (m *Mutator) shrinkAndReleaseTail(c chunk, req int64) {
	if c.size() <= req {
		return
	}
	a := m.alloc.ownerOf(c)
	a.lock()
	rem := split(c, req)
	if rem.valid() {
		// split leaves rem marked free; mark it in use so Release
		// accepts it.
		rem.next().setPrevInUse()
	}
	a.unlock()
	if rem.valid() {
		m.Release(rem.chunk2mem())
	}
}

func copyBytes(dst, src unsafe.Pointer, n int64) {
	if n <= 0 {
		return
	}
	lib.Memcpy(dst, src, int(n))
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// tryForwardExtend absorbs c's physical successor (or top) in place if
// doing so reaches needSize, leaving c at its original address.
// Returns false if the successor is in use or still insufficient, in
// which case the caller must fall back to allocate-copy-release.
func (a *arena) tryForwardExtend(c chunk, needSize int64) bool {
	n := c.next()

	if n == a.top {
		combined := c.size() + n.size()
		if combined < needSize {
			return false
		}
		c.setSize(combined)
		_, newTop := topSplit(c, needSize)
		a.top = newTop
		return true
	}

	if n.next().prevInUse() {
		return false
	}
	combined := c.size() + n.size()
	if combined < needSize {
		return false
	}
	idx := binIndexForSize(n.size())
	a.binRemove(idx, n)
	c.setSize(combined)
	rem := split(c, needSize)
	if rem.valid() {
		a.unsortedInsert(rem)
	}
	return true
}
