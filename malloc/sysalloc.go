package malloc

import "github.com/bnclabs/ballast/lib"

// mmapThresholdAdaptCap bounds dynamic mmap-threshold growth, mirroring
// the source's DEFAULT_MMAP_THRESHOLD_MAX for a 64-bit build.
const mmapThresholdAdaptCap = 32 * 1024 * 1024

func roundUpPage(n, pageSize int64) int64 {
	if pageSize <= 0 {
		return n
	}
	return lib.AlignUp(n, pageSize)
}

// allocateOversize page-maps a fresh standalone region for a request
// at or above the mmap threshold. The returned chunk carries M = 1,
// participates in no bin, and records its leading alignment slack in
// prev_size so munmapOversizeChunk can recover the raw mapping bounds.
func (alloc *Allocator) allocateOversize(reqSize int64) (chunk, error) {
	pageSize := alloc.src.PageSize()
	mapSize := roundUpPage(reqSize+wordSize, pageSize)
	base, err := alloc.src.MapOversize(mapSize)
	if err != nil {
		return nilChunk, err
	}
	aligned := (base + uintptr(alignment) - 1) &^ (uintptr(alignment) - 1)
	lead := int64(aligned - base)
	c := chunk(aligned)
	c.setPrevSize(lead)
	c.setSizeAndFlags(mapSize-lead, flagPrevInUse|flagMapped)
	alloc.addMmapCount(1)
	return c, nil
}

// munmapOversizeChunk releases a chunk obtained from allocateOversize
// and adapts the mmap/trim thresholds per spec.md §4.8.
func (alloc *Allocator) munmapOversizeChunk(c chunk) error {
	if !c.isMapped() {
		abort(tagMunmapInvalidPointer)
	}
	lead := c.prevSize()
	rawBase := uintptr(c) - uintptr(lead)
	rawSize := c.size() + lead
	alloc.addMmapCount(-1)
	alloc.maybeAdaptMmapThreshold(c.size())
	return alloc.src.UnmapOversize(rawBase, rawSize)
}

func (alloc *Allocator) maybeAdaptMmapThreshold(size int64) {
	alloc.cfgMu.Lock()
	defer alloc.cfgMu.Unlock()
	if alloc.cfg.MmapThresholdPinned {
		return
	}
	if size > alloc.cfg.MmapThreshold && size <= mmapThresholdAdaptCap {
		alloc.cfg.MmapThreshold = size
		alloc.cfg.TrimThreshold = size * 2
	}
}

// growNewHeap maps a fresh heap-aligned region of at least size
// bytes for a non-primary arena, registering it in the heap index so
// ownerOf can recover owner from any chunk address inside it.
func (alloc *Allocator) growNewHeap(owner *arena, size int64) (*heap, error) {
	raw, err := alloc.src.MapOversize(size + heapAlign)
	if err != nil {
		return nil, err
	}
	aligned := (raw + uintptr(heapAlign) - 1) &^ (uintptr(heapAlign) - 1)
	h := &heap{
		owner:     owner,
		rawBase:   raw,
		rawSize:   size + heapAlign,
		base:      aligned,
		size:      size,
		committed: size,
	}
	alloc.heapMu.Lock()
	alloc.heapIndex[aligned] = h
	alloc.heapMu.Unlock()
	return h, nil
}

// topSplit carves need bytes off the front of the top chunk. Unlike
// split, it never touches a successor header: top has no real
// successor chunk in committed memory, since it is the wilderness
// edge of whatever has been mapped so far.
func topSplit(top chunk, need int64) (allocated, newTop chunk) {
	remainder := top.size() - need
	if remainder >= minChunkSize {
		top.setSize(need)
		r := top.nextAt(need)
		r.setSizeAndFlags(remainder, flagPrevInUse)
		return top, r
	}
	return top, nilChunk
}

// extendTopAndCarve grows a's top chunk until it can satisfy need
// bytes, then carves need off the front and returns the allocated
// chunk with a's top left pointing at the remainder.
func (alloc *Allocator) extendTopAndCarve(a *arena, need int64) (chunk, error) {
	for !a.top.valid() || a.top.size() < need+minChunkSize {
		var err error
		if a.primary {
			err = alloc.extendPrimaryTop(a, need)
		} else {
			err = alloc.extendAuxTop(a, need)
		}
		if err != nil {
			return nilChunk, err
		}
	}
	allocated, newTop := topSplit(a.top, need)
	a.top = newTop
	checkTopSize(a)
	return allocated, nil
}

// extendPrimaryTop grows the primary arena's contiguous reservation,
// relying on ReserveHeap's up-front virtual-address reservation (and
// OS overcommit) so ExtendHeap's watermark bump is, by construction,
// always contiguous with the existing top. If the reservation itself
// is exhausted, falls back to a standalone page-mapped top.
func (alloc *Allocator) extendPrimaryTop(a *arena, need int64) error {
	cfg := alloc.config()
	reqSize := need + cfg.TopPad + minChunkSize
	if a.top.valid() {
		reqSize -= a.top.size()
	}
	if reqSize < 0 {
		reqSize = 0
	}
	reqSize = roundUpPage(reqSize, alloc.src.PageSize())

	newCommitted := a.committed + reqSize
	if a.contiguous && newCommitted <= a.reservationCap {
		if _, err := alloc.src.ExtendHeap(a.reservationBase, newCommitted); err == nil {
			if !a.top.valid() {
				a.top = mem2chunkAt(a.reservationBase)
				a.top.setSizeAndFlags(reqSize, flagPrevInUse)
			} else {
				a.top.setSize(a.top.size() + reqSize)
			}
			a.committed = newCommitted
			a.systemMem = newCommitted
			if a.systemMem > a.peakMem {
				a.peakMem = a.systemMem
			}
			return nil
		}
	}
	return alloc.fallbackOversizeTop(a, need, &cfg)
}

// fallbackOversizeTop abandons the old top behind a fencepost (so
// nothing ever coalesces across the gap) and starts a fresh top from
// a standalone page mapping, marking the arena non-contiguous.
func (alloc *Allocator) fallbackOversizeTop(a *arena, need int64, cfg *Config) error {
	if a.top.valid() && a.top.size() >= 2*minChunkSize {
		f1 := a.top
		f1.setSizeAndFlags(minChunkSize, flagPrevInUse)
		f2 := f1.nextAt(minChunkSize)
		f2.setSizeAndFlags(minChunkSize, flagPrevInUse)
	}
	size := roundUpPage(need+cfg.TopPad+minChunkSize, alloc.src.PageSize())
	base, err := alloc.src.MapOversize(size)
	if err != nil {
		return err
	}
	a.contiguous = false
	a.top = mem2chunkAt(base)
	a.top.setSizeAndFlags(size, flagPrevInUse)
	a.committed += size
	a.systemMem += size
	if a.systemMem > a.peakMem {
		a.peakMem = a.systemMem
	}
	return nil
}

// extendAuxTop chains a fresh heap onto a non-primary arena. The old
// top, if any, is abandoned: this fixed-size heap layout leaves no
// trailing room for a real fencepost chunk, and a fresh heap mapping
// is a disjoint address range regardless, so nothing can walk off the
// end of the old one into it.
func (alloc *Allocator) extendAuxTop(a *arena, need int64) error {
	cfg := alloc.config()
	size := cfg.HeapSize
	if need+minChunkSize > size {
		size = roundUpPage(need+minChunkSize, alloc.src.PageSize())
	}
	h, err := alloc.growNewHeap(a, size)
	if err != nil {
		return err
	}
	h.prev = a.heaps
	a.heaps = h
	a.top = mem2chunkAt(h.base)
	a.top.setSizeAndFlags(h.committed, flagPrevInUse|flagNonMainArena)
	a.committed += h.committed
	a.systemMem += h.committed
	if a.systemMem > a.peakMem {
		a.peakMem = a.systemMem
	}
	return nil
}
