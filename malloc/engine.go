package malloc

import "sync/atomic"

// allocateFromArena is the slow-path engine dispatch: fast bin, exact
// small bin, unsorted drain, binmap best-fit scan, and finally top
// extension / OS acquisition, in the order spec.md §2's data-flow
// names. tc, if non-nil, receives opportunistic prewarm deposits so
// the calling Mutator's next same-size request is free.
func (alloc *Allocator) allocateFromArena(a *arena, size int64, tc *tcache) (chunk, error) {
	cfg := alloc.config()
	if idx, ok := fastBinIndex(size); ok && size <= cfg.fastCeilingChunkSize() {
		if c := a.fastBinPop(idx); c.valid() {
			a.prewarmTcacheFromFast(idx, size, tc)
			return c, nil
		}
	}

	if inSmallBinRange(size) {
		sidx := smallBinIndex(size)
		if c := a.smallBinPopOldest(sidx); c.valid() {
			c.next().setPrevInUse()
			a.prewarmTcacheFromSmall(sidx, size, tc)
			return c, nil
		}
	}

	// Only now, about to fall through to the slower unsorted/binmap
	// scan, fold any pending fast-bin chunks into their neighbors:
	// consolidating earlier would defeat the fast bin's exact-size
	// pop above on every other allocation.
	if atomic.LoadUint32(&a.haveFastChunks) != 0 {
		a.consolidate()
	}

	if c, ok := a.drainUnsorted(size, tc); ok {
		return c, nil
	}

	if c, ok := a.scanBinmap(size); ok {
		return c, nil
	}

	return alloc.extendTopAndCarve(a, size)
}

// releaseToArena is the slow-path engine dispatch for a chunk the
// calling Mutator's tcache already declined (bucket full, size out of
// range, or tcache absent): fast bin if small enough, otherwise
// coalesce with physical neighbors and stage in the unsorted bin or
// fold into top.
func (a *arena) releaseToArena(c chunk) {
	size := c.size()
	cfg := a.alloc.config()

	if c == a.top {
		abort(tagDoubleFreeTop)
	}

	if idx, ok := fastBinIndex(size); ok && size <= cfg.fastCeilingChunkSize() {
		checkFastSuccessor(a, c)
		a.fastBinPush(idx, c)
		return
	}

	checkFreeSuccessor(a, c)
	merged := a.coalesce(c)
	if merged == a.top {
		checkTopSize(a)
		if cfg.TrimThreshold >= 0 && a.top.size() > cfg.TrimThreshold {
			a.topTrim(a.alloc, cfg.TopPad)
		}
		return
	}
	merged.linkBoundaryTag(merged.size())
	a.unsortedInsert(merged)
	if merged.size() >= fastConsolidationThreshold {
		a.consolidate()
	}
}

func tcacheIndexFor(size int64, a *arena) (int, bool) {
	return tcacheBinIndex(size, a.alloc.config().TcacheMax)
}

func (a *arena) prewarmTcacheFromFast(idx int, size int64, tc *tcache) {
	if tc == nil {
		return
	}
	tidx, ok := tcacheIndexFor(size, a)
	if !ok {
		return
	}
	for !tc.full(tidx) {
		c := a.fastBinPop(idx)
		if !c.valid() {
			break
		}
		tc.push(tidx, c)
	}
}

func (a *arena) prewarmTcacheFromSmall(idx int, size int64, tc *tcache) {
	if tc == nil {
		return
	}
	tidx, ok := tcacheIndexFor(size, a)
	if !ok {
		return
	}
	for !tc.full(tidx) {
		c := a.smallBinPopOldest(idx)
		if !c.valid() {
			break
		}
		c.next().setPrevInUse()
		tc.push(tidx, c)
	}
}

// drainUnsorted implements spec.md §4.5's unsorted-queue drain,
// including the last-remainder fast path and the opportunistic
// tcache-deposit behavior spec.md §4.3 names: the first exact-size
// match found is held as the candidate to return, further exact
// matches are deposited into tc while room remains, and the candidate
// is finally returned once the queue drains, the iteration cap is
// hit, or the configured unsorted-processed limit is reached.
func (a *arena) drainUnsorted(req int64, tc *tcache) (chunk, bool) {
	const iterLimit = 10000
	bh := &a.bins[unsortedBinIndex]

	if inSmallBinRange(req) && bh.head.valid() && bh.head == bh.tail && bh.head == a.lastRemainder {
		t := bh.head
		if t.size() >= req+minChunkSize {
			a.unsortedUnlink(t)
			rem := split(t, req)
			if rem.valid() {
				a.lastRemainder = rem
				a.unsortedInsert(rem)
			} else {
				a.lastRemainder = nilChunk
			}
			return t, true
		}
	}

	var found chunk
	processedSinceFound := 0
	unsortedLimit := a.alloc.config().TcacheUnsortedLimit

	for i := 0; i < iterLimit; i++ {
		t := bh.tail
		if !t.valid() {
			break
		}
		checkUnsortedChunk(a, t)
		a.unsortedUnlink(t)

		if t.size() == req {
			if !found.valid() {
				found = t
			} else if tidx, ok := tcacheIndexFor(t.size(), a); ok && tc != nil && !tc.full(tidx) {
				t.next().setPrevInUse()
				tc.push(tidx, t)
			} else {
				a.binInsert(binIndexForSize(t.size()), t)
			}
		} else {
			a.binInsert(binIndexForSize(t.size()), t)
		}

		if found.valid() {
			processedSinceFound++
			if processedSinceFound >= unsortedLimit {
				break
			}
		}
	}

	if found.valid() {
		found.next().setPrevInUse()
		return found, true
	}
	return nilChunk, false
}

// largeBinBestFit finds the smallest chunk in large bin idx whose
// size is still >= req, walking the nextsize ring from the smallest
// representative upward per spec.md §4.5 (glibc advances bk_nextsize
// while size < nb and stops at the first one that fits).
func (a *arena) largeBinBestFit(idx int, req int64) (chunk, bool) {
	bh := &a.bins[idx]
	if bh.empty() || bh.head.size() < req {
		return nilChunk, false
	}
	best := bh.head // largest representative: guaranteed to fit by the check above
	for r := bh.head.bkNextsize(); r != bh.head; r = r.bkNextsize() {
		if r.size() >= req {
			best = r
			break
		}
	}
	if best.fd().valid() && best.fd().size() == best.size() {
		// prefer the duplicate right behind the representative, so
		// unlink does not need to rewire the skip list.
		best = best.fd()
	}
	a.largeBinRemove(idx, best)
	return best, true
}

// splitOrWhole carves req bytes off c, staging any remainder in the
// unsorted bin, and hands the front piece to the caller.
func (a *arena) splitOrWhole(c chunk, req int64) (chunk, bool) {
	rem := split(c, req)
	if rem.valid() {
		a.unsortedInsert(rem)
	}
	return c, true
}

// scanBinmap is the fallback once the unsorted drain found no exact
// fit: try the request's own bin with a best-fit walk (large bins
// only; small-bin exact pop already happened), then use the binmap
// to find the first strictly larger non-empty bin.
func (a *arena) scanBinmap(req int64) (chunk, bool) {
	idx := binIndexForSize(req)
	switch {
	case idx >= 2 && idx < nSmallBins:
		idx++
	case idx >= nSmallBins:
		if c, ok := a.largeBinBestFit(idx, req); ok {
			return a.splitOrWhole(c, req)
		}
		idx++
	}

	next := a.binmap.nextSet(idx)
	if next < 0 {
		return nilChunk, false
	}
	bh := &a.bins[next]
	c := bh.head
	if !c.valid() {
		a.binmap.clear(next)
		return a.scanBinmap(req)
	}
	a.binRemove(next, c)
	return a.splitOrWhole(c, req)
}
