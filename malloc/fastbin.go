package malloc

import "sync/atomic"

// fastBinPush pushes c onto fast-bin slot idx using a compare-and-swap
// loop on the head pointer, so a push can progress even while another
// goroutine holds a's mutex for slow-path work. The successor's P
// flag is left set: fast chunks are not coalesced until consolidate.
func (a *arena) fastBinPush(idx int, c chunk) {
	head := &a.fastbins[idx]
	for {
		old := atomic.LoadUintptr(head)
		if old != 0 && chunk(old) == c {
			abort(tagDoubleFreeFasttop)
		}
		c.setFastNext(chunk(old))
		if atomic.CompareAndSwapUintptr(head, old, uintptr(c)) {
			break
		}
	}
	atomic.StoreUint32(&a.haveFastChunks, 1)
}

// fastBinPop pops the head of fast-bin slot idx, or returns nilChunk
// if the bin is empty.
func (a *arena) fastBinPop(idx int) chunk {
	head := &a.fastbins[idx]
	for {
		old := atomic.LoadUintptr(head)
		if old == 0 {
			return nilChunk
		}
		c := chunk(old)
		next := uintptr(c.fastNext())
		if atomic.CompareAndSwapUintptr(head, old, next) {
			checkFastPop(c, idx)
			return c
		}
	}
}

// fastBinDetachAll atomically empties fast-bin slot idx and returns
// its former contents as a singly-linked chain (via fastNext), head
// first (most recently pushed).
func (a *arena) fastBinDetachAll(idx int) chunk {
	head := &a.fastbins[idx]
	old := atomic.SwapUintptr(head, 0)
	return chunk(old)
}

// consolidate drains every fast bin, coalescing each chunk with its
// free physical neighbors, and deposits the result into the unsorted
// queue (or folds it into top). Triggered before a non-fast bin scan
// when haveFastChunks is set, from Tuning, and from release paths
// that produce a chunk above the fast-consolidation threshold.
func (a *arena) consolidate() {
	atomic.StoreUint32(&a.haveFastChunks, 0)
	for idx := 0; idx < nFastBins; idx++ {
		c := a.fastBinDetachAll(idx)
		for c.valid() {
			next := c.fastNext()
			if c.size() <= 0 {
				abort(tagConsolidateInvalidSize)
			}
			a.coalesceAndStage(c)
			c = next
		}
	}
}

// fastConsolidationThreshold is the combined-chunk size above which a
// release triggers an eager consolidate pass (spec.md §4.4c).
const fastConsolidationThreshold = 65536
