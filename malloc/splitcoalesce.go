package malloc

// split carves n bytes off the front of free chunk c (size s >= n),
// leaving c allocated at size n. If the leftover is at least the
// minimum chunk size, a remainder chunk is built in place and
// returned for the caller to stage (unsorted bin or last-remainder);
// otherwise the whole chunk is handed to the caller (the excess
// becomes internal fragmentation) and nilChunk is returned.
func split(c chunk, n int64) chunk {
	s := c.size()
	remainder := s - n

	if remainder < minChunkSize {
		c.next().setPrevInUse()
		return nilChunk
	}

	c.setSize(n)
	r := c.nextAt(n)
	r.setSizeAndFlags(remainder, flagPrevInUse)
	r.linkBoundaryTag(remainder)
	return r
}

// forwardCoalesce absorbs p's physical successor if it is free, or
// merges p into the top chunk if the successor is top. Returns the
// (possibly larger) free chunk, which is a.top when merged into top.
func (a *arena) forwardCoalesce(p chunk) chunk {
	n := p.next()
	if n == a.top {
		p.setSize(p.size() + n.size())
		a.top = p
		return a.top
	}
	nn := n.next()
	if !nn.prevInUse() {
		idx := binIndexForSize(n.size())
		a.binRemove(idx, n)
		p.setSize(p.size() + n.size())
	}
	return p
}

// coalesce absorbs p's physical predecessor (backward) if free, then
// forwards into the successor/top. Returns the final merged chunk.
func (a *arena) coalesce(p chunk) chunk {
	if !p.prevInUse() {
		prevSize := p.prevSize()
		q := p.prev()
		if q.size() != prevSize {
			abort(tagCorruptedSizeVsPrevCons)
		}
		idx := binIndexForSize(q.size())
		a.binRemove(idx, q)
		q.setSize(q.size() + p.size())
		p = q
	}
	return a.forwardCoalesce(p)
}

// coalesceAndStage runs the full coalesce pass on a chunk that has
// just become free (from consolidate or a slow-path release) and
// deposits the result into the unsorted queue, unless it merged into
// top (which needs no bin membership).
func (a *arena) coalesceAndStage(c chunk) {
	merged := a.coalesce(c)
	if merged == a.top {
		checkTopSize(a)
		return
	}
	merged.linkBoundaryTag(merged.size())
	a.unsortedInsert(merged)
}
