package malloc

import "github.com/bnclabs/ballast/lib"

// binmap is a flat bitmap, one bit per bin, packed into two 64-bit
// words (128 bins total, nBins). A set bit means "this bin may be
// non-empty"; scans clear it lazily on finding the bin actually empty.
// Unlike the teacher's hierarchical freebits tree, 128 bins fit two
// machine words without needing multi-level nesting.
type binmap [2]lib.Bit64

func wordAndBit(idx int) (word int, bit uint8) {
	return idx / 64, uint8(idx % 64)
}

func (bm *binmap) mark(idx int) {
	w, b := wordAndBit(idx)
	bm[w] = bm[w].Setbit(b)
}

func (bm *binmap) clear(idx int) {
	w, b := wordAndBit(idx)
	bm[w] = bm[w].Clearbit(b)
}

func (bm *binmap) isMarked(idx int) bool {
	w, b := wordAndBit(idx)
	return bm[w]&(1<<b) != 0
}

// nextSet finds the lowest set bit at index >= idx, scanning the
// current word from bit idx%64 upward and then striding to the next
// word. Returns -1 if no bin at or above idx is marked.
func (bm *binmap) nextSet(idx int) int {
	w, b := wordAndBit(idx)
	for ; w < len(bm); w++ {
		word := bm[w]
		if b > 0 {
			word = word >> b << b
		}
		if fb := word.Findfirstset(); fb >= 0 {
			return w*64 + int(fb)
		}
		b = 0
	}
	return -1
}
