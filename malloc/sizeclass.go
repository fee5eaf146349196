package malloc

// Size-class indexing, computed from a chunk size (not a raw request
// size). See SPEC_FULL.md §9.2 for
// the ABI this targets: 64-bit, 16-byte alignment.

// nSmallBins mirrors glibc's NSMALLBINS: small-bin index space, bins
// 2..63 hold exact-size chunks in steps of one alignment quantum.
const nSmallBins = 64

// minLargeSize is the smallest chunk size that falls outside the
// small-bin range: nSmallBins * alignment.
const minLargeSize = int64(nSmallBins) * alignment

// nBins is the total bin count per arena: bin 0 unused, bin 1 the
// unsorted queue, bins 2..63 small, bins 64..126 large, bin 127 unused
// (128 bins total, matching spec.md §3's "Bin" definition).
const nBins = 128

const unsortedBinIndex = 1

// nFastBins bounds the fast-bin array. The configurable fast-ceiling
// tuning parameter (spec.md §6) can raise the active ceiling up to
// maxFastRequestBytes; the array is sized for that ceiling regardless
// of the currently configured value so tuning never reallocates it.
const nFastBins = 10

// maxFastRequestBytes is the largest request size (in payload bytes,
// not chunk size) the fast-ceiling tuning parameter may select. This
// mirrors glibc's real MAX_FAST_SIZE (80 * SIZE_SZ / 4 for 64-bit
// SIZE_SZ=8), not the "0-80" shorthand in spec.md §6's parameter list,
// which is documentation shorthand for the same quantity scaled by
// word size; see DESIGN.md for this Open-Question resolution.
const maxFastRequestBytes = 160

// defaultFastCeilingBytes is the fast-ceiling default before any
// Tuning call, matching glibc's DEFAULT_MXFAST (64 * SIZE_SZ / 4).
const defaultFastCeilingBytes = 128

// smallBinSize returns the exact chunk size small bin idx holds.
func smallBinSize(idx int) int64 {
	return int64(idx) * alignment
}

// inSmallBinRange reports whether size (a chunk size, not a request)
// falls in the small-bin domain.
func inSmallBinRange(size int64) bool {
	return size < minLargeSize
}

// smallBinIndex maps a small-bin-range chunk size to its bin index.
func smallBinIndex(size int64) int {
	return int(size / alignment)
}

// largeBinIndex maps a chunk size in the large-bin domain (size >=
// minLargeSize) to one of bins 64..126. The piecewise-log thresholds
// are glibc's largebin_index_64, reproduced verbatim per spec.md
// §4.2's requirement that bin boundaries "must match the source for
// ABI-stable layout."
func largeBinIndex(size int64) int {
	switch {
	case (size >> 6) <= 48:
		return 48 + int(size>>6)
	case (size >> 9) <= 20:
		return 91 + int(size>>9)
	case (size >> 12) <= 10:
		return 110 + int(size>>12)
	case (size >> 15) <= 4:
		return 119 + int(size>>15)
	case (size >> 18) <= 2:
		return 124 + int(size>>18)
	default:
		return 126
	}
}

// binIndexForSize maps any allocatable chunk size to its bin index
// (small or large; never the unsorted bin, which is populated only by
// frees and drains, not by direct lookup).
func binIndexForSize(size int64) int {
	if inSmallBinRange(size) {
		return smallBinIndex(size)
	}
	return largeBinIndex(size)
}

// fastBinIndex maps a chunk size to a fast-bin slot. ok is false when
// size exceeds the largest size the fast-bin array can address.
func fastBinIndex(size int64) (idx int, ok bool) {
	idx = int(size/alignment) - 2
	if idx < 0 || idx >= nFastBins {
		return 0, false
	}
	return idx, true
}

// fastBinSizeForIndex is the inverse of fastBinIndex, used by
// integrity checks (P12: "a chunk on fast bin k has size in the
// closed interval corresponding to k").
func fastBinSizeForIndex(idx int) int64 {
	return int64(idx+2) * alignment
}

// nTcacheBinsDefault mirrors glibc's TCACHE_MAX_BINS.
const nTcacheBinsDefault = 64

// tcacheBinIndex maps a chunk size to a tcache bucket. ok is false
// when size exceeds the configured tcache class count.
func tcacheBinIndex(size int64, maxBins int) (idx int, ok bool) {
	idx = int((size - minChunkSize) / alignment)
	if idx < 0 || idx >= maxBins {
		return 0, false
	}
	return idx, true
}

// tcacheBinSizeForIndex is the inverse of tcacheBinIndex.
func tcacheBinSizeForIndex(idx int) int64 {
	return minChunkSize + int64(idx)*alignment
}
