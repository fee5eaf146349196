package malloc

// Config holds the process-wide tunable parameters: mmap threshold,
// trim threshold, top-pad, arena cap, tcache caps, fast-bin ceiling,
// and the perturb byte. It is initialized once by NewAllocator and
// thereafter mutated by Allocator.Tuning, which holds the primary
// arena's mutex and cfgMu, and by the adaptive mmap-threshold update,
// which holds cfgMu (spec.md §5's "process-wide parameters" rule).
type Config struct {
	// FastCeilingBytes bounds which request sizes use a fast bin; 0
	// disables fast bins. Tuning rejects values outside
	// [0, maxFastRequestBytes] with ErrInvalidTuningValue.
	FastCeilingBytes int64

	// TrimThreshold is the residual top-chunk size above which a
	// release auto-trims. -1 disables auto-trim.
	TrimThreshold int64

	// TopPad is added to every heap-extension request beyond the
	// immediate need.
	TopPad int64

	// MmapThreshold is the size at or above which an allocation is
	// served by page-mapping instead of from an arena. May adapt
	// dynamically unless MmapThresholdPinned is set.
	MmapThreshold      int64
	MmapThresholdPinned bool

	// MmapMax caps simultaneously-live page-mapped chunks; 0 disables
	// mmap entirely.
	MmapMax int

	// Perturb, if non-zero, fills every freshly allocated region with
	// Perturb^0xFF and every released region with Perturb.
	Perturb byte

	// ArenaTest and ArenaMax bound arena-creation policy: ArenaTest is
	// a soft hint evaluated before NCPU-scaled growth, ArenaMax a hard
	// cap on live arenas.
	ArenaTest int
	ArenaMax  int

	// TcacheCount is the per-class chunk cap, TcacheMax the number of
	// size classes, TcacheUnsortedLimit the unsorted-processed count
	// after which a pending tcache deposit is returned rather than
	// continuing to drain.
	TcacheCount         int
	TcacheMax           int
	TcacheUnsortedLimit int

	// HeapSize is the aligned size of a non-primary arena's heap
	// mapping (spec.md §3: "typically 64 MiB aligned").
	HeapSize int64

	// PrimaryReservation is the virtual address range reserved for the
	// primary arena's contiguous heap at startup.
	PrimaryReservation int64
}

// DefaultConfig mirrors the source's compiled-in defaults.
func DefaultConfig() Config {
	return Config{
		FastCeilingBytes:    defaultFastCeilingBytes,
		TrimThreshold:       128 * 1024,
		TopPad:              0,
		MmapThreshold:       128 * 1024,
		MmapThresholdPinned: false,
		MmapMax:             65536,
		Perturb:             0,
		ArenaTest:           2,
		ArenaMax:            0, // 0 means "8 * NumCPU", resolved by NewAllocator
		TcacheCount:         tcacheDefaultCount,
		TcacheMax:           nTcacheBinsDefault,
		TcacheUnsortedLimit: 10000,
		HeapSize:            64 * 1024 * 1024,
		PrimaryReservation:  1 << 32, // 4 GiB, ample for overcommit-backed growth
	}
}

// fastCeilingChunkSize converts the configured request-byte ceiling to
// a chunk size for comparison against chunk.size().
func (c *Config) fastCeilingChunkSize() int64 {
	if c.FastCeilingBytes == 0 {
		return 0
	}
	size, _ := requestToChunkSize(c.FastCeilingBytes)
	return size
}
