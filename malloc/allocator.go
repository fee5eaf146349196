package malloc

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/bnclabs/ballast/sysmem"
)

// Hooks lets an application intercept every public entry point ahead
// of the engine, per spec.md §9's "hook variables" design note.
// A hook that returns true bypasses the engine for that call; one that
// returns false lets the call fall through to the engine. A nil field
// means no interception for that entry.
type Hooks struct {
	Allocate        func(n int64) (uintptr, bool)
	Release         func(p uintptr) bool
	Reallocate      func(p uintptr, n int64) (uintptr, bool)
	AlignedAllocate func(align, n int64) (uintptr, bool)
}

// Allocator is the process-wide allocator state: the primary arena,
// any auxiliary arenas created under contention, the heap index used
// to recover a non-primary chunk's owning arena, and the mutable
// tuning parameters. Obtain one with NewAllocator and a *Mutator per
// goroutine with NewMutator.
type Allocator struct {
	src sysmem.Source

	cfgMu sync.Mutex
	cfg   Config

	primary *arena

	arenaMu   sync.Mutex // serializes arena creation and the free-arena list
	arenas    []*arena
	arenaTail *arena // for round-robin insertion into the circular list

	heapMu    sync.Mutex
	heapIndex map[uintptr]*heap

	mmapCount int32

	hooksMu sync.Mutex
	hooks   Hooks
}

// NewAllocator builds an Allocator from cfg, reserving the primary
// arena's contiguous heap up front. ArenaMax of 0 resolves to 8 times
// NumCPU, matching the source's default arena-creation policy.
func NewAllocator(cfg Config, src sysmem.Source) (*Allocator, error) {
	if cfg.ArenaMax == 0 {
		cfg.ArenaMax = 8 * runtime.NumCPU()
	}
	alloc := &Allocator{
		src:       src,
		cfg:       cfg,
		heapIndex: make(map[uintptr]*heap),
	}
	primary, err := newPrimaryArena(alloc)
	if err != nil {
		return nil, err
	}
	alloc.primary = primary
	alloc.arenas = []*arena{primary}
	alloc.arenaTail = primary
	return alloc, nil
}

// config returns a snapshot of the current tuning parameters, safe
// for the hot path to read without further locking.
func (alloc *Allocator) config() Config {
	alloc.cfgMu.Lock()
	cfg := alloc.cfg
	alloc.cfgMu.Unlock()
	return cfg
}

// SetHooks installs application-supplied interception hooks.
func (alloc *Allocator) SetHooks(h Hooks) {
	alloc.hooksMu.Lock()
	alloc.hooks = h
	alloc.hooksMu.Unlock()
}

func (alloc *Allocator) getHooks() Hooks {
	alloc.hooksMu.Lock()
	h := alloc.hooks
	alloc.hooksMu.Unlock()
	return h
}

// Tuning applies a named parameter change. Recognized names mirror
// spec.md §6's mallopt-equivalent surface. An unrecognized name
// returns ErrUnknownTuningParam; a value out of range for the named
// parameter returns ErrInvalidTuningValue.
func (alloc *Allocator) Tuning(param string, value int64) error {
	alloc.primary.lock()
	defer alloc.primary.unlock()
	alloc.cfgMu.Lock()
	defer alloc.cfgMu.Unlock()

	switch param {
	case "fast-ceiling":
		if value < 0 || value > maxFastRequestBytes {
			return ErrInvalidTuningValue
		}
		alloc.cfg.FastCeilingBytes = value
		if value == 0 {
			alloc.consolidateAllLocked()
		}
	case "trim-threshold":
		alloc.cfg.TrimThreshold = value
	case "top-pad":
		alloc.cfg.TopPad = value
	case "mmap-threshold":
		alloc.cfg.MmapThreshold = value
		alloc.cfg.MmapThresholdPinned = true
	case "mmap-max":
		alloc.cfg.MmapMax = int(value)
	case "perturb":
		alloc.cfg.Perturb = byte(value)
	case "arena-test":
		alloc.cfg.ArenaTest = int(value)
	case "arena-max":
		alloc.cfg.ArenaMax = int(value)
	case "tcache-count":
		alloc.cfg.TcacheCount = int(value)
	case "tcache-max":
		alloc.cfg.TcacheMax = int(value)
	case "tcache-unsorted-limit":
		alloc.cfg.TcacheUnsortedLimit = int(value)
	default:
		return ErrUnknownTuningParam
	}
	return nil
}

// consolidateAllLocked walks every arena and folds its fast bins into
// the unsorted queue. Called with cfg/primary locks held, from Tuning
// disabling fast bins.
func (alloc *Allocator) consolidateAllLocked() {
	alloc.arenaMu.Lock()
	arenas := append([]*arena(nil), alloc.arenas...)
	alloc.arenaMu.Unlock()
	for _, a := range arenas {
		if a == alloc.primary {
			a.consolidate()
			continue
		}
		a.lock()
		a.consolidate()
		a.unlock()
	}
}

// ownerOf recovers the arena owning a chunk address, per spec.md
// §4.7's M/A-flag recovery rule: M set means no arena (mapped chunk,
// caller should not reach here), A clear means the primary arena, A
// set means mask down to the heap boundary and consult the index.
func (alloc *Allocator) ownerOf(c chunk) *arena {
	if !c.nonMainArena() {
		return alloc.primary
	}
	base := heapBaseFor(uintptr(c))
	alloc.heapMu.Lock()
	h, ok := alloc.heapIndex[base]
	alloc.heapMu.Unlock()
	if !ok {
		abort(tagFreeInvalidPointer)
	}
	return h.owner
}

func (alloc *Allocator) addMmapCount(delta int32) int32 {
	return atomic.AddInt32(&alloc.mmapCount, delta)
}

func (alloc *Allocator) liveMmapCount() int32 {
	return atomic.LoadInt32(&alloc.mmapCount)
}
