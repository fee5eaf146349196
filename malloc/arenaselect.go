package malloc

// acquireArena implements spec.md §4.11's arena-selection policy: try
// the Mutator's preferred (current) arena first, then walk the live
// arena list for one that trylocks cleanly, then create a new arena
// (below ArenaTest a new arena is tried before the walk at all, so a
// fresh Allocator ramps up concurrency quickly), and finally fall back
// to a blocking lock rather than fail the request.
func (alloc *Allocator) acquireArena(preferred *arena) *arena {
	if preferred != nil && preferred.tryLock() {
		return preferred
	}

	alloc.arenaMu.Lock()
	count := len(alloc.arenas)
	snapshot := append([]*arena(nil), alloc.arenas...)
	alloc.arenaMu.Unlock()

	cfg := alloc.config()

	if count < cfg.ArenaTest {
		if a := alloc.tryCreateArena(count); a != nil {
			a.lock()
			return a
		}
	}

	for _, a := range snapshot {
		if a == preferred {
			continue
		}
		if a.tryLock() {
			return a
		}
	}

	if a := alloc.tryCreateArena(count); a != nil {
		a.lock()
		return a
	}

	fallback := alloc.primary
	if preferred != nil {
		fallback = preferred
	}
	fallback.lock()
	return fallback
}

// tryCreateArena appends a fresh auxiliary arena to the circular live
// list, unless observedCount already reached the configured cap.
// Rechecked under arenaMu since observedCount may be stale.
func (alloc *Allocator) tryCreateArena(observedCount int) *arena {
	cfg := alloc.config()
	if observedCount >= cfg.ArenaMax {
		return nil
	}

	alloc.arenaMu.Lock()
	defer alloc.arenaMu.Unlock()
	if len(alloc.arenas) >= cfg.ArenaMax {
		return nil
	}

	a, err := newAuxArena(alloc, len(alloc.arenas))
	if err != nil {
		return nil
	}

	tail := alloc.arenaTail
	a.next = tail.next
	tail.next = a
	alloc.arenaTail = a
	alloc.arenas = append(alloc.arenas, a)
	return a
}
