// Package malloc supplies a general-purpose, concurrent, dynamic memory
// allocator exposing the classical free-store interface (allocate,
// release, reallocate, aligned-allocate) to an arbitrary number of
// concurrent mutator goroutines.
//
//   - Chunks are tracked with boundary tags: a header carries size plus
//     three status flags (previous-in-use, mapped, non-primary-arena),
//     and a free chunk writes a trailing size word into its successor
//     so backward coalescing is O(1).
//   - Small, hot allocations are absorbed by a per-mutator cache
//     (tcache) that never touches a lock.
//   - Per-arena fast bins hold small freed chunks in lock-free LIFO
//     stacks, exempt from coalescing until a bulk consolidate step.
//   - Small bins are exact-size FIFO queues; large bins are size-sorted
//     with a skip list for best-fit; an unsorted queue stages freshly
//     freed chunks between the two.
//   - Multiple arenas let independent goroutines allocate and free
//     without contending on a single lock; a mutator that fails to lock
//     any arena creates a new one, up to a configurable cap.
//   - Memory is acquired from the OS through the sysmem package: a
//     contiguous, growable heap for the primary arena, and page-mapped
//     heaps or oversize chunks elsewhere.
//
// A *Mutator is the unit of thread-affinity: obtain one per goroutine
// from an *Allocator and call Allocate/Release/Reallocate on it. This
// stands in for the OS-thread-local cache that non-Go allocators key
// off of, since goroutines have no stable OS-thread identity.
//
// Diagnostic printing, statistics reporting, and the OS memory
// primitives themselves are treated as external collaborators (the
// sysmem package) rather than part of the engine.
package malloc

// TODO: pool-level release to the OS on a per-heap basis (see trim.go)
// only reclaims a non-primary arena's trailing heaps; the primary
// arena's contiguous reservation is released solely at process exit.
