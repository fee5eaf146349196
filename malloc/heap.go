package malloc

// heapAlignShift sizes and aligns every non-primary heap mapping to
// 64 MiB, so an arena pointer for any chunk in such a heap is
// recoverable by masking the chunk's address down to this boundary
// and consulting the Allocator's heap index (see Allocator.ownerOf).
// Unlike the source, which embeds the heap header directly in the
// mapped memory, ballast keeps heap headers as ordinary Go values in
// a map: storing a live *arena inside manually managed memory would
// fight the garbage collector for no benefit here.
const heapAlignShift = 26

const heapAlign = int64(1) << heapAlignShift

func heapBaseFor(addr uintptr) uintptr {
	const mask = uintptr(1)<<heapAlignShift - 1
	return addr &^ mask
}

// heap is the backing region for a non-primary arena: a fixed-size,
// heap-aligned mapping. An arena chains heaps as it grows (heap.prev).
type heap struct {
	owner     *arena
	prev      *heap
	rawBase   uintptr // address actually returned by the OS mapping call
	rawSize   int64   // size of that raw mapping (>= size, to allow alignment)
	base      uintptr // heapAlign-aligned usable base, inside [rawBase, rawBase+rawSize)
	size      int64   // usable size from base
	committed int64   // bytes currently in the arena's top/bin space
}
