// ABOUTME: Address-ordered free-list allocator shared by mark-sweep and the
// ABOUTME: generational backend's tenured region, with coalescing and fragmentation stats

// Package freelist implements the non-moving allocator of spec §3.4/§4.2:
// one fixed-capacity arena managed by an address-ordered free list with
// first-fit allocation, block splitting, and neighbor coalescing, plus a
// doubly-linked object list threaded through headers so a sweep can walk
// only live+freed objects without rewalking the free list.
//
// Header metadata (the mark bit, trace callback, tag, object-list links)
// is kept in a side table keyed by payload offset rather than packed into
// the arena bytes: this is the "typed slot" translation of SPEC_FULL.md
// §0 and keeps the implementation free of unsafe pointer arithmetic while
// preserving every byte-accounting invariant the spec cares about (the
// arena bytes a caller reads via Payload are exactly the bytes it wrote).
package freelist

import (
	"github.com/wyrmlisp/gctrace/gc"
)

// MinBlockSize is the smallest payload region the allocator will carve
// off as its own block; requests below this are rounded up to it, and a
// split remainder below it is absorbed into the allocated block instead
// of becoming a free block, mirroring spec §4.2's MIN_BLOCK_SIZE floor.
const MinBlockSize = 2 * gc.PointerAlign

// Header is the per-object metadata mark-sweep-style backends attach to
// an allocation.
type Header struct {
	Offset      int
	BlockSize   int // bytes reserved in the arena, including internal padding
	PayloadSize int // bytes actually requested (not rounded up)
	Marked      bool
	Trace       gc.TraceFunc
	Tag         gc.Tag
	prev, next  int // object-list links (payload offsets), -1 = none
}

type span struct {
	offset, size int
}

// Heap is one fixed-capacity, address-ordered free-list arena.
type Heap struct {
	arena    []byte
	capacity int

	free []span // kept sorted ascending by offset, never adjacent

	objects  map[int]*Header
	headOff  int // offset of first object in the object list, -1 if empty
	liveSize int // sum of PayloadSize over live objects

	allocatedBytes uint64
	freedBytes     uint64
	wastedBytes    uint64
	peakFragIndex  float64
	lastFragIndex  float64
}

// NewHeap allocates a fresh arena of the given capacity (rounded up to
// pointer alignment).
func NewHeap(capacity int) *Heap {
	capacity = gc.AlignSize(capacity)
	if capacity <= 0 {
		capacity = MinBlockSize
	}
	return &Heap{
		arena:    make([]byte, capacity),
		capacity: capacity,
		free:     []span{{offset: 0, size: capacity}},
		objects:  make(map[int]*Header),
		headOff:  -1,
	}
}

// Capacity returns the arena's total byte capacity.
func (h *Heap) Capacity() int { return h.capacity }

// Alloc reserves a block for size payload bytes using first-fit,
// splitting the chosen free block if the remainder is still usable. It
// returns the payload offset and true on success, or false if no free
// block is large enough (the caller is expected to collect and retry).
func (h *Heap) Alloc(size int) (offset int, ok bool) {
	need := gc.AlignSize(size)
	if need < MinBlockSize {
		need = MinBlockSize
	}
	for i, sp := range h.free {
		if sp.size < need {
			continue
		}
		offset = sp.offset
		remainder := sp.size - need
		blockSize := need
		if remainder >= MinBlockSize {
			h.free[i] = span{offset: sp.offset + need, size: remainder}
		} else {
			blockSize = sp.size // absorb the unusable remainder into this block
			h.free = append(h.free[:i], h.free[i+1:]...)
		}
		h.linkNew(offset, blockSize, size)
		for j := offset; j < offset+size; j++ {
			h.arena[j] = 0
		}
		h.allocatedBytes += uint64(size)
		h.wastedBytes += uint64(blockSize - gc.AlignSize(size))
		h.liveSize += size
		return offset, true
	}
	return 0, false
}

func (h *Heap) linkNew(offset, blockSize, requested int) {
	hdr := &Header{
		Offset:      offset,
		BlockSize:   blockSize,
		PayloadSize: requested,
		prev:        -1,
		next:        h.headOff,
	}
	if h.headOff != -1 {
		h.objects[h.headOff].prev = offset
	}
	h.headOff = offset
	h.objects[offset] = hdr
}

// Payload returns the live slice of arena bytes backing offset's
// allocation, sized to the originally requested length (not the padded
// block size).
func (h *Heap) Payload(offset int) []byte {
	hdr := h.objects[offset]
	if hdr == nil {
		return nil
	}
	return h.arena[offset : offset+hdr.PayloadSize]
}

// Header returns the metadata for a live offset, or nil if it is not
// currently allocated.
func (h *Heap) Header(offset int) *Header {
	return h.objects[offset]
}

// unlink removes hdr from the object list and drops its metadata without
// returning its span to the free list; Free, its only caller, inserts the
// span right after.
func (h *Heap) unlink(hdr *Header) {
	if hdr.prev != -1 {
		h.objects[hdr.prev].next = hdr.next
	} else {
		h.headOff = hdr.next
	}
	if hdr.next != -1 {
		h.objects[hdr.next].prev = hdr.prev
	}
	delete(h.objects, hdr.Offset)
	h.liveSize -= hdr.PayloadSize
}

// Free reclaims offset's block: unlinks it from the object list, returns
// its span to the free list in address order, and coalesces with both
// neighbors when they are contiguous.
func (h *Heap) Free(offset int) {
	hdr := h.objects[offset]
	if hdr == nil {
		return
	}
	h.freedBytes += uint64(hdr.PayloadSize)
	h.wastedBytes -= uint64(hdr.BlockSize - gc.AlignSize(hdr.PayloadSize))
	h.unlink(hdr)
	h.insertFree(span{offset: hdr.Offset, size: hdr.BlockSize})
}

func (h *Heap) insertFree(s span) {
	i := 0
	for i < len(h.free) && h.free[i].offset < s.offset {
		i++
	}
	h.free = append(h.free, span{})
	copy(h.free[i+1:], h.free[i:])
	h.free[i] = s
	h.coalesceAround(i)
}

// coalesceAround merges h.free[i] with its immediate address-order
// neighbors if they are contiguous. Called after every insertion so the
// invariant "no two adjacent free blocks" (spec §8.1.9) holds continuously.
func (h *Heap) coalesceAround(i int) {
	if i+1 < len(h.free) && h.free[i].offset+h.free[i].size == h.free[i+1].offset {
		h.free[i].size += h.free[i+1].size
		h.free = append(h.free[:i+1], h.free[i+2:]...)
	}
	if i > 0 && h.free[i-1].offset+h.free[i-1].size == h.free[i].offset {
		h.free[i-1].size += h.free[i].size
		h.free = append(h.free[:i], h.free[i+1:]...)
	}
}

// ForEachObject walks the doubly-linked object list, which is exactly the
// set of currently-allocated blocks (O(live)).
func (h *Heap) ForEachObject(fn func(hdr *Header)) {
	for off := h.headOff; off != -1; {
		hdr := h.objects[off]
		next := hdr.next
		fn(hdr)
		off = next
	}
}

// Sweep removes every unmarked object from the object list, returns its
// block to the free list, and clears the mark bit on every survivor. It
// returns the number of bytes freed.
func (h *Heap) Sweep() uint64 {
	var freed uint64
	off := h.headOff
	for off != -1 {
		hdr := h.objects[off]
		next := hdr.next
		if !hdr.Marked {
			freed += uint64(hdr.PayloadSize)
			h.Free(off)
		} else {
			hdr.Marked = false
		}
		off = next
	}
	return freed
}

// LiveBytes returns the sum of PayloadSize over all currently-allocated
// objects.
func (h *Heap) LiveBytes() uint64 { return uint64(h.liveSize) }

// FragStats computes the free-list fragmentation metrics of spec §3.5.
type FragStats struct {
	LargestFreeBlock           uint64
	TotalFreeMemory            uint64
	FreeBlocksCount            uint64
	AverageFreeBlockSize       float64
	FragmentationIndex         float64
	PeakFragmentationIndex     float64
	InternalFragmentationRatio float64
	WastedBytes                uint64
	AveragePaddingPerObject    float64
	FragmentationGrowthRate    float64
}

func (h *Heap) FragStats() FragStats {
	var largest, total uint64
	for _, sp := range h.free {
		total += uint64(sp.size)
		if uint64(sp.size) > largest {
			largest = uint64(sp.size)
		}
	}
	var fragIndex float64
	if total > 0 {
		fragIndex = 1 - float64(largest)/float64(total)
	}
	if fragIndex > h.peakFragIndex {
		h.peakFragIndex = fragIndex
	}
	growthRate := fragIndex - h.lastFragIndex
	h.lastFragIndex = fragIndex
	var avgFree float64
	if len(h.free) > 0 {
		avgFree = float64(total) / float64(len(h.free))
	}
	var internalRatio float64
	if h.allocatedBytes > 0 {
		internalRatio = float64(h.wastedBytes) / float64(h.allocatedBytes)
	}
	var avgPadding float64
	if len(h.objects) > 0 {
		avgPadding = float64(h.wastedBytes) / float64(len(h.objects))
	}
	return FragStats{
		LargestFreeBlock:           largest,
		TotalFreeMemory:            total,
		FreeBlocksCount:            uint64(len(h.free)),
		AverageFreeBlockSize:       avgFree,
		FragmentationIndex:         fragIndex,
		PeakFragmentationIndex:     h.peakFragIndex,
		InternalFragmentationRatio: internalRatio,
		WastedBytes:                h.wastedBytes,
		AveragePaddingPerObject:    avgPadding,
		FragmentationGrowthRate:    growthRate,
	}
}
