// ABOUTME: Copying nursery over a mark-sweep tenured generation, with a write
// ABOUTME: barrier, remembered set, age-based promotion and a deep-promotion policy

// Package generational implements the generational collector backend of
// spec §4.4: a two-semispace copying nursery sits in front of a mark-sweep
// tenured generation built on the same free-list allocator as
// gc/marksweep. Minor collections evacuate the nursery, promoting objects
// old enough or too large for the nursery's remaining to-space; a write
// barrier records tenured-to-nursery pointers in a remembered set so minor
// collections can root through them without rescanning all of tenured.
// Major collections run a minor first, then a mark-sweep pass over
// tenured rooted at registered roots and the (now-pruned) remembered set.
package generational

import (
	"time"
	"unsafe"

	"github.com/wyrmlisp/gctrace/gc"
	"github.com/wyrmlisp/gctrace/gc/internal/freelist"
	"github.com/wyrmlisp/gctrace/gc/internal/rootset"
)

// PromoteAge is the survival count at which a nursery object is promoted
// to tenured rather than copied again within the nursery.
const PromoteAge = 2

const tenuredBit = gc.Ref(1) << 63

func refFromNursery(off int) gc.Ref { return gc.Ref(off + 1) }
func refFromTenured(off int) gc.Ref { return gc.Ref(off+1) | tenuredBit }
func isTenured(r gc.Ref) bool       { return r&tenuredBit != 0 }
func offsetFromRef(r gc.Ref) int    { return int(r&^tenuredBit) - 1 }

type nurseryHeader struct {
	offset      int
	size        int
	trace       gc.TraceFunc
	tag         gc.Tag
	age         uint8
	forwarded   bool
	forwardedTo gc.Ref
}

type collectState int

const (
	stateIdle collectState = iota
	stateMinor
	stateMajor
)

// Backend is a gc.Backend implementation combining a copying nursery and a
// free-list tenured generation.
type Backend struct {
	nurserySize    int
	nursery        [2][]byte
	curNursery     int
	nurseryHeaders map[int]*nurseryHeader
	nurseryAlloc   int

	tenured        *freelist.Heap
	majorThreshold uint64
	tenuredCap     uint64

	roots      *rootset.Set
	remembered *rootset.Set

	state collectState

	cumulative gc.Stats
}

var _ gc.Backend = (*Backend)(nil)

func New() *Backend { return &Backend{} }

func (b *Backend) Init(cfg gc.Config) {
	size := cfg.InitialHeapSize
	if size == 0 {
		size = gc.DefaultInitialHeapSize
	}
	nurseryHalf := int(gc.AlignSize(512 * 1024))
	b.nurserySize = nurseryHalf
	b.nursery[0] = make([]byte, nurseryHalf)
	b.nursery[1] = make([]byte, nurseryHalf)
	b.curNursery = 0
	b.nurseryHeaders = make(map[int]*nurseryHeader)
	b.nurseryAlloc = 0

	b.tenured = freelist.NewHeap(int(size))
	b.tenuredCap = uint64(b.tenured.Capacity())
	// The original keys this off nursery_size*2 (generational.c:168)
	// because its tenured region is unbounded malloc, so any sub-infinity
	// watermark works. Ours is a fixed-capacity arena, so nursery*2 alone
	// could exceed tenuredCap under a small configured heap and make the
	// major path just as unreachable as a threshold pinned to capacity;
	// take whichever of nursery*2 or half of tenuredCap is smaller so a
	// major is always reachable before Alloc would otherwise OOM-fatal.
	b.majorThreshold = uint64(b.nurserySize) * 2
	if half := b.tenuredCap / 2; b.majorThreshold > half {
		b.majorThreshold = half
	}
	if b.majorThreshold == 0 {
		b.majorThreshold = 1
	}

	b.roots = rootset.New()
	b.remembered = rootset.New()
	b.state = stateIdle
	b.cumulative = gc.Stats{}
}

func (b *Backend) Allocate(size int) gc.Ref {
	need := gc.AlignSize(size)
	if b.nurseryAlloc+need > b.nurserySize {
		b.Collect()
	}
	if b.nurseryAlloc+need > b.nurserySize {
		gc.Fatal(gc.OutOfMemory, "generational: cannot satisfy %d-byte allocation in a %d-byte nursery", size, b.nurserySize)
	}
	off := b.nurseryAlloc
	b.nurseryAlloc += need
	arena := b.nursery[b.curNursery]
	for i := off; i < off+size; i++ {
		arena[i] = 0
	}
	b.nurseryHeaders[off] = &nurseryHeader{offset: off, size: need}
	b.cumulative.AllocatedBytes += uint64(size)
	return refFromNursery(off)
}

func (b *Backend) Payload(p gc.Ref) []byte {
	if p == gc.NilRef {
		return nil
	}
	if isTenured(p) {
		return b.tenured.Payload(offsetFromRef(p))
	}
	hdr := b.nurseryHeaders[offsetFromRef(p)]
	if hdr == nil {
		return nil
	}
	return b.nursery[b.curNursery][hdr.offset : hdr.offset+hdr.size]
}

func (b *Backend) SetTrace(p gc.Ref, fn gc.TraceFunc) {
	if p == gc.NilRef {
		return
	}
	if isTenured(p) {
		if hdr := b.tenured.Header(offsetFromRef(p)); hdr != nil {
			hdr.Trace = fn
		}
		return
	}
	if hdr := b.nurseryHeaders[offsetFromRef(p)]; hdr != nil {
		hdr.trace = fn
	}
}

func (b *Backend) SetTag(p gc.Ref, tag gc.Tag) {
	if p == gc.NilRef {
		return
	}
	if isTenured(p) {
		if hdr := b.tenured.Header(offsetFromRef(p)); hdr != nil {
			hdr.Tag = tag
		}
		return
	}
	if hdr := b.nurseryHeaders[offsetFromRef(p)]; hdr != nil {
		hdr.tag = tag
	}
}

// MarkPointer is the identity outside of a collection.
func (b *Backend) MarkPointer(p gc.Ref) gc.Ref { return p }

func (b *Backend) AddRoot(slot *gc.Ref)    { b.roots.Add(unsafe.Pointer(slot)) }
func (b *Backend) RemoveRoot(slot *gc.Ref) { b.roots.Remove(unsafe.Pointer(slot)) }

// WriteBarrier records slot in the remembered set iff owner is tenured and
// child currently lives in the nursery, per spec §4.4's "route every
// pointer-slot mutation through the barrier" requirement.
func (b *Backend) WriteBarrier(owner gc.Ref, slot *gc.Ref, child gc.Ref) {
	if isTenured(owner) && child != gc.NilRef && !isTenured(child) {
		b.remembered.Add(unsafe.Pointer(slot))
	}
}

func (b *Backend) Free(ptr gc.Ref) {
	if ptr == gc.NilRef || !isTenured(ptr) {
		return
	}
	b.tenured.Free(offsetFromRef(ptr))
}

func (b *Backend) SetThreshold(bytes uint64) { b.majorThreshold = bytes }
func (b *Backend) GetThreshold() uint64      { return b.majorThreshold }

// evacState drives one minor collection's evacuation of the nursery,
// including the deep-promotion policy: while tracingPromoted is set, every
// child evacuated here is itself promoted rather than copied within the
// nursery, so no tenured-to-nursery pointer survives the cycle without a
// remembered-set entry created by a later write barrier call.
type evacState struct {
	b               *Backend
	fromNursery     []byte
	toNursery       []byte
	newHeaders      map[int]*nurseryHeader
	toFree          int
	promotionStack  []int
	tracingPromoted bool
	objectsCopied   uint64
	objectsPromoted uint64
}

func (e *evacState) evacuateYoung(ref gc.Ref) gc.Ref {
	if ref == gc.NilRef || isTenured(ref) {
		return ref
	}
	offset := offsetFromRef(ref)
	hdr := e.b.nurseryHeaders[offset]
	if hdr == nil {
		return ref
	}
	if hdr.forwarded {
		return hdr.forwardedTo
	}

	promote := e.tracingPromoted || int(hdr.age)+1 >= PromoteAge || e.toFree+hdr.size > len(e.toNursery)

	var newRef gc.Ref
	if promote {
		tOff, ok := e.b.tenured.Alloc(hdr.size)
		if !ok {
			gc.Fatal(gc.OutOfMemory, "generational: cannot promote %d-byte object, tenured heap exhausted", hdr.size)
		}
		copy(e.b.tenured.Payload(tOff), e.fromNursery[offset:offset+hdr.size])
		tHdr := e.b.tenured.Header(tOff)
		tHdr.Trace = hdr.trace
		tHdr.Tag = hdr.tag
		newRef = refFromTenured(tOff)
		e.promotionStack = append(e.promotionStack, tOff)
		e.objectsPromoted++
	} else {
		newOff := e.toFree
		copy(e.toNursery[newOff:newOff+hdr.size], e.fromNursery[offset:offset+hdr.size])
		e.newHeaders[newOff] = &nurseryHeader{offset: newOff, size: hdr.size, trace: hdr.trace, tag: hdr.tag, age: hdr.age + 1}
		e.toFree += hdr.size
		newRef = refFromNursery(newOff)
		e.objectsCopied++
	}
	hdr.forwarded = true
	hdr.forwardedTo = newRef
	return newRef
}

func (e *evacState) Mark(child gc.Ref) gc.Ref { return e.evacuateYoung(child) }

func (b *Backend) minor() (copied, promoted, scanned uint64) {
	from := b.curNursery
	to := 1 - from
	e := &evacState{
		b:           b,
		fromNursery: b.nursery[from],
		toNursery:   b.nursery[to],
		newHeaders:  make(map[int]*nurseryHeader),
	}

	b.roots.ForEach(func(slot unsafe.Pointer) {
		refSlot := (*gc.Ref)(slot)
		*refSlot = e.evacuateYoung(*refSlot)
	})
	b.remembered.ForEach(func(slot unsafe.Pointer) {
		refSlot := (*gc.Ref)(slot)
		*refSlot = e.evacuateYoung(*refSlot)
	})

	scanPtr := 0
	for scanPtr < e.toFree {
		hdr := e.newHeaders[scanPtr]
		if hdr == nil {
			break
		}
		if hdr.trace != nil {
			e.tracingPromoted = false
			hdr.trace(e, e.toNursery[scanPtr:scanPtr+hdr.size])
		}
		scanned++
		scanPtr += hdr.size
	}

	e.tracingPromoted = true
	for len(e.promotionStack) > 0 {
		off := e.promotionStack[len(e.promotionStack)-1]
		e.promotionStack = e.promotionStack[:len(e.promotionStack)-1]
		tHdr := b.tenured.Header(off)
		if tHdr != nil && tHdr.Trace != nil {
			tHdr.Trace(e, b.tenured.Payload(off))
		}
	}

	b.curNursery = to
	b.nurseryHeaders = e.newHeaders
	b.nurseryAlloc = e.toFree

	b.pruneRemembered()

	return e.objectsCopied, e.objectsPromoted, scanned
}

// pruneRemembered drops remembered-set entries whose stored value no
// longer points into the current nursery, per spec §4.4 step 5.
func (b *Backend) pruneRemembered() {
	var stale []unsafe.Pointer
	b.remembered.ForEach(func(slot unsafe.Pointer) {
		ref := *(*gc.Ref)(slot)
		if ref == gc.NilRef || isTenured(ref) {
			stale = append(stale, slot)
		}
	})
	for _, slot := range stale {
		b.remembered.Remove(slot)
	}
}

type tenuredVisitor struct{ mark func(gc.Ref) }

func (v tenuredVisitor) Mark(child gc.Ref) gc.Ref {
	v.mark(child)
	return child
}

func (b *Backend) majorMarkSweep() uint64 {
	var worklist []int
	mark := func(ref gc.Ref) {
		if ref == gc.NilRef || !isTenured(ref) {
			return
		}
		off := offsetFromRef(ref)
		hdr := b.tenured.Header(off)
		if hdr == nil || hdr.Marked {
			return
		}
		hdr.Marked = true
		worklist = append(worklist, off)
	}
	vis := tenuredVisitor{mark}

	b.roots.ForEach(func(slot unsafe.Pointer) {
		mark(*(*gc.Ref)(slot))
	})
	b.remembered.ForEach(func(slot unsafe.Pointer) {
		mark(*(*gc.Ref)(slot))
	})

	for len(worklist) > 0 {
		off := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		hdr := b.tenured.Header(off)
		if hdr == nil || hdr.Trace == nil {
			continue
		}
		hdr.Trace(vis, b.tenured.Payload(off))
	}

	return b.tenured.Sweep()
}

func (b *Backend) Collect() {
	if b.state != stateIdle {
		return
	}
	start := time.Now()
	b.state = stateMinor
	copied, promoted, scanned := b.minor()
	b.cumulative.Collections++
	b.cumulative.ObjectsCopied += copied
	b.cumulative.ObjectsPromoted += promoted
	b.cumulative.ObjectsScanned += scanned

	// The watermark is compared with the arena bytes tenured blocks occupy,
	// not their payload bytes: small objects are rounded up to
	// freelist.MinBlockSize, so payload bytes alone can stay under the
	// watermark until the arena is full.
	var tenuredUsed uint64
	b.tenured.ForEachObject(func(hdr *freelist.Header) { tenuredUsed += uint64(hdr.BlockSize) })
	var freedTenured uint64
	if tenuredUsed > b.majorThreshold {
		b.state = stateMajor
		freedTenured = b.majorMarkSweep()
		// generational.c:372 — old_next_threshold = live*GROWTH_FACTOR+1024,
		// recomputed from live bytes *after* the sweep so the watermark
		// tracks what's actually still around rather than compounding off
		// whatever the previous watermark happened to be.
		next := b.tenured.LiveBytes()*2 + 1024
		if next > b.tenuredCap {
			next = b.tenuredCap
		}
		b.majorThreshold = next
	}

	elapsed := float64(time.Since(start)) / float64(time.Millisecond)
	b.cumulative.FreedBytes += freedTenured
	b.cumulative.CurrentBytes = uint64(b.nurseryAlloc) + b.tenured.LiveBytes()
	b.cumulative.LastGCPauseMS = elapsed
	b.cumulative.TotalGCTimeMS += elapsed
	if elapsed > b.cumulative.MaxGCPauseMS {
		b.cumulative.MaxGCPauseMS = elapsed
	}
	if b.cumulative.Collections > 0 {
		b.cumulative.AvgGCPauseMS = b.cumulative.TotalGCTimeMS / float64(b.cumulative.Collections)
	}
	b.state = stateIdle
}

func (b *Backend) Stats() gc.Stats {
	s := b.cumulative
	frag := b.tenured.FragStats()
	s.LargestFreeBlock = frag.LargestFreeBlock
	s.TotalFreeMemory = frag.TotalFreeMemory
	s.FreeBlocksCount = frag.FreeBlocksCount
	s.AverageFreeBlockSize = frag.AverageFreeBlockSize
	s.FragmentationIndex = frag.FragmentationIndex
	s.PeakFragmentationIndex = frag.PeakFragmentationIndex
	s.InternalFragmentationRatio = frag.InternalFragmentationRatio
	s.AveragePaddingPerObject = frag.AveragePaddingPerObject
	s.WastedBytes = frag.WastedBytes
	s.FragmentationGrowthRate = frag.FragmentationGrowthRate
	return s
}

func (b *Backend) HeapSnapshot(buf []gc.SnapshotRecord) int {
	n := 0
	for off := 0; off < b.nurseryAlloc && n < len(buf); {
		hdr := b.nurseryHeaders[off]
		if hdr == nil {
			break
		}
		buf[n] = gc.SnapshotRecord{
			Addr:       uint64(refFromNursery(off)),
			Size:       uint32(hdr.size),
			Generation: gc.GenNursery,
			Tag:        hdr.tag,
		}
		n++
		off += hdr.size
	}
	b.tenured.ForEachObject(func(hdr *freelist.Header) {
		if n >= len(buf) {
			return
		}
		buf[n] = gc.SnapshotRecord{
			Addr:       uint64(refFromTenured(hdr.Offset)),
			Size:       uint32(hdr.PayloadSize),
			Generation: gc.GenOld,
			Tag:        hdr.Tag,
		}
		n++
	})
	return n
}

type diagVisitor struct{ visit func(gc.Ref) }

func (v diagVisitor) Mark(child gc.Ref) gc.Ref {
	if child != gc.NilRef {
		v.visit(child)
	}
	return child
}

func (b *Backend) VisitChildren(p gc.Ref, visit func(gc.Ref)) {
	if p == gc.NilRef {
		return
	}
	if isTenured(p) {
		hdr := b.tenured.Header(offsetFromRef(p))
		if hdr == nil || hdr.Trace == nil {
			return
		}
		hdr.Trace(diagVisitor{visit}, b.tenured.Payload(offsetFromRef(p)))
		return
	}
	hdr := b.nurseryHeaders[offsetFromRef(p)]
	if hdr == nil || hdr.trace == nil {
		return
	}
	hdr.trace(diagVisitor{visit}, b.Payload(p))
}
