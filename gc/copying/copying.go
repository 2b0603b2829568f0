// ABOUTME: Cheney-style semi-space copying Backend: bump allocation, lagging
// ABOUTME: scan pointer, forwarding pointers held in the side header table

// Package copying implements the copying collector backend of spec §4.3:
// two equal-size semi-spaces, bump-pointer allocation in the active
// ("from") space, and a Cheney scan that evacuates reachable objects into
// the inactive ("to") space before the spaces swap roles. A forwarding
// pointer recorded on an evacuated object's old header (rather than
// smashed into the arena bytes, per the "typed slot" translation used
// throughout this module) lets repeated references to an already-moved
// object resolve to its new location without copying it twice.
package copying

import (
	"time"
	"unsafe"

	"github.com/wyrmlisp/gctrace/gc"
	"github.com/wyrmlisp/gctrace/gc/internal/rootset"
)

type header struct {
	offset      int
	size        int // aligned payload size
	trace       gc.TraceFunc
	tag         gc.Tag
	forwarded   bool
	forwardedTo gc.Ref
}

// Backend is a gc.Backend implementation built on two semi-spaces.
type Backend struct {
	spaceSize int
	spaces    [2][]byte
	cur       int // index of the active (from) space

	headers  map[int]*header // offset -> header, in the active space
	allocPtr int

	roots     *rootset.Set
	threshold uint64

	cumulative gc.Stats
}

var _ gc.Backend = (*Backend)(nil)

func New() *Backend { return &Backend{} }

func (b *Backend) Init(cfg gc.Config) {
	size := cfg.InitialHeapSize
	if size == 0 {
		size = gc.DefaultInitialHeapSize
	}
	half := int(gc.AlignSize(int(size) / 2))
	if half <= 0 {
		half = int(gc.PointerAlign)
	}
	b.spaceSize = half
	b.spaces[0] = make([]byte, half)
	b.spaces[1] = make([]byte, half)
	b.cur = 0
	b.headers = make(map[int]*header)
	b.allocPtr = 0
	b.roots = rootset.New()
	b.threshold = uint64(half)
	b.cumulative = gc.Stats{}
}

func refFromOffset(off int) gc.Ref { return gc.Ref(off + 1) }
func offsetFromRef(p gc.Ref) int   { return int(p) - 1 }

// pointerInSpace reports whether offset lies within [start, end) of a
// semi-space. The upper bound is exclusive and the lower bound inclusive
// so an object placed at offset 0 is still classified as in-space.
func (b *Backend) pointerInSpace(offset, start, end int) bool {
	return offset >= start && offset < end
}

func (b *Backend) Allocate(size int) gc.Ref {
	need := gc.AlignSize(size)
	if b.allocPtr+need > b.spaceSize {
		b.Collect()
	}
	if b.allocPtr+need > b.spaceSize {
		gc.Fatal(gc.OutOfMemory, "copying: cannot satisfy %d-byte allocation in a %d-byte semi-space", size, b.spaceSize)
	}
	off := b.allocPtr
	b.allocPtr += need
	from := b.spaces[b.cur]
	for i := off; i < off+size; i++ {
		from[i] = 0
	}
	b.headers[off] = &header{offset: off, size: need}
	b.cumulative.AllocatedBytes += uint64(size)
	b.cumulative.CurrentBytes = uint64(b.allocPtr)
	return refFromOffset(off)
}

func (b *Backend) Payload(p gc.Ref) []byte {
	if p == gc.NilRef {
		return nil
	}
	off := offsetFromRef(p)
	hdr := b.headers[off]
	if hdr == nil {
		return nil
	}
	return b.spaces[b.cur][off : off+hdr.size]
}

func (b *Backend) SetTrace(p gc.Ref, fn gc.TraceFunc) {
	if p == gc.NilRef {
		return
	}
	if hdr := b.headers[offsetFromRef(p)]; hdr != nil {
		hdr.trace = fn
	}
}

func (b *Backend) SetTag(p gc.Ref, tag gc.Tag) {
	if p == gc.NilRef {
		return
	}
	if hdr := b.headers[offsetFromRef(p)]; hdr != nil {
		hdr.tag = tag
	}
}

// MarkPointer is the identity outside of a collection; copying only
// relocates objects while Collect is running.
func (b *Backend) MarkPointer(p gc.Ref) gc.Ref { return p }

func (b *Backend) AddRoot(slot *gc.Ref)    { b.roots.Add(unsafe.Pointer(slot)) }
func (b *Backend) RemoveRoot(slot *gc.Ref) { b.roots.Remove(unsafe.Pointer(slot)) }

// WriteBarrier is a no-op: a two-space copying collector has no
// generational invariant to maintain.
func (b *Backend) WriteBarrier(owner gc.Ref, slot *gc.Ref, child gc.Ref) {}

func (b *Backend) Free(ptr gc.Ref) {
	// Manual free has no meaning for a bump allocator between
	// collections; the object is simply left for the next Collect to
	// notice is unreachable.
}

func (b *Backend) SetThreshold(bytes uint64) { b.threshold = bytes }
func (b *Backend) GetThreshold() uint64      { return uint64(b.spaceSize) }

// evacuator copies reachable objects from the old active space into the
// new one, memoizing already-moved objects via their old header's
// forwarding fields.
type evacuator struct {
	b          *Backend
	from       []byte
	to         []byte
	newHeaders map[int]*header
	freePtr    int
	copied     uint64
}

func (e *evacuator) evacuate(ref gc.Ref) gc.Ref {
	if ref == gc.NilRef {
		return gc.NilRef
	}
	oldOff := offsetFromRef(ref)
	oldHdr := e.b.headers[oldOff]
	if oldHdr == nil {
		return ref
	}
	if oldHdr.forwarded {
		return oldHdr.forwardedTo
	}
	newOff := e.freePtr
	copy(e.to[newOff:newOff+oldHdr.size], e.from[oldOff:oldOff+oldHdr.size])
	newHdr := &header{offset: newOff, size: oldHdr.size, trace: oldHdr.trace, tag: oldHdr.tag}
	e.newHeaders[newOff] = newHdr
	e.freePtr += oldHdr.size
	e.copied++

	newRef := refFromOffset(newOff)
	oldHdr.forwarded = true
	oldHdr.forwardedTo = newRef
	return newRef
}

// Mark implements gc.Visitor for trace callbacks invoked during the scan
// phase: it evacuates the child (if not already moved) and returns its
// new location for the caller to write back into the copied payload.
func (e *evacuator) Mark(child gc.Ref) gc.Ref { return e.evacuate(child) }

func (b *Backend) Collect() {
	start := time.Now()
	from := b.cur
	to := 1 - from
	e := &evacuator{
		b:          b,
		from:       b.spaces[from],
		to:         b.spaces[to],
		newHeaders: make(map[int]*header),
	}

	b.roots.ForEach(func(slot unsafe.Pointer) {
		refSlot := (*gc.Ref)(slot)
		*refSlot = e.evacuate(*refSlot)
	})

	scanPtr := 0
	var scanned uint64
	for scanPtr < e.freePtr {
		hdr := e.newHeaders[scanPtr]
		if hdr == nil {
			break
		}
		if hdr.trace != nil {
			hdr.trace(e, e.to[scanPtr:scanPtr+hdr.size])
		}
		scanned++
		scanPtr += hdr.size
	}

	freed := uint64(b.allocPtr) - uint64(e.freePtr)

	b.cur = to
	b.headers = e.newHeaders
	b.allocPtr = e.freePtr

	elapsed := float64(time.Since(start)) / float64(time.Millisecond)
	b.cumulative.Collections++
	b.cumulative.FreedBytes += freed
	b.cumulative.CurrentBytes = uint64(b.allocPtr)
	b.cumulative.ObjectsScanned += scanned
	b.cumulative.ObjectsCopied += e.copied
	if scanned > 0 {
		b.cumulative.SurvivalRate = float64(e.copied) / float64(scanned)
	}
	b.cumulative.LastGCPauseMS = elapsed
	b.cumulative.TotalGCTimeMS += elapsed
	if elapsed > b.cumulative.MaxGCPauseMS {
		b.cumulative.MaxGCPauseMS = elapsed
	}
	if b.cumulative.Collections > 0 {
		b.cumulative.AvgGCPauseMS = b.cumulative.TotalGCTimeMS / float64(b.cumulative.Collections)
	}
}

func (b *Backend) Stats() gc.Stats { return b.cumulative }

func (b *Backend) HeapSnapshot(buf []gc.SnapshotRecord) int {
	n := 0
	for off := 0; b.pointerInSpace(off, 0, b.allocPtr) && n < len(buf); {
		hdr := b.headers[off]
		if hdr == nil {
			break
		}
		buf[n] = gc.SnapshotRecord{
			Addr:       uint64(refFromOffset(off)),
			Size:       uint32(hdr.size),
			Generation: gc.GenUnknown,
			Tag:        hdr.tag,
		}
		n++
		off += hdr.size
	}
	return n
}

// diagVisitor supports VisitChildren outside of a collection: it reports
// children without evacuating them, matching MarkPointer's identity
// behavior between collections.
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
	hdr := b.headers[offsetFromRef(p)]
	if hdr == nil || hdr.trace == nil {
		return
	}
	hdr.trace(diagVisitor{visit}, b.Payload(p))
}
