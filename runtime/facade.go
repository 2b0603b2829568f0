// ABOUTME: Facade selects and owns one collector backend and forwards every
// ABOUTME: mutator operation to it, plus the flat external snapshot encoding

// Package runtime is the single entry point a mutator talks to: it selects
// one of the three gc.Backend implementations from a gc.Config and
// forwards every allocation, root, barrier and collection call to it.
// It also owns the external-facing snapshot encodings: a flat byte buffer
// for visualizers that don't link against this module, and a graph.Graph
// for in-process heap analysis (dominators, retained size, paths to
// roots).
package runtime

import (
	"encoding/binary"

	"github.com/wyrmlisp/gctrace/gc"
	"github.com/wyrmlisp/gctrace/gc/copying"
	"github.com/wyrmlisp/gctrace/gc/generational"
	"github.com/wyrmlisp/gctrace/gc/marksweep"
	"github.com/wyrmlisp/gctrace/graph"
)

// Facade owns exactly one collector backend, selected at construction. It
// also mirrors the set of registered root slots so Graph can report roots
// without requiring gc.Backend itself to expose root enumeration.
type Facade struct {
	backend gc.Backend
	roots   []*gc.Ref
}

// NewFacade selects a backend per cfg.Backend and initializes it.
func NewFacade(cfg gc.Config) *Facade {
	var b gc.Backend
	switch cfg.Backend {
	case gc.Copying:
		b = copying.New()
	case gc.Generational:
		b = generational.New()
	default:
		b = marksweep.New()
	}
	b.Init(cfg)
	return &Facade{backend: b}
}

func (f *Facade) Allocate(size int) gc.Ref           { return f.backend.Allocate(size) }
func (f *Facade) Payload(p gc.Ref) []byte            { return f.backend.Payload(p) }
func (f *Facade) SetTrace(p gc.Ref, fn gc.TraceFunc)  { f.backend.SetTrace(p, fn) }
func (f *Facade) SetTag(p gc.Ref, tag gc.Tag)         { f.backend.SetTag(p, tag) }
func (f *Facade) MarkPointer(p gc.Ref) gc.Ref         { return f.backend.MarkPointer(p) }
func (f *Facade) AddRoot(slot *gc.Ref) {
	f.backend.AddRoot(slot)
	for _, s := range f.roots {
		if s == slot {
			return
		}
	}
	f.roots = append(f.roots, slot)
}

func (f *Facade) RemoveRoot(slot *gc.Ref) {
	f.backend.RemoveRoot(slot)
	for i, s := range f.roots {
		if s == slot {
			f.roots = append(f.roots[:i], f.roots[i+1:]...)
			return
		}
	}
}
func (f *Facade) WriteBarrier(owner gc.Ref, slot *gc.Ref, child gc.Ref) {
	f.backend.WriteBarrier(owner, slot, child)
}
func (f *Facade) Collect()                  { f.backend.Collect() }
func (f *Facade) Free(ptr gc.Ref)           { f.backend.Free(ptr) }
func (f *Facade) SetThreshold(bytes uint64) { f.backend.SetThreshold(bytes) }
func (f *Facade) GetThreshold() uint64      { return f.backend.GetThreshold() }
func (f *Facade) Stats() gc.Stats           { return f.backend.Stats() }
func (f *Facade) HeapSnapshot(buf []gc.SnapshotRecord) int {
	return f.backend.HeapSnapshot(buf)
}
func (f *Facade) VisitChildren(p gc.Ref, visit func(gc.Ref)) {
	f.backend.VisitChildren(p, visit)
}

// RecordStride is the byte size of one flat snapshot record: four 32-bit
// little-endian words (addr, size, generation, tag), per spec §3.6's
// "flat form suitable for external visualizers."
func RecordStride() int { return 16 }

const (
	AddrFieldOffset       = 0
	SizeFieldOffset       = 4
	GenerationFieldOffset = 8
	TagFieldOffset        = 12
)

// FlatSnapshot encodes up to len(buf)/RecordStride() live objects into buf
// and returns how many records were written. The address field truncates
// to 32 bits, which is sufficient for every backend in this module (no
// arena exceeds 4 GiB) and keeps every record a fixed, word-aligned size.
func (f *Facade) FlatSnapshot(buf []byte) int {
	stride := RecordStride()
	capacity := len(buf) / stride
	if capacity == 0 {
		return 0
	}
	records := make([]gc.SnapshotRecord, capacity)
	n := f.backend.HeapSnapshot(records)
	for i := 0; i < n; i++ {
		rec := records[i]
		off := i * stride
		binary.LittleEndian.PutUint32(buf[off+AddrFieldOffset:], uint32(rec.Addr))
		binary.LittleEndian.PutUint32(buf[off+SizeFieldOffset:], rec.Size)
		binary.LittleEndian.PutUint32(buf[off+GenerationFieldOffset:], uint32(rec.Generation))
		binary.LittleEndian.PutUint32(buf[off+TagFieldOffset:], uint32(rec.Tag))
	}
	return n
}

// Graph builds a point-in-time object graph of the live heap by walking
// HeapSnapshot for nodes and VisitChildren for edges. It does not mutate
// the backend: VisitChildren is the diagnostic, non-evacuating walk.
func (f *Facade) Graph() graph.Graph {
	size := 256
	var records []gc.SnapshotRecord
	var n int
	for {
		records = make([]gc.SnapshotRecord, size)
		n = f.backend.HeapSnapshot(records)
		if n < size {
			break
		}
		size *= 2
	}

	g := graph.NewMemGraph()
	for i := 0; i < n; i++ {
		rec := records[i]
		var ptrs []graph.ObjID
		f.backend.VisitChildren(gc.Ref(rec.Addr), func(child gc.Ref) {
			ptrs = append(ptrs, graph.ObjID(child))
		})
		g.AddObject(&graph.Object{
			ID:   graph.ObjID(rec.Addr),
			Type: rec.Tag.String(),
			Size: uint64(rec.Size),
			Ptrs: ptrs,
		})
	}

	var rootIDs []graph.ObjID
	for _, slot := range f.roots {
		if *slot != gc.NilRef {
			rootIDs = append(rootIDs, graph.ObjID(*slot))
		}
	}
	g.SetRoots(graph.Roots{IDs: rootIDs})
	return g
}
