// ABOUTME: Tests for backend selection, flat snapshot encoding and graph construction

package runtime

import (
	"encoding/binary"
	"testing"

	"github.com/wyrmlisp/gctrace/gc"
	"github.com/wyrmlisp/gctrace/graph"
)

func TestNewFacadeSelectsBackend(t *testing.T) {
	cases := []gc.BackendKind{gc.MarkSweep, gc.Copying, gc.Generational}
	for _, kind := range cases {
		f := NewFacade(gc.Config{Backend: kind, InitialHeapSize: 4096})
		p := f.Allocate(8)
		if p == gc.NilRef {
			t.Errorf("backend %v: Allocate returned NilRef", kind)
		}
	}
}

func TestFlatSnapshotEncoding(t *testing.T) {
	f := NewFacade(gc.Config{Backend: gc.MarkSweep, InitialHeapSize: 4096})
	p := f.Allocate(16)
	f.SetTag(p, gc.TagPair)

	var slot gc.Ref = p
	f.AddRoot(&slot)

	buf := make([]byte, RecordStride()*8)
	n := f.FlatSnapshot(buf)
	if n != 1 {
		t.Fatalf("FlatSnapshot wrote %d records, want 1", n)
	}
	addr := binary.LittleEndian.Uint32(buf[AddrFieldOffset:])
	size := binary.LittleEndian.Uint32(buf[SizeFieldOffset:])
	tag := binary.LittleEndian.Uint32(buf[TagFieldOffset:])
	if addr != uint32(p) {
		t.Errorf("addr = %d, want %d", addr, p)
	}
	if size != 16 {
		t.Errorf("size = %d, want 16", size)
	}
	if gc.Tag(tag) != gc.TagPair {
		t.Errorf("tag = %v, want pair", gc.Tag(tag))
	}
}

func TestFlatSnapshotTruncatesToBufferCapacity(t *testing.T) {
	f := NewFacade(gc.Config{Backend: gc.MarkSweep, InitialHeapSize: 4096})
	var roots []gc.Ref
	for i := 0; i < 4; i++ {
		p := f.Allocate(8)
		roots = append(roots, p)
	}
	for i := range roots {
		f.AddRoot(&roots[i])
	}

	buf := make([]byte, RecordStride()*2)
	n := f.FlatSnapshot(buf)
	if n > 2 {
		t.Errorf("FlatSnapshot wrote %d records into a 2-record buffer", n)
	}
}

func TestGraphReflectsLiveHeapAndEdges(t *testing.T) {
	f := NewFacade(gc.Config{Backend: gc.MarkSweep, InitialHeapSize: 4096})
	child := f.Allocate(8)
	parent := f.Allocate(8)
	f.SetTrace(parent, func(v gc.Visitor, payload []byte) {
		var ref uint64
		for i := 0; i < 8; i++ {
			ref |= uint64(payload[i]) << (8 * i)
		}
		v.Mark(gc.Ref(ref))
	})
	pp := f.Payload(parent)
	cv := uint64(child)
	for i := 0; i < 8; i++ {
		pp[i] = byte(cv >> (8 * i))
	}

	g := f.Graph()
	if g.NumObjects() != 2 {
		t.Fatalf("NumObjects() = %d, want 2", g.NumObjects())
	}
	obj := g.GetObject(graph.ObjID(parent))
	if obj == nil {
		t.Fatal("parent object missing from graph")
	}
	if len(obj.Ptrs) != 1 || obj.Ptrs[0] != graph.ObjID(child) {
		t.Errorf("parent.Ptrs = %v, want [%v]", obj.Ptrs, graph.ObjID(child))
	}
}

func TestGraphReportsRegisteredRoots(t *testing.T) {
	f := NewFacade(gc.Config{Backend: gc.MarkSweep, InitialHeapSize: 4096})
	a := f.Allocate(8)
	b := f.Allocate(8)
	var slotA, slotB gc.Ref = a, b
	f.AddRoot(&slotA)
	f.AddRoot(&slotB)
	f.RemoveRoot(&slotB)

	g := f.Graph()
	roots := g.GetRoots()
	if len(roots.IDs) != 1 || roots.IDs[0] != graph.ObjID(a) {
		t.Errorf("roots = %v, want [%v]", roots.IDs, graph.ObjID(a))
	}
}
