// ABOUTME: Tests for the captured-graph data structures and MemGraph

package graph

import "testing"

func TestObjectFields(t *testing.T) {
	obj := &Object{ID: 1, Type: "pair", Size: 16, Ptrs: []ObjID{2, 3}}
	if obj.ID != 1 {
		t.Errorf("ID = %d, want 1", obj.ID)
	}
	if obj.Type != "pair" {
		t.Errorf("Type = %s, want pair", obj.Type)
	}
	if obj.Size != 16 {
		t.Errorf("Size = %d, want 16", obj.Size)
	}
	if len(obj.Ptrs) != 2 {
		t.Errorf("len(Ptrs) = %d, want 2", len(obj.Ptrs))
	}
}

func TestMemGraphBasics(t *testing.T) {
	g := NewMemGraph()
	g.AddObject(&Object{ID: 1, Type: "env", Size: 24, Ptrs: []ObjID{2}})
	g.AddObject(&Object{ID: 2, Type: "binding", Size: 24, Ptrs: nil})

	if g.NumObjects() != 2 {
		t.Fatalf("NumObjects() = %d, want 2", g.NumObjects())
	}
	env := g.GetObject(1)
	if env == nil || env.Type != "env" {
		t.Fatalf("GetObject(1) = %v, want type env", env)
	}

	count := 0
	g.ForEachObject(func(*Object) { count++ })
	if count != 2 {
		t.Errorf("ForEachObject visited %d objects, want 2", count)
	}

	g.SetRoots(Roots{IDs: []ObjID{1}})
	roots := g.GetRoots()
	if len(roots.IDs) != 1 || roots.IDs[0] != 1 {
		t.Errorf("GetRoots() = %v, want [1]", roots.IDs)
	}
}

func TestAddObjectReplacesSameID(t *testing.T) {
	g := NewMemGraph()
	g.AddObject(&Object{ID: 1, Type: "number", Size: 8})
	g.AddObject(&Object{ID: 1, Type: "string", Size: 32})

	if g.NumObjects() != 1 {
		t.Fatalf("NumObjects() = %d, want 1 after re-adding the same ID", g.NumObjects())
	}
	if g.GetObject(1).Type != "string" {
		t.Errorf("later AddObject should replace the earlier one for the same ID")
	}
}

func TestObjectRelationships(t *testing.T) {
	g := NewMemGraph()
	// pair(1) -> pair(2) -> {number(3), number(4)}
	g.AddObject(&Object{ID: 1, Type: "pair", Size: 16, Ptrs: []ObjID{2}})
	g.AddObject(&Object{ID: 2, Type: "pair", Size: 16, Ptrs: []ObjID{3, 4}})
	g.AddObject(&Object{ID: 3, Type: "number", Size: 8})
	g.AddObject(&Object{ID: 4, Type: "number", Size: 8})

	head := g.GetObject(1)
	if len(head.Ptrs) != 1 || head.Ptrs[0] != 2 {
		t.Errorf("head.Ptrs = %v, want [2]", head.Ptrs)
	}
	cons := g.GetObject(2)
	if len(cons.Ptrs) != 2 {
		t.Errorf("cons.Ptrs has %d entries, want 2", len(cons.Ptrs))
	}
}

func TestGetObjectMissing(t *testing.T) {
	g := NewMemGraph()
	if obj := g.GetObject(999); obj != nil {
		t.Errorf("GetObject(999) = %v, want nil on an empty graph", obj)
	}
	if g.NumObjects() != 0 {
		t.Errorf("NumObjects() = %d, want 0", g.NumObjects())
	}
}
