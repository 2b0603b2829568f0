// ABOUTME: Tests for the Lengauer-Tarjan dominator computation
// ABOUTME: Covers immediate dominators, the dominator tree, and scaling behavior

package graph

import (
	"fmt"
	"reflect"
	"sort"
	"testing"
	"time"
)

func TestDominators(t *testing.T) {
	tests := []struct {
		name     string
		graph    Graph
		expected map[ObjID]ObjID // node -> immediate dominator
	}{
		{
			name: "linear chain of pairs",
			graph: func() Graph {
				g := NewMemGraph()
				g.AddObject(&Object{ID: 1, Type: "env"})
				g.AddObject(&Object{ID: 2, Type: "pair", Ptrs: []ObjID{3}})
				g.AddObject(&Object{ID: 3, Type: "pair", Ptrs: []ObjID{4}})
				g.AddObject(&Object{ID: 4, Type: "number"})
				g.SetRoots(Roots{IDs: []ObjID{2}})
				return g
			}(),
			expected: map[ObjID]ObjID{
				2: 0,
				3: 2,
				4: 3,
			},
		},
		{
			name: "diamond of shared cons cells",
			graph: func() Graph {
				g := NewMemGraph()
				g.AddObject(&Object{ID: 1, Type: "pair", Ptrs: []ObjID{2, 3}})
				g.AddObject(&Object{ID: 2, Type: "pair", Ptrs: []ObjID{4}})
				g.AddObject(&Object{ID: 3, Type: "pair", Ptrs: []ObjID{4}})
				g.AddObject(&Object{ID: 4, Type: "symbol"})
				g.SetRoots(Roots{IDs: []ObjID{1}})
				return g
			}(),
			expected: map[ObjID]ObjID{
				1: 0,
				2: 1,
				3: 1,
				4: 1, // dominated by the head pair, not by either branch
			},
		},
		{
			name: "multiple converging paths",
			graph: func() Graph {
				g := NewMemGraph()
				g.AddObject(&Object{ID: 1, Type: "env", Ptrs: []ObjID{2, 3}})
				g.AddObject(&Object{ID: 2, Type: "binding", Ptrs: []ObjID{4}})
				g.AddObject(&Object{ID: 3, Type: "binding", Ptrs: []ObjID{4, 5}})
				g.AddObject(&Object{ID: 4, Type: "pair", Ptrs: []ObjID{6}})
				g.AddObject(&Object{ID: 5, Type: "pair", Ptrs: []ObjID{6}})
				g.AddObject(&Object{ID: 6, Type: "number"})
				g.SetRoots(Roots{IDs: []ObjID{1}})
				return g
			}(),
			expected: map[ObjID]ObjID{
				1: 0,
				2: 1,
				3: 1,
				4: 1,
				5: 3,
				6: 1,
			},
		},
		{
			name: "unreachable object excluded",
			graph: func() Graph {
				g := NewMemGraph()
				g.AddObject(&Object{ID: 1, Type: "env", Ptrs: []ObjID{2}})
				g.AddObject(&Object{ID: 2, Type: "binding"})
				g.AddObject(&Object{ID: 3, Type: "string"}) // unreachable
				g.SetRoots(Roots{IDs: []ObjID{1}})
				return g
			}(),
			expected: map[ObjID]ObjID{
				1: 0,
				2: 1,
			},
		},
		{
			name: "cycle through a closure",
			graph: func() Graph {
				g := NewMemGraph()
				g.AddObject(&Object{ID: 1, Type: "env", Ptrs: []ObjID{2}})
				g.AddObject(&Object{ID: 2, Type: "pair", Ptrs: []ObjID{3}})
				g.AddObject(&Object{ID: 3, Type: "pair", Ptrs: []ObjID{4}})
				g.AddObject(&Object{ID: 4, Type: "lambda", Ptrs: []ObjID{2, 5}}) // closes back over 2
				g.AddObject(&Object{ID: 5, Type: "symbol"})
				g.SetRoots(Roots{IDs: []ObjID{1}})
				return g
			}(),
			expected: map[ObjID]ObjID{
				1: 0,
				2: 1,
				3: 2,
				4: 3,
				5: 4,
			},
		},
		{
			name: "two roots sharing a symbol",
			graph: func() Graph {
				g := NewMemGraph()
				g.AddObject(&Object{ID: 1, Type: "env", Ptrs: []ObjID{3}})
				g.AddObject(&Object{ID: 2, Type: "env", Ptrs: []ObjID{3}})
				g.AddObject(&Object{ID: 3, Type: "symbol"})
				g.SetRoots(Roots{IDs: []ObjID{1, 2}})
				return g
			}(),
			expected: map[ObjID]ObjID{
				1: 0,
				2: 0,
				3: 0, // dominated by the super-root, not either env
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dom := Dominators(tt.graph)

			if len(dom) != len(tt.expected) {
				t.Errorf("got %d dominators, want %d", len(dom), len(tt.expected))
			}
			for node, wantDom := range tt.expected {
				gotDom, ok := dom[node]
				if !ok {
					t.Errorf("node %d: missing from dominators", node)
					continue
				}
				if gotDom != wantDom {
					t.Errorf("node %d: dominator = %d, want %d", node, gotDom, wantDom)
				}
			}
			for node, gotDom := range dom {
				if _, ok := tt.expected[node]; !ok {
					t.Errorf("node %d: unexpected dominator %d", node, gotDom)
				}
			}
		})
	}
}

func TestDominatorTreeShape(t *testing.T) {
	g := NewMemGraph()
	g.AddObject(&Object{ID: 1, Type: "env", Ptrs: []ObjID{2, 3}})
	g.AddObject(&Object{ID: 2, Type: "binding", Ptrs: []ObjID{4}})
	g.AddObject(&Object{ID: 3, Type: "binding", Ptrs: []ObjID{4, 5}})
	g.AddObject(&Object{ID: 4, Type: "pair"})
	g.AddObject(&Object{ID: 5, Type: "symbol"})
	g.SetRoots(Roots{IDs: []ObjID{1}})

	tree := DominatorTree(Dominators(g))

	want := map[ObjID][]ObjID{
		0: {1},
		1: {2, 3, 4},
		2: {},
		3: {5},
		4: {},
		5: {},
	}
	for parent, wantChildren := range want {
		gotChildren := tree[parent]
		sort.Slice(gotChildren, func(i, j int) bool { return gotChildren[i] < gotChildren[j] })
		sort.Slice(wantChildren, func(i, j int) bool { return wantChildren[i] < wantChildren[j] })
		if !reflect.DeepEqual(gotChildren, wantChildren) {
			t.Errorf("node %d: children = %v, want %v", parent, gotChildren, wantChildren)
		}
	}
}

func TestDominatorDepth(t *testing.T) {
	g := NewMemGraph()
	g.AddObject(&Object{ID: 1, Type: "env", Ptrs: []ObjID{2, 3}})
	g.AddObject(&Object{ID: 2, Type: "binding", Ptrs: []ObjID{4}})
	g.AddObject(&Object{ID: 3, Type: "binding", Ptrs: []ObjID{4, 5}})
	g.AddObject(&Object{ID: 4, Type: "pair"})
	g.AddObject(&Object{ID: 5, Type: "symbol"})
	g.SetRoots(Roots{IDs: []ObjID{1}})

	depth := DominatorDepth(DominatorTree(Dominators(g)))

	want := map[ObjID]int{0: 0, 1: 1, 2: 2, 3: 2, 4: 2, 5: 3}
	for id, wantDepth := range want {
		if got := depth[id]; got != wantDepth {
			t.Errorf("depth[%d] = %d, want %d", id, got, wantDepth)
		}
	}
}

func TestDominatorPathAndIsDominated(t *testing.T) {
	g := NewMemGraph()
	g.AddObject(&Object{ID: 1, Type: "env", Ptrs: []ObjID{2}})
	g.AddObject(&Object{ID: 2, Type: "pair", Ptrs: []ObjID{3}})
	g.AddObject(&Object{ID: 3, Type: "number"})
	g.SetRoots(Roots{IDs: []ObjID{1}})

	idom := Dominators(g)

	path := DominatorPath(idom, 3)
	want := []ObjID{3, 2, 1, 0}
	if !reflect.DeepEqual(path, want) {
		t.Errorf("DominatorPath(3) = %v, want %v", path, want)
	}

	if !IsDominated(idom, 3, 1) {
		t.Error("object 3 should be dominated by 1")
	}
	if IsDominated(idom, 1, 3) {
		t.Error("object 1 should not be dominated by 3")
	}
	if !IsDominated(idom, 3, 3) {
		t.Error("every object dominates itself")
	}
}

func TestDominatorsAtScale(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping scaling test in short mode")
	}

	sizes := []int{1000, 10000, 100000}
	for _, n := range sizes {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			g := NewMemGraph()
			for i := 1; i <= n; i++ {
				obj := &Object{ID: ObjID(i), Type: "pair"}
				if i > 1 {
					parent := (i-2)/10 + 1
					obj.Ptrs = append(obj.Ptrs, ObjID(parent))
				}
				for j := 1; j <= 10 && i*10+j <= n; j++ {
					obj.Ptrs = append(obj.Ptrs, ObjID(i*10+j))
				}
				g.AddObject(obj)
			}
			g.SetRoots(Roots{IDs: []ObjID{1}})

			start := time.Now()
			dom := Dominators(g)
			elapsed := time.Since(start)

			if len(dom) == 0 {
				t.Fatal("no dominators computed")
			}
			maxTime := time.Duration(n) * time.Microsecond * 600
			if n >= 100000 {
				maxTime = 60 * time.Second
			}
			if elapsed > maxTime {
				t.Errorf("took %v for n=%d, expected < %v", elapsed, n, maxTime)
			}
			t.Logf("n=%d: computed %d dominators in %v", n, len(dom), elapsed)
		})
	}
}

func BenchmarkDominators(b *testing.B) {
	sizes := []int{100, 1000, 10000}
	for _, n := range sizes {
		b.Run(fmt.Sprintf("n=%d", n), func(b *testing.B) {
			g := NewMemGraph()
			for i := 1; i <= n; i++ {
				obj := &Object{ID: ObjID(i), Type: "pair"}
				if i > 1 {
					obj.Ptrs = append(obj.Ptrs, ObjID((i-1)/2+1))
				}
				if i*2 <= n {
					obj.Ptrs = append(obj.Ptrs, ObjID(i*2))
				}
				if i*2+1 <= n {
					obj.Ptrs = append(obj.Ptrs, ObjID(i*2+1))
				}
				g.AddObject(obj)
			}
			g.SetRoots(Roots{IDs: []ObjID{1}})

			b.ResetTimer()
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = Dominators(g)
			}
		})
	}
}
