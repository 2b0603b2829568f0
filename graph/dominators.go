// ABOUTME: Lengauer-Tarjan dominator computation over a captured heap graph
// ABOUTME: plus the small dominator-tree utilities retained-size analysis builds on

package graph

// Dominators computes, for every object reachable from the graph's roots,
// the ID of its immediate dominator: the closest ancestor that every path
// from a root to the object must pass through. A synthetic super-root
// (ObjID 0) points at every registered root so the whole reachable set
// has a single entry point for the algorithm; it never appears in the
// returned map.
//
// This is the Lengauer-Tarjan algorithm with the simple link-eval variant
// (path compression without balanced linking), O(E·log V).
func Dominators(g Graph) map[ObjID]ObjID {
	edgesFrom := make(map[ObjID][]ObjID)
	var objects []*Object
	g.ForEachObject(func(obj *Object) {
		objects = append(objects, obj)
	})

	if roots := g.GetRoots(); len(roots.IDs) > 0 {
		edgesFrom[0] = roots.IDs
	}
	for _, obj := range objects {
		if obj.Ptrs != nil {
			edgesFrom[obj.ID] = append([]ObjID{}, obj.Ptrs...)
		}
	}
	predsOf := make(map[ObjID][]ObjID) // object -> objects pointing at it
	for v, targets := range edgesFrom {
		for _, w := range targets {
			predsOf[w] = append(predsOf[w], v)
		}
	}

	var dfsCount int
	byDFSNum := make([]ObjID, 0, len(objects)+1) // DFS number -> object ID
	parentNum := make(map[ObjID]int)             // object -> DFS number of its spanning-tree parent
	dfsNum := make(map[ObjID]int)
	semi := make(map[ObjID]int) // object -> DFS number of its semidominator
	ancestor := make(map[ObjID]int)
	idom := make(map[ObjID]ObjID)
	sameDom := make(map[ObjID]ObjID)
	best := make(map[ObjID]ObjID)
	bucket := make(map[int][]ObjID) // semidominator DFS number -> objects sharing it

	var dfs func(v ObjID, parent int)
	dfs = func(v ObjID, parent int) {
		if _, seen := dfsNum[v]; seen {
			return
		}
		dfsNum[v] = dfsCount
		byDFSNum = append(byDFSNum, v)
		parentNum[v] = parent
		semi[v] = dfsCount
		ancestor[v] = -1
		best[v] = v
		sameDom[v] = v
		dfsCount++
		for _, w := range edgesFrom[v] {
			dfs(w, dfsNum[v])
		}
	}
	dfs(0, -1)

	var compress func(v ObjID)
	compress = func(v ObjID) {
		anc := ancestor[v]
		if anc == -1 {
			return
		}
		ancID := byDFSNum[anc]
		if ancestor[ancID] != -1 {
			compress(ancID)
			if semi[best[ancID]] < semi[best[v]] {
				best[v] = best[ancID]
			}
			ancestor[v] = ancestor[ancID]
		}
	}
	eval := func(v ObjID) ObjID {
		if ancestor[v] == -1 {
			return v
		}
		compress(v)
		return best[v]
	}
	link := func(v ObjID, parent int) { ancestor[v] = parent }

	minSemi := func(v, w ObjID) {
		vNum, reachable := dfsNum[v]
		if !reachable {
			return
		}
		u := v
		if vNum > dfsNum[w] {
			u = eval(v)
		}
		if semi[u] < semi[w] {
			semi[w] = semi[u]
		}
	}

	for i := dfsCount - 1; i > 0; i-- {
		w := byDFSNum[i]

		for _, v := range predsOf[w] {
			minSemi(v, w)
		}

		bucket[semi[w]] = append(bucket[semi[w]], w)
		if parentNum[w] != -1 {
			link(w, parentNum[w])
		}

		for _, v := range bucket[parentNum[w]] {
			u := eval(v)
			if semi[u] == semi[v] {
				idom[v] = byDFSNum[parentNum[w]]
			} else {
				sameDom[v] = u
			}
		}
		bucket[parentNum[w]] = nil
	}

	for i := 1; i < dfsCount; i++ {
		w := byDFSNum[i]
		if sameDom[w] != w {
			idom[w] = idom[sameDom[w]]
		}
	}

	delete(idom, 0)
	return idom
}

// DominatorTree inverts an immediate-dominator map into a map from each
// object to the objects it immediately dominates. Every object in idom
// gets an entry; one that dominates nothing maps to an empty list.
func DominatorTree(idom map[ObjID]ObjID) map[ObjID][]ObjID {
	tree := make(map[ObjID][]ObjID)
	tree[0] = nil
	for node := range idom {
		tree[node] = []ObjID{}
	}
	for node, dom := range idom {
		tree[dom] = append(tree[dom], node)
	}
	return tree
}

// DominatorDepth returns each object's depth in the dominator tree, with
// the super-root at depth 0.
func DominatorDepth(tree map[ObjID][]ObjID) map[ObjID]int {
	depth := make(map[ObjID]int)
	var walk func(node ObjID, d int)
	walk = func(node ObjID, d int) {
		depth[node] = d
		for _, child := range tree[node] {
			walk(child, d+1)
		}
	}
	walk(0, 0)
	return depth
}

// DominatorPath returns the chain of immediate dominators from node up to
// the super-root, node first.
func DominatorPath(idom map[ObjID]ObjID, node ObjID) []ObjID {
	var path []ObjID
	current := node
	for {
		path = append(path, current)
		dom, exists := idom[current]
		if !exists || dom == 0 {
			if current != 0 {
				path = append(path, 0)
			}
			break
		}
		current = dom
	}
	return path
}

// IsDominated reports whether dominator lies on node's chain of immediate
// dominators (a node is always considered dominated by itself).
func IsDominated(idom map[ObjID]ObjID, node, dominator ObjID) bool {
	if node == dominator {
		return true
	}
	current := node
	for {
		dom, exists := idom[current]
		if !exists {
			return false
		}
		if dom == dominator {
			return true
		}
		if dom == 0 {
			return dominator == 0
		}
		current = dom
	}
}
