// ABOUTME: Retained-size analysis: an object retains every object its
// ABOUTME: dominator-tree subtree contains, computed by post-order traversal

package graph

// objectSizes returns each object's own size plus a zero entry for the
// super-root, the common input both retained-size functions below need.
func objectSizes(g Graph) map[ObjID]uint64 {
	sizes := make(map[ObjID]uint64)
	g.ForEachObject(func(obj *Object) {
		sizes[obj.ID] = obj.Size
	})
	sizes[0] = 0
	return sizes
}

// retainedWalker memoizes post-order retained-size sums over a dominator
// tree so RetainedSize and RetainedSizeSubsets share one traversal.
type retainedWalker struct {
	tree  map[ObjID][]ObjID
	sizes map[ObjID]uint64
	memo  map[ObjID]uint64
}

func newRetainedWalker(g Graph) *retainedWalker {
	tree := DominatorTree(Dominators(g))
	return &retainedWalker{tree: tree, sizes: objectSizes(g), memo: make(map[ObjID]uint64)}
}

func (w *retainedWalker) retainedSizeOf(id ObjID) uint64 {
	if size, ok := w.memo[id]; ok {
		return size
	}
	size := w.sizes[id]
	for _, child := range w.tree[id] {
		size += w.retainedSizeOf(child)
	}
	w.memo[id] = size
	return size
}

// RetainedSize computes, for every object reachable from the graph's
// roots, the total size of every object that would become unreachable if
// that object were removed: its own size plus the retained size of every
// object it immediately dominates.
func RetainedSize(g Graph) map[ObjID]uint64 {
	w := newRetainedWalker(g)
	retained := make(map[ObjID]uint64)
	for nodeID := range w.tree {
		retained[nodeID] = w.retainedSizeOf(nodeID)
	}
	delete(retained, 0)
	return retained
}

// RetainedSizeSubsets computes retained sizes only for targetIDs, doing
// less work than RetainedSize when only a handful of objects are of
// interest.
func RetainedSizeSubsets(g Graph, targetIDs []ObjID) map[ObjID]uint64 {
	result := make(map[ObjID]uint64)
	if len(targetIDs) == 0 {
		return result
	}
	w := newRetainedWalker(g)
	for _, id := range targetIDs {
		if _, exists := w.sizes[id]; exists && id != 0 {
			result[id] = w.retainedSizeOf(id)
		}
	}
	return result
}
