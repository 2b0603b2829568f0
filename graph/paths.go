// ABOUTME: BFS search for paths from an object back to a root, over reverse edges
// ABOUTME: Used to answer "what is keeping this object alive" for a captured heap

package graph

// ReverseEdges maps each object to the objects that point directly to it.
type ReverseEdges map[ObjID][]ObjID

// BuildReverseEdges inverts every object's outgoing pointers into a
// referrer map, the structure PathsToRoots walks.
func BuildReverseEdges(g Graph) ReverseEdges {
	reverse := make(ReverseEdges)
	g.ForEachObject(func(obj *Object) {
		for _, target := range obj.Ptrs {
			reverse[target] = append(reverse[target], obj.ID)
		}
	})
	return reverse
}

// Path is a chain of object IDs from a target object back to a root.
type Path struct {
	IDs []ObjID
}

// PathsToRoots finds up to maxPaths distinct acyclic paths from the
// object from back to any registered root, by breadth-first search over
// reverse edges.
func PathsToRoots(g Graph, from ObjID, maxPaths int) []Path {
	if maxPaths <= 0 {
		return nil
	}

	referrersOf := BuildReverseEdges(g)
	isRoot := make(map[ObjID]bool)
	for _, id := range g.GetRoots().IDs {
		isRoot[id] = true
	}

	if isRoot[from] {
		return []Path{{IDs: []ObjID{from}}}
	}

	type frontier struct {
		id   ObjID
		path []ObjID
	}
	var found []Path
	queue := []frontier{{id: from, path: []ObjID{from}}}

	for len(queue) > 0 && len(found) < maxPaths {
		cur := queue[0]
		queue = queue[1:]

		for _, referrer := range referrersOf[cur.id] {
			if containsID(cur.path, referrer) {
				continue // would revisit a node already on this path
			}
			extended := make([]ObjID, len(cur.path)+1)
			copy(extended, cur.path)
			extended[len(cur.path)] = referrer

			if isRoot[referrer] {
				found = append(found, Path{IDs: extended})
				if len(found) >= maxPaths {
					break
				}
				continue
			}
			queue = append(queue, frontier{id: referrer, path: extended})
		}
	}

	return found
}

func containsID(path []ObjID, id ObjID) bool {
	for _, v := range path {
		if v == id {
			return true
		}
	}
	return false
}
