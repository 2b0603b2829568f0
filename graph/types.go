// ABOUTME: Core data types for the point-in-time heap object graph
// ABOUTME: ObjID mirrors a gc.Ref's numeric value, not a separate identity space

package graph

// ObjID identifies one live object in a captured heap graph. Its value is
// the numeric value of the gc.Ref that addressed the object at capture
// time; ObjID 0 is reserved as the super-root used internally by the
// dominator computation and never names a real object.
type ObjID uint64

// Object is one node of a captured graph: its size, its diagnostic tag
// name at capture time, and the set of objects it points to.
type Object struct {
	ID   ObjID
	Type string // gc.Tag.String() at capture time
	Size uint64
	Ptrs []ObjID
}

// Roots is the set of objects a graph's dominator and reachability
// analyses treat as externally reachable, mirroring the backend's
// registered-root slots at capture time.
type Roots struct {
	IDs []ObjID
}
