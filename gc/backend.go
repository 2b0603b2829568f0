// ABOUTME: Backend is the dispatch table every GC implementation provides
// ABOUTME: identical signatures across mark-sweep, copying and generational

package gc

// Backend is the operation set every collector implementation provides
// (spec §4.1). The runtime façade holds exactly one selected Backend and
// forwards every mutator call to it.
type Backend interface {
	// Init allocates the heap and resets roots/remembered-set/stats. It is
	// idempotent.
	Init(cfg Config)

	// Allocate returns an aligned, zeroed payload handle for size bytes.
	// It may trigger a collection; if the request still cannot be
	// satisfied afterward it panics with a *FatalError (OutOfMemory) and
	// does not return.
	Allocate(size int) Ref

	// Payload returns the backend's current view of p's payload bytes.
	// The slice aliases the backend's arena and is only valid until the
	// next call that may move objects (Collect, or an Allocate that
	// triggers one) — the same "no bare pointers across a safepoint"
	// discipline spec §5 requires of managed pointers applies to payload
	// slices derived from them.
	Payload(p Ref) []byte

	// SetTrace installs p's trace callback. No-op on NilRef.
	SetTrace(p Ref, fn TraceFunc)

	// SetTag installs p's diagnostic tag. Safe before or after SetTrace.
	SetTag(p Ref, tag Tag)

	// MarkPointer is the sole primitive a trace callback uses to visit a
	// child reference. Outside of a collection it is the identity. Safe
	// on NilRef (returns NilRef).
	MarkPointer(p Ref) Ref

	// AddRoot registers the address of a pointer cell. Idempotent.
	AddRoot(slot *Ref)

	// RemoveRoot unregisters a previously-registered root slot.
	RemoveRoot(slot *Ref)

	// WriteBarrier informs the backend that *slot, a field inside owner,
	// now holds child. Mark-sweep and copying treat this as a no-op.
	WriteBarrier(owner Ref, slot *Ref, child Ref)

	// Collect forces a collection cycle: a full one for mark-sweep and
	// copying; for generational a minor collection, followed by a major
	// one only when tenured usage exceeds the major threshold.
	Collect()

	// Free optionally reclaims ptr outside of collection. No-op on
	// NilRef; a no-op between collections for moving backends.
	Free(ptr Ref)

	// SetThreshold sets the bytes-allocated watermark that opportunistically
	// triggers a collection on the next allocation.
	SetThreshold(bytes uint64)

	// GetThreshold returns the current threshold. For copying backends
	// this is the semi-space size.
	GetThreshold() uint64

	// Stats snapshots the cumulative statistics record.
	Stats() Stats

	// HeapSnapshot fills up to len(buf) records describing live
	// allocated objects and returns the number written. Order is
	// backend-defined but stable within one call.
	HeapSnapshot(buf []SnapshotRecord) int

	// VisitChildren invokes p's trace callback with a Visitor that
	// records each child without evacuating it (MarkPointer is identity
	// outside collection). Used for diagnostic/visualization walks, not
	// by collection itself.
	VisitChildren(p Ref, visit func(Ref))
}
