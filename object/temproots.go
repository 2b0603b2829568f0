// ABOUTME: Fixed-capacity protected-root stack for intermediate values
// ABOUTME: the mutator must keep alive across an allocation that might collect

package object

import (
	"github.com/wyrmlisp/gctrace/gc"
	"github.com/wyrmlisp/gctrace/runtime"
)

// TempRoots is a fixed-capacity stack of pre-registered root slots. Every
// constructor in this package pushes a child reference here before
// allocating its parent, since allocation may trigger a collection that
// relocates or reclaims anything not reachable from a root. Callers doing
// their own multi-step construction follow the same discipline: push,
// allocate, read the (possibly moved) value back with At, pop.
type TempRoots struct {
	slots []gc.Ref
	sp    int
}

// NewTempRoots registers capacity root slots with f and returns a stack
// over them. The slots are registered once, for the lifetime of the pool,
// rather than added and removed per push.
func NewTempRoots(f *runtime.Facade, capacity int) *TempRoots {
	t := &TempRoots{slots: make([]gc.Ref, capacity)}
	for i := range t.slots {
		f.AddRoot(&t.slots[i])
	}
	return t
}

// Push protects v and returns the index to read it back from. A collection
// between Push and the matching At may relocate v; At always returns the
// current value.
func (t *TempRoots) Push(v gc.Ref) int {
	if t.sp >= len(t.slots) {
		gc.Fatal(gc.RootSetGrowth, "temp root stack overflow (capacity %d)", len(t.slots))
	}
	t.slots[t.sp] = v
	t.sp++
	return t.sp - 1
}

// At returns the current value of the slot at idx, reflecting any
// relocation a collection performed since it was pushed.
func (t *TempRoots) At(idx int) gc.Ref { return t.slots[idx] }

// PopN discards the top n protected slots.
func (t *TempRoots) PopN(n int) {
	for i := 0; i < n && t.sp > 0; i++ {
		t.sp--
		t.slots[t.sp] = gc.NilRef
	}
}

// Depth reports how many slots are currently in use.
func (t *TempRoots) Depth() int { return t.sp }

// Reset clears every slot in use, for resetting between top-level forms.
func (t *TempRoots) Reset() {
	for i := 0; i < t.sp; i++ {
		t.slots[i] = gc.NilRef
	}
	t.sp = 0
}
