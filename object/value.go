// ABOUTME: Managed value constructors (number, symbol, pair, lambda,
// ABOUTME: builtin, string) and their trace callbacks

// Package object is the minimal mutator-side value model needed to
// exercise a gc.Backend through a runtime.Facade: pairs, symbols,
// numbers, lambdas, builtins, environments and bindings, each allocated
// through the facade and each installing the trace callback that keeps
// tracing sound. It deliberately stops there: no lexer, parser,
// evaluator, REPL or CLI lives in this package.
package object

import (
	"unsafe"

	"github.com/wyrmlisp/gctrace/gc"
	"github.com/wyrmlisp/gctrace/runtime"
)

// putRef/getRef read and write an 8-byte managed-pointer field in place,
// using the platform's native word layout rather than a fixed wire byte
// order: a Ref field is only ever read back by this same process, never
// serialized (snapshot.JSONCodec works off graph.Graph, not raw payload
// bytes), so there is no cross-platform byte-order contract to keep.
func putRef(b []byte, r gc.Ref) { *(*gc.Ref)(unsafe.Pointer(&b[0])) = r }
func getRef(b []byte) gc.Ref    { return *(*gc.Ref)(unsafe.Pointer(&b[0])) }

// refSlot returns the address of the managed-pointer field at offset
// within payload, for handing to Facade.WriteBarrier. This is only sound
// for fields inside objects the backend will not relocate out from under
// the pointer before the barrier call returns, which holds here because
// every caller computes the slot and calls WriteBarrier in the same
// statement sequence, with no intervening allocation.
func refSlot(payload []byte, offset int) *gc.Ref {
	return (*gc.Ref)(unsafe.Pointer(&payload[offset]))
}

// setRefField writes child into the field at offset inside owner's
// payload and routes the store through the write barrier, per spec §6.4:
// "route every store into a heap field ... through the write barrier."
// Use this for any mutation of an already-allocated object's pointer
// fields; construction-time field writes (an object's own fields, set
// before the object is reachable from anything) skip the barrier, since
// the owner cannot yet be a tenured object holding a stale remembered-set
// entry.
func setRefField(f *runtime.Facade, owner gc.Ref, payload []byte, offset int, child gc.Ref) {
	putRef(payload[offset:offset+8], child)
	f.WriteBarrier(owner, refSlot(payload, offset), child)
}

// NewNumber allocates a float64-valued number. Numbers hold no managed
// pointers, so they install no trace callback.
func NewNumber(f *runtime.Facade, v float64) gc.Ref {
	ref := f.Allocate(8)
	f.SetTag(ref, gc.TagNumber)
	*(*float64)(unsafe.Pointer(&f.Payload(ref)[0])) = v
	return ref
}

// NumberValue reads the float64 a number object holds.
func NumberValue(f *runtime.Facade, ref gc.Ref) float64 {
	return *(*float64)(unsafe.Pointer(&f.Payload(ref)[0]))
}

// NewString allocates a raw byte buffer holding a copy of text. Strings
// hold no managed pointers, so they install no trace callback; they back
// symbol names and are also usable directly as interpreter string values.
func NewString(f *runtime.Facade, text string) gc.Ref {
	ref := f.Allocate(len(text))
	f.SetTag(ref, gc.TagString)
	copy(f.Payload(ref), text)
	return ref
}

// StringValue reads the text a string object holds.
func StringValue(f *runtime.Facade, ref gc.Ref) string {
	return string(f.Payload(ref))
}

func stringEquals(f *runtime.Facade, ref gc.Ref, text string) bool {
	return string(f.Payload(ref)) == text
}

func traceSymbol(v gc.Visitor, payload []byte) {
	putRef(payload[0:8], v.Mark(getRef(payload[0:8])))
}

// NewSymbol allocates a symbol whose name is a fresh backing string. tmp
// protects the backing string across the symbol's own allocation.
func NewSymbol(f *runtime.Facade, tmp *TempRoots, name string) gc.Ref {
	strRef := NewString(f, name)
	idx := tmp.Push(strRef)
	defer tmp.PopN(1)

	ref := f.Allocate(8)
	f.SetTag(ref, gc.TagSymbol)
	f.SetTrace(ref, traceSymbol)
	putRef(f.Payload(ref), tmp.At(idx))
	return ref
}

// SymbolName reads a symbol's backing string.
func SymbolName(f *runtime.Facade, ref gc.Ref) string {
	return StringValue(f, getRef(f.Payload(ref)))
}

func tracePair(v gc.Visitor, payload []byte) {
	putRef(payload[0:8], v.Mark(getRef(payload[0:8])))
	putRef(payload[8:16], v.Mark(getRef(payload[8:16])))
}

// Cons allocates a pair. car and cdr may be gc.NilRef. tmp protects both
// across the allocation.
func Cons(f *runtime.Facade, tmp *TempRoots, car, cdr gc.Ref) gc.Ref {
	idxCar := tmp.Push(car)
	idxCdr := tmp.Push(cdr)
	defer tmp.PopN(2)

	ref := f.Allocate(16)
	f.SetTag(ref, gc.TagPair)
	f.SetTrace(ref, tracePair)
	payload := f.Payload(ref)
	putRef(payload[0:8], tmp.At(idxCar))
	putRef(payload[8:16], tmp.At(idxCdr))
	return ref
}

// Car and Cdr read a pair's two fields.
func Car(f *runtime.Facade, ref gc.Ref) gc.Ref { return getRef(f.Payload(ref)[0:8]) }
func Cdr(f *runtime.Facade, ref gc.Ref) gc.Ref { return getRef(f.Payload(ref)[8:16]) }

// SetCar and SetCdr mutate an already-allocated pair's fields, routed
// through the write barrier (spec §6.4's "pair car/cdr" obligation). Use
// these for set-car!/set-cdr!-style mutation; Cons's own field writes at
// construction time do not need the barrier.
func SetCar(f *runtime.Facade, pair, val gc.Ref) { setRefField(f, pair, f.Payload(pair), 0, val) }
func SetCdr(f *runtime.Facade, pair, val gc.Ref) { setRefField(f, pair, f.Payload(pair), 8, val) }

// List builds a proper list of elements, terminated by gc.NilRef, by
// consing from the end. tmp protects every element plus the list spine
// for the whole construction, since a collection triggered by any one
// Cons call could otherwise relocate or reclaim an element not yet
// attached to the spine.
func List(f *runtime.Facade, tmp *TempRoots, elements ...gc.Ref) gc.Ref {
	base := tmp.Depth()
	for _, e := range elements {
		tmp.Push(e)
	}
	headIdx := tmp.Push(gc.NilRef)
	defer tmp.PopN(len(elements) + 1)

	for i := len(elements) - 1; i >= 0; i-- {
		node := Cons(f, tmp, tmp.At(base+i), tmp.At(headIdx))
		tmp.slots[headIdx] = node
	}
	return tmp.At(headIdx)
}

func traceLambda(v gc.Visitor, payload []byte) {
	putRef(payload[0:8], v.Mark(getRef(payload[0:8])))
	putRef(payload[8:16], v.Mark(getRef(payload[8:16])))
	putRef(payload[16:24], v.Mark(getRef(payload[16:24])))
}

// NewLambda allocates a closure over params, body and the defining
// environment. tmp protects all three across the allocation.
func NewLambda(f *runtime.Facade, tmp *TempRoots, params, body, env gc.Ref) gc.Ref {
	idxParams := tmp.Push(params)
	idxBody := tmp.Push(body)
	idxEnv := tmp.Push(env)
	defer tmp.PopN(3)

	ref := f.Allocate(24)
	f.SetTag(ref, gc.TagLambda)
	f.SetTrace(ref, traceLambda)
	payload := f.Payload(ref)
	putRef(payload[0:8], tmp.At(idxParams))
	putRef(payload[8:16], tmp.At(idxBody))
	putRef(payload[16:24], tmp.At(idxEnv))
	return ref
}

func LambdaParams(f *runtime.Facade, ref gc.Ref) gc.Ref { return getRef(f.Payload(ref)[0:8]) }
func LambdaBody(f *runtime.Facade, ref gc.Ref) gc.Ref   { return getRef(f.Payload(ref)[8:16]) }
func LambdaEnv(f *runtime.Facade, ref gc.Ref) gc.Ref    { return getRef(f.Payload(ref)[16:24]) }

func traceEnv(v gc.Visitor, payload []byte) {
	putRef(payload[0:8], v.Mark(getRef(payload[0:8])))
	putRef(payload[8:16], v.Mark(getRef(payload[8:16])))
}

// NewEnv allocates an environment frame: an empty binding list over a
// parent environment (gc.NilRef for the global environment). tmp
// protects parent across the allocation.
func NewEnv(f *runtime.Facade, tmp *TempRoots, parent gc.Ref) gc.Ref {
	idxParent := tmp.Push(parent)
	defer tmp.PopN(1)

	ref := f.Allocate(16)
	f.SetTag(ref, gc.TagEnv)
	f.SetTrace(ref, traceEnv)
	payload := f.Payload(ref)
	putRef(payload[8:16], tmp.At(idxParent))
	return ref
}

func envBindings(f *runtime.Facade, env gc.Ref) gc.Ref { return getRef(f.Payload(env)[0:8]) }

// EnvParent reads an environment's enclosing environment.
func EnvParent(f *runtime.Facade, env gc.Ref) gc.Ref { return getRef(f.Payload(env)[8:16]) }

func traceBinding(v gc.Visitor, payload []byte) {
	putRef(payload[0:8], v.Mark(getRef(payload[0:8])))
	putRef(payload[8:16], v.Mark(getRef(payload[8:16])))
	putRef(payload[16:24], v.Mark(getRef(payload[16:24])))
}

// Define creates a new binding of symbol to value and prepends it to
// env's binding list. tmp protects symbol and value across both the
// binding's own allocation and the environment mutation that follows it.
// Per spec §6.4, the store into env's bindings-list head — a field inside
// an already-allocated, potentially-tenured object — goes through the
// write barrier; the binding's own fields are written at construction
// time and do not need it.
func Define(f *runtime.Facade, tmp *TempRoots, env, symbol, value gc.Ref) gc.Ref {
	idxSym := tmp.Push(symbol)
	idxVal := tmp.Push(value)
	idxEnv := tmp.Push(env)
	defer tmp.PopN(3)

	ref := f.Allocate(24)
	f.SetTag(ref, gc.TagBinding)
	f.SetTrace(ref, traceBinding)
	payload := f.Payload(ref)
	putRef(payload[0:8], tmp.At(idxSym))
	putRef(payload[8:16], tmp.At(idxVal))
	putRef(payload[16:24], envBindings(f, tmp.At(idxEnv)))

	setRefField(f, tmp.At(idxEnv), f.Payload(tmp.At(idxEnv)), 0, ref)
	return ref
}

func bindingSymbol(f *runtime.Facade, b gc.Ref) gc.Ref { return getRef(f.Payload(b)[0:8]) }

// BindingValue reads a binding's current value.
func BindingValue(f *runtime.Facade, b gc.Ref) gc.Ref { return getRef(f.Payload(b)[8:16]) }

// BindingNext reads the next binding in the same environment's list.
func BindingNext(f *runtime.Facade, b gc.Ref) gc.Ref { return getRef(f.Payload(b)[16:24]) }

// SetBindingValue mutates an existing binding in place (set!), routed
// through the write barrier since the binding may already be tenured.
func SetBindingValue(f *runtime.Facade, b, value gc.Ref) {
	setRefField(f, b, f.Payload(b), 8, value)
}

// Lookup walks env and its chain of parents for a binding whose symbol's
// name equals name, returning the binding (not just its value) so callers
// can mutate it via SetBindingValue.
func Lookup(f *runtime.Facade, env gc.Ref, name string) (gc.Ref, bool) {
	for e := env; e != gc.NilRef; e = EnvParent(f, e) {
		for b := envBindings(f, e); b != gc.NilRef; b = BindingNext(f, b) {
			sym := bindingSymbol(f, b)
			strRef := getRef(f.Payload(sym))
			if stringEquals(f, strRef, name) {
				return b, true
			}
		}
	}
	return gc.NilRef, false
}

// Builtin is a native function exposed to the mutator. Builtins are held
// in a process-wide table and referenced by index, since a Go func value
// cannot be written into managed payload bytes or traced by a collector.
type Builtin func(f *runtime.Facade, tmp *TempRoots, args []gc.Ref) gc.Ref

var builtinTable []Builtin

// NewBuiltin registers fn and allocates a managed handle referencing it.
// Builtins hold no managed pointers, so they install no trace callback.
func NewBuiltin(f *runtime.Facade, fn Builtin) gc.Ref {
	idx := uint64(len(builtinTable))
	builtinTable = append(builtinTable, fn)

	ref := f.Allocate(8)
	f.SetTag(ref, gc.TagBuiltin)
	*(*uint64)(unsafe.Pointer(&f.Payload(ref)[0])) = idx
	return ref
}

// BuiltinFunc returns the native function a builtin handle references.
func BuiltinFunc(f *runtime.Facade, ref gc.Ref) Builtin {
	idx := *(*uint64)(unsafe.Pointer(&f.Payload(ref)[0]))
	return builtinTable[idx]
}
