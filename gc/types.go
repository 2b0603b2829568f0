// ABOUTME: Shared enums, statistics record, snapshot record and the managed-pointer
// ABOUTME: type every GC backend is built around

// Package gc defines the type surface and dispatch contract shared by every
// tracing-collector backend (mark-sweep, copying, generational): the
// managed-pointer handle, object tags, generation tags, the statistics and
// snapshot records, and the Backend interface itself.
package gc

import "fmt"

// Ref is a managed pointer: an opaque handle to the payload of a managed
// object. The zero value, NilRef, is the null pointer. A Ref is only
// meaningful relative to the Backend that produced it.
type Ref uint64

// NilRef is the null managed pointer.
const NilRef Ref = 0

// Tag is a small diagnostic enum attached to every managed object. It has
// no effect on collection; it exists purely for visualization/inspection.
type Tag uint8

// Stable tag values for visualizer interop (spec §6.1).
const (
	TagUnknown Tag = 0
	TagNumber  Tag = 1
	TagSymbol  Tag = 2
	TagPair    Tag = 3
	TagLambda  Tag = 4
	TagBuiltin Tag = 5
	TagEnv     Tag = 10
	TagBinding Tag = 11
	TagString  Tag = 12
)

func (t Tag) String() string {
	switch t {
	case TagUnknown:
		return "unknown"
	case TagNumber:
		return "number"
	case TagSymbol:
		return "symbol"
	case TagPair:
		return "pair"
	case TagLambda:
		return "lambda"
	case TagBuiltin:
		return "builtin"
	case TagEnv:
		return "env"
	case TagBinding:
		return "binding"
	case TagString:
		return "string"
	default:
		return fmt.Sprintf("tag(%d)", uint8(t))
	}
}

// Generation identifies which region of a (possibly generational) heap an
// object currently lives in.
type Generation uint8

const (
	GenUnknown Generation = 0
	GenNursery Generation = 1
	GenOld     Generation = 2
)

func (g Generation) String() string {
	switch g {
	case GenNursery:
		return "nursery"
	case GenOld:
		return "old"
	default:
		return "unknown"
	}
}

// Visitor is the sole primitive a trace callback may use to recursively
// visit a managed object's children. Mark returns the current address of
// the target (identity for non-moving backends, the forwarded address for
// moving ones); the caller must write the result back into the slot it
// came from.
type Visitor interface {
	Mark(child Ref) Ref
}

// TraceFunc enumerates a managed object's outgoing managed-pointer fields.
// It is invoked with the object's raw payload bytes; for every managed
// pointer encoded in those bytes it must call v.Mark and write the result
// back into the same bytes.
type TraceFunc func(v Visitor, payload []byte)

// Stats is the cumulative statistics record exported by every backend
// (spec §3.5, §6.3). Free-list backends (mark-sweep, generational tenured)
// populate the fragmentation fields; copying backends leave them zero.
type Stats struct {
	Collections     uint64
	AllocatedBytes  uint64
	FreedBytes      uint64
	CurrentBytes    uint64
	ObjectsScanned  uint64
	ObjectsCopied   uint64
	ObjectsPromoted uint64
	SurvivalRate    float64
	MetadataBytes   uint64
	WastedBytes     uint64

	LastGCPauseMS float64
	AvgGCPauseMS  float64
	MaxGCPauseMS  float64
	TotalGCTimeMS float64

	LargestFreeBlock           uint64
	TotalFreeMemory            uint64
	FreeBlocksCount            uint64
	AverageFreeBlockSize       float64
	FragmentationIndex         float64
	PeakFragmentationIndex     float64
	InternalFragmentationRatio float64
	AveragePaddingPerObject    float64
	FragmentationGrowthRate    float64
}

// SnapshotRecord describes one live object for external inspection
// (spec §3.6).
type SnapshotRecord struct {
	Addr       uint64
	Size       uint32
	Generation Generation
	Tag        Tag
}

// FailureKind distinguishes the fatal failure paths of spec §7.
type FailureKind int

const (
	OutOfMemory FailureKind = iota
	RootSetGrowth
)

func (k FailureKind) String() string {
	switch k {
	case OutOfMemory:
		return "OutOfMemory"
	case RootSetGrowth:
		return "RootSetGrowth"
	default:
		return "UnknownFailure"
	}
}

// FatalError is panicked by a backend when allocation (or root-set growth)
// still cannot be satisfied after a collection. Per spec §4.5/§7 this path
// never returns a recoverable error to the mutator; a caller that wants a
// recoverable boundary wraps its call with recover().
type FatalError struct {
	Kind FailureKind
	Msg  string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("gc: fatal %s: %s", e.Kind, e.Msg)
}

// Fatal panics with a *FatalError of the given kind. Backends call this
// instead of returning an error, matching spec §4.5's "allocation either
// returns a valid pointer or does not return."
func Fatal(kind FailureKind, format string, args ...any) {
	panic(&FatalError{Kind: kind, Msg: fmt.Sprintf(format, args...)})
}

// PointerAlign is the alignment (in bytes) every payload size is rounded
// up to (spec §4.1.1: "treat as 8 bytes").
const PointerAlign = 8

// AlignSize rounds n up to PointerAlign.
func AlignSize(n int) int {
	if n < 0 {
		n = 0
	}
	return (n + PointerAlign - 1) &^ (PointerAlign - 1)
}
