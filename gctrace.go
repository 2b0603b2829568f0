// ABOUTME: Root package providing version information and module documentation
// ABOUTME: This is the root package for the tracing-GC Lisp runtime

// Package gctrace is a didactic Lisp runtime built to exercise a pluggable
// tracing garbage collector. It provides three interchangeable collector
// backends (mark-sweep, copying, generational) behind a single allocator
// interface, a minimal managed-value model that drives them, and heap
// analysis utilities (dominators, retained size, paths to roots) for
// inspecting what each collector is doing.
package gctrace

// Version is the semantic version of the gctrace module.
const Version = "0.1.0-dev"
