// ABOUTME: Codec interface for serializing/deserializing captured heap graphs
// ABOUTME: Defines the contract a pluggable snapshot format implements

package snapshot

import (
	"io"

	"github.com/wyrmlisp/gctrace/graph"
)

// Codec serializes and deserializes a graph.Graph capture to and from a
// byte stream. CanDecode previews a stream to decide whether Decode should
// be attempted; it must not consume the entire stream.
type Codec interface {
	CanDecode(r io.Reader) bool
	Decode(r io.Reader) (graph.Graph, error)
	Encode(w io.Writer, g graph.Graph) error
}
