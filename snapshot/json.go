// ABOUTME: JSON codec for captured heap graphs
// ABOUTME: The default snapshot format: human-readable, diffable across collections

package snapshot

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/wyrmlisp/gctrace/graph"
)

// JSONCodec reads and writes the snapshot JSON format: an "objects" array
// (id, type, size, ptrs) plus a "roots" array of object IDs.
type JSONCodec struct{}

type jsonSnapshot struct {
	Objects []jsonObject  `json:"objects"`
	Roots   []graph.ObjID `json:"roots"`
}

type jsonObject struct {
	ID   graph.ObjID   `json:"id"`
	Type string        `json:"type"`
	Size uint64        `json:"size"`
	Ptrs []graph.ObjID `json:"ptrs"`
}

// CanDecode reports whether the stream looks like a snapshot JSON document
// (it decodes far enough to see a non-null "objects" key).
func (JSONCodec) CanDecode(r io.Reader) bool {
	dec := json.NewDecoder(r)
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return false
	}
	for dec.More() {
		key, err := dec.Token()
		if err != nil {
			return false
		}
		if key == "objects" {
			val, err := dec.Token()
			return err == nil && val != nil
		}
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return false
		}
	}
	return false
}

// Decode reads a snapshot JSON document and builds an in-memory graph.Graph.
func (JSONCodec) Decode(r io.Reader) (graph.Graph, error) {
	var snap jsonSnapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("snapshot: decode JSON: %w", err)
	}

	for i, obj := range snap.Objects {
		if obj.ID == 0 {
			return nil, fmt.Errorf("snapshot: object at index %d missing id", i)
		}
	}

	g := graph.NewMemGraph()
	for _, obj := range snap.Objects {
		ptrs := obj.Ptrs
		if ptrs == nil {
			ptrs = []graph.ObjID{}
		}
		g.AddObject(&graph.Object{ID: obj.ID, Type: obj.Type, Size: obj.Size, Ptrs: ptrs})
	}

	roots := graph.Roots{IDs: snap.Roots}
	if roots.IDs == nil {
		roots.IDs = []graph.ObjID{}
	}
	g.SetRoots(roots)

	return g, nil
}

// Encode writes g out in the snapshot JSON format.
func (JSONCodec) Encode(w io.Writer, g graph.Graph) error {
	snap := jsonSnapshot{Roots: g.GetRoots().IDs}
	g.ForEachObject(func(obj *graph.Object) {
		ptrs := obj.Ptrs
		if ptrs == nil {
			ptrs = []graph.ObjID{}
		}
		snap.Objects = append(snap.Objects, jsonObject{ID: obj.ID, Type: obj.Type, Size: obj.Size, Ptrs: ptrs})
	})
	if snap.Roots == nil {
		snap.Roots = []graph.ObjID{}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

func init() {
	Register(JSONCodec{})
}
