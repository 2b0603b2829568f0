// ABOUTME: Registry for snapshot codecs
// ABOUTME: Selects the right codec for a stream by probing each registered one

package snapshot

import (
	"bytes"
	"errors"
	"io"
	"sync"

	"github.com/wyrmlisp/gctrace/graph"
)

// ErrNoCodec is returned when no registered codec recognizes a stream.
var ErrNoCodec = errors.New("snapshot: no codec recognizes this stream")

type codecRegistry struct {
	mu     sync.RWMutex
	codecs []Codec
}

var registry = &codecRegistry{codecs: make([]Codec, 0)}

// Register adds a codec that Open will try when decoding an unknown stream.
func Register(c Codec) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.codecs = append(registry.codecs, c)
}

// Open decodes a snapshot by probing each registered codec's CanDecode
// against a buffered preview of r, then decoding with the first match.
func Open(r io.Reader) (graph.Graph, error) {
	buf := new(bytes.Buffer)
	preview := make([]byte, 4096)
	n, err := io.TeeReader(r, buf).Read(preview)
	if err != nil && err != io.EOF {
		return nil, err
	}

	registry.mu.RLock()
	defer registry.mu.RUnlock()

	for _, c := range registry.codecs {
		if c.CanDecode(bytes.NewReader(preview[:n])) {
			full := io.MultiReader(bytes.NewReader(preview[:n]), r)
			return c.Decode(full)
		}
	}
	return nil, ErrNoCodec
}
