// ABOUTME: Tests for the snapshot codec registry
// ABOUTME: Validates registration and probe-based codec selection

package snapshot

import (
	"io"
	"strings"
	"testing"

	"github.com/wyrmlisp/gctrace/graph"
)

type mockCodec struct {
	name string
}

func (c *mockCodec) CanDecode(r io.Reader) bool {
	buf := make([]byte, 100)
	n, _ := r.Read(buf)
	return strings.Contains(string(buf[:n]), c.name)
}

func (c *mockCodec) Decode(r io.Reader) (graph.Graph, error) {
	return graph.NewMemGraph(), nil
}

func (c *mockCodec) Encode(w io.Writer, g graph.Graph) error {
	_, err := w.Write([]byte(c.name))
	return err
}

func resetRegistry() {
	registry = &codecRegistry{codecs: make([]Codec, 0)}
}

func TestRegister(t *testing.T) {
	resetRegistry()
	Register(&mockCodec{name: "codec1"})
	Register(&mockCodec{name: "codec2"})

	if len(registry.codecs) != 2 {
		t.Errorf("registered %d codecs, want 2", len(registry.codecs))
	}
}

func TestOpenSelectsMatchingCodec(t *testing.T) {
	resetRegistry()
	Register(&mockCodec{name: "json"})
	Register(&mockCodec{name: "flat"})

	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{name: "json format", content: "json snapshot data", wantErr: false},
		{name: "flat format", content: "flat snapshot data", wantErr: false},
		{name: "unknown format", content: "unrecognized data", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(strings.NewReader(tt.content))
			if tt.wantErr && err == nil {
				t.Error("expected an error but got none")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestOpenNoMatchReturnsErrNoCodec(t *testing.T) {
	resetRegistry()
	Register(&mockCodec{name: "known"})

	_, err := Open(strings.NewReader("totally unrecognized stream"))
	if err != ErrNoCodec {
		t.Errorf("err = %v, want ErrNoCodec", err)
	}
}

func TestConcurrentRegistration(t *testing.T) {
	resetRegistry()

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(id int) {
			Register(&mockCodec{name: string(rune('a' + id))})
			done <- true
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	if len(registry.codecs) != 10 {
		t.Errorf("registered %d codecs after concurrent registration, want 10", len(registry.codecs))
	}
}
