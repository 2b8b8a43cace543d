// Package datasource defines where raw record streams come from. A Source is
// re-readable: every Open returns a fresh stream positioned at the start, which
// is what makes extraction restartable.
package datasource

import (
	"context"
	"io"
	"strings"
)

// Source opens a record stream.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	// Name identifies the source in logs and errors (typically a path).
	Name() string
}

// Static is an in-memory Source, mostly useful for tests and generated data.
type Static struct {
	name string
	data string
}

// NewStatic returns a Source that always yields data.
func NewStatic(name, data string) *Static { return &Static{name: name, data: data} }

// Open returns a new reader over the static payload.
func (s *Static) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return io.NopCloser(strings.NewReader(s.data)), nil
}

// Name implements Source.
func (s *Static) Name() string { return s.name }
