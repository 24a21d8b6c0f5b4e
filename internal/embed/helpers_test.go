package embed

import (
	"context"
	"sync/atomic"
)

// mockEmbedder is a test double that counts calls and returns a fixed
// vector per text length so results are distinguishable.
type mockEmbedder struct {
	embedCalls atomic.Int64
	batchCalls atomic.Int64
	dims       int
	model      string
	closed     bool
	failWith   error
}

func newMockEmbedder(dims int) *mockEmbedder {
	return &mockEmbedder{dims: dims, model: "mock-model"}
}

func (m *mockEmbedder) vectorFor(text string) []float32 {
	vec := make([]float32, m.dims)
	for i := range vec {
		vec[i] = float32(len(text)+i) * 0.001
	}
	return vec
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.embedCalls.Add(1)
	if m.failWith != nil {
		return nil, m.failWith
	}
	return m.vectorFor(text), nil
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.batchCalls.Add(1)
	if m.failWith != nil {
		return nil, m.failWith
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = m.vectorFor(t)
	}
	return out, nil
}

func (m *mockEmbedder) Dimensions() int                    { return m.dims }
func (m *mockEmbedder) ModelName() string                  { return m.model }
func (m *mockEmbedder) Available(ctx context.Context) bool { return true }
func (m *mockEmbedder) Close() error                       { m.closed = true; return nil }
