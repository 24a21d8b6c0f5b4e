// Package embed turns text into fixed-dimension float vectors through a
// pluggable provider: a cloud API or a local Ollama instance. The dimension
// is fixed per embedder; mixing models against one store is detected and
// refused by the store layer.
package embed

import (
	"context"
	"time"
)

const (
	// DefaultBatchSize is the default number of texts per provider request.
	DefaultBatchSize = 32

	// MaxBatchSize caps a single provider request to bound memory.
	MaxBatchSize = 256

	// DefaultRequestTimeout bounds a single embedding request.
	DefaultRequestTimeout = 60 * time.Second

	// DefaultConnectTimeout bounds connection establishment so an
	// unreachable provider fails fast instead of hanging the pipeline.
	DefaultConnectTimeout = 10 * time.Second

	// DefaultCacheSize is the default entry count for the LRU cache.
	// At 768 dims * 4 bytes * 1000 entries this is about 3MB.
	DefaultCacheSize = 1000
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts. The result has
	// the same length and order as the input.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available reports whether the provider is reachable and ready.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}
