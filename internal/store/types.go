// Package store provides the vector store contract and its three backends:
// FileStore (single JSON file, in-memory brute force), EmbeddedStore
// (SQLite with an HNSW index), and ServerStore (Postgres with pgvector).
// This is the persistence layer for all embedded document chunks.
package store

import (
	"context"
	"time"
)

// Backend identifies a concrete vector store implementation.
type Backend string

const (
	BackendFile     Backend = "file"
	BackendEmbedded Backend = "embedded"
	BackendServer   Backend = "server"
)

// ChunkMetadata carries the document-level context of a chunk.
type ChunkMetadata struct {
	DocumentID    string    `json:"document_id"`
	DocumentTitle string    `json:"document_title"`
	Section       string    `json:"section,omitempty"`
	ContentType   string    `json:"content_type"`
	Keywords      []string  `json:"keywords,omitempty"`
	PageRef       string    `json:"page_ref,omitempty"`
	ChunkIndex    int       `json:"chunk_index"`
	SourcePath    string    `json:"source_path"`
	CreatedAt     time.Time `json:"created_at"`
	WordCount     int       `json:"word_count"`
	CharCount     int       `json:"char_count"`
}

// Chunk is the atomic retrievable unit: trimmed text, its embedding, and
// document metadata. IDs are derived as "{document_id}#chunk-{index}" so
// they stay stable across re-ingestion.
type Chunk struct {
	ID        string        `json:"id"`
	Content   string        `json:"content"`
	Embedding []float32     `json:"embedding"`
	Metadata  ChunkMetadata `json:"metadata"`
}

// QueryResult is a single similarity search hit.
// Score is cosine similarity normalized to [0,1]; 1.0 means identical.
type QueryResult struct {
	Chunk *Chunk
	Score float32
}

// Stats summarizes a store's contents.
type Stats struct {
	TotalChunks    int
	Backend        Backend
	EmbeddingModel string
	Dimension      int
}

// ScanFunc receives one batch of chunks during a streaming scan.
// Returning an error stops the scan.
type ScanFunc func(chunks []*Chunk) error

// VectorStore is the capability contract every backend implements.
// Exactly one concrete implementation is active per deployment; the
// ingestion pipeline and migration engine are callers, never owners.
//
// A store instance is not safe for concurrent writers from two different
// runs; callers serialize access. Reads may run concurrently with each
// other but not with a migration targeting the same store.
type VectorStore interface {
	// Initialize opens the underlying file/connection and creates the
	// schema or index if absent. Idempotent. Fails with a connection
	// error if the backend is unreachable or a corruption error if
	// existing data is unreadable; it never leaves the store
	// half-initialized.
	Initialize(ctx context.Context) error

	// Insert upserts a chunk: inserting an existing ID overwrites it.
	// The embedding length must equal the store's configured dimension;
	// mismatches fail with a configuration error and are never truncated
	// or padded.
	Insert(ctx context.Context, chunk *Chunk) error

	// Get returns the chunk with the given ID, or a not-found error.
	Get(ctx context.Context, id string) (*Chunk, error)

	// Has reports whether a chunk with the given ID exists.
	Has(ctx context.Context, id string) (bool, error)

	// Query returns up to k chunks ordered by descending cosine
	// similarity to the given embedding.
	Query(ctx context.Context, embedding []float32, k int) ([]QueryResult, error)

	// Scan streams all chunks in batches of at most batchSize, bounding
	// memory for large corpora. Iteration order is unspecified but every
	// chunk is visited exactly once.
	Scan(ctx context.Context, batchSize int, fn ScanFunc) error

	// Stats returns the store summary.
	Stats(ctx context.Context) (*Stats, error)

	// Close releases file handles and connection pools.
	Close() error
}

// Clone returns a deep copy of the chunk, so stores can hand out values
// that callers may mutate freely.
func (c *Chunk) Clone() *Chunk {
	if c == nil {
		return nil
	}
	dup := *c
	dup.Embedding = make([]float32, len(c.Embedding))
	copy(dup.Embedding, c.Embedding)
	if c.Metadata.Keywords != nil {
		dup.Metadata.Keywords = make([]string, len(c.Metadata.Keywords))
		copy(dup.Metadata.Keywords, c.Metadata.Keywords)
	}
	return &dup
}
