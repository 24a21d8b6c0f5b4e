package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	verrors "github.com/vaultrag/vaultrag/internal/errors"
)

const testDimension = 4

// testChunk builds a deterministic chunk for contract tests.
func testChunk(docID string, index int, embedding []float32) *Chunk {
	return &Chunk{
		ID:        fmt.Sprintf("%s#chunk-%d", docID, index),
		Content:   fmt.Sprintf("content of %s part %d", docID, index),
		Embedding: embedding,
		Metadata: ChunkMetadata{
			DocumentID:    docID,
			DocumentTitle: "Test Document",
			Section:       "Introduction",
			ContentType:   "text",
			Keywords:      []string{"test", "document"},
			ChunkIndex:    index,
			SourcePath:    docID + ".md",
			CreatedAt:     time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC),
			WordCount:     5,
			CharCount:     30,
		},
	}
}

// runStoreContract exercises the VectorStore contract shared by all
// backends: insert/get roundtrip, upsert, dimension enforcement, query
// ordering, and batched scans.
func runStoreContract(t *testing.T, open func(t *testing.T) VectorStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("insert then get returns equal chunk", func(t *testing.T) {
		s := open(t)
		want := testChunk("doc-a", 0, []float32{0.1, 0.2, 0.3, 0.4})
		require.NoError(t, s.Insert(ctx, want))

		got, err := s.Get(ctx, want.ID)
		require.NoError(t, err)
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, want.Content, got.Content)
		assert.Equal(t, want.Metadata, got.Metadata)
		require.Len(t, got.Embedding, testDimension)
		for i := range want.Embedding {
			assert.InDelta(t, want.Embedding[i], got.Embedding[i], 1e-6)
		}
	})

	t.Run("insert existing id overwrites", func(t *testing.T) {
		s := open(t)
		first := testChunk("doc-a", 0, []float32{1, 0, 0, 0})
		require.NoError(t, s.Insert(ctx, first))

		updated := testChunk("doc-a", 0, []float32{0, 1, 0, 0})
		updated.Content = "rewritten"
		require.NoError(t, s.Insert(ctx, updated))

		got, err := s.Get(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, "rewritten", got.Content)
		assert.InDelta(t, float32(1), got.Embedding[1], 1e-6)

		stats, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.TotalChunks, "upsert must not duplicate")
	})

	t.Run("get missing id returns not found", func(t *testing.T) {
		s := open(t)
		_, err := s.Get(ctx, "nope#chunk-0")
		require.Error(t, err)
		assert.True(t, IsNotFound(err))

		ok, err := s.Has(ctx, "nope#chunk-0")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("wrong dimension rejected not truncated", func(t *testing.T) {
		s := open(t)
		bad := testChunk("doc-a", 0, []float32{1, 2, 3})
		err := s.Insert(ctx, bad)
		require.Error(t, err)
		assert.Equal(t, verrors.ErrCodeDimensionMismatch, verrors.GetCode(err))

		ok, hasErr := s.Has(ctx, bad.ID)
		require.NoError(t, hasErr)
		assert.False(t, ok, "rejected insert must not store anything")
	})

	t.Run("query orders by descending similarity and respects k", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Insert(ctx, testChunk("doc-a", 0, []float32{1, 0, 0, 0})))
		require.NoError(t, s.Insert(ctx, testChunk("doc-a", 1, []float32{0.9, 0.1, 0, 0})))
		require.NoError(t, s.Insert(ctx, testChunk("doc-a", 2, []float32{0, 0, 1, 0})))
		require.NoError(t, s.Insert(ctx, testChunk("doc-a", 3, []float32{-1, 0, 0, 0})))

		results, err := s.Query(ctx, []float32{1, 0, 0, 0}, 3)
		require.NoError(t, err)
		require.Len(t, results, 3)

		assert.Equal(t, "doc-a#chunk-0", results[0].Chunk.ID)
		for i := 1; i < len(results); i++ {
			assert.LessOrEqual(t, results[i].Score, results[i-1].Score,
				"scores must be non-increasing")
		}
		assert.InDelta(t, 1.0, float64(results[0].Score), 1e-3)
	})

	t.Run("query wrong dimension rejected", func(t *testing.T) {
		s := open(t)
		_, err := s.Query(ctx, []float32{1, 0}, 5)
		require.Error(t, err)
		assert.Equal(t, verrors.ErrCodeDimensionMismatch, verrors.GetCode(err))
	})

	t.Run("scan visits every chunk exactly once", func(t *testing.T) {
		s := open(t)
		const total = 7
		for i := 0; i < total; i++ {
			require.NoError(t, s.Insert(ctx, testChunk("doc-b", i, []float32{float32(i), 1, 0, 0})))
		}

		seen := make(map[string]int)
		batches := 0
		err := s.Scan(ctx, 3, func(chunks []*Chunk) error {
			batches++
			assert.LessOrEqual(t, len(chunks), 3)
			for _, c := range chunks {
				seen[c.ID]++
			}
			return nil
		})
		require.NoError(t, err)
		assert.Len(t, seen, total)
		for id, n := range seen {
			assert.Equal(t, 1, n, "chunk %s visited more than once", id)
		}
		assert.Equal(t, 3, batches)
	})

	t.Run("stats reports backend and dimension", func(t *testing.T) {
		s := open(t)
		stats, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, stats.TotalChunks)
		assert.Equal(t, testDimension, stats.Dimension)
		assert.NotEmpty(t, stats.Backend)
	})

	t.Run("initialize is idempotent", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Initialize(ctx))
		require.NoError(t, s.Initialize(ctx))
	})
}
