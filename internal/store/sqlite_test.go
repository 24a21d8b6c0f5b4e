package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	verrors "github.com/vaultrag/vaultrag/internal/errors"
)

func openEmbeddedStore(t *testing.T) VectorStore {
	t.Helper()
	s, err := NewEmbeddedStore(EmbeddedConfig{
		Path:           filepath.Join(t.TempDir(), "chunks.db"),
		Durable:        true,
		EmbeddingModel: "test-model",
		Dimension:      testDimension,
	})
	require.NoError(t, err)
	require.NoError(t, s.Initialize(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestEmbeddedStore_Contract(t *testing.T) {
	runStoreContract(t, openEmbeddedStore)
}

func TestEmbeddedStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "chunks.db")
	cfg := EmbeddedConfig{Path: path, Durable: true, EmbeddingModel: "test-model", Dimension: testDimension}

	s1, err := NewEmbeddedStore(cfg)
	require.NoError(t, err)
	require.NoError(t, s1.Initialize(ctx))
	want := testChunk("doc-a", 0, []float32{0.25, 0.25, 0.25, 0.25})
	require.NoError(t, s1.Insert(ctx, want))
	require.NoError(t, s1.Close())

	s2, err := NewEmbeddedStore(cfg)
	require.NoError(t, err)
	require.NoError(t, s2.Initialize(ctx))
	defer s2.Close()

	got, err := s2.Get(ctx, want.ID)
	require.NoError(t, err)
	assert.Equal(t, want.Content, got.Content)
	assert.Equal(t, want.Metadata, got.Metadata)

	// The rebuilt index must serve queries.
	results, err := s2.Query(ctx, want.Embedding, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, want.ID, results[0].Chunk.ID)
}

func TestEmbeddedStore_RejectsMismatchedStoredDimension(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "chunks.db")

	s1, err := NewEmbeddedStore(EmbeddedConfig{Path: path, Dimension: testDimension})
	require.NoError(t, err)
	require.NoError(t, s1.Initialize(ctx))
	require.NoError(t, s1.Close())

	s2, err := NewEmbeddedStore(EmbeddedConfig{Path: path, Dimension: 8})
	require.NoError(t, err)
	err = s2.Initialize(ctx)
	require.Error(t, err)
	assert.Equal(t, verrors.ErrCodeDimensionMismatch, verrors.GetCode(err))
}

func TestEmbeddedStore_RejectsCorruptDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunks.db")
	require.NoError(t, os.WriteFile(path, []byte("this is not a sqlite database at all"), 0o644))

	s, err := NewEmbeddedStore(EmbeddedConfig{Path: path, Dimension: testDimension})
	require.NoError(t, err)
	err = s.Initialize(context.Background())
	require.Error(t, err)
	assert.True(t, verrors.IsCorruption(err))
}

func TestEmbeddedStore_QueryAfterUpsertSkipsOrphans(t *testing.T) {
	ctx := context.Background()
	s := openEmbeddedStore(t)

	require.NoError(t, s.Insert(ctx, testChunk("doc-a", 0, []float32{1, 0, 0, 0})))
	// Re-insert with a new vector; the old graph node is orphaned.
	require.NoError(t, s.Insert(ctx, testChunk("doc-a", 0, []float32{0, 1, 0, 0})))
	require.NoError(t, s.Insert(ctx, testChunk("doc-a", 1, []float32{0, 0, 1, 0})))

	results, err := s.Query(ctx, []float32{0, 1, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, results, 2, "orphaned node must not appear")
	assert.Equal(t, "doc-a#chunk-0", results[0].Chunk.ID)
}

func TestEncodeDecodeEmbedding(t *testing.T) {
	vec := []float32{0.1, -2.5, 3.75, 0}
	decoded, err := decodeEmbedding(encodeEmbedding(vec), len(vec))
	require.NoError(t, err)
	assert.Equal(t, vec, decoded)

	_, err = decodeEmbedding([]byte{1, 2, 3}, 1)
	assert.Error(t, err)

	_, err = decodeEmbedding(encodeEmbedding(vec), 8)
	assert.Error(t, err)
}
