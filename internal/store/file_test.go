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

func openFileStore(t *testing.T) VectorStore {
	t.Helper()
	s, err := NewFileStore(FileConfig{
		Path:           filepath.Join(t.TempDir(), "chunks.json"),
		EmbeddingModel: "test-model",
		Dimension:      testDimension,
	})
	require.NoError(t, err)
	require.NoError(t, s.Initialize(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestFileStore_Contract(t *testing.T) {
	runStoreContract(t, openFileStore)
}

func TestFileStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "chunks.json")
	cfg := FileConfig{Path: path, EmbeddingModel: "test-model", Dimension: testDimension}

	s1, err := NewFileStore(cfg)
	require.NoError(t, err)
	require.NoError(t, s1.Initialize(ctx))
	want := testChunk("doc-a", 0, []float32{0.5, 0.5, 0, 0})
	require.NoError(t, s1.Insert(ctx, want))
	require.NoError(t, s1.Close())

	s2, err := NewFileStore(cfg)
	require.NoError(t, err)
	require.NoError(t, s2.Initialize(ctx))
	defer s2.Close()

	got, err := s2.Get(ctx, want.ID)
	require.NoError(t, err)
	assert.Equal(t, want.Content, got.Content)
	assert.Equal(t, want.Metadata, got.Metadata)
}

func TestFileStore_RejectsInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunks.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s, err := NewFileStore(FileConfig{Path: path, Dimension: testDimension})
	require.NoError(t, err)
	err = s.Initialize(context.Background())
	require.Error(t, err)
	assert.True(t, verrors.IsCorruption(err))
}

func TestFileStore_RejectsWrongBackendTag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunks.json")
	payload := `{"version":1,"backend":"embedded","embedding_model":"m","dimension":4,"chunks":[]}`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))

	s, err := NewFileStore(FileConfig{Path: path, Dimension: testDimension})
	require.NoError(t, err)
	err = s.Initialize(context.Background())
	require.Error(t, err)
	assert.True(t, verrors.IsCorruption(err))
}

func TestFileStore_RejectsMismatchedHeaderDimension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunks.json")
	payload := `{"version":1,"backend":"file","embedding_model":"m","dimension":8,"chunks":[]}`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))

	s, err := NewFileStore(FileConfig{Path: path, Dimension: testDimension})
	require.NoError(t, err)
	err = s.Initialize(context.Background())
	require.Error(t, err)
	assert.Equal(t, verrors.ErrCodeDimensionMismatch, verrors.GetCode(err))
}

func TestFileStore_SecondWriterIsLockedOut(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "chunks.json")
	cfg := FileConfig{Path: path, Dimension: testDimension}

	s1, err := NewFileStore(cfg)
	require.NoError(t, err)
	require.NoError(t, s1.Initialize(ctx))
	defer s1.Close()

	s2, err := NewFileStore(cfg)
	require.NoError(t, err)
	err = s2.Initialize(ctx)
	require.Error(t, err)
	assert.Equal(t, verrors.ErrCodeStoreLocked, verrors.GetCode(err))
}

func TestFileStore_ClosedStoreRejectsOperations(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(FileConfig{
		Path:      filepath.Join(t.TempDir(), "chunks.json"),
		Dimension: testDimension,
	})
	require.NoError(t, err)
	require.NoError(t, s.Initialize(ctx))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "close is idempotent")

	err = s.Insert(ctx, testChunk("doc-a", 0, []float32{1, 0, 0, 0}))
	assert.Equal(t, verrors.ErrCodeStoreClosed, verrors.GetCode(err))
}
