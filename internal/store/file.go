package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"

	verrors "github.com/vaultrag/vaultrag/internal/errors"
)

// fileFormatVersion is the current on-disk format version for FileStore.
const fileFormatVersion = 1

// FileConfig configures a FileStore.
type FileConfig struct {
	// Path is the location of the serialized store file.
	Path string
	// EmbeddingModel is the model name recorded in the store header.
	EmbeddingModel string
	// Dimension is the fixed embedding dimension for this store.
	Dimension int
}

// filePayload is the self-describing on-disk layout: a metadata header
// that readers must validate before trusting the chunk list.
type filePayload struct {
	Version        int       `json:"version"`
	Backend        Backend   `json:"backend"`
	EmbeddingModel string    `json:"embedding_model"`
	Dimension      int       `json:"dimension"`
	UpdatedAt      time.Time `json:"updated_at"`
	Chunks         []*Chunk  `json:"chunks"`
}

// FileStore keeps the entire chunk set in memory, serialized to a single
// JSON file. Query is brute-force cosine over all vectors, which is fine
// for small corpora (low thousands of chunks).
type FileStore struct {
	mu     sync.RWMutex
	config FileConfig

	chunks      map[string]*Chunk
	dirty       bool
	initialized bool
	closed      bool

	lock *flock.Flock
}

var _ VectorStore = (*FileStore)(nil)

// NewFileStore creates a file-backed store. Call Initialize before use.
func NewFileStore(cfg FileConfig) (*FileStore, error) {
	if cfg.Path == "" {
		return nil, verrors.ConfigError("file store path is required", nil)
	}
	if cfg.Dimension <= 0 {
		return nil, verrors.ConfigError("file store dimension must be positive", nil)
	}
	return &FileStore{
		config: cfg,
		chunks: make(map[string]*Chunk),
	}, nil
}

// Initialize loads the store file into memory, creating it if absent.
// The store holds an exclusive file lock for its open lifetime so two
// processes never write the same store.
func (s *FileStore) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return verrors.New(verrors.ErrCodeStoreClosed, "store is closed", nil)
	}
	if s.initialized {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.config.Path), 0o755); err != nil {
		return verrors.New(verrors.ErrCodeStoreWriteFailed, "create store directory", err)
	}

	lock := flock.New(s.config.Path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return verrors.New(verrors.ErrCodeStoreLocked, "acquire store lock", err)
	}
	if !locked {
		return verrors.Newf(verrors.ErrCodeStoreLocked,
			"store %s is locked by another process", s.config.Path)
	}
	s.lock = lock

	data, err := os.ReadFile(s.config.Path)
	if os.IsNotExist(err) {
		// Fresh store.
		s.initialized = true
		return nil
	}
	if err != nil {
		s.releaseLock()
		return verrors.CorruptionError("read store file", err)
	}

	var payload filePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		s.releaseLock()
		return verrors.CorruptionError(
			fmt.Sprintf("store file %s is not valid JSON", s.config.Path), err)
	}
	if err := s.validateHeader(&payload); err != nil {
		s.releaseLock()
		return err
	}

	for _, c := range payload.Chunks {
		s.chunks[c.ID] = c
	}

	slog.Debug("file store loaded",
		slog.String("path", s.config.Path),
		slog.Int("chunks", len(s.chunks)))

	s.initialized = true
	return nil
}

// validateHeader checks the metadata block before the chunk list is trusted.
func (s *FileStore) validateHeader(p *filePayload) error {
	if p.Version != fileFormatVersion {
		return verrors.CorruptionError(
			fmt.Sprintf("unsupported store format version %d", p.Version), nil)
	}
	if p.Backend != BackendFile {
		return verrors.CorruptionError(
			fmt.Sprintf("store file has backend tag %q, want %q", p.Backend, BackendFile), nil)
	}
	if p.Dimension != s.config.Dimension {
		return verrors.DimensionError(s.config.Dimension, p.Dimension)
	}
	return nil
}

// Insert upserts a chunk into memory. The file is rewritten on Flush/Close.
func (s *FileStore) Insert(ctx context.Context, chunk *Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureOpen(); err != nil {
		return err
	}
	if len(chunk.Embedding) != s.config.Dimension {
		return verrors.DimensionError(s.config.Dimension, len(chunk.Embedding))
	}

	s.chunks[chunk.ID] = chunk.Clone()
	s.dirty = true
	return nil
}

// Get returns the chunk with the given ID.
func (s *FileStore) Get(ctx context.Context, id string) (*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	c, ok := s.chunks[id]
	if !ok {
		return nil, verrors.Newf(verrors.ErrCodeChunkNotFound, "chunk %s not found", id)
	}
	return c.Clone(), nil
}

// Has reports whether a chunk exists.
func (s *FileStore) Has(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ensureOpen(); err != nil {
		return false, err
	}
	_, ok := s.chunks[id]
	return ok, nil
}

// Query performs brute-force cosine similarity over all in-memory vectors.
func (s *FileStore) Query(ctx context.Context, embedding []float32, k int) ([]QueryResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	if len(embedding) != s.config.Dimension {
		return nil, verrors.DimensionError(s.config.Dimension, len(embedding))
	}
	if k <= 0 {
		return []QueryResult{}, nil
	}

	results := make([]QueryResult, 0, len(s.chunks))
	for _, c := range s.chunks {
		cos := CosineSimilarity(embedding, c.Embedding)
		results = append(results, QueryResult{Chunk: c.Clone(), Score: similarityScore(cos)})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Scan streams all chunks in batches. Snapshot semantics: the chunk set
// visited is the one present when Scan starts.
func (s *FileStore) Scan(ctx context.Context, batchSize int, fn ScanFunc) error {
	if batchSize <= 0 {
		return verrors.ConfigError("scan batch size must be positive", nil)
	}

	s.mu.RLock()
	if err := s.ensureOpen(); err != nil {
		s.mu.RUnlock()
		return err
	}
	all := make([]*Chunk, 0, len(s.chunks))
	for _, c := range s.chunks {
		all = append(all, c.Clone())
	}
	s.mu.RUnlock()

	for start := 0; start < len(all); start += batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := start + batchSize
		if end > len(all) {
			end = len(all)
		}
		if err := fn(all[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// Stats returns the store summary.
func (s *FileStore) Stats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	return &Stats{
		TotalChunks:    len(s.chunks),
		Backend:        BackendFile,
		EmbeddingModel: s.config.EmbeddingModel,
		Dimension:      s.config.Dimension,
	}, nil
}

// Flush writes the full store to disk atomically (temp file + rename).
func (s *FileStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureOpen(); err != nil {
		return err
	}
	return s.flushLocked()
}

func (s *FileStore) flushLocked() error {
	if !s.dirty {
		return nil
	}

	chunks := make([]*Chunk, 0, len(s.chunks))
	for _, c := range s.chunks {
		chunks = append(chunks, c)
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].ID < chunks[j].ID })

	payload := filePayload{
		Version:        fileFormatVersion,
		Backend:        BackendFile,
		EmbeddingModel: s.config.EmbeddingModel,
		Dimension:      s.config.Dimension,
		UpdatedAt:      time.Now().UTC(),
		Chunks:         chunks,
	}

	data, err := json.Marshal(&payload)
	if err != nil {
		return verrors.New(verrors.ErrCodeStoreWriteFailed, "encode store", err)
	}

	tmp := s.config.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return verrors.New(verrors.ErrCodeStoreWriteFailed, "write store temp file", err)
	}
	if err := os.Rename(tmp, s.config.Path); err != nil {
		_ = os.Remove(tmp)
		return verrors.New(verrors.ErrCodeStoreWriteFailed, "rename store file", err)
	}

	s.dirty = false
	return nil
}

// Close flushes pending writes and releases the file lock. Idempotent.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	var flushErr error
	if s.initialized {
		flushErr = s.flushLocked()
	}

	s.releaseLock()
	s.closed = true
	return flushErr
}

func (s *FileStore) releaseLock() {
	if s.lock != nil {
		if err := s.lock.Unlock(); err != nil {
			slog.Warn("failed to release store lock", slog.String("error", err.Error()))
		}
		s.lock = nil
	}
}

func (s *FileStore) ensureOpen() error {
	if s.closed {
		return verrors.New(verrors.ErrCodeStoreClosed, "store is closed", nil)
	}
	if !s.initialized {
		return verrors.New(verrors.ErrCodeInternal, "store is not initialized", nil)
	}
	return nil
}

// IsNotFound reports whether err is a chunk-not-found error from any backend.
func IsNotFound(err error) bool {
	return verrors.GetCode(err) == verrors.ErrCodeChunkNotFound
}
