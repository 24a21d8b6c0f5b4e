package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/coder/hnsw"
	_ "modernc.org/sqlite" // pure Go SQLite driver, no CGO

	verrors "github.com/vaultrag/vaultrag/internal/errors"
)

// embeddedSchemaVersion is the current SQLite schema version.
const embeddedSchemaVersion = 1

// EmbeddedConfig configures an EmbeddedStore.
type EmbeddedConfig struct {
	// Path is the SQLite database file. Empty means in-memory (tests).
	Path string
	// Durable enables write-ahead logging for crash safety.
	Durable bool
	// EmbeddingModel is the model name recorded in store metadata.
	EmbeddingModel string
	// Dimension is the fixed embedding dimension for this store.
	Dimension int
	// M and EfSearch tune the HNSW index. Zero means defaults (16/20).
	M        int
	EfSearch int
}

// EmbeddedStore persists chunks in a single SQLite file and serves Query
// through an in-memory HNSW index. The SQLite rows are the source of
// truth; the index is rebuilt from them on Initialize and maintained on
// Insert. Scales to tens of thousands of chunks with sub-linear queries.
type EmbeddedStore struct {
	mu     sync.RWMutex
	config EmbeddedConfig

	db    *sql.DB
	graph *hnsw.Graph[uint64]

	// String ID <-> graph key mapping. Lazy deletion: replaced keys are
	// orphaned in the graph and filtered out of search results.
	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64

	initialized bool
	closed      bool
}

var _ VectorStore = (*EmbeddedStore)(nil)

// NewEmbeddedStore creates a SQLite-backed store. Call Initialize before use.
func NewEmbeddedStore(cfg EmbeddedConfig) (*EmbeddedStore, error) {
	if cfg.Dimension <= 0 {
		return nil, verrors.ConfigError("embedded store dimension must be positive", nil)
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}
	return &EmbeddedStore{
		config: cfg,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}, nil
}

// Initialize opens the database, creates the schema if absent, validates
// store metadata, and rebuilds the HNSW index from the stored rows.
func (s *EmbeddedStore) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return verrors.New(verrors.ErrCodeStoreClosed, "store is closed", nil)
	}
	if s.initialized {
		return nil
	}

	dsn := ":memory:"
	if s.config.Path != "" {
		if err := os.MkdirAll(filepath.Dir(s.config.Path), 0o755); err != nil {
			return verrors.New(verrors.ErrCodeStoreWriteFailed, "create store directory", err)
		}
		if err := validateSQLiteIntegrity(s.config.Path); err != nil {
			return verrors.CorruptionError(
				fmt.Sprintf("embedded store %s failed integrity check", s.config.Path), err)
		}
		dsn = s.config.Path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return verrors.CorruptionError("open embedded store", err)
	}

	journalMode := "DELETE"
	if s.config.Durable {
		journalMode = "WAL"
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode="+journalMode); err != nil {
		_ = db.Close()
		return verrors.CorruptionError("set journal mode", err)
	}

	if err := s.createSchema(ctx, db); err != nil {
		_ = db.Close()
		return err
	}
	if err := s.validateMeta(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	if err := s.rebuildIndex(ctx); err != nil {
		s.db = nil
		_ = db.Close()
		return err
	}

	s.initialized = true
	return nil
}

// validateSQLiteIntegrity runs a quick integrity check before opening an
// existing database for real use.
func validateSQLiteIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // will be created
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

func (s *EmbeddedStore) createSchema(ctx context.Context, db *sql.DB) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS chunks (
			id        TEXT PRIMARY KEY,
			content   TEXT NOT NULL,
			embedding BLOB NOT NULL,
			metadata  TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS store_meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return verrors.CorruptionError("create schema", err)
	}

	const upsertMeta = `INSERT INTO store_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO NOTHING`
	metas := [][2]string{
		{"schema_version", strconv.Itoa(embeddedSchemaVersion)},
		{"embedding_model", s.config.EmbeddingModel},
		{"dimension", strconv.Itoa(s.config.Dimension)},
	}
	for _, kv := range metas {
		if _, err := db.ExecContext(ctx, upsertMeta, kv[0], kv[1]); err != nil {
			return verrors.CorruptionError("write store metadata", err)
		}
	}
	return nil
}

// validateMeta refuses to open a store whose recorded dimension differs
// from the configured one; mixing dimensions would corrupt the index.
func (s *EmbeddedStore) validateMeta(ctx context.Context, db *sql.DB) error {
	var dimStr string
	err := db.QueryRowContext(ctx,
		`SELECT value FROM store_meta WHERE key = 'dimension'`).Scan(&dimStr)
	if err != nil {
		return verrors.CorruptionError("read store metadata", err)
	}
	dim, err := strconv.Atoi(dimStr)
	if err != nil {
		return verrors.CorruptionError("store metadata has invalid dimension", err)
	}
	if dim != s.config.Dimension {
		return verrors.DimensionError(s.config.Dimension, dim)
	}
	return nil
}

// rebuildIndex loads all embeddings into a fresh HNSW graph.
func (s *EmbeddedStore) rebuildIndex(ctx context.Context) error {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = s.config.M
	graph.EfSearch = s.config.EfSearch

	s.graph = graph
	s.idMap = make(map[string]uint64)
	s.keyMap = make(map[uint64]string)
	s.nextKey = 0

	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding FROM chunks`)
	if err != nil {
		return verrors.CorruptionError("scan embeddings", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return verrors.CorruptionError("scan embedding row", err)
		}
		vec, err := decodeEmbedding(blob, s.config.Dimension)
		if err != nil {
			return verrors.CorruptionError(fmt.Sprintf("chunk %s has invalid embedding", id), err)
		}
		s.addToIndex(id, vec)
	}
	if err := rows.Err(); err != nil {
		return verrors.CorruptionError("scan embeddings", err)
	}

	slog.Debug("embedded store index rebuilt",
		slog.String("path", s.config.Path),
		slog.Int("vectors", len(s.idMap)))
	return nil
}

func (s *EmbeddedStore) addToIndex(id string, vec []float32) {
	if existingKey, ok := s.idMap[id]; ok {
		// Lazy deletion: orphan the old key rather than removing the
		// node, which coder/hnsw handles badly for the last node.
		delete(s.keyMap, existingKey)
		delete(s.idMap, id)
	}

	key := s.nextKey
	s.nextKey++

	normalized := make([]float32, len(vec))
	copy(normalized, vec)
	normalizeInPlace(normalized)

	s.graph.Add(hnsw.MakeNode(key, normalized))
	s.idMap[id] = key
	s.keyMap[key] = id
}

// Insert upserts a chunk into SQLite and the index.
func (s *EmbeddedStore) Insert(ctx context.Context, chunk *Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureOpen(); err != nil {
		return err
	}
	if len(chunk.Embedding) != s.config.Dimension {
		return verrors.DimensionError(s.config.Dimension, len(chunk.Embedding))
	}

	metaJSON, err := json.Marshal(chunk.Metadata)
	if err != nil {
		return verrors.New(verrors.ErrCodeStoreWriteFailed, "encode chunk metadata", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO chunks (id, content, embedding, metadata)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			embedding = excluded.embedding,
			metadata = excluded.metadata`,
		chunk.ID, chunk.Content, encodeEmbedding(chunk.Embedding), string(metaJSON))
	if err != nil {
		return verrors.New(verrors.ErrCodeStoreWriteFailed,
			fmt.Sprintf("insert chunk %s", chunk.ID), err)
	}

	s.addToIndex(chunk.ID, chunk.Embedding)
	return nil
}

// Get returns the chunk with the given ID.
func (s *EmbeddedStore) Get(ctx context.Context, id string) (*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, content, embedding, metadata FROM chunks WHERE id = ?`, id)
	chunk, err := scanChunkRow(row, s.config.Dimension)
	if err == sql.ErrNoRows {
		return nil, verrors.Newf(verrors.ErrCodeChunkNotFound, "chunk %s not found", id)
	}
	return chunk, err
}

// Has reports whether a chunk exists.
func (s *EmbeddedStore) Has(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ensureOpen(); err != nil {
		return false, err
	}

	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM chunks WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, verrors.New(verrors.ErrCodeInternal, "query chunk existence", err)
	}
	return true, nil
}

// Query searches the HNSW index and hydrates results from SQLite.
func (s *EmbeddedStore) Query(ctx context.Context, embedding []float32, k int) ([]QueryResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	if len(embedding) != s.config.Dimension {
		return nil, verrors.DimensionError(s.config.Dimension, len(embedding))
	}
	if k <= 0 || s.graph.Len() == 0 {
		return []QueryResult{}, nil
	}

	query := make([]float32, len(embedding))
	copy(query, embedding)
	normalizeInPlace(query)

	// Overfetch to compensate for lazily deleted orphans in the graph.
	orphans := s.graph.Len() - len(s.idMap)
	nodes := s.graph.Search(query, k+orphans)

	results := make([]QueryResult, 0, k)
	for _, node := range nodes {
		id, ok := s.keyMap[node.Key]
		if !ok {
			continue // orphaned by an upsert
		}
		chunk, err := s.getLocked(ctx, id)
		if err != nil {
			return nil, err
		}
		dist := s.graph.Distance(query, node.Value)
		results = append(results, QueryResult{
			Chunk: chunk,
			Score: scoreFromCosineDistance(dist),
		})
		if len(results) == k {
			break
		}
	}
	return results, nil
}

func (s *EmbeddedStore) getLocked(ctx context.Context, id string) (*Chunk, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, content, embedding, metadata FROM chunks WHERE id = ?`, id)
	chunk, err := scanChunkRow(row, s.config.Dimension)
	if err == sql.ErrNoRows {
		return nil, verrors.Newf(verrors.ErrCodeChunkNotFound, "chunk %s not found", id)
	}
	return chunk, err
}

// Scan streams all chunks in id order, batchSize rows at a time.
func (s *EmbeddedStore) Scan(ctx context.Context, batchSize int, fn ScanFunc) error {
	if batchSize <= 0 {
		return verrors.ConfigError("scan batch size must be positive", nil)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ensureOpen(); err != nil {
		return err
	}

	lastID := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		rows, err := s.db.QueryContext(ctx, `
			SELECT id, content, embedding, metadata FROM chunks
			WHERE id > ? ORDER BY id LIMIT ?`, lastID, batchSize)
		if err != nil {
			return verrors.New(verrors.ErrCodeInternal, "scan chunks", err)
		}

		batch := make([]*Chunk, 0, batchSize)
		for rows.Next() {
			chunk, err := scanChunkRows(rows, s.config.Dimension)
			if err != nil {
				_ = rows.Close()
				return err
			}
			batch = append(batch, chunk)
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return verrors.New(verrors.ErrCodeInternal, "scan chunks", err)
		}
		_ = rows.Close()

		if len(batch) == 0 {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
		lastID = batch[len(batch)-1].ID
	}
}

// Stats returns the store summary.
func (s *EmbeddedStore) Stats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count); err != nil {
		return nil, verrors.New(verrors.ErrCodeInternal, "count chunks", err)
	}

	return &Stats{
		TotalChunks:    count,
		Backend:        BackendEmbedded,
		EmbeddingModel: s.config.EmbeddingModel,
		Dimension:      s.config.Dimension,
	}, nil
}

// Close releases the database handle. Idempotent.
func (s *EmbeddedStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return fmt.Errorf("close embedded store: %w", err)
		}
		s.db = nil
	}
	return nil
}

func (s *EmbeddedStore) ensureOpen() error {
	if s.closed {
		return verrors.New(verrors.ErrCodeStoreClosed, "store is closed", nil)
	}
	if !s.initialized {
		return verrors.New(verrors.ErrCodeInternal, "store is not initialized", nil)
	}
	return nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for chunk hydration.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanChunkRow(row rowScanner, dimension int) (*Chunk, error) {
	var c Chunk
	var blob []byte
	var metaJSON string

	if err := row.Scan(&c.ID, &c.Content, &blob, &metaJSON); err != nil {
		return nil, err
	}

	vec, err := decodeEmbedding(blob, dimension)
	if err != nil {
		return nil, verrors.CorruptionError(
			fmt.Sprintf("chunk %s has invalid embedding", c.ID), err)
	}
	c.Embedding = vec

	if err := json.Unmarshal([]byte(metaJSON), &c.Metadata); err != nil {
		return nil, verrors.CorruptionError(
			fmt.Sprintf("chunk %s has invalid metadata", c.ID), err)
	}
	return &c, nil
}

func scanChunkRows(rows *sql.Rows, dimension int) (*Chunk, error) {
	return scanChunkRow(rows, dimension)
}

// encodeEmbedding serializes a vector as little-endian float32 bytes.
func encodeEmbedding(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// decodeEmbedding deserializes little-endian float32 bytes, enforcing the
// store dimension.
func decodeEmbedding(buf []byte, dimension int) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(buf))
	}
	n := len(buf) / 4
	if n != dimension {
		return nil, fmt.Errorf("embedding has %d dimensions, store expects %d", n, dimension)
	}
	vec := make([]float32, n)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec, nil
}
