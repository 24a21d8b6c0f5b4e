package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	verrors "github.com/vaultrag/vaultrag/internal/errors"
)

// DefaultConnectTimeout bounds connection attempts so a partitioned
// network fails fast instead of hanging the pipeline.
const DefaultConnectTimeout = 10 * time.Second

// ServerConfig configures a ServerStore.
type ServerConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	TLS      bool

	// EmbeddingModel is the model name recorded in store metadata.
	EmbeddingModel string
	// Dimension is the fixed embedding dimension for this store.
	Dimension int

	// MaxConns / MinConns tune the connection pool. Zero means pool defaults.
	MaxConns int32
	MinConns int32

	// ConnectTimeout bounds connection attempts (default 10s).
	ConnectTimeout time.Duration
}

// ServerStore persists chunks in Postgres with the pgvector extension and
// an HNSW approximate-nearest-neighbor index, for large corpora where
// brute force and embedded files no longer scale.
type ServerStore struct {
	mu     sync.RWMutex
	config ServerConfig

	pool        *pgxpool.Pool
	initialized bool
	closed      bool
}

var _ VectorStore = (*ServerStore)(nil)

// NewServerStore creates a Postgres-backed store. Call Initialize before use.
func NewServerStore(cfg ServerConfig) (*ServerStore, error) {
	if cfg.Host == "" || cfg.Database == "" {
		return nil, verrors.ConfigError("server store requires host and database", nil)
	}
	if cfg.Dimension <= 0 {
		return nil, verrors.ConfigError("server store dimension must be positive", nil)
	}
	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	return &ServerStore{config: cfg}, nil
}

func (s *ServerStore) dsn() string {
	sslmode := "disable"
	if s.config.TLS {
		sslmode = "require"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		s.config.User, s.config.Password,
		s.config.Host, s.config.Port, s.config.Database, sslmode)
}

// Initialize connects the pool, bootstraps the pgvector schema and ANN
// index, and validates stored dimension metadata.
func (s *ServerStore) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return verrors.New(verrors.ErrCodeStoreClosed, "store is closed", nil)
	}
	if s.initialized {
		return nil
	}

	poolConfig, err := pgxpool.ParseConfig(s.dsn())
	if err != nil {
		return verrors.ConfigError("parse database config", err)
	}
	if s.config.MaxConns > 0 {
		poolConfig.MaxConns = s.config.MaxConns
	}
	if s.config.MinConns > 0 {
		poolConfig.MinConns = s.config.MinConns
	}
	poolConfig.ConnConfig.ConnectTimeout = s.config.ConnectTimeout

	connectCtx, cancel := context.WithTimeout(ctx, s.config.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return verrors.ConnectionError("create connection pool", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return verrors.ConnectionError(
			fmt.Sprintf("database %s:%d unreachable", s.config.Host, s.config.Port), err)
	}

	if err := s.createSchema(ctx, pool); err != nil {
		pool.Close()
		return err
	}
	if err := s.validateMeta(ctx, pool); err != nil {
		pool.Close()
		return err
	}

	s.pool = pool
	s.initialized = true
	return nil
}

func (s *ServerStore) createSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
			id        TEXT PRIMARY KEY,
			content   TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			metadata  JSONB NOT NULL
		)`, s.config.Dimension),
		`CREATE INDEX IF NOT EXISTS chunks_embedding_idx
			ON chunks USING hnsw (embedding vector_cosine_ops)`,
		`CREATE TABLE IF NOT EXISTS store_meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return classifyPgError("create schema", err)
		}
	}

	metas := [][2]string{
		{"embedding_model", s.config.EmbeddingModel},
		{"dimension", strconv.Itoa(s.config.Dimension)},
	}
	for _, kv := range metas {
		_, err := pool.Exec(ctx, `INSERT INTO store_meta (key, value) VALUES ($1, $2)
			ON CONFLICT (key) DO NOTHING`, kv[0], kv[1])
		if err != nil {
			return classifyPgError("write store metadata", err)
		}
	}
	return nil
}

func (s *ServerStore) validateMeta(ctx context.Context, pool *pgxpool.Pool) error {
	var dimStr string
	err := pool.QueryRow(ctx,
		`SELECT value FROM store_meta WHERE key = 'dimension'`).Scan(&dimStr)
	if err != nil {
		return classifyPgError("read store metadata", err)
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

// Insert upserts a chunk.
func (s *ServerStore) Insert(ctx context.Context, chunk *Chunk) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

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

	_, err = s.pool.Exec(ctx, `
		INSERT INTO chunks (id, content, embedding, metadata)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata`,
		chunk.ID, chunk.Content, pgvector.NewVector(chunk.Embedding), metaJSON)
	if err != nil {
		return classifyPgError(fmt.Sprintf("insert chunk %s", chunk.ID), err)
	}
	return nil
}

// Get returns the chunk with the given ID.
func (s *ServerStore) Get(ctx context.Context, id string) (*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	row := s.pool.QueryRow(ctx,
		`SELECT id, content, embedding, metadata FROM chunks WHERE id = $1`, id)
	chunk, err := scanPgChunk(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, verrors.Newf(verrors.ErrCodeChunkNotFound, "chunk %s not found", id)
	}
	if err != nil {
		return nil, classifyPgError(fmt.Sprintf("get chunk %s", id), err)
	}
	return chunk, nil
}

// Has reports whether a chunk exists.
func (s *ServerStore) Has(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ensureOpen(); err != nil {
		return false, err
	}

	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM chunks WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, classifyPgError("query chunk existence", err)
	}
	return exists, nil
}

// Query runs an ANN search through the pgvector HNSW index using the
// cosine distance operator.
func (s *ServerStore) Query(ctx context.Context, embedding []float32, k int) ([]QueryResult, error) {
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

	rows, err := s.pool.Query(ctx, `
		SELECT id, content, embedding, metadata, embedding <=> $1 AS distance
		FROM chunks
		ORDER BY embedding <=> $1
		LIMIT $2`, pgvector.NewVector(embedding), k)
	if err != nil {
		return nil, classifyPgError("query chunks", err)
	}
	defer rows.Close()

	var results []QueryResult
	for rows.Next() {
		var c Chunk
		var vec pgvector.Vector
		var metaJSON []byte
		var distance float64
		if err := rows.Scan(&c.ID, &c.Content, &vec, &metaJSON, &distance); err != nil {
			return nil, classifyPgError("scan query result", err)
		}
		c.Embedding = vec.Slice()
		if err := json.Unmarshal(metaJSON, &c.Metadata); err != nil {
			return nil, verrors.CorruptionError(
				fmt.Sprintf("chunk %s has invalid metadata", c.ID), err)
		}
		results = append(results, QueryResult{
			Chunk: &c,
			Score: scoreFromCosineDistance(float32(distance)),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPgError("query chunks", err)
	}
	if results == nil {
		results = []QueryResult{}
	}
	return results, nil
}

// Scan streams all chunks with keyset pagination, batchSize rows at a time.
func (s *ServerStore) Scan(ctx context.Context, batchSize int, fn ScanFunc) error {
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

		rows, err := s.pool.Query(ctx, `
			SELECT id, content, embedding, metadata FROM chunks
			WHERE id > $1 ORDER BY id LIMIT $2`, lastID, batchSize)
		if err != nil {
			return classifyPgError("scan chunks", err)
		}

		batch := make([]*Chunk, 0, batchSize)
		for rows.Next() {
			chunk, err := scanPgChunk(rows)
			if err != nil {
				rows.Close()
				return classifyPgError("scan chunk row", err)
			}
			batch = append(batch, chunk)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return classifyPgError("scan chunks", err)
		}
		rows.Close()

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
func (s *ServerStore) Stats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count); err != nil {
		return nil, classifyPgError("count chunks", err)
	}

	return &Stats{
		TotalChunks:    count,
		Backend:        BackendServer,
		EmbeddingModel: s.config.EmbeddingModel,
		Dimension:      s.config.Dimension,
	}, nil
}

// Close releases the connection pool. Idempotent.
func (s *ServerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
	return nil
}

func (s *ServerStore) ensureOpen() error {
	if s.closed {
		return verrors.New(verrors.ErrCodeStoreClosed, "store is closed", nil)
	}
	if !s.initialized {
		return verrors.New(verrors.ErrCodeInternal, "store is not initialized", nil)
	}
	return nil
}

// pgRow abstracts pgx.Row and pgx.Rows for chunk hydration.
type pgRow interface {
	Scan(dest ...any) error
}

func scanPgChunk(row pgRow) (*Chunk, error) {
	var c Chunk
	var vec pgvector.Vector
	var metaJSON []byte

	if err := row.Scan(&c.ID, &c.Content, &vec, &metaJSON); err != nil {
		return nil, err
	}
	c.Embedding = vec.Slice()
	if err := json.Unmarshal(metaJSON, &c.Metadata); err != nil {
		return nil, verrors.CorruptionError(
			fmt.Sprintf("chunk %s has invalid metadata", c.ID), err)
	}
	return &c, nil
}

// classifyPgError maps driver errors onto the error taxonomy. Network
// partitions mid-operation must surface as connection errors so callers
// abort instead of retrying inserts that cannot succeed.
func classifyPgError(op string, err error) error {
	if err == nil {
		return nil
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return verrors.New(verrors.ErrCodeConnectionTimeout, op+" timed out", err)
	case errors.As(err, &netErr):
		return verrors.ConnectionError(op+" failed: network error", err)
	default:
		return verrors.New(verrors.ErrCodeInternal, op+" failed", err)
	}
}
