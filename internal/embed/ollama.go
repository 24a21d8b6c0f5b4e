package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	verrors "github.com/vaultrag/vaultrag/internal/errors"
)

const (
	// DefaultOllamaHost is the default Ollama API endpoint.
	DefaultOllamaHost = "http://localhost:11434"

	// DefaultOllamaModel is the default local embedding model.
	DefaultOllamaModel = "nomic-embed-text"

	ollamaPoolSize = 4
)

// OllamaConfig configures an OllamaEmbedder.
type OllamaConfig struct {
	Host       string
	Model      string
	Dimensions int
	BatchSize  int

	// RequestTimeout bounds a single embed call (default 60s).
	RequestTimeout time.Duration
	// ConnectTimeout bounds connection establishment (default 10s).
	ConnectTimeout time.Duration
}

// OllamaEmbedder generates embeddings through Ollama's HTTP API.
type OllamaEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    OllamaConfig

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*OllamaEmbedder)(nil)

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

// NewOllamaEmbedder creates an Ollama embedder. Dimensions must be set:
// the store layer validates every vector against it.
func NewOllamaEmbedder(cfg OllamaConfig) (*OllamaEmbedder, error) {
	if cfg.Dimensions <= 0 {
		return nil, verrors.ConfigError("ollama embedder dimensions must be positive", nil)
	}
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}

	// No http.Client.Timeout: per-request contexts carry the deadline so
	// callers can cancel mid-flight.
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: cfg.ConnectTimeout,
		}).DialContext,
		MaxIdleConns:        ollamaPoolSize,
		MaxIdleConnsPerHost: ollamaPoolSize,
		MaxConnsPerHost:     ollamaPoolSize * 2,
		IdleConnTimeout:     10 * time.Second,
	}

	return &OllamaEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
	}, nil
}

// Embed generates the embedding for a single text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts, splitting into
// provider-sized batches. Whitespace-only texts embed as zero vectors
// without a provider call.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.ensureOpen(); err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	type indexedText struct {
		idx  int
		text string
	}
	results := make([][]float32, len(texts))
	var nonEmpty []indexedText
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			results[i] = make([]float32, e.config.Dimensions)
			continue
		}
		nonEmpty = append(nonEmpty, indexedText{i, text})
	}

	for start := 0; start < len(nonEmpty); start += e.config.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := start + e.config.BatchSize
		if end > len(nonEmpty) {
			end = len(nonEmpty)
		}
		batch := nonEmpty[start:end]
		batchTexts := make([]string, len(batch))
		for i, it := range batch {
			batchTexts[i] = it.text
		}

		var vectors [][]float32
		err := verrors.Retry(ctx, verrors.DefaultRetryConfig(), func() error {
			var callErr error
			vectors, callErr = e.doEmbed(ctx, batchTexts)
			return callErr
		})
		if err != nil {
			return nil, err
		}
		for i, vec := range vectors {
			results[batch[i].idx] = vec
		}
	}

	return results, nil
}

func (e *OllamaEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	reqCtx, cancel := context.WithTimeout(ctx, e.config.RequestTimeout)
	defer cancel()

	var input any = texts
	if len(texts) == 1 {
		input = texts[0]
	}
	body, err := json.Marshal(ollamaEmbedRequest{Model: e.config.Model, Input: input})
	if err != nil {
		return nil, verrors.EmbeddingError("encode embed request", err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, e.config.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, verrors.EmbeddingError("build embed request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, classifyStatusError(resp.StatusCode, string(respBody))
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, verrors.EmbeddingError("decode embed response", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, verrors.EmbeddingError(
			fmt.Sprintf("provider returned %d embeddings for %d texts", len(result.Embeddings), len(texts)), nil)
	}

	vectors := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		if len(emb) != e.config.Dimensions {
			return nil, verrors.DimensionError(e.config.Dimensions, len(emb))
		}
		vec := make([]float32, len(emb))
		for j, v := range emb {
			vec[j] = float32(v)
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// Dimensions returns the embedding dimension.
func (e *OllamaEmbedder) Dimensions() int {
	return e.config.Dimensions
}

// ModelName returns the model identifier.
func (e *OllamaEmbedder) ModelName() string {
	return e.config.Model
}

// Available reports whether Ollama answers on /api/tags.
func (e *OllamaEmbedder) Available(ctx context.Context) bool {
	if err := e.ensureOpen(); err != nil {
		return false
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.config.ConnectTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, e.config.Host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		slog.Debug("ollama availability check failed", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// Close releases idle connections. Idempotent.
func (e *OllamaEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	e.transport.CloseIdleConnections()
	return nil
}

func (e *OllamaEmbedder) ensureOpen() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return verrors.New(verrors.ErrCodeInternal, "embedder is closed", nil)
	}
	return nil
}

// classifyTransportError maps HTTP transport failures onto the taxonomy.
func classifyTransportError(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return context.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return verrors.New(verrors.ErrCodeConnectionTimeout, "embedding request timed out", err)
	default:
		return verrors.ConnectionError("embedding provider unreachable", err)
	}
}

// classifyStatusError maps provider HTTP status codes onto the taxonomy.
// 429 is retryable; everything else aborts the batch.
func classifyStatusError(status int, body string) error {
	if status == http.StatusTooManyRequests {
		return verrors.Newf(verrors.ErrCodeRateLimited, "embedding provider rate limited: %s", body)
	}
	return verrors.EmbeddingError(
		fmt.Sprintf("embedding request failed with status %d: %s", status, body), nil)
}
