package embed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	verrors "github.com/vaultrag/vaultrag/internal/errors"
)

// DefaultOpenAIModel is the default cloud embedding model.
const DefaultOpenAIModel = "text-embedding-3-small"

// OpenAIConfig configures an OpenAIEmbedder.
type OpenAIConfig struct {
	APIKey     string
	Model      string
	Dimensions int
	BatchSize  int

	// BaseURL overrides the API endpoint for compatible providers.
	BaseURL string
}

// embeddingAPI is the slice of the OpenAI client this embedder uses,
// extracted so tests can substitute a fake.
type embeddingAPI interface {
	CreateEmbeddings(ctx context.Context, req openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// OpenAIEmbedder generates embeddings through the OpenAI embeddings API.
type OpenAIEmbedder struct {
	api    embeddingAPI
	config OpenAIConfig

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates a cloud embedder.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, verrors.ConfigError("openai embedder requires an api key", nil)
	}
	if cfg.Dimensions <= 0 {
		return nil, verrors.ConfigError("openai embedder dimensions must be positive", nil)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIEmbedder{
		api:    openai.NewClientWithConfig(clientCfg),
		config: cfg,
	}, nil
}

// newOpenAIEmbedderWithAPI wires a custom API implementation, for tests.
func newOpenAIEmbedderWithAPI(api embeddingAPI, cfg OpenAIConfig) *OpenAIEmbedder {
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &OpenAIEmbedder{api: api, config: cfg}
}

// Embed generates the embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts, batching provider
// calls. Rate-limit responses are retried with backoff; other provider
// failures abort the batch.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.ensureOpen(); err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.config.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := start + e.config.BatchSize
		if end > len(texts) {
			end = len(texts)
		}

		var vectors [][]float32
		err := verrors.Retry(ctx, verrors.DefaultRetryConfig(), func() error {
			var callErr error
			vectors, callErr = e.doEmbed(ctx, texts[start:end])
			return callErr
		})
		if err != nil {
			return nil, err
		}
		results = append(results, vectors...)
	}
	return results, nil
}

func (e *OpenAIEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	// The API rejects empty strings; substitute a single space and let the
	// caller treat the vector as the text's embedding.
	input := make([]string, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			input[i] = " "
		} else {
			input[i] = t
		}
	}

	resp, err := e.api.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input:      input,
		Model:      openai.EmbeddingModel(e.config.Model),
		Dimensions: e.config.Dimensions,
	})
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, verrors.EmbeddingError(
			fmt.Sprintf("provider returned %d embeddings for %d texts", len(resp.Data), len(texts)), nil)
	}

	vectors := make([][]float32, len(resp.Data))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, verrors.EmbeddingError(
				fmt.Sprintf("provider returned out-of-range index %d", item.Index), nil)
		}
		if len(item.Embedding) != e.config.Dimensions {
			return nil, verrors.DimensionError(e.config.Dimensions, len(item.Embedding))
		}
		vectors[item.Index] = item.Embedding
	}
	return vectors, nil
}

// Dimensions returns the embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.config.Dimensions
}

// ModelName returns the model identifier.
func (e *OpenAIEmbedder) ModelName() string {
	return e.config.Model
}

// Available reports whether the provider accepts requests. A tiny probe
// embedding is the cheapest authenticated call.
func (e *OpenAIEmbedder) Available(ctx context.Context) bool {
	if err := e.ensureOpen(); err != nil {
		return false
	}
	_, err := e.doEmbed(ctx, []string{"ping"})
	return err == nil
}

// Close marks the embedder closed. The underlying client has no resources
// to release.
func (e *OpenAIEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *OpenAIEmbedder) ensureOpen() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return verrors.New(verrors.ErrCodeInternal, "embedder is closed", nil)
	}
	return nil
}

// classifyOpenAIError maps API failures onto the taxonomy. 429 retries;
// auth and request errors abort.
func classifyOpenAIError(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return context.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return verrors.New(verrors.ErrCodeConnectionTimeout, "embedding request timed out", err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == 429 {
			return verrors.New(verrors.ErrCodeRateLimited, "embedding provider rate limited", err)
		}
		return verrors.EmbeddingError(
			fmt.Sprintf("embedding request failed with status %d", apiErr.HTTPStatusCode), err)
	}
	return verrors.EmbeddingError("embedding request failed", err)
}
