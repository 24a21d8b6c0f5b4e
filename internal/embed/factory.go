package embed

import (
	"time"

	verrors "github.com/vaultrag/vaultrag/internal/errors"
)

// Provider names accepted by the factory.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Config selects and configures an embedding provider.
type Config struct {
	Provider   string
	Model      string
	Dimensions int
	BatchSize  int

	// OpenAI settings.
	APIKey  string
	BaseURL string

	// Ollama settings.
	Host string

	// RequestTimeout bounds a single provider call.
	RequestTimeout time.Duration

	// CacheSize enables an LRU layer when positive.
	CacheSize int
}

// NewEmbedder creates the configured provider, wrapped with a cache when
// CacheSize is positive.
func NewEmbedder(cfg Config) (Embedder, error) {
	var (
		inner Embedder
		err   error
	)

	switch cfg.Provider {
	case ProviderOpenAI:
		inner, err = NewOpenAIEmbedder(OpenAIConfig{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
			BaseURL:    cfg.BaseURL,
		})
	case ProviderOllama:
		inner, err = NewOllamaEmbedder(OllamaConfig{
			Host:           cfg.Host,
			Model:          cfg.Model,
			Dimensions:     cfg.Dimensions,
			BatchSize:      cfg.BatchSize,
			RequestTimeout: cfg.RequestTimeout,
		})
	default:
		return nil, verrors.Newf(verrors.ErrCodeUnknownProvider,
			"unknown embedding provider %q (want openai or ollama)", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.CacheSize > 0 {
		return NewCachedEmbedder(inner, cfg.CacheSize), nil
	}
	return inner, nil
}
