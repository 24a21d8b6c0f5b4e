// Package config loads layered YAML configuration: user config, then
// project config, then environment overrides, validated as a whole.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vaultrag/vaultrag/internal/embed"
	"github.com/vaultrag/vaultrag/internal/store"
)

// Default chunking and ingestion parameters.
const (
	DefaultMaxChunkSize = 1000
	DefaultChunkOverlap = 100
	DefaultBatchSize    = 32
	DefaultDimensions   = 768
)

// Config is the complete vaultrag configuration.
type Config struct {
	Version    int              `yaml:"version"`
	Store      StoreConfig      `yaml:"store"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// StoreConfig selects and configures the vector store backend.
type StoreConfig struct {
	// Backend is one of file, embedded, server.
	Backend string `yaml:"backend"`

	// Path is the data file for the file and embedded backends.
	Path string `yaml:"path"`

	// Durable enables write-ahead durability for the embedded backend.
	Durable bool `yaml:"durable"`

	// Server connection parameters (server backend only).
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	TLS      bool   `yaml:"tls"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	BatchSize  int    `yaml:"batch_size"`

	// APIKey authenticates the cloud provider. Prefer the
	// VAULTRAG_API_KEY environment variable over the config file.
	APIKey string `yaml:"api_key"`

	// OllamaHost is the local provider endpoint.
	OllamaHost string `yaml:"ollama_host"`

	// RequestTimeout bounds a single provider call (e.g. "60s").
	RequestTimeout string `yaml:"request_timeout"`

	// CacheSize enables an LRU embedding cache when positive.
	CacheSize int `yaml:"cache_size"`
}

// ChunkingConfig configures the text chunker.
type ChunkingConfig struct {
	MaxChunkSize int `yaml:"max_chunk_size"`
	Overlap      int `yaml:"overlap"`
}

// IngestConfig configures the ingestion pipeline.
type IngestConfig struct {
	BatchSize    int  `yaml:"batch_size"`
	SkipExisting bool `yaml:"skip_existing"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level    string `yaml:"level"`
	FilePath string `yaml:"file_path"`
}

// NewConfig returns the default configuration.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Store: StoreConfig{
			Backend: string(store.BackendFile),
			Path:    defaultStorePath(),
			Durable: true,
			Port:    5432,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   embed.ProviderOllama,
			Model:      embed.DefaultOllamaModel,
			Dimensions: DefaultDimensions,
			BatchSize:  DefaultBatchSize,
			OllamaHost: embed.DefaultOllamaHost,
			CacheSize:  embed.DefaultCacheSize,
		},
		Chunking: ChunkingConfig{
			MaxChunkSize: DefaultMaxChunkSize,
			Overlap:      DefaultChunkOverlap,
		},
		Ingest: IngestConfig{
			BatchSize:    DefaultBatchSize,
			SkipExisting: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "vaultrag-store.json"
	}
	return filepath.Join(home, ".vaultrag", "store.json")
}

// UserConfigPath returns the path of the per-user config file.
func UserConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".vaultrag", "config.yaml")
}

// Load builds the effective configuration for a project directory:
// defaults, then the user config, then the project config
// (.vaultrag.yaml), then environment overrides; the result is validated.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userPath := UserConfigPath(); userPath != "" {
		if _, err := os.Stat(userPath); err == nil {
			if err := cfg.loadYAML(userPath); err != nil {
				return nil, err
			}
		}
	}

	if err := cfg.loadFromDir(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFile builds the configuration from one explicit file: defaults,
// then that file, then environment overrides; the result is validated.
func LoadFile(path string) (*Config, error) {
	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadFromDir loads .vaultrag.yaml (or .yml) from dir if present.
func (c *Config) loadFromDir(dir string) error {
	for _, name := range []string{".vaultrag.yaml", ".vaultrag.yml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return c.loadYAML(path)
		}
	}
	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.mergeWith(&parsed)

	// Booleans cannot distinguish "set to false" from "absent" after the
	// first unmarshal. A second pass with pointer fields tracks presence so
	// an explicit false in the file overrides a true default.
	var bools boolOverrides
	if err := yaml.Unmarshal(data, &bools); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.applyBoolOverrides(&bools)
	return nil
}

type boolOverrides struct {
	Store struct {
		Durable *bool `yaml:"durable"`
		TLS     *bool `yaml:"tls"`
	} `yaml:"store"`
	Ingest struct {
		SkipExisting *bool `yaml:"skip_existing"`
	} `yaml:"ingest"`
}

func (c *Config) applyBoolOverrides(b *boolOverrides) {
	if b.Store.Durable != nil {
		c.Store.Durable = *b.Store.Durable
	}
	if b.Store.TLS != nil {
		c.Store.TLS = *b.Store.TLS
	}
	if b.Ingest.SkipExisting != nil {
		c.Ingest.SkipExisting = *b.Ingest.SkipExisting
	}
}

// mergeWith copies non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Store.Backend != "" {
		c.Store.Backend = other.Store.Backend
	}
	if other.Store.Path != "" {
		c.Store.Path = other.Store.Path
	}
	if other.Store.Host != "" {
		c.Store.Host = other.Store.Host
	}
	if other.Store.Port != 0 {
		c.Store.Port = other.Store.Port
	}
	if other.Store.Database != "" {
		c.Store.Database = other.Store.Database
	}
	if other.Store.User != "" {
		c.Store.User = other.Store.User
	}
	if other.Store.Password != "" {
		c.Store.Password = other.Store.Password
	}

	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.APIKey != "" {
		c.Embeddings.APIKey = other.Embeddings.APIKey
	}
	if other.Embeddings.OllamaHost != "" {
		c.Embeddings.OllamaHost = other.Embeddings.OllamaHost
	}
	if other.Embeddings.RequestTimeout != "" {
		c.Embeddings.RequestTimeout = other.Embeddings.RequestTimeout
	}
	if other.Embeddings.CacheSize != 0 {
		c.Embeddings.CacheSize = other.Embeddings.CacheSize
	}

	if other.Chunking.MaxChunkSize != 0 {
		c.Chunking.MaxChunkSize = other.Chunking.MaxChunkSize
	}
	if other.Chunking.Overlap != 0 {
		c.Chunking.Overlap = other.Chunking.Overlap
	}

	if other.Ingest.BatchSize != 0 {
		c.Ingest.BatchSize = other.Ingest.BatchSize
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.FilePath != "" {
		c.Logging.FilePath = other.Logging.FilePath
	}
}

// applyEnvOverrides applies VAULTRAG_* environment variables, the highest
// precedence layer.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("VAULTRAG_STORE_BACKEND"); v != "" {
		c.Store.Backend = v
	}
	if v := os.Getenv("VAULTRAG_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("VAULTRAG_PG_HOST"); v != "" {
		c.Store.Host = v
	}
	if v := os.Getenv("VAULTRAG_PG_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Store.Port = port
		}
	}
	if v := os.Getenv("VAULTRAG_PG_DATABASE"); v != "" {
		c.Store.Database = v
	}
	if v := os.Getenv("VAULTRAG_PG_USER"); v != "" {
		c.Store.User = v
	}
	if v := os.Getenv("VAULTRAG_PG_PASSWORD"); v != "" {
		c.Store.Password = v
	}

	if v := os.Getenv("VAULTRAG_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("VAULTRAG_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("VAULTRAG_API_KEY"); v != "" {
		c.Embeddings.APIKey = v
	}
	if v := os.Getenv("VAULTRAG_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}

	if v := os.Getenv("VAULTRAG_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the effective configuration.
func (c *Config) Validate() error {
	switch store.Backend(c.Store.Backend) {
	case store.BackendFile, store.BackendEmbedded:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the %s backend", c.Store.Backend)
		}
	case store.BackendServer:
		if c.Store.Host == "" || c.Store.Database == "" {
			return fmt.Errorf("store.host and store.database are required for the server backend")
		}
	default:
		return fmt.Errorf("store.backend must be 'file', 'embedded', or 'server', got %q", c.Store.Backend)
	}

	switch c.Embeddings.Provider {
	case embed.ProviderOpenAI, embed.ProviderOllama:
	default:
		return fmt.Errorf("embeddings.provider must be 'openai' or 'ollama', got %q", c.Embeddings.Provider)
	}
	if c.Embeddings.Dimensions <= 0 {
		return fmt.Errorf("embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions)
	}
	if c.Embeddings.RequestTimeout != "" {
		if _, err := time.ParseDuration(c.Embeddings.RequestTimeout); err != nil {
			return fmt.Errorf("embeddings.request_timeout is not a duration: %w", err)
		}
	}

	if c.Chunking.MaxChunkSize <= 0 {
		return fmt.Errorf("chunking.max_chunk_size must be positive, got %d", c.Chunking.MaxChunkSize)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.MaxChunkSize {
		return fmt.Errorf("chunking.overlap must be in [0, max_chunk_size), got %d", c.Chunking.Overlap)
	}

	if c.Ingest.BatchSize <= 0 {
		return fmt.Errorf("ingest.batch_size must be positive, got %d", c.Ingest.BatchSize)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %q", c.Logging.Level)
	}

	return nil
}

// StoreOptions converts the configuration into store factory options.
func (c *Config) StoreOptions() store.Config {
	backend := store.Backend(c.Store.Backend)
	return store.Config{
		Backend: backend,
		File: store.FileConfig{
			Path:           c.Store.Path,
			EmbeddingModel: c.Embeddings.Model,
			Dimension:      c.Embeddings.Dimensions,
		},
		Embedded: store.EmbeddedConfig{
			Path:           c.Store.Path,
			Durable:        c.Store.Durable,
			EmbeddingModel: c.Embeddings.Model,
			Dimension:      c.Embeddings.Dimensions,
		},
		Server: store.ServerConfig{
			Host:           c.Store.Host,
			Port:           c.Store.Port,
			Database:       c.Store.Database,
			User:           c.Store.User,
			Password:       c.Store.Password,
			TLS:            c.Store.TLS,
			EmbeddingModel: c.Embeddings.Model,
			Dimension:      c.Embeddings.Dimensions,
		},
	}
}

// EmbedOptions converts the configuration into embedder factory options.
func (c *Config) EmbedOptions() embed.Config {
	timeout := time.Duration(0)
	if c.Embeddings.RequestTimeout != "" {
		timeout, _ = time.ParseDuration(c.Embeddings.RequestTimeout)
	}
	return embed.Config{
		Provider:       c.Embeddings.Provider,
		Model:          c.Embeddings.Model,
		Dimensions:     c.Embeddings.Dimensions,
		BatchSize:      c.Embeddings.BatchSize,
		APIKey:         c.Embeddings.APIKey,
		Host:           c.Embeddings.OllamaHost,
		RequestTimeout: timeout,
		CacheSize:      c.Embeddings.CacheSize,
	}
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
