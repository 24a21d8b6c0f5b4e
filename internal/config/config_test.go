package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultrag/vaultrag/internal/embed"
	"github.com/vaultrag/vaultrag/internal/store"
)

// isolateHome points the user config lookup at an empty directory.
func isolateHome(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
}

func TestNewConfig_DefaultsAreValid(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, string(store.BackendFile), cfg.Store.Backend)
	assert.Equal(t, embed.ProviderOllama, cfg.Embeddings.Provider)
	assert.Equal(t, DefaultMaxChunkSize, cfg.Chunking.MaxChunkSize)
	assert.Equal(t, DefaultChunkOverlap, cfg.Chunking.Overlap)
	assert.True(t, cfg.Ingest.SkipExisting)
}

func TestLoad_NoConfigFileUsesDefaults(t *testing.T) {
	isolateHome(t)
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, NewConfig().Chunking, cfg.Chunking)
}

func TestLoad_ProjectFileOverridesDefaults(t *testing.T) {
	isolateHome(t)
	dir := t.TempDir()
	yaml := `
store:
  backend: embedded
  path: /tmp/vault.db
chunking:
  max_chunk_size: 500
  overlap: 50
embeddings:
  model: custom-model
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".vaultrag.yaml"), []byte(yaml), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "embedded", cfg.Store.Backend)
	assert.Equal(t, "/tmp/vault.db", cfg.Store.Path)
	assert.Equal(t, 500, cfg.Chunking.MaxChunkSize)
	assert.Equal(t, 50, cfg.Chunking.Overlap)
	assert.Equal(t, "custom-model", cfg.Embeddings.Model)
	// Untouched sections keep defaults.
	assert.Equal(t, DefaultBatchSize, cfg.Ingest.BatchSize)
}

func TestLoad_EnvOverridesWin(t *testing.T) {
	isolateHome(t)
	dir := t.TempDir()
	yaml := "embeddings:\n  model: from-file\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".vaultrag.yaml"), []byte(yaml), 0o644))

	t.Setenv("VAULTRAG_EMBEDDINGS_MODEL", "from-env")
	t.Setenv("VAULTRAG_PG_PASSWORD", "hunter2")
	t.Setenv("VAULTRAG_LOG_LEVEL", "debug")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Embeddings.Model)
	assert.Equal(t, "hunter2", cfg.Store.Password)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_InvalidYAMLFails(t *testing.T) {
	isolateHome(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".vaultrag.yaml"), []byte("{not yaml"), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Store.Backend = "redis" }},
		{"file backend without path", func(c *Config) { c.Store.Path = "" }},
		{"server backend without host", func(c *Config) {
			c.Store.Backend = "server"
			c.Store.Host = ""
		}},
		{"unknown provider", func(c *Config) { c.Embeddings.Provider = "bedrock" }},
		{"zero dimensions", func(c *Config) { c.Embeddings.Dimensions = 0 }},
		{"overlap >= max size", func(c *Config) { c.Chunking.Overlap = c.Chunking.MaxChunkSize }},
		{"negative overlap", func(c *Config) { c.Chunking.Overlap = -1 }},
		{"zero batch size", func(c *Config) { c.Ingest.BatchSize = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad request timeout", func(c *Config) { c.Embeddings.RequestTimeout = "soon" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestStoreOptions_MapsBackends(t *testing.T) {
	cfg := NewConfig()
	cfg.Store.Backend = "server"
	cfg.Store.Host = "db.internal"
	cfg.Store.Database = "vault"
	cfg.Store.User = "rag"
	cfg.Embeddings.Model = "m"
	cfg.Embeddings.Dimensions = 16

	opts := cfg.StoreOptions()
	assert.Equal(t, store.BackendServer, opts.Backend)
	assert.Equal(t, "db.internal", opts.Server.Host)
	assert.Equal(t, 16, opts.Server.Dimension)
	assert.Equal(t, "m", opts.File.EmbeddingModel)
	assert.Equal(t, 16, opts.Embedded.Dimension)
}

func TestEmbedOptions_ParsesTimeout(t *testing.T) {
	cfg := NewConfig()
	cfg.Embeddings.RequestTimeout = "90s"

	opts := cfg.EmbedOptions()
	assert.Equal(t, 90*time.Second, opts.RequestTimeout)
	assert.Equal(t, cfg.Embeddings.Dimensions, opts.Dimensions)
	assert.Equal(t, cfg.Embeddings.OllamaHost, opts.Host)
}

func TestWriteYAML_Roundtrip(t *testing.T) {
	isolateHome(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	cfg := NewConfig()
	cfg.Chunking.MaxChunkSize = 750
	require.NoError(t, cfg.WriteYAML(path))

	loaded := NewConfig()
	require.NoError(t, loaded.loadYAML(path))
	assert.Equal(t, 750, loaded.Chunking.MaxChunkSize)
}

func TestLoadFile_ExplicitPath(t *testing.T) {
	isolateHome(t)
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunking:\n  max_chunk_size: 512\n"), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 512, cfg.Chunking.MaxChunkSize)
	assert.Equal(t, DefaultChunkOverlap, cfg.Chunking.Overlap)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoad_ExplicitFalseOverridesTrueDefault(t *testing.T) {
	isolateHome(t)
	dir := t.TempDir()

	yaml := "store:\n  durable: false\ningest:\n  skip_existing: false\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".vaultrag.yaml"), []byte(yaml), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.False(t, cfg.Store.Durable, "durable: false in the project file must win over the default")
	assert.False(t, cfg.Ingest.SkipExisting, "skip_existing: false in the project file must win over the default")
}

func TestLoad_AbsentBooleansKeepDefaults(t *testing.T) {
	isolateHome(t)
	dir := t.TempDir()

	yaml := "chunking:\n  max_chunk_size: 800\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".vaultrag.yaml"), []byte(yaml), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.True(t, cfg.Store.Durable)
	assert.True(t, cfg.Ingest.SkipExisting)
	assert.False(t, cfg.Store.TLS)
	assert.Equal(t, 800, cfg.Chunking.MaxChunkSize)
}

func TestLoad_ExplicitTrueStillApplies(t *testing.T) {
	isolateHome(t)
	dir := t.TempDir()

	yaml := "store:\n  backend: server\n  host: db.internal\n  database: vault\n  tls: true\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".vaultrag.yaml"), []byte(yaml), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.True(t, cfg.Store.TLS)
}
