package store

import (
	verrors "github.com/vaultrag/vaultrag/internal/errors"
)

// Config selects and configures a concrete backend.
// Exactly one of File/Embedded/Server is consulted, per Backend.
type Config struct {
	Backend  Backend
	File     FileConfig
	Embedded EmbeddedConfig
	Server   ServerConfig
}

// New creates the configured backend. The returned store must be
// Initialized before use.
func New(cfg Config) (VectorStore, error) {
	switch cfg.Backend {
	case BackendFile:
		return NewFileStore(cfg.File)
	case BackendEmbedded:
		return NewEmbeddedStore(cfg.Embedded)
	case BackendServer:
		return NewServerStore(cfg.Server)
	default:
		return nil, verrors.Newf(verrors.ErrCodeUnknownBackend,
			"unknown store backend %q (want file, embedded, or server)", cfg.Backend)
	}
}
