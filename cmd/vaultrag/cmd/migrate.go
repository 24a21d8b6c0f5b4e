package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vaultrag/vaultrag/internal/config"
	"github.com/vaultrag/vaultrag/internal/migrate"
	"github.com/vaultrag/vaultrag/internal/store"
)

// migrateOptions holds CLI flags describing the migration target.
type migrateOptions struct {
	backend  string
	path     string
	host     string
	port     int
	database string
	user     string
	password string
	tls      bool
	dryRun   bool
	batch    int
	plain    bool
}

func newMigrateCmd() *cobra.Command {
	var opts migrateOptions

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy all chunks from the configured store to another backend",
		Long: `Migrate every chunk from the configured store into a target backend,
preserving IDs, content, embeddings, and metadata. The source store is
never modified; update store.backend in the configuration afterwards to
switch over.

Embeddings are copied as-is, so source and target must use the same
embedding dimension.

Examples:
  vaultrag migrate --to embedded --path ./vault.db
  vaultrag migrate --to server --host db.internal --database vaultrag --user rag
  vaultrag migrate --to file --path ./backup.json --dry-run`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.backend, "to", "", "Target backend: file, embedded, or server (required)")
	cmd.Flags().StringVar(&opts.path, "path", "", "Target data file (file and embedded backends)")
	cmd.Flags().StringVar(&opts.host, "host", "", "Target Postgres host (server backend)")
	cmd.Flags().IntVar(&opts.port, "port", 5432, "Target Postgres port")
	cmd.Flags().StringVar(&opts.database, "database", "", "Target Postgres database")
	cmd.Flags().StringVar(&opts.user, "user", "", "Target Postgres user")
	cmd.Flags().StringVar(&opts.password, "password", "", "Target Postgres password")
	cmd.Flags().BoolVar(&opts.tls, "tls", false, "Require TLS for the target connection")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Count what would be migrated without writing")
	cmd.Flags().IntVar(&opts.batch, "batch-size", migrate.DefaultScanBatchSize, "Chunks per scan batch")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "Force plain progress output")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}

func runMigrate(cmd *cobra.Command, opts migrateOptions) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cleanup := setupLogging(cfg, debugEnabled(cmd))
	defer cleanup()

	targetCfg, err := targetStoreConfig(cfg, opts)
	if err != nil {
		return err
	}
	if sameStoreTarget(cfg, opts) {
		return fmt.Errorf("target store is the configured source store")
	}

	ctx := cmd.Context()
	source, err := store.New(cfg.StoreOptions())
	if err != nil {
		return err
	}
	defer func() { _ = source.Close() }()

	target, err := store.New(targetCfg)
	if err != nil {
		return err
	}
	defer func() { _ = target.Close() }()

	// Bring both stores up in parallel; server dial time dominates setup.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := source.Initialize(gctx); err != nil {
			return fmt.Errorf("open source store: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := target.Initialize(gctx); err != nil {
			return fmt.Errorf("open target store: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	renderer := newRenderer(cmd, opts.plain)
	result, err := migrate.NewEngine().Run(ctx, source, target, migrate.Options{
		DryRun:        opts.dryRun,
		ScanBatchSize: opts.batch,
		OnProgress:    renderer.MigrateProgress,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if result.DryRun {
		fmt.Fprintf(out, "Would migrate %d chunks to the %s backend\n", result.MigratedChunks, opts.backend)
		return nil
	}

	fmt.Fprintf(out, "Migrated %d of %d chunks in %s\n",
		result.MigratedChunks, result.TotalChunks, result.Duration.Round(time.Millisecond))
	if len(result.Errors) > 0 {
		fmt.Fprintf(out, "%d chunks failed to migrate:\n", len(result.Errors))
		for _, ce := range result.Errors {
			fmt.Fprintf(out, "  %s: %v\n", ce.ChunkID, ce.Err)
		}
	}
	fmt.Fprintf(out, "Set store.backend to %q in the configuration to switch over.\n", opts.backend)
	return nil
}

// targetStoreConfig builds the target backend configuration from flags,
// inheriting the embedding model and dimension from the active config.
func targetStoreConfig(cfg *config.Config, opts migrateOptions) (store.Config, error) {
	target := *cfg
	target.Store = config.StoreConfig{
		Backend:  opts.backend,
		Path:     opts.path,
		Durable:  true,
		Host:     opts.host,
		Port:     opts.port,
		Database: opts.database,
		User:     opts.user,
		Password: opts.password,
		TLS:      opts.tls,
	}
	if err := target.Validate(); err != nil {
		return store.Config{}, fmt.Errorf("invalid migration target: %w", err)
	}
	return target.StoreOptions(), nil
}

// sameStoreTarget reports whether the flags point back at the source store.
func sameStoreTarget(cfg *config.Config, opts migrateOptions) bool {
	if cfg.Store.Backend != opts.backend {
		return false
	}
	switch store.Backend(opts.backend) {
	case store.BackendFile, store.BackendEmbedded:
		return filepath.Clean(cfg.Store.Path) == filepath.Clean(opts.path)
	case store.BackendServer:
		return cfg.Store.Host == opts.host &&
			cfg.Store.Port == opts.port &&
			cfg.Store.Database == opts.database
	}
	return false
}
