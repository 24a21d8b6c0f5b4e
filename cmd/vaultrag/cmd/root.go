// Package cmd provides the CLI commands for vaultrag.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vaultrag/vaultrag/internal/config"
	"github.com/vaultrag/vaultrag/internal/logging"
	"github.com/vaultrag/vaultrag/internal/store"
	"github.com/vaultrag/vaultrag/internal/ui"
	"github.com/vaultrag/vaultrag/pkg/version"
)

// NewRootCmd creates the root command for the vaultrag CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vaultrag",
		Short: "Ingest documents into a searchable vector store",
		Long: `vaultrag chunks documents, embeds them, and keeps the result in a
pluggable vector store: a JSON file, an embedded SQLite database with
an HNSW index, or a Postgres server with pgvector.

Run 'vaultrag ingest <path>' to index documents, 'vaultrag search' to
query them, and 'vaultrag migrate' to move a store between backends.`,
		Version:       version.Short(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.SetVersionTemplate("vaultrag version {{.Version}}\n")

	cmd.PersistentFlags().Bool("debug", false, "Enable debug logging to stderr")
	cmd.PersistentFlags().String("config", "", "Path to a config file (overrides discovery)")

	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command. Interrupts cancel the command context so
// long-running ingestion and migration stop at the next batch boundary.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := NewRootCmd()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// loadConfig builds the effective configuration: an explicit --config file
// when given, otherwise the layered load for the current directory.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if path, _ := cmd.Root().PersistentFlags().GetString("config"); path != "" {
		return config.LoadFile(path)
	}
	dir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}
	return config.Load(dir)
}

// setupLogging initializes file logging for a CLI run. A logging setup
// failure degrades to the default stderr logger rather than aborting the
// command.
func setupLogging(cfg *config.Config, debug bool) func() {
	logCfg := logging.DefaultConfig()
	if debug {
		logCfg = logging.DebugConfig()
	} else if cfg.Logging.Level != "" {
		logCfg.Level = cfg.Logging.Level
	}
	if cfg.Logging.FilePath != "" {
		logCfg.FilePath = cfg.Logging.FilePath
	}

	cleanup, err := logging.SetupDefault(logCfg)
	if err != nil {
		return func() {}
	}
	return cleanup
}

func debugEnabled(cmd *cobra.Command) bool {
	debug, _ := cmd.Root().PersistentFlags().GetBool("debug")
	return debug
}

// openStore creates and initializes the configured store backend.
func openStore(ctx context.Context, cfg *config.Config) (store.VectorStore, error) {
	s, err := store.New(cfg.StoreOptions())
	if err != nil {
		return nil, err
	}
	if err := s.Initialize(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
	}
	return s, nil
}

// newRenderer builds a progress renderer for the command's stdout.
func newRenderer(cmd *cobra.Command, plain bool) *ui.Renderer {
	if plain {
		return ui.NewPlainRenderer(cmd.OutOrStdout())
	}
	return ui.NewRenderer(cmd.OutOrStdout())
}
