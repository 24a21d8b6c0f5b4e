package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show vector store statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStats(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output statistics as JSON")

	return cmd
}

func runStats(cmd *cobra.Command, jsonOutput bool) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cleanup := setupLogging(cfg, debugEnabled(cmd))
	defer cleanup()

	ctx := cmd.Context()
	s, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	stats, err := s.Stats(ctx)
	if err != nil {
		return fmt.Errorf("read store stats: %w", err)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		payload := struct {
			Backend        string `json:"backend"`
			TotalChunks    int    `json:"total_chunks"`
			EmbeddingModel string `json:"embedding_model"`
			Dimension      int    `json:"dimension"`
		}{
			Backend:        string(stats.Backend),
			TotalChunks:    stats.TotalChunks,
			EmbeddingModel: stats.EmbeddingModel,
			Dimension:      stats.Dimension,
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	}

	fmt.Fprintf(out, "Backend:   %s\n", stats.Backend)
	fmt.Fprintf(out, "Chunks:    %d\n", stats.TotalChunks)
	fmt.Fprintf(out, "Model:     %s\n", stats.EmbeddingModel)
	fmt.Fprintf(out, "Dimension: %d\n", stats.Dimension)
	return nil
}
