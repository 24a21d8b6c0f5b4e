package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vaultrag/vaultrag/internal/embed"
	"github.com/vaultrag/vaultrag/internal/store"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit  int
	format string // "text", "json"
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Query the store by semantic similarity",
		Long: `Embed the query and return the most similar chunks from the
configured vector store, ordered by descending score. Scores are cosine
similarity normalized to [0,1].

Examples:
  vaultrag search "connection pooling"
  vaultrag search how are retries handled --limit 3
  vaultrag search "backup strategy" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 5, "Maximum number of results")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, opts searchOptions) error {
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

	embedder, err := embed.NewEmbedder(cfg.EmbedOptions())
	if err != nil {
		return fmt.Errorf("create embedder: %w", err)
	}
	defer func() { _ = embedder.Close() }()

	vector, err := embedder.Embed(ctx, query)
	if err != nil {
		return fmt.Errorf("embed query: %w", err)
	}

	results, err := s.Query(ctx, vector, opts.limit)
	if err != nil {
		return fmt.Errorf("query store: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintf(out, "No results for %q\n", query)
		return nil
	}

	switch opts.format {
	case "json":
		return formatResultsJSON(out, results)
	default:
		formatResultsText(out, query, results)
		return nil
	}
}

// formatResultsText prints results in human-readable form.
func formatResultsText(out io.Writer, query string, results []store.QueryResult) {
	fmt.Fprintf(out, "Found %d results for %q:\n\n", len(results), query)

	for i, r := range results {
		location := r.Chunk.Metadata.SourcePath
		if location == "" {
			location = r.Chunk.Metadata.DocumentID
		}
		if section := r.Chunk.Metadata.Section; section != "" {
			location = fmt.Sprintf("%s (%s)", location, section)
		}
		fmt.Fprintf(out, "%d. %s (score: %.3f)\n", i+1, location, r.Score)
		for _, line := range snippet(r.Chunk.Content, 3) {
			fmt.Fprintf(out, "   %s\n", line)
		}
		fmt.Fprintln(out)
	}
}

// formatResultsJSON prints results as a JSON array.
func formatResultsJSON(out io.Writer, results []store.QueryResult) error {
	type jsonResult struct {
		ID         string  `json:"id"`
		DocumentID string  `json:"document_id"`
		Section    string  `json:"section,omitempty"`
		SourcePath string  `json:"source_path"`
		Score      float32 `json:"score"`
		Content    string  `json:"content"`
	}

	payload := make([]jsonResult, 0, len(results))
	for _, r := range results {
		payload = append(payload, jsonResult{
			ID:         r.Chunk.ID,
			DocumentID: r.Chunk.Metadata.DocumentID,
			Section:    r.Chunk.Metadata.Section,
			SourcePath: r.Chunk.Metadata.SourcePath,
			Score:      r.Score,
			Content:    r.Chunk.Content,
		})
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

// snippet returns the first n non-empty-trailing lines of content.
func snippet(content string, n int) []string {
	lines := strings.Split(content, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
