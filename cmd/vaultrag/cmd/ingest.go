package cmd

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vaultrag/vaultrag/internal/embed"
	"github.com/vaultrag/vaultrag/internal/ingest"
)

// ingestExtensions are the file types picked up when walking a directory.
// Files named explicitly on the command line are ingested regardless of
// extension.
var ingestExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
	".mdx":      true,
	".txt":      true,
}

// ingestOptions holds CLI flags for ingest. Zero (or -1 for overlap)
// means "use the configured value".
type ingestOptions struct {
	chunkSize    int
	overlap      int
	batchSize    int
	skipExisting bool
	plain        bool
}

func newIngestCmd() *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest <path>...",
		Short: "Chunk, embed, and index documents",
		Long: `Ingest documents into the configured vector store.

Each path may be a file or a directory; directories are walked for
markdown and text files. Documents are split into paragraph-aligned
chunks, embedded in batches, and stored. Chunk IDs are derived from the
file path, so re-ingesting an unchanged file is a no-op when
skip-existing is on.

Examples:
  vaultrag ingest ./docs
  vaultrag ingest README.md guides/ --chunk-size 800 --overlap 80
  vaultrag ingest ./notes --skip-existing=false`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, args, opts)
		},
	}

	cmd.Flags().IntVar(&opts.chunkSize, "chunk-size", 0, "Maximum chunk size in characters (default from config)")
	cmd.Flags().IntVar(&opts.overlap, "overlap", -1, "Overlap between split chunks in characters (default from config)")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", 0, "Chunks per embedding batch (default from config)")
	cmd.Flags().BoolVar(&opts.skipExisting, "skip-existing", true, "Skip chunks already present in the store")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "Force plain progress output")

	return cmd
}

func runIngest(cmd *cobra.Command, args []string, opts ingestOptions) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cleanup := setupLogging(cfg, debugEnabled(cmd))
	defer cleanup()

	docs, err := collectDocuments(args)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return fmt.Errorf("no ingestable documents under %s", strings.Join(args, ", "))
	}

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

	chunkSize := cfg.Chunking.MaxChunkSize
	if opts.chunkSize > 0 {
		chunkSize = opts.chunkSize
	}
	overlap := cfg.Chunking.Overlap
	if opts.overlap >= 0 {
		overlap = opts.overlap
	}
	batchSize := cfg.Ingest.BatchSize
	if opts.batchSize > 0 {
		batchSize = opts.batchSize
	}
	skip := cfg.Ingest.SkipExisting
	if cmd.Flags().Changed("skip-existing") {
		skip = opts.skipExisting
	}

	renderer := newRenderer(cmd, opts.plain)
	pipeline := ingest.NewPipeline(s, embedder, ingest.Options{
		MaxChunkSize: chunkSize,
		Overlap:      overlap,
		BatchSize:    batchSize,
		SkipExisting: skip,
		OnProgress:   renderer.IngestProgress,
	})

	result, err := pipeline.Run(ctx, docs)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if result.Cancelled {
		fmt.Fprintf(out, "Cancelled after %d/%d chunks; completed batches are kept\n",
			result.IndexedChunks+result.SkippedChunks, result.TotalChunks)
		return nil
	}
	fmt.Fprintf(out, "Indexed %d chunks (%d skipped) from %d documents in %s\n",
		result.IndexedChunks, result.SkippedChunks, len(docs),
		result.Duration.Round(time.Millisecond))
	return nil
}

// collectDocuments resolves files and directories into a sorted,
// deduplicated document list. Hidden directories are skipped.
func collectDocuments(paths []string) ([]ingest.Document, error) {
	var docs []ingest.Document
	seen := make(map[string]bool)

	add := func(path string) {
		clean := filepath.Clean(path)
		if seen[clean] {
			return
		}
		seen[clean] = true
		docs = append(docs, documentForFile(clean))
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
		if !info.IsDir() {
			add(path)
			continue
		}

		root := filepath.Clean(path)
		err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if p != root && strings.HasPrefix(d.Name(), ".") {
					return fs.SkipDir
				}
				return nil
			}
			if ingestExtensions[strings.ToLower(filepath.Ext(p))] {
				add(p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", path, err)
		}
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// documentForFile derives a stable document identity from a file path.
// IDs keep forward slashes so chunk IDs match across platforms.
func documentForFile(path string) ingest.Document {
	base := filepath.Base(path)
	return ingest.Document{
		ID:    filepath.ToSlash(path),
		Title: strings.TrimSuffix(base, filepath.Ext(base)),
		Path:  path,
		Load: func() (string, error) {
			data, err := os.ReadFile(path)
			if err != nil {
				return "", err
			}
			return string(data), nil
		},
	}
}
