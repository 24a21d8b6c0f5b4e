package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/vaultrag/vaultrag/internal/chunk"
	"github.com/vaultrag/vaultrag/internal/embed"
	"github.com/vaultrag/vaultrag/internal/store"
)

const (
	// chunkingShare is the fraction of the progress bar reserved for the
	// chunking phase; embedding and indexing fill the rest.
	chunkingShare = 30.0
	embedShare    = 70.0
)

// Options configures a Pipeline.
type Options struct {
	MaxChunkSize int
	Overlap      int
	BatchSize    int
	SkipExisting bool
	OnProgress   ProgressFunc
}

// Pipeline turns documents into embedded, stored chunks. It is a caller of
// the store and embedder, never their owner: Close remains the caller's
// responsibility.
type Pipeline struct {
	store    store.VectorStore
	embedder embed.Embedder
	opts     Options
	logger   *slog.Logger
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(st store.VectorStore, embedder embed.Embedder, opts Options) *Pipeline {
	if opts.BatchSize <= 0 {
		opts.BatchSize = embed.DefaultBatchSize
	}
	return &Pipeline{
		store:    st,
		embedder: embedder,
		opts:     opts,
		logger:   slog.Default().With("component", "ingest"),
	}
}

// Run ingests the given documents. Chunking parameters are validated
// before any work starts. Cancellation is checked between batches; on
// cancel the result reports Cancelled and chunks from completed batches
// remain in the store. A provider or storage failure aborts the run with
// an error-phase report.
func (p *Pipeline) Run(ctx context.Context, docs []Document) (*Result, error) {
	start := time.Now()
	result := &Result{}

	// Reject bad chunking parameters before touching any document.
	if _, err := chunk.Split("probe", p.opts.MaxChunkSize, p.opts.Overlap); err != nil {
		p.reportError(err)
		return result, err
	}

	p.report(Progress{
		Phase:      PhaseScanning,
		TotalFiles: len(docs),
		Message:    fmt.Sprintf("scanning %d documents", len(docs)),
	})

	chunks, err := p.chunkDocuments(ctx, docs)
	if err != nil {
		if ctx.Err() != nil {
			result.Cancelled = true
			result.Duration = time.Since(start)
			return result, nil
		}
		p.reportError(err)
		return result, err
	}
	result.TotalChunks = len(chunks)

	// totalChunks is now fixed for the rest of the run, so percentages
	// from here on are exact.
	if err := p.embedAndIndex(ctx, chunks, result); err != nil {
		if ctx.Err() != nil {
			result.Cancelled = true
			result.Duration = time.Since(start)
			p.logger.Info("ingestion cancelled",
				"indexed", result.IndexedChunks, "total", result.TotalChunks)
			return result, nil
		}
		p.reportError(err)
		result.Duration = time.Since(start)
		return result, err
	}

	result.Success = true
	result.Duration = time.Since(start)
	p.report(Progress{
		Phase:         PhaseComplete,
		TotalFiles:    len(docs),
		TotalChunks:   result.TotalChunks,
		IndexedChunks: result.IndexedChunks,
		SkippedChunks: result.SkippedChunks,
		Percent:       100,
		Message:       fmt.Sprintf("indexed %d chunks (%d skipped)", result.IndexedChunks, result.SkippedChunks),
	})
	p.logger.Info("ingestion complete",
		"documents", len(docs),
		"chunks", result.TotalChunks,
		"indexed", result.IndexedChunks,
		"skipped", result.SkippedChunks,
		"duration", result.Duration)
	return result, nil
}

// chunkDocuments runs the chunker over every document and accumulates the
// full chunk set.
func (p *Pipeline) chunkDocuments(ctx context.Context, docs []Document) ([]*store.Chunk, error) {
	var all []*store.Chunk

	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		content, err := doc.Load()
		if err != nil {
			return nil, fmt.Errorf("load document %s: %w", doc.ID, err)
		}

		chunks, err := chunk.Document(chunk.Source{
			ID:      doc.ID,
			Title:   doc.Title,
			Path:    doc.Path,
			Content: content,
		}, p.opts.MaxChunkSize, p.opts.Overlap)
		if err != nil {
			return nil, fmt.Errorf("chunk document %s: %w", doc.ID, err)
		}
		all = append(all, chunks...)

		p.report(Progress{
			Phase:          PhaseChunking,
			TotalFiles:     len(docs),
			ProcessedFiles: i + 1,
			TotalChunks:    len(all),
			Percent:        chunkingShare * float64(i+1) / float64(len(docs)),
			CurrentFile:    doc.Path,
			Message:        fmt.Sprintf("chunked %d/%d documents", i+1, len(docs)),
		})
	}
	return all, nil
}

// embedAndIndex processes chunks in fixed-size batches. The whole batch is
// embedded before any insert, so a provider failure never leaves a batch
// half-attempted. Skip-existing chunks count as skipped, not indexed.
func (p *Pipeline) embedAndIndex(ctx context.Context, chunks []*store.Chunk, result *Result) error {
	total := len(chunks)
	if total == 0 {
		return nil
	}

	for batchStart := 0; batchStart < total; batchStart += p.opts.BatchSize {
		// Cancellation takes effect here, between batches; an in-flight
		// batch always completes.
		if err := ctx.Err(); err != nil {
			return err
		}

		batchEnd := batchStart + p.opts.BatchSize
		if batchEnd > total {
			batchEnd = total
		}
		batch := chunks[batchStart:batchEnd]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}
		vectors, err := p.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed batch at chunk %d: %w", batchStart, err)
		}

		for i, c := range batch {
			c.Embedding = vectors[i]

			if p.opts.SkipExisting {
				exists, err := p.store.Has(ctx, c.ID)
				if err != nil {
					return fmt.Errorf("check chunk %s: %w", c.ID, err)
				}
				if exists {
					result.SkippedChunks++
					continue
				}
			}
			if err := p.store.Insert(ctx, c); err != nil {
				return fmt.Errorf("insert chunk %s: %w", c.ID, err)
			}
			result.IndexedChunks++
		}

		done := result.IndexedChunks + result.SkippedChunks
		p.report(Progress{
			Phase:         PhaseEmbedding,
			TotalChunks:   total,
			IndexedChunks: result.IndexedChunks,
			SkippedChunks: result.SkippedChunks,
			Percent:       chunkingShare + embedShare*float64(done)/float64(total),
			Message:       fmt.Sprintf("indexed %d/%d chunks", done, total),
		})

		// Yield between batches so a host UI stays responsive.
		runtime.Gosched()
	}
	return nil
}

func (p *Pipeline) report(progress Progress) {
	if p.opts.OnProgress != nil {
		p.opts.OnProgress(progress)
	}
}

func (p *Pipeline) reportError(err error) {
	p.logger.Error("ingestion failed", "error", err)
	p.report(Progress{Phase: PhaseError, Err: err, Message: err.Error()})
}
