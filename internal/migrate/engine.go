// Package migrate copies every chunk from a source vector store to a
// target store, preserving identity, content, embeddings, and metadata.
// The source is never mutated: switching the active backend afterwards is
// the caller's decision.
package migrate

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	verrors "github.com/vaultrag/vaultrag/internal/errors"
	"github.com/vaultrag/vaultrag/internal/store"
)

// State is the engine's position in its lifecycle. Terminal states are
// StateComplete and StateFailed; Migrating only ever advances to
// Verifying or Failed.
type State string

const (
	StateIdle      State = "idle"
	StatePreparing State = "preparing"
	StateMigrating State = "migrating"
	StateVerifying State = "verifying"
	StateComplete  State = "complete"
	StateFailed    State = "failed"
)

// DefaultScanBatchSize bounds memory while streaming the source store.
const DefaultScanBatchSize = 100

// Progress is a point-in-time report delivered to the progress callback.
type Progress struct {
	State          State
	TotalChunks    int
	MigratedChunks int
	Percent        float64
	Message        string
	Err            error
}

// ProgressFunc receives progress reports at state transitions and batch
// boundaries. Called synchronously; must not block.
type ProgressFunc func(Progress)

// ChunkError records a single chunk that failed to migrate.
type ChunkError struct {
	ChunkID string
	Err     error
}

// Result summarizes a migration run.
type Result struct {
	Success        bool
	DryRun         bool
	TotalChunks    int
	MigratedChunks int
	Errors         []ChunkError
	Duration       time.Duration
}

// Options configures a migration run.
type Options struct {
	// DryRun reads and validates but skips target inserts, reporting what
	// would be migrated.
	DryRun bool

	// ScanBatchSize bounds how many chunks are held in memory at once.
	ScanBatchSize int

	OnProgress ProgressFunc
}

// Engine runs migrations between two stores. One engine runs one
// migration at a time.
type Engine struct {
	mu     sync.RWMutex
	state  State
	logger *slog.Logger
}

// NewEngine creates an idle migration engine.
func NewEngine() *Engine {
	return &Engine{
		state:  StateIdle,
		logger: slog.Default().With("component", "migrate"),
	}
}

// State returns the engine's current state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// Run migrates all chunks from source to target.
//
// A single chunk's insert failure is recorded and the run continues; a
// connection-level failure on the target aborts immediately, since every
// following insert would fail the same way. An empty source is a trivial
// success with no target writes.
func (e *Engine) Run(ctx context.Context, source, target store.VectorStore, opts Options) (*Result, error) {
	start := time.Now()
	if opts.ScanBatchSize <= 0 {
		opts.ScanBatchSize = DefaultScanBatchSize
	}
	result := &Result{DryRun: opts.DryRun}

	fail := func(err error) (*Result, error) {
		e.setState(StateFailed)
		result.Duration = time.Since(start)
		e.report(opts, Progress{State: StateFailed, TotalChunks: result.TotalChunks,
			MigratedChunks: result.MigratedChunks, Err: err, Message: err.Error()})
		e.logger.Error("migration failed", "error", err,
			"migrated", result.MigratedChunks, "total", result.TotalChunks)
		return result, err
	}

	e.setState(StatePreparing)
	e.report(opts, Progress{State: StatePreparing, Message: "reading source store"})

	sourceStats, err := source.Stats(ctx)
	if err != nil {
		return fail(fmt.Errorf("read source stats: %w", err))
	}
	result.TotalChunks = sourceStats.TotalChunks

	targetStats, err := target.Stats(ctx)
	if err != nil {
		return fail(fmt.Errorf("read target stats: %w", err))
	}
	if sourceStats.Dimension != targetStats.Dimension {
		return fail(verrors.DimensionError(targetStats.Dimension, sourceStats.Dimension))
	}

	// Empty source: nothing to copy, nothing to verify.
	if result.TotalChunks == 0 {
		e.setState(StateComplete)
		result.Success = true
		result.Duration = time.Since(start)
		e.report(opts, Progress{State: StateComplete, Percent: 100, Message: "source store is empty"})
		return result, nil
	}

	e.setState(StateMigrating)
	if err := e.copyChunks(ctx, source, target, opts, result); err != nil {
		return fail(err)
	}

	e.setState(StateVerifying)
	e.report(opts, Progress{State: StateVerifying, TotalChunks: result.TotalChunks,
		MigratedChunks: result.MigratedChunks, Percent: 99, Message: "verifying target store"})
	if !opts.DryRun {
		if err := e.verify(ctx, target, result); err != nil {
			return fail(err)
		}
	}

	e.setState(StateComplete)
	result.Success = true
	result.Duration = time.Since(start)
	e.report(opts, Progress{State: StateComplete, TotalChunks: result.TotalChunks,
		MigratedChunks: result.MigratedChunks, Percent: 100,
		Message: fmt.Sprintf("migrated %d chunks (%d failed)", result.MigratedChunks, len(result.Errors))})
	e.logger.Info("migration complete", "migrated", result.MigratedChunks,
		"failed", len(result.Errors), "dry_run", opts.DryRun, "duration", result.Duration)
	return result, nil
}

// copyChunks streams the source in batches and inserts into the target.
func (e *Engine) copyChunks(ctx context.Context, source, target store.VectorStore, opts Options, result *Result) error {
	processed := 0

	return source.Scan(ctx, opts.ScanBatchSize, func(chunks []*store.Chunk) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		for _, c := range chunks {
			processed++
			if opts.DryRun {
				result.MigratedChunks++
				continue
			}

			if err := target.Insert(ctx, c); err != nil {
				// A dead target connection dooms every remaining insert.
				if verrors.IsConnection(err) {
					return fmt.Errorf("target connection lost at chunk %s: %w", c.ID, err)
				}
				partial := verrors.PartialRecordError(c.ID, err)
				result.Errors = append(result.Errors, ChunkError{ChunkID: c.ID, Err: partial})
				e.logger.Warn("chunk failed to migrate", "chunk", c.ID, "error", err)
				continue
			}
			result.MigratedChunks++
		}

		e.report(opts, Progress{
			State:          StateMigrating,
			TotalChunks:    result.TotalChunks,
			MigratedChunks: result.MigratedChunks,
			Percent:        99 * float64(processed) / float64(result.TotalChunks),
			Message:        fmt.Sprintf("migrated %d/%d chunks", processed, result.TotalChunks),
		})

		// Yield between batches so a host UI stays responsive.
		runtime.Gosched()
		return nil
	})
}

// verify checks that the target holds every successfully migrated chunk.
func (e *Engine) verify(ctx context.Context, target store.VectorStore, result *Result) error {
	stats, err := target.Stats(ctx)
	if err != nil {
		return fmt.Errorf("read target stats: %w", err)
	}
	if stats.TotalChunks < result.MigratedChunks {
		return verrors.Newf(verrors.ErrCodeInternal,
			"target reports %d chunks, expected at least %d", stats.TotalChunks, result.MigratedChunks)
	}
	return nil
}

func (e *Engine) report(opts Options, progress Progress) {
	if opts.OnProgress != nil {
		opts.OnProgress(progress)
	}
}
