// Package ingest orchestrates chunking, embedding, and indexing for a set
// of documents. One Run is a single logical operation: batches are
// processed sequentially and cancellation is honored cooperatively at
// batch boundaries, so a batch is always embedded and inserted as a unit.
package ingest

import "time"

// Phase identifies a stage of the ingestion run.
type Phase string

const (
	PhaseScanning  Phase = "scanning"
	PhaseChunking  Phase = "chunking"
	PhaseEmbedding Phase = "embedding"
	PhaseComplete  Phase = "complete"
	PhaseError     Phase = "error"
)

// Document describes one input document. Content is loaded lazily through
// Load so the caller controls file access; the pipeline never touches the
// file system itself.
type Document struct {
	ID    string
	Title string
	Path  string
	Load  func() (string, error)
}

// Progress is a point-in-time report delivered to the progress callback.
// The chunking phase covers the first 30% of the bar, embedding and
// indexing the remaining 70%, so long corpora show movement before the
// slow embedding phase begins.
type Progress struct {
	Phase          Phase
	TotalFiles     int
	ProcessedFiles int
	TotalChunks    int
	IndexedChunks  int
	SkippedChunks  int
	Percent        float64
	Message        string
	CurrentFile    string
	Err            error
}

// ProgressFunc receives progress reports at phase and batch boundaries.
// It is called synchronously and must not block.
type ProgressFunc func(Progress)

// Result summarizes a completed, failed, or cancelled run.
type Result struct {
	Success       bool
	Cancelled     bool
	TotalChunks   int
	IndexedChunks int
	SkippedChunks int
	Duration      time.Duration
}
