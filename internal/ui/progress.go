// Package ui renders ingestion and migration progress on a terminal.
// Styled output is used on a TTY; pipes and CI get plain lines.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/vaultrag/vaultrag/internal/ingest"
	"github.com/vaultrag/vaultrag/internal/migrate"
)

const barWidth = 30

var (
	phaseStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	barDoneStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
)

// Renderer writes progress lines for long-running operations.
type Renderer struct {
	mu     sync.Mutex
	out    io.Writer
	styled bool
}

// NewRenderer creates a renderer for out. Styling is enabled only when
// out is a terminal.
func NewRenderer(out io.Writer) *Renderer {
	styled := false
	if f, ok := out.(*os.File); ok {
		styled = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &Renderer{out: out, styled: styled}
}

// NewPlainRenderer creates a renderer that never styles output.
func NewPlainRenderer(out io.Writer) *Renderer {
	return &Renderer{out: out}
}

// IngestProgress renders one ingestion progress report.
func (r *Renderer) IngestProgress(p ingest.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.Phase == ingest.PhaseError {
		r.printError(p.Err)
		return
	}
	r.printLine(strings.ToUpper(string(p.Phase)), p.Percent, p.Message)
}

// MigrateProgress renders one migration progress report.
func (r *Renderer) MigrateProgress(p migrate.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.State == migrate.StateFailed {
		r.printError(p.Err)
		return
	}
	r.printLine(strings.ToUpper(string(p.State)), p.Percent, p.Message)
}

func (r *Renderer) printLine(label string, percent float64, message string) {
	if r.styled {
		_, _ = fmt.Fprintf(r.out, "%s %s %3.0f%% %s\n",
			phaseStyle.Render(fmt.Sprintf("%-10s", label)),
			r.renderBar(percent), percent, message)
		return
	}
	_, _ = fmt.Fprintf(r.out, "[%s] %3.0f%% %s\n", label, percent, message)
}

func (r *Renderer) printError(err error) {
	if r.styled {
		_, _ = fmt.Fprintf(r.out, "%s %v\n", errorStyle.Render("ERROR"), err)
		return
	}
	_, _ = fmt.Fprintf(r.out, "ERROR: %v\n", err)
}

func (r *Renderer) renderBar(percent float64) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	done := int(percent / 100 * barWidth)
	return barDoneStyle.Render(strings.Repeat("█", done)) +
		strings.Repeat("░", barWidth-done)
}
