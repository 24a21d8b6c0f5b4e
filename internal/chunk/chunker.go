// Package chunk splits raw document text into overlapping, size-bounded
// content units ready for embedding. Splitting is deterministic: the same
// input and parameters always produce the same chunk boundaries.
package chunk

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	verrors "github.com/vaultrag/vaultrag/internal/errors"
)

const paragraphSeparator = "\n\n"

// headingPattern matches markdown headers: # Title, ## Title, etc.
var headingPattern = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)

// Split divides content into chunks of at most maxSize characters.
//
// Paragraphs (blank-line separated) are greedily accumulated until adding
// the next one would exceed maxSize. A single paragraph longer than maxSize
// is split by a sliding window of width maxSize advanced by maxSize-overlap,
// preferring to cut at a word boundary within the last 20% of the window.
func Split(content string, maxSize, overlap int) ([]string, error) {
	pieces, err := splitWithSections(content, maxSize, overlap)
	if err != nil {
		return nil, err
	}
	chunks := make([]string, len(pieces))
	for i, p := range pieces {
		chunks[i] = p.text
	}
	return chunks, nil
}

// piece is one chunk of text plus the section heading in effect where it
// starts.
type piece struct {
	text    string
	section string
}

func splitWithSections(content string, maxSize, overlap int) ([]piece, error) {
	if err := validateParams(maxSize, overlap); err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	paragraphs := splitParagraphs(content)

	var (
		pieces     []piece
		buf        strings.Builder
		section    string
		bufSection string
	)

	flush := func() {
		if buf.Len() > 0 {
			pieces = append(pieces, piece{text: buf.String(), section: bufSection})
			buf.Reset()
		}
	}

	for _, para := range paragraphs {
		if title, ok := headingTitle(para); ok {
			section = title
		}

		if len(para) > maxSize {
			flush()
			for _, window := range slideWindow(para, maxSize, overlap) {
				pieces = append(pieces, piece{text: window, section: section})
			}
			continue
		}

		needed := len(para)
		if buf.Len() > 0 {
			needed += buf.Len() + len(paragraphSeparator)
		}
		if buf.Len() > 0 && needed > maxSize {
			flush()
		}

		if buf.Len() == 0 {
			bufSection = section
		} else {
			buf.WriteString(paragraphSeparator)
		}
		buf.WriteString(para)
	}
	flush()

	return pieces, nil
}

func validateParams(maxSize, overlap int) error {
	if maxSize <= 0 {
		return verrors.Newf(verrors.ErrCodeConfigInvalid,
			"chunk max size must be positive, got %d", maxSize)
	}
	if overlap < 0 {
		return verrors.Newf(verrors.ErrCodeConfigInvalid,
			"chunk overlap must be non-negative, got %d", overlap)
	}
	// An overlap at or above the window width means the window never
	// advances. Reject before entering any loop.
	if overlap >= maxSize {
		return verrors.Newf(verrors.ErrCodeInvalidOverlap,
			"overlap %d must be smaller than max chunk size %d", overlap, maxSize)
	}
	return nil
}

// splitParagraphs splits on blank lines, trimming and dropping empties.
func splitParagraphs(content string) []string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	parts := strings.Split(content, paragraphSeparator)

	paragraphs := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			paragraphs = append(paragraphs, trimmed)
		}
	}
	return paragraphs
}

// headingTitle returns the title of a markdown heading paragraph. Only the
// first line is considered.
func headingTitle(para string) (string, bool) {
	firstLine := para
	if idx := strings.IndexByte(para, '\n'); idx >= 0 {
		firstLine = para[:idx]
	}
	if match := headingPattern.FindStringSubmatch(firstLine); match != nil {
		return strings.TrimSpace(match[2]), true
	}
	return "", false
}

// slideWindow splits an oversized paragraph into windows of at most maxSize
// bytes, each overlapping the previous by roughly overlap bytes. Window
// edges always land on rune boundaries so multibyte text stays valid UTF-8.
func slideWindow(para string, maxSize, overlap int) []string {
	var windows []string

	start := 0
	for start < len(para) {
		cut := cutPoint(para, start, maxSize)
		if window := strings.TrimSpace(para[start:cut]); window != "" {
			windows = append(windows, window)
		}
		if cut >= len(para) {
			break
		}

		next := runeStart(para, cut-overlap)
		if next <= start {
			// Word-boundary cuts can land close to the window start when
			// overlap is large; force forward progress.
			next = nextRuneStart(para, start+(maxSize-overlap))
		}
		start = next
	}
	return windows
}

// cutPoint finds where to end the window starting at start. It prefers the
// last word boundary within the final 20% of the window so words are not
// cut mid-way, and never cuts inside a rune.
func cutPoint(para string, start, maxSize int) int {
	end := start + maxSize
	if end >= len(para) {
		return len(para)
	}
	end = runeStart(para, end)
	if end <= start {
		// A single rune wider than the window; emit it whole.
		return nextRuneStart(para, start+1)
	}

	boundaryZone := runeStart(para, end-maxSize/5)
	if boundaryZone < start {
		boundaryZone = start
	}
	if idx := strings.LastIndexFunc(para[boundaryZone:end], unicode.IsSpace); idx >= 0 {
		return boundaryZone + idx
	}
	return end
}

// runeStart returns the largest rune boundary at or before i.
func runeStart(s string, i int) int {
	for i > 0 && i < len(s) && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

// nextRuneStart returns the smallest rune boundary at or after i.
func nextRuneStart(s string, i int) int {
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return i
}
