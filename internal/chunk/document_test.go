package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocument_BuildsChunksWithMetadata(t *testing.T) {
	src := Source{
		ID:    "guide",
		Title: "User Guide",
		Path:  "docs/guide.md",
		Content: "# Getting Started\n\n" +
			"Install the binary and run the setup command to create a vault.\n\n" +
			"# Configuration\n\n" +
			"Settings live in a YAML file under the home directory.",
	}

	chunks, err := Document(src, 120, 20)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	for i, c := range chunks {
		assert.Equal(t, ChunkID("guide", i), c.ID)
		assert.Equal(t, i, c.Metadata.ChunkIndex)
		assert.Equal(t, "guide", c.Metadata.DocumentID)
		assert.Equal(t, "User Guide", c.Metadata.DocumentTitle)
		assert.Equal(t, "docs/guide.md", c.Metadata.SourcePath)
		assert.Equal(t, "markdown", c.Metadata.ContentType)
		assert.Equal(t, len(strings.Fields(c.Content)), c.Metadata.WordCount)
		assert.Equal(t, len(c.Content), c.Metadata.CharCount)
		assert.False(t, c.Metadata.CreatedAt.IsZero())
		assert.NotEmpty(t, c.Content)
	}
}

func TestDocument_SectionTracksNearestHeading(t *testing.T) {
	src := Source{
		ID:   "doc",
		Path: "doc.md",
		Content: "Intro text before any heading.\n\n" +
			"# Alpha\n\n" + strings.Repeat("alpha body text. ", 10) + "\n\n" +
			"# Beta\n\n" + strings.Repeat("beta body text. ", 10),
	}

	chunks, err := Document(src, 100, 10)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 2)

	assert.Empty(t, chunks[0].Metadata.Section, "preamble has no heading")

	sections := make(map[string]bool)
	for _, c := range chunks {
		sections[c.Metadata.Section] = true
	}
	assert.True(t, sections["Alpha"])
	assert.True(t, sections["Beta"])

	// Beta content must never carry the Alpha label.
	for _, c := range chunks {
		if strings.Contains(c.Content, "beta body") && !strings.Contains(c.Content, "alpha body") {
			assert.Equal(t, "Beta", c.Metadata.Section)
		}
	}
}

func TestDocument_ContentType(t *testing.T) {
	for path, want := range map[string]string{
		"notes.md":   "markdown",
		"notes.MDX":  "markdown",
		"notes.txt":  "text",
		"no-ext":     "text",
		"weird.json": "text",
	} {
		assert.Equal(t, want, contentTypeFor(path), "path %s", path)
	}
}

func TestDocument_EmptyContent(t *testing.T) {
	chunks, err := Document(Source{ID: "empty", Path: "empty.txt"}, 100, 10)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestDocument_RequiresID(t *testing.T) {
	_, err := Document(Source{Path: "x.txt", Content: "hello"}, 100, 10)
	assert.Error(t, err)
}

func TestDocument_InvalidOverlapRejected(t *testing.T) {
	_, err := Document(Source{ID: "d", Content: "hello"}, 10, 10)
	assert.Error(t, err)
}

func TestKeywords(t *testing.T) {
	t.Run("filters stop words and short tokens", func(t *testing.T) {
		got := Keywords("the cat sat on the mat with a cat", 10)
		assert.Contains(t, got, "cat")
		assert.Contains(t, got, "mat")
		assert.Contains(t, got, "sat")
		assert.NotContains(t, got, "the")
		assert.NotContains(t, got, "on")
	})

	t.Run("orders by frequency then alphabetically", func(t *testing.T) {
		got := Keywords("zebra zebra apple apple banana", 3)
		assert.Equal(t, []string{"apple", "zebra", "banana"}, got)
	})

	t.Run("respects max", func(t *testing.T) {
		got := Keywords("one1 two2 three3 four4 five5 six6", 2)
		assert.Len(t, got, 2)
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, Keywords("", 5))
		assert.Empty(t, Keywords("a an the", 5))
		assert.Empty(t, Keywords("words here", 0))
	})
}
