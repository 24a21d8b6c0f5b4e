package chunk

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/vaultrag/vaultrag/internal/store"
)

// Source is a document to be chunked: identity plus full text. Content is
// supplied by the caller; this package never touches the file system.
type Source struct {
	ID      string
	Title   string
	Path    string
	Content string
}

// Document chunks a source document and builds fully-populated store chunks.
// Chunk IDs are deterministic ({documentID}#chunk-{index}) so re-ingesting
// the same document produces the same IDs and duplicate detection works.
func Document(src Source, maxSize, overlap int) ([]*store.Chunk, error) {
	if src.ID == "" {
		return nil, fmt.Errorf("document has no id (path %q)", src.Path)
	}

	pieces, err := splitWithSections(src.Content, maxSize, overlap)
	if err != nil {
		return nil, err
	}
	if len(pieces) == 0 {
		return nil, nil
	}

	contentType := contentTypeFor(src.Path)
	now := time.Now().UTC()

	chunks := make([]*store.Chunk, 0, len(pieces))
	for i, p := range pieces {
		chunks = append(chunks, &store.Chunk{
			ID:      ChunkID(src.ID, i),
			Content: p.text,
			Metadata: store.ChunkMetadata{
				DocumentID:    src.ID,
				DocumentTitle: src.Title,
				Section:       p.section,
				ContentType:   contentType,
				Keywords:      Keywords(p.text, defaultMaxKeywords),
				ChunkIndex:    i,
				SourcePath:    src.Path,
				CreatedAt:     now,
				WordCount:     len(strings.Fields(p.text)),
				CharCount:     len(p.text),
			},
		})
	}
	return chunks, nil
}

// ChunkID derives the stable chunk identifier for a document and index.
func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s#chunk-%d", documentID, index)
}

func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown", ".mdx":
		return "markdown"
	default:
		return "text"
	}
}
