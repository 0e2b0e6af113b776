// Package chunk splits documents into overlapping text segments sized for
// embedding. Splitting is deterministic: the same document and configuration
// always produce the same chunk sequence.
package chunk

import (
	"github.com/docsage-ai/docsage/engine/domain"
)

// Defaults match the ingestion configuration the corpus was tuned with.
const (
	DefaultSize    = 1024
	DefaultOverlap = 50
)

// Chunker produces fixed-size chunks with a configurable overlap between
// consecutive chunks so facts spanning a boundary are not lost.
type Chunker struct {
	size    int // max runes per chunk
	overlap int // runes shared between consecutive chunks
}

// New creates a Chunker. It fails with domain.ErrInvalidConfig when the
// overlap does not leave forward progress (overlap >= size) or either value
// is out of range.
func New(size, overlap int) (*Chunker, error) {
	if err := domain.ValidateChunking(size, overlap); err != nil {
		return nil, err
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Split cuts the document text into ordered chunks covering the full text
// with no gaps. An empty document yields zero chunks. For text of rune
// length L > size the chunk count is ceil((L-overlap)/(size-overlap)),
// otherwise a single chunk holds the whole text.
func (c *Chunker) Split(doc domain.Document) []domain.Chunk {
	runes := []rune(doc.Text)
	if len(runes) == 0 {
		return nil
	}

	stride := c.size - c.overlap
	var chunks []domain.Chunk
	for start, idx := 0, 0; start < len(runes); start, idx = start+stride, idx+1 {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, domain.Chunk{
			DocID:    doc.ID,
			Index:    idx,
			Text:     string(runes[start:end]),
			Metadata: copyMeta(doc.Metadata),
		})
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// Size returns the configured maximum chunk length in runes.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured overlap in runes.
func (c *Chunker) Overlap() int { return c.overlap }

// copyMeta clones metadata so chunks never share the document's map.
func copyMeta(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
