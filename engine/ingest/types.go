package ingest

import (
	"time"

	"github.com/docsage-ai/docsage/engine/domain"
)

// ChunkedDoc is a document split into embeddable chunks.
type ChunkedDoc struct {
	Doc    domain.Document
	Chunks []domain.Chunk
}

// EmbeddedDoc carries embeddings aligned by index with Chunks.
type EmbeddedDoc struct {
	ChunkedDoc
	Embeddings [][]float32
}

// Status tracks pipeline progress.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusChunking
	StatusEmbedding
	StatusIndexing
	StatusDone
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusChunking:
		return "chunking"
	case StatusEmbedding:
		return "embedding"
	case StatusIndexing:
		return "indexing"
	case StatusDone:
		return "done"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Report summarizes a pipeline run.
type Report struct {
	Status        Status
	Documents     int
	FilesSkipped  int
	DocsUnchanged int
	ChunksIndexed int
	Duration      time.Duration
}
