// Package ingest turns a directory of documents into indexed vectors:
// load, chunk, embed, index, with a catalog ledger for dedup.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/docsage-ai/docsage/engine/catalog"
	"github.com/docsage-ai/docsage/engine/chunk"
	"github.com/docsage-ai/docsage/engine/domain"
	"github.com/docsage-ai/docsage/engine/semantic"
	"github.com/docsage-ai/docsage/pkg/fn"
)

// EmbedBatchSize is the max chunks per embedding request.
const EmbedBatchSize = 100

// DefaultWorkers bounds concurrent document embedding.
const DefaultWorkers = 4

// Embedder produces embedding vectors for batches of text, preserving order.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorIndex receives embedded chunks.
type VectorIndex interface {
	Upsert(ctx context.Context, records []semantic.VectorRecord) error
	DeleteByDocID(ctx context.Context, docID string) error
}

// Ledger tracks which documents have been ingested. Nil disables dedup.
type Ledger interface {
	Seen(ctx context.Context, docID, contentHash string) (bool, error)
	Record(ctx context.Context, e catalog.Entry) error
}

// Runner executes the ingestion pipeline.
type Runner struct {
	embedder Embedder
	index    VectorIndex
	ledger   Ledger
	chunker  *chunk.Chunker
	workers  int
	log      *slog.Logger
}

// NewRunner wires a pipeline. ledger may be nil.
func NewRunner(embedder Embedder, index VectorIndex, ledger Ledger, chunker *chunk.Chunker, workers int, log *slog.Logger) *Runner {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		embedder: embedder,
		index:    index,
		ledger:   ledger,
		chunker:  chunker,
		workers:  workers,
		log:      log,
	}
}

// PointID derives a stable UUID for a chunk so re-ingestion overwrites
// instead of duplicating.
func PointID(docID string, chunkIndex int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s-%d", docID, chunkIndex))).String()
}

// Run ingests every supported document under dir. Partial progress may
// remain in the index on failure; re-running is the recovery path and is
// safe thanks to stable point IDs and ledger dedup.
func (r *Runner) Run(ctx context.Context, dir string) (Report, error) {
	start := time.Now()
	rep := Report{Status: StatusLoading}

	docs, skipped, err := LoadDirectory(dir, r.log)
	if err != nil {
		rep.Status = StatusFailed
		rep.Duration = time.Since(start)
		return rep, err
	}
	rep.Documents = len(docs)
	rep.FilesSkipped = skipped
	r.log.Info("documents loaded", "count", len(docs), "skipped", skipped)

	docs, unchanged := r.filterSeen(ctx, docs)
	rep.DocsUnchanged = unchanged

	rep.Status = StatusChunking
	chunked := make([]ChunkedDoc, 0, len(docs))
	for _, doc := range docs {
		chunks := r.chunker.Split(doc)
		if len(chunks) == 0 {
			continue
		}
		chunked = append(chunked, ChunkedDoc{Doc: doc, Chunks: chunks})
	}
	r.log.Info("documents chunked", "documents", len(chunked))

	rep.Status = StatusEmbedding
	results := fn.ParMapResult(chunked, r.workers, func(cd ChunkedDoc) fn.Result[EmbeddedDoc] {
		return r.embed(ctx, cd)
	})
	embedded, err := fn.Collect(results).Unwrap()
	if err != nil {
		rep.Status = StatusFailed
		rep.Duration = time.Since(start)
		return rep, fmt.Errorf("embedding: %w", err)
	}

	rep.Status = StatusIndexing
	for _, ed := range embedded {
		if err := r.indexDoc(ctx, ed); err != nil {
			rep.Status = StatusFailed
			rep.Duration = time.Since(start)
			return rep, fmt.Errorf("indexing %s: %w", ed.Doc.ID, err)
		}
		rep.ChunksIndexed += len(ed.Chunks)
	}

	rep.Status = StatusDone
	rep.Duration = time.Since(start)
	r.log.Info("ingestion complete",
		"documents", rep.Documents,
		"unchanged", rep.DocsUnchanged,
		"chunks", rep.ChunksIndexed,
		"duration", rep.Duration,
	)
	return rep, nil
}

// filterSeen drops documents whose content hash the ledger already has.
// Changed documents get their stale points deleted before re-indexing.
func (r *Runner) filterSeen(ctx context.Context, docs []domain.Document) ([]domain.Document, int) {
	if r.ledger == nil {
		return docs, 0
	}
	kept := docs[:0]
	unchanged := 0
	for _, doc := range docs {
		seen, err := r.ledger.Seen(ctx, doc.ID, catalog.Hash(doc.Text))
		if err != nil {
			r.log.Warn("ledger lookup failed, re-ingesting", "doc_id", doc.ID, "error", err)
			kept = append(kept, doc)
			continue
		}
		if seen {
			unchanged++
			continue
		}
		if err := r.index.DeleteByDocID(ctx, doc.ID); err != nil {
			r.log.Warn("stale point cleanup failed", "doc_id", doc.ID, "error", err)
		}
		kept = append(kept, doc)
	}
	return kept, unchanged
}

func (r *Runner) embed(ctx context.Context, cd ChunkedDoc) fn.Result[EmbeddedDoc] {
	embeddings := make([][]float32, len(cd.Chunks))
	for _, batch := range fn.Chunk(cd.Chunks, EmbedBatchSize) {
		texts := fn.Map(batch, func(c domain.Chunk) string { return c.Text })
		vecs, err := r.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fn.Err[EmbeddedDoc](fmt.Errorf("embed %s: %w", cd.Doc.ID, err))
		}
		if len(vecs) != len(batch) {
			return fn.Errf[EmbeddedDoc]("embed %s: got %d vectors for %d chunks", cd.Doc.ID, len(vecs), len(batch))
		}
		for i, v := range vecs {
			embeddings[batch[i].Index] = v
		}
	}
	return fn.Ok(EmbeddedDoc{ChunkedDoc: cd, Embeddings: embeddings})
}

func (r *Runner) indexDoc(ctx context.Context, ed EmbeddedDoc) error {
	records := make([]semantic.VectorRecord, len(ed.Chunks))
	for i, c := range ed.Chunks {
		records[i] = semantic.VectorRecord{
			ID:        PointID(ed.Doc.ID, c.Index),
			Embedding: ed.Embeddings[i],
			Payload: map[string]any{
				"content":     c.Text,
				"doc_id":      ed.Doc.ID,
				"source":      ed.Doc.Source(),
				"chunk_index": c.Index,
			},
		}
	}
	if err := r.index.Upsert(ctx, records); err != nil {
		return err
	}

	if r.ledger != nil {
		entry := catalog.Entry{
			ID:          ed.Doc.ID,
			Name:        ed.Doc.Source(),
			Path:        ed.Doc.Metadata["file_path"],
			ContentHash: catalog.Hash(ed.Doc.Text),
			Chunks:      len(ed.Chunks),
			IngestedAt:  time.Now().UTC(),
		}
		if err := r.ledger.Record(ctx, entry); err != nil {
			r.log.Warn("catalog record failed", "doc_id", ed.Doc.ID, "error", err)
		}
	}
	return nil
}
