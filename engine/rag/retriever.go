// Package rag answers questions over the indexed corpus: embed the query,
// retrieve passages, and synthesize a grounded answer that abstains rather
// than fabricates.
package rag

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/docsage-ai/docsage/engine/domain"
	"github.com/docsage-ai/docsage/engine/semantic"
	"github.com/docsage-ai/docsage/pkg/fn"
)

// DefaultTopK is the number of passages retrieved per query.
const DefaultTopK = 3

// Embedder turns query text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher performs similarity search over the vector index.
type Searcher interface {
	Search(ctx context.Context, embedding []float32, topK int) ([]semantic.SearchResult, error)
}

// Retriever embeds a query and maps index hits to passages.
type Retriever struct {
	embedder Embedder
	searcher Searcher
	topK     int
	log      *slog.Logger
}

// NewRetriever creates a Retriever. topK <= 0 uses DefaultTopK.
func NewRetriever(embedder Embedder, searcher Searcher, topK int, log *slog.Logger) (*Retriever, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if err := domain.ValidateTopK(topK); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Retriever{embedder: embedder, searcher: searcher, topK: topK, log: log}, nil
}

// Retrieve returns up to topK passages ranked by similarity. Any failure
// returns an empty slice and an error; callers treat empty as "no grounding".
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]domain.RetrievedPassage, error) {
	if err := domain.ValidateQuery(query); err != nil {
		return nil, err
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := r.searcher.Search(ctx, vec, r.topK)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	r.log.Info("retrieval done", "hits", len(hits), "top_k", r.topK)

	passages := make([]domain.RetrievedPassage, len(hits))
	for i, h := range hits {
		passages[i] = domain.RetrievedPassage{
			Text:   h.Content,
			Source: h.Source,
			DocID:  h.DocID,
			Score:  h.Score,
			Rank:   i + 1,
		}
	}
	return passages, nil
}

// Sources lists the distinct source identifiers of passages in first-seen
// order.
func Sources(passages []domain.RetrievedPassage) []string {
	return fn.Unique(fn.Map(passages, func(p domain.RetrievedPassage) string {
		return p.Source
	}))
}
