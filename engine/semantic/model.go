package semantic

// SearchResult is a single vector search hit.
type SearchResult struct {
	ID      string            `json:"id"`
	Score   float32           `json:"score"`
	Content string            `json:"content"`
	DocID   string            `json:"doc_id"`
	Source  string            `json:"source"`
	Ordinal int               `json:"chunk_index"` // chunk ordinal within its document
	Meta    map[string]string `json:"meta,omitempty"`
}

// VectorRecord is a single entry to persist: vector, chunk text, and metadata
// keyed by a stable point ID so re-ingestion upserts in place.
type VectorRecord struct {
	ID        string
	Embedding []float32
	Payload   map[string]any // content, doc_id, source, chunk_index, plus inherited metadata
}
