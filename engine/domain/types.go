// Package domain defines the core types, sentinel errors, and validation for
// the DocSage answering pipeline. It acts as the validation gate at pipeline
// entry points.
package domain

// Document is a raw source unit read at ingestion time. It is immutable once
// created by the loader.
type Document struct {
	ID       string            `json:"id"`   // stable identifier, typically the file path relative to the corpus root
	Text     string            `json:"text"` // full document text
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Source returns the human-facing source identifier for the document,
// preferring the file name recorded by the loader.
func (d Document) Source() string {
	if name, ok := d.Metadata["file_name"]; ok && name != "" {
		return name
	}
	return d.ID
}

// Chunk is a contiguous slice of a document's text, the unit of embedding
// and retrieval. Chunks are never mutated after creation.
type Chunk struct {
	DocID    string
	Index    int // ordinal within the document
	Text     string
	Metadata map[string]string // inherited from the document
}

// RetrievedPassage is a single similarity hit. Its lifetime is one query.
type RetrievedPassage struct {
	Text   string  `json:"text"`
	Source string  `json:"source"` // source document identifier (file name)
	DocID  string  `json:"doc_id"`
	Score  float32 `json:"score"`
	Rank   int     `json:"rank"` // 1-based position in the result list
}

// ChatTurn is a single role/content pair from the conversation.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatHistory is the chronological conversation preceding the current
// question, excluding the question itself.
type ChatHistory []ChatTurn

// AnswerResult is the structured output of the answering pipeline.
type AnswerResult struct {
	Answer    string   `json:"answer"`
	Sources   []string `json:"sources"`
	ToolUsed  string   `json:"tool_used"`
	Rationale string   `json:"rationale"`
}

// Abstention is the fixed answer returned when neither the retrieved
// passages nor the chat history contain the information asked for. The
// synthesizer never fabricates an answer outside the grounding context.
const Abstention = "The knowledge source does not contain the required information."

// Names reported in AnswerResult.ToolUsed.
const (
	ToolVectorRetriever = "vector retriever"
	ToolChatHistory     = "chat history only"
)
