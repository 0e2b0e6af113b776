package domain

import (
	"fmt"
	"strings"
)

// ValidateQuery checks the incoming question text.
func ValidateQuery(query string) error {
	if strings.TrimSpace(query) == "" {
		return NewValidationError("query", query, ErrEmptyQuery)
	}
	return nil
}

// ValidateChunking checks chunker configuration. Overlap must leave forward
// progress between consecutive chunks.
func ValidateChunking(size, overlap int) error {
	if size <= 0 {
		return NewValidationError("chunk_size", fmt.Sprintf("%d", size), ErrInvalidConfig)
	}
	if overlap < 0 || overlap >= size {
		return NewValidationError("chunk_overlap", fmt.Sprintf("%d", overlap), ErrInvalidConfig)
	}
	return nil
}

// ValidateTopK checks the retrieval result count.
func ValidateTopK(topK int) error {
	if topK < 1 {
		return NewValidationError("top_k", fmt.Sprintf("%d", topK), ErrInvalidConfig)
	}
	return nil
}

// ValidateHistory checks that every turn carries a role.
func ValidateHistory(history ChatHistory) error {
	for i, turn := range history {
		if strings.TrimSpace(turn.Role) == "" {
			return NewValidationError(fmt.Sprintf("chat_history[%d].role", i), turn.Role, ErrInvalidConfig)
		}
	}
	return nil
}
