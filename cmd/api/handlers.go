package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/docsage-ai/docsage/engine/catalog"
	"github.com/docsage-ai/docsage/engine/domain"
	"github.com/docsage-ai/docsage/engine/rag"
)

// Answerer is the slice of rag.Service the handlers need.
type Answerer interface {
	Answer(ctx context.Context, query string, history domain.ChatHistory) (domain.AnswerResult, error)
}

// DocumentLister is the slice of catalog.Catalog the handlers need.
type DocumentLister interface {
	List(ctx context.Context) ([]catalog.Entry, error)
}

// AnswerRequest is the JSON body for POST /api/answer. When query is empty
// the last user turn in chat_history is promoted to the query.
type AnswerRequest struct {
	Query       string             `json:"query"`
	ChatHistory domain.ChatHistory `json:"chat_history,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleAnswer(svc Answerer, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AnswerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}

		query, history := req.Query, req.ChatHistory
		if query == "" {
			q, h, ok := rag.SplitHistory(history)
			if !ok {
				writeJSON(w, http.StatusBadRequest, errorResponse{Error: "query is required"})
				return
			}
			query, history = q, h
		}

		result, err := svc.Answer(r.Context(), query, history)
		if err != nil {
			var ve *domain.ValidationError
			if errors.As(err, &ve) {
				writeJSON(w, http.StatusBadRequest, errorResponse{Error: ve.Error()})
				return
			}
			logger.Error("answer failed", "err", err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "answer generation failed"})
			return
		}

		// Abstention is a normal 200 response.
		writeJSON(w, http.StatusOK, result)
	}
}

func handleDocuments(cat DocumentLister, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := cat.List(r.Context())
		if err != nil {
			logger.Error("catalog list failed", "err", err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "catalog unavailable"})
			return
		}
		if entries == nil {
			entries = []catalog.Entry{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"documents": entries})
	}
}
