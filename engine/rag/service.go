package rag

import (
	"context"
	"log/slog"
	"time"

	"github.com/docsage-ai/docsage/engine/domain"
	"github.com/docsage-ai/docsage/pkg/fn"
)

// DefaultTimeout bounds one answer request end to end.
const DefaultTimeout = 60 * time.Second

// Service runs retrieve → synthesize per request. It holds no per-request
// state and is safe for concurrent use.
type Service struct {
	retriever   *Retriever
	synthesizer *Synthesizer
	timeout     time.Duration
	log         *slog.Logger
}

// NewService wires the query service. timeout <= 0 uses DefaultTimeout.
func NewService(retriever *Retriever, synthesizer *Synthesizer, timeout time.Duration, log *slog.Logger) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{retriever: retriever, synthesizer: synthesizer, timeout: timeout, log: log}
}

// answerState flows through the retrieve → synthesize pipeline.
type answerState struct {
	query    string
	history  domain.ChatHistory
	passages []domain.RetrievedPassage
}

// Answer resolves one question. Retrieval failure is not terminal: the
// synthesizer still runs with whatever grounding remains (possibly only chat
// history). Generation failure is terminal and distinguishable from
// abstention by the returned error.
func (s *Service) Answer(ctx context.Context, query string, history domain.ChatHistory) (domain.AnswerResult, error) {
	if err := domain.ValidateQuery(query); err != nil {
		return domain.AnswerResult{}, err
	}
	if err := domain.ValidateHistory(history); err != nil {
		return domain.AnswerResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	retrieve := fn.TracedStage("rag.retrieve", fn.Stage[answerState, answerState](
		func(ctx context.Context, st answerState) fn.Result[answerState] {
			passages, err := s.retriever.Retrieve(ctx, st.query)
			if err != nil {
				s.log.Warn("retrieval failed, answering without passages", "error", err)
				passages = nil
			}
			st.passages = passages
			return fn.Ok(st)
		}))

	synthesize := fn.TracedStage("rag.synthesize", fn.Stage[answerState, domain.AnswerResult](
		func(ctx context.Context, st answerState) fn.Result[domain.AnswerResult] {
			return fn.FromPair(s.synthesizer.Synthesize(ctx, st.query, st.history, st.passages))
		}))

	return fn.Then(retrieve, synthesize)(ctx, answerState{query: query, history: history}).Unwrap()
}

// SplitHistory takes the last user turn as the current query and returns the
// preceding turns as history. ok is false when no user turn exists.
func SplitHistory(turns domain.ChatHistory) (query string, history domain.ChatHistory, ok bool) {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == "user" {
			return turns[i].Content, turns[:i], true
		}
	}
	return "", nil, false
}
