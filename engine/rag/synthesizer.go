package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/docsage-ai/docsage/engine/domain"
)

// Generator produces a model completion for a system + user prompt pair.
// Implementations must return the raw reply text.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

const systemPrompt = `You are DocSage, a precise question-answering assistant.
Answer the user's question using ONLY the provided context passages and chat
history. If they do not contain the required information, reply with exactly:
"` + domain.Abstention + `"
Respond with a single JSON object:
{"answer": "...", "sources": ["file name", ...], "tool_used": "...", "rationale": "..."}
The sources list may only contain file names that appear in the context
passages. Never invent sources or facts.`

// llmAnswer is the strict JSON shape requested from the model.
type llmAnswer struct {
	Answer    string   `json:"answer"`
	Sources   []string `json:"sources"`
	ToolUsed  string   `json:"tool_used"`
	Rationale string   `json:"rationale"`
}

// Synthesizer turns retrieved passages and chat history into a validated
// AnswerResult.
type Synthesizer struct {
	gen Generator
	log *slog.Logger
}

// NewSynthesizer creates a Synthesizer.
func NewSynthesizer(gen Generator, log *slog.Logger) *Synthesizer {
	if log == nil {
		log = slog.Default()
	}
	return &Synthesizer{gen: gen, log: log}
}

// Synthesize produces the final answer. With no passages and no history it
// abstains without consulting the model. With no passages but usable history
// the model answers from history alone and the result reports the chat
// history tool. Model output is validated after the fact: sources are
// filtered to the supplied passages, abstentions carry no sources, and a
// non-abstention answer whose sources all fail validation is retried once
// before falling back to abstention.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, history domain.ChatHistory, passages []domain.RetrievedPassage) (domain.AnswerResult, error) {
	historyOnly := len(passages) == 0

	if historyOnly && len(history) == 0 {
		return abstain(domain.ToolVectorRetriever, "no passages were retrieved and no chat history was available"), nil
	}

	prompt := buildPrompt(query, history, passages)
	allowed := make(map[string]bool)
	for _, src := range Sources(passages) {
		allowed[src] = true
	}

	result, ok, err := s.generateOnce(ctx, prompt, allowed, historyOnly)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	if !ok {
		s.log.Warn("model output failed validation, retrying once")
		result, ok, err = s.generateOnce(ctx, prompt, allowed, historyOnly)
		if err != nil {
			return domain.AnswerResult{}, err
		}
	}
	if !ok {
		tool := domain.ToolVectorRetriever
		if historyOnly {
			tool = domain.ToolChatHistory
		}
		return abstain(tool, "the model could not produce an answer grounded in the supplied context"), nil
	}
	return result, nil
}

// generateOnce calls the model and validates the reply. ok is false when the
// reply is unusable but a retry may help.
func (s *Synthesizer) generateOnce(ctx context.Context, prompt string, allowed map[string]bool, historyOnly bool) (domain.AnswerResult, bool, error) {
	reply, err := s.gen.Generate(ctx, systemPrompt, prompt)
	if err != nil {
		return domain.AnswerResult{}, false, fmt.Errorf("%w: %v", domain.ErrGeneration, err)
	}

	var parsed llmAnswer
	if err := json.Unmarshal([]byte(extractJSON(reply)), &parsed); err != nil {
		s.log.Warn("model reply is not valid JSON", "error", err)
		return domain.AnswerResult{}, false, nil
	}
	if strings.TrimSpace(parsed.Answer) == "" {
		return domain.AnswerResult{}, false, nil
	}

	tool := domain.ToolVectorRetriever
	if historyOnly {
		tool = domain.ToolChatHistory
	}

	if parsed.Answer == domain.Abstention {
		rationale := parsed.Rationale
		if rationale == "" {
			rationale = "the supplied context does not contain the required information"
		}
		return abstain(tool, rationale), true, nil
	}

	if historyOnly {
		// History-grounded answers cite no corpus sources.
		return domain.AnswerResult{
			Answer:    parsed.Answer,
			Sources:   []string{},
			ToolUsed:  tool,
			Rationale: parsed.Rationale,
		}, true, nil
	}

	var sources []string
	for _, src := range parsed.Sources {
		if allowed[src] {
			sources = append(sources, src)
		}
	}
	if len(sources) == 0 {
		// A grounded answer must cite at least one real passage source.
		return domain.AnswerResult{}, false, nil
	}

	return domain.AnswerResult{
		Answer:    parsed.Answer,
		Sources:   sources,
		ToolUsed:  tool,
		Rationale: parsed.Rationale,
	}, true, nil
}

func abstain(tool, rationale string) domain.AnswerResult {
	return domain.AnswerResult{
		Answer:    domain.Abstention,
		Sources:   []string{},
		ToolUsed:  tool,
		Rationale: rationale,
	}
}

// buildPrompt assembles the grounding context in rank order, the chat
// transcript, and the question.
func buildPrompt(query string, history domain.ChatHistory, passages []domain.RetrievedPassage) string {
	var b strings.Builder

	if len(passages) > 0 {
		b.WriteString("Context passages:\n")
		for _, p := range passages {
			fmt.Fprintf(&b, "[%d] (source: %s, score: %.3f)\n%s\n\n", p.Rank, p.Source, p.Score, p.Text)
		}
	} else {
		b.WriteString("No context passages were retrieved.\n\n")
	}

	if len(history) > 0 {
		b.WriteString("Chat history:\n")
		for _, turn := range history {
			fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Content)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Question: %s", query)
	return b.String()
}

// extractJSON trims any text the model wrapped around the JSON object.
func extractJSON(reply string) string {
	start := strings.IndexByte(reply, '{')
	end := strings.LastIndexByte(reply, '}')
	if start == -1 || end == -1 || end < start {
		return reply
	}
	return reply[start : end+1]
}
