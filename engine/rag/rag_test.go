package rag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/docsage-ai/docsage/engine/domain"
	"github.com/docsage-ai/docsage/engine/semantic"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeEmbedder struct {
	fail bool
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.fail {
		return nil, errors.New("embedder down")
	}
	return []float32{float32(len(text)), 1, 0}, nil
}

type fakeSearcher struct {
	hits []semantic.SearchResult
	fail bool
}

func (f *fakeSearcher) Search(_ context.Context, _ []float32, topK int) ([]semantic.SearchResult, error) {
	if f.fail {
		return nil, errors.New("index down")
	}
	if len(f.hits) > topK {
		return f.hits[:topK], nil
	}
	return f.hits, nil
}

// scriptedGenerator returns canned replies in sequence.
type scriptedGenerator struct {
	replies []string
	err     error
	calls   int
	prompts []string
	systems []string
}

func (g *scriptedGenerator) Generate(_ context.Context, system, prompt string) (string, error) {
	g.calls++
	g.systems = append(g.systems, system)
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	i := g.calls - 1
	if i >= len(g.replies) {
		i = len(g.replies) - 1
	}
	return g.replies[i], nil
}

func hit(content, source, docID string, score float32) semantic.SearchResult {
	return semantic.SearchResult{Content: content, Source: source, DocID: docID, Score: score}
}

func mustRetriever(t *testing.T, e Embedder, s Searcher, topK int) *Retriever {
	t.Helper()
	r, err := NewRetriever(e, s, topK, discard())
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestRetrieveRanksPassages(t *testing.T) {
	searcher := &fakeSearcher{hits: []semantic.SearchResult{
		hit("darwin finches", "Evolution.txt", "evolution.txt", 0.92),
		hit("natural selection", "Evolution.txt", "evolution.txt", 0.88),
		hit("plate tectonics", "Geology.txt", "geology.txt", 0.41),
	}}
	r := mustRetriever(t, &fakeEmbedder{}, searcher, 3)

	passages, err := r.Retrieve(context.Background(), "who proposed natural selection?")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(passages) != 3 {
		t.Fatalf("passages = %d", len(passages))
	}
	for i, p := range passages {
		if p.Rank != i+1 {
			t.Fatalf("rank[%d] = %d", i, p.Rank)
		}
	}
	if passages[0].Source != "Evolution.txt" || passages[0].Text != "darwin finches" {
		t.Fatalf("first passage = %+v", passages[0])
	}
}

func TestRetrieveValidatesQuery(t *testing.T) {
	r := mustRetriever(t, &fakeEmbedder{}, &fakeSearcher{}, 3)
	if _, err := r.Retrieve(context.Background(), "   "); !errors.Is(err, domain.ErrEmptyQuery) {
		t.Fatalf("err = %v, want ErrEmptyQuery", err)
	}
}

func TestRetrieveFailuresReturnError(t *testing.T) {
	r := mustRetriever(t, &fakeEmbedder{fail: true}, &fakeSearcher{}, 3)
	if _, err := r.Retrieve(context.Background(), "q"); err == nil {
		t.Fatal("expected embed error")
	}

	r = mustRetriever(t, &fakeEmbedder{}, &fakeSearcher{fail: true}, 3)
	if _, err := r.Retrieve(context.Background(), "q"); err == nil {
		t.Fatal("expected search error")
	}
}

func TestSourcesDeduplicatesInOrder(t *testing.T) {
	passages := []domain.RetrievedPassage{
		{Source: "b.txt"}, {Source: "a.txt"}, {Source: "b.txt"},
	}
	got := Sources(passages)
	if len(got) != 2 || got[0] != "b.txt" || got[1] != "a.txt" {
		t.Fatalf("Sources = %v", got)
	}
}

func TestSynthesizeAbstainsWithoutGroundingOrHistory(t *testing.T) {
	gen := &scriptedGenerator{}
	s := NewSynthesizer(gen, discard())

	res, err := s.Synthesize(context.Background(), "anything", nil, nil)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if res.Answer != domain.Abstention {
		t.Fatalf("answer = %q", res.Answer)
	}
	if len(res.Sources) != 0 {
		t.Fatalf("sources = %v", res.Sources)
	}
	if res.ToolUsed != domain.ToolVectorRetriever {
		t.Fatalf("tool = %q", res.ToolUsed)
	}
	if gen.calls != 0 {
		t.Fatalf("model called %d times, want 0", gen.calls)
	}
}

func TestSynthesizeGroundedAnswer(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{
		`{"answer":"Charles Darwin proposed natural selection.","sources":["Evolution.txt"],"tool_used":"vector retriever","rationale":"stated in passage 1"}`,
	}}
	s := NewSynthesizer(gen, discard())
	passages := []domain.RetrievedPassage{
		{Text: "Darwin proposed natural selection.", Source: "Evolution.txt", Rank: 1, Score: 0.9},
	}

	res, err := s.Synthesize(context.Background(), "who proposed natural selection?", nil, passages)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if res.Answer != "Charles Darwin proposed natural selection." {
		t.Fatalf("answer = %q", res.Answer)
	}
	if len(res.Sources) != 1 || res.Sources[0] != "Evolution.txt" {
		t.Fatalf("sources = %v", res.Sources)
	}
	if res.ToolUsed != domain.ToolVectorRetriever {
		t.Fatalf("tool = %q", res.ToolUsed)
	}
	if !strings.Contains(gen.prompts[0], "[1] (source: Evolution.txt") {
		t.Fatalf("prompt missing ranked passage:\n%s", gen.prompts[0])
	}
}

func TestSynthesizeFiltersFabricatedSources(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{
		`{"answer":"An answer.","sources":["Evolution.txt","Fabricated.txt"],"rationale":"r"}`,
	}}
	s := NewSynthesizer(gen, discard())
	passages := []domain.RetrievedPassage{{Text: "t", Source: "Evolution.txt", Rank: 1}}

	res, err := s.Synthesize(context.Background(), "q", nil, passages)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(res.Sources) != 1 || res.Sources[0] != "Evolution.txt" {
		t.Fatalf("sources = %v", res.Sources)
	}
}

func TestSynthesizeRetriesThenAbstains(t *testing.T) {
	// Both replies cite only sources that were never retrieved.
	gen := &scriptedGenerator{replies: []string{
		`{"answer":"Made up.","sources":["Nope.txt"]}`,
		`{"answer":"Still made up.","sources":["AlsoNope.txt"]}`,
	}}
	s := NewSynthesizer(gen, discard())
	passages := []domain.RetrievedPassage{{Text: "t", Source: "Real.txt", Rank: 1}}

	res, err := s.Synthesize(context.Background(), "q", nil, passages)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if gen.calls != 2 {
		t.Fatalf("calls = %d, want 2", gen.calls)
	}
	if res.Answer != domain.Abstention {
		t.Fatalf("answer = %q, want abstention", res.Answer)
	}
	if len(res.Sources) != 0 {
		t.Fatalf("sources = %v", res.Sources)
	}
}

func TestSynthesizeModelAbstentionClearsSources(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{
		fmt.Sprintf(`{"answer":%q,"sources":["Evolution.txt"],"rationale":"not covered"}`, domain.Abstention),
	}}
	s := NewSynthesizer(gen, discard())
	passages := []domain.RetrievedPassage{{Text: "t", Source: "Evolution.txt", Rank: 1}}

	res, err := s.Synthesize(context.Background(), "q", nil, passages)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if res.Answer != domain.Abstention {
		t.Fatalf("answer = %q", res.Answer)
	}
	if len(res.Sources) != 0 {
		t.Fatalf("abstention must carry no sources, got %v", res.Sources)
	}
	if res.Rationale != "not covered" {
		t.Fatalf("rationale = %q", res.Rationale)
	}
}

func TestSynthesizeHistoryOnly(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{
		`{"answer":"You said your name is Ada.","sources":[],"rationale":"from the conversation"}`,
	}}
	s := NewSynthesizer(gen, discard())
	history := domain.ChatHistory{
		{Role: "user", Content: "My name is Ada."},
		{Role: "assistant", Content: "Nice to meet you, Ada."},
	}

	res, err := s.Synthesize(context.Background(), "what is my name?", history, nil)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if res.ToolUsed != domain.ToolChatHistory {
		t.Fatalf("tool = %q, want chat history only", res.ToolUsed)
	}
	if res.Answer != "You said your name is Ada." {
		t.Fatalf("answer = %q", res.Answer)
	}
	if len(res.Sources) != 0 {
		t.Fatalf("history answers cite no sources, got %v", res.Sources)
	}
	if !strings.Contains(gen.prompts[0], "user: My name is Ada.") {
		t.Fatalf("prompt missing history:\n%s", gen.prompts[0])
	}
}

func TestSynthesizeGenerationErrorIsTerminal(t *testing.T) {
	gen := &scriptedGenerator{err: errors.New("model down")}
	s := NewSynthesizer(gen, discard())
	passages := []domain.RetrievedPassage{{Text: "t", Source: "a.txt", Rank: 1}}

	_, err := s.Synthesize(context.Background(), "q", nil, passages)
	if !errors.Is(err, domain.ErrGeneration) {
		t.Fatalf("err = %v, want ErrGeneration", err)
	}
}

func TestSynthesizeToleratesWrappedJSON(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{
		"Here you go:\n```json\n{\"answer\":\"A.\",\"sources\":[\"a.txt\"]}\n```",
	}}
	s := NewSynthesizer(gen, discard())
	passages := []domain.RetrievedPassage{{Text: "t", Source: "a.txt", Rank: 1}}

	res, err := s.Synthesize(context.Background(), "q", nil, passages)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if res.Answer != "A." {
		t.Fatalf("answer = %q", res.Answer)
	}
}

func TestExtractJSON(t *testing.T) {
	if got := extractJSON(`prefix {"a":1} suffix`); got != `{"a":1}` {
		t.Fatalf("extractJSON = %q", got)
	}
	if got := extractJSON("no json here"); got != "no json here" {
		t.Fatalf("extractJSON = %q", got)
	}
}
