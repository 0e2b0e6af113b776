package rag

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/docsage-ai/docsage/engine/domain"
	"github.com/docsage-ai/docsage/engine/semantic"
)

func newService(t *testing.T, searcher Searcher, gen Generator) *Service {
	t.Helper()
	r := mustRetriever(t, &fakeEmbedder{}, searcher, 3)
	return NewService(r, NewSynthesizer(gen, discard()), time.Minute, discard())
}

func TestAnswerGroundedInCorpus(t *testing.T) {
	searcher := &fakeSearcher{hits: []semantic.SearchResult{
		hit("Darwin proposed the theory of natural selection in 1859.", "Evolution.txt", "evolution.txt", 0.93),
	}}
	gen := &scriptedGenerator{replies: []string{
		`{"answer":"Darwin proposed it in 1859.","sources":["Evolution.txt"],"tool_used":"vector retriever","rationale":"directly stated"}`,
	}}
	svc := newService(t, searcher, gen)

	res, err := svc.Answer(context.Background(), "who proposed natural selection?", nil)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if res.Answer != "Darwin proposed it in 1859." {
		t.Fatalf("answer = %q", res.Answer)
	}
	if len(res.Sources) != 1 || res.Sources[0] != "Evolution.txt" {
		t.Fatalf("sources = %v", res.Sources)
	}
	if res.ToolUsed != domain.ToolVectorRetriever {
		t.Fatalf("tool = %q", res.ToolUsed)
	}
}

func TestAnswerEmptyIndexAbstains(t *testing.T) {
	gen := &scriptedGenerator{}
	svc := newService(t, &fakeSearcher{}, gen)

	res, err := svc.Answer(context.Background(), "what is the airspeed of an unladen swallow?", nil)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if res.Answer != domain.Abstention {
		t.Fatalf("answer = %q, want exact abstention", res.Answer)
	}
	if len(res.Sources) != 0 {
		t.Fatalf("sources = %v", res.Sources)
	}
	if gen.calls != 0 {
		t.Fatalf("model called %d times, want 0", gen.calls)
	}
}

func TestAnswerRetrievalFailureFallsBackToHistory(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{
		`{"answer":"You asked about swallows.","sources":[],"rationale":"from history"}`,
	}}
	svc := newService(t, &fakeSearcher{fail: true}, gen)
	history := domain.ChatHistory{{Role: "user", Content: "Tell me about swallows."}}

	res, err := svc.Answer(context.Background(), "what did I ask about?", history)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if res.ToolUsed != domain.ToolChatHistory {
		t.Fatalf("tool = %q", res.ToolUsed)
	}
}

func TestAnswerRetrievalFailureNoHistoryAbstains(t *testing.T) {
	svc := newService(t, &fakeSearcher{fail: true}, &scriptedGenerator{})

	res, err := svc.Answer(context.Background(), "anything", nil)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if res.Answer != domain.Abstention {
		t.Fatalf("answer = %q", res.Answer)
	}
}

func TestAnswerValidatesInput(t *testing.T) {
	svc := newService(t, &fakeSearcher{}, &scriptedGenerator{})

	if _, err := svc.Answer(context.Background(), "", nil); !errors.Is(err, domain.ErrEmptyQuery) {
		t.Fatalf("err = %v, want ErrEmptyQuery", err)
	}

	bad := domain.ChatHistory{{Role: "", Content: "x"}}
	if _, err := svc.Answer(context.Background(), "q", bad); err == nil {
		t.Fatal("expected history validation error")
	}
}

func TestAnswerGenerationFailureIsError(t *testing.T) {
	searcher := &fakeSearcher{hits: []semantic.SearchResult{
		hit("text", "a.txt", "a", 0.5),
	}}
	svc := newService(t, searcher, &scriptedGenerator{err: errors.New("model down")})

	_, err := svc.Answer(context.Background(), "q", nil)
	if !errors.Is(err, domain.ErrGeneration) {
		t.Fatalf("err = %v, want ErrGeneration", err)
	}
}

func TestSplitHistory(t *testing.T) {
	turns := domain.ChatHistory{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi"},
		{Role: "user", Content: "what is my name?"},
	}
	query, history, ok := SplitHistory(turns)
	if !ok {
		t.Fatal("expected ok")
	}
	if query != "what is my name?" {
		t.Fatalf("query = %q", query)
	}
	if len(history) != 2 || history[1].Role != "assistant" {
		t.Fatalf("history = %+v", history)
	}
}

func TestSplitHistoryNoUserTurn(t *testing.T) {
	turns := domain.ChatHistory{{Role: "assistant", Content: "hi"}}
	if _, _, ok := SplitHistory(turns); ok {
		t.Fatal("expected ok=false without a user turn")
	}
}
