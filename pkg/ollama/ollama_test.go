package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestEmbedDecodesVector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req embedReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "nomic-embed-text" {
			t.Errorf("model = %q", req.Model)
		}
		json.NewEncoder(w).Encode(embedResp{Embedding: []float64{0.1, 0.2, 0.3}})
	}))
	defer srv.Close()

	c := NewEmbedClient(srv.URL, "nomic-embed-text")
	vec, err := c.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 || vec[0] != float32(0.1) {
		t.Fatalf("vec = %v", vec)
	}
}

func TestEmbedRetriesTransientFailure(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(embedResp{Embedding: []float64{1}})
	}))
	defer srv.Close()

	c := NewEmbedClient(srv.URL, "m")
	vec, err := c.Embed(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 1 {
		t.Fatalf("vec = %v", vec)
	}
	if atomic.LoadInt64(&calls) != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestEmbedBatchPreservesOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedReq
		json.NewDecoder(r.Body).Decode(&req)
		val := float64(len(req.Prompt))
		json.NewEncoder(w).Encode(embedResp{Embedding: []float64{val}})
	}))
	defer srv.Close()

	c := NewEmbedClient(srv.URL, "m")
	vecs, err := c.EmbedBatch(context.Background(), []string{"a", "bb", "ccc"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("len = %d", len(vecs))
	}
	for i, want := range []float32{1, 2, 3} {
		if vecs[i][0] != want {
			t.Fatalf("vecs[%d] = %v, want [%v]", i, vecs[i], want)
		}
	}
}

func TestEmbedBatchAbortsOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedReq
		json.NewDecoder(r.Body).Decode(&req)
		if req.Prompt == "bad" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(embedResp{Embedding: []float64{1}})
	}))
	defer srv.Close()

	c := NewEmbedClient(srv.URL, "m")
	c.retry.MaxAttempts = 1
	if _, err := c.EmbedBatch(context.Background(), []string{"ok", "bad"}); err == nil {
		t.Fatal("expected error from failing batch item")
	}
}

func TestGenerateSendsMessagesAndOptions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req chatReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Stream {
			t.Error("stream should be false")
		}
		if req.Format != "json" {
			t.Errorf("format = %q", req.Format)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Role != "user" {
			t.Errorf("messages = %+v", req.Messages)
		}
		if temp, ok := req.Options["temperature"].(float64); !ok || temp != 0.1 {
			t.Errorf("temperature = %v", req.Options["temperature"])
		}
		json.NewEncoder(w).Encode(chatResp{Message: chatMessage{Role: "assistant", Content: `{"answer":"hi"}`}})
	}))
	defer srv.Close()

	c := NewChatClient(srv.URL, "llama3", 0.1)
	reply, err := c.Generate(context.Background(), "sys", "usr")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if reply != `{"answer":"hi"}` {
		t.Fatalf("reply = %q", reply)
	}
}

func TestGenerateStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewChatClient(srv.URL, "llama3", 0)
	if _, err := c.Generate(context.Background(), "sys", "usr"); err == nil {
		t.Fatal("expected error on non-200 status")
	}
}
