// Package ollama talks to an Ollama server over its HTTP API. It covers the
// two endpoints this project needs: embeddings and non-streaming chat.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/docsage-ai/docsage/pkg/fn"
	"github.com/docsage-ai/docsage/pkg/resilience"
)

// EmbedClient produces embedding vectors via Ollama's /api/embeddings endpoint.
// Calls go through a rate limiter and circuit breaker, with retries on
// transient failures.
type EmbedClient struct {
	baseURL string
	model   string
	client  *http.Client
	limiter *resilience.Limiter
	breaker *resilience.Breaker
	retry   fn.RetryOpts
}

// NewEmbedClient creates an Ollama embedding client.
func NewEmbedClient(baseURL, model string) *EmbedClient {
	return &EmbedClient{
		baseURL: baseURL,
		model:   model,
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   60 * time.Second,
		},
		limiter: resilience.NewLimiter(resilience.LimiterOpts{Rate: 20, Burst: 40}),
		breaker: resilience.NewBreaker(resilience.DefaultBreakerOpts),
		retry:   fn.DefaultRetry(),
	}
}

type embedReq struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResp struct {
	Embedding []float64 `json:"embedding"`
}

func (c *EmbedClient) embedOnce(ctx context.Context, text string) ([]float32, error) {
	body, _ := json.Marshal(embedReq{Model: c.model, Prompt: text})
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("ollama embed: status %d", resp.StatusCode)
	}

	var result embedResp
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("ollama embed decode: %w", err)
	}

	out := make([]float32, len(result.Embedding))
	for i, v := range result.Embedding {
		out[i] = float32(v)
	}
	return out, nil
}

// Embed returns the embedding vector for a single text.
func (c *EmbedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	return fn.Retry(ctx, c.retry, func(ctx context.Context) ([]float32, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		var vec []float32
		err := c.breaker.Call(ctx, func(ctx context.Context) error {
			var err error
			vec, err = c.embedOnce(ctx, text)
			return err
		})
		return vec, err
	})
}

// EmbedBatch embeds each text in order. Output index i corresponds to
// texts[i]. The first failure aborts the batch.
func (c *EmbedClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := c.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed batch [%d]: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}
