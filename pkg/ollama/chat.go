package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/docsage-ai/docsage/pkg/resilience"
)

// ChatClient calls Ollama's /api/chat endpoint without streaming. Responses
// are requested in JSON format so the caller can parse structured output.
type ChatClient struct {
	baseURL     string
	model       string
	temperature float64
	client      *http.Client
	breaker     *resilience.Breaker
}

// NewChatClient creates an Ollama chat client.
func NewChatClient(baseURL, model string, temperature float64) *ChatClient {
	return &ChatClient{
		baseURL:     baseURL,
		model:       model,
		temperature: temperature,
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   120 * time.Second,
		},
		breaker: resilience.NewBreaker(resilience.DefaultBreakerOpts),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatReq struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Format   string         `json:"format,omitempty"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResp struct {
	Message chatMessage `json:"message"`
}

// Generate sends a system + user prompt pair and returns the model's reply.
func (c *ChatClient) Generate(ctx context.Context, system, prompt string) (string, error) {
	payload := chatReq{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Format:  "json",
		Stream:  false,
		Options: map[string]any{"temperature": c.temperature},
	}
	body, _ := json.Marshal(payload)

	var reply string
	err := c.breaker.Call(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/chat", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("ollama chat: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != 200 {
			return fmt.Errorf("ollama chat: status %d", resp.StatusCode)
		}

		var result chatResp
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return fmt.Errorf("ollama chat decode: %w", err)
		}
		reply = result.Message.Content
		return nil
	})
	return reply, err
}
