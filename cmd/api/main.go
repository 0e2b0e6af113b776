// Package main implements the DocSage answering API server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/docsage-ai/docsage/engine/catalog"
	"github.com/docsage-ai/docsage/engine/rag"
	"github.com/docsage-ai/docsage/engine/semantic"
	"github.com/docsage-ai/docsage/pkg/metrics"
	"github.com/docsage-ai/docsage/pkg/mid"
	"github.com/docsage-ai/docsage/pkg/ollama"
)

// Config holds all environment-based configuration.
type Config struct {
	Port           string
	OllamaURL      string
	EmbedModel     string
	ChatModel      string
	Temperature    float64
	QdrantURL      string
	Collection     string
	TopK           int
	RequestTimeout time.Duration
	Neo4jURL       string
	Neo4jUser      string
	Neo4jPass      string
	CORSOrigin     string
}

func loadConfig() Config {
	return Config{
		Port:           envOr("PORT", "8080"),
		OllamaURL:      envOr("OLLAMA_URL", "http://localhost:11434"),
		EmbedModel:     envOr("EMBED_MODEL", "nomic-embed-text"),
		ChatModel:      envOr("CHAT_MODEL", "llama3"),
		Temperature:    envFloat("TEMPERATURE", 0.0),
		QdrantURL:      envOr("QDRANT_URL", "localhost:6334"),
		Collection:     envOr("QDRANT_COLLECTION", "docsage"),
		TopK:           envInt("TOP_K", rag.DefaultTopK),
		RequestTimeout: envDuration("REQUEST_TIMEOUT", rag.DefaultTimeout),
		Neo4jURL:       os.Getenv("NEO4J_URL"),
		Neo4jUser:      envOr("NEO4J_USER", "neo4j"),
		Neo4jPass:      os.Getenv("NEO4J_PASS"),
		CORSOrigin:     envOr("CORS_ORIGIN", "*"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	vectorStore, err := semantic.New(cfg.QdrantURL, cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer vectorStore.Close()

	embedder := ollama.NewEmbedClient(cfg.OllamaURL, cfg.EmbedModel)
	generator := ollama.NewChatClient(cfg.OllamaURL, cfg.ChatModel, cfg.Temperature)

	retriever, err := rag.NewRetriever(embedder, vectorStore, cfg.TopK, logger)
	if err != nil {
		return fmt.Errorf("retriever: %w", err)
	}
	synthesizer := rag.NewSynthesizer(generator, logger)
	svc := rag.NewService(retriever, synthesizer, cfg.RequestTimeout, logger)

	var docCatalog *catalog.Catalog
	if cfg.Neo4jURL != "" {
		driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
		if err != nil {
			return fmt.Errorf("neo4j driver: %w", err)
		}
		defer driver.Close(ctx)
		docCatalog = catalog.New(driver)
	}

	reg := metrics.New()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("POST /api/answer", handleAnswer(svc, logger))
	if docCatalog != nil {
		mux.HandleFunc("GET /api/documents", handleDocuments(docCatalog, logger))
	}
	mux.Handle("GET /metrics", reg.Handler())

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.OTel("docsage-api"),
		mid.Metrics(reg),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * cfg.RequestTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}
