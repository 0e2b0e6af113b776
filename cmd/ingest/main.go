// Command ingest builds the vector index from a directory of documents and
// optionally stays running as a NATS streaming consumer.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/docsage-ai/docsage/engine/catalog"
	"github.com/docsage-ai/docsage/engine/chunk"
	"github.com/docsage-ai/docsage/engine/ingest"
	"github.com/docsage-ai/docsage/engine/semantic"
	"github.com/docsage-ai/docsage/pkg/metrics"
	"github.com/docsage-ai/docsage/pkg/ollama"
)

var met = metrics.New()

var (
	mDocsIngested  = met.Counter("docsage_ingest_docs_total", "Documents ingested")
	mDocsUnchanged = met.Counter("docsage_ingest_docs_unchanged_total", "Documents skipped by content-hash dedup")
	mFilesSkipped  = met.Counter("docsage_ingest_files_skipped_total", "Files skipped as unreadable or unsupported")
	mChunksIndexed = met.Counter("docsage_ingest_chunks_total", "Chunks indexed")
	mRunDuration   = met.Histogram("docsage_ingest_run_duration_seconds", "Batch run time", nil)
)

func main() {
	var (
		docsDir      = flag.String("docs", "./docs", "directory of documents to ingest")
		qdrantAddr   = flag.String("qdrant", "localhost:6334", "Qdrant gRPC address")
		collection   = flag.String("collection", "docsage", "Qdrant collection name")
		ollamaURL    = flag.String("ollama", "http://localhost:11434", "Ollama base URL")
		embedModel   = flag.String("embed-model", "nomic-embed-text", "Ollama embedding model")
		dims         = flag.Int("dims", 768, "embedding dimensionality")
		chunkSize    = flag.Int("chunk-size", chunk.DefaultSize, "chunk size in runes")
		chunkOverlap = flag.Int("chunk-overlap", chunk.DefaultOverlap, "chunk overlap in runes")
		workers      = flag.Int("workers", ingest.DefaultWorkers, "concurrent embedding workers")
		neo4jURL     = flag.String("neo4j", "", "Neo4j bolt URL (empty disables the document catalog)")
		neo4jUser    = flag.String("neo4j-user", "neo4j", "Neo4j username")
		neo4jPass    = flag.String("neo4j-pass", "", "Neo4j password")
		natsURL      = flag.String("nats", "", "NATS URL (empty disables the streaming consumer)")
		metricsPort  = flag.Int("metrics-port", 9091, "Prometheus metrics port")
	)
	flag.Parse()

	log := slog.Default()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	met.ServeAsync(*metricsPort)

	chunker, err := chunk.New(*chunkSize, *chunkOverlap)
	if err != nil {
		log.Error("invalid chunking configuration", "error", err)
		os.Exit(1)
	}

	vs, err := semantic.New(*qdrantAddr, *collection)
	if err != nil {
		log.Error("qdrant connect failed", "error", err)
		os.Exit(1)
	}
	defer vs.Close()
	if err := vs.EnsureCollection(ctx, *dims); err != nil {
		log.Error("qdrant ensure collection failed", "error", err)
		os.Exit(1)
	}
	log.Info("connected to Qdrant", "collection", *collection, "dims", *dims)

	var ledger ingest.Ledger
	if *neo4jURL != "" {
		driver, err := neo4j.NewDriverWithContext(*neo4jURL, neo4j.BasicAuth(*neo4jUser, *neo4jPass, ""))
		if err != nil {
			log.Error("neo4j connect failed", "error", err)
			os.Exit(1)
		}
		defer driver.Close(ctx)
		if err := driver.VerifyConnectivity(ctx); err != nil {
			log.Error("neo4j verify failed", "error", err)
			os.Exit(1)
		}
		ledger = catalog.New(driver)
		log.Info("connected to Neo4j document catalog")
	}

	embedder := ollama.NewEmbedClient(*ollamaURL, *embedModel)
	log.Info("using Ollama embeddings", "model", *embedModel)

	runner := ingest.NewRunner(embedder, vs, ledger, chunker, *workers, log)

	rep, err := runner.Run(ctx, *docsDir)
	mRunDuration.Observe(rep.Duration.Seconds())
	mDocsIngested.Add(int64(rep.Documents - rep.DocsUnchanged))
	mDocsUnchanged.Add(int64(rep.DocsUnchanged))
	mFilesSkipped.Add(int64(rep.FilesSkipped))
	mChunksIndexed.Add(int64(rep.ChunksIndexed))
	if err != nil {
		log.Error("ingestion failed", "status", rep.Status.String(), "error", err)
		os.Exit(1)
	}
	log.Info("ingestion finished",
		"documents", rep.Documents,
		"unchanged", rep.DocsUnchanged,
		"skipped", rep.FilesSkipped,
		"chunks", rep.ChunksIndexed,
		"duration", rep.Duration,
	)

	if *natsURL == "" {
		return
	}

	nc, err := nats.Connect(*natsURL)
	if err != nil {
		log.Error("nats connect failed", "error", err)
		os.Exit(1)
	}
	defer nc.Drain()

	sub, err := runner.StartConsumer(nc)
	if err != nil {
		log.Error("nats subscribe failed", "error", err)
		os.Exit(1)
	}
	defer sub.Unsubscribe()

	log.Info("streaming consumer running", "subject", ingest.IngestSubject)
	<-ctx.Done()
	log.Info("shutting down")
}
