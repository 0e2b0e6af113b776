package ingest

import (
	"context"
	"strconv"

	"github.com/nats-io/nats.go"

	"github.com/docsage-ai/docsage/engine/domain"
	"github.com/docsage-ai/docsage/pkg/natsutil"
)

const (
	// IngestSubject carries documents for streaming ingestion.
	IngestSubject = "docsage.ingest"
	// DLQSubject receives messages that failed MaxRetries times.
	DLQSubject = "docsage.ingest.dlq"
	// MaxRetries before a document goes to the DLQ.
	MaxRetries = 3

	retryHeader = "X-Retry-Count"
)

// dlqMessage is published to the DLQ on repeated failure.
type dlqMessage struct {
	Doc     domain.Document `json:"doc"`
	Error   string          `json:"error"`
	Retries int             `json:"retries"`
}

// StartConsumer subscribes to IngestSubject and runs each document through
// chunk → embed → index. Failures are re-published with an incremented retry
// header; after MaxRetries the document lands on the DLQ.
func (r *Runner) StartConsumer(nc *nats.Conn) (*nats.Subscription, error) {
	return natsutil.SubscribeMsg(nc, IngestSubject, func(ctx context.Context, doc domain.Document, msg *nats.Msg) {
		if doc.ID == "" || doc.Text == "" {
			r.log.Warn("dropping document without id or text")
			return
		}

		err := r.IngestOne(ctx, doc)
		if err == nil {
			r.log.Info("document ingested", "doc_id", doc.ID)
			return
		}

		retries := 0
		if msg.Header != nil {
			retries, _ = strconv.Atoi(msg.Header.Get(retryHeader))
		}
		retries++
		r.log.Error("streaming ingest failed", "doc_id", doc.ID, "error", err, "retry", retries)

		if retries >= MaxRetries {
			dlq := dlqMessage{Doc: doc, Error: err.Error(), Retries: retries}
			if pubErr := natsutil.Publish(ctx, nc, DLQSubject, dlq); pubErr != nil {
				r.log.Error("DLQ publish failed", "doc_id", doc.ID, "error", pubErr)
			}
			return
		}

		hdr := nats.Header{}
		hdr.Set(retryHeader, strconv.Itoa(retries))
		if pubErr := natsutil.PublishWithHeaders(ctx, nc, IngestSubject, doc, hdr); pubErr != nil {
			r.log.Error("retry publish failed", "doc_id", doc.ID, "error", pubErr)
		}
	})
}

// IngestOne runs a single document through the pipeline. The ledger, when
// present, short-circuits unchanged content.
func (r *Runner) IngestOne(ctx context.Context, doc domain.Document) error {
	docs, unchanged := r.filterSeen(ctx, []domain.Document{doc})
	if unchanged == 1 || len(docs) == 0 {
		r.log.Info("document unchanged, skipping", "doc_id", doc.ID)
		return nil
	}

	chunks := r.chunker.Split(doc)
	if len(chunks) == 0 {
		return nil
	}
	cd := ChunkedDoc{Doc: doc, Chunks: chunks}

	ed, err := r.embed(ctx, cd).Unwrap()
	if err != nil {
		return err
	}
	return r.indexDoc(ctx, ed)
}
