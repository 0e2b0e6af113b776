// Package catalog keeps the ingestion ledger in Neo4j: one node per ingested
// document, recording its content hash, chunk count, and ingestion time.
// The ledger lets re-ingestion skip unchanged documents and answers "what is
// in the corpus" without touching the vector index.
package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// Entry describes one ingested document.
type Entry struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"` // source file name
	Path        string    `json:"path"`
	ContentHash string    `json:"content_hash"`
	Chunks      int       `json:"chunks"`
	IngestedAt  time.Time `json:"ingested_at"`
}

// Catalog provides document ledger operations backed by Neo4j.
type Catalog struct {
	driver neo4j.DriverWithContext
}

// New creates a Catalog on top of an established driver.
func New(driver neo4j.DriverWithContext) *Catalog {
	return &Catalog{driver: driver}
}

// Hash returns the content hash recorded with every document entry.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Seen reports whether the document is already recorded with the same
// content hash, meaning its index entries are current.
func (c *Catalog) Seen(ctx context.Context, docID, contentHash string) (bool, error) {
	sess := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer sess.Close(ctx)

	result, err := sess.Run(ctx,
		`MATCH (d:Document {id: $id}) RETURN d.content_hash AS hash`,
		map[string]any{"id": docID})
	if err != nil {
		return false, fmt.Errorf("catalog: lookup %s: %w", docID, err)
	}
	if result.Next(ctx) {
		hash, _ := result.Record().Get("hash")
		s, _ := hash.(string)
		return s == contentHash, nil
	}
	return false, result.Err()
}

// Record creates or updates the document's ledger entry. MERGE keeps the
// write idempotent per document ID.
func (c *Catalog) Record(ctx context.Context, e Entry) error {
	sess := c.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	_, err := sess.Run(ctx,
		`MERGE (d:Document {id: $id}) SET d += $props`,
		map[string]any{"id": e.ID, "props": entryToMap(e)})
	if err != nil {
		return fmt.Errorf("catalog: record %s: %w", e.ID, err)
	}
	return nil
}

// Delete removes a document's ledger entry.
func (c *Catalog) Delete(ctx context.Context, docID string) error {
	sess := c.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	_, err := sess.Run(ctx,
		`MATCH (d:Document {id: $id}) DELETE d`,
		map[string]any{"id": docID})
	if err != nil {
		return fmt.Errorf("catalog: delete %s: %w", docID, err)
	}
	return nil
}

// List returns all ledger entries ordered by document ID.
func (c *Catalog) List(ctx context.Context) ([]Entry, error) {
	sess := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer sess.Close(ctx)

	result, err := sess.Run(ctx,
		`MATCH (d:Document) RETURN d ORDER BY d.id`, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: list: %w", err)
	}

	var entries []Entry
	for result.Next(ctx) {
		node, _, err := neo4j.GetRecordValue[dbtype.Node](result.Record(), "d")
		if err != nil {
			return nil, fmt.Errorf("catalog: read node: %w", err)
		}
		entries = append(entries, entryFromProps(node.Props))
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("catalog: list: %w", err)
	}
	return entries, nil
}

// entryToMap flattens an Entry into node properties.
func entryToMap(e Entry) map[string]any {
	return map[string]any{
		"id":           e.ID,
		"name":         e.Name,
		"path":         e.Path,
		"content_hash": e.ContentHash,
		"chunks":       int64(e.Chunks),
		"ingested_at":  e.IngestedAt.UTC().Format(time.RFC3339),
	}
}

// entryFromProps rebuilds an Entry from node properties.
func entryFromProps(props map[string]any) Entry {
	e := Entry{
		ID:          strProp(props, "id"),
		Name:        strProp(props, "name"),
		Path:        strProp(props, "path"),
		ContentHash: strProp(props, "content_hash"),
	}
	if n, ok := props["chunks"].(int64); ok {
		e.Chunks = int(n)
	}
	if ts, ok := props["ingested_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			e.IngestedAt = t
		}
	}
	return e
}

func strProp(props map[string]any, key string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}
