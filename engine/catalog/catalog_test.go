package catalog

import (
	"testing"
	"time"
)

func TestHash_DeterministicAndDistinct(t *testing.T) {
	a := Hash("evolution is the process")
	b := Hash("evolution is the process")
	c := Hash("something else entirely")
	if a != b {
		t.Error("same content must hash identically")
	}
	if a == c {
		t.Error("different content must hash differently")
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
}

func TestEntryRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	in := Entry{
		ID:          "notes/Evolution.txt",
		Name:        "Evolution.txt",
		Path:        "/corpus/notes/Evolution.txt",
		ContentHash: Hash("text"),
		Chunks:      7,
		IngestedAt:  at,
	}
	out := entryFromProps(entryToMap(in))
	if out.ID != in.ID || out.Name != in.Name || out.Path != in.Path {
		t.Errorf("identity fields lost: %+v", out)
	}
	if out.ContentHash != in.ContentHash {
		t.Error("content hash lost")
	}
	if out.Chunks != in.Chunks {
		t.Errorf("chunk count lost: %d", out.Chunks)
	}
	if !out.IngestedAt.Equal(at) {
		t.Errorf("timestamp lost: %v", out.IngestedAt)
	}
}

func TestEntryFromProps_Partial(t *testing.T) {
	e := entryFromProps(map[string]any{"id": "x"})
	if e.ID != "x" || e.Chunks != 0 || !e.IngestedAt.IsZero() {
		t.Errorf("unexpected entry from partial props: %+v", e)
	}
}
