package store

import (
	"context"
	"testing"

	"github.com/dgallion1/docrecon/internal/chunkset"
)

func TestMemory_LoadMissing(t *testing.T) {
	m := NewMemory()
	set, err := m.Load(context.Background(), "nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if set != nil {
		t.Errorf("expected nil for missing document, got %+v", set)
	}
}

func TestMemory_SaveLoadRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	in := &chunkset.ChunkSet{
		DocID:       "doc1",
		ContentHash: "h1",
		Revision:    3,
		Chunks:      []chunkset.Chunk{{ID: "c1", Text: "one"}},
	}
	if err := m.Save(ctx, in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out, err := m.Load(ctx, "doc1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Revision != 3 || out.ContentHash != "h1" || len(out.Chunks) != 1 {
		t.Errorf("unexpected loaded set %+v", out)
	}

	// Mutating the loaded copy must not touch committed state.
	out.Chunks[0].Text = "mutated"
	again, _ := m.Load(ctx, "doc1")
	if again.Chunks[0].Text != "one" {
		t.Errorf("committed state leaked: %q", again.Chunks[0].Text)
	}
}

func TestMemory_Docs(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	m.Save(ctx, &chunkset.ChunkSet{DocID: "a"})
	m.Save(ctx, &chunkset.ChunkSet{DocID: "b"})
	ids := m.Docs()
	if len(ids) != 2 {
		t.Errorf("expected 2 docs, got %v", ids)
	}
}
