package diff

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/dgallion1/docrecon/internal/chunkset"
	"github.com/dgallion1/docrecon/internal/detect"
	"github.com/dgallion1/docrecon/internal/geom"
	"github.com/dgallion1/docrecon/internal/store"
)

func chunk(id, text string, y0 float64) chunkset.Chunk {
	return chunkset.Chunk{
		ID:         id,
		Page:       0,
		BBox:       geom.BBox{X0: 0, Y0: y0, X1: 100, Y1: y0 + 20},
		Type:       detect.TypeParagraph,
		Text:       text,
		Confidence: 1.0,
		Revision:   1,
	}
}

func opKinds(ops []chunkset.Op) map[chunkset.OpKind][]string {
	m := make(map[chunkset.OpKind][]string)
	for _, op := range ops {
		m[op.Kind] = append(m[op.Kind], op.ChunkID)
	}
	return m
}

func TestApply_FirstParseAddsEverything(t *testing.T) {
	e := NewEngine(store.NewMemory())
	ctx := context.Background()

	set, ops, err := e.Apply(ctx, "doc1", "h1", []chunkset.Chunk{
		chunk("c1", "one", 0),
		chunk("c2", "two", 30),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if set.Revision != 1 {
		t.Errorf("expected revision 1, got %d", set.Revision)
	}
	if len(ops) != 2 {
		t.Fatalf("expected 2 ops, got %d", len(ops))
	}
	for _, op := range ops {
		if op.Kind != chunkset.OpAdded {
			t.Errorf("expected added op, got %s", op.Kind)
		}
		if op.Chunk == nil {
			t.Error("added op must carry the chunk payload")
		}
	}
}

func TestApply_UnchangedHashIsNoOp(t *testing.T) {
	e := NewEngine(store.NewMemory())
	ctx := context.Background()
	chunks := []chunkset.Chunk{chunk("c1", "one", 0)}

	if _, _, err := e.Apply(ctx, "doc1", "h1", chunks); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	set, ops, err := e.Apply(ctx, "doc1", "h1", chunks)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ops) != 0 {
		t.Errorf("expected no ops on identical content, got %d", len(ops))
	}
	if set.Revision != 1 {
		t.Errorf("expected revision unchanged at 1, got %d", set.Revision)
	}
}

func TestApply_DiffsByChunkID(t *testing.T) {
	e := NewEngine(store.NewMemory())
	ctx := context.Background()

	_, _, err := e.Apply(ctx, "doc1", "h1", []chunkset.Chunk{
		chunk("c1", "one", 0),
		chunk("c2", "two", 30),
		chunk("c3", "three", 60),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	set, ops, err := e.Apply(ctx, "doc1", "h2", []chunkset.Chunk{
		chunk("c1", "one", 0),
		chunk("c2", "two edited", 30),
		chunk("c4", "four", 60),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if set.Revision != 2 {
		t.Errorf("expected set revision 2, got %d", set.Revision)
	}

	kinds := opKinds(ops)
	if got := kinds[chunkset.OpAdded]; len(got) != 1 || got[0] != "c4" {
		t.Errorf("expected c4 added, got %v", got)
	}
	if got := kinds[chunkset.OpUpdated]; len(got) != 1 || got[0] != "c2" {
		t.Errorf("expected c2 updated, got %v", got)
	}
	if got := kinds[chunkset.OpRemoved]; len(got) != 1 || got[0] != "c3" {
		t.Errorf("expected c3 removed, got %v", got)
	}
	for _, op := range ops {
		if op.Kind == chunkset.OpRemoved && op.Chunk != nil {
			t.Error("removed op must be a tombstone with no payload")
		}
	}

	byID := set.ByID()
	if byID["c1"].Revision != 1 {
		t.Errorf("unchanged chunk must keep revision 1, got %d", byID["c1"].Revision)
	}
	if byID["c2"].Revision != 2 {
		t.Errorf("updated chunk must bump to revision 2, got %d", byID["c2"].Revision)
	}
}

type failingSaveStore struct {
	inner *store.Memory
	mu    sync.Mutex
	fail  bool
}

func (s *failingSaveStore) Load(ctx context.Context, docID string) (*chunkset.ChunkSet, error) {
	return s.inner.Load(ctx, docID)
}

func (s *failingSaveStore) Save(ctx context.Context, set *chunkset.ChunkSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("disk full")
	}
	return s.inner.Save(ctx, set)
}

func (s *failingSaveStore) setFail(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = v
}

func TestApply_SaveFailureLeavesPriorIntact(t *testing.T) {
	fs := &failingSaveStore{inner: store.NewMemory()}
	e := NewEngine(fs)
	ctx := context.Background()

	if _, _, err := e.Apply(ctx, "doc1", "h1", []chunkset.Chunk{chunk("c1", "one", 0)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fs.setFail(true)
	_, _, err := e.Apply(ctx, "doc1", "h2", []chunkset.Chunk{chunk("c1", "one edited", 0)})
	if err == nil {
		t.Fatal("expected commit failure")
	}

	cur, err := e.Current(ctx, "doc1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cur == nil || cur.Revision != 1 || cur.ContentHash != "h1" {
		t.Errorf("expected prior set to survive a failed commit, got %+v", cur)
	}
	if cur.Chunks[0].Text != "one" {
		t.Errorf("expected prior chunk content, got %q", cur.Chunks[0].Text)
	}
}

func TestApply_ConcurrentParsesAreSerialized(t *testing.T) {
	e := NewEngine(store.NewMemory())
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			hash := fmt.Sprintf("h%d", i)
			if _, _, err := e.Apply(ctx, "doc1", hash, []chunkset.Chunk{chunk("c1", "one", 0)}); err != nil {
				t.Errorf("apply %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	cur, err := e.Current(ctx, "doc1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cur.Revision != n {
		t.Errorf("expected %d totally ordered revisions, got %d", n, cur.Revision)
	}
}

func TestCurrent_UnparsedDocument(t *testing.T) {
	e := NewEngine(store.NewMemory())
	cur, err := e.Current(context.Background(), "never-seen")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cur != nil {
		t.Errorf("expected nil set for unparsed document, got %+v", cur)
	}
}
