// Package diff turns a fresh parse into incremental add/update/remove
// operations against the previously committed chunk set, so downstream
// indexes never see a full replace.
package diff

import (
	"context"
	"fmt"
	"sync"

	"github.com/dgallion1/docrecon/internal/chunkset"
)

// Store persists committed chunk sets. Load returns (nil, nil) for a
// document that has never been committed.
type Store interface {
	Load(ctx context.Context, docID string) (*chunkset.ChunkSet, error)
	Save(ctx context.Context, set *chunkset.ChunkSet) error
}

// Engine is the revision state machine. A document is either unparsed
// (no stored set) or parsed at revision N; Apply moves it forward under
// a per-document lock, so revisions are totally ordered even when the
// same document is ingested concurrently.
type Engine struct {
	store Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewEngine creates a diff engine over the given store.
func NewEngine(store Store) *Engine {
	return &Engine{
		store: store,
		locks: make(map[string]*sync.Mutex),
	}
}

func (e *Engine) lockFor(docID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[docID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[docID] = l
	}
	return l
}

// Apply commits a new parse of a document and returns the resulting
// chunk set plus the diff operations.
//
//   - Unchanged content hash with an existing set is a no-op fast path:
//     the existing set comes back with empty ops and no revision bump.
//   - Otherwise chunks are diffed by id against the prior set and the
//     revision increments by one, whether or not any op was produced.
//   - Any failure leaves the prior committed set untouched.
func (e *Engine) Apply(ctx context.Context, docID, contentHash string, chunks []chunkset.Chunk) (*chunkset.ChunkSet, []chunkset.Op, error) {
	lock := e.lockFor(docID)
	lock.Lock()
	defer lock.Unlock()

	prior, err := e.store.Load(ctx, docID)
	if err != nil {
		return nil, nil, fmt.Errorf("load prior chunk set: %w", err)
	}

	if prior != nil && prior.ContentHash == contentHash {
		return prior, nil, nil
	}

	next := &chunkset.ChunkSet{
		DocID:       docID,
		ContentHash: contentHash,
		Revision:    1,
		Chunks:      chunks,
	}

	var ops []chunkset.Op
	if prior == nil {
		for i := range next.Chunks {
			ops = append(ops, chunkset.Op{Kind: chunkset.OpAdded, ChunkID: next.Chunks[i].ID, Chunk: &next.Chunks[i]})
		}
	} else {
		next.Revision = prior.Revision + 1
		ops = diffSets(prior, next)
	}

	if err := e.store.Save(ctx, next); err != nil {
		// Copy-on-success: the prior set stays authoritative.
		return nil, nil, fmt.Errorf("commit chunk set: %w", err)
	}
	return next, ops, nil
}

// Current returns the committed chunk set for a document, or nil if the
// document has never been parsed.
func (e *Engine) Current(ctx context.Context, docID string) (*chunkset.ChunkSet, error) {
	return e.store.Load(ctx, docID)
}

// diffSets compares by chunk id. Updated chunks keep their id and bump
// their revision; chunks only in the prior set become tombstones.
func diffSets(prior, next *chunkset.ChunkSet) []chunkset.Op {
	prev := prior.ByID()
	var ops []chunkset.Op

	seen := make(map[string]bool, len(next.Chunks))
	for i := range next.Chunks {
		c := &next.Chunks[i]
		seen[c.ID] = true
		old, ok := prev[c.ID]
		if !ok {
			ops = append(ops, chunkset.Op{Kind: chunkset.OpAdded, ChunkID: c.ID, Chunk: c})
			continue
		}
		if old.ContentEqual(*c) {
			c.Revision = old.Revision
			continue
		}
		c.Revision = old.Revision + 1
		ops = append(ops, chunkset.Op{Kind: chunkset.OpUpdated, ChunkID: c.ID, Chunk: c})
	}

	for _, old := range prior.Chunks {
		if !seen[old.ID] {
			ops = append(ops, chunkset.Op{Kind: chunkset.OpRemoved, ChunkID: old.ID})
		}
	}
	return ops
}
