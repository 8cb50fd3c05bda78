// Package store provides the persistence adapters behind the diff
// engine: an in-memory map for tests and single-process use, and a
// SQLite file for anything that should survive a restart.
package store

import (
	"context"
	"sync"

	"github.com/dgallion1/docrecon/internal/chunkset"
)

// Memory is a thread-safe in-memory chunk set store.
type Memory struct {
	mu   sync.Mutex
	sets map[string]*chunkset.ChunkSet
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{sets: make(map[string]*chunkset.ChunkSet)}
}

func (m *Memory) Load(ctx context.Context, docID string) (*chunkset.ChunkSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.sets[docID]
	if !ok {
		return nil, nil
	}
	// Hand out a copy so callers can't mutate committed state.
	cp := *set
	cp.Chunks = append([]chunkset.Chunk(nil), set.Chunks...)
	return &cp, nil
}

func (m *Memory) Save(ctx context.Context, set *chunkset.ChunkSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *set
	cp.Chunks = append([]chunkset.Chunk(nil), set.Chunks...)
	m.sets[set.DocID] = &cp
	return nil
}

// Docs lists the ids of committed documents.
func (m *Memory) Docs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sets))
	for id := range m.sets {
		ids = append(ids, id)
	}
	return ids
}
