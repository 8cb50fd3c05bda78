// Package chunkset defines the reconciled output model: chunks, the
// versioned per-document chunk sequence, and the diff operations
// emitted to the ingestion collaborator.
package chunkset

import (
	"crypto/sha256"
	"fmt"

	"github.com/dgallion1/docrecon/internal/detect"
	"github.com/dgallion1/docrecon/internal/geom"
)

// Chunk is the reconciled content unit exposed to downstream consumers.
type Chunk struct {
	ID         string              `json:"id"`
	Page       int                 `json:"page"`
	BBox       geom.BBox           `json:"bbox"`
	Type       detect.SemanticType `json:"type"`
	Text       string              `json:"text,omitempty"`
	Cells      [][]string          `json:"cells,omitempty"`
	Confidence float64             `json:"confidence"`

	// Position is the document-global reading-order index, assigned in
	// the sequential pass after per-page reconciliation.
	Position int `json:"position"`

	// Revision starts at 1 and bumps when a re-parse updates the chunk
	// in place (same id, changed content/box/type).
	Revision int `json:"revision"`

	Provenance []detect.Detection `json:"provenance,omitempty"`
}

// ID derivation is deterministic: identical re-parses yield identical
// ids, which is what makes incremental diffing by id possible.
func ChunkID(docID string, page int, box geom.BBox, seq int) string {
	key := fmt.Sprintf("%s|%d|%.1f,%.1f,%.1f,%.1f|%d",
		docID, page, box.X0, box.Y0, box.X1, box.Y1, seq)
	h := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", h[:8])
}

// ContentEqual reports whether two chunks carry the same payload. Used
// by the diff engine to tell Updated from unchanged.
func (c Chunk) ContentEqual(o Chunk) bool {
	if c.Type != o.Type || c.Text != o.Text || c.BBox != o.BBox || c.Page != o.Page {
		return false
	}
	if len(c.Cells) != len(o.Cells) {
		return false
	}
	for i := range c.Cells {
		if len(c.Cells[i]) != len(o.Cells[i]) {
			return false
		}
		for j := range c.Cells[i] {
			if c.Cells[i][j] != o.Cells[i][j] {
				return false
			}
		}
	}
	return true
}

// ChunkSet is the ordered chunk sequence for a document at a point in
// time, versioned by content hash and a revision counter.
type ChunkSet struct {
	DocID       string  `json:"doc_id"`
	ContentHash string  `json:"content_hash"`
	Revision    int     `json:"revision"`
	Chunks      []Chunk `json:"chunks"`
}

// ByID indexes the set's chunks.
func (s *ChunkSet) ByID() map[string]Chunk {
	m := make(map[string]Chunk, len(s.Chunks))
	for _, c := range s.Chunks {
		m[c.ID] = c
	}
	return m
}

// OpKind classifies a diff operation.
type OpKind string

const (
	OpAdded   OpKind = "added"
	OpUpdated OpKind = "updated"
	OpRemoved OpKind = "removed"
)

// Op is one incremental change emitted to the ingestion collaborator.
// Removed ops are tombstones: id only, no payload.
type Op struct {
	Kind    OpKind `json:"kind"`
	ChunkID string `json:"chunk_id"`
	Chunk   *Chunk `json:"chunk,omitempty"`
}
