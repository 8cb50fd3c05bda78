package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleDocumentChunks returns the committed, ordered chunk sequence
// for a document. This is the feed export collaborators consume.
func (s *Server) handleDocumentChunks(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")

	set, err := s.orchestrator.Engine().Current(r.Context(), docID)
	if err != nil {
		jsonError(w, "failed to load chunk set: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if set == nil {
		jsonError(w, "document not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"doc_id":       set.DocID,
		"content_hash": set.ContentHash,
		"revision":     set.Revision,
		"chunks":       set.Chunks,
	})
}

// handleDocumentResult returns the committed chunk set without
// provenance detail, suitable for quick inspection.
func (s *Server) handleDocumentResult(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")

	set, err := s.orchestrator.Engine().Current(r.Context(), docID)
	if err != nil {
		jsonError(w, "failed to load chunk set: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if set == nil {
		jsonError(w, "document not found", http.StatusNotFound)
		return
	}

	type chunkSummary struct {
		ID         string  `json:"id"`
		Page       int     `json:"page"`
		Type       string  `json:"type"`
		Position   int     `json:"position"`
		Revision   int     `json:"revision"`
		Confidence float64 `json:"confidence"`
	}
	summaries := make([]chunkSummary, 0, len(set.Chunks))
	for _, c := range set.Chunks {
		summaries = append(summaries, chunkSummary{
			ID:         c.ID,
			Page:       c.Page,
			Type:       string(c.Type),
			Position:   c.Position,
			Revision:   c.Revision,
			Confidence: c.Confidence,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"doc_id":       set.DocID,
		"content_hash": set.ContentHash,
		"revision":     set.Revision,
		"chunks":       summaries,
	})
}
