package reconcile

import (
	"github.com/dgallion1/docrecon/internal/chunkset"
	"github.com/dgallion1/docrecon/internal/detect"
)

// Confidence model. Table chunks inherit the table detection's
// confidence. Text chunks inherit 1.0 (direct extraction is lossless);
// OCR-only chunks inherit the OCR confidence. A layout classification
// that disagrees with a higher-confidence table/OCR signal costs a
// fixed discount, reflecting classification uncertainty.

// baseConfidence is the pre-discount confidence of a candidate.
func baseConfidence(c *candidate) float64 {
	if c.typ == detect.TypeTable {
		for _, d := range c.prov {
			if d.Source == detect.KindTable {
				return d.Confidence
			}
		}
	}
	best := 0.0
	hasText := false
	for _, d := range c.prov {
		switch d.Source {
		case detect.KindText:
			hasText = true
		case detect.KindOCR:
			if d.Confidence > best {
				best = d.Confidence
			}
		}
	}
	if hasText {
		return 1.0
	}
	return best
}

// confidence applies the disagreement discount and clamps to [0,1].
func (r *Reconciler) confidence(c *candidate) float64 {
	conf := baseConfidence(c)
	if c.conflict {
		conf -= r.cfg.TypeDiscount
	}
	if conf < 0 {
		return 0
	}
	if conf > 1 {
		return 1
	}
	return conf
}

// Summary is the document-level confidence aggregate, surfaced to
// callers without ever failing the pipeline.
type Summary struct {
	Mean        float64 `json:"mean"`
	NeedsReview int     `json:"needs_review"`
	Total       int     `json:"total"`
}

// Summarize aggregates chunk confidences across a document.
func (r *Reconciler) Summarize(chunks []chunkset.Chunk) Summary {
	s := Summary{Total: len(chunks)}
	if len(chunks) == 0 {
		return s
	}
	sum := 0.0
	for _, c := range chunks {
		sum += c.Confidence
		if c.Confidence < r.cfg.NeedsReviewThreshold {
			s.NeedsReview++
		}
	}
	s.Mean = sum / float64(len(chunks))
	return s
}
