// Package reconcile merges per-page detections from all sources into
// one ordered, de-duplicated, classified chunk list. This is the core
// of the pipeline: tables take precedence over flat text, native text
// beats OCR where both exist, layout supplies semantic types, and
// adjacent fragments of the same type collapse into single chunks.
package reconcile

import (
	"fmt"
	"math"
	"strings"

	"github.com/dgallion1/docrecon/internal/chunkset"
	"github.com/dgallion1/docrecon/internal/detect"
	"github.com/dgallion1/docrecon/internal/document"
	"github.com/dgallion1/docrecon/internal/geom"
)

// InvariantError marks a page whose reconciliation violated a hard
// invariant. The page fails; the document parse continues.
type InvariantError struct {
	Page   int
	Reason string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("page %d: reconciliation invariant violated: %s", e.Page, e.Reason)
}

// Reconciler merges detections into chunks.
type Reconciler struct {
	cfg Config
}

// New returns a Reconciler with defaults applied to cfg.
func New(cfg Config) *Reconciler {
	return &Reconciler{cfg: cfg.withDefaults()}
}

// candidate is a chunk under construction.
type candidate struct {
	box   geom.BBox
	typ   detect.SemanticType
	text  string
	cells [][]string
	prov  []detect.Detection

	column      int // layout-asserted column, -1 if none
	layoutConf  float64
	layoutTyped bool // a layout classification was adopted
	conflict    bool // layout type disagrees with a stronger signal
}

// Page reconciles one page's detections into an ordered chunk list.
// Positions are page-local; the document-global offset is applied by
// the orchestrator's sequential ordering pass.
func (r *Reconciler) Page(docID string, pageIdx int, page *document.Page, dets []detect.Detection) ([]chunkset.Chunk, error) {
	dets, err := r.sanitize(pageIdx, dets)
	if err != nil {
		return nil, err
	}
	if len(dets) == 0 {
		return nil, nil
	}

	var tables, layouts, texts []detect.Detection
	for _, d := range dets {
		switch d.Source {
		case detect.KindTable:
			tables = append(tables, d)
		case detect.KindLayout:
			layouts = append(layouts, d)
		default:
			texts = append(texts, d)
		}
	}

	tables = r.dedupeTables(tables)
	texts = r.dropTableContained(texts, tables)
	layouts = r.dropTableContained(layouts, tables)
	texts = r.resolveTextOverOCR(texts)

	cands := r.classify(texts, layouts, tables, page)
	for _, t := range tables {
		cands = append(cands, &candidate{
			box:    t.BBox,
			typ:    detect.TypeTable,
			cells:  t.Cells,
			text:   t.Text,
			prov:   []detect.Detection{t},
			column: t.Column,
		})
	}

	lineHeight := medianHeight(cands)
	orderCandidates(cands, lineHeight)
	cands = r.mergeFragments(cands, page, lineHeight)
	cands = r.dropOverlapping(cands)
	orderCandidates(cands, lineHeight)

	chunks := make([]chunkset.Chunk, 0, len(cands))
	for seq, c := range cands {
		chunks = append(chunks, chunkset.Chunk{
			ID:         chunkset.ChunkID(docID, pageIdx, c.box, seq),
			Page:       pageIdx,
			BBox:       c.box,
			Type:       c.typ,
			Text:       c.text,
			Cells:      c.cells,
			Confidence: r.confidence(c),
			Position:   seq,
			Revision:   1,
			Provenance: c.prov,
		})
	}

	if err := r.checkInvariants(pageIdx, chunks); err != nil {
		return nil, err
	}
	return chunks, nil
}

// sanitize discards degenerate boxes and rejects non-finite geometry.
func (r *Reconciler) sanitize(pageIdx int, dets []detect.Detection) ([]detect.Detection, error) {
	out := dets[:0:0]
	for _, d := range dets {
		b := d.BBox
		for _, v := range []float64{b.X0, b.Y0, b.X1, b.Y1} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, &InvariantError{Page: pageIdx, Reason: "non-finite bounding box"}
			}
		}
		d.BBox = b.Norm()
		if d.BBox.Empty() {
			continue // zero-area detections are discarded, not errors
		}
		out = append(out, d)
	}
	return out, nil
}

// dedupeTables resolves table-vs-table overlap: a region is never two
// tables at once, so the higher-confidence detection wins.
func (r *Reconciler) dedupeTables(tables []detect.Detection) []detect.Detection {
	var kept []detect.Detection
	for _, t := range tables {
		replaced := false
		for i, k := range kept {
			if t.BBox.OverlapFrac(k.BBox) <= r.cfg.OverlapTolerance {
				continue
			}
			if t.Confidence > k.Confidence {
				kept[i] = t
			}
			replaced = true
			break
		}
		if !replaced {
			kept = append(kept, t)
		}
	}
	return kept
}

// dropTableContained removes detections that are mostly inside a kept
// table region; their content is already represented by the cell grid.
// Partial overlaps below the containment fraction stay standalone —
// layout/table disagreement should surface, not be hidden.
func (r *Reconciler) dropTableContained(dets, tables []detect.Detection) []detect.Detection {
	if len(tables) == 0 {
		return dets
	}
	out := dets[:0:0]
	for _, d := range dets {
		contained := false
		for _, t := range tables {
			if d.BBox.ContainedFrac(t.BBox) >= r.cfg.ContainFrac {
				contained = true
				break
			}
		}
		if !contained {
			out = append(out, d)
		}
	}
	return out
}

// resolveTextOverOCR keeps native text detections for any region both
// sources cover; OCR survives only where it uniquely covers the page.
func (r *Reconciler) resolveTextOverOCR(texts []detect.Detection) []detect.Detection {
	out := texts[:0:0]
	for _, d := range texts {
		if d.Source != detect.KindOCR {
			out = append(out, d)
			continue
		}
		shadowed := false
		for _, t := range texts {
			if t.Source != detect.KindText {
				continue
			}
			if d.BBox.OverlapFrac(t.BBox) > r.cfg.OverlapTolerance {
				shadowed = true
				break
			}
		}
		if !shadowed {
			out = append(out, d)
		}
	}
	return out
}

// classify attaches layout semantic types to text/OCR detections by
// maximum IoU and builds chunk candidates from them.
func (r *Reconciler) classify(texts, layouts, tables []detect.Detection, page *document.Page) []*candidate {
	lineHeight := medianDetHeight(texts)

	var cands []*candidate
	for _, d := range texts {
		c := &candidate{
			box:    d.BBox,
			text:   d.Text,
			prov:   []detect.Detection{d},
			column: -1,
		}

		best := -1
		bestIoU := 0.0
		for i, l := range layouts {
			if iou := d.BBox.IoU(l.BBox); iou > bestIoU {
				bestIoU, best = iou, i
			}
		}

		if best >= 0 && bestIoU >= r.cfg.IoUMin {
			l := layouts[best]
			c.typ = l.Type
			c.layoutTyped = true
			c.layoutConf = l.Confidence
			c.column = l.Column
			c.prov = append(c.prov, l)
			c.conflict = r.layoutConflicts(c, d, tables)
		} else if typicalLineHeight(d.BBox, lineHeight) {
			c.typ = detect.TypeParagraph
		} else {
			c.typ = detect.TypeUnknown
		}
		cands = append(cands, c)
	}
	return cands
}

// layoutConflicts reports whether the adopted layout type disagrees
// with a higher-confidence table or source signal for the same region.
func (r *Reconciler) layoutConflicts(c *candidate, d detect.Detection, tables []detect.Detection) bool {
	if d.Type != detect.TypeUnknown && d.Type != c.typ && d.Confidence > c.layoutConf {
		return true
	}
	// Partial table overlap: the region reads as text but a stronger
	// table detection claims part of it.
	for _, t := range tables {
		if t.Confidence > c.layoutConf && c.box.OverlapFrac(t.BBox) > r.cfg.OverlapTolerance {
			return true
		}
	}
	return false
}

// mergeFragments collapses adjacent same-type candidates whose boxes
// are contiguous and whose reading order is consecutive. Tables never
// merge.
func (r *Reconciler) mergeFragments(cands []*candidate, page *document.Page, lineHeight float64) []*candidate {
	if len(cands) < 2 {
		return cands
	}
	maxGap := r.cfg.MergeGapFrac * page.Height

	out := []*candidate{cands[0]}
	for _, next := range cands[1:] {
		cur := out[len(out)-1]
		sep, ok := adjacency(cur.box, next.box, maxGap)
		if ok && cur.typ == next.typ && cur.typ != detect.TypeTable &&
			cur.column == next.column {
			cur.box = cur.box.Union(next.box)
			cur.text = joinText(cur.text, next.text, sep)
			cur.prov = append(cur.prov, next.prov...)
			cur.conflict = cur.conflict || next.conflict
			cur.layoutTyped = cur.layoutTyped || next.layoutTyped
			if next.layoutConf > cur.layoutConf {
				cur.layoutConf = next.layoutConf
			}
			continue
		}
		out = append(out, next)
	}
	return out
}

// adjacency reports whether two boxes in reading order are contiguous,
// and the separator to join their content with: a space for horizontal
// neighbors, a paragraph break for vertical ones.
func adjacency(a, b geom.BBox, maxGap float64) (string, bool) {
	// Vertical: b starts just below a, with horizontal overlap.
	vGap := b.Y0 - a.Y1
	hOverlap := math.Min(a.X1, b.X1) - math.Max(a.X0, b.X0)
	if vGap >= -1 && vGap <= maxGap && hOverlap > 0 {
		return "\n\n", true
	}
	// Horizontal: b starts just right of a, with vertical overlap.
	hGap := b.X0 - a.X1
	vOverlap := math.Min(a.Y1, b.Y1) - math.Max(a.Y0, b.Y0)
	if hGap >= -1 && hGap <= maxGap && vOverlap > 0 {
		return " ", true
	}
	return "", false
}

func joinText(a, b, sep string) string {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	return a + sep + b
}

// dropOverlapping enforces the non-overlap invariant: of any pair still
// overlapping beyond tolerance after merging, the lower-confidence
// candidate is dropped. Confidence here is the pre-discount base.
// Table/non-table pairs are exempt: a partial table overlap signals
// layout/table disagreement that should surface, not be hidden.
func (r *Reconciler) dropOverlapping(cands []*candidate) []*candidate {
	dropped := make(map[int]bool)
	for i := range cands {
		if dropped[i] {
			continue
		}
		for j := i + 1; j < len(cands); j++ {
			if dropped[j] {
				continue
			}
			if (cands[i].typ == detect.TypeTable) != (cands[j].typ == detect.TypeTable) {
				continue
			}
			if cands[i].box.OverlapFrac(cands[j].box) <= r.cfg.OverlapTolerance {
				continue
			}
			if baseConfidence(cands[i]) >= baseConfidence(cands[j]) {
				dropped[j] = true
			} else {
				dropped[i] = true
				break
			}
		}
	}
	out := cands[:0:0]
	for i, c := range cands {
		if !dropped[i] {
			out = append(out, c)
		}
	}
	return out
}

// checkInvariants verifies the page-level output contract.
func (r *Reconciler) checkInvariants(pageIdx int, chunks []chunkset.Chunk) error {
	seen := make(map[int]bool, len(chunks))
	for _, c := range chunks {
		if c.BBox.Empty() {
			return &InvariantError{Page: pageIdx, Reason: "zero-area chunk"}
		}
		if c.Confidence < 0 || c.Confidence > 1 {
			return &InvariantError{Page: pageIdx, Reason: "confidence out of range"}
		}
		if seen[c.Position] {
			return &InvariantError{Page: pageIdx, Reason: "duplicate reading-order position"}
		}
		seen[c.Position] = true
	}
	return nil
}

func typicalLineHeight(b geom.BBox, lineHeight float64) bool {
	if lineHeight <= 0 {
		return true
	}
	h := b.Height()
	return h >= lineHeight*0.5 && h <= lineHeight*4
}

func medianHeight(cands []*candidate) float64 {
	hs := make([]float64, 0, len(cands))
	for _, c := range cands {
		hs = append(hs, c.box.Height())
	}
	return median(hs)
}

func medianDetHeight(dets []detect.Detection) float64 {
	hs := make([]float64, 0, len(dets))
	for _, d := range dets {
		hs = append(hs, d.BBox.Height())
	}
	return median(hs)
}

func median(hs []float64) float64 {
	if len(hs) == 0 {
		return 0
	}
	// Insertion sort; detection counts per page are small.
	for i := 1; i < len(hs); i++ {
		for j := i; j > 0 && hs[j] < hs[j-1]; j-- {
			hs[j], hs[j-1] = hs[j-1], hs[j]
		}
	}
	return hs[len(hs)/2]
}
