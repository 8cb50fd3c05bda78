package reconcile

import (
	"errors"
	"math"
	"testing"

	"github.com/dgallion1/docrecon/internal/detect"
	"github.com/dgallion1/docrecon/internal/document"
	"github.com/dgallion1/docrecon/internal/geom"
)

func bx(x0, y0, x1, y1 float64) geom.BBox {
	return geom.BBox{X0: x0, Y0: y0, X1: x1, Y1: y1}
}

func testPage(w, h float64) *document.Page {
	return &document.Page{Width: w, Height: h}
}

func textDet(box geom.BBox, text string) detect.Detection {
	return detect.Detection{Source: detect.KindText, BBox: box, Text: text, Confidence: 1.0, Type: detect.TypeUnknown, Column: -1}
}

func ocrDet(box geom.BBox, text string, conf float64) detect.Detection {
	return detect.Detection{Source: detect.KindOCR, BBox: box, Text: text, Confidence: conf, Type: detect.TypeUnknown, Column: -1}
}

func layoutDet(box geom.BBox, typ detect.SemanticType, conf float64, column int) detect.Detection {
	return detect.Detection{Source: detect.KindLayout, BBox: box, Confidence: conf, Type: typ, Column: column}
}

func tableDet(box geom.BBox, conf float64, cells [][]string) detect.Detection {
	return detect.Detection{Source: detect.KindTable, BBox: box, Confidence: conf, Type: detect.TypeTable, Cells: cells, Column: -1}
}

func closeTo(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestPage_NoDetections(t *testing.T) {
	r := New(Config{})
	chunks, err := r.Page("doc1", 0, testPage(100, 100), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("expected no chunks, got %d", len(chunks))
	}
}

func TestPage_DegenerateBoxDiscarded(t *testing.T) {
	r := New(Config{})
	chunks, err := r.Page("doc1", 0, testPage(100, 100), []detect.Detection{
		textDet(bx(10, 10, 10, 30), "zero width"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("expected degenerate detection to be discarded, got %d chunks", len(chunks))
	}
}

func TestPage_NonFiniteBoxFailsPage(t *testing.T) {
	r := New(Config{})
	_, err := r.Page("doc1", 3, testPage(100, 100), []detect.Detection{
		textDet(bx(0, math.NaN(), 10, 10), "bad"),
	})
	var ie *InvariantError
	if !errors.As(err, &ie) {
		t.Fatalf("expected InvariantError, got %v", err)
	}
	if ie.Page != 3 {
		t.Errorf("expected page 3 in error, got %d", ie.Page)
	}
}

func TestPage_TablePrecedenceDropsContainedText(t *testing.T) {
	r := New(Config{})
	cells := [][]string{{"a", "b"}, {"1", "2"}}
	chunks, err := r.Page("doc1", 0, testPage(100, 100), []detect.Detection{
		tableDet(bx(0, 0, 100, 50), 0.9, cells),
		ocrDet(bx(10, 10, 90, 40), "a b 1 2", 0.8),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	c := chunks[0]
	if c.Type != detect.TypeTable {
		t.Errorf("expected table chunk, got %s", c.Type)
	}
	if len(c.Cells) != 2 || c.Cells[1][1] != "2" {
		t.Errorf("expected cell grid preserved, got %v", c.Cells)
	}
	if !closeTo(c.Confidence, 0.9) {
		t.Errorf("expected table confidence 0.9, got %v", c.Confidence)
	}
}

func TestPage_PartialTableOverlapKeptStandalone(t *testing.T) {
	r := New(Config{})
	chunks, err := r.Page("doc1", 0, testPage(100, 100), []detect.Detection{
		tableDet(bx(0, 0, 100, 50), 0.9, [][]string{{"x"}}),
		textDet(bx(0, 40, 100, 60), "straddles the table edge"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected both chunks kept, got %d", len(chunks))
	}
	types := map[detect.SemanticType]bool{}
	for _, c := range chunks {
		types[c.Type] = true
	}
	if !types[detect.TypeTable] || !types[detect.TypeParagraph] {
		t.Errorf("expected one table and one paragraph, got %v", types)
	}
}

func TestPage_OverlappingTablesKeepHigherConfidence(t *testing.T) {
	r := New(Config{})
	chunks, err := r.Page("doc1", 0, testPage(100, 100), []detect.Detection{
		tableDet(bx(0, 0, 100, 50), 0.7, [][]string{{"low"}}),
		tableDet(bx(5, 5, 95, 45), 0.9, [][]string{{"high"}}),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if !closeTo(chunks[0].Confidence, 0.9) {
		t.Errorf("expected winning confidence 0.9, got %v", chunks[0].Confidence)
	}
	if chunks[0].Cells[0][0] != "high" {
		t.Errorf("expected higher-confidence table to win, got %v", chunks[0].Cells)
	}
}

func TestPage_TextBeatsOCROnOverlap(t *testing.T) {
	r := New(Config{})
	chunks, err := r.Page("doc1", 0, testPage(100, 100), []detect.Detection{
		textDet(bx(0, 0, 100, 20), "native text"),
		ocrDet(bx(0, 0, 100, 20), "natjve text", 0.8),
		ocrDet(bx(0, 50, 100, 70), "scanned only", 0.8),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Text != "native text" {
		t.Errorf("expected native text to win the shared region, got %q", chunks[0].Text)
	}
	if !closeTo(chunks[0].Confidence, 1.0) {
		t.Errorf("expected native confidence 1.0, got %v", chunks[0].Confidence)
	}
	if chunks[1].Text != "scanned only" {
		t.Errorf("expected OCR text where it is the only coverage, got %q", chunks[1].Text)
	}
	if !closeTo(chunks[1].Confidence, 0.8) {
		t.Errorf("expected OCR confidence 0.8, got %v", chunks[1].Confidence)
	}
}

func TestPage_LayoutTypeAdoptedByIoU(t *testing.T) {
	r := New(Config{})
	chunks, err := r.Page("doc1", 0, testPage(100, 100), []detect.Detection{
		textDet(bx(0, 0, 100, 20), "Chapter One"),
		layoutDet(bx(0, 0, 100, 22), detect.TypeHeading, 0.9, -1),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Type != detect.TypeHeading {
		t.Errorf("expected heading from layout, got %s", chunks[0].Type)
	}
	if !closeTo(chunks[0].Confidence, 1.0) {
		t.Errorf("agreeing layout must not cost confidence, got %v", chunks[0].Confidence)
	}
}

func TestPage_LayoutBelowIoUIgnored(t *testing.T) {
	r := New(Config{})
	chunks, err := r.Page("doc1", 0, testPage(100, 100), []detect.Detection{
		textDet(bx(0, 0, 100, 10), "far from the region"),
		layoutDet(bx(0, 40, 100, 100), detect.TypeHeading, 0.9, -1),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Type != detect.TypeParagraph {
		t.Errorf("expected paragraph fallback, got %s", chunks[0].Type)
	}
}

func TestPage_TypeDisagreementDiscountsConfidence(t *testing.T) {
	r := New(Config{})
	d := ocrDet(bx(0, 0, 100, 20), "ambiguous region", 0.9)
	d.Type = detect.TypeParagraph
	chunks, err := r.Page("doc1", 0, testPage(100, 100), []detect.Detection{
		d,
		layoutDet(bx(0, 0, 100, 20), detect.TypeHeading, 0.8, -1),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Type != detect.TypeHeading {
		t.Errorf("expected layout type adopted, got %s", chunks[0].Type)
	}
	if !closeTo(chunks[0].Confidence, 0.75) {
		t.Errorf("expected 0.9 - 0.15 discount = 0.75, got %v", chunks[0].Confidence)
	}
}

func TestPage_AdjacentFragmentsMergeVertically(t *testing.T) {
	r := New(Config{})
	chunks, err := r.Page("doc1", 0, testPage(100, 100), []detect.Detection{
		textDet(bx(10, 10, 90, 20), "first part"),
		textDet(bx(10, 22, 90, 32), "second part"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected fragments merged into 1 chunk, got %d", len(chunks))
	}
	c := chunks[0]
	if c.Text != "first part\n\nsecond part" {
		t.Errorf("unexpected merged text %q", c.Text)
	}
	want := bx(10, 10, 90, 32)
	if c.BBox != want {
		t.Errorf("expected union box %+v, got %+v", want, c.BBox)
	}
}

func TestPage_AdjacentFragmentsMergeHorizontally(t *testing.T) {
	r := New(Config{})
	chunks, err := r.Page("doc1", 0, testPage(100, 100), []detect.Detection{
		textDet(bx(10, 10, 40, 20), "left"),
		textDet(bx(42, 10, 90, 20), "right"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 merged chunk, got %d", len(chunks))
	}
	if chunks[0].Text != "left right" {
		t.Errorf("expected space-joined text, got %q", chunks[0].Text)
	}
}

func TestPage_DistantFragmentsStaySeparate(t *testing.T) {
	r := New(Config{})
	chunks, err := r.Page("doc1", 0, testPage(100, 100), []detect.Detection{
		textDet(bx(10, 10, 90, 20), "first"),
		textDet(bx(10, 40, 90, 50), "second"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected separate chunks across a wide gap, got %d", len(chunks))
	}
}

func TestPage_ReadingOrderTopThenLeft(t *testing.T) {
	r := New(Config{})
	chunks, err := r.Page("doc1", 0, testPage(100, 100), []detect.Detection{
		textDet(bx(0, 30, 100, 40), "below"),
		textDet(bx(50, 0, 100, 10), "top right"),
		textDet(bx(0, 0, 40, 10), "top left"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	want := []string{"top left", "top right", "below"}
	for i, w := range want {
		if chunks[i].Text != w {
			t.Errorf("position %d: expected %q, got %q", i, w, chunks[i].Text)
		}
		if chunks[i].Position != i {
			t.Errorf("expected position %d, got %d", i, chunks[i].Position)
		}
	}
}

func TestPage_ColumnMajorOrderWhenLayoutAssertsColumns(t *testing.T) {
	r := New(Config{})
	chunks, err := r.Page("doc1", 0, testPage(100, 100), []detect.Detection{
		textDet(bx(0, 0, 45, 10), "col0 top"),
		textDet(bx(55, 0, 100, 10), "col1 top"),
		textDet(bx(0, 50, 45, 60), "col0 bottom"),
		layoutDet(bx(0, 0, 45, 10), detect.TypeParagraph, 0.9, 0),
		layoutDet(bx(55, 0, 100, 10), detect.TypeParagraph, 0.9, 1),
		layoutDet(bx(0, 50, 45, 60), detect.TypeParagraph, 0.9, 0),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	want := []string{"col0 top", "col0 bottom", "col1 top"}
	for i, w := range want {
		if chunks[i].Text != w {
			t.Errorf("position %d: expected %q, got %q", i, w, chunks[i].Text)
		}
	}
}

func TestPage_OverlapDropsLowerConfidence(t *testing.T) {
	r := New(Config{})
	chunks, err := r.Page("doc1", 0, testPage(100, 100), []detect.Detection{
		ocrDet(bx(0, 0, 100, 20), "strong read", 0.9),
		ocrDet(bx(0, 5, 100, 25), "weak read", 0.6),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected overlap resolved to 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Text != "strong read" {
		t.Errorf("expected higher-confidence chunk kept, got %q", chunks[0].Text)
	}
}

func TestPage_TableThenBodyScenario(t *testing.T) {
	r := New(Config{})
	chunks, err := r.Page("doc1", 0, testPage(100, 100), []detect.Detection{
		tableDet(bx(0, 0, 100, 50), 0.9, [][]string{{"h1", "h2"}, {"v1", "v2"}}),
		ocrDet(bx(10, 10, 90, 40), "h1 h2 v1 v2", 0.7),
		textDet(bx(0, 55, 100, 95), "body text under the table"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Type != detect.TypeTable || chunks[0].Position != 0 {
		t.Errorf("expected table first, got %s at %d", chunks[0].Type, chunks[0].Position)
	}
	if chunks[1].Type != detect.TypeParagraph || chunks[1].Text != "body text under the table" {
		t.Errorf("expected body paragraph second, got %s %q", chunks[1].Type, chunks[1].Text)
	}
}

func TestPage_DeterministicOutput(t *testing.T) {
	r := New(Config{})
	dets := []detect.Detection{
		tableDet(bx(0, 0, 100, 50), 0.9, [][]string{{"x"}}),
		textDet(bx(0, 55, 100, 95), "body"),
	}
	first, err := r.Page("doc1", 0, testPage(100, 100), dets)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := r.Page("doc1", 0, testPage(100, 100), dets)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("run lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("chunk %d: ID changed between runs: %s vs %s", i, first[i].ID, second[i].ID)
		}
	}
}
