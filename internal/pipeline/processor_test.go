package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgallion1/docrecon/internal/config"
	"github.com/dgallion1/docrecon/internal/detect"
	"github.com/dgallion1/docrecon/internal/diff"
	"github.com/dgallion1/docrecon/internal/document"
	"github.com/dgallion1/docrecon/internal/geom"
	"github.com/dgallion1/docrecon/internal/store"
)

// stubSource returns canned detections keyed by page index.
type stubSource struct {
	kind  detect.Kind
	dets  map[int][]detect.Detection
	err   error
	calls atomic.Int32
}

func (s *stubSource) Kind() detect.Kind { return s.kind }

func (s *stubSource) Detect(ctx context.Context, page *document.Page) ([]detect.Detection, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, &detect.SourceError{Source: s.kind, Err: s.err}
	}
	return s.dets[page.Index], nil
}

func testDoc(id string, pages int) *document.Document {
	doc := &document.Document{ID: id, ContentHash: "hash-" + id}
	for i := 0; i < pages; i++ {
		doc.Pages = append(doc.Pages, &document.Page{Index: i, Width: 612, Height: 792})
	}
	return doc
}

func lineDet(y0 float64, text string) detect.Detection {
	return detect.Detection{
		Source:     detect.KindText,
		BBox:       geom.BBox{X0: 36, Y0: y0, X1: 576, Y1: y0 + 14},
		Text:       text,
		Confidence: 1.0,
		Type:       detect.TypeUnknown,
		Column:     -1,
	}
}

func newTestProcessor(t *testing.T, sources []detect.Source) *Processor {
	t.Helper()
	cfg := config.Config{
		PageWorkers:         4,
		SourceTimeout:       5 * time.Second,
		OCRDensityThreshold: 5,
	}
	engine := diff.NewEngine(store.NewMemory())
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewProcessorWithSources(cfg, engine, log, sources)
}

func TestParseDocument_NoPages(t *testing.T) {
	p := newTestProcessor(t, []detect.Source{&stubSource{kind: detect.KindText}})
	doc := &document.Document{ID: "empty", ContentHash: "h"}
	_, err := p.ParseDocument(context.Background(), doc, ParseOptions{})
	if err == nil {
		t.Fatal("expected error for document with no pages")
	}
}

func TestParseDocument_FailedSourceDegradesPage(t *testing.T) {
	text := &stubSource{kind: detect.KindText, dets: map[int][]detect.Detection{
		1: {lineDet(100, "page two text")},
	}}
	ocr := &stubSource{kind: detect.KindOCR, err: detect.ErrUnavailable}
	p := newTestProcessor(t, []detect.Source{text, ocr})

	res, err := p.ParseDocument(context.Background(), testDoc("d1", 2), ParseOptions{})
	if err != nil {
		t.Fatalf("degraded pages must not fail the parse: %v", err)
	}

	for _, pr := range res.Pages {
		if !pr.Degraded {
			t.Errorf("page %d: expected degraded", pr.Page)
		}
		if len(pr.FailedSources) != 1 || pr.FailedSources[0] != "ocr" {
			t.Errorf("page %d: expected failed source ocr, got %v", pr.Page, pr.FailedSources)
		}
		if pr.Error != "" {
			t.Errorf("page %d: degraded is not an error, got %q", pr.Page, pr.Error)
		}
	}
	if len(res.ChunkSet.Chunks) != 1 {
		t.Fatalf("expected the surviving source's chunk, got %d", len(res.ChunkSet.Chunks))
	}
	if res.ChunkSet.Chunks[0].Text != "page two text" {
		t.Errorf("unexpected chunk text %q", res.ChunkSet.Chunks[0].Text)
	}
}

func TestParseDocument_AllSourcesFailedRecordsPageError(t *testing.T) {
	text := &stubSource{kind: detect.KindText, err: detect.ErrTimeout}
	ocr := &stubSource{kind: detect.KindOCR, err: detect.ErrUnavailable}
	p := newTestProcessor(t, []detect.Source{text, ocr})

	res, err := p.ParseDocument(context.Background(), testDoc("d1", 1), ParseOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pr := res.Pages[0]
	if pr.Error != "all sources failed" {
		t.Errorf("expected page error recorded, got %q", pr.Error)
	}
	if pr.ChunkCount != 0 || len(res.ChunkSet.Chunks) != 0 {
		t.Error("a fully failed page must contribute no chunks")
	}
}

func TestParseDocument_GlobalReadingOrder(t *testing.T) {
	dets := make(map[int][]detect.Detection)
	for page := 0; page < 3; page++ {
		dets[page] = []detect.Detection{
			lineDet(100, fmt.Sprintf("page %d first", page)),
			lineDet(400, fmt.Sprintf("page %d second", page)),
		}
	}
	text := &stubSource{kind: detect.KindText, dets: dets}
	p := newTestProcessor(t, []detect.Source{text})

	res, err := p.ParseDocument(context.Background(), testDoc("d1", 3), ParseOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	chunks := res.ChunkSet.Chunks
	if len(chunks) != 6 {
		t.Fatalf("expected 6 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.Position != i {
			t.Errorf("chunk %d: expected global position %d, got %d", i, i, c.Position)
		}
	}
	// Pages appear in order, earlier pages strictly before later ones.
	for i := 1; i < len(chunks); i++ {
		if chunks[i].Page < chunks[i-1].Page {
			t.Errorf("page order violated at chunk %d: %d after %d", i, chunks[i].Page, chunks[i-1].Page)
		}
	}
}

func TestParseDocument_ReparseUnchanged(t *testing.T) {
	text := &stubSource{kind: detect.KindText, dets: map[int][]detect.Detection{
		0: {lineDet(100, "stable content")},
	}}
	p := newTestProcessor(t, []detect.Source{text})
	doc := testDoc("d1", 1)

	first, err := p.ParseDocument(context.Background(), doc, ParseOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := p.ParseDocument(context.Background(), doc, ParseOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(second.Ops) != 0 {
		t.Errorf("expected empty diff on unchanged content, got %d ops", len(second.Ops))
	}
	if second.ChunkSet.Revision != first.ChunkSet.Revision {
		t.Errorf("revision must not bump on unchanged content: %d vs %d",
			first.ChunkSet.Revision, second.ChunkSet.Revision)
	}
	if first.ChunkSet.Chunks[0].ID != second.ChunkSet.Chunks[0].ID {
		t.Error("re-parse must yield identical chunk ids")
	}
}

func TestParseDocument_OCRSkippedOnDensePages(t *testing.T) {
	text := &stubSource{kind: detect.KindText, dets: map[int][]detect.Detection{
		0: {lineDet(100, "dense native text")},
	}}
	ocr := &stubSource{kind: detect.KindOCR}
	p := newTestProcessor(t, []detect.Source{text, ocr})

	doc := testDoc("d1", 1)
	doc.Pages[0].CharDensity = 42 // well above the threshold

	res, err := p.ParseDocument(context.Background(), doc, ParseOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ocr.calls.Load(); got != 0 {
		t.Errorf("expected OCR skipped on dense page, got %d calls", got)
	}
	if res.Pages[0].Degraded {
		t.Error("skipping OCR is not degradation")
	}
}

func TestParseDocument_ForceOCRRunsOnDensePages(t *testing.T) {
	text := &stubSource{kind: detect.KindText, dets: map[int][]detect.Detection{
		0: {lineDet(100, "dense native text")},
	}}
	ocr := &stubSource{kind: detect.KindOCR}
	p := newTestProcessor(t, []detect.Source{text, ocr})

	doc := testDoc("d1", 1)
	doc.Pages[0].CharDensity = 42

	if _, err := p.ParseDocument(context.Background(), doc, ParseOptions{ForceOCR: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ocr.calls.Load(); got != 1 {
		t.Errorf("expected forced OCR call, got %d", got)
	}
}
