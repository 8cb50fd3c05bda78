package document

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/dgallion1/docrecon/internal/geom"
	pdflib "github.com/ledongthuc/pdf"
)

// PDFLoader handles PDF files. It extracts positioned native text per
// page; pages without a usable text layer come back with a low character
// density, which is what triggers OCR downstream.
type PDFLoader struct{}

func (p *PDFLoader) Load(r io.Reader, filename string) (*Document, error) {
	// ledongthuc/pdf requires a ReadSeeker+size, so we write to a temp file.
	tmp, err := os.CreateTemp("", "docrecon-pdf-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	tmp.Close()

	f, reader, err := pdflib.Open(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open pdf: %v", ErrMalformed, err)
	}
	defer f.Close()

	doc := &Document{}
	numPages := reader.NumPage()
	if numPages == 0 {
		return nil, fmt.Errorf("%w: pdf has no pages", ErrMalformed)
	}

	for i := 1; i <= numPages; i++ {
		pg := reader.Page(i)
		page := &Page{Index: i - 1, Width: 612, Height: 792}
		if !pg.V.IsNull() {
			if w, h, ok := mediaBoxSize(pg); ok {
				page.Width, page.Height = w, h
			}
			runs, chars := extractRuns(pg, page.Height)
			page.TextRuns = runs
			page.CharDensity = charDensity(chars, page.Width, page.Height)
		}
		doc.Pages = append(doc.Pages, page)
	}
	return doc, nil
}

func mediaBoxSize(pg pdflib.Page) (w, h float64, ok bool) {
	box := pg.V.Key("MediaBox")
	if box.IsNull() || box.Len() < 4 {
		return 0, 0, false
	}
	x0 := box.Index(0).Float64()
	y0 := box.Index(1).Float64()
	x1 := box.Index(2).Float64()
	y1 := box.Index(3).Float64()
	w, h = x1-x0, y1-y0
	if w <= 0 || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}

// extractRuns groups the page's raw text items into line-level runs with
// top-left-origin boxes. Returns the runs and the total character count.
func extractRuns(pg pdflib.Page, pageHeight float64) ([]TextRun, int) {
	content := pg.Content()
	items := content.Text
	if len(items) == 0 {
		return nil, 0
	}

	// PDF text y runs bottom-up; sort top-to-bottom, then left-to-right.
	sort.Slice(items, func(i, j int) bool {
		if items[i].Y != items[j].Y {
			return items[i].Y > items[j].Y
		}
		return items[i].X < items[j].X
	})

	var runs []TextRun
	chars := 0
	var line strings.Builder
	var lineBox geom.BBox
	lineY := items[0].Y
	lineSize := items[0].FontSize
	if lineSize <= 0 {
		lineSize = 10
	}

	flush := func() {
		text := strings.TrimSpace(line.String())
		if text != "" {
			runs = append(runs, TextRun{BBox: lineBox, Text: text})
		}
		line.Reset()
		lineBox = geom.BBox{}
	}

	for _, it := range items {
		size := it.FontSize
		if size <= 0 {
			size = 10
		}
		// A new line starts when the baseline drops by more than roughly
		// half a line height.
		if lineY-it.Y > size*0.5 {
			flush()
			lineY = it.Y
			lineSize = size
		}
		w := it.W
		if w <= 0 {
			w = size * 0.5 * float64(len(it.S))
		}
		box := geom.New(it.X, pageHeight-it.Y-lineSize, it.X+w, pageHeight-it.Y)
		lineBox = lineBox.Union(box)
		line.WriteString(it.S)
		chars += len(it.S)
	}
	flush()

	return runs, chars
}
