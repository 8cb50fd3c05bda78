// Package document holds the immutable input model for a parse pass:
// a document, its pages, and whatever raw content each page carries
// (positioned native text, structured blocks, or a page image).
package document

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/dgallion1/docrecon/internal/geom"
)

// ErrMalformed marks unreadable or corrupt input. A malformed document
// fails the whole parse; no partial chunk set is produced.
var ErrMalformed = errors.New("malformed document")

// BlockKind classifies a structured content block from formats that
// carry structure instead of geometry (docx, markdown).
type BlockKind string

const (
	BlockHeading   BlockKind = "heading"
	BlockParagraph BlockKind = "paragraph"
	BlockListItem  BlockKind = "list-item"
	BlockTable     BlockKind = "table"
)

// TextRun is a positioned piece of native text on a page, typically one
// line assembled from the extractor's raw text items.
type TextRun struct {
	BBox geom.BBox
	Text string
}

// Block is a structured content unit without real page geometry.
// Loaders assign synthetic stacked boxes so the reconciler can treat
// structured and pixel-based input uniformly.
type Block struct {
	Kind  BlockKind
	Level int // heading level, 0 otherwise
	Text  string
	Cells [][]string // table blocks only
	BBox  geom.BBox
}

// Page is one page of a loaded document.
type Page struct {
	Index  int
	Width  float64
	Height float64

	TextRuns  []TextRun // native extractable text, if any
	Blocks    []Block   // structured content, if any
	ImagePath string    // rendered page image for OCR/table detection, if any

	// CharDensity is recovered characters per 10,000 px² of page area.
	// The orchestrator compares it against the configured threshold to
	// decide whether OCR is needed.
	CharDensity float64
}

// Document is an immutable parsed input. Re-parsed wholesale when the
// content hash changes.
type Document struct {
	ID          string
	Filename    string
	ContentHash string
	Pages       []*Page
}

// PageCount returns the number of pages.
func (d *Document) PageCount() int { return len(d.Pages) }

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}

// charDensity computes characters per 10k px² for a page.
func charDensity(chars int, w, h float64) float64 {
	area := w * h
	if area <= 0 {
		return 0
	}
	return float64(chars) / area * 10000
}

const (
	// Synthetic page geometry for formats without real page dimensions
	// (US Letter points, matching the PDF default).
	syntheticPageWidth  = 612.0
	syntheticPageHeight = 792.0

	blockLineHeight = 14.0
	blockGap        = 10.0
	blockMargin     = 36.0
)

// layoutBlocks assigns stacked synthetic boxes to a page's blocks and
// splits overflow onto additional pages. Returns the resulting pages.
func layoutBlocks(blocks []Block) []*Page {
	var pages []*Page
	page := &Page{Width: syntheticPageWidth, Height: syntheticPageHeight}
	y := blockMargin
	chars := 0

	flush := func() {
		page.CharDensity = charDensity(chars, page.Width, page.Height)
		page.Index = len(pages)
		pages = append(pages, page)
		page = &Page{Width: syntheticPageWidth, Height: syntheticPageHeight}
		y = blockMargin
		chars = 0
	}

	for _, b := range blocks {
		h := blockHeight(b)
		if y+h > syntheticPageHeight-blockMargin && len(page.Blocks) > 0 {
			flush()
		}
		b.BBox = geom.New(blockMargin, y, syntheticPageWidth-blockMargin, y+h)
		page.Blocks = append(page.Blocks, b)
		chars += len(b.Text)
		for _, row := range b.Cells {
			for _, c := range row {
				chars += len(c)
			}
		}
		y += h + blockGap
	}
	if len(page.Blocks) > 0 || len(pages) == 0 {
		flush()
	}
	return pages
}

func blockHeight(b Block) float64 {
	switch b.Kind {
	case BlockTable:
		rows := len(b.Cells)
		if rows == 0 {
			rows = 1
		}
		return float64(rows) * blockLineHeight * 1.5
	case BlockHeading:
		return blockLineHeight * 1.5
	default:
		lines := 1 + len(b.Text)/80
		return float64(lines) * blockLineHeight
	}
}
