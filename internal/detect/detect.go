// Package detect defines the uniform detection shape produced by the
// text, OCR, layout, and table sources, plus the source contract the
// orchestrator drives. Sources never see each other's output; merging
// is the reconciler's job.
package detect

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgallion1/docrecon/internal/document"
	"github.com/dgallion1/docrecon/internal/geom"
)

// Kind identifies which extractor produced a detection.
type Kind string

const (
	KindText   Kind = "text"
	KindOCR    Kind = "ocr"
	KindLayout Kind = "layout"
	KindTable  Kind = "table"
)

// SemanticType is a source's guess at what a region is.
type SemanticType string

const (
	TypeHeading   SemanticType = "heading"
	TypeParagraph SemanticType = "paragraph"
	TypeListItem  SemanticType = "list-item"
	TypeCaption   SemanticType = "caption"
	TypeFigure    SemanticType = "figure"
	TypeTable     SemanticType = "table"
	TypeUnknown   SemanticType = "unknown"
)

// Detection is a single source's raw output for a page region.
type Detection struct {
	Source     Kind         `json:"source"`
	BBox       geom.BBox    `json:"bbox"`
	Text       string       `json:"text,omitempty"`
	Cells      [][]string   `json:"cells,omitempty"` // table detections only
	Confidence float64      `json:"confidence"`
	Type       SemanticType `json:"type"`

	// Column is the column index asserted by layout analysis, or -1
	// when the source makes no multi-column claim.
	Column int `json:"column,omitempty"`
}

// Source produces detections for one page. Implementations are
// read-only over the page and safe to run concurrently with each other.
type Source interface {
	Kind() Kind
	Detect(ctx context.Context, page *document.Page) ([]Detection, error)
}

// ErrUnavailable marks a source whose external dependency is missing.
// The page degrades; the parse continues.
var ErrUnavailable = errors.New("source unavailable")

// ErrTimeout marks a source call that exceeded its deadline.
var ErrTimeout = errors.New("source timeout")

// SourceError wraps a source failure with the source name so page
// results can report which source degraded.
type SourceError struct {
	Source Kind
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s source: %s", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// blockType maps structured block kinds to semantic types.
func blockType(kind document.BlockKind) SemanticType {
	switch kind {
	case document.BlockHeading:
		return TypeHeading
	case document.BlockListItem:
		return TypeListItem
	case document.BlockTable:
		return TypeTable
	default:
		return TypeParagraph
	}
}
