package detect

import (
	"context"

	"github.com/dgallion1/docrecon/internal/document"
)

// TextSource emits detections from a page's native text layer. Direct
// extraction is lossless, so every detection carries confidence 1.0 and
// no semantic type claim beyond unknown — classification is the layout
// source's job.
type TextSource struct{}

func (s *TextSource) Kind() Kind { return KindText }

func (s *TextSource) Detect(ctx context.Context, page *document.Page) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, &SourceError{Source: KindText, Err: ErrTimeout}
	}

	var dets []Detection
	for _, run := range page.TextRuns {
		if run.BBox.Empty() || run.Text == "" {
			continue
		}
		dets = append(dets, Detection{
			Source:     KindText,
			BBox:       run.BBox,
			Text:       run.Text,
			Confidence: 1.0,
			Type:       TypeUnknown,
			Column:     -1,
		})
	}

	// Structured formats carry their text in blocks. Table blocks are
	// left to the table source.
	for _, b := range page.Blocks {
		if b.Kind == document.BlockTable || b.Text == "" || b.BBox.Empty() {
			continue
		}
		dets = append(dets, Detection{
			Source:     KindText,
			BBox:       b.BBox,
			Text:       b.Text,
			Confidence: 1.0,
			Type:       TypeUnknown,
			Column:     -1,
		})
	}
	return dets, nil
}
