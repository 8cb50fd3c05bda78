package detect

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/dgallion1/docrecon/internal/document"
)

// OCRSource recognizes text on rendered page images by shelling out to
// an hOCR-producing engine (tesseract by default). Word confidences are
// averaged per paragraph and carried through on each detection.
type OCRSource struct {
	Binary   string // defaults to "tesseract"
	Language string // defaults to "eng"

	// MinConfidence drops paragraphs the engine itself is unsure about.
	MinConfidence float64
}

func (s *OCRSource) Kind() Kind { return KindOCR }

func (s *OCRSource) Detect(ctx context.Context, page *document.Page) ([]Detection, error) {
	if page.ImagePath == "" {
		// Nothing rendered to recognize.
		return nil, nil
	}

	bin := s.Binary
	if bin == "" {
		bin = "tesseract"
	}
	lang := s.Language
	if lang == "" {
		lang = "eng"
	}

	if _, err := exec.LookPath(bin); err != nil {
		return nil, &SourceError{Source: KindOCR, Err: fmt.Errorf("%w: %s not found", ErrUnavailable, bin)}
	}

	cmd := exec.CommandContext(ctx, bin, page.ImagePath, "stdout", "-l", lang, "hocr")
	out, err := cmd.Output()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(ctx.Err(), context.Canceled) {
			return nil, &SourceError{Source: KindOCR, Err: ErrTimeout}
		}
		return nil, &SourceError{Source: KindOCR, Err: fmt.Errorf("%s: %w", bin, err)}
	}

	blocks, err := parseHOCR(out)
	if err != nil {
		return nil, &SourceError{Source: KindOCR, Err: err}
	}

	var dets []Detection
	for _, b := range blocks {
		if b.BBox.Empty() || b.Confidence < s.MinConfidence {
			continue
		}
		dets = append(dets, Detection{
			Source:     KindOCR,
			BBox:       b.BBox,
			Text:       b.Text,
			Confidence: b.Confidence,
			Type:       TypeUnknown,
			Column:     -1,
		})
	}
	return dets, nil
}
