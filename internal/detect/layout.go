package detect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"

	"github.com/dgallion1/docrecon/internal/document"
	"github.com/dgallion1/docrecon/internal/geom"
)

// LayoutSource yields coarse region detections with semantic-type
// guesses. Structured formats already know their layout, so blocks map
// straight to typed regions. Pixel pages go through an external layout
// analyzer that prints JSON regions, optionally with column indices.
type LayoutSource struct {
	Binary string // external analyzer for pixel pages; optional
}

func (s *LayoutSource) Kind() Kind { return KindLayout }

// layoutRegion is one region in the external analyzer's JSON output.
type layoutRegion struct {
	BBox       [4]float64 `json:"bbox"`
	Type       string     `json:"type"`
	Confidence float64    `json:"confidence"`
	Column     *int       `json:"column,omitempty"`
}

func (s *LayoutSource) Detect(ctx context.Context, page *document.Page) ([]Detection, error) {
	var dets []Detection

	for _, b := range page.Blocks {
		if b.BBox.Empty() {
			continue
		}
		dets = append(dets, Detection{
			Source:     KindLayout,
			BBox:       b.BBox,
			Confidence: 1.0,
			Type:       blockType(b.Kind),
			Column:     -1,
		})
	}
	if len(dets) > 0 {
		return dets, nil
	}

	if page.ImagePath == "" {
		// Native text page with no analyzer input; layout has nothing
		// to add and the reconciler falls back to its defaults.
		return nil, nil
	}

	if s.Binary == "" {
		return nil, &SourceError{Source: KindLayout, Err: fmt.Errorf("%w: no layout analyzer configured", ErrUnavailable)}
	}
	if _, err := exec.LookPath(s.Binary); err != nil {
		return nil, &SourceError{Source: KindLayout, Err: fmt.Errorf("%w: %s not found", ErrUnavailable, s.Binary)}
	}

	cmd := exec.CommandContext(ctx, s.Binary, page.ImagePath)
	out, err := cmd.Output()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(ctx.Err(), context.Canceled) {
			return nil, &SourceError{Source: KindLayout, Err: ErrTimeout}
		}
		return nil, &SourceError{Source: KindLayout, Err: fmt.Errorf("%s: %w", s.Binary, err)}
	}

	var payload struct {
		Regions []layoutRegion `json:"regions"`
	}
	if err := json.Unmarshal(out, &payload); err != nil {
		return nil, &SourceError{Source: KindLayout, Err: fmt.Errorf("decode layout output: %w", err)}
	}

	for _, r := range payload.Regions {
		box := geom.New(r.BBox[0], r.BBox[1], r.BBox[2], r.BBox[3])
		if box.Empty() {
			continue
		}
		col := -1
		if r.Column != nil {
			col = *r.Column
		}
		dets = append(dets, Detection{
			Source:     KindLayout,
			BBox:       box,
			Confidence: r.Confidence,
			Type:       layoutType(r.Type),
			Column:     col,
		})
	}
	return dets, nil
}

func layoutType(s string) SemanticType {
	switch SemanticType(s) {
	case TypeHeading, TypeParagraph, TypeListItem, TypeCaption, TypeFigure, TypeTable:
		return SemanticType(s)
	default:
		return TypeUnknown
	}
}
