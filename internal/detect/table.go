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

// TableSource yields table-region detections plus the extracted cell
// grid. Structured table blocks are authoritative; pixel pages go
// through an external detector printing JSON tables. Detections below
// MinConfidence are not emitted at all.
type TableSource struct {
	Binary        string  // external detector for pixel pages; optional
	MinConfidence float64 // default 0.5
}

func (s *TableSource) Kind() Kind { return KindTable }

// tableRegion is one table in the external detector's JSON output.
type tableRegion struct {
	BBox       [4]float64 `json:"bbox"`
	Confidence float64    `json:"confidence"`
	Cells      [][]string `json:"cells"`
}

func (s *TableSource) Detect(ctx context.Context, page *document.Page) ([]Detection, error) {
	minConf := s.MinConfidence
	if minConf <= 0 {
		minConf = 0.5
	}

	var dets []Detection
	for _, b := range page.Blocks {
		if b.Kind != document.BlockTable || b.BBox.Empty() || len(b.Cells) == 0 {
			continue
		}
		dets = append(dets, Detection{
			Source:     KindTable,
			BBox:       b.BBox,
			Cells:      b.Cells,
			Confidence: 1.0,
			Type:       TypeTable,
			Column:     -1,
		})
	}
	if len(dets) > 0 {
		return dets, nil
	}

	if page.ImagePath == "" || s.Binary == "" {
		// No tabular input available for this page.
		return nil, nil
	}
	if _, err := exec.LookPath(s.Binary); err != nil {
		return nil, &SourceError{Source: KindTable, Err: fmt.Errorf("%w: %s not found", ErrUnavailable, s.Binary)}
	}

	cmd := exec.CommandContext(ctx, s.Binary, page.ImagePath)
	out, err := cmd.Output()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(ctx.Err(), context.Canceled) {
			return nil, &SourceError{Source: KindTable, Err: ErrTimeout}
		}
		return nil, &SourceError{Source: KindTable, Err: fmt.Errorf("%s: %w", s.Binary, err)}
	}

	var payload struct {
		Tables []tableRegion `json:"tables"`
	}
	if err := json.Unmarshal(out, &payload); err != nil {
		return nil, &SourceError{Source: KindTable, Err: fmt.Errorf("decode table output: %w", err)}
	}

	for _, t := range payload.Tables {
		box := geom.New(t.BBox[0], t.BBox[1], t.BBox[2], t.BBox[3])
		if box.Empty() || t.Confidence < minConf {
			continue
		}
		dets = append(dets, Detection{
			Source:     KindTable,
			BBox:       box,
			Cells:      t.Cells,
			Confidence: t.Confidence,
			Type:       TypeTable,
			Column:     -1,
		})
	}
	return dets, nil
}
