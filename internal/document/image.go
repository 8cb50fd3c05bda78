package document

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
)

// ImageLoader handles standalone page images (scans, photos). There is
// no native text; the page is OCR-dependent.
type ImageLoader struct{}

func (p *ImageLoader) Load(r io.Reader, filename string) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}

	width, height := syntheticPageWidth, syntheticPageHeight
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		width, height = float64(cfg.Width), float64(cfg.Height)
	}

	// The OCR and table sources run external tools against a file path.
	tmp, err := os.CreateTemp("", "docrecon-img-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	tmp.Close()

	page := &Page{
		Index:     0,
		Width:     width,
		Height:    height,
		ImagePath: tmp.Name(),
	}
	return &Document{Pages: []*Page{page}}, nil
}

// Cleanup removes temp files backing page images. Safe to call on
// documents without any.
func (d *Document) Cleanup() {
	for _, p := range d.Pages {
		if p.ImagePath != "" {
			os.Remove(p.ImagePath)
		}
	}
}
