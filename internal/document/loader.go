package document

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Loader converts raw document bytes into a Document.
type Loader interface {
	Load(r io.Reader, filename string) (*Document, error)
}

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".pdf":  true,
	".docx": true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".tif":  true,
	".tiff": true,
}

// ForFile returns the appropriate loader for a filename.
func ForFile(filename string) (Loader, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt":
		return &TextLoader{}, nil
	case ".md", ".markdown":
		return &MarkdownLoader{}, nil
	case ".pdf":
		return &PDFLoader{}, nil
	case ".docx":
		return &DOCXLoader{}, nil
	case ".png", ".jpg", ".jpeg", ".tif", ".tiff":
		return &ImageLoader{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

// Load reads all bytes, hashes them, and dispatches to the loader for
// the file's extension.
func Load(r io.Reader, filename string) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrMalformed)
	}

	loader, err := ForFile(filename)
	if err != nil {
		return nil, err
	}
	doc, err := loader.Load(bytes.NewReader(data), filename)
	if err != nil {
		return nil, err
	}
	doc.ContentHash = ContentHashHex(data)
	if doc.ID == "" {
		doc.ID = doc.ContentHash[:16]
	}
	doc.Filename = filename
	return doc, nil
}
