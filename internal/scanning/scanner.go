package scanning

import (
	"errors"
	"fmt"
	"image"
	"path/filepath"
)

// ErrUnsupportedFormat is returned for a file extension the extractor cannot read
var ErrUnsupportedFormat = errors.New("unsupported file extension")

// ExtractionError reports an OCR, rasterization or I/O failure for one file
type ExtractionError struct {
	Path string
	Op   string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, filepath.Base(e.Path), e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Engine recognizes text in an image file
type Engine interface {
	// Recognize returns the text found in the image at imagePath
	Recognize(imagePath string) (string, error)
	// Close closes the engine and releases resources
	Close() error
}

// Rasterizer renders every page of a PDF to an image, in page order
type Rasterizer interface {
	Rasterize(pdfPath string) ([]image.Image, error)
}
