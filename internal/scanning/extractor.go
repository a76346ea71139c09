package scanning

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

var errNoEngine = errors.New("no OCR engine configured")

// Extractor converts image, PDF and text files into raw text
type Extractor struct {
	engine     Engine
	rasterizer Rasterizer
	tempDir    string
}

// NewExtractor creates an Extractor. Intermediate OCR images are written to
// tempDir, or the system temp directory when it is empty.
func NewExtractor(engine Engine, rasterizer Rasterizer, tempDir string) *Extractor {
	return &Extractor{
		engine:     engine,
		rasterizer: rasterizer,
		tempDir:    tempDir,
	}
}

// ExtractText dispatches on the file extension and returns the trimmed text
func (e *Extractor) ExtractText(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".jpg", ".jpeg", ".png":
		return e.extractImage(path)
	case ".pdf":
		return e.extractPDF(path)
	case ".txt":
		return e.extractPlainText(path)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

func (e *Extractor) extractImage(path string) (string, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return "", &ExtractionError{Path: path, Op: "decoding image", Err: err}
	}

	text, err := e.recognize(img)
	if err != nil {
		return "", &ExtractionError{Path: path, Op: "recognizing text in", Err: err}
	}
	return text, nil
}

func (e *Extractor) extractPDF(path string) (string, error) {
	if e.rasterizer == nil {
		return "", &ExtractionError{Path: path, Op: "rasterizing", Err: errors.New("no PDF rasterizer configured")}
	}

	pages, err := e.rasterizer.Rasterize(path)
	if err != nil {
		return "", &ExtractionError{Path: path, Op: "rasterizing", Err: err}
	}

	var b strings.Builder
	for i, page := range pages {
		text, err := e.recognize(page)
		if err != nil {
			return "", &ExtractionError{Path: path, Op: fmt.Sprintf("recognizing page %d of", i+1), Err: err}
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String()), nil
}

func (e *Extractor) extractPlainText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &ExtractionError{Path: path, Op: "reading", Err: err}
	}
	return strings.TrimSpace(string(data)), nil
}

// recognize thresholds img and runs OCR on a temporary copy of the result
func (e *Extractor) recognize(img image.Image) (string, error) {
	if e.engine == nil {
		return "", errNoEngine
	}

	var text string
	err := withTempImage(e.tempDir, binarize(img), func(path string) error {
		var err error
		text, err = e.engine.Recognize(path)
		return err
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
