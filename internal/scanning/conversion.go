package scanning

import (
	"bytes"
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// DefaultDPI is the resolution PDF pages are rendered at for OCR
const DefaultDPI = 300

// FitzRasterizer implements the Rasterizer interface using MuPDF
type FitzRasterizer struct {
	dpi float64
}

// NewFitzRasterizer creates a rasterizer; dpi <= 0 uses DefaultDPI
func NewFitzRasterizer(dpi float64) *FitzRasterizer {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return &FitzRasterizer{dpi: dpi}
}

// Rasterize renders every page of the PDF at pdfPath
func (r *FitzRasterizer) Rasterize(pdfPath string) ([]image.Image, error) {
	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	pages := make([]image.Image, 0, doc.NumPage())
	for n := 0; n < doc.NumPage(); n++ {
		img, err := doc.ImageDPI(n, r.dpi)
		if err != nil {
			return nil, fmt.Errorf("rendering PDF page %d: %w", n+1, err)
		}
		pages = append(pages, img)
	}
	return pages, nil
}

// NormalizeUpload converts HEIC/HEIF photos to PNG and renames them to .png.
// Any other file is returned unchanged.
func NormalizeUpload(filename string, data []byte) (string, []byte, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext != ".heic" && ext != ".heif" && !isHEICFormat(data) {
		return filename, data, nil
	}

	img, err := heic.Decode(bytes.NewReader(data))
	if err != nil {
		return "", nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return "", nil, fmt.Errorf("encoding PNG: %w", err)
	}

	return strings.TrimSuffix(filename, filepath.Ext(filename)) + ".png", buf.Bytes(), nil
}

// isHEICFormat checks for an ftyp box with a HEIC-related brand
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}
