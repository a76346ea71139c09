package scanning

import (
	"fmt"
	"image"
	"image/color"
	"os"

	"github.com/disintegration/imaging"
)

// binarize converts img to grayscale and applies an Otsu threshold, leaving
// only black and white pixels
func binarize(img image.Image) *image.NRGBA {
	gray := imaging.Grayscale(img)
	threshold := otsuThreshold(gray)
	return imaging.AdjustFunc(gray, func(c color.NRGBA) color.NRGBA {
		if c.R > threshold {
			return color.NRGBA{R: 255, G: 255, B: 255, A: c.A}
		}
		return color.NRGBA{A: c.A}
	})
}

// otsuThreshold picks the gray level that maximizes between-class variance.
// gray must already be grayscale, so only the red channel is read.
func otsuThreshold(gray *image.NRGBA) uint8 {
	var hist [256]float64
	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	for y := 0; y < h; y++ {
		row := gray.Pix[y*gray.Stride : y*gray.Stride+w*4]
		for x := 0; x < len(row); x += 4 {
			hist[row[x]]++
		}
	}

	total := float64(w * h)
	var sum float64
	for i, n := range hist {
		sum += float64(i) * n
	}

	var (
		sumBack, weightBack float64
		best                = -1.0
		threshold           uint8
	)
	for t := 0; t < 256; t++ {
		weightBack += hist[t]
		if weightBack == 0 {
			continue
		}
		weightFore := total - weightBack
		if weightFore == 0 {
			break
		}
		sumBack += float64(t) * hist[t]
		meanBack := sumBack / weightBack
		meanFore := (sum - sumBack) / weightFore
		variance := weightBack * weightFore * (meanBack - meanFore) * (meanBack - meanFore)
		if variance > best {
			best = variance
			threshold = uint8(t)
		}
	}
	return threshold
}

// withTempImage writes img to a temporary PNG in dir, calls fn with its path
// and removes the file on every return path
func withTempImage(dir string, img image.Image, fn func(path string) error) error {
	f, err := os.CreateTemp(dir, "ocr-*.png")
	if err != nil {
		return fmt.Errorf("creating temp image: %w", err)
	}
	defer os.Remove(f.Name())

	if err := imaging.Encode(f, img, imaging.PNG); err != nil {
		f.Close()
		return fmt.Errorf("writing temp image: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing temp image: %w", err)
	}

	return fn(f.Name())
}
