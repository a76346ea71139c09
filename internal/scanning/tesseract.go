package scanning

import (
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// Tesseract implements the Engine interface using the gosseract client
type Tesseract struct {
	languages     []string
	clientFactory func() *gosseract.Client
}

// NewTesseract creates a Tesseract engine; languages default to "eng"
func NewTesseract(languages ...string) *Tesseract {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	return &Tesseract{
		languages:     languages,
		clientFactory: gosseract.NewClient,
	}
}

// Recognize runs Tesseract on the image at imagePath with a fresh client
func (t *Tesseract) Recognize(imagePath string) (string, error) {
	c := t.clientFactory()
	defer c.Close()

	if err := c.SetLanguage(t.languages...); err != nil {
		return "", fmt.Errorf("set languages: %w", err)
	}
	if err := c.SetImage(imagePath); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	text, err := c.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// Close is a no-op; clients are closed after every recognition
func (t *Tesseract) Close() error {
	return nil
}
