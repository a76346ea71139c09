package parsing

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/zombor/receipt-analyzer/internal/receipt"
)

var (
	// ErrAmountNotFound is returned when the text holds no numeric token
	ErrAmountNotFound = errors.New("amount not found")

	// ErrDateNotFound is returned by a strict parser when no date parses
	ErrDateNotFound = errors.New("date not found")
)

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Parser extracts receipt fields from raw OCR text with ordered rules
type Parser struct {
	vendors     []Vendor
	timeSource  receipt.TimeSource
	strictDates bool
}

// Option configures a Parser
type Option func(*Parser)

// WithVendors replaces the vendor table. Order decides which vendor wins.
func WithVendors(vendors []Vendor) Option {
	return func(p *Parser) {
		p.vendors = vendors
	}
}

// WithTimeSource sets the clock used for the date fallback
func WithTimeSource(ts receipt.TimeSource) Option {
	return func(p *Parser) {
		p.timeSource = ts
	}
}

// WithStrictDates makes a missing date an error instead of falling back to now
func WithStrictDates() Option {
	return func(p *Parser) {
		p.strictDates = true
	}
}

// NewParser creates a Parser with the default vendor table and system clock
func NewParser(opts ...Option) *Parser {
	p := &Parser{
		vendors:    DefaultVendors,
		timeSource: &defaultTimeSource{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ExtractFields parses vendor, category, date and amount and builds a
// validated Receipt. The date never fails unless strict dates are on.
func (p *Parser) ExtractFields(rawText string) (*receipt.Receipt, error) {
	vendor, category := p.ParseVendor(rawText)

	date, err := p.findDate(rawText)
	if err != nil {
		if p.strictDates {
			return nil, err
		}
		slog.Warn("Could not parse receipt date, using current date", "error", err)
		date = p.timeSource.Now()
	}

	amount, err := ParseAmount(rawText)
	if err != nil {
		return nil, err
	}

	r, err := receipt.New(vendor, date, amount, category)
	if err != nil {
		return nil, fmt.Errorf("building receipt: %w", err)
	}
	return r, nil
}

// ParseDate returns the first date the strategies find, or the current time
func (p *Parser) ParseDate(text string) time.Time {
	date, err := p.findDate(text)
	if err != nil {
		slog.Warn("No date found in receipt, using current date")
		return p.timeSource.Now()
	}
	return date
}

func (p *Parser) findDate(text string) (time.Time, error) {
	lines := splitLines(text)
	for _, s := range dateStrategies {
		if date, ok := s.find(text, lines); ok {
			return date, nil
		}
	}
	return time.Time{}, ErrDateNotFound
}

// splitLines splits on any line ending
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}

var defaultParser = NewParser()

// ExtractFields parses rawText with the default parser
func ExtractFields(rawText string) (*receipt.Receipt, error) {
	return defaultParser.ExtractFields(rawText)
}

// ParseVendor matches text against the default vendor table
func ParseVendor(text string) (vendor, category string) {
	return defaultParser.ParseVendor(text)
}

// ParseDate finds a date with the default parser
func ParseDate(text string) time.Time {
	return defaultParser.ParseDate(text)
}
