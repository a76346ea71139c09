package parsing

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	unknownVendor = "Unknown Vendor"
	otherCategory = "Other"
)

// Vendor maps a name found in receipt text to a spending category
type Vendor struct {
	Name     string `json:"name" validate:"required"`
	Category string `json:"category" validate:"required"`
}

// DefaultVendors is the built-in vendor table, in match order
var DefaultVendors = []Vendor{
	{Name: "Reliance", Category: "Groceries"},
	{Name: "Amazon", Category: "Shopping"},
	{Name: "Bescom", Category: "Electricity"},
	{Name: "Airtel", Category: "Internet"},
}

// ParseVendor returns the first table vendor contained in text, ignoring case.
// Without a match the first non-blank line is the vendor in category Other.
func (p *Parser) ParseVendor(text string) (vendor, category string) {
	lower := strings.ToLower(text)
	for _, v := range p.vendors {
		if strings.Contains(lower, strings.ToLower(v.Name)) {
			return v.Name, v.Category
		}
	}

	lines := splitLines(strings.TrimSpace(text))
	if len(lines) == 0 {
		return unknownVendor, otherCategory
	}
	return strings.TrimSpace(lines[0]), otherCategory
}

// LoadVendors reads a JSON array of {"name", "category"} entries and
// returns them ahead of DefaultVendors
func LoadVendors(path string) ([]Vendor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading vendors file: %w", err)
	}

	var custom []Vendor
	if err := json.Unmarshal(data, &custom); err != nil {
		return nil, fmt.Errorf("parsing vendors file: %w", err)
	}

	v := validator.New()
	for i := range custom {
		if err := v.Struct(custom[i]); err != nil {
			return nil, fmt.Errorf("vendor entry %d: %w", i+1, err)
		}
	}

	return append(custom, DefaultVendors...), nil
}
