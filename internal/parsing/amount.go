package parsing

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	totalPattern  = regexp.MustCompile(`(?i)TOTAL\s*[:\-]?\s*₹?\s*(\d+(?:,\d+)*\.?\d*)`)
	amountPattern = regexp.MustCompile(`(?i)(?:Total|Amount|Rs|INR)?\s*[:\-]?\s*₹?\s*(\d+(?:,\d+)*\.?\d*)`)
)

// ParseAmount returns the number after the first TOTAL label, or else the
// last number in the text. Thousands separators are dropped.
func ParseAmount(text string) (float64, error) {
	if m := totalPattern.FindStringSubmatch(text); m != nil {
		return parseNumber(m[1])
	}

	matches := amountPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return 0, ErrAmountNotFound
	}
	return parseNumber(matches[len(matches)-1][1])
}

func parseNumber(s string) (float64, error) {
	amount, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0, fmt.Errorf("parsing amount %q: %w", s, err)
	}
	return amount, nil
}
