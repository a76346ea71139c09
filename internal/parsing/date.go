package parsing

import (
	"regexp"
	"strings"
	"time"
)

// dateStrategy finds a date candidate and tries each layout in order.
// A lineFilter restricts the search to lines containing that word.
type dateStrategy struct {
	name       string
	lineFilter string
	patterns   []*regexp.Regexp
	layouts    []string
}

const monthPattern = `(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*`

var dateStrategies = []dateStrategy{
	{
		name:       "date line",
		lineFilter: "date",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(\d{2}[/-]\d{2}[/-]\d{2,4}|\d{8})`),
		},
		layouts: []string{"02/01/2006", "02-01-2006", "02/01/06", "02-01-06", "02012006"},
	},
	{
		name: "full text",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b\d{2}[/-]\d{2}[/-]\d{4}\b`),
			regexp.MustCompile(`(?i)\b\d{4}[/-]\d{2}[/-]\d{2}\b`),
			regexp.MustCompile(`(?i)\b\d{2}[/-]\d{2}[/-]\d{2}\b`),
			regexp.MustCompile(`(?i)\b\d{8}\b`),
			regexp.MustCompile(`(?i)\b\d{1,2} ` + monthPattern + ` \d{4}\b`),
			regexp.MustCompile(`(?i)\b` + monthPattern + ` \d{1,2},? \d{4}\b`),
		},
		layouts: []string{
			"02-01-2006", "02/01/2006", "2006-01-02", "2006/01/02",
			"02-01-06", "02/01/06", "02012006",
			"2 January 2006", "January 2, 2006", "2 Jan 2006", "Jan 2, 2006",
		},
	},
}

func (s dateStrategy) find(text string, lines []string) (time.Time, bool) {
	if s.lineFilter == "" {
		return s.match(text)
	}
	for _, line := range lines {
		if !strings.Contains(strings.ToLower(line), s.lineFilter) {
			continue
		}
		if date, ok := s.match(line); ok {
			return date, true
		}
	}
	return time.Time{}, false
}

// match tries the first hit of each pattern against every layout
func (s dateStrategy) match(text string) (time.Time, bool) {
	for _, re := range s.patterns {
		candidate := re.FindString(text)
		if candidate == "" {
			continue
		}
		for _, layout := range s.layouts {
			if date, err := time.Parse(layout, candidate); err == nil {
				return date, true
			}
		}
	}
	return time.Time{}, false
}
