package extraction

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Noise removed from OCR text before pattern matching. Dates run before
// times so that "12/25/2024" is removed whole instead of leaving "/2024".
var noisePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{2,4}\b`), // 7/4/25, 12/25/2024
	regexp.MustCompile(`\b\d{1,2}[:/]\d{2}\b`),        // 9:30, 9/30
	regexp.MustCompile(`\$\d+`),                       // $40
	regexp.MustCompile(`\bwww\.\S+\b`),                // www.example.com
	regexp.MustCompile(`\b\S+@\S+\.\S+\b`),            // tickets@example.com
}

var (
	reLineBreakRun = regexp.MustCompile(`\s*\n\s*`)
	reSpaceRun     = regexp.MustCompile(`[^\S\n]+`)
)

// Normalize cleans raw OCR text. It strips times of day, currency amounts,
// dates, www URLs and email addresses, then collapses whitespace: runs that
// contain a line break become a single newline, all other runs a single
// space. Line structure is kept because pattern extraction scores names that
// stand alone on a line.
//
// Normalize is pure and idempotent.
func Normalize(text string) string {
	s := text
	// A removal can join its neighbours into a new match, so repeat until
	// nothing changes. Every productive pass shortens s.
	for {
		before := s
		s = norm.NFC.String(s)
		for _, re := range noisePatterns {
			s = re.ReplaceAllString(s, "")
		}
		if s == before {
			break
		}
	}

	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = reLineBreakRun.ReplaceAllString(s, "\n")
	s = reSpaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
