package extraction

import (
	"cmp"
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxPatternCandidates caps the pattern extractor's output.
const MaxPatternCandidates = 20

const (
	minNameLength = 2
	maxNameLength = 50

	// Candidates must score strictly above this to be kept.
	patternScoreFloor = 0.3
)

// Name-shaped expressions: capitalized word runs, all-caps tokens, and
// capitalized names joined by "&" or "and".
var namePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*\b`),
	regexp.MustCompile(`\b[A-Z]+\b`),
	regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+&\s+[A-Z][a-z]+)+\b`),
	regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+and\s+[A-Z][a-z]+)+\b`),
}

// stopWords is festival, scheduling and venue vocabulary. A match that
// contains any of these words is not treated as an artist name.
var stopWords = map[string]struct{}{
	"festival": {}, "fest": {}, "music": {}, "stage": {}, "main": {}, "tent": {},
	"arena": {}, "hall": {}, "presents": {}, "featuring": {}, "with": {},
	"special": {}, "guest": {}, "guests": {}, "live": {}, "concert": {},
	"show": {}, "performance": {}, "event": {}, "venue": {}, "location": {},
	"date": {}, "time": {}, "tickets": {}, "admission": {}, "price": {},
	"cost": {}, "age": {}, "limit": {}, "door": {}, "doors": {}, "open": {},
	"start": {}, "end": {},
	"saturday": {}, "sunday": {}, "monday": {}, "tuesday": {}, "wednesday": {},
	"thursday": {}, "friday": {},
	"january": {}, "february": {}, "march": {}, "april": {}, "may": {},
	"june": {}, "july": {}, "august": {}, "september": {}, "october": {},
	"november": {}, "december": {},
	"am": {}, "pm": {}, "sponsored": {}, "by": {}, "presented": {},
	"produced": {}, "organized": {},
}

// IsStopWord reports whether word (any case) is festival vocabulary.
func IsStopWord(word string) bool {
	_, ok := stopWords[strings.ToLower(word)]
	return ok
}

// ExtractPatterns finds artist-name candidates in normalized flyer text
// using regular expressions and a confidence heuristic. The result is
// deduplicated case-insensitively, sorted by descending confidence and
// holds at most MaxPatternCandidates entries.
func ExtractPatterns(text string) []Candidate {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	lowerText := strings.ToLower(text)

	var found []Candidate
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if len(line) < minNameLength {
			continue
		}

		for _, re := range namePatterns {
			for _, loc := range re.FindAllStringIndex(line, -1) {
				if !wholeWord(line, loc[0], loc[1]) {
					continue
				}
				match := line[loc[0]:loc[1]]
				if containsStopWord(match) {
					continue
				}
				if len(match) < minNameLength || len(match) > maxNameLength {
					continue
				}

				score := patternConfidence(match, line, lowerText)
				if score <= patternScoreFloor {
					continue
				}
				found = append(found, Candidate{
					Name:       strings.TrimSpace(match),
					Confidence: score,
					Method:     MethodPattern,
					Context:    line,
				})
			}
		}
	}

	slices.SortStableFunc(found, func(a, b Candidate) int {
		return cmp.Compare(b.Confidence, a.Confidence)
	})

	seen := make(map[string]struct{}, len(found))
	unique := make([]Candidate, 0, len(found))
	for _, c := range found {
		key := nameKey(c.Name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, c)
	}

	if len(unique) > MaxPatternCandidates {
		unique = unique[:MaxPatternCandidates]
	}
	return unique
}

// wholeWord reports whether line[start:end] is not flanked by letters.
// The regexp \b only knows ASCII word characters, so "Beyoncé" would
// otherwise yield "Beyonc".
func wholeWord(line string, start, end int) bool {
	if r, _ := utf8.DecodeLastRuneInString(line[:start]); r != utf8.RuneError && unicode.IsLetter(r) {
		return false
	}
	if r, _ := utf8.DecodeRuneInString(line[end:]); r != utf8.RuneError && unicode.IsLetter(r) {
		return false
	}
	return true
}

func containsStopWord(match string) bool {
	for _, w := range strings.Fields(match) {
		if IsStopWord(w) {
			return true
		}
	}
	return false
}

// patternConfidence scores a match found on line. lowerText is the whole
// document, lowercased, used to reward names that repeat.
func patternConfidence(match, line, lowerText string) float64 {
	score := 0.5

	if isMixedCase(match) {
		score += 0.2
	}

	if strings.TrimSpace(line) == strings.TrimSpace(match) {
		score += 0.3
	}

	if words := len(strings.Fields(match)); words >= 3 && words <= 4 {
		score += 0.1
	}

	if strings.ContainsFunc(match, unicode.IsDigit) {
		score -= 0.2
	}

	if n := strings.Count(lowerText, strings.ToLower(match)); n > 1 {
		score += min(0.2, float64(n)*0.05)
	}

	return clamp01(score)
}

// isMixedCase reports whether s starts with an upper-case letter and has at
// least one lower-case letter after it.
func isMixedCase(s string) bool {
	runes := []rune(s)
	if len(runes) == 0 || !unicode.IsUpper(runes[0]) {
		return false
	}
	return slices.ContainsFunc(runes[1:], unicode.IsLower)
}
