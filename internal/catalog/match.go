package catalog

import (
	"strings"
	"unicode/utf8"
)

// DefaultAcceptThreshold is the score a candidate must strictly exceed to be
// accepted as a catalog match.
const DefaultAcceptThreshold = 0.7

// MinContainmentRatio is the smallest length ratio (shorter/longer) at which
// one name containing the other counts as a containment match.
const MinContainmentRatio = 0.5

const (
	exactScore       = 1.0
	containmentScore = 0.9
)

// MatchResult binds an extracted artist name to a catalog entry.
type MatchResult struct {
	Query string  `json:"query"`
	Entry Entry   `json:"entry"`
	Score float64 `json:"score"`
}

// Similarity scores how well name a matches catalog name b, in [0, 1].
//
// Case-insensitive equality of the trimmed names scores 1.0. If one name
// contains the other and the shorter is at least MinContainmentRatio of the
// longer, the score is 0.9. Otherwise it is the Jaccard index of the two
// whitespace token sets.
//
// Scoring every substring 0.9 would accept "Beatles" for "The Beatles
// Tribute Band" and "Park" for "National Park Band"; the ratio gate keeps
// both below the acceptance threshold.
func Similarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return exactScore
	}

	short, long := a, b
	if utf8.RuneCountInString(short) > utf8.RuneCountInString(long) {
		short, long = long, short
	}
	if strings.Contains(long, short) {
		ratio := float64(utf8.RuneCountInString(short)) / float64(utf8.RuneCountInString(long))
		if ratio >= MinContainmentRatio {
			return containmentScore
		}
	}

	return Jaccard(a, b)
}

// Jaccard returns |A∩B| / |A∪B| over the lowercase whitespace-separated
// tokens of a and b, or 0 if either has no tokens.
func Jaccard(a, b string) float64 {
	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	shared := 0
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			shared++
		}
	}
	union := len(ta) + len(tb) - shared
	return float64(shared) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// BestMatch picks the entry whose display name best matches query. The
// highest score wins and ties keep the earlier entry. The match is accepted
// only if its score is strictly greater than threshold; ok is false when
// nothing qualifies, which is not an error.
func BestMatch(query string, entries []Entry, threshold float64) (MatchResult, bool) {
	best := MatchResult{Query: query, Score: -1}
	for _, e := range entries {
		score := Similarity(query, e.DisplayName)
		if score > best.Score {
			best.Entry = e
			best.Score = score
		}
	}
	if best.Score <= threshold {
		return MatchResult{Query: query}, false
	}
	return best, true
}
