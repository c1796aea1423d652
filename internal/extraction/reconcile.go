package extraction

import (
	"cmp"
	"slices"
)

// DefaultThreshold is the minimum reconciled confidence used when callers
// do not supply one.
const DefaultThreshold = 0.7

// Method labels reported for a reconciliation.
const (
	MethodUsedPattern  = "pattern_matching"
	MethodUsedCombined = "combined"
	MethodUsedVision   = "ai_vision"
)

// Result is the output of Reconcile.
type Result struct {
	Artists []ReconciledArtist `json:"artists"`

	// Inputs counts the candidates received per method.
	Inputs map[Method]int `json:"inputs"`

	// Retained counts the artists in Artists per winning method.
	Retained map[Method]int `json:"retained"`
}

// PatternInputs returns the number of pattern candidates that were reconciled.
func (r Result) PatternInputs() int {
	return r.Inputs[MethodPattern]
}

// AIInputs returns the number of AI candidates that were reconciled.
func (r Result) AIInputs() int {
	n := 0
	for m, c := range r.Inputs {
		if m.IsAI() {
			n += c
		}
	}
	return n
}

// MethodUsed reports whether any AI source contributed candidates.
func (r Result) MethodUsed() string {
	if r.AIInputs() > 0 {
		return MethodUsedCombined
	}
	return MethodUsedPattern
}

// Reconcile merges candidate sets into one ranked artist list.
//
// Sets are concatenated in the order given and folded by case-insensitive
// name. A later candidate replaces the held one only when its confidence is
// strictly greater, so on ties the earliest set wins; callers pass pattern
// candidates first to make them the tie-break default. The surviving name
// keeps the surface form of the winning candidate. Entries below threshold
// are dropped and the rest are sorted by descending confidence, stable on
// ties.
func Reconcile(sets [][]Candidate, threshold float64) Result {
	res := Result{
		Artists:  []ReconciledArtist{},
		Inputs:   make(map[Method]int),
		Retained: make(map[Method]int),
	}

	var order []string
	best := make(map[string]Candidate)
	for _, set := range sets {
		for _, c := range set {
			res.Inputs[c.Method]++
			key := nameKey(c.Name)
			held, ok := best[key]
			if !ok {
				order = append(order, key)
				best[key] = c
				continue
			}
			if c.Confidence > held.Confidence {
				best[key] = c
			}
		}
	}

	for _, key := range order {
		c := best[key]
		if c.Confidence < threshold {
			continue
		}
		res.Artists = append(res.Artists, ReconciledArtist{
			Name:       c.Name,
			Confidence: c.Confidence,
			Method:     c.Method,
		})
	}

	slices.SortStableFunc(res.Artists, func(a, b ReconciledArtist) int {
		return cmp.Compare(b.Confidence, a.Confidence)
	})

	for _, a := range res.Artists {
		res.Retained[a.Method]++
	}
	return res
}
