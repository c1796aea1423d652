package ai

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/festlist/festlist/internal/extraction"
)

// candidateSchema describes one element of a model's JSON answer.
const candidateSchema = `{
	"type": "object",
	"required": ["name", "confidence"],
	"properties": {
		"name": {"type": "string"},
		"confidence": {"type": "number"}
	}
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("candidate.json", strings.NewReader(candidateSchema)); err != nil {
			schemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile("candidate.json")
	})
	return schema, schemaErr
}

// FindJSONArray returns the first balanced [...] substring of s that is a
// well-formed JSON array, preferring one that holds at least one object.
// Brackets inside JSON string literals are ignored. ok is false when s holds
// no well-formed array.
func FindJSONArray(s string) (string, bool) {
	fallback := ""
	for start := 0; start < len(s); start++ {
		if s[start] != '[' {
			continue
		}
		end := matchBracket(s, start)
		if end < 0 {
			continue
		}
		span := s[start : end+1]
		var items []any
		if json.Unmarshal([]byte(span), &items) != nil {
			continue
		}
		for _, item := range items {
			if _, isObj := item.(map[string]any); isObj {
				return span, true
			}
		}
		if fallback == "" {
			fallback = span
		}
	}
	return fallback, fallback != ""
}

// matchBracket returns the index of the ']' closing the '[' at open, or -1.
func matchBracket(s string, open int) int {
	depth := 0
	inString := false
	escaped := false
	for i := open; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// ParseCandidates turns a raw model answer into candidates tagged with
// provider. Prose around the JSON array is ignored. Entries that fail schema
// validation, have a blank name, or do not look like an artist are skipped;
// confidences are clamped to [0, 1]. Any structural failure yields an empty
// result and an error describing why.
func ParseCandidates(raw, provider string) ([]extraction.Candidate, error) {
	arr, ok := FindJSONArray(raw)
	if !ok {
		return []extraction.Candidate{}, fmt.Errorf("no JSON array in response")
	}

	var items []any
	if err := json.Unmarshal([]byte(arr), &items); err != nil {
		return []extraction.Candidate{}, fmt.Errorf("decoding JSON array: %w", err)
	}

	sch, err := compiledSchema()
	if err != nil {
		return []extraction.Candidate{}, err
	}

	method := extraction.AIMethod(provider)
	out := make([]extraction.Candidate, 0, len(items))
	for _, item := range items {
		if sch.Validate(item) != nil {
			continue
		}
		obj := item.(map[string]any)
		name := strings.TrimSpace(obj["name"].(string))
		conf := obj["confidence"].(float64)
		if name == "" || !IsLikelyArtistName(name) {
			continue
		}
		out = append(out, extraction.Candidate{
			Name:       name,
			Confidence: min(1, max(0, conf)),
			Method:     method,
		})
	}
	return out, nil
}

// excludedTerms are whole answers a model sometimes returns that are never
// artist names.
var excludedTerms = map[string]struct{}{
	"festival": {}, "music": {}, "stage": {}, "main": {}, "tent": {}, "area": {}, "zone": {},
	"tickets": {}, "price": {}, "cost": {}, "free": {}, "admission": {}, "entry": {},
	"food": {}, "drinks": {}, "bar": {}, "restaurant": {}, "vendor": {},
	"parking": {}, "shuttle": {}, "transport": {}, "bus": {},
	"saturday": {}, "sunday": {}, "monday": {}, "tuesday": {}, "wednesday": {}, "thursday": {}, "friday": {},
	"january": {}, "february": {}, "march": {}, "april": {}, "may": {}, "june": {},
	"july": {}, "august": {}, "september": {}, "october": {}, "november": {}, "december": {},
	"am": {}, "pm": {}, "time": {}, "schedule": {}, "lineup": {},
	"sponsored": {}, "presents": {}, "featuring": {}, "with": {},
}

var (
	reClockTime = regexp.MustCompile(`^\d{1,2}:\d{2}`)
	reHourMark  = regexp.MustCompile(`^\d{1,2}(am|pm)`)
	rePrice     = regexp.MustCompile(`^\$\d+`)
)

// IsLikelyArtistName rejects obvious non-artist answers: excluded terms,
// times of day and prices.
func IsLikelyArtistName(name string) bool {
	lower := strings.ToLower(strings.TrimSpace(name))
	if len(lower) < 2 {
		return false
	}
	if _, ok := excludedTerms[lower]; ok {
		return false
	}
	if reClockTime.MatchString(lower) || reHourMark.MatchString(lower) {
		return false
	}
	if rePrice.MatchString(lower) || strings.Contains(lower, "dollar") {
		return false
	}
	return true
}
