package extraction

import "strings"

// Method identifies the extractor that produced a candidate.
type Method string

// MethodPattern tags candidates produced by the regex pattern extractor.
const MethodPattern Method = "pattern"

const aiMethodPrefix = "ai:"

// AIMethod returns the method tag for candidates produced by the named AI provider.
func AIMethod(provider string) Method {
	return Method(aiMethodPrefix + provider)
}

// IsAI reports whether the method belongs to an AI extractor.
func (m Method) IsAI() bool {
	return strings.HasPrefix(string(m), aiMethodPrefix)
}

// Provider returns the provider name of an AI method, or "" for non-AI methods.
func (m Method) Provider() string {
	if !m.IsAI() {
		return ""
	}
	return strings.TrimPrefix(string(m), aiMethodPrefix)
}

// Candidate is a single proposed artist name emitted by an extractor.
// Candidates are values: extractors create them, the reconciler selects
// among them, nothing edits them afterwards.
type Candidate struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Method     Method  `json:"method"`
	Context    string  `json:"context,omitempty"`
}

// ReconciledArtist is the merged result for one case-insensitive artist name.
type ReconciledArtist struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Method     Method  `json:"method"`
}

// Image is a flyer image handed to vision-capable extractors.
type Image struct {
	Data     []byte
	MIMEType string
}

// nameKey is the merge key used for case-insensitive deduplication.
func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
