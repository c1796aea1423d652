package catalog

import (
	"math"
	"testing"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"Daft Punk", "Daft Punk", 1.0},
		{"daft punk", "  DAFT PUNK ", 1.0},
		{"Chemical Brothers", "The Chemical Brothers", 0.9},
		{"Justice Band", "Justice", 0.9},
		{"Beatles", "The Beatles Tribute Band", 0.25},
		{"Park", "National Park Band", 1.0 / 3.0},
		{"Four Tet", "Tet Four", 1.0},
		{"Four Tet", "Bicep", 0},
		{"", "Bicep", 0},
		{"Bicep", "   ", 0},
	}
	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			if got := Similarity(tt.a, tt.b); !approx(got, tt.want) {
				t.Errorf("Similarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestJaccard(t *testing.T) {
	if got := Jaccard("a b c", "b c d"); !approx(got, 0.5) {
		t.Errorf("expected 0.5, got %v", got)
	}
	if got := Jaccard("A  a", "a"); !approx(got, 1) {
		t.Errorf("expected duplicate tokens to collapse, got %v", got)
	}
	if got := Jaccard("", ""); got != 0 {
		t.Errorf("expected 0 for empty sets, got %v", got)
	}
}

func TestBestMatch_Exact(t *testing.T) {
	entries := []Entry{
		{ID: "1", DisplayName: "Daft Punk Tribute"},
		{ID: "2", DisplayName: "Daft Punk"},
	}
	m, ok := BestMatch("Daft Punk", entries, DefaultAcceptThreshold)
	if !ok {
		t.Fatal("expected a match")
	}
	if m.Entry.ID != "2" || m.Score != 1.0 {
		t.Errorf("expected entry 2 at 1.0, got %s at %v", m.Entry.ID, m.Score)
	}
	if m.Query != "Daft Punk" {
		t.Errorf("expected query to be carried, got %q", m.Query)
	}
}

func TestBestMatch_Rejections(t *testing.T) {
	tests := []struct {
		query string
		entry string
	}{
		{"Beatles", "The Beatles Tribute Band"},
		{"Park", "National Park Band"},
		{"Justice", "Injustice League"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			_, ok := BestMatch(tt.query, []Entry{{ID: "x", DisplayName: tt.entry}}, DefaultAcceptThreshold)
			if ok {
				t.Errorf("%q vs %q: expected no match", tt.query, tt.entry)
			}
		})
	}
}

func TestBestMatch_TieKeepsFirst(t *testing.T) {
	entries := []Entry{
		{ID: "first", DisplayName: "Bicep"},
		{ID: "second", DisplayName: "bicep"},
	}
	m, ok := BestMatch("BICEP", entries, DefaultAcceptThreshold)
	if !ok || m.Entry.ID != "first" {
		t.Errorf("expected first entry on tie, got %+v ok=%v", m, ok)
	}
}

func TestBestMatch_ThresholdIsStrict(t *testing.T) {
	// Containment scores exactly 0.9.
	entries := []Entry{{ID: "1", DisplayName: "The Chemical Brothers"}}
	if _, ok := BestMatch("Chemical Brothers", entries, 0.9); ok {
		t.Error("score equal to threshold must be rejected")
	}
	if _, ok := BestMatch("Chemical Brothers", entries, 0.89); !ok {
		t.Error("score above threshold must be accepted")
	}
}

func TestBestMatch_NoEntries(t *testing.T) {
	m, ok := BestMatch("Bicep", nil, DefaultAcceptThreshold)
	if ok {
		t.Error("expected no match with no entries")
	}
	if m.Query != "Bicep" {
		t.Errorf("expected query on empty result, got %q", m.Query)
	}
}
