package catalog

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
)

type fakeSearcher struct {
	entries []Entry
	err     error
	queries []string
}

func (f *fakeSearcher) Name() ProviderName { return NameDeezer }

func (f *fakeSearcher) SearchArtists(_ context.Context, name string) ([]Entry, error) {
	f.queries = append(f.queries, name)
	return f.entries, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestResolver_Resolve(t *testing.T) {
	s := &fakeSearcher{entries: []Entry{
		{ID: "27", DisplayName: "Daft Punk", Source: NameDeezer},
	}}
	r := NewResolver(s, 0, testLogger())

	m, ok, err := r.Resolve(context.Background(), "daft punk")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !ok || m.Entry.ID != "27" {
		t.Errorf("expected match 27, got %+v ok=%v", m, ok)
	}
	if r.Catalog() != NameDeezer {
		t.Errorf("expected deezer, got %q", r.Catalog())
	}
}

func TestResolver_NoMatch(t *testing.T) {
	s := &fakeSearcher{entries: []Entry{{ID: "1", DisplayName: "The Beatles Tribute Band"}}}
	r := NewResolver(s, DefaultAcceptThreshold, testLogger())

	_, ok, err := r.Resolve(context.Background(), "Beatles")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ok {
		t.Error("expected no match")
	}
}

func TestResolver_SearchError(t *testing.T) {
	cause := &ErrProviderUnavailable{Provider: NameDeezer, Cause: errors.New("timeout")}
	r := NewResolver(&fakeSearcher{err: cause}, 0, testLogger())

	_, ok, err := r.Resolve(context.Background(), "Bicep")
	if ok {
		t.Error("expected no match on error")
	}
	var unavailable *ErrProviderUnavailable
	if !errors.As(err, &unavailable) {
		t.Errorf("expected ErrProviderUnavailable, got %v", err)
	}
}
