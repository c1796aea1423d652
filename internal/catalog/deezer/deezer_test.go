package deezer

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/festlist/festlist/internal/catalog"
	"github.com/festlist/festlist/internal/ratelimit"
)

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile("testdata/" + name)
	if err != nil {
		t.Fatalf("loading fixture %s: %v", name, err)
	}
	return data
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.URL.Path == "/search/artist":
			switch r.URL.Query().Get("q") {
			case "no-results-query":
				w.Write([]byte(`{"data":[],"total":0}`))
			case "quota":
				w.Write([]byte(`{"error":{"type":"Exception","message":"Quota limit exceeded","code":4}}`))
			default:
				w.Write(loadFixture(t, "search_daft_punk.json"))
			}

		case strings.HasPrefix(r.URL.Path, "/artist/") && strings.HasSuffix(r.URL.Path, "/top"):
			if strings.Contains(r.URL.Path, "/404/") {
				w.Write([]byte(`{"error":{"type":"DataException","message":"no data","code":800}}`))
				return
			}
			w.Write(loadFixture(t, "top_daft_punk.json"))

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func newTestAdapter(t *testing.T, baseURL string) *Adapter {
	t.Helper()
	limiter := ratelimit.NewMap()
	limiter.Set(ratelimit.Deezer, 1000)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewWithBaseURL(limiter, logger, baseURL)
}

func TestName(t *testing.T) {
	a := newTestAdapter(t, "http://localhost")
	if a.Name() != catalog.NameDeezer {
		t.Errorf("expected %q, got %q", catalog.NameDeezer, a.Name())
	}
}

func TestSearchArtists(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	a := newTestAdapter(t, srv.URL)

	entries, err := a.SearchArtists(context.Background(), "daft punk")
	if err != nil {
		t.Fatalf("SearchArtists: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].DisplayName != "Daft Punk" || entries[0].ID != "27" {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
	if entries[0].Followers != 4388111 || entries[0].Source != catalog.NameDeezer {
		t.Errorf("unexpected entry details: %+v", entries[0])
	}
	if len(entries[0].Images) != 1 || !strings.Contains(entries[0].Images[0].URL, "1000x1000") {
		t.Errorf("expected XL picture, got %+v", entries[0].Images)
	}
	if len(entries[1].Images) != 0 {
		t.Errorf("expected placeholder picture to be skipped, got %+v", entries[1].Images)
	}
}

func TestSearchArtistsEmpty(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	a := newTestAdapter(t, srv.URL)

	entries, err := a.SearchArtists(context.Background(), "no-results-query")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected 0 entries, got %d", len(entries))
	}

	entries, err = a.SearchArtists(context.Background(), "  ")
	if err != nil || entries != nil {
		t.Errorf("expected nil, nil for blank name, got %v, %v", entries, err)
	}
}

func TestSearchArtistsQuotaError(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	a := newTestAdapter(t, srv.URL)

	_, err := a.SearchArtists(context.Background(), "quota")
	var unavailable *catalog.ErrProviderUnavailable
	if !errors.As(err, &unavailable) {
		t.Errorf("expected ErrProviderUnavailable, got %T: %v", err, err)
	}
}

func TestTopTracks(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	a := newTestAdapter(t, srv.URL)

	tracks, err := a.TopTracks(context.Background(), "27", 2)
	if err != nil {
		t.Fatalf("TopTracks: %v", err)
	}
	if len(tracks) != 2 {
		t.Fatalf("expected 2 tracks, got %d", len(tracks))
	}
	tr := tracks[0]
	if tr.Name != "Harder, Better, Faster, Stronger" || tr.URI != "deezer:track:3135556" {
		t.Errorf("unexpected track: %+v", tr)
	}
	if tr.Duration != 224*time.Second || tr.Album != "Discovery" || tr.ArtistName != "Daft Punk" {
		t.Errorf("unexpected track details: %+v", tr)
	}
}

func TestTopTracksNotFound(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	a := newTestAdapter(t, srv.URL)

	_, err := a.TopTracks(context.Background(), "404", 5)
	var nf *catalog.ErrNotFound
	if !errors.As(err, &nf) {
		t.Errorf("expected ErrNotFound for code 800, got %v", err)
	}

	// Spotify IDs are rejected without an HTTP call.
	_, err = a.TopTracks(context.Background(), "4tZwfgrHOc3mvqYlEYSvVi", 5)
	if !errors.As(err, &nf) {
		t.Errorf("expected ErrNotFound for non-Deezer ID, got %v", err)
	}
}

func TestIsDeezerID(t *testing.T) {
	cases := []struct {
		id   string
		want bool
	}{
		{"27", true},
		{"0", true},
		{"", false},
		{"4tZwfgrHOc3mvqYlEYSvVi", false},
		{"123abc", false},
	}
	for _, tc := range cases {
		if got := isDeezerID(tc.id); got != tc.want {
			t.Errorf("isDeezerID(%q) = %v, want %v", tc.id, got, tc.want)
		}
	}
}
