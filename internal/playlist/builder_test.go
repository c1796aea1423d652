package playlist

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/festlist/festlist/internal/catalog"
	"github.com/festlist/festlist/internal/catalog/spotify"
	"github.com/festlist/festlist/internal/database"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO users (id, spotify_id, created_at, updated_at)
		VALUES ('u1', 'festgoer', '2026-10-19T00:00:00Z', '2026-10-19T00:00:00Z')`); err != nil {
		t.Fatalf("inserting user: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// fakeCatalog knows a fixed set of artists, each with n tracks.
type fakeCatalog struct {
	mu      sync.Mutex
	artists map[string]int
	failing map[string]bool
	limits  []int
}

func (f *fakeCatalog) Name() catalog.ProviderName { return catalog.NameSpotify }

func (f *fakeCatalog) SearchArtists(_ context.Context, name string) ([]catalog.Entry, error) {
	if f.failing[name] {
		return nil, &catalog.ErrProviderUnavailable{Provider: catalog.NameSpotify, Cause: errors.New("timeout")}
	}
	if _, ok := f.artists[name]; !ok {
		return []catalog.Entry{{ID: "x", DisplayName: "Somebody Else Entirely"}}, nil
	}
	return []catalog.Entry{{ID: strings.ToLower(strings.ReplaceAll(name, " ", "-")), DisplayName: name}}, nil
}

func (f *fakeCatalog) TopTracks(_ context.Context, artistID string, limit int) ([]catalog.Track, error) {
	f.mu.Lock()
	f.limits = append(f.limits, limit)
	f.mu.Unlock()

	var n int
	for name, count := range f.artists {
		if strings.ToLower(strings.ReplaceAll(name, " ", "-")) == artistID {
			n = count
		}
	}
	var out []catalog.Track
	for i := range min(n, limit) {
		id := artistID + "-" + string(rune('a'+i))
		out = append(out, catalog.Track{ID: id, Name: id, URI: spotify.TrackURI(id)})
	}
	return out, nil
}

type fakeCreator struct {
	details spotify.PlaylistDetails
	owner   string
	added   []string
	failAdd bool
}

func (f *fakeCreator) CreatePlaylist(_ context.Context, userID string, details spotify.PlaylistDetails) (*spotify.Playlist, error) {
	f.owner = userID
	f.details = details
	return &spotify.Playlist{ID: "pl1", Name: details.Name, Description: details.Description, Public: details.Public, URL: "https://open.spotify.com/playlist/pl1"}, nil
}

func (f *fakeCreator) AddTracks(_ context.Context, _ string, uris []string) error {
	if f.failAdd {
		return errors.New("boom")
	}
	f.added = append(f.added, uris...)
	return nil
}

func newBuilder(t *testing.T, cat *fakeCatalog) (*Builder, *Store) {
	t.Helper()
	store := NewStore(setupTestDB(t))
	return NewBuilder(catalog.NewResolver(cat, 0, testLogger()), cat, store, testLogger()), store
}

func TestBuild(t *testing.T) {
	cat := &fakeCatalog{artists: map[string]int{"Daft Punk": 5, "Justice": 2, "Empty Act": 0}}
	b, store := newBuilder(t, cat)
	creator := &fakeCreator{}

	res, err := b.Build(context.Background(), Request{
		Artists:         []string{"Daft Punk", "Unknown Band", "Justice", "Empty Act", " daft punk "},
		Name:            "Coachella 2026",
		TracksPerArtist: 3,
	}, Owner{UserID: "u1", SpotifyID: "festgoer"}, creator)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if !slices.Equal(res.SuccessfulArtists, []string{"Daft Punk", "Justice"}) {
		t.Errorf("successful = %v", res.SuccessfulArtists)
	}
	if !slices.Equal(res.FailedArtists, []string{"Unknown Band", "Empty Act"}) {
		t.Errorf("failed = %v", res.FailedArtists)
	}
	if len(creator.added) != 5 {
		t.Errorf("added %d tracks, want 5", len(creator.added))
	}
	if creator.owner != "festgoer" {
		t.Errorf("playlist owner = %q", creator.owner)
	}
	if creator.details.Description != "Festival playlist with 2 artists" || !creator.details.Public {
		t.Errorf("details = %+v", creator.details)
	}
	if res.Playlist.TracksTotal != 5 {
		t.Errorf("TracksTotal = %d", res.Playlist.TracksTotal)
	}

	recs, err := store.ListByUser(context.Background(), "u1", 0)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(recs) != 1 || recs[0].SpotifyPlaylistID != "pl1" || recs[0].TrackCount != 5 {
		t.Fatalf("records = %+v", recs)
	}
	if !slices.Equal(recs[0].FailedArtists, []string{"Unknown Band", "Empty Act"}) {
		t.Errorf("stored failed artists = %v", recs[0].FailedArtists)
	}
}

func TestBuild_DefaultsAndPrivate(t *testing.T) {
	cat := &fakeCatalog{artists: map[string]int{"Bicep": 10}}
	b, _ := newBuilder(t, cat)
	creator := &fakeCreator{}
	private := false

	_, err := b.Build(context.Background(), Request{
		Artists:     []string{"Bicep"},
		Name:        "Mine",
		Description: "custom",
		Public:      &private,
	}, Owner{UserID: "u1", SpotifyID: "festgoer"}, creator)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(creator.added) != DefaultTracksPerArtist {
		t.Errorf("added %d tracks, want %d", len(creator.added), DefaultTracksPerArtist)
	}
	if creator.details.Public || creator.details.Description != "custom" {
		t.Errorf("details = %+v", creator.details)
	}
	if !slices.Equal(cat.limits, []int{DefaultTracksPerArtist}) {
		t.Errorf("top track limits = %v", cat.limits)
	}
}

func TestBuild_NoTracks(t *testing.T) {
	cat := &fakeCatalog{artists: map[string]int{}, failing: map[string]bool{"Flaky": true}}
	b, _ := newBuilder(t, cat)
	creator := &fakeCreator{}

	res, err := b.Build(context.Background(), Request{Artists: []string{"Nobody", "Flaky"}, Name: "x"},
		Owner{UserID: "u1", SpotifyID: "festgoer"}, creator)
	if !errors.Is(err, ErrNoTracks) {
		t.Fatalf("expected ErrNoTracks, got %v", err)
	}
	if creator.details.Name != "" {
		t.Error("playlist should not be created without tracks")
	}
	if len(res.FailedArtists) != 2 {
		t.Errorf("failed = %v", res.FailedArtists)
	}
}

func TestBuild_AddTracksFails(t *testing.T) {
	cat := &fakeCatalog{artists: map[string]int{"Bicep": 2}}
	b, store := newBuilder(t, cat)

	_, err := b.Build(context.Background(), Request{Artists: []string{"Bicep"}, Name: "x"},
		Owner{UserID: "u1", SpotifyID: "festgoer"}, &fakeCreator{failAdd: true})
	if err == nil {
		t.Fatal("expected error")
	}
	recs, _ := store.ListByUser(context.Background(), "u1", 0)
	if len(recs) != 0 {
		t.Error("no record should be saved when adding tracks fails")
	}
}

func TestRequest_Validate(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"no artists", Request{Name: "x"}, ErrNoArtists},
		{"blank artists", Request{Artists: []string{" ", ""}, Name: "x"}, ErrNoArtists},
		{"no name", Request{Artists: []string{"A"}, Name: "  "}, ErrNoName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.req.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	bad := Request{Artists: []string{"A"}, Name: "x", TracksPerArtist: 11}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for 11 tracks per artist")
	}
}

func TestStore_ListOrder(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()
	for _, name := range []string{"first", "second", "third"} {
		if err := store.Save(ctx, &Record{UserID: "u1", SpotifyPlaylistID: name, Name: name}); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	recs, err := store.ListByUser(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(recs) != 2 || recs[0].Name != "third" || recs[1].Name != "second" {
		t.Errorf("got %+v", recs)
	}
	if recs[0].Artists == nil || len(recs[0].Artists) != 0 {
		t.Errorf("expected empty artist list, got %v", recs[0].Artists)
	}
}
