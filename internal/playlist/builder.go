// Package playlist turns a list of artist names into a Spotify playlist of
// their top tracks.
package playlist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/festlist/festlist/internal/catalog"
	"github.com/festlist/festlist/internal/catalog/spotify"
)

// DefaultTracksPerArtist is used when a request does not say.
const DefaultTracksPerArtist = 3

// maxConcurrentLookups bounds parallel catalog lookups per build.
const maxConcurrentLookups = 4

var (
	ErrNoArtists = errors.New("at least one artist is required")
	ErrNoName    = errors.New("playlist name is required")
	ErrNoTracks  = errors.New("no tracks found for any artists")
)

// Request describes the playlist to build.
type Request struct {
	Artists         []string `json:"artists"`
	Name            string   `json:"playlist_name"`
	Description     string   `json:"playlist_description,omitempty"`
	TracksPerArtist int      `json:"tracks_per_artist,omitempty"`
	Public          *bool    `json:"public,omitempty"`
}

// Owner identifies who the playlist is built for.
type Owner struct {
	UserID    string
	SpotifyID string
}

// Creator creates playlists on behalf of a user. *spotify.UserClient
// implements it.
type Creator interface {
	CreatePlaylist(ctx context.Context, userID string, details spotify.PlaylistDetails) (*spotify.Playlist, error)
	AddTracks(ctx context.Context, playlistID string, uris []string) error
}

// Result is the outcome of a build.
type Result struct {
	Record            *Record          `json:"record"`
	Playlist          spotify.Playlist `json:"playlist"`
	Tracks            []catalog.Track  `json:"tracks"`
	SuccessfulArtists []string         `json:"successful_artists"`
	FailedArtists     []string         `json:"failed_artists"`
	Duration          time.Duration    `json:"-"`
}

// lookup is the per-artist outcome of resolve plus top tracks.
type lookup struct {
	tracks []catalog.Track
	found  bool
}

// Builder resolves artists against a catalog and assembles playlists.
type Builder struct {
	resolver *catalog.Resolver
	tracks   catalog.TrackSource
	store    *Store
	logger   *slog.Logger
}

// NewBuilder creates a builder. Artist names are resolved with resolver and
// top tracks fetched from tracks; records are saved to store.
func NewBuilder(resolver *catalog.Resolver, tracks catalog.TrackSource, store *Store, logger *slog.Logger) *Builder {
	return &Builder{
		resolver: resolver,
		tracks:   tracks,
		store:    store,
		logger:   logger.With(slog.String("component", "playlist")),
	}
}

// Validate normalises req in place and reports missing fields.
func (req *Request) Validate() error {
	artists := make([]string, 0, len(req.Artists))
	seen := make(map[string]bool, len(req.Artists))
	for _, a := range req.Artists {
		a = strings.TrimSpace(a)
		key := strings.ToLower(a)
		if a == "" || seen[key] {
			continue
		}
		seen[key] = true
		artists = append(artists, a)
	}
	req.Artists = artists
	req.Name = strings.TrimSpace(req.Name)

	switch {
	case len(req.Artists) == 0:
		return ErrNoArtists
	case req.Name == "":
		return ErrNoName
	case req.TracksPerArtist == 0:
		req.TracksPerArtist = DefaultTracksPerArtist
	case req.TracksPerArtist < 1 || req.TracksPerArtist > 10:
		return fmt.Errorf("tracks_per_artist must be between 1 and 10")
	}
	return nil
}

// Build resolves every artist, collects their top tracks, creates the
// playlist through creator and records it. Artists that cannot be matched,
// or have no tracks, are reported in FailedArtists. If no artist yields a
// track, ErrNoTracks is returned and nothing is created.
func (b *Builder) Build(ctx context.Context, req Request, owner Owner, creator Creator) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	b.logger.Info("starting playlist creation",
		slog.Int("artist_count", len(req.Artists)),
		slog.Int("tracks_per_artist", req.TracksPerArtist))

	results := make([]lookup, len(req.Artists))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLookups)
	for i, name := range req.Artists {
		g.Go(func() error {
			results[i] = b.lookup(gctx, name, req.TracksPerArtist)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{SuccessfulArtists: []string{}, FailedArtists: []string{}}
	seen := make(map[string]bool)
	var uris []string
	for i, name := range req.Artists {
		l := results[i]
		if !l.found || len(l.tracks) == 0 {
			res.FailedArtists = append(res.FailedArtists, name)
			continue
		}
		res.SuccessfulArtists = append(res.SuccessfulArtists, name)
		for _, t := range l.tracks {
			if t.URI == "" || seen[t.URI] {
				continue
			}
			seen[t.URI] = true
			uris = append(uris, t.URI)
			res.Tracks = append(res.Tracks, t)
		}
	}

	if len(uris) == 0 {
		b.logger.Error("no tracks found for any artists", slog.Int("failed", len(res.FailedArtists)))
		return res, ErrNoTracks
	}

	desc := req.Description
	if desc == "" {
		desc = fmt.Sprintf("Festival playlist with %d artists", len(res.SuccessfulArtists))
	}
	public := req.Public == nil || *req.Public

	pl, err := creator.CreatePlaylist(ctx, owner.SpotifyID, spotify.PlaylistDetails{
		Name:        req.Name,
		Description: desc,
		Public:      public,
	})
	if err != nil {
		return res, fmt.Errorf("creating playlist: %w", err)
	}
	if err := creator.AddTracks(ctx, pl.ID, uris); err != nil {
		return res, fmt.Errorf("adding tracks: %w", err)
	}
	pl.TracksTotal = len(uris)
	res.Playlist = *pl

	rec := &Record{
		UserID:            owner.UserID,
		SpotifyPlaylistID: pl.ID,
		Name:              pl.Name,
		Description:       desc,
		URL:               pl.URL,
		Public:            public,
		TrackCount:        len(uris),
		Artists:           res.SuccessfulArtists,
		FailedArtists:     res.FailedArtists,
	}
	if err := b.store.Save(ctx, rec); err != nil {
		b.logger.Error("saving playlist record failed", slog.String("playlist_id", pl.ID), slog.Any("error", err))
	} else {
		res.Record = rec
	}

	res.Duration = time.Since(start)
	b.logger.Info("playlist created successfully",
		slog.String("playlist_id", pl.ID),
		slog.Int("total_tracks", len(uris)),
		slog.Int("successful_artists", len(res.SuccessfulArtists)),
		slog.Int("failed_artists", len(res.FailedArtists)),
		slog.Duration("duration", res.Duration))

	return res, nil
}

func (b *Builder) lookup(ctx context.Context, name string, limit int) lookup {
	m, ok, err := b.resolver.Resolve(ctx, name)
	if err != nil {
		b.logger.Warn("artist search failed", slog.String("artist", name), slog.Any("error", err))
		return lookup{}
	}
	if !ok {
		b.logger.Warn("artist not found", slog.String("artist", name))
		return lookup{}
	}

	tracks, err := b.tracks.TopTracks(ctx, m.Entry.ID, limit)
	if err != nil {
		b.logger.Warn("top tracks failed", slog.String("artist", name), slog.Any("error", err))
		return lookup{found: true}
	}
	if len(tracks) == 0 {
		b.logger.Warn("no tracks found for artist", slog.String("artist", name))
	}
	return lookup{found: true, tracks: tracks}
}
