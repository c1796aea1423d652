package catalog

import (
	"context"
	"fmt"
	"time"
)

// ProviderName uniquely identifies a music catalog.
type ProviderName string

// Known catalog names.
const (
	NameSpotify ProviderName = "spotify"
	NameDeezer  ProviderName = "deezer"
)

// DisplayName returns a human-readable name for the catalog.
func (n ProviderName) DisplayName() string {
	switch n {
	case NameSpotify:
		return "Spotify"
	case NameDeezer:
		return "Deezer"
	default:
		return string(n)
	}
}

// Image is an artist picture offered by a catalog.
type Image struct {
	URL    string `json:"url"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// Entry is an artist record returned by a catalog search. Entries are passed
// through unmodified; matching never edits them.
type Entry struct {
	ID          string       `json:"id"`
	DisplayName string       `json:"name"`
	Genres      []string     `json:"genres,omitempty"`
	Popularity  int          `json:"popularity"`
	Followers   int          `json:"followers"`
	URL         string       `json:"url,omitempty"`
	Images      []Image      `json:"images,omitempty"`
	Source      ProviderName `json:"source"`
}

// Track is a playable track. URI is what playlist APIs accept.
type Track struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	URI        string        `json:"uri"`
	ArtistName string        `json:"artist_name,omitempty"`
	Album      string        `json:"album,omitempty"`
	Duration   time.Duration `json:"-"`
	Popularity int           `json:"popularity,omitempty"`
	PreviewURL string        `json:"preview_url,omitempty"`
	Source     ProviderName  `json:"source"`
}

// Searcher finds artist entries by free-text name.
type Searcher interface {
	Name() ProviderName
	SearchArtists(ctx context.Context, name string) ([]Entry, error)
}

// TrackSource returns an artist's most popular tracks.
type TrackSource interface {
	TopTracks(ctx context.Context, artistID string, limit int) ([]Track, error)
}

// Catalog is a searcher that can also serve tracks.
type Catalog interface {
	Searcher
	TrackSource
}

// ErrProviderUnavailable indicates a transient failure (rate-limited, timeout, server error).
type ErrProviderUnavailable struct {
	Provider   ProviderName
	Cause      error
	RetryAfter time.Duration
}

func (e *ErrProviderUnavailable) Error() string {
	return fmt.Sprintf("catalog %s unavailable: %v", e.Provider, e.Cause)
}

func (e *ErrProviderUnavailable) Unwrap() error { return e.Cause }

// ErrNotFound indicates the catalog has no data for the requested ID.
type ErrNotFound struct {
	Provider ProviderName
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("catalog %s: %s not found", e.Provider, e.ID)
}

// ErrAuthRequired indicates missing or rejected credentials.
type ErrAuthRequired struct {
	Provider ProviderName
}

func (e *ErrAuthRequired) Error() string {
	return fmt.Sprintf("catalog %s: credentials missing or rejected", e.Provider)
}
