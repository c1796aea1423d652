package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"

	"github.com/festlist/festlist/internal/catalog"
)

// User is the Spotify account behind a user token.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
	Country     string `json:"country,omitempty"`
	Followers   int    `json:"followers"`
	URL         string `json:"url,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

// PlaylistDetails describes a playlist to create.
type PlaylistDetails struct {
	Name        string
	Description string
	Public      bool
}

// Playlist is a created Spotify playlist.
type Playlist struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Public      bool   `json:"public"`
	URL         string `json:"url"`
	TracksTotal int    `json:"tracks_total"`
}

// UserClient performs requests on behalf of a Spotify user.
type UserClient struct {
	adapter *Adapter
	src     oauth2.TokenSource
}

func (u *UserClient) client(ctx context.Context) *http.Client {
	return oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, u.adapter.base), u.src)
}

// Token returns the current, possibly refreshed, user token.
func (u *UserClient) Token() (*oauth2.Token, error) {
	return u.src.Token()
}

// CurrentUser returns the profile of the token's owner.
func (u *UserClient) CurrentUser(ctx context.Context) (*User, error) {
	body, err := u.adapter.do(ctx, u.client(ctx), http.MethodGet, u.adapter.apiURL+"/me", nil)
	if err != nil {
		return nil, err
	}

	var obj userObject
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("parsing user response: %w", err)
	}

	user := &User{
		ID:          obj.ID,
		DisplayName: obj.DisplayName,
		Email:       obj.Email,
		Country:     obj.Country,
		Followers:   obj.Followers.Total,
		URL:         obj.ExternalURLs.Spotify,
	}
	if len(obj.Images) > 0 {
		user.ImageURL = obj.Images[0].URL
	}
	return user, nil
}

// CreatePlaylist creates an empty playlist owned by userID.
func (u *UserClient) CreatePlaylist(ctx context.Context, userID string, details PlaylistDetails) (*Playlist, error) {
	reqURL := fmt.Sprintf("%s/users/%s/playlists", u.adapter.apiURL, url.PathEscape(userID))
	body, err := u.adapter.do(ctx, u.client(ctx), http.MethodPost, reqURL, createPlaylistRequest{
		Name:        details.Name,
		Description: details.Description,
		Public:      details.Public,
	})
	if err != nil {
		return nil, err
	}

	var obj playlistObject
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("parsing playlist response: %w", err)
	}

	u.adapter.logger.Info("playlist created",
		slog.String("playlist_id", obj.ID),
		slog.String("name", obj.Name))

	return &Playlist{
		ID:          obj.ID,
		Name:        obj.Name,
		Description: obj.Description,
		Public:      obj.Public,
		URL:         obj.ExternalURLs.Spotify,
		TracksTotal: obj.Tracks.Total,
	}, nil
}

// AddTracks appends track URIs to a playlist in batches of 100, the
// largest batch Spotify accepts per request.
func (u *UserClient) AddTracks(ctx context.Context, playlistID string, uris []string) error {
	reqURL := fmt.Sprintf("%s/playlists/%s/tracks", u.adapter.apiURL, url.PathEscape(playlistID))
	client := u.client(ctx)

	for start := 0; start < len(uris); start += addBatchSize {
		end := min(start+addBatchSize, len(uris))
		if _, err := u.adapter.do(ctx, client, http.MethodPost, reqURL, addTracksRequest{URIs: uris[start:end]}); err != nil {
			return fmt.Errorf("adding tracks %d-%d: %w", start, end, err)
		}
		u.adapter.logger.Debug("added tracks to playlist",
			slog.String("playlist_id", playlistID),
			slog.Int("batch_size", end-start),
			slog.Int("total_added", end))
	}
	return nil
}

var _ catalog.Catalog = (*Adapter)(nil)
