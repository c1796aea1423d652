package spotify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/festlist/festlist/internal/catalog"
	"github.com/festlist/festlist/internal/ratelimit"
)

const (
	defaultAPIURL   = "https://api.spotify.com/v1"
	defaultAuthURL  = "https://accounts.spotify.com/authorize"
	defaultTokenURL = "https://accounts.spotify.com/api/token"

	// Market is the country used for top-track lookups.
	Market = "US"

	searchLimit  = 10
	addBatchSize = 100
)

// Scopes are the OAuth scopes needed to create playlists for a user.
var Scopes = []string{"playlist-modify-public", "playlist-modify-private"}

// Config holds Spotify application credentials and endpoints. The URL
// fields default to Spotify's production endpoints when empty.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	APIURL   string
	AuthURL  string
	TokenURL string
}

// Adapter is the Spotify catalog. Search and top tracks use an app token
// obtained with the client-credentials flow; playlist operations go through
// a UserClient built from the user's own token.
type Adapter struct {
	oauth   *oauth2.Config
	app     *http.Client
	base    *http.Client
	limiter *ratelimit.Map
	logger  *slog.Logger
	apiURL  string
	enabled bool
}

// New creates a Spotify adapter. Without a client ID and secret the adapter
// is created disabled and every call returns ErrAuthRequired.
func New(cfg Config, limiter *ratelimit.Map, logger *slog.Logger) *Adapter {
	if cfg.APIURL == "" {
		cfg.APIURL = defaultAPIURL
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaultAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
	}

	base := &http.Client{Timeout: 10 * time.Second}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
	}

	return &Adapter{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		app:     cc.Client(tokenCtx),
		base:    base,
		limiter: limiter,
		logger:  logger.With(slog.String("provider", string(catalog.NameSpotify))),
		apiURL:  strings.TrimRight(cfg.APIURL, "/"),
		enabled: cfg.ClientID != "" && cfg.ClientSecret != "",
	}
}

// Name returns the catalog identifier.
func (a *Adapter) Name() catalog.ProviderName { return catalog.NameSpotify }

// Configured reports whether application credentials are present.
func (a *Adapter) Configured() bool { return a.enabled }

// SearchArtists searches Spotify for artists named name. An exact
// artist:"name" query is tried first, then a plain query if that finds
// nothing. "&" is searched as "and".
func (a *Adapter) SearchArtists(ctx context.Context, name string) ([]catalog.Entry, error) {
	if !a.enabled {
		return nil, &catalog.ErrAuthRequired{Provider: catalog.NameSpotify}
	}
	cleaned := strings.ReplaceAll(strings.TrimSpace(name), "&", "and")
	if cleaned == "" {
		return nil, nil
	}

	items, err := a.search(ctx, `artist:"`+cleaned+`"`)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		if items, err = a.search(ctx, cleaned); err != nil {
			return nil, err
		}
	}

	entries := make([]catalog.Entry, 0, len(items))
	for _, it := range items {
		entries = append(entries, entryFromArtist(it))
	}

	a.logger.Debug("artist search completed",
		slog.String("query", name),
		slog.Int("results", len(entries)))

	return entries, nil
}

func (a *Adapter) search(ctx context.Context, q string) ([]artistObject, error) {
	params := url.Values{
		"q":     {q},
		"type":  {"artist"},
		"limit": {strconv.Itoa(searchLimit)},
	}
	body, err := a.do(ctx, a.app, http.MethodGet, a.apiURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing search response: %w", err)
	}
	return resp.Artists.Items, nil
}

// TopTracks returns up to limit of the artist's most popular tracks in Market.
func (a *Adapter) TopTracks(ctx context.Context, artistID string, limit int) ([]catalog.Track, error) {
	if !a.enabled {
		return nil, &catalog.ErrAuthRequired{Provider: catalog.NameSpotify}
	}

	reqURL := fmt.Sprintf("%s/artists/%s/top-tracks?market=%s", a.apiURL, url.PathEscape(artistID), Market)
	body, err := a.do(ctx, a.app, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	var resp topTracksResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing top tracks response: %w", err)
	}

	tracks := resp.Tracks
	if limit > 0 && len(tracks) > limit {
		tracks = tracks[:limit]
	}
	out := make([]catalog.Track, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, trackFromObject(t))
	}

	a.logger.Debug("top tracks retrieved",
		slog.String("artist_id", artistID),
		slog.Int("tracks", len(out)))

	return out, nil
}

// AuthCodeURL returns the Spotify consent page URL for the given state.
func (a *Adapter) AuthCodeURL(state string) string {
	return a.oauth.AuthCodeURL(state)
}

// Exchange trades an authorization code for a user token.
func (a *Adapter) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if !a.enabled {
		return nil, &catalog.ErrAuthRequired{Provider: catalog.NameSpotify}
	}
	tok, err := a.oauth.Exchange(context.WithValue(ctx, oauth2.HTTPClient, a.base), code)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return nil, &catalog.ErrAuthRequired{Provider: catalog.NameSpotify}
		}
		return nil, &catalog.ErrProviderUnavailable{Provider: catalog.NameSpotify, Cause: err}
	}
	return tok, nil
}

// UserClient returns a client acting as the owner of tok. The token is
// refreshed automatically when it expires; callers can read the current
// token back with UserClient.Token to persist it.
func (a *Adapter) UserClient(ctx context.Context, tok *oauth2.Token) *UserClient {
	return &UserClient{
		adapter: a,
		src:     a.oauth.TokenSource(context.WithValue(ctx, oauth2.HTTPClient, a.base), tok),
	}
}

// do executes a request with client and returns the response body.
func (a *Adapter) do(ctx context.Context, client *http.Client, method, reqURL string, payload any) ([]byte, error) {
	if err := a.limiter.Wait(ctx, ratelimit.Spotify); err != nil {
		return nil, &catalog.ErrProviderUnavailable{
			Provider: catalog.NameSpotify,
			Cause:    fmt.Errorf("rate limiter: %w", err),
		}
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req) //nolint:gosec // URL constructed from adapter config and validated inputs
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return nil, &catalog.ErrAuthRequired{Provider: catalog.NameSpotify}
		}
		return nil, &catalog.ErrProviderUnavailable{
			Provider: catalog.NameSpotify,
			Cause:    err,
		}
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(io.LimitReader(resp.Body, 2*1024*1024))
	if err != nil {
		return nil, &catalog.ErrProviderUnavailable{Provider: catalog.NameSpotify, Cause: err}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return data, nil
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, &catalog.ErrAuthRequired{Provider: catalog.NameSpotify}
	case resp.StatusCode == http.StatusNotFound:
		return nil, &catalog.ErrNotFound{Provider: catalog.NameSpotify, ID: req.URL.Path}
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &catalog.ErrProviderUnavailable{
			Provider:   catalog.NameSpotify,
			Cause:      fmt.Errorf("rate limited by server"),
			RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
		}
	default:
		return nil, &catalog.ErrProviderUnavailable{
			Provider: catalog.NameSpotify,
			Cause:    fmt.Errorf("unexpected status %d: %s", resp.StatusCode, errorMessage(data)),
		}
	}
}

func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func errorMessage(body []byte) string {
	var e errorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return "no error message"
}

func entryFromArtist(a artistObject) catalog.Entry {
	e := catalog.Entry{
		ID:          a.ID,
		DisplayName: a.Name,
		Genres:      a.Genres,
		Popularity:  a.Popularity,
		Followers:   a.Followers.Total,
		URL:         a.ExternalURLs.Spotify,
		Source:      catalog.NameSpotify,
	}
	for _, img := range a.Images {
		e.Images = append(e.Images, catalog.Image{URL: img.URL, Width: img.Width, Height: img.Height})
	}
	return e
}

func trackFromObject(t trackObject) catalog.Track {
	uri := t.URI
	if uri == "" {
		uri = TrackURI(t.ID)
	}
	tr := catalog.Track{
		ID:         t.ID,
		Name:       t.Name,
		URI:        uri,
		Album:      t.Album.Name,
		Duration:   time.Duration(t.DurationMS) * time.Millisecond,
		Popularity: t.Popularity,
		PreviewURL: t.PreviewURL,
		Source:     catalog.NameSpotify,
	}
	if len(t.Artists) > 0 {
		tr.ArtistName = t.Artists[0].Name
	}
	return tr
}

// TrackURI returns the spotify:track URI for a track ID.
func TrackURI(id string) string {
	return "spotify:track:" + id
}
