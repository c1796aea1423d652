package deezer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/festlist/festlist/internal/catalog"
	"github.com/festlist/festlist/internal/ratelimit"
)

const (
	defaultBaseURL = "https://api.deezer.com"
	searchLimit    = 10

	// Deezer reports missing objects as error code 800 with a 200 status.
	codeDataNotFound = 800
	codeQuotaLimit   = 4
)

// Adapter implements catalog.Catalog for Deezer's public API. No
// authentication is required, so it serves artist lookups and top tracks
// when Spotify credentials are absent.
type Adapter struct {
	client  *http.Client
	limiter *ratelimit.Map
	logger  *slog.Logger
	baseURL string
}

// New creates a Deezer adapter with the default base URL.
func New(limiter *ratelimit.Map, logger *slog.Logger) *Adapter {
	return NewWithBaseURL(limiter, logger, defaultBaseURL)
}

// NewWithBaseURL creates a Deezer adapter with a custom base URL (for testing).
func NewWithBaseURL(limiter *ratelimit.Map, logger *slog.Logger, baseURL string) *Adapter {
	return &Adapter{
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: limiter,
		logger:  logger.With(slog.String("provider", string(catalog.NameDeezer))),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Name returns the catalog identifier.
func (a *Adapter) Name() catalog.ProviderName { return catalog.NameDeezer }

// SearchArtists searches Deezer for artists matching name.
func (a *Adapter) SearchArtists(ctx context.Context, name string) ([]catalog.Entry, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}

	params := url.Values{
		"q":     {name},
		"limit": {strconv.Itoa(searchLimit)},
	}
	body, err := a.doRequest(ctx, a.baseURL+"/search/artist?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing search response: %w", err)
	}

	entries := make([]catalog.Entry, 0, len(resp.Data))
	for _, r := range resp.Data {
		entries = append(entries, entryFromResult(r))
	}

	a.logger.Debug("artist search completed",
		slog.String("query", name),
		slog.Int("results", len(entries)))

	return entries, nil
}

// TopTracks returns up to limit of the artist's most popular tracks.
// Returns ErrNotFound for non-numeric IDs such as Spotify IDs.
func (a *Adapter) TopTracks(ctx context.Context, artistID string, limit int) ([]catalog.Track, error) {
	if !isDeezerID(artistID) {
		return nil, &catalog.ErrNotFound{Provider: catalog.NameDeezer, ID: artistID}
	}
	if limit <= 0 {
		limit = 5
	}

	reqURL := fmt.Sprintf("%s/artist/%s/top?limit=%d", a.baseURL, url.PathEscape(artistID), limit)
	body, err := a.doRequest(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	var resp topResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing top tracks response: %w", err)
	}

	data := resp.Data
	if len(data) > limit {
		data = data[:limit]
	}
	tracks := make([]catalog.Track, 0, len(data))
	for _, t := range data {
		id := strconv.Itoa(t.ID)
		tracks = append(tracks, catalog.Track{
			ID:         id,
			Name:       t.Title,
			URI:        "deezer:track:" + id,
			ArtistName: t.Artist.Name,
			Album:      t.Album.Title,
			Duration:   time.Duration(t.Duration) * time.Second,
			Popularity: t.Rank,
			PreviewURL: t.Preview,
			Source:     catalog.NameDeezer,
		})
	}
	return tracks, nil
}

// doRequest executes a rate-limited GET request and returns the response body.
func (a *Adapter) doRequest(ctx context.Context, reqURL string) ([]byte, error) {
	if err := a.limiter.Wait(ctx, ratelimit.Deezer); err != nil {
		return nil, &catalog.ErrProviderUnavailable{
			Provider: catalog.NameDeezer,
			Cause:    fmt.Errorf("rate limiter: %w", err),
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req) //nolint:gosec // URL constructed from adapter config and validated inputs
	if err != nil {
		return nil, &catalog.ErrProviderUnavailable{
			Provider: catalog.NameDeezer,
			Cause:    err,
		}
	}
	defer resp.Body.Close() //nolint:errcheck

	switch resp.StatusCode {
	case http.StatusOK:
		// continue
	case http.StatusNotFound:
		return nil, &catalog.ErrNotFound{Provider: catalog.NameDeezer, ID: reqURL}
	case http.StatusTooManyRequests:
		return nil, &catalog.ErrProviderUnavailable{
			Provider: catalog.NameDeezer,
			Cause:    fmt.Errorf("rate limited by server"),
		}
	default:
		return nil, &catalog.ErrProviderUnavailable{
			Provider: catalog.NameDeezer,
			Cause:    fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1*1024*1024))
	if err != nil {
		return nil, &catalog.ErrProviderUnavailable{Provider: catalog.NameDeezer, Cause: err}
	}

	var apiErr apiError
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != nil {
		switch apiErr.Error.Code {
		case codeDataNotFound:
			return nil, &catalog.ErrNotFound{Provider: catalog.NameDeezer, ID: reqURL}
		case codeQuotaLimit:
			return nil, &catalog.ErrProviderUnavailable{
				Provider: catalog.NameDeezer,
				Cause:    fmt.Errorf("quota exceeded: %s", apiErr.Error.Message),
			}
		default:
			return nil, &catalog.ErrProviderUnavailable{
				Provider: catalog.NameDeezer,
				Cause:    fmt.Errorf("%s: %s", apiErr.Error.Type, apiErr.Error.Message),
			}
		}
	}

	return body, nil
}

func entryFromResult(r artistResult) catalog.Entry {
	e := catalog.Entry{
		ID:          strconv.Itoa(r.ID),
		DisplayName: r.Name,
		Followers:   r.NbFan,
		URL:         r.Link,
		Source:      catalog.NameDeezer,
	}
	if pic := pictureURL(r); pic != "" {
		e.Images = []catalog.Image{{URL: pic}}
	}
	return e
}

// pictureURL prefers the XL picture and skips Deezer's generic placeholder.
func pictureURL(r artistResult) string {
	for _, u := range []string{r.PictureXL, r.PictureBig} {
		if u != "" && !isDefaultPicture(u) {
			return u
		}
	}
	return ""
}

// isDeezerID reports whether id is a valid Deezer artist ID (all digits).
func isDeezerID(id string) bool {
	if id == "" {
		return false
	}
	for _, r := range id {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// isDefaultPicture reports whether a Deezer picture URL is the generic placeholder.
// Deezer returns URLs containing "/images/artist//" (double slash) for artists
// without a photo.
func isDefaultPicture(u string) bool {
	return strings.Contains(u, "/images/artist//")
}

var _ catalog.Catalog = (*Adapter)(nil)
