package api

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"slices"

	"golang.org/x/oauth2"

	"github.com/festlist/festlist/internal/api/middleware"
	"github.com/festlist/festlist/internal/catalog"
	"github.com/festlist/festlist/internal/catalog/spotify"
	"github.com/festlist/festlist/internal/extraction"
	"github.com/festlist/festlist/internal/flyer"
	"github.com/festlist/festlist/internal/logging"
	"github.com/festlist/festlist/internal/ocr"
	"github.com/festlist/festlist/internal/playlist"
	"github.com/festlist/festlist/internal/user"
)

// SpotifyUser acts on behalf of one Spotify account.
type SpotifyUser interface {
	playlist.Creator
	CurrentUser(ctx context.Context) (*spotify.User, error)
	Token() (*oauth2.Token, error)
}

// SpotifyAccounts runs the Spotify authorization-code flow.
type SpotifyAccounts interface {
	Configured() bool
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	ForUser(ctx context.Context, tok *oauth2.Token) SpotifyUser
}

type spotifyAccounts struct {
	*spotify.Adapter
}

// NewSpotifyAccounts exposes a Spotify adapter as SpotifyAccounts.
func NewSpotifyAccounts(a *spotify.Adapter) SpotifyAccounts {
	return spotifyAccounts{a}
}

func (s spotifyAccounts) ForUser(ctx context.Context, tok *oauth2.Token) SpotifyUser {
	return s.UserClient(ctx, tok)
}

// ExtractionDefaults are applied when a request leaves a field unset.
type ExtractionDefaults struct {
	UseAI     bool
	Threshold float64
}

// RouterDeps bundles all dependencies needed by the HTTP router.
type RouterDeps struct {
	Users      *user.Service
	Quota      *user.Quota
	Flyers     *flyer.Store
	OCR        *ocr.Service
	Extraction *extraction.Service
	Records    *extraction.Store
	Matcher    *catalog.Resolver
	Spotify    SpotifyAccounts
	Builder    *playlist.Builder
	Playlists  *playlist.Store
	LogManager *logging.Manager
	IPLimiter  *middleware.IPRateLimiter
	Defaults   ExtractionDefaults
	Admins     []string
	DB         *sql.DB
	Logger     *slog.Logger
	BasePath   string
}

// Router sets up all HTTP routes for the application.
type Router struct {
	users      *user.Service
	quota      *user.Quota
	flyers     *flyer.Store
	ocr        *ocr.Service
	extraction *extraction.Service
	records    *extraction.Store
	matcher    *catalog.Resolver
	spotify    SpotifyAccounts
	builder    *playlist.Builder
	playlists  *playlist.Store
	logManager *logging.Manager
	ipLimiter  *middleware.IPRateLimiter
	defaults   ExtractionDefaults
	admins     []string
	states     *stateStore
	db         *sql.DB
	logger     *slog.Logger
	basePath   string
}

// NewRouter creates a new Router with all routes configured.
func NewRouter(deps RouterDeps) *Router {
	limiter := deps.IPLimiter
	if limiter == nil {
		limiter = middleware.NewIPRateLimiter(nil) //nolint:staticcheck // no background sweep
	}
	return &Router{
		users:      deps.Users,
		quota:      deps.Quota,
		flyers:     deps.Flyers,
		ocr:        deps.OCR,
		extraction: deps.Extraction,
		records:    deps.Records,
		matcher:    deps.Matcher,
		spotify:    deps.Spotify,
		builder:    deps.Builder,
		playlists:  deps.Playlists,
		logManager: deps.LogManager,
		ipLimiter:  limiter,
		defaults:   deps.Defaults,
		admins:     deps.Admins,
		states:     newStateStore(),
		db:         deps.DB,
		logger:     deps.Logger.With(slog.String("component", "api")),
		basePath:   deps.BasePath,
	}
}

// Handler returns the fully configured HTTP handler with middleware applied.
func (r *Router) Handler() http.Handler {
	authMw := middleware.Auth(r.users)
	quotaMw := middleware.Quota(r.quota, r.logger)
	limited := func(fn http.HandlerFunc) http.Handler { return r.ipLimiter.Middleware(fn) }
	metered := func(fn http.HandlerFunc) http.HandlerFunc { return wrapAuth(wrapMw(fn, quotaMw), authMw) }
	mux := http.NewServeMux()
	bp := r.basePath

	// Public routes (no auth)
	mux.HandleFunc("GET "+bp+"/api/v1/health", r.handleHealth)
	mux.Handle("GET "+bp+"/api/v1/spotify/auth-url", limited(r.handleSpotifyAuthURL))
	mux.Handle("POST "+bp+"/api/v1/spotify/callback", limited(r.handleSpotifyCallback))

	// Protected routes (auth required)
	mux.HandleFunc("POST "+bp+"/api/v1/auth/logout", wrapAuth(r.handleLogout, authMw))
	mux.HandleFunc("POST "+bp+"/api/v1/upload", wrapAuth(r.handleUpload, authMw))
	mux.HandleFunc("POST "+bp+"/api/v1/extract-artists", wrapAuth(r.handleExtractArtists, authMw))
	mux.HandleFunc("POST "+bp+"/api/v1/match-artist", wrapAuth(r.handleMatchArtist, authMw))
	mux.HandleFunc("POST "+bp+"/api/v1/create-playlist", wrapAuth(r.handleCreatePlaylist, authMw))

	// Metered routes (auth + daily quota)
	mux.HandleFunc("POST "+bp+"/api/v1/ocr", metered(r.handleOCR))
	mux.HandleFunc("POST "+bp+"/api/v1/analyze-image", metered(r.handleAnalyzeImage))

	// User routes
	mux.HandleFunc("GET "+bp+"/api/v1/users/me", wrapAuth(r.handleGetMe, authMw))
	mux.HandleFunc("PATCH "+bp+"/api/v1/users/me", wrapAuth(r.handleUpdateMe, authMw))
	mux.HandleFunc("GET "+bp+"/api/v1/users/me/stats", wrapAuth(r.handleUserStats, authMw))
	mux.HandleFunc("GET "+bp+"/api/v1/users/me/playlists", wrapAuth(r.handleUserPlaylists, authMw))
	mux.HandleFunc("GET "+bp+"/api/v1/users/me/extractions", wrapAuth(r.handleUserExtractions, authMw))
	mux.HandleFunc("GET "+bp+"/api/v1/users/me/rate-limit", wrapAuth(r.handleRateLimit, authMw))

	// Settings routes (admins only)
	mux.HandleFunc("GET "+bp+"/api/v1/settings/logging", wrapAuth(r.requireAdmin(r.handleGetLogging), authMw))
	mux.HandleFunc("PUT "+bp+"/api/v1/settings/logging", wrapAuth(r.requireAdmin(r.handleUpdateLogging), authMw))

	return middleware.Logging(r.logger)(middleware.SecurityHeaders(mux))
}

// wrapAuth wraps a handler function with auth middleware.
func wrapAuth(fn http.HandlerFunc, authMw func(http.Handler) http.Handler) http.HandlerFunc {
	return wrapMw(fn, authMw)
}

func wrapMw(fn http.HandlerFunc, mw func(http.Handler) http.Handler) http.HandlerFunc {
	h := mw(fn)
	return h.ServeHTTP
}

// requireAdmin allows only users whose Spotify ID is listed in Admins.
func (r *Router) requireAdmin(fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		u, err := r.users.Get(req.Context(), middleware.UserIDFromContext(req.Context()))
		if err != nil || !slices.Contains(r.admins, u.SpotifyID) {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		fn(w, req)
	}
}
