package api

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/festlist/festlist/internal/api/middleware"
	"github.com/festlist/festlist/internal/user"
)

func (r *Router) spotifyReady(w http.ResponseWriter) bool {
	if r.spotify == nil || !r.spotify.Configured() {
		writeError(w, http.StatusServiceUnavailable, "Spotify is not configured")
		return false
	}
	return true
}

func (r *Router) handleSpotifyAuthURL(w http.ResponseWriter, req *http.Request) {
	if !r.spotifyReady(w) {
		return
	}
	state := req.URL.Query().Get("state")
	if state == "" {
		b := make([]byte, 16)
		if _, err := rand.Read(b); err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		state = hex.EncodeToString(b)
	}
	if len(state) > 128 {
		writeError(w, http.StatusBadRequest, "state too long")
		return
	}
	r.states.add(state)

	writeJSON(w, http.StatusOK, map[string]string{
		"auth_url": r.spotify.AuthCodeURL(state),
		"state":    state,
	})
}

type callbackRequest struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

type callbackResponse struct {
	SessionToken string     `json:"session_token"`
	TokenType    string     `json:"token_type"`
	ExpiresIn    int        `json:"expires_in"`
	User         *user.User `json:"user"`
}

func (r *Router) handleSpotifyCallback(w http.ResponseWriter, req *http.Request) {
	if !r.spotifyReady(w) {
		return
	}
	body := callbackRequest{
		Code:  req.URL.Query().Get("code"),
		State: req.URL.Query().Get("state"),
	}
	if body.Code == "" && req.ContentLength != 0 {
		if !decodeJSON(w, req, &body) {
			return
		}
	}
	body.Code = strings.TrimSpace(body.Code)
	if body.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}
	if body.State == "" || !r.states.consume(body.State) {
		writeError(w, http.StatusBadRequest, "invalid or expired state")
		return
	}

	ctx := req.Context()
	tok, err := r.spotify.Exchange(ctx, body.Code)
	if err != nil {
		r.logger.Warn("spotify code exchange failed", "error", err)
		writeError(w, http.StatusBadRequest, "Failed to exchange authorization code")
		return
	}

	client := r.spotify.ForUser(ctx, tok)
	profile, err := client.CurrentUser(ctx)
	if err != nil {
		r.logger.Warn("fetching spotify profile failed", "error", err)
		writeError(w, http.StatusBadGateway, "Failed to fetch Spotify profile")
		return
	}

	u, err := r.users.Upsert(ctx, user.Profile{
		SpotifyID:   profile.ID,
		DisplayName: profile.DisplayName,
		Email:       profile.Email,
		Country:     profile.Country,
	})
	if err != nil {
		r.logger.Error("upserting user", "spotify_id", profile.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := r.users.SaveToken(ctx, u.ID, tok); err != nil {
		r.logger.Error("saving spotify token", "user_id", u.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	session, err := r.users.CreateSession(ctx, u.ID)
	if err != nil {
		r.logger.Error("creating session", "user_id", u.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    session,
		Path:     "/",
		HttpOnly: true,
		Secure:   req.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(user.SessionDuration.Seconds()),
	})
	r.logger.Info("user logged in", "user_id", u.ID, "spotify_id", u.SpotifyID)

	writeJSON(w, http.StatusOK, callbackResponse{
		SessionToken: session,
		TokenType:    "Bearer",
		ExpiresIn:    int(user.SessionDuration.Seconds()),
		User:         u,
	})
}
