package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/festlist/festlist/internal/api/middleware"
	"github.com/festlist/festlist/internal/version"
)

// maxJSONBody bounds JSON request bodies.
const maxJSONBody = 1 << 20

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	spotifyReady := r.spotify != nil && r.spotify.Configured()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":             "healthy",
		"service":            "festlist-api",
		"version":            version.Version,
		"commit":             version.Commit,
		"timestamp":          time.Now().UTC().Format(time.RFC3339),
		"ocr_engines":        r.ocr.Engines(),
		"ai_providers":       r.extraction.TextProviders(),
		"vision_available":   r.extraction.VisionAvailable(),
		"spotify_configured": spotifyReady,
	})
}

func (r *Router) handleLogout(w http.ResponseWriter, req *http.Request) {
	if token := middleware.Token(req); token != "" {
		if err := r.users.Logout(req.Context(), token); err != nil {
			r.logger.Warn("failed to delete session", "error", err)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeJSON reads a JSON body into v, answering 400 on failure.
func decodeJSON(w http.ResponseWriter, req *http.Request, v any) bool {
	req.Body = http.MaxBytesReader(w, req.Body, maxJSONBody)
	if err := json.NewDecoder(req.Body).Decode(v); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encode error", http.StatusInternalServerError)
	}
}

// percent converts a [0,1] confidence to a 0-100 score with one decimal.
func percent(c float64) float64 {
	return math.Round(c*1000) / 10
}

func seconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*1000) / 1000
}

// stateTTL is how long an OAuth state issued by auth-url stays valid.
const stateTTL = 10 * time.Minute

// stateStore remembers OAuth states between auth-url and callback.
type stateStore struct {
	mu     sync.Mutex
	states map[string]time.Time
	now    func() time.Time
}

func newStateStore() *stateStore {
	return &stateStore{states: make(map[string]time.Time), now: time.Now}
}

func (s *stateStore) add(state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, exp := range s.states {
		if now.After(exp) {
			delete(s.states, k)
		}
	}
	s.states[state] = now.Add(stateTTL)
}

// consume reports whether state was issued and is unexpired, and forgets it.
func (s *stateStore) consume(state string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.states[state]
	delete(s.states, state)
	return ok && !s.now().After(exp)
}
