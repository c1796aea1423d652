package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/festlist/festlist/internal/api/middleware"
	"github.com/festlist/festlist/internal/extraction"
	"github.com/festlist/festlist/internal/user"
)

func (r *Router) handleGetMe(w http.ResponseWriter, req *http.Request) {
	u, err := r.users.Get(req.Context(), middleware.UserIDFromContext(req.Context()))
	if err != nil {
		r.userError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (r *Router) handleUpdateMe(w http.ResponseWriter, req *http.Request) {
	var upd user.Update
	if !decodeJSON(w, req, &upd) {
		return
	}
	u, err := r.users.Update(req.Context(), middleware.UserIDFromContext(req.Context()), upd)
	if errors.Is(err, user.ErrInvalidInput) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		r.userError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (r *Router) handleUserStats(w http.ResponseWriter, req *http.Request) {
	st, err := r.users.Stats(req.Context(), middleware.UserIDFromContext(req.Context()), r.quota)
	if err != nil {
		r.userError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (r *Router) handleUserPlaylists(w http.ResponseWriter, req *http.Request) {
	limit, ok := queryLimit(w, req, 10)
	if !ok {
		return
	}
	recs, err := r.playlists.ListByUser(req.Context(), middleware.UserIDFromContext(req.Context()), limit)
	if err != nil {
		r.logger.Error("listing playlists", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"playlists": recs, "total": len(recs)})
}

func (r *Router) handleUserExtractions(w http.ResponseWriter, req *http.Request) {
	limit, ok := queryLimit(w, req, 20)
	if !ok {
		return
	}
	recs, err := r.records.ListByUser(req.Context(), middleware.UserIDFromContext(req.Context()), limit)
	if err != nil {
		r.logger.Error("listing extractions", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if recs == nil {
		recs = []extraction.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"extractions": recs, "total": len(recs)})
}

func (r *Router) handleRateLimit(w http.ResponseWriter, req *http.Request) {
	info, err := r.quota.Info(req.Context(), middleware.UserIDFromContext(req.Context()))
	if err != nil {
		r.logger.Error("reading quota", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (r *Router) userError(w http.ResponseWriter, err error) {
	if errors.Is(err, user.ErrNotFound) {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	r.logger.Error("user lookup failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

// queryLimit parses ?limit, bounded to 1..100.
func queryLimit(w http.ResponseWriter, req *http.Request, def int) (int, bool) {
	v := req.URL.Query().Get("limit")
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > 100 {
		writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
		return 0, false
	}
	return n, true
}
