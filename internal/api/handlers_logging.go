package api

import (
	"net/http"

	"github.com/festlist/festlist/internal/logging"
)

func (r *Router) handleGetLogging(w http.ResponseWriter, req *http.Request) {
	if r.logManager == nil {
		writeError(w, http.StatusServiceUnavailable, "logging manager not available")
		return
	}
	writeJSON(w, http.StatusOK, r.logManager.Config())
}

func (r *Router) handleUpdateLogging(w http.ResponseWriter, req *http.Request) {
	if r.logManager == nil {
		writeError(w, http.StatusServiceUnavailable, "logging manager not available")
		return
	}

	var update logging.Config
	if !decodeJSON(w, req, &update) {
		return
	}
	if err := update.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Only overwrite fields that are provided.
	cfg := logging.Merge(r.logManager.Config(), update)
	if err := logging.SaveSettings(req.Context(), r.db, cfg); err != nil {
		r.logger.Error("persisting logging settings", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to persist setting")
		return
	}

	r.logManager.Reconfigure(cfg)
	r.logger.Info("logging reconfigured", "config", cfg.String())
	writeJSON(w, http.StatusOK, cfg)
}
