package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/festlist/festlist/internal/api/middleware"
	"github.com/festlist/festlist/internal/catalog"
	"github.com/festlist/festlist/internal/extraction"
)

type extractRequest struct {
	Text       string   `json:"text"`
	FileID     string   `json:"file_id,omitempty"`
	UseAI      *bool    `json:"use_ai,omitempty"`
	Threshold  *float64 `json:"confidence_threshold,omitempty"`
	Providers  []string `json:"providers,omitempty"`
	OCREngine  string   `json:"ocr_engine,omitempty"`
	OCRQuality *float64 `json:"ocr_confidence,omitempty"`
}

type artistResponse struct {
	Name       string   `json:"name"`
	Confidence float64  `json:"confidence"`
	Method     string   `json:"method"`
	SpotifyID  *string  `json:"spotify_id"`
	Genres     []string `json:"genres"`
	Popularity *int     `json:"popularity"`
}

type extractResponse struct {
	Artists        []artistResponse `json:"artists"`
	TotalFound     int              `json:"total_found"`
	ProcessingTime float64          `json:"processing_time"`
	Method         string           `json:"method"`
	PatternResults int              `json:"pattern_results"`
	AIResults      int              `json:"ai_results"`
	RecordID       string           `json:"record_id,omitempty"`
}

// options merges per-request overrides with the configured defaults.
func (r *Router) options(useAI *bool, threshold *float64, providers []string) (extraction.Options, bool) {
	opts := extraction.Options{
		UseAI:     r.defaults.UseAI,
		Threshold: r.defaults.Threshold,
		Providers: providers,
	}
	if useAI != nil {
		opts.UseAI = *useAI
	}
	if threshold != nil {
		if *threshold < 0 || *threshold > 1 {
			return opts, false
		}
		opts.Threshold = *threshold
	}
	return opts, true
}

func (r *Router) handleExtractArtists(w http.ResponseWriter, req *http.Request) {
	var body extractRequest
	if !decodeJSON(w, req, &body) {
		return
	}
	if strings.TrimSpace(body.Text) == "" {
		writeError(w, http.StatusBadRequest, "No text provided")
		return
	}
	opts, ok := r.options(body.UseAI, body.Threshold, body.Providers)
	if !ok {
		writeError(w, http.StatusBadRequest, "confidence_threshold must be between 0 and 1")
		return
	}

	rep := r.extraction.ExtractArtists(req.Context(), body.Text, opts)

	rec := extraction.NewRecord(extraction.SourceText, rep)
	rec.UserID = middleware.UserIDFromContext(req.Context())
	rec.RawText = body.Text
	if body.FileID != "" {
		rec.Source = extraction.SourceOCR
		rec.FlyerID = body.FileID
		rec.OCREngine = body.OCREngine
		if body.OCRQuality != nil {
			rec.OCRConfidence = *body.OCRQuality
		}
	}
	r.writeReport(w, req, rep, rec)
}

type analyzeRequest struct {
	FileID    string   `json:"file_id"`
	Threshold *float64 `json:"confidence_threshold,omitempty"`
	Providers []string `json:"providers,omitempty"`
}

func (r *Router) handleAnalyzeImage(w http.ResponseWriter, req *http.Request) {
	if !r.extraction.VisionAvailable() {
		writeError(w, http.StatusServiceUnavailable, "Vision AI service not available")
		return
	}
	var body analyzeRequest
	if !decodeJSON(w, req, &body) {
		return
	}
	opts, ok := r.options(nil, body.Threshold, body.Providers)
	if !ok {
		writeError(w, http.StatusBadRequest, "confidence_threshold must be between 0 and 1")
		return
	}
	opts.UseAI = true

	f, data, ok := r.loadFlyer(w, req, body.FileID)
	if !ok {
		return
	}

	rep := r.extraction.AnalyzeImage(req.Context(), extraction.Image{Data: data, MIMEType: f.ContentType}, opts)

	rec := extraction.NewRecord(extraction.SourceImage, rep)
	rec.UserID = middleware.UserIDFromContext(req.Context())
	rec.FlyerID = f.ID
	r.writeReport(w, req, rep, rec)
}

// writeReport persists rec and answers with rep. A failed save is logged
// but does not fail the request.
func (r *Router) writeReport(w http.ResponseWriter, req *http.Request, rep extraction.Report, rec *extraction.Record) {
	if r.records != nil {
		if err := r.records.Save(req.Context(), rec); err != nil {
			r.logger.Error("saving extraction record", "error", err)
			rec.ID = ""
		}
	}

	artists := make([]artistResponse, len(rep.Artists))
	for i, a := range rep.Artists {
		artists[i] = artistResponse{
			Name:       a.Name,
			Confidence: percent(a.Confidence),
			Method:     string(a.Method),
			Genres:     []string{},
		}
	}
	writeJSON(w, http.StatusOK, extractResponse{
		Artists:        artists,
		TotalFound:     rep.TotalFound,
		ProcessingTime: seconds(rep.Duration),
		Method:         rep.Method,
		PatternResults: rep.PatternResults,
		AIResults:      rep.AIResults,
		RecordID:       rec.ID,
	})
}

type matchRequest struct {
	ArtistName string `json:"artist_name"`
}

type matchResponse struct {
	Query   string        `json:"query"`
	Score   float64       `json:"score"`
	Catalog string        `json:"catalog"`
	Artist  catalog.Entry `json:"artist"`
}

func (r *Router) handleMatchArtist(w http.ResponseWriter, req *http.Request) {
	if r.matcher == nil {
		writeError(w, http.StatusServiceUnavailable, "no music catalog configured")
		return
	}
	var body matchRequest
	if !decodeJSON(w, req, &body) {
		return
	}
	name := strings.TrimSpace(body.ArtistName)
	if name == "" {
		writeError(w, http.StatusBadRequest, "artist_name is required")
		return
	}

	m, ok, err := r.matcher.Resolve(req.Context(), name)
	if err != nil {
		var authErr *catalog.ErrAuthRequired
		if errors.As(err, &authErr) {
			writeError(w, http.StatusServiceUnavailable, "music catalog credentials missing or rejected")
			return
		}
		r.logger.Warn("catalog search failed", "artist", name, "error", err)
		writeError(w, http.StatusBadGateway, "music catalog unavailable")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "No matching artist found")
		return
	}

	writeJSON(w, http.StatusOK, matchResponse{
		Query:   m.Query,
		Score:   percent(m.Score),
		Catalog: string(r.matcher.Catalog()),
		Artist:  m.Entry,
	})
}
