package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/festlist/festlist/internal/api/middleware"
	"github.com/festlist/festlist/internal/flyer"
	"github.com/festlist/festlist/internal/ocr"
)

type uploadResponse struct {
	FileID     string `json:"file_id"`
	Filename   string `json:"filename"`
	FileSize   int64  `json:"file_size"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	UploadTime string `json:"upload_time"`
	Status     string `json:"status"`
}

func (r *Router) handleUpload(w http.ResponseWriter, req *http.Request) {
	req.Body = http.MaxBytesReader(w, req.Body, flyer.MaxSize+1<<20)
	if err := req.ParseMultipartForm(flyer.MaxSize); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, http.StatusRequestEntityTooLarge, "File too large. Maximum size: 10 MB")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer req.MultipartForm.RemoveAll() //nolint:errcheck

	file, header, err := req.FormFile("file")
	if err != nil || header.Filename == "" {
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close() //nolint:errcheck

	f, err := r.flyers.Save(req.Context(), flyer.Upload{
		UserID:      middleware.UserIDFromContext(req.Context()),
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
	})
	switch {
	case errors.Is(err, flyer.ErrUnsupportedType):
		writeError(w, http.StatusBadRequest, "Invalid file type. Allowed types: JPEG, PNG, TIFF, BMP, WEBP")
		return
	case errors.Is(err, flyer.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "File too large. Maximum size: 10 MB")
		return
	case errors.Is(err, flyer.ErrEmpty), errors.Is(err, flyer.ErrInvalidImage):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		r.logger.Error("file upload failed", "error", err)
		writeError(w, http.StatusInternalServerError, "File upload failed")
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		FileID:     f.ID,
		Filename:   f.OriginalName,
		FileSize:   f.Size,
		Width:      f.Width,
		Height:     f.Height,
		UploadTime: f.CreatedAt.Format(time.RFC3339),
		Status:     "completed",
	})
}

type ocrRequest struct {
	FileID string `json:"file_id"`
	Engine string `json:"engine"`
}

type ocrResponse struct {
	Text           string  `json:"text"`
	Confidence     float64 `json:"confidence"`
	Engine         string  `json:"engine"`
	WordCount      int     `json:"word_count"`
	ProcessingTime float64 `json:"processing_time"`
}

func (r *Router) handleOCR(w http.ResponseWriter, req *http.Request) {
	var body ocrRequest
	if !decodeJSON(w, req, &body) {
		return
	}
	switch body.Engine {
	case "", ocr.EngineTesseract, ocr.EngineGoogleVision:
	default:
		writeError(w, http.StatusBadRequest, "unknown OCR engine; must be tesseract or google_vision")
		return
	}

	f, data, ok := r.loadFlyer(w, req, body.FileID)
	if !ok {
		return
	}

	res, err := r.ocr.Recognize(req.Context(), body.Engine, data)
	if errors.Is(err, ocr.ErrNoEngine) {
		writeError(w, http.StatusServiceUnavailable, "no OCR engine available")
		return
	}
	if err != nil {
		r.logger.Error("OCR processing failed", "file_id", f.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "OCR processing failed")
		return
	}

	writeJSON(w, http.StatusOK, ocrResponse{
		Text:           res.Text,
		Confidence:     res.Confidence,
		Engine:         res.Engine,
		WordCount:      res.WordCount,
		ProcessingTime: seconds(res.Duration),
	})
}

// loadFlyer reads a flyer owned by the calling user. Flyers of other users
// are reported as not found.
func (r *Router) loadFlyer(w http.ResponseWriter, req *http.Request, id string) (*flyer.Flyer, []byte, bool) {
	if id == "" {
		writeError(w, http.StatusBadRequest, "file_id is required")
		return nil, nil, false
	}
	f, data, err := r.flyers.Read(req.Context(), id)
	if errors.Is(err, flyer.ErrNotFound) {
		writeError(w, http.StatusNotFound, "File not found")
		return nil, nil, false
	}
	if err != nil {
		r.logger.Error("reading flyer", "file_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil, nil, false
	}
	if f.UserID != "" && f.UserID != middleware.UserIDFromContext(req.Context()) {
		writeError(w, http.StatusNotFound, "File not found")
		return nil, nil, false
	}
	return f, data, true
}
