package inbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/festlist/festlist/internal/event"
	"github.com/festlist/festlist/internal/extraction"
	"github.com/festlist/festlist/internal/flyer"
	"github.com/festlist/festlist/internal/ocr"
)

// Recognizer runs OCR on an encoded image. *ocr.Service implements it.
type Recognizer interface {
	Recognize(ctx context.Context, engine string, data []byte) (ocr.Result, error)
}

// Importer turns one dropped file into a stored flyer and an extraction
// record. Plain-text files skip the flyer store and OCR.
type Importer struct {
	flyers     *flyer.Store
	ocr        Recognizer
	extraction *extraction.Service
	records    *extraction.Store
	opts       extraction.Options
	bus        *event.Bus
	logger     *slog.Logger
}

// NewImporter creates an importer. bus may be nil.
func NewImporter(flyers *flyer.Store, rec Recognizer, ext *extraction.Service, records *extraction.Store,
	opts extraction.Options, bus *event.Bus, logger *slog.Logger,
) *Importer {
	return &Importer{
		flyers:     flyers,
		ocr:        rec,
		extraction: ext,
		records:    records,
		opts:       opts,
		bus:        bus,
		logger:     logger.With(slog.String("component", "inbox")),
	}
}

// Importable reports whether the inbox picks up a file with this name.
func Importable(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	if strings.EqualFold(filepath.Ext(base), ".txt") {
		return true
	}
	return flyer.Allowed(base, "")
}

// Import processes the file at path and returns the saved record.
func (im *Importer) Import(ctx context.Context, path string) (*extraction.Record, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the watched inbox
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var rec *extraction.Record
	if strings.EqualFold(filepath.Ext(path), ".txt") {
		rep := im.extraction.ExtractArtists(ctx, string(data), im.opts)
		rec = extraction.NewRecord(extraction.SourceInbox, rep)
		rec.RawText = string(data)
	} else {
		rec, err = im.importImage(ctx, filepath.Base(path), data)
		if err != nil {
			return nil, err
		}
	}

	if err := im.records.Save(ctx, rec); err != nil {
		return nil, err
	}

	im.logger.Info("inbox file imported",
		slog.String("file", filepath.Base(path)),
		slog.String("record_id", rec.ID),
		slog.String("method", rec.Method),
		slog.Int("artists", len(rec.Artists)))
	im.bus.Publish(event.Event{
		Type: event.ExtractionCompleted,
		Data: map[string]any{
			"record_id": rec.ID,
			"file_id":   rec.FlyerID,
			"source":    rec.Source,
			"artists":   artistNames(rec.Artists),
		},
	})
	return rec, nil
}

func (im *Importer) importImage(ctx context.Context, name string, data []byte) (*extraction.Record, error) {
	f, err := im.flyers.Save(ctx, flyer.Upload{Filename: name, Body: bytes.NewReader(data)})
	if err != nil {
		return nil, err
	}
	im.bus.Publish(event.Event{
		Type: event.FlyerImported,
		Data: map[string]any{"file_id": f.ID, "filename": f.OriginalName},
	})

	res, err := im.ocr.Recognize(ctx, "", data)
	if err != nil {
		// Without OCR the flyer can still be read by a vision model.
		if !im.opts.UseAI || !im.extraction.VisionAvailable() {
			return nil, fmt.Errorf("ocr: %w", err)
		}
		if !errors.Is(err, ocr.ErrNoEngine) {
			im.logger.Warn("OCR failed, falling back to vision analysis", slog.String("file_id", f.ID), slog.Any("error", err))
		}
		rep := im.extraction.AnalyzeImage(ctx, extraction.Image{Data: data, MIMEType: f.ContentType}, im.opts)
		rec := extraction.NewRecord(extraction.SourceInbox, rep)
		rec.FlyerID = f.ID
		return rec, nil
	}

	rep := im.extraction.ExtractArtists(ctx, res.Text, im.opts)
	rec := extraction.NewRecord(extraction.SourceInbox, rep)
	rec.FlyerID = f.ID
	rec.OCREngine = res.Engine
	rec.OCRConfidence = res.Confidence
	rec.RawText = res.Text
	return rec, nil
}

func artistNames(artists []extraction.ReconciledArtist) []string {
	names := make([]string, len(artists))
	for i, a := range artists {
		names[i] = a.Name
	}
	return names
}
