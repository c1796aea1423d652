// Package ocr turns flyer images into text.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
)

// Engine names.
const (
	EngineTesseract    = "tesseract"
	EngineGoogleVision = "google_vision"
)

// ErrNoEngine is returned when no OCR engine is available.
var ErrNoEngine = errors.New("no OCR engine available")

// Result is the text recognised in one image. Confidence is on a 0-100 scale.
type Result struct {
	Text       string        `json:"text"`
	Confidence float64       `json:"confidence"`
	Engine     string        `json:"engine"`
	WordCount  int           `json:"word_count"`
	Duration   time.Duration `json:"-"`
}

// Engine recognises text in an encoded image.
type Engine interface {
	Name() string
	Available() bool
	Recognize(ctx context.Context, data []byte) (Result, error)
}

// Service dispatches OCR requests to an engine chosen per call.
type Service struct {
	engines []Engine
	def     string
	logger  *slog.Logger
}

// NewService creates a service whose default engine is def.
func NewService(def string, logger *slog.Logger, engines ...Engine) *Service {
	return &Service{
		engines: engines,
		def:     def,
		logger:  logger.With(slog.String("component", "ocr")),
	}
}

// Default returns the default engine name.
func (s *Service) Default() string { return s.def }

// Engines returns the names of available engines.
func (s *Service) Engines() []string {
	var names []string
	for _, e := range s.engines {
		if e.Available() {
			names = append(names, e.Name())
		}
	}
	return names
}

// Recognize extracts text from data with the named engine. An empty name
// selects the default. When the engine is unknown, unavailable or fails, the
// default runs next and then every other available engine.
func (s *Service) Recognize(ctx context.Context, engine string, data []byte) (Result, error) {
	if engine == "" {
		engine = s.def
	}
	var errs []error
	for _, e := range s.ordered(engine) {
		if !e.Available() {
			continue
		}
		start := time.Now()
		s.logger.Info("starting OCR extraction", slog.String("engine", e.Name()))

		res, err := e.Recognize(ctx, data)
		if err != nil {
			s.logger.Error("OCR extraction failed",
				slog.String("engine", e.Name()),
				slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("%s: %w", e.Name(), err))
			if ctx.Err() != nil {
				break
			}
			continue
		}

		res.Engine = e.Name()
		res.Text = strings.TrimSpace(res.Text)
		res.WordCount = len(strings.Fields(res.Text))
		res.Duration = time.Since(start)

		s.logger.Info("OCR extraction completed",
			slog.String("engine", res.Engine),
			slog.Int("text_length", len(res.Text)),
			slog.Float64("confidence", res.Confidence),
			slog.Duration("duration", res.Duration))
		return res, nil
	}

	if len(errs) == 0 {
		return Result{}, ErrNoEngine
	}
	return Result{}, errors.Join(errs...)
}

func (s *Service) ordered(engine string) []Engine {
	rank := func(e Engine) int {
		switch e.Name() {
		case engine:
			return 0
		case s.def:
			return 1
		}
		return 2
	}
	out := slices.Clone(s.engines)
	slices.SortStableFunc(out, func(a, b Engine) int { return rank(a) - rank(b) })
	return out
}
