package extraction

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// TextExtractor is an AI-backed extractor that reads OCR text.
// Implementations must return an empty slice on any failure.
type TextExtractor interface {
	Name() string
	Available() bool
	ExtractFromText(ctx context.Context, text string) []Candidate
}

// ImageExtractor is an AI-backed extractor that reads the flyer image itself.
// Implementations must return an empty slice on any failure.
type ImageExtractor interface {
	Name() string
	Available() bool
	ExtractFromImage(ctx context.Context, img Image) []Candidate
}

// Options controls a single extraction request.
type Options struct {
	UseAI     bool
	Threshold float64

	// Providers restricts AI extraction to the named providers. Empty means all.
	Providers []string
}

// Report is the outcome of an extraction request.
type Report struct {
	Artists        []ReconciledArtist `json:"artists"`
	TotalFound     int                `json:"total_found"`
	Method         string             `json:"method"`
	PatternResults int                `json:"pattern_results"`
	AIResults      int                `json:"ai_results"`
	Duration       time.Duration      `json:"-"`
}

// Service runs the extraction pipeline: normalize, pattern and AI
// extraction, reconciliation. AI extractors run concurrently; a failed or
// unavailable extractor contributes nothing.
type Service struct {
	mu     sync.RWMutex
	text   []TextExtractor
	image  []ImageExtractor
	logger *slog.Logger
}

// NewService creates an extraction service with no AI extractors registered.
func NewService(logger *slog.Logger) *Service {
	return &Service{
		logger: logger.With(slog.String("component", "extraction")),
	}
}

// RegisterText adds a text extractor. Registration order is the order in
// which their candidate sets are reconciled.
func (s *Service) RegisterText(e TextExtractor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text = append(s.text, e)
}

// RegisterImage adds an image extractor.
func (s *Service) RegisterImage(e ImageExtractor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.image = append(s.image, e)
}

// TextProviders returns the names of registered text extractors that are
// currently available.
func (s *Service) TextProviders() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var names []string
	for _, e := range s.text {
		if e.Available() {
			names = append(names, e.Name())
		}
	}
	return names
}

// VisionAvailable reports whether at least one image extractor can be used.
func (s *Service) VisionAvailable() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.ContainsFunc(s.image, func(e ImageExtractor) bool { return e.Available() })
}

// ExtractArtists extracts a ranked artist list from raw OCR text.
func (s *Service) ExtractArtists(ctx context.Context, text string, opts Options) Report {
	start := time.Now()
	s.logger.Info("starting artist extraction",
		slog.Int("text_length", len(text)),
		slog.Bool("use_ai", opts.UseAI))

	cleaned := Normalize(text)
	sets := [][]Candidate{ExtractPatterns(cleaned)}
	if opts.UseAI && cleaned != "" {
		sets = append(sets, s.runText(ctx, cleaned, opts.Providers)...)
	}

	res := Reconcile(sets, opts.Threshold)
	report := Report{
		Artists:        res.Artists,
		TotalFound:     len(res.Artists),
		Method:         res.MethodUsed(),
		PatternResults: res.PatternInputs(),
		AIResults:      res.AIInputs(),
		Duration:       time.Since(start),
	}

	s.logger.Info("artist extraction completed",
		slog.Int("total_found", report.TotalFound),
		slog.Int("pattern_count", report.PatternResults),
		slog.Int("ai_count", report.AIResults),
		slog.String("method", report.Method),
		slog.Duration("duration", report.Duration))

	return report
}

// AnalyzeImage extracts artists straight from a flyer image with every
// available vision extractor.
func (s *Service) AnalyzeImage(ctx context.Context, img Image, opts Options) Report {
	start := time.Now()

	res := Reconcile(s.runImage(ctx, img, opts.Providers), opts.Threshold)
	report := Report{
		Artists:    res.Artists,
		TotalFound: len(res.Artists),
		Method:     MethodUsedVision,
		AIResults:  res.AIInputs(),
		Duration:   time.Since(start),
	}

	s.logger.Info("image analysis completed",
		slog.Int("total_found", report.TotalFound),
		slog.Int("ai_count", report.AIResults),
		slog.Duration("duration", report.Duration))

	return report
}

func (s *Service) runText(ctx context.Context, text string, providers []string) [][]Candidate {
	s.mu.RLock()
	var exts []TextExtractor
	for _, e := range s.text {
		if selected(e.Name(), providers) && e.Available() {
			exts = append(exts, e)
		}
	}
	s.mu.RUnlock()

	if len(exts) == 0 {
		s.logger.Warn("no AI text extractor available, using pattern matching only")
		return nil
	}

	results := make([][]Candidate, len(exts))
	g, gctx := errgroup.WithContext(ctx)
	for i, e := range exts {
		g.Go(func() error {
			results[i] = e.ExtractFromText(gctx, text)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (s *Service) runImage(ctx context.Context, img Image, providers []string) [][]Candidate {
	s.mu.RLock()
	var exts []ImageExtractor
	for _, e := range s.image {
		if selected(e.Name(), providers) && e.Available() {
			exts = append(exts, e)
		}
	}
	s.mu.RUnlock()

	if len(exts) == 0 {
		s.logger.Warn("no AI image extractor available")
		return nil
	}

	results := make([][]Candidate, len(exts))
	g, gctx := errgroup.WithContext(ctx)
	for i, e := range exts {
		g.Go(func() error {
			results[i] = e.ExtractFromImage(gctx, img)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func selected(name string, providers []string) bool {
	return len(providers) == 0 || slices.Contains(providers, name)
}
