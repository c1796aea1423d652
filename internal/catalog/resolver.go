package catalog

import (
	"context"
	"fmt"
	"log/slog"
)

// Resolver binds extracted artist names to catalog entries by searching and
// then running BestMatch over the results.
type Resolver struct {
	searcher  Searcher
	threshold float64
	logger    *slog.Logger
}

// NewResolver creates a resolver. A threshold <= 0 selects
// DefaultAcceptThreshold.
func NewResolver(searcher Searcher, threshold float64, logger *slog.Logger) *Resolver {
	if threshold <= 0 {
		threshold = DefaultAcceptThreshold
	}
	return &Resolver{
		searcher:  searcher,
		threshold: threshold,
		logger:    logger.With(slog.String("component", "resolver"), slog.String("catalog", string(searcher.Name()))),
	}
}

// Resolve searches for name and returns the accepted match. ok is false when
// no result clears the threshold. An error means the search itself failed.
func (r *Resolver) Resolve(ctx context.Context, name string) (MatchResult, bool, error) {
	entries, err := r.searcher.SearchArtists(ctx, name)
	if err != nil {
		return MatchResult{Query: name}, false, fmt.Errorf("searching %q: %w", name, err)
	}

	m, ok := BestMatch(name, entries, r.threshold)
	if !ok {
		r.logger.Debug("no catalog match", slog.String("query", name), slog.Int("results", len(entries)))
		return m, false, nil
	}

	r.logger.Debug("catalog match",
		slog.String("query", name),
		slog.String("match", m.Entry.DisplayName),
		slog.Float64("score", m.Score))
	return m, true, nil
}

// Catalog returns the name of the catalog being searched.
func (r *Resolver) Catalog() ProviderName {
	return r.searcher.Name()
}
