// Package ratelimit throttles calls to upstream APIs.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Upstream names with a default limit.
const (
	Spotify      = "spotify"
	Deezer       = "deezer"
	Gemini       = "gemini"
	OpenAI       = "openai"
	GoogleVision = "google_vision"
)

// Default rate limits per upstream (requests per second).
var defaultRateLimits = map[string]rate.Limit{
	Spotify:      10,
	Deezer:       5,
	Gemini:       2,
	OpenAI:       2,
	GoogleVision: 2,
}

// Map holds one rate.Limiter per upstream, created once at startup.
type Map struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
}

// NewMap creates all upstream rate limiters.
func NewMap() *Map {
	m := &Map{
		limiters: make(map[string]*rate.Limiter, len(defaultRateLimits)),
	}
	for name, limit := range defaultRateLimits {
		m.limiters[name] = rate.NewLimiter(limit, 1)
	}
	return m
}

// Set overrides the limit for name, creating the limiter if needed.
func (m *Map) Set(name string, perSecond float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limiters[name] = rate.NewLimiter(rate.Limit(perSecond), 1)
}

// Wait blocks until the rate limiter for name allows a request, or the
// context is canceled. Unknown names are not limited.
func (m *Map) Wait(ctx context.Context, name string) error {
	m.mu.RLock()
	limiter, ok := m.limiters[name]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	return limiter.Wait(ctx)
}
