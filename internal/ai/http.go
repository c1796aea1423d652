package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/festlist/festlist/internal/ratelimit"
)

// defaultTimeout bounds one model call.
const defaultTimeout = 60 * time.Second

// maxResponseBytes caps how much of a model response is read.
const maxResponseBytes = 4 * 1024 * 1024

// StatusError is returned when a model API answers with a non-2xx status.
type StatusError struct {
	Provider string
	Status   int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Provider, e.Status, e.Body)
}

// client is the HTTP plumbing shared by the model adapters.
type client struct {
	name    string
	http    *http.Client
	limiter *ratelimit.Map
	logger  *slog.Logger
}

// postJSON sends payload to url and decodes the JSON response into out.
func (c *client) postJSON(ctx context.Context, url string, headers map[string]string, payload, out any) error {
	if err := c.limiter.Wait(ctx, c.name); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	reqID := uuid.NewString()
	start := time.Now()
	c.logger.Debug("model request",
		slog.String("req_id", reqID),
		slog.Int("bytes", len(data)))

	resp, err := c.http.Do(req) //nolint:gosec // URL constructed from adapter config
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	c.logger.Debug("model response",
		slog.String("req_id", reqID),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Provider: c.name, Status: resp.StatusCode, Body: truncate(string(body), 300)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return cutUTF8(s, n) + "..."
}

// cutUTF8 returns at most the first n bytes of s without splitting a
// multi-byte character.
func cutUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// dataURL encodes img bytes as a base64 data URL.
func dataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
