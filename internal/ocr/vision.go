package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/festlist/festlist/internal/ratelimit"
)

const defaultVisionURL = "https://vision.googleapis.com/v1"

// defaultVisionConfidence is reported when Vision returns text without
// page-level confidence.
const defaultVisionConfidence = 95

// VisionConfig configures the Google Cloud Vision engine.
type VisionConfig struct {
	APIKey  string
	BaseURL string
}

// GoogleVision calls the Cloud Vision images:annotate REST endpoint with
// TEXT_DETECTION.
type GoogleVision struct {
	client  *http.Client
	limiter *ratelimit.Map
	logger  *slog.Logger
	apiKey  string
	baseURL string
}

// NewGoogleVision creates a Vision engine. It is unavailable without an API key.
func NewGoogleVision(cfg VisionConfig, limiter *ratelimit.Map, logger *slog.Logger) *GoogleVision {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultVisionURL
	}
	return &GoogleVision{
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: limiter,
		logger:  logger.With(slog.String("engine", EngineGoogleVision)),
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}
}

// Name returns the engine name.
func (g *GoogleVision) Name() string { return EngineGoogleVision }

// Available reports whether an API key is configured.
func (g *GoogleVision) Available() bool { return g.apiKey != "" }

type annotateRequest struct {
	Requests []annotateImageRequest `json:"requests"`
}

type annotateImageRequest struct {
	Image    visionImage     `json:"image"`
	Features []visionFeature `json:"features"`
}

type visionImage struct {
	Content string `json:"content"`
}

type visionFeature struct {
	Type string `json:"type"`
}

type annotateResponse struct {
	Responses []struct {
		TextAnnotations []struct {
			Description string `json:"description"`
		} `json:"textAnnotations"`
		FullTextAnnotation *struct {
			Text  string `json:"text"`
			Pages []struct {
				Confidence float64 `json:"confidence"`
			} `json:"pages"`
		} `json:"fullTextAnnotation"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"responses"`
}

// Recognize sends the raw image to Vision. Vision handles its own
// preprocessing, so the image is not converted first.
func (g *GoogleVision) Recognize(ctx context.Context, data []byte) (Result, error) {
	if err := g.limiter.Wait(ctx, ratelimit.GoogleVision); err != nil {
		return Result{}, fmt.Errorf("rate limiter: %w", err)
	}

	payload, err := json.Marshal(annotateRequest{Requests: []annotateImageRequest{{
		Image:    visionImage{Content: base64.StdEncoding.EncodeToString(data)},
		Features: []visionFeature{{Type: "TEXT_DETECTION"}},
	}}})
	if err != nil {
		return Result{}, fmt.Errorf("encoding request: %w", err)
	}

	reqURL := g.baseURL + "/images:annotate?key=" + url.QueryEscape(g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req) //nolint:gosec // URL constructed from engine config
	if err != nil {
		return Result{}, fmt.Errorf("calling vision: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return Result{}, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("vision returned HTTP %d: %s", resp.StatusCode, truncate(string(body), 300))
	}

	var ar annotateResponse
	if err := json.Unmarshal(body, &ar); err != nil {
		return Result{}, fmt.Errorf("decoding response: %w", err)
	}
	if len(ar.Responses) == 0 {
		return Result{}, nil
	}

	r := ar.Responses[0]
	if r.Error != nil && r.Error.Message != "" {
		return Result{}, fmt.Errorf("vision API error: %s", r.Error.Message)
	}
	if len(r.TextAnnotations) == 0 {
		return Result{}, nil
	}

	conf := float64(defaultVisionConfidence)
	if fta := r.FullTextAnnotation; fta != nil && len(fta.Pages) > 0 {
		var sum float64
		for _, p := range fta.Pages {
			sum += p.Confidence
		}
		if sum > 0 {
			conf = sum / float64(len(fta.Pages)) * 100
		}
	}

	return Result{Text: r.TextAnnotations[0].Description, Confidence: conf}, nil
}
