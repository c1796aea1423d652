package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/festlist/festlist/internal/extraction"
	"github.com/festlist/festlist/internal/ratelimit"
)

const (
	// GeminiName is the provider name used in method tags.
	GeminiName = "gemini"

	defaultGeminiURL   = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel = "gemini-2.0-flash"
)

// GeminiConfig configures the Gemini adapter.
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// Gemini extracts artists with Google's Gemini models over the REST API.
type Gemini struct {
	c       client
	apiKey  string
	model   string
	baseURL string
}

// NewGemini creates a Gemini adapter. It reports itself unavailable when no
// API key is configured.
func NewGemini(cfg GeminiConfig, limiter *ratelimit.Map, logger *slog.Logger) *Gemini {
	if cfg.Model == "" {
		cfg.Model = defaultGeminiModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGeminiURL
	}
	return &Gemini{
		c: client{
			name:    ratelimit.Gemini,
			http:    &http.Client{Timeout: defaultTimeout},
			limiter: limiter,
			logger:  logger.With(slog.String("provider", GeminiName)),
		},
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}
}

// Name returns the provider name.
func (g *Gemini) Name() string { return GeminiName }

// Available reports whether an API key is configured.
func (g *Gemini) Available() bool { return g.apiKey != "" }

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"topP"`
	TopK            int     `json:"topK"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiSafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
	SafetySettings   []geminiSafetySetting  `json:"safetySettings"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

var geminiSafety = []geminiSafetySetting{
	{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
	{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
	{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
	{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
}

// ExtractFromText asks Gemini for the artists in OCR text.
func (g *Gemini) ExtractFromText(ctx context.Context, text string) []extraction.Candidate {
	return g.extract(ctx, []geminiPart{{Text: TextPrompt(text)}})
}

// ExtractFromImage asks Gemini for the artists on a flyer image.
func (g *Gemini) ExtractFromImage(ctx context.Context, img extraction.Image) []extraction.Candidate {
	if len(img.Data) == 0 {
		return []extraction.Candidate{}
	}
	return g.extract(ctx, []geminiPart{
		{Text: ImagePrompt()},
		{InlineData: &geminiInlineData{
			MIMEType: img.MIMEType,
			Data:     base64.StdEncoding.EncodeToString(img.Data),
		}},
	})
}

func (g *Gemini) extract(ctx context.Context, parts []geminiPart) []extraction.Candidate {
	if !g.Available() {
		return []extraction.Candidate{}
	}
	raw, err := g.generate(ctx, parts)
	if err != nil {
		g.c.logger.Error("gemini request failed", slog.String("error", err.Error()))
		return []extraction.Candidate{}
	}
	out, err := ParseCandidates(raw, GeminiName)
	if err != nil {
		g.c.logger.Warn("gemini response not usable", slog.String("error", err.Error()))
		return out
	}
	g.c.logger.Info("gemini extraction completed", slog.Int("artists", len(out)))
	return out
}

func (g *Gemini) generate(ctx context.Context, parts []geminiPart) (string, error) {
	reqURL := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, url.PathEscape(g.model))
	payload := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     0.1,
			TopP:            0.8,
			TopK:            40,
			MaxOutputTokens: 4096,
		},
		SafetySettings: geminiSafety,
	}

	var resp geminiResponse
	if err := g.c.postJSON(ctx, reqURL, map[string]string{"x-goog-api-key": g.apiKey}, payload, &resp); err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("empty candidates in response")
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String(), nil
}

var (
	_ extraction.TextExtractor  = (*Gemini)(nil)
	_ extraction.ImageExtractor = (*Gemini)(nil)
)
