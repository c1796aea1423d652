package ai

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/festlist/festlist/internal/extraction"
	"github.com/festlist/festlist/internal/ratelimit"
)

const (
	// OpenAIName is the provider name used in method tags.
	OpenAIName = "openai"

	defaultOpenAIURL   = "https://api.openai.com/v1"
	defaultOpenAIModel = "gpt-4o-mini"
)

// OpenAIConfig configures the OpenAI adapter.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// OpenAI extracts artists with the chat completions API.
type OpenAI struct {
	c       client
	apiKey  string
	model   string
	baseURL string
}

// NewOpenAI creates an OpenAI adapter. It reports itself unavailable when no
// API key is configured.
func NewOpenAI(cfg OpenAIConfig, limiter *ratelimit.Map, logger *slog.Logger) *OpenAI {
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenAIURL
	}
	return &OpenAI{
		c: client{
			name:    ratelimit.OpenAI,
			http:    &http.Client{Timeout: defaultTimeout},
			limiter: limiter,
			logger:  logger.With(slog.String("provider", OpenAIName)),
		},
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}
}

// Name returns the provider name.
func (o *OpenAI) Name() string { return OpenAIName }

// Available reports whether an API key is configured.
func (o *OpenAI) Available() bool { return o.apiKey != "" }

type chatImageURL struct {
	URL string `json:"url"`
}

type chatPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatMessage struct {
	Role    string     `json:"role"`
	Content []chatPart `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// ExtractFromText asks the model for the artists in OCR text.
func (o *OpenAI) ExtractFromText(ctx context.Context, text string) []extraction.Candidate {
	return o.extract(ctx, []chatPart{{Type: "text", Text: TextPrompt(text)}})
}

// ExtractFromImage sends the flyer as a data URL alongside the image prompt.
func (o *OpenAI) ExtractFromImage(ctx context.Context, img extraction.Image) []extraction.Candidate {
	if len(img.Data) == 0 {
		return []extraction.Candidate{}
	}
	return o.extract(ctx, []chatPart{
		{Type: "text", Text: ImagePrompt()},
		{Type: "image_url", ImageURL: &chatImageURL{URL: dataURL(img.MIMEType, img.Data)}},
	})
}

func (o *OpenAI) extract(ctx context.Context, parts []chatPart) []extraction.Candidate {
	if !o.Available() {
		return []extraction.Candidate{}
	}
	raw, err := o.complete(ctx, parts)
	if err != nil {
		o.c.logger.Error("openai request failed", slog.String("error", err.Error()))
		return []extraction.Candidate{}
	}
	out, err := ParseCandidates(raw, OpenAIName)
	if err != nil {
		o.c.logger.Warn("openai response not usable", slog.String("error", err.Error()))
		return out
	}
	o.c.logger.Info("openai extraction completed", slog.Int("artists", len(out)))
	return out
}

func (o *OpenAI) complete(ctx context.Context, parts []chatPart) (string, error) {
	payload := chatRequest{
		Model:       o.model,
		Messages:    []chatMessage{{Role: "user", Content: parts}},
		Temperature: 0.1,
		MaxTokens:   4096,
	}

	var resp chatResponse
	headers := map[string]string{"Authorization": "Bearer " + o.apiKey}
	if err := o.c.postJSON(ctx, o.baseURL+"/chat/completions", headers, payload, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

var (
	_ extraction.TextExtractor  = (*OpenAI)(nil)
	_ extraction.ImageExtractor = (*OpenAI)(nil)
)
