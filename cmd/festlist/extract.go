package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/festlist/festlist/internal/extraction"
)

// extractOutput is the JSON document printed by the extract command.
type extractOutput struct {
	File          string  `json:"file"`
	OCREngine     string  `json:"ocr_engine,omitempty"`
	OCRConfidence float64 `json:"ocr_confidence,omitempty"`
	Text          string  `json:"text,omitempty"`
	extraction.Report
	ProcessingTime float64 `json:"processing_time"`
}

// runExtract reads a flyer image or a text file and prints the artists
// found in it. It needs no database; AI providers and OCR engines come
// from the same config as the server.
func runExtract(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("extract", flag.ContinueOnError)
	useAI := fs.Bool("ai", false, "also run the configured AI providers")
	threshold := fs.Float64("threshold", -1, "minimum confidence between 0 and 1")
	engine := fs.String("engine", "", "OCR engine (tesseract or google_vision)")
	vision := fs.Bool("vision", false, "send the image to a vision model instead of OCR")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: festlist extract [flags] <image-or-text-file>")
	}
	path := fs.Arg(0)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	p := newPipeline(cfg, logger)

	opts := extraction.Options{
		UseAI:     *useAI || cfg.Extraction.UseAI,
		Threshold: cfg.Extraction.Threshold,
	}
	if *threshold >= 0 {
		if *threshold > 1 {
			return fmt.Errorf("threshold must be between 0 and 1")
		}
		opts.Threshold = *threshold
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: path is supplied by the operator
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	ctx := context.Background()
	start := time.Now()
	res := extractOutput{File: filepath.Base(path)}

	switch {
	case strings.EqualFold(filepath.Ext(path), ".txt"):
		res.Report = p.extraction.ExtractArtists(ctx, string(data), opts)
	case *vision:
		if !p.extraction.VisionAvailable() {
			return fmt.Errorf("no vision provider configured")
		}
		opts.UseAI = true
		img := extraction.Image{Data: data, MIMEType: http.DetectContentType(data)}
		res.Report = p.extraction.AnalyzeImage(ctx, img, opts)
	default:
		ocrRes, err := p.ocr.Recognize(ctx, *engine, data)
		if err != nil {
			return fmt.Errorf("ocr: %w", err)
		}
		res.OCREngine = ocrRes.Engine
		res.OCRConfidence = ocrRes.Confidence
		res.Text = ocrRes.Text
		res.Report = p.extraction.ExtractArtists(ctx, ocrRes.Text, opts)
	}
	res.ProcessingTime = time.Since(start).Seconds()

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
