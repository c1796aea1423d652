package ocr

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/festlist/festlist/internal/image"
)

// TesseractConfig configures the tesseract command line engine.
type TesseractConfig struct {
	Path string // binary name or absolute path; default "tesseract"
	Lang string // default "eng"
	PSM  int    // page segmentation mode; default 6, a uniform block of text
	OEM  int    // engine mode; default 3
}

// Tesseract runs the tesseract CLI on a preprocessed copy of the image.
type Tesseract struct {
	cfg      TesseractConfig
	runner   Runner
	lookPath func(string) (string, error)
	logger   *slog.Logger
}

// NewTesseract creates a tesseract engine using the real command runner.
func NewTesseract(cfg TesseractConfig, logger *slog.Logger) *Tesseract {
	t := NewTesseractWithRunner(cfg, execRunner{logger: logger}, logger)
	t.lookPath = exec.LookPath
	return t
}

// NewTesseractWithRunner creates a tesseract engine with a custom runner.
// The engine always reports itself available.
func NewTesseractWithRunner(cfg TesseractConfig, runner Runner, logger *slog.Logger) *Tesseract {
	if cfg.Path == "" {
		cfg.Path = "tesseract"
	}
	if cfg.Lang == "" {
		cfg.Lang = "eng"
	}
	if cfg.PSM <= 0 {
		cfg.PSM = 6
	}
	if cfg.OEM <= 0 {
		cfg.OEM = 3
	}
	return &Tesseract{cfg: cfg, runner: runner, logger: logger}
}

// Name returns the engine name.
func (t *Tesseract) Name() string { return EngineTesseract }

// Available reports whether the tesseract binary can be found.
func (t *Tesseract) Available() bool {
	if t.lookPath == nil {
		return true
	}
	_, err := t.lookPath(t.cfg.Path)
	return err == nil
}

// Recognize preprocesses data, runs tesseract in TSV mode and rebuilds the
// text line by line.
func (t *Tesseract) Recognize(ctx context.Context, data []byte) (Result, error) {
	prepared, err := image.PrepareForOCR(bytes.NewReader(data))
	if err != nil {
		return Result{}, fmt.Errorf("preprocessing image: %w", err)
	}

	dir, err := os.MkdirTemp("", "festlist-ocr-*")
	if err != nil {
		return Result{}, err
	}
	defer os.RemoveAll(dir) //nolint:errcheck

	in := filepath.Join(dir, "flyer.png")
	if err := os.WriteFile(in, prepared, 0o600); err != nil {
		return Result{}, fmt.Errorf("writing temp image: %w", err)
	}

	args := []string{in, "stdout",
		"-l", t.cfg.Lang,
		"--psm", strconv.Itoa(t.cfg.PSM),
		"--oem", strconv.Itoa(t.cfg.OEM),
		"tsv",
	}
	out, errb, err := t.runner.Run(ctx, t.cfg.Path, args...)
	if err != nil {
		return Result{}, fmt.Errorf("tesseract: %w: %s", err, truncate(string(errb), 300))
	}

	text, conf := parseTSV(string(out))
	return Result{Text: text, Confidence: conf}, nil
}

// parseTSV rebuilds text from tesseract TSV output and returns it with the
// mean confidence of recognised words. Words sharing a block, paragraph and
// line number are joined with spaces.
func parseTSV(tsv string) (string, float64) {
	var (
		b        strings.Builder
		lineKey  string
		sum      float64
		n        int
		lineUsed bool
	)

	for i, ln := range strings.Split(tsv, "\n") {
		if i == 0 || ln == "" {
			continue
		}
		cols := strings.Split(strings.TrimRight(ln, "\r"), "\t")
		if len(cols) < 12 || cols[0] != "5" {
			continue
		}
		word := strings.TrimSpace(cols[11])
		if word == "" {
			continue
		}

		if conf, err := strconv.ParseFloat(cols[10], 64); err == nil && conf > 0 {
			sum += conf
			n++
		}

		key := cols[2] + "/" + cols[3] + "/" + cols[4]
		switch {
		case !lineUsed:
			lineUsed = true
		case key != lineKey:
			b.WriteByte('\n')
		default:
			b.WriteByte(' ')
		}
		lineKey = key
		b.WriteString(word)
	}

	if n == 0 {
		return b.String(), 0
	}
	return b.String(), sum / float64(n)
}
