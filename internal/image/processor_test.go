package image

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

func makeRGBA(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			v := uint8(64 + (x+y)%128)
			img.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

func makeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, makeRGBA(w, h), &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encoding test jpeg: %v", err)
	}
	return buf.Bytes()
}

func makePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, makeRGBA(w, h)); err != nil {
		t.Fatalf("encoding test png: %v", err)
	}
	return buf.Bytes()
}

func TestDetectFormat(t *testing.T) {
	var bmpBuf, tiffBuf bytes.Buffer
	if err := bmp.Encode(&bmpBuf, makeRGBA(4, 4)); err != nil {
		t.Fatalf("encoding bmp: %v", err)
	}
	if err := tiff.Encode(&tiffBuf, makeRGBA(4, 4), nil); err != nil {
		t.Fatalf("encoding tiff: %v", err)
	}

	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"jpeg", makeJPEG(t, 10, 10), FormatJPEG},
		{"png", makePNG(t, 10, 10), FormatPNG},
		{"bmp", bmpBuf.Bytes(), FormatBMP},
		{"tiff", tiffBuf.Bytes(), FormatTIFF},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), FormatWebP},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			format, replay, err := DetectFormat(bytes.NewReader(tt.data))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if format != tt.want {
				t.Errorf("got format %q, want %q", format, tt.want)
			}
			var out bytes.Buffer
			if _, err := out.ReadFrom(replay); err != nil || !bytes.Equal(out.Bytes(), tt.data) {
				t.Error("replay reader should return the full input")
			}
		})
	}
}

func TestDetectFormat_Unknown(t *testing.T) {
	_, _, err := DetectFormat(bytes.NewReader([]byte("not an image")))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestInspect(t *testing.T) {
	info, err := Inspect(makePNG(t, 320, 200))
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if info.Format != FormatPNG || info.Width != 320 || info.Height != 200 {
		t.Errorf("got %+v", info)
	}
	if info.MIMEType() != "image/png" {
		t.Errorf("MIMEType = %q", info.MIMEType())
	}
}

func TestInfo_Validate(t *testing.T) {
	tests := []struct {
		info    Info
		wantErr bool
	}{
		{Info{Width: 800, Height: 1200}, false},
		{Info{Width: 100, Height: 100}, false},
		{Info{Width: 99, Height: 500}, true},
		{Info{Width: 500, Height: 50}, true},
		{Info{Width: 10001, Height: 500}, true},
	}
	for _, tt := range tests {
		if err := tt.info.Validate(); (err != nil) != tt.wantErr {
			t.Errorf("Validate(%dx%d) error = %v, wantErr %v", tt.info.Width, tt.info.Height, err, tt.wantErr)
		}
	}
}

func TestPrepareForOCR_Upscales(t *testing.T) {
	out, err := PrepareForOCR(bytes.NewReader(makeJPEG(t, 200, 300)))
	if err != nil {
		t.Fatalf("PrepareForOCR: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("output is not a png: %v", err)
	}
	if img.Bounds().Dx() != OCRMinWidth || img.Bounds().Dy() != 1500 {
		t.Errorf("got %dx%d, want %dx1500", img.Bounds().Dx(), img.Bounds().Dy(), OCRMinWidth)
	}
	if _, ok := img.(*image.Gray); !ok {
		t.Errorf("expected grayscale output, got %T", img)
	}
}

func TestPrepareForOCR_KeepsLargeImages(t *testing.T) {
	out, err := PrepareForOCR(bytes.NewReader(makePNG(t, 1200, 400)))
	if err != nil {
		t.Fatalf("PrepareForOCR: %v", err)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decoding output: %v", err)
	}
	if cfg.Width != 1200 || cfg.Height != 400 {
		t.Errorf("got %dx%d, want 1200x400", cfg.Width, cfg.Height)
	}
}

func TestStretchContrast(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 3, 1))
	g.Pix = []uint8{100, 150, 200}
	stretchContrast(g)
	if g.Pix[0] != 0 || g.Pix[2] != 255 {
		t.Errorf("got %v, want endpoints 0 and 255", g.Pix)
	}
	if g.Pix[1] != 128 {
		t.Errorf("midpoint = %d, want 128", g.Pix[1])
	}

	flat := image.NewGray(image.Rect(0, 0, 2, 1))
	flat.Pix = []uint8{90, 90}
	stretchContrast(flat)
	if flat.Pix[0] != 90 {
		t.Error("flat image should be unchanged")
	}
}
