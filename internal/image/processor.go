// Package image inspects uploaded flyer images and prepares them for OCR.
package image

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"math"

	_ "golang.org/x/image/bmp" // register BMP decoder
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder
)

// Supported image format names.
const (
	FormatJPEG = "jpeg"
	FormatPNG  = "png"
	FormatWebP = "webp"
	FormatBMP  = "bmp"
	FormatTIFF = "tiff"
)

// Dimension limits for images that OCR can make sense of.
const (
	MinDimension = 100
	MaxDimension = 10000

	// OCRMinWidth is the width small flyers are upscaled to before OCR.
	OCRMinWidth = 1000
)

// ErrUnsupportedFormat is returned for data that is not a recognised image.
var ErrUnsupportedFormat = errors.New("unrecognized image format")

// Info describes a decoded image header.
type Info struct {
	Format string
	Width  int
	Height int
}

// MIMEType returns the MIME type for the image format.
func (i Info) MIMEType() string {
	return MIMEType(i.Format)
}

// MIMEType maps a format name to its MIME type.
func MIMEType(format string) string {
	switch format {
	case FormatJPEG:
		return "image/jpeg"
	case FormatPNG:
		return "image/png"
	case FormatWebP:
		return "image/webp"
	case FormatBMP:
		return "image/bmp"
	case FormatTIFF:
		return "image/tiff"
	}
	return "application/octet-stream"
}

// DetectFormat reads the first bytes from r to identify the image format.
// The returned reader replays the consumed bytes.
func DetectFormat(r io.Reader) (format string, replay io.Reader, err error) {
	buf := make([]byte, 12)
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		return "", nil, fmt.Errorf("reading header: %w", err)
	}
	buf = buf[:n]

	replay = io.MultiReader(bytes.NewReader(buf), r)

	switch {
	case n >= 3 && buf[0] == 0xFF && buf[1] == 0xD8 && buf[2] == 0xFF:
		return FormatJPEG, replay, nil
	case n >= 8 && string(buf[:8]) == "\x89PNG\r\n\x1a\n":
		return FormatPNG, replay, nil
	case n >= 12 && string(buf[:4]) == "RIFF" && string(buf[8:12]) == "WEBP":
		return FormatWebP, replay, nil
	case n >= 2 && string(buf[:2]) == "BM":
		return FormatBMP, replay, nil
	case n >= 4 && (string(buf[:4]) == "II*\x00" || string(buf[:4]) == "MM\x00*"):
		return FormatTIFF, replay, nil
	}

	return "", replay, ErrUnsupportedFormat
}

// Inspect identifies the format and dimensions of data without decoding
// the pixels.
func Inspect(data []byte) (Info, error) {
	format, replay, err := DetectFormat(bytes.NewReader(data))
	if err != nil {
		return Info{}, err
	}
	cfg, _, err := image.DecodeConfig(replay)
	if err != nil {
		return Info{}, fmt.Errorf("decoding image config: %w", err)
	}
	return Info{Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}

// Validate checks that an image is neither too small to hold readable text
// nor unreasonably large.
func (i Info) Validate() error {
	if i.Width < MinDimension || i.Height < MinDimension {
		return fmt.Errorf("image too small: %dx%d, minimum %dx%d", i.Width, i.Height, MinDimension, MinDimension)
	}
	if i.Width > MaxDimension || i.Height > MaxDimension {
		return fmt.Errorf("image too large: %dx%d, maximum %dx%d", i.Width, i.Height, MaxDimension, MaxDimension)
	}
	return nil
}

// PrepareForOCR converts a flyer to a high-contrast grayscale PNG. Images
// narrower than OCRMinWidth are upscaled, keeping the aspect ratio.
func PrepareForOCR(src io.Reader) ([]byte, error) {
	_, replay, err := DetectFormat(src)
	if err != nil {
		return nil, fmt.Errorf("detecting format: %w", err)
	}

	img, _, err := image.Decode(replay)
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	bounds := img.Bounds()
	w, h := upscaleDimensions(bounds.Dx(), bounds.Dy(), OCRMinWidth)

	gray := image.NewGray(image.Rect(0, 0, w, h))
	if w != bounds.Dx() || h != bounds.Dy() {
		draw.CatmullRom.Scale(gray, gray.Bounds(), img, bounds, draw.Src, nil)
	} else {
		draw.Draw(gray, gray.Bounds(), img, bounds.Min, draw.Src)
	}
	stretchContrast(gray)

	return encode(gray, FormatPNG, 0)
}

// upscaleDimensions returns the size that brings w up to minW. Images that
// are already wide enough keep their size.
func upscaleDimensions(w, h, minW int) (int, int) {
	if w >= minW || w == 0 {
		return w, h
	}
	ratio := float64(minW) / float64(w)
	return minW, max(1, int(math.Round(float64(h)*ratio)))
}

// stretchContrast maps the darkest pixel to black and the brightest to white.
func stretchContrast(g *image.Gray) {
	lo, hi := uint8(255), uint8(0)
	for _, p := range g.Pix {
		lo = min(lo, p)
		hi = max(hi, p)
	}
	if hi <= lo {
		return
	}
	span := float64(hi - lo)
	for i, p := range g.Pix {
		g.Pix[i] = uint8(math.Round(float64(p-lo) * 255 / span))
	}
}

// encode writes an image in the specified format to a byte slice.
func encode(img image.Image, format string, quality int) ([]byte, error) {
	var buf bytes.Buffer

	switch format {
	case FormatJPEG:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("encoding jpeg: %w", err)
		}
	case FormatPNG:
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encoding png: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	return buf.Bytes(), nil
}
