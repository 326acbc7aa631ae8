package processing

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrEmptyRegion is returned when a crop rectangle does not intersect the image.
var ErrEmptyRegion = errors.New("crop region outside image")

// Supported output formats
const (
	FormatPNG  = "png"
	FormatJPEG = "jpg"
	FormatWebP = "webp"
	FormatTIFF = "tiff"
)

// Processor handles raster decoding, cropping and encoding
type Processor struct {
	format   string
	quality  int
	lossless bool
	rgb      bool
}

// NewProcessor creates a processor writing PNG
func NewProcessor() *Processor {
	return &Processor{format: FormatPNG, quality: 90}
}

// NewProcessorWithFormat creates a processor writing the given format
func NewProcessorWithFormat(format string, quality int, lossless bool) (*Processor, error) {
	f, err := NormalizeFormat(format)
	if err != nil {
		return nil, err
	}
	if quality < 1 || quality > 100 {
		return nil, fmt.Errorf("quality must be between 1 and 100, got %d", quality)
	}
	return &Processor{format: f, quality: quality, lossless: lossless}, nil
}

// WithRGB makes the processor drop alpha and palettes before encoding, so
// every written raster is 8-bit RGB.
func (p *Processor) WithRGB(rgb bool) *Processor {
	p.rgb = rgb
	return p
}

// NormalizeFormat maps format aliases to a supported output format
func NormalizeFormat(format string) (string, error) {
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "png":
		return FormatPNG, nil
	case "jpg", "jpeg":
		return FormatJPEG, nil
	case "webp":
		return FormatWebP, nil
	case "tif", "tiff":
		return FormatTIFF, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", format)
	}
}

// Extension returns the file extension chips are written with
func (p *Processor) Extension() string {
	return p.format
}

// LoadImage loads an image from a file path with WebP and TIFF support
func (p *Processor) LoadImage(path string) (image.Image, error) {
	// Try imaging.Open (registered decoders, tiff included)
	if img, err := imaging.Open(path); err == nil {
		return img, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := p.LoadImageFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("%w for %s", err, path)
	}
	return img, nil
}

// LoadImageFromReader decodes an image from r
func (p *Processor) LoadImageFromReader(r io.Reader) (image.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return p.decodeImageFromBytes(data)
}

// decodeImageFromBytes decodes an image from byte data with WebP support
func (p *Processor) decodeImageFromBytes(data []byte) (image.Image, error) {
	if img, _, err := image.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	if img, err := tiff.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	return nil, fmt.Errorf("image: unknown or unsupported format")
}

// CropRegion extracts the w x h sub-image whose top-left corner is at x,y.
// The region must lie entirely within the image.
func (p *Processor) CropRegion(img image.Image, x, y, w, h int) (image.Image, error) {
	bounds := img.Bounds()
	rect := image.Rect(x, y, x+w, y+h).Add(bounds.Min)
	if rect.Empty() {
		return nil, ErrEmptyRegion
	}
	if !rect.In(bounds) {
		return nil, fmt.Errorf("%w: %v not within %v", ErrEmptyRegion, rect, bounds)
	}
	return imaging.Crop(img, rect), nil
}

// SaveImage saves an image in the processor's format. Parent directories
// are created as needed.
func (p *Processor) SaveImage(img image.Image, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := p.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Encode writes img to w in the processor's format
func (p *Processor) Encode(w io.Writer, img image.Image) error {
	if p.rgb {
		img = ToRGB(img)
	}
	switch p.format {
	case FormatWebP:
		return webp.Encode(w, img, &webp.Options{Lossless: p.lossless, Quality: float32(p.quality)})
	case FormatTIFF:
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	case FormatJPEG:
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(p.quality))
	default:
		return imaging.Encode(w, img, imaging.PNG, imaging.PNGCompressionLevel(png.DefaultCompression))
	}
}

// ToRGB returns an opaque copy of img. Alpha is discarded, not composited,
// and grayscale or paletted input is expanded to three channels.
func ToRGB(img image.Image) *image.NRGBA {
	out := imaging.Clone(img)
	for i := 3; i < len(out.Pix); i += 4 {
		out.Pix[i] = 0xff
	}
	return out
}
