package content

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder

	"github.com/kailas-cloud/guardscan/internal/domain"
)

// DefaultMaxPixels bounds decoded image area.
const DefaultMaxPixels = 40_000_000

// ImageInfo describes a decoded image.
type ImageInfo struct {
	Format string
	Width  int
	Height int
}

// ImageDecoder validates image bytes before they reach the vision classifier.
type ImageDecoder struct {
	maxPixels int
}

// NewImageDecoder creates an ImageDecoder. maxPixels <= 0 uses DefaultMaxPixels.
func NewImageDecoder(maxPixels int) *ImageDecoder {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	return &ImageDecoder{maxPixels: maxPixels}
}

// Decode fully decodes data. Every failure wraps domain.ErrImageDecode.
func (d *ImageDecoder) Decode(data []byte) (ImageInfo, error) {
	if len(data) == 0 {
		return ImageInfo{}, fmt.Errorf("%w: %w", domain.ErrImageDecode, domain.ErrEmptyInput)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return ImageInfo{}, fmt.Errorf("%w: %w", domain.ErrImageDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > d.maxPixels/max(cfg.Height, 1) {
		return ImageInfo{}, fmt.Errorf("%w: dimensions %dx%d out of range", domain.ErrImageDecode, cfg.Width, cfg.Height)
	}
	if _, _, err := image.Decode(bytes.NewReader(data)); err != nil {
		return ImageInfo{}, fmt.Errorf("%w: %w", domain.ErrImageDecode, err)
	}
	return ImageInfo{Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}
