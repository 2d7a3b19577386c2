// Package normalizer turns one raw catalogue page image into an OCR-ready
// image. The pipeline stages run in fixed order (upscale, orientation,
// deskew, denoise, binarize) and each stage can be disabled individually.
// The pipeline is deterministic and performs no I/O beyond reading the input
// and writing the output image.
package normalizer

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // page images may arrive as png
	"os"
)

// Orienter detects 0/90/180/270 degree page rotation, usually backed by the
// OCR engine's orientation-and-script-detection pass.
type Orienter interface {
	DetectOrientation(ctx context.Context, img image.Image) (degrees int, err error)
}

// Config enables or disables individual pipeline stages.
type Config struct {
	Upscale  bool
	Orient   bool
	Deskew   bool
	Denoise  bool
	Binarize bool
	// MinDimension is the upscale floor in pixels.
	MinDimension int
}

// DefaultConfig returns the pipeline configuration with all stages enabled.
func DefaultConfig() Config {
	return Config{
		Upscale:      true,
		Orient:       true,
		Deskew:       true,
		Denoise:      true,
		Binarize:     true,
		MinDimension: 1000,
	}
}

// Normalizer applies the page normalization pipeline.
type Normalizer struct {
	config   Config
	orienter Orienter
}

// NewNormalizer returns new Normalizer.
func NewNormalizer(config Config, orienter Orienter) *Normalizer {
	return &Normalizer{
		config:   config,
		orienter: orienter,
	}
}

// NormalizeFile reads the page image at rawPath, applies the pipeline and
// writes the result to outPath as JPEG. keepColor skips binarization for
// layouts where color carries price semantics.
func (n *Normalizer) NormalizeFile(ctx context.Context, rawPath, outPath string, keepColor bool) error {
	file, err := os.Open(rawPath)
	if err != nil {
		return fmt.Errorf("can't open page image: %w", err)
	}

	img, _, err := image.Decode(file)
	file.Close()
	if err != nil {
		return fmt.Errorf("can't decode page image: %w", err)
	}

	normalized, err := n.Apply(ctx, img, keepColor)
	if err != nil {
		return err
	}

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("can't create output image: %w", err)
	}
	defer out.Close()

	if err := jpeg.Encode(out, normalized, &jpeg.Options{Quality: 95}); err != nil {
		return fmt.Errorf("can't encode output image: %w", err)
	}

	return nil
}

// Apply runs the pipeline stages on img in fixed order.
func (n *Normalizer) Apply(ctx context.Context, img image.Image, keepColor bool) (image.Image, error) {
	if n.config.Upscale {
		img = upscale(img, n.config.MinDimension)
	}

	if n.config.Orient && n.orienter != nil {
		degrees, err := n.orienter.DetectOrientation(ctx, img)
		if err == nil && degrees%360 != 0 {
			img = rotateQuadrant(img, degrees)
		}
		// orientation detection failure degrades to the unrotated image
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if n.config.Deskew {
		angle := detectSkew(toGray(img))
		if angle != 0 {
			img = rotateSmallAngle(img, -angle)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if n.config.Denoise {
		img = denoise(img, keepColor)
	}

	if n.config.Binarize && !keepColor {
		img = binarize(toGray(img))
	}

	return img, nil
}
