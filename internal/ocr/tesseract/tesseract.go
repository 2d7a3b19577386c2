// Package tesseract implements the ocr.Engine contract on top of the
// gosseract Tesseract binding.
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/offerscan/catalogue-parser/internal/ocr"
)

// Engine recognizes text using a Tesseract client per invocation. A fresh
// client per call keeps engine crashes contained to a single page.
type Engine struct {
	clientFactory func() *gosseract.Client
}

// NewEngine returns new Engine.
func NewEngine() *Engine {
	return &Engine{clientFactory: gosseract.NewClient}
}

// Recognize runs one Tesseract pass over img.
func (e *Engine) Recognize(ctx context.Context, img []byte, languages []string, mode ocr.SegMode) (ocr.Result, error) {
	if err := ctx.Err(); err != nil {
		return ocr.Result{}, err
	}

	client := e.clientFactory()
	defer client.Close()

	if err := client.SetImageFromBytes(img); err != nil {
		return ocr.Result{}, fmt.Errorf("can't set image: %w", err)
	}
	if len(languages) > 0 {
		if err := client.SetLanguage(languages...); err != nil {
			return ocr.Result{}, fmt.Errorf("can't set languages: %w", err)
		}
	}
	if err := client.SetPageSegMode(segMode(mode)); err != nil {
		return ocr.Result{}, fmt.Errorf("can't set page segmentation mode: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return ocr.Result{}, fmt.Errorf("can't recognize text: %w", err)
	}

	return ocr.Result{
		Text:       strings.TrimSpace(text),
		Confidence: meanConfidence(client),
		Language:   strings.Join(languages, "+"),
	}, nil
}

// DetectOrientation estimates the upright rotation of img by scoring a fast
// sparse recognition pass at each quadrant rotation of a downsampled copy and
// picking the one with the highest mean word confidence. It returns 0, 90,
// 180 or 270 (degrees of clockwise rotation needed to make img upright).
func (e *Engine) DetectOrientation(ctx context.Context, img image.Image) (int, error) {
	small := downsample(img, 600)

	bestDegrees, bestConfidence := 0, -1.0

	for _, degrees := range []int{0, 90, 270, 180} {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		encoded, err := encodePNG(rotate(small, degrees))
		if err != nil {
			return 0, fmt.Errorf("can't encode orientation candidate: %w", err)
		}

		confidence, err := e.scoreOrientation(encoded)
		if err != nil {
			return 0, err
		}
		if confidence > bestConfidence {
			bestConfidence = confidence
			bestDegrees = degrees
		}
	}

	if bestConfidence <= 0 {
		// nothing recognizable in any orientation; leave the page alone
		return 0, nil
	}

	return bestDegrees, nil
}

func (e *Engine) scoreOrientation(img []byte) (float64, error) {
	client := e.clientFactory()
	defer client.Close()

	if err := client.SetImageFromBytes(img); err != nil {
		return 0, fmt.Errorf("can't set image: %w", err)
	}
	if err := client.SetLanguage("ara", "eng"); err != nil {
		return 0, fmt.Errorf("can't set languages: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_SPARSE_TEXT); err != nil {
		return 0, fmt.Errorf("can't set page segmentation mode: %w", err)
	}
	if _, err := client.Text(); err != nil {
		return 0, fmt.Errorf("can't recognize text: %w", err)
	}

	return meanConfidence(client), nil
}

func segMode(mode ocr.SegMode) gosseract.PageSegMode {
	if mode == ocr.SegModeSparse {
		return gosseract.PSM_SPARSE_TEXT
	}
	return gosseract.PSM_SINGLE_BLOCK
}

// meanConfidence averages word confidences into [0, 1]; 0 when unavailable.
func meanConfidence(client *gosseract.Client) float64 {
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return 0
	}

	var sum float64
	for _, box := range boxes {
		sum += box.Confidence / 100.0
	}
	return sum / float64(len(boxes))
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// rotate rotates img clockwise by a multiple of 90 degrees.
func rotate(img image.Image, degrees int) image.Image {
	degrees = ((degrees % 360) + 360) % 360
	if degrees == 0 {
		return img
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	var dst *image.RGBA
	if degrees == 180 {
		dst = image.NewRGBA(image.Rect(0, 0, width, height))
	} else {
		dst = image.NewRGBA(image.Rect(0, 0, height, width))
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			px := img.At(bounds.Min.X+x, bounds.Min.Y+y)
			switch degrees {
			case 90:
				dst.Set(height-1-y, x, px)
			case 180:
				dst.Set(width-1-x, height-1-y, px)
			case 270:
				dst.Set(y, width-1-x, px)
			}
		}
	}

	return dst
}

func downsample(img image.Image, maxDim int) image.Image {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	longest := width
	if height > longest {
		longest = height
	}
	if longest <= maxDim {
		return img
	}

	scale := float64(maxDim) / float64(longest)
	newWidth := int(float64(width) * scale)
	newHeight := int(float64(height) * scale)

	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	for y := 0; y < newHeight; y++ {
		srcY := bounds.Min.Y + int(float64(y)/scale)
		for x := 0; x < newWidth; x++ {
			dst.Set(x, y, img.At(bounds.Min.X+int(float64(x)/scale), srcY))
		}
	}
	return dst
}
