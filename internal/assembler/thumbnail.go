package assembler

import (
	"fmt"
	"image"
	"image/jpeg"
	"os"

	"golang.org/x/image/draw"
)

const thumbnailWidth = 300

// writeThumbnail renders a fixed-width thumbnail of the first page image.
func writeThumbnail(pagePath string, thumbPath string) error {
	file, err := os.Open(pagePath)
	if err != nil {
		return fmt.Errorf("can't open page image: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return fmt.Errorf("can't decode page image: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return fmt.Errorf("page image %q is empty", pagePath)
	}

	height := bounds.Dy() * thumbnailWidth / bounds.Dx()
	thumb := image.NewRGBA(image.Rect(0, 0, thumbnailWidth, height))
	draw.ApproxBiLinear.Scale(thumb, thumb.Bounds(), img, bounds, draw.Over, nil)

	out, err := os.Create(thumbPath)
	if err != nil {
		return fmt.Errorf("can't create thumbnail file: %w", err)
	}
	defer out.Close()

	if err := jpeg.Encode(out, thumb, &jpeg.Options{Quality: thumbnailQual}); err != nil {
		return fmt.Errorf("can't encode thumbnail: %w", err)
	}

	return nil
}
