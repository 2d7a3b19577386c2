package normalizer

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
)

// upscale scales img up preserving aspect ratio until both dimensions reach
// minDim. Images already at or above the floor are returned unchanged.
func upscale(img image.Image, minDim int) image.Image {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	if minDim <= 0 || (width >= minDim && height >= minDim) {
		return img
	}

	scale := float64(minDim) / float64(width)
	if hScale := float64(minDim) / float64(height); hScale > scale {
		scale = hScale
	}

	dst := image.NewRGBA(image.Rect(0, 0,
		int(float64(width)*scale),
		int(float64(height)*scale),
	))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	return dst
}

// rotateQuadrant rotates img clockwise by a multiple of 90 degrees.
func rotateQuadrant(img image.Image, degrees int) image.Image {
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

// rotateSmallAngle rotates img by angle degrees around its center using
// inverse mapping with bilinear sampling and replicated borders. Intended
// for small deskew corrections where the canvas size is kept.
func rotateSmallAngle(img image.Image, angle float64) image.Image {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	rad := angle * math.Pi / 180
	sin, cos := math.Sincos(rad)
	cx, cy := float64(width)/2, float64(height)/2

	src := toRGBA(img)
	dst := image.NewRGBA(image.Rect(0, 0, width, height))

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			// inverse rotation into source coordinates
			dx, dy := float64(x)-cx, float64(y)-cy
			sx := dx*cos + dy*sin + cx
			sy := -dx*sin + dy*cos + cy
			dst.SetRGBA(x, y, bilinear(src, sx, sy))
		}
	}

	return dst
}

func bilinear(img *image.RGBA, x, y float64) color.RGBA {
	width := img.Bounds().Dx()
	height := img.Bounds().Dy()

	x0 := clampInt(int(math.Floor(x)), 0, width-1)
	y0 := clampInt(int(math.Floor(y)), 0, height-1)
	x1 := clampInt(x0+1, 0, width-1)
	y1 := clampInt(y0+1, 0, height-1)

	fx := clampFloat(x-float64(x0), 0, 1)
	fy := clampFloat(y-float64(y0), 0, 1)

	c00 := img.RGBAAt(x0, y0)
	c10 := img.RGBAAt(x1, y0)
	c01 := img.RGBAAt(x0, y1)
	c11 := img.RGBAAt(x1, y1)

	lerp := func(a, b uint8, t float64) float64 {
		return float64(a) + (float64(b)-float64(a))*t
	}
	blend := func(a, b, c, d uint8) uint8 {
		top := lerp(a, b, fx)
		bottom := lerp(c, d, fx)
		return uint8(math.Round(top + (bottom-top)*fy))
	}

	return color.RGBA{
		R: blend(c00.R, c10.R, c01.R, c11.R),
		G: blend(c00.G, c10.G, c01.G, c11.G),
		B: blend(c00.B, c10.B, c01.B, c11.B),
		A: 255,
	}
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	bounds := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Src)
	return dst
}

func toGray(img image.Image) *image.Gray {
	if gray, ok := img.(*image.Gray); ok {
		return gray
	}
	bounds := img.Bounds()
	dst := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Src)
	return dst
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
