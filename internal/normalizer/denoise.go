package normalizer

import (
	"image"
	"math"
)

// Non-local means parameters tuned for scanned flyers: filter strength 10,
// 7px patches compared within an 11px search window. Filtering cost is
// linear in plane size times search area, so the window bounds wall time
// per page.
const (
	nlmStrength   = 10.0
	nlmPatchSize  = 7
	nlmSearchSize = 11
)

// denoise applies non-local-means denoising. Grayscale output is produced
// unless keepColor is set, in which case each RGB plane is filtered
// separately.
func denoise(img image.Image, keepColor bool) image.Image {
	if !keepColor {
		gray := toGray(img)
		bounds := gray.Bounds()
		out := image.NewGray(bounds)
		out.Pix = nlmPlane(gray.Pix, gray.Stride, bounds.Dx(), bounds.Dy())
		return out
	}

	rgba := toRGBA(img)
	bounds := rgba.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	planes := make([][]uint8, 3)
	for ch := 0; ch < 3; ch++ {
		plane := make([]uint8, width*height)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				plane[y*width+x] = rgba.Pix[y*rgba.Stride+x*4+ch]
			}
		}
		planes[ch] = nlmPlane(plane, width, width, height)
	}

	out := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			off := y*out.Stride + x*4
			out.Pix[off] = planes[0][y*width+x]
			out.Pix[off+1] = planes[1][y*width+x]
			out.Pix[off+2] = planes[2][y*width+x]
			out.Pix[off+3] = 255
		}
	}
	return out
}

// nlmPlane filters one 8-bit plane with non-local means: each pixel becomes
// a weighted average of search-window pixels, weighted by patch similarity.
// For every window offset the squared differences against the shifted plane
// are accumulated into an integral image, making each patch distance a
// constant-time box sum.
func nlmPlane(pix []uint8, stride, width, height int) []uint8 {
	patchRad := nlmPatchSize / 2
	searchRad := nlmSearchSize / 2
	h2 := nlmStrength * nlmStrength

	plane := make([]float64, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			plane[y*width+x] = float64(pix[y*stride+x])
		}
	}

	weights := make([]float64, width*height)
	values := make([]float64, width*height)

	iw := width + 1
	integral := make([]float64, iw*(height+1))

	for dy := -searchRad; dy <= searchRad; dy++ {
		for dx := -searchRad; dx <= searchRad; dx++ {
			for y := 0; y < height; y++ {
				sy := clampInt(y+dy, 0, height-1)
				rowSum := 0.0
				for x := 0; x < width; x++ {
					sx := clampInt(x+dx, 0, width-1)
					diff := plane[y*width+x] - plane[sy*width+sx]
					rowSum += diff * diff
					integral[(y+1)*iw+x+1] = integral[y*iw+x+1] + rowSum
				}
			}

			for y := 0; y < height; y++ {
				y0 := max(y-patchRad, 0)
				y1 := min(y+patchRad, height-1)
				sy := clampInt(y+dy, 0, height-1)
				for x := 0; x < width; x++ {
					x0 := max(x-patchRad, 0)
					x1 := min(x+patchRad, width-1)
					area := float64((x1 - x0 + 1) * (y1 - y0 + 1))
					dist := (integral[(y1+1)*iw+x1+1] - integral[y0*iw+x1+1] -
						integral[(y1+1)*iw+x0+1] + integral[y0*iw+x0+1]) / area

					weight := math.Exp(-dist / h2)
					sx := clampInt(x+dx, 0, width-1)
					weights[y*width+x] += weight
					values[y*width+x] += weight * plane[sy*width+sx]
				}
			}
		}
	}

	out := make([]uint8, width*height)
	for ix := range out {
		out[ix] = uint8(math.Round(values[ix] / weights[ix]))
	}

	return out
}
