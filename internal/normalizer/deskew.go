package normalizer

import (
	"image"
	"math"
)

const (
	// maxSkew bounds the deskew search in degrees either direction.
	maxSkew = 5.0
	// minSkew is the smallest correction worth applying; anything below is
	// treated as already upright so a second pass converges to zero.
	minSkew = 0.5

	deskewCoarseStep = 0.5
	deskewFineStep   = 0.1
	deskewMaxDim     = 800
)

// detectSkew estimates the residual small-angle tilt of the text lines in
// gray. It scores candidate angles by the sharpness of the horizontal ink
// projection profile: when text lines are horizontal, ink concentrates into
// few rows and the profile's sum of squares peaks. Working on row profiles of
// the thresholded image keeps cluttered flyer backgrounds from dominating the
// estimate the way global edge detection does.
func detectSkew(gray *image.Gray) float64 {
	ink := inkMask(downsampleGray(gray, deskewMaxDim))
	if len(ink.points) == 0 {
		return 0
	}

	best := bestAngle(ink, -maxSkew, maxSkew, deskewCoarseStep)
	best = bestAngle(ink, best-deskewCoarseStep, best+deskewCoarseStep, deskewFineStep)

	if math.Abs(best) < minSkew {
		return 0
	}
	return best
}

type mask struct {
	points []image.Point
	height int
}

// inkMask collects dark pixels relative to the image mean.
func inkMask(gray *image.Gray) mask {
	bounds := gray.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	var sum uint64
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			sum += uint64(gray.GrayAt(x, y).Y)
		}
	}
	if width == 0 || height == 0 {
		return mask{}
	}
	mean := uint8(sum / uint64(width*height))

	m := mask{height: height}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if gray.GrayAt(x, y).Y < mean {
				m.points = append(m.points, image.Point{X: x, Y: y})
			}
		}
	}
	return m
}

func bestAngle(ink mask, from, to, step float64) float64 {
	best, bestScore := 0.0, -1.0
	for angle := from; angle <= to+1e-9; angle += step {
		if score := profileScore(ink, angle); score > bestScore {
			bestScore = score
			best = angle
		}
	}
	return best
}

// profileScore projects ink pixels onto rows after shearing by angle and
// returns the sum of squared row counts.
func profileScore(ink mask, angle float64) float64 {
	tan := math.Tan(angle * math.Pi / 180)
	profile := make([]int, ink.height+1)

	for _, pt := range ink.points {
		row := pt.Y - int(math.Round(float64(pt.X)*tan))
		if row < 0 || row >= len(profile) {
			continue
		}
		profile[row]++
	}

	var score float64
	for _, count := range profile {
		score += float64(count) * float64(count)
	}
	return score
}

// downsampleGray reduces gray so its longer side is at most maxDim,
// using nearest-neighbor sampling. Deskew only needs coarse structure.
func downsampleGray(gray *image.Gray, maxDim int) *image.Gray {
	bounds := gray.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	longest := width
	if height > longest {
		longest = height
	}
	if longest <= maxDim {
		return gray
	}

	scale := float64(maxDim) / float64(longest)
	newWidth := int(float64(width) * scale)
	newHeight := int(float64(height) * scale)

	dst := image.NewGray(image.Rect(0, 0, newWidth, newHeight))
	for y := 0; y < newHeight; y++ {
		srcY := int(float64(y) / scale)
		for x := 0; x < newWidth; x++ {
			dst.SetGray(x, y, gray.GrayAt(int(float64(x)/scale), srcY))
		}
	}
	return dst
}
