package normalizer

import "image"

// binarize thresholds gray to pure black/white using Otsu's method.
func binarize(gray *image.Gray) *image.Gray {
	threshold := otsuThreshold(gray)

	out := image.NewGray(gray.Bounds())
	for ix, v := range gray.Pix {
		if v > threshold {
			out.Pix[ix] = 255
		}
	}

	return out
}

// otsuThreshold picks the threshold maximizing between-class variance of the
// pixel histogram.
func otsuThreshold(gray *image.Gray) uint8 {
	var histogram [256]int
	for _, v := range gray.Pix {
		histogram[v]++
	}

	total := len(gray.Pix)
	if total == 0 {
		return 128
	}

	var sumAll float64
	for level, count := range histogram {
		sumAll += float64(level) * float64(count)
	}

	var (
		sumBackground float64
		weightBG      int
		bestThreshold uint8
		bestVariance  float64
	)

	for level := 0; level < 256; level++ {
		weightBG += histogram[level]
		if weightBG == 0 {
			continue
		}
		weightFG := total - weightBG
		if weightFG == 0 {
			break
		}

		sumBackground += float64(level) * float64(histogram[level])
		meanBG := sumBackground / float64(weightBG)
		meanFG := (sumAll - sumBackground) / float64(weightFG)

		diff := meanBG - meanFG
		variance := float64(weightBG) * float64(weightFG) * diff * diff
		if variance > bestVariance {
			bestVariance = variance
			bestThreshold = uint8(level)
		}
	}

	return bestThreshold
}
