package render

import "math"

// gaussian5 is a 5-tap binomial kernel, a close Gaussian approximation.
var gaussian5 = [5]float64{1.0 / 16, 4.0 / 16, 6.0 / 16, 4.0 / 16, 1.0 / 16}

// gaussianBlur applies a separable 5-tap blur to a plane. Edges clamp.
func gaussianBlur(plane []float64, w, h int) []float64 {
	tmp := make([]float64, len(plane))
	out := make([]float64, len(plane))

	for y := 0; y < h; y++ {
		row := y * w
		for x := 0; x < w; x++ {
			var sum float64
			for k := -2; k <= 2; k++ {
				sx := clampInt(x+k, 0, w-1)
				sum += plane[row+sx] * gaussian5[k+2]
			}
			tmp[row+x] = sum
		}
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum float64
			for k := -2; k <= 2; k++ {
				sy := clampInt(y+k, 0, h-1)
				sum += tmp[sy*w+x] * gaussian5[k+2]
			}
			out[y*w+x] = sum
		}
	}
	return out
}

// edgeAwareBlur smooths a luminance plane with a 5x5 window whose weights
// fall off with luminance difference, so strong edges are not averaged
// across. This keeps the shadow/highlight zone estimate halo-free.
func edgeAwareBlur(plane []float64, w, h int) []float64 {
	const rangeSigma = 0.15
	inv := 1.0 / (2 * rangeSigma * rangeSigma)

	out := make([]float64, len(plane))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			center := plane[y*w+x]
			var sum, weight float64
			for ky := -2; ky <= 2; ky++ {
				sy := clampInt(y+ky, 0, h-1)
				for kx := -2; kx <= 2; kx++ {
					sx := clampInt(x+kx, 0, w-1)
					v := plane[sy*w+sx]
					d := v - center
					wgt := gaussian5[ky+2] * gaussian5[kx+2] * math.Exp(-d*d*inv)
					sum += v * wgt
					weight += wgt
				}
			}
			out[y*w+x] = sum / weight
		}
	}
	return out
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
