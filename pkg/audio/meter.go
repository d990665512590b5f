package audio

import "math"

// StereoWidth returns the side/mid energy ratio of a stereo buffer.
// Mono content measures 0, fully decorrelated content measures about 1.
func StereoWidth(b *Buffer) float64 {
	if b.Channels() != 2 {
		return 0
	}
	left, right := b.Samples[0], b.Samples[1]

	midEnergy, sideEnergy := 0.0, 0.0
	for i := range left {
		mid := (left[i] + right[i]) / 2
		side := (left[i] - right[i]) / 2
		midEnergy += mid * mid
		sideEnergy += side * side
	}
	if midEnergy < 1e-12 {
		if sideEnergy < 1e-12 {
			return 0
		}
		return 1
	}
	return math.Min(sideEnergy/midEnergy, 4)
}

// Correlation returns the Pearson correlation between left and right, in [-1, 1].
// Mono and silent buffers measure 1.
func Correlation(b *Buffer) float64 {
	if b.Channels() != 2 {
		return 1
	}
	left, right := b.Samples[0], b.Samples[1]

	var sumLR, sumLL, sumRR float64
	for i := range left {
		sumLR += left[i] * right[i]
		sumLL += left[i] * left[i]
		sumRR += right[i] * right[i]
	}
	denom := math.Sqrt(sumLL * sumRR)
	if denom < 1e-12 {
		return 1
	}
	return sumLR / denom
}

// CrestFactorDB returns peak-to-RMS ratio in decibels
func CrestFactorDB(b *Buffer) float64 {
	rms := RMS(b)
	if rms < SilenceEpsilon {
		return 0
	}
	return LinearToDB(Peak(b) / rms)
}
