package analysis

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// SpectralFeatures holds frequency domain characteristics of one magnitude spectrum
type SpectralFeatures struct {
	Centroid  float64 `json:"spectral_centroid"`
	Rolloff   float64 `json:"spectral_rolloff"`
	Bandwidth float64 `json:"spectral_bandwidth"`
	Flatness  float64 `json:"spectral_flatness"`
	Crest     float64 `json:"spectral_crest"`
	Slope     float64 `json:"spectral_slope"`
	Energy    float64 `json:"energy"`
}

// hannWindow returns a periodic Hann window of the given size
func hannWindow(size int) []float64 {
	w := make([]float64, size)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(size))
	}
	return w
}

// magnitudeSpectrum windows the frame and returns |X(k)| for k in [0, N/2]
func magnitudeSpectrum(frame, window []float64) []float64 {
	windowed := make([]float64, len(frame))
	for i, s := range frame {
		windowed[i] = s * window[i]
	}

	spectrum := fft.FFTReal(windowed)
	bins := len(spectrum)/2 + 1
	mags := make([]float64, bins)
	for k := range bins {
		mags[k] = cmplx.Abs(spectrum[k])
	}
	return mags
}

// frequencyBins returns the centre frequency of each bin of an N/2+1 spectrum
func frequencyBins(numBins, sampleRate int) []float64 {
	freqs := make([]float64, numBins)
	if numBins < 2 {
		return freqs
	}
	for i := range numBins {
		freqs[i] = float64(i) * float64(sampleRate) / float64((numBins-1)*2)
	}
	return freqs
}

// extractSpectralFeatures computes summary features of a magnitude spectrum
func extractSpectralFeatures(magnitudes, freqs []float64) SpectralFeatures {
	features := SpectralFeatures{}
	if len(magnitudes) == 0 || len(magnitudes) != len(freqs) {
		return features
	}

	features.Centroid = spectralCentroid(magnitudes, freqs)
	features.Rolloff = spectralRolloff(magnitudes, freqs, 0.85)
	features.Bandwidth = spectralBandwidth(magnitudes, freqs, features.Centroid)
	features.Flatness = spectralFlatness(magnitudes)
	features.Crest = spectralCrest(magnitudes)
	features.Slope = spectralSlope(magnitudes, freqs)
	features.Energy = spectralEnergy(magnitudes)

	return features
}

func spectralCentroid(spectrum, freqs []float64) float64 {
	numerator := 0.0
	denominator := 0.0

	for i := range spectrum {
		numerator += freqs[i] * spectrum[i]
		denominator += spectrum[i]
	}

	if denominator == 0 {
		return 0
	}
	return numerator / denominator
}

func spectralRolloff(spectrum, freqs []float64, threshold float64) float64 {
	totalEnergy := spectralEnergy(spectrum)
	if totalEnergy == 0 {
		return 0
	}

	targetEnergy := threshold * totalEnergy
	cumulativeEnergy := 0.0

	for i := range spectrum {
		cumulativeEnergy += spectrum[i] * spectrum[i]
		if cumulativeEnergy >= targetEnergy {
			return freqs[i]
		}
	}
	return freqs[len(freqs)-1]
}

func spectralBandwidth(spectrum, freqs []float64, centroid float64) float64 {
	numerator := 0.0
	denominator := 0.0

	for i := range spectrum {
		diff := freqs[i] - centroid
		numerator += diff * diff * spectrum[i]
		denominator += spectrum[i]
	}

	if denominator == 0 {
		return 0
	}
	return math.Sqrt(numerator / denominator)
}

// spectralFlatness is the Wiener entropy: geometric mean over arithmetic mean
func spectralFlatness(spectrum []float64) float64 {
	logSum := 0.0
	count := 0

	for _, mag := range spectrum {
		if mag > 1e-10 {
			logSum += math.Log(mag)
			count++
		}
	}

	if count == 0 {
		return 0
	}

	geometricMean := math.Exp(logSum / float64(count))

	arithmeticMean := 0.0
	for _, mag := range spectrum {
		arithmeticMean += mag
	}
	arithmeticMean /= float64(len(spectrum))

	if arithmeticMean == 0 {
		return 0
	}
	return geometricMean / arithmeticMean
}

func spectralCrest(spectrum []float64) float64 {
	maxVal := 0.0
	sumSquares := 0.0

	for _, mag := range spectrum {
		maxVal = math.Max(maxVal, mag)
		sumSquares += mag * mag
	}

	rms := math.Sqrt(sumSquares / float64(len(spectrum)))
	if rms == 0 {
		return 0
	}
	return maxVal / rms
}

// spectralSlope fits log-magnitude against log-frequency
func spectralSlope(spectrum, freqs []float64) float64 {
	n := 0
	sumX, sumY, sumXY, sumXX := 0.0, 0.0, 0.0, 0.0

	for i := range spectrum {
		if spectrum[i] > 1e-10 && freqs[i] > 0 {
			x := math.Log10(freqs[i])
			y := math.Log10(spectrum[i])

			sumX += x
			sumY += y
			sumXY += x * y
			sumXX += x * x
			n++
		}
	}

	if n < 2 {
		return 0
	}

	denominator := float64(n)*sumXX - sumX*sumX
	if denominator == 0 {
		return 0
	}
	return (float64(n)*sumXY - sumX*sumY) / denominator
}

func spectralEnergy(spectrum []float64) float64 {
	energy := 0.0
	for _, mag := range spectrum {
		energy += mag * mag
	}
	return energy
}

// positiveFlux is the L2 norm of bin-wise magnitude increases between frames
func positiveFlux(prev, cur []float64) float64 {
	sum := 0.0
	for k := range cur {
		if diff := cur[k] - prev[k]; diff > 0 {
			sum += diff * diff
		}
	}
	return math.Sqrt(sum)
}
