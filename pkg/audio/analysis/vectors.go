package analysis

import (
	"fmt"
	"math"
)

// FeatureType tags which part of a profile a vector summarizes
type FeatureType string

const (
	FeatureFrequency FeatureType = "frequency"
	FeatureSpectral  FeatureType = "spectral"
	FeatureRhythm    FeatureType = "rhythm"
	FeatureFull      FeatureType = "full"
)

// FeatureTypes lists every supported feature type
var FeatureTypes = []FeatureType{FeatureFrequency, FeatureSpectral, FeatureRhythm, FeatureFull}

const rhythmSize = 4

// VectorSize returns the fixed dimension for a feature type
func VectorSize(t FeatureType) int {
	switch t {
	case FeatureFrequency:
		return NumBands
	case FeatureSpectral:
		return TimbreSize
	case FeatureRhythm:
		return rhythmSize
	case FeatureFull:
		return NumBands + TimbreSize + rhythmSize + 2
	default:
		return 0
	}
}

// Vector extracts a fixed-length vector of the given type from a profile.
// Every component lies in [0, 1].
func Vector(profile *FrequencyProfile, t FeatureType) ([]float64, error) {
	switch t {
	case FeatureFrequency:
		return append([]float64(nil), profile.BandRatios[:]...), nil
	case FeatureSpectral:
		return append([]float64(nil), profile.Timbre[:]...), nil
	case FeatureRhythm:
		return rhythmVector(profile), nil
	case FeatureFull:
		v := make([]float64, 0, VectorSize(FeatureFull))
		v = append(v, profile.BandRatios[:]...)
		v = append(v, profile.Timbre[:]...)
		v = append(v, rhythmVector(profile)...)
		v = append(v, clamp01(profile.StereoWidth), clamp01(profile.CrestFactorDB/30))
		return v, nil
	default:
		return nil, fmt.Errorf("unsupported feature type: %s", t)
	}
}

func rhythmVector(p *FrequencyProfile) []float64 {
	return []float64{
		math.Tanh(p.FluxMean * 10),
		math.Tanh(p.FluxStd * 10),
		clamp01(p.OnsetRate / 8),
		clamp01(p.RMSModulation),
	}
}
