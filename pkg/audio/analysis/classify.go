package analysis

import (
	"math"
	"slices"

	"github.com/RyanBlaney/mixdown/pkg/audio"
)

// SignalMode selects between the regular and the lighter processing path
type SignalMode string

const (
	ModeClean SignalMode = "clean"
	ModeNoisy SignalMode = "noisy"
)

// Classification thresholds
const (
	NoisyFlatness    = 0.5
	LowSNRDB         = 12.0
	LowSNRFlatness   = 0.25
	noiseFloorPctile = 0.10
	signalPctile     = 0.90
)

// Classification is the measured signal quality of a buffer
type Classification struct {
	Mode         SignalMode `json:"mode"`
	SNRDB        float64    `json:"snr_db"`
	NoiseFloorDB float64    `json:"noise_floor_db"`
	Flatness     float64    `json:"flatness"`
}

// Classify estimates the noise floor from the quietest frames and combines
// it with spectral flatness. Broadband content is noisy; so is moderately
// flat content whose loud and quiet frames are close together.
func Classify(profile *FrequencyProfile) Classification {
	c := Classification{
		Mode:         ModeClean,
		Flatness:     profile.Spectral.Flatness,
		NoiseFloorDB: -120,
	}
	if len(profile.FrameRMS) == 0 {
		return c
	}

	sorted := slices.Clone(profile.FrameRMS)
	slices.Sort(sorted)
	noise := sorted[int(math.Floor(noiseFloorPctile*float64(len(sorted)-1)))]
	signal := sorted[int(math.Floor(signalPctile*float64(len(sorted)-1)))]

	if signal < audio.SilenceEpsilon {
		return c
	}

	c.NoiseFloorDB = audio.LinearToDB(noise)
	c.SNRDB = audio.LinearToDB(signal) - c.NoiseFloorDB

	if c.Flatness > NoisyFlatness || (c.SNRDB < LowSNRDB && c.Flatness > LowSNRFlatness) {
		c.Mode = ModeNoisy
	}
	return c
}
