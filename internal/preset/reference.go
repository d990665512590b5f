package preset

import (
	"math"

	"github.com/RyanBlaney/mixdown/internal/store"
	"github.com/RyanBlaney/mixdown/pkg/audio/analysis"
	"github.com/RyanBlaney/mixdown/pkg/audio/eq"
	"github.com/RyanBlaney/mixdown/pkg/audio/stereo"
)

// typicalWidth is the side/mid energy ratio of an unprocessed stereo mix
const typicalWidth = 0.25

// Recommend derives mixing hints from the profile of a reference track
func Recommend(profile *analysis.FrequencyProfile) store.Recommendations {
	curve := eq.Curve(profile.BandRatios).Normalized()

	// Widening by f scales the side/mid energy ratio by f squared
	width := 1.0
	if profile.StereoWidth > 0 {
		width = stereo.ClampWidth(math.Sqrt(profile.StereoWidth / typicalWidth))
	}

	// Denser references (lower crest factor) imply heavier compression
	crest := profile.CrestFactorDB
	return store.Recommendations{
		TargetCurve: curve,
		Width:       width,
		Compression: store.Compression{
			ThresholdDB: clamp(-14-crest, -36, -12),
			Ratio:       clamp(1.5+(18-crest)/3, 1.5, 6),
			AttackMs:    10,
			ReleaseMs:   150,
		},
	}
}

// NewReferenceTrack builds a reference track record from an analyzed profile
func NewReferenceTrack(name, genre string, profile *analysis.FrequencyProfile) *store.ReferenceTrack {
	return &store.ReferenceTrack{
		Name:            name,
		Genre:           Canonicalize(genre),
		Profile:         profile,
		StereoWidth:     profile.StereoWidth,
		CrestFactorDB:   profile.CrestFactorDB,
		Recommendations: Recommend(profile),
	}
}

// ReferenceVectors extracts one feature vector per feature type for a track
func ReferenceVectors(ref *store.ReferenceTrack) ([]*store.FeatureVector, error) {
	out := make([]*store.FeatureVector, 0, len(analysis.FeatureTypes))
	for _, t := range analysis.FeatureTypes {
		values, err := analysis.Vector(ref.Profile, t)
		if err != nil {
			return nil, err
		}
		out = append(out, &store.FeatureVector{
			TrackID:     ref.ID,
			TrackKind:   store.TrackReference,
			Genre:       ref.Genre,
			FeatureType: t,
			Values:      values,
		})
	}
	return out, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func lerp(a, b, w float64) float64 {
	return (1-w)*a + w*b
}
