package dynamics

import (
	"fmt"

	"github.com/RyanBlaney/mixdown/pkg/audio"
)

// MasterParams configures the final loudness pass
type MasterParams struct {
	TargetRMSDB float64       `mapstructure:"target_rms_db" json:"target_rms_db" yaml:"target_rms_db"`
	MaxGainDB   float64       `mapstructure:"max_gain_db" json:"max_gain_db" yaml:"max_gain_db"`
	Limiter     LimiterParams `mapstructure:"limiter" json:"limiter" yaml:"limiter"`
}

// DefaultMasterParams returns -14 dBFS RMS with at most 12 dB of make-up gain
func DefaultMasterParams() MasterParams {
	return MasterParams{
		TargetRMSDB: -14,
		MaxGainDB:   12,
		Limiter:     DefaultLimiterParams(),
	}
}

// Master normalizes RMS loudness toward the target and then limits peaks to
// the ceiling. Silent input is passed through the limiter without gain and
// reported with audio.ErrSilentBuffer.
func Master(b *audio.Buffer, p MasterParams) (*audio.Buffer, error) {
	var warning error

	leveled := b
	if audio.Peak(b) < audio.SilenceEpsilon {
		warning = audio.ErrSilentBuffer
	} else {
		gain := p.TargetRMSDB - audio.LinearToDB(audio.RMS(b))
		gain = min(gain, p.MaxGainDB)
		leveled = audio.GainDB(b, gain)
	}

	limited, err := Limit(leveled, p.Limiter)
	if err != nil {
		return nil, fmt.Errorf("failed to limit master: %w", err)
	}
	return limited, warning
}
