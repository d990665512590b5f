package dynamics

import (
	"fmt"
	"math"

	"github.com/RyanBlaney/mixdown/pkg/audio"
)

// LimiterParams configures the brick-wall limiter
type LimiterParams struct {
	CeilingDBFS float64 `mapstructure:"ceiling_dbfs" json:"ceiling_dbfs" yaml:"ceiling_dbfs"`
	LookaheadMs float64 `mapstructure:"lookahead_ms" json:"lookahead_ms" yaml:"lookahead_ms"`
	ReleaseMs   float64 `mapstructure:"release_ms" json:"release_ms" yaml:"release_ms"`
}

// DefaultLimiterParams returns a -0.3 dBFS ceiling with 5 ms look-ahead
func DefaultLimiterParams() LimiterParams {
	return LimiterParams{
		CeilingDBFS: -0.3,
		LookaheadMs: 5,
		ReleaseMs:   80,
	}
}

// Limit guarantees no sample exceeds the ceiling. Gain reduction ramps in over
// the look-ahead window before each peak and recovers with the release time.
func Limit(b *audio.Buffer, p LimiterParams) (*audio.Buffer, error) {
	if p.CeilingDBFS > 0 {
		return nil, invalid("limiter ceiling %.2f dBFS must not exceed 0", p.CeilingDBFS)
	}
	if p.LookaheadMs < 0 || p.ReleaseMs <= 0 {
		return nil, invalid("limiter look-ahead must be >= 0 and release > 0")
	}
	if err := audio.Validate(b); err != nil {
		return nil, fmt.Errorf("failed to validate limiter input: %w", err)
	}

	ceiling := audio.DBToLinear(p.CeilingDBFS)
	frames := b.Frames()
	lookahead := int(math.Round(p.LookaheadMs * 0.001 * float64(b.SampleRate)))

	required := make([]float64, frames)
	for i := range frames {
		peak := 0.0
		for _, data := range b.Samples {
			peak = math.Max(peak, math.Abs(data[i]))
		}
		required[i] = 1
		if peak > ceiling {
			required[i] = ceiling / peak
		}
	}

	hold := forwardMin(required, lookahead)

	release := timeCoeff(p.ReleaseMs, b.SampleRate)
	gains := make([]float64, frames)
	window := float64(lookahead + 1)
	sum := hold[0] * window
	prev := 1.0
	for i := range frames {
		// Moving average of hold over [i-lookahead, i]; every term covers
		// frame i, so the average never exceeds required[i].
		if i > 0 {
			sum += hold[i] - hold[max(i-lookahead-1, 0)]
		}
		target := sum / window

		g := target
		if target > prev {
			g = release*prev + (1-release)*target
		}
		gains[i] = g
		prev = g
	}

	out := b.Clone()
	for _, data := range out.Samples {
		for i := range data {
			s := data[i] * gains[i]
			data[i] = math.Max(-ceiling, math.Min(ceiling, s))
		}
	}
	return out, nil
}

// forwardMin returns min(x[i..i+width]) for every i
func forwardMin(x []float64, width int) []float64 {
	out := make([]float64, len(x))
	deque := make([]int, 0, width+1)
	for i := len(x) - 1; i >= 0; i-- {
		for len(deque) > 0 && x[deque[len(deque)-1]] >= x[i] {
			deque = deque[:len(deque)-1]
		}
		deque = append(deque, i)
		if deque[0] > i+width {
			deque = deque[1:]
		}
		out[i] = x[deque[0]]
	}
	return out
}
