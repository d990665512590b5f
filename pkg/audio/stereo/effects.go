package stereo

import (
	"fmt"
	"math"

	"github.com/RyanBlaney/mixdown/pkg/audio"
)

// ReverbParams configures the room reverb
type ReverbParams struct {
	RoomSize float64 `mapstructure:"room_size" json:"room_size" yaml:"room_size"`
	WetMix   float64 `mapstructure:"wet_mix" json:"wet_mix" yaml:"wet_mix"`
	Damping  float64 `mapstructure:"damping" json:"damping" yaml:"damping"`
}

// DelayParams configures the feedback delay
type DelayParams struct {
	DelayMs  float64 `mapstructure:"delay_ms" json:"delay_ms" yaml:"delay_ms"`
	Feedback float64 `mapstructure:"feedback" json:"feedback" yaml:"feedback"`
	WetMix   float64 `mapstructure:"wet_mix" json:"wet_mix" yaml:"wet_mix"`
}

const (
	maxFeedback  = 0.95
	maxDelayMs   = 2000
	stereoSpread = 23
)

// Tunings at 44.1 kHz
var (
	combTunings    = []int{1116, 1188, 1277, 1356, 1422, 1491}
	allpassTunings = []int{556, 441, 341}
)

func invalid(format string, args ...any) error {
	return audio.NewConfigurationError(audio.ErrCodeInvalidParameter, fmt.Sprintf(format, args...), audio.ErrInvalidParameter)
}

// Validate checks the reverb parameter ranges
func (p ReverbParams) Validate() error {
	if p.RoomSize < 0 || p.RoomSize > 1 {
		return invalid("room size %.3f outside [0, 1]", p.RoomSize)
	}
	if p.WetMix < 0 || p.WetMix > 1 {
		return invalid("reverb wet mix %.3f outside [0, 1]", p.WetMix)
	}
	if p.Damping < 0 || p.Damping > 1 {
		return invalid("damping %.3f outside [0, 1]", p.Damping)
	}
	return nil
}

// Validate checks the delay parameter ranges
func (p DelayParams) Validate() error {
	if p.DelayMs <= 0 || p.DelayMs > maxDelayMs {
		return invalid("delay %.1f ms outside (0, %d]", p.DelayMs, maxDelayMs)
	}
	if p.Feedback < 0 || p.Feedback > maxFeedback {
		return invalid("feedback %.3f outside [0, %.2f]", p.Feedback, maxFeedback)
	}
	if p.WetMix < 0 || p.WetMix > 1 {
		return invalid("delay wet mix %.3f outside [0, 1]", p.WetMix)
	}
	return nil
}

// delayLine is a circular buffer
type delayLine struct {
	buffer   []float64
	writePos int
}

func newDelayLine(size int) *delayLine {
	return &delayLine{buffer: make([]float64, max(size, 1))}
}

// read returns the sample written size samples ago
func (d *delayLine) read() float64 {
	return d.buffer[d.writePos]
}

func (d *delayLine) write(sample float64) {
	d.buffer[d.writePos] = sample
	d.writePos = (d.writePos + 1) % len(d.buffer)
}

// comb is a lowpass-feedback comb filter
type comb struct {
	line        *delayLine
	feedback    float64
	damping     float64
	filterStore float64
}

func (c *comb) process(input float64) float64 {
	output := c.line.read()
	c.filterStore = output*(1-c.damping) + c.filterStore*c.damping
	c.line.write(input + c.filterStore*c.feedback)
	return output
}

type allpass struct {
	line *delayLine
}

func (a *allpass) process(input float64) float64 {
	buffered := a.line.read()
	output := buffered - input
	a.line.write(input + buffered*0.5)
	return output
}

// AddReverb mixes a Schroeder-style reverb into the buffer. The output keeps
// the input length; the tail beyond the last frame is dropped.
func AddReverb(b *audio.Buffer, p ReverbParams) (*audio.Buffer, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.WetMix == 0 {
		return b.Clone(), nil
	}

	scale := float64(b.SampleRate) / 44100
	feedback := 0.7 + 0.28*p.RoomSize
	gain := 1.0 / float64(len(combTunings))

	out := b.Clone()
	for ch, data := range out.Samples {
		spread := ch * stereoSpread

		combs := make([]*comb, len(combTunings))
		for i, t := range combTunings {
			combs[i] = &comb{
				line:     newDelayLine(int(float64(t+spread) * scale)),
				feedback: feedback,
				damping:  p.Damping,
			}
		}
		allpasses := make([]*allpass, len(allpassTunings))
		for i, t := range allpassTunings {
			allpasses[i] = &allpass{line: newDelayLine(int(float64(t+spread) * scale))}
		}

		for i, dry := range data {
			wet := 0.0
			for _, c := range combs {
				wet += c.process(dry)
			}
			wet *= gain
			for _, a := range allpasses {
				wet = a.process(wet)
			}
			data[i] = dry*(1-p.WetMix) + wet*p.WetMix
		}
	}
	return out, nil
}

// AddDelay mixes a feedback echo into every channel
func AddDelay(b *audio.Buffer, p DelayParams) (*audio.Buffer, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.WetMix == 0 {
		return b.Clone(), nil
	}

	size := int(math.Round(p.DelayMs * 0.001 * float64(b.SampleRate)))
	out := b.Clone()
	for _, data := range out.Samples {
		line := newDelayLine(size)
		for i, dry := range data {
			echo := line.read()
			line.write(dry + echo*p.Feedback)
			data[i] = dry*(1-p.WetMix) + echo*p.WetMix
		}
	}
	return out, nil
}
