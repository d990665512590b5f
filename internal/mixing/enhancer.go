package mixing

import (
	"context"
	"errors"
	"fmt"

	"github.com/RyanBlaney/latency-benchmark-common/logging"

	"github.com/RyanBlaney/mixdown/pkg/audio"
	"github.com/RyanBlaney/mixdown/pkg/audio/eq"
)

// ErrEnhancerUnavailable makes the chain move on to the next enhancer
var ErrEnhancerUnavailable = errors.New("enhancer unavailable")

// Enhancer improves a vocal buffer. Implementations that cannot serve a
// request return an error wrapping ErrEnhancerUnavailable.
type Enhancer interface {
	Name() string
	Enhance(ctx context.Context, buf *audio.Buffer) (*audio.Buffer, error)
}

// DSPEnhancer removes low-frequency rumble with a zero-phase high-pass
type DSPEnhancer struct {
	CutoffHz float64
}

// DefaultCutoffHz is the DSPEnhancer high-pass corner
const DefaultCutoffHz = 80.0

func (d DSPEnhancer) Name() string {
	return "dsp-highpass"
}

func (d DSPEnhancer) Enhance(ctx context.Context, buf *audio.Buffer) (*audio.Buffer, error) {
	cutoff := d.CutoffHz
	if cutoff <= 0 {
		cutoff = DefaultCutoffHz
	}
	if cutoff >= float64(buf.SampleRate)/2 {
		return buf.Clone(), nil
	}

	coeffs := eq.Design(eq.HighPass, cutoff, 0, 0.707, buf.SampleRate)
	out := buf.Clone()
	for ch, data := range out.Samples {
		out.Samples[ch] = eq.FiltFilt(coeffs, data)
	}
	return out, nil
}

// Chain tries enhancers in registration order. The DSP enhancer always runs
// last, so the chain succeeds whenever every other enhancer is unavailable.
type Chain struct {
	enhancers []Enhancer
	logger    logging.Logger
}

// NewChain creates a chain of enhancers followed by the DSP enhancer
func NewChain(logger logging.Logger, enhancers ...Enhancer) *Chain {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	list := make([]Enhancer, 0, len(enhancers)+1)
	list = append(list, enhancers...)
	list = append(list, DSPEnhancer{CutoffHz: DefaultCutoffHz})

	return &Chain{
		enhancers: list,
		logger:    logger.WithFields(logging.Fields{"component": "enhancer_chain"}),
	}
}

// Enhance returns the output of the first available enhancer and its name.
// Failures other than ErrEnhancerUnavailable stop the chain.
func (c *Chain) Enhance(ctx context.Context, buf *audio.Buffer) (*audio.Buffer, string, error) {
	for _, e := range c.enhancers {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}

		out, err := e.Enhance(ctx, buf)
		if errors.Is(err, ErrEnhancerUnavailable) {
			c.logger.Debug("Enhancer unavailable, trying next", logging.Fields{
				"enhancer": e.Name(),
				"reason":   err.Error(),
			})
			continue
		}
		if err != nil {
			return nil, e.Name(), fmt.Errorf("enhancer %s failed: %w", e.Name(), err)
		}
		if out.Channels() != buf.Channels() || out.Frames() != buf.Frames() || out.SampleRate != buf.SampleRate {
			return nil, e.Name(), audio.NewProcessingError(audio.ErrCodeInvalidParameter,
				fmt.Sprintf("enhancer %s changed the buffer format", e.Name()), audio.ErrInvalidParameter)
		}
		return out, e.Name(), nil
	}
	return buf.Clone(), "", nil
}

// Names lists the enhancers in the order they are tried
func (c *Chain) Names() []string {
	names := make([]string, len(c.enhancers))
	for i, e := range c.enhancers {
		names[i] = e.Name()
	}
	return names
}
