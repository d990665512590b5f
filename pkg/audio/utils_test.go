package audio

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(freq float64, amplitude float64, frames, sampleRate int) []float64 {
	out := make([]float64, frames)
	for i := range out {
		out[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}

func TestResample(t *testing.T) {
	buf := NewMonoBuffer(sine(440, 0.5, 24000, 24000), 24000)

	out, err := Resample(buf, 32000)
	require.NoError(t, err)
	assert.Equal(t, 32000, out.SampleRate)
	assert.Equal(t, 32000, out.Frames())
	assert.InDelta(t, RMS(buf), RMS(out), 0.01)

	same, err := Resample(buf, 24000)
	require.NoError(t, err)
	assert.Equal(t, buf.Samples, same.Samples)
	same.Samples[0][0] = 42
	assert.NotEqual(t, 42.0, buf.Samples[0][0], "resample must not alias the input")
}

func TestResampleInvalidRate(t *testing.T) {
	buf := NewMonoBuffer(make([]float64, 10), 44100)

	for _, rate := range []int{0, -8000} {
		_, err := Resample(buf, rate)
		if !errors.Is(err, ErrInvalidRate) {
			t.Errorf("Resample(%d): want ErrInvalidRate, got %v", rate, err)
		}
		assert.True(t, IsKind(err, KindInput))
	}
}

func TestToChannels(t *testing.T) {
	mono := NewMonoBuffer([]float64{0.1, -0.2, 0.3}, 8000)

	stereo, err := ToChannels(mono, 2)
	require.NoError(t, err)
	require.Equal(t, 2, stereo.Channels())
	assert.Equal(t, mono.Samples[0], stereo.Samples[0])
	assert.Equal(t, mono.Samples[0], stereo.Samples[1])

	src := &Buffer{Samples: [][]float64{{1, 0.5}, {0, -0.5}}, SampleRate: 8000}
	down, err := ToChannels(src, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0}, down.Samples[0])

	_, err = ToChannels(src, 3)
	assert.ErrorIs(t, err, ErrInvalidChannels)
}

func TestGainPeakRMS(t *testing.T) {
	buf := NewMonoBuffer([]float64{0.5, -1, 0.25}, 8000)

	assert.Equal(t, 1.0, Peak(buf))
	assert.InDelta(t, math.Sqrt((0.25+1+0.0625)/3), RMS(buf), 1e-12)

	quieter := GainDB(buf, -6)
	assert.InDelta(t, 0.501187, Peak(quieter), 1e-6)
	assert.Equal(t, 1.0, Peak(buf), "gain must not modify the input")
}

func TestNormalizePeak(t *testing.T) {
	buf := NewMonoBuffer([]float64{0.1, -0.25, 0.2}, 8000)

	out, err := NormalizePeak(buf, -1)
	require.NoError(t, err)
	assert.InDelta(t, DBToLinear(-1), Peak(out), 1e-12)

	silent := NewBuffer(2, 100, 8000)
	out, err = NormalizePeak(silent, 0)
	assert.ErrorIs(t, err, ErrSilentBuffer)
	assert.True(t, IsWarning(err))
	assert.Equal(t, 0.0, Peak(out))
}

func TestPrepareForMix(t *testing.T) {
	tests := []struct {
		name       string
		rateA      int
		channelsA  int
		rateB      int
		channelsB  int
		targetRate int
	}{
		{"vocals lower rate", 24000, 1, 32000, 1, 32000},
		{"music lower rate", 48000, 2, 44100, 1, 48000},
		{"same rate mixed channels", 44100, 1, 44100, 2, 44100},
		{"both stereo", 22050, 2, 16000, 2, 22050},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewBuffer(tt.channelsA, tt.rateA/10, tt.rateA)
			b := NewBuffer(tt.channelsB, tt.rateB/10, tt.rateB)

			out, err := PrepareForMix(a, b)
			require.NoError(t, err)
			for _, buf := range out {
				assert.Equal(t, tt.targetRate, buf.SampleRate)
				assert.Equal(t, 2, buf.Channels())
				assert.GreaterOrEqual(t, buf.SampleRate, tt.rateA)
				assert.GreaterOrEqual(t, buf.SampleRate, tt.rateB)
			}
		})
	}
}

func TestPrepareForMixRejectsEmpty(t *testing.T) {
	_, err := PrepareForMix(NewBuffer(1, 0, 44100), NewBuffer(1, 10, 44100))
	assert.ErrorIs(t, err, ErrEmptyBuffer)
	assert.True(t, IsKind(err, KindInput))
}

func TestCheckFinite(t *testing.T) {
	assert.NoError(t, CheckFinite(NewMonoBuffer([]float64{0, 1, -1}, 8000)))

	err := CheckFinite(NewMonoBuffer([]float64{0, math.NaN()}, 8000))
	assert.ErrorIs(t, err, ErrNonFiniteSample)
	assert.Equal(t, KindProcessing, KindOf(err))

	err = CheckFinite(NewMonoBuffer([]float64{math.Inf(1)}, 8000))
	assert.ErrorIs(t, err, ErrNonFiniteSample)
}

func TestSumAndFitLength(t *testing.T) {
	a := NewMonoBuffer([]float64{0.1, 0.2, 0.3}, 8000)
	b := FitLength(NewMonoBuffer([]float64{0.1}, 8000), 3)
	assert.Equal(t, []float64{0.1, 0, 0}, b.Samples[0])

	sum, err := Sum(a, b)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.2, 0.2, 0.3}, sum.Samples[0], 1e-12)

	_, err = Sum(a, NewMonoBuffer([]float64{1, 2, 3}, 16000))
	assert.ErrorIs(t, err, ErrInvalidRate)
}
