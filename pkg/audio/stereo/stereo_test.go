package stereo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/mixdown/pkg/audio"
)

func stereoFixture(frames int) *audio.Buffer {
	left := make([]float64, frames)
	right := make([]float64, frames)
	for i := range left {
		left[i] = 0.5 * math.Sin(2*math.Pi*440*float64(i)/44100)
		right[i] = 0.8*left[i] + 0.1*math.Sin(2*math.Pi*660*float64(i)/44100)
	}
	return &audio.Buffer{Samples: [][]float64{left, right}, SampleRate: 44100}
}

func TestWidenUnityIsNoOp(t *testing.T) {
	buf := stereoFixture(2048)

	out, err := Widen(buf, 1.0)
	require.NoError(t, err)
	for ch := range buf.Samples {
		assert.InDeltaSlice(t, buf.Samples[ch], out.Samples[ch], 1e-12)
	}
}

func TestWidenRejectsOutOfRange(t *testing.T) {
	buf := stereoFixture(16)
	for _, w := range []float64{0.49, 2.01, -1, math.NaN()} {
		_, err := Widen(buf, w)
		assert.ErrorIs(t, err, audio.ErrWidthOutOfRange, "width %v", w)
	}
	for _, w := range []float64{MinWidth, MaxWidth} {
		_, err := Widen(buf, w)
		assert.NoError(t, err)
	}
}

func TestWidenChangesWidth(t *testing.T) {
	buf := stereoFixture(4096)
	base := audio.StereoWidth(buf)

	wide, err := Widen(buf, 2.0)
	require.NoError(t, err)
	narrow, err := Widen(buf, 0.5)
	require.NoError(t, err)

	assert.InDelta(t, base*4, audio.StereoWidth(wide), 1e-9)
	assert.InDelta(t, base/4, audio.StereoWidth(narrow), 1e-9)

	// The mid signal is preserved
	for i := range buf.Samples[0] {
		assert.InDelta(t, buf.Samples[0][i]+buf.Samples[1][i], wide.Samples[0][i]+wide.Samples[1][i], 1e-12)
	}
}

func TestClampWidth(t *testing.T) {
	assert.Equal(t, MinWidth, ClampWidth(0.1))
	assert.Equal(t, MaxWidth, ClampWidth(5))
	assert.Equal(t, 1.2, ClampWidth(1.2))
}

func TestReverbAndDelayAreOrderIndependent(t *testing.T) {
	buf := stereoFixture(8192)
	reverb := ReverbParams{RoomSize: 0.6, WetMix: 0.3, Damping: 0.4}
	delay := DelayParams{DelayMs: 20, Feedback: 0.4, WetMix: 0.25}

	r, err := AddReverb(buf, reverb)
	require.NoError(t, err)
	rd, err := AddDelay(r, delay)
	require.NoError(t, err)

	d, err := AddDelay(buf, delay)
	require.NoError(t, err)
	dr, err := AddReverb(d, reverb)
	require.NoError(t, err)

	for ch := range rd.Samples {
		assert.InDeltaSlice(t, rd.Samples[ch], dr.Samples[ch], 1e-9)
	}
	assert.Equal(t, buf.Frames(), rd.Frames())
}

func TestDelayEcho(t *testing.T) {
	impulse := audio.NewMonoBuffer(make([]float64, 1000), 1000)
	impulse.Samples[0][0] = 1

	out, err := AddDelay(impulse, DelayParams{DelayMs: 100, Feedback: 0.5, WetMix: 0.5})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, out.Samples[0][0], 1e-12)
	assert.InDelta(t, 0.5, out.Samples[0][100], 1e-12)
	assert.InDelta(t, 0.25, out.Samples[0][200], 1e-12)
	assert.InDelta(t, 0.0, out.Samples[0][150], 1e-12)
}

func TestEffectValidation(t *testing.T) {
	buf := stereoFixture(16)

	_, err := AddReverb(buf, ReverbParams{RoomSize: 1.5, WetMix: 0.2})
	assert.ErrorIs(t, err, audio.ErrInvalidParameter)

	_, err = AddDelay(buf, DelayParams{DelayMs: 10, Feedback: 1.2, WetMix: 0.2})
	assert.ErrorIs(t, err, audio.ErrInvalidParameter)

	dry, err := AddReverb(buf, ReverbParams{RoomSize: 0.5})
	require.NoError(t, err)
	assert.Equal(t, buf.Samples, dry.Samples)
}

func TestApply(t *testing.T) {
	buf := stereoFixture(1024)
	out, err := Apply(buf, Settings{Width: 1.3, Reverb: ReverbParams{RoomSize: 0.4, WetMix: 0.1}})
	require.NoError(t, err)
	assert.NoError(t, audio.CheckFinite(out))

	_, err = Apply(buf, Settings{Width: 3})
	assert.ErrorIs(t, err, audio.ErrWidthOutOfRange)
}
