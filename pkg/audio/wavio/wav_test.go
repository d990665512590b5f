package wavio

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/mixdown/pkg/audio"
)

func TestWriteReadPreservesFormat(t *testing.T) {
	left := make([]float64, 3200)
	right := make([]float64, 3200)
	for i := range left {
		left[i] = 0.5 * math.Sin(2*math.Pi*440*float64(i)/32000)
		right[i] = -0.25 * math.Sin(2*math.Pi*220*float64(i)/32000)
	}
	buf := &audio.Buffer{Samples: [][]float64{left, right}, SampleRate: 32000}

	path := filepath.Join(t.TempDir(), "out", "mix.wav")
	require.NoError(t, WriteFile(path, buf, 16))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 32000, got.SampleRate)
	assert.Equal(t, 2, got.Channels())
	assert.Equal(t, buf.Frames(), got.Frames())
	assert.InDeltaSlice(t, left, got.Samples[0], 1e-4)
	assert.InDeltaSlice(t, right, got.Samples[1], 1e-4)
}

func TestEncodeClampsAndValidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hot.wav")
	hot := audio.NewMonoBuffer([]float64{2, -2, 0}, 8000)
	require.NoError(t, WriteFile(path, hot, 24))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, got.Samples[0][0], 1e-6)
	assert.InDelta(t, -1.0, got.Samples[0][1], 1e-6)

	err = WriteFile(filepath.Join(t.TempDir(), "bad.wav"), hot, 12)
	assert.ErrorIs(t, err, audio.ErrInvalidParameter)

	err = WriteFile(filepath.Join(t.TempDir(), "empty.wav"), audio.NewMonoBuffer(nil, 8000), 16)
	assert.ErrorIs(t, err, audio.ErrEmptyBuffer)
}

func TestReadInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.wav")
	require.NoError(t, os.WriteFile(path, []byte("not a wav file at all"), 0o644))

	_, err := ReadFile(path)
	assert.Error(t, err)
}
