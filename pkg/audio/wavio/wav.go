package wavio

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/RyanBlaney/mixdown/pkg/audio"
)

// PCM audio format tag
const formatPCM = 1

// DefaultBitDepth is used when writing without an explicit depth
const DefaultBitDepth = 16

// Decode reads an integer PCM WAV stream into a planar buffer
func Decode(r io.ReadSeeker) (*audio.Buffer, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, audio.NewInputError(audio.ErrCodeEmptyBuffer, "invalid WAV file", errors.New("invalid WAV header"))
	}

	pcm, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to read PCM buffer: %w", err)
	}
	if pcm == nil || pcm.Format == nil || pcm.Format.NumChannels < 1 {
		return nil, audio.NewInputError(audio.ErrCodeInvalidChannels, "WAV file has no channels", audio.ErrInvalidChannels)
	}

	bitDepth := pcm.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = int(decoder.BitDepth)
	}
	if bitDepth <= 0 {
		bitDepth = DefaultBitDepth
	}
	scale := 1.0 / math.Pow(2, float64(bitDepth-1))

	channels := pcm.Format.NumChannels
	frames := len(pcm.Data) / channels
	buf := audio.NewBuffer(channels, frames, pcm.Format.SampleRate)
	for i := range frames {
		for ch := range channels {
			buf.Samples[ch][i] = float64(pcm.Data[i*channels+ch]) * scale
		}
	}
	return buf, nil
}

// ReadFile decodes the WAV file at path
func ReadFile(path string) (*audio.Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open file: %w", err)
	}
	defer f.Close()

	buf, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return buf, nil
}

// Encode writes the buffer as integer PCM. The header always carries the
// buffer's own channel count and sample rate.
func Encode(w io.WriteSeeker, buf *audio.Buffer, bitDepth int) error {
	if err := audio.Validate(buf); err != nil {
		return fmt.Errorf("failed to validate buffer for export: %w", err)
	}
	if bitDepth != 16 && bitDepth != 24 && bitDepth != 32 {
		return audio.NewInputError(audio.ErrCodeInvalidParameter,
			fmt.Sprintf("unsupported bit depth %d", bitDepth), audio.ErrInvalidParameter)
	}

	channels := buf.Channels()
	frames := buf.Frames()
	maxValue := math.Pow(2, float64(bitDepth-1)) - 1

	data := make([]int, frames*channels)
	for i := range frames {
		for ch := range channels {
			s := math.Max(-1, math.Min(1, buf.Samples[ch][i]))
			data[i*channels+ch] = int(math.Round(s * maxValue))
		}
	}

	pcm := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: channels,
			SampleRate:  buf.SampleRate,
		},
		Data:           data,
		SourceBitDepth: bitDepth,
	}

	encoder := wav.NewEncoder(w, buf.SampleRate, bitDepth, channels, formatPCM)
	if err := encoder.Write(pcm); err != nil {
		return fmt.Errorf("data writing error: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("failed to finalize WAV header: %w", err)
	}
	return nil
}

// WriteFile encodes the buffer to path, creating parent directories
func WriteFile(path string, buf *audio.Buffer, bitDepth int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("output file creation error: %w", err)
	}
	defer f.Close()

	return Encode(f, buf, bitDepth)
}
