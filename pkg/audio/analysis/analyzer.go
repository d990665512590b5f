package analysis

import (
	"fmt"
	"math"

	"github.com/RyanBlaney/latency-benchmark-common/logging"
	"github.com/RyanBlaney/mixdown/pkg/audio"
)

// NumBands is the number of analysis bands
const NumBands = 7

// Band is a named frequency range [Low, High) in Hz
type Band struct {
	Name string  `json:"name" yaml:"name"`
	Low  float64 `json:"low_hz" yaml:"low_hz"`
	High float64 `json:"high_hz" yaml:"high_hz"`
}

// Center returns the geometric centre frequency of the band
func (b Band) Center() float64 {
	return math.Sqrt(b.Low * b.High)
}

// Bands are the fixed analysis bands, ordered low to high
var Bands = [NumBands]Band{
	{Name: "sub-bass", Low: 20, High: 60},
	{Name: "bass", Low: 60, High: 250},
	{Name: "low-mid", Low: 250, High: 500},
	{Name: "mid", Low: 500, High: 2000},
	{Name: "high-mid", Low: 2000, High: 4000},
	{Name: "high", Low: 4000, High: 10000},
	{Name: "air", Low: 10000, High: 20000},
}

// BandIndex returns the index of a named band, or -1
func BandIndex(name string) int {
	for i, b := range Bands {
		if b.Name == name {
			return i
		}
	}
	return -1
}

// TimbreSize is the length of FrequencyProfile.Timbre
const TimbreSize = 6

// FrequencyProfile summarizes the spectral and level content of a buffer
type FrequencyProfile struct {
	SampleRate int `json:"sample_rate"`
	WindowSize int `json:"window_size"`
	Frames     int `json:"frames"`

	BandEnergies [NumBands]float64 `json:"band_energies"`
	BandRatios   [NumBands]float64 `json:"band_ratios"`
	TotalEnergy  float64           `json:"total_energy"`

	Spectral SpectralFeatures `json:"spectral"`

	// Timbre holds normalized centroid, rolloff, bandwidth, flatness, crest and slope
	Timbre [TimbreSize]float64 `json:"timbre"`

	FluxMean      float64 `json:"flux_mean"`
	FluxStd       float64 `json:"flux_std"`
	OnsetRate     float64 `json:"onset_rate"`
	RMSModulation float64 `json:"rms_modulation"`

	PeakDB        float64 `json:"peak_db"`
	RMSDB         float64 `json:"rms_db"`
	CrestFactorDB float64 `json:"crest_factor_db"`
	StereoWidth   float64 `json:"stereo_width"`
	Correlation   float64 `json:"correlation"`

	// FrameRMS is the time-domain RMS of each analysis frame
	FrameRMS []float64 `json:"-"`
}

// Nyquist returns half the sample rate
func (p *FrequencyProfile) Nyquist() float64 {
	return float64(p.SampleRate) / 2
}

// Centroid returns the spectral centroid in Hz
func (p *FrequencyProfile) Centroid() float64 {
	return p.Spectral.Centroid
}

// Config controls the analysis window
type Config struct {
	WindowSize int `mapstructure:"window_size" json:"window_size" yaml:"window_size"`
	HopSize    int `mapstructure:"hop_size" json:"hop_size" yaml:"hop_size"`
}

// DefaultConfig returns the default analysis settings
func DefaultConfig() *Config {
	return &Config{
		WindowSize: 2048,
		HopSize:    1024,
	}
}

// Analyzer computes frequency profiles
type Analyzer struct {
	config *Config
	window []float64
	logger logging.Logger
}

// NewAnalyzer creates a new analyzer
func NewAnalyzer(config *Config, logger logging.Logger) *Analyzer {
	if config == nil {
		config = DefaultConfig()
	}
	if config.WindowSize <= 0 {
		config.WindowSize = 2048
	}
	if config.HopSize <= 0 || config.HopSize > config.WindowSize {
		config.HopSize = config.WindowSize / 2
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	return &Analyzer{
		config: config,
		window: hannWindow(config.WindowSize),
		logger: logger.WithFields(logging.Fields{
			"component":   "frequency_analyzer",
			"window_size": config.WindowSize,
		}),
	}
}

// Analyze computes the frequency profile of a buffer. Input shorter than the
// analysis window is zero-padded.
func (a *Analyzer) Analyze(buf *audio.Buffer) (*FrequencyProfile, error) {
	if buf == nil || buf.Frames() == 0 {
		return nil, audio.NewInputError(audio.ErrCodeEmptyBuffer, "cannot analyze an empty buffer", audio.ErrEmptyBuffer)
	}
	if buf.SampleRate <= 0 {
		return nil, audio.NewInputError(audio.ErrCodeInvalidRate,
			fmt.Sprintf("cannot analyze buffer at %d Hz", buf.SampleRate), audio.ErrInvalidRate)
	}

	windowSize := a.config.WindowSize
	hopSize := a.config.HopSize

	mono := buf.Mono()
	if len(mono) < windowSize {
		padded := make([]float64, windowSize)
		copy(padded, mono)
		mono = padded
	}

	numFrames := 1 + (len(mono)-windowSize)/hopSize
	bins := windowSize/2 + 1
	freqs := frequencyBins(bins, buf.SampleRate)

	windowSum := 0.0
	for _, w := range a.window {
		windowSum += w
	}

	avgPower := make([]float64, bins)
	frameRMS := make([]float64, numFrames)
	flux := make([]float64, 0, numFrames)
	var prev []float64

	for f := range numFrames {
		frame := mono[f*hopSize : f*hopSize+windowSize]

		sumSq := 0.0
		for _, s := range frame {
			sumSq += s * s
		}
		frameRMS[f] = math.Sqrt(sumSq / float64(windowSize))

		mags := magnitudeSpectrum(frame, a.window)
		for k := range mags {
			mags[k] /= windowSum
			avgPower[k] += mags[k] * mags[k]
		}
		if prev != nil {
			flux = append(flux, positiveFlux(prev, mags))
		}
		prev = mags
	}

	avgMagnitude := make([]float64, bins)
	for k := range avgPower {
		avgPower[k] /= float64(numFrames)
		avgMagnitude[k] = math.Sqrt(avgPower[k])
	}

	profile := &FrequencyProfile{
		SampleRate: buf.SampleRate,
		WindowSize: windowSize,
		Frames:     numFrames,
		Spectral:   extractSpectralFeatures(avgMagnitude, freqs),
		FrameRMS:   frameRMS,
	}

	for k, power := range avgPower {
		for i, band := range Bands {
			if freqs[k] >= band.Low && freqs[k] < band.High {
				profile.BandEnergies[i] += power
				break
			}
		}
	}
	for _, e := range profile.BandEnergies {
		profile.TotalEnergy += e
	}
	if profile.TotalEnergy > 0 {
		for i, e := range profile.BandEnergies {
			profile.BandRatios[i] = e / profile.TotalEnergy
		}
	}

	profile.Timbre = timbreDescriptor(profile.Spectral, profile.Nyquist(), bins)
	profile.FluxMean, profile.FluxStd = meanStd(flux)
	profile.OnsetRate = onsetRate(flux, float64(hopSize)/float64(buf.SampleRate))
	rmsMean, rmsStd := meanStd(frameRMS)
	if rmsMean > audio.SilenceEpsilon {
		profile.RMSModulation = rmsStd / rmsMean
	}

	profile.PeakDB = audio.LinearToDB(audio.Peak(buf))
	profile.RMSDB = audio.LinearToDB(audio.RMS(buf))
	profile.CrestFactorDB = audio.CrestFactorDB(buf)
	profile.StereoWidth = audio.StereoWidth(buf)
	profile.Correlation = audio.Correlation(buf)

	a.logger.Debug("Computed frequency profile", logging.Fields{
		"frames":          numFrames,
		"sample_rate":     buf.SampleRate,
		"centroid_hz":     profile.Spectral.Centroid,
		"rms_db":          profile.RMSDB,
		"crest_factor_db": profile.CrestFactorDB,
	})

	return profile, nil
}

func timbreDescriptor(s SpectralFeatures, nyquist float64, bins int) [TimbreSize]float64 {
	var t [TimbreSize]float64
	if nyquist <= 0 {
		return t
	}
	t[0] = clamp01(s.Centroid / nyquist)
	t[1] = clamp01(s.Rolloff / nyquist)
	t[2] = clamp01(s.Bandwidth / nyquist)
	t[3] = clamp01(s.Flatness)
	t[4] = clamp01(s.Crest / math.Sqrt(float64(bins)))
	t[5] = 0.5 + 0.5*math.Tanh(s.Slope/4)
	return t
}

func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(variance / float64(len(values)))
}

// onsetRate counts local flux maxima above mean+std per second
func onsetRate(flux []float64, hopSeconds float64) float64 {
	if len(flux) < 3 || hopSeconds <= 0 {
		return 0
	}
	mean, std := meanStd(flux)
	threshold := mean + std

	onsets := 0
	for i := 1; i < len(flux)-1; i++ {
		if flux[i] > threshold && flux[i] > flux[i-1] && flux[i] >= flux[i+1] {
			onsets++
		}
	}
	return float64(onsets) / (float64(len(flux)) * hopSeconds)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
