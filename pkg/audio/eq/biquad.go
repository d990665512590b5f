package eq

import "math"

// FilterType names an RBJ cookbook response
type FilterType string

const (
	Peaking   FilterType = "peaking"
	LowShelf  FilterType = "low_shelf"
	HighShelf FilterType = "high_shelf"
	HighPass  FilterType = "high_pass"
	LowPass   FilterType = "low_pass"
)

// Coefficients are normalized biquad coefficients (a0 = 1)
type Coefficients struct {
	B0, B1, B2 float64
	A1, A2     float64
}

// Biquad is a second-order IIR filter in Direct Form I
type Biquad struct {
	c      Coefficients
	x1, x2 float64
	y1, y2 float64
}

// NewBiquad creates a filter with the given coefficients
func NewBiquad(c Coefficients) *Biquad {
	return &Biquad{c: c}
}

// Process filters one sample
func (b *Biquad) Process(input float64) float64 {
	output := b.c.B0*input + b.c.B1*b.x1 + b.c.B2*b.x2 - b.c.A1*b.y1 - b.c.A2*b.y2

	b.x2 = b.x1
	b.x1 = input
	b.y2 = b.y1
	b.y1 = output

	return output
}

// Reset clears the filter state
func (b *Biquad) Reset() {
	b.x1, b.x2 = 0, 0
	b.y1, b.y2 = 0, 0
}

// Design returns RBJ cookbook coefficients. gainDB is ignored for pass filters.
func Design(filterType FilterType, freq, gainDB, q float64, sampleRate int) Coefficients {
	w0 := 2 * math.Pi * freq / float64(sampleRate)
	cosw0 := math.Cos(w0)
	sinw0 := math.Sin(w0)
	alpha := sinw0 / (2 * q)
	A := math.Pow(10, gainDB/40)

	var b0, b1, b2, a0, a1, a2 float64

	switch filterType {
	case LowShelf:
		sqrtA := 2 * math.Sqrt(A) * alpha
		b0 = A * ((A + 1) - (A-1)*cosw0 + sqrtA)
		b1 = 2 * A * ((A - 1) - (A+1)*cosw0)
		b2 = A * ((A + 1) - (A-1)*cosw0 - sqrtA)
		a0 = (A + 1) + (A-1)*cosw0 + sqrtA
		a1 = -2 * ((A - 1) + (A+1)*cosw0)
		a2 = (A + 1) + (A-1)*cosw0 - sqrtA
	case HighShelf:
		sqrtA := 2 * math.Sqrt(A) * alpha
		b0 = A * ((A + 1) + (A-1)*cosw0 + sqrtA)
		b1 = -2 * A * ((A - 1) + (A+1)*cosw0)
		b2 = A * ((A + 1) + (A-1)*cosw0 - sqrtA)
		a0 = (A + 1) - (A-1)*cosw0 + sqrtA
		a1 = 2 * ((A - 1) - (A+1)*cosw0)
		a2 = (A + 1) - (A-1)*cosw0 - sqrtA
	case HighPass:
		b0 = (1 + cosw0) / 2
		b1 = -(1 + cosw0)
		b2 = (1 + cosw0) / 2
		a0 = 1 + alpha
		a1 = -2 * cosw0
		a2 = 1 - alpha
	case LowPass:
		b0 = (1 - cosw0) / 2
		b1 = 1 - cosw0
		b2 = (1 - cosw0) / 2
		a0 = 1 + alpha
		a1 = -2 * cosw0
		a2 = 1 - alpha
	default:
		b0 = 1 + alpha*A
		b1 = -2 * cosw0
		b2 = 1 - alpha*A
		a0 = 1 + alpha/A
		a1 = -2 * cosw0
		a2 = 1 - alpha/A
	}

	return Coefficients{
		B0: b0 / a0,
		B1: b1 / a0,
		B2: b2 / a0,
		A1: a1 / a0,
		A2: a2 / a0,
	}
}

// FiltFilt runs the filter forward then backward so the result has no phase
// shift. The signal is extended by odd reflection at both ends to settle the
// filter state before the real samples.
func FiltFilt(c Coefficients, x []float64) []float64 {
	n := len(x)
	if n == 0 {
		return nil
	}
	pad := min(n-1, 256)

	ext := make([]float64, n+2*pad)
	for i := range pad {
		ext[i] = 2*x[0] - x[pad-i]
		ext[n+pad+i] = 2*x[n-1] - x[n-2-i]
	}
	copy(ext[pad:], x)

	f := NewBiquad(c)
	for i := range ext {
		ext[i] = f.Process(ext[i])
	}

	f.Reset()
	for i := len(ext) - 1; i >= 0; i-- {
		ext[i] = f.Process(ext[i])
	}

	out := make([]float64, n)
	copy(out, ext[pad:pad+n])
	return out
}

// MagnitudeAt returns |H(e^jw)| of the filter at freq
func MagnitudeAt(c Coefficients, freq float64, sampleRate int) float64 {
	w := 2 * math.Pi * freq / float64(sampleRate)
	z1 := complex(math.Cos(w), -math.Sin(w))
	z2 := z1 * z1
	num := complex(c.B0, 0) + complex(c.B1, 0)*z1 + complex(c.B2, 0)*z2
	den := complex(1, 0) + complex(c.A1, 0)*z1 + complex(c.A2, 0)*z2
	return cmplxAbs(num) / cmplxAbs(den)
}

func cmplxAbs(z complex128) float64 {
	return math.Hypot(real(z), imag(z))
}
