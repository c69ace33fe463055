package analysis

import (
	"math"
	"testing"
)

func TestFFTConstantSignal(t *testing.T) {
	data := []float64{1, 1, 1, 1}
	fft := FFT(data)
	if got := real(fft[0]); math.Abs(got-4.0) > 1e-12 {
		t.Errorf("expected DC component 4, got %g", got)
	}
	for k := 1; k < len(fft); k++ {
		if mag := math.Hypot(real(fft[k]), imag(fft[k])); mag > 1e-12 {
			t.Errorf("expected zero bin %d, got magnitude %g", k, mag)
		}
	}
}

func TestPowerSpectrumPeakAtSignalFrequency(t *testing.T) {
	const (
		n  = 256
		dt = 1.0 / 256
		f  = 16.0
	)
	data := make([]float64, n)
	for i := range data {
		data[i] = math.Sin(2 * math.Pi * f * dt * float64(i))
	}

	ps := PowerSpectrum(data)
	peak, peakMag := 0, 0.0
	for i := 1; i < len(ps); i++ {
		if ps[i] > peakMag {
			peak, peakMag = i, ps[i]
		}
	}
	if peak != int(f) {
		t.Errorf("expected peak at bin %d, got %d", int(f), peak)
	}
}

func TestPowerSpectrumPadsOddLengths(t *testing.T) {
	data := make([]float64, 100)
	ps := PowerSpectrum(data)
	if len(ps) != 64 {
		t.Errorf("expected 64 bins after padding to 128, got %d", len(ps))
	}
}

func TestDominantFrequency(t *testing.T) {
	const (
		n  = 512
		dt = 0.01
		f  = 5.0
	)
	data := make([]float64, n)
	for i := range data {
		data[i] = math.Sin(2 * math.Pi * f * dt * float64(i))
	}

	got := DominantFrequency(data, dt)
	if math.Abs(got-f) > 0.5 {
		t.Errorf("expected dominant frequency near %g Hz, got %g", f, got)
	}
}

func TestDominantFrequencyDegenerate(t *testing.T) {
	if got := DominantFrequency(nil, 0.01); got != 0 {
		t.Errorf("expected 0 for empty series, got %g", got)
	}
	if got := DominantFrequency([]float64{1, 2}, 0); got != 0 {
		t.Errorf("expected 0 for zero dt, got %g", got)
	}
}
