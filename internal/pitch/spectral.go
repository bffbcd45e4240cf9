package pitch

import (
	"math"
	"math/cmplx"
	"sort"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// harmonicCount is the number of harmonics (fundamental included) summed
// for harmonic-content scoring.
const harmonicCount = 5

// spectral computes Hann-windowed magnitude spectra. FFT plans are cached
// per window size; not safe for concurrent use, which matches Detect being
// driven by the single coordinator goroutine.
type spectral struct {
	plans   map[int]*fourier.FFT
	scratch []float64
}

func newSpectral() *spectral {
	return &spectral{plans: make(map[int]*fourier.FFT)}
}

// magnitudes returns the magnitude spectrum of samples after a Hann
// window. The returned slice is reused by the next call.
func (s *spectral) magnitudes(samples []float32) []float64 {
	n := len(samples)
	if n == 0 {
		return nil
	}

	if cap(s.scratch) < n {
		s.scratch = make([]float64, n)
	}
	seq := s.scratch[:n]
	for i, v := range samples {
		seq[i] = float64(v)
	}
	window.Hann(seq)

	plan, ok := s.plans[n]
	if !ok {
		plan = fourier.NewFFT(n)
		s.plans[n] = plan
	}

	coeffs := plan.Coefficients(nil, seq)
	mags := make([]float64, len(coeffs))
	for i, c := range coeffs {
		mags[i] = cmplx.Abs(c)
	}
	return mags
}

// harmonicContent scores how much spectral energy sits at the first
// harmonics of freq, normalized by total energy. Returns a value in [0,1].
func harmonicContent(mags []float64, sampleRate uint32, frames int, freq float64) float32 {
	if freq <= 0 || len(mags) == 0 {
		return 0
	}

	binWidth := float64(sampleRate) / float64(frames)
	var total float64
	for _, m := range mags {
		total += m * m
	}
	if total == 0 {
		return 0
	}

	var harmonic float64
	for k := 1; k <= harmonicCount; k++ {
		center := freq * float64(k) / binWidth
		bin := int(math.Round(center))
		if bin >= len(mags) {
			break
		}
		for b := bin - 1; b <= bin+1; b++ {
			if b >= 0 && b < len(mags) {
				harmonic += mags[b] * mags[b]
			}
		}
	}

	ratio := harmonic / total
	if ratio > 1 {
		ratio = 1
	}
	return float32(ratio)
}

// estimateSNR returns a rough signal-to-noise estimate in dB: the spectral
// peak against the median bin, which tracks the noise floor for tonal
// signals.
func estimateSNR(mags []float64) float64 {
	if len(mags) < 4 {
		return 0
	}

	peak := 0.0
	sorted := make([]float64, len(mags))
	copy(sorted, mags)
	sort.Float64s(sorted)
	median := sorted[len(sorted)/2]
	for _, m := range mags {
		if m > peak {
			peak = m
		}
	}

	if median <= 0 || peak <= 0 {
		if peak > 0 {
			return 120 // silence floor, effectively noiseless
		}
		return 0
	}
	return 20 * math.Log10(peak/median)
}
