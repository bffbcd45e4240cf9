package pitch

import (
	"math"
)

// rawEstimate is the variant-independent output of a detector pass.
type rawEstimate struct {
	frequency   float64 // Hz, <= 0 when no periodicity was found
	periodicity float32 // normalized periodicity strength in [0,1]
	clarity     float32 // peak prominence (A) or 1-CMNDF (B)
}

// octaveTolerance accepts a shorter lag whose correlation is within this
// fraction of the global peak. Guards against octave-down errors: the lag
// at twice the true period correlates almost as strongly as the period
// itself.
const octaveTolerance = 0.95

// lagRange converts the configured frequency search range into a lag
// range, bounded by the window so both lags are usable.
func lagRange(n int, sampleRate uint32, cfg Config) (minLag, maxLag int) {
	minLag = int(float64(sampleRate) / cfg.MaxFrequency)
	if minLag < 2 {
		minLag = 2
	}
	maxLag = int(float64(sampleRate) / cfg.MinFrequency)
	if limit := n / 2; maxLag > limit {
		maxLag = limit
	}
	return minLag, maxLag
}

// detectAutocorrelation estimates pitch with a normalized time-domain
// autocorrelation and integer-lag peak picking.
func detectAutocorrelation(samples []float32, sampleRate uint32, cfg Config) rawEstimate {
	n := len(samples)
	minLag, maxLag := lagRange(n, sampleRate, cfg)
	if maxLag <= minLag {
		return rawEstimate{}
	}

	corr := make([]float64, maxLag+1)
	globalMax := 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		var sum, energyA, energyB float64
		for i := 0; i < n-lag; i++ {
			a := float64(samples[i])
			b := float64(samples[i+lag])
			sum += a * b
			energyA += a * a
			energyB += b * b
		}
		norm := math.Sqrt(energyA * energyB)
		if norm == 0 {
			continue
		}
		corr[lag] = sum / norm
		if corr[lag] > globalMax {
			globalMax = corr[lag]
		}
	}

	if globalMax <= 0 {
		return rawEstimate{}
	}

	// Smallest lag that is a local maximum within tolerance of the global
	// peak wins, so the fundamental beats its subharmonics.
	bestLag := 0
	floor := globalMax * octaveTolerance
	for lag := minLag; lag <= maxLag; lag++ {
		if corr[lag] < floor {
			continue
		}
		if lag > minLag && corr[lag] < corr[lag-1] {
			continue
		}
		if lag < maxLag && corr[lag] < corr[lag+1] {
			continue
		}
		bestLag = lag
		break
	}
	if bestLag == 0 {
		return rawEstimate{}
	}

	strength := float32(corr[bestLag])
	if strength > 1 {
		strength = 1
	}
	return rawEstimate{
		frequency:   float64(sampleRate) / float64(bestLag),
		periodicity: strength,
		clarity:     strength,
	}
}
