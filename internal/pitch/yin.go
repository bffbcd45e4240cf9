package pitch

// yinThreshold is the absolute threshold on the cumulative mean normalized
// difference below which a lag counts as a period candidate.
const yinThreshold = 0.1

// detectYIN estimates pitch with the YIN difference function: cumulative
// mean normalization, absolute threshold, and parabolic sub-sample
// interpolation of the chosen lag.
func detectYIN(samples []float32, sampleRate uint32, cfg Config) rawEstimate {
	w := len(samples) / 2
	minLag, maxLag := lagRange(len(samples), sampleRate, cfg)
	if maxLag > w {
		maxLag = w
	}
	if maxLag <= minLag {
		return rawEstimate{}
	}

	// Difference function over the first half window.
	diff := make([]float64, maxLag+1)
	for lag := 1; lag <= maxLag; lag++ {
		var sum float64
		for i := 0; i < w; i++ {
			d := float64(samples[i]) - float64(samples[i+lag])
			sum += d * d
		}
		diff[lag] = sum
	}

	// Cumulative mean normalized difference.
	cmndf := make([]float64, maxLag+1)
	cmndf[0] = 1
	var running float64
	for lag := 1; lag <= maxLag; lag++ {
		running += diff[lag]
		if running == 0 {
			cmndf[lag] = 1
		} else {
			cmndf[lag] = diff[lag] * float64(lag) / running
		}
	}

	// First lag under the absolute threshold, descended to its local
	// minimum; fall back to the global minimum when nothing qualifies.
	tau := 0
	for lag := minLag; lag <= maxLag; lag++ {
		if cmndf[lag] < yinThreshold {
			for lag+1 <= maxLag && cmndf[lag+1] < cmndf[lag] {
				lag++
			}
			tau = lag
			break
		}
	}
	if tau == 0 {
		best := minLag
		for lag := minLag + 1; lag <= maxLag; lag++ {
			if cmndf[lag] < cmndf[best] {
				best = lag
			}
		}
		tau = best
	}

	// Parabolic interpolation around tau for sub-sample precision.
	refined := float64(tau)
	if tau > minLag && tau < maxLag {
		left := cmndf[tau-1]
		mid := cmndf[tau]
		right := cmndf[tau+1]
		denom := left - 2*mid + right
		if denom != 0 {
			refined += (left - right) / (2 * denom)
		}
	}
	if refined <= 0 {
		return rawEstimate{}
	}

	strength := 1 - cmndf[tau]
	if strength < 0 {
		strength = 0
	}
	if strength > 1 {
		strength = 1
	}

	return rawEstimate{
		frequency:   float64(sampleRate) / refined,
		periodicity: float32(strength),
		clarity:     float32(strength),
	}
}
