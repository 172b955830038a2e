package bandit

import "math"

// sampleBeta draws from Beta(alpha, beta) as Ga/(Ga+Gb) with Ga ~
// Gamma(alpha), Gb ~ Gamma(beta). Sampling from the actual posterior rather
// than a point estimate is what keeps exploration alive: a point estimate
// would collapse every unexplored arm to the same mean and starve it.
// Callers must hold a.mu.
func (a *Allocator) sampleBeta(alpha, beta float64) float64 {
	x := a.sampleGamma(alpha)
	y := a.sampleGamma(beta)
	if x+y == 0 {
		return 0.5
	}
	return x / (x + y)
}

// sampleGamma draws from Gamma(shape, 1) using the Marsaglia-Tsang
// squeeze method. Shapes below one use the standard boost
// Gamma(a) = Gamma(a+1) * U^(1/a).
func (a *Allocator) sampleGamma(shape float64) float64 {
	if shape < 1 {
		u := a.rng.Float64()
		return a.sampleGamma(shape+1) * math.Pow(u, 1/shape)
	}

	d := shape - 1.0/3.0
	c := 1.0 / math.Sqrt(9.0*d)
	for {
		var x, v float64
		for {
			x = a.rng.NormFloat64()
			v = 1.0 + c*x
			if v > 0 {
				break
			}
		}
		v = v * v * v
		u := a.rng.Float64()
		if u < 1.0-0.0331*x*x*x*x {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1.0-v+math.Log(v)) {
			return d * v
		}
	}
}
