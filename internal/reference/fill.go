package reference

import "math/rand/v2"

// NewRand returns a deterministic generator for seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// FillFormula returns the n x n operands A[i][j] = i+j and B[i][j] = i*j+1.
func FillFormula(n int) (a, b []float32) {
	a = make([]float32, n*n)
	b = make([]float32, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			a[i*n+j] = float32(i + j)
			b[i*n+j] = float32(i*j + 1)
		}
	}
	return a, b
}

// FillUniform fills v with values drawn uniformly from [low, high).
func FillUniform(v []float32, low, high float32, rng *rand.Rand) {
	for i := range v {
		v[i] = low + rng.Float32()*(high-low)
	}
}

// FillBins fills v with values drawn uniformly from [0, bins).
func FillBins(v []uint32, bins int, rng *rand.Rand) {
	for i := range v {
		v[i] = uint32(rng.IntN(bins))
	}
}
