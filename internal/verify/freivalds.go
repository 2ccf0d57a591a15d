package verify

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// Freivalds probabilistically checks C = A*B for row-major n x n matrices in
// O(iterations * n^2). Each iteration multiplies by a random 0/1 vector r and
// compares A(Br) with Cr; a wrong product survives one iteration with
// probability at most 1/2. tol is relative to the magnitude of Cr.
func Freivalds(a, b, c []float32, n, iterations int, tol float64, rng *rand.Rand) bool {
	if n <= 0 || len(a) != n*n || len(b) != n*n || len(c) != n*n {
		return false
	}
	ma := mat.NewDense(n, n, widen(a))
	mb := mat.NewDense(n, n, widen(b))
	mc := mat.NewDense(n, n, widen(c))

	r := mat.NewVecDense(n, nil)
	var br, abr, cr mat.VecDense
	for it := 0; it < iterations; it++ {
		for j := 0; j < n; j++ {
			r.SetVec(j, float64(rng.IntN(2)))
		}
		br.MulVec(mb, r)
		abr.MulVec(ma, &br)
		cr.MulVec(mc, r)
		for i := 0; i < n; i++ {
			want, got := abr.AtVec(i), cr.AtVec(i)
			if math.Abs(got-want) > tol*math.Max(1, math.Abs(want)) {
				return false
			}
		}
	}
	return true
}

func widen(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
