// Package reference holds host implementations the device results are checked
// against, plus the operand generators.
package reference

import (
	"gonum.org/v1/gonum/mat"
)

// MatMulNaive is the triple-loop product of two row-major n x n matrices.
// Products are rounded to float32 before accumulation, matching the device
// kernels, so results agree bit for bit with them.
func MatMulNaive(a, b []float32, n int) []float32 {
	c := make([]float32, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			var sum float32
			for k := 0; k < n; k++ {
				sum += float32(a[i*n+k] * b[k*n+j])
			}
			c[i*n+j] = sum
		}
	}
	return c
}

// MatMulTransposed transposes b first so the inner loop walks both operands
// contiguously.
func MatMulTransposed(a, b []float32, n int) []float32 {
	bt := make([]float32, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			bt[j*n+i] = b[i*n+j]
		}
	}
	c := make([]float32, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			var sum float32
			ai, bj := a[i*n:(i+1)*n], bt[j*n:(j+1)*n]
			for k := range ai {
				sum += float32(ai[k] * bj[k])
			}
			c[i*n+j] = sum
		}
	}
	return c
}

// MatMulTiled is a cache-blocked host product. k blocks are visited in order,
// so every element sums its terms in the same order as MatMulNaive.
func MatMulTiled(a, b []float32, n, tile int) []float32 {
	if tile <= 0 {
		tile = n
	}
	c := make([]float32, n*n)
	for ii := 0; ii < n; ii += tile {
		iEnd := min(ii+tile, n)
		for jj := 0; jj < n; jj += tile {
			jEnd := min(jj+tile, n)
			for kk := 0; kk < n; kk += tile {
				kEnd := min(kk+tile, n)
				for i := ii; i < iEnd; i++ {
					for j := jj; j < jEnd; j++ {
						sum := c[i*n+j]
						for k := kk; k < kEnd; k++ {
							sum += float32(a[i*n+k] * b[k*n+j])
						}
						c[i*n+j] = sum
					}
				}
			}
		}
	}
	return c
}

// MatMulGonum computes the product in float64 with gonum. It is the independent
// reference for tolerance checks.
func MatMulGonum(a, b []float32, n int) []float64 {
	ma := mat.NewDense(n, n, widen(a))
	mb := mat.NewDense(n, n, widen(b))
	var mc mat.Dense
	mc.Mul(ma, mb)
	return mc.RawMatrix().Data
}

func widen(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
