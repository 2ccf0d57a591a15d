package verify

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareAbs(t *testing.T) {
	r, err := CompareAbs([]float32{1, 2, 3}, []float32{1, 2.00005, 3}, DefaultTolerance)
	require.NoError(t, err)
	assert.True(t, r.Passed())
	assert.Equal(t, "PASSED", r.Status())
	assert.Equal(t, 3, r.Checked)
	assert.InDelta(t, 5e-5, r.MaxAbsDiff, 1e-6)

	r, err = CompareAbs([]float32{1, 2, 3, 4}, []float32{1, 2.5, 3, 5}, DefaultTolerance)
	require.NoError(t, err)
	assert.False(t, r.Passed())
	assert.Equal(t, "FAILED", r.Status())
	assert.Equal(t, 2, r.Mismatches)
	require.NotNil(t, r.First)
	assert.Equal(t, 1, r.First.Index)
	assert.Equal(t, 1.0, r.MaxAbsDiff)
	assert.Contains(t, r.First.String(), "index 1")

	_, err = CompareAbs([]float32{1}, []float32{1, 2}, DefaultTolerance)
	assert.Error(t, err)
}

func TestCompareAbsNaN(t *testing.T) {
	nan := float32(math.NaN())
	r, err := CompareAbs([]float32{nan}, []float32{1}, DefaultTolerance)
	require.NoError(t, err)
	assert.False(t, r.Passed())
}

func TestCompareApprox(t *testing.T) {
	got := []float32{1e6, 0.5, 0}
	want := []float64{1e6 + 10, 0.50001, 1e-7}
	r, err := CompareApprox(got, want, DefaultTolerance, 1e-4)
	require.NoError(t, err)
	assert.True(t, r.Passed(), "large values pass on relative tolerance")

	r, err = CompareApprox([]float32{1e6}, []float64{1e6 + 1000}, DefaultTolerance, 1e-6)
	require.NoError(t, err)
	assert.False(t, r.Passed())
}

func TestCompareUint32(t *testing.T) {
	r, err := CompareUint32([]uint32{1, 2, 3}, []uint32{1, 2, 3})
	require.NoError(t, err)
	assert.True(t, r.Passed())

	r, err = CompareUint32([]uint32{1, 2, 3}, []uint32{1, 0, 3})
	require.NoError(t, err)
	assert.Equal(t, 1, r.Mismatches)
	assert.Equal(t, 1, r.First.Index)
}

func naive(a, b []float32, n int) []float32 {
	c := make([]float32, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			var sum float32
			for k := 0; k < n; k++ {
				sum += a[i*n+k] * b[k*n+j]
			}
			c[i*n+j] = sum
		}
	}
	return c
}

func TestFreivalds(t *testing.T) {
	const n = 32
	rng := rand.New(rand.NewPCG(1, 2))
	a := make([]float32, n*n)
	b := make([]float32, n*n)
	for i := range a {
		a[i] = rng.Float32() * 10
		b[i] = rng.Float32() * 10
	}
	c := naive(a, b, n)

	assert.True(t, Freivalds(a, b, c, n, 10, 1e-4, rng))

	bad := append([]float32(nil), c...)
	bad[5*n+7] += 1000
	assert.False(t, Freivalds(a, b, bad, n, 20, 1e-4, rng))

	assert.False(t, Freivalds(a, b, c[:10], n, 1, 1e-4, rng))
	assert.False(t, Freivalds(nil, nil, nil, 0, 1, 1e-4, rng))
}

func TestDigest(t *testing.T) {
	x := []float32{1, 2, 3}
	assert.Equal(t, Digest(x), Digest([]float32{1, 2, 3}))
	assert.NotEqual(t, Digest(x), Digest([]float32{1, 2, 3.0000002}))
	assert.Len(t, Digest(x), 2+64)

	// +0 and -0 compare equal but are different results.
	assert.NotEqual(t, Digest([]float32{0}), Digest([]float32{float32(math.Copysign(0, -1))}))

	assert.Equal(t, DigestUint32([]uint32{7}), DigestUint32([]uint32{7}))
	assert.NotEqual(t, DigestUint32([]uint32{7}), DigestUint32([]uint32{8}))
}

func TestSamples(t *testing.T) {
	c := make([]float32, 16)
	for i := range c {
		c[i] = float32(i)
	}
	s := Samples(c, 4, 3)
	require.Len(t, s, 3)
	assert.Equal(t, Sample{Row: 0, Col: 0, Value: 0}, s[0])
	assert.Equal(t, Sample{Row: 2, Col: 2, Value: 10}, s[1])
	assert.Equal(t, Sample{Row: 3, Col: 3, Value: 15}, s[2])
	assert.Len(t, Samples(c, 4, 10), 5)
	assert.Nil(t, Samples(c, 5, 1))
}
