package verify

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
)

// Digest hashes the exact bit patterns of v. Two runs that produce identical
// results produce identical digests.
func Digest(v []float32) string {
	h := sha256.New()
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	h.Write(buf)
	return fmt.Sprintf("0x%x", h.Sum(nil))
}

// DigestUint32 is Digest for integer results.
func DigestUint32(v []uint32) string {
	h := sha256.New()
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], x)
	}
	h.Write(buf)
	return fmt.Sprintf("0x%x", h.Sum(nil))
}

// Sample is one element of a square result matrix.
type Sample struct {
	Row, Col int
	Value    float32
}

// Samples picks up to count elements of an n x n matrix at fixed positions:
// first, middle, last, quarter and three-quarter.
func Samples(c []float32, n, count int) []Sample {
	if n <= 0 || len(c) < n*n {
		return nil
	}
	positions := [][2]int{
		{0, 0},
		{n / 2, n / 2},
		{n - 1, n - 1},
		{n / 4, n / 4},
		{3 * n / 4, 3 * n / 4},
	}
	samples := make([]Sample, 0, count)
	for i := 0; i < count && i < len(positions); i++ {
		row, col := positions[i][0], positions[i][1]
		samples = append(samples, Sample{Row: row, Col: col, Value: c[row*n+col]})
	}
	return samples
}
