package reference

// VectorAdd returns a + b element-wise.
func VectorAdd(a, b []float32) []float32 {
	c := make([]float32, len(a))
	for i := range a {
		c[i] = a[i] + b[i]
	}
	return c
}

// Histogram counts the values of data below bins. Larger values are ignored.
func Histogram(data []uint32, bins int) []uint32 {
	hist := make([]uint32, bins)
	for _, v := range data {
		if v < uint32(bins) {
			hist[v]++
		}
	}
	return hist
}
