// Package verify compares device results with host references.
package verify

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats/scalar"
)

// DefaultTolerance is the absolute per-element tolerance for single-precision
// results.
const DefaultTolerance = 1e-4

// DefaultRelTolerance is the relative tolerance against double-precision
// references.
const DefaultRelTolerance = 1e-4

// Mismatch is the first element outside tolerance.
type Mismatch struct {
	Index int
	Got   float64
	Want  float64
}

func (m Mismatch) String() string {
	return fmt.Sprintf("index %d: got %g, want %g (diff %g)", m.Index, m.Got, m.Want, math.Abs(m.Got-m.Want))
}

// Result summarizes an element-wise comparison.
type Result struct {
	Checked    int
	Mismatches int
	MaxAbsDiff float64
	First      *Mismatch
}

func (r Result) Passed() bool {
	return r.Mismatches == 0
}

// Status renders the result as the PASSED/FAILED word of the report.
func (r Result) Status() string {
	if r.Passed() {
		return "PASSED"
	}
	return "FAILED"
}

func (r *Result) observe(i int, got, want float64, ok bool) {
	r.Checked++
	if d := math.Abs(got - want); d > r.MaxAbsDiff || math.IsNaN(d) {
		r.MaxAbsDiff = d
	}
	if ok {
		return
	}
	r.Mismatches++
	if r.First == nil {
		r.First = &Mismatch{Index: i, Got: got, Want: want}
	}
}

func checkLen(got, want int) error {
	if got != want {
		return fmt.Errorf("length mismatch: got %d elements, want %d", got, want)
	}
	return nil
}

// CompareAbs checks |got[i] - want[i]| <= tol for every element.
func CompareAbs(got, want []float32, tol float64) (Result, error) {
	var r Result
	if err := checkLen(len(got), len(want)); err != nil {
		return r, err
	}
	for i := range got {
		g, w := float64(got[i]), float64(want[i])
		r.observe(i, g, w, math.Abs(g-w) <= tol)
	}
	return r, nil
}

// CompareApprox checks got against a double-precision reference, accepting an
// element when it is within absTol or within relTol relative to its magnitude.
func CompareApprox(got []float32, want []float64, absTol, relTol float64) (Result, error) {
	var r Result
	if err := checkLen(len(got), len(want)); err != nil {
		return r, err
	}
	for i := range got {
		g := float64(got[i])
		r.observe(i, g, want[i], scalar.EqualWithinAbsOrRel(g, want[i], absTol, relTol))
	}
	return r, nil
}

// CompareUint32 requires exact equality.
func CompareUint32(got, want []uint32) (Result, error) {
	var r Result
	if err := checkLen(len(got), len(want)); err != nil {
		return r, err
	}
	for i := range got {
		r.observe(i, float64(got[i]), float64(want[i]), got[i] == want[i])
	}
	return r, nil
}
