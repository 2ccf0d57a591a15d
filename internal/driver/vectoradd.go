package driver

import (
	"fmt"
	"time"

	"github.com/fxnlabs/gpu-examples/internal/compute"
	"github.com/fxnlabs/gpu-examples/internal/gpu"
	"github.com/fxnlabs/gpu-examples/internal/grid"
	"github.com/fxnlabs/gpu-examples/internal/kernels"
	"github.com/fxnlabs/gpu-examples/internal/metrics"
	"github.com/fxnlabs/gpu-examples/internal/reference"
	"github.com/fxnlabs/gpu-examples/internal/verify"
	"go.uber.org/zap"
)

// vectorLocalSize is the preferred work-group size for 1D workloads.
const vectorLocalSize = 256

// AddVectors computes a + b on the device.
func (d *Driver) AddVectors(src compute.Source, a, b []float32) ([]float32, Timing, error) {
	n := len(a)
	if len(b) != n {
		return nil, Timing{}, fmt.Errorf("vector lengths differ: %d and %d", len(a), len(b))
	}
	plan, err := grid.Plan1D(n, min(vectorLocalSize, d.device.MaxWorkGroupSize()), grid.ModeBoundary)
	if err != nil {
		return nil, Timing{}, err
	}
	k, err := d.kernel(src, kernels.VectorAdd)
	if err != nil {
		return nil, Timing{}, err
	}

	bufs := d.scope()
	defer bufs.release()

	start := time.Now()
	bufA, err := upload(bufs, a)
	if err != nil {
		return nil, Timing{}, err
	}
	bufB, err := upload(bufs, b)
	if err != nil {
		return nil, Timing{}, err
	}
	bufC, err := bufs.output(compute.MemWriteOnly, compute.Float32, n)
	if err != nil {
		return nil, Timing{}, err
	}
	if err := k.SetArgs(bufA, bufB, bufC, n); err != nil {
		return nil, Timing{}, err
	}
	timing, _, err := d.launch(k, compute.Range1D(plan.Global[0]), compute.Range1D(plan.Local[0]))
	if err != nil {
		return nil, Timing{}, err
	}
	c := make([]float32, n)
	if err := download(d, bufC, c); err != nil {
		return nil, Timing{}, err
	}
	// Wall time covers staging and read-back, as a host program observes it.
	timing.Wall = time.Since(start)
	return c, timing, nil
}

// VectorAddOptions configures the vectoradd workload.
type VectorAddOptions struct {
	Source    compute.Source
	N         int
	Tolerance float64
	// Compare, when set, runs the same kernel on a second device, typically the
	// host CPU, and compares both results.
	Compare   *Driver
}

// VectorAddReport is what the vectoradd workload prints.
type VectorAddReport struct {
	Device        string
	DeviceType    gpu.DeviceType
	CompareDevice string
	N             int
	Timing        Timing
	CompareTiming Timing
	CPUTime       time.Duration
	Check         verify.Result
	CompareCheck  *verify.Result
	A, B, C       []float32
}

// VectorAdd adds A[i] = i and B[i] = 2i on the device and checks the sum.
func (d *Driver) VectorAdd(opts VectorAddOptions) (*VectorAddReport, error) {
	n := opts.N
	if n <= 0 {
		return nil, fmt.Errorf("%w: got %d", grid.ErrInvalidSize, n)
	}
	tol := opts.Tolerance
	if tol <= 0 {
		tol = verify.DefaultTolerance
	}

	a, b := make([]float32, n), make([]float32, n)
	for i := range a {
		a[i] = float32(i)
		b[i] = float32(i * 2)
	}

	c, timing, err := d.AddVectors(opts.Source, a, b)
	if err != nil {
		return nil, err
	}
	report := &VectorAddReport{Device: d.device.Name(), DeviceType: d.device.Type(), N: n, Timing: timing, A: a, B: b, C: c}
	metrics.WallDuration.WithLabelValues("vectoradd").Observe(milliseconds(timing.Wall))
	metrics.ProblemSize.WithLabelValues("vectoradd").Set(float64(n))

	start := time.Now()
	want := reference.VectorAdd(a, b)
	report.CPUTime = time.Since(start)
	if report.Check, err = verify.CompareAbs(c, want, tol); err != nil {
		return nil, err
	}
	if !report.Check.Passed() {
		metrics.VerificationFailures.WithLabelValues("vectoradd").Inc()
		d.logger.Warn("device result differs from host reference", zap.Int("mismatches", report.Check.Mismatches))
	}

	if opts.Compare != nil {
		other, otherTiming, err := opts.Compare.AddVectors(opts.Source, a, b)
		if err != nil {
			return nil, fmt.Errorf("comparison run on %s failed: %w", opts.Compare.device.Name(), err)
		}
		report.CompareDevice = opts.Compare.device.Name()
		report.CompareTiming = otherTiming
		check, err := verify.CompareAbs(c, other, tol)
		if err != nil {
			return nil, err
		}
		report.CompareCheck = &check
		if !check.Passed() {
			metrics.VerificationFailures.WithLabelValues("vectoradd").Inc()
			d.logger.Warn("results differ between devices",
				zap.String("other_device", report.CompareDevice), zap.Int("mismatches", check.Mismatches))
		}
	}
	return report, nil
}
