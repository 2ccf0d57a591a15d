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

// HistogramOptions configures the histogram workload.
type HistogramOptions struct {
	Source    compute.Source
	N         int
	Bins      int
	LocalSize int
	Seed      uint64
}

// HistogramReport is what the histogram workload prints.
type HistogramReport struct {
	Device     string
	DeviceType gpu.DeviceType
	Source     string
	N          int
	Bins       int
	Plan       grid.Plan
	Timing     Timing
	CPUTime    time.Duration
	Check      verify.Result
	Digest     string
	Hist       []uint32
}

// ComputeHistogram counts data into bins on the device.
func (d *Driver) ComputeHistogram(src compute.Source, data []uint32, bins, localSize int) ([]uint32, grid.Plan, Timing, error) {
	plan, err := grid.Plan1D(len(data), localSize, grid.ModeBoundary)
	if err != nil {
		return nil, grid.Plan{}, Timing{}, err
	}
	if bins <= 0 {
		return nil, plan, Timing{}, fmt.Errorf("bin count must be positive, got %d", bins)
	}
	k, err := d.kernel(src.WithDefine(kernels.DefineBins, bins), kernels.Histogram)
	if err != nil {
		return nil, plan, Timing{}, err
	}

	bufs := d.scope()
	defer bufs.release()

	bufData, err := upload(bufs, data)
	if err != nil {
		return nil, plan, Timing{}, err
	}
	bufHist, err := bufs.output(compute.MemReadWrite, compute.Uint32, bins)
	if err != nil {
		return nil, plan, Timing{}, err
	}
	if err := write(d, bufHist, make([]uint32, bins)); err != nil {
		return nil, plan, Timing{}, err
	}
	if err := k.SetArgs(bufData, bufHist, len(data)); err != nil {
		return nil, plan, Timing{}, err
	}
	timing, _, err := d.launch(k, compute.Range1D(plan.Global[0]), compute.Range1D(plan.Local[0]))
	if err != nil {
		return nil, plan, Timing{}, err
	}
	hist := make([]uint32, bins)
	if err := download(d, bufHist, hist); err != nil {
		return nil, plan, Timing{}, err
	}
	return hist, plan, timing, nil
}

// Histogram draws opts.N values uniformly from [0, Bins), counts them on the
// device, and compares the counts with a host histogram.
func (d *Driver) Histogram(opts HistogramOptions) (*HistogramReport, error) {
	if opts.N <= 0 {
		return nil, fmt.Errorf("%w: got %d", grid.ErrInvalidSize, opts.N)
	}
	if opts.Bins <= 0 {
		return nil, fmt.Errorf("bin count must be positive, got %d", opts.Bins)
	}
	data := make([]uint32, opts.N)
	reference.FillBins(data, opts.Bins, reference.NewRand(opts.Seed))

	start := time.Now()
	want := reference.Histogram(data, opts.Bins)
	cpuTime := time.Since(start)

	hist, plan, timing, err := d.ComputeHistogram(opts.Source, data, opts.Bins, opts.LocalSize)
	if err != nil {
		return nil, err
	}
	report := &HistogramReport{
		Device:     d.device.Name(),
		DeviceType: d.device.Type(),
		Source:     opts.Source.Name,
		N:          opts.N,
		Bins:       opts.Bins,
		Plan:       plan,
		Timing:     timing,
		CPUTime:    cpuTime,
		Digest:     verify.DigestUint32(hist),
		Hist:       hist,
	}
	metrics.WallDuration.WithLabelValues("histogram").Observe(milliseconds(timing.Wall))
	metrics.ProblemSize.WithLabelValues("histogram").Set(float64(opts.N))

	if report.Check, err = verify.CompareUint32(hist, want); err != nil {
		return nil, err
	}
	if !report.Check.Passed() {
		metrics.VerificationFailures.WithLabelValues("histogram").Inc()
		d.logger.Warn("device histogram differs from host histogram", zap.Int("mismatched_bins", report.Check.Mismatches))
	}
	return report, nil
}
