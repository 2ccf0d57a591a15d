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

// MatMulRequest is one square product C = A*B on the device.
type MatMulRequest struct {
	Source  compute.Source
	Variant kernels.Variant
	A, B    []float32
	N       int
	Tile    int
}

// MatMulResult is the product read back to the host.
type MatMulResult struct {
	C      []float32
	Plan   grid.Plan
	Timing Timing
}

// MultiplyMatrices stages A and B into read-only buffers, launches the kernel
// over the planned grid into a distinct write-only buffer, and reads C back.
//
// The tiled variant is built with TILE injected and dispatched over a grid
// rounded up to whole tiles. The private variant also gets TILE but refuses an
// N the tile does not divide, returning grid.ErrIndivisible before any upload.
// The simple variant is dispatched over exactly N x N items; when the tile does
// not divide N the runtime picks the work-group and Plan.Local reports its pick.
func (d *Driver) MultiplyMatrices(req MatMulRequest) (*MatMulResult, error) {
	n := req.N
	if len(req.A) != n*n || len(req.B) != n*n {
		return nil, fmt.Errorf("operands must hold %dx%d elements, got %d and %d", n, n, len(req.A), len(req.B))
	}

	src := req.Source
	var mode grid.Mode
	switch req.Variant {
	case kernels.VariantTiled:
		src, mode = src.WithDefine(kernels.DefineTile, req.Tile), grid.ModeBoundary
	case kernels.VariantPrivate:
		src, mode = src.WithDefine(kernels.DefineTile, req.Tile), grid.ModeDivisible
	default:
		mode = grid.ModeExact
	}
	plan, err := grid.Plan2D(n, req.Tile, mode)
	if err != nil {
		return nil, err
	}
	global := compute.Range2D(plan.Global[0], plan.Global[1])
	local := compute.Range2D(plan.Local[0], plan.Local[1])
	if mode == grid.ModeExact && plan.Ragged() {
		local = compute.NullRange
	}

	k, err := d.kernel(src, req.Variant.Kernel())
	if err != nil {
		return nil, err
	}

	bufs := d.scope()
	defer bufs.release()

	a, err := upload(bufs, req.A)
	if err != nil {
		return nil, err
	}
	b, err := upload(bufs, req.B)
	if err != nil {
		return nil, err
	}
	c, err := bufs.output(compute.MemWriteOnly, compute.Float32, n*n)
	if err != nil {
		return nil, err
	}
	if err := k.SetArgs(a, b, c, n); err != nil {
		return nil, err
	}

	d.logger.Debug("dispatching matrix multiplication", zap.Int("n", n), zap.Stringer("plan", plan))
	timing, used, err := d.launch(k, global, local)
	if err != nil {
		return nil, err
	}
	plan.Local = [2]int{used.Size(0), used.Size(1)}

	result := &MatMulResult{C: make([]float32, n*n), Plan: plan, Timing: timing}
	if err := download(d, c, result.C); err != nil {
		return nil, err
	}
	return result, nil
}

// Fill modes for matrix operands.
const (
	FillRandom  = "random"
	FillFormula = "formula"
)

// Host references for the matrix product.
const (
	ReferenceNone      = "none"
	ReferenceNaive     = "naive"
	ReferenceTranspose = "transpose"
	ReferenceTiled     = "tiled"
	ReferenceGonum     = "gonum"
	ReferenceFreivalds = "freivalds"
)

// freivaldsIterations bounds the false-accept probability at 2^-20.
const freivaldsIterations = 20

// MatMulOptions configures the matmul workload.
type MatMulOptions struct {
	Source    compute.Source
	Variant   kernels.Variant
	N         int
	Tile      int
	Fill      string
	Seed      uint64
	Runs      int
	Reference string
	Tolerance float64
}

// MatMulReport is what the matmul workload prints.
type MatMulReport struct {
	Device     string
	DeviceType gpu.DeviceType
	Source     string
	Variant    kernels.Variant
	N          int
	Tile       int
	Plan       grid.Plan
	Timings    []Timing
	Stats      Stats
	GFLOPS     float64
	Reference  string
	CPUTime    time.Duration
	Check      *verify.Result
	Digest     string
	Idempotent bool
	Samples    []verify.Sample
	Result     []float32
}

// MatMul fills the operands, multiplies them opts.Runs times, and checks the
// last result against the configured host reference. A mismatch is reported,
// not returned as an error.
func (d *Driver) MatMul(opts MatMulOptions) (*MatMulReport, error) {
	n := opts.N
	if n <= 0 {
		return nil, fmt.Errorf("%w: got %d", grid.ErrInvalidSize, n)
	}
	runs := max(opts.Runs, 1)

	var a, b []float32
	switch opts.Fill {
	case FillFormula:
		a, b = reference.FillFormula(n)
	case FillRandom, "":
		rng := reference.NewRand(opts.Seed)
		a, b = make([]float32, n*n), make([]float32, n*n)
		reference.FillUniform(a, 0, 10, rng)
		reference.FillUniform(b, 0, 10, rng)
	default:
		return nil, fmt.Errorf("unknown fill %q", opts.Fill)
	}

	report := &MatMulReport{
		Device:     d.device.Name(),
		DeviceType: d.device.Type(),
		Source:     opts.Source.Name,
		Variant:    opts.Variant,
		N:          n,
		Tile:       opts.Tile,
		Reference:  opts.Reference,
		Idempotent: true,
	}
	req := MatMulRequest{Source: opts.Source, Variant: opts.Variant, A: a, B: b, N: n, Tile: opts.Tile}
	for run := 0; run < runs; run++ {
		res, err := d.MultiplyMatrices(req)
		if err != nil {
			return nil, err
		}
		digest := verify.Digest(res.C)
		if run > 0 && digest != report.Digest {
			report.Idempotent = false
			d.logger.Warn("repeated run produced a different result",
				zap.Int("run", run+1), zap.String("digest", digest), zap.String("first_digest", report.Digest))
		}
		if run == 0 {
			report.Digest = digest
		}
		report.Plan = res.Plan
		report.Result = res.C
		report.Timings = append(report.Timings, res.Timing)
		metrics.WallDuration.WithLabelValues("matmul").Observe(milliseconds(res.Timing.Wall))
	}
	report.Stats = summarize(report.Timings)
	if report.Stats.KernelMean > 0 {
		flops := 2 * float64(n) * float64(n) * float64(n)
		report.GFLOPS = flops / (report.Stats.KernelMean / 1e3) / 1e9
	}
	report.Samples = verify.Samples(report.Result, n, 3)
	metrics.ProblemSize.WithLabelValues("matmul").Set(float64(n))
	metrics.MatMulGFLOPS.Set(report.GFLOPS)

	check, cpuTime, err := d.checkProduct(opts, a, b, report.Result)
	if err != nil {
		return nil, err
	}
	report.Check, report.CPUTime = check, cpuTime
	if check != nil && !check.Passed() {
		metrics.VerificationFailures.WithLabelValues("matmul").Inc()
		d.logger.Warn("device result differs from host reference",
			zap.String("reference", opts.Reference),
			zap.Int("mismatches", check.Mismatches),
			zap.Float64("max_abs_diff", check.MaxAbsDiff))
	}
	return report, nil
}

func (d *Driver) checkProduct(opts MatMulOptions, a, b, c []float32) (*verify.Result, time.Duration, error) {
	tol := opts.Tolerance
	if tol <= 0 {
		tol = verify.DefaultTolerance
	}
	n := opts.N
	start := time.Now()

	var (
		result verify.Result
		err    error
	)
	switch opts.Reference {
	case ReferenceNone, "":
		return nil, 0, nil
	case ReferenceNaive:
		want := reference.MatMulNaive(a, b, n)
		elapsed := time.Since(start)
		result, err = verify.CompareAbs(c, want, tol)
		return &result, elapsed, err
	case ReferenceTranspose:
		want := reference.MatMulTransposed(a, b, n)
		elapsed := time.Since(start)
		result, err = verify.CompareAbs(c, want, tol)
		return &result, elapsed, err
	case ReferenceTiled:
		want := reference.MatMulTiled(a, b, n, opts.Tile)
		elapsed := time.Since(start)
		result, err = verify.CompareAbs(c, want, tol)
		return &result, elapsed, err
	case ReferenceGonum:
		want := reference.MatMulGonum(a, b, n)
		elapsed := time.Since(start)
		result, err = verify.CompareApprox(c, want, tol, verify.DefaultRelTolerance)
		return &result, elapsed, err
	case ReferenceFreivalds:
		ok := verify.Freivalds(a, b, c, n, freivaldsIterations, verify.DefaultRelTolerance, reference.NewRand(opts.Seed+1))
		result = verify.Result{Checked: freivaldsIterations}
		if !ok {
			result.Mismatches = 1
		}
		return &result, time.Since(start), nil
	default:
		return nil, 0, fmt.Errorf("unknown reference %q", opts.Reference)
	}
}
