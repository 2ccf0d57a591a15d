package driver

import (
	"bytes"
	"errors"
	"testing"

	"github.com/fxnlabs/gpu-examples/internal/compute"
	"github.com/fxnlabs/gpu-examples/internal/gpu"
	"github.com/fxnlabs/gpu-examples/internal/grid"
	"github.com/fxnlabs/gpu-examples/internal/kernels"
	"github.com/fxnlabs/gpu-examples/internal/reference"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testDevice(name string, t gpu.DeviceType) *gpu.Device {
	return gpu.NewDevice(gpu.DeviceInfo{
		Name:              name,
		Vendor:            "test",
		Type:              t,
		MaxComputeUnits:   4,
		MaxWorkGroupSize:  256,
		MaxWorkItemSizes:  [3]int{256, 256, 256},
		LocalMemSize:      64 << 10,
		GlobalMemSize:     1 << 30,
		CompilerAvailable: true,
	})
}

func newTestDriver(t *testing.T) *Driver {
	t.Helper()
	d, err := New(testDevice("Test GPU", gpu.DeviceTypeGPU), kernels.Registry(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func embedded(t *testing.T, name string) compute.Source {
	t.Helper()
	src, err := kernels.Embedded(name)
	require.NoError(t, err)
	return src
}

func randomMatrices(n int, seed uint64) (a, b []float32) {
	rng := reference.NewRand(seed)
	a, b = make([]float32, n*n), make([]float32, n*n)
	reference.FillUniform(a, 0, 10, rng)
	reference.FillUniform(b, 0, 10, rng)
	return a, b
}

func TestMultiplyMatricesVariantsAgree(t *testing.T) {
	d := newTestDriver(t)
	const n, tile = 10, 4
	a, b := randomMatrices(n, 7)
	want := reference.MatMulNaive(a, b, n)

	for _, v := range []kernels.Variant{kernels.VariantSimple, kernels.VariantTiled} {
		t.Run(string(v), func(t *testing.T) {
			res, err := d.MultiplyMatrices(MatMulRequest{
				Source:  embedded(t, v.File()),
				Variant: v,
				A:       a,
				B:       b,
				N:       n,
				Tile:    tile,
			})
			require.NoError(t, err)
			assert.Equal(t, want, res.C)
			assert.Equal(t, 3, res.Plan.TileCount)
		})
	}
}

func TestMultiplyMatricesTiledGrid(t *testing.T) {
	d := newTestDriver(t)
	a, b := randomMatrices(10, 1)
	res, err := d.MultiplyMatrices(MatMulRequest{
		Source:  embedded(t, kernels.FileMatrixLocal),
		Variant: kernels.VariantTiled,
		A:       a,
		B:       b,
		N:       10,
		Tile:    4,
	})
	require.NoError(t, err)
	assert.Equal(t, [2]int{12, 12}, res.Plan.Global)
	assert.Equal(t, [2]int{4, 4}, res.Plan.Local)
	assert.Len(t, res.C, 100)
}

func TestMultiplyMatricesFormula(t *testing.T) {
	d := newTestDriver(t)
	a, b := reference.FillFormula(4)
	res, err := d.MultiplyMatrices(MatMulRequest{
		Source:  embedded(t, kernels.FileMatrixLocal),
		Variant: kernels.VariantTiled,
		A:       a,
		B:       b,
		N:       4,
		Tile:    2,
	})
	require.NoError(t, err)
	assert.Equal(t, float32(6), res.C[0])
	assert.Equal(t, reference.MatMulNaive(a, b, 4), res.C)
}

func TestMultiplyMatricesRejectsOversizedTile(t *testing.T) {
	d := newTestDriver(t)
	a, b := randomMatrices(128, 3)
	_, err := d.MultiplyMatrices(MatMulRequest{
		Source:  embedded(t, kernels.FileMatrixLocal),
		Variant: kernels.VariantTiled,
		A:       a,
		B:       b,
		N:       128,
		Tile:    64,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, compute.ErrInvalidDispatchShape), err.Error())
	assert.Zero(t, d.ctx.LiveBuffers(), "buffers must be released on failure")
}

func TestMultiplyMatricesInvalidInput(t *testing.T) {
	d := newTestDriver(t)
	src := embedded(t, kernels.FileMatrixLocal)

	_, err := d.MultiplyMatrices(MatMulRequest{Source: src, Variant: kernels.VariantTiled, A: make([]float32, 4), B: make([]float32, 4), N: 2, Tile: 0})
	assert.ErrorIs(t, err, grid.ErrInvalidTile)

	_, err = d.MultiplyMatrices(MatMulRequest{Source: src, Variant: kernels.VariantTiled, A: make([]float32, 3), B: make([]float32, 4), N: 2, Tile: 2})
	assert.Error(t, err)

	broken := compute.NewSource("broken.cl", "__kernel void nothing_here(__global float* a) {}")
	_, err = d.MultiplyMatrices(MatMulRequest{Source: broken, Variant: kernels.VariantTiled, A: make([]float32, 4), B: make([]float32, 4), N: 2, Tile: 2})
	assert.ErrorIs(t, err, compute.ErrBuildFailure)
}

func TestMultiplyMatricesPrivate(t *testing.T) {
	d := newTestDriver(t)
	const n, tile = 16, 4
	a, b := randomMatrices(n, 13)
	res, err := d.MultiplyMatrices(MatMulRequest{
		Source:  embedded(t, kernels.FileMatrixPrivate),
		Variant: kernels.VariantPrivate,
		A:       a,
		B:       b,
		N:       n,
		Tile:    tile,
	})
	require.NoError(t, err)
	assert.Equal(t, reference.MatMulNaive(a, b, n), res.C)
	assert.Equal(t, [2]int{16, 16}, res.Plan.Global)
	assert.Equal(t, [2]int{4, 4}, res.Plan.Local)
	assert.Equal(t, grid.ModeDivisible, res.Plan.Mode)
}

func TestMultiplyMatricesPrivateRejectsRaggedN(t *testing.T) {
	d := newTestDriver(t)
	a, b := randomMatrices(10, 2)
	_, err := d.MultiplyMatrices(MatMulRequest{
		Source:  embedded(t, kernels.FileMatrixPrivate),
		Variant: kernels.VariantPrivate,
		A:       a,
		B:       b,
		N:       10,
		Tile:    4,
	})
	require.ErrorIs(t, err, grid.ErrIndivisible)
	assert.Contains(t, err.Error(), "N=10, tile=4")
	assert.Zero(t, d.ctx.LiveBuffers())
}

func TestMultiplyMatricesReportsRuntimeLocal(t *testing.T) {
	d := newTestDriver(t)
	report, err := d.MatMul(MatMulOptions{
		Source:    embedded(t, kernels.FileMatrixSimple),
		Variant:   kernels.VariantSimple,
		N:         2,
		Tile:      16,
		Reference: ReferenceNaive,
	})
	require.NoError(t, err)
	assert.Equal(t, [2]int{2, 2}, report.Plan.Local)
	assert.Equal(t, [2]int{1, 1}, report.Plan.Groups())

	var out bytes.Buffer
	report.Print(&out)
	assert.Contains(t, out.String(), "Grid: global=2x2 local=2x2")
	assert.NotContains(t, out.String(), "local=16x16")
}

func TestReportsNameDeviceClass(t *testing.T) {
	cpu, err := New(testDevice("Test CPU", gpu.DeviceTypeCPU), kernels.Registry(), zap.NewNop())
	require.NoError(t, err)
	defer cpu.Close()

	report, err := cpu.MatMul(MatMulOptions{
		Source:  embedded(t, kernels.FileMatrixLocal),
		Variant: kernels.VariantTiled,
		N:       8,
		Tile:    4,
	})
	require.NoError(t, err)
	var out bytes.Buffer
	report.Print(&out)
	assert.Contains(t, out.String(), "Selected device: Test CPU (cpu)")
	assert.NotContains(t, out.String(), "Selected GPU")

	added, err := cpu.VectorAdd(VectorAddOptions{Source: embedded(t, kernels.FileVectorAdd), N: 16})
	require.NoError(t, err)
	out.Reset()
	added.Print(&out)
	assert.Contains(t, out.String(), "Selected device: Test CPU (cpu)")

	hist, err := cpu.Histogram(HistogramOptions{Source: embedded(t, kernels.FileHistogram), N: 256, Bins: 8, LocalSize: 32})
	require.NoError(t, err)
	out.Reset()
	hist.Print(&out)
	assert.Contains(t, out.String(), "Selected device: Test CPU (cpu)")

	copied, err := newTestDriver(t).BufferRoundTrip(8)
	require.NoError(t, err)
	out.Reset()
	copied.Print(&out)
	assert.Contains(t, out.String(), "Selected GPU: Test GPU")
}

func TestMatMulAgainstReferences(t *testing.T) {
	if testing.Short() {
		t.Skip("256x256 product")
	}
	d := newTestDriver(t)
	for _, ref := range []string{ReferenceTranspose, ReferenceGonum, ReferenceFreivalds} {
		t.Run(ref, func(t *testing.T) {
			report, err := d.MatMul(MatMulOptions{
				Source:    embedded(t, kernels.FileMatrixLocal),
				Variant:   kernels.VariantTiled,
				N:         256,
				Tile:      16,
				Fill:      FillRandom,
				Seed:      42,
				Reference: ref,
			})
			require.NoError(t, err)
			require.NotNil(t, report.Check)
			assert.True(t, report.Check.Passed(), "mismatches: %d", report.Check.Mismatches)
		})
	}
}

func TestMatMulIdempotent(t *testing.T) {
	d := newTestDriver(t)
	report, err := d.MatMul(MatMulOptions{
		Source:    embedded(t, kernels.FileMatrixLocal),
		Variant:   kernels.VariantTiled,
		N:         33,
		Tile:      8,
		Seed:      5,
		Runs:      2,
		Reference: ReferenceNaive,
	})
	require.NoError(t, err)
	assert.True(t, report.Idempotent)
	assert.Len(t, report.Timings, 2)
	assert.Equal(t, 2, report.Stats.Runs)
	assert.NotEmpty(t, report.Digest)
	assert.True(t, report.Check.Passed())
	assert.Len(t, report.Samples, 3)

	var out bytes.Buffer
	report.Print(&out)
	assert.Contains(t, out.String(), "Matrix size: 33 x 33")
	assert.Contains(t, out.String(), "Result correctness: PASSED")
	assert.Contains(t, out.String(), "done. Matrix multiplication completed.")
}

func TestMatMulOptionErrors(t *testing.T) {
	d := newTestDriver(t)
	src := embedded(t, kernels.FileMatrixLocal)

	_, err := d.MatMul(MatMulOptions{Source: src, Variant: kernels.VariantTiled, N: 0, Tile: 4})
	assert.ErrorIs(t, err, grid.ErrInvalidSize)

	_, err = d.MatMul(MatMulOptions{Source: src, Variant: kernels.VariantTiled, N: 4, Tile: 2, Fill: "zeros"})
	assert.EqualError(t, err, `unknown fill "zeros"`)

	_, err = d.MatMul(MatMulOptions{Source: src, Variant: kernels.VariantTiled, N: 4, Tile: 2, Reference: "oracle"})
	assert.EqualError(t, err, `unknown reference "oracle"`)

	report, err := d.MatMul(MatMulOptions{Source: src, Variant: kernels.VariantTiled, N: 4, Tile: 2, Reference: ReferenceNone})
	require.NoError(t, err)
	assert.Nil(t, report.Check)
}

func TestVectorAdd(t *testing.T) {
	d := newTestDriver(t)
	cpu, err := New(testDevice("Test CPU", gpu.DeviceTypeCPU), kernels.Registry(), zap.NewNop())
	require.NoError(t, err)
	defer cpu.Close()

	report, err := d.VectorAdd(VectorAddOptions{
		Source:  embedded(t, kernels.FileVectorAdd),
		N:       1000,
		Compare: cpu,
	})
	require.NoError(t, err)
	assert.True(t, report.Check.Passed())
	require.NotNil(t, report.CompareCheck)
	assert.True(t, report.CompareCheck.Passed())
	assert.Equal(t, "Test CPU", report.CompareDevice)
	for i, c := range report.C {
		require.Equal(t, float32(3*i), c)
	}

	var out bytes.Buffer
	report.Print(&out)
	assert.Contains(t, out.String(), "1 + 2 = 3")
	assert.Contains(t, out.String(), "done. Vector addition completed.")
}

func TestAddVectorsLengthMismatch(t *testing.T) {
	d := newTestDriver(t)
	_, _, err := d.AddVectors(embedded(t, kernels.FileVectorAdd), make([]float32, 3), make([]float32, 2))
	assert.Error(t, err)
}

func TestHistogram(t *testing.T) {
	d := newTestDriver(t)
	report, err := d.Histogram(HistogramOptions{
		Source:    embedded(t, kernels.FileHistogram),
		N:         10000,
		Bins:      64,
		LocalSize: 128,
		Seed:      9,
	})
	require.NoError(t, err)
	assert.True(t, report.Check.Passed(), "mismatched bins: %d", report.Check.Mismatches)
	var total uint32
	for _, c := range report.Hist {
		total += c
	}
	assert.Equal(t, uint32(10000), total)
	assert.Equal(t, [2]int{10112, 1}, report.Plan.Global)

	_, err = d.Histogram(HistogramOptions{Source: embedded(t, kernels.FileHistogram), N: 10, Bins: 0, LocalSize: 8})
	assert.Error(t, err)
}

func TestCheck(t *testing.T) {
	d := newTestDriver(t)
	report := d.Check(embedded(t, kernels.FileSingleTask))
	assert.True(t, report.Available)
	assert.NoError(t, report.Err)
	assert.Equal(t, "Test GPU", report.Info.Name)

	var out bytes.Buffer
	report.Print(&out)
	assert.Contains(t, out.String(), "GPU is available!")

	report = d.Check(embedded(t, kernels.FileVectorAdd))
	assert.False(t, report.Available)
	assert.ErrorIs(t, report.Err, compute.ErrBuildFailure)
}

func TestBufferRoundTrip(t *testing.T) {
	d := newTestDriver(t)
	report, err := d.BufferRoundTrip(1024)
	require.NoError(t, err)
	assert.True(t, report.Matched)
	assert.Zero(t, d.ctx.LiveBuffers())

	_, err = d.BufferRoundTrip(0)
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, Stats{}, summarize(nil))

	one := summarize([]Timing{{Kernel: 2e6, Wall: 3e6}})
	assert.Equal(t, Stats{Runs: 1, KernelMean: 2, WallMean: 3}, one)

	two := summarize([]Timing{{Kernel: 1e6, Wall: 1e6}, {Kernel: 3e6, Wall: 1e6}})
	assert.InDelta(t, 2, two.KernelMean, 1e-9)
	assert.InDelta(t, 1.41421356, two.KernelStdDev, 1e-6)
	assert.Zero(t, two.WallStdDev)
}
