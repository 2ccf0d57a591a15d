package driver

import (
	"fmt"
	"io"
	"strings"

	"github.com/fxnlabs/gpu-examples/internal/gpu"
)

// printSelected names the device the workload ran on. Only a GPU is called one.
func printSelected(w io.Writer, typ gpu.DeviceType, name string) {
	if typ == gpu.DeviceTypeGPU {
		fmt.Fprintf(w, "Selected GPU: %s\n", name)
		return
	}
	fmt.Fprintf(w, "Selected device: %s (%s)\n", name, typ)
}

func printTiming(w io.Writer, t Timing) {
	fmt.Fprintf(w, "GPU wall time:    %.3f ms\n", milliseconds(t.Wall))
	fmt.Fprintf(w, "GPU kernel time:  %.3f ms\n", milliseconds(t.Kernel))
}

// Print writes the matmul diagnostics.
func (r *MatMulReport) Print(w io.Writer) {
	printSelected(w, r.DeviceType, r.Device)
	fmt.Fprintf(w, "Matrix size: %d x %d\n", r.N, r.N)
	fmt.Fprintf(w, "Tile size: %d\n", r.Tile)
	fmt.Fprintf(w, "Kernel file: %s (%s)\n", r.Source, r.Variant)
	fmt.Fprintf(w, "Grid: %s\n\n", r.Plan)

	if len(r.Timings) > 0 {
		printTiming(w, r.Timings[len(r.Timings)-1])
	}
	if r.Check != nil {
		fmt.Fprintf(w, "CPU time:         %.3f ms\n", milliseconds(r.CPUTime))
	}
	if r.Stats.Runs > 1 {
		fmt.Fprintf(w, "Runs: %d, kernel %.3f ± %.3f ms, wall %.3f ± %.3f ms\n",
			r.Stats.Runs, r.Stats.KernelMean, r.Stats.KernelStdDev, r.Stats.WallMean, r.Stats.WallStdDev)
		fmt.Fprintf(w, "Idempotent: %t\n", r.Idempotent)
	}
	if r.GFLOPS > 0 {
		fmt.Fprintf(w, "Throughput: %.2f GFLOPS\n", r.GFLOPS)
	}
	fmt.Fprintf(w, "Result digest: %s\n", r.Digest)
	if r.Check != nil {
		fmt.Fprintf(w, "Result correctness: %s (%s reference)\n", r.Check.Status(), r.Reference)
		if r.Check.First != nil {
			fmt.Fprintf(w, "First mismatch: %s\n", r.Check.First)
		}
	}

	fmt.Fprintf(w, "\ndone. Matrix multiplication completed.\n")
	for _, s := range r.Samples {
		fmt.Fprintf(w, "C[%d][%d] = %g\n", s.Row, s.Col, s.Value)
	}
}

// Print writes the vectoradd diagnostics.
func (r *VectorAddReport) Print(w io.Writer) {
	printSelected(w, r.DeviceType, r.Device)
	fmt.Fprintf(w, "Vector size: %d\n\n", r.N)
	printTiming(w, r.Timing)
	fmt.Fprintf(w, "CPU time:         %.3f ms\n", milliseconds(r.CPUTime))
	fmt.Fprintf(w, "Result correctness: %s\n", r.Check.Status())
	if r.CompareCheck != nil {
		fmt.Fprintf(w, "%s kernel time: %.3f ms, agreement: %s\n",
			r.CompareDevice, milliseconds(r.CompareTiming.Kernel), r.CompareCheck.Status())
	}

	fmt.Fprintf(w, "\ndone. Vector addition completed.\n")
	for i := 0; i < min(5, r.N); i++ {
		fmt.Fprintf(w, "%g + %g = %g\n", r.A[i], r.B[i], r.C[i])
	}
}

// Print writes the histogram diagnostics.
func (r *HistogramReport) Print(w io.Writer) {
	printSelected(w, r.DeviceType, r.Device)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Input size: %d\n", r.N)
	fmt.Fprintf(w, "Histogram bins: %d\n", r.Bins)
	fmt.Fprintf(w, "Kernel file: %s\n\n", r.Source)
	printTiming(w, r.Timing)
	fmt.Fprintf(w, "CPU time:         %.3f ms\n", milliseconds(r.CPUTime))
	fmt.Fprintf(w, "Result digest: %s\n", r.Digest)
	fmt.Fprintf(w, "Result correctness: %s\n", r.Check.Status())
	fmt.Fprintf(w, "\ndone. Histogram computed.\n")
}

// Print writes the device description and availability.
func (r *CheckReport) Print(w io.Writer) {
	fmt.Fprintf(w, "Device: %s\n", r.Info.Name)
	fmt.Fprintf(w, "Vendor: %s\n", r.Info.Vendor)
	fmt.Fprintf(w, "Local memory: %s\n", gpu.FormatMemory(r.Info.LocalMemSize))
	fmt.Fprintf(w, "Global memory: %s\n", gpu.FormatMemory(r.Info.GlobalMemSize))
	if len(r.Info.Extensions) > 0 {
		fmt.Fprintf(w, "Extensions: %s\n", strings.Join(r.Info.Extensions, ", "))
	}
	if r.Available {
		fmt.Fprintf(w, "GPU is available!\n")
	} else {
		fmt.Fprintf(w, "Failed to run on GPU.\n")
	}
}

// Print writes the round-trip outcome.
func (r *CopyReport) Print(w io.Writer) {
	printSelected(w, r.DeviceType, r.Device)
	fmt.Fprintf(w, "Buffer has been sent to the GPU.\n")
	if r.Matched {
		fmt.Fprintf(w, "done. The buffer has been on the GPU.\n")
	} else {
		fmt.Fprintf(w, "Buffer contents changed on the round trip.\n")
	}
}
