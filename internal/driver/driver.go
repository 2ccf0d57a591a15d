// Package driver is the host side of every workload: it owns host data, stages
// it into device buffers, launches kernels with the planned grid, blocks until
// completion, reads results back, and cross-checks them on the host.
package driver

import (
	"fmt"
	"time"

	"github.com/fxnlabs/gpu-examples/internal/compute"
	"github.com/fxnlabs/gpu-examples/internal/gpu"
	"github.com/fxnlabs/gpu-examples/internal/metrics"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// Driver owns a context and a profiling queue on one device. Close releases
// both along with any buffer still alive.
type Driver struct {
	device *gpu.Device
	ctx    *compute.Context
	queue  *compute.Queue
	logger *zap.Logger
}

// New creates a driver for device. Kernels in built programs resolve against
// registry.
func New(device *gpu.Device, registry *compute.Registry, logger *zap.Logger) (*Driver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("driver").With(zap.String("device", device.Name()))

	ctx, err := compute.NewContext(device, registry, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create context: %w", err)
	}
	queue, err := ctx.NewQueue(compute.WithProfiling())
	if err != nil {
		_ = ctx.Release()
		return nil, fmt.Errorf("failed to create queue: %w", err)
	}
	return &Driver{device: device, ctx: ctx, queue: queue, logger: logger}, nil
}

func (d *Driver) Device() *gpu.Device { return d.device }

// Close releases the queue, the context, and every buffer the context owns.
func (d *Driver) Close() error {
	metrics.DeviceMemoryAllocatedBytes.Set(float64(d.ctx.Allocated()))
	return d.ctx.Release()
}

// Timing is the cost of one launch: device-reported kernel execution time and
// host wall time from submission to completion.
type Timing struct {
	Kernel time.Duration
	Wall   time.Duration
}

// Stats summarizes repeated runs, in milliseconds.
type Stats struct {
	Runs         int
	KernelMean   float64
	KernelStdDev float64
	WallMean     float64
	WallStdDev   float64
}

func summarize(timings []Timing) Stats {
	s := Stats{Runs: len(timings)}
	if len(timings) == 0 {
		return s
	}
	kernel := make([]float64, len(timings))
	wall := make([]float64, len(timings))
	for i, t := range timings {
		kernel[i] = milliseconds(t.Kernel)
		wall[i] = milliseconds(t.Wall)
	}
	if len(timings) == 1 {
		s.KernelMean, s.WallMean = kernel[0], wall[0]
		return s
	}
	s.KernelMean, s.KernelStdDev = stat.MeanStdDev(kernel, nil)
	s.WallMean, s.WallStdDev = stat.MeanStdDev(wall, nil)
	return s
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// buffers releases every buffer created through it when the owning scope ends.
type buffers struct {
	d    *Driver
	live []*compute.Buffer
}

func (d *Driver) scope() *buffers {
	return &buffers{d: d}
}

func (s *buffers) release() {
	for _, b := range s.live {
		if err := b.Release(); err != nil {
			s.d.logger.Debug("failed to release buffer", zap.Error(err))
		}
	}
	s.live = nil
}

// output allocates a zeroed device buffer for kernel results.
func (s *buffers) output(flags compute.MemFlags, elem compute.ElementType, n int) (*compute.Buffer, error) {
	b, err := s.d.ctx.CreateBuffer(flags, elem, n)
	if err != nil {
		return nil, err
	}
	s.live = append(s.live, b)
	return b, nil
}

// upload stages host data into a new read-only device buffer.
func upload[T compute.Element](s *buffers, host []T) (*compute.Buffer, error) {
	b, err := compute.CreateBufferFrom(s.d.ctx, compute.MemReadOnly, host)
	if err != nil {
		return nil, err
	}
	s.live = append(s.live, b)
	metrics.TransferBytes.WithLabelValues(metrics.DirectionHostToDevice).Add(float64(b.Bytes()))
	return b, nil
}

// write enqueues a host-to-device copy into an existing buffer and waits for it.
func write[T compute.Element](d *Driver, b *compute.Buffer, host []T) error {
	ev, err := compute.EnqueueWriteBuffer(d.queue, b, host)
	if err != nil {
		return err
	}
	if err := ev.Wait(); err != nil {
		return err
	}
	metrics.TransferBytes.WithLabelValues(metrics.DirectionHostToDevice).Add(float64(4 * len(host)))
	return nil
}

// download blocks until b has been copied into dst.
func download[T compute.Element](d *Driver, b *compute.Buffer, dst []T) error {
	if err := compute.ReadBuffer(d.queue, b, dst); err != nil {
		return err
	}
	metrics.TransferBytes.WithLabelValues(metrics.DirectionDeviceToHost).Add(float64(4 * len(dst)))
	return nil
}

// kernel builds src and returns the named kernel. Build diagnostics are logged
// before the error is returned.
func (d *Driver) kernel(src compute.Source, name string) (*compute.Kernel, error) {
	prog := d.ctx.CreateProgram(src)
	if err := prog.Build(); err != nil {
		if log := prog.BuildLog(); log != "" {
			d.logger.Error("program build failed", zap.String("source", src.Name), zap.String("log", log))
		}
		return nil, err
	}
	return prog.CreateKernel(name)
}

// launch submits k and blocks until it completes.
func (d *Driver) launch(k *compute.Kernel, global, local compute.NDRange) (Timing, compute.NDRange, error) {
	start := time.Now()
	ev, err := d.queue.EnqueueNDRange(k, global, local)
	if err != nil {
		return Timing{}, compute.NullRange, err
	}
	if err := ev.Wait(); err != nil {
		return Timing{}, compute.NullRange, err
	}
	t := Timing{Kernel: ev.Duration(), Wall: time.Since(start)}

	metrics.KernelDispatches.WithLabelValues(k.Name(), d.device.Name()).Inc()
	metrics.KernelDuration.WithLabelValues(k.Name()).Observe(milliseconds(t.Kernel))
	d.logger.Debug("kernel completed",
		zap.String("kernel", k.Name()),
		zap.Stringer("global", global),
		zap.Stringer("local", ev.Local()),
		zap.Duration("kernel_time", t.Kernel),
		zap.Duration("wall_time", t.Wall))
	return t, ev.Local(), nil
}
