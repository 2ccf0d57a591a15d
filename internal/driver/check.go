package driver

import (
	"fmt"
	"time"

	"github.com/fxnlabs/gpu-examples/internal/compute"
	"github.com/fxnlabs/gpu-examples/internal/gpu"
	"github.com/fxnlabs/gpu-examples/internal/kernels"
	"github.com/fxnlabs/gpu-examples/internal/metrics"
	"go.uber.org/zap"
)

// CheckReport describes the device and whether it ran a kernel.
type CheckReport struct {
	Info      gpu.DeviceInfo
	Available bool
	Err       error
	Duration  time.Duration
}

// Check runs a single-task kernel that raises a flag. A device that fails to
// build or run it is reported unavailable rather than returned as an error.
func (d *Driver) Check(src compute.Source) *CheckReport {
	report := &CheckReport{Info: d.device.Info()}
	start := time.Now()
	report.Err = d.singleTask(src)
	report.Duration = time.Since(start)
	report.Available = report.Err == nil
	if report.Err != nil {
		d.logger.Warn("device check failed", zap.Error(report.Err))
	}
	return report
}

func (d *Driver) singleTask(src compute.Source) error {
	k, err := d.kernel(src, kernels.SingleTask)
	if err != nil {
		return err
	}
	bufs := d.scope()
	defer bufs.release()

	flag, err := bufs.output(compute.MemWriteOnly, compute.Uint32, 1)
	if err != nil {
		return err
	}
	if err := k.SetArg(0, flag); err != nil {
		return err
	}
	ev, err := d.queue.EnqueueTask(k)
	if err != nil {
		return err
	}
	if err := ev.Wait(); err != nil {
		return err
	}
	metrics.KernelDispatches.WithLabelValues(k.Name(), d.device.Name()).Inc()

	got := make([]uint32, 1)
	if err := download(d, flag, got); err != nil {
		return err
	}
	if got[0] != 1 {
		return fmt.Errorf("single task did not run: flag is %d", got[0])
	}
	return nil
}

// CopyReport is the result of a buffer round trip.
type CopyReport struct {
	Device     string
	DeviceType gpu.DeviceType
	N          int
	Matched    bool
	Duration   time.Duration
}

// BufferRoundTrip sends n values to the device, copies them into a second
// device buffer, and reads that buffer back.
func (d *Driver) BufferRoundTrip(n int) (*CopyReport, error) {
	if n <= 0 {
		return nil, fmt.Errorf("buffer size must be positive, got %d", n)
	}
	input := make([]float32, n)
	for i := range input {
		input[i] = float32(i*2 + 1)
	}

	bufs := d.scope()
	defer bufs.release()

	start := time.Now()
	in, err := upload(bufs, input)
	if err != nil {
		return nil, err
	}
	out, err := bufs.output(compute.MemWriteOnly, compute.Float32, n)
	if err != nil {
		return nil, err
	}
	if _, err := d.queue.EnqueueCopyBuffer(in, out); err != nil {
		return nil, err
	}
	output := make([]float32, n)
	if err := download(d, out, output); err != nil {
		return nil, err
	}
	if err := d.queue.Finish(); err != nil {
		return nil, err
	}
	metrics.TransferBytes.WithLabelValues(metrics.DirectionDeviceToDevice).Add(float64(in.Bytes()))

	report := &CopyReport{Device: d.device.Name(), DeviceType: d.device.Type(), N: n, Matched: true, Duration: time.Since(start)}
	for i := range input {
		if output[i] != input[i] {
			report.Matched = false
			d.logger.Warn("buffer round trip corrupted data", zap.Int("index", i),
				zap.Float32("sent", input[i]), zap.Float32("received", output[i]))
			break
		}
	}
	return report, nil
}
