package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Kernel Metrics
	KernelDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gpux_kernel_duration_ms",
		Help:    "Device-reported kernel execution time in milliseconds",
		Buckets: prometheus.ExponentialBuckets(0.125, 2, 18), // 125us to ~16s
	}, []string{"kernel"})

	KernelDispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gpux_kernel_dispatches_total",
		Help: "The total number of kernel launches by kernel and device",
	}, []string{"kernel", "device"})

	WallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gpux_wall_duration_ms",
		Help:    "Host wall-clock time from submission to completion in milliseconds",
		Buckets: prometheus.ExponentialBuckets(0.125, 2, 18),
	}, []string{"workload"})

	// Transfer Metrics
	TransferBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gpux_transfer_bytes_total",
		Help: "Bytes moved between host and device by direction",
	}, []string{"direction"})

	DeviceMemoryAllocatedBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gpux_device_memory_allocated_bytes",
		Help: "Device memory held by live buffers at the end of the last workload",
	})

	// Workload Metrics
	ProblemSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gpux_problem_size",
		Help: "Problem size of the last run by workload",
	}, []string{"workload"})

	MatMulGFLOPS = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gpux_matmul_gflops",
		Help: "Performance of the last matrix multiplication in GFLOPS",
	})

	VerificationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gpux_verification_failures_total",
		Help: "The total number of device results that did not match the host reference",
	}, []string{"workload"})
)

// Transfer directions.
const (
	DirectionHostToDevice   = "host_to_device"
	DirectionDeviceToHost   = "device_to_host"
	DirectionDeviceToDevice = "device_to_device"
)

// WriteTextfile writes every registered metric to path in the text exposition
// format, for collection by a node exporter textfile collector.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
