package gpu

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"
	"go.uber.org/zap"
	xcpu "golang.org/x/sys/cpu"
)

const (
	hostPlatformName = "Host"
	// hostLocalMemSize approximates a per-core L1 data cache used as work-group local memory.
	hostLocalMemSize = 32 << 10
	hostWorkGroupMax = 1024
)

// HostPlatform exposes the host CPU as a single CPU-class device.
type HostPlatform struct {
	logger *zap.Logger

	once   sync.Once
	device *Device
}

// NewHostPlatform creates the host platform. Device metadata is queried lazily.
func NewHostPlatform(logger *zap.Logger) *HostPlatform {
	return &HostPlatform{logger: logger}
}

func (p *HostPlatform) Info() PlatformInfo {
	return PlatformInfo{
		Name:    hostPlatformName,
		Vendor:  "gpu-examples",
		Version: runtime.Version(),
	}
}

func (p *HostPlatform) Devices(t DeviceType) ([]*Device, error) {
	p.once.Do(func() {
		p.device = NewDevice(p.describe())
	})
	return filterDevices([]*Device{p.device}, t)
}

func (p *HostPlatform) describe() DeviceInfo {
	info := DeviceInfo{
		Name:              fmt.Sprintf("CPU (%s)", runtime.GOARCH),
		Vendor:            runtime.GOOS,
		Version:           "emulated 1.2",
		DriverVersion:     runtime.Version(),
		Platform:          hostPlatformName,
		Type:              DeviceTypeCPU,
		MaxComputeUnits:   runtime.NumCPU(),
		MaxWorkGroupSize:  hostWorkGroupMax,
		MaxWorkItemSizes:  [3]int{hostWorkGroupMax, hostWorkGroupMax, hostWorkGroupMax},
		LocalMemSize:      hostLocalMemSize,
		GlobalMemSize:     getTotalSystemMemory(p.logger),
		Extensions:        cpuExtensions(),
		CompilerAvailable: true,
		LinkerAvailable:   true,
	}
	info.AvailableMemory = getAvailableSystemMemory(p.logger, info.GlobalMemSize)

	if stats, err := cpu.Info(); err == nil && len(stats) > 0 && stats[0].ModelName != "" {
		info.Name = stats[0].ModelName
		if stats[0].VendorID != "" {
			info.Vendor = stats[0].VendorID
		}
	} else if err != nil {
		p.logger.Debug("failed to query CPU model", zap.Error(err))
	}
	return info
}

// getTotalSystemMemory returns total system memory in bytes
func getTotalSystemMemory(logger *zap.Logger) int64 {
	vm, err := mem.VirtualMemory()
	if err != nil {
		logger.Debug("failed to query system memory, assuming 8GB", zap.Error(err))
		return 8 << 30
	}
	return int64(vm.Total)
}

// getAvailableSystemMemory returns available system memory in bytes
func getAvailableSystemMemory(logger *zap.Logger, total int64) int64 {
	vm, err := mem.VirtualMemory()
	if err != nil {
		logger.Debug("failed to query available memory", zap.Error(err))
		return total / 2
	}
	return int64(vm.Available)
}

// cpuExtensions lists the SIMD features of the host, in the style of a device
// extension string.
func cpuExtensions() []string {
	var ext []string
	add := func(ok bool, name string) {
		if ok {
			ext = append(ext, name)
		}
	}
	add(xcpu.X86.HasSSE42, "sse4.2")
	add(xcpu.X86.HasAVX, "avx")
	add(xcpu.X86.HasAVX2, "avx2")
	add(xcpu.X86.HasFMA, "fma")
	add(xcpu.X86.HasAVX512F, "avx512f")
	add(xcpu.ARM64.HasASIMD, "asimd")
	add(xcpu.ARM64.HasFPHP, "fp16")
	add(xcpu.ARM64.HasATOMICS, "lse-atomics")
	return ext
}
