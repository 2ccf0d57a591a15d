package gpu

import (
	"fmt"
	"runtime"

	"github.com/fxnlabs/gpu-examples/internal/config"
	"go.uber.org/zap"
)

const emulatedPlatformName = "Emulated"

// EmulatedPlatform exposes devices declared in configuration. Their kernels run on
// host goroutines; the declared limits (compute units, work-group size, local
// memory) are enforced exactly as a driver would enforce hardware limits.
type EmulatedPlatform struct {
	devices []*Device
}

// NewEmulatedPlatform builds devices from the configured declarations. A zero
// compute unit count means one unit per host CPU.
func NewEmulatedPlatform(decls []config.EmulatedDevice) (*EmulatedPlatform, error) {
	p := &EmulatedPlatform{}
	for i, d := range decls {
		t, err := ParseDeviceType(d.Type)
		if err != nil {
			return nil, fmt.Errorf("emulated device %d: %w", i, err)
		}
		if t == DeviceTypeAll {
			return nil, fmt.Errorf("emulated device %d: type must be concrete", i)
		}
		p.devices = append(p.devices, NewDevice(emulatedInfo(d, t)))
	}
	return p, nil
}

func emulatedInfo(d config.EmulatedDevice, t DeviceType) DeviceInfo {
	units := d.ComputeUnits
	if units == 0 {
		units = runtime.NumCPU()
	}
	wg := d.MaxWorkGroupSize
	if wg <= 0 {
		wg = 256
	}
	local := d.LocalMemSize
	if local <= 0 {
		local = 32 << 10
	}
	global := d.GlobalMemSize
	if global <= 0 {
		global = 1 << 30
	}
	vendor := d.Vendor
	if vendor == "" {
		vendor = "gpu-examples"
	}
	return DeviceInfo{
		Name:              d.Name,
		Vendor:            vendor,
		Version:           "emulated 1.2",
		DriverVersion:     runtime.Version(),
		Platform:          emulatedPlatformName,
		Type:              t,
		MaxComputeUnits:   units,
		MaxWorkGroupSize:  wg,
		MaxWorkItemSizes:  [3]int{wg, wg, wg},
		LocalMemSize:      local,
		GlobalMemSize:     global,
		AvailableMemory:   global,
		CompilerAvailable: true,
		LinkerAvailable:   true,
	}
}

func (p *EmulatedPlatform) Info() PlatformInfo {
	return PlatformInfo{
		Name:    emulatedPlatformName,
		Vendor:  "gpu-examples",
		Version: "1.2",
	}
}

func (p *EmulatedPlatform) Devices(t DeviceType) ([]*Device, error) {
	return filterDevices(p.devices, t)
}

// Platforms builds the platform list from configuration in enumeration order:
// the emulated platform first, then the host.
func Platforms(cfg *config.Config, logger *zap.Logger) ([]Platform, error) {
	var platforms []Platform
	if len(cfg.Platforms.Emulated) > 0 {
		emulated, err := NewEmulatedPlatform(cfg.Platforms.Emulated)
		if err != nil {
			return nil, err
		}
		platforms = append(platforms, emulated)
	}
	if cfg.Platforms.Host {
		platforms = append(platforms, NewHostPlatform(logger.Named("host")))
	}
	if len(platforms) == 0 {
		return nil, fmt.Errorf("no platforms configured")
	}
	return platforms, nil
}
