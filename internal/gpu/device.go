package gpu

import (
	"fmt"
	"strings"
)

// DeviceType describes the capability class of a compute device.
type DeviceType string

const (
	DeviceTypeGPU         DeviceType = "gpu"
	DeviceTypeCPU         DeviceType = "cpu"
	DeviceTypeAccelerator DeviceType = "accelerator"
	// DeviceTypeAll matches every device class when enumerating.
	DeviceTypeAll DeviceType = "all"
)

// ParseDeviceType converts a configuration string into a DeviceType.
func ParseDeviceType(s string) (DeviceType, error) {
	switch t := DeviceType(strings.ToLower(strings.TrimSpace(s))); t {
	case DeviceTypeGPU, DeviceTypeCPU, DeviceTypeAccelerator, DeviceTypeAll:
		return t, nil
	default:
		return "", fmt.Errorf("unknown device type %q", s)
	}
}

// Matches reports whether a device of type t satisfies the raw type filter f.
func (t DeviceType) Matches(f DeviceType) bool {
	return f == DeviceTypeAll || t == f
}

// DeviceInfo contains information about a compute device
type DeviceInfo struct {
	Name              string     `json:"name"`
	Vendor            string     `json:"vendor"`
	Version           string     `json:"version"`
	DriverVersion     string     `json:"driverVersion"`
	Platform          string     `json:"platform"`
	Type              DeviceType `json:"type"`
	MaxComputeUnits   int        `json:"maxComputeUnits"`
	MaxWorkGroupSize  int        `json:"maxWorkGroupSize"`
	MaxWorkItemSizes  [3]int     `json:"maxWorkItemSizes"`
	LocalMemSize      int64      `json:"localMemSize"`    // in bytes
	GlobalMemSize     int64      `json:"globalMemSize"`   // in bytes
	AvailableMemory   int64      `json:"availableMemory"` // in bytes
	Extensions        []string   `json:"extensions,omitempty"`
	CompilerAvailable bool       `json:"compilerAvailable"`
	LinkerAvailable   bool       `json:"linkerAvailable"`
}

// Device is a handle to one compute device discovered on a platform. Devices are
// discovered once per run and never mutated afterwards.
type Device struct {
	info DeviceInfo
}

// NewDevice wraps device metadata into a Device handle.
func NewDevice(info DeviceInfo) *Device {
	info.Extensions = append([]string(nil), info.Extensions...)
	return &Device{info: info}
}

// Info returns a copy of the device metadata.
func (d *Device) Info() DeviceInfo {
	info := d.info
	info.Extensions = append([]string(nil), d.info.Extensions...)
	return info
}

func (d *Device) Name() string             { return d.info.Name }
func (d *Device) Type() DeviceType         { return d.info.Type }
func (d *Device) ComputeUnits() int        { return d.info.MaxComputeUnits }
func (d *Device) MaxWorkGroupSize() int    { return d.info.MaxWorkGroupSize }
func (d *Device) MaxWorkItemSizes() [3]int { return d.info.MaxWorkItemSizes }
func (d *Device) LocalMemSize() int64      { return d.info.LocalMemSize }
func (d *Device) GlobalMemSize() int64     { return d.info.GlobalMemSize }

func (d *Device) String() string {
	return fmt.Sprintf("%s (%s, %d compute units)", d.info.Name, d.info.Type, d.info.MaxComputeUnits)
}
