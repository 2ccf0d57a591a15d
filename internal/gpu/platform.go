package gpu

import (
	"errors"
	"fmt"
)

// ErrNoDevices is returned by a Platform that has no device of the requested type.
// It is an empty result, not a failure: selection skips such platforms.
var ErrNoDevices = errors.New("no devices of the requested type")

// PlatformInfo captures metadata about a platform.
type PlatformInfo struct {
	Name    string `json:"name"`
	Vendor  string `json:"vendor"`
	Version string `json:"version"`
}

// Platform groups devices exposed by one runtime.
type Platform interface {
	Info() PlatformInfo
	// Devices returns the platform's devices of type t in a stable order, or
	// ErrNoDevices when there are none.
	Devices(t DeviceType) ([]*Device, error)
}

// PlatformDevices pairs a platform with every device it exposes.
type PlatformDevices struct {
	Platform PlatformInfo
	Devices  []*Device
}

// Enumerate lists every device of every platform, in platform order.
func Enumerate(platforms []Platform) ([]PlatformDevices, error) {
	out := make([]PlatformDevices, 0, len(platforms))
	for _, p := range platforms {
		devices, err := p.Devices(DeviceTypeAll)
		if err != nil && !errors.Is(err, ErrNoDevices) {
			return nil, fmt.Errorf("failed to enumerate devices on %s: %w", p.Info().Name, err)
		}
		out = append(out, PlatformDevices{Platform: p.Info(), Devices: devices})
	}
	return out, nil
}

// filterDevices keeps the devices matching t, returning ErrNoDevices when none do.
func filterDevices(all []*Device, t DeviceType) ([]*Device, error) {
	var out []*Device
	for _, d := range all {
		if d.Type().Matches(t) {
			out = append(out, d)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoDevices
	}
	return out, nil
}
