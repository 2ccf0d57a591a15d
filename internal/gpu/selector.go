package gpu

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDeviceNotFound is returned when no platform yields a device satisfying the predicate.
var ErrDeviceNotFound = errors.New("no suitable device found")

// Predicate is the capability filter a device must satisfy to be selected.
type Predicate struct {
	// Type is the raw type filter passed to each platform.
	Type DeviceType
	// MinComputeUnits is the lowest acceptable compute unit count.
	MinComputeUnits int
	// Platform, when set, restricts selection to platforms with this name (case-insensitive).
	Platform string
}

// GPUPredicate is the default capability predicate: a GPU-class device with at
// least one compute unit.
func GPUPredicate() Predicate {
	return Predicate{Type: DeviceTypeGPU, MinComputeUnits: 1}
}

// Satisfied reports whether d passes the full predicate.
func (p Predicate) Satisfied(d *Device) bool {
	return d.Type().Matches(p.Type) && d.ComputeUnits() >= p.MinComputeUnits
}

func (p Predicate) allowsPlatform(info PlatformInfo) bool {
	return p.Platform == "" || strings.EqualFold(p.Platform, info.Name)
}

func (p Predicate) String() string {
	s := fmt.Sprintf("%s device with >=%d compute units", p.Type, p.MinComputeUnits)
	if p.Platform != "" {
		s += " on platform " + p.Platform
	}
	return s
}

// Policy ranks the devices satisfying a predicate.
type Policy string

const (
	// PolicyFirstMatch picks the first satisfying device in enumeration order.
	PolicyFirstMatch Policy = "first-match"
	// PolicyMostComputeUnits picks the satisfying device with the most compute
	// units; ties keep enumeration order.
	PolicyMostComputeUnits Policy = "most-compute-units"
)

// ParsePolicy converts a configuration string into a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyFirstMatch, PolicyMostComputeUnits:
		return p, nil
	case "":
		return PolicyFirstMatch, nil
	default:
		return "", fmt.Errorf("unknown selection policy %q", s)
	}
}

// Selector picks one device from a platform list.
type Selector struct {
	Policy Policy
}

// SelectDevice returns the first device across platforms satisfying predicate.
func SelectDevice(platforms []Platform, predicate Predicate) (*Device, error) {
	return Selector{Policy: PolicyFirstMatch}.Select(platforms, predicate)
}

// Select enumerates platforms in order and applies the selector's policy to the
// devices satisfying predicate. A platform reporting ErrNoDevices is skipped; any
// other platform error aborts selection.
func (s Selector) Select(platforms []Platform, predicate Predicate) (*Device, error) {
	var best *Device
	for _, p := range platforms {
		if !predicate.allowsPlatform(p.Info()) {
			continue
		}
		devices, err := p.Devices(predicate.Type)
		if errors.Is(err, ErrNoDevices) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to query devices on %s: %w", p.Info().Name, err)
		}
		for _, d := range devices {
			if !predicate.Satisfied(d) {
				continue
			}
			switch s.Policy {
			case PolicyMostComputeUnits:
				if best == nil || d.ComputeUnits() > best.ComputeUnits() {
					best = d
				}
			default:
				return d, nil
			}
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: want %s", ErrDeviceNotFound, predicate)
	}
	return best, nil
}
