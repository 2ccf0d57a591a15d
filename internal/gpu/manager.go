package gpu

import (
	"sync"

	"github.com/fxnlabs/gpu-examples/internal/config"
	"go.uber.org/zap"
)

// Manager handles device discovery and holds the device selected for the run.
type Manager struct {
	platforms []Platform
	selector  Selector
	device    *Device
	mu        sync.RWMutex
	logger    *zap.Logger
}

// NewManager selects a device satisfying predicate from platforms using the
// selector's policy.
func NewManager(platforms []Platform, selector Selector, predicate Predicate, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Manager{
		platforms: platforms,
		selector:  selector,
		logger:    logger,
	}

	if err := m.detect(predicate); err != nil {
		return nil, err
	}

	return m, nil
}

// NewManagerFromConfig builds platforms, policy and predicate from configuration.
func NewManagerFromConfig(cfg *config.Config, logger *zap.Logger) (*Manager, error) {
	platforms, err := Platforms(cfg, logger)
	if err != nil {
		return nil, err
	}
	predicate, policy, err := SelectionFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return NewManager(platforms, Selector{Policy: policy}, predicate, logger)
}

// SelectionFromConfig converts the selection section into a predicate and policy.
func SelectionFromConfig(cfg *config.Config) (Predicate, Policy, error) {
	t, err := ParseDeviceType(cfg.Selection.DeviceType)
	if err != nil {
		return Predicate{}, "", err
	}
	policy, err := ParsePolicy(cfg.Selection.Policy)
	if err != nil {
		return Predicate{}, "", err
	}
	return Predicate{
		Type:            t,
		MinComputeUnits: cfg.Selection.MinComputeUnits,
		Platform:        cfg.Selection.Platform,
	}, policy, nil
}

// detect runs selection once and records the result
func (m *Manager) detect(predicate Predicate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	device, err := m.selector.Select(m.platforms, predicate)
	if err != nil {
		return err
	}
	m.device = device
	m.logger.Info("device selected",
		zap.String("device", device.Name()),
		zap.String("type", string(device.Type())),
		zap.Int("compute_units", device.ComputeUnits()),
		zap.String("policy", string(m.selector.Policy)))
	return nil
}

// Device returns the selected device, or nil after Cleanup.
func (m *Manager) Device() *Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.device
}

// FindDevice selects an additional device, for example the CPU counterpart of
// a GPU comparison run. The selected device of the manager is unchanged.
func (m *Manager) FindDevice(predicate Predicate) (*Device, error) {
	return m.selector.Select(m.platforms, predicate)
}

// Platforms returns the platforms the manager selects from.
func (m *Manager) Platforms() []Platform {
	return m.platforms
}

// GetDeviceInfo returns information about the selected device
func (m *Manager) GetDeviceInfo() DeviceInfo {
	device := m.Device()
	if device == nil {
		return DeviceInfo{Name: "No device selected"}
	}
	return device.Info()
}

// IsGPUAvailable returns true if a GPU-class device is selected
func (m *Manager) IsGPUAvailable() bool {
	device := m.Device()
	return device != nil && device.Type() == DeviceTypeGPU
}

// GetDeviceType returns a string describing the selected device class
func (m *Manager) GetDeviceType() string {
	device := m.Device()
	if device == nil {
		return "none"
	}
	return string(device.Type())
}

// Cleanup releases the selected device. Contexts created on it must be released first.
func (m *Manager) Cleanup() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device != nil {
		m.logger.Debug("releasing device", zap.String("device", m.device.Name()))
		m.device = nil
	}
	return nil
}
