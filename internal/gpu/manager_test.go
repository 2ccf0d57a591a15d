package gpu

import (
	"testing"

	"github.com/fxnlabs/gpu-examples/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestManager(t *testing.T) {
	manager, err := NewManagerFromConfig(config.Default(), zap.NewNop())
	require.NoError(t, err)
	defer manager.Cleanup()

	// The default configuration declares one emulated GPU.
	require.NotNil(t, manager.Device())
	assert.True(t, manager.IsGPUAvailable())
	assert.Equal(t, "gpu", manager.GetDeviceType())
	assert.Equal(t, "Emulated GPU", manager.GetDeviceInfo().Name)

	cpu, err := manager.FindDevice(Predicate{Type: DeviceTypeCPU, MinComputeUnits: 1})
	require.NoError(t, err)
	assert.Equal(t, DeviceTypeCPU, cpu.Type())

	require.NoError(t, manager.Cleanup())
	assert.Nil(t, manager.Device())
	assert.Equal(t, "none", manager.GetDeviceType())
	assert.Equal(t, "No device selected", manager.GetDeviceInfo().Name)
	assert.False(t, manager.IsGPUAvailable())
	assert.NoError(t, manager.Cleanup())
}

func TestManager_DeviceNotFound(t *testing.T) {
	cfg := config.Default()
	cfg.Platforms.Emulated = nil

	// Only the host CPU is left, which a GPU predicate never matches.
	manager, err := NewManagerFromConfig(cfg, zap.NewNop())
	assert.Nil(t, manager)
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestManager_CPUSelection(t *testing.T) {
	cfg := config.Default()
	cfg.Selection.DeviceType = "cpu"

	manager, err := NewManagerFromConfig(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, manager.IsGPUAvailable())
	assert.Equal(t, "cpu", manager.GetDeviceType())
}

func TestSelectionFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Selection.MinComputeUnits = 3
	cfg.Selection.Policy = "most-compute-units"
	cfg.Selection.Platform = "Emulated"

	predicate, policy, err := SelectionFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, Predicate{Type: DeviceTypeGPU, MinComputeUnits: 3, Platform: "Emulated"}, predicate)
	assert.Equal(t, PolicyMostComputeUnits, policy)

	cfg.Selection.DeviceType = "tpu"
	_, _, err = SelectionFromConfig(cfg)
	assert.Error(t, err)
}
