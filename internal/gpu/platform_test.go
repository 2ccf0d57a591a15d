package gpu

import (
	"runtime"
	"testing"

	"github.com/fxnlabs/gpu-examples/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHostPlatform(t *testing.T) {
	platform := NewHostPlatform(zap.NewNop())
	assert.Equal(t, "Host", platform.Info().Name)

	devices, err := platform.Devices(DeviceTypeCPU)
	require.NoError(t, err)
	require.Len(t, devices, 1)

	info := devices[0].Info()
	assert.NotEmpty(t, info.Name)
	assert.Equal(t, DeviceTypeCPU, info.Type)
	assert.Equal(t, runtime.NumCPU(), info.MaxComputeUnits)
	assert.Greater(t, info.GlobalMemSize, int64(0))
	assert.Greater(t, info.LocalMemSize, int64(0))
	assert.True(t, info.CompilerAvailable)

	// Repeated queries return the same handle.
	again, err := platform.Devices(DeviceTypeAll)
	require.NoError(t, err)
	assert.Same(t, devices[0], again[0])

	_, err = platform.Devices(DeviceTypeGPU)
	assert.ErrorIs(t, err, ErrNoDevices)
}

func TestEmulatedPlatform(t *testing.T) {
	t.Run("declared devices", func(t *testing.T) {
		platform, err := NewEmulatedPlatform([]config.EmulatedDevice{
			{Name: "gpu0", Type: "gpu", ComputeUnits: 4, MaxWorkGroupSize: 512, LocalMemSize: 16384},
			{Name: "npu0", Type: "accelerator", ComputeUnits: 2},
		})
		require.NoError(t, err)

		gpus, err := platform.Devices(DeviceTypeGPU)
		require.NoError(t, err)
		require.Len(t, gpus, 1)
		info := gpus[0].Info()
		assert.Equal(t, "gpu0", info.Name)
		assert.Equal(t, 4, info.MaxComputeUnits)
		assert.Equal(t, 512, info.MaxWorkGroupSize)
		assert.Equal(t, [3]int{512, 512, 512}, info.MaxWorkItemSizes)
		assert.Equal(t, int64(16384), info.LocalMemSize)
		assert.Equal(t, "Emulated", info.Platform)

		all, err := platform.Devices(DeviceTypeAll)
		require.NoError(t, err)
		assert.Len(t, all, 2)

		_, err = platform.Devices(DeviceTypeCPU)
		assert.ErrorIs(t, err, ErrNoDevices)
	})

	t.Run("zero compute units means host cores", func(t *testing.T) {
		platform, err := NewEmulatedPlatform([]config.EmulatedDevice{{Name: "auto", Type: "gpu"}})
		require.NoError(t, err)
		devices, err := platform.Devices(DeviceTypeGPU)
		require.NoError(t, err)
		assert.Equal(t, runtime.NumCPU(), devices[0].ComputeUnits())
		assert.Equal(t, 256, devices[0].MaxWorkGroupSize())
	})

	t.Run("invalid type", func(t *testing.T) {
		_, err := NewEmulatedPlatform([]config.EmulatedDevice{{Name: "x", Type: "fpga"}})
		assert.Error(t, err)

		_, err = NewEmulatedPlatform([]config.EmulatedDevice{{Name: "x", Type: "all"}})
		assert.Error(t, err)
	})
}

func TestPlatforms(t *testing.T) {
	cfg := config.Default()
	platforms, err := Platforms(cfg, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, platforms, 2)
	assert.Equal(t, "Emulated", platforms[0].Info().Name)
	assert.Equal(t, "Host", platforms[1].Info().Name)

	cfg.Platforms.Host = false
	cfg.Platforms.Emulated = nil
	_, err = Platforms(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestFormatMemory(t *testing.T) {
	testCases := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KB"},
		{64 << 10, "64.0 KB"},
		{1536 << 20, "1.5 GB"},
		{3 << 40, "3.0 TB"},
		{2048 << 40, "2048.0 TB"},
	}
	for _, tc := range testCases {
		t.Run(tc.want, func(t *testing.T) {
			assert.Equal(t, tc.want, FormatMemory(tc.bytes))
		})
	}
}
