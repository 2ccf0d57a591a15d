package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		config, err := LoadConfig("../../fixtures/tests/config/valid_config.yaml")
		require.NoError(t, err)
		require.NotNil(t, config)

		assert.Equal(t, "debug", config.Logger.Verbosity)
		assert.False(t, config.Logger.Console)
		assert.Equal(t, "gpu", config.Selection.DeviceType)
		assert.Equal(t, 2, config.Selection.MinComputeUnits)
		assert.Equal(t, "most-compute-units", config.Selection.Policy)
		assert.False(t, config.Platforms.Host)
		require.Len(t, config.Platforms.Emulated, 2)
		assert.Equal(t, "Big GPU", config.Platforms.Emulated[1].Name)
		assert.Equal(t, 8, config.Platforms.Emulated[1].ComputeUnits)
		assert.Equal(t, 128, config.MatMul.Size)
		assert.Equal(t, 8, config.MatMul.Tile)
		assert.Equal(t, "simple", config.MatMul.Variant)
		assert.Equal(t, "gonum", config.MatMul.Reference)
		assert.InDelta(t, 0.001, config.MatMul.Tolerance, 1e-12)
		assert.Equal(t, 64, config.Histogram.Bins)
		assert.Equal(t, "/tmp/gpux.prom", config.Metrics.Textfile)
	})

	t.Run("unset fields keep defaults", func(t *testing.T) {
		config, err := LoadConfig("../../fixtures/tests/config/valid_config.yaml")
		require.NoError(t, err)

		assert.Equal(t, uint64(42), config.MatMul.Seed)
		assert.Equal(t, "random", config.MatMul.Fill)
		assert.Equal(t, 256, config.Histogram.LocalSize)
		assert.Equal(t, 1<<20, config.VectorAdd.Size)
	})

	t.Run("empty path yields defaults", func(t *testing.T) {
		config, err := LoadConfig("")
		require.NoError(t, err)
		assert.Equal(t, Default(), config)
		assert.NoError(t, config.Validate())
	})

	t.Run("non-existent file", func(t *testing.T) {
		_, err := LoadConfig("non-existent-file.yaml")
		assert.Error(t, err)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		dir, err := os.Getwd()
		require.NoError(t, err)

		configPath := filepath.Join(dir, "..", "..", "fixtures", "tests", "invalid_config", "config.yaml")
		_, err = LoadConfig(configPath)
		assert.Error(t, err)
	})

	t.Run("invalid policy", func(t *testing.T) {
		_, err := LoadConfig("../../fixtures/tests/config/bad_policy.yaml")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "selection.policy")
	})
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"zero tile", func(c *Config) { c.MatMul.Tile = 0 }, "matmul.tile"},
		{"unknown device type", func(c *Config) { c.Selection.DeviceType = "fpga" }, "deviceType"},
		{"unknown variant", func(c *Config) { c.MatMul.Variant = "blocked" }, "matmul.variant"},
		{"unknown reference", func(c *Config) { c.MatMul.Reference = "blas" }, "matmul.reference"},
		{"zero bins", func(c *Config) { c.Histogram.Bins = 0 }, "histogram.bins"},
		{"unnamed emulated device", func(c *Config) { c.Platforms.Emulated[0].Name = "" }, "name is required"},
		{"negative compute units", func(c *Config) { c.Platforms.Emulated[0].ComputeUnits = -1 }, "computeUnits"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			tc.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
