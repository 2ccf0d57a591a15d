package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// EmulatedDevice declares a device exposed by the emulated platform.
type EmulatedDevice struct {
	Name             string `yaml:"name"`
	Vendor           string `yaml:"vendor"`
	Type             string `yaml:"type"`
	ComputeUnits     int    `yaml:"computeUnits"` // 0 means runtime.NumCPU()
	MaxWorkGroupSize int    `yaml:"maxWorkGroupSize"`
	LocalMemSize     int64  `yaml:"localMemSize"`
	GlobalMemSize    int64  `yaml:"globalMemSize"`
}

type Config struct {
	Logger struct {
		Verbosity string `yaml:"verbosity"`
		Console   bool   `yaml:"console"`
	} `yaml:"logger"`
	Selection struct {
		DeviceType      string `yaml:"deviceType"`
		MinComputeUnits int    `yaml:"minComputeUnits"`
		Policy          string `yaml:"policy"`
		Platform        string `yaml:"platform"`
	} `yaml:"selection"`
	Platforms struct {
		Host     bool             `yaml:"host"`
		Emulated []EmulatedDevice `yaml:"emulated"`
	} `yaml:"platforms"`
	MatMul struct {
		Size      int     `yaml:"size"`
		Tile      int     `yaml:"tile"`
		Kernel    string  `yaml:"kernel"`
		Variant   string  `yaml:"variant"`
		Fill      string  `yaml:"fill"`
		Seed      uint64  `yaml:"seed"`
		Runs      int     `yaml:"runs"`
		Reference string  `yaml:"reference"`
		Tolerance float64 `yaml:"tolerance"`
	} `yaml:"matmul"`
	VectorAdd struct {
		Size       int     `yaml:"size"`
		Kernel     string  `yaml:"kernel"`
		CompareCPU bool    `yaml:"compareCPU"`
		Tolerance  float64 `yaml:"tolerance"`
	} `yaml:"vectoradd"`
	Histogram struct {
		Size      int    `yaml:"size"`
		Bins      int    `yaml:"bins"`
		LocalSize int    `yaml:"localSize"`
		Kernel    string `yaml:"kernel"`
		Seed      uint64 `yaml:"seed"`
	} `yaml:"histogram"`
	Metrics struct {
		Textfile string `yaml:"textfile"`
	} `yaml:"metrics"`
}

// Default returns the configuration used when no file is given. Values mirror the
// sizes the demo programs have always run with.
func Default() *Config {
	var c Config
	c.Logger.Verbosity = "info"
	c.Logger.Console = true

	c.Selection.DeviceType = "gpu"
	c.Selection.MinComputeUnits = 1
	c.Selection.Policy = "first-match"

	c.Platforms.Host = true
	c.Platforms.Emulated = []EmulatedDevice{{
		Name:             "Emulated GPU",
		Vendor:           "gpu-examples",
		Type:             "gpu",
		MaxWorkGroupSize: 1024,
		LocalMemSize:     64 << 10,
		GlobalMemSize:    4 << 30,
	}}

	c.MatMul.Size = 256
	c.MatMul.Tile = 16
	c.MatMul.Variant = "tiled"
	c.MatMul.Fill = "random"
	c.MatMul.Seed = 42
	c.MatMul.Runs = 1
	c.MatMul.Reference = "transpose"
	c.MatMul.Tolerance = 1e-4

	c.VectorAdd.Size = 1 << 20
	c.VectorAdd.CompareCPU = true
	c.VectorAdd.Tolerance = 1e-4

	c.Histogram.Size = 1 << 20
	c.Histogram.Bins = 256
	c.Histogram.LocalSize = 256
	c.Histogram.Seed = 42
	return &c
}

// LoadConfig reads a YAML file on top of Default. An empty path yields the defaults.
func LoadConfig(path string) (*Config, error) {
	config := Default()
	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	err = yaml.Unmarshal(data, config)
	if err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return config, nil
}

// Validate rejects values no workload can run with.
func (c *Config) Validate() error {
	switch c.Selection.DeviceType {
	case "gpu", "cpu", "accelerator", "all":
	default:
		return fmt.Errorf("unknown selection.deviceType %q", c.Selection.DeviceType)
	}
	switch c.Selection.Policy {
	case "first-match", "most-compute-units":
	default:
		return fmt.Errorf("unknown selection.policy %q", c.Selection.Policy)
	}
	for i, d := range c.Platforms.Emulated {
		if d.Name == "" {
			return fmt.Errorf("platforms.emulated[%d]: name is required", i)
		}
		switch d.Type {
		case "gpu", "cpu", "accelerator":
		default:
			return fmt.Errorf("platforms.emulated[%d]: unknown type %q", i, d.Type)
		}
		if d.ComputeUnits < 0 {
			return fmt.Errorf("platforms.emulated[%d]: computeUnits must not be negative", i)
		}
	}
	if c.MatMul.Tile <= 0 {
		return fmt.Errorf("matmul.tile must be positive, got %d", c.MatMul.Tile)
	}
	switch c.MatMul.Variant {
	case "simple", "tiled", "private":
	default:
		return fmt.Errorf("unknown matmul.variant %q", c.MatMul.Variant)
	}
	switch c.MatMul.Fill {
	case "random", "formula":
	default:
		return fmt.Errorf("unknown matmul.fill %q", c.MatMul.Fill)
	}
	switch c.MatMul.Reference {
	case "none", "naive", "transpose", "tiled", "gonum", "freivalds":
	default:
		return fmt.Errorf("unknown matmul.reference %q", c.MatMul.Reference)
	}
	if c.Histogram.Bins <= 0 {
		return fmt.Errorf("histogram.bins must be positive, got %d", c.Histogram.Bins)
	}
	if c.Histogram.LocalSize <= 0 {
		return fmt.Errorf("histogram.localSize must be positive, got %d", c.Histogram.LocalSize)
	}
	return nil
}
