package main

import (
	"fmt"
	"strings"

	"github.com/common-nighthawk/go-figure"
	"github.com/fxnlabs/gpu-examples/internal/driver"
	"github.com/fxnlabs/gpu-examples/internal/gpu"
	"github.com/fxnlabs/gpu-examples/internal/kernels"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const defaultCopySize = 1024

func kernelFlag() cli.Flag {
	return &cli.StringFlag{Name: "kernel", Usage: "Read kernel source from `FILE` instead of the embedded one"}
}

func sizeFlag(usage string) cli.Flag {
	return &cli.IntFlag{Name: "size", Usage: usage}
}

// positive reads an int flag that was given on the command line, rejecting
// values below least.
func positive(c *cli.Context, name string, least int, value *int) error {
	if !c.IsSet(name) {
		return nil
	}
	v := c.Int(name)
	if v < least {
		return fmt.Errorf("Invalid -%s value", name)
	}
	*value = v
	return nil
}

func platformsCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:         "platforms",
		Usage:        "List every platform and device",
		OnUsageError: usageError,
		Action: func(c *cli.Context) error {
			platforms, err := gpu.Platforms(a.cfg, a.log)
			if err != nil {
				return err
			}
			listing, err := gpu.Enumerate(platforms)
			if err != nil {
				return err
			}

			w := a.stdout
			fmt.Fprintln(w, figure.NewFigure("gpux", "", true).String())
			for _, p := range listing {
				fmt.Fprintf(w, "Platform: %s\n", p.Platform.Name)
				fmt.Fprintf(w, "Version: %s\n", p.Platform.Version)
				fmt.Fprintf(w, "Vendor: %s\n\n", p.Platform.Vendor)
				for _, d := range p.Devices {
					info := d.Info()
					fmt.Fprintf(w, "  Device: %s\n", info.Name)
					fmt.Fprintf(w, "  Type: %s\n", info.Type)
					fmt.Fprintf(w, "  Version: %s\n", info.Version)
					fmt.Fprintf(w, "  Compute units: %d\n", info.MaxComputeUnits)
					fmt.Fprintf(w, "  Max work item sizes: %d %d %d\n",
						info.MaxWorkItemSizes[0], info.MaxWorkItemSizes[1], info.MaxWorkItemSizes[2])
					fmt.Fprintf(w, "  Max work group size: %d\n", info.MaxWorkGroupSize)
					fmt.Fprintf(w, "  Local memory: %s\n", gpu.FormatMemory(info.LocalMemSize))
					fmt.Fprintf(w, "  Global memory: %s\n", gpu.FormatMemory(info.GlobalMemSize))
					fmt.Fprintf(w, "  Compiler: %s\n", yesNo(info.CompilerAvailable))
					fmt.Fprintf(w, "  Linker: %s\n\n", yesNo(info.LinkerAvailable))
				}
			}
			return nil
		},
	}
}

func configCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:         "config",
		Usage:        "Print the effective configuration as YAML",
		OnUsageError: usageError,
		Action: func(c *cli.Context) error {
			out, err := yaml.Marshal(a.cfg)
			if err != nil {
				return err
			}
			_, err = a.stdout.Write(out)
			return err
		},
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func checkCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:         "check",
		Usage:        "Describe the selected device and run a single task on it",
		OnUsageError: usageError,
		Flags:        []cli.Flag{kernelFlag()},
		Action: func(c *cli.Context) error {
			src, err := kernels.LoadSource(c.String("kernel"), kernels.FileSingleTask)
			if err != nil {
				return err
			}
			s, err := a.open()
			if err != nil {
				return err
			}
			defer s.close()

			report := s.driver.Check(src)
			report.Print(a.stdout)
			if !report.Available {
				return fmt.Errorf("device %s is not usable: %w", report.Info.Name, report.Err)
			}
			return nil
		},
	}
}

func copyCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:         "copy",
		Usage:        "Send a buffer to the device, copy it there and read it back",
		OnUsageError: usageError,
		Flags:        []cli.Flag{sizeFlag("Number of elements")},
		Action: func(c *cli.Context) error {
			n := defaultCopySize
			if err := positive(c, "size", 1, &n); err != nil {
				return err
			}
			s, err := a.open()
			if err != nil {
				return err
			}
			defer s.close()

			report, err := s.driver.BufferRoundTrip(n)
			if err != nil {
				return err
			}
			report.Print(a.stdout)
			if !report.Matched {
				return fmt.Errorf("buffer round trip on %s returned different data", report.Device)
			}
			return nil
		},
	}
}

func vectorAddCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:         "vectoradd",
		Usage:        "Add two vectors on the device",
		OnUsageError: usageError,
		Flags: []cli.Flag{
			sizeFlag("Vector length"),
			kernelFlag(),
			&cli.BoolFlag{Name: "compare-cpu", Usage: "Also run on the host CPU device and compare"},
		},
		Action: func(c *cli.Context) error {
			cfg := a.cfg.VectorAdd
			if err := positive(c, "size", 0, &cfg.Size); err != nil {
				return err
			}
			if c.IsSet("kernel") {
				cfg.Kernel = c.String("kernel")
			}
			if c.IsSet("compare-cpu") {
				cfg.CompareCPU = c.Bool("compare-cpu")
			}
			src, err := kernels.LoadSource(cfg.Kernel, kernels.FileVectorAdd)
			if err != nil {
				return err
			}
			s, err := a.open()
			if err != nil {
				return err
			}
			defer s.close()

			opts := driver.VectorAddOptions{Source: src, N: cfg.Size, Tolerance: cfg.Tolerance}
			if cfg.CompareCPU {
				cpu, err := a.cpuDriver(s)
				if err != nil {
					return err
				}
				if cpu != nil {
					defer cpu.Close()
					opts.Compare = cpu
				}
			}
			report, err := s.driver.VectorAdd(opts)
			if err != nil {
				return err
			}
			report.Print(a.stdout)
			return nil
		},
	}
}

// cpuDriver opens a driver on a CPU-class device other than the selected one.
// It returns nil when there is none.
func (a *app) cpuDriver(s *session) (*driver.Driver, error) {
	device, err := s.manager.FindDevice(gpu.Predicate{Type: gpu.DeviceTypeCPU, MinComputeUnits: 1})
	if err != nil {
		a.log.Warn("no CPU device to compare against", zap.Error(err))
		return nil, nil
	}
	if device == s.manager.Device() {
		return nil, nil
	}
	return driver.New(device, kernels.Registry(), a.log)
}

func matMulCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:         "matmul",
		Usage:        "Multiply two square matrices on the device",
		OnUsageError: usageError,
		Flags: []cli.Flag{
			sizeFlag("Matrix dimension N"),
			&cli.IntFlag{Name: "tile", Usage: "Tile (work-group) edge T"},
			kernelFlag(),
			&cli.StringFlag{Name: "variant", Usage: "Kernel variant: simple, tiled or private"},
			&cli.StringFlag{Name: "fill", Usage: "Operand fill: random or formula"},
			&cli.Uint64Flag{Name: "seed", Usage: "Seed for random operands"},
			&cli.IntFlag{Name: "runs", Usage: "Number of repeated runs"},
			&cli.StringFlag{Name: "reference", Usage: "Host check: " + strings.Join(references, ", ")},
		},
		Action: func(c *cli.Context) error {
			cfg := a.cfg.MatMul
			if err := positive(c, "size", 0, &cfg.Size); err != nil {
				return err
			}
			if err := positive(c, "tile", 1, &cfg.Tile); err != nil {
				return err
			}
			if err := positive(c, "runs", 1, &cfg.Runs); err != nil {
				return err
			}
			for name, dst := range map[string]*string{
				"kernel":    &cfg.Kernel,
				"variant":   &cfg.Variant,
				"fill":      &cfg.Fill,
				"reference": &cfg.Reference,
			} {
				if c.IsSet(name) {
					*dst = c.String(name)
				}
			}
			if c.IsSet("seed") {
				cfg.Seed = c.Uint64("seed")
			}

			variant, err := kernels.ParseVariant(cfg.Variant)
			if err != nil {
				return err
			}
			src, err := kernels.LoadSource(cfg.Kernel, variant.File())
			if err != nil {
				return err
			}
			s, err := a.open()
			if err != nil {
				return err
			}
			defer s.close()

			report, err := s.driver.MatMul(driver.MatMulOptions{
				Source:    src,
				Variant:   variant,
				N:         cfg.Size,
				Tile:      cfg.Tile,
				Fill:      cfg.Fill,
				Seed:      cfg.Seed,
				Runs:      cfg.Runs,
				Reference: cfg.Reference,
				Tolerance: cfg.Tolerance,
			})
			if err != nil {
				return err
			}
			report.Print(a.stdout)
			return nil
		},
	}
}

var references = []string{
	driver.ReferenceNone,
	driver.ReferenceNaive,
	driver.ReferenceTranspose,
	driver.ReferenceTiled,
	driver.ReferenceGonum,
	driver.ReferenceFreivalds,
}

func histogramCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:         "histogram",
		Usage:        "Count random values into bins on the device",
		OnUsageError: usageError,
		Flags: []cli.Flag{
			sizeFlag("Number of input values"),
			&cli.IntFlag{Name: "bins", Usage: "Number of bins"},
			&cli.IntFlag{Name: "local-size", Usage: "Work-group size"},
			&cli.Uint64Flag{Name: "seed", Usage: "Seed for the input values"},
			kernelFlag(),
		},
		Action: func(c *cli.Context) error {
			cfg := a.cfg.Histogram
			if err := positive(c, "size", 0, &cfg.Size); err != nil {
				return err
			}
			if err := positive(c, "bins", 1, &cfg.Bins); err != nil {
				return err
			}
			if err := positive(c, "local-size", 1, &cfg.LocalSize); err != nil {
				return err
			}
			if c.IsSet("seed") {
				cfg.Seed = c.Uint64("seed")
			}
			if c.IsSet("kernel") {
				cfg.Kernel = c.String("kernel")
			}
			src, err := kernels.LoadSource(cfg.Kernel, kernels.FileHistogram)
			if err != nil {
				return err
			}
			s, err := a.open()
			if err != nil {
				return err
			}
			defer s.close()

			report, err := s.driver.Histogram(driver.HistogramOptions{
				Source:    src,
				N:         cfg.Size,
				Bins:      cfg.Bins,
				LocalSize: cfg.LocalSize,
				Seed:      cfg.Seed,
			})
			if err != nil {
				return err
			}
			report.Print(a.stdout)
			return nil
		},
	}
}
