package main

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/fxnlabs/gpu-examples/internal/config"
	"github.com/fxnlabs/gpu-examples/internal/driver"
	"github.com/fxnlabs/gpu-examples/internal/gpu"
	"github.com/fxnlabs/gpu-examples/internal/kernels"
	"github.com/fxnlabs/gpu-examples/internal/logger"
	"github.com/fxnlabs/gpu-examples/internal/metrics"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

// app carries what every subcommand needs once the Before hook has run.
type app struct {
	stdout io.Writer
	cfg    *config.Config
	log    *zap.Logger
}

func newApp(stdout io.Writer) *cli.App {
	a := &app{stdout: stdout}
	return &cli.App{
		Name:   "gpux",
		Usage:  "Run compute examples on the selected device",
		Writer: stdout,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Load configuration from `FILE`",
				EnvVars: []string{"GPUX_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "verbosity",
				Usage: "Log level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "metrics-textfile",
				Usage: "Write Prometheus metrics to `FILE` when the run ends",
			},
		},
		Before:       a.before,
		After:        a.after,
		OnUsageError: usageError,
		Commands: []*cli.Command{
			platformsCommand(a),
			configCommand(a),
			checkCommand(a),
			copyCommand(a),
			vectorAddCommand(a),
			matMulCommand(a),
			histogramCommand(a),
		},
	}
}

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (a *app) before(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return err
	}
	if c.IsSet("verbosity") {
		cfg.Logger.Verbosity = c.String("verbosity")
	}
	if c.IsSet("metrics-textfile") {
		cfg.Metrics.Textfile = c.String("metrics-textfile")
	}

	opts := []logger.Option{logger.WithOutput("stderr")}
	if cfg.Logger.Console {
		opts = append(opts, logger.WithConsoleEncoding())
	}
	zapLogger, err := logger.New(cfg.Logger.Verbosity, opts...)
	if err != nil {
		return fmt.Errorf("invalid verbosity %q: %w", cfg.Logger.Verbosity, err)
	}
	a.cfg = cfg
	a.log = zapLogger.Named("gpux")
	return nil
}

func (a *app) after(*cli.Context) error {
	if a.cfg == nil {
		return nil
	}
	defer func() { _ = a.log.Sync() }()
	if path := a.cfg.Metrics.Textfile; path != "" {
		if err := metrics.WriteTextfile(path); err != nil {
			return fmt.Errorf("failed to write metrics to %s: %w", path, err)
		}
		a.log.Debug("metrics written", zap.String("path", path))
	}
	return nil
}

// session is one selected device with a driver on it.
type session struct {
	manager *gpu.Manager
	driver  *driver.Driver
}

func (a *app) open() (*session, error) {
	manager, err := gpu.NewManagerFromConfig(a.cfg, a.log.Named("selector"))
	if err != nil {
		return nil, err
	}
	d, err := driver.New(manager.Device(), kernels.Registry(), a.log)
	if err != nil {
		_ = manager.Cleanup()
		return nil, err
	}
	return &session{manager: manager, driver: d}, nil
}

func (s *session) close() {
	_ = s.driver.Close()
	_ = s.manager.Cleanup()
}

var invalidValue = regexp.MustCompile(`invalid value ".*" for flag -(\S+):`)

// usageError rewrites flag parse failures into the messages the programs have
// always printed.
func usageError(_ *cli.Context, err error, _ bool) error {
	msg := err.Error()
	if flag, ok := strings.CutPrefix(msg, "flag provided but not defined: "); ok {
		return fmt.Errorf("Unknown option: %s", flag)
	}
	if m := invalidValue.FindStringSubmatch(msg); m != nil {
		return fmt.Errorf("Invalid -%s value", m[1])
	}
	return err
}
