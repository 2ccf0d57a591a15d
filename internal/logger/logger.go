package logger

import (
	"go.uber.org/zap"
)

// Option adjusts the zap configuration before the logger is built.
type Option func(*zap.Config)

// WithConsoleEncoding switches from JSON to the human-readable console encoder.
func WithConsoleEncoding() Option {
	return func(c *zap.Config) {
		c.Encoding = "console"
		c.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
}

// WithOutput redirects log output (and internal zap errors) to the given paths.
func WithOutput(paths ...string) Option {
	return func(c *zap.Config) {
		c.OutputPaths = paths
		c.ErrorOutputPaths = paths
	}
}

func New(verbosity string, opts ...Option) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	level, err := zap.ParseAtomicLevel(verbosity)
	if err != nil {
		return nil, err
	}
	config.Level = level
	for _, opt := range opts {
		opt(&config)
	}
	return config.Build()
}
