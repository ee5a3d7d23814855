package options

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/robbyt/go-polyexpr/isolation"
	"github.com/robbyt/go-polyexpr/isolation/worker"
)

// DefaultConfig initializes a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		handler:     DefaultHandler(),
		workDir:     DefaultWorkDir(),
		permissions: isolation.MinimalPermissions(),
	}
}

// DefaultHandler returns the default logging handler
func DefaultHandler() slog.Handler {
	return slog.NewTextHandler(os.Stderr, nil)
}

// DefaultWorkDir is $TMPDIR/polyexpr
func DefaultWorkDir() string {
	return filepath.Join(os.TempDir(), "polyexpr")
}

// WithDefaults applies default values to any config properties that are unset
func WithDefaults() Option {
	return func(c *Config) error {
		if c.handler == nil {
			c.handler = DefaultHandler()
		}
		if c.workDir == "" {
			c.workDir = DefaultWorkDir()
		}
		if c.runtime == nil {
			c.runtime = worker.New(c.handler)
		}
		return nil
	}
}

// Apply builds a validated Config from opts.
func Apply(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("error applying option: %w", err)
		}
	}
	if err := WithDefaults()(cfg); err != nil {
		return nil, fmt.Errorf("error applying defaults: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
