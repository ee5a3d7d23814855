package options

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robbyt/go-polyexpr/isolation"
)

// Config holds all configuration for compiling an expression set
type Config struct {
	// Logger for the pipeline and everything it creates
	handler slog.Handler
	// Runtime that creates isolation contexts
	runtime isolation.Runtime
	// Directory holding compiled artifacts
	workDir string
	// Grants for every isolation context
	permissions isolation.Permissions
	// Registerer for metrics, nil disables them
	registerer prometheus.Registerer
}

// Option is a function that modifies Config
type Option func(*Config) error

// WithLogHandler sets the log handler
func WithLogHandler(handler slog.Handler) Option {
	return func(c *Config) error {
		if handler != nil {
			c.handler = handler
		}
		return nil
	}
}

// WithRuntime selects the isolation runtime
func WithRuntime(rt isolation.Runtime) Option {
	return func(c *Config) error {
		if rt == nil {
			return fmt.Errorf("isolation runtime cannot be nil")
		}
		c.runtime = rt
		return nil
	}
}

// WithWorkDir sets the directory artifacts are written to. It becomes the anchor of
// every isolation context.
func WithWorkDir(dir string) Option {
	return func(c *Config) error {
		if dir == "" {
			return fmt.Errorf("work directory cannot be empty")
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("invalid work directory: %w", err)
		}
		c.workDir = abs
		return nil
	}
}

// WithPermissions replaces the permission set granted to isolation contexts
func WithPermissions(perms isolation.Permissions) Option {
	return func(c *Config) error {
		c.permissions = perms
		return nil
	}
}

// WithRegisterer enables prometheus metrics on reg
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Config) error {
		c.registerer = reg
		return nil
	}
}

// Validate performs basic validation on the configuration
func (c *Config) Validate() error {
	if c.handler == nil {
		return fmt.Errorf("no log handler specified")
	}
	if c.runtime == nil {
		return fmt.Errorf("no isolation runtime specified")
	}
	if c.workDir == "" || !filepath.IsAbs(c.workDir) {
		return fmt.Errorf("work directory must be absolute: %q", c.workDir)
	}
	return nil
}

// GetHandler returns the configured logger
func (c *Config) GetHandler() slog.Handler {
	return c.handler
}

// GetRuntime returns the configured isolation runtime
func (c *Config) GetRuntime() isolation.Runtime {
	return c.runtime
}

// GetWorkDir returns the artifact directory
func (c *Config) GetWorkDir() string {
	return c.workDir
}

// GetPermissions returns the permission set for isolation contexts
func (c *Config) GetPermissions() isolation.Permissions {
	return c.permissions
}

// GetRegisterer returns the metrics registerer, nil when metrics are disabled
func (c *Config) GetRegisterer() prometheus.Registerer {
	return c.registerer
}
