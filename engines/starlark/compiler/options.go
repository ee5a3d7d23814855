package compiler

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/robbyt/go-polyexpr/internal/helpers"
	"go.starlark.net/syntax"
)

// FunctionalOption is a function that configures a Compiler instance
type FunctionalOption func(*Compiler) error

// WithFileOptions sets the dialect used to parse expressions and the rendered container.
func WithFileOptions(opts *syntax.FileOptions) FunctionalOption {
	return func(c *Compiler) error {
		if opts == nil {
			return fmt.Errorf("file options cannot be nil")
		}
		c.fileOptions = opts
		return nil
	}
}

// WithLogHandler creates an option to set the log handler for the Starlark compiler.
func WithLogHandler(handler slog.Handler) FunctionalOption {
	return func(c *Compiler) error {
		if handler == nil {
			return fmt.Errorf("log handler cannot be nil")
		}
		c.logHandler = handler
		// Clear logger if handler is explicitly set
		c.logger = nil
		return nil
	}
}

// WithLogger creates an option to set a specific logger for the Starlark compiler.
func WithLogger(logger *slog.Logger) FunctionalOption {
	return func(c *Compiler) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		c.logger = logger
		// Clear handler if logger is explicitly set
		c.logHandler = nil
		return nil
	}
}

// setupLogger configures the logger and handler based on the current state.
func (c *Compiler) setupLogger() {
	if c.logger != nil {
		c.logHandler = c.logger.Handler()
	} else {
		c.logHandler, c.logger = helpers.SetupLogger(c.logHandler, "starlark", "Compiler")
	}
}

// validate checks if the compiler configuration is valid
func (c *Compiler) validate() error {
	if c.logHandler == nil && c.logger == nil {
		return fmt.Errorf("either log handler or logger must be specified")
	}
	if c.fileOptions == nil {
		return fmt.Errorf("file options must be specified")
	}
	return nil
}

// applyDefaults sets the default values for a compiler
func (c *Compiler) applyDefaults() {
	if c.logHandler == nil && c.logger == nil {
		c.logHandler = slog.NewTextHandler(os.Stderr, nil)
	}
	if c.fileOptions == nil {
		c.fileOptions = DefaultFileOptions()
	}
}

// DefaultFileOptions is the dialect expressions are written in: no top-level control flow,
// no recursion, no global reassignment.
func DefaultFileOptions() *syntax.FileOptions {
	return &syntax.FileOptions{
		Set:   true,
		While: true,
	}
}
