package runtime

import (
	"fmt"
	"log/slog"

	"github.com/robbyt/go-polyexpr/internal/helpers"
	"go.starlark.net/syntax"
)

// FunctionalOption is a function that configures a Loader instance
type FunctionalOption func(*Loader) error

// WithLogHandler creates an option to set the log handler for the Starlark loader.
func WithLogHandler(handler slog.Handler) FunctionalOption {
	return func(l *Loader) error {
		if handler == nil {
			return fmt.Errorf("log handler cannot be nil")
		}
		l.logHandler = handler
		return nil
	}
}

// WithModuleFileOptions sets the dialect used for resolver-backed module scripts.
func WithModuleFileOptions(opts *syntax.FileOptions) FunctionalOption {
	return func(l *Loader) error {
		if opts == nil {
			return fmt.Errorf("file options cannot be nil")
		}
		l.moduleOptions = opts
		return nil
	}
}

// DefaultModuleFileOptions allows top-level control flow in module scripts, which the
// expressions themselves never need.
func DefaultModuleFileOptions() *syntax.FileOptions {
	return &syntax.FileOptions{
		Set:             true,
		While:           true,
		TopLevelControl: true,
	}
}

func (l *Loader) applyDefaults() {
	if l.moduleOptions == nil {
		l.moduleOptions = DefaultModuleFileOptions()
	}
}

func (l *Loader) setupLogger() {
	l.logHandler, l.logger = helpers.SetupLogger(l.logHandler, "starlark", "Loader")
}
