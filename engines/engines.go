// Package engines maps an expression language to its compilation backend and its
// in-isolate loader.
package engines

import (
	"context"
	"fmt"
	"log/slog"

	risorCompiler "github.com/robbyt/go-polyexpr/engines/risor/compiler"
	risorRuntime "github.com/robbyt/go-polyexpr/engines/risor/runtime"
	starlarkCompiler "github.com/robbyt/go-polyexpr/engines/starlark/compiler"
	starlarkRuntime "github.com/robbyt/go-polyexpr/engines/starlark/runtime"
	"github.com/robbyt/go-polyexpr/platform"
	"github.com/robbyt/go-polyexpr/platform/artifact"
	"github.com/robbyt/go-polyexpr/platform/container"
	"github.com/robbyt/go-polyexpr/platform/language"
	"github.com/robbyt/go-polyexpr/platform/unit"
)

// Compiler turns an abstract unit into an artifact stored in dir.
type Compiler interface {
	Compile(ctx context.Context, u *unit.Unit, dir string) (*artifact.Handle, error)
}

// NewCompiler returns the compilation backend for lang. A nil handler selects the
// backend's default logger.
func NewCompiler(lang language.Type, handler slog.Handler) (Compiler, error) {
	switch lang {
	case language.Starlark:
		var opts []starlarkCompiler.FunctionalOption
		if handler != nil {
			opts = append(opts, starlarkCompiler.WithLogHandler(handler))
		}
		return starlarkCompiler.New(opts...)
	case language.Risor:
		var opts []risorCompiler.FunctionalOption
		if handler != nil {
			opts = append(opts, risorCompiler.WithLogHandler(handler))
		}
		return risorCompiler.New(opts...)
	default:
		return nil, fmt.Errorf("%w: no compiler for language %q", platform.ErrInvalidInput, lang)
	}
}

// NewLoader returns the loader that runs artifacts of lang inside an isolation context.
func NewLoader(lang language.Type, handler slog.Handler) (container.Loader, error) {
	switch lang {
	case language.Starlark:
		var opts []starlarkRuntime.FunctionalOption
		if handler != nil {
			opts = append(opts, starlarkRuntime.WithLogHandler(handler))
		}
		return starlarkRuntime.New(opts...)
	case language.Risor:
		return risorRuntime.New(handler), nil
	default:
		return nil, fmt.Errorf("%w: no loader for language %q", platform.ErrLoadFailure, lang)
	}
}
