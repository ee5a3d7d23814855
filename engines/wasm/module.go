// Package wasm loads WebAssembly dependency modules inside an isolation context.
// Modules never get filesystem, network, environment or clock access.
package wasm

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/robbyt/go-polyexpr/internal/helpers"
	"github.com/robbyt/go-polyexpr/platform/boundary"
	"github.com/tetratelabs/wazero"
)

// Module is a loaded WebAssembly dependency whose exports can be called from expressions.
type Module interface {
	Name() string
	ABI() ABI
	// Exports lists the callable functions, sorted.
	Exports() []string
	Call(ctx context.Context, fn string, args ...*boundary.Value) (*boundary.Value, error)
	Close(ctx context.Context) error
}

// Config bounds what a module may do.
type Config struct {
	// MaxMemoryPages caps linear memory in 64KiB pages, zero keeps the runtime default.
	MaxMemoryPages uint32
	Handler        slog.Handler
}

func (c Config) runtimeConfig() wazero.RuntimeConfig {
	rc := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if c.MaxMemoryPages > 0 {
		rc = rc.WithMemoryLimitPages(c.MaxMemoryPages)
	}
	return rc
}

// Load compiles and instantiates src under name, choosing the runtime by the module's ABI.
func Load(ctx context.Context, name string, src []byte, cfg Config) (Module, error) {
	_, logger := helpers.SetupLogger(cfg.Handler, "wasm", "Module")
	logger = logger.With("module", name)

	abi, exports, err := inspect(ctx, src)
	if err != nil {
		return nil, err
	}
	logger.DebugContext(ctx, "loading wasm module", "abi", abi, "exports", len(exports))

	switch abi {
	case ABIExtism:
		return loadExtism(ctx, name, src, exports, cfg, logger)
	default:
		return loadCore(ctx, name, src, cfg, logger)
	}
}

func sortedExports[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func unknownExport(module, fn string) error {
	return fmt.Errorf("%w: %s.%s", ErrUnknownExport, module, fn)
}
