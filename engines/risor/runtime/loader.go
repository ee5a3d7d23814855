// Package runtime loads risor containers inside an isolation context.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"maps"

	risorLib "github.com/risor-io/risor"
	risorCompiler "github.com/risor-io/risor/compiler"
	"github.com/robbyt/go-polyexpr/engines/risor/internal"
	"github.com/robbyt/go-polyexpr/internal/helpers"
	"github.com/robbyt/go-polyexpr/platform"
	"github.com/robbyt/go-polyexpr/platform/artifact"
	"github.com/robbyt/go-polyexpr/platform/boundary"
	"github.com/robbyt/go-polyexpr/platform/container"
)

// Loader builds capability tables for risor artifacts.
type Loader struct {
	logHandler slog.Handler
	logger     *slog.Logger
}

// New creates a loader. A nil handler selects the default logger.
func New(handler slog.Handler) *Loader {
	h, logger := helpers.SetupLogger(handler, "risor", "Loader")
	return &Loader{logHandler: h, logger: logger}
}

func (l *Loader) String() string {
	return "risor.Loader"
}

// risorContainer is the state shared by the entry points of one loaded unit.
type risorContainer struct {
	imports []string
	fields  map[string]any
	logger  *slog.Logger
}

// Load recompiles every entry point and returns the capability table.
func (l *Loader) Load(ctx context.Context, u *artifact.Unit, env *container.Environment) (*container.Table, error) {
	logger := l.logger
	if env != nil && env.Handler != nil {
		_, logger = helpers.SetupLogger(env.Handler, "risor", "Loader")
	}
	logger = logger.With("type", u.TypeName)

	payload, err := internal.DecodePayload(u.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %w", platform.ErrLoadFailure, ErrPayloadInvalid, err)
	}
	for _, name := range u.Imports {
		if !internal.AllowedModule(name) {
			return nil, fmt.Errorf("%w: %w: %s", platform.ErrLoadFailure, ErrModules, name)
		}
	}

	rc := &risorContainer{
		imports: u.Imports,
		fields:  make(map[string]any, len(u.Fields)),
		logger:  logger,
	}
	for _, f := range u.Fields {
		rc.fields[f.Name] = nil
	}

	table := container.NewTable(u.TypeName)
	for _, m := range u.Methods {
		src, ok := payload.Sources[m.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %w: %s", platform.ErrLoadFailure, ErrMissingMethod, m.Name)
		}
		code, err := internal.Compile(ctx, src, payload.Globals)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", platform.ErrLoadFailure, m.Name, err)
		}
		if err := table.AddInvoker(m.Name, rc.invoker(code)); err != nil {
			return nil, fmt.Errorf("%w: %w", platform.ErrLoadFailure, err)
		}
	}
	for _, f := range u.Fields {
		if err := table.AddSetter(f.Name, rc.setter(f.Name)); err != nil {
			return nil, fmt.Errorf("%w: %w", platform.ErrLoadFailure, err)
		}
	}

	logger.DebugContext(ctx, "Container loaded", "methods", len(u.Methods), "fields", len(u.Fields))
	return table, nil
}

func (rc *risorContainer) setter(name string) container.Setter {
	return func(v *boundary.Value) error {
		rc.fields[name] = v.ToGo()
		return nil
	}
}

func (rc *risorContainer) invoker(code *risorCompiler.Code) container.Invoker {
	return func(ctx context.Context) (*boundary.Value, error) {
		opts := internal.Options(rc.imports, maps.Clone(rc.fields))
		result, err := risorLib.EvalCode(ctx, code, opts...)
		if err != nil {
			rc.logger.DebugContext(ctx, "Evaluation failed", "error", err)
			return nil, fmt.Errorf("%w: %w", platform.ErrEvaluation, err)
		}
		out, err := internal.FromObject(result)
		if err != nil {
			return nil, fmt.Errorf("%w: %w: %w", platform.ErrEvaluation, ErrResultType, err)
		}
		return out, nil
	}
}
