// Package runtime loads compiled Starlark containers inside an isolation context.
package runtime

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/robbyt/go-polyexpr/engines/starlark/internal"
	"github.com/robbyt/go-polyexpr/internal/helpers"
	"github.com/robbyt/go-polyexpr/platform"
	"github.com/robbyt/go-polyexpr/platform/artifact"
	"github.com/robbyt/go-polyexpr/platform/boundary"
	"github.com/robbyt/go-polyexpr/platform/container"
	starlarkLib "go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// contextKey is the thread-local slot holding the context of the current call.
const contextKey = "polyexpr.context"

// Loader builds capability tables for Starlark artifacts.
type Loader struct {
	moduleOptions *syntax.FileOptions
	logHandler    slog.Handler
	logger        *slog.Logger
}

func New(opts ...FunctionalOption) (*Loader, error) {
	l := &Loader{}
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, fmt.Errorf("error applying loader option: %w", err)
		}
	}
	l.applyDefaults()
	l.setupLogger()
	return l, nil
}

func (l *Loader) String() string {
	return "starlark.Loader"
}

// Load initializes the program in u, binds its imports and returns the capability table.
// Fields start out as None until a setter assigns them.
func (l *Loader) Load(ctx context.Context, u *artifact.Unit, env *container.Environment) (*container.Table, error) {
	if env == nil {
		env = &container.Environment{}
	}
	logger := l.logger
	if env.Handler != nil {
		_, logger = helpers.SetupLogger(env.Handler, "starlark", "Loader")
	}
	logger = logger.With("type", u.TypeName)

	prog, err := starlarkLib.CompiledProgram(bytes.NewReader(u.Payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %w", platform.ErrLoadFailure, ErrPayloadInvalid, err)
	}

	modules := newModuleSet(ctx, env, l.moduleOptions, logger)
	predeclared := make(starlarkLib.StringDict, len(u.Imports)+len(u.Fields))
	for _, name := range u.Imports {
		v, err := modules.importValue(name)
		if err != nil {
			modules.close()
			return nil, fmt.Errorf("%w: import %q: %w", platform.ErrLoadFailure, name, err)
		}
		predeclared[name] = v
	}
	for _, f := range u.Fields {
		predeclared[f.Name] = starlarkLib.None
	}

	thread := newThread(ctx, "init", env.Limits, logger)
	thread.Load = modules.load
	globals, err := prog.Init(thread, predeclared)
	if err != nil {
		modules.close()
		return nil, fmt.Errorf("%w: %w", platform.ErrLoadFailure, err)
	}

	table := container.NewTable(u.TypeName)
	table.OnClose(modules.close)
	for _, m := range u.Methods {
		fn, ok := globals[m.Name].(*starlarkLib.Function)
		if !ok {
			_ = table.Close()
			return nil, fmt.Errorf("%w: %w: %s", platform.ErrLoadFailure, ErrMissingMethod, m.Name)
		}
		if err := table.AddInvoker(m.Name, invoker(fn, env.Limits, logger)); err != nil {
			_ = table.Close()
			return nil, fmt.Errorf("%w: %w", platform.ErrLoadFailure, err)
		}
	}
	for _, f := range u.Fields {
		if err := table.AddSetter(f.Name, setter(predeclared, f.Name)); err != nil {
			_ = table.Close()
			return nil, fmt.Errorf("%w: %w", platform.ErrLoadFailure, err)
		}
	}

	logger.DebugContext(ctx, "Container loaded", "methods", len(u.Methods), "fields", len(u.Fields))
	return table, nil
}

// setter rebinds a predeclared name. The program reads predeclared values at call time,
// so the new value is visible to every entry point.
func setter(predeclared starlarkLib.StringDict, name string) container.Setter {
	return func(v *boundary.Value) error {
		sv, err := internal.ToStarlark(v)
		if err != nil {
			return fmt.Errorf("%w: field %s: %w", platform.ErrExtensionNotMarshallable, name, err)
		}
		predeclared[name] = sv
		return nil
	}
}

func invoker(fn *starlarkLib.Function, limits container.Limits, logger *slog.Logger) container.Invoker {
	return func(ctx context.Context) (*boundary.Value, error) {
		thread := newThread(ctx, fn.Name(), limits, logger)
		stop := context.AfterFunc(ctx, func() {
			thread.Cancel(context.Cause(ctx).Error())
		})
		defer stop()

		result, err := starlarkLib.Call(thread, fn, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", platform.ErrEvaluation, err)
		}
		out, err := internal.FromStarlark(result)
		if err != nil {
			return nil, fmt.Errorf("%w: %w: %w", platform.ErrEvaluation, ErrResultType, err)
		}
		return out, nil
	}
}

func newThread(ctx context.Context, name string, limits container.Limits, logger *slog.Logger) *starlarkLib.Thread {
	thread := &starlarkLib.Thread{
		Name: name,
		Print: func(_ *starlarkLib.Thread, msg string) {
			logger.DebugContext(ctx, "print", "thread", name, "message", msg)
		},
	}
	if limits.MaxSteps > 0 {
		thread.SetMaxExecutionSteps(limits.MaxSteps)
	}
	thread.SetLocal(contextKey, ctx)
	return thread
}

func threadContext(thread *starlarkLib.Thread) context.Context {
	if ctx, ok := thread.Local(contextKey).(context.Context); ok {
		return ctx
	}
	return context.Background()
}
