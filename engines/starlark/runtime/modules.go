package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/robbyt/go-polyexpr/engines/starlark/internal"
	"github.com/robbyt/go-polyexpr/engines/wasm"
	"github.com/robbyt/go-polyexpr/platform/boundary"
	"github.com/robbyt/go-polyexpr/platform/container"
	starlarkLib "go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
)

// moduleSet resolves and caches the dependencies of one container.
type moduleSet struct {
	ctx     context.Context
	env     *container.Environment
	options *syntax.FileOptions
	logger  *slog.Logger

	// scripts maps a module path to its globals; a nil entry marks a load in progress.
	scripts map[string]*scriptResult
	wasm    []wasm.Module
}

type scriptResult struct {
	globals starlarkLib.StringDict
	err     error
}

func newModuleSet(
	ctx context.Context,
	env *container.Environment,
	options *syntax.FileOptions,
	logger *slog.Logger,
) *moduleSet {
	return &moduleSet{
		ctx:     ctx,
		env:     env,
		options: options,
		logger:  logger,
		scripts: make(map[string]*scriptResult),
	}
}

// importValue returns the value bound to an imported name: a builtin module, or a struct
// holding the members of a resolver-backed module.
func (s *moduleSet) importValue(name string) (starlarkLib.Value, error) {
	if v, ok := internal.BuiltinModule(name); ok {
		return v, nil
	}
	mod, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	members, err := s.members(mod)
	if err != nil {
		return nil, err
	}
	v := starlarkstruct.FromStringDict(starlarkLib.String(mod.Name), members)
	v.Freeze()
	return v, nil
}

// load serves load() statements in module scripts. The argument may be a module name
// registered in the resolver table or a path to one.
func (s *moduleSet) load(_ *starlarkLib.Thread, module string) (starlarkLib.StringDict, error) {
	mod, err := s.resolve(module)
	if err != nil {
		return nil, err
	}
	return s.members(mod)
}

func (s *moduleSet) resolve(name string) (*container.Module, error) {
	if s.env.Resolver == nil {
		return nil, fmt.Errorf("%w: %s", container.ErrModuleNotFound, name)
	}
	mod, err := s.env.Resolver.Resolve(name)
	if err == nil {
		return mod, nil
	}
	if !errors.Is(err, container.ErrModuleNotFound) {
		return nil, err
	}
	return s.env.Resolver.ResolvePath(name)
}

func (s *moduleSet) members(mod *container.Module) (starlarkLib.StringDict, error) {
	switch mod.Kind {
	case container.ModuleScript:
		return s.exec(mod)
	case container.ModuleWasm:
		m, err := wasm.Load(s.ctx, mod.Name, mod.Source, wasm.Config{
			MaxMemoryPages: s.env.Limits.MaxMemoryPages,
			Handler:        s.logger.Handler(),
		})
		if err != nil {
			return nil, err
		}
		s.wasm = append(s.wasm, m)
		return wasmMembers(m), nil
	default:
		return nil, fmt.Errorf("%w: %s", container.ErrUnsupportedKind, mod.Kind)
	}
}

// exec runs a module script once; later imports of the same path share its globals.
func (s *moduleSet) exec(mod *container.Module) (starlarkLib.StringDict, error) {
	if res, seen := s.scripts[mod.Path]; seen {
		if res == nil {
			return nil, fmt.Errorf("%w: %s", ErrImportCycle, mod.Path)
		}
		return res.globals, res.err
	}
	s.scripts[mod.Path] = nil

	thread := newThread(s.ctx, mod.Name, s.env.Limits, s.logger)
	thread.Load = s.load
	globals, err := starlarkLib.ExecFileOptions(s.options, thread, mod.Path, mod.Source, internal.StandardModules())
	if err != nil {
		err = fmt.Errorf("module %s: %w", mod.Name, err)
	}
	s.scripts[mod.Path] = &scriptResult{globals: globals, err: err}
	s.logger.DebugContext(s.ctx, "Module script executed", "module", mod.Name, "error", err)
	return globals, err
}

func (s *moduleSet) close() error {
	var errs []error
	for _, m := range s.wasm {
		if err := m.Close(context.Background()); err != nil {
			errs = append(errs, err)
		}
	}
	s.wasm = nil
	return errors.Join(errs...)
}

// wasmMembers exposes each export of m as a builtin taking positional arguments.
func wasmMembers(m wasm.Module) starlarkLib.StringDict {
	members := make(starlarkLib.StringDict)
	for _, fn := range m.Exports() {
		members[fn] = starlarkLib.NewBuiltin(m.Name()+"."+fn, func(
			thread *starlarkLib.Thread,
			b *starlarkLib.Builtin,
			args starlarkLib.Tuple,
			kwargs []starlarkLib.Tuple,
		) (starlarkLib.Value, error) {
			if len(kwargs) > 0 {
				return nil, fmt.Errorf("%s: unexpected keyword arguments", b.Name())
			}
			in := make([]*boundary.Value, len(args))
			for i, arg := range args {
				v, err := internal.FromStarlark(arg)
				if err != nil {
					return nil, fmt.Errorf("%s: argument %d: %w", b.Name(), i, err)
				}
				in[i] = v
			}
			out, err := m.Call(threadContext(thread), fn, in...)
			if err != nil {
				return nil, err
			}
			return internal.ToStarlark(out)
		})
	}
	return members
}
