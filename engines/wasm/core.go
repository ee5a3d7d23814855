package wasm

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/robbyt/go-polyexpr/platform"
	"github.com/robbyt/go-polyexpr/platform/boundary"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// coreModule runs a self-contained module that exports numeric functions.
type coreModule struct {
	name    string
	runtime wazero.Runtime
	module  api.Module
	exports map[string]signature
	logger  *slog.Logger
}

func loadCore(ctx context.Context, name string, src []byte, cfg Config, logger *slog.Logger) (*coreModule, error) {
	rt := wazero.NewRuntimeWithConfig(ctx, cfg.runtimeConfig())

	compiled, err := rt.CompileModule(ctx, src)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("%w: %w", ErrInvalidBinary, err)
	}
	if imports := compiled.ImportedFunctions(); len(imports) > 0 {
		module, fn, _ := imports[0].Import()
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("%w: %s.%s", ErrImportsForbidden, module, fn)
	}

	exports := make(map[string]signature)
	for fn, def := range compiled.ExportedFunctions() {
		exports[fn] = signature{params: def.ParamTypes(), results: def.ResultTypes()}
	}

	mod, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(name))
	if err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("%w: %w", ErrInvalidBinary, err)
	}

	return &coreModule{
		name:    name,
		runtime: rt,
		module:  mod,
		exports: exports,
		logger:  logger,
	}, nil
}

func (m *coreModule) Name() string { return m.name }

func (m *coreModule) ABI() ABI { return ABICore }

func (m *coreModule) Exports() []string {
	return sortedExports(m.exports)
}

func (m *coreModule) Call(ctx context.Context, fn string, args ...*boundary.Value) (*boundary.Value, error) {
	sig, ok := m.exports[fn]
	if !ok {
		return nil, unknownExport(m.name, fn)
	}
	if len(args) != len(sig.params) {
		return nil, fmt.Errorf("%w: %s.%s takes %d arguments, got %d",
			ErrArgumentMismatch, m.name, fn, len(sig.params), len(args))
	}

	params := make([]uint64, len(args))
	for i, arg := range args {
		p, err := encodeParam(sig.params[i], arg)
		if err != nil {
			return nil, fmt.Errorf("%w: %s.%s argument %d: %w", ErrArgumentMismatch, m.name, fn, i, err)
		}
		params[i] = p
	}

	results, err := m.module.ExportedFunction(fn).Call(ctx, params...)
	if err != nil {
		m.logger.DebugContext(ctx, "wasm call failed", "function", fn, "error", err)
		return nil, fmt.Errorf("%w: %w: %w", platform.ErrEvaluation, ErrCallFailed, err)
	}

	switch len(results) {
	case 0:
		return boundary.Nil(), nil
	case 1:
		return decodeResult(sig.results[0], results[0])
	default:
		items := make([]*boundary.Value, len(results))
		for i, r := range results {
			v, err := decodeResult(sig.results[i], r)
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		return boundary.List(items...), nil
	}
}

func (m *coreModule) Close(ctx context.Context) error {
	return m.runtime.Close(ctx)
}

func numeric(v *boundary.Value) (int64, float64, error) {
	if v == nil {
		return 0, 0, fmt.Errorf("missing value")
	}
	switch v.Kind {
	case boundary.KindInt:
		return v.Int, float64(v.Int), nil
	case boundary.KindFloat:
		f, ok := v.ToGo().(float64)
		if !ok {
			return 0, 0, fmt.Errorf("malformed float")
		}
		return int64(f), f, nil
	case boundary.KindBool:
		if v.Bool {
			return 1, 1, nil
		}
		return 0, 0, nil
	default:
		return 0, 0, fmt.Errorf("%s is not numeric", v.Kind)
	}
}

func encodeParam(t api.ValueType, v *boundary.Value) (uint64, error) {
	i, f, err := numeric(v)
	if err != nil {
		return 0, err
	}
	if v.Kind == boundary.KindFloat && (t == api.ValueTypeI32 || t == api.ValueTypeI64) && f != math.Trunc(f) {
		return 0, fmt.Errorf("%v is not an integer", f)
	}
	switch t {
	case api.ValueTypeI32:
		if i < math.MinInt32 || i > math.MaxUint32 {
			return 0, fmt.Errorf("%d overflows i32", i)
		}
		return api.EncodeI32(int32(i)), nil
	case api.ValueTypeI64:
		return api.EncodeI64(i), nil
	case api.ValueTypeF32:
		return api.EncodeF32(float32(f)), nil
	case api.ValueTypeF64:
		return api.EncodeF64(f), nil
	default:
		return 0, fmt.Errorf("unsupported parameter type %s", api.ValueTypeName(t))
	}
}

func decodeResult(t api.ValueType, r uint64) (*boundary.Value, error) {
	switch t {
	case api.ValueTypeI32:
		return boundary.Int(int64(api.DecodeI32(r))), nil
	case api.ValueTypeI64:
		return boundary.Int(int64(r)), nil
	case api.ValueTypeF32:
		return boundary.Float(float64(api.DecodeF32(r))), nil
	case api.ValueTypeF64:
		return boundary.Float(api.DecodeF64(r)), nil
	default:
		return nil, fmt.Errorf("%w: unsupported result type %s", ErrCallFailed, api.ValueTypeName(t))
	}
}
