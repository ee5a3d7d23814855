package wasm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	extismSDK "github.com/extism/go-sdk"
	jsoniter "github.com/json-iterator/go"
	"github.com/robbyt/go-polyexpr/platform"
	"github.com/robbyt/go-polyexpr/platform/boundary"
	"github.com/tetratelabs/wazero"
)

// extismModule calls a plugin following the Extism ABI. Arguments are sent as JSON,
// except a single string argument which is passed through as raw bytes.
type extismModule struct {
	name     string
	plugin   CompiledPlugin
	instance PluginInstance
	exports  []string
	logger   *slog.Logger
}

var outputCodec = jsoniter.Config{UseNumber: true}.Froze()

func loadExtism(
	ctx context.Context,
	name string,
	src []byte,
	exports map[string]signature,
	cfg Config,
	logger *slog.Logger,
) (*extismModule, error) {
	manifest := extismSDK.Manifest{
		Wasm: []extismSDK.Wasm{
			extismSDK.WasmData{Data: src, Name: name},
		},
	}
	if cfg.MaxMemoryPages > 0 {
		manifest.Memory = &extismSDK.ManifestMemory{MaxPages: cfg.MaxMemoryPages}
	}

	// WASI is needed by most plugin toolchains; the module config below grants it no
	// filesystem, environment or real clock.
	pluginConfig := extismSDK.PluginConfig{
		EnableWasi:    true,
		RuntimeConfig: cfg.runtimeConfig(),
	}

	compiled, err := extismSDK.NewCompiledPlugin(ctx, manifest, pluginConfig, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBinary, err)
	}
	return newExtismModule(ctx, name, newCompiledPluginAdapter(compiled), callable(exports), logger)
}

func newExtismModule(
	ctx context.Context,
	name string,
	plugin CompiledPlugin,
	exports []string,
	logger *slog.Logger,
) (*extismModule, error) {
	instance, err := plugin.Instance(ctx, extismSDK.PluginInstanceConfig{
		ModuleConfig: wazero.NewModuleConfig(),
	})
	if err != nil {
		_ = plugin.Close(ctx)
		return nil, fmt.Errorf("%w: %w", ErrInvalidBinary, err)
	}
	return &extismModule{
		name:     name,
		plugin:   plugin,
		instance: instance,
		exports:  exports,
		logger:   logger,
	}, nil
}

// callable drops exports that belong to the toolchain rather than the plugin author.
func callable(exports map[string]signature) []string {
	names := make([]string, 0, len(exports))
	for _, name := range sortedExports(exports) {
		if strings.HasPrefix(name, "_") {
			continue
		}
		names = append(names, name)
	}
	return names
}

func (m *extismModule) Name() string { return m.name }

func (m *extismModule) ABI() ABI { return ABIExtism }

func (m *extismModule) Exports() []string {
	return m.exports
}

func (m *extismModule) Call(ctx context.Context, fn string, args ...*boundary.Value) (*boundary.Value, error) {
	if !m.instance.FunctionExists(fn) {
		return nil, unknownExport(m.name, fn)
	}
	input, err := encodeInput(args)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArgumentMismatch, err)
	}

	rc, output, err := m.instance.CallWithContext(ctx, fn, input)
	if err != nil {
		m.logger.DebugContext(ctx, "extism call failed", "function", fn, "error", err)
		return nil, fmt.Errorf("%w: %w: %w", platform.ErrEvaluation, ErrCallFailed, err)
	}
	if rc != 0 {
		return nil, fmt.Errorf("%w: %w: %s.%s returned %d", platform.ErrEvaluation, ErrCallFailed, m.name, fn, rc)
	}
	return decodeOutput(output)
}

func (m *extismModule) Close(ctx context.Context) error {
	instErr := m.instance.Close(ctx)
	if err := m.plugin.Close(ctx); err != nil {
		return err
	}
	return instErr
}

func encodeInput(args []*boundary.Value) ([]byte, error) {
	switch len(args) {
	case 0:
		return nil, nil
	case 1:
		if args[0] != nil && args[0].Kind == boundary.KindString {
			return []byte(args[0].Str), nil
		}
		return jsoniter.Marshal(args[0].ToGo())
	default:
		items := make([]any, len(args))
		for i, a := range args {
			items[i] = a.ToGo()
		}
		return jsoniter.Marshal(items)
	}
}

// decodeOutput parses JSON output, falling back to the raw text.
func decodeOutput(output []byte) (*boundary.Value, error) {
	if len(output) == 0 {
		return boundary.Nil(), nil
	}
	var tree any
	if err := outputCodec.Unmarshal(output, &tree); err != nil {
		return boundary.String(string(output)), nil
	}
	return boundary.FromGo(tree)
}
