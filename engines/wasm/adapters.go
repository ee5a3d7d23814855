package wasm

import (
	"context"

	extismSDK "github.com/extism/go-sdk"
)

// CompiledPlugin abstracts extismSDK.CompiledPlugin so tests can swap it out.
type CompiledPlugin interface {
	Instance(ctx context.Context, config extismSDK.PluginInstanceConfig) (PluginInstance, error)
	Close(ctx context.Context) error
}

// PluginInstance abstracts extismSDK.Plugin.
type PluginInstance interface {
	CallWithContext(ctx context.Context, name string, data []byte) (uint32, []byte, error)
	FunctionExists(name string) bool
	Close(ctx context.Context) error
}

type sdkCompiledPlugin struct {
	plugin *extismSDK.CompiledPlugin
}

func newCompiledPluginAdapter(plugin *extismSDK.CompiledPlugin) CompiledPlugin {
	if plugin == nil {
		return nil
	}
	return &sdkCompiledPlugin{plugin: plugin}
}

func (a *sdkCompiledPlugin) Instance(
	ctx context.Context,
	config extismSDK.PluginInstanceConfig,
) (PluginInstance, error) {
	instance, err := a.plugin.Instance(ctx, config)
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func (a *sdkCompiledPlugin) Close(ctx context.Context) error {
	return a.plugin.Close(ctx)
}
