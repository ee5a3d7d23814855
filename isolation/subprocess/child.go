package subprocess

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"
	jsoniter "github.com/json-iterator/go"
	"github.com/robbyt/go-polyexpr/isolation"
	"github.com/robbyt/go-polyexpr/isolation/proxy"
)

// Environment of the child. Nothing from the host environment is inherited.
const (
	EnvAnchor      = "POLYEXPR_ANCHOR"
	EnvPermissions = "POLYEXPR_PERMISSIONS"
	EnvLogLevel    = "POLYEXPR_LOG_LEVEL"
)

// IsChild reports whether this process was started as an isolation context.
func IsChild() bool {
	return os.Getenv(Handshake.MagicCookieKey) == Handshake.MagicCookieValue
}

// ServeIfChild turns this process into an isolation context when the host started it as
// one, and exits when the host disconnects. It returns immediately otherwise. Call it at
// the top of main, or of TestMain.
func ServeIfChild() {
	if !IsChild() {
		return
	}
	if err := serve(); err != nil {
		fmt.Fprintf(os.Stderr, "polyexpr isolate: %v\n", err)
		os.Exit(1)
	}
	os.Exit(0)
}

func serve() error {
	// stdout carries the go-plugin handshake, logs go to stderr
	logger := hclog.New(&hclog.LoggerOptions{
		Name:       "polyexpr-isolate",
		Output:     os.Stderr,
		Level:      hclog.LevelFromString(os.Getenv(EnvLogLevel)),
		JSONFormat: true,
	})

	anchor, err := isolation.CheckAnchor(os.Getenv(EnvAnchor))
	if err != nil {
		return err
	}
	var perms isolation.Permissions
	if err := jsoniter.Unmarshal([]byte(os.Getenv(EnvPermissions)), &perms); err != nil {
		return fmt.Errorf("invalid permissions: %w", err)
	}
	if err := perms.Validate(); err != nil {
		return err
	}

	handler := slog.NewTextHandler(
		logger.StandardWriter(&hclog.StandardLoggerOptions{InferLevels: true}),
		&slog.HandlerOptions{Level: slog.LevelDebug},
	)
	p := proxy.New(isolation.NewGate(anchor), perms, handler)
	defer func() {
		if err := p.Close(); err != nil {
			logger.Warn("failed to release container on exit", "error", err)
		}
	}()

	logger.Debug("serving isolation context", "anchor", anchor)
	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: Handshake,
		Plugins:         plugin.PluginSet{pluginName: &isolatePlugin{proxy: p}},
		Logger:          logger,
	})
	return nil
}
