// Package subprocess runs each isolation context in a child process started through
// hashicorp/go-plugin. The child is the host binary itself, re-executed with an empty
// environment inside the anchor directory; the host must call ServeIfChild early in main.
package subprocess

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"
	jsoniter "github.com/json-iterator/go"
	"github.com/robbyt/go-polyexpr/internal/helpers"
	"github.com/robbyt/go-polyexpr/isolation"
	"github.com/robbyt/go-polyexpr/platform"
)

const defaultStartTimeout = 10 * time.Second

// Runtime starts isolation contexts as child processes.
type Runtime struct {
	command      string
	startTimeout time.Duration
	childLevel   hclog.Level
	pluginLogger hclog.Logger
	logger       *slog.Logger
}

// Option configures a Runtime.
type Option func(*Runtime) error

// WithCommand runs path instead of the current executable. The program must call
// ServeIfChild.
func WithCommand(path string) Option {
	return func(r *Runtime) error {
		if path == "" {
			return errors.New("command cannot be empty")
		}
		r.command = path
		return nil
	}
}

// WithStartTimeout bounds how long the child may take to complete the handshake.
func WithStartTimeout(d time.Duration) Option {
	return func(r *Runtime) error {
		if d <= 0 {
			return errors.New("start timeout must be positive")
		}
		r.startTimeout = d
		return nil
	}
}

// WithPluginLogger sets the hclog logger go-plugin uses on the host side, which also
// receives the child's log lines.
func WithPluginLogger(logger hclog.Logger) Option {
	return func(r *Runtime) error {
		if logger == nil {
			return errors.New("plugin logger cannot be nil")
		}
		r.pluginLogger = logger
		return nil
	}
}

// WithChildLogLevel sets the log level inside the child.
func WithChildLogLevel(level hclog.Level) Option {
	return func(r *Runtime) error {
		r.childLevel = level
		return nil
	}
}

// WithLogHandler sets the handler for the runtime's own messages.
func WithLogHandler(handler slog.Handler) Option {
	return func(r *Runtime) error {
		if handler == nil {
			return errors.New("log handler cannot be nil")
		}
		_, r.logger = helpers.SetupLogger(handler, "isolation", "Subprocess")
		return nil
	}
}

// New creates a subprocess runtime.
func New(opts ...Option) (*Runtime, error) {
	r := &Runtime{
		startTimeout: defaultStartTimeout,
		childLevel:   hclog.Warn,
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, fmt.Errorf("error applying subprocess option: %w", err)
		}
	}
	if r.logger == nil {
		_, r.logger = helpers.SetupLogger(nil, "isolation", "Subprocess")
	}
	if r.pluginLogger == nil {
		r.pluginLogger = hclog.New(&hclog.LoggerOptions{
			Name:   "polyexpr.subprocess",
			Output: os.Stderr,
			Level:  hclog.Warn,
		})
	}
	if r.command == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("cannot locate current executable: %w", err)
		}
		r.command = exe
	}
	return r, nil
}

func (r *Runtime) String() string {
	return "subprocess.Runtime"
}

// Create starts a child process and connects to its proxy.
func (r *Runtime) Create(ctx context.Context, anchorDir string, perms isolation.Permissions) (isolation.Context, error) {
	if err := perms.Validate(); err != nil {
		return nil, err
	}
	anchor, err := isolation.CheckAnchor(anchorDir)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", platform.ErrIsolationCreation, err)
	}
	encoded, err := jsoniter.Marshal(perms)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", platform.ErrIsolationCreation, err)
	}

	cmd := exec.Command(r.command)
	cmd.Dir = anchor
	cmd.Env = []string{
		EnvAnchor + "=" + anchor,
		EnvPermissions + "=" + string(encoded),
		EnvLogLevel + "=" + r.childLevel.String(),
	}

	id := uuid.NewString()
	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig:  Handshake,
		Plugins:          plugin.PluginSet{pluginName: &isolatePlugin{}},
		Cmd:              cmd,
		AllowedProtocols: []plugin.Protocol{plugin.ProtocolNetRPC},
		Logger:           r.pluginLogger.Named(id),
		SkipHostEnv:      true,
		StartTimeout:     r.startTimeout,
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("%w: %w", platform.ErrIsolationCreation, err)
	}
	raw, err := rpcClient.Dispense(pluginName)
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("%w: %w", platform.ErrIsolationCreation, err)
	}
	transport, ok := raw.(*rpcTransport)
	if !ok {
		client.Kill()
		return nil, fmt.Errorf("%w: unexpected plugin type %T", platform.ErrIsolationCreation, raw)
	}

	logger := r.logger.With("id", id)
	logger.DebugContext(ctx, "Child started", "anchor", anchor, "command", r.command)
	return &child{
		id:     id,
		plugin: client,
		client: isolation.NewClient(transport),
		logger: logger,
	}, nil
}

type child struct {
	id     string
	plugin *plugin.Client
	client *isolation.Client
	logger *slog.Logger
}

func (c *child) ID() string {
	return c.id
}

func (c *child) Proxy() *isolation.Client {
	return c.client
}

// Unload releases the container with a final round trip and stops the child.
func (c *child) Unload(ctx context.Context) error {
	var err error
	if !c.plugin.Exited() {
		err = c.client.Unload(ctx)
	}
	c.plugin.Kill()
	c.logger.DebugContext(ctx, "Child stopped")
	return err
}

// Abandon kills the child without waiting for it.
func (c *child) Abandon() {
	go c.plugin.Kill()
}
