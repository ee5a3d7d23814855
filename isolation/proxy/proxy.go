// Package proxy is the execution proxy living inside an isolation context. It accepts the
// encoded command set from the host, loads one compiled container and serves invocations
// against its capability table.
package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robbyt/go-polyexpr/engines"
	"github.com/robbyt/go-polyexpr/internal/helpers"
	"github.com/robbyt/go-polyexpr/isolation"
	"github.com/robbyt/go-polyexpr/platform"
	"github.com/robbyt/go-polyexpr/platform/artifact"
	"github.com/robbyt/go-polyexpr/platform/boundary"
	"github.com/robbyt/go-polyexpr/platform/container"
	"github.com/robbyt/go-polyexpr/platform/naming"
)

// fallbackResponse is sent when a response cannot be encoded at all.
var fallbackResponse = []byte(`{"fault":{"code":"internal","message":"response encoding failed"}}`)

// Proxy serializes every command with a mutex; the loaded container is never touched by
// two commands at once.
type Proxy struct {
	gate    *isolation.Gate
	perms   isolation.Permissions
	handler slog.Handler
	logger  *slog.Logger

	mu       sync.Mutex
	resolver *resolver
	table    *container.Table
}

// New creates a proxy anchored at the gate's directory.
func New(gate *isolation.Gate, perms isolation.Permissions, handler slog.Handler) *Proxy {
	h, logger := helpers.SetupLogger(handler, "isolation", "Proxy")
	return &Proxy{
		gate:    gate,
		perms:   perms,
		handler: h,
		logger:  logger.With("anchor", gate.Anchor()),
	}
}

// Handle decodes one request, executes it and encodes the response. It never fails: every
// problem is reported as a fault inside the response.
func (p *Proxy) Handle(ctx context.Context, payload []byte) []byte {
	var resp *boundary.Response
	req, err := boundary.DecodeRequest(payload)
	if err != nil {
		resp = boundary.Result(nil, err)
	} else {
		resp = p.Dispatch(ctx, req)
	}

	data, err := boundary.EncodeResponse(resp)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to encode response", "error", err)
		return fallbackResponse
	}
	return data
}

// Dispatch executes a decoded request.
func (p *Proxy) Dispatch(ctx context.Context, req *boundary.Request) *boundary.Response {
	p.mu.Lock()
	defer p.mu.Unlock()

	logger := p.logger.With("op", req.Op)
	var (
		v   *boundary.Value
		err error
	)
	switch req.Op {
	case boundary.OpInstallResolver:
		err = p.installResolver(req.Modules)
	case boundary.OpLoad:
		err = p.load(ctx, req.Path)
	case boundary.OpInvoke:
		v, err = p.invoke(ctx, req.Name)
	case boundary.OpSetField:
		err = p.setField(req.Name, req.Value)
	case boundary.OpUnload:
		err = p.unload()
	default:
		err = fmt.Errorf("%w: %w: %q", platform.ErrBoundaryFault, ErrUnknownOp, req.Op)
	}
	if err != nil {
		logger.DebugContext(ctx, "Command failed", "name", req.Name, "error", err)
	}
	return boundary.Result(v, err)
}

// Close unloads whatever is loaded without going through the command set.
func (p *Proxy) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.unload()
}

func (p *Proxy) installResolver(modules map[string]string) error {
	p.resolver = newResolver(p.gate, modules)
	return nil
}

func (p *Proxy) load(ctx context.Context, path string) error {
	if p.resolver == nil {
		return fmt.Errorf("%w: %w", platform.ErrLoadFailure, ErrResolverMissing)
	}
	if p.table != nil {
		return fmt.Errorf("%w: %w", platform.ErrLoadFailure, ErrAlreadyLoaded)
	}
	if !p.gate.InAnchor(path) {
		return fmt.Errorf("%w: %w: %s", platform.ErrLoadFailure, isolation.ErrOutsideAnchor, path)
	}

	release := p.gate.Elevate()
	defer release()

	data, err := p.gate.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %w", platform.ErrLoadFailure, err)
	}
	u, err := artifact.Decode(data)
	if err != nil {
		return fmt.Errorf("%w: %w", platform.ErrLoadFailure, err)
	}
	if u.TypeName != naming.TypeName {
		return fmt.Errorf("%w: %w: %s", platform.ErrLoadFailure, ErrTypeMissing, naming.TypeName)
	}
	loader, err := engines.NewLoader(u.Language, p.handler)
	if err != nil {
		return err
	}

	env := &container.Environment{
		Handler:  p.handler,
		Limits:   p.perms.Limits(),
		Resolver: p.resolver,
	}
	table, err := loader.Load(ctx, u, env)
	if err != nil {
		return err
	}
	p.table = table
	p.logger.DebugContext(ctx, "Container loaded",
		"type", table.TypeName(), "methods", len(table.Methods()), "fields", len(table.Fields()))
	return nil
}

func (p *Proxy) invoke(ctx context.Context, name string) (*boundary.Value, error) {
	if p.table == nil {
		return nil, fmt.Errorf("%w: %w", platform.ErrUnknownEntryPoint, ErrNotLoaded)
	}
	if p.perms.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.perms.Timeout)
		defer cancel()
	}
	return p.table.Invoke(ctx, name)
}

func (p *Proxy) setField(name string, v *boundary.Value) error {
	if p.table == nil {
		return fmt.Errorf("%w: %w", platform.ErrUnknownField, ErrNotLoaded)
	}
	if v == nil {
		v = boundary.Nil()
	}
	return p.table.Set(name, v)
}

func (p *Proxy) unload() error {
	if p.table == nil {
		return nil
	}
	err := p.table.Close()
	p.table = nil
	return err
}
