// Package polyexpr compiles sets of short expressions into a container that runs inside
// an isolation context, and evaluates them by their text.
//
//	meta, _ := polyexpr.NewMeta("starlark")
//	_ = meta.AddExpression("Ctx.X * 2")
//	_ = meta.AddExtension(extension.New("Ctx", map[string]any{"X": 21}))
//	ev, err := polyexpr.Compile(ctx, meta)
//	...
//	defer ev.Close()
//	result := ev.Evaluate(ctx, "Ctx.X * 2") // int64(42)
package polyexpr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robbyt/go-polyexpr/engines"
	"github.com/robbyt/go-polyexpr/evaluator"
	"github.com/robbyt/go-polyexpr/internal/helpers"
	"github.com/robbyt/go-polyexpr/internal/metrics"
	"github.com/robbyt/go-polyexpr/isolation"
	"github.com/robbyt/go-polyexpr/options"
	"github.com/robbyt/go-polyexpr/platform"
	"github.com/robbyt/go-polyexpr/platform/artifact"
	"github.com/robbyt/go-polyexpr/platform/unit"
)

// Compile builds, stores and loads the expression set described by meta and returns an
// evaluator bound to a fresh isolation context. On failure nothing is left behind: the
// context is torn down and the artifact deleted.
func Compile(ctx context.Context, meta *ExpressionMeta, opts ...options.Option) (*evaluator.Evaluator, error) {
	if meta == nil {
		return nil, fmt.Errorf("%w: expression meta is nil", platform.ErrInvalidInput)
	}
	cfg, err := options.Apply(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", platform.ErrInvalidInput, err)
	}
	m, err := metrics.New(cfg.GetRegisterer())
	if err != nil {
		return nil, err
	}

	started := time.Now()
	ev, err := compile(ctx, meta, cfg, m)
	m.Compiled(meta.Language().String(), started, err)
	return ev, err
}

func compile(
	ctx context.Context,
	meta *ExpressionMeta,
	cfg *options.Config,
	m *metrics.Metrics,
) (*evaluator.Evaluator, error) {
	handler := cfg.GetHandler()
	_, logger := helpers.SetupLogger(handler, "polyexpr", "Compile")
	logger = logger.With("language", meta.Language())

	req := meta.Request()
	u, err := unit.Build(req)
	if err != nil {
		return nil, err
	}
	backend, err := engines.NewCompiler(u.Language, handler)
	if err != nil {
		return nil, err
	}
	handle, err := backend.Compile(ctx, u, cfg.GetWorkDir())
	if err != nil {
		return nil, err
	}
	logger = logger.With("path", handle.Path)

	iso, err := cfg.GetRuntime().Create(ctx, handle.Dir(), cfg.GetPermissions())
	if err != nil {
		return nil, errors.Join(err, artifact.Remove(handle.Path))
	}

	if err := bind(ctx, iso.Proxy(), meta, handle); err != nil {
		logger.DebugContext(ctx, "Construction failed, cleaning up", "error", err)
		return nil, errors.Join(err, iso.Unload(ctx), artifact.Remove(handle.Path))
	}

	ev := evaluator.New(iso, handle.Path, handler, m)
	logger.DebugContext(ctx, "Evaluator ready", "evaluator", ev.ID(), "context", iso.ID())
	return ev, nil
}

// bind installs the resolver, loads the container and sets every extension field.
func bind(ctx context.Context, proxy *isolation.Client, meta *ExpressionMeta, handle *artifact.Handle) error {
	if err := proxy.InstallResolver(ctx, meta.Modules()); err != nil {
		return err
	}
	if err := proxy.Load(ctx, handle.Path); err != nil {
		return err
	}
	for _, ext := range meta.Extensions() {
		if err := proxy.SetField(ctx, ext.Name, ext.Instance); err != nil {
			return fmt.Errorf("extension %q: %w", ext.Name, err)
		}
	}
	return nil
}

// EvaluateAdHoc compiles expression on its own, evaluates it once and disposes of
// everything. A blank expression yields nil without compiling anything.
func EvaluateAdHoc(ctx context.Context, lang, expression string, opts ...options.Option) (any, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, nil
	}
	meta, err := NewMeta(lang)
	if err != nil {
		return nil, err
	}
	if err := meta.AddExpression(expression); err != nil {
		return nil, err
	}

	ev, err := Compile(ctx, meta, opts...)
	if err != nil {
		return nil, err
	}
	result := ev.Evaluate(ctx, expression)
	return result, ev.Close()
}
