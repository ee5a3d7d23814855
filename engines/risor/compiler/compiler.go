// Package compiler checks risor expressions against the restricted environment and stores
// them as a loadable artifact.
package compiler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robbyt/go-polyexpr/engines/risor/internal"
	"github.com/robbyt/go-polyexpr/platform"
	"github.com/robbyt/go-polyexpr/platform/artifact"
	"github.com/robbyt/go-polyexpr/platform/unit"
)

type Compiler struct {
	logHandler slog.Handler
	logger     *slog.Logger
}

func New(opts ...FunctionalOption) (*Compiler, error) {
	c := &Compiler{}
	c.applyDefaults()

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("error applying compiler option: %w", err)
		}
	}

	c.setupLogger()
	return c, nil
}

func (c *Compiler) String() string {
	return "risor.Compiler"
}

// Compile checks imports, compiles every expression with the global names available at
// load time and writes the artifact into dir.
func (c *Compiler) Compile(ctx context.Context, u *unit.Unit, dir string) (*artifact.Handle, error) {
	if u == nil {
		return nil, fmt.Errorf("%w: %w", platform.ErrCompileFailure, ErrUnitNil)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", platform.ErrCompileFailure, err)
	}
	logger := c.logger.With("methods", len(u.Methods), "fields", len(u.Fields))
	logger.DebugContext(ctx, "Starting compilation")

	var diags []platform.Diagnostic
	for _, name := range u.Imports {
		if !internal.AllowedModule(name) {
			diags = append(diags, platform.Diagnostic{
				Source:  name,
				Message: fmt.Sprintf("import %q is not an allowed risor module", name),
			})
		}
	}

	payload := &internal.Payload{
		Globals: internal.GlobalNames(u.Imports, u.FieldNames()),
		Sources: make(map[string]string, len(u.Methods)),
	}
	for _, m := range u.Methods {
		if _, err := internal.Compile(ctx, m.Expression, payload.Globals); err != nil {
			diags = append(diags, platform.Diagnostic{Source: m.Expression, Message: err.Error()})
			continue
		}
		payload.Sources[m.Name] = m.Expression
	}
	if len(diags) > 0 {
		logger.WarnContext(ctx, "Compilation rejected", "diagnostics", len(diags))
		return nil, platform.NewCompileError(diags...)
	}

	data, err := payload.Encode()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", platform.ErrCompileFailure, err)
	}
	handle, err := artifact.Write(dir, artifact.FromAbstract(u, data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", platform.ErrCompileFailure, err)
	}
	logger.DebugContext(ctx, "Compilation completed", "path", handle.Path)
	return handle, nil
}
