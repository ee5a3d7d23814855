// Package compiler turns an abstract unit into a Starlark program stored as a loadable artifact.
package compiler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/robbyt/go-polyexpr/engines/starlark/internal"
	"github.com/robbyt/go-polyexpr/platform"
	"github.com/robbyt/go-polyexpr/platform/artifact"
	"github.com/robbyt/go-polyexpr/platform/unit"
	"go.starlark.net/resolve"
	starlarkLib "go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// containerFile is the file name reported in positions inside the rendered container.
const containerFile = "container.star"

type Compiler struct {
	fileOptions *syntax.FileOptions
	logHandler  slog.Handler
	logger      *slog.Logger
}

// New creates a Starlark compiler with the given options.
func New(opts ...FunctionalOption) (*Compiler, error) {
	c := &Compiler{}
	c.applyDefaults()

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("error applying compiler option: %w", err)
		}
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("invalid compiler configuration: %w", err)
	}

	c.setupLogger()
	return c, nil
}

func (c *Compiler) String() string {
	return "starlark.Compiler"
}

// Compile validates every expression, renders the container module, compiles it to bytecode
// and writes the artifact into dir. Compilation failures are reported as *platform.CompileError.
func (c *Compiler) Compile(ctx context.Context, u *unit.Unit, dir string) (*artifact.Handle, error) {
	if u == nil {
		return nil, fmt.Errorf("%w: %w", platform.ErrCompileFailure, ErrUnitNil)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", platform.ErrCompileFailure, err)
	}
	logger := c.logger.With("methods", len(u.Methods), "fields", len(u.Fields))
	logger.DebugContext(ctx, "Starting compilation")

	diags := c.checkExpressions(u)
	diags = append(diags, checkImports(u)...)
	if len(diags) > 0 {
		logger.WarnContext(ctx, "Compilation rejected", "diagnostics", len(diags))
		return nil, platform.NewCompileError(diags...)
	}

	payload, err := c.program(u)
	if err != nil {
		logger.WarnContext(ctx, "Container compilation failed", "error", err)
		return nil, err
	}

	handle, err := artifact.Write(dir, artifact.FromAbstract(u, payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", platform.ErrCompileFailure, err)
	}
	logger.DebugContext(ctx, "Compilation completed", "path", handle.Path)
	return handle, nil
}

// checkExpressions parses each expression on its own, so a diagnostic names the expression.
func (c *Compiler) checkExpressions(u *unit.Unit) []platform.Diagnostic {
	var diags []platform.Diagnostic
	for _, m := range u.Methods {
		if _, err := c.fileOptions.ParseExpr(m.Name, m.Expression, 0); err != nil {
			diags = append(diags, platform.Diagnostic{Source: m.Expression, Message: err.Error()})
		}
	}
	return diags
}

// checkImports accepts builtin modules and modules declared as references.
func checkImports(u *unit.Unit) []platform.Diagnostic {
	var diags []platform.Diagnostic
	for _, name := range u.Imports {
		if _, ok := internal.BuiltinModule(name); ok {
			continue
		}
		if slices.Contains(u.References, name) {
			continue
		}
		diags = append(diags, platform.Diagnostic{
			Source:  name,
			Message: fmt.Sprintf("import %q is neither a builtin module nor a declared reference", name),
		})
	}
	return diags
}

// predeclared lists every name the container may refer to besides the universe.
func predeclared(u *unit.Unit) starlarkLib.StringDict {
	names := make(starlarkLib.StringDict, len(u.Imports)+len(u.Fields))
	for _, name := range u.Imports {
		names[name] = starlarkLib.None
	}
	for _, f := range u.Fields {
		names[f.Name] = starlarkLib.None
	}
	return names
}

func (c *Compiler) program(u *unit.Unit) ([]byte, error) {
	src, spans := render(u)

	f, err := c.fileOptions.Parse(containerFile, src, 0)
	if err != nil {
		return nil, platform.NewCompileError(diagnose(err, spans)...)
	}

	prog, err := starlarkLib.FileProgram(f, predeclared(u).Has)
	if err != nil {
		return nil, platform.NewCompileError(diagnose(err, spans)...)
	}

	var buf bytes.Buffer
	if err := prog.Write(&buf); err != nil {
		return nil, fmt.Errorf("%w: %w", platform.ErrCompileFailure, err)
	}
	return buf.Bytes(), nil
}

// diagnose maps container positions back onto the expressions they came from.
func diagnose(err error, spans []span) []platform.Diagnostic {
	var list resolve.ErrorList
	if errors.As(err, &list) {
		diags := make([]platform.Diagnostic, 0, len(list))
		for _, e := range list {
			diags = append(diags, diagnostic(e.Pos, e.Msg, spans))
		}
		return diags
	}
	var synErr syntax.Error
	if errors.As(err, &synErr) {
		return []platform.Diagnostic{diagnostic(synErr.Pos, synErr.Msg, spans)}
	}
	return []platform.Diagnostic{{Message: fmt.Sprintf("%s: %v", ErrRenderFault, err)}}
}

func diagnostic(pos syntax.Position, msg string, spans []span) platform.Diagnostic {
	if m, ok := locate(spans, int(pos.Line)); ok {
		return platform.Diagnostic{Source: m.Expression, Message: msg}
	}
	return platform.Diagnostic{Source: pos.String(), Message: msg}
}
