package polyexpr_test

import (
	"context"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/robbyt/go-polyexpr"
	"github.com/robbyt/go-polyexpr/isolation"
	"github.com/robbyt/go-polyexpr/isolation/subprocess"
	"github.com/robbyt/go-polyexpr/options"
	"github.com/robbyt/go-polyexpr/platform"
	"github.com/robbyt/go-polyexpr/platform/extension"
	"github.com/robbyt/go-polyexpr/platform/language"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// arithWasm exports add(i32, i32) i32 and half(f64) f64.
const arithWasm = "0061736d01000000" +
	"010c0260027f7f017f60017c017c" +
	"0303020001" +
	"070e020361646400000468616c660001" +
	"0a1802070020002001" + "6a0b0e0020004400000000000000" + "40a30b"

func TestMain(m *testing.M) {
	subprocess.ServeIfChild()
	os.Exit(m.Run())
}

func quietHandler() slog.Handler {
	return slog.NewTextHandler(io.Discard, nil)
}

// baseOptions compiles into a private work dir with logs discarded.
func baseOptions(t *testing.T, extra ...options.Option) (string, []options.Option) {
	t.Helper()
	dir := t.TempDir()
	return dir, append([]options.Option{
		options.WithLogHandler(quietHandler()),
		options.WithWorkDir(dir),
	}, extra...)
}

func newMeta(t *testing.T, lang language.Type, exprs ...string) *polyexpr.ExpressionMeta {
	t.Helper()
	meta, err := polyexpr.NewMeta(lang.String())
	require.NoError(t, err)
	require.NoError(t, meta.AddExpressions(exprs...))
	return meta
}

func artifacts(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := filepath.Glob(filepath.Join(dir, "*"))
	require.NoError(t, err)
	return entries
}

func TestCompileAndEvaluate(t *testing.T) {
	t.Parallel()

	for _, lang := range language.All() {
		t.Run(lang.String(), func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			meta := newMeta(t, lang, "1 + 1", "Ctx.X", "Ctx.X * Limit")
			require.NoError(t, meta.AddExtension(extension.New("Ctx", map[string]any{"X": 5})))
			require.NoError(t, meta.AddExtension(extension.New("Limit", 3)))

			dir, opts := baseOptions(t)
			ev, err := polyexpr.Compile(ctx, meta, opts...)
			require.NoError(t, err)
			require.Len(t, artifacts(t, dir), 1)
			assert.Equal(t, dir, filepath.Dir(ev.UnitPath()))

			assert.Equal(t, int64(2), ev.Evaluate(ctx, "1 + 1"))
			assert.Equal(t, int64(5), ev.Evaluate(ctx, "Ctx.X"))
			assert.Equal(t, int64(15), ev.Evaluate(ctx, "Ctx.X * Limit"))
			assert.Nil(t, ev.Evaluate(ctx, "2 + 2"))
			assert.Nil(t, ev.Evaluate(ctx, ""))

			require.NoError(t, ev.Close())
			assert.True(t, ev.IsDisposed())
			assert.Empty(t, artifacts(t, dir))
			require.NoError(t, ev.Close())

			assert.Nil(t, ev.Evaluate(ctx, "1 + 1"))
		})
	}
}

func TestEvaluationErrorsCollapseToNil(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	meta := newMeta(t, language.Starlark, "1 // 0", "len(range(100000000))", "[x for x in range(1000000)]")
	perms := isolation.MinimalPermissions()
	perms.MaxSteps = 10000
	_, opts := baseOptions(t, options.WithPermissions(perms))

	ev, err := polyexpr.Compile(ctx, meta, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ev.Close() })

	assert.Nil(t, ev.Evaluate(ctx, "1 // 0"))
	assert.Nil(t, ev.Evaluate(ctx, "[x for x in range(1000000)]"))
	assert.Equal(t, int64(100000000), ev.Evaluate(ctx, "len(range(100000000))"))
}

func TestTimeoutBoundsRunawayEvaluation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	loop := "x := 0\nfor { x++ }"
	perms := isolation.MinimalPermissions()
	perms.Timeout = 200 * time.Millisecond
	dir, opts := baseOptions(t, options.WithPermissions(perms))

	ev, err := polyexpr.Compile(ctx, newMeta(t, language.Risor, loop, "1 + 1"), opts...)
	require.NoError(t, err)

	start := time.Now()
	assert.Nil(t, ev.Evaluate(ctx, loop))
	assert.Less(t, time.Since(start), 3*time.Second)
	assert.Equal(t, int64(2), ev.Evaluate(ctx, "1 + 1"))

	require.NoError(t, ev.Close())
	assert.True(t, ev.IsDisposed())
	assert.Empty(t, artifacts(t, dir))
}

func TestConstructionFailuresCleanUp(t *testing.T) {
	t.Parallel()

	denied := isolation.MinimalPermissions()
	denied.Execute = false

	tests := []struct {
		name    string
		meta    func(t *testing.T) *polyexpr.ExpressionMeta
		opts    []options.Option
		wantErr error
	}{
		{
			name: "compile error",
			meta: func(t *testing.T) *polyexpr.ExpressionMeta {
				return newMeta(t, language.Starlark, "1 +")
			},
			wantErr: platform.ErrCompileFailure,
		},
		{
			name: "undefined name",
			meta: func(t *testing.T) *polyexpr.ExpressionMeta {
				return newMeta(t, language.Risor, "nope + 1")
			},
			wantErr: platform.ErrCompileFailure,
		},
		{
			name: "isolation refused",
			meta: func(t *testing.T) *polyexpr.ExpressionMeta {
				return newMeta(t, language.Starlark, "1")
			},
			opts:    []options.Option{options.WithPermissions(denied)},
			wantErr: platform.ErrIsolationCreation,
		},
		{
			name: "missing module",
			meta: func(t *testing.T) *polyexpr.ExpressionMeta {
				meta := newMeta(t, language.Starlark, "helpers.double(1)")
				require.NoError(t, meta.AddModule("helpers", filepath.Join(t.TempDir(), "gone.star")))
				return meta
			},
			wantErr: platform.ErrLoadFailure,
		},
		{
			name: "unmarshallable extension",
			meta: func(t *testing.T) *polyexpr.ExpressionMeta {
				meta := newMeta(t, language.Starlark, "Fn")
				require.NoError(t, meta.AddExtension(extension.New("Fn", func() {})))
				return meta
			},
			wantErr: platform.ErrExtensionNotMarshallable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dir, opts := baseOptions(t, tt.opts...)
			ev, err := polyexpr.Compile(context.Background(), tt.meta(t), opts...)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, ev)
			assert.Empty(t, artifacts(t, dir))
		})
	}
}

func TestCompileNilMeta(t *testing.T) {
	t.Parallel()

	_, err := polyexpr.Compile(context.Background(), nil)
	require.ErrorIs(t, err, platform.ErrInvalidInput)
}

func TestCompileDiagnostics(t *testing.T) {
	t.Parallel()

	meta := newMeta(t, language.Starlark, "1 + 1", "1 +", "[1, 2")
	_, opts := baseOptions(t)
	_, err := polyexpr.Compile(context.Background(), meta, opts...)

	var compileErr *platform.CompileError
	require.ErrorAs(t, err, &compileErr)
	require.Len(t, compileErr.Diagnostics, 2)
	assert.Equal(t, "1 +", compileErr.Diagnostics[0].Source)
	assert.Equal(t, "[1, 2", compileErr.Diagnostics[1].Source)
	assert.Equal(t, compileErr.Diagnostics[0].String(), err.Error())
}

func TestModules(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	modDir := t.TempDir()
	script := filepath.Join(modDir, "helpers.star")
	require.NoError(t, os.WriteFile(script, []byte("def double(x):\n    return x * 2\n"), 0o600))
	wasmSrc, err := hex.DecodeString(arithWasm)
	require.NoError(t, err)
	wasmPath := filepath.Join(modDir, "arith.wasm")
	require.NoError(t, os.WriteFile(wasmPath, wasmSrc, 0o600))

	meta := newMeta(t, language.Starlark, "helpers.double(21)", "arith.add(2, 3)", "arith.half(5)")
	require.NoError(t, meta.AddModule("helpers", script))
	require.NoError(t, meta.AddModule("arith", wasmPath))

	_, opts := baseOptions(t)
	ev, err := polyexpr.Compile(ctx, meta, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ev.Close() })

	assert.Equal(t, int64(42), ev.Evaluate(ctx, "helpers.double(21)"))
	assert.Equal(t, int64(5), ev.Evaluate(ctx, "arith.add(2, 3)"))
	assert.Equal(t, 2.5, ev.Evaluate(ctx, "arith.half(5)"))
}

func TestRisorRejectsModules(t *testing.T) {
	t.Parallel()

	script := filepath.Join(t.TempDir(), "helpers.star")
	require.NoError(t, os.WriteFile(script, []byte("x = 1\n"), 0o600))

	meta := newMeta(t, language.Risor, "1")
	require.NoError(t, meta.AddModule("helpers", script))

	dir, opts := baseOptions(t)
	_, err := polyexpr.Compile(context.Background(), meta, opts...)
	require.ErrorIs(t, err, platform.ErrCompileFailure)
	assert.Empty(t, artifacts(t, dir))
}

func TestEvaluatorsAreIndependent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	dir, opts := baseOptions(t)
	first, err := polyexpr.Compile(ctx, newMeta(t, language.Starlark, "1 + 1"), opts...)
	require.NoError(t, err)
	second, err := polyexpr.Compile(ctx, newMeta(t, language.Starlark, "1 + 1"), opts...)
	require.NoError(t, err)
	assert.NotEqual(t, first.UnitPath(), second.UnitPath())
	require.Len(t, artifacts(t, dir), 2)

	require.NoError(t, first.Close())
	assert.Equal(t, int64(2), second.Evaluate(ctx, "1 + 1"))
	require.NoError(t, second.Close())
	assert.Empty(t, artifacts(t, dir))
}

func TestEvaluateAdHoc(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	dir, opts := baseOptions(t)
	got, err := polyexpr.EvaluateAdHoc(ctx, "starlark", "6 * 7", opts...)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got)

	got, err = polyexpr.EvaluateAdHoc(ctx, "risor", "\"a\" + \"b\"", opts...)
	require.NoError(t, err)
	assert.Equal(t, "ab", got)

	got, err = polyexpr.EvaluateAdHoc(ctx, "starlark", "   ", opts...)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = polyexpr.EvaluateAdHoc(ctx, "starlark", "1 +", opts...)
	require.ErrorIs(t, err, platform.ErrCompileFailure)

	_, err = polyexpr.EvaluateAdHoc(ctx, "cobol", "1", opts...)
	require.ErrorIs(t, err, platform.ErrInvalidInput)

	assert.Empty(t, artifacts(t, dir))
}

func TestMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	reg := prometheus.NewRegistry()
	_, opts := baseOptions(t, options.WithRegisterer(reg))

	ev, err := polyexpr.Compile(ctx, newMeta(t, language.Starlark, "1"), opts...)
	require.NoError(t, err)
	ev.Evaluate(ctx, "1")
	ev.Evaluate(ctx, "2")
	require.NoError(t, ev.Close())

	_, err = polyexpr.Compile(ctx, newMeta(t, language.Starlark, "1 +"), opts...)
	require.Error(t, err)

	count, err := testutil.GatherAndCount(reg,
		"polyexpr_compilations_total", "polyexpr_evaluations_total", "polyexpr_disposals_total")
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestSubprocessRuntime(t *testing.T) {
	if testing.Short() {
		t.Skip("starts child processes")
	}
	ctx := context.Background()

	rt, err := subprocess.New(subprocess.WithLogHandler(quietHandler()))
	require.NoError(t, err)

	for _, lang := range language.All() {
		t.Run(lang.String(), func(t *testing.T) {
			meta := newMeta(t, lang, "1 + 1", "Ctx.X")
			require.NoError(t, meta.AddExtension(extension.New("Ctx", map[string]any{"X": 5})))

			dir, opts := baseOptions(t, options.WithRuntime(rt))
			ev, err := polyexpr.Compile(ctx, meta, opts...)
			require.NoError(t, err)

			assert.Equal(t, int64(2), ev.Evaluate(ctx, "1 + 1"))
			assert.Equal(t, int64(5), ev.Evaluate(ctx, "Ctx.X"))
			assert.Nil(t, ev.Evaluate(ctx, "3 + 3"))

			require.NoError(t, ev.Close())
			assert.Empty(t, artifacts(t, dir))
			assert.Nil(t, ev.Evaluate(ctx, "1 + 1"))
		})
	}
}
