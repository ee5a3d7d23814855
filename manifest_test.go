package polyexpr_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/robbyt/go-polyexpr"
	"github.com/robbyt/go-polyexpr/platform"
	"github.com/robbyt/go-polyexpr/platform/language"
	"github.com/robbyt/go-polyexpr/platform/manifest"
	"github.com/robbyt/go-polyexpr/platform/manifest/loader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromManifest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "helpers.star"), []byte("def double(x):\n    return x * 2\n"), 0o600))
	doc := strings.Join([]string{
		"language: starlark",
		"expressions:",
		"  - helpers.double(Ctx.X)",
		"  - math.floor(Limit / 4)",
		"imports: [math]",
		"modules:",
		"  helpers: helpers.star",
		"extensions:",
		"  Ctx: {X: 21}",
		"  Limit: 10",
	}, "\n")
	path := filepath.Join(dir, "exprs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	src, err := loader.NewFromDisk(path)
	require.NoError(t, err)
	m, err := manifest.Read(ctx, src)
	require.NoError(t, err)

	meta, err := polyexpr.FromManifest(m)
	require.NoError(t, err)
	assert.Equal(t, language.Starlark, meta.Language())
	assert.Equal(t, map[string]string{"helpers": filepath.Join(dir, "helpers.star")}, meta.Modules())

	_, opts := baseOptions(t)
	ev, err := polyexpr.Compile(ctx, meta, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ev.Close() })

	assert.Equal(t, int64(42), ev.Evaluate(ctx, "helpers.double(Ctx.X)"))
	assert.Equal(t, int64(2), ev.Evaluate(ctx, "math.floor(Limit / 4)"))
}

func TestFromManifestRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		m       *manifest.Manifest
		wantErr error
	}{
		{
			name:    "bad language",
			m:       &manifest.Manifest{Language: "cobol"},
			wantErr: platform.ErrInvalidInput,
		},
		{
			name:    "bad import",
			m:       &manifest.Manifest{Imports: []string{"not an ident"}},
			wantErr: platform.ErrInvalidInput,
		},
		{
			name:    "relative module without base",
			m:       &manifest.Manifest{Modules: map[string]string{"helpers": "helpers.star"}},
			wantErr: manifest.ErrRelativeModule,
		},
		{
			name:    "null extension",
			m:       &manifest.Manifest{Extensions: map[string]any{"Ctx": nil}},
			wantErr: platform.ErrInvalidInput,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := polyexpr.FromManifest(tt.m)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}
