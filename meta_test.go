package polyexpr

import (
	"path/filepath"
	"reflect"
	"testing"

	"github.com/robbyt/go-polyexpr/platform"
	"github.com/robbyt/go-polyexpr/platform/extension"
	"github.com/robbyt/go-polyexpr/platform/language"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMeta(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		lang    string
		want    language.Type
		wantErr bool
	}{
		{name: "default", lang: "", want: language.Starlark},
		{name: "starlark", lang: "starlark", want: language.Starlark},
		{name: "case insensitive", lang: "RISOR", want: language.Risor},
		{name: "unknown", lang: "cobol", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, err := NewMeta(tt.lang)
			if tt.wantErr {
				require.ErrorIs(t, err, platform.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Language())
		})
	}
}

func TestAddExpression(t *testing.T) {
	t.Parallel()

	m, err := NewMeta("")
	require.NoError(t, err)

	require.NoError(t, m.AddExpressions("1 + 1", "2 + 2", "1 + 1"))
	assert.Equal(t, []string{"1 + 1", "2 + 2"}, m.Expressions())

	require.ErrorIs(t, m.AddExpression(""), platform.ErrInvalidInput)
	require.ErrorIs(t, m.AddExpression(" \t\n"), platform.ErrInvalidInput)
	require.ErrorIs(t, m.AddExpressions("3", ""), platform.ErrInvalidInput)
	assert.Equal(t, []string{"1 + 1", "2 + 2", "3"}, m.Expressions())
}

func TestAddExtension(t *testing.T) {
	t.Parallel()

	m, err := NewMeta("starlark")
	require.NoError(t, err)

	require.NoError(t, m.AddExtension(extension.New("Ctx", map[string]any{"X": 5})))
	require.NoError(t, m.AddExtension(extension.Extension{Name: "Typed", Type: reflect.TypeOf(0)}))

	err = m.AddExtension(extension.New("Ctx", 1))
	require.ErrorIs(t, err, platform.ErrInvalidInput)

	err = m.AddExtension(extension.Extension{Name: "Untyped"})
	require.ErrorIs(t, err, platform.ErrInvalidInput)

	err = m.AddExtension(extension.New("not valid", 1))
	require.ErrorIs(t, err, platform.ErrInvalidInput)

	exts := m.Extensions()
	require.Len(t, exts, 2)
	assert.Equal(t, "Ctx", exts[0].Name)
	assert.Equal(t, "Typed", exts[1].Name)
}

func TestAddImportAndReference(t *testing.T) {
	t.Parallel()

	m, err := NewMeta("starlark")
	require.NoError(t, err)

	require.NoError(t, m.AddImport("math"))
	require.NoError(t, m.AddImport("math"))
	require.ErrorIs(t, m.AddImport("1bad"), platform.ErrInvalidInput)
	require.ErrorIs(t, m.AddImport("def"), platform.ErrInvalidInput)

	require.NoError(t, m.AddReference("example.com/pkg"))
	require.ErrorIs(t, m.AddReference("  "), platform.ErrInvalidInput)

	req := m.Request()
	assert.Equal(t, []string{"math"}, req.Imports)
	assert.Equal(t, []string{"example.com/pkg"}, req.References)
}

func TestAddModule(t *testing.T) {
	t.Parallel()

	m, err := NewMeta("starlark")
	require.NoError(t, err)

	require.NoError(t, m.AddModule("helpers", "modules/helpers.star"))
	require.ErrorIs(t, m.AddModule("other", ""), platform.ErrInvalidInput)
	require.ErrorIs(t, m.AddModule("bad name", "x.star"), platform.ErrInvalidInput)

	mods := m.Modules()
	require.Len(t, mods, 1)
	assert.True(t, filepath.IsAbs(mods["helpers"]))
	assert.Equal(t, "helpers.star", filepath.Base(mods["helpers"]))

	req := m.Request()
	assert.Contains(t, req.Imports, "helpers")
	assert.Contains(t, req.References, "helpers")

	mods["helpers"] = "/elsewhere"
	assert.NotEqual(t, "/elsewhere", m.Modules()["helpers"])
}

func TestRequestIsSnapshot(t *testing.T) {
	t.Parallel()

	m, err := NewMeta("risor")
	require.NoError(t, err)
	require.NoError(t, m.AddExpression("1 + 1"))
	require.NoError(t, m.AddImport("strings"))

	req := m.Request()
	req.Expressions[0] = "mutated"
	req.Imports[0] = "mutated"

	require.NoError(t, m.AddExpression("2 + 2"))
	assert.Equal(t, []string{"1 + 1", "2 + 2"}, m.Expressions())
	assert.Equal(t, []string{"strings"}, m.Request().Imports)
	assert.Equal(t, language.Risor, req.Language)
}
