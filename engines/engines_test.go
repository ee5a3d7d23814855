package engines

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/robbyt/go-polyexpr/platform"
	"github.com/robbyt/go-polyexpr/platform/artifact"
	"github.com/robbyt/go-polyexpr/platform/language"
	"github.com/robbyt/go-polyexpr/platform/naming"
	"github.com/robbyt/go-polyexpr/platform/unit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripPerLanguage(t *testing.T) {
	t.Parallel()

	handler := slog.NewTextHandler(io.Discard, nil)
	for _, lang := range language.All() {
		t.Run(lang.String(), func(t *testing.T) {
			t.Parallel()

			u, err := unit.Build(unit.Request{Language: lang, Expressions: []string{"1 + 1"}})
			require.NoError(t, err)

			c, err := NewCompiler(lang, handler)
			require.NoError(t, err)
			h, err := c.Compile(context.Background(), u, t.TempDir())
			require.NoError(t, err)

			data, err := os.ReadFile(h.Path)
			require.NoError(t, err)
			art, err := artifact.Decode(data)
			require.NoError(t, err)

			l, err := NewLoader(lang, handler)
			require.NoError(t, err)
			tbl, err := l.Load(context.Background(), art, nil)
			require.NoError(t, err)
			t.Cleanup(func() { require.NoError(t, tbl.Close()) })

			name, err := naming.MethodName("1 + 1")
			require.NoError(t, err)
			v, err := tbl.Invoke(context.Background(), name)
			require.NoError(t, err)
			assert.Equal(t, int64(2), v.ToGo())
		})
	}
}

func TestNilHandler(t *testing.T) {
	t.Parallel()

	c, err := NewCompiler(language.Starlark, nil)
	require.NoError(t, err)
	assert.NotNil(t, c)

	l, err := NewLoader(language.Risor, nil)
	require.NoError(t, err)
	assert.NotNil(t, l)
}

func TestUnknownLanguage(t *testing.T) {
	t.Parallel()

	_, err := NewCompiler(language.Type("cobol"), nil)
	require.ErrorIs(t, err, platform.ErrInvalidInput)

	_, err = NewLoader(language.Type("cobol"), nil)
	require.ErrorIs(t, err, platform.ErrLoadFailure)
}
