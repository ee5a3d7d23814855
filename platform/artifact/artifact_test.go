package artifact

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/robbyt/go-polyexpr/platform/language"
	"github.com/robbyt/go-polyexpr/platform/unit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildUnit(t *testing.T) *unit.Unit {
	t.Helper()
	u, err := unit.Build(unit.Request{
		Language:    language.Starlark,
		Expressions: []string{"1 + 1"},
	})
	require.NoError(t, err)
	return u
}

func TestWriteAndRead(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := FromAbstract(buildUnit(t), []byte{0x00, 0x01, 0xff})

	h, err := Write(dir, src)
	require.NoError(t, err)
	assert.Equal(t, dir, h.Dir())
	assert.True(t, strings.HasSuffix(h.Path, Extension))
	assert.Equal(t, "CompiledExpressions.CompiledExpressions", h.TypeName)

	data, err := os.ReadFile(h.Path)
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, src, got)
	assert.True(t, got.HasMethod(src.Methods[0].Name))
	assert.False(t, got.HasMethod("MethodX"))
}

func TestWriteUniqueNames(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := FromAbstract(buildUnit(t), nil)
	a, err := Write(dir, src)
	require.NoError(t, err)
	b, err := Write(dir, src)
	require.NoError(t, err)
	assert.NotEqual(t, a.Path, b.Path)
}

func TestWriteCreatesDir(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "work")
	h, err := Write(dir, FromAbstract(buildUnit(t), nil))
	require.NoError(t, err)
	assert.FileExists(t, h.Path)
}

func TestWriteRejects(t *testing.T) {
	t.Parallel()

	_, err := Write("", FromAbstract(buildUnit(t), nil))
	require.ErrorIs(t, err, ErrEmptyDir)

	_, err = Write(t.TempDir(), nil)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		data    string
		wantErr error
	}{
		{name: "not json", data: "garbage", wantErr: ErrMalformed},
		{name: "wrong version", data: `{"version":99,"language":"starlark","type_name":"A.B"}`, wantErr: ErrVersionMismatch},
		{name: "missing type", data: `{"version":1,"language":"starlark"}`, wantErr: ErrMalformed},
		{name: "bad language", data: `{"version":1,"language":"cobol","type_name":"A.B"}`, wantErr: ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Decode([]byte(tt.data))
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRemove(t *testing.T) {
	t.Parallel()

	h, err := Write(t.TempDir(), FromAbstract(buildUnit(t), nil))
	require.NoError(t, err)

	require.NoError(t, Remove(h.Path))
	assert.NoFileExists(t, h.Path)
	require.NoError(t, Remove(h.Path), "removing twice is not an error")
}
