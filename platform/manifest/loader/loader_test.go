package loader

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testManifest = "language: starlark\nexpressions:\n  - 1 + 1\n"

func readAll(t *testing.T, l Loader) string {
	t.Helper()
	rc, err := l.GetReader(context.Background())
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()
	content, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(content)
}

func TestNew(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "exprs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testManifest), 0o600))

	tests := []struct {
		name       string
		location   string
		wantScheme string
		wantErr    error
	}{
		{"absolute path", path, "file", nil},
		{"file scheme", "file://" + path, "file", nil},
		{"https", "https://example.com/exprs.yaml", "https", nil},
		{"http", "http://example.com/exprs.yaml", "http", nil},
		{"ftp", "ftp://example.com/exprs.yaml", "", ErrSchemeUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			l, err := New(tt.location, nil)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantScheme, l.GetSourceURL().Scheme)
		})
	}
}

func TestNewRelativePath(t *testing.T) {
	t.Parallel()

	l, err := New("exprs.yaml", nil)
	require.NoError(t, err)

	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(wd, "exprs.yaml"), l.GetSourceURL().Path)
}

func TestFromDisk(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "exprs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testManifest), 0o600))

	l, err := NewFromDisk(path)
	require.NoError(t, err)
	assert.Equal(t, testManifest, readAll(t, l))
	assert.Equal(t, path, l.GetSourceURL().Path)
	assert.Contains(t, l.String(), "SHA256: ")

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		missing, err := NewFromDisk(filepath.Join(dir, "nope.yaml"))
		require.NoError(t, err)
		_, err = missing.GetReader(context.Background())
		require.ErrorIs(t, err, ErrNotAvailable)
		assert.NotContains(t, missing.String(), "SHA256")
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := l.GetReader(ctx)
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("rejected paths", func(t *testing.T) {
		t.Parallel()
		for _, p := range []string{"relative.yaml", "/", "https://example.com/x.yaml"} {
			_, err := NewFromDisk(p)
			require.Error(t, err, p)
		}
	})
}

func TestFromString(t *testing.T) {
	t.Parallel()

	l, err := NewFromString("  " + testManifest + "  ")
	require.NoError(t, err)
	assert.Equal(t, strings.TrimSpace(testManifest), readAll(t, l))
	assert.Equal(t, "string", l.GetSourceURL().Scheme)
	assert.Equal(t, "loader.FromString{Chars: 41}", l.String())

	_, err = NewFromString(" \n\t")
	require.ErrorIs(t, err, ErrNotAvailable)
}

func TestFromIoReader(t *testing.T) {
	t.Parallel()

	l, err := NewFromIoReader(strings.NewReader(testManifest), "stdin")
	require.NoError(t, err)
	assert.Equal(t, testManifest, readAll(t, l))
	assert.Equal(t, testManifest, readAll(t, l))
	assert.Equal(t, "stdin", l.GetSourceURL().Host)

	unnamed, err := NewFromIoReader(strings.NewReader(testManifest), "")
	require.NoError(t, err)
	assert.Equal(t, "unnamed", unnamed.GetSourceURL().Host)

	_, err = NewFromIoReader(nil, "x")
	require.ErrorIs(t, err, ErrNotAvailable)
	_, err = NewFromIoReader(strings.NewReader("   "), "x")
	require.ErrorIs(t, err, ErrNotAvailable)
}
