package isolation

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/robbyt/go-polyexpr/platform"
	"github.com/robbyt/go-polyexpr/platform/boundary"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermissions(t *testing.T) {
	t.Parallel()

	perms := MinimalPermissions()
	require.NoError(t, perms.Validate())
	assert.Equal(t, uint64(DefaultMaxSteps), perms.Limits().MaxSteps)
	assert.Equal(t, uint32(DefaultMaxMemoryPages), perms.Limits().MaxMemoryPages)

	perms.Execute = false
	err := perms.Validate()
	require.ErrorIs(t, err, platform.ErrIsolationCreation)
	require.ErrorIs(t, err, ErrExecuteDenied)

	perms = MinimalPermissions()
	perms.Timeout = -1
	require.ErrorIs(t, perms.Validate(), platform.ErrIsolationCreation)
}

func TestCheckAnchor(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := writeFile(t, dir, "file", "x")

	got, err := CheckAnchor(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean(dir), got)

	for _, bad := range []string{"", "relative/dir", file, filepath.Join(dir, "missing")} {
		_, err := CheckAnchor(bad)
		require.ErrorIs(t, err, platform.ErrIsolationCreation, bad)
		require.ErrorIs(t, err, ErrAnchorInvalid, bad)
	}
}

func TestClient(t *testing.T) {
	t.Parallel()

	var seen []*boundary.Request
	transport := TransportFunc(func(_ context.Context, payload []byte) ([]byte, error) {
		req, err := boundary.DecodeRequest(payload)
		if err != nil {
			return nil, err
		}
		seen = append(seen, req)

		var resp *boundary.Response
		switch req.Op {
		case boundary.OpInvoke:
			if req.Name == "MethodMissing" {
				resp = boundary.Result(nil, platform.ErrUnknownEntryPoint)
			} else {
				resp = boundary.Result(boundary.Int(2), nil)
			}
		default:
			resp = boundary.Result(nil, nil)
		}
		return boundary.EncodeResponse(resp)
	})

	c := NewClient(transport)
	ctx := context.Background()

	require.NoError(t, c.InstallResolver(ctx, map[string]string{"helpers": "/tmp/helpers.star"}))
	require.NoError(t, c.Load(ctx, "/tmp/unit.pxu"))
	require.NoError(t, c.SetField(ctx, "Ctx", map[string]any{"X": 5}))

	v, err := c.Invoke(ctx, "MethodAB")
	require.NoError(t, err)
	assert.Equal(t, int64(2), v.ToGo())

	_, err = c.Invoke(ctx, "MethodMissing")
	require.ErrorIs(t, err, platform.ErrUnknownEntryPoint)

	require.NoError(t, c.Unload(ctx))

	require.Len(t, seen, 6)
	assert.Equal(t, boundary.OpInstallResolver, seen[0].Op)
	assert.Equal(t, "/tmp/helpers.star", seen[0].Modules["helpers"])
	assert.Equal(t, "/tmp/unit.pxu", seen[1].Path)
	assert.Equal(t, map[string]any{"X": int64(5)}, seen[2].Value.ToGo())
	assert.Equal(t, boundary.OpUnload, seen[5].Op)
}

func TestClientFailures(t *testing.T) {
	t.Parallel()

	t.Run("transport error", func(t *testing.T) {
		c := NewClient(TransportFunc(func(context.Context, []byte) ([]byte, error) {
			return nil, errors.New("pipe closed")
		}))
		_, err := c.Invoke(context.Background(), "MethodAB")
		require.ErrorIs(t, err, platform.ErrBoundaryFault)
	})

	t.Run("garbage response", func(t *testing.T) {
		c := NewClient(TransportFunc(func(context.Context, []byte) ([]byte, error) {
			return []byte("not json"), nil
		}))
		_, err := c.Invoke(context.Background(), "MethodAB")
		require.ErrorIs(t, err, platform.ErrBoundaryFault)
	})

	t.Run("unmarshallable field", func(t *testing.T) {
		called := false
		c := NewClient(TransportFunc(func(context.Context, []byte) ([]byte, error) {
			called = true
			return nil, nil
		}))
		err := c.SetField(context.Background(), "Fn", func() {})
		require.ErrorIs(t, err, platform.ErrExtensionNotMarshallable)
		assert.False(t, called)
	})
}
