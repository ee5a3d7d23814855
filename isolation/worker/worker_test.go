package worker

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/robbyt/go-polyexpr/engines"
	"github.com/robbyt/go-polyexpr/isolation"
	"github.com/robbyt/go-polyexpr/platform"
	"github.com/robbyt/go-polyexpr/platform/naming"
	"github.com/robbyt/go-polyexpr/platform/unit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietRuntime() *Runtime {
	return New(slog.NewTextHandler(io.Discard, nil))
}

func compileInto(t *testing.T, dir string, exprs ...string) string {
	t.Helper()
	u, err := unit.Build(unit.Request{Expressions: exprs})
	require.NoError(t, err)
	c, err := engines.NewCompiler(u.Language, slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, err)
	h, err := c.Compile(context.Background(), u, dir)
	require.NoError(t, err)
	return h.Path
}

func TestCreateFailsClosed(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))

	denied := isolation.MinimalPermissions()
	denied.Execute = false

	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name   string
		ctx    context.Context
		anchor string
		perms  isolation.Permissions
	}{
		{name: "no execute", ctx: context.Background(), anchor: dir, perms: denied},
		{name: "relative anchor", ctx: context.Background(), anchor: "rel", perms: isolation.MinimalPermissions()},
		{name: "file anchor", ctx: context.Background(), anchor: file, perms: isolation.MinimalPermissions()},
		{name: "canceled", ctx: canceled, anchor: dir, perms: isolation.MinimalPermissions()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			iso, err := quietRuntime().Create(tt.ctx, tt.anchor, tt.perms)
			require.ErrorIs(t, err, platform.ErrIsolationCreation)
			assert.Nil(t, iso)
		})
	}
}

func TestWorkerRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	anchor := t.TempDir()
	path := compileInto(t, anchor, "1 + 1")

	iso, err := quietRuntime().Create(ctx, anchor, isolation.MinimalPermissions())
	require.NoError(t, err)
	assert.NotEmpty(t, iso.ID())

	client := iso.Proxy()
	require.NoError(t, client.InstallResolver(ctx, nil))
	require.NoError(t, client.Load(ctx, path))

	name, err := naming.MethodName("1 + 1")
	require.NoError(t, err)
	v, err := client.Invoke(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v.ToGo())

	require.NoError(t, iso.Unload(ctx))

	_, err = client.Invoke(ctx, name)
	require.ErrorIs(t, err, platform.ErrBoundaryFault)
}

func TestWorkerPanicKillsWorker(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	iso, err := quietRuntime().Create(ctx, t.TempDir(), isolation.MinimalPermissions())
	require.NoError(t, err)

	w := iso.(*worker)
	w.handle = func(context.Context, []byte) []byte { panic("boom") }

	_, err = w.Proxy().Invoke(ctx, "MethodAB")
	require.ErrorIs(t, err, platform.ErrBoundaryFault)

	select {
	case <-w.done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}

	_, err = w.Proxy().Invoke(ctx, "MethodAB")
	require.ErrorIs(t, err, platform.ErrBoundaryFault)
	require.Error(t, iso.Unload(ctx))
}

func TestWorkerAbandonedRequest(t *testing.T) {
	t.Parallel()

	iso, err := quietRuntime().Create(context.Background(), t.TempDir(), isolation.MinimalPermissions())
	require.NoError(t, err)

	w := iso.(*worker)
	release := make(chan struct{})
	w.handle = func(context.Context, []byte) []byte {
		<-release
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = w.Proxy().Invoke(ctx, "MethodAB")
	require.ErrorIs(t, err, platform.ErrBoundaryFault)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	iso.Abandon()
	iso.Abandon()

	select {
	case <-w.done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
}
