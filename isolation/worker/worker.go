// Package worker runs an execution proxy on a dedicated goroutine. The host reaches it
// only through encoded requests handed over a channel.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/robbyt/go-polyexpr/internal/helpers"
	"github.com/robbyt/go-polyexpr/isolation"
	"github.com/robbyt/go-polyexpr/isolation/proxy"
	"github.com/robbyt/go-polyexpr/platform"
)

// Runtime creates worker contexts.
type Runtime struct {
	handler slog.Handler
	logger  *slog.Logger
}

// New creates a worker runtime. A nil handler selects the default logger.
func New(handler slog.Handler) *Runtime {
	h, logger := helpers.SetupLogger(handler, "isolation", "Worker")
	return &Runtime{handler: h, logger: logger}
}

func (r *Runtime) String() string {
	return "worker.Runtime"
}

// Create starts a worker goroutine owning a fresh proxy anchored at anchorDir.
func (r *Runtime) Create(ctx context.Context, anchorDir string, perms isolation.Permissions) (isolation.Context, error) {
	if err := perms.Validate(); err != nil {
		return nil, err
	}
	anchor, err := isolation.CheckAnchor(anchorDir)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", platform.ErrIsolationCreation, err)
	}

	id := uuid.NewString()
	w := &worker{
		id:     id,
		proxy:  proxy.New(isolation.NewGate(anchor), perms, r.handler),
		calls:  make(chan call),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: r.logger.With("id", id),
	}
	w.handle = w.proxy.Handle
	w.client = isolation.NewClient(w)
	go w.run()

	w.logger.DebugContext(ctx, "Worker started", "anchor", anchor)
	return w, nil
}

type call struct {
	ctx     context.Context
	payload []byte
	reply   chan result
}

type result struct {
	data []byte
	err  error
}

type worker struct {
	id     string
	proxy  *proxy.Proxy
	handle func(ctx context.Context, payload []byte) []byte
	client *isolation.Client
	logger *slog.Logger

	calls    chan call
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func (w *worker) ID() string {
	return w.id
}

func (w *worker) Proxy() *isolation.Client {
	return w.client
}

func (w *worker) run() {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		case c := <-w.calls:
			data, err := w.serve(c)
			c.reply <- result{data: data, err: err}
			if err != nil {
				w.logger.Error("Worker stopped after a fault", "error", err)
				return
			}
		}
	}
}

// serve runs one request. A panic kills the worker and is reported as a boundary fault.
func (w *worker) serve(c call) (data []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: worker panicked: %v", platform.ErrBoundaryFault, r)
		}
	}()
	return w.handle(c.ctx, c.payload), nil
}

// RoundTrip hands payload to the worker goroutine. When ctx ends first the request is
// abandoned; the worker still finishes it and drops the reply.
func (w *worker) RoundTrip(ctx context.Context, payload []byte) ([]byte, error) {
	reply := make(chan result, 1)
	select {
	case w.calls <- call{ctx: ctx, payload: payload, reply: reply}:
	case <-w.done:
		return nil, fmt.Errorf("%w: worker %s is not running", platform.ErrBoundaryFault, w.id)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-reply:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Unload asks the proxy to release the container, then stops the goroutine. A container
// the round trip could not reach is released directly.
func (w *worker) Unload(ctx context.Context) error {
	err := w.client.Unload(ctx)
	w.halt()

	select {
	case <-w.done:
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	}
	w.logger.DebugContext(ctx, "Worker unloaded")
	return errors.Join(err, w.proxy.Close())
}

// Abandon stops the goroutine and releases the container once it has exited, without a
// round trip.
func (w *worker) Abandon() {
	w.halt()
	go func() {
		<-w.done
		if err := w.proxy.Close(); err != nil {
			w.logger.Warn("Failed to release abandoned container", "error", err)
		}
	}()
}

func (w *worker) halt() {
	w.stopOnce.Do(func() { close(w.stop) })
}
