// Package evaluator owns a loaded expression container: its isolation context and its
// on-disk artifact. Both are released exactly once, by Close or, for an evaluator that
// was dropped without Close, by a cleanup registered with the garbage collector.
package evaluator

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robbyt/go-polyexpr/internal/helpers"
	"github.com/robbyt/go-polyexpr/internal/metrics"
	"github.com/robbyt/go-polyexpr/isolation"
	"github.com/robbyt/go-polyexpr/platform"
	"github.com/robbyt/go-polyexpr/platform/artifact"
	"github.com/robbyt/go-polyexpr/platform/naming"
)

// closeTimeout bounds the orderly unload round trip in Close.
const closeTimeout = 30 * time.Second

var _ platform.Evaluator = (*Evaluator)(nil)

// Evaluator evaluates the expressions of one compiled container.
type Evaluator struct {
	id      string
	client  *isolation.Client
	res     *resources
	cleanup runtime.Cleanup
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// resources is everything teardown needs. It must not point back at the Evaluator, or
// the cleanup would keep it alive.
type resources struct {
	disposed atomic.Bool
	iso      isolation.Context
	unitPath string
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// New takes ownership of iso and of the artifact at unitPath. It is called by the compile
// pipeline once the container is loaded and its fields are bound.
func New(iso isolation.Context, unitPath string, handler slog.Handler, m *metrics.Metrics) *Evaluator {
	_, logger := helpers.SetupLogger(handler, "polyexpr", "Evaluator")
	id := uuid.NewString()
	logger = logger.With("id", id, "context", iso.ID())

	res := &resources{
		iso:      iso,
		unitPath: unitPath,
		logger:   logger,
		metrics:  m,
	}
	e := &Evaluator{
		id:      id,
		client:  iso.Proxy(),
		res:     res,
		logger:  logger,
		metrics: m,
	}
	e.cleanup = runtime.AddCleanup(e, (*resources).abandon, res)
	return e
}

func (e *Evaluator) ID() string {
	return e.id
}

// UnitPath is the location of the artifact this evaluator owns.
func (e *Evaluator) UnitPath() string {
	return e.res.unitPath
}

func (e *Evaluator) IsDisposed() bool {
	return e.res.disposed.Load()
}

// Evaluate runs the entry point generated for expression. Every failure yields nil and is
// logged; a nil result and a failure look the same to the caller.
func (e *Evaluator) Evaluate(ctx context.Context, expression string) any {
	defer runtime.KeepAlive(e)
	started := time.Now()

	out, err := e.evaluate(ctx, expression)
	if err != nil {
		e.metrics.Evaluated(started, metrics.OutcomeFailure)
		switch {
		case errors.Is(err, platform.ErrUnknownEntryPoint),
			errors.Is(err, platform.ErrDisposed),
			errors.Is(err, platform.ErrInvalidInput):
			e.logger.DebugContext(ctx, "Evaluation returned nil", "expression", expression, "error", err)
		default:
			e.logger.WarnContext(ctx, "Evaluation failed", "expression", expression, "error", err)
		}
		return nil
	}
	e.metrics.Evaluated(started, metrics.OutcomeOK)
	return out
}

func (e *Evaluator) evaluate(ctx context.Context, expression string) (any, error) {
	if e.res.disposed.Load() {
		return nil, platform.ErrDisposed
	}
	name, err := naming.MethodName(expression)
	if err != nil {
		return nil, err
	}
	v, err := e.client.Invoke(ctx, name)
	if err != nil {
		return nil, err
	}
	return v.ToGo(), nil
}

// Close unloads the isolation context and deletes the artifact. Later calls return nil
// and do nothing.
func (e *Evaluator) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	return e.CloseContext(ctx)
}

// CloseContext is Close with a caller-supplied bound on the unload round trip.
func (e *Evaluator) CloseContext(ctx context.Context) error {
	defer runtime.KeepAlive(e)
	e.cleanup.Stop()
	return e.res.release(ctx)
}

// release is the orderly path: unload with a round trip, then delete the file.
func (r *resources) release(ctx context.Context) error {
	if !r.disposed.CompareAndSwap(false, true) {
		return nil
	}
	unloadErr := r.iso.Unload(ctx)
	removeErr := artifact.Remove(r.unitPath)
	r.metrics.Disposed(metrics.PathOrderly)
	r.logger.DebugContext(ctx, "Evaluator closed", "unload_error", unloadErr, "remove_error", removeErr)
	return errors.Join(unloadErr, removeErr)
}

// abandon is the leak path: the owner is gone, so nobody waits for an orderly unload.
func (r *resources) abandon() {
	if !r.disposed.CompareAndSwap(false, true) {
		return
	}
	r.iso.Abandon()
	if err := artifact.Remove(r.unitPath); err != nil {
		r.logger.Warn("Failed to remove artifact of leaked evaluator", "path", r.unitPath, "error", err)
	}
	r.metrics.Disposed(metrics.PathLeaked)
	r.logger.Warn("Evaluator was not closed, released by cleanup", "path", r.unitPath)
}
