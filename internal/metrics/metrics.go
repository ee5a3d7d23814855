// Package metrics records compile, evaluate and dispose activity with prometheus. A nil
// *Metrics records nothing.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "polyexpr"

// Evaluation outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeFailure = "failure"
)

// Disposal paths.
const (
	PathOrderly = "orderly"
	PathLeaked  = "leaked"
)

type Metrics struct {
	compiles        *prometheus.CounterVec
	compileDuration *prometheus.HistogramVec
	evaluations     *prometheus.CounterVec
	evalDuration    prometheus.Histogram
	disposals       *prometheus.CounterVec
	live            prometheus.Gauge
}

// New creates the collectors and registers them with reg. Collectors that are already
// registered are reused. A nil reg disables metrics and returns a nil *Metrics.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, nil
	}
	m := &Metrics{
		compiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compilations_total",
			Help:      "Compile pipeline runs by language and result.",
		}, []string{"language", "result"}),
		compileDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "compilation_duration_seconds",
			Help:      "Time from request to a ready evaluator.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"language"}),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Evaluate calls by outcome.",
		}, []string{"outcome"}),
		evalDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_duration_seconds",
			Help:      "Round trip time of Evaluate.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		disposals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disposals_total",
			Help:      "Evaluators torn down, by path.",
		}, []string{"path"}),
		live: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_evaluators",
			Help:      "Evaluators created and not yet disposed.",
		}),
	}

	var err error
	if m.compiles, err = register(reg, m.compiles); err != nil {
		return nil, err
	}
	if m.compileDuration, err = register(reg, m.compileDuration); err != nil {
		return nil, err
	}
	if m.evaluations, err = register(reg, m.evaluations); err != nil {
		return nil, err
	}
	if m.evalDuration, err = register(reg, m.evalDuration); err != nil {
		return nil, err
	}
	if m.disposals, err = register(reg, m.disposals); err != nil {
		return nil, err
	}
	if m.live, err = register(reg, m.live); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing, nil
		}
	}
	return c, fmt.Errorf("failed to register metrics: %w", err)
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// Compiled records one run of the compile pipeline.
func (m *Metrics) Compiled(language string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.compiles.WithLabelValues(language, result(err)).Inc()
	if err == nil {
		m.compileDuration.WithLabelValues(language).Observe(time.Since(started).Seconds())
		m.live.Inc()
	}
}

// Evaluated records one Evaluate call.
func (m *Metrics) Evaluated(started time.Time, outcome string) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(outcome).Inc()
	m.evalDuration.Observe(time.Since(started).Seconds())
}

// Disposed records a teardown through path.
func (m *Metrics) Disposed(path string) {
	if m == nil {
		return
	}
	m.disposals.WithLabelValues(path).Inc()
	m.live.Dec()
}
