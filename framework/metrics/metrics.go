// Package metrics exposes Prometheus collectors for factory and container
// lifetimes.
//
// A *Metrics value implements container.Observer, so it can be handed to a
// factory with factory.WithMetrics and sees every construction and release in
// the whole tree.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gofactory"

// Release results used as the "result" label of InstancesReleased.
const (
	ResultOK    = "ok"
	ResultError = "error"
	ResultNone  = "none" // not disposable, reference dropped only
)

// Metrics holds the collectors. Build it once per process with New.
type Metrics struct {
	// FactoriesCreated counts root and derived factories.
	FactoriesCreated prometheus.Counter

	// FactoriesDisposed counts factories that completed disposal.
	FactoriesDisposed prometheus.Counter

	// InstancesConstructed counts successful constructions.
	// Labels: key
	InstancesConstructed *prometheus.CounterVec

	// InstancesReleased counts instances dropped by container teardown.
	// Labels: key, result (ok, error, none)
	InstancesReleased *prometheus.CounterVec

	// ConstructionFailures counts constructor errors.
	// Labels: key
	ConstructionFailures *prometheus.CounterVec

	// ConstructionDuration measures constructor latency.
	// Labels: key
	ConstructionDuration *prometheus.HistogramVec

	// LiveInstances tracks constructed instances not yet released.
	LiveInstances prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which is handy in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FactoriesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "factories_created_total",
			Help:      "Number of container factories created (root and derived).",
		}),
		FactoriesDisposed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "factories_disposed_total",
			Help:      "Number of container factories disposed.",
		}),
		InstancesConstructed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instances_constructed_total",
			Help:      "Number of service instances constructed.",
		}, []string{"key"}),
		InstancesReleased: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instances_released_total",
			Help:      "Number of service instances released on container teardown.",
		}, []string{"key", "result"}),
		ConstructionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "construction_failures_total",
			Help:      "Number of constructor calls that returned an error.",
		}, []string{"key"}),
		ConstructionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "construction_duration_seconds",
			Help:      "Time spent in service constructors.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		}, []string{"key"}),
		LiveInstances: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_instances",
			Help:      "Constructed service instances not yet released.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.FactoriesCreated,
			m.FactoriesDisposed,
			m.InstancesConstructed,
			m.InstancesReleased,
			m.ConstructionFailures,
			m.ConstructionDuration,
			m.LiveInstances,
		)
	}
	return m
}

// FactoryCreated records a new factory node.
func (m *Metrics) FactoryCreated() { m.FactoriesCreated.Inc() }

// FactoryDisposed records a completed factory disposal.
func (m *Metrics) FactoryDisposed() { m.FactoriesDisposed.Inc() }

// Constructed implements container.Observer.
func (m *Metrics) Constructed(key string, took time.Duration) {
	m.InstancesConstructed.WithLabelValues(key).Inc()
	m.ConstructionDuration.WithLabelValues(key).Observe(took.Seconds())
	m.LiveInstances.Inc()
}

// ConstructFailed implements container.Observer.
func (m *Metrics) ConstructFailed(key string, _ error) {
	m.ConstructionFailures.WithLabelValues(key).Inc()
}

// Released implements container.Observer.
func (m *Metrics) Released(key string, disposable bool, err error) {
	result := ResultNone
	switch {
	case err != nil:
		result = ResultError
	case disposable:
		result = ResultOK
	}
	m.InstancesReleased.WithLabelValues(key, result).Inc()
	m.LiveInstances.Dec()
}
