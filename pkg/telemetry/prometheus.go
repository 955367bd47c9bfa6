// Package telemetry exports digest and failure observations of scope families
// to Prometheus and OpenTelemetry. Every exporter implements
// scope.Instrumentation and is attached with scope.WithInstrumentation.
package telemetry

import (
	"github.com/delaneyj/scopeparty/scope"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures the Prometheus exporter.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "scopeparty").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for digest duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus exporter.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the duration histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "scopeparty",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Result label values of digests_total.
const (
	ResultOK           = "ok"
	ResultNotConverged = "not_converged"
)

// Prometheus records digests and suppressed callback failures.
//
// Metrics collected:
//   - scopeparty_digests_total: Counter of digests by result
//   - scopeparty_digest_passes: Histogram of dirty-checking passes per digest
//   - scopeparty_digest_duration_seconds: Histogram of digest duration
//   - scopeparty_watch_evaluations_total: Counter of watch function calls
//   - scopeparty_callback_failures_total: Counter of suppressed failures by kind
type Prometheus struct {
	digestsTotal     *prometheus.CounterVec
	digestPasses     prometheus.Histogram
	digestDuration   prometheus.Histogram
	watchEvaluations prometheus.Counter
	callbackFailures *prometheus.CounterVec
}

// NewPrometheus registers the metrics with the configured registry. Like every
// promauto constructor it panics when the metrics are already registered there.
func NewPrometheus(opts ...MetricsOption) *Prometheus {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Prometheus{
		digestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "digests_total",
			Help:        "Total number of digests run",
			ConstLabels: config.ConstLabels,
		}, []string{"result"}),

		digestPasses: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "digest_passes",
			Help:        "Dirty-checking passes per digest",
			ConstLabels: config.ConstLabels,
			Buckets:     prometheus.LinearBuckets(1, 1, scope.DefaultTTL+1),
		}),

		digestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "digest_duration_seconds",
			Help:        "Digest duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),

		watchEvaluations: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "watch_evaluations_total",
			Help:        "Total number of watch function evaluations",
			ConstLabels: config.ConstLabels,
		}),

		callbackFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "callback_failures_total",
			Help:        "Total number of suppressed callback failures by kind",
			ConstLabels: config.ConstLabels,
		}, []string{"kind"}),
	}
}

func (p *Prometheus) ObserveDigest(stats scope.DigestStats) {
	result := ResultOK
	if stats.Err != nil {
		result = ResultNotConverged
	}
	p.digestsTotal.WithLabelValues(result).Inc()
	p.digestPasses.Observe(float64(stats.Passes))
	p.digestDuration.Observe(stats.Duration.Seconds())
	p.watchEvaluations.Add(float64(stats.Evaluations))
}

func (p *Prometheus) ObserveFailure(kind scope.Kind) {
	p.callbackFailures.WithLabelValues(kind.String()).Inc()
}
