package telemetry

import (
	"context"
	"time"

	"github.com/delaneyj/scopeparty/scope"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultTracerName = "scopeparty"

// TracerConfig configures the OpenTelemetry exporter.
type TracerConfig struct {
	// TracerName is the name of the tracer (default: "scopeparty").
	TracerName string

	// Provider supplies the tracer. Default: the global provider.
	Provider trace.TracerProvider
}

// TracerOption configures the OpenTelemetry exporter.
type TracerOption func(*TracerConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) TracerOption {
	return func(c *TracerConfig) {
		c.TracerName = name
	}
}

// WithTracerProvider sets the provider the tracer is taken from.
func WithTracerProvider(provider trace.TracerProvider) TracerOption {
	return func(c *TracerConfig) {
		c.Provider = provider
	}
}

// Tracer turns every digest into a span. Digests are reported once they are
// over, so spans are started and ended with the recorded timestamps.
// Suppressed failures become short error spans of their own.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer resolves the tracer from the configured provider.
func NewTracer(opts ...TracerOption) *Tracer {
	config := TracerConfig{TracerName: defaultTracerName}
	for _, opt := range opts {
		opt(&config)
	}
	if config.Provider == nil {
		config.Provider = otel.GetTracerProvider()
	}
	return &Tracer{tracer: config.Provider.Tracer(config.TracerName)}
}

func (t *Tracer) ObserveDigest(stats scope.DigestStats) {
	_, span := t.tracer.Start(context.Background(), "scope.digest",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithTimestamp(stats.Start),
		trace.WithAttributes(
			attribute.String("scope.id", stats.ScopeID),
			attribute.Int("scope.digest.passes", stats.Passes),
			attribute.Int("scope.digest.evaluations", stats.Evaluations),
		),
	)
	if stats.Err != nil {
		span.RecordError(stats.Err, trace.WithTimestamp(stats.Start.Add(stats.Duration)))
		span.SetStatus(codes.Error, stats.Err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(stats.Start.Add(stats.Duration)))
}

func (t *Tracer) ObserveFailure(kind scope.Kind) {
	now := time.Now()
	_, span := t.tracer.Start(context.Background(), "scope.callback_failure",
		trace.WithTimestamp(now),
		trace.WithAttributes(attribute.String("scope.callback.kind", kind.String())),
	)
	span.SetStatus(codes.Error, kind.String()+" callback failed")
	span.End(trace.WithTimestamp(now))
}
