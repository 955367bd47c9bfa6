package telemetry_test

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/delaneyj/scopeparty/pkg/telemetry"
	"github.com/delaneyj/scopeparty/scope"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func quietRoot(in scope.Instrumentation) *scope.Scope {
	return scope.New(
		scope.WithInstrumentation(in),
		scope.WithErrorHandler(func(error) {}),
		scope.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

// counts digests, evaluations and suppressed failures of a real scope
func TestPrometheusObservesScope(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := telemetry.NewPrometheus(telemetry.WithRegistry(reg))
	root := quietRoot(p)
	root.Set("a", 1)

	root.Watch(func(*scope.Scope) any { panic("broken") }, nil)
	root.Watch(scope.Field("a"), nil)
	require.NoError(t, root.Digest())

	expected := `
# HELP scopeparty_callback_failures_total Total number of suppressed callback failures by kind
# TYPE scopeparty_callback_failures_total counter
scopeparty_callback_failures_total{kind="watch"} 2
# HELP scopeparty_digests_total Total number of digests run
# TYPE scopeparty_digests_total counter
scopeparty_digests_total{result="ok"} 1
# HELP scopeparty_watch_evaluations_total Total number of watch function evaluations
# TYPE scopeparty_watch_evaluations_total counter
scopeparty_watch_evaluations_total 4
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"scopeparty_callback_failures_total",
		"scopeparty_digests_total",
		"scopeparty_watch_evaluations_total",
	)
	assert.NoError(t, err)
}

// labels digests that ran out of passes
func TestPrometheusNotConverged(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := telemetry.NewPrometheus(telemetry.WithRegistry(reg), telemetry.WithNamespace("app"))
	root := quietRoot(p)
	root.Watch(func(*scope.Scope) any { return new(int) }, nil)

	require.ErrorIs(t, root.Digest(), scope.ErrDigestNotConverging)

	count, err := testutil.GatherAndCount(reg, "app_digests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	expected := `
# HELP app_digests_total Total number of digests run
# TYPE app_digests_total counter
app_digests_total{result="not_converged"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "app_digests_total"))
}

func newRecorder() (*tracetest.SpanRecorder, *telemetry.Tracer) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	return recorder, telemetry.NewTracer(telemetry.WithTracerProvider(provider))
}

// turns a digest into a span with the recorded timing
func TestTracerDigestSpan(t *testing.T) {
	recorder, tracer := newRecorder()
	start := time.Unix(1700000000, 0)

	tracer.ObserveDigest(scope.DigestStats{
		ScopeID:     "root",
		Start:       start,
		Duration:    5 * time.Millisecond,
		Passes:      2,
		Evaluations: 7,
	})

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "scope.digest", span.Name())
	assert.True(t, start.Equal(span.StartTime()))
	assert.True(t, start.Add(5*time.Millisecond).Equal(span.EndTime()))
	assert.Equal(t, codes.Ok, span.Status().Code)
	assert.Contains(t, span.Attributes(), attribute.String("scope.id", "root"))
	assert.Contains(t, span.Attributes(), attribute.Int("scope.digest.passes", 2))
	assert.Contains(t, span.Attributes(), attribute.Int("scope.digest.evaluations", 7))
}

// marks failed digests and callback failures as errors
func TestTracerErrors(t *testing.T) {
	recorder, tracer := newRecorder()

	tracer.ObserveDigest(scope.DigestStats{
		ScopeID: "root",
		Start:   time.Now(),
		Err:     errors.New("not converging"),
	})
	tracer.ObserveFailure(scope.KindListener)

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	assert.Equal(t, codes.Error, spans[0].Status().Code)
	require.NotEmpty(t, spans[0].Events())
	assert.Equal(t, "exception", spans[0].Events()[0].Name)

	assert.Equal(t, "scope.callback_failure", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Contains(t, spans[1].Attributes(), attribute.String("scope.callback.kind", "listener"))
}

// fans out to every instrumentation and skips nils
func TestMulti(t *testing.T) {
	regA, regB := prometheus.NewRegistry(), prometheus.NewRegistry()
	recorder, tracer := newRecorder()
	in := telemetry.Multi(
		telemetry.NewPrometheus(telemetry.WithRegistry(regA)),
		nil,
		telemetry.NewPrometheus(telemetry.WithRegistry(regB)),
		tracer,
	)

	root := quietRoot(in)
	require.NoError(t, root.Digest())

	for _, reg := range []*prometheus.Registry{regA, regB} {
		count, err := testutil.GatherAndCount(reg, "scopeparty_digests_total")
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	}
	assert.Len(t, recorder.Ended(), 1)
}
