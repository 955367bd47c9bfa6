package scope

import (
	"errors"
	"log/slog"
	"time"

	"github.com/delaneyj/scopeparty/loop"
)

// DefaultTTL is how many extra passes a digest may take after the first one
// before it gives up with ErrDigestNotConverging.
const DefaultTTL = 10

// Scheduler runs callbacks outside the current call stack. Both deferral points
// of the engine, the EvalAsync fallback and the ApplyAsync trigger, go through it.
// Defer may return a nil cancel when the callback cannot be cancelled.
type Scheduler interface {
	Defer(fn func()) (cancel func())
}

// Instrumentation observes digests and suppressed failures of a scope family.
type Instrumentation interface {
	ObserveDigest(stats DigestStats)
	ObserveFailure(kind Kind)
}

// DigestStats describes one finished (or aborted) digest.
type DigestStats struct {
	ScopeID string
	Start   time.Time
	// Duration excludes the post-digest queue.
	Duration    time.Duration
	Passes      int
	Evaluations int
	Err         error
}

// Option configures a root scope and, through it, the whole family.
type Option func(*config)

type config struct {
	logger          *slog.Logger
	onError         ErrorHandler
	scheduler       Scheduler
	ttl             int
	instrumentation Instrumentation
}

// WithLogger sets the logger used for debug output and by the default error handler.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithErrorHandler replaces the default error handler, which logs.
func WithErrorHandler(handler ErrorHandler) Option {
	return func(c *config) {
		c.onError = handler
	}
}

// WithScheduler sets the host for deferred callbacks.
// Default: a fresh loop.Queue, reachable through (*Scope).Scheduler.
func WithScheduler(scheduler Scheduler) Option {
	return func(c *config) {
		c.scheduler = scheduler
	}
}

// WithTTL overrides DefaultTTL. Values below zero are ignored.
func WithTTL(ttl int) Option {
	return func(c *config) {
		if ttl >= 0 {
			c.ttl = ttl
		}
	}
}

// WithInstrumentation attaches digest and failure observers.
func WithInstrumentation(instrumentation Instrumentation) Option {
	return func(c *config) {
		c.instrumentation = instrumentation
	}
}

func defaultConfig() config {
	return config{
		logger:    slog.Default(),
		scheduler: loop.NewQueue(),
		ttl:       DefaultTTL,
	}
}

func logErrors(logger *slog.Logger) ErrorHandler {
	return func(err error) {
		var cbErr *CallbackError
		if errors.As(err, &cbErr) {
			logger.Error("scope: suppressed callback failure",
				"kind", cbErr.Kind.String(),
				"scope", cbErr.ScopeID,
				"error", cbErr.Err,
			)
			return
		}
		logger.Error("scope: suppressed failure", "error", err)
	}
}
