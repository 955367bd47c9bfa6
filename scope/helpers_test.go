package scope_test

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/delaneyj/scopeparty/loop"
	"github.com/delaneyj/scopeparty/scope"
)

type harness struct {
	root  *scope.Scope
	queue *loop.Queue
	errs  *scope.ErrorCollector
}

func newHarness(t *testing.T, opts ...scope.Option) *harness {
	t.Helper()
	h := &harness{
		queue: loop.NewQueue(),
		errs:  &scope.ErrorCollector{},
	}
	base := []scope.Option{
		scope.WithScheduler(h.queue),
		scope.WithErrorHandler(h.errs.Handle),
		scope.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	h.root = scope.New(append(base, opts...)...)
	return h
}

var errBroken = errors.New("broken")

func failing(*scope.Scope, scope.Locals) (any, error) { return nil, errBroken }

func set(key string, value any) scope.Expr {
	return func(s *scope.Scope, _ scope.Locals) (any, error) {
		s.Set(key, value)
		return nil, nil
	}
}

func counterListener(counter *int) scope.ListenerFunc {
	return func(_, _ any, _ *scope.Scope) error {
		*counter++
		return nil
	}
}
