package scope

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// ErrPhaseConflict is returned when a digest or apply is started while another
// one is already running in the same scope family.
var ErrPhaseConflict = errors.New("scope: phase already in progress")

// ErrDigestNotConverging is returned when watchers keep each other dirty for
// more than the configured number of passes.
var ErrDigestNotConverging = errors.New("scope: digest iterations exhausted")

// Kind identifies which kind of user callback failed.
type Kind uint8

const (
	KindWatch Kind = iota + 1
	KindListener
	KindAsync
	KindApplyAsync
	KindPostDigest
	KindEvent
	// KindDeferred marks fatal digest errors raised from a deferred callback,
	// where there is no caller to return them to.
	KindDeferred
)

func (k Kind) String() string {
	switch k {
	case KindWatch:
		return "watch"
	case KindListener:
		return "listener"
	case KindAsync:
		return "async"
	case KindApplyAsync:
		return "apply_async"
	case KindPostDigest:
		return "post_digest"
	case KindEvent:
		return "event"
	case KindDeferred:
		return "deferred"
	default:
		return "unknown"
	}
}

// CallbackError wraps a failure that the engine suppressed so the enclosing
// loop could carry on: an error returned by a user callback, or a panic it
// raised.
type CallbackError struct {
	Kind    Kind
	ScopeID string
	Err     error
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("scope %s: %s callback failed: %v", e.ScopeID, e.Kind, e.Err)
}

func (e *CallbackError) Unwrap() error {
	return e.Err
}

// ErrorHandler receives every suppressed failure of a scope family.
type ErrorHandler func(err error)

// ErrorCollector accumulates suppressed failures. Its Handle method can be
// passed to WithErrorHandler.
type ErrorCollector struct {
	mu     sync.Mutex
	errors *multierror.Error
}

// Handle records err.
func (c *ErrorCollector) Handle(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = multierror.Append(c.errors, err)
}

// Len returns the number of recorded failures.
func (c *ErrorCollector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.errors == nil {
		return 0
	}
	return c.errors.Len()
}

// Errors returns a copy of the recorded failures in arrival order.
func (c *ErrorCollector) Errors() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.errors == nil {
		return nil
	}
	return append([]error(nil), c.errors.Errors...)
}

// Count returns how many recorded failures are of the given kind.
func (c *ErrorCollector) Count(kind Kind) int {
	n := 0
	for _, err := range c.Errors() {
		var cbErr *CallbackError
		if errors.As(err, &cbErr) && cbErr.Kind == kind {
			n++
		}
	}
	return n
}

// ErrorOrNil returns all failures as one error, or nil when there were none.
func (c *ErrorCollector) ErrorOrNil() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errors.ErrorOrNil()
}

// Reset forgets every recorded failure.
func (c *ErrorCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = nil
}

func recovered(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("panic: %v", r)
}

// protect runs fn and reports the error it returns, or the panic it raises, as
// a CallbackError. It reports whether fn succeeded.
func (s *Scope) protect(kind Kind, fn func() error) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.report(&CallbackError{Kind: kind, ScopeID: s.id, Err: recovered(r)})
			ok = false
		}
	}()
	if err := fn(); err != nil {
		s.report(&CallbackError{Kind: kind, ScopeID: s.id, Err: err})
		return false
	}
	return true
}

func (s *Scope) report(err error) {
	fam := s.fam()
	var cbErr *CallbackError
	if fam.instrumentation != nil && errors.As(err, &cbErr) {
		fam.instrumentation.ObserveFailure(cbErr.Kind)
	}
	fam.onError(err)
}
