package scope

import "github.com/hashicorp/go-multierror"

type asyncTask struct {
	scope *Scope
	expr  Expr
}

// Eval runs expr against s and returns its result. It does not digest.
func (s *Scope) Eval(expr Expr, locals Locals) (any, error) {
	if expr == nil {
		return nil, nil
	}
	return expr(s, locals)
}

// Apply runs expr in the apply phase and then digests the whole tree from the
// root. The digest runs even when expr fails or panics. A panic is re-raised
// after it, an error is returned together with any digest failure.
func (s *Scope) Apply(expr Expr) (err error) {
	if err := s.beginPhase(PhaseApply); err != nil {
		return err
	}
	defer func() {
		s.clearPhase()
		digestErr := s.root.Digest()
		switch {
		case digestErr == nil:
		case err == nil:
			err = digestErr
		default:
			err = multierror.Append(err, digestErr)
		}
	}()
	_, err = s.Eval(expr, nil)
	return err
}

// EvalAsync queues expr to run against s inside the current digest, or the
// next one. When nothing is digesting, a digest of the root is deferred so the
// task is never stranded. An error returned by expr goes to the error handler.
func (s *Scope) EvalAsync(expr Expr) {
	fam := s.fam()
	if fam.phase == PhaseNone && len(fam.asyncQueue) == 0 {
		root := s.root
		fam.scheduler.Defer(func() {
			if len(fam.asyncQueue) > 0 {
				root.digestDeferred()
			}
		})
	}
	fam.asyncQueue = append(fam.asyncQueue, asyncTask{scope: s, expr: expr})
}

// ApplyAsync queues expr and defers a single Apply that runs everything queued
// by then. It never runs expr synchronously; a digest that starts first runs
// the queue and cancels the deferred Apply.
func (s *Scope) ApplyAsync(expr Expr) {
	fam := s.fam()
	fam.applyAsyncQueue = append(fam.applyAsyncQueue, func() error {
		_, err := s.Eval(expr, nil)
		return err
	})
	if fam.applyAsyncPending {
		return
	}
	fam.applyAsyncPending = true
	fam.cancelApplyAsync = fam.scheduler.Defer(func() {
		err := s.Apply(func(*Scope, Locals) (any, error) {
			s.flushApplyAsync()
			return nil, nil
		})
		if err != nil {
			s.report(&CallbackError{Kind: KindDeferred, ScopeID: s.id, Err: err})
		}
	})
}

// PostDigest queues fn to run once after the next digest of the family. An
// error returned by fn goes to the error handler.
func (s *Scope) PostDigest(fn func() error) {
	fam := s.fam()
	fam.postDigestQueue = append(fam.postDigestQueue, fn)
}

func (s *Scope) flushApplyAsync() {
	fam := s.fam()
	for len(fam.applyAsyncQueue) > 0 {
		fn := fam.applyAsyncQueue[0]
		fam.applyAsyncQueue[0] = nil
		fam.applyAsyncQueue = fam.applyAsyncQueue[1:]
		s.protect(KindApplyAsync, fn)
	}
	fam.applyAsyncPending = false
	fam.cancelApplyAsync = nil
}

func (s *Scope) digestDeferred() {
	if err := s.Digest(); err != nil {
		s.report(&CallbackError{Kind: KindDeferred, ScopeID: s.id, Err: err})
	}
}
