package scope

import (
	"fmt"
	"slices"
	"time"
)

// Digest runs watchers of s and its descendants until none of them is dirty
// and the async queue is empty. It fails with ErrPhaseConflict when the family
// is already digesting or applying, and with ErrDigestNotConverging when the
// watchers are still dirty after the family's TTL.
func (s *Scope) Digest() error {
	if err := s.beginPhase(PhaseDigest); err != nil {
		return err
	}
	fam := s.fam()
	stats := DigestStats{ScopeID: s.id, Start: time.Now()}

	fam.lastDirtyWatch = nil
	if fam.applyAsyncPending {
		if fam.cancelApplyAsync != nil {
			fam.cancelApplyAsync()
		}
		s.flushApplyAsync()
	}

	ttl := fam.ttl
	for {
		s.drainAsyncQueue()
		stats.Passes++
		dirty := s.digestOnce(&stats.Evaluations)
		if !dirty && len(fam.asyncQueue) == 0 {
			break
		}
		if ttl == 0 {
			s.clearPhase()
			stats.Err = fmt.Errorf("%w: %d passes", ErrDigestNotConverging, stats.Passes)
			s.observeDigest(stats)
			return stats.Err
		}
		ttl--
	}

	s.clearPhase()
	s.observeDigest(stats)

	for len(fam.postDigestQueue) > 0 {
		fn := fam.postDigestQueue[0]
		fam.postDigestQueue[0] = nil
		fam.postDigestQueue = fam.postDigestQueue[1:]
		s.protect(KindPostDigest, fn)
	}
	return nil
}

func (s *Scope) observeDigest(stats DigestStats) {
	fam := s.fam()
	stats.Duration = time.Since(stats.Start)
	fam.logger.Debug("scope: digest finished",
		"scope", stats.ScopeID,
		"passes", stats.Passes,
		"evaluations", stats.Evaluations,
		"duration", stats.Duration,
	)
	if fam.instrumentation != nil {
		fam.instrumentation.ObserveDigest(stats)
	}
}

func (s *Scope) drainAsyncQueue() {
	fam := s.fam()
	for len(fam.asyncQueue) > 0 {
		task := fam.asyncQueue[0]
		fam.asyncQueue[0] = asyncTask{}
		fam.asyncQueue = fam.asyncQueue[1:]
		task.scope.protect(KindAsync, func() error {
			_, err := task.scope.Eval(task.expr, nil)
			return err
		})
	}
}

// digestOnce walks the subtree once and reports whether any watcher was dirty.
// It stops early when it reaches the last dirty watcher of the previous pass
// unchanged, since nothing after it can have changed either.
func (s *Scope) digestOnce(evaluations *int) bool {
	fam := s.fam()
	dirty := false
	continueLoop := true

	s.everyScope(func(scope *Scope) bool {
		for i := len(scope.watchers) - 1; i >= 0; i-- {
			// Listeners may have deregistered watchers or destroyed the scope.
			if i >= len(scope.watchers) {
				continue
			}
			w := scope.watchers[i]
			*evaluations++

			var newValue any
			ok := scope.protect(KindWatch, func() error {
				newValue = w.watchFn(scope)
				return nil
			})
			if !ok {
				continue
			}

			if !Equal(newValue, w.last, w.byValue) {
				fam.lastDirtyWatch = w
				oldValue := w.last
				if isInitial(oldValue) {
					oldValue = newValue
				}
				scope.protect(KindListener, func() error {
					return w.listenerFn(newValue, oldValue, scope)
				})
				if w.byValue {
					w.last = clone(newValue)
				} else {
					w.last = newValue
				}
				dirty = true
			} else if fam.lastDirtyWatch == w {
				continueLoop = false
				break
			}
		}
		return continueLoop
	})
	return dirty
}

// everyScope calls fn on s and its descendants depth first, stopping as soon
// as fn returns false. Destroyed scopes and their subtrees are skipped.
func (s *Scope) everyScope(fn func(*Scope) bool) bool {
	if s.destroyed {
		return true
	}
	if !fn(s) {
		return false
	}
	for _, child := range slices.Clone(s.children) {
		if !child.everyScope(fn) {
			return false
		}
	}
	return true
}
