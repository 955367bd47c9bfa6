package scope

import "slices"

// WatchFunc derives the watched value from a scope.
type WatchFunc func(s *Scope) any

// ListenerFunc reacts to a changed watch value. On the first call oldValue is
// newValue. A returned error goes to the error handler and the digest carries
// on.
type ListenerFunc func(newValue, oldValue any, s *Scope) error

type watcher struct {
	watchFn    WatchFunc
	listenerFn ListenerFunc
	byValue    bool
	last       any
}

type initial struct{}

// initWatchVal is the last value of a watcher that never ran. It is distinct
// from every value a watch function can return, nil included.
var initWatchVal = &initial{}

func isInitial(v any) bool {
	p, ok := v.(*initial)
	return ok && p == initWatchVal
}

// Watch registers watchFn on s. listenerFn, which may be nil, runs during a
// digest whenever the watched value is no longer identical to the last one.
// The returned function deregisters the watcher and is safe to call from
// inside a digest.
func (s *Scope) Watch(watchFn WatchFunc, listenerFn ListenerFunc) (deregister func()) {
	return s.watch(watchFn, listenerFn, false)
}

// WatchValue is Watch with structural equality. In-place changes to watched
// slices, maps and structs are detected.
func (s *Scope) WatchValue(watchFn WatchFunc, listenerFn ListenerFunc) (deregister func()) {
	return s.watch(watchFn, listenerFn, true)
}

func (s *Scope) watch(watchFn WatchFunc, listenerFn ListenerFunc, byValue bool) func() {
	if watchFn == nil {
		panic("scope: Watch requires a watch function")
	}
	if listenerFn == nil {
		listenerFn = func(any, any, *Scope) error { return nil }
	}
	w := &watcher{
		watchFn:    watchFn,
		listenerFn: listenerFn,
		byValue:    byValue,
		last:       initWatchVal,
	}

	// Newest first: digests scan from the back, so removing an entry never
	// moves one that is still to be visited.
	s.watchers = slices.Insert(s.watchers, 0, w)
	s.fam().lastDirtyWatch = nil

	return func() {
		if i := slices.Index(s.watchers, w); i >= 0 {
			s.watchers = slices.Delete(s.watchers, i, i+1)
		}
		s.fam().lastDirtyWatch = nil
	}
}

// GroupListenerFunc reacts to changes of any member of a watch group.
type GroupListenerFunc func(newValues, oldValues []any, s *Scope) error

// WatchGroup watches several functions at once and calls listenerFn at most
// once per digest with the current and previous values of every member. On the
// first call both slices are the same. An empty group calls listenerFn once.
func (s *Scope) WatchGroup(watchFns []WatchFunc, listenerFn GroupListenerFunc) (deregister func()) {
	newValues := make([]any, len(watchFns))
	oldValues := make([]any, len(watchFns))

	if len(watchFns) == 0 {
		shouldCall := true
		s.EvalAsync(func(*Scope, Locals) (any, error) {
			if !shouldCall {
				return nil, nil
			}
			return nil, listenerFn(newValues, newValues, s)
		})
		return func() {
			shouldCall = false
		}
	}

	firstRun := true
	scheduled := false
	groupListener := func(*Scope, Locals) (any, error) {
		previous := oldValues
		if firstRun {
			firstRun = false
			previous = newValues
		}
		scheduled = false
		return nil, listenerFn(newValues, previous, s)
	}

	deregisters := make([]func(), len(watchFns))
	for i, fn := range watchFns {
		deregisters[i] = s.Watch(fn, func(newValue, oldValue any, _ *Scope) error {
			newValues[i] = newValue
			oldValues[i] = oldValue
			if !scheduled {
				scheduled = true
				s.EvalAsync(groupListener)
			}
			return nil
		})
	}

	return func() {
		for _, deregister := range deregisters {
			deregister()
		}
	}
}
