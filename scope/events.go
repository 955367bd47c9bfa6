package scope

import "slices"

// DestroyEvent is broadcast through a subtree right before it is destroyed.
const DestroyEvent = "$destroy"

// Event is handed to every listener of one Emit or Broadcast call.
type Event struct {
	Name string
	// TargetScope is the scope the event was fired on.
	TargetScope *Scope
	// CurrentScope is the scope whose listeners are running, nil once
	// propagation is over.
	CurrentScope     *Scope
	DefaultPrevented bool

	stopped bool
}

// StopPropagation keeps an emitted event from reaching further ancestors.
// Listeners on the current scope still run. Broadcasts ignore it.
func (e *Event) StopPropagation() {
	e.stopped = true
}

// PreventDefault sets DefaultPrevented.
func (e *Event) PreventDefault() {
	e.DefaultPrevented = true
}

func (e *Event) PropagationStopped() bool {
	return e.stopped
}

// EventListener handles an event together with the arguments it was fired with.
// A returned error goes to the error handler and propagation carries on.
type EventListener func(e *Event, args ...any) error

type eventListener struct {
	fn EventListener
}

// On registers listener for events called name on s. Listeners of one scope
// run in registration order. A listener registered on a scope while that
// scope is delivering the same event first runs for the next one.
func (s *Scope) On(name string, listener EventListener) (deregister func()) {
	if s.listeners == nil {
		s.listeners = map[string][]*eventListener{}
	}
	l := &eventListener{fn: listener}
	s.listeners[name] = append(s.listeners[name], l)

	return func() {
		ls := s.listeners[name]
		if i := slices.Index(ls, l); i >= 0 {
			// Leave a hole so a running propagation keeps its position.
			ls[i] = nil
		}
	}
}

// Emit fires name on s and then on every ancestor up to the root, until a
// listener stops propagation. Destroyed scopes are never reached.
func (s *Scope) Emit(name string, args ...any) *Event {
	e := &Event{Name: name, TargetScope: s}
	for cur := s; cur != nil && !cur.destroyed; cur = cur.parent {
		e.CurrentScope = cur
		cur.fire(e, args)
		if e.stopped {
			break
		}
	}
	e.CurrentScope = nil
	return e
}

// Broadcast fires name on s and on every descendant, isolated ones included,
// parents before children.
func (s *Scope) Broadcast(name string, args ...any) *Event {
	e := &Event{Name: name, TargetScope: s}
	s.everyScope(func(scope *Scope) bool {
		e.CurrentScope = scope
		scope.fire(e, args)
		return true
	})
	e.CurrentScope = nil
	return e
}

func (s *Scope) fire(e *Event, args []any) {
	s.firing++
	n := len(s.listeners[e.Name])
	for i := 0; i < n; i++ {
		ls := s.listeners[e.Name]
		if i >= len(ls) {
			break
		}
		l := ls[i]
		if l == nil {
			continue
		}
		s.protect(KindEvent, func() error {
			return l.fn(e, args...)
		})
	}
	s.firing--
	if s.firing == 0 {
		s.compactListeners(e.Name)
	}
}

func (s *Scope) compactListeners(name string) {
	ls, ok := s.listeners[name]
	if !ok {
		return
	}
	ls = slices.DeleteFunc(ls, func(l *eventListener) bool {
		return l == nil
	})
	if len(ls) == 0 {
		delete(s.listeners, name)
		return
	}
	s.listeners[name] = ls
}
