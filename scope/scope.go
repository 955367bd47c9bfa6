// Package scope implements a tree of scopes that detect changes by dirty
// checking registered watchers and react through a re-entrancy guarded digest
// loop, with deferred task queues and an event bus shared by the whole tree.
//
// A scope family (a root and every scope created from it) is single threaded.
// Hosts that need concurrency drive the family from one goroutine, for example
// through a loop.Loop.
package scope

import (
	"log/slog"
	"maps"
	"slices"

	"github.com/google/uuid"
)

// Locals are extra bindings handed to an expression next to its scope.
type Locals map[string]any

// Expr is a compiled expression: anything that derives a value from a scope.
type Expr func(s *Scope, locals Locals) (any, error)

// Scope is a node in a scope tree. It holds application values, watchers,
// event listeners and its child scopes.
type Scope struct {
	id string

	// root is the top of the tree and owns the family state.
	root *Scope
	// parent is the tree parent, nil for the root.
	parent *Scope
	// proto is where reads fall through to, nil for roots and isolated scopes.
	proto *Scope

	isolated  bool
	destroyed bool

	values    map[string]any
	watchers  []*watcher
	children  []*Scope
	listeners map[string][]*eventListener
	// firing counts listener runs in progress on this scope; holes left by
	// deregistration are only compacted when it is zero.
	firing int

	// shared is only set on the root.
	shared *family
}

// family is the state every scope of one tree shares through its root.
type family struct {
	config

	phase          Phase
	lastDirtyWatch *watcher

	asyncQueue        []asyncTask
	applyAsyncQueue   []func() error
	applyAsyncPending bool
	cancelApplyAsync  func()
	postDigestQueue   []func() error
}

// New creates a root scope.
func New(opts ...Option) *Scope {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.scheduler == nil {
		cfg.scheduler = defaultConfig().scheduler
	}
	if cfg.onError == nil {
		cfg.onError = logErrors(cfg.logger)
	}

	s := &Scope{
		id:     uuid.NewString(),
		values: map[string]any{},
		shared: &family{config: cfg},
	}
	s.root = s
	return s
}

func (s *Scope) fam() *family {
	return s.root.shared
}

// NewChild creates a child that reads through to s and is digested with it.
func (s *Scope) NewChild() *Scope {
	return s.NewChildOf(s, false)
}

// NewIsolated creates a child that sees none of the values of s but shares
// its root, queues and digests.
func (s *Scope) NewIsolated() *Scope {
	return s.NewChildOf(s, true)
}

// NewChildOf creates a child registered under parent instead of s. A
// non-isolated child still reads through to s. A nil parent means s.
func (s *Scope) NewChildOf(parent *Scope, isolated bool) *Scope {
	if parent == nil {
		parent = s
	}
	child := &Scope{
		id:       uuid.NewString(),
		root:     parent.root,
		parent:   parent,
		isolated: isolated,
		values:   map[string]any{},
	}
	if !isolated {
		child.proto = s
	}
	parent.children = append(parent.children, child)
	return child
}

// Destroy detaches s from its parent after broadcasting DestroyEvent through
// its subtree. Destroyed scopes are never digested again and events fired on
// them reach no listeners.
func (s *Scope) Destroy() {
	if s.destroyed {
		return
	}
	s.Broadcast(DestroyEvent)

	if s.parent != nil {
		siblings := s.parent.children
		if i := slices.Index(siblings, s); i >= 0 {
			s.parent.children = slices.Delete(siblings, i, i+1)
		}
		s.parent = nil
	}

	fam := s.fam()
	s.everyScope(func(scope *Scope) bool {
		for _, w := range scope.watchers {
			if fam.lastDirtyWatch == w {
				fam.lastDirtyWatch = nil
			}
		}
		scope.watchers = nil
		scope.listeners = nil
		scope.destroyed = true
		return true
	})
}

// ID returns the unique identifier of s.
func (s *Scope) ID() string {
	return s.id
}

// Root returns the top of the tree s belongs to.
func (s *Scope) Root() *Scope {
	return s.root
}

// Parent returns the tree parent, or nil for a root or a destroyed scope.
func (s *Scope) Parent() *Scope {
	return s.parent
}

// Children returns a copy of the child list in creation order.
func (s *Scope) Children() []*Scope {
	return slices.Clone(s.children)
}

// IsIsolated reports whether s was created without read-through to its parent.
func (s *Scope) IsIsolated() bool {
	return s.isolated
}

// IsDestroyed reports whether s or one of its ancestors was destroyed.
func (s *Scope) IsDestroyed() bool {
	return s.destroyed
}

// Scheduler returns the host for deferred callbacks of the family.
func (s *Scope) Scheduler() Scheduler {
	return s.fam().scheduler
}

// Get returns the value stored under key, looking through to ancestors for
// non-isolated scopes. Missing keys yield nil.
func (s *Scope) Get(key string) any {
	v, _ := s.Lookup(key)
	return v
}

// Lookup is Get that also reports whether key was found.
func (s *Scope) Lookup(key string) (any, bool) {
	for cur := s; cur != nil; cur = cur.proto {
		if v, ok := cur.values[key]; ok {
			return v, true
		}
	}
	return nil, false
}

// Set stores value on s itself, shadowing any inherited value.
func (s *Scope) Set(key string, value any) {
	s.values[key] = value
}

// Has reports whether key is visible from s.
func (s *Scope) Has(key string) bool {
	_, ok := s.Lookup(key)
	return ok
}

// HasOwn reports whether key is stored on s itself.
func (s *Scope) HasOwn(key string) bool {
	_, ok := s.values[key]
	return ok
}

// Delete removes key from s. Inherited values become visible again.
func (s *Scope) Delete(key string) {
	delete(s.values, key)
}

// Keys returns the keys stored on s itself, sorted.
func (s *Scope) Keys() []string {
	return slices.Sorted(maps.Keys(s.values))
}

// Value returns the value visible under key if it has type T.
func Value[T any](s *Scope, key string) (T, bool) {
	v, ok := s.Lookup(key)
	t, isT := v.(T)
	return t, ok && isT
}

// Field returns a watch function that reads key from the watched scope.
func Field(key string) WatchFunc {
	return func(s *Scope) any {
		return s.Get(key)
	}
}
