// Package livequery maintains a live, owner-scoped view over one backend
// collection. A Collection follows the session: identity present means
// exactly one backend subscription filtered to that owner; identity absent
// means no subscription and an empty view. Each remote change replaces the
// whole item list — consumers must treat the latest snapshot as the single
// source of truth and never merge it with local state.
//
// One Collection instance owns the subscription for its (identity,
// collection) scope. Components that need the same view share the instance
// through Subscribe rather than opening their own.
package livequery

import (
	"sync"

	"github.com/shelftrack/shelftrack/internal/backend"
	"github.com/shelftrack/shelftrack/internal/session"
)

// Snapshot is the exposed view state. Err survives until a later delivery
// succeeds or a new subscription opens, so callers can tell "zero items"
// from "query failed".
type Snapshot[T any] struct {
	Items   []T
	Loading bool
	Err     error
}

// SessionSource is the slice of session.Provider the query needs. It is an
// interface so a fixed-identity source can drive per-request views.
type SessionSource interface {
	State() session.State
	Subscribe(fn func(session.State)) func()
}

// BuildQuery returns the backend query for one identity's view.
type BuildQuery func(identity string) backend.Query

type Collection[T any] struct {
	b      *backend.Backend
	source SessionSource
	build  BuildQuery

	mu           sync.Mutex
	snap         Snapshot[T]
	subs         map[int]func(Snapshot[T])
	nextID       int
	identity     string
	unsubSession func()
	unsubBackend func()
	closed       bool

	deliverMu sync.Mutex
}

func NewCollection[T any](b *backend.Backend, source SessionSource, build BuildQuery) *Collection[T] {
	return &Collection[T]{
		b:      b,
		source: source,
		build:  build,
		snap:   Snapshot[T]{Loading: true},
		subs:   make(map[int]func(Snapshot[T])),
	}
}

// Start begins following the session. Safe to call once.
func (c *Collection[T]) Start() {
	c.unsubSession = c.source.Subscribe(func(s session.State) {
		c.onSession(s)
	})
}

// Close tears the view down. The previous backend subscription is cancelled
// synchronously: no snapshot is delivered after Close returns.
func (c *Collection[T]) Close() {
	if c.unsubSession != nil {
		c.unsubSession()
	}

	c.mu.Lock()
	c.closed = true
	unsub := c.unsubBackend
	c.unsubBackend = nil
	c.subs = make(map[int]func(Snapshot[T]))
	c.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

func (c *Collection[T]) Snapshot() Snapshot[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Subscribe registers fn and invokes it immediately with the current
// snapshot. The returned function removes the consumer.
func (c *Collection[T]) Subscribe(fn func(Snapshot[T])) func() {
	c.deliverMu.Lock()
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	snap := c.snap
	c.mu.Unlock()
	fn(snap)
	c.deliverMu.Unlock()

	return func() {
		c.deliverMu.Lock()
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
		c.deliverMu.Unlock()
	}
}

func (c *Collection[T]) onSession(s session.State) {
	if s.Loading {
		return
	}

	c.mu.Lock()
	if c.closed || (c.unsubBackend != nil && c.identity == s.Identity) {
		c.mu.Unlock()
		return
	}
	// The old subscription must be fully closed before a new one opens: at
	// most one live subscription per identity, and no snapshot from the old
	// scope may land after the switch.
	old := c.unsubBackend
	c.unsubBackend = nil
	c.identity = s.Identity
	c.mu.Unlock()

	if old != nil {
		old()
	}

	if s.Identity == "" {
		c.publish(Snapshot[T]{Items: []T{}})
		return
	}

	c.mu.Lock()
	c.snap = Snapshot[T]{Loading: true}
	c.mu.Unlock()

	q := c.build(s.Identity)
	unsub := backend.Subscribe[T](c.b, q,
		func(items []T) {
			c.publish(Snapshot[T]{Items: items})
		},
		func(err error) {
			c.mu.Lock()
			items := c.snap.Items
			c.mu.Unlock()
			c.publish(Snapshot[T]{Items: items, Err: err})
		},
	)

	c.mu.Lock()
	if c.closed || c.identity != s.Identity {
		// Lost a race with Close or another identity switch.
		c.mu.Unlock()
		unsub()
		return
	}
	c.unsubBackend = unsub
	c.mu.Unlock()
}

func (c *Collection[T]) publish(snap Snapshot[T]) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.snap = snap
	fns := make([]func(Snapshot[T]), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}
