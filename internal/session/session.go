// Package session tracks the authenticated identity as an explicit object
// with a start/stop lifecycle, injected into consumers instead of living as
// ambient global state.
package session

import "sync"

// State is the current session signal. Loading is true only between Start
// and the first auth notification.
type State struct {
	Identity string
	Loading  bool
}

// Notifier is the auth-state feed the provider listens to. The callback must
// be invoked once on attach with the current state; the returned function
// detaches it.
type Notifier interface {
	OnAuthStateChange(cb func(identity string, signedIn bool)) func()
}

type Provider struct {
	notifier Notifier

	mu     sync.Mutex
	state  State
	subs   map[int]func(State)
	nextID int
	unsub  func()

	// deliverMu serializes fan-out so subscribers observe state changes in
	// order and never after their unsubscribe returns.
	deliverMu sync.Mutex
}

func New(n Notifier) *Provider {
	return &Provider{
		notifier: n,
		state:    State{Loading: true},
		subs:     make(map[int]func(State)),
	}
}

// Start attaches to the notifier. Until the first notification arrives the
// state stays (absent, loading).
func (p *Provider) Start() {
	p.mu.Lock()
	if p.unsub != nil {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	unsub := p.notifier.OnAuthStateChange(func(identity string, signedIn bool) {
		if !signedIn {
			identity = ""
		}
		p.set(State{Identity: identity})
	})

	p.mu.Lock()
	p.unsub = unsub
	p.mu.Unlock()
}

// Close detaches from the notifier. No subscriber callback fires after Close
// returns.
func (p *Provider) Close() {
	p.mu.Lock()
	unsub := p.unsub
	p.unsub = nil
	p.subs = make(map[int]func(State))
	p.mu.Unlock()

	if unsub != nil {
		unsub()
	}

	// Wait out any in-flight delivery.
	p.deliverMu.Lock()
	p.deliverMu.Unlock() //nolint:staticcheck // empty critical section is the barrier
}

func (p *Provider) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Subscribe registers fn and invokes it immediately with the current state.
func (p *Provider) Subscribe(fn func(State)) func() {
	p.deliverMu.Lock()
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = fn
	state := p.state
	p.mu.Unlock()
	fn(state)
	p.deliverMu.Unlock()

	return func() {
		p.deliverMu.Lock()
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
		p.deliverMu.Unlock()
	}
}

func (p *Provider) set(s State) {
	p.deliverMu.Lock()
	defer p.deliverMu.Unlock()

	p.mu.Lock()
	p.state = s
	fns := make([]func(State), 0, len(p.subs))
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}
