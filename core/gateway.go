package core

import "sync"

// Gateway is the narrow surface through which a running turn reads and
// writes session state. Writes are buffered in a pending delta and never
// touch the backing store; the turn executor commits them atomically at turn
// end. Every callback invoked during the same turn shares one Gateway, so
// reads observe earlier pending writes.
//
// Values handed out by Read are deep copies: mutating a returned List does
// not change pending or committed state until it is written back.
type Gateway struct {
	mu    sync.Mutex
	base  State
	delta State
}

// NewGateway creates a gateway over a committed snapshot. The snapshot is
// copied and never mutated.
func NewGateway(base State) *Gateway {
	return &Gateway{base: base.Clone(), delta: State{}}
}

// Read returns the pending or committed value for key, or def when absent.
// It never fails.
func (g *Gateway) Read(key string, def Value) Value {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Clone(g.readLocked(key, def))
}

// Lookup is Read with an existence flag.
func (g *Gateway) Lookup(key string) (Value, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if v, ok := g.delta[key]; ok {
		return Clone(v), true
	}
	if v, ok := g.base[key]; ok {
		return Clone(v), true
	}
	return nil, false
}

func (g *Gateway) readLocked(key string, def Value) Value {
	if v, ok := g.delta[key]; ok {
		return v
	}
	if v, ok := g.base[key]; ok {
		return v
	}
	return def
}

// Write records key into the pending delta (whole-value replacement).
func (g *Gateway) Write(key string, v Value) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.delta[key] = Clone(v)
}

// Update performs an atomic read-modify-write of key. fn receives a private
// copy of the current value (def when absent) and returns the new value and
// whether it should be written. Concurrent callbacks cannot interleave
// between the read and the write.
func (g *Gateway) Update(key string, def Value, fn func(cur Value) (Value, bool)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	next, write := fn(Clone(g.readLocked(key, def)))
	if write {
		g.delta[key] = Clone(next)
	}
}

// Delta returns a copy of the pending writes.
func (g *Gateway) Delta() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.delta.Clone()
}

// Dirty reports whether any write is pending.
func (g *Gateway) Dirty() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.delta) > 0
}

// Pending returns the committed snapshot with the pending delta applied.
func (g *Gateway) Pending() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := g.base.Clone()
	out.Apply(g.delta)
	return out
}

// Discard drops every pending write.
func (g *Gateway) Discard() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.delta = State{}
}
