package testutil

import (
	"github.com/hupe1980/statemesh/core"
)

// SessionBuilder helps construct sessions with fluent chaining for tests.
// Example:
//
//	sess := NewSessionBuilder("sess-1").State("k", "v").Events(ev1, ev2).Build()
type SessionBuilder struct {
	key    core.SessionKey
	state  map[string]any
	events []core.Event
}

// NewSessionBuilder creates a builder for app "app", user "user" and the given session id.
func NewSessionBuilder(id string) *SessionBuilder {
	return &SessionBuilder{key: Key(id), state: map[string]any{}}
}

// Key returns the default test key for a session id.
func Key(id string) core.SessionKey {
	return core.SessionKey{AppName: "app", UserID: "user", SessionID: id}
}

// For overrides application and user (chainable).
func (b *SessionBuilder) For(app, user string) *SessionBuilder {
	b.key.AppName, b.key.UserID = app, user
	return b
}

// State sets a state key/value pair; val must be convertible by core.ValueOf (chainable).
func (b *SessionBuilder) State(key string, val any) *SessionBuilder {
	b.state[key] = val
	return b
}

// Event appends a single event to the session history (chainable).
func (b *SessionBuilder) Event(ev core.Event) *SessionBuilder {
	b.events = append(b.events, ev)
	return b
}

// Events appends multiple events to the session history (chainable).
func (b *SessionBuilder) Events(evs ...core.Event) *SessionBuilder {
	b.events = append(b.events, evs...)
	return b
}

// Build returns a *core.Session with pre-populated state and positioned events.
// It panics on unsupported state values.
func (b *SessionBuilder) Build() *core.Session {
	st, err := core.NewState(b.state)
	if err != nil {
		panic(err)
	}
	s := core.NewSession(b.key, st)
	for _, ev := range b.events {
		s.AppendEvent(ev)
	}
	return s
}
