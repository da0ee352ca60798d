package core

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// SessionKey is the identity triple of a session. It is globally unique.
type SessionKey struct {
	AppName   string `json:"app_name"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

// String renders the key for logs and cache keys.
func (k SessionKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.AppName, k.UserID, k.SessionID)
}

// Validate checks that all parts of the triple are set.
func (k SessionKey) Validate() error {
	if k.AppName == "" || k.UserID == "" || k.SessionID == "" {
		return fmt.Errorf("incomplete session key %q", k.String())
	}
	return nil
}

// Session is a durable conversation context owning a State bag and an
// append-only Event log. It is safe for concurrent access.
//
// Contract:
//   - Version is bumped by the store on every committed Put
//   - Seq is a store-assigned creation sequence used to order sessions
//   - GetEvents returns a defensive copy
//   - Clone performs deep copies so snapshots never share mutable state.
type Session struct {
	Key     SessionKey `json:"key"`
	State   State      `json:"state"`
	Events  []Event    `json:"events"`
	Created time.Time  `json:"created"`
	Updated time.Time  `json:"updated"`
	Version int64      `json:"version"`
	Seq     int64      `json:"seq"`
	mu      sync.RWMutex
}

// NewSession creates a new session for key seeded with a copy of state.
func NewSession(key SessionKey, state State) *Session {
	now := time.Now().UTC()
	return &Session{Key: key, State: state.Clone(), Events: []Event{}, Created: now, Updated: now}
}

// ID returns the session id part of the key.
func (s *Session) ID() string { return s.Key.SessionID }

// GetState returns the value and existence flag for a state key.
func (s *Session) GetState(key string) (Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.State[key]
	return v, ok
}

// StateSnapshot returns a deep copy of the state.
func (s *Session) StateSnapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.State.Clone()
}

// ApplyStateDelta merges delta into State at key granularity.
func (s *Session) ApplyStateDelta(delta State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State == nil {
		s.State = State{}
	}
	s.State.Apply(delta)
	s.Updated = time.Now().UTC()
}

// AppendEvent assigns the next position to ev and appends it. Partial events
// are never retained.
func (s *Session) AppendEvent(ev Event) Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev.IsPartial() {
		return ev
	}
	ev.Position = s.lastPositionLocked() + 1
	s.Events = append(s.Events, ev)
	s.Updated = time.Now().UTC()
	return ev
}

// LastPosition returns the position of the newest event (0 when empty).
func (s *Session) LastPosition() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastPositionLocked()
}

func (s *Session) lastPositionLocked() int64 {
	if len(s.Events) == 0 {
		return 0
	}
	return s.Events[len(s.Events)-1].Position
}

// GetEvents returns a defensive copy of the full event slice.
func (s *Session) GetEvents() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := make([]Event, len(s.Events))
	copy(events, s.Events)
	return events
}

// EventsAfter returns events with a position greater than pos.
func (s *Session) EventsAfter(pos int64) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, ev := range s.Events {
		if ev.Position > pos {
			out = append(out, ev)
		}
	}
	return out
}

// GetConversationHistory returns events suitable for model context: user,
// assistant and tool roles only, no partial fragments.
func (s *Session) GetConversationHistory() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	allowed := map[string]bool{"user": true, "assistant": true, "tool": true}
	res := make([]Event, 0, len(s.Events))
	for _, ev := range s.Events {
		if ev.Content == nil || !allowed[ev.Content.Role] || ev.IsPartial() {
			continue
		}
		res = append(res, ev)
	}
	return res
}

// Summary returns the listing view of the session.
func (s *Session) Summary() SessionSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SessionSummary{Key: s.Key, Created: s.Created, Updated: s.Updated, Seq: s.Seq, EventCount: len(s.Events)}
}

// Clone returns a deep copy of the session safe for independent mutation.
func (s *Session) Clone() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clone := &Session{
		Key:     s.Key,
		State:   s.State.Clone(),
		Events:  make([]Event, len(s.Events)),
		Created: s.Created,
		Updated: s.Updated,
		Version: s.Version,
		Seq:     s.Seq,
	}
	for i, ev := range s.Events {
		clone.Events[i] = ev.Clone()
	}
	return clone
}

// SessionSummary is the listing view of a session.
type SessionSummary struct {
	Key        SessionKey `json:"key"`
	Created    time.Time  `json:"created"`
	Updated    time.Time  `json:"updated"`
	Seq        int64      `json:"seq"`
	EventCount int        `json:"event_count"`
}

// NewerThan orders summaries newest first: Created desc, then Seq desc.
func (a SessionSummary) NewerThan(b SessionSummary) bool {
	if !a.Created.Equal(b.Created) {
		return a.Created.After(b.Created)
	}
	return a.Seq > b.Seq
}

// CommitToken acknowledges a durable write.
type CommitToken struct {
	Version     int64     `json:"version"`
	CommittedAt time.Time `json:"committed_at"`
}

// SessionStore persists sessions, their State and their Event log. Updates
// are scoped by session key and never touch other sessions.
//
// Semantics shared by all backends:
//   - Create fails with ErrAlreadyExists when the triple is taken
//   - Get fails with ErrNotFound for unknown keys
//   - Put replaces the whole State, appends events whose Position is newer
//     than the stored log and bumps Version; a stale Version yields ErrConflict
//   - List returns summaries newest first (Created desc, Seq desc)
//   - Put is all-or-nothing.
type SessionStore interface {
	Create(ctx context.Context, sess *Session) (CommitToken, error)
	Get(ctx context.Context, key SessionKey) (*Session, error)
	Put(ctx context.Context, sess *Session) (CommitToken, error)
	List(ctx context.Context, appName, userID string) ([]SessionSummary, error)
	Delete(ctx context.Context, key SessionKey) error
}
