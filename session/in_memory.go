package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/statemesh/core"
)

// InMemoryStore is a volatile SessionStore implementation storing
// sessions in a process local map. It is safe for concurrent access and best
// suited for tests or ephemeral demo servers. Sessions are cloned on the way
// in and out so callers never share mutable state with the store.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[core.SessionKey]*core.Session
	seq      int64
}

// NewInMemoryStore constructs an empty in‑memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[core.SessionKey]*core.Session)}
}

// Create stores a clone of sess. It fails with core.ErrAlreadyExists when the
// key is taken. On success sess.Version and sess.Seq are updated in place.
func (s *InMemoryStore) Create(ctx context.Context, sess *core.Session) (core.CommitToken, error) {
	if err := ctx.Err(); err != nil {
		return core.CommitToken{}, err
	}
	if err := sess.Key.Validate(); err != nil {
		return core.CommitToken{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.Key]; ok {
		return core.CommitToken{}, fmt.Errorf("create %s: %w", sess.Key, core.ErrAlreadyExists)
	}

	now := time.Now().UTC()
	s.seq++
	stored := sess.Clone()
	if stored.Created.IsZero() {
		stored.Created = now
	}
	if stored.Updated.IsZero() {
		stored.Updated = stored.Created
	}
	stored.Version = 1
	stored.Seq = s.seq
	s.sessions[sess.Key] = stored

	sess.Version, sess.Seq, sess.Created = stored.Version, stored.Seq, stored.Created
	return core.CommitToken{Version: stored.Version, CommittedAt: now}, nil
}

// Get returns a clone of the stored session.
func (s *InMemoryStore) Get(ctx context.Context, key core.SessionKey) (*core.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[key]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", key, core.ErrNotFound)
	}
	return sess.Clone(), nil
}

// Put replaces the stored state with sess.State and appends events newer than
// the stored log. The stored version must equal sess.Version.
func (s *InMemoryStore) Put(ctx context.Context, sess *core.Session) (core.CommitToken, error) {
	if err := ctx.Err(); err != nil {
		return core.CommitToken{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.sessions[sess.Key]
	if !ok {
		return core.CommitToken{}, fmt.Errorf("put %s: %w", sess.Key, core.ErrNotFound)
	}
	if stored.Version != sess.Version {
		return core.CommitToken{}, fmt.Errorf("put %s (have v%d, stored v%d): %w", sess.Key, sess.Version, stored.Version, core.ErrConflict)
	}

	now := time.Now().UTC()
	next := stored.Clone()
	next.State = sess.StateSnapshot()
	last := stored.LastPosition()
	for _, ev := range sess.GetEvents() {
		if ev.Position > last {
			next.Events = append(next.Events, ev.Clone())
		}
	}
	next.Version = stored.Version + 1
	next.Updated = now
	s.sessions[sess.Key] = next

	sess.Version = next.Version
	return core.CommitToken{Version: next.Version, CommittedAt: now}, nil
}

// List returns the summaries of all sessions of (appName, userID), newest first.
func (s *InMemoryStore) List(ctx context.Context, appName, userID string) ([]core.SessionSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]core.SessionSummary, 0)
	for key, sess := range s.sessions {
		if key.AppName == appName && key.UserID == userID {
			out = append(out, sess.Summary())
		}
	}
	s.mu.RUnlock()
	sortSummaries(out)
	return out, nil
}

// Delete removes a session.
func (s *InMemoryStore) Delete(ctx context.Context, key core.SessionKey) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[key]; !ok {
		return fmt.Errorf("delete %s: %w", key, core.ErrNotFound)
	}
	delete(s.sessions, key)
	return nil
}

func sortSummaries(list []core.SessionSummary) {
	sort.SliceStable(list, func(i, j int) bool { return list[i].NewerThan(list[j]) })
}
