package testutil

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/statemesh/core"
)

// FailingStore wraps a SessionStore and injects errors. A nil error field
// delegates to the inner store.
type FailingStore struct {
	Inner core.SessionStore

	mu      sync.Mutex
	putErr  error
	getErr  error
	listErr error

	puts atomic.Int64
}

// NewFailingStore wraps inner.
func NewFailingStore(inner core.SessionStore) *FailingStore {
	return &FailingStore{Inner: inner}
}

// FailPut makes every subsequent Put return err without writing.
func (s *FailingStore) FailPut(err error) { s.mu.Lock(); s.putErr = err; s.mu.Unlock() }

// FailGet makes every subsequent Get return err.
func (s *FailingStore) FailGet(err error) { s.mu.Lock(); s.getErr = err; s.mu.Unlock() }

// FailList makes every subsequent List return err.
func (s *FailingStore) FailList(err error) { s.mu.Lock(); s.listErr = err; s.mu.Unlock() }

// Puts returns the number of Put calls observed (failed ones included).
func (s *FailingStore) Puts() int64 { return s.puts.Load() }

func (s *FailingStore) errs() (put, get, list error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putErr, s.getErr, s.listErr
}

// Create implements core.SessionStore.
func (s *FailingStore) Create(ctx context.Context, sess *core.Session) (core.CommitToken, error) {
	return s.Inner.Create(ctx, sess)
}

// Get implements core.SessionStore.
func (s *FailingStore) Get(ctx context.Context, key core.SessionKey) (*core.Session, error) {
	if _, err, _ := s.errs(); err != nil {
		return nil, err
	}
	return s.Inner.Get(ctx, key)
}

// Put implements core.SessionStore.
func (s *FailingStore) Put(ctx context.Context, sess *core.Session) (core.CommitToken, error) {
	s.puts.Add(1)
	if err, _, _ := s.errs(); err != nil {
		return core.CommitToken{}, err
	}
	return s.Inner.Put(ctx, sess)
}

// List implements core.SessionStore.
func (s *FailingStore) List(ctx context.Context, appName, userID string) ([]core.SessionSummary, error) {
	if _, _, err := s.errs(); err != nil {
		return nil, err
	}
	return s.Inner.List(ctx, appName, userID)
}

// Delete implements core.SessionStore.
func (s *FailingStore) Delete(ctx context.Context, key core.SessionKey) error {
	return s.Inner.Delete(ctx, key)
}
