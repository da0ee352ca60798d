package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/statemesh/core"
	"github.com/hupe1980/statemesh/internal/keylock"
	"github.com/hupe1980/statemesh/logging"
)

// DuplicatePolicy decides what FindOrCreate does when an explicitly requested
// session id already exists.
type DuplicatePolicy int

const (
	// AttachExisting reuses the existing session (idempotent attach).
	AttachExisting DuplicatePolicy = iota
	// RejectExisting fails with core.ErrAlreadyExists.
	RejectExisting
)

// String implements fmt.Stringer.
func (p DuplicatePolicy) String() string {
	switch p {
	case AttachExisting:
		return "attach"
	case RejectExisting:
		return "reject"
	default:
		return "unknown"
	}
}

// ParseDuplicatePolicy maps "attach" / "reject" to a policy.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch s {
	case "", "attach":
		return AttachExisting, nil
	case "reject":
		return RejectExisting, nil
	default:
		return AttachExisting, fmt.Errorf("unknown duplicate policy %q", s)
	}
}

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	Logger          logging.Logger
	DuplicatePolicy DuplicatePolicy
	// NewID generates session ids for sessions created without one.
	NewID func() string
}

// Registry resolves (app, user, session?) requests to sessions backed by an
// explicitly passed SessionStore. Resolution without a session id is
// serialized per identity, so concurrent first contact creates one session.
type Registry struct {
	store      core.SessionStore
	logger     logging.Logger
	policy     DuplicatePolicy
	newID      func() string
	identities *keylock.Locks
}

// NewRegistry creates a registry over store.
func NewRegistry(store core.SessionStore, optFns ...func(o *RegistryOptions)) *Registry {
	opts := RegistryOptions{
		Logger:          logging.NoOpLogger{},
		DuplicatePolicy: AttachExisting,
		NewID:           core.NewID,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Registry{
		store:      store,
		logger:     opts.Logger,
		policy:     opts.DuplicatePolicy,
		newID:      opts.NewID,
		identities: keylock.New(),
	}
}

// Store returns the backing store.
func (r *Registry) Store() core.SessionStore { return r.store }

// FindOrCreateRequest describes one resolution request. SessionID is
// optional; InitialState only seeds sessions created by this call.
type FindOrCreateRequest struct {
	AppName      string
	UserID       string
	SessionID    string
	InitialState core.State
}

// FindOrCreate resolves a request to a session and reports whether it was
// created by this call.
//
// Without a SessionID the most recently created session of (app, user) is
// reused and InitialState is ignored; only when the identity has no session
// yet is a new one created with a generated id and seeded with InitialState.
// With a SessionID the session is loaded, or created with that id when
// missing; an existing id is handled per the DuplicatePolicy.
func (r *Registry) FindOrCreate(ctx context.Context, req FindOrCreateRequest) (*core.Session, bool, error) {
	if req.AppName == "" || req.UserID == "" {
		return nil, false, fmt.Errorf("find or create: app name and user id are required")
	}

	if req.SessionID == "" {
		release, err := r.identities.Acquire(ctx, req.AppName+"\x00"+req.UserID)
		if err != nil {
			return nil, false, err
		}
		defer release()

		list, err := r.store.List(ctx, req.AppName, req.UserID)
		if err != nil {
			return nil, false, fmt.Errorf("list sessions: %w", err)
		}
		if len(list) > 0 {
			sess, err := r.store.Get(ctx, list[0].Key)
			if err != nil {
				return nil, false, fmt.Errorf("load latest session: %w", err)
			}
			r.logger.Info("session.attached", "session", sess.Key.String(), "candidates", len(list))
			return sess, false, nil
		}
		return r.create(ctx, core.SessionKey{AppName: req.AppName, UserID: req.UserID, SessionID: r.newID()}, req.InitialState)
	}

	key := core.SessionKey{AppName: req.AppName, UserID: req.UserID, SessionID: req.SessionID}
	sess, err := r.store.Get(ctx, key)
	switch {
	case err == nil:
		if r.policy == RejectExisting {
			return nil, false, fmt.Errorf("session %s: %w", key, core.ErrAlreadyExists)
		}
		r.logger.Info("session.attached", "session", key.String())
		return sess, false, nil
	case errors.Is(err, core.ErrNotFound):
		sess, created, err := r.create(ctx, key, req.InitialState)
		if errors.Is(err, core.ErrAlreadyExists) && r.policy == AttachExisting {
			// Lost a creation race; the winner's seed stands.
			sess, err = r.store.Get(ctx, key)
			if err != nil {
				return nil, false, fmt.Errorf("load raced session: %w", err)
			}
			return sess, false, nil
		}
		return sess, created, err
	default:
		return nil, false, fmt.Errorf("get session: %w", err)
	}
}

// Create forces creation of a new session with a generated id.
func (r *Registry) Create(ctx context.Context, appName, userID string, initial core.State) (*core.Session, error) {
	sess, _, err := r.create(ctx, core.SessionKey{AppName: appName, UserID: userID, SessionID: r.newID()}, initial)
	return sess, err
}

func (r *Registry) create(ctx context.Context, key core.SessionKey, initial core.State) (*core.Session, bool, error) {
	sess := core.NewSession(key, initial)
	if _, err := r.store.Create(ctx, sess); err != nil {
		return nil, false, fmt.Errorf("create session: %w", err)
	}
	r.logger.Info("session.created", "session", key.String(), "seeded_keys", len(initial))
	return sess, true, nil
}

// Get loads a session by key.
func (r *Registry) Get(ctx context.Context, key core.SessionKey) (*core.Session, error) {
	return r.store.Get(ctx, key)
}

// List returns the sessions of (app, user), newest first.
func (r *Registry) List(ctx context.Context, appName, userID string) ([]core.SessionSummary, error) {
	return r.store.List(ctx, appName, userID)
}

// Delete removes a session. The registry never deletes on its own.
func (r *Registry) Delete(ctx context.Context, key core.SessionKey) error {
	if err := r.store.Delete(ctx, key); err != nil {
		return err
	}
	r.logger.Info("session.deleted", "session", key.String())
	return nil
}
