// Package statemesh provides a high-level façade over the session registry
// and the turn executor. Most applications interact with this package by:
//  1. Creating a Mesh via New() with a core.Dispatcher (typically a
//     flow.ToolLoop over a model and the callbacks it may invoke)
//  2. Calling Chat for each user message; the session for (app, user) is
//     found or created (seeded once) and the turn is committed atomically
//  3. Re-reading committed state through State or the Registry
//
// All defaults are safe for local development and testing; production
// deployments typically supply a durable store (session.OpenSQLite) and a
// structured logger.
package statemesh

import (
	"context"
	"fmt"

	"github.com/hupe1980/statemesh/core"
	"github.com/hupe1980/statemesh/logging"
	"github.com/hupe1980/statemesh/runner"
	"github.com/hupe1980/statemesh/session"
)

// Options configures the Mesh instance.
type Options struct {
	// SessionStore persists sessions (defaults to an in-memory store).
	SessionStore core.SessionStore

	// DuplicatePolicy decides how an explicit, already existing session id
	// is treated by Chat.
	DuplicatePolicy session.DuplicatePolicy

	// AgentName is recorded as author of dispatched events.
	AgentName string

	// Instruction supplies the instruction template rendered against state
	// at the start of every turn.
	Instruction runner.InstructionProvider

	// MaxModelCalls bounds model calls per turn (0 = unlimited).
	MaxModelCalls int

	// Metrics receives turn metrics; nil disables them.
	Metrics *runner.Metrics

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Mesh aggregates the session registry and the turn executor.
type Mesh struct {
	registry *session.Registry
	runner   *runner.Runner
}

// New creates a Mesh dispatching turns to dispatcher.
func New(dispatcher core.Dispatcher, optFns ...func(o *Options)) *Mesh {
	opts := Options{
		SessionStore:    session.NewInMemoryStore(),
		DuplicatePolicy: session.AttachExisting,
		AgentName:       "assistant",
		Instruction:     runner.StaticInstruction(""),
		MaxModelCalls:   100,
		Logger:          logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	registry := session.NewRegistry(opts.SessionStore, func(o *session.RegistryOptions) {
		o.DuplicatePolicy = opts.DuplicatePolicy
		o.Logger = opts.Logger
	})

	r := runner.New(opts.SessionStore, dispatcher, func(o *runner.Options) {
		o.AgentName = opts.AgentName
		o.Instruction = opts.Instruction
		o.MaxModelCalls = opts.MaxModelCalls
		o.Metrics = opts.Metrics
		o.Logger = opts.Logger
	})

	return &Mesh{registry: registry, runner: r}
}

// Registry returns the session registry.
func (m *Mesh) Registry() *session.Registry { return m.registry }

// Runner returns the turn executor.
func (m *Mesh) Runner() *runner.Runner { return m.runner }

// ChatRequest is one user message addressed to an identity.
type ChatRequest struct {
	AppName   string
	UserID    string
	SessionID string // optional; empty attaches to the newest session
	// InitialState seeds a session created by this request only.
	InitialState core.State
	Message      string
}

// Chat resolves the session for req and runs one turn against it.
func (m *Mesh) Chat(ctx context.Context, req ChatRequest) (*runner.TurnResult, error) {
	sess, _, err := m.registry.FindOrCreate(ctx, session.FindOrCreateRequest{
		AppName:      req.AppName,
		UserID:       req.UserID,
		SessionID:    req.SessionID,
		InitialState: req.InitialState,
	})
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	return m.runner.Run(ctx, sess.Key, req.Message)
}

// State returns the committed state of the session identified by key.
func (m *Mesh) State(ctx context.Context, key core.SessionKey) (core.State, error) {
	sess, err := m.registry.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return sess.StateSnapshot(), nil
}
