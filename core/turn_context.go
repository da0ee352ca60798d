package core

import (
	"context"
	"sync"

	"github.com/hupe1980/statemesh/logging"
)

// AgentInfo carries identifying details about the agent answering a turn.
type AgentInfo struct{ Name, Description string }

// TurnContext carries the per-turn execution scope handed to a Dispatcher.
// It aggregates:
//   - The ambient cancellation Context
//   - Identifiers (session key, turn id, agent info)
//   - The user's input Content and the rendered instruction
//   - The committed Session snapshot (read-only) and the turn's Gateway
//   - The ordered events produced so far in this turn
//
// Dispatchers emit events through Emit; the executor folds them into its
// final-response extraction and commits the non-partial ones.
type TurnContext struct {
	Context     context.Context
	Key         SessionKey
	TurnID      string
	Agent       AgentInfo
	UserContent Content
	Instruction string
	Session     *Session
	Gateway     *Gateway
	Limiter     *ModelLimiter

	mu     sync.Mutex
	events []Event

	*loggerAdapter
}

// NewTurnContext constructs a TurnContext with a fresh Gateway over the
// session's committed state.
func NewTurnContext(
	ctx context.Context,
	sess *Session,
	turnID string,
	agent AgentInfo,
	userContent Content,
	instruction string,
	maxModelCalls int,
	logger logging.Logger,
) *TurnContext {
	var (
		key  SessionKey
		base State
	)
	if sess != nil {
		key = sess.Key
		base = sess.StateSnapshot()
	}
	return &TurnContext{
		Context:       ctx,
		Key:           key,
		TurnID:        turnID,
		Agent:         agent,
		UserContent:   userContent,
		Instruction:   instruction,
		Session:       sess,
		Gateway:       NewGateway(base),
		Limiter:       NewModelLimiter(maxModelCalls),
		loggerAdapter: newLoggerAdapter(logger),
	}
}

// Done mirrors context.Context's Done.
func (tc *TurnContext) Done() <-chan struct{} { return tc.Context.Done() }

// Err returns the cancellation error (if any) from the underlying context.
func (tc *TurnContext) Err() error { return tc.Context.Err() }

// GetState returns the pending or committed value for k.
func (tc *TurnContext) GetState(k string) (Value, bool) { return tc.Gateway.Lookup(k) }

// SetState stages a state mutation in the turn's pending delta.
func (tc *TurnContext) SetState(k string, v Value) { tc.Gateway.Write(k, v) }

// Emit records ev as the next event of this turn. It fails only when the
// turn was cancelled.
func (tc *TurnContext) Emit(ev Event) error {
	if err := tc.Context.Err(); err != nil {
		return err
	}
	if ev.TurnID == "" {
		ev.TurnID = tc.TurnID
	}
	tc.mu.Lock()
	tc.events = append(tc.events, ev)
	tc.mu.Unlock()
	return nil
}

// Events returns a copy of the events emitted so far, in order.
func (tc *TurnContext) Events() []Event {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	out := make([]Event, len(tc.events))
	copy(out, tc.events)
	return out
}

// History returns committed conversation history followed by the non-partial
// events of the current turn.
func (tc *TurnContext) History() []Event {
	var history []Event
	if tc.Session != nil {
		history = tc.Session.GetConversationHistory()
	}
	for _, ev := range tc.Events() {
		if ev.Content == nil || ev.IsPartial() {
			continue
		}
		history = append(history, ev)
	}
	return history
}

// Dispatcher hands a rendered turn to the external model / tool layer. It
// invokes zero or more callbacks against tc.Gateway and emits the resulting
// events through tc.Emit in order. It must not persist anything itself.
type Dispatcher interface {
	Dispatch(tc *TurnContext) error
}

// DispatcherFunc adapts a plain function to the Dispatcher interface.
type DispatcherFunc func(tc *TurnContext) error

// Dispatch implements Dispatcher.
func (f DispatcherFunc) Dispatch(tc *TurnContext) error { return f(tc) }
