package core

import (
	"context"
	"fmt"

	"github.com/hupe1980/statemesh/logging"
)

// ToolContext provides a constrained, auditable surface for callback
// implementations invoked during a turn. Reads and writes go through the
// turn's Gateway; writes are additionally recorded locally so the resulting
// function response event carries the delta it caused.
type ToolContext struct {
	turnCtx        *TurnContext
	functionCallID string
	eventActions   EventActions
	valid          bool

	*loggerAdapter
}

// NewToolContext constructs a tool context bound to a parent TurnContext and
// unique functionCallID.
func NewToolContext(turnCtx *TurnContext, functionCallID string) *ToolContext {
	return &ToolContext{
		turnCtx:        turnCtx,
		functionCallID: functionCallID,
		eventActions:   EventActions{},
		valid:          true,
		loggerAdapter:  newLoggerAdapter(turnCtx.Logger()),
	}
}

// Context returns the context associated with the tool invocation.
func (tc *ToolContext) Context() context.Context { return tc.turnCtx.Context }

// Key returns the session key of the turn.
func (tc *ToolContext) Key() SessionKey { return tc.turnCtx.Key }

// TurnID returns the id of the enclosing turn.
func (tc *ToolContext) TurnID() string { return tc.turnCtx.TurnID }

// Logger returns the logger associated with the tool invocation.
func (tc *ToolContext) Logger() logging.Logger { return tc.loggerAdapter.Logger() }

// FunctionCallID returns the function call ID associated with the tool invocation.
func (tc *ToolContext) FunctionCallID() string { return tc.functionCallID }

// AgentName returns the agent name associated with the tool invocation.
func (tc *ToolContext) AgentName() string { return tc.turnCtx.Agent.Name }

// State returns the turn's mutation gateway.
func (tc *ToolContext) State() *Gateway { return tc.turnCtx.Gateway }

// ReadState returns the pending or committed value for k, or def when absent.
func (tc *ToolContext) ReadState(k string, def Value) Value {
	return tc.turnCtx.Gateway.Read(k, def)
}

// GetState retrieves the value for k with an existence flag.
func (tc *ToolContext) GetState(k string) (Value, bool) {
	return tc.turnCtx.Gateway.Lookup(k)
}

// SetState writes k into the pending delta and records it for the response event.
func (tc *ToolContext) SetState(k string, v Value) {
	tc.turnCtx.Gateway.Write(k, v)
	tc.record(k, v)
}

// UpdateState performs an atomic read-modify-write through the gateway and
// records the written value for the response event.
func (tc *ToolContext) UpdateState(k string, def Value, fn func(cur Value) (Value, bool)) {
	tc.turnCtx.Gateway.Update(k, def, func(cur Value) (Value, bool) {
		next, write := fn(cur)
		if write {
			tc.record(k, next)
		}
		return next, write
	})
}

func (tc *ToolContext) record(k string, v Value) {
	if tc.eventActions.StateDelta == nil {
		tc.eventActions.StateDelta = State{}
	}
	tc.eventActions.StateDelta[k] = Clone(v)
}

// Actions returns the event actions accumulated in the tool context.
func (tc *ToolContext) Actions() *EventActions { return &tc.eventActions }

// GetSessionHistory returns conversation history (filtered) for context.
func (tc *ToolContext) GetSessionHistory() []Event { return tc.turnCtx.History() }

// Validate performs a structural sanity check of the context.
func (tc *ToolContext) Validate() error {
	if !tc.IsValid() {
		return fmt.Errorf("invalid ToolContext")
	}
	return nil
}

// IsValid reports whether Validate would succeed (fast path).
func (tc *ToolContext) IsValid() bool {
	return tc.valid && tc.turnCtx != nil && tc.turnCtx.Gateway != nil && tc.functionCallID != ""
}

// InternalApplyActions merges accumulated EventActions into the provided event.
// (Used by the function executor when finalizing callback response events.)
func (tc *ToolContext) InternalApplyActions(ev *Event) {
	if len(tc.eventActions.StateDelta) == 0 {
		return
	}
	if ev.Actions.StateDelta == nil {
		ev.Actions.StateDelta = State{}
	}
	ev.Actions.StateDelta.Apply(tc.eventActions.StateDelta)
	tc.LogDebug("tool.state_delta.applied", "function_call_id", tc.functionCallID, "keys", len(tc.eventActions.StateDelta))
}
