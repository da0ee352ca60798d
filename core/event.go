package core

import (
	"time"

	"github.com/google/uuid"
)

// Author values used for events not produced by an agent.
const (
	AuthorUser   = "user"
	AuthorSystem = "system"
)

// EventActions encodes side effects attached to an Event. StateDelta records
// the keys a callback wrote so the audit trail shows which turn changed what.
type EventActions struct {
	StateDelta State `json:"state_delta,omitempty"`
}

// Event is an immutable record of one exchange inside a session. Position is
// assigned on append and is strictly increasing within a session.
type Event struct {
	ID           string       `json:"id"`
	TurnID       string       `json:"turn_id"`
	Author       string       `json:"author"`
	Position     int64        `json:"position"`
	Timestamp    time.Time    `json:"timestamp"`
	Content      *Content     `json:"content,omitempty"`
	Actions      EventActions `json:"actions"`
	Partial      *bool        `json:"partial,omitempty"`
	TurnComplete *bool        `json:"turn_complete,omitempty"`
	ErrorCode    *string      `json:"error_code,omitempty"`
	ErrorMessage *string      `json:"error_message,omitempty"`
}

// NewEvent creates a bare event authored by author bound to a turn.
func NewEvent(turnID, author string) Event {
	return Event{
		ID:        NewID(),
		TurnID:    turnID,
		Author:    author,
		Timestamp: time.Now().UTC(),
	}
}

// NewMessageEvent creates an agent-authored message event with a single text part.
func NewMessageEvent(turnID, author, message string) Event {
	e := NewEvent(turnID, author)
	e.Content = &Content{Role: "assistant", Parts: []Part{TextPart{Text: message}}}
	return e
}

// NewUserMessageEvent creates a user-authored text message event.
func NewUserMessageEvent(turnID, message string) Event {
	e := NewEvent(turnID, AuthorUser)
	e.Content = &Content{Role: "user", Parts: []Part{TextPart{Text: message}}}
	return e
}

// NewFunctionCallEvent represents an agent requesting execution of a named callback.
func NewFunctionCallEvent(turnID, author string, calls ...FunctionCall) Event {
	e := NewEvent(turnID, author)
	parts := make([]Part, len(calls))
	for i, fc := range calls {
		parts[i] = FunctionCallPart{FunctionCall: fc}
	}
	e.Content = &Content{Role: "assistant", Parts: parts}
	return e
}

// NewFunctionResponseEvent records the result (or error) of a callback invocation.
func NewFunctionResponseEvent(turnID, author, callID, name string, result map[string]any, err error) Event {
	e := NewEvent(turnID, author)
	fr := FunctionResponse{ID: callID, Name: name, Response: result}
	if err != nil {
		fr.Error = err.Error()
	}
	e.Content = &Content{Role: "tool", Parts: []Part{FunctionResponsePart{FunctionResponse: fr}}}
	return e
}

// NewID generates a new unique identifier.
func NewID() string { return uuid.NewString() }

// IsPartial reports whether this event is a streaming fragment.
func (e Event) IsPartial() bool { return e.Partial != nil && *e.Partial }

// GetFunctionCalls returns the FunctionCall parts in order.
func (e Event) GetFunctionCalls() []FunctionCall {
	if e.Content == nil {
		return nil
	}
	var calls []FunctionCall
	for _, p := range e.Content.Parts {
		if fc, ok := p.(FunctionCallPart); ok {
			calls = append(calls, fc.FunctionCall)
		}
	}
	return calls
}

// GetFunctionResponses returns the FunctionResponse parts in order.
func (e Event) GetFunctionResponses() []FunctionResponse {
	if e.Content == nil {
		return nil
	}
	var responses []FunctionResponse
	for _, p := range e.Content.Parts {
		if fr, ok := p.(FunctionResponsePart); ok {
			responses = append(responses, fr.FunctionResponse)
		}
	}
	return responses
}

// HasTrailingCodeExecutionResult reports whether the last part is a code
// execution result, in which case the model still owes a follow-up.
func (e Event) HasTrailingCodeExecutionResult() bool {
	if e.Content == nil || len(e.Content.Parts) == 0 {
		return false
	}
	_, ok := e.Content.Parts[len(e.Content.Parts)-1].(CodeExecutionResultPart)
	return ok
}

// IsFinalResponse reports whether the event terminates the agent's turn: an
// explicit TurnComplete flag wins, otherwise it must carry no pending
// function calls/responses, not be partial and not end in a code result.
func (e Event) IsFinalResponse() bool {
	if e.TurnComplete != nil {
		return *e.TurnComplete && !e.IsPartial()
	}
	return len(e.GetFunctionCalls()) == 0 &&
		len(e.GetFunctionResponses()) == 0 &&
		!e.IsPartial() &&
		!e.HasTrailingCodeExecutionResult()
}

// Text returns the concatenated text parts (empty for content-less events).
func (e Event) Text() string {
	if e.Content == nil {
		return ""
	}
	return e.Content.Text()
}

// Clone returns a copy safe for independent mutation of Actions.
func (e Event) Clone() Event {
	c := e
	if e.Actions.StateDelta != nil {
		c.Actions.StateDelta = e.Actions.StateDelta.Clone()
	}
	if e.Content != nil {
		content := Content{Role: e.Content.Role, Parts: make([]Part, len(e.Content.Parts))}
		for i, p := range e.Content.Parts {
			content.Parts[i] = clonePart(p)
		}
		c.Content = &content
	}
	return c
}

// clonePart copies the mutable payload of a part. All other part types hold
// only strings.
func clonePart(p Part) Part {
	if fr, ok := p.(FunctionResponsePart); ok {
		fr.FunctionResponse.Response = cloneAny(fr.FunctionResponse.Response).(map[string]any)
		return fr
	}
	return p
}

// cloneAny deep-copies the maps and slices of a decoded JSON-like value.
func cloneAny(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if t == nil {
			return t
		}
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneAny(e)
		}
		return out
	case []any:
		if t == nil {
			return t
		}
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneAny(e)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

// BoolPtr is a helper for optional flags.
func BoolPtr(b bool) *bool { return &b }
