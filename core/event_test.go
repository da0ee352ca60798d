package core

import (
	"encoding/json"
	"errors"
	"testing"
)

// Event constructor & helper method tests
func TestEvent_ConstructorsAndMethods(t *testing.T) {
	e := NewEvent("turn-123", "authorA")
	if e.Author != "authorA" || e.TurnID != "turn-123" || e.ID == "" || e.Timestamp.IsZero() {
		t.Fatalf("NewEvent did not initialize fields correctly: %+v", e)
	}

	msg := NewMessageEvent("turn-1", "agent1", "hello world")
	if msg.Content == nil || msg.Content.Role != "assistant" || msg.Text() != "hello world" {
		t.Fatalf("NewMessageEvent malformed: %+v", msg)
	}

	user := NewUserMessageEvent("turn-1", "hi")
	if user.Content == nil || user.Content.Role != "user" || user.Author != AuthorUser {
		t.Fatalf("NewUserMessageEvent malformed: %+v", user)
	}

	fCall := NewFunctionCallEvent("turn-1", "agent2", FunctionCall{ID: "c1", Name: "do_stuff", Arguments: `{"a":1}`})
	calls := fCall.GetFunctionCalls()
	if len(calls) != 1 || calls[0].Name != "do_stuff" || calls[0].Arguments != `{"a":1}` {
		t.Fatalf("GetFunctionCalls extraction failed: %+v", calls)
	}

	fRespOK := NewFunctionResponseEvent("turn-1", "agent2", "call-1", "do_stuff", map[string]any{"action": "x"}, nil)
	resps := fRespOK.GetFunctionResponses()
	if len(resps) != 1 || resps[0].Response["action"] != "x" || resps[0].Error != "" {
		t.Fatalf("Function response success extraction failed: %+v", resps)
	}

	fRespErr := NewFunctionResponseEvent("turn-1", "agent2", "call-2", "do_stuff", nil, errors.New("boom"))
	resps = fRespErr.GetFunctionResponses()
	if resps[0].Error != "boom" {
		t.Fatalf("Expected error message in function response: %+v", resps[0])
	}
}

func TestEvent_IsFinalResponseLogic(t *testing.T) {
	e := NewMessageEvent("turn", "agent", "done")
	if !e.IsFinalResponse() {
		t.Error("Expected plain message event to be final")
	}

	e2 := NewMessageEvent("turn", "agent", "par")
	e2.Partial = BoolPtr(true)
	if e2.IsFinalResponse() {
		t.Error("Partial event should not be final")
	}

	e3 := NewFunctionCallEvent("turn", "agent", FunctionCall{Name: "f"})
	if e3.IsFinalResponse() {
		t.Error("Event with function call should not be final")
	}

	e4 := NewFunctionResponseEvent("turn", "agent", "call-3", "f", map[string]any{}, nil)
	if e4.IsFinalResponse() {
		t.Error("Event with function response should not be final")
	}

	e5 := NewEvent("turn", "agent")
	e5.Content = &Content{Role: "assistant", Parts: []Part{
		ExecutableCodePart{Code: "print(1)"},
		CodeExecutionResultPart{Outcome: "OK", Output: "1"},
	}}
	if e5.IsFinalResponse() {
		t.Error("Trailing code execution result should not be final")
	}

	e6 := NewFunctionCallEvent("turn", "agent", FunctionCall{Name: "f"})
	e6.TurnComplete = BoolPtr(true)
	if !e6.IsFinalResponse() {
		t.Error("Explicit TurnComplete should mark final")
	}
}

func TestEvent_IDUniqueness(t *testing.T) {
	if NewID() == NewID() {
		t.Error("Expected unique IDs")
	}
}

func TestContent_JSONRoundTrip(t *testing.T) {
	ev := NewEvent("turn", "agent")
	ev.Content = &Content{Role: "assistant", Parts: []Part{
		TextPart{Text: "hello"},
		FunctionCallPart{FunctionCall: FunctionCall{ID: "c", Name: "f", Arguments: "{}"}},
		FunctionResponsePart{FunctionResponse: FunctionResponse{ID: "c", Name: "f", Response: map[string]any{"count": 2.0}}},
		ExecutableCodePart{Language: "python", Code: "x=1"},
		CodeExecutionResultPart{Outcome: "OUTCOME_OK", Output: "1"},
	}}
	ev.Actions.StateDelta = State{"reminders": List{String("a")}}

	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Event
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out.Content.Parts) != 5 {
		t.Fatalf("expected 5 parts, got %d", len(out.Content.Parts))
	}
	if tp, ok := out.Content.Parts[0].(TextPart); !ok || tp.Text != "hello" {
		t.Errorf("text part mismatch: %#v", out.Content.Parts[0])
	}
	if fr, ok := out.Content.Parts[2].(FunctionResponsePart); !ok || fr.FunctionResponse.Response["count"] != 2.0 {
		t.Errorf("function response mismatch: %#v", out.Content.Parts[2])
	}
	if _, ok := out.Content.Parts[4].(CodeExecutionResultPart); !ok {
		t.Errorf("code result mismatch: %#v", out.Content.Parts[4])
	}
	if !out.Actions.StateDelta.Equal(ev.Actions.StateDelta) {
		t.Errorf("state delta mismatch: %v", out.Actions.StateDelta)
	}
}

func TestContent_UnknownPartType(t *testing.T) {
	var c Content
	err := json.Unmarshal([]byte(`{"role":"user","parts":[{"type":"hologram","data":{}}]}`), &c)
	if err == nil {
		t.Fatal("expected error for unknown part type")
	}
}

func TestEvent_CloneCopiesResponsePayload(t *testing.T) {
	orig := NewFunctionResponseEvent("turn-1", "agent", "c1", "view_reminders", map[string]any{
		"reminders": []any{"a", "b"},
		"meta":      map[string]any{"count": 2},
	}, nil)
	orig.Content.Parts = append(orig.Content.Parts, FunctionCallPart{FunctionCall: FunctionCall{ID: "c2", Name: "noop"}})

	clone := orig.Clone()
	resp := clone.GetFunctionResponses()[0].Response
	resp["action"] = "mutated"
	resp["reminders"].([]any)[0] = "z"
	resp["meta"].(map[string]any)["count"] = 99
	clone.Content.Parts[1] = TextPart{Text: "replaced"}

	got := orig.GetFunctionResponses()[0].Response
	if _, ok := got["action"]; ok {
		t.Fatalf("clone shares top-level response map: %+v", got)
	}
	if got["reminders"].([]any)[0] != "a" {
		t.Fatalf("clone shares nested slice: %+v", got["reminders"])
	}
	if got["meta"].(map[string]any)["count"] != 2 {
		t.Fatalf("clone shares nested map: %+v", got["meta"])
	}
	if calls := orig.GetFunctionCalls(); len(calls) != 1 || calls[0].ID != "c2" {
		t.Fatalf("clone shares parts slice: %+v", orig.Content.Parts)
	}
}
