package model

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/statemesh/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// Request captures the normalized model input produced by the tool loop.
type Request struct {
	Instructions string           `json:"instructions"` // Rendered system instruction
	Contents     []core.Content   `json:"contents"`     // Conversation history converted to provider messages
	Tools        []ToolDefinition `json:"tools,omitempty"`
	Stream       bool             `json:"stream,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a model.
type Response struct {
	ID           string       `json:"id"`
	Partial      bool         `json:"partial"` // Indicates if this is a partial response
	Content      core.Content `json:"content"`
	FinishReason string       `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "scripted", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required to drive generation. Implementations
// close both channels when done; at most one error is sent.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// EncodeFunctionResponse renders a callback result as the JSON text sent
// back to providers. Errors are reported under "error".
func EncodeFunctionResponse(fr core.FunctionResponse) string {
	payload := fr.Response
	if fr.Error != "" {
		payload = map[string]any{"status": "error", "error": fr.Error}
		for k, v := range fr.Response {
			payload[k] = v
		}
	}
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("%v", payload)
	}
	return string(data)
}

// Step produces one scripted response from the request it answers.
type Step func(req Request) (Response, error)

// Text scripts a final text answer.
func Text(text string) Step {
	return func(Request) (Response, error) {
		return Response{
			Content:      core.Content{Role: "assistant", Parts: []core.Part{core.TextPart{Text: text}}},
			FinishReason: "stop",
		}, nil
	}
}

// Calls scripts a response requesting the given function calls. Arguments
// must be JSON text.
func Calls(calls ...core.FunctionCall) Step {
	return func(Request) (Response, error) {
		parts := make([]core.Part, len(calls))
		for i, fc := range calls {
			if fc.ID == "" {
				fc.ID = core.NewID()
			}
			parts[i] = core.FunctionCallPart{FunctionCall: fc}
		}
		return Response{Content: core.Content{Role: "assistant", Parts: parts}, FinishReason: "tool_calls"}, nil
	}
}

// Call is shorthand for a single function call with the given name and JSON arguments.
func Call(name, args string) Step {
	return Calls(core.FunctionCall{Name: name, Arguments: args})
}

// Fail scripts a provider error.
func Fail(err error) Step {
	return func(Request) (Response, error) { return Response{}, err }
}

// ScriptedModel is a deterministic in‑memory Model for tests and examples.
// Each Generate call consumes the next Step; once the script is exhausted it
// echoes the last user text. Requests are recorded for assertions.
type ScriptedModel struct {
	info Info

	mu       sync.Mutex
	steps    []Step
	requests []Request
}

// NewScriptedModel constructs a ScriptedModel answering with steps in order.
func NewScriptedModel(steps ...Step) *ScriptedModel {
	return &ScriptedModel{
		info:  Info{Name: "scripted", Provider: "scripted", SupportsTools: true},
		steps: steps,
	}
}

// Push appends steps to the script.
func (m *ScriptedModel) Push(steps ...Step) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, steps...)
}

// Requests returns the requests seen so far.
func (m *ScriptedModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

func (m *ScriptedModel) next(req Request) Step {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if len(m.steps) == 0 {
		return Text("Mock response to: " + lastUserText(req))
	}
	step := m.steps[0]
	m.steps = m.steps[1:]
	return step
}

// Generate implements Model; when req.Stream is set text answers are first
// emitted as per-word partial chunks.
func (m *ScriptedModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)
	step := m.next(req)

	go func() {
		defer close(respCh)
		defer close(errCh)

		resp, err := step(req)
		if err != nil {
			errCh <- err
			return
		}
		if req.Stream {
			for _, w := range strings.SplitAfter(resp.Content.Text(), " ") {
				if w == "" {
					continue
				}
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{
					Partial: true,
					Content: core.Content{Role: "assistant", Parts: []core.Part{core.TextPart{Text: w}}},
				}:
				}
			}
		}
		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case respCh <- resp:
		}
	}()
	return respCh, errCh
}

// Info implements Model interface.
func (m *ScriptedModel) Info() Info { return m.info }

func lastUserText(req Request) string {
	for i := len(req.Contents) - 1; i >= 0; i-- {
		if req.Contents[i].Role == "user" {
			return req.Contents[i].Text()
		}
	}
	return ""
}
