package core

import (
	"encoding/json"
	"fmt"
)

// Part represents a polymorphic segment of role-based content. Concrete part
// types implement the unexported isPart marker enabling a closed set.
type Part interface{ isPart() }

// TextPart is a plain text content segment.
type TextPart struct {
	Text string `json:"text"`
}

func (TextPart) isPart() {}

// FunctionCall describes a tool/function invocation request.
type FunctionCall struct {
	ID        string `json:"id,omitempty"`        // Optional stable id correlating the response
	Name      string `json:"name"`                // Tool / function name
	Arguments string `json:"arguments,omitempty"` // Serialized argument payload (JSON)
}

// FunctionCallPart wraps a FunctionCall as a content part.
type FunctionCallPart struct {
	FunctionCall FunctionCall `json:"function_call"`
}

func (FunctionCallPart) isPart() {}

// FunctionResponse describes the outcome of a function call. Response is
// always a mapping so the model layer can describe the result richly.
type FunctionResponse struct {
	ID       string         `json:"id,omitempty"` // Matches originating FunctionCall ID
	Name     string         `json:"name"`
	Response map[string]any `json:"response,omitempty"`
	Error    string         `json:"error,omitempty"` // Populated on failure
}

// FunctionResponsePart wraps a FunctionResponse as a content part.
type FunctionResponsePart struct {
	FunctionResponse FunctionResponse `json:"function_response"`
}

func (FunctionResponsePart) isPart() {}

// ExecutableCodePart carries code generated by the model.
type ExecutableCodePart struct {
	Language string `json:"language,omitempty"`
	Code     string `json:"code"`
}

func (ExecutableCodePart) isPart() {}

// CodeExecutionResultPart carries the outcome of executing generated code.
type CodeExecutionResultPart struct {
	Outcome string `json:"outcome"`
	Output  string `json:"output,omitempty"`
}

func (CodeExecutionResultPart) isPart() {}

// Content holds role + ordered parts.
type Content struct {
	Role  string `json:"role,omitempty"` // user, assistant, tool, system
	Parts []Part `json:"parts"`
}

// Text concatenates all text parts.
func (c Content) Text() string {
	var out string
	for _, p := range c.Parts {
		if tp, ok := p.(TextPart); ok {
			out += tp.Text
		}
	}
	return out
}

type partEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	partTypeText         = "text"
	partTypeFunctionCall = "function_call"
	partTypeFunctionResp = "function_response"
	partTypeCode         = "executable_code"
	partTypeCodeResult   = "code_execution_result"
)

// MarshalJSON encodes parts with a type discriminator so events round-trip
// through durable backends.
func (c Content) MarshalJSON() ([]byte, error) {
	envs := make([]partEnvelope, 0, len(c.Parts))
	for _, p := range c.Parts {
		var typ string
		switch p.(type) {
		case TextPart:
			typ = partTypeText
		case FunctionCallPart:
			typ = partTypeFunctionCall
		case FunctionResponsePart:
			typ = partTypeFunctionResp
		case ExecutableCodePart:
			typ = partTypeCode
		case CodeExecutionResultPart:
			typ = partTypeCodeResult
		default:
			return nil, fmt.Errorf("unknown part type %T", p)
		}
		data, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		envs = append(envs, partEnvelope{Type: typ, Data: data})
	}
	return json.Marshal(struct {
		Role  string         `json:"role,omitempty"`
		Parts []partEnvelope `json:"parts"`
	}{Role: c.Role, Parts: envs})
}

// UnmarshalJSON decodes the discriminated part encoding produced by MarshalJSON.
func (c *Content) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role  string         `json:"role,omitempty"`
		Parts []partEnvelope `json:"parts"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parts := make([]Part, 0, len(raw.Parts))
	for _, env := range raw.Parts {
		var (
			p   Part
			err error
		)
		switch env.Type {
		case partTypeText:
			var tp TextPart
			err = json.Unmarshal(env.Data, &tp)
			p = tp
		case partTypeFunctionCall:
			var fc FunctionCallPart
			err = json.Unmarshal(env.Data, &fc)
			p = fc
		case partTypeFunctionResp:
			var fr FunctionResponsePart
			err = json.Unmarshal(env.Data, &fr)
			p = fr
		case partTypeCode:
			var ec ExecutableCodePart
			err = json.Unmarshal(env.Data, &ec)
			p = ec
		case partTypeCodeResult:
			var cr CodeExecutionResultPart
			err = json.Unmarshal(env.Data, &cr)
			p = cr
		default:
			return fmt.Errorf("unknown part type %q", env.Type)
		}
		if err != nil {
			return fmt.Errorf("decode %s part: %w", env.Type, err)
		}
		parts = append(parts, p)
	}
	c.Role = raw.Role
	c.Parts = parts
	return nil
}
