package tool

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/hupe1980/statemesh/core"
)

// ParamType is the JSON type of a callback argument.
type ParamType string

// Supported argument types.
const (
	String  ParamType = "string"
	Integer ParamType = "integer"
	Number  ParamType = "number"
)

// Param declares one callback argument.
type Param struct {
	Name        string
	Type        ParamType
	Description string
	Optional    bool
}

// Args holds arguments that passed validation. Integer arguments are stored
// as int, numbers as float64.
type Args map[string]any

// String returns the string argument name ("" when absent).
func (a Args) String(name string) string {
	s, _ := a[name].(string)
	return s
}

// Int returns the integer argument name (0 when absent).
func (a Args) Int(name string) int {
	n, _ := a[name].(int)
	return n
}

// Float returns the number argument name (0 when absent).
func (a Args) Float(name string) float64 {
	f, _ := a[name].(float64)
	return f
}

// CallbackFunc is the body of a Callback.
type CallbackFunc func(toolCtx *core.ToolContext, args Args) (any, error)

// CallbackOptions configures a Callback.
type CallbackOptions struct {
	// ReadOnly marks callbacks that never write state.
	ReadOnly bool
}

// Callback exposes a function over the turn's state as a Tool. Arguments
// are checked and coerced against the declared params before fn runs, so
// fn only sees well-typed Args. Errors come back as *ToolError.
type Callback struct {
	name        string
	description string
	params      []Param
	readOnly    bool
	fn          CallbackFunc
}

// NewCallback creates a Callback.
func NewCallback(name, description string, params []Param, fn CallbackFunc, optFns ...func(o *CallbackOptions)) *Callback {
	var opts CallbackOptions
	for _, f := range optFns {
		f(&opts)
	}
	return &Callback{name: name, description: description, params: params, readOnly: opts.ReadOnly, fn: fn}
}

// Name implements Tool.
func (c *Callback) Name() string { return c.name }

// Description implements Tool.
func (c *Callback) Description() string { return c.description }

// ReadOnly implements ReadOnlyTool.
func (c *Callback) ReadOnly() bool { return c.readOnly }

// Parameters renders the declared params as a JSON object schema.
func (c *Callback) Parameters() map[string]any {
	props := make(map[string]any, len(c.params))
	required := make([]string, 0, len(c.params))
	for _, p := range c.params {
		props[p.Name] = map[string]any{"type": string(p.Type), "description": p.Description}
		if !p.Optional {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// Call implements Tool.
func (c *Callback) Call(toolCtx *core.ToolContext, raw map[string]any) (any, error) {
	logger := toolCtx.Logger()
	start := time.Now()

	args, err := c.bind(raw)
	if err != nil {
		logger.Warn("tool.call.validation_failed", "tool", c.name, "error", err.Error())
		return nil, &ToolError{Tool: c.name, Message: err.Error(), Code: CodeValidation}
	}

	result, err := c.fn(toolCtx, args)
	if err != nil {
		var toolErr *ToolError
		if !errors.As(err, &toolErr) {
			toolErr = &ToolError{Message: err.Error(), Code: CodeExecution}
		}
		if toolErr.Tool == "" {
			toolErr.Tool = c.name
		}
		logger.Error("tool.call.error", "tool", c.name, "error", toolErr.Message)
		return nil, toolErr
	}

	logger.Debug("tool.call.success", "tool", c.name, "fc_id", toolCtx.FunctionCallID(), "duration_ms", time.Since(start).Milliseconds())
	return result, nil
}

func (c *Callback) bind(raw map[string]any) (Args, error) {
	args := make(Args, len(c.params))
	for _, p := range c.params {
		v, ok := raw[p.Name]
		if !ok || v == nil {
			if p.Optional {
				continue
			}
			return nil, fmt.Errorf("missing required argument %q", p.Name)
		}
		coerced, ok := coerce(p.Type, v)
		if !ok {
			return nil, fmt.Errorf("argument %q must be %s", p.Name, article(p.Type))
		}
		args[p.Name] = coerced
	}
	return args, nil
}

// coerce accepts the JSON shapes models actually send: integral floats and
// numeric strings for integers, numeric strings for numbers.
func coerce(t ParamType, v any) (any, bool) {
	switch t {
	case String:
		s, ok := v.(string)
		return s, ok
	case Integer:
		switch n := v.(type) {
		case int:
			return n, true
		case int64:
			return int(n), true
		case float64:
			if n == math.Trunc(n) && !math.IsInf(n, 0) {
				return int(n), true
			}
		case string:
			if i, err := strconv.Atoi(n); err == nil {
				return i, true
			}
		}
	case Number:
		switch n := v.(type) {
		case float64:
			return n, true
		case int:
			return float64(n), true
		case string:
			if f, err := strconv.ParseFloat(n, 64); err == nil {
				return f, true
			}
		}
	default:
		return v, true
	}
	return nil, false
}

func article(t ParamType) string {
	if t == Integer {
		return "an integer"
	}
	return "a " + string(t)
}
