// Package tool implements the callback subsystem: named operations that the
// external model layer may invoke during a turn. Callbacks read and write
// session state exclusively through core.ToolContext (and therefore the
// turn's Gateway), validate their arguments against a JSON schema and always
// return a mapping so the model can describe the outcome.
package tool

import (
	"fmt"

	"github.com/hupe1980/statemesh/core"
)

// Tool defines a callback invocable during a turn.
//
// Tool implementations should:
//   - Provide clear, descriptive names and descriptions
//   - Define proper JSON schema for parameters
//   - Mutate state only through the ToolContext
//   - Be safe for concurrent use; read-only calls may run in parallel
type Tool interface {
	// Name returns the unique identifier for this tool (snake_case).
	Name() string

	// Description returns a human-readable description shown to the model.
	Description() string

	// Parameters returns a JSON schema describing the expected input format.
	Parameters() map[string]any

	// Call executes the tool with decoded arguments.
	Call(toolCtx *core.ToolContext, args map[string]any) (any, error)
}

// ReadOnlyTool is implemented by tools that can report whether they never
// write state. Calls to read-only tools may run concurrently; every other
// call runs alone, in the order the model requested it.
type ReadOnlyTool interface {
	ReadOnly() bool
}

// IsReadOnly reports whether t declares itself read-only.
func IsReadOnly(t Tool) bool {
	ro, ok := t.(ReadOnlyTool)
	return ok && ro.ReadOnly()
}

// Mapper is implemented by structured results that know their generic
// mapping form (see Result).
type Mapper interface {
	Map() map[string]any
}

// ToMap converts a tool result into the mapping handed back to the model.
// Mappers and maps pass through; any other value is wrapped under "result".
func ToMap(v any) map[string]any {
	switch r := v.(type) {
	case nil:
		return map[string]any{}
	case Mapper:
		return r.Map()
	case map[string]any:
		return r
	default:
		return map[string]any{"result": r}
	}
}

// Set indexes tools by name.
type Set map[string]Tool

// NewSet builds a Set. Duplicate names are rejected.
func NewSet(tools ...Tool) (Set, error) {
	s := make(Set, len(tools))
	for _, t := range tools {
		if _, dup := s[t.Name()]; dup {
			return nil, fmt.Errorf("duplicate tool name %q", t.Name())
		}
		s[t.Name()] = t
	}
	return s, nil
}

// List returns the tools of the set in unspecified order.
func (s Set) List() []Tool {
	out := make([]Tool, 0, len(s))
	for _, t := range s {
		out = append(out, t)
	}
	return out
}

// Error codes used by ToolError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
	CodeUnknown    = "UNKNOWN_TOOL"
)

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}
