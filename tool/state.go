package tool

import (
	"fmt"

	"github.com/hupe1980/statemesh/core"
)

// StateTool exposes generic session state access to the model.
//
// Operations:
//   - get_state: read a key (absent keys report exists=false)
//   - set_state: overwrite a key with any JSON value
//   - list_keys: list the keys currently visible to the turn
//
// Reads see pending writes of the same turn; writes are committed with it.
type StateTool struct {
	name        string
	description string
}

// NewStateTool creates a new state management tool.
func NewStateTool() *StateTool {
	return &StateTool{
		name: "state_manager",
		description: "Reads and writes session state. " +
			"Supports operations: get_state, set_state, list_keys.",
	}
}

// Name returns the tool identifier.
func (t *StateTool) Name() string { return t.name }

// Description returns the tool description.
func (t *StateTool) Description() string { return t.description }

// Parameters returns the JSON schema for tool parameters.
func (t *StateTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"operation": map[string]any{
				"type":        "string",
				"enum":        []string{"get_state", "set_state", "list_keys"},
				"description": "The state operation to perform",
			},
			"key": map[string]any{
				"type":        "string",
				"description": "State key for get_state/set_state operations",
			},
			"value": map[string]any{
				"description": "Value for set_state operations (any JSON value)",
			},
		},
		"required": []string{"operation"},
	}
}

// Call implements the Tool interface.
func (t *StateTool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	operation, ok := args["operation"].(string)
	if !ok {
		return nil, NewToolError(t.name, "operation parameter is required", CodeValidation)
	}

	switch operation {
	case "get_state":
		return t.handleGetState(args, toolCtx)
	case "set_state":
		return t.handleSetState(args, toolCtx)
	case "list_keys":
		return t.handleListKeys(toolCtx), nil
	default:
		return nil, NewToolError(t.name, fmt.Sprintf("unknown operation: %s", operation), CodeValidation)
	}
}

func (t *StateTool) handleGetState(args map[string]any, toolCtx *core.ToolContext) (any, error) {
	key, ok := args["key"].(string)
	if !ok {
		return nil, NewToolError(t.name, "key parameter is required for get_state operation", CodeValidation)
	}

	value, exists := toolCtx.GetState(key)
	if !exists {
		return map[string]any{
			"action":  "get_state",
			"key":     key,
			"exists":  false,
			"value":   nil,
			"message": fmt.Sprintf("State key '%s' is not set", key),
		}, nil
	}

	return map[string]any{
		"action":  "get_state",
		"key":     key,
		"exists":  true,
		"value":   core.Native(value),
		"message": fmt.Sprintf("State key '%s' read", key),
	}, nil
}

func (t *StateTool) handleSetState(args map[string]any, toolCtx *core.ToolContext) (any, error) {
	key, ok := args["key"].(string)
	if !ok || key == "" {
		return nil, NewToolError(t.name, "key parameter is required for set_state operation", CodeValidation)
	}

	value, err := core.ValueOf(args["value"])
	if err != nil {
		return nil, &ToolError{Tool: t.name, Message: err.Error(), Code: CodeValidation, Details: key}
	}

	toolCtx.SetState(key, value)

	return map[string]any{
		"action":  "set_state",
		"key":     key,
		"value":   core.Native(value),
		"message": fmt.Sprintf("State key '%s' set successfully", key),
	}, nil
}

func (t *StateTool) handleListKeys(toolCtx *core.ToolContext) map[string]any {
	keys := toolCtx.State().Pending().Keys()
	items := make([]any, len(keys))
	for i, k := range keys {
		items[i] = k
	}
	return map[string]any{
		"action":  "list_keys",
		"keys":    items,
		"count":   len(keys),
		"message": fmt.Sprintf("%d state key(s)", len(keys)),
	}
}
