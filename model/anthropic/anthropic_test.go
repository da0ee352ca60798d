package anthropic

import (
	"encoding/json"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/statemesh/core"
	"github.com/hupe1980/statemesh/model"
)

var _ model.Model = (*Model)(nil)

func TestToMessages_RolesAlternate(t *testing.T) {
	msgs := toMessages([]core.Content{
		{Role: "user", Parts: []core.Part{core.TextPart{Text: "remind me"}}},
		{Role: "assistant", Parts: []core.Part{
			core.TextPart{Text: "Adding it."},
			core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "c1", Name: "add_reminder", Arguments: `{"reminder":"milk"}`}},
		}},
		{Role: "tool", Parts: []core.Part{
			core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{ID: "c1", Name: "add_reminder", Response: map[string]any{"action": "reminder_added"}}},
		}},
		{Role: "user", Parts: []core.Part{core.TextPart{Text: "thanks"}}},
		{Role: "assistant", Parts: []core.Part{core.TextPart{Text: ""}}},
	})

	require.Len(t, msgs, 3)
	assert.Equal(t, anthropic.MessageParamRoleUser, msgs[0].Role)
	assert.Equal(t, anthropic.MessageParamRoleAssistant, msgs[1].Role)
	require.Len(t, msgs[1].Content, 2)
	assert.NotNil(t, msgs[1].Content[0].OfText)
	require.NotNil(t, msgs[1].Content[1].OfToolUse)
	assert.Equal(t, "c1", msgs[1].Content[1].OfToolUse.ID)
	assert.Equal(t, map[string]any{"reminder": "milk"}, msgs[1].Content[1].OfToolUse.Input)

	// Tool results and the following user text share one user message.
	assert.Equal(t, anthropic.MessageParamRoleUser, msgs[2].Role)
	require.Len(t, msgs[2].Content, 2)
	require.NotNil(t, msgs[2].Content[0].OfToolResult)
	assert.Equal(t, "c1", msgs[2].Content[0].OfToolResult.ToolUseID)
	assert.NotNil(t, msgs[2].Content[1].OfText)
}

func TestToolInput(t *testing.T) {
	assert.Equal(t, map[string]any{"a": float64(1)}, toolInput(`{"a":1}`))
	assert.Equal(t, map[string]any{}, toolInput(""))
	assert.Equal(t, map[string]any{}, toolInput("not json"))
	assert.Equal(t, map[string]any{}, toolInput("null"))
}

func TestParams(t *testing.T) {
	m := NewModelFromClient(nil, func(o *Options) { o.MaxTokens = 512 })
	params := m.params(model.Request{
		Instructions: "You manage reminders.",
		Contents:     []core.Content{{Role: "user", Parts: []core.Part{core.TextPart{Text: "hi"}}}},
		Tools: []model.ToolDefinition{{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        "delete_reminder",
				Description: "Deletes a reminder.",
				Parameters: map[string]any{
					"type":       "object",
					"properties": map[string]any{"index": map[string]any{"type": "integer"}},
					"required":   []any{"index"},
				},
			},
		}},
	})

	assert.Equal(t, int64(512), params.MaxTokens)
	require.Len(t, params.System, 1)
	assert.Equal(t, "You manage reminders.", params.System[0].Text)
	require.Len(t, params.Messages, 1)
	require.Len(t, params.Tools, 1)
	require.NotNil(t, params.Tools[0].OfTool)
	assert.Equal(t, "delete_reminder", params.Tools[0].OfTool.Name)
	assert.Equal(t, []string{"index"}, params.Tools[0].OfTool.InputSchema.Required)
}

func TestFromMessage(t *testing.T) {
	var msg anthropic.Message
	require.NoError(t, json.Unmarshal([]byte(`{
		"id": "msg_1",
		"type": "message",
		"role": "assistant",
		"model": "claude-3-5-sonnet-20241022",
		"content": [
			{"type": "text", "text": "Adding it."},
			{"type": "tool_use", "id": "t1", "name": "add_reminder", "input": {"reminder": "milk"}}
		],
		"stop_reason": "tool_use",
		"usage": {"input_tokens": 10, "output_tokens": 5}
	}`), &msg))

	resp := fromMessage(&msg)
	assert.Equal(t, "msg_1", resp.ID)
	assert.Equal(t, "tool_use", resp.FinishReason)
	require.Len(t, resp.Content.Parts, 2)
	assert.Equal(t, core.TextPart{Text: "Adding it."}, resp.Content.Parts[0])
	fc, ok := resp.Content.Parts[1].(core.FunctionCallPart)
	require.True(t, ok)
	assert.Equal(t, "t1", fc.FunctionCall.ID)
	assert.Equal(t, "add_reminder", fc.FunctionCall.Name)
	assert.JSONEq(t, `{"reminder":"milk"}`, fc.FunctionCall.Arguments)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
}

func TestInfo(t *testing.T) {
	info := NewModelFromClient(nil).Info()
	assert.Equal(t, "anthropic", info.Provider)
	assert.Equal(t, string(anthropic.ModelClaude3_5Sonnet20241022), info.Name)
}
