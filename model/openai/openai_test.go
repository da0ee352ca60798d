package openai

import (
	"encoding/json"
	"testing"

	"github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/statemesh/core"
	"github.com/hupe1980/statemesh/model"
)

var _ model.Model = (*Model)(nil)

func reminderTurn() model.Request {
	return model.Request{
		Instructions: "You manage reminders.",
		Contents: []core.Content{
			{Role: "user", Parts: []core.Part{core.TextPart{Text: "remind me"}}},
			{Role: "assistant", Parts: []core.Part{
				core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "c1", Name: "add_reminder", Arguments: `{"reminder":"milk"}`}},
				core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "c2", Name: "view_reminders", Arguments: `{}`}},
			}},
			{Role: "tool", Parts: []core.Part{
				core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{ID: "c1", Name: "add_reminder", Response: map[string]any{"action": "reminder_added"}}},
				core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{ID: "c2", Name: "view_reminders", Response: map[string]any{"count": 1}}},
			}},
			{Role: "assistant", Parts: []core.Part{core.TextPart{Text: "Done."}}},
		},
		Tools: []model.ToolDefinition{{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        "add_reminder",
				Description: "Adds a reminder.",
				Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
			},
		}},
	}
}

func TestToMessages_ToolResponsesFollowCalls(t *testing.T) {
	msgs := toMessages(reminderTurn())
	require.Len(t, msgs, 6)

	assert.NotNil(t, msgs[0].OfSystem)
	assert.NotNil(t, msgs[1].OfUser)

	require.NotNil(t, msgs[2].OfAssistant)
	calls := msgs[2].OfAssistant.ToolCalls
	require.Len(t, calls, 2)
	assert.Equal(t, "c1", calls[0].ID)
	assert.Equal(t, "add_reminder", calls[0].Function.Name)
	assert.Equal(t, `{"reminder":"milk"}`, calls[0].Function.Arguments)

	require.NotNil(t, msgs[3].OfTool)
	assert.Equal(t, "c1", msgs[3].OfTool.ToolCallID)
	require.NotNil(t, msgs[4].OfTool)
	assert.Equal(t, "c2", msgs[4].OfTool.ToolCallID)

	require.NotNil(t, msgs[5].OfAssistant)
	assert.Empty(t, msgs[5].OfAssistant.ToolCalls)
}

func TestToMessages_NoInstructions(t *testing.T) {
	msgs := toMessages(model.Request{Contents: []core.Content{
		{Role: "user", Parts: []core.Part{core.TextPart{Text: "hi"}}},
		{Role: "user", Parts: []core.Part{core.TextPart{Text: ""}}},
	}})
	require.Len(t, msgs, 1)
	assert.NotNil(t, msgs[0].OfUser)
}

func TestParams(t *testing.T) {
	m := NewModelFromClient(nil, func(o *Options) {
		o.Model = "gpt-test"
		o.MaxCompletionTokens = 256
	})
	params := m.params(reminderTurn())

	assert.Equal(t, "gpt-test", params.Model)
	assert.Len(t, params.Messages, 6)
	require.Len(t, params.Tools, 1)
	assert.Equal(t, "add_reminder", params.Tools[0].Function.Name)
	assert.Equal(t, "object", params.Tools[0].Function.Parameters["type"])
}

func TestFromCompletion(t *testing.T) {
	var completion openai.ChatCompletion
	require.NoError(t, json.Unmarshal([]byte(`{
		"id": "cmpl-1",
		"choices": [{
			"index": 0,
			"finish_reason": "tool_calls",
			"message": {
				"role": "assistant",
				"content": "On it.",
				"tool_calls": [{
					"id": "c1",
					"type": "function",
					"function": {"name": "add_reminder", "arguments": "{\"reminder\":\"milk\"}"}
				}]
			}
		}],
		"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
	}`), &completion))

	resp, err := fromCompletion(&completion)
	require.NoError(t, err)
	assert.Equal(t, "cmpl-1", resp.ID)
	assert.Equal(t, "tool_calls", resp.FinishReason)
	assert.False(t, resp.Partial)
	assert.Equal(t, []core.Part{
		core.TextPart{Text: "On it."},
		core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "c1", Name: "add_reminder", Arguments: `{"reminder":"milk"}`}},
	}, resp.Content.Parts)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
}

func TestFromCompletion_NoChoices(t *testing.T) {
	_, err := fromCompletion(&openai.ChatCompletion{})
	assert.Error(t, err)
}

func TestInfo(t *testing.T) {
	info := NewModelFromClient(nil).Info()
	assert.Equal(t, "openai", info.Provider)
	assert.Equal(t, openai.ChatModelGPT4oMini, info.Name)
	assert.True(t, info.SupportsTools)
}
