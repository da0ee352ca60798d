// Package anthropic adapts the Anthropic Messages API to model.Model.
//
// Streaming requests are answered with the single final response.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/hupe1980/statemesh/core"
	"github.com/hupe1980/statemesh/model"
)

// Options configure the Anthropic adapter.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
}

// Model serves model.Request values through the Messages API.
type Model struct {
	client *anthropic.Client
	opts   Options
}

// NewModel creates a model with a client configured from the environment
// (ANTHROPIC_API_KEY).
func NewModel(optFns ...func(o *Options)) *Model {
	client := anthropic.NewClient()
	return NewModelFromClient(&client, optFns...)
}

// NewModelFromClient creates a model on top of an existing client.
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Generate sends one Messages request and emits its response.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 1)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)

		msg, err := m.client.Messages.New(ctx, m.params(req))
		if err != nil {
			errCh <- fmt.Errorf("anthropic: %w", err)
			return
		}
		out <- fromMessage(msg)
	}()
	return out, errCh
}

// Info describes the adapter.
func (m *Model) Info() model.Info {
	return model.Info{Name: string(m.opts.Model), Provider: "anthropic", SupportsTools: true}
}

func (m *Model) params(req model.Request) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:       m.opts.Model,
		MaxTokens:   m.opts.MaxTokens,
		Temperature: anthropic.Float(m.opts.Temperature),
		Messages:    toMessages(req.Contents),
	}
	if req.Instructions != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.Instructions}}
	}
	for _, def := range req.Tools {
		params.Tools = append(params.Tools, toTool(def))
	}
	return params
}

// toMessages maps request contents onto alternating user/assistant messages.
// Tool responses travel as tool_result blocks in a user message; adjacent
// contents with the same role are merged.
func toMessages(contents []core.Content) []anthropic.MessageParam {
	var msgs []anthropic.MessageParam
	for _, c := range contents {
		blocks := toBlocks(c.Parts)
		if len(blocks) == 0 {
			continue
		}
		role := anthropic.MessageParamRoleUser
		if c.Role == "assistant" {
			role = anthropic.MessageParamRoleAssistant
		}
		if n := len(msgs); n > 0 && msgs[n-1].Role == role {
			msgs[n-1].Content = append(msgs[n-1].Content, blocks...)
			continue
		}
		msgs = append(msgs, anthropic.MessageParam{Role: role, Content: blocks})
	}
	return msgs
}

func toBlocks(parts []core.Part) []anthropic.ContentBlockParamUnion {
	var blocks []anthropic.ContentBlockParamUnion
	for _, p := range parts {
		switch part := p.(type) {
		case core.TextPart:
			if part.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(part.Text))
			}
		case core.FunctionCallPart:
			fc := part.FunctionCall
			blocks = append(blocks, anthropic.NewToolUseBlock(fc.ID, toolInput(fc.Arguments), fc.Name))
		case core.FunctionResponsePart:
			fr := part.FunctionResponse
			blocks = append(blocks, anthropic.NewToolResultBlock(fr.ID, model.EncodeFunctionResponse(fr), fr.Error != ""))
		}
	}
	return blocks
}

// toolInput decodes call arguments into the object tool_use blocks require.
func toolInput(args string) map[string]any {
	input := map[string]any{}
	if args != "" {
		if err := json.Unmarshal([]byte(args), &input); err != nil || input == nil {
			return map[string]any{}
		}
	}
	return input
}

func toTool(def model.ToolDefinition) anthropic.ToolUnionParam {
	schema := anthropic.ToolInputSchemaParam{Type: constant.Object("object")}
	if params := def.Function.Parameters; params != nil {
		schema.Properties = params["properties"]
		schema.Required = stringSlice(params["required"])
	}
	t := anthropic.ToolUnionParamOfTool(schema, def.Function.Name)
	if def.Function.Description != "" {
		t.OfTool.Description = anthropic.String(def.Function.Description)
	}
	return t
}

func stringSlice(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, e := range s {
			if str, ok := e.(string); ok {
				out = append(out, str)
			}
		}
		return out
	default:
		return nil
	}
}

func fromMessage(msg *anthropic.Message) model.Response {
	parts := make([]core.Part, 0, len(msg.Content))
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			if text := block.AsText().Text; text != "" {
				parts = append(parts, core.TextPart{Text: text})
			}
		case "tool_use":
			use := block.AsToolUse()
			args := "{}"
			if data, err := json.Marshal(use.Input); err == nil && string(data) != "null" {
				args = string(data)
			}
			parts = append(parts, core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: use.ID, Name: use.Name, Arguments: args}})
		}
	}

	finish := "stop"
	if msg.StopReason != "" {
		finish = string(msg.StopReason)
	}
	return model.Response{
		ID:           msg.ID,
		Content:      core.Content{Role: "assistant", Parts: parts},
		FinishReason: finish,
		Usage: &model.TokenUsage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}
}
