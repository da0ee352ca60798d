package flow

import (
	"sort"

	"github.com/hupe1980/statemesh/core"
	"github.com/hupe1980/statemesh/model"
	"github.com/hupe1980/statemesh/tool"
)

// InstructionsProcessor copies the turn's rendered instruction into the request.
type InstructionsProcessor struct{}

// NewInstructionsProcessor creates a new instructions processor.
func NewInstructionsProcessor() *InstructionsProcessor { return &InstructionsProcessor{} }

// Name returns the processor's identifier.
func (p *InstructionsProcessor) Name() string { return "instructions" }

// ProcessRequest sets the system instruction. Rendering already happened in
// the executor's RENDER phase, so the text is used verbatim.
func (p *InstructionsProcessor) ProcessRequest(tc *core.TurnContext, req *model.Request) error {
	req.Instructions = tc.Instruction
	tc.LogDebug("flow.instruction.resolved", "agent", tc.Agent.Name, "length", len(tc.Instruction))
	return nil
}

// ContentsProcessor fills the request with conversation history: committed
// events, the current user message and everything emitted so far this turn.
type ContentsProcessor struct {
	maxHistory int
}

// NewContentsProcessor creates a new contents processor. maxHistory <= 0 keeps
// the complete history.
func NewContentsProcessor(maxHistory int) *ContentsProcessor {
	return &ContentsProcessor{maxHistory: maxHistory}
}

// Name returns the processor's identifier.
func (p *ContentsProcessor) Name() string { return "contents" }

// ProcessRequest adds conversation contents to the request.
func (p *ContentsProcessor) ProcessRequest(tc *core.TurnContext, req *model.Request) error {
	var contents []core.Content
	if tc.Session != nil {
		for _, ev := range tc.Session.GetConversationHistory() {
			if len(ev.Content.Parts) > 0 {
				contents = append(contents, *ev.Content)
			}
		}
	}
	if len(tc.UserContent.Parts) > 0 {
		contents = append(contents, tc.UserContent)
	}
	for _, ev := range tc.Events() {
		if ev.Content == nil || ev.IsPartial() || len(ev.Content.Parts) == 0 {
			continue
		}
		contents = append(contents, *ev.Content)
	}

	if p.maxHistory > 0 && len(contents) > p.maxHistory {
		contents = trimHistory(contents, p.maxHistory)
	}
	req.Contents = contents
	return nil
}

// trimHistory keeps the newest max contents without starting on an orphaned
// tool response, which providers reject.
func trimHistory(contents []core.Content, max int) []core.Content {
	start := len(contents) - max
	for start < len(contents) && contents[start].Role == "tool" {
		start++
	}
	return contents[start:]
}

// ToolsProcessor declares the available tools to the model.
type ToolsProcessor struct {
	tools tool.Set
}

// NewToolsProcessor creates a processor advertising tools.
func NewToolsProcessor(tools tool.Set) *ToolsProcessor { return &ToolsProcessor{tools: tools} }

// Name returns the processor's identifier.
func (p *ToolsProcessor) Name() string { return "tools" }

// ProcessRequest adds tool definitions sorted by name.
func (p *ToolsProcessor) ProcessRequest(_ *core.TurnContext, req *model.Request) error {
	if len(p.tools) == 0 {
		return nil
	}
	defs := make([]model.ToolDefinition, 0, len(p.tools))
	for _, t := range p.tools {
		defs = append(defs, model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Function.Name < defs[j].Function.Name })
	req.Tools = defs
	return nil
}
