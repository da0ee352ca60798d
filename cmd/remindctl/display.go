package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/hupe1980/statemesh/core"
	"github.com/hupe1980/statemesh/runner"
	"github.com/hupe1980/statemesh/tool"
)

var (
	bold   = color.New(color.Bold).SprintFunc()
	cyan   = color.New(color.FgCyan, color.Bold).SprintFunc()
	green  = color.New(color.FgBlack, color.BgGreen, color.Bold).SprintFunc()
	banner = color.New(color.FgWhite, color.BgBlue, color.Bold).SprintFunc()
	alert  = color.New(color.FgWhite, color.BgRed, color.Bold).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
)

// printState renders the reminders view of a state bag.
func printState(w io.Writer, label string, st core.State) {
	fmt.Fprintf(w, "\n%s %s %s\n", strings.Repeat("-", 10), label, strings.Repeat("-", 10))

	name := "Unknown"
	if v, ok := st[tool.KeyUserName].(core.String); ok && v != "" {
		name = string(v)
	}
	fmt.Fprintf(w, "👤 User: %s\n", name)

	reminders, _ := st[tool.KeyReminders].(core.List)
	if len(reminders) == 0 {
		fmt.Fprintln(w, "📝 Reminders: None")
	} else {
		fmt.Fprintln(w, "📝 Reminders:")
		for i, r := range reminders.Strings() {
			fmt.Fprintf(w, "  %d. %s\n", i+1, r)
		}
	}
	fmt.Fprintln(w, strings.Repeat("-", 22+len(label)))
}

// printEvent writes the debug view of one event's parts.
func printEvent(w io.Writer, ev core.Event) {
	fmt.Fprintf(w, "Event ID: %s, Author: %s\n", ev.ID, ev.Author)
	if ev.Content == nil {
		return
	}
	for _, p := range ev.Content.Parts {
		switch part := p.(type) {
		case core.ExecutableCodePart:
			fmt.Fprintf(w, "  Debug: Agent generated code:\n```%s\n%s\n```\n", part.Language, part.Code)
		case core.CodeExecutionResultPart:
			fmt.Fprintf(w, "  Debug: Execution result: %s - Output:\n%s\n", part.Outcome, part.Output)
		case core.FunctionCallPart:
			fmt.Fprintf(w, "  Tool call: %s(%s)\n", part.FunctionCall.Name, part.FunctionCall.Arguments)
		case core.FunctionResponsePart:
			fr := part.FunctionResponse
			if fr.Error != "" {
				fmt.Fprintf(w, "  Tool response: %s\n", red(fr.Error))
				continue
			}
			fmt.Fprintf(w, "  Tool response: %v\n", fr.Response)
		case core.TextPart:
			if text := strings.TrimSpace(part.Text); text != "" {
				fmt.Fprintf(w, "  Text: '%s'\n", text)
			}
		}
	}
}

// printResult writes the final response banner of a turn.
func printResult(w io.Writer, res *runner.TurnResult) {
	switch {
	case res == nil:
		return
	case res.NoResponse:
		fmt.Fprintf(w, "\n%s\n\n", alert("==> No response from the agent"))
	case res.NoFinalContent:
		fmt.Fprintf(w, "\n%s\n\n", alert("==> Final agent response: [no text content in final event]"))
	default:
		fmt.Fprintf(w, "\n%s\n", banner("╔══ AGENT RESPONSE ═════════════════════════════════════════"))
		fmt.Fprintln(w, cyan(strings.TrimSpace(res.Text())))
		fmt.Fprintf(w, "%s\n\n", banner("╚═══════════════════════════════════════════════════════════"))
	}
}
