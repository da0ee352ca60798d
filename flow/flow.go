// Package flow implements the DISPATCH step of a turn on top of a language
// model: the model is asked for a response, requested function calls are
// executed against the turn's Gateway, their results are fed back and the
// cycle repeats until the model answers without calling tools.
//
// Flows never persist anything; every produced event is handed to the turn
// through core.TurnContext.Emit and committed by the runner.
package flow

import (
	"github.com/hupe1980/statemesh/core"
	"github.com/hupe1980/statemesh/model"
)

// RequestProcessor processes the request before sending it to the model.
type RequestProcessor interface {
	// Name returns the processor's identifier.
	Name() string
	// ProcessRequest modifies the model request before execution.
	ProcessRequest(tc *core.TurnContext, req *model.Request) error
}

// ResponseProcessor processes each response chunk received from the model.
type ResponseProcessor interface {
	// Name returns the processor's identifier.
	Name() string
	// ProcessResponse may inspect or rewrite a model response.
	ProcessResponse(tc *core.TurnContext, resp *model.Response) error
}
