package flow

import (
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/statemesh/core"
	"github.com/hupe1980/statemesh/logging"
	"github.com/hupe1980/statemesh/model"
	"github.com/hupe1980/statemesh/tool"
)

// ErrNoModel is returned by NewToolLoop without a model.
var ErrNoModel = errors.New("flow: model is required")

// ToolLoopOptions configures a ToolLoop.
type ToolLoopOptions struct {
	// Name is the author recorded on model and tool events.
	Name string
	// Tools are the callbacks the model may invoke.
	Tools []tool.Tool
	// Stream requests partial chunks from the model.
	Stream bool
	// MaxHistory caps the number of contents sent to the model (0 = all).
	MaxHistory int
	// Executor runs function calls; defaults to NewFunctionExecutor.
	Executor FunctionExecutor
	// MaxParallel bounds how many read-only calls the default executor runs
	// at once.
	MaxParallel int
	// ResponseProcessors run on every model chunk.
	ResponseProcessors []ResponseProcessor
}

// ToolLoop is the model-backed core.Dispatcher: request -> model ->
// (function calls -> function responses -> model)* -> final answer.
type ToolLoop struct {
	name               string
	llm                model.Model
	tools              tool.Set
	stream             bool
	executor           FunctionExecutor
	requestProcessors  []RequestProcessor
	responseProcessors []ResponseProcessor
}

// NewToolLoop creates a ToolLoop over llm.
func NewToolLoop(llm model.Model, optFns ...func(o *ToolLoopOptions)) (*ToolLoop, error) {
	if llm == nil {
		return nil, ErrNoModel
	}
	opts := ToolLoopOptions{Name: "assistant"}
	for _, fn := range optFns {
		fn(&opts)
	}

	tools, err := tool.NewSet(opts.Tools...)
	if err != nil {
		return nil, err
	}
	executor := opts.Executor
	if executor == nil {
		executor = NewFunctionExecutor(FunctionExecutorConfig{MaxParallel: opts.MaxParallel})
	}

	return &ToolLoop{
		name:   opts.Name,
		llm:    llm,
		tools:  tools,
		stream: opts.Stream,
		requestProcessors: []RequestProcessor{
			NewInstructionsProcessor(),
			NewContentsProcessor(opts.MaxHistory),
			NewToolsProcessor(tools),
		},
		responseProcessors: opts.ResponseProcessors,
		executor:           executor,
	}, nil
}

// Name returns the author name used on emitted events.
func (l *ToolLoop) Name() string { return l.name }

// AddRequestProcessor appends a request processor; order of registration defines execution order.
func (l *ToolLoop) AddRequestProcessor(processor RequestProcessor) {
	l.requestProcessors = append(l.requestProcessors, processor)
}

// Dispatch implements core.Dispatcher.
func (l *ToolLoop) Dispatch(tc *core.TurnContext) error {
	for {
		if err := tc.Limiter.Increment(); err != nil {
			return err
		}

		ev, err := l.runOnce(tc)
		if err != nil {
			return err
		}

		fnCalls := ev.GetFunctionCalls()
		if len(fnCalls) == 0 {
			return nil
		}

		if err := l.executor.Execute(tc, l.tools, fnCalls, tc.Emit); err != nil {
			return err
		}
	}
}

// runOnce performs one model call and returns the final (non-partial) event
// it emitted.
func (l *ToolLoop) runOnce(tc *core.TurnContext) (core.Event, error) {
	req := model.Request{Stream: l.stream}
	for _, processor := range l.requestProcessors {
		if err := processor.ProcessRequest(tc, &req); err != nil {
			return core.Event{}, fmt.Errorf("request processor %s failed: %w", processor.Name(), err)
		}
	}

	start := time.Now()
	respCh, errCh := l.llm.Generate(tc.Context, req)

	var (
		final    *core.Event
		modelErr error
	)
	for respCh != nil || errCh != nil {
		select {
		case resp, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			for _, processor := range l.responseProcessors {
				if err := processor.ProcessResponse(tc, &resp); err != nil {
					return core.Event{}, fmt.Errorf("response processor %s failed: %w", processor.Name(), err)
				}
			}

			ev := l.responseEvent(tc, resp)
			if err := tc.Emit(ev); err != nil {
				return core.Event{}, err
			}
			if !ev.IsPartial() {
				final = &ev
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if modelErr == nil {
				modelErr = err
			}
		}
	}

	l.logModelCall(tc, time.Since(start), modelErr)
	if modelErr != nil {
		return core.Event{}, fmt.Errorf("model %s: %w", l.llm.Info().Name, modelErr)
	}
	if final == nil {
		return core.Event{}, fmt.Errorf("model %s returned no final response", l.llm.Info().Name)
	}
	return *final, nil
}

func (l *ToolLoop) responseEvent(tc *core.TurnContext, resp model.Response) core.Event {
	ev := core.NewEvent(tc.TurnID, l.name)
	content := core.Content{Role: resp.Content.Role, Parts: make([]core.Part, len(resp.Content.Parts))}
	if content.Role == "" {
		content.Role = "assistant"
	}
	for i, p := range resp.Content.Parts {
		// Responses are correlated by call id.
		if fc, ok := p.(core.FunctionCallPart); ok && fc.FunctionCall.ID == "" {
			fc.FunctionCall.ID = core.NewID()
			p = fc
		}
		content.Parts[i] = p
	}
	ev.Content = &content
	if resp.Partial {
		ev.Partial = core.BoolPtr(true)
		return ev
	}
	// A final answer without pending tool calls ends the turn.
	ev.TurnComplete = core.BoolPtr(len(ev.GetFunctionCalls()) == 0)
	return ev
}

func (l *ToolLoop) logModelCall(tc *core.TurnContext, dur time.Duration, err error) {
	info := l.llm.Info()
	if ml, ok := tc.Logger().(*logging.MeshLogger); ok {
		ml.WithTurn(tc.Key.String(), tc.TurnID).LogModelCall(info.Name, dur, err == nil, err)
		return
	}
	if err != nil {
		tc.LogError("model.call.failed", "model", info.Name, "provider", info.Provider, "duration_ms", dur.Milliseconds(), "error", err.Error())
		return
	}
	tc.LogDebug("model.call.completed", "model", info.Name, "provider", info.Provider, "duration_ms", dur.Milliseconds())
}
