package flow

import (
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/kaptinlin/jsonrepair"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/statemesh/core"
	"github.com/hupe1980/statemesh/logging"
	"github.com/hupe1980/statemesh/tool"
)

// FunctionExecutor executes a batch of function calls requested by the model
// and emits one function response event per call. Implementations must:
//   - Respect the turn's cancellation
//   - Never panic (recover internally and report the panic as an error response)
//   - Apply ToolContext accumulated actions to emitted events
//   - Apply state changes and emit responses in the order of the incoming calls
type FunctionExecutor interface {
	Execute(tc *core.TurnContext, tools tool.Set, fnCalls []core.FunctionCall, emit func(core.Event) error) error
}

// FunctionExecutorConfig configures the default executor.
type FunctionExecutorConfig struct {
	MaxParallel    int  // bound for concurrent read-only calls; <1 => no explicit limit
	LogStartEvents bool // log a start line per function
}

// functionExecutor is the default implementation. Calls run in the order
// the model requested them. Consecutive calls to read-only tools form one
// group that runs concurrently, since none of them can observe another's
// writes; any other call runs alone.
type functionExecutor struct {
	cfg FunctionExecutorConfig
}

// NewFunctionExecutor constructs a new executor with the given config.
func NewFunctionExecutor(cfg FunctionExecutorConfig) FunctionExecutor {
	return &functionExecutor{cfg: cfg}
}

func (e *functionExecutor) Execute(
	tc *core.TurnContext,
	tools tool.Set,
	fnCalls []core.FunctionCall,
	emit func(core.Event) error,
) error {
	n := len(fnCalls)
	if n == 0 {
		return nil
	}

	results := make([]core.Event, n)
	batchStart := time.Now()
	groups := 0

	for start := 0; start < n; {
		if err := tc.Err(); err != nil {
			return err
		}
		end := start + 1
		if readOnly(tools, fnCalls[start].Name) {
			for end < n && readOnly(tools, fnCalls[end].Name) {
				end++
			}
		}
		e.runGroup(tc, tools, fnCalls[start:end], results[start:end])
		groups++
		start = end
	}

	if err := tc.Err(); err != nil {
		return err
	}

	for i, ev := range results {
		if ev.ID == "" {
			continue
		}
		if err := emit(ev); err != nil {
			tc.LogError("flow.function.emit.error", "function", fnCalls[i].Name, "error", err.Error())
			return err
		}
	}

	tc.LogDebug(
		"flow.functions.batch.complete",
		"agent", tc.Agent.Name,
		"count", n,
		"groups", groups,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)
	return nil
}

// runGroup executes calls, concurrently when there is more than one.
func (e *functionExecutor) runGroup(tc *core.TurnContext, tools tool.Set, calls []core.FunctionCall, out []core.Event) {
	if len(calls) == 1 {
		out[0] = e.executeOne(tc, tools, calls[0])
		return
	}

	var g errgroup.Group
	if e.cfg.MaxParallel > 0 {
		g.SetLimit(e.cfg.MaxParallel)
	}
	for i, fc := range calls {
		i, fc := i, fc
		g.Go(func() error {
			if tc.Err() != nil {
				return nil
			}
			out[i] = e.executeOne(tc, tools, fc)
			return nil
		})
	}
	_ = g.Wait()
}

func readOnly(tools tool.Set, name string) bool {
	t, ok := tools[name]
	return ok && tool.IsReadOnly(t)
}

func (e *functionExecutor) executeOne(tc *core.TurnContext, tools tool.Set, fc core.FunctionCall) core.Event {
	if fc.ID == "" {
		fc.ID = core.NewID()
	}
	toolCtx := core.NewToolContext(tc, fc.ID)
	if e.cfg.LogStartEvents {
		tc.LogInfo("flow.function.start", "agent", tc.Agent.Name, "function", fc.Name, "function_call_id", fc.ID)
	}

	start := time.Now()
	var (
		result any
		err    error
	)
	func() { // panic safety
		defer func() {
			if r := recover(); r != nil {
				err = panicError(r)
				tc.LogError("flow.function.panic", "agent", tc.Agent.Name, "function", fc.Name, "recover", r)
			}
		}()
		result, err = executeTool(tools, toolCtx, fc.Name, fc.Arguments)
	}()

	logToolCall(tc, fc.Name, time.Since(start), err)

	var payload map[string]any
	if err == nil {
		payload = tool.ToMap(result)
	}
	respEv := core.NewFunctionResponseEvent(tc.TurnID, tc.Agent.Name, fc.ID, fc.Name, payload, err)
	toolCtx.InternalApplyActions(&respEv)
	return respEv
}

func logToolCall(tc *core.TurnContext, name string, dur time.Duration, err error) {
	if ml, ok := tc.Logger().(*logging.MeshLogger); ok {
		ml.WithTurn(tc.Key.String(), tc.TurnID).LogToolCall(name, dur, err == nil, err)
		return
	}
	tc.LogInfo(
		"flow.function.executed",
		"agent", tc.Agent.Name,
		"function", name,
		"duration_ms", dur.Milliseconds(),
		"error", err != nil,
	)
}

// panicError converts a recovered panic value to an error.
func panicError(r any) error { return &panicErr{val: r, stack: debug.Stack()} }

type panicErr struct {
	val   any
	stack []byte
}

func (p *panicErr) Error() string { return fmt.Sprintf("panic recovered: %v", p.val) }

// executeTool centralizes tool lookup & execution.
func executeTool(tools tool.Set, toolCtx *core.ToolContext, toolName, args string) (any, error) {
	impl, ok := tools[toolName]
	if !ok {
		return nil, fmt.Errorf("tool %s not found", toolName)
	}

	argMap, err := decodeArguments(args)
	if err != nil {
		return nil, err
	}

	return impl.Call(toolCtx, argMap)
}

// decodeArguments parses the model's JSON argument payload. Malformed JSON
// (trailing commas, single quotes, truncated objects) is repaired once
// before giving up.
func decodeArguments(args string) (map[string]any, error) {
	argMap := map[string]any{}
	if args == "" {
		return argMap, nil
	}
	if err := json.Unmarshal([]byte(args), &argMap); err == nil {
		return argMap, nil
	}

	fixed, repairErr := jsonrepair.JSONRepair(args)
	if repairErr != nil {
		return nil, fmt.Errorf("failed to unmarshal args: %w", repairErr)
	}
	argMap = map[string]any{}
	if err := json.Unmarshal([]byte(fixed), &argMap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal repaired args: %w", err)
	}
	return argMap, nil
}
