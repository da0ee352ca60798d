package flow

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/statemesh/core"
	"github.com/hupe1980/statemesh/internal/testutil"
	"github.com/hupe1980/statemesh/logging"
)

type stubTool struct {
	name     string
	delay    time.Duration
	result   any
	err      error
	panicMsg any
	writes   map[string]core.Value
	readOnly bool
	calls    *callLog
}

// callLog records tool start order across goroutines.
type callLog struct {
	mu    sync.Mutex
	names []string
}

func (l *callLog) add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.names = append(l.names, name)
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.names...)
}

func (st *stubTool) Name() string               { return st.name }
func (st *stubTool) Description() string        { return "stub tool" }
func (st *stubTool) Parameters() map[string]any { return map[string]any{"type": "object"} }
func (st *stubTool) ReadOnly() bool             { return st.readOnly }
func (st *stubTool) Call(tc *core.ToolContext, _ map[string]any) (any, error) {
	if st.calls != nil {
		st.calls.add(st.name)
	}
	if st.delay > 0 {
		select {
		case <-time.After(st.delay):
		case <-tc.Context().Done():
			return nil, tc.Context().Err()
		}
	}
	if st.panicMsg != nil {
		panic(st.panicMsg)
	}
	for k, v := range st.writes {
		tc.SetState(k, v)
	}
	return st.result, st.err
}

func newTurn(ctx context.Context, sess *core.Session, text string) *core.TurnContext {
	if sess == nil {
		sess = testutil.NewSessionBuilder("sess").Build()
	}
	user := core.Content{Role: "user", Parts: []core.Part{core.TextPart{Text: text}}}
	return core.NewTurnContext(ctx, sess, "turn-1", core.AgentInfo{Name: "assistant"}, user, "You are a test assistant.", 0, logging.NoOpLogger{})
}
