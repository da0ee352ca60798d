package statemesh

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/statemesh/core"
	"github.com/hupe1980/statemesh/flow"
	"github.com/hupe1980/statemesh/model"
	"github.com/hupe1980/statemesh/runner"
	"github.com/hupe1980/statemesh/session"
	"github.com/hupe1980/statemesh/tool"
)

func newMesh(t *testing.T, llm model.Model, optFns ...func(o *Options)) *Mesh {
	t.Helper()
	loop, err := flow.NewToolLoop(llm, func(o *flow.ToolLoopOptions) {
		o.Tools = tool.NewReminderTools()
	})
	require.NoError(t, err)
	return New(loop, optFns...)
}

func TestMesh_ChatSeedsOnce(t *testing.T) {
	llm := model.NewScriptedModel(
		model.Call(tool.ActionAddReminder, `{"reminder":"water plants"}`),
		model.Text("Done."),
	)
	m := newMesh(t, llm, func(o *Options) {
		o.Instruction = runner.StaticInstruction("You help {user_name}.")
	})
	ctx := context.Background()

	first, err := m.Chat(ctx, ChatRequest{
		AppName:      "reminders",
		UserID:       "u1",
		InitialState: core.State{"user_name": core.String("Ada"), "reminders": core.List{}},
		Message:      "remind me to water plants",
	})
	require.NoError(t, err)
	assert.Equal(t, "Done.", first.Text())
	assert.Equal(t, "You help Ada.", llm.Requests()[0].Instructions)

	// A different initial state on reattachment is discarded.
	second, err := m.Chat(ctx, ChatRequest{
		AppName:      "reminders",
		UserID:       "u1",
		InitialState: core.State{"user_name": core.String("Bob"), "reminders": core.List{}},
		Message:      "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, first.Key, second.Key)
	assert.Equal(t, "Mock response to: hello", second.Text())

	st, err := m.State(ctx, first.Key)
	require.NoError(t, err)
	assert.Equal(t, core.String("Ada"), st["user_name"])
	assert.Equal(t, []string{"water plants"}, st["reminders"].(core.List).Strings())
}

func TestMesh_ChatRejectsExistingID(t *testing.T) {
	m := newMesh(t, model.NewScriptedModel(), func(o *Options) {
		o.DuplicatePolicy = session.RejectExisting
	})
	ctx := context.Background()

	_, err := m.Chat(ctx, ChatRequest{AppName: "a", UserID: "u", SessionID: "s1", Message: "hi"})
	require.NoError(t, err)

	_, err = m.Chat(ctx, ChatRequest{AppName: "a", UserID: "u", SessionID: "s1", Message: "again"})
	assert.ErrorIs(t, err, core.ErrAlreadyExists)
}

func TestMesh_ChatRequiresIdentity(t *testing.T) {
	m := newMesh(t, model.NewScriptedModel())
	_, err := m.Chat(context.Background(), ChatRequest{Message: "hi"})
	assert.Error(t, err)
}

// MockDispatcher records the rendered instruction of every turn.
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(tc *core.TurnContext) error {
	args := m.Called(tc.Instruction, tc.UserContent.Text())
	if args.Error(0) != nil {
		return args.Error(0)
	}
	tc.SetState("visits", core.Number(1))
	return tc.Emit(core.NewMessageEvent(tc.TurnID, tc.Agent.Name, "noted"))
}

func TestMesh_ChatWithCustomDispatcher(t *testing.T) {
	d := &MockDispatcher{}
	d.On("Dispatch", "Hello Ada", "hi").Return(nil).Once()

	m := New(d, func(o *Options) {
		o.AgentName = "greeter"
		o.Instruction = runner.StaticInstruction("Hello {user_name}")
	})

	res, err := m.Chat(context.Background(), ChatRequest{
		AppName:      "a",
		UserID:       "u",
		InitialState: core.State{"user_name": core.String("Ada")},
		Message:      "hi",
	})
	require.NoError(t, err)
	assert.Equal(t, "noted", res.Text())
	assert.Equal(t, core.Number(1), res.State["visits"])
	d.AssertExpectations(t)
}
