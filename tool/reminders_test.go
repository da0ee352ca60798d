package tool

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/statemesh/core"
)

func TestUpdateReminder_OutOfRange(t *testing.T) {
	items := []string{"a", "b"}
	for _, idx := range []int{-1, 0, 3, 99} {
		next, res := UpdateReminder(items, idx, "x")
		assert.Equal(t, items, next)
		ue, ok := res.(UpdateError)
		require.True(t, ok, "index %d", idx)
		assert.Equal(t, 2, ue.Count)
		m := ue.Map()
		assert.Equal(t, "error", m["status"])
		assert.Equal(t, 2, m["count"])
		assert.Equal(t, ActionUpdateReminder, m["action"])
		assert.NotEmpty(t, m["message"])
	}
}

func TestDeleteReminder_OutOfRange(t *testing.T) {
	next, res := DeleteReminder(nil, 1)
	assert.Empty(t, next)
	de, ok := res.(DeleteError)
	require.True(t, ok)
	assert.Equal(t, 0, de.Count)
	assert.True(t, de.Failed())
}

func TestDeleteReminder_Shifts(t *testing.T) {
	items := []string{"a", "b", "c"}
	next, res := DeleteReminder(items, 2)
	assert.Equal(t, []string{"a", "c"}, next)
	assert.Equal(t, []string{"a", "b", "c"}, items, "input must not be modified")
	assert.Equal(t, Deleted{Index: 2, DeletedReminder: "b"}, res)
}

func TestResults_AlwaysCarryActionAndMessage(t *testing.T) {
	results := []Result{
		Added{Reminder: "x", Count: 1},
		Viewed{},
		Updated{Index: 1, OldText: "a", UpdatedText: "b"},
		UpdateError{Index: 5, Count: 1},
		Deleted{Index: 1, DeletedReminder: "a"},
		DeleteError{Index: 0, Count: 0},
		Renamed{OldName: "a", NewName: "b"},
	}
	for _, r := range results {
		m := r.Map()
		assert.Equal(t, r.Action(), m["action"])
		assert.Equal(t, r.Message(), m["message"])
		if r.Failed() {
			assert.Equal(t, "error", m["status"])
			assert.Contains(t, m, "count")
			assert.Contains(t, m, "index")
		}
	}
}

// Random add/update/delete sequences against a plain reference slice.
func TestReminders_ModelBased(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 200; round++ {
		var (
			items []string
			ref   []string
		)
		for step := 0; step < 30; step++ {
			text := string(rune('a' + rng.Intn(26)))
			idx := rng.Intn(len(ref)+3) - 1 // includes out-of-range values
			switch rng.Intn(3) {
			case 0:
				items, _ = AddReminder(items, text)
				ref = append(ref, text)
			case 1:
				var res Result
				items, res = UpdateReminder(items, idx, text)
				if idx >= 1 && idx <= len(ref) {
					ref[idx-1] = text
					assert.False(t, res.Failed())
				} else {
					assert.Equal(t, UpdateError{Index: idx, Count: len(ref)}, res)
				}
			case 2:
				var res Result
				items, res = DeleteReminder(items, idx)
				if idx >= 1 && idx <= len(ref) {
					ref = append(ref[:idx-1:idx-1], ref[idx:]...)
					assert.False(t, res.Failed())
				} else {
					assert.Equal(t, DeleteError{Index: idx, Count: len(ref)}, res)
				}
			}
			require.Equal(t, len(ref), len(items))
			for i := range ref {
				require.Equal(t, ref[i], items[i], "round %d step %d", round, step)
			}
		}
	}
}

func reminderTool(t *testing.T, name string, optFns ...func(o *ReminderOptions)) Tool {
	t.Helper()
	set, err := NewSet(NewReminderTools(optFns...)...)
	require.NoError(t, err)
	tl, ok := set[name]
	require.True(t, ok)
	return tl
}

func TestReminderTools_GatewaySemantics(t *testing.T) {
	turn := newTurn(core.State{KeyUserName: core.String("Ada")})

	add := reminderTool(t, ActionAddReminder)
	res, err := add.Call(core.NewToolContext(turn, "c1"), map[string]any{"reminder": "buy milk"})
	require.NoError(t, err)
	assert.Equal(t, Added{Reminder: "buy milk", Count: 1}, res)

	// Read-your-own-writes across callbacks of one turn.
	view := reminderTool(t, ActionViewReminders)
	res, err = view.Call(core.NewToolContext(turn, "c2"), map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, []string{"buy milk"}, res.(Viewed).Reminders)

	// Out-of-range never mutates pending state nor records a delta.
	del := reminderTool(t, ActionDeleteReminder)
	tc := core.NewToolContext(turn, "c3")
	res, err = del.Call(tc, map[string]any{"index": 2.0})
	require.NoError(t, err)
	assert.Equal(t, DeleteError{Index: 2, Count: 1}, res)
	assert.Empty(t, tc.Actions().StateDelta)
	assert.True(t, core.Equal(core.List{core.String("buy milk")}, turn.Gateway.Read(KeyReminders, nil)))

	rename := reminderTool(t, ActionUpdateUserName)
	res, err = rename.Call(core.NewToolContext(turn, "c4"), map[string]any{"name": "Grace"})
	require.NoError(t, err)
	assert.Equal(t, Renamed{OldName: "Ada", NewName: "Grace"}, res)

	// Committed snapshot untouched until commit.
	_, ok := turn.Session.GetState(KeyReminders)
	assert.False(t, ok)
}

func TestReminderTools_InvalidArguments(t *testing.T) {
	upd := reminderTool(t, ActionUpdateReminder)
	_, err := upd.Call(newToolCtx(nil), map[string]any{"index": 1.5, "updated_text": "x"})
	assert.Error(t, err)
	_, err = upd.Call(newToolCtx(nil), map[string]any{"index": 1})
	assert.Error(t, err)
}

func TestReminderTools_CustomKeyEndToEnd(t *testing.T) {
	withItems := func(o *ReminderOptions) { o.ListKey = "items" }
	turn := newTurn(core.State{"items": core.List{}})

	_, err := reminderTool(t, ActionAddReminder, withItems).Call(core.NewToolContext(turn, "c1"), map[string]any{"reminder": "buy milk"})
	require.NoError(t, err)

	res, err := reminderTool(t, ActionUpdateReminder, withItems).Call(core.NewToolContext(turn, "c2"), map[string]any{"index": 1, "updated_text": "buy oat milk"})
	require.NoError(t, err)
	m := ToMap(res)
	assert.Equal(t, "buy milk", m["old_text"])
	assert.Equal(t, "buy oat milk", m["updated_text"])

	res, err = reminderTool(t, ActionDeleteReminder, withItems).Call(core.NewToolContext(turn, "c3"), map[string]any{"index": 2})
	require.NoError(t, err)
	assert.Equal(t, 1, ToMap(res)["count"])

	assert.True(t, turn.Gateway.Pending().Equal(core.State{"items": core.List{core.String("buy oat milk")}}))
}

func TestReminderTools_ParallelAddsDoNotLoseWrites(t *testing.T) {
	turn := newTurn(nil)
	add := reminderTool(t, ActionAddReminder)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := add.Call(core.NewToolContext(turn, "c"), map[string]any{"reminder": "r"})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	assert.Len(t, turn.Gateway.Read(KeyReminders, core.List{}).(core.List), n)
}
