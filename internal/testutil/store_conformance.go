package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/statemesh/core"
)

// StoreFactory returns a fresh, empty store for one subtest.
type StoreFactory func(t *testing.T) core.SessionStore

// RunStoreConformance exercises the SessionStore contract against a backend.
func RunStoreConformance(t *testing.T, newStore StoreFactory) {
	t.Helper()
	ctx := context.Background()

	t.Run("CreateAndGet", func(t *testing.T) {
		store := newStore(t)
		sess := NewSessionBuilder("s1").State("user_name", "Ada").State("reminders", []any{"buy milk"}).Build()

		tok, err := store.Create(ctx, sess)
		require.NoError(t, err)
		assert.Equal(t, int64(1), tok.Version)
		assert.Equal(t, int64(1), sess.Version)
		assert.NotZero(t, sess.Seq)

		got, err := store.Get(ctx, sess.Key)
		require.NoError(t, err)
		assert.Equal(t, sess.Key, got.Key)
		assert.True(t, got.State.Equal(sess.State), "state mismatch: %v", got.State)
		assert.Equal(t, int64(1), got.Version)
		assert.True(t, got.Created.Equal(sess.Created))
	})

	t.Run("CreateDuplicate", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Create(ctx, NewSessionBuilder("dup").Build())
		require.NoError(t, err)
		_, err = store.Create(ctx, NewSessionBuilder("dup").Build())
		assert.ErrorIs(t, err, core.ErrAlreadyExists)
	})

	t.Run("GetUnknown", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Get(ctx, Key("missing"))
		assert.ErrorIs(t, err, core.ErrNotFound)
	})

	t.Run("PutReplacesStateAndAppendsEvents", func(t *testing.T) {
		store := newStore(t)
		sess := NewSessionBuilder("s1").State("a", 1).State("b", "keep").Build()
		_, err := store.Create(ctx, sess)
		require.NoError(t, err)

		cur, err := store.Get(ctx, sess.Key)
		require.NoError(t, err)
		cur.ApplyStateDelta(core.State{"a": core.Number(2), "c": core.List{core.String("x")}})
		cur.AppendEvent(NewEventBuilder().Turn("t1").UserText("hi").Build())
		cur.AppendEvent(NewEventBuilder().Turn("t1").FunctionCall("c1", "add_reminder", `{"reminder":"x"}`).Build())
		cur.AppendEvent(NewEventBuilder().Turn("t1").FunctionResponse("c1", "add_reminder", map[string]any{"action": "reminder_added"}, nil).
			StateDelta("c", core.List{core.String("x")}).Build())

		tok, err := store.Put(ctx, cur)
		require.NoError(t, err)
		assert.Equal(t, int64(2), tok.Version)
		assert.Equal(t, int64(2), cur.Version)

		got, err := store.Get(ctx, sess.Key)
		require.NoError(t, err)
		assert.True(t, got.State.Equal(core.State{
			"a": core.Number(2), "b": core.String("keep"), "c": core.List{core.String("x")},
		}), "state mismatch: %v", got.State)
		require.Len(t, got.Events, 3)
		for i, ev := range got.Events {
			assert.Equal(t, int64(i+1), ev.Position)
			assert.Equal(t, "t1", ev.TurnID)
		}
		calls := got.Events[1].GetFunctionCalls()
		require.Len(t, calls, 1)
		assert.Equal(t, "add_reminder", calls[0].Name)
		assert.True(t, core.Equal(core.List{core.String("x")}, got.Events[2].Actions.StateDelta["c"]))

		// A second Put only appends events newer than the stored log.
		got.AppendEvent(NewEventBuilder().Turn("t2").AssistantText("done").Build())
		_, err = store.Put(ctx, got)
		require.NoError(t, err)
		again, err := store.Get(ctx, sess.Key)
		require.NoError(t, err)
		require.Len(t, again.Events, 4)
		assert.Equal(t, "done", again.Events[3].Text())
	})

	t.Run("PutStaleVersion", func(t *testing.T) {
		store := newStore(t)
		sess := NewSessionBuilder("s1").Build()
		_, err := store.Create(ctx, sess)
		require.NoError(t, err)

		a, err := store.Get(ctx, sess.Key)
		require.NoError(t, err)
		b, err := store.Get(ctx, sess.Key)
		require.NoError(t, err)

		a.ApplyStateDelta(core.State{"k": core.String("a")})
		_, err = store.Put(ctx, a)
		require.NoError(t, err)

		b.ApplyStateDelta(core.State{"k": core.String("b")})
		_, err = store.Put(ctx, b)
		assert.ErrorIs(t, err, core.ErrConflict)

		got, err := store.Get(ctx, sess.Key)
		require.NoError(t, err)
		assert.Equal(t, core.String("a"), got.State["k"])
	})

	t.Run("PutUnknown", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Put(ctx, NewSessionBuilder("ghost").Build())
		assert.ErrorIs(t, err, core.ErrNotFound)
	})

	t.Run("ReturnedSessionsAreIndependent", func(t *testing.T) {
		store := newStore(t)
		sess := NewSessionBuilder("s1").State("reminders", []any{"a"}).Build()
		_, err := store.Create(ctx, sess)
		require.NoError(t, err)

		// Mutating the caller's copy after Create must not leak.
		sess.State["reminders"] = core.List{core.String("mutated")}

		got, err := store.Get(ctx, sess.Key)
		require.NoError(t, err)
		got.State["reminders"].(core.List)[0] = core.String("mutated")

		again, err := store.Get(ctx, sess.Key)
		require.NoError(t, err)
		assert.Equal(t, core.String("a"), again.State["reminders"].(core.List)[0])
	})

	t.Run("ReturnedEventPayloadsAreIndependent", func(t *testing.T) {
		store := newStore(t)
		sess := NewSessionBuilder("s1").
			Event(NewEventBuilder().Turn("t1").
				FunctionResponse("c1", "view_reminders", map[string]any{"reminders": []any{"a"}}, nil).
				Build()).
			Build()
		_, err := store.Create(ctx, sess)
		require.NoError(t, err)

		got, err := store.Get(ctx, sess.Key)
		require.NoError(t, err)
		resp := got.Events[0].GetFunctionResponses()[0].Response
		resp["action"] = "mutated"
		resp["reminders"].([]any)[0] = "mutated"

		again, err := store.Get(ctx, sess.Key)
		require.NoError(t, err)
		stored := again.Events[0].GetFunctionResponses()[0].Response
		assert.NotContains(t, stored, "action")
		assert.Equal(t, []any{"a"}, stored["reminders"])
	})

	t.Run("ListNewestFirstAndScoped", func(t *testing.T) {
		store := newStore(t)
		base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

		mk := func(id string, created time.Time) {
			s := NewSessionBuilder(id).Build()
			s.Created, s.Updated = created, created
			_, err := store.Create(ctx, s)
			require.NoError(t, err)
		}
		mk("old", base)
		mk("tie-1", base.Add(time.Hour))
		mk("tie-2", base.Add(time.Hour)) // same timestamp, created later
		other := NewSessionBuilder("other").For("app", "someone-else").Build()
		_, err := store.Create(ctx, other)
		require.NoError(t, err)

		list, err := store.List(ctx, "app", "user")
		require.NoError(t, err)
		ids := make([]string, len(list))
		for i, s := range list {
			ids[i] = s.Key.SessionID
		}
		assert.Equal(t, []string{"tie-2", "tie-1", "old"}, ids)

		empty, err := store.List(ctx, "app", "nobody")
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("Delete", func(t *testing.T) {
		store := newStore(t)
		sess := NewSessionBuilder("s1").Build()
		_, err := store.Create(ctx, sess)
		require.NoError(t, err)

		require.NoError(t, store.Delete(ctx, sess.Key))
		_, err = store.Get(ctx, sess.Key)
		assert.ErrorIs(t, err, core.ErrNotFound)
		assert.ErrorIs(t, store.Delete(ctx, sess.Key), core.ErrNotFound)
	})

	t.Run("ConcurrentSessionsIsolated", func(t *testing.T) {
		store := newStore(t)
		const n = 8
		for i := 0; i < n; i++ {
			_, err := store.Create(ctx, NewSessionBuilder(fmt.Sprintf("s%d", i)).State("n", 0).Build())
			require.NoError(t, err)
		}

		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				key := Key(fmt.Sprintf("s%d", i))
				s, err := store.Get(ctx, key)
				if err != nil {
					errs <- err
					return
				}
				s.ApplyStateDelta(core.State{"n": core.Number(i)})
				s.AppendEvent(NewEventBuilder().Turn(fmt.Sprintf("t%d", i)).AssistantText("ok").Build())
				if _, err := store.Put(ctx, s); err != nil {
					errs <- err
				}
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		for i := 0; i < n; i++ {
			s, err := store.Get(ctx, Key(fmt.Sprintf("s%d", i)))
			require.NoError(t, err)
			assert.Equal(t, core.Number(i), s.State["n"])
			assert.Len(t, s.Events, 1)
		}
	})

	t.Run("CancelledContext", func(t *testing.T) {
		store := newStore(t)
		sess := NewSessionBuilder("s1").State("k", "v").Build()
		_, err := store.Create(ctx, sess)
		require.NoError(t, err)

		cur, err := store.Get(ctx, sess.Key)
		require.NoError(t, err)
		cur.ApplyStateDelta(core.State{"k": core.String("changed")})

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err = store.Put(cctx, cur)
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.Canceled), "expected context.Canceled, got %v", err)

		got, err := store.Get(ctx, sess.Key)
		require.NoError(t, err)
		assert.Equal(t, core.String("v"), got.State["k"])
	})
}
