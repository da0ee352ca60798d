package session

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/statemesh/core"
	"github.com/hupe1980/statemesh/internal/testutil"
)

var _ core.SessionStore = (*SQLiteStore)(nil)

func openTestSQLite(t *testing.T, path string) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_Conformance(t *testing.T) {
	testutil.RunStoreConformance(t, func(t *testing.T) core.SessionStore {
		return openTestSQLite(t, filepath.Join(t.TempDir(), "sessions.db"))
	})
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sessions.db")

	first, err := OpenSQLite(path)
	require.NoError(t, err)

	sess := testutil.NewSessionBuilder("durable").
		State("user_name", "Ada").
		State("profile", map[string]any{"langs": []any{"go", "sql"}, "age": 36, "admin": true}).
		Build()
	_, err = first.Create(ctx, sess)
	require.NoError(t, err)

	sess.ApplyStateDelta(core.State{"reminders": core.List{core.String("buy milk")}})
	sess.AppendEvent(testutil.NewEventBuilder().Turn("t1").UserText("remind me").Build())
	_, err = first.Put(ctx, sess)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := openTestSQLite(t, path)
	got, err := second.Get(ctx, sess.Key)
	require.NoError(t, err)
	assert.True(t, got.State.Equal(sess.StateSnapshot()), "state mismatch: %v", got.State)
	assert.Equal(t, int64(2), got.Version)
	require.Len(t, got.Events, 1)
	assert.Equal(t, "remind me", got.Events[0].Text())

	list, err := second.List(ctx, "app", "user")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].EventCount)
}

func TestSQLiteStore_MigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	openTestSQLite(t, path)
	store := openTestSQLite(t, path)

	var n int
	require.NoError(t, store.db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestSQLiteStore_DeleteCascadesEvents(t *testing.T) {
	ctx := context.Background()
	store := openTestSQLite(t, filepath.Join(t.TempDir(), "sessions.db"))

	sess := testutil.NewSessionBuilder("s1").
		Event(testutil.NewEventBuilder().UserText("hi").Build()).
		Build()
	_, err := store.Create(ctx, sess)
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, sess.Key))

	var n int
	require.NoError(t, store.db.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&n))
	assert.Zero(t, n)
}

func TestSQLiteStore_PutRollsBackAfterUpdate(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, store *SQLiteStore)
		event core.Event
	}{
		{
			name:  "unencodable event",
			setup: func(*testing.T, *SQLiteStore) {},
			event: testutil.NewEventBuilder().Turn("t2").
				FunctionResponse("c1", "add_reminder", map[string]any{"score": math.NaN()}, nil).
				Build(),
		},
		{
			name: "insert rejected",
			setup: func(t *testing.T, store *SQLiteStore) {
				_, err := store.db.Exec(`
					CREATE TRIGGER reject_events BEFORE INSERT ON events
					WHEN NEW.author = 'rejected'
					BEGIN SELECT RAISE(ABORT, 'rejected by trigger'); END`)
				require.NoError(t, err)
			},
			event: testutil.NewEventBuilder().Turn("t2").Author("rejected").AssistantText("never stored").Build(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := openTestSQLite(t, filepath.Join(t.TempDir(), "sessions.db"))

			sess := testutil.NewSessionBuilder("s1").State("user_name", "Ada").Build()
			_, err := store.Create(ctx, sess)
			require.NoError(t, err)
			sess.AppendEvent(testutil.NewEventBuilder().Turn("t1").UserText("hi").Build())
			_, err = store.Put(ctx, sess)
			require.NoError(t, err)

			before, err := store.Get(ctx, sess.Key)
			require.NoError(t, err)
			tt.setup(t, store)

			sess.ApplyStateDelta(core.State{"user_name": core.String("Grace")})
			sess.AppendEvent(testutil.NewEventBuilder().Turn("t2").UserText("rename me").Build())
			sess.AppendEvent(tt.event)
			_, err = store.Put(ctx, sess)
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrStoreUnavailable)
			assert.Equal(t, before.Version, sess.Version, "failed put must not bump the caller's version")

			after, err := store.Get(ctx, sess.Key)
			require.NoError(t, err)
			assert.True(t, after.State.Equal(before.State), "state changed: %v", after.State)
			assert.Equal(t, before.Version, after.Version)
			assert.Len(t, after.Events, len(before.Events))

			var n int
			require.NoError(t, store.db.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&n))
			assert.Equal(t, len(before.Events), n)
		})
	}
}
