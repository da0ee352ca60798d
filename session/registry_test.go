package session

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
	"github.com/hupe1980/statemesh/internal/testutil"
)

func seq() func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("gen-%d", n)
	}
}

func TestRegistry_FindOrCreate_SeedOnce(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(NewInMemoryStore(), func(o *RegistryOptions) { o.NewID = seq() })

	s1 := core.State{"user_name": core.String("Ada"), "reminders": core.List{}}
	sess, created, err := reg.FindOrCreate(ctx, FindOrCreateRequest{AppName: "A", UserID: "B", InitialState: s1})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "gen-1", sess.ID())
	assert.True(t, sess.State.Equal(s1))

	// Evolve the committed state.
	sess.ApplyStateDelta(core.State{"reminders": core.List{core.String("buy milk")}})
	_, err = reg.Store().Put(ctx, sess)
	require.NoError(t, err)

	s2 := core.State{"user_name": core.String("Stale"), "reminders": core.List{}}
	again, created, err := reg.FindOrCreate(ctx, FindOrCreateRequest{AppName: "A", UserID: "B", InitialState: s2})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, sess.Key, again.Key)
	assert.Equal(t, core.String("Ada"), again.State["user_name"])
	assert.True(t, core.Equal(core.List{core.String("buy milk")}, again.State["reminders"]))
}

func TestRegistry_FindOrCreate_NoInitialState(t *testing.T) {
	reg := NewRegistry(NewInMemoryStore())
	sess, created, err := reg.FindOrCreate(context.Background(), FindOrCreateRequest{AppName: "A", UserID: "B"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, sess.ID())
	assert.Empty(t, sess.State)
}

func TestRegistry_FindOrCreate_AttachesNewest(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(NewInMemoryStore(), func(o *RegistryOptions) { o.NewID = seq() })

	first, err := reg.Create(ctx, "A", "B", nil)
	require.NoError(t, err)
	second, err := reg.Create(ctx, "A", "B", nil)
	require.NoError(t, err)
	// Timestamps may collide at clock resolution; the store sequence breaks the tie.
	require.NotEqual(t, first.ID(), second.ID())

	sess, created, err := reg.FindOrCreate(ctx, FindOrCreateRequest{AppName: "A", UserID: "B"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, second.ID(), sess.ID())
}

func TestRegistry_FindOrCreate_ExplicitID(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(NewInMemoryStore())

	req := FindOrCreateRequest{AppName: "A", UserID: "B", SessionID: "chosen", InitialState: core.State{"n": core.Number(1)}}
	sess, created, err := reg.FindOrCreate(ctx, req)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "chosen", sess.ID())

	req.InitialState = core.State{"n": core.Number(2)}
	sess, created, err = reg.FindOrCreate(ctx, req)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, core.Number(1), sess.State["n"])
}

func TestRegistry_FindOrCreate_RejectExisting(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(NewInMemoryStore(), func(o *RegistryOptions) { o.DuplicatePolicy = RejectExisting })

	req := FindOrCreateRequest{AppName: "A", UserID: "B", SessionID: "chosen"}
	_, _, err := reg.FindOrCreate(ctx, req)
	require.NoError(t, err)
	_, _, err = reg.FindOrCreate(ctx, req)
	assert.ErrorIs(t, err, core.ErrAlreadyExists)
}

func TestRegistry_FindOrCreate_ConcurrentExplicitAttach(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(NewInMemoryStore())

	const n = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, c, err := reg.FindOrCreate(ctx, FindOrCreateRequest{AppName: "A", UserID: "B", SessionID: "race"})
			assert.NoError(t, err)
			if c {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, created)
}

// slowListStore widens the gap between listing and creating.
type slowListStore struct {
	*InMemoryStore
	delay time.Duration
}

func (s *slowListStore) List(ctx context.Context, appName, userID string) ([]core.SessionSummary, error) {
	time.Sleep(s.delay)
	return s.InMemoryStore.List(ctx, appName, userID)
}

func TestRegistry_FindOrCreate_ConcurrentFirstContact(t *testing.T) {
	ctx := context.Background()
	store := &slowListStore{InMemoryStore: NewInMemoryStore(), delay: 5 * time.Millisecond}
	reg := NewRegistry(store)

	const n = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		ids     = map[string]bool{}
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess, c, err := reg.FindOrCreate(ctx, FindOrCreateRequest{
				AppName:      "T",
				UserID:       "U",
				InitialState: core.State{"seed": core.Bool(true)},
			})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			ids[sess.ID()] = true
			if c {
				created++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Len(t, ids, 1)

	list, err := store.List(ctx, "T", "U")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRegistry_FindOrCreate_ContextCancelledWhileWaiting(t *testing.T) {
	store := &slowListStore{InMemoryStore: NewInMemoryStore(), delay: 50 * time.Millisecond}
	reg := NewRegistry(store)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _, _ = reg.FindOrCreate(context.Background(), FindOrCreateRequest{AppName: "T", UserID: "U"})
	}()
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, _, err := reg.FindOrCreate(ctx, FindOrCreateRequest{AppName: "T", UserID: "U"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	<-done
}

func TestRegistry_ListErrorsPropagate(t *testing.T) {
	store := testutil.NewFailingStore(NewInMemoryStore())
	store.FailList(core.StoreError("list", errors.New("offline")))
	reg := NewRegistry(store)

	_, _, err := reg.FindOrCreate(context.Background(), FindOrCreateRequest{AppName: "A", UserID: "B"})
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)
}

func TestRegistry_Delete(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(NewInMemoryStore())
	sess, err := reg.Create(ctx, "A", "B", nil)
	require.NoError(t, err)

	require.NoError(t, reg.Delete(ctx, sess.Key))
	list, err := reg.List(ctx, "A", "B")
	require.NoError(t, err)
	assert.Empty(t, list)

	_, _, err = reg.FindOrCreate(ctx, FindOrCreateRequest{AppName: "A"})
	assert.Error(t, err)
}
