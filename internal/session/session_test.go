package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ Store = (*MemoryStore)(nil)
var _ Store = (*RedisStore)(nil)

func newRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client)
}

func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryStore()) })
	t.Run("redis", func(t *testing.T) { fn(t, newRedisStore(t)) })
}

func TestSetPendingOverwrites(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.SetPending(ctx, 1, PendingAction{Kind: ActionGrantAccess, RoomID: 1, Role: "developer"}))
		require.NoError(t, s.SetPending(ctx, 1, PendingAction{Kind: ActionEditRoomName, RoomID: 2}))

		st, err := s.Get(ctx, 1)
		require.NoError(t, err)
		require.NotNil(t, st.Pending)
		assert.Equal(t, ActionEditRoomName, st.Pending.Kind)
		assert.Equal(t, int64(2), st.Pending.RoomID)
		assert.Empty(t, st.Pending.Role)
	})
}

func TestCancelOrder(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.SetActiveRoom(ctx, 5, 10))
		require.NoError(t, s.SetPending(ctx, 5, PendingAction{Kind: ActionCreateRoom}))

		res, err := s.Cancel(ctx, 5)
		require.NoError(t, err)
		assert.Equal(t, CancelPending, res)

		st, _ := s.Get(ctx, 5)
		assert.Nil(t, st.Pending)
		assert.Equal(t, int64(10), st.ActiveRoom)

		res, _ = s.Cancel(ctx, 5)
		assert.Equal(t, CancelRoom, res)

		res, _ = s.Cancel(ctx, 5)
		assert.Equal(t, CancelNothing, res)
	})
}

func TestPointersAreIndependent(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.SetActiveThread(ctx, 1, 99))
		require.NoError(t, s.SetPending(ctx, 1, PendingAction{Kind: ActionSetRole, Role: "admin"}))
		require.NoError(t, s.ClearPending(ctx, 1))

		st, _ := s.Get(ctx, 1)
		assert.Equal(t, int64(99), st.ActiveThread)

		require.NoError(t, s.SetActiveRoom(ctx, 1, 3))
		st, _ = s.Get(ctx, 1)
		assert.Equal(t, int64(3), st.ActiveRoom)
		assert.Zero(t, st.ActiveThread, "entering a room closes the inbox thread")
	})
}

func TestClearRoomDropsOnlyMatchingPointers(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.SetActiveRoom(ctx, 1, 7))
		require.NoError(t, s.SetActiveRoom(ctx, 2, 7))
		require.NoError(t, s.SetActiveRoom(ctx, 3, 8))
		require.NoError(t, s.SetActiveRoom(ctx, 2, 7))

		actors, err := s.ActorsInRoom(ctx, 7)
		require.NoError(t, err)
		assert.ElementsMatch(t, []int64{1, 2}, actors)

		cleared, err := s.ClearRoom(ctx, 7)
		require.NoError(t, err)
		assert.ElementsMatch(t, []int64{1, 2}, cleared)

		st, _ := s.Get(ctx, 3)
		assert.Equal(t, int64(8), st.ActiveRoom)
		actors, _ = s.ActorsInRoom(ctx, 7)
		assert.Empty(t, actors)
	})
}

func TestMovingRoomsUpdatesPresence(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.SetActiveRoom(ctx, 1, 7))
		require.NoError(t, s.SetActiveRoom(ctx, 1, 8))

		in7, _ := s.ActorsInRoom(ctx, 7)
		in8, _ := s.ActorsInRoom(ctx, 8)
		assert.Empty(t, in7)
		assert.Equal(t, []int64{1}, in8)
	})
}

func TestUpdateErrorDiscardsChange(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.SetActiveRoom(ctx, 1, 7))

		boom := errors.New("boom")
		_, err := s.Update(ctx, 1, func(st *State) error {
			st.ActiveRoom = 9
			return boom
		})
		assert.ErrorIs(t, err, boom)

		st, _ := s.Get(ctx, 1)
		assert.Equal(t, int64(7), st.ActiveRoom)
	})
}

func TestConcurrentUpdatesAreSerialized(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		const workers = 8

		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.Update(ctx, 42, func(st *State) error {
					st.ActiveThread++
					return nil
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		st, err := s.Get(ctx, 42)
		require.NoError(t, err)
		assert.Equal(t, int64(workers), st.ActiveThread)
	})
}
