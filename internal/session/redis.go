package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"
)

const maxTxRetries = 64

var ErrContention = errors.New("session: too much contention on actor state")

// RedisStore shares session slots between bot instances. The state lives at
// session:{actor}; session:room:{room} tracks who has the room entered.
type RedisStore struct {
	slots
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	r := &RedisStore{client: client}
	r.slots = slots{update: r.Update}
	return r
}

func stateKey(actor int64) string {
	return "session:" + strconv.FormatInt(actor, 10)
}

func roomKey(roomID int64) string {
	return "session:room:" + strconv.FormatInt(roomID, 10)
}

func load(ctx context.Context, c redis.Cmdable, actor int64) (State, error) {
	raw, err := c.Get(ctx, stateKey(actor)).Bytes()
	if errors.Is(err, redis.Nil) {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("session: load %d: %w", actor, err)
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return State{}, fmt.Errorf("session: decode %d: %w", actor, err)
	}
	return st, nil
}

func (r *RedisStore) Get(ctx context.Context, actor int64) (State, error) {
	return load(ctx, r.client, actor)
}

func (r *RedisStore) Update(ctx context.Context, actor int64, fn func(*State) error) (State, error) {
	key := stateKey(actor)
	var result State

	txf := func(tx *redis.Tx) error {
		current, err := load(ctx, tx, actor)
		if err != nil {
			return err
		}
		next := clone(current)
		if err := fn(&next); err != nil {
			result = current
			return err
		}

		var data []byte
		if !next.Empty() {
			if data, err = json.Marshal(next); err != nil {
				return fmt.Errorf("session: encode %d: %w", actor, err)
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if data == nil {
				pipe.Del(ctx, key)
			} else {
				pipe.Set(ctx, key, data, 0)
			}
			if current.ActiveRoom != next.ActiveRoom {
				if current.ActiveRoom != 0 {
					pipe.SRem(ctx, roomKey(current.ActiveRoom), actor)
				}
				if next.ActiveRoom != 0 {
					pipe.SAdd(ctx, roomKey(next.ActiveRoom), actor)
				}
			}
			return nil
		})
		if err == nil {
			result = next
		}
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return result, err
	}
	return result, fmt.Errorf("%w: %d", ErrContention, actor)
}

func (r *RedisStore) ActorsInRoom(ctx context.Context, roomID int64) ([]int64, error) {
	members, err := r.client.SMembers(ctx, roomKey(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("session: room members %d: %w", roomID, err)
	}
	actors := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		actors = append(actors, id)
	}
	return actors, nil
}

func (r *RedisStore) ClearRoom(ctx context.Context, roomID int64) ([]int64, error) {
	actors, err := r.ActorsInRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	cleared, err := clearRoom(ctx, r.Update, actors, roomID)
	if err != nil {
		return cleared, err
	}
	// stale members whose state already moved on
	if err := r.client.Del(ctx, roomKey(roomID)).Err(); err != nil {
		return cleared, fmt.Errorf("session: drop room set %d: %w", roomID, err)
	}
	return cleared, nil
}
