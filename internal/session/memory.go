package session

import (
	"context"
	"sort"
	"sync"
)

const DefaultShards = 32

type shard struct {
	mu     sync.Mutex
	states map[int64]State
}

// MemoryStore shards actors across a fixed set of mutexes.
type MemoryStore struct {
	slots
	shards []*shard
}

func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithShards(DefaultShards)
}

func NewMemoryStoreWithShards(n int) *MemoryStore {
	if n <= 0 {
		n = DefaultShards
	}
	m := &MemoryStore{shards: make([]*shard, n)}
	for i := range m.shards {
		m.shards[i] = &shard{states: make(map[int64]State)}
	}
	m.slots = slots{update: m.Update}
	return m
}

func (m *MemoryStore) shardFor(actor int64) *shard {
	idx := uint64(actor) % uint64(len(m.shards))
	return m.shards[idx]
}

func (m *MemoryStore) Get(ctx context.Context, actor int64) (State, error) {
	sh := m.shardFor(actor)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return clone(sh.states[actor]), nil
}

func (m *MemoryStore) Update(ctx context.Context, actor int64, fn func(*State) error) (State, error) {
	sh := m.shardFor(actor)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	next := clone(sh.states[actor])
	if err := fn(&next); err != nil {
		return clone(sh.states[actor]), err
	}
	if next.Empty() {
		delete(sh.states, actor)
	} else {
		sh.states[actor] = next
	}
	return clone(next), nil
}

func (m *MemoryStore) ActorsInRoom(ctx context.Context, roomID int64) ([]int64, error) {
	actors := make([]int64, 0)
	for _, sh := range m.shards {
		sh.mu.Lock()
		for actor, st := range sh.states {
			if st.ActiveRoom == roomID {
				actors = append(actors, actor)
			}
		}
		sh.mu.Unlock()
	}
	sort.Slice(actors, func(i, j int) bool { return actors[i] < actors[j] })
	return actors, nil
}

func (m *MemoryStore) ClearRoom(ctx context.Context, roomID int64) ([]int64, error) {
	actors, err := m.ActorsInRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return clearRoom(ctx, m.Update, actors, roomID)
}

func clone(s State) State {
	if s.Pending != nil {
		p := *s.Pending
		s.Pending = &p
	}
	return s
}
