package keylock

import "sync"

const DefaultStripes = 64

// Striped hands out one of a fixed set of RWMutexes per int64 key. Two keys may
// share a stripe, so callers must never hold two stripes at once.
type Striped struct {
	stripes []sync.RWMutex
}

func New(n int) *Striped {
	if n <= 0 {
		n = DefaultStripes
	}
	return &Striped{stripes: make([]sync.RWMutex, n)}
}

func (s *Striped) stripe(key int64) *sync.RWMutex {
	h := uint64(key) * 0x9E3779B97F4A7C15
	return &s.stripes[h%uint64(len(s.stripes))]
}

func (s *Striped) Lock(key int64) {
	s.stripe(key).Lock()
}

func (s *Striped) Unlock(key int64) {
	s.stripe(key).Unlock()
}

func (s *Striped) RLock(key int64) {
	s.stripe(key).RLock()
}

func (s *Striped) RUnlock(key int64) {
	s.stripe(key).RUnlock()
}

// With runs fn while holding the exclusive lock for key.
func (s *Striped) With(key int64, fn func() error) error {
	s.Lock(key)
	defer s.Unlock(key)
	return fn()
}
