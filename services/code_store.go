package services

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// CodeStore remembers short-lived one-time codes (payment references) and
// rejects a code seen again before it expires. Expiry is checked on read;
// there is no background sweep. Build one per process and Close it at
// shutdown.
type CodeStore struct {
	mu     sync.Mutex
	clock  clockwork.Clock
	ttl    time.Duration
	codes  map[string]time.Time
	closed bool
}

func NewCodeStore(clock clockwork.Clock, ttl time.Duration) *CodeStore {
	return &CodeStore{
		clock: clock,
		ttl:   ttl,
		codes: make(map[string]time.Time),
	}
}

// Remember records code. It returns false when code is already held and has
// not expired, or when the store is closed.
func (s *CodeStore) Remember(code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	now := s.clock.Now()
	if exp, ok := s.codes[code]; ok {
		if now.Before(exp) {
			return false
		}
		delete(s.codes, code)
	}
	s.codes[code] = now.Add(s.ttl)
	return true
}

// Seen reports whether code is held and not expired.
func (s *CodeStore) Seen(code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.codes[code]
	if !ok {
		return false
	}
	if !s.clock.Now().Before(exp) {
		delete(s.codes, code)
		return false
	}
	return true
}

// Forget drops code so it can be used again, e.g. after a failed join.
func (s *CodeStore) Forget(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.codes, code)
}

func (s *CodeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.codes)
}

// Close discards every code. Later Remember calls fail.
func (s *CodeStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.codes = make(map[string]time.Time)
}
