package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a bounded in-memory session store for development and
// tests. When the map is full, the stalest entry is evicted.
type MemoryStore struct {
	mu         sync.Mutex
	sessions   map[string]*Session
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

// NewMemoryStore builds a bounded in-memory store.
func NewMemoryStore(ttl time.Duration, maxEntries int) *MemoryStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &MemoryStore{
		sessions:   make(map[string]*Session),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// SetClock overrides the time source, for expiry tests.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) Get(ctx context.Context, userID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[userID]
	if !ok || s.now().Sub(session.UpdatedAt) > s.ttl {
		delete(s.sessions, userID)
		return NewIdle(userID), nil
	}
	copied := *session
	return &copied, nil
}

func (s *MemoryStore) Put(ctx context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session.UpdatedAt = s.now()
	if _, exists := s.sessions[session.UserID]; !exists && len(s.sessions) >= s.maxEntries {
		s.evictStalestLocked()
	}
	copied := *session
	s.sessions[session.UserID] = &copied
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
	return nil
}

func (s *MemoryStore) evictStalestLocked() {
	var stalestKey string
	var stalestAt time.Time
	for key, session := range s.sessions {
		if stalestKey == "" || session.UpdatedAt.Before(stalestAt) {
			stalestKey = key
			stalestAt = session.UpdatedAt
		}
	}
	if stalestKey != "" {
		delete(s.sessions, stalestKey)
	}
}
