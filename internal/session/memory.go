package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"lprview/internal/domain"
)

type memoryEntry struct {
	state    *domain.ViewState
	lastSeen time.Time
}

// MemoryStore holds sessions in process memory. Entries idle for longer than
// the TTL are dropped by Cleanup.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	ttl     time.Duration
	now     func() time.Time
	log     *zap.Logger
}

func NewMemoryStore(ttl time.Duration, log *zap.Logger) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		ttl:     ttl,
		now:     time.Now,
		log:     log,
	}
}

func (s *MemoryStore) Get(_ context.Context, id string) (*domain.ViewState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok || s.expired(e) {
		delete(s.entries, id)
		return newState(), nil
	}

	e.lastSeen = s.now()
	return clone(e.state), nil
}

func (s *MemoryStore) Put(_ context.Context, id string, state *domain.ViewState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[id] = &memoryEntry{
		state:    clone(state),
		lastSeen: s.now(),
	}
	return nil
}

// Cleanup removes expired sessions and reports how many were dropped.
func (s *MemoryStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.entries {
		if s.expired(e) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// RunCleanup sweeps expired sessions every interval until ctx is done.
func (s *MemoryStore) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Cleanup(); n > 0 {
				s.log.Debug("Expired sessions removed", zap.Int("count", n))
			}
		}
	}
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) expired(e *memoryEntry) bool {
	return s.now().Sub(e.lastSeen) > s.ttl
}
