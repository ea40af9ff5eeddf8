package typewriter

import (
	"context"
	"sync"
)

// FlagStore persists interrupt flags. Implementations: MemoryStore here,
// jetstream.FlagStore (KV bucket) and storage.FlagRepo (Postgres).
type FlagStore interface {
	Get(ctx context.Context, key string) (bool, error)
	Set(ctx context.Context, key string) error
	Delete(ctx context.Context, key string) error
}

// InterruptKey is the store key for one rendered message.
func InterruptKey(sessionID, messageID string) string {
	return "disableTyping:" + sessionID + ":" + messageID
}

// MemoryStore keeps flags for the lifetime of the process.
type MemoryStore struct {
	mu    sync.RWMutex
	flags map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{flags: make(map[string]struct{})}
}

func (s *MemoryStore) Get(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.flags[key]
	return ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags[key] = struct{}{}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.flags, key)
	return nil
}

// Len is the number of flags currently set.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.flags)
}
