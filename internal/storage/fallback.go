package storage

import (
	"log/slog"
	"sync"
)

// fallbackStore implements the degraded failure mode. Writes always land in
// memory and are mirrored to the primary store on a best effort basis.
type fallbackStore struct {
	primary Store
	memory  *MemoryStore
	logger  *slog.Logger

	mu      sync.Mutex
	deleted map[string]bool
}

func newFallbackStore(primary Store, logger *slog.Logger) *fallbackStore {
	return &fallbackStore{
		primary: primary,
		memory:  NewMemoryStore(),
		logger:  logger,
		deleted: make(map[string]bool),
	}
}

func (s *fallbackStore) Get(key string, v any) (bool, error) {
	s.mu.Lock()
	tombstoned := s.deleted[key]
	s.mu.Unlock()
	if tombstoned {
		return false, nil
	}

	if found, err := s.memory.Get(key, v); found || err != nil {
		return found, err
	}

	found, err := s.primary.Get(key, v)
	if err != nil {
		s.logger.Warn("Ignoring unreadable persisted value",
			slog.String("key", key),
			slog.String("error", err.Error()))
		return false, nil
	}
	return found, nil
}

func (s *fallbackStore) Set(key string, v any) error {
	if err := s.memory.Set(key, v); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.deleted, key)
	s.mu.Unlock()

	if err := s.primary.Set(key, v); err != nil {
		s.logger.Warn("Failed to persist value, keeping it in memory only",
			slog.String("key", key),
			slog.String("error", err.Error()))
	}
	return nil
}

func (s *fallbackStore) Delete(keys ...string) error {
	s.memory.Delete(keys...)

	s.mu.Lock()
	for _, key := range keys {
		s.deleted[key] = true
	}
	s.mu.Unlock()

	if err := s.primary.Delete(keys...); err != nil {
		s.logger.Warn("Failed to delete persisted values",
			slog.Any("keys", keys),
			slog.String("error", err.Error()))
	}
	return nil
}

func (s *fallbackStore) Close() error {
	return s.primary.Close()
}
