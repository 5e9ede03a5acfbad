package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"licensegate/internal/config"
	"licensegate/internal/security"
)

// FileStore persists the whole key space as one encrypted JSON document
type FileStore struct {
	path   string
	sealer *security.Sealer

	mu     sync.RWMutex
	values map[string]json.RawMessage
}

// OpenFileStore loads path, treating a missing file as an empty store
func OpenFileStore(path string, sealer *security.Sealer) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("file store path is required")
	}

	s := &FileStore{
		path:   path,
		sealer: sealer,
		values: make(map[string]json.RawMessage),
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := config.EnsureParentDir(path); err != nil {
			return nil, err
		}
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	plaintext, err := openValue(sealer, data)
	if err != nil {
		return nil, fmt.Errorf("state file %s: %w", path, err)
	}

	if err := json.Unmarshal(plaintext, &s.values); err != nil {
		return nil, fmt.Errorf("state file %s: %w: %v", path, ErrCorrupt, err)
	}

	return s, nil
}

// Path returns the backing file location
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Get(key string, v any) (bool, error) {
	s.mu.RLock()
	raw, ok := s.values[key]
	s.mu.RUnlock()

	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("failed to decode %q: %w", key, err)
	}
	return true, nil
}

func (s *FileStore) Set(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %q: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	previous, existed := s.values[key]
	s.values[key] = raw

	if err := s.flushLocked(); err != nil {
		// keep memory consistent with disk
		if existed {
			s.values[key] = previous
		} else {
			delete(s.values, key)
		}
		return err
	}
	return nil
}

func (s *FileStore) Delete(keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := make(map[string]json.RawMessage)
	for _, key := range keys {
		if raw, ok := s.values[key]; ok {
			removed[key] = raw
			delete(s.values, key)
		}
	}
	if len(removed) == 0 {
		return nil
	}

	if err := s.flushLocked(); err != nil {
		for key, raw := range removed {
			s.values[key] = raw
		}
		return err
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

// flushLocked writes the document atomically. Callers hold s.mu.
func (s *FileStore) flushLocked() error {
	data, err := sealValue(s.sealer, s.values)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set state file mode: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close state file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}
