package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"licensegate/internal/config"
	apperrors "licensegate/internal/errors"
	"licensegate/internal/security"
)

// ErrCorrupt is returned when persisted state cannot be decrypted or decoded
var ErrCorrupt = errors.New("state store is corrupt")

// Store is an opaque key-value store. Values are JSON encoded and encrypted
// at rest by the persistent backends.
type Store interface {
	// Get decodes the value stored under key into v. It reports false when
	// the key is absent.
	Get(key string, v any) (bool, error)
	Set(key string, v any) error
	Delete(keys ...string) error
	Close() error
}

// Options selects and configures a backend
type Options struct {
	Backend     string
	Path        string
	Passphrase  string
	FailureMode string
	Encryption  *security.EncryptionConfig
	Logger      *slog.Logger
}

// Open creates the configured store and applies the persistence failure
// policy. In strict mode any open failure is returned wrapped in
// ErrPersistence. In degraded mode the store falls back to memory and keeps
// running when the backend misbehaves.
func Open(opts Options) (Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "storage"), slog.String("backend", opts.Backend))

	primary, err := openBackend(opts)
	if err != nil {
		if opts.FailureMode != config.FailureModeDegraded {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrPersistence, err)
		}
		logger.Warn("State store unavailable, license state will not survive restarts",
			slog.String("path", opts.Path),
			slog.String("error", err.Error()))
		return NewMemoryStore(), nil
	}

	logger.Debug("State store opened", slog.String("path", opts.Path))

	if opts.FailureMode == config.FailureModeDegraded {
		return newFallbackStore(primary, logger), nil
	}
	return primary, nil
}

func openBackend(opts Options) (Store, error) {
	if opts.Backend == config.StorageBackendMemory {
		return NewMemoryStore(), nil
	}

	sealer, err := security.NewSealer(opts.Passphrase, opts.Encryption)
	if err != nil {
		return nil, err
	}

	switch opts.Backend {
	case config.StorageBackendFile, "":
		return OpenFileStore(opts.Path, sealer)
	case config.StorageBackendSQLite:
		return OpenSQLiteStore(opts.Path, sealer)
	default:
		return nil, fmt.Errorf("unknown storage backend: %q", opts.Backend)
	}
}

// sealValue encodes and encrypts v
func sealValue(sealer *security.Sealer, v any) ([]byte, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode value: %w", err)
	}

	payload, err := sealer.Seal(plaintext)
	if err != nil {
		return nil, err
	}

	return json.Marshal(payload)
}

// openValue reverses sealValue
func openValue(sealer *security.Sealer, data []byte) ([]byte, error) {
	var payload security.EncryptedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	plaintext, err := sealer.Open(&payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return plaintext, nil
}
