package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/scrypt"
)

// PayloadVersion is the current sealed payload format
const PayloadVersion = 1

// ErrDecrypt is returned when a payload cannot be authenticated with the
// sealer's passphrase.
var ErrDecrypt = errors.New("decryption failed")

// EncryptionConfig defines key derivation and AEAD parameters
type EncryptionConfig struct {
	SCryptN      int // CPU/memory cost parameter, power of two
	SCryptR      int // Block size parameter
	SCryptP      int // Parallelization parameter
	SCryptKeyLen int // Key length in bytes (32 for AES-256)
	SaltSize     int
	NonceSize    int // 96-bit nonce for GCM
}

// EncryptedPayload is the at-rest representation of a sealed value
type EncryptedPayload struct {
	Version    uint8  `json:"version"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"` // includes the GCM tag
}

// DefaultEncryptionConfig returns the OWASP recommended scrypt parameters
func DefaultEncryptionConfig() *EncryptionConfig {
	return &EncryptionConfig{
		SCryptN:      32768,
		SCryptR:      8,
		SCryptP:      1,
		SCryptKeyLen: 32,
		SaltSize:     32,
		NonceSize:    12,
	}
}

// ValidateEncryptionConfig validates encryption configuration parameters
func ValidateEncryptionConfig(config *EncryptionConfig) error {
	if config == nil {
		return errors.New("encryption config cannot be nil")
	}

	if config.SCryptN <= 1 || config.SCryptN&(config.SCryptN-1) != 0 {
		return errors.New("SCryptN must be a power of two greater than 1")
	}

	if config.SCryptR < 1 {
		return errors.New("SCryptR must be at least 1")
	}

	if config.SCryptP < 1 {
		return errors.New("SCryptP must be at least 1")
	}

	if config.SCryptKeyLen != 32 {
		return errors.New("SCryptKeyLen must be 32 for AES-256")
	}

	if config.SaltSize < 16 {
		return errors.New("SaltSize must be at least 16 bytes")
	}

	if config.NonceSize != 12 {
		return errors.New("NonceSize must be 12 for AES-GCM")
	}

	return nil
}

// Sealer encrypts values with AES-256-GCM under a key derived from a
// passphrase. Derived keys are cached per salt, so only the first seal or
// open of a given salt pays the scrypt cost.
type Sealer struct {
	passphrase []byte
	config     *EncryptionConfig
	salt       []byte

	mu    sync.Mutex
	aeads map[string]cipher.AEAD
}

// NewSealer creates a sealer for passphrase. A nil config selects
// DefaultEncryptionConfig.
func NewSealer(passphrase string, config *EncryptionConfig) (*Sealer, error) {
	if passphrase == "" {
		return nil, errors.New("passphrase cannot be empty")
	}

	if config == nil {
		config = DefaultEncryptionConfig()
	}
	if err := ValidateEncryptionConfig(config); err != nil {
		return nil, err
	}

	salt := make([]byte, config.SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	return &Sealer{
		passphrase: []byte(passphrase),
		config:     config,
		salt:       salt,
		aeads:      make(map[string]cipher.AEAD),
	}, nil
}

// Seal encrypts plaintext with a fresh nonce
func (s *Sealer) Seal(plaintext []byte) (*EncryptedPayload, error) {
	aead, err := s.aead(s.salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, s.config.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return &EncryptedPayload{
		Version:    PayloadVersion,
		Salt:       s.salt,
		Nonce:      nonce,
		Ciphertext: aead.Seal(nil, nonce, plaintext, nil),
	}, nil
}

// Open authenticates and decrypts a payload
func (s *Sealer) Open(payload *EncryptedPayload) ([]byte, error) {
	if payload == nil {
		return nil, errors.New("payload cannot be nil")
	}

	if payload.Version != PayloadVersion {
		return nil, fmt.Errorf("unsupported payload version: %d", payload.Version)
	}

	if len(payload.Nonce) != s.config.NonceSize || len(payload.Salt) == 0 {
		return nil, fmt.Errorf("%w: malformed payload", ErrDecrypt)
	}

	aead, err := s.aead(payload.Salt)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, payload.Nonce, payload.Ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}

	return plaintext, nil
}

// aead returns the cached cipher for salt, deriving it on first use
func (s *Sealer) aead(salt []byte) (cipher.AEAD, error) {
	cacheKey := hex.EncodeToString(salt)

	s.mu.Lock()
	defer s.mu.Unlock()

	if aead, ok := s.aeads[cacheKey]; ok {
		return aead, nil
	}

	key, err := scrypt.Key(s.passphrase, salt, s.config.SCryptN, s.config.SCryptR, s.config.SCryptP, s.config.SCryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	s.aeads[cacheKey] = aead
	return aead, nil
}
