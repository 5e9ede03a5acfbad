package security

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastConfig keeps scrypt cheap in tests
func fastConfig() *EncryptionConfig {
	cfg := DefaultEncryptionConfig()
	cfg.SCryptN = 1024
	return cfg
}

func TestSealer_RoundTrip(t *testing.T) {
	sealer, err := NewSealer("app-license-secure-key", fastConfig())
	require.NoError(t, err)

	plaintext := []byte(`{"licenseKey":"ABCD-1234"}`)

	payload, err := sealer.Seal(plaintext)
	require.NoError(t, err)
	assert.Equal(t, uint8(PayloadVersion), payload.Version)
	assert.Len(t, payload.Nonce, 12)
	assert.Len(t, payload.Salt, 32)
	assert.NotContains(t, string(payload.Ciphertext), "ABCD-1234")

	opened, err := sealer.Open(payload)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestSealer_FreshNoncePerSeal(t *testing.T) {
	sealer, err := NewSealer("key", fastConfig())
	require.NoError(t, err)

	first, err := sealer.Seal([]byte("same"))
	require.NoError(t, err)
	second, err := sealer.Seal([]byte("same"))
	require.NoError(t, err)

	assert.NotEqual(t, first.Nonce, second.Nonce)
	assert.NotEqual(t, first.Ciphertext, second.Ciphertext)
	assert.Equal(t, first.Salt, second.Salt)
}

func TestSealer_OpenAcrossInstances(t *testing.T) {
	writer, err := NewSealer("shared-key", fastConfig())
	require.NoError(t, err)
	reader, err := NewSealer("shared-key", fastConfig())
	require.NoError(t, err)

	payload, err := writer.Seal([]byte("state"))
	require.NoError(t, err)

	// survives a JSON round trip, as it does on disk
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	var decoded EncryptedPayload
	require.NoError(t, json.Unmarshal(data, &decoded))

	opened, err := reader.Open(&decoded)
	require.NoError(t, err)
	assert.Equal(t, "state", string(opened))
}

func TestSealer_OpenFailures(t *testing.T) {
	sealer, err := NewSealer("right-key", fastConfig())
	require.NoError(t, err)
	other, err := NewSealer("wrong-key", fastConfig())
	require.NoError(t, err)

	payload, err := sealer.Seal([]byte("secret"))
	require.NoError(t, err)

	t.Run("wrong passphrase", func(t *testing.T) {
		_, err := other.Open(payload)
		assert.ErrorIs(t, err, ErrDecrypt)
	})

	t.Run("tampered ciphertext", func(t *testing.T) {
		tampered := *payload
		tampered.Ciphertext = append([]byte(nil), payload.Ciphertext...)
		tampered.Ciphertext[0] ^= 0xFF
		_, err := sealer.Open(&tampered)
		assert.ErrorIs(t, err, ErrDecrypt)
	})

	t.Run("bad nonce", func(t *testing.T) {
		tampered := *payload
		tampered.Nonce = []byte{1, 2, 3}
		_, err := sealer.Open(&tampered)
		assert.ErrorIs(t, err, ErrDecrypt)
	})

	t.Run("unknown version", func(t *testing.T) {
		tampered := *payload
		tampered.Version = 9
		_, err := sealer.Open(&tampered)
		assert.Error(t, err)
	})

	t.Run("nil payload", func(t *testing.T) {
		_, err := sealer.Open(nil)
		assert.Error(t, err)
	})
}

func TestNewSealer_Validation(t *testing.T) {
	_, err := NewSealer("", nil)
	assert.Error(t, err)

	tests := []struct {
		name   string
		mutate func(*EncryptionConfig)
	}{
		{"N not power of two", func(c *EncryptionConfig) { c.SCryptN = 1000 }},
		{"N too small", func(c *EncryptionConfig) { c.SCryptN = 1 }},
		{"r zero", func(c *EncryptionConfig) { c.SCryptR = 0 }},
		{"p zero", func(c *EncryptionConfig) { c.SCryptP = 0 }},
		{"short key", func(c *EncryptionConfig) { c.SCryptKeyLen = 16 }},
		{"short salt", func(c *EncryptionConfig) { c.SaltSize = 8 }},
		{"bad nonce size", func(c *EncryptionConfig) { c.NonceSize = 16 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := fastConfig()
			tt.mutate(cfg)
			_, err := NewSealer("key", cfg)
			assert.Error(t, err)
		})
	}

	assert.Error(t, ValidateEncryptionConfig(nil))
	assert.NoError(t, ValidateEncryptionConfig(DefaultEncryptionConfig()))
}
