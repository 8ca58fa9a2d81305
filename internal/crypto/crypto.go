package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
)

// EncryptedPrefix is prepended to encrypted values to identify them
const EncryptedPrefix = "enc:v1:"

var (
	keyManager     *KeyManager
	keyManagerOnce sync.Once

	ErrNoEncryptionKey = errors.New("no encryption key configured")
	ErrDecryptFailed   = errors.New("decryption failed: invalid ciphertext")
)

// KeyManager handles encryption key derivation and AES-GCM sealing of
// secrets stored at rest (the API key in the settings table).
type KeyManager struct {
	key []byte
}

// NewKeyManager derives a 32-byte AES key from the given secret.
// An empty secret disables encryption: values pass through unchanged.
func NewKeyManager(secret string) *KeyManager {
	km := &KeyManager{}
	if secret != "" {
		hash := sha256.Sum256([]byte(secret))
		km.key = hash[:]
	}
	return km
}

// GetKeyManager returns the singleton key manager, initialized from
// the FPTV_ENCRYPTION_KEY environment variable.
func GetKeyManager() *KeyManager {
	keyManagerOnce.Do(func() {
		keyManager = NewKeyManager(os.Getenv("FPTV_ENCRYPTION_KEY"))
	})
	return keyManager
}

// HasKey returns true if an encryption key is configured
func (km *KeyManager) HasKey() bool {
	return km.key != nil
}

// Encrypt encrypts plaintext using AES-GCM and prepends EncryptedPrefix.
// Without a configured key the plaintext is returned unchanged.
func (km *KeyManager) Encrypt(plaintext string) (string, error) {
	if !km.HasKey() {
		return plaintext, nil
	}

	block, err := aes.NewCipher(km.key)
	if err != nil {
		return "", err
	}
	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aesGCM.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := aesGCM.Seal(nonce, nonce, []byte(plaintext), nil)
	return EncryptedPrefix + base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt decrypts a value produced by Encrypt. Values without the
// EncryptedPrefix are returned as-is so that plaintext values stored
// before encryption was configured keep working.
func (km *KeyManager) Decrypt(ciphertext string) (string, error) {
	if !strings.HasPrefix(ciphertext, EncryptedPrefix) || len(ciphertext) == len(EncryptedPrefix) {
		return ciphertext, nil
	}

	if !km.HasKey() {
		return "", ErrNoEncryptionKey
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext[len(EncryptedPrefix):])
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(km.key)
	if err != nil {
		return "", err
	}
	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonceSize := aesGCM.NonceSize()
	if len(data) < nonceSize {
		return "", ErrDecryptFailed
	}

	plaintext, err := aesGCM.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", ErrDecryptFailed
	}
	return string(plaintext), nil
}

// Convenience functions using the singleton key manager

// Encrypt encrypts plaintext using the global key manager
func Encrypt(plaintext string) (string, error) {
	return GetKeyManager().Encrypt(plaintext)
}

// Decrypt decrypts ciphertext using the global key manager
func Decrypt(ciphertext string) (string, error) {
	return GetKeyManager().Decrypt(ciphertext)
}

// IsEncrypted checks if a value appears to be encrypted
func IsEncrypted(value string) bool {
	return len(value) > len(EncryptedPrefix) && strings.HasPrefix(value, EncryptedPrefix)
}

// EncryptionEnabled returns true if encryption is enabled
func EncryptionEnabled() bool {
	return GetKeyManager().HasKey()
}
