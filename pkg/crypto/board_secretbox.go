package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

var (
	// Global secret box instance
	globalBox *SecretBox
	once      sync.Once

	// Errors
	ErrInvalidKey        = errors.New("encryption key must be exactly 32 bytes")
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	ErrDecryptionFailed  = errors.New("decryption failed")
)

const (
	nonceSize = 16
	tagSize   = 16
)

// SecretBox handles AES-256-GCM encryption of OAuth tokens.
// The wire format is hex(nonce):hex(tag):hex(ciphertext) so stored
// secrets can be inspected and validated without decrypting.
type SecretBox struct {
	gcm cipher.AEAD
	mu  sync.RWMutex
}

// NewSecretBox creates a secret box with the given 32-byte key.
func NewSecretBox(key []byte) (*SecretBox, error) {
	if len(key) != 32 {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &SecretBox{gcm: gcm}, nil
}

// Init initializes the global secret box using the ENCRYPTION_KEY env var.
func Init() error {
	var initErr error
	once.Do(func() {
		key := os.Getenv("ENCRYPTION_KEY")
		if key == "" {
			initErr = errors.New("ENCRYPTION_KEY must be set")
			return
		}

		box, err := NewSecretBox([]byte(key))
		if err != nil {
			initErr = err
			return
		}
		globalBox = box
	})
	return initErr
}

// GetSecretBox returns the global secret box instance
func GetSecretBox() *SecretBox {
	return globalBox
}

// Encrypt seals plaintext and returns the nonce:tag:ciphertext envelope.
func (b *SecretBox) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	// Seal appends the auth tag to the ciphertext; split it back out
	// so the envelope carries it as its own segment.
	sealed := b.gcm.Seal(nil, nonce, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(ct), nil
}

// Decrypt opens a nonce:tag:ciphertext envelope.
func (b *SecretBox) Decrypt(envelope string) (string, error) {
	if envelope == "" {
		return "", nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	parts := strings.Split(envelope, ":")
	if len(parts) != 3 {
		return "", ErrInvalidCiphertext
	}

	nonce, err := hex.DecodeString(parts[0])
	if err != nil || len(nonce) != nonceSize {
		return "", ErrInvalidCiphertext
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != tagSize {
		return "", ErrInvalidCiphertext
	}
	ct, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", ErrInvalidCiphertext
	}

	plaintext, err := b.gcm.Open(nil, nonce, append(ct, tag...), nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	return string(plaintext), nil
}

// EncryptToken encrypts an OAuth token
func (b *SecretBox) EncryptToken(token string) (string, error) {
	return b.Encrypt(token)
}

// DecryptToken decrypts an OAuth token
func (b *SecretBox) DecryptToken(envelope string) (string, error) {
	return b.Decrypt(envelope)
}

// Global convenience functions

// Encrypt seals using the global secret box
func Encrypt(plaintext string) (string, error) {
	if globalBox == nil {
		if err := Init(); err != nil {
			return "", err
		}
	}
	return globalBox.Encrypt(plaintext)
}

// Decrypt opens using the global secret box
func Decrypt(envelope string) (string, error) {
	if globalBox == nil {
		if err := Init(); err != nil {
			return "", err
		}
	}
	return globalBox.Decrypt(envelope)
}

// EncryptToken encrypts an OAuth token using the global secret box
func EncryptToken(token string) (string, error) {
	return Encrypt(token)
}

// DecryptToken decrypts an OAuth token using the global secret box
func DecryptToken(envelope string) (string, error) {
	return Decrypt(envelope)
}

// IsEncrypted checks whether a string looks like a sealed envelope.
func IsEncrypted(s string) bool {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return false
	}
	if len(parts[0]) != nonceSize*2 || len(parts[1]) != tagSize*2 {
		return false
	}
	for _, p := range parts {
		if _, err := hex.DecodeString(p); err != nil {
			return false
		}
	}
	return true
}
