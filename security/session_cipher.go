package security

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/goliatone/go-clientcore/core"
)

type Option func(*SessionCipher) error

// SessionCipher seals persisted sessions with AES-GCM under an app key.
// Retired keys stay usable for reading so a key change does not log users out.
type SessionCipher struct {
	keyID   string
	version int
	key     []byte
	retired map[string]retiredKey
}

type retiredKey struct {
	version int
	key     []byte
}

func WithKeyID(id string) Option {
	return func(c *SessionCipher) error {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			c.keyID = trimmed
		}
		return nil
	}
}

func WithVersion(version int) Option {
	return func(c *SessionCipher) error {
		if version > 0 {
			c.version = version
		}
		return nil
	}
}

// WithRetiredKey registers a decrypt-only key.
func WithRetiredKey(id string, version int, keyMaterial []byte) Option {
	return func(c *SessionCipher) error {
		trimmed := strings.TrimSpace(id)
		material := bytes.TrimSpace(keyMaterial)
		if trimmed == "" || len(material) == 0 {
			return fmt.Errorf("security: retired key requires id and material")
		}
		c.retired[trimmed] = retiredKey{version: version, key: normalizeKey(material)}
		return nil
	}
}

func NewSessionCipher(keyMaterial []byte, opts ...Option) (*SessionCipher, error) {
	key := bytes.TrimSpace(keyMaterial)
	if len(key) == 0 {
		return nil, fmt.Errorf("security: key material is required")
	}
	sessionCipher := &SessionCipher{
		keyID:   "app-key",
		version: 1,
		key:     normalizeKey(key),
		retired: map[string]retiredKey{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(sessionCipher); err != nil {
			return nil, err
		}
	}
	return sessionCipher, nil
}

func NewSessionCipherFromString(key string, opts ...Option) (*SessionCipher, error) {
	return NewSessionCipher([]byte(key), opts...)
}

func (c *SessionCipher) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("security: session cipher is nil")
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("security: plaintext is required")
	}
	gcm, err := newGCM(c.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("security: nonce generation failed: %w", err)
	}
	sealed := gcm.Seal(nil, nonce, plaintext, []byte(c.keyID))
	return encodeEnvelope(envelope{
		KeyID:      c.keyID,
		Version:    c.version,
		Algorithm:  envelopeAlgorithm,
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(sealed),
	})
}

func (c *SessionCipher) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("security: session cipher is nil")
	}
	parsed, err := decodeEnvelope(ciphertext)
	if err != nil {
		return nil, err
	}
	key, err := c.keyFor(parsed)
	if err != nil {
		return nil, err
	}
	nonce, err := decodePayload(parsed.Nonce, "nonce")
	if err != nil {
		return nil, err
	}
	sealed, err := decodePayload(parsed.Ciphertext, "ciphertext payload")
	if err != nil {
		return nil, err
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("security: invalid nonce length %d", len(nonce))
	}
	plaintext, err := gcm.Open(nil, nonce, sealed, []byte(parsed.KeyID))
	if err != nil {
		return nil, fmt.Errorf("security: decrypt payload: %w", err)
	}
	return plaintext, nil
}

func (c *SessionCipher) KeyID() string {
	if c == nil {
		return ""
	}
	return c.keyID
}

func (c *SessionCipher) Version() int {
	if c == nil {
		return 0
	}
	return c.version
}

func (c *SessionCipher) keyFor(env envelope) ([]byte, error) {
	if env.KeyID == "" || env.KeyID == c.keyID {
		if env.Version > 0 && env.Version != c.version {
			return nil, fmt.Errorf("security: key version mismatch: got %d want %d", env.Version, c.version)
		}
		return c.key, nil
	}
	retired, ok := c.retired[env.KeyID]
	if !ok {
		return nil, fmt.Errorf("security: unknown key id %q", env.KeyID)
	}
	if retired.version > 0 && env.Version > 0 && env.Version != retired.version {
		return nil, fmt.Errorf("security: key version mismatch for %q: got %d want %d", env.KeyID, env.Version, retired.version)
	}
	return retired.key, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("security: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("security: create gcm: %w", err)
	}
	return gcm, nil
}

func normalizeKey(value []byte) []byte {
	if len(value) == 16 || len(value) == 24 || len(value) == 32 {
		key := make([]byte, len(value))
		copy(key, value)
		return key
	}
	sum := sha256.Sum256(value)
	return sum[:]
}

var _ core.SecretProvider = (*SessionCipher)(nil)
