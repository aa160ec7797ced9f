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
)

type Option func(*AppKey)

// AppKey seals values with AES-GCM under an application key. Keys that are
// not 16, 24 or 32 bytes long are stretched with SHA-256.
type AppKey struct {
	key     []byte
	keyID   string
	version int
	window  SealingWindow
	random  io.Reader
}

func WithKeyID(id string) Option {
	return func(k *AppKey) {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			k.keyID = trimmed
		}
	}
}

func WithVersion(version int) Option {
	return func(k *AppKey) {
		if version > 0 {
			k.version = version
		}
	}
}

// WithSealingWindow limits when the key seals new values.
func WithSealingWindow(window SealingWindow) Option {
	return func(k *AppKey) {
		k.window = window
	}
}

// WithRandom replaces the nonce source.
func WithRandom(source io.Reader) Option {
	return func(k *AppKey) {
		if source != nil {
			k.random = source
		}
	}
}

func NewAppKey(material []byte, opts ...Option) (*AppKey, error) {
	trimmed := bytes.TrimSpace(material)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("security: key material is required")
	}
	k := &AppKey{
		key:     normalizeKey(trimmed),
		keyID:   "app-key",
		version: 1,
		random:  rand.Reader,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(k)
		}
	}
	return k, nil
}

func NewAppKeyFromString(material string, opts ...Option) (*AppKey, error) {
	return NewAppKey([]byte(material), opts...)
}

func (k *AppKey) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	if k == nil {
		return nil, fmt.Errorf("security: app key is nil")
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("security: plaintext is required")
	}
	gcm, err := k.aead()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(k.random, nonce); err != nil {
		return nil, fmt.Errorf("security: nonce generation failed: %w", err)
	}
	sealed := gcm.Seal(nil, nonce, plaintext, k.additionalData())
	return encodeEnvelope(envelope{
		KeyID:      k.keyID,
		Version:    k.version,
		Algorithm:  algorithmAESGCM,
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(sealed),
	})
}

func (k *AppKey) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	if k == nil {
		return nil, fmt.Errorf("security: app key is nil")
	}
	if !IsSealed(ciphertext) {
		return append([]byte(nil), ciphertext...), nil
	}
	env, err := decodeEnvelope(ciphertext)
	if err != nil {
		return nil, err
	}
	return k.open(env)
}

func (k *AppKey) KeyID() string {
	if k == nil {
		return ""
	}
	return k.keyID
}

func (k *AppKey) Version() int {
	if k == nil {
		return 0
	}
	return k.version
}

func (k *AppKey) SealingWindow() SealingWindow {
	if k == nil {
		return SealingWindow{}
	}
	return k.window
}

func (k *AppKey) open(env envelope) ([]byte, error) {
	if env.Algorithm != "" && env.Algorithm != algorithmAESGCM {
		return nil, fmt.Errorf("security: unsupported algorithm %q", env.Algorithm)
	}
	if env.KeyID != k.keyID || env.Version != k.version {
		return nil, fmt.Errorf("security: key mismatch: got %s/%d want %s/%d", env.KeyID, env.Version, k.keyID, k.version)
	}
	nonce, err := decodeField("nonce", env.Nonce)
	if err != nil {
		return nil, err
	}
	payload, err := decodeField("ciphertext", env.Ciphertext)
	if err != nil {
		return nil, err
	}
	gcm, err := k.aead()
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("security: invalid nonce size %d", len(nonce))
	}
	plaintext, err := gcm.Open(nil, nonce, payload, k.additionalData())
	if err != nil {
		return nil, fmt.Errorf("security: decrypt payload: %w", err)
	}
	return plaintext, nil
}

func (k *AppKey) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(k.key)
	if err != nil {
		return nil, fmt.Errorf("security: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("security: create gcm: %w", err)
	}
	return gcm, nil
}

// additionalData binds the ciphertext to the key metadata in the envelope.
func (k *AppKey) additionalData() []byte {
	return []byte(fmt.Sprintf("%s:%d", k.keyID, k.version))
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
