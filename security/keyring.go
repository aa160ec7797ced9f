package security

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-webhooks/core"
)

// Keyring seals with the most recently activated key whose sealing window is
// open and opens values sealed by any registered key. Values without the envelope prefix are
// returned unchanged so rows written before encryption was enabled keep
// working.
type Keyring struct {
	mu   sync.RWMutex
	keys []*AppKey
	now  func() time.Time
}

func NewKeyring(primary *AppKey, others ...*AppKey) (*Keyring, error) {
	ring := &Keyring{now: time.Now}
	for _, key := range append([]*AppKey{primary}, others...) {
		if err := ring.Add(key); err != nil {
			return nil, err
		}
	}
	return ring, nil
}

// Add registers key after the existing ones. Key id and version pairs must be
// unique.
func (r *Keyring) Add(key *AppKey) error {
	if r == nil {
		return fmt.Errorf("security: keyring is nil")
	}
	if key == nil {
		return fmt.Errorf("security: key is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.keys {
		if existing.keyID == key.keyID && existing.version == key.version {
			return fmt.Errorf("security: duplicate key %s/%d", key.keyID, key.version)
		}
	}
	r.keys = append(r.keys, key)
	return nil
}

func (r *Keyring) SetClock(now func() time.Time) {
	if r == nil || now == nil {
		return
	}
	r.mu.Lock()
	r.now = now
	r.mu.Unlock()
}

func (r *Keyring) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	key, err := r.sealingKey()
	if err != nil {
		return nil, err
	}
	return key.Encrypt(ctx, plaintext)
}

func (r *Keyring) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("security: keyring is nil")
	}
	if !IsSealed(ciphertext) {
		return append([]byte(nil), ciphertext...), nil
	}
	env, err := decodeEnvelope(ciphertext)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, key := range r.keys {
		if key.keyID == env.KeyID && key.version == env.Version {
			return key.open(env)
		}
	}
	return nil, fmt.Errorf("security: no key registered for %s/%d", env.KeyID, env.Version)
}

func (r *Keyring) sealingKey() (*AppKey, error) {
	if r == nil {
		return nil, fmt.Errorf("security: keyring is nil")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	at := r.now()
	if key := selectSealingKey(r.keys, at); key != nil {
		return key, nil
	}
	return nil, fmt.Errorf("security: no key is valid for sealing at %s", at.UTC().Format(time.RFC3339))
}

var (
	_ core.SecretCipher = (*AppKey)(nil)
	_ core.SecretCipher = (*Keyring)(nil)
)
