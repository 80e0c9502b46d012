package cryptox

import (
	"crypto/sha256"
	"fmt"
	"io"
	"sort"

	"github.com/dmitrijs2005/vaultbox/internal/common"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// Keyring maps key identifiers to derived AES-256 keys. Every stored file
// records the identifier it was encrypted under, so new uploads can move to a
// fresh key while older records keep decrypting with theirs.
type Keyring struct {
	keys   map[string][]byte
	active string
}

// NewKeyring derives one key per secret with HKDF-SHA256 (the key id is the
// HKDF info, so two ids sharing a secret still get distinct keys). active
// selects the key used for new encryptions and must be present in secrets.
func NewKeyring(secrets map[string]string, active string) (*Keyring, error) {
	if len(secrets) == 0 {
		return nil, fmt.Errorf("%w: no encryption keys configured", common.ErrValidation)
	}
	if _, ok := secrets[active]; !ok {
		return nil, fmt.Errorf("%w: active key %q", common.ErrUnknownKey, active)
	}

	kr := &Keyring{keys: make(map[string][]byte, len(secrets)), active: active}
	for id, secret := range secrets {
		if id == "" || secret == "" {
			return nil, fmt.Errorf("%w: empty key id or secret", common.ErrValidation)
		}
		key, err := DeriveKey(secret, id)
		if err != nil {
			return nil, err
		}
		kr.keys[id] = key
	}
	return kr, nil
}

// DeriveKey expands secret into a 256-bit key bound to keyID.
func DeriveKey(secret, keyID string) ([]byte, error) {
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte("vaultbox/file/"+keyID))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive key %q: %w", keyID, err)
	}
	return key, nil
}

// ActiveKeyID returns the identifier used for new encryptions.
func (k *Keyring) ActiveKeyID() string {
	return k.active
}

// Key returns the key for id or common.ErrUnknownKey.
func (k *Keyring) Key(id string) ([]byte, error) {
	key, ok := k.keys[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", common.ErrUnknownKey, id)
	}
	return key, nil
}

// IDs lists the known key identifiers in sorted order.
func (k *Keyring) IDs() []string {
	ids := make([]string, 0, len(k.keys))
	for id := range k.keys {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close zeroes the derived keys. The keyring is unusable afterwards.
func (k *Keyring) Close() {
	for id, key := range k.keys {
		common.WipeByteArray(key)
		delete(k.keys, id)
	}
}
