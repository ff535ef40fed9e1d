package secrets

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"

	"golang.org/x/crypto/hkdf"
	"hivehook/internal/platform/config"
)

const masterKeySize = 32

// ErrMissingMasterKey is returned at startup when no usable active key is
// configured.
var ErrMissingMasterKey = errors.New("encryption master key is not configured")

// Keyring holds the versioned master keys. It is built once at startup and
// never mutated; rotation means a new config with an extra key id.
type Keyring struct {
	keys     map[string][]byte
	activeID string
}

// NewKeyring decodes the configured hex keys. The active key must be present.
func NewKeyring(cfg config.EncryptionConfig) (*Keyring, error) {
	if cfg.ActiveKeyID == "" || len(cfg.Keys) == 0 {
		return nil, ErrMissingMasterKey
	}

	kr := &Keyring{keys: make(map[string][]byte, len(cfg.Keys)), activeID: cfg.ActiveKeyID}
	for id, encoded := range cfg.Keys {
		if encoded == "" {
			continue
		}
		raw, err := hex.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("key %q: not valid hex: %w", id, err)
		}
		if len(raw) != masterKeySize {
			return nil, fmt.Errorf("key %q: expected %d bytes, got %d", id, masterKeySize, len(raw))
		}
		kr.keys[id] = raw
	}

	if _, ok := kr.keys[kr.activeID]; !ok {
		return nil, ErrMissingMasterKey
	}
	return kr, nil
}

func (k *Keyring) ActiveID() string { return k.activeID }

// IDs lists the loaded key ids in sorted order.
func (k *Keyring) IDs() []string {
	ids := make([]string, 0, len(k.keys))
	for id := range k.keys {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// derive returns the 32 byte sub-key for (key id, algorithm version).
func (k *Keyring) derive(keyID, version string) ([]byte, bool) {
	master, ok := k.keys[keyID]
	if !ok {
		return nil, false
	}
	r := hkdf.New(sha256.New, master, nil, []byte("hivehook/field-encryption/v"+version))
	out := make([]byte, masterKeySize)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, false
	}
	return out, true
}
