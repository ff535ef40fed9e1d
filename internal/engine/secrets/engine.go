package secrets

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
)

// Field slot names. Each is bound into its ciphertext as associated data, so
// an envelope issued for one slot does not open under another.
const (
	FieldWebhookSecret = "webhookSecret"
	FieldAPIKey        = "apiKey"
	FieldAccessToken   = "accessToken"
)

// ErrDecryption is the only error DecryptField returns. Wrong key, unknown
// version, corrupt data and tag mismatch are indistinguishable.
var ErrDecryption = errors.New("decryption failed")

const tagSize = 16

type algorithm struct {
	name    string
	ivSize  int
	newAEAD func(key []byte) (cipher.AEAD, error)
}

// algorithms maps the persisted envelope version to its AEAD.
var algorithms = map[string]algorithm{
	"1": {name: "AES-256-GCM", ivSize: 12, newAEAD: newAESGCM},
	"2": {name: "XChaCha20-Poly1305", ivSize: chacha20poly1305.NonceSizeX, newAEAD: chacha20poly1305.NewX},
}

func newAESGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Engine encrypts and decrypts named secret fields.
type Engine struct {
	keyring *Keyring
	version string
	random  io.Reader
	now     func() time.Time
}

// NewEngine returns an engine that writes envelopes with the given algorithm
// version under the keyring's active key.
func NewEngine(kr *Keyring, version string) (*Engine, error) {
	if kr == nil {
		return nil, ErrMissingMasterKey
	}
	if _, ok := algorithms[version]; !ok {
		return nil, fmt.Errorf("unknown encryption algorithm version %q", version)
	}
	return &Engine{keyring: kr, version: version, random: rand.Reader, now: time.Now}, nil
}

// Version returns the algorithm version new envelopes are written with.
func (e *Engine) Version() string { return e.version }

func (e *Engine) aead(keyID, version string) (cipher.AEAD, algorithm, bool) {
	alg, ok := algorithms[version]
	if !ok {
		return nil, algorithm{}, false
	}
	key, ok := e.keyring.derive(keyID, version)
	if !ok {
		return nil, algorithm{}, false
	}
	aead, err := alg.newAEAD(key)
	if err != nil {
		return nil, algorithm{}, false
	}
	return aead, alg, true
}

// EncryptField seals plaintext for the named slot with a fresh random iv.
func (e *Engine) EncryptField(field string, plaintext []byte) (*Envelope, error) {
	keyID := e.keyring.ActiveID()
	aead, alg, ok := e.aead(keyID, e.version)
	if !ok {
		return nil, fmt.Errorf("encryption key %q unavailable", keyID)
	}

	iv := make([]byte, alg.ivSize)
	if _, err := io.ReadFull(e.random, iv); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}

	sealed := aead.Seal(nil, iv, plaintext, []byte(field))
	split := len(sealed) - tagSize

	return &Envelope{
		Ciphertext:  sealed[:split:split],
		IV:          iv,
		AuthTag:     sealed[split:],
		Version:     e.version,
		KeyID:       keyID,
		EncryptedAt: e.now().UTC(),
	}, nil
}

// DecryptField verifies and opens env for the named slot. It never returns
// plaintext unless the tag verifies.
func (e *Engine) DecryptField(field string, env *Envelope) ([]byte, error) {
	if env == nil {
		return nil, ErrDecryption
	}
	keyID := env.KeyID
	if keyID == "" {
		keyID = e.keyring.ActiveID()
	}

	aead, alg, ok := e.aead(keyID, env.Version)
	if !ok || len(env.IV) != alg.ivSize || len(env.AuthTag) != tagSize {
		return nil, ErrDecryption
	}

	sealed := make([]byte, 0, len(env.Ciphertext)+tagSize)
	sealed = append(sealed, env.Ciphertext...)
	sealed = append(sealed, env.AuthTag...)

	plaintext, err := aead.Open(nil, env.IV, sealed, []byte(field))
	if err != nil {
		return nil, ErrDecryption
	}
	return plaintext, nil
}

// EncryptString encrypts s and returns the serialized envelope text.
func (e *Engine) EncryptString(field, s string) (string, error) {
	env, err := e.EncryptField(field, []byte(s))
	if err != nil {
		return "", err
	}
	return Serialize(env)
}

// DecryptString parses stored envelope text and decrypts it. A malformed
// envelope is reported as ErrDecryption.
func (e *Engine) DecryptString(field, text string) (string, error) {
	env, err := ParseEnvelope(text)
	if err != nil {
		return "", ErrDecryption
	}
	plaintext, err := e.DecryptField(field, env)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// NeedsRotation reports whether env was written under a key or algorithm
// other than the current ones.
func (e *Engine) NeedsRotation(env *Envelope) bool {
	return env.KeyID != e.keyring.ActiveID() || env.Version != e.version
}

// SelfTest round-trips a probe value under the active key.
func (e *Engine) SelfTest() error {
	probe := []byte("hivehook-self-test")
	env, err := e.EncryptField("selfTest", probe)
	if err != nil {
		return err
	}
	out, err := e.DecryptField("selfTest", env)
	if err != nil {
		return err
	}
	if !bytes.Equal(out, probe) {
		return errors.New("self test round trip mismatch")
	}
	return nil
}
