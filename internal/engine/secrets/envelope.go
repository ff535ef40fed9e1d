package secrets

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"
)

// ErrMalformedEnvelope is returned when stored text cannot be parsed back into
// an Envelope.
var ErrMalformedEnvelope = errors.New("malformed encrypted envelope")

// Envelope is the at-rest form of one encrypted field.
type Envelope struct {
	Ciphertext  []byte
	IV          []byte
	AuthTag     []byte
	Version     string
	KeyID       string
	EncryptedAt time.Time
}

// storedEnvelope is the JSON text written to the secret column.
type storedEnvelope struct {
	Data        string `json:"data"`
	IV          string `json:"iv"`
	Tag         string `json:"tag"`
	Version     string `json:"version"`
	KeyID       string `json:"keyId,omitempty"`
	EncryptedAt string `json:"encryptedAt"`
}

var b64 = base64.StdEncoding

// Serialize renders env as the text stored in a secret column.
func Serialize(env *Envelope) (string, error) {
	out, err := json.Marshal(storedEnvelope{
		Data:        b64.EncodeToString(env.Ciphertext),
		IV:          b64.EncodeToString(env.IV),
		Tag:         b64.EncodeToString(env.AuthTag),
		Version:     env.Version,
		KeyID:       env.KeyID,
		EncryptedAt: env.EncryptedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// ParseEnvelope is the inverse of Serialize. Every required field must be
// present and decodable; nothing is defaulted. Ciphertext may be empty since
// an empty plaintext is a valid secret.
func ParseEnvelope(text string) (*Envelope, error) {
	var s storedEnvelope
	if err := json.Unmarshal([]byte(text), &s); err != nil {
		return nil, ErrMalformedEnvelope
	}
	if s.IV == "" || s.Tag == "" || s.Version == "" || s.EncryptedAt == "" {
		return nil, ErrMalformedEnvelope
	}

	data, err := b64.DecodeString(s.Data)
	if err != nil {
		return nil, ErrMalformedEnvelope
	}
	iv, err := b64.DecodeString(s.IV)
	if err != nil {
		return nil, ErrMalformedEnvelope
	}
	tag, err := b64.DecodeString(s.Tag)
	if err != nil {
		return nil, ErrMalformedEnvelope
	}
	at, err := time.Parse(time.RFC3339Nano, s.EncryptedAt)
	if err != nil {
		return nil, ErrMalformedEnvelope
	}

	return &Envelope{
		Ciphertext:  data,
		IV:          iv,
		AuthTag:     tag,
		Version:     s.Version,
		KeyID:       s.KeyID,
		EncryptedAt: at,
	}, nil
}
