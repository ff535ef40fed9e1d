package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignaturePrefix is the algorithm tag GitHub puts in front of the hex digest
// in X-Hub-Signature-256.
const SignaturePrefix = "sha256="

// ComputeSignatureHex returns the hex HMAC-SHA256 of payload. payload must be
// the exact bytes received on the wire.
func ComputeSignatureHex(secret string, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// Sign formats the signature the way it appears in the header.
func Sign(secret string, payload []byte) string {
	return SignaturePrefix + ComputeSignatureHex(secret, payload)
}

// VerifySignature reports whether header carries a valid signature of
// payload under secret. Malformed headers yield false.
func VerifySignature(secret string, payload []byte, header string) bool {
	if secret == "" || header == "" {
		return false
	}

	provided, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(header), SignaturePrefix))
	if err != nil || len(provided) != sha256.Size {
		return false
	}

	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)

	// hmac.Equal is crypto/subtle.ConstantTimeCompare: it visits every byte.
	return hmac.Equal(h.Sum(nil), provided)
}
