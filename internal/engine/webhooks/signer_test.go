package webhooks

import (
	"strings"
	"testing"
)

func TestComputeSignatureHex(t *testing.T) {
	secret := "secret"
	payload := []byte("payload")

	// Calculated using: echo -n "payload" | openssl dgst -sha256 -hmac "secret"
	expected := "b82fcb791acec57859b989b430a826488ce2e479fdf92326bd0a2e8375a42ba4"

	got := ComputeSignatureHex(secret, payload)

	if got != expected {
		t.Errorf("ComputeSignatureHex() = %v, want %v", got, expected)
	}
	if Sign(secret, payload) != "sha256="+expected {
		t.Errorf("Sign() = %v, want sha256=%v", Sign(secret, payload), expected)
	}
}

func TestVerifySignature(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{"ref":"refs/heads/main","repository":{"html_url":"https://github.com/acme/api"}}`)
	sig := ComputeSignatureHex(secret, body)

	tests := []struct {
		name   string
		secret string
		body   []byte
		header string
		want   bool
	}{
		{"prefixed", secret, body, "sha256=" + sig, true},
		{"bare hex", secret, body, sig, true},
		{"uppercase hex", secret, body, "sha256=" + strings.ToUpper(sig), true},
		{"wrong secret", "other", body, "sha256=" + sig, false},
		{"tampered body", secret, append([]byte(" "), body...), "sha256=" + sig, false},
		{"truncated", secret, body, "sha256=" + sig[:40], false},
		{"not hex", secret, body, "sha256=zz" + sig[2:], false},
		{"odd length", secret, body, "sha256=" + sig[1:], false},
		{"empty header", secret, body, "", false},
		{"empty secret", "", body, "sha256=" + sig, false},
		{"other algorithm", secret, body, "sha1=" + sig, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifySignature(tt.secret, tt.body, tt.header); got != tt.want {
				t.Errorf("VerifySignature() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVerifySignature_EveryByteMatters(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{"ref":"refs/heads/main"}`)
	header := Sign(secret, body)

	for i := range body {
		mutated := append([]byte(nil), body...)
		mutated[i] ^= 0x01
		if VerifySignature(secret, mutated, header) {
			t.Fatalf("signature still valid after changing byte %d", i)
		}
	}
}
