package crypto

import (
	"strings"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc := NewEncryptor("test-secret")

	plain := []byte("hunter2-app-password")
	stored, err := enc.Encrypt(plain)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if !strings.Contains(stored, ":") {
		t.Fatalf("expected ivHex:ciphertextHex form, got %q", stored)
	}

	got, err := enc.Decrypt(stored)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if string(got) != string(plain) {
		t.Fatalf("round trip mismatch: got %q want %q", got, plain)
	}
}

func TestEncryptFreshIVPerWrite(t *testing.T) {
	enc := NewEncryptor("test-secret")

	a, err := enc.Encrypt([]byte("same-plaintext"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	b, err := enc.Encrypt([]byte("same-plaintext"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct ciphertexts for repeated encryption, got identical output")
	}
}

func TestDecryptMalformed(t *testing.T) {
	enc := NewEncryptor("test-secret")
	if _, err := enc.Decrypt("not-hex-colon-hex"); err == nil {
		t.Fatalf("expected error decrypting malformed ciphertext")
	}
}
