package crypto

import (
	"errors"
	"testing"
)

func TestEncryptDecrypt(t *testing.T) {
	sealed, err := Encrypt("ya29.refresh-token", "secret")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if sealed == "ya29.refresh-token" {
		t.Fatal("ciphertext must differ from plaintext")
	}

	plain, err := Decrypt(sealed, "secret")
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if plain != "ya29.refresh-token" {
		t.Errorf("expected round trip, got %q", plain)
	}
}

func TestDecrypt_WrongKey(t *testing.T) {
	sealed, err := Encrypt("imap-password", "one")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := Decrypt(sealed, "two"); err == nil {
		t.Fatal("expected error with wrong key")
	}
}

func TestEncrypt_Empty(t *testing.T) {
	sealed, err := Encrypt("", "secret")
	if err != nil || sealed != "" {
		t.Fatalf("expected empty output, got %q, %v", sealed, err)
	}
	if _, err := Encrypt("x", ""); !errors.Is(err, ErrMissingKey) {
		t.Errorf("expected ErrMissingKey, got %v", err)
	}
}

func TestDecrypt_Malformed(t *testing.T) {
	if _, err := Decrypt("not base64!!", "secret"); !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("expected ErrMalformedPayload, got %v", err)
	}
	if _, err := Decrypt("YWJj", "secret"); !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("expected ErrMalformedPayload for short payload, got %v", err)
	}
}
