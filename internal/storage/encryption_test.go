package storage

import (
	"strings"
	"testing"
)

func TestEncryptionRoundTrip(t *testing.T) {
	key, err := GenerateKey(32)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	enc, err := NewEncryptionFromBase64(key)
	if err != nil {
		t.Fatalf("NewEncryptionFromBase64 failed: %v", err)
	}

	plaintext := "sk-very-secret-api-key"
	ciphertext, err := enc.EncryptString(plaintext)
	if err != nil {
		t.Fatalf("EncryptString failed: %v", err)
	}

	if ciphertext == plaintext {
		t.Error("Expected ciphertext to differ from plaintext")
	}

	decrypted, err := enc.DecryptString(ciphertext)
	if err != nil {
		t.Fatalf("DecryptString failed: %v", err)
	}
	if decrypted != plaintext {
		t.Errorf("Expected %q, got %q", plaintext, decrypted)
	}
}

func TestEncryptionNondeterministic(t *testing.T) {
	key, _ := GenerateKey(32)
	enc, err := NewEncryptionFromBase64(key)
	if err != nil {
		t.Fatalf("NewEncryptionFromBase64 failed: %v", err)
	}

	// Random nonce: same plaintext encrypts differently each time.
	first, _ := enc.EncryptString("secret")
	second, _ := enc.EncryptString("secret")
	if first == second {
		t.Error("Expected distinct ciphertexts for repeated encryption")
	}
}

func TestEncryptionWrongKey(t *testing.T) {
	keyA, _ := GenerateKey(32)
	keyB, _ := GenerateKey(32)

	encA, _ := NewEncryptionFromBase64(keyA)
	encB, _ := NewEncryptionFromBase64(keyB)

	ciphertext, err := encA.EncryptString("secret")
	if err != nil {
		t.Fatalf("EncryptString failed: %v", err)
	}

	if _, err := encB.DecryptString(ciphertext); err == nil {
		t.Error("Expected decryption with wrong key to fail")
	}
}

func TestEncryptionInvalidKeySize(t *testing.T) {
	if _, err := NewEncryption([]byte("short")); err == nil {
		t.Error("Expected error for invalid key size")
	}
}

func TestEncryptionInvalidCiphertext(t *testing.T) {
	key, _ := GenerateKey(32)
	enc, _ := NewEncryptionFromBase64(key)

	if _, err := enc.DecryptString("not base64!!!"); err == nil {
		t.Error("Expected error for invalid base64")
	}
	if _, err := enc.DecryptString(strings.Repeat("A", 8)); err == nil {
		t.Error("Expected error for truncated ciphertext")
	}
}
