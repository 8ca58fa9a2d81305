package crypto

import (
	"strings"
	"testing"
)

func TestRoundtrip(t *testing.T) {
	km := NewKeyManager("test-key-12345")

	cases := []string{
		"simple",
		"with spaces",
		"special!@#$%^&*()",
		"unicode: 日本語 🎉",
		"",
		strings.Repeat("long", 100),
	}
	for _, original := range cases {
		encrypted, err := km.Encrypt(original)
		if err != nil {
			t.Fatalf("Encrypt(%q) failed: %v", original, err)
		}
		if original != "" && !strings.HasPrefix(encrypted, EncryptedPrefix) {
			t.Errorf("Encrypt(%q) missing prefix: %q", original, encrypted)
		}
		decrypted, err := km.Decrypt(encrypted)
		if err != nil {
			t.Fatalf("Decrypt failed for %q: %v", original, err)
		}
		if decrypted != original {
			t.Errorf("roundtrip mismatch: got %q, want %q", decrypted, original)
		}
	}
}

func TestEncrypt_RandomNonce(t *testing.T) {
	km := NewKeyManager("nonce-test")

	enc1, _ := km.Encrypt("same input")
	enc2, _ := km.Encrypt("same input")
	if enc1 == enc2 {
		t.Error("two encryptions of the same input should differ (random nonce)")
	}
}

func TestNoKey_PassThrough(t *testing.T) {
	km := NewKeyManager("")

	if km.HasKey() {
		t.Error("HasKey() should be false for empty secret")
	}

	result, err := km.Encrypt("my data")
	if err != nil || result != "my data" {
		t.Errorf("Encrypt without key = %q, %v; want plaintext pass-through", result, err)
	}

	result, err = km.Decrypt("plain text")
	if err != nil || result != "plain text" {
		t.Errorf("Decrypt of plain text = %q, %v; want pass-through", result, err)
	}

	if _, err := km.Decrypt("enc:v1:someencrypteddata"); err != ErrNoEncryptionKey {
		t.Errorf("Decrypt of encrypted value without key should return ErrNoEncryptionKey, got %v", err)
	}
}

func TestDecrypt_Errors(t *testing.T) {
	km := NewKeyManager("error-test")

	if _, err := km.Decrypt("enc:v1:not-valid-base64!!!"); err == nil {
		t.Error("Decrypt should fail for invalid base64")
	}

	// "abc" in base64, too short for a GCM nonce
	if _, err := km.Decrypt("enc:v1:YWJj"); err != ErrDecryptFailed {
		t.Errorf("short ciphertext should return ErrDecryptFailed, got %v", err)
	}

	// Long enough for a nonce but garbage ciphertext
	if _, err := km.Decrypt("enc:v1:YWJjZGVmZ2hpamtsbW5vcHFyc3R1dnd4"); err != ErrDecryptFailed {
		t.Errorf("garbage ciphertext should return ErrDecryptFailed, got %v", err)
	}
}

func TestDecrypt_WrongKey(t *testing.T) {
	encrypted, err := NewKeyManager("key-one").Encrypt("secret")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	if _, err := NewKeyManager("key-two").Decrypt(encrypted); err != ErrDecryptFailed {
		t.Errorf("decrypt with wrong key should return ErrDecryptFailed, got %v", err)
	}
}

func TestIsEncrypted(t *testing.T) {
	if !IsEncrypted("enc:v1:somedata") {
		t.Error("IsEncrypted should be true for prefixed values")
	}
	for _, v := range []string{"plaintext", "enc:", "enc:v1", "enc:v2:data", ""} {
		if IsEncrypted(v) {
			t.Errorf("IsEncrypted(%q) = true, want false", v)
		}
	}
}
