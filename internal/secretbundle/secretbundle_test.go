package secretbundle

import (
	"strings"
	"testing"
)

func findSecret(secrets []Secret, key string) (Secret, bool) {
	for _, s := range secrets {
		if s.Key == key {
			return s, true
		}
	}
	return Secret{}, false
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	secrets := []Secret{
		{Key: "API_KEY", Value: "abc123", Tags: []string{"prod"}},
		{Key: "DB_PASSWORD", Value: "hunter2", Description: "primary database"},
	}

	envelope, err := Encrypt("correct horse battery staple", secrets)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if !strings.Contains(envelope, ":") {
		t.Fatalf("envelope missing separator: %q", envelope)
	}

	got, err := Decrypt("correct horse battery staple", envelope)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	apiKey, ok := findSecret(got, "API_KEY")
	if !ok || apiKey.Value != "abc123" || len(apiKey.Tags) != 1 || apiKey.Tags[0] != "prod" {
		t.Fatalf("got %+v", got)
	}
	dbPass, ok := findSecret(got, "DB_PASSWORD")
	if !ok || dbPass.Value != "hunter2" || dbPass.Description != "primary database" {
		t.Fatalf("got %+v", got)
	}
}

func TestEncryptDecrypt_RawHexKey(t *testing.T) {
	hexKey := strings.Repeat("ab", 32) // 64 hex chars = 32 bytes
	envelope, err := Encrypt(hexKey, []Secret{{Key: "K", Value: "V"}})
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	got, err := Decrypt(hexKey, envelope)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	v, ok := findSecret(got, "K")
	if !ok || v.Value != "V" {
		t.Fatalf("got %+v", got)
	}
}

func TestDecrypt_WrongKeyFails(t *testing.T) {
	envelope, err := Encrypt("passphrase-one", []Secret{{Key: "K", Value: "V"}})
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := Decrypt("passphrase-two", envelope); err == nil {
		t.Fatal("expected an error decrypting with the wrong key")
	}
}

func TestDecrypt_InvalidEnvelope(t *testing.T) {
	if _, err := Decrypt("key", "no-separator-here"); err != ErrInvalidEnvelope {
		t.Fatalf("got %v, want ErrInvalidEnvelope", err)
	}
	if _, err := Decrypt("key", "zzzz:zzzz"); err == nil {
		t.Fatal("expected an error for non-hex envelope content")
	}
}

func TestEncrypt_EmptyKeyFails(t *testing.T) {
	if _, err := Encrypt("", []Secret{{Key: "K", Value: "V"}}); err != ErrInvalidKey {
		t.Fatalf("got %v, want ErrInvalidKey", err)
	}
}

func TestPKCS7PadUnpad_RoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 15, 16, 17, 31, 32} {
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(i)
		}
		padded := pkcs7Pad(data, 16)
		if len(padded)%16 != 0 {
			t.Fatalf("padded length %d not a multiple of 16 for n=%d", len(padded), n)
		}
		unpadded, err := pkcs7Unpad(padded, 16)
		if err != nil {
			t.Fatalf("pkcs7Unpad for n=%d: %v", n, err)
		}
		if len(unpadded) != n {
			t.Fatalf("n=%d: got length %d", n, len(unpadded))
		}
	}
}
