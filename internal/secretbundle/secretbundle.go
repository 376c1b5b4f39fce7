// Package secretbundle implements the encryption envelope used for secret
// bundles synced by C8 (spec §4.7): PBKDF2-or-raw-hex key derivation,
// AES-256-CBC with a fresh IV per bundle, and a hex(iv):hex(ciphertext)
// wire format.
package secretbundle

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// fixedSalt is the constant PBKDF2 salt for every key derivation. Rotating
// this value is a breaking change to every previously-encrypted bundle
// (spec §4.7); it is pinned here rather than configurable.
var fixedSalt = []byte("lsh-job-daemon-secret-bundle-v1")

const (
	pbkdf2Iterations = 100_000
	keyLenBytes      = 32 // AES-256
)

// ErrInvalidKey is returned when the supplied key has the wrong length or
// derivation otherwise fails.
var ErrInvalidKey = errors.New("secretbundle: invalid key")

// ErrInvalidEnvelope is returned when a ciphertext envelope is malformed:
// missing the ":" separator or containing non-hex bytes.
var ErrInvalidEnvelope = errors.New("secretbundle: invalid envelope")

// ErrDecryptFailed is returned when decryption completes but the result is
// not recoverable plaintext, or the key/IV combination is wrong.
var ErrDecryptFailed = errors.New("secretbundle: decrypt failed")

// ErrMalformedPayload is returned when decrypted plaintext is not a valid
// JSON array of secrets.
var ErrMalformedPayload = errors.New("secretbundle: malformed payload")

// Secret is one entry of a bundle (spec §3): a key/value pair plus optional
// descriptive metadata that travels with it end to end.
type Secret struct {
	Key         string   `json:"key"`
	Value       string   `json:"value"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// deriveKey interprets a 64-character hex string as 32 raw key bytes;
// otherwise it derives 32 bytes via PBKDF2-HMAC-SHA256 with the fixed
// salt and pbkdf2Iterations rounds.
func deriveKey(key string) ([]byte, error) {
	if len(key) == 64 {
		if raw, err := hex.DecodeString(key); err == nil && len(raw) == keyLenBytes {
			return raw, nil
		}
	}
	if key == "" {
		return nil, ErrInvalidKey
	}
	return pbkdf2.Key([]byte(key), fixedSalt, pbkdf2Iterations, keyLenBytes, newSHA256), nil
}

func newSHA256() hash.Hash {
	return sha256.New()
}

// Encrypt serializes secrets as utf8(JSON([]Secret)), encrypts it with
// AES-256-CBC under a key derived from keyMaterial, and returns the
// envelope as hex(iv) + ":" + hex(ciphertext).
func Encrypt(keyMaterial string, secrets []Secret) (string, error) {
	key, err := deriveKey(keyMaterial)
	if err != nil {
		return "", err
	}

	plaintext, err := json.Marshal(secrets)
	if err != nil {
		return "", fmt.Errorf("secretbundle: marshal secrets: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("secretbundle: generate iv: %w", err)
	}

	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(ciphertext), nil
}

// Decrypt parses an envelope produced by Encrypt, decrypts it under a key
// derived from keyMaterial, and unmarshals the resulting plaintext as a
// slice of Secrets.
func Decrypt(keyMaterial string, envelope string) ([]Secret, error) {
	key, err := deriveKey(keyMaterial)
	if err != nil {
		return nil, err
	}

	ivHex, ctHex, ok := strings.Cut(envelope, ":")
	if !ok {
		return nil, ErrInvalidEnvelope
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	ciphertext, err := hex.DecodeString(ctHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if len(iv) != aes.BlockSize {
		return nil, ErrInvalidEnvelope
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, ErrInvalidEnvelope
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)

	plaintext, err := pkcs7Unpad(padded, aes.BlockSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}

	var secrets []Secret
	if err := json.Unmarshal(plaintext, &secrets); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return secrets, nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("invalid padded length")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, errors.New("invalid padding")
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, errors.New("invalid padding bytes")
		}
	}
	return data[:len(data)-padLen], nil
}
