// Package crypto provides the symmetric encryption primitives used for
// sealbox secret payloads. Values are encrypted with AES-256-GCM under a
// scrypt-derived key and wrapped in a versioned, base64url-encoded envelope.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// envelopePrefix identifies a sealbox ciphertext envelope. It doubles as the
// structural signal for IsLikelyEncrypted on untagged legacy records.
const envelopePrefix = "sb1."

const (
	saltSize  = 16
	nonceSize = 12
	keySize   = 32

	// scrypt parameters (N, r, p)
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

var (
	// ErrDecryptionFailed is returned when the key is wrong or the
	// ciphertext failed its integrity check.
	ErrDecryptionFailed = errors.New("decryption failed: integrity check mismatch")

	// ErrMalformedCiphertext is returned when the input is not a valid
	// sealbox envelope.
	ErrMalformedCiphertext = errors.New("malformed ciphertext envelope")
)

// Encrypt encrypts plaintext with a key derived from passphrase and returns
// the encoded envelope: prefix + base64url(salt || nonce || ciphertext).
func Encrypt(plaintext, passphrase string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)

	blob := make([]byte, 0, saltSize+nonceSize+len(sealed))
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	blob = append(blob, sealed...)

	return envelopePrefix + base64.URLEncoding.EncodeToString(blob), nil
}

// Decrypt reverses Encrypt. It returns ErrMalformedCiphertext when the input
// is not an envelope and ErrDecryptionFailed when the passphrase is wrong or
// the payload was tampered with.
func Decrypt(ciphertext, passphrase string) (string, error) {
	encoded, ok := strings.CutPrefix(ciphertext, envelopePrefix)
	if !ok {
		return "", ErrMalformedCiphertext
	}

	blob, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrMalformedCiphertext
	}
	if len(blob) < saltSize+nonceSize+1 {
		return "", ErrMalformedCiphertext
	}

	salt := blob[:saltSize]
	nonce := blob[saltSize : saltSize+nonceSize]
	sealed := blob[saltSize+nonceSize:]

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// IsLikelyEncrypted reports whether value is shaped like a sealbox envelope.
// It is a structural heuristic only, used for records written before encoding
// metadata existed.
func IsLikelyEncrypted(value string) bool {
	encoded, ok := strings.CutPrefix(value, envelopePrefix)
	if !ok {
		return false
	}
	blob, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return false
	}
	return len(blob) >= saltSize+nonceSize+1
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
