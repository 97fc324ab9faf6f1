// Package crypto provides the passphrase-based primitives used by skm backups.
//
// This package implements AES-256-GCM authenticated encryption and Argon2id
// key derivation following OWASP recommendations.
//
// # Security Features
//
//   - AES-256-GCM authenticated encryption with caller-supplied associated data
//   - Argon2id key derivation (64MB memory, 3 iterations, 4 threads)
//   - Cryptographically secure random salt and nonce generation
//   - Unicode NFC normalisation of passphrases
//   - Secure memory wiping for sensitive data
//
// # Example Usage
//
//	salt, _ := crypto.GenerateSalt()
//	key := crypto.DeriveKey([]byte("passphrase"), salt)
//	defer crypto.SecureWipe(key)
//
//	nonce, _ := crypto.GenerateNonce()
//	ciphertext, err := crypto.Encrypt(key, nonce, plaintext, header)
//
//	plaintext, err := crypto.Decrypt(key, nonce, ciphertext, header)
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/crypto/argon2"
	"golang.org/x/text/unicode/norm"
)

// Argon2id parameters following OWASP recommendations.
const (
	// Argon2Memory is the memory cost in KiB (64MB).
	Argon2Memory = 64 * 1024

	// Argon2Time is the number of iterations.
	Argon2Time = 3

	// Argon2Threads is the degree of parallelism.
	Argon2Threads = 4

	// KeyLength is the length of encryption keys in bytes (256 bits).
	KeyLength = 32

	// SaltLength is the length of key derivation salts in bytes (128 bits).
	SaltLength = 16

	// NonceLength is the length of GCM nonces in bytes (96 bits).
	NonceLength = 12
)

// Sentinel errors returned by crypto functions.
var (
	// ErrInvalidKeyLength indicates the key is not 32 bytes.
	ErrInvalidKeyLength = errors.New("crypto: invalid key length, must be 32 bytes")

	// ErrInvalidNonceLength indicates the nonce is not 12 bytes.
	ErrInvalidNonceLength = errors.New("crypto: invalid nonce length, must be 12 bytes")

	// ErrDecryptionFailed indicates decryption or authentication tag verification failed.
	ErrDecryptionFailed = errors.New("crypto: decryption failed, authentication tag verification failed")

	// ErrCiphertextTooShort indicates the ciphertext is shorter than the GCM tag.
	ErrCiphertextTooShort = errors.New("crypto: ciphertext too short")
)

// Params holds Argon2id cost parameters.
type Params struct {
	Memory  uint32 // KiB
	Time    uint32
	Threads uint8
}

// DefaultParams returns the production Argon2id parameters.
func DefaultParams() Params {
	return Params{
		Memory:  Argon2Memory,
		Time:    Argon2Time,
		Threads: Argon2Threads,
	}
}

// DeriveKey derives a 256-bit encryption key from a passphrase using Argon2id
// with the default parameters.
//
// The function is deterministic: the same passphrase and salt always yield
// the same key. Passphrases are NFC-normalised first so that the same text
// typed on different platforms derives the same key.
func DeriveKey(passphrase, salt []byte) []byte {
	return DeriveKeyWithParams(passphrase, salt, DefaultParams())
}

// DeriveKeyWithParams derives a 256-bit key using explicit Argon2id parameters.
func DeriveKeyWithParams(passphrase, salt []byte, p Params) []byte {
	normalized := NormalizePassphrase(passphrase)
	defer SecureWipe(normalized)
	return argon2.IDKey(normalized, salt, p.Time, p.Memory, p.Threads, KeyLength)
}

// NormalizePassphrase returns a NFC-normalised copy of the passphrase.
// The copy never aliases the input, so wiping it leaves the caller's
// passphrase intact. The caller owns the returned slice and should wipe it
// after use.
func NormalizePassphrase(passphrase []byte) []byte {
	return norm.NFC.Append(make([]byte, 0, len(passphrase)), passphrase...)
}

// GenerateSalt generates a cryptographically secure random salt.
func GenerateSalt() ([]byte, error) {
	return randomBytes(SaltLength)
}

// GenerateNonce generates a cryptographically secure random GCM nonce.
func GenerateNonce() ([]byte, error) {
	return randomBytes(NonceLength)
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("crypto: failed to read random bytes: %w", err)
	}
	return b, nil
}

// Encrypt encrypts plaintext using AES-256-GCM authenticated encryption.
//
// The nonce must be 12 bytes and must never be reused with the same key.
// additionalData is authenticated but not encrypted; any change to it makes
// Decrypt fail. The authentication tag is appended to the ciphertext.
func Encrypt(key, nonce, plaintext, additionalData []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != NonceLength {
		return nil, ErrInvalidNonceLength
	}

	return gcm.Seal(nil, nonce, plaintext, additionalData), nil
}

// Decrypt decrypts ciphertext using AES-256-GCM authenticated encryption.
//
// The function verifies the authentication tag before returning the plaintext.
// If the tag verification fails (wrong key, tampered ciphertext, nonce or
// associated data), ErrDecryptionFailed is returned.
func Decrypt(key, nonce, ciphertext, additionalData []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != NonceLength {
		return nil, ErrInvalidNonceLength
	}

	// Verify ciphertext has minimum length (GCM tag is 16 bytes)
	if len(ciphertext) < gcm.Overhead() {
		return nil, ErrCiphertextTooShort
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, additionalData)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeyLength {
		return nil, ErrInvalidKeyLength
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create GCM: %w", err)
	}
	return gcm, nil
}

// SecureWipe overwrites a byte slice with zeros in a way that prevents
// compiler optimization from removing the operation.
func SecureWipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	// runtime.KeepAlive ensures the write operations are not optimized away
	// by the compiler since b is still "in use" after the loop.
	runtime.KeepAlive(b)
}
