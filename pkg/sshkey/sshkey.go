// Package sshkey models SSH key pairs as they are held in memory by skm.
//
// A Record carries the raw public key line and, unless it was exported as
// public-only, the raw private key file contents. Fingerprints are derived
// from the public key and are used for equality checks, never for naming.
package sshkey

import (
	"bytes"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/ssh"
)

// Sentinel errors returned by record validation and parsing.
var (
	// ErrInvalidName indicates a key name that cannot be used as a file name in a key directory.
	ErrInvalidName = errors.New("invalid key name")

	// ErrInvalidPublicKey indicates public key bytes that do not parse as an authorized_keys line.
	ErrInvalidPublicKey = errors.New("invalid public key")

	// ErrUnsupportedKeyType indicates a key algorithm outside Ed25519 and RSA.
	ErrUnsupportedKeyType = errors.New("unsupported key type")

	// ErrTypeMismatch indicates the declared key type disagrees with the public key algorithm.
	ErrTypeMismatch = errors.New("key type does not match public key")
)

// KeyType is the algorithm of a key pair.
type KeyType int

const (
	// Ed25519 is the default key type.
	Ed25519 KeyType = iota + 1
	// RSA keys carry a bit length.
	RSA
)

// ParseKeyType parses a key type from user input or a public key algorithm name.
func ParseKeyType(s string) (KeyType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ed25519", ssh.KeyAlgoED25519:
		return Ed25519, nil
	case "rsa", ssh.KeyAlgoRSA:
		return RSA, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedKeyType, s)
	}
}

// String returns the display name of the key type.
func (t KeyType) String() string {
	switch t {
	case Ed25519:
		return "ED25519"
	case RSA:
		return "RSA"
	default:
		return fmt.Sprintf("KeyType(%d)", int(t))
	}
}

// Name returns the lowercase name used in archives and on the command line.
func (t KeyType) Name() string {
	switch t {
	case Ed25519:
		return "ed25519"
	case RSA:
		return "rsa"
	default:
		return ""
	}
}

// Algorithm returns the SSH wire algorithm name for public keys of this type.
func (t KeyType) Algorithm() string {
	switch t {
	case Ed25519:
		return ssh.KeyAlgoED25519
	case RSA:
		return ssh.KeyAlgoRSA
	default:
		return ""
	}
}

// DefaultFilename returns the conventional private key file name for the type.
func (t KeyType) DefaultFilename() string {
	return "id_" + t.Name()
}

// Valid reports whether t is one of the defined key types.
func (t KeyType) Valid() bool {
	return t == Ed25519 || t == RSA
}

// MarshalText implements encoding.TextMarshaler.
func (t KeyType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedKeyType, int(t))
	}
	return []byte(t.Name()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *KeyType) UnmarshalText(b []byte) error {
	parsed, err := ParseKeyType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Record is one SSH key pair.
type Record struct {
	// Name is the private key file name, unique within a key directory.
	Name string

	// Type is the key algorithm.
	Type KeyType

	// Bits is the modulus length of RSA keys; nil for other types.
	Bits *int

	// Comment is the free-text comment of the public key line.
	Comment string

	// PublicKey is the authorized_keys formatted public key line.
	PublicKey []byte

	// PrivateKey is the private key file contents. Empty for public-only records.
	PrivateKey []byte
}

// PublicOnly reports whether the record carries no private key material.
func (r *Record) PublicOnly() bool {
	return len(r.PrivateKey) == 0
}

// Fingerprint returns the SHA256 fingerprint of the public key.
func (r *Record) Fingerprint() (string, error) {
	pk, _, err := ParseAuthorizedKey(r.PublicKey)
	if err != nil {
		return "", err
	}
	return ssh.FingerprintSHA256(pk), nil
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	c := *r
	if r.Bits != nil {
		bits := *r.Bits
		c.Bits = &bits
	}
	c.PublicKey = bytes.Clone(r.PublicKey)
	c.PrivateKey = bytes.Clone(r.PrivateKey)
	return &c
}

// WithoutPrivate returns a public-only copy of the record.
func (r *Record) WithoutPrivate() *Record {
	c := r.Clone()
	c.PrivateKey = nil
	return c
}

// Validate checks the name, the public key and their consistency with Type and Bits.
func (r *Record) Validate() error {
	if err := ValidateName(r.Name); err != nil {
		return err
	}
	if !r.Type.Valid() {
		return fmt.Errorf("%s: %w", r.Name, ErrUnsupportedKeyType)
	}

	pk, _, err := ParseAuthorizedKey(r.PublicKey)
	if err != nil {
		return fmt.Errorf("%s: %w", r.Name, err)
	}
	if pk.Type() != r.Type.Algorithm() {
		return fmt.Errorf("%s: %w: declared %s, public key is %s", r.Name, ErrTypeMismatch, r.Type, pk.Type())
	}

	if r.Bits != nil {
		if r.Type != RSA {
			return fmt.Errorf("%s: %w: bits set on %s key", r.Name, ErrTypeMismatch, r.Type)
		}
		if actual, ok := RSABits(pk); ok && actual != *r.Bits {
			return fmt.Errorf("%s: %w: declared %d bits, public key has %d", r.Name, ErrTypeMismatch, *r.Bits, actual)
		}
	}
	return nil
}

// LogValue implements slog.LogValuer. Key material is never included.
func (r *Record) LogValue() slog.Value {
	fp, _ := r.Fingerprint()
	return slog.GroupValue(
		slog.String("name", r.Name),
		slog.String("type", r.Type.Name()),
		slog.String("fingerprint", fp),
		slog.Bool("public_only", r.PublicOnly()),
	)
}

// ParseAuthorizedKey parses a public key line and returns the key and its comment.
func ParseAuthorizedKey(line []byte) (ssh.PublicKey, string, error) {
	if len(bytes.TrimSpace(line)) == 0 {
		return nil, "", fmt.Errorf("%w: empty", ErrInvalidPublicKey)
	}
	pk, comment, _, _, err := ssh.ParseAuthorizedKey(line)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return pk, comment, nil
}

// PublicFromPrivate returns the public half of a private key file. OpenSSH
// keys carry their public key in the clear, so this also works for keys
// protected by a passphrase.
func PublicFromPrivate(data []byte) (ssh.PublicKey, error) {
	signer, err := ssh.ParsePrivateKey(data)
	if err == nil {
		return signer.PublicKey(), nil
	}
	var missing *ssh.PassphraseMissingError
	if errors.As(err, &missing) && missing.PublicKey != nil {
		return missing.PublicKey, nil
	}
	return nil, err
}

// RSABits returns the modulus length of an RSA public key.
func RSABits(pk ssh.PublicKey) (int, bool) {
	cpk, ok := pk.(ssh.CryptoPublicKey)
	if !ok {
		return 0, false
	}
	rsaKey, ok := cpk.CryptoPublicKey().(*rsa.PublicKey)
	if !ok {
		return 0, false
	}
	return rsaKey.N.BitLen(), true
}

// ParsePublicKey splits a public key line into its algorithm, base64 key data
// and comment. Leading authorized_keys options are skipped.
func ParsePublicKey(line string) (algorithm, keyData, comment string, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		err = fmt.Errorf("%w: empty line", ErrInvalidPublicKey)
		return
	}

	start := -1
	for i, field := range fields {
		if strings.HasPrefix(field, "ssh-") || strings.HasPrefix(field, "ecdsa-") {
			start = i
			break
		}
	}
	if start == -1 {
		err = fmt.Errorf("%w: no key algorithm found", ErrInvalidPublicKey)
		return
	}
	if len(fields) < start+2 {
		err = fmt.Errorf("%w: missing key data after algorithm", ErrInvalidPublicKey)
		return
	}

	algorithm = fields[start]
	keyData = fields[start+1]
	if len(fields) > start+2 {
		comment = strings.Join(fields[start+2:], " ")
	}
	return
}

// StripComment returns the public key line reduced to "algorithm keydata".
func StripComment(line string) (string, error) {
	algorithm, keyData, _, err := ParsePublicKey(line)
	if err != nil {
		return "", err
	}
	return algorithm + " " + keyData, nil
}
