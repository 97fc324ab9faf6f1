// Package keygen generates new SSH key pairs as sshkey records.
package keygen

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/forest6511/skm/pkg/sshkey"
)

const (
	// DefaultRSABits is used when no RSA size is requested.
	DefaultRSABits = 4096

	// MinRSABits is the smallest RSA key accepted.
	MinRSABits = 2048

	// MaxRSABits bounds generation time.
	MaxRSABits = 16384
)

// ErrInvalidBits indicates an unusable key size.
var ErrInvalidBits = errors.New("invalid key size")

// Options configures key generation.
type Options struct {
	// Name is the private key file name. Empty uses the type's default filename.
	Name string

	// Type defaults to Ed25519.
	Type sshkey.KeyType

	// Bits is the RSA modulus length. Zero uses DefaultRSABits.
	Bits int

	// Comment is appended to the public key line.
	Comment string

	// Passphrase, when set, encrypts the private key file.
	Passphrase []byte
}

// Generate creates a new key pair.
func Generate(opts Options) (*sshkey.Record, error) {
	if opts.Type == 0 {
		opts.Type = sshkey.Ed25519
	}
	if opts.Name == "" {
		opts.Name = opts.Type.DefaultFilename()
	}
	if err := sshkey.ValidateName(opts.Name); err != nil {
		return nil, err
	}

	var (
		signer crypto.Signer
		pub    crypto.PublicKey
		bits   *int
	)
	switch opts.Type {
	case sshkey.Ed25519:
		if opts.Bits != 0 {
			return nil, fmt.Errorf("%w: bits cannot be set for %s keys", ErrInvalidBits, opts.Type)
		}
		edPub, edPriv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to generate ed25519 key: %w", err)
		}
		signer, pub = edPriv, edPub
	case sshkey.RSA:
		n := opts.Bits
		if n == 0 {
			n = DefaultRSABits
		}
		if n < MinRSABits || n > MaxRSABits {
			return nil, fmt.Errorf("%w: %d (must be between %d and %d)", ErrInvalidBits, n, MinRSABits, MaxRSABits)
		}
		rsaPriv, err := rsa.GenerateKey(rand.Reader, n)
		if err != nil {
			return nil, fmt.Errorf("failed to generate rsa key: %w", err)
		}
		signer, pub = rsaPriv, &rsaPriv.PublicKey
		bits = &n
	default:
		return nil, fmt.Errorf("%w: %v", sshkey.ErrUnsupportedKeyType, opts.Type)
	}

	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to encode public key: %w", err)
	}

	var block *pem.Block
	if len(opts.Passphrase) > 0 {
		block, err = ssh.MarshalPrivateKeyWithPassphrase(signer, opts.Comment, opts.Passphrase)
	} else {
		block, err = ssh.MarshalPrivateKey(signer, opts.Comment)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode private key: %w", err)
	}

	return &sshkey.Record{
		Name:       opts.Name,
		Type:       opts.Type,
		Bits:       bits,
		Comment:    opts.Comment,
		PublicKey:  AuthorizedLine(sshPub, opts.Comment),
		PrivateKey: pem.EncodeToMemory(block),
	}, nil
}

// AuthorizedLine formats a public key as a .pub file line.
func AuthorizedLine(pk ssh.PublicKey, comment string) []byte {
	line := strings.TrimSuffix(string(ssh.MarshalAuthorizedKey(pk)), "\n")
	if comment = strings.TrimSpace(comment); comment != "" {
		line += " " + comment
	}
	return []byte(line + "\n")
}
