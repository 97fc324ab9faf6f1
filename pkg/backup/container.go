package backup

import (
	"errors"

	"github.com/forest6511/skm/pkg/crypto"
)

// WriteContainer encodes and encrypts an archive with a fresh salt and nonce.
//
// params overrides the key derivation cost and is meant for tests; nil uses
// the parameters bound to FormatVersion.
func WriteContainer(a *Archive, passphrase []byte, params *crypto.Params) ([]byte, error) {
	if len(passphrase) == 0 {
		return nil, ErrEmptyPassphrase
	}

	plaintext, err := Encode(a)
	if err != nil {
		return nil, err
	}
	defer crypto.SecureWipe(plaintext)

	salt, err := crypto.GenerateSalt()
	if err != nil {
		return nil, err
	}
	nonce, err := crypto.GenerateNonce()
	if err != nil {
		return nil, err
	}

	h := &Header{Version: FormatVersion, Salt: salt, Nonce: nonce}
	header, err := h.MarshalBinary()
	if err != nil {
		return nil, err
	}

	p, err := resolveParams(FormatVersion, params)
	if err != nil {
		return nil, err
	}
	key := crypto.DeriveKeyWithParams(passphrase, salt, p)
	defer crypto.SecureWipe(key)

	ciphertext, err := crypto.Encrypt(key, nonce, plaintext, header)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(header)+len(ciphertext))
	out = append(out, header...)
	out = append(out, ciphertext...)
	return out, nil
}

// ReadContainer decrypts and decodes an archive.
//
// Framing problems yield a *FormatError. A wrong passphrase and any tampering
// with the header or ciphertext both yield ErrAuthentication. A payload that
// decrypts but does not decode yields a *FormatError noting that the archive
// was probably produced by a different skm version.
//
// Archives in the legacy age format are detected and read transparently.
func ReadContainer(data, passphrase []byte, params *crypto.Params) (*Archive, error) {
	if len(passphrase) == 0 {
		return nil, ErrEmptyPassphrase
	}
	if legacy, _ := isLegacy(data); legacy {
		return readLegacy(data, passphrase)
	}

	h, ciphertext, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}
	p, err := resolveParams(h.Version, params)
	if err != nil {
		return nil, err
	}

	key := crypto.DeriveKeyWithParams(passphrase, h.Salt, p)
	defer crypto.SecureWipe(key)

	plaintext, err := crypto.Decrypt(key, h.Nonce, ciphertext, data[:HeaderSize])
	if err != nil {
		if errors.Is(err, crypto.ErrDecryptionFailed) {
			return nil, ErrAuthentication
		}
		return nil, err
	}
	defer crypto.SecureWipe(plaintext)

	a, err := Decode(plaintext)
	if err != nil {
		return nil, formatErr("archive decrypted but could not be decoded; it may have been written by a different skm version", err)
	}
	return a, nil
}

func resolveParams(version uint16, override *crypto.Params) (crypto.Params, error) {
	if override != nil {
		return *override, nil
	}
	return kdfParams(version)
}
