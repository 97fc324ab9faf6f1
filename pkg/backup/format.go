package backup

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/forest6511/skm/pkg/crypto"
)

// Magic number for archive files: "SKMBACKUP"
var Magic = [9]byte{'S', 'K', 'M', 'B', 'A', 'C', 'K', 'U', 'P'}

// FormatVersion is the container and payload version written by this build.
const FormatVersion uint16 = 1

// Extension is the conventional archive file extension.
const Extension = ".skm"

const (
	versionOffset = len(Magic)
	saltOffset    = versionOffset + 2
	nonceOffset   = saltOffset + crypto.SaltLength

	// HeaderSize is the length of the fixed container header.
	HeaderSize = nonceOffset + crypto.NonceLength

	// gcmTagSize is the minimum ciphertext length.
	gcmTagSize = 16
)

// Header is the unencrypted prefix of a container. All of it is
// authenticated as associated data.
type Header struct {
	Version uint16
	Salt    []byte
	Nonce   []byte
}

// MarshalBinary encodes the header.
func (h *Header) MarshalBinary() ([]byte, error) {
	if len(h.Salt) != crypto.SaltLength {
		return nil, fmt.Errorf("header salt must be %d bytes, got %d", crypto.SaltLength, len(h.Salt))
	}
	if len(h.Nonce) != crypto.NonceLength {
		return nil, fmt.Errorf("header nonce must be %d bytes, got %d", crypto.NonceLength, len(h.Nonce))
	}

	buf := make([]byte, 0, HeaderSize)
	buf = append(buf, Magic[:]...)
	buf = binary.BigEndian.AppendUint16(buf, h.Version)
	buf = append(buf, h.Salt...)
	buf = append(buf, h.Nonce...)
	return buf, nil
}

// ParseHeader validates the container framing and splits off the ciphertext.
//
// The version is checked before the remaining length so that archives from
// a newer release are reported as unsupported rather than truncated.
func ParseHeader(data []byte) (*Header, []byte, error) {
	if len(data) < len(Magic) {
		if bytes.HasPrefix(Magic[:], data) {
			return nil, nil, formatErr("container header", ErrTruncated)
		}
		return nil, nil, formatErr("container header", ErrInvalidMagic)
	}
	if !bytes.Equal(data[:len(Magic)], Magic[:]) {
		return nil, nil, formatErr("container header", ErrInvalidMagic)
	}
	if len(data) < saltOffset {
		return nil, nil, formatErr("container header", ErrTruncated)
	}

	version := binary.BigEndian.Uint16(data[versionOffset:saltOffset])
	if version != FormatVersion {
		return nil, nil, formatErr(fmt.Sprintf("container version %d, supported %d", version, FormatVersion), ErrUnsupportedVersion)
	}

	if len(data) < HeaderSize+gcmTagSize {
		return nil, nil, formatErr("container body", ErrTruncated)
	}

	h := &Header{
		Version: version,
		Salt:    bytes.Clone(data[saltOffset:nonceOffset]),
		Nonce:   bytes.Clone(data[nonceOffset:HeaderSize]),
	}
	return h, data[HeaderSize:], nil
}

// kdfParams returns the key derivation parameters bound to a format version.
func kdfParams(version uint16) (crypto.Params, error) {
	switch version {
	case 1:
		return crypto.DefaultParams(), nil
	default:
		return crypto.Params{}, formatErr(fmt.Sprintf("no key derivation parameters for version %d", version), ErrUnsupportedVersion)
	}
}

// Kind identifies the container family of an archive file.
type Kind string

const (
	// KindSKM is the native SKMBACKUP container.
	KindSKM Kind = "skm"
	// KindLegacyAge is the earlier age/scrypt encrypted JSON format.
	KindLegacyAge Kind = "age"
)

// Info describes an archive without decrypting it.
type Info struct {
	Kind           Kind
	Version        uint16
	Size           int
	CiphertextSize int
	Armored        bool
}

// Inspect reports container details without a passphrase.
func Inspect(data []byte) (*Info, error) {
	if legacy, armored := isLegacy(data); legacy {
		return &Info{Kind: KindLegacyAge, Size: len(data), Armored: armored}, nil
	}

	h, ct, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}
	return &Info{
		Kind:           KindSKM,
		Version:        h.Version,
		Size:           len(data),
		CiphertextSize: len(ct),
	}, nil
}
