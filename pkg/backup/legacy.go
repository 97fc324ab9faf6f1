package backup

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"filippo.io/age"
	"filippo.io/age/armor"
	"github.com/google/uuid"

	"github.com/forest6511/skm/pkg/sshkey"
)

// legacyMagic starts every binary age file.
const legacyMagic = "age-encryption.org/v1"

// isLegacy reports whether data is an age encrypted archive, and whether it
// is ASCII armored.
func isLegacy(data []byte) (legacy, armored bool) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	switch {
	case bytes.HasPrefix(trimmed, []byte(armor.Header)):
		return true, true
	case bytes.HasPrefix(data, []byte(legacyMagic)):
		return true, false
	default:
		return false, false
	}
}

// legacyArchive is the JSON document stored inside legacy age archives.
type legacyArchive struct {
	Metadata struct {
		Version     int       `json:"version"`
		CreatedAt   time.Time `json:"created_at"`
		Hostname    string    `json:"hostname"`
		Username    string    `json:"username"`
		KeyCount    int       `json:"key_count"`
		Description *string   `json:"description"`
	} `json:"metadata"`
	Keys []legacyEntry `json:"keys"`
}

type legacyEntry struct {
	Name       string      `json:"name"`
	KeyType    string      `json:"key_type"`
	Comment    *string     `json:"comment"`
	PrivateKey legacyBytes `json:"private_key"`
	PublicKey  legacyBytes `json:"public_key"`
}

// legacyBytes accepts byte strings serialised as arrays of numbers.
type legacyBytes []byte

func (b *legacyBytes) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*b = nil
		return nil
	}
	var nums []int
	if err := json.Unmarshal(data, &nums); err != nil {
		return err
	}
	out := make([]byte, len(nums))
	for i, n := range nums {
		if n < 0 || n > 255 {
			return fmt.Errorf("byte value %d out of range", n)
		}
		out[i] = byte(n)
	}
	*b = out
	return nil
}

// readLegacy decrypts an age/scrypt archive and converts it to an Archive.
func readLegacy(data, passphrase []byte) (*Archive, error) {
	identity, err := age.NewScryptIdentity(string(passphrase))
	if err != nil {
		return nil, fmt.Errorf("failed to create scrypt identity: %w", err)
	}

	var src io.Reader = bytes.NewReader(data)
	if _, armored := isLegacy(data); armored {
		src = armor.NewReader(bytes.NewReader(bytes.TrimLeft(data, " \t\r\n")))
	}

	r, err := age.Decrypt(src, identity)
	if err != nil {
		var noMatch *age.NoIdentityMatchError
		if errors.As(err, &noMatch) {
			return nil, ErrAuthentication
		}
		return nil, formatErr("legacy age header", err)
	}

	plaintext, err := io.ReadAll(r)
	if err != nil {
		// age authenticates every payload chunk; a failure here means tampering.
		return nil, ErrAuthentication
	}

	var la legacyArchive
	if err := json.Unmarshal(plaintext, &la); err != nil {
		return nil, formatErr("legacy archive decrypted but could not be decoded", err)
	}
	return convertLegacy(&la)
}

func convertLegacy(la *legacyArchive) (*Archive, error) {
	a := &Archive{
		FormatVersion: int(FormatVersion),
		ID:            uuid.New(),
		CreatedAt:     la.Metadata.CreatedAt.UTC(),
		Hostname:      la.Metadata.Hostname,
		Username:      la.Metadata.Username,
		Entries:       make([]*sshkey.Record, 0, len(la.Keys)),
	}
	if la.Metadata.Description != nil {
		a.Description = *la.Metadata.Description
	}

	for _, k := range la.Keys {
		kt, err := sshkey.ParseKeyType(k.KeyType)
		if err != nil {
			return nil, formatErr(fmt.Sprintf("legacy entry %q", k.Name), err)
		}
		if len(k.PublicKey) == 0 {
			return nil, formatErr(fmt.Sprintf("legacy entry %q has no public key", k.Name), nil)
		}

		rec := &sshkey.Record{
			Name:       k.Name,
			Type:       kt,
			PublicKey:  []byte(k.PublicKey),
			PrivateKey: []byte(k.PrivateKey),
		}
		if k.Comment != nil {
			rec.Comment = strings.TrimSpace(*k.Comment)
		}
		if kt == sshkey.RSA {
			if pk, _, err := sshkey.ParseAuthorizedKey(rec.PublicKey); err == nil {
				if bits, ok := sshkey.RSABits(pk); ok {
					rec.Bits = &bits
				}
			}
		}
		a.Entries = append(a.Entries, rec)
	}

	if err := validateEntries(a.Entries); err != nil {
		return nil, err
	}
	return a, nil
}
