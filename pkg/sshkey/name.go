package sshkey

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// MaxNameLength is the longest accepted key name in bytes.
const MaxNameLength = 255

// nonKeyFiles are files commonly found in ~/.ssh that are not key pairs.
var nonKeyFiles = map[string]bool{
	"authorized_keys":  true,
	"authorized_keys2": true,
	"known_hosts":      true,
	"known_hosts.old":  true,
	"config":           true,
}

// IsReservedName reports whether name belongs to a well-known non-key file
// in an SSH directory.
func IsReservedName(name string) bool {
	return nonKeyFiles[name] || strings.HasPrefix(name, "agent.")
}

// ValidateName checks that name can safely be used as a key file name.
//
// Names must be NFC-normalised, contain no path separators or control
// characters, must not end in ".pub" and must not collide with a reserved
// SSH directory file.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty", ErrInvalidName)
	case len(name) > MaxNameLength:
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidName, MaxNameLength)
	case name == "." || name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	case strings.HasSuffix(name, ".pub"):
		return fmt.Errorf("%w: %q ends in .pub", ErrInvalidName, name)
	case IsReservedName(name):
		return fmt.Errorf("%w: %q is a reserved file name", ErrInvalidName, name)
	case !norm.NFC.IsNormalString(name):
		return fmt.Errorf("%w: %q is not NFC-normalised", ErrInvalidName, name)
	}

	for _, r := range name {
		if unicode.IsControl(r) || r == unicode.ReplacementChar {
			return fmt.Errorf("%w: %q contains a control or invalid character", ErrInvalidName, name)
		}
	}
	return nil
}

// NormalizeName returns the NFC form of a user supplied name with
// surrounding whitespace removed.
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}
