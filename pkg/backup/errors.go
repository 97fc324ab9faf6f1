// Package backup implements skm's encrypted key archive and the import
// merge resolver.
package backup

import (
	"errors"
	"fmt"
	"strings"
)

// Backup/Import errors
var (
	// ErrFormat indicates a malformed or unsupported container or archive.
	ErrFormat = errors.New("invalid backup archive")

	// ErrAuthentication indicates a wrong passphrase or tampered archive.
	// The two cases are deliberately indistinguishable.
	ErrAuthentication = errors.New("backup authentication failed: wrong passphrase or corrupted archive")

	// ErrConflictResolution indicates the merge strategy cannot resolve a name conflict.
	ErrConflictResolution = errors.New("import conflict cannot be resolved")

	// ErrStorage indicates an I/O failure reading or writing a key.
	ErrStorage = errors.New("key storage error")

	// ErrRequestedKeyNotFound indicates an export asked for a key that does not exist.
	ErrRequestedKeyNotFound = errors.New("requested key not found")

	// ErrEmptyPassphrase indicates an empty passphrase was provided.
	ErrEmptyPassphrase = errors.New("passphrase cannot be empty")

	// ErrNoKeys indicates an export with nothing to export.
	ErrNoKeys = errors.New("no keys to export")

	// ErrInvalidMagic indicates the data does not start with the archive magic.
	ErrInvalidMagic = errors.New("magic number mismatch")

	// ErrUnsupportedVersion indicates a format version this build does not understand.
	ErrUnsupportedVersion = errors.New("unsupported backup format version")

	// ErrTruncated indicates the container or payload ends early.
	ErrTruncated = errors.New("backup data truncated")

	// ErrDuplicateName indicates two archive entries share a name.
	ErrDuplicateName = errors.New("duplicate key name")

	// ErrKeyMismatch indicates a public key that does not belong to the
	// private key stored under the same name.
	ErrKeyMismatch = errors.New("public key does not match the existing private key")
)

// FormatError describes why a container or payload was rejected.
// It matches ErrFormat as well as its underlying cause with errors.Is.
type FormatError struct {
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v: %s", ErrFormat, e.Reason)
	}
	return fmt.Sprintf("%v: %s: %v", ErrFormat, e.Reason, e.Err)
}

func (e *FormatError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrFormat}
	}
	return []error{ErrFormat, e.Err}
}

func formatErr(reason string, err error) error {
	return &FormatError{Reason: reason, Err: err}
}

// StorageError records a failure to read or write one key.
type StorageError struct {
	Name string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

func (e *StorageError) Unwrap() []error {
	return []error{ErrStorage, e.Err}
}

// KeyNotFoundError lists the requested names that are absent from storage.
type KeyNotFoundError struct {
	Names []string
}

func (e *KeyNotFoundError) Error() string {
	return fmt.Sprintf("%v: %s", ErrRequestedKeyNotFound, strings.Join(e.Names, ", "))
}

func (e *KeyNotFoundError) Is(target error) bool {
	return target == ErrRequestedKeyNotFound
}
