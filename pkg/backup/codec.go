package backup

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/user"
	"time"

	"github.com/google/uuid"

	"github.com/forest6511/skm/pkg/sshkey"
)

// Archive is the decrypted logical content of a backup.
type Archive struct {
	// FormatVersion is the payload version; only FormatVersion is understood.
	FormatVersion int

	// ID uniquely identifies the archive.
	ID uuid.UUID

	// CreatedAt is the creation time, stored in UTC.
	CreatedAt time.Time

	// Hostname and Username describe where the archive was produced.
	Hostname string
	Username string

	// Description is optional free text supplied at export.
	Description string

	// Entries in export order. Names are unique.
	Entries []*sshkey.Record
}

// NewArchive builds an archive stamped with a fresh ID, the current time and
// the local host and user names.
func NewArchive(entries []*sshkey.Record, description string) *Archive {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return &Archive{
		FormatVersion: int(FormatVersion),
		ID:            uuid.New(),
		CreatedAt:     time.Now().UTC(),
		Hostname:      hostname,
		Username:      currentUsername(),
		Description:   description,
		Entries:       entries,
	}
}

func currentUsername() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	for _, env := range []string{"USER", "USERNAME"} {
		if v := os.Getenv(env); v != "" {
			return v
		}
	}
	return "unknown"
}

// PublicOnlyCount returns the number of entries without private key material.
func (a *Archive) PublicOnlyCount() int {
	n := 0
	for _, e := range a.Entries {
		if e.PublicOnly() {
			n++
		}
	}
	return n
}

// archivePayload is the version 1 wire form. Field order is the encoding order.
type archivePayload struct {
	FormatVersion int            `json:"format_version"`
	ArchiveID     string         `json:"archive_id"`
	CreatedAt     string         `json:"created_at"`
	Hostname      string         `json:"hostname"`
	Username      string         `json:"username"`
	Description   string         `json:"description,omitempty"`
	Entries       []entryPayload `json:"entries"`
}

type entryPayload struct {
	Name       string         `json:"name"`
	KeyType    sshkey.KeyType `json:"key_type"`
	Bits       *int           `json:"bits,omitempty"`
	Comment    string         `json:"comment,omitempty"`
	PublicKey  []byte         `json:"public_key"`
	PrivateKey []byte         `json:"private_key,omitempty"`
}

// Encode serialises the archive to its canonical payload bytes.
//
// Encoding is deterministic: the same Archive value always produces the same
// bytes, and Decode followed by Encode reproduces them exactly.
func Encode(a *Archive) ([]byte, error) {
	if a.FormatVersion != int(FormatVersion) {
		return nil, formatErr(fmt.Sprintf("cannot encode payload version %d", a.FormatVersion), ErrUnsupportedVersion)
	}
	if err := validateEntries(a.Entries); err != nil {
		return nil, err
	}

	p := archivePayload{
		FormatVersion: a.FormatVersion,
		ArchiveID:     a.ID.String(),
		CreatedAt:     a.CreatedAt.UTC().Format(time.RFC3339Nano),
		Hostname:      a.Hostname,
		Username:      a.Username,
		Description:   a.Description,
		Entries:       make([]entryPayload, 0, len(a.Entries)),
	}
	for _, rec := range a.Entries {
		p.Entries = append(p.Entries, entryPayload{
			Name:       rec.Name,
			KeyType:    rec.Type,
			Bits:       rec.Bits,
			Comment:    rec.Comment,
			PublicKey:  rec.PublicKey,
			PrivateKey: rec.PrivateKey,
		})
	}

	data, err := json.Marshal(&p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal archive: %w", err)
	}
	return data, nil
}

// Decode parses payload bytes. Unknown versions, truncated input, unknown
// fields, invalid names and duplicate names are rejected.
func Decode(data []byte) (*Archive, error) {
	// Peek at the version first so a newer payload is reported as such
	// instead of as a schema mismatch.
	var peek struct {
		FormatVersion *int `json:"format_version"`
	}
	if err := decodeStrict(data, &peek, false); err != nil {
		return nil, err
	}
	if peek.FormatVersion == nil {
		return nil, formatErr("payload has no format_version", nil)
	}
	if *peek.FormatVersion != int(FormatVersion) {
		return nil, formatErr(fmt.Sprintf("payload version %d, supported %d", *peek.FormatVersion, FormatVersion), ErrUnsupportedVersion)
	}

	var p archivePayload
	if err := decodeStrict(data, &p, true); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(p.ArchiveID)
	if err != nil {
		return nil, formatErr("invalid archive_id", err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, p.CreatedAt)
	if err != nil {
		return nil, formatErr("invalid created_at", err)
	}

	a := &Archive{
		FormatVersion: p.FormatVersion,
		ID:            id,
		CreatedAt:     createdAt.UTC(),
		Hostname:      p.Hostname,
		Username:      p.Username,
		Description:   p.Description,
		Entries:       make([]*sshkey.Record, 0, len(p.Entries)),
	}
	for _, e := range p.Entries {
		a.Entries = append(a.Entries, &sshkey.Record{
			Name:       e.Name,
			Type:       e.KeyType,
			Bits:       e.Bits,
			Comment:    e.Comment,
			PublicKey:  e.PublicKey,
			PrivateKey: e.PrivateKey,
		})
	}
	if err := validateEntries(a.Entries); err != nil {
		return nil, err
	}
	return a, nil
}

func decodeStrict(data []byte, v any, disallowUnknown bool) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if disallowUnknown {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return formatErr("payload", ErrTruncated)
		}
		return formatErr("malformed payload", err)
	}
	if dec.More() {
		return formatErr("trailing data after payload", nil)
	}
	return nil
}

func validateEntries(entries []*sshkey.Record) error {
	seen := make(map[string]struct{}, len(entries))
	for i, rec := range entries {
		if rec == nil {
			return formatErr(fmt.Sprintf("entry %d is empty", i), nil)
		}
		if _, dup := seen[rec.Name]; dup {
			return formatErr(fmt.Sprintf("entry %q", rec.Name), ErrDuplicateName)
		}
		seen[rec.Name] = struct{}{}
		if err := rec.Validate(); err != nil {
			return formatErr(fmt.Sprintf("entry %d", i), err)
		}
	}
	return nil
}
