package backup

import (
	"context"
	"fmt"
	"sort"

	"github.com/forest6511/skm/pkg/crypto"
	"github.com/forest6511/skm/pkg/sshkey"
)

// KeyLister reports the keys present in a key directory. ListExisting must
// report every name that WriteKey would replace.
type KeyLister interface {
	ListExisting() ([]ExistingKey, error)
}

// KeySource is read during export.
type KeySource interface {
	KeyLister
	ReadKey(name string) (*sshkey.Record, error)
}

// KeyStore is the import destination.
//
// WriteKey must not create, modify or remove a private key file when the
// record is public-only. Import never hands it a public-only record whose key
// differs from a private key already stored under the target name.
type KeyStore interface {
	KeyLister
	WriteKey(name string, rec *sshkey.Record) error
}

// ExportOptions configures an export.
type ExportOptions struct {
	// Names restricts the export to these keys, in this order. Empty exports all keys.
	Names []string

	// PublicOnly drops private key material from every entry.
	PublicOnly bool

	// Description is stored in the archive.
	Description string

	// Params overrides the key derivation cost. Nil uses the production parameters.
	Params *crypto.Params

	// Logger receives progress messages. Nil discards them.
	Logger Logger
}

// ExportResult contains the produced container and the archive it holds.
type ExportResult struct {
	// Data is the encrypted container.
	Data []byte

	// Archive is the archive that was encrypted.
	Archive *Archive
}

// ImportOptions configures an import.
type ImportOptions struct {
	// Strategy resolves name collisions. It is required.
	Strategy Strategy

	// DryRun computes and returns the plan without writing anything.
	DryRun bool

	// Params overrides the key derivation cost. Nil uses the production parameters.
	Params *crypto.Params

	// Logger receives progress messages. Nil discards them.
	Logger Logger
}

// ImportResult contains the outcome of an import.
type ImportResult struct {
	// Archive is the decoded archive.
	Archive *Archive

	// Plan is the resolved plan. It is identical for dry and real runs.
	Plan *ImportPlan

	// DryRun reports whether storage was left untouched.
	DryRun bool

	// Applied lists entries written to storage.
	Applied []PlanEntry

	// Skipped lists entries left out by the Skip strategy.
	Skipped []PlanEntry

	// Failed lists per-entry storage errors.
	Failed []*StorageError
}

// Partial reports whether some entries could not be written.
func (r *ImportResult) Partial() bool {
	return len(r.Failed) > 0
}

// Export reads keys from src and returns an encrypted container.
//
// Requested names are checked against src.ListExisting before any key is
// read, so a missing key aborts the export without a partial archive.
// Duplicate requested names are collapsed, keeping the first occurrence.
func Export(ctx context.Context, src KeySource, passphrase []byte, opts ExportOptions) (*ExportResult, error) {
	log := orNop(opts.Logger)

	if len(passphrase) == 0 {
		return nil, ErrEmptyPassphrase
	}

	existing, err := src.ListExisting()
	if err != nil {
		return nil, &StorageError{Name: "key directory", Err: err}
	}

	names, err := selectNames(existing, opts.Names)
	if err != nil {
		return nil, err
	}

	records := make([]*sshkey.Record, 0, len(names))
	for _, name := range names {
		rec, err := src.ReadKey(name)
		if err != nil {
			return nil, &StorageError{Name: name, Err: err}
		}
		if opts.PublicOnly {
			rec = rec.WithoutPrivate()
		}
		log.Debug(ctx, "collected key", "key", rec)
		records = append(records, rec)
	}

	data, archive, err := ExportRecords(records, passphrase, opts.Description, opts.Params)
	if err != nil {
		return nil, err
	}

	log.Info(ctx, "archive created",
		"archive_id", archive.ID.String(),
		"keys", len(archive.Entries),
		"public_only", archive.PublicOnlyCount(),
		"bytes", len(data))
	return &ExportResult{Data: data, Archive: archive}, nil
}

// ExportRecords packages in-memory records into an encrypted container.
// Records with a name already seen are dropped, keeping the first.
func ExportRecords(records []*sshkey.Record, passphrase []byte, description string, params *crypto.Params) ([]byte, *Archive, error) {
	if len(records) == 0 {
		return nil, nil, ErrNoKeys
	}

	seen := make(map[string]bool, len(records))
	entries := make([]*sshkey.Record, 0, len(records))
	for _, rec := range records {
		if seen[rec.Name] {
			continue
		}
		seen[rec.Name] = true
		entries = append(entries, rec)
	}

	archive := NewArchive(entries, description)
	data, err := WriteContainer(archive, passphrase, params)
	if err != nil {
		return nil, nil, err
	}
	return data, archive, nil
}

func selectNames(existing []ExistingKey, requested []string) ([]string, error) {
	if len(requested) == 0 {
		names := make([]string, 0, len(existing))
		for _, k := range existing {
			if !k.Hidden {
				names = append(names, k.Name)
			}
		}
		sort.Strings(names)
		if len(names) == 0 {
			return nil, ErrNoKeys
		}
		return names, nil
	}

	present := make(map[string]bool, len(existing))
	for _, k := range existing {
		present[k.Name] = true
	}

	var missing []string
	seen := make(map[string]bool, len(requested))
	names := make([]string, 0, len(requested))
	for _, name := range requested {
		if seen[name] {
			continue
		}
		seen[name] = true
		if !present[name] {
			missing = append(missing, name)
			continue
		}
		names = append(names, name)
	}
	if len(missing) > 0 {
		return nil, &KeyNotFoundError{Names: missing}
	}
	return names, nil
}

// Import decrypts a container and merges its entries into dst.
//
// Crypto and format errors abort before anything is written. During apply,
// storage errors are collected per entry and the remaining entries are still
// attempted; entries already written stay in place.
func Import(ctx context.Context, data []byte, dst KeyStore, passphrase []byte, opts ImportOptions) (*ImportResult, error) {
	log := orNop(opts.Logger)

	// Reject a bad strategy before the expensive key derivation.
	if !opts.Strategy.Valid() {
		_, err := Resolve(nil, nil, opts.Strategy)
		return nil, err
	}

	archive, err := ReadContainer(data, passphrase, opts.Params)
	if err != nil {
		return nil, err
	}
	log.Debug(ctx, "archive decrypted",
		"archive_id", archive.ID.String(),
		"created_at", archive.CreatedAt,
		"keys", len(archive.Entries))

	existing, err := dst.ListExisting()
	if err != nil {
		return nil, &StorageError{Name: "key directory", Err: err}
	}

	plan, err := Resolve(archive.Entries, existing, opts.Strategy)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{Archive: archive, Plan: plan, DryRun: opts.DryRun}
	if opts.DryRun {
		return result, nil
	}

	for _, pe := range plan.Entries {
		if pe.Decision == DecisionSkip {
			log.Debug(ctx, "skipping existing key", "key", pe.Entry, "identical", pe.Identical)
			result.Skipped = append(result.Skipped, pe)
			continue
		}

		if err := checkPairMatch(pe); err != nil {
			log.Warn(ctx, "refusing to write key", "name", pe.Target, "error", err)
			result.Failed = append(result.Failed, &StorageError{Name: pe.Target, Err: err})
			continue
		}

		rec := pe.Entry.Clone()
		rec.Name = pe.Target
		if err := dst.WriteKey(pe.Target, rec); err != nil {
			log.Warn(ctx, "failed to write key", "name", pe.Target, "error", err)
			result.Failed = append(result.Failed, &StorageError{Name: pe.Target, Err: err})
			continue
		}
		log.Debug(ctx, "wrote key", "key", rec, "decision", pe.Decision.String())
		result.Applied = append(result.Applied, pe)
	}

	log.Info(ctx, "import finished",
		"applied", len(result.Applied),
		"skipped", len(result.Skipped),
		"failed", len(result.Failed))
	return result, nil
}

// checkPairMatch rejects a public-only entry that would be written next to an
// existing private key of a different key pair. A private key whose public
// half cannot be derived counts as a mismatch.
func checkPairMatch(pe PlanEntry) error {
	if !pe.Entry.PublicOnly() || pe.Conflict == nil || !pe.Conflict.HasPrivate || pe.Target != pe.Conflict.Name {
		return nil
	}
	fp, err := pe.Entry.Fingerprint()
	if err != nil {
		return err
	}
	if pe.Conflict.PrivateFingerprint == "" || fp != pe.Conflict.PrivateFingerprint {
		return fmt.Errorf("%w: %s", ErrKeyMismatch, pe.Target)
	}
	return nil
}
