// Package keydir reads and writes SSH key pairs in a key directory such as ~/.ssh.
//
// A key pair named NAME is stored as NAME (private key, mode 0600) and
// NAME.pub (public key, mode 0644). Files are written through a temporary
// file and a rename, so a crash never leaves a half-written key behind.
package keydir

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/forest6511/skm/pkg/backup"
	"github.com/forest6511/skm/pkg/sshkey"
)

const (
	// DirPerm is the mode used when creating a key directory.
	DirPerm = 0o700

	// PrivatePerm is the mode of private key files.
	PrivatePerm = 0o600

	// PublicPerm is the mode of public key files.
	PublicPerm = 0o644

	pubSuffix = ".pub"
)

// ErrKeyNotFound indicates no key pair with the given name exists.
var ErrKeyNotFound = errors.New("key not found")

// Status describes which halves of a key pair are present.
type Status int

const (
	StatusValid Status = iota
	StatusMissingPublic
	StatusMissingPrivate
	// StatusMismatched marks a pair whose public key file belongs to a
	// different private key.
	StatusMismatched
)

func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusMissingPublic:
		return "missing public"
	case StatusMissingPrivate:
		return "public only"
	case StatusMismatched:
		return "mismatched"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Key is a key pair found on disk.
type Key struct {
	Name        string
	PrivatePath string
	PublicPath  string
	Status      Status

	// Type, Fingerprint and Comment come from the public key, or from the
	// private key when the public file is missing.
	Type        sshkey.KeyType
	Bits        *int
	Fingerprint string
	Comment     string

	// PrivateFingerprint is derived from the private key file. It is empty
	// when there is none or it cannot be parsed.
	PrivateFingerprint string

	ModTime time.Time
	Size    int64
}

// Dir is a key directory.
type Dir struct {
	path string
}

// New returns a Dir rooted at path.
func New(path string) *Dir {
	return &Dir{path: path}
}

// Path returns the directory path.
func (d *Dir) Path() string {
	return d.path
}

// Ensure creates the directory with DirPerm if it does not exist.
func (d *Dir) Ensure() error {
	if err := os.MkdirAll(d.path, DirPerm); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}
	return nil
}

func (d *Dir) privatePath(name string) string {
	return filepath.Join(d.path, name)
}

func (d *Dir) publicPath(name string) string {
	return filepath.Join(d.path, name+pubSuffix)
}

// entry records which files of a name are present in the directory.
type entry struct {
	private bool
	public  bool
	listed  bool
}

// entries maps every valid key name with a file NAME or NAME.pub to the files
// present. Dotfiles, symlinks and private files that are not PEM encoded
// occupy their name but are not listed by Scan.
func (d *Dir) entries() (map[string]*entry, error) {
	dirents, err := os.ReadDir(d.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read key directory: %w", err)
	}

	out := make(map[string]*entry)
	for _, de := range dirents {
		if de.IsDir() {
			continue
		}
		file := de.Name()
		name := strings.TrimSuffix(file, pubSuffix)
		if sshkey.ValidateName(name) != nil {
			continue
		}
		e := out[name]
		if e == nil {
			e = &entry{}
			out[name] = e
		}

		listable := de.Type().IsRegular() && !strings.HasPrefix(name, ".")
		if file == name {
			e.private = true
			if listable && looksLikePrivateKey(d.privatePath(name)) {
				e.listed = true
			}
		} else {
			e.public = true
			if listable {
				e.listed = true
			}
		}
	}
	return out, nil
}

// Scan lists the key pairs in the directory, sorted by name. A missing
// directory yields an empty list.
func (d *Dir) Scan() ([]*Key, error) {
	ents, err := d.entries()
	if err != nil {
		return nil, err
	}

	keys := make([]*Key, 0, len(ents))
	for name, e := range ents {
		if e.listed {
			keys = append(keys, d.describe(name, e.private, e.public))
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Name < keys[j].Name })
	return keys, nil
}

// looksLikePrivateKey filters out stray files such as notes or scripts
// that sit next to keys.
func looksLikePrivateKey(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	buf := make([]byte, 64)
	n, _ := f.Read(buf)
	return strings.HasPrefix(strings.TrimSpace(string(buf[:n])), "-----BEGIN ")
}

func (d *Dir) describe(name string, hasPrivate, hasPublic bool) *Key {
	k := &Key{
		Name:        name,
		PrivatePath: d.privatePath(name),
		PublicPath:  d.publicPath(name),
	}
	switch {
	case hasPrivate && hasPublic:
		k.Status = StatusValid
	case hasPrivate:
		k.Status = StatusMissingPublic
	default:
		k.Status = StatusMissingPrivate
	}

	statPath := k.PrivatePath
	if !hasPrivate {
		statPath = k.PublicPath
	}
	if info, err := os.Stat(statPath); err == nil {
		k.ModTime = info.ModTime()
		k.Size = info.Size()
	}

	var pub, priv ssh.PublicKey
	if hasPublic {
		if data, err := os.ReadFile(k.PublicPath); err == nil {
			pub, k.Comment, _ = sshkey.ParseAuthorizedKey(data)
		}
	}
	if hasPrivate {
		if data, err := os.ReadFile(k.PrivatePath); err == nil {
			priv, _ = sshkey.PublicFromPrivate(data)
		}
	}
	if priv != nil {
		k.PrivateFingerprint = ssh.FingerprintSHA256(priv)
	}

	pk := pub
	if pk == nil {
		pk = priv
	}
	if pk != nil {
		k.Fingerprint = ssh.FingerprintSHA256(pk)
		if kt, err := sshkey.ParseKeyType(pk.Type()); err == nil {
			k.Type = kt
		}
		if bits, ok := sshkey.RSABits(pk); ok {
			k.Bits = &bits
		}
	}
	if pub != nil && priv != nil && k.Fingerprint != k.PrivateFingerprint {
		k.Status = StatusMismatched
	}
	return k
}

// Find returns the key pair with the given name.
func (d *Dir) Find(name string) (*Key, error) {
	if err := sshkey.ValidateName(name); err != nil {
		return nil, err
	}
	hasPrivate := fileExists(d.privatePath(name))
	hasPublic := fileExists(d.publicPath(name))
	if !hasPrivate && !hasPublic {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, name)
	}
	return d.describe(name, hasPrivate, hasPublic), nil
}

// ListExisting implements backup.KeyLister. It reports every name WriteKey
// would replace, whatever the files hold. Names Scan does not list are
// marked Hidden.
func (d *Dir) ListExisting() ([]backup.ExistingKey, error) {
	ents, err := d.entries()
	if err != nil {
		return nil, err
	}
	out := make([]backup.ExistingKey, 0, len(ents))
	for name, e := range ents {
		k := d.describe(name, e.private, e.public)
		out = append(out, backup.ExistingKey{
			Name:               name,
			Fingerprint:        k.Fingerprint,
			HasPrivate:         e.private,
			PrivateFingerprint: k.PrivateFingerprint,
			Hidden:             !e.listed,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ReadKey loads a key pair as a record. When the public key file is missing
// it is derived from the private key.
func (d *Dir) ReadKey(name string) (*sshkey.Record, error) {
	k, err := d.Find(name)
	if err != nil {
		return nil, err
	}

	rec := &sshkey.Record{Name: name}
	if k.Status != StatusMissingPrivate {
		if rec.PrivateKey, err = os.ReadFile(k.PrivatePath); err != nil {
			return nil, fmt.Errorf("failed to read private key: %w", err)
		}
	}

	if k.Status != StatusMissingPublic {
		if rec.PublicKey, err = os.ReadFile(k.PublicPath); err != nil {
			return nil, fmt.Errorf("failed to read public key: %w", err)
		}
	} else {
		pk, err := sshkey.PublicFromPrivate(rec.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("%s has no public key and it cannot be derived from the private key: %w", name, err)
		}
		rec.PublicKey = ssh.MarshalAuthorizedKey(pk)
	}

	pk, comment, err := sshkey.ParseAuthorizedKey(rec.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if rec.Type, err = sshkey.ParseKeyType(pk.Type()); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if bits, ok := sshkey.RSABits(pk); ok {
		rec.Bits = &bits
	}
	rec.Comment = comment
	return rec, nil
}

// WriteKey writes a key pair. The public key is always written; the private
// key only when the record carries one. A public-only record therefore never
// creates, replaces or removes a private key file.
func (d *Dir) WriteKey(name string, rec *sshkey.Record) error {
	if err := sshkey.ValidateName(name); err != nil {
		return err
	}
	if err := d.Ensure(); err != nil {
		return err
	}

	if !rec.PublicOnly() {
		if err := writeFileAtomic(d.privatePath(name), rec.PrivateKey, PrivatePerm); err != nil {
			return fmt.Errorf("failed to write private key: %w", err)
		}
	}

	public := rec.PublicKey
	if len(public) > 0 && public[len(public)-1] != '\n' {
		public = append(append([]byte{}, public...), '\n')
	}
	if err := writeFileAtomic(d.publicPath(name), public, PublicPerm); err != nil {
		return fmt.Errorf("failed to write public key: %w", err)
	}
	return nil
}

// Delete removes both files of a key pair.
func (d *Dir) Delete(name string) error {
	k, err := d.Find(name)
	if err != nil {
		return err
	}
	for _, p := range []string{k.PrivatePath, k.PublicPath} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to delete %s: %w", filepath.Base(p), err)
		}
	}
	return nil
}

// Exists reports whether either file of the key pair exists.
func (d *Dir) Exists(name string) bool {
	return fileExists(d.privatePath(name)) || fileExists(d.publicPath(name))
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// writeFileAtomic writes data to a temporary file in the same directory and
// renames it over path.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	tmpName = ""
	return nil
}

var (
	_ backup.KeySource = (*Dir)(nil)
	_ backup.KeyStore  = (*Dir)(nil)
)
