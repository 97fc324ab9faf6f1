package backup

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/forest6511/skm/pkg/crypto"
	"github.com/forest6511/skm/pkg/keygen"
	"github.com/forest6511/skm/pkg/sshkey"
)

// testParams keeps Argon2id cheap in tests.
var testParams = &crypto.Params{Memory: 64, Time: 1, Threads: 1}

var testPassphrase = []byte("correct horse battery staple")

func genKey(t *testing.T, name, comment string) *sshkey.Record {
	t.Helper()
	rec, err := keygen.Generate(keygen.Options{Name: name, Comment: comment})
	require.NoError(t, err)
	return rec
}

// memStore is an in-memory key directory. Public-only writes never touch
// the private half of an existing key.
type memStore struct {
	keys      map[string]*sshkey.Record
	failWrite map[string]error
	failList  error
	writes    int
}

func newMemStore(recs ...*sshkey.Record) *memStore {
	s := &memStore{keys: map[string]*sshkey.Record{}, failWrite: map[string]error{}}
	for _, r := range recs {
		s.keys[r.Name] = r.Clone()
	}
	return s
}

func (s *memStore) ListExisting() ([]ExistingKey, error) {
	if s.failList != nil {
		return nil, s.failList
	}
	out := make([]ExistingKey, 0, len(s.keys))
	for name, rec := range s.keys {
		fp, _ := rec.Fingerprint()
		k := ExistingKey{Name: name, Fingerprint: fp, HasPrivate: !rec.PublicOnly()}
		if k.HasPrivate {
			if pk, err := sshkey.PublicFromPrivate(rec.PrivateKey); err == nil {
				k.PrivateFingerprint = ssh.FingerprintSHA256(pk)
			}
		}
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memStore) ReadKey(name string) (*sshkey.Record, error) {
	rec, ok := s.keys[name]
	if !ok {
		return nil, errors.New("no such key")
	}
	return rec.Clone(), nil
}

func (s *memStore) WriteKey(name string, rec *sshkey.Record) error {
	if err := s.failWrite[name]; err != nil {
		return err
	}
	s.writes++
	c := rec.Clone()
	c.Name = name
	if c.PublicOnly() {
		if old, ok := s.keys[name]; ok {
			c.PrivateKey = old.PrivateKey
		}
	}
	s.keys[name] = c
	return nil
}

// recordingLogger keeps the messages it receives.
type recordingLogger struct {
	msgs []string
}

func (l *recordingLogger) Debug(_ context.Context, msg string, _ ...any) {
	l.msgs = append(l.msgs, "debug: "+msg)
}

func (l *recordingLogger) Info(_ context.Context, msg string, _ ...any) {
	l.msgs = append(l.msgs, "info: "+msg)
}

func (l *recordingLogger) Warn(_ context.Context, msg string, _ ...any) {
	l.msgs = append(l.msgs, "warn: "+msg)
}

func (s *memStore) snapshot() map[string]string {
	out := make(map[string]string, len(s.keys))
	for name, rec := range s.keys {
		out[name] = string(rec.PublicKey) + "|" + string(rec.PrivateKey)
	}
	return out
}

// sealRaw encrypts arbitrary plaintext under a prepared header.
func sealRaw(t *testing.T, header, plaintext []byte) []byte {
	t.Helper()
	h, _, err := ParseHeader(append(append([]byte{}, header...), make([]byte, 16)...))
	require.NoError(t, err)
	key := crypto.DeriveKeyWithParams(testPassphrase, h.Salt, *testParams)
	ct, err := crypto.Encrypt(key, h.Nonce, plaintext, header)
	require.NoError(t, err)
	return append(append([]byte{}, header...), ct...)
}
