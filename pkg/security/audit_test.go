package security

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forest6511/skm/pkg/keydir"
	"github.com/forest6511/skm/pkg/keygen"
	"github.com/forest6511/skm/pkg/sshkey"
)

func TestAuditCleanDirectory(t *testing.T) {
	d := keydir.New(t.TempDir())
	rec, err := keygen.Generate(keygen.Options{Name: "id_ed25519"})
	require.NoError(t, err)
	require.NoError(t, d.WriteKey("id_ed25519", rec))

	keys, err := d.Scan()
	require.NoError(t, err)

	r := Audit(keys)
	assert.Equal(t, 100, r.Score)
	assert.Equal(t, 1, r.Keys)
	assert.Empty(t, r.Issues)
}

func TestAuditEmpty(t *testing.T) {
	r := Audit(nil)
	assert.Equal(t, 100, r.Score)
	assert.NotNil(t, r.Issues)
}

func TestAuditFindsIssues(t *testing.T) {
	d := keydir.New(t.TempDir())
	rec, err := keygen.Generate(keygen.Options{Name: "a"})
	require.NoError(t, err)
	require.NoError(t, d.WriteKey("a", rec))
	require.NoError(t, d.WriteKey("b", rec))
	require.NoError(t, os.Remove(filepath.Join(d.Path(), "b.pub")))

	keys, err := d.Scan()
	require.NoError(t, err)

	r := Audit(keys)
	types := map[IssueType]Issue{}
	for _, is := range r.Issues {
		types[is.Type] = is
	}

	require.Contains(t, types, IssueDuplicateKey)
	assert.Equal(t, []string{"a", "b"}, types[IssueDuplicateKey].Keys)
	require.Contains(t, types, IssueMissingPublic)
	assert.Equal(t, []string{"b"}, types[IssueMissingPublic].Keys)
	assert.Equal(t, 90, r.Score)
	assert.Equal(t, SeverityWarning, r.Issues[0].Severity, "ordered by severity")
}

func TestAuditLoosePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not enforced on windows")
	}
	d := keydir.New(t.TempDir())
	rec, err := keygen.Generate(keygen.Options{Name: "k"})
	require.NoError(t, err)
	require.NoError(t, d.WriteKey("k", rec))
	require.NoError(t, os.Chmod(filepath.Join(d.Path(), "k"), 0o644))

	keys, err := d.Scan()
	require.NoError(t, err)

	r := Audit(keys)
	require.Len(t, r.Issues, 1)
	assert.Equal(t, IssueLoosePermissions, r.Issues[0].Type)
	assert.Equal(t, SeverityCritical, r.Issues[0].Severity)
	assert.Equal(t, 75, r.Score)
}

func TestAuditRSASizes(t *testing.T) {
	small, recommended := 1024, 2048
	keys := []*keydir.Key{
		{Name: "tiny", Type: sshkey.RSA, Bits: &small, Status: keydir.StatusMissingPrivate},
		{Name: "ok", Type: sshkey.RSA, Bits: &recommended, Status: keydir.StatusMissingPrivate},
	}

	r := Audit(keys)
	require.Len(t, r.Issues, 2)
	assert.Equal(t, "tiny", r.Issues[0].Keys[0])
	assert.Equal(t, SeverityCritical, r.Issues[0].Severity)
	assert.Equal(t, "ok", r.Issues[1].Keys[0])
	assert.Equal(t, SeverityWarning, r.Issues[1].Severity)
	assert.Equal(t, 65, r.Score)
}

func TestAuditMismatchedPair(t *testing.T) {
	d := keydir.New(t.TempDir())
	a, err := keygen.Generate(keygen.Options{Name: "a"})
	require.NoError(t, err)
	b, err := keygen.Generate(keygen.Options{Name: "b"})
	require.NoError(t, err)
	require.NoError(t, d.WriteKey("a", a))
	require.NoError(t, d.WriteKey("a", b.WithoutPrivate()))

	keys, err := d.Scan()
	require.NoError(t, err)

	r := Audit(keys)
	require.Len(t, r.Issues, 1)
	assert.Equal(t, IssueMismatchedPair, r.Issues[0].Type)
	assert.Equal(t, SeverityCritical, r.Issues[0].Severity)
	assert.Equal(t, []string{"a"}, r.Issues[0].Keys)
	assert.Equal(t, 75, r.Score)
}
