package keygen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/forest6511/skm/pkg/sshkey"
)

func TestGenerateEd25519(t *testing.T) {
	rec, err := Generate(Options{Comment: "alice@laptop"})
	require.NoError(t, err)

	assert.Equal(t, "id_ed25519", rec.Name)
	assert.Equal(t, sshkey.Ed25519, rec.Type)
	assert.Nil(t, rec.Bits)
	assert.Equal(t, "alice@laptop", rec.Comment)
	assert.True(t, strings.HasPrefix(string(rec.PublicKey), "ssh-ed25519 "))
	assert.True(t, strings.HasSuffix(string(rec.PublicKey), " alice@laptop\n"))
	require.NoError(t, rec.Validate())

	signer, err := ssh.ParsePrivateKey(rec.PrivateKey)
	require.NoError(t, err)
	fp, err := rec.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, fp, ssh.FingerprintSHA256(signer.PublicKey()))
}

func TestGenerateRSA(t *testing.T) {
	rec, err := Generate(Options{Name: "deploy", Type: sshkey.RSA, Bits: 2048})
	require.NoError(t, err)

	require.NotNil(t, rec.Bits)
	assert.Equal(t, 2048, *rec.Bits)
	assert.True(t, strings.HasPrefix(string(rec.PublicKey), "ssh-rsa "))
	require.NoError(t, rec.Validate())
}

func TestGenerateWithPassphrase(t *testing.T) {
	rec, err := Generate(Options{Name: "secure", Passphrase: []byte("hunter22")})
	require.NoError(t, err)

	_, err = ssh.ParsePrivateKey(rec.PrivateKey)
	var missing *ssh.PassphraseMissingError
	require.ErrorAs(t, err, &missing)

	_, err = ssh.ParsePrivateKeyWithPassphrase(rec.PrivateKey, []byte("hunter22"))
	require.NoError(t, err)
}

func TestGenerateRejectsBadInput(t *testing.T) {
	_, err := Generate(Options{Type: sshkey.RSA, Bits: 1024})
	assert.ErrorIs(t, err, ErrInvalidBits)

	_, err = Generate(Options{Type: sshkey.Ed25519, Bits: 256})
	assert.ErrorIs(t, err, ErrInvalidBits)

	_, err = Generate(Options{Name: "../id_ed25519"})
	assert.ErrorIs(t, err, sshkey.ErrInvalidName)

	_, err = Generate(Options{Type: sshkey.KeyType(9)})
	assert.ErrorIs(t, err, sshkey.ErrUnsupportedKeyType)
}

func TestAuthorizedLineWithoutComment(t *testing.T) {
	rec, err := Generate(Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, len(strings.Fields(string(rec.PublicKey))))
}
