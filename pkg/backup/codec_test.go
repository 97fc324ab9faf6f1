package backup

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forest6511/skm/pkg/keygen"
	"github.com/forest6511/skm/pkg/sshkey"
)

func sampleArchive(t *testing.T) *Archive {
	t.Helper()
	rsaKey, err := keygen.Generate(keygen.Options{Name: "deploy", Type: sshkey.RSA, Bits: 2048, Comment: "ci"})
	require.NoError(t, err)

	return &Archive{
		FormatVersion: int(FormatVersion),
		ID:            uuid.MustParse("3f1c2b9e-6d4a-4c1e-9a57-2a9e8b0c7d11"),
		CreatedAt:     time.Date(2026, 3, 1, 12, 30, 45, 123456789, time.UTC),
		Hostname:      "laptop",
		Username:      "alice",
		Description:   "weekly",
		Entries: []*sshkey.Record{
			genKey(t, "id_ed25519", "alice@laptop"),
			rsaKey,
			genKey(t, "github", "").WithoutPrivate(),
		},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	a := sampleArchive(t)

	data, err := Encode(a)
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, a, got)

	again, err := Encode(got)
	require.NoError(t, err)
	assert.Equal(t, data, again, "encode(decode(x)) must be byte-identical")
}

func TestEncodeIsDeterministic(t *testing.T) {
	a := sampleArchive(t)
	first, err := Encode(a)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		next, err := Encode(a)
		require.NoError(t, err)
		assert.Equal(t, first, next)
	}
}

func TestEncodeWireShape(t *testing.T) {
	a := sampleArchive(t)
	data, err := Encode(a)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.EqualValues(t, 1, raw["format_version"])
	assert.Equal(t, "2026-03-01T12:30:45.123456789Z", raw["created_at"])

	entries := raw["entries"].([]any)
	first := entries[0].(map[string]any)
	assert.Equal(t, "ed25519", first["key_type"])
	assert.NotContains(t, first, "bits")

	second := entries[1].(map[string]any)
	assert.Equal(t, "rsa", second["key_type"])
	assert.EqualValues(t, 2048, second["bits"])

	third := entries[2].(map[string]any)
	assert.NotContains(t, third, "private_key", "public-only entries carry no private key field")
}

func TestEncodeEmptyArchive(t *testing.T) {
	a := NewArchive(nil, "")
	data, err := Encode(a)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"entries":[]`)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Empty(t, got.Entries)
}

func TestEncodeRejectsDuplicates(t *testing.T) {
	a := sampleArchive(t)
	a.Entries = append(a.Entries, a.Entries[0].Clone())

	_, err := Encode(a)
	assert.ErrorIs(t, err, ErrDuplicateName)
	assert.ErrorIs(t, err, ErrFormat)
}

func TestDecodeRejects(t *testing.T) {
	valid, err := Encode(sampleArchive(t))
	require.NoError(t, err)

	mutate := func(fn func(m map[string]any)) []byte {
		var m map[string]any
		require.NoError(t, json.Unmarshal(valid, &m))
		fn(m)
		out, err := json.Marshal(m)
		require.NoError(t, err)
		return out
	}

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"truncated", valid[:len(valid)/2], ErrTruncated},
		{"empty", []byte{}, ErrTruncated},
		{"newer version", mutate(func(m map[string]any) { m["format_version"] = 2 }), ErrUnsupportedVersion},
		{"older version", mutate(func(m map[string]any) { m["format_version"] = 0 }), ErrUnsupportedVersion},
		{"duplicate names", mutate(func(m map[string]any) {
			e := m["entries"].([]any)
			m["entries"] = append(e, e[0])
		}), ErrDuplicateName},
		{"path traversal", mutate(func(m map[string]any) {
			m["entries"].([]any)[0].(map[string]any)["name"] = "../../.bashrc"
		}), sshkey.ErrInvalidName},
		{"unsupported key type", mutate(func(m map[string]any) {
			m["entries"].([]any)[0].(map[string]any)["key_type"] = "ecdsa"
		}), ErrFormat},
		{"type mismatch", mutate(func(m map[string]any) {
			m["entries"].([]any)[0].(map[string]any)["key_type"] = "rsa"
		}), sshkey.ErrTypeMismatch},
		{"unknown field", mutate(func(m map[string]any) { m["extra"] = true }), ErrFormat},
		{"bad archive id", mutate(func(m map[string]any) { m["archive_id"] = "nope" }), ErrFormat},
		{"missing version", mutate(func(m map[string]any) { delete(m, "format_version") }), ErrFormat},
		{"trailing data", append(append([]byte{}, valid...), []byte(` {}`)...), ErrFormat},
		{"not json", []byte("\x00\x01garbage"), ErrFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, ErrFormat)
		})
	}
}

func TestNewArchiveStampsMetadata(t *testing.T) {
	before := time.Now().UTC().Add(-time.Second)
	a := NewArchive(nil, "desc")

	assert.NotEqual(t, uuid.Nil, a.ID)
	assert.True(t, a.CreatedAt.After(before))
	assert.Equal(t, time.UTC, a.CreatedAt.Location())
	assert.NotEmpty(t, a.Hostname)
	assert.NotEmpty(t, strings.TrimSpace(a.Username))
	assert.Equal(t, "desc", a.Description)
	assert.NotEqual(t, a.ID, NewArchive(nil, "").ID)
}
