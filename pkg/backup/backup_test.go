package backup

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forest6511/skm/pkg/sshkey"
)

func exportAll(t *testing.T, src KeySource, opts ExportOptions) *ExportResult {
	t.Helper()
	opts.Params = testParams
	res, err := Export(context.Background(), src, testPassphrase, opts)
	require.NoError(t, err)
	return res
}

func TestContainerRoundTrip(t *testing.T) {
	a := sampleArchive(t)
	data, err := WriteContainer(a, testPassphrase, testParams)
	require.NoError(t, err)

	got, err := ReadContainer(data, testPassphrase, testParams)
	require.NoError(t, err)
	assert.Equal(t, a, got)
}

func TestContainerFreshSaltAndNonce(t *testing.T) {
	a := sampleArchive(t)
	d1, err := WriteContainer(a, testPassphrase, testParams)
	require.NoError(t, err)
	d2, err := WriteContainer(a, testPassphrase, testParams)
	require.NoError(t, err)

	h1, _, err := ParseHeader(d1)
	require.NoError(t, err)
	h2, _, err := ParseHeader(d2)
	require.NoError(t, err)
	assert.NotEqual(t, h1.Salt, h2.Salt)
	assert.NotEqual(t, h1.Nonce, h2.Nonce)
}

func TestContainerWrongPassphrase(t *testing.T) {
	data, err := WriteContainer(sampleArchive(t), testPassphrase, testParams)
	require.NoError(t, err)

	for _, wrong := range []string{"correct horse battery stapl", "Correct horse battery staple", "x"} {
		_, err := ReadContainer(data, []byte(wrong), testParams)
		assert.ErrorIs(t, err, ErrAuthentication, wrong)
	}
}

func TestContainerTamperDetection(t *testing.T) {
	data, err := WriteContainer(NewArchive([]*sshkey.Record{genKey(t, "k", "")}, ""), testPassphrase, testParams)
	require.NoError(t, err)

	// Flip one bit in every byte of salt, nonce and ciphertext in turn.
	for i := saltOffset; i < len(data); i++ {
		bad := append([]byte{}, data...)
		bad[i] ^= 0x01
		_, err := ReadContainer(bad, testPassphrase, testParams)
		if !errors.Is(err, ErrAuthentication) {
			t.Fatalf("flipping byte %d: error = %v, want ErrAuthentication", i, err)
		}
	}
}

func TestContainerHeaderTamper(t *testing.T) {
	data, err := WriteContainer(sampleArchive(t), testPassphrase, testParams)
	require.NoError(t, err)

	bad := append([]byte{}, data...)
	bad[0] = 'X'
	_, err = ReadContainer(bad, testPassphrase, testParams)
	assert.ErrorIs(t, err, ErrInvalidMagic)

	bad = append([]byte{}, data...)
	bad[10] = 0x02
	_, err = ReadContainer(bad, testPassphrase, testParams)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestContainerEmptyPassphrase(t *testing.T) {
	_, err := WriteContainer(sampleArchive(t), nil, testParams)
	assert.ErrorIs(t, err, ErrEmptyPassphrase)

	_, err = ReadContainer([]byte("SKMBACKUP"), []byte{}, testParams)
	assert.ErrorIs(t, err, ErrEmptyPassphrase)
}

func TestExportAllSortedByName(t *testing.T) {
	store := newMemStore(genKey(t, "zeta", ""), genKey(t, "alpha", ""), genKey(t, "mid", ""))

	res := exportAll(t, store, ExportOptions{Description: "all"})

	var names []string
	for _, e := range res.Archive.Entries {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, names)
	assert.Equal(t, "all", res.Archive.Description)

	got, err := ReadContainer(res.Data, testPassphrase, testParams)
	require.NoError(t, err)
	assert.Equal(t, res.Archive.ID, got.ID)
	assert.Len(t, got.Entries, 3)
}

func TestExportSelectedNamesKeepOrderAndDedup(t *testing.T) {
	store := newMemStore(genKey(t, "a", ""), genKey(t, "b", ""), genKey(t, "c", ""))

	res := exportAll(t, store, ExportOptions{Names: []string{"c", "a", "c"}})

	require.Len(t, res.Archive.Entries, 2)
	assert.Equal(t, "c", res.Archive.Entries[0].Name)
	assert.Equal(t, "a", res.Archive.Entries[1].Name)
}

// hidingStore marks some names as occupied but not listed.
type hidingStore struct {
	*memStore
	hidden map[string]bool
}

func (h *hidingStore) ListExisting() ([]ExistingKey, error) {
	keys, err := h.memStore.ListExisting()
	for i := range keys {
		keys[i].Hidden = h.hidden[keys[i].Name]
	}
	return keys, err
}

func TestExportLeavesHiddenNamesOut(t *testing.T) {
	store := &hidingStore{
		memStore: newMemStore(genKey(t, "a", ""), genKey(t, ".dot", "")),
		hidden:   map[string]bool{".dot": true},
	}

	res := exportAll(t, store, ExportOptions{})
	require.Len(t, res.Archive.Entries, 1)
	assert.Equal(t, "a", res.Archive.Entries[0].Name)

	res = exportAll(t, store, ExportOptions{Names: []string{".dot"}})
	require.Len(t, res.Archive.Entries, 1)
	assert.Equal(t, ".dot", res.Archive.Entries[0].Name)
}

type countingSource struct {
	*memStore
	reads int
}

func (c *countingSource) ReadKey(name string) (*sshkey.Record, error) {
	c.reads++
	return c.memStore.ReadKey(name)
}

func TestExportMissingKeyAbortsBeforeReading(t *testing.T) {
	src := &countingSource{memStore: newMemStore(genKey(t, "a", ""))}

	_, err := Export(context.Background(), src, testPassphrase, ExportOptions{
		Names:  []string{"a", "gone", "also-gone"},
		Params: testParams,
	})
	require.ErrorIs(t, err, ErrRequestedKeyNotFound)

	var nf *KeyNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, []string{"gone", "also-gone"}, nf.Names)
	assert.Zero(t, src.reads, "no key may be read before all names are confirmed")
}

func TestExportErrors(t *testing.T) {
	ctx := context.Background()

	_, err := Export(ctx, newMemStore(genKey(t, "a", "")), nil, ExportOptions{Params: testParams})
	assert.ErrorIs(t, err, ErrEmptyPassphrase)

	_, err = Export(ctx, newMemStore(), testPassphrase, ExportOptions{Params: testParams})
	assert.ErrorIs(t, err, ErrNoKeys)

	broken := newMemStore()
	broken.failList = errors.New("permission denied")
	_, err = Export(ctx, broken, testPassphrase, ExportOptions{Params: testParams})
	assert.ErrorIs(t, err, ErrStorage)
}

func TestExportPublicOnly(t *testing.T) {
	store := newMemStore(genKey(t, "a", "c"))

	res := exportAll(t, store, ExportOptions{PublicOnly: true})
	got, err := ReadContainer(res.Data, testPassphrase, testParams)
	require.NoError(t, err)
	require.Len(t, got.Entries, 1)
	assert.True(t, got.Entries[0].PublicOnly())
	assert.NotEmpty(t, got.Entries[0].PublicKey)

	// The source record is untouched.
	assert.False(t, store.keys["a"].PublicOnly())
}

func TestExportRecordsDropsDuplicateNames(t *testing.T) {
	first := genKey(t, "k", "first")
	second := genKey(t, "k", "second")

	_, a, err := ExportRecords([]*sshkey.Record{first, second}, testPassphrase, "", testParams)
	require.NoError(t, err)
	require.Len(t, a.Entries, 1)
	assert.Equal(t, "first", a.Entries[0].Comment)

	_, _, err = ExportRecords(nil, testPassphrase, "", testParams)
	assert.ErrorIs(t, err, ErrNoKeys)
}

func importInto(t *testing.T, data []byte, dst KeyStore, strategy Strategy, dryRun bool) *ImportResult {
	t.Helper()
	res, err := Import(context.Background(), data, dst, testPassphrase, ImportOptions{
		Strategy: strategy,
		DryRun:   dryRun,
		Params:   testParams,
	})
	require.NoError(t, err)
	return res
}

func TestImportIntoEmptyStore(t *testing.T) {
	src := newMemStore(genKey(t, "a", ""), genKey(t, "b", ""))
	res := exportAll(t, src, ExportOptions{})

	dst := newMemStore()
	out := importInto(t, res.Data, dst, StrategySkip, false)

	assert.Len(t, out.Applied, 2)
	assert.Empty(t, out.Skipped)
	assert.False(t, out.Partial())
	assert.Equal(t, src.snapshot(), dst.snapshot())
}

func TestImportDryRunIsNoOp(t *testing.T) {
	src := newMemStore(genKey(t, "a", ""), genKey(t, "b", ""))
	res := exportAll(t, src, ExportOptions{})

	dst := newMemStore(genKey(t, "a", ""))
	before, err := dst.ListExisting()
	require.NoError(t, err)

	for _, s := range []Strategy{StrategySkip, StrategyOverwrite, StrategyRename} {
		dry := importInto(t, res.Data, dst, s, true)
		assert.True(t, dry.DryRun)
		assert.Empty(t, dry.Applied)
		assert.Len(t, dry.Plan.Entries, 2)
	}

	after, err := dst.ListExisting()
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Zero(t, dst.writes)
}

func TestImportDryRunPlanMatchesRealRun(t *testing.T) {
	res := exportAll(t, newMemStore(genKey(t, "k", ""), genKey(t, "j", "")), ExportOptions{})
	dst := newMemStore(genKey(t, "k", ""), genKey(t, "k_2", ""))

	dry := importInto(t, res.Data, dst, StrategyRename, true)
	applied := importInto(t, res.Data, dst, StrategyRename, false)

	assert.Equal(t, dry.Plan, applied.Plan)
	assert.Contains(t, dst.keys, "k_3")
	assert.Contains(t, dst.keys, "j")
}

func TestImportSkipIsIdempotent(t *testing.T) {
	res := exportAll(t, newMemStore(genKey(t, "a", ""), genKey(t, "b", "")), ExportOptions{})
	dst := newMemStore(genKey(t, "a", ""))

	importInto(t, res.Data, dst, StrategySkip, false)
	first := dst.snapshot()

	second := importInto(t, res.Data, dst, StrategySkip, false)
	assert.Equal(t, first, dst.snapshot())
	assert.Len(t, second.Skipped, 2)
	assert.Empty(t, second.Applied)
}

func TestImportOverwrite(t *testing.T) {
	incoming := genKey(t, "a", "new")
	res := exportAll(t, newMemStore(incoming), ExportOptions{})
	dst := newMemStore(genKey(t, "a", "old"))

	out := importInto(t, res.Data, dst, StrategyOverwrite, false)
	require.Len(t, out.Applied, 1)
	assert.Equal(t, DecisionOverwrite, out.Applied[0].Decision)
	assert.Equal(t, string(incoming.PublicKey), string(dst.keys["a"].PublicKey))
}

func TestImportRenameWritesUnderNewName(t *testing.T) {
	res := exportAll(t, newMemStore(genKey(t, "k", "")), ExportOptions{})
	dst := newMemStore(genKey(t, "k", ""), genKey(t, "k_2", ""))

	out := importInto(t, res.Data, dst, StrategyRename, false)
	require.Len(t, out.Applied, 1)
	assert.Equal(t, "k_3", out.Applied[0].Target)
	require.Contains(t, dst.keys, "k_3")
	assert.Equal(t, "k_3", dst.keys["k_3"].Name)
	assert.Equal(t, "k", out.Applied[0].Entry.Name, "archive entry keeps its original name")
}

func TestImportPublicOnlyNeverWritesPrivateKey(t *testing.T) {
	a := genKey(t, "a", "")
	res := exportAll(t, newMemStore(a, genKey(t, "b", "")), ExportOptions{PublicOnly: true})

	dst := newMemStore(a)

	out := importInto(t, res.Data, dst, StrategyOverwrite, false)
	require.Len(t, out.Applied, 2)
	assert.Empty(t, out.Failed)

	assert.True(t, dst.keys["b"].PublicOnly(), "new public-only entry must not gain a private key")
	assert.Equal(t, a.PrivateKey, dst.keys["a"].PrivateKey, "existing private key must be left alone")
}

func TestImportPublicOnlyRefusesForeignPrivateKey(t *testing.T) {
	res := exportAll(t, newMemStore(genKey(t, "a", "incoming"), genKey(t, "b", "")), ExportOptions{PublicOnly: true})

	existing := genKey(t, "a", "existing")
	dst := newMemStore(existing)
	before := dst.snapshot()

	log := &recordingLogger{}
	out, err := Import(context.Background(), res.Data, dst, testPassphrase, ImportOptions{
		Strategy: StrategyOverwrite,
		Params:   testParams,
		Logger:   log,
	})
	require.NoError(t, err)
	assert.True(t, out.Partial())

	require.Len(t, out.Failed, 1)
	assert.Equal(t, "a", out.Failed[0].Name)
	assert.ErrorIs(t, out.Failed[0], ErrKeyMismatch)
	assert.ErrorIs(t, out.Failed[0], ErrStorage)
	assert.Equal(t, before["a"], dst.snapshot()["a"], "pair must not be left mismatched")

	require.Len(t, out.Applied, 1)
	assert.Equal(t, "b", out.Applied[0].Target)
	assert.Contains(t, log.msgs, "warn: refusing to write key")
	assert.Contains(t, log.msgs, "info: import finished")

	renamed := importInto(t, res.Data, newMemStore(existing), StrategyRename, false)
	assert.Empty(t, renamed.Failed, "a renamed entry never lands next to the existing private key")
}

func TestImportCollectsStorageErrors(t *testing.T) {
	res := exportAll(t, newMemStore(genKey(t, "a", ""), genKey(t, "b", ""), genKey(t, "c", "")), ExportOptions{})

	dst := newMemStore()
	dst.failWrite["b"] = errors.New("disk full")

	out := importInto(t, res.Data, dst, StrategySkip, false)
	assert.True(t, out.Partial())
	require.Len(t, out.Failed, 1)
	assert.Equal(t, "b", out.Failed[0].Name)
	assert.ErrorIs(t, out.Failed[0], ErrStorage)
	assert.Len(t, out.Applied, 2)
	assert.Contains(t, dst.keys, "a")
	assert.Contains(t, dst.keys, "c")
}

func TestImportErrorsAbortBeforeApply(t *testing.T) {
	res := exportAll(t, newMemStore(genKey(t, "a", "")), ExportOptions{})
	dst := newMemStore()
	ctx := context.Background()

	_, err := Import(ctx, res.Data, dst, []byte("wrong"), ImportOptions{Strategy: StrategySkip, Params: testParams})
	assert.ErrorIs(t, err, ErrAuthentication)

	_, err = Import(ctx, res.Data, dst, testPassphrase, ImportOptions{Params: testParams})
	assert.ErrorIs(t, err, ErrConflictResolution)

	_, err = Import(ctx, []byte("not an archive at all"), dst, testPassphrase, ImportOptions{Strategy: StrategySkip, Params: testParams})
	assert.ErrorIs(t, err, ErrFormat)

	assert.Zero(t, dst.writes)
}

func TestReadContainerVersionMismatchAfterDecrypt(t *testing.T) {
	// A payload that decrypts but does not decode, as a newer producer might write.
	salt := make([]byte, 16)
	nonce := make([]byte, 12)
	h := &Header{Version: FormatVersion, Salt: salt, Nonce: nonce}
	header, err := h.MarshalBinary()
	require.NoError(t, err)

	data := sealRaw(t, header, []byte(`{"format_version":1,"entries":[],"new_field":true}`))

	_, err = ReadContainer(data, testPassphrase, testParams)
	require.ErrorIs(t, err, ErrFormat)
	assert.NotErrorIs(t, err, ErrAuthentication)
	assert.Contains(t, err.Error(), "different skm version")
}
