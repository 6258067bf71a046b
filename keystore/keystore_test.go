package keystore

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	knapsack "github.com/wizardkids/knapsack"
	"github.com/wizardkids/knapsack/cipher"
	"github.com/wizardkids/knapsack/keygen"
	"github.com/wizardkids/knapsack/utils"
)

func testKeyPair(t *testing.T, label string) *knapsack.KeyPair {
	t.Helper()
	kp, err := keygen.GenerateKeyPair(knapsack.DefaultKeyLength, utils.NewShakeReader([]byte(label)))
	require.NoError(t, err)
	return kp
}

func TestStore_SaveLoad(t *testing.T) {
	for _, format := range []Format{FormatJSON, FormatCBOR} {
		t.Run(string(format), func(t *testing.T) {
			store, err := Open(t.TempDir(), format)
			require.NoError(t, err)

			kp := testKeyPair(t, "alice")
			require.NoError(t, store.SaveKeyPair("alice", kp))

			loaded, err := store.LoadKeyPair("alice")
			require.NoError(t, err)
			assert.True(t, kp.Equal(*loaded))

			pk, err := store.LoadPublicKey("alice")
			require.NoError(t, err)
			assert.True(t, pk.Equal(kp.PublicKey))
		})
	}
}

func TestStore_FilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not enforced on windows")
	}
	dir := t.TempDir()
	store, err := Open(dir, FormatJSON)
	require.NoError(t, err)
	require.NoError(t, store.SaveKeyPair("bob", testKeyPair(t, "bob")))

	info, err := os.Stat(filepath.Join(dir, "bob.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestStore_SwitchFormat(t *testing.T) {
	dir := t.TempDir()
	kp := testKeyPair(t, "carol")

	jsonStore, err := Open(dir, FormatJSON)
	require.NoError(t, err)
	require.NoError(t, jsonStore.SaveKeyPair("carol", kp))

	// A CBOR store still reads the JSON record.
	cborStore, err := Open(dir, FormatCBOR)
	require.NoError(t, err)
	loaded, err := cborStore.LoadKeyPair("carol")
	require.NoError(t, err)
	assert.True(t, kp.Equal(*loaded))

	// Saving in CBOR replaces the JSON record.
	require.NoError(t, cborStore.SaveKeyPair("carol", kp))
	_, err = os.Stat(filepath.Join(dir, "carol.json"))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	names, err := cborStore.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"carol"}, names)
}

func TestStore_ListAndDelete(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir, FormatJSON)
	require.NoError(t, err)

	for _, name := range []string{"zoe", "alice", "mallory"} {
		require.NoError(t, store.SaveKeyPair(name, testKeyPair(t, name)))
	}
	_, err = store.ExportPublicKey("alice")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0600))

	names, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "mallory", "zoe"}, names)

	require.NoError(t, store.Delete("mallory"))
	names, err = store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "zoe"}, names)

	assert.ErrorIs(t, store.Delete("mallory"), ErrNotFound)
}

func TestStore_ExportPublicKey(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir, FormatJSON)
	require.NoError(t, err)
	kp := testKeyPair(t, "dave")
	require.NoError(t, store.SaveKeyPair("dave", kp))

	path, err := store.ExportPublicKey("dave")
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"s"`)

	// The exported record is preferred, and still matches.
	pk, err := store.LoadPublicKey("dave")
	require.NoError(t, err)
	assert.True(t, pk.Equal(kp.PublicKey))
}

func TestStore_Errors(t *testing.T) {
	store, err := Open(t.TempDir(), FormatJSON)
	require.NoError(t, err)

	_, err = store.LoadKeyPair("nobody")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.LoadPublicKey("nobody")
	assert.ErrorIs(t, err, ErrNotFound)

	for _, bad := range []string{"", "../escape", "a/b", ".hidden", "alice.pub", "encoded"} {
		assert.ErrorIs(t, store.SaveKeyPair(bad, testKeyPair(t, "x")), ErrInvalidName, "name %q", bad)
	}

	_, err = Open(t.TempDir(), "yaml")
	assert.Error(t, err)
}

func TestStore_RejectsTamperedRecord(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir, FormatJSON)
	require.NoError(t, err)

	record := `{"public_key":[295,592,301,14,28,353,120,999],"s":[2,7,11,21,42,89,180,354],"q":881,"r":588}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "eve.json"), []byte(record), 0600))

	_, err = store.LoadKeyPair("eve")
	assert.ErrorIs(t, err, knapsack.ErrInvalidKey)
}

func TestBundle(t *testing.T) {
	path := filepath.Join(t.TempDir(), BundleFile)
	kp := testKeyPair(t, "bundle")
	msg := []byte("bundle round trip")

	ct, err := cipher.Encrypt(msg, kp.PublicKey)
	require.NoError(t, err)
	require.NoError(t, WriteBundle(path, ct, kp))

	gotCT, gotKP, err := ReadBundle(path)
	require.NoError(t, err)
	pt, err := cipher.DecryptWithKey(gotCT, gotKP.PrivateKey)
	require.NoError(t, err)
	assert.Equal(t, msg, pt)

	_, _, err = ReadBundle(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
