package main

import (
	"bytes"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	knapsack "github.com/wizardkids/knapsack"
	"github.com/wizardkids/knapsack/encoding"
	"github.com/wizardkids/knapsack/keystore"
)

const testSeed = "5d3a9f0c7e21b4486a0f93d17c52e8b94e1a6d0f2c7b85e3a19d4c60f7b2e815"

// runCLI executes the CLI in-process and returns stdout, stderr and the exit code.
func runCLI(t *testing.T, stdin string, env map[string]string, args ...string) (string, string, int) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	c := &cli{
		stdin:  strings.NewReader(stdin),
		stdout: &stdout,
		stderr: &stderr,
		getenv: func(k string) string { return env[k] },
	}
	code := c.run(args)
	return stdout.String(), stderr.String(), code
}

func TestHelpAndVersion(t *testing.T) {
	out, _, code := runCLI(t, "", nil, "help")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "USAGE:")
	assert.Contains(t, out, "keygen")

	out, _, code = runCLI(t, "", nil, "--version")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, version)

	out, _, code = runCLI(t, "", nil)
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "USAGE:")
}

func TestUnknownFlagCommand(t *testing.T) {
	_, stderr, code := runCLI(t, "", nil, "--bogus")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Unknown command")
}

func TestEncryptWithoutRecipientWritesBundle(t *testing.T) {
	dir := t.TempDir()
	bundle := filepath.Join(dir, "encoded.json")

	out, stderr, code := runCLI(t, "", nil, "encrypt", "Hello World", "--output", bundle)
	require.Equal(t, 0, code, stderr)

	ct, err := encoding.ParseCiphertext(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Len(t, ct, len("Hello World"))

	info, err := os.Stat(bundle)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	out, stderr, code = runCLI(t, "", nil, "decrypt", "--bundle", bundle)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "Hello World\n", out)

	out, stderr, code = runCLI(t, "", nil, "keys", "--bundle", bundle)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, "PUBLIC KEY:")
	assert.Contains(t, out, "PRIVATE KEY\ns: ")
	assert.Contains(t, out, "\nq: ")
	assert.Contains(t, out, "\nr: ")
}

func TestBareMessageEncrypts(t *testing.T) {
	dir := t.TempDir()
	bundle := filepath.Join(dir, "b.json")

	out, stderr, code := runCLI(t, "", nil, "attack", "at", "dawn", "-o", bundle)
	require.Equal(t, 0, code, stderr)
	assert.NotEmpty(t, strings.TrimSpace(out))

	out, _, code = runCLI(t, "", nil, "decrypt", "-b", bundle)
	require.Equal(t, 0, code)
	assert.Equal(t, "attack at dawn\n", out)
}

func TestDecryptMissingBundle(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "encoded.json")
	_, stderr, code := runCLI(t, "", nil, "decrypt", "--bundle", missing)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "was not found")
}

func TestStoreWorkflow(t *testing.T) {
	store := t.TempDir()
	env := map[string]string{storeEnv: store}

	out, stderr, code := runCLI(t, "", env, "keygen", "--name", "alice")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, "alice")

	ctFile := filepath.Join(t.TempDir(), "letter.ct.json")
	_, stderr, code = runCLI(t, "", env, "encrypt", "--to", "alice", "-m", "meet me at noon", "-o", ctFile)
	require.Equal(t, 0, code, stderr)

	out, stderr, code = runCLI(t, "", env, "decrypt", "--as", "alice", "--ciphertext", ctFile)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "meet me at noon\n", out)

	out, _, code = runCLI(t, "", env, "list")
	require.Equal(t, 0, code)
	assert.True(t, strings.HasPrefix(out, "alice"))

	out, stderr, code = runCLI(t, "", env, "keys", "--name", "alice")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, "FINGERPRINT")

	out, stderr, code = runCLI(t, "", env, "export", "--name", "alice")
	require.Equal(t, 0, code, stderr)
	pubPath := strings.TrimSpace(out)
	assert.FileExists(t, pubPath)

	_, _, code = runCLI(t, "", env, "delete", "--name", "alice")
	require.Equal(t, 0, code)
	_, stderr, code = runCLI(t, "", env, "decrypt", "--as", "alice", "--ciphertext", ctFile)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Error:")
}

func TestStoreFlagOverridesEnv(t *testing.T) {
	envStore := t.TempDir()
	flagStore := t.TempDir()
	env := map[string]string{storeEnv: envStore}

	_, stderr, code := runCLI(t, "", env, "keygen", "-n", "bob", "--store", flagStore, "--format", "cbor")
	require.Equal(t, 0, code, stderr)

	s, err := keystore.Open(flagStore, keystore.FormatCBOR)
	require.NoError(t, err)
	names, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, names)

	s, err = keystore.Open(envStore, keystore.FormatJSON)
	require.NoError(t, err)
	names, err = s.List()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestKeygenSeedDeterministic(t *testing.T) {
	out1, stderr, code := runCLI(t, "", nil, "keygen", "--seed", testSeed)
	require.Equal(t, 0, code, stderr)
	out2, _, code := runCLI(t, "", nil, "keygen", "--seed", testSeed)
	require.Equal(t, 0, code)
	assert.Equal(t, out1, out2)

	kp, err := encoding.UnmarshalKeyRecord([]byte(out1))
	require.NoError(t, err)
	assert.Equal(t, knapsack.DefaultKeyLength, kp.PublicKey.Len())

	_, stderr, code = runCLI(t, "", nil, "keygen", "--seed", "00ff")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Error:")

	_, stderr, code = runCLI(t, "", nil, "keygen", "--seed", "zz")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "invalid seed hex")
}

func TestKeygenRandomSeedIsReproducible(t *testing.T) {
	out1, stderr, code := runCLI(t, "", nil, "keygen", "--seed", "random")
	require.Equal(t, 0, code, stderr)
	require.True(t, strings.HasPrefix(stderr, "Seed: "))
	seedHex := strings.TrimSpace(strings.TrimPrefix(stderr, "Seed: "))

	out2, stderr, code := runCLI(t, "", nil, "keygen", "--seed", seedHex)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, out1, out2)
}

func TestKeygenLength(t *testing.T) {
	out, stderr, code := runCLI(t, "", nil, "keygen", "--length", "16")
	require.Equal(t, 0, code, stderr)
	kp, err := encoding.UnmarshalKeyRecord([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, 16, kp.PublicKey.Len())

	_, stderr, code = runCLI(t, "", nil, "keygen", "--length", "zero")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "invalid key length")
}

func TestKeygenCBORHexAndSecretKeyFile(t *testing.T) {
	out, stderr, code := runCLI(t, "", nil, "keygen", "--format", "cbor", "--seed", testSeed)
	require.Equal(t, 0, code, stderr)
	raw, err := hex.DecodeString(strings.TrimSpace(out))
	require.NoError(t, err)
	kp, err := encoding.DecodeKeyPairCBOR(raw)
	require.NoError(t, err)

	dir := t.TempDir()
	skFile := filepath.Join(dir, "sk.hex")
	require.NoError(t, os.WriteFile(skFile, []byte(out), 0600))
	pkFile := filepath.Join(dir, "pk.json")
	pkData, err := encoding.MarshalPublicKey(kp.PublicKey)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(pkFile, pkData, 0600))

	ctFile := filepath.Join(dir, "ct.json")
	_, stderr, code = runCLI(t, "", nil, "encrypt", "-pk", pkFile, "-o", ctFile, "-m", "cbor keys")
	require.Equal(t, 0, code, stderr)

	out, stderr, code = runCLI(t, "", nil, "decrypt", "-sk", skFile, "-ct", ctFile)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "cbor keys\n", out)

	binFile := filepath.Join(dir, "sk.cbor")
	_, stderr, code = runCLI(t, "", nil, "keygen", "--format", "cbor", "--seed", testSeed, "-o", binFile)
	require.Equal(t, 0, code, stderr)
	out, stderr, code = runCLI(t, "", nil, "decrypt", "-sk", binFile, "-ct", ctFile)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "cbor keys\n", out)
}

func TestEncryptFingerprintPin(t *testing.T) {
	store := t.TempDir()
	env := map[string]string{storeEnv: store}
	_, stderr, code := runCLI(t, "", env, "keygen", "-n", "carol", "--seed", testSeed)
	require.Equal(t, 0, code, stderr)

	s, err := keystore.Open(store, keystore.FormatJSON)
	require.NoError(t, err)
	pk, err := s.LoadPublicKey("carol")
	require.NoError(t, err)
	fp, err := encoding.Fingerprint(pk)
	require.NoError(t, err)

	_, stderr, code = runCLI(t, "", env, "encrypt", "--to", "carol", "-m", "x", "--fingerprint", hex.EncodeToString(fp))
	assert.Equal(t, 0, code, stderr)

	fp[0] ^= 1
	_, stderr, code = runCLI(t, "", env, "encrypt", "--to", "carol", "-m", "x", "--fingerprint", hex.EncodeToString(fp))
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "fingerprint mismatch")
}

func TestEncryptStdinAndFile(t *testing.T) {
	store := t.TempDir()
	env := map[string]string{storeEnv: store}
	_, stderr, code := runCLI(t, "", env, "keygen", "-n", "dave")
	require.Equal(t, 0, code, stderr)

	dir := t.TempDir()
	ctFile := filepath.Join(dir, "stdin.ct.json")
	_, stderr, code = runCLI(t, "from stdin", env, "encrypt", "--to", "dave", "-o", ctFile)
	require.Equal(t, 0, code, stderr)
	out, _, code := runCLI(t, "", env, "decrypt", "--as", "dave", "-ct", ctFile)
	require.Equal(t, 0, code)
	assert.Equal(t, "from stdin\n", out)

	msgFile := filepath.Join(dir, "msg.txt")
	require.NoError(t, os.WriteFile(msgFile, []byte("from a file"), 0600))
	ptFile := filepath.Join(dir, "msg.out")
	_, stderr, code = runCLI(t, "", env, "encrypt", "--to", "dave", "-f", msgFile, "-o", ctFile)
	require.Equal(t, 0, code, stderr)
	_, stderr, code = runCLI(t, "", env, "decrypt", "--as", "dave", "-ct", ctFile, "-o", ptFile)
	require.Equal(t, 0, code, stderr)
	got, err := os.ReadFile(ptFile)
	require.NoError(t, err)
	assert.Equal(t, "from a file", string(got))

	_, stderr, code = runCLI(t, "", env, "encrypt", "--to", "dave")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "no message")
}

func TestDecryptWrongKey(t *testing.T) {
	store := t.TempDir()
	env := map[string]string{storeEnv: store}
	_, _, code := runCLI(t, "", env, "keygen", "-n", "erin")
	require.Equal(t, 0, code)
	_, _, code = runCLI(t, "", env, "keygen", "-n", "frank")
	require.Equal(t, 0, code)

	ctFile := filepath.Join(t.TempDir(), "ct.json")
	_, _, code = runCLI(t, "", env, "encrypt", "--to", "erin", "-m", "for erin only", "-o", ctFile)
	require.Equal(t, 0, code)

	out, stderr, code := runCLI(t, "", env, "decrypt", "--as", "frank", "-ct", ctFile)
	assert.Equal(t, 1, code)
	assert.Empty(t, out)
	assert.Contains(t, stderr, "decrypting")
}

func TestTimingAndVerbose(t *testing.T) {
	bundle := filepath.Join(t.TempDir(), "encoded.json")
	_, stderr, code := runCLI(t, "", nil, "encrypt", "-m", "timed", "-o", bundle, "--timing", "--verbose")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stderr, "took:")
	assert.Contains(t, stderr, "PRIVATE KEY")
}

func TestInvalidFormat(t *testing.T) {
	_, stderr, code := runCLI(t, "", nil, "keygen", "--format", "xml")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "invalid format")
}

func TestBenchmarkInvalidIterations(t *testing.T) {
	_, stderr, code := runCLI(t, "", nil, "benchmark", "--iterations", "0")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "iterations")
}

func TestBenchmarkCommand(t *testing.T) {
	out, stderr, code := runCLI(t, "", nil, "benchmark", "--iterations", "2")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, "KeyGen:")
	assert.Contains(t, out, "Decrypt:")
	assert.Contains(t, out, "Benchmark complete!")
}

func TestPositional(t *testing.T) {
	got := positional([]string{"-m", "skip", "hello", "--verbose", "world", "--to", "alice"})
	assert.Equal(t, []string{"hello", "world"}, got)
}
