// Package main provides the knapsack-cli command line interface for
// Merkle-Hellman key generation, encryption and decryption.
package main

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"
	"time"

	knapsack "github.com/wizardkids/knapsack"
	"github.com/wizardkids/knapsack/cipher"
	"github.com/wizardkids/knapsack/encoding"
	"github.com/wizardkids/knapsack/keygen"
	"github.com/wizardkids/knapsack/keystore"
	"github.com/wizardkids/knapsack/utils"
)

const (
	version = "0.2.0"
	appName = "knapsack-cli"

	// storeEnv overrides the default key store directory.
	storeEnv        = "KNAPSACK_STORE"
	defaultStoreDir = "keys"
)

// CLIConfig holds CLI configuration
type CLIConfig struct {
	KeyLength  int
	Format     keystore.Format
	StoreDir   string
	OutputFile string
	InputFile  string
	Verbose    bool
	Timing     bool
}

// valueFlags take the following argument as their value.
var valueFlags = map[string]bool{
	"--length": true, "-l": true,
	"--message": true, "-m": true,
	"--file": true, "-f": true,
	"--input": true, "-i": true,
	"--output": true, "-o": true,
	"--public-key": true, "-pk": true,
	"--secret-key": true, "-sk": true,
	"--ciphertext": true, "-ct": true,
	"--bundle": true, "-b": true,
	"--store": true, "-s": true,
	"--name": true, "-n": true,
	"--to": true, "--as": true,
	"--seed": true, "--format": true,
	"--fingerprint": true, "--iterations": true,
}

type cli struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	getenv func(string) string
}

func main() {
	c := &cli{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr, getenv: os.Getenv}
	os.Exit(c.run(os.Args[1:]))
}

// run executes one command and returns the process exit code.
func (c *cli) run(args []string) int {
	if len(args) < 1 {
		c.printUsage()
		return 1
	}

	command := args[0]
	var err error
	switch command {
	case "help", "--help", "-h":
		c.printUsage()
		return 0
	case "version", "--version", "-v":
		fmt.Fprintf(c.stdout, "%s version %s\n", appName, version)
		fmt.Fprintf(c.stdout, "knapsack library version %s\n", knapsack.Version)
		return 0
	case "keygen", "generate", "--generate", "-g":
		err = c.keygen(args[1:])
	case "encrypt", "enc":
		err = c.encrypt(args[1:])
	case "decrypt", "dec", "--decrypt", "-d":
		err = c.decrypt(args[1:])
	case "keys", "--keys", "-k":
		err = c.keys(args[1:])
	case "list", "ls":
		err = c.list(args[1:])
	case "export":
		err = c.export(args[1:])
	case "delete", "rm":
		err = c.remove(args[1:])
	case "benchmark":
		err = c.benchmark(args[1:])
	default:
		if strings.HasPrefix(command, "-") {
			fmt.Fprintf(c.stderr, "Unknown command: %s\n", command)
			c.printUsage()
			return 1
		}
		// A bare message is encrypted, as in: knapsack-cli "attack at dawn"
		err = c.encrypt(args)
	}

	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func (c *cli) printUsage() {
	fmt.Fprintf(c.stdout, `%s - Merkle-Hellman Knapsack Cryptosystem CLI

USAGE:
    %s <COMMAND> [OPTIONS]
    %s "<MESSAGE>"            Encrypt a message with a fresh key pair

COMMANDS:
    keygen      Generate a key pair
    encrypt     Encrypt a message or file
    decrypt     Decrypt a ciphertext
    keys        Print the keys of a bundle or stored key pair
    list        List key pairs in the key store
    export      Write the public key of a stored key pair
    delete      Remove a stored key pair
    benchmark   Run performance benchmarks
    version     Show version information
    help        Show this help message

OPTIONS:
    --length, -l <n>            Key length (default: 8)
    --message, -m <text>        Message to encrypt
    --file, -f <file>           File to encrypt (UTF-8 text or raw bytes)
    --to <name>                 Encrypt for a stored key pair
    --public-key, -pk <file>    Encrypt for a public key record
    --fingerprint <hex>         Refuse a public key with another fingerprint
    --as <name>                 Decrypt with a stored key pair
    --secret-key, -sk <file>    Decrypt with a key record
    --ciphertext, -ct <file>    Ciphertext record to decrypt
    --bundle, -b <file>         Bundle file (default: %s)
    --name, -n <name>           Key pair name in the store
    --store, -s <dir>           Key store directory (default: $%s or ./%s)
    --seed <hex|random>         Deterministic key generation seed (>= 32 bytes);
                                random draws one and prints it to stderr
    --format <json|cbor>        Key record format (default: json)
    --output, -o <file>         Output file (default: stdout)
    --timing, -t                Show timing information
    --verbose                   Verbose output

Without --to or --public-key, encrypt generates a new key pair and writes the
ciphertext together with the keys to the bundle file. This is insecure and
only meant for experiments. Without --as or --secret-key, decrypt reads the
keys from the bundle file.

EXAMPLES:
    %s "Hello World"
    %s decrypt
    %s keygen --name alice
    %s encrypt --to alice --file letter.txt --output letter.ct.json
    %s decrypt --as alice --ciphertext letter.ct.json
`, appName, appName, appName, keystore.BundleFile, storeEnv, defaultStoreDir,
		appName, appName, appName, appName, appName)
}

// ============================================================================
// Commands
// ============================================================================

func (c *cli) keygen(args []string) error {
	config, err := c.parseConfig(args)
	if err != nil {
		return err
	}
	name := getArg(args, "--name", "-n")
	seedHex := getArg(args, "--seed", "")

	start := time.Now()
	var kp *knapsack.KeyPair
	if seedHex != "" {
		var seed []byte
		if seedHex == "random" {
			if seed, err = utils.SecureRandomBytes(utils.MinSeedLength); err != nil {
				return err
			}
			fmt.Fprintf(c.stderr, "Seed: %s\n", hex.EncodeToString(seed))
		} else if seed, err = hex.DecodeString(seedHex); err != nil {
			return fmt.Errorf("invalid seed hex: %w", err)
		}
		defer utils.Zeroize(seed)
		kp, err = keygen.GenerateKeyPairFromSeed(config.KeyLength, seed)
		if err != nil {
			return fmt.Errorf("generating key pair: %w", err)
		}
	} else {
		kp, err = keygen.GenerateKeyPair(config.KeyLength, nil)
		if err != nil {
			return fmt.Errorf("generating key pair: %w", err)
		}
	}
	elapsed := time.Since(start)

	if config.Timing {
		fmt.Fprintf(c.stderr, "Key generation took: %v\n", elapsed)
	}

	if name != "" {
		store, err := keystore.Open(config.StoreDir, config.Format)
		if err != nil {
			return err
		}
		if err := store.SaveKeyPair(name, kp); err != nil {
			return err
		}
		fmt.Fprintf(c.stdout, "Stored key pair %q in %s\n", name, store.Dir())
	} else {
		var data []byte
		if config.Format == keystore.FormatCBOR {
			data, err = encoding.EncodeKeyPairCBOR(kp)
			if err == nil && config.OutputFile == "" {
				data = []byte(hex.EncodeToString(data))
			}
		} else {
			data, err = encoding.MarshalKeyRecord(kp)
		}
		if err != nil {
			return fmt.Errorf("serializing key pair: %w", err)
		}
		if err := c.writeOutput(data, config.OutputFile); err != nil {
			return err
		}
	}

	if config.Verbose {
		c.printKeyPair(c.stderr, kp)
	}
	return nil
}

func (c *cli) encrypt(args []string) error {
	config, err := c.parseConfig(args)
	if err != nil {
		return err
	}

	msg, err := c.readMessage(args, config)
	if err != nil {
		return err
	}
	if len(msg) == 0 {
		return errors.New("no message to encrypt (use MESSAGE, --message, --file, or stdin)")
	}

	pk, haveRecipient, err := c.recipientKey(args, config)
	if err != nil {
		return err
	}

	if haveRecipient {
		start := time.Now()
		ct, err := cipher.Encrypt(msg, pk)
		if err != nil {
			return fmt.Errorf("encrypting: %w", err)
		}
		if config.Timing {
			fmt.Fprintf(c.stderr, "Encryption took: %v\n", time.Since(start))
		}
		data, err := encoding.MarshalCiphertext(ct)
		if err != nil {
			return err
		}
		if err := c.writeOutput(data, config.OutputFile); err != nil {
			return err
		}
		if config.Verbose {
			fmt.Fprintf(c.stderr, "Encrypted %d bytes into %d elements\n", len(msg), len(ct))
		}
		return nil
	}

	// No recipient: generate a fresh key pair and store it with the ciphertext.
	start := time.Now()
	kp, err := keygen.GenerateKeyPair(config.KeyLength, nil)
	if err != nil {
		return fmt.Errorf("generating key pair: %w", err)
	}
	ct, err := cipher.Encrypt(msg, kp.PublicKey)
	if err != nil {
		return fmt.Errorf("encrypting: %w", err)
	}
	if config.Timing {
		fmt.Fprintf(c.stderr, "Key generation and encryption took: %v\n", time.Since(start))
	}

	fmt.Fprintln(c.stdout, encoding.FormatCiphertext(ct))

	bundle := config.OutputFile
	if bundle == "" {
		bundle = keystore.BundleFile
	}
	if err := keystore.WriteBundle(bundle, ct, kp); err != nil {
		return err
	}
	if config.Verbose {
		fmt.Fprintf(c.stderr, "Wrote ciphertext and keys to %s\n", bundle)
		c.printKeyPair(c.stderr, kp)
	}
	return nil
}

func (c *cli) decrypt(args []string) error {
	config, err := c.parseConfig(args)
	if err != nil {
		return err
	}
	ctFile := getArg(args, "--ciphertext", "-ct")
	bundle := getArg(args, "--bundle", "-b")
	if bundle == "" {
		bundle = keystore.BundleFile
	}

	kp, err := c.privateKey(args, config)
	if err != nil {
		return err
	}

	var ct knapsack.Ciphertext
	switch {
	case kp == nil:
		// Keys and ciphertext both come from the bundle.
		if ctFile != "" {
			return errors.New("--ciphertext needs --as or --secret-key")
		}
		ct, kp, err = keystore.ReadBundle(bundle)
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("the file %q containing encrypted text was not found", bundle)
		}
		if err != nil {
			return err
		}
	default:
		if ctFile == "" {
			ctFile = bundle
		}
		data, err := keystore.ReadFile(ctFile)
		if err != nil {
			return fmt.Errorf("reading ciphertext: %w", err)
		}
		ct, err = encoding.UnmarshalCiphertext(data)
		if err != nil {
			return err
		}
	}

	start := time.Now()
	plaintext, err := cipher.DecryptWithKey(ct, kp.PrivateKey)
	if err != nil {
		return fmt.Errorf("decrypting: %w", err)
	}
	if config.Timing {
		fmt.Fprintf(c.stderr, "Decryption took: %v\n", time.Since(start))
	}

	if config.OutputFile != "" {
		if err := keystore.WriteFile(config.OutputFile, plaintext); err != nil {
			return err
		}
	} else {
		if config.Verbose {
			fmt.Fprintln(c.stderr, "DECRYPTED MESSAGE")
		}
		fmt.Fprintln(c.stdout, string(plaintext))
	}
	return nil
}

func (c *cli) keys(args []string) error {
	config, err := c.parseConfig(args)
	if err != nil {
		return err
	}
	name := getArg(args, "--name", "-n")

	var kp *knapsack.KeyPair
	if name != "" {
		store, err := keystore.Open(config.StoreDir, config.Format)
		if err != nil {
			return err
		}
		if kp, err = store.LoadKeyPair(name); err != nil {
			return err
		}
	} else {
		bundle := getArg(args, "--bundle", "-b")
		if bundle == "" {
			bundle = keystore.BundleFile
		}
		data, err := keystore.ReadFile(bundle)
		if err != nil {
			return err
		}
		if kp, err = encoding.UnmarshalKeyRecord(data); err != nil {
			return err
		}
	}

	c.printKeyPair(c.stdout, kp)
	return nil
}

func (c *cli) list(args []string) error {
	config, err := c.parseConfig(args)
	if err != nil {
		return err
	}
	store, err := keystore.Open(config.StoreDir, config.Format)
	if err != nil {
		return err
	}
	names, err := store.List()
	if err != nil {
		return err
	}
	for _, name := range names {
		pk, err := store.LoadPublicKey(name)
		if err != nil {
			fmt.Fprintf(c.stdout, "%-20s  (unreadable: %v)\n", name, err)
			continue
		}
		fp, err := encoding.Fingerprint(pk)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.stdout, "%-20s  %s\n", name, hex.EncodeToString(fp[:8]))
	}
	return nil
}

func (c *cli) export(args []string) error {
	config, err := c.parseConfig(args)
	if err != nil {
		return err
	}
	name := getArg(args, "--name", "-n")
	if name == "" {
		return errors.New("--name is required")
	}
	store, err := keystore.Open(config.StoreDir, config.Format)
	if err != nil {
		return err
	}
	path, err := store.ExportPublicKey(name)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, path)
	return nil
}

func (c *cli) remove(args []string) error {
	config, err := c.parseConfig(args)
	if err != nil {
		return err
	}
	name := getArg(args, "--name", "-n")
	if name == "" {
		return errors.New("--name is required")
	}
	store, err := keystore.Open(config.StoreDir, config.Format)
	if err != nil {
		return err
	}
	return store.Delete(name)
}

func (c *cli) benchmark(args []string) error {
	config, err := c.parseConfig(args)
	if err != nil {
		return err
	}
	iterations := 10
	if s := getArg(args, "--iterations", ""); s != "" {
		if _, err := fmt.Sscanf(s, "%d", &iterations); err != nil {
			return fmt.Errorf("invalid iterations %q", s)
		}
	}
	if err := utils.CheckPositive(iterations, "iterations"); err != nil {
		return err
	}

	fmt.Fprintf(c.stdout, "Merkle-Hellman Benchmark Results\n")
	fmt.Fprintf(c.stdout, "================================\n")
	fmt.Fprintf(c.stdout, "Key length: %d\n", config.KeyLength)
	fmt.Fprintf(c.stdout, "Iterations: %d\n\n", iterations)

	var keygenTotal time.Duration
	var kp *knapsack.KeyPair
	for i := 0; i < iterations; i++ {
		start := time.Now()
		kp, err = keygen.GenerateKeyPair(config.KeyLength, nil)
		keygenTotal += time.Since(start)
		if err != nil {
			return fmt.Errorf("keygen: %w", err)
		}
	}
	fmt.Fprintf(c.stdout, "  KeyGen:      %v (avg)\n", keygenTotal/time.Duration(iterations))

	if kp.PublicKey.Len() != knapsack.ByteWidth {
		fmt.Fprintf(c.stdout, "\nEncryption needs %d-element keys; skipping.\n", knapsack.ByteWidth)
		return nil
	}

	message := bytes.Repeat([]byte("benchmark "), 100)
	var encTotal time.Duration
	var ct knapsack.Ciphertext
	for i := 0; i < iterations; i++ {
		start := time.Now()
		ct, err = cipher.Encrypt(message, kp.PublicKey)
		encTotal += time.Since(start)
		if err != nil {
			return fmt.Errorf("encrypt: %w", err)
		}
	}
	fmt.Fprintf(c.stdout, "  Encrypt:     %v (avg, %d bytes)\n", encTotal/time.Duration(iterations), len(message))

	var decTotal time.Duration
	for i := 0; i < iterations; i++ {
		start := time.Now()
		pt, err := cipher.DecryptWithKey(ct, kp.PrivateKey)
		decTotal += time.Since(start)
		if err != nil {
			return fmt.Errorf("decrypt: %w", err)
		}
		if !bytes.Equal(pt, message) {
			return errors.New("decrypt: plaintext mismatch")
		}
	}
	fmt.Fprintf(c.stdout, "  Decrypt:     %v (avg, %d bytes)\n", decTotal/time.Duration(iterations), len(message))

	fmt.Fprintln(c.stdout)
	fmt.Fprintln(c.stdout, "Benchmark complete!")
	return nil
}

// ============================================================================
// Utility Functions
// ============================================================================

func (c *cli) parseConfig(args []string) (CLIConfig, error) {
	config := CLIConfig{
		KeyLength: knapsack.DefaultKeyLength,
		Format:    keystore.FormatJSON,
		StoreDir:  defaultStoreDir,
	}
	if dir := c.getenv(storeEnv); dir != "" {
		config.StoreDir = dir
	}

	if length := getArg(args, "--length", "-l"); length != "" {
		if _, err := fmt.Sscanf(length, "%d", &config.KeyLength); err != nil || config.KeyLength <= 0 {
			return CLIConfig{}, fmt.Errorf("invalid key length '%s'", length)
		}
	}

	switch format := getArg(args, "--format", ""); format {
	case "json", "":
	case "cbor":
		config.Format = keystore.FormatCBOR
	default:
		return CLIConfig{}, fmt.Errorf("invalid format '%s'. Must be one of: json, cbor", format)
	}

	if dir := getArg(args, "--store", "-s"); dir != "" {
		config.StoreDir = dir
	}
	config.OutputFile = getArg(args, "--output", "-o")
	config.InputFile = getArg(args, "--file", "-f")
	if config.InputFile == "" {
		config.InputFile = getArg(args, "--input", "-i")
	}
	config.Verbose = hasFlag(args, "--verbose", "")
	config.Timing = hasFlag(args, "--timing", "-t")

	return config, nil
}

// readMessage returns the message from --message, the first positional
// argument, --file, or stdin, in that order.
func (c *cli) readMessage(args []string, config CLIConfig) ([]byte, error) {
	if message := getArg(args, "--message", "-m"); message != "" {
		return []byte(message), nil
	}
	if pos := positional(args); len(pos) > 0 {
		return []byte(strings.Join(pos, " ")), nil
	}
	if config.InputFile != "" {
		data, err := keystore.ReadFile(config.InputFile)
		if err != nil {
			return nil, fmt.Errorf("reading input file: %w", err)
		}
		return data, nil
	}
	if c.stdin == nil {
		return nil, nil
	}
	data, err := io.ReadAll(c.stdin)
	if err != nil {
		return nil, fmt.Errorf("reading from stdin: %w", err)
	}
	return data, nil
}

// recipientKey loads the public key named by --to or --public-key. The
// boolean is false when neither flag is present.
func (c *cli) recipientKey(args []string, config CLIConfig) (knapsack.PublicKey, bool, error) {
	to := getArg(args, "--to", "")
	pkFile := getArg(args, "--public-key", "-pk")

	var pk knapsack.PublicKey
	switch {
	case to != "":
		store, err := keystore.Open(config.StoreDir, config.Format)
		if err != nil {
			return pk, false, err
		}
		if pk, err = store.LoadPublicKey(to); err != nil {
			return pk, false, fmt.Errorf("loading public key: %w", err)
		}
	case pkFile != "":
		data, err := keystore.ReadFile(pkFile)
		if err != nil {
			return pk, false, fmt.Errorf("loading public key: %w", err)
		}
		if pk, err = encoding.UnmarshalPublicKey(data); err != nil {
			return pk, false, fmt.Errorf("loading public key: %w", err)
		}
	default:
		return pk, false, nil
	}

	if want := getArg(args, "--fingerprint", ""); want != "" {
		fp, err := hex.DecodeString(want)
		if err != nil {
			return pk, false, fmt.Errorf("invalid fingerprint hex: %w", err)
		}
		if !encoding.VerifyFingerprint(pk, fp) {
			return pk, false, errors.New("public key fingerprint mismatch")
		}
	}
	return pk, true, nil
}

// privateKey loads the key pair named by --as or --secret-key, or returns
// nil when neither flag is present.
func (c *cli) privateKey(args []string, config CLIConfig) (*knapsack.KeyPair, error) {
	if as := getArg(args, "--as", ""); as != "" {
		store, err := keystore.Open(config.StoreDir, config.Format)
		if err != nil {
			return nil, err
		}
		return store.LoadKeyPair(as)
	}
	if skFile := getArg(args, "--secret-key", "-sk"); skFile != "" {
		return loadKeyPairFile(skFile)
	}
	return nil, nil
}

// loadKeyPairFile reads a JSON key record, a CBOR key record, or a hex
// encoded CBOR key record.
func loadKeyPairFile(filename string) (*knapsack.KeyPair, error) {
	data, err := keystore.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return encoding.UnmarshalKeyRecord(trimmed)
	}
	if decoded, err := hex.DecodeString(string(trimmed)); err == nil {
		return encoding.DecodeKeyPairCBOR(decoded)
	}
	return encoding.DecodeKeyPairCBOR(data)
}

func (c *cli) printKeyPair(w io.Writer, kp *knapsack.KeyPair) {
	fmt.Fprintf(w, "PUBLIC KEY:\n%s\n\n", joinInts(kp.PublicKey.Elements()))
	fmt.Fprintf(w, "PRIVATE KEY\ns: %s\nq: %s\nr: %s\n", joinInts(kp.PrivateKey.S()), kp.PrivateKey.Q(), kp.PrivateKey.R())
	if fp, err := encoding.Fingerprint(kp.PublicKey); err == nil {
		fmt.Fprintf(w, "\nFINGERPRINT\n%s\n", hex.EncodeToString(fp))
	}
}

func joinInts(xs []*big.Int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = x.String()
	}
	return strings.Join(parts, ", ")
}

func getArg(args []string, long, short string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == long || (short != "" && args[i] == short) {
			return args[i+1]
		}
	}
	return ""
}

func hasFlag(args []string, long, short string) bool {
	for _, arg := range args {
		if arg == long || (short != "" && arg == short) {
			return true
		}
	}
	return false
}

// positional returns the arguments that are neither flags nor flag values.
func positional(args []string) []string {
	var out []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if valueFlags[arg] {
			i++
			continue
		}
		if strings.HasPrefix(arg, "-") && len(arg) > 1 {
			continue
		}
		out = append(out, arg)
	}
	return out
}

func (c *cli) writeOutput(data []byte, filename string) error {
	if filename != "" {
		return keystore.WriteFile(filename, data)
	}
	fmt.Fprintln(c.stdout, string(data))
	return nil
}
