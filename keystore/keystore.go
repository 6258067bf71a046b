// Package keystore keeps key records on disk, one file per party, and reads
// and writes the combined ciphertext-and-keys bundle file.
package keystore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	knapsack "github.com/wizardkids/knapsack"
	"github.com/wizardkids/knapsack/encoding"
	"github.com/wizardkids/knapsack/utils"
)

// Format selects the on-disk encoding of key records.
type Format string

const (
	FormatJSON Format = "json"
	FormatCBOR Format = "cbor"
)

// BundleFile is the default name of the bundle written by encryption.
const BundleFile = "encoded.json"

const publicSuffix = ".pub"

var (
	// ErrNotFound indicates that no record exists for a name.
	ErrNotFound = errors.New("keystore: key not found")

	// ErrInvalidName indicates a party name that cannot be used as a file name.
	ErrInvalidName = errors.New("keystore: invalid key name")

	validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
)

// Store is a directory of key records addressed by party name.
type Store struct {
	dir    string
	format Format
}

// Open returns a store rooted at dir, creating the directory if needed.
// New records are written in format; records in either format are readable.
func Open(dir string, format Format) (*Store, error) {
	switch format {
	case FormatJSON, FormatCBOR:
	case "":
		format = FormatJSON
	default:
		return nil, fmt.Errorf("keystore: unknown format %q", format)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("keystore: %w", err)
	}
	return &Store{dir: dir, format: format}, nil
}

// Dir returns the store directory.
func (s *Store) Dir() string { return s.dir }

// SaveKeyPair writes the key pair for name, replacing any existing record.
func (s *Store) SaveKeyPair(name string, kp *knapsack.KeyPair) error {
	if err := checkName(name); err != nil {
		return err
	}

	var data []byte
	var err error
	switch s.format {
	case FormatCBOR:
		data, err = encoding.EncodeKeyPairCBOR(kp)
	default:
		data, err = encoding.MarshalKeyRecord(kp)
	}
	if err != nil {
		return err
	}

	// Only one format is kept per name.
	for _, f := range []Format{FormatJSON, FormatCBOR} {
		if f != s.format {
			_ = os.Remove(s.path(name, f))
		}
	}
	return WriteFile(s.path(name, s.format), data)
}

// LoadKeyPair reads and validates the key pair stored for name.
func (s *Store) LoadKeyPair(name string) (*knapsack.KeyPair, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	for _, f := range []Format{s.format, otherFormat(s.format)} {
		data, err := ReadFile(s.path(name, f))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if f == FormatCBOR {
			return encoding.DecodeKeyPairCBOR(data)
		}
		return encoding.UnmarshalKeyRecord(data)
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// ExportPublicKey writes the public half of name's key pair to its own
// record, which can be handed to other parties.
func (s *Store) ExportPublicKey(name string) (string, error) {
	kp, err := s.LoadKeyPair(name)
	if err != nil {
		return "", err
	}
	data, err := encoding.MarshalPublicKey(kp.PublicKey)
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, name+publicSuffix+".json")
	return path, WriteFile(path, data)
}

// LoadPublicKey returns name's public key, from its exported public record
// or from the full key pair.
func (s *Store) LoadPublicKey(name string) (knapsack.PublicKey, error) {
	if err := checkName(name); err != nil {
		return knapsack.PublicKey{}, err
	}
	data, err := ReadFile(filepath.Join(s.dir, name+publicSuffix+".json"))
	if err == nil {
		return encoding.UnmarshalPublicKey(data)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return knapsack.PublicKey{}, err
	}

	kp, err := s.LoadKeyPair(name)
	if err != nil {
		return knapsack.PublicKey{}, err
	}
	return kp.PublicKey, nil
}

// List returns the names of all stored key pairs in sorted order.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("keystore: %w", err)
	}
	seen := make(map[string]struct{})
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := filepath.Ext(name)
		if ext != ".json" && ext != ".cbor" {
			continue
		}
		base := strings.TrimSuffix(name, ext)
		if strings.HasSuffix(base, publicSuffix) || name == BundleFile {
			continue
		}
		seen[base] = struct{}{}
	}

	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes every record stored for name.
func (s *Store) Delete(name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	removed := false
	for _, path := range []string{
		s.path(name, FormatJSON),
		s.path(name, FormatCBOR),
		filepath.Join(s.dir, name+publicSuffix+".json"),
	} {
		err := os.Remove(path)
		if err == nil {
			removed = true
			continue
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("keystore: %w", err)
		}
	}
	if !removed {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return nil
}

func (s *Store) path(name string, f Format) string {
	return filepath.Join(s.dir, name+"."+string(f))
}

func otherFormat(f Format) Format {
	if f == FormatCBOR {
		return FormatJSON
	}
	return FormatCBOR
}

func checkName(name string) error {
	if !validName.MatchString(name) || strings.HasSuffix(name, publicSuffix) || name+".json" == BundleFile {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// WriteBundle writes a ciphertext together with its key pair to path.
func WriteBundle(path string, ct knapsack.Ciphertext, kp *knapsack.KeyPair) error {
	data, err := encoding.MarshalBundle(ct, kp)
	if err != nil {
		return err
	}
	return WriteFile(path, data)
}

// ReadBundle reads the ciphertext and key pair stored at path.
func ReadBundle(path string) (knapsack.Ciphertext, *knapsack.KeyPair, error) {
	data, err := ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	return encoding.UnmarshalBundle(data)
}

// ReadFile reads path after checking that it is no larger than utils.MaxRecordSize.
func ReadFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > utils.MaxRecordSize {
		return nil, fmt.Errorf("input file too large: %d > %d bytes", info.Size(), utils.MaxRecordSize)
	}
	return os.ReadFile(path)
}

// WriteFile writes data to path with owner-only permissions (0600), which
// are enforced even when the file already existed or the umask is permissive.
func WriteFile(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("setting permissions on %s: %w", path, err)
	}
	return nil
}
