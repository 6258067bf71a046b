package utils

import (
	"crypto/sha512"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"
)

// MinSeedLength is the shortest seed accepted for deterministic key generation.
const MinSeedLength = 32

// NewShakeReader returns an endless deterministic byte stream: the SHAKE256
// output for seed. Two readers built from the same seed yield the same bytes,
// which makes key generation reproducible in tests.
func NewShakeReader(seed []byte) io.Reader {
	h := sha3.NewShake256()
	h.Write(seed)
	return h
}

// DeriveSeed expands seed into a 32-byte seed bound to domain with HKDF-SHA512.
func DeriveSeed(seed []byte, domain string) ([]byte, error) {
	out := make([]byte, MinSeedLength)
	r := hkdf.New(sha512.New, seed, nil, []byte(domain))
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("derive seed: %w", err)
	}
	return out, nil
}

// HashWithDomain computes a domain-separated SHA3-256 hash.
// It prefixes the data with the length of the domain string and the domain string itself.
// Panics if domain is longer than 255 bytes.
func HashWithDomain(domain string, data []byte) []byte {
	domainBytes := []byte(domain)
	if len(domainBytes) > 255 {
		panic("domain string must be at most 255 bytes")
	}
	h := sha3.New256()
	h.Write([]byte{byte(len(domainBytes))})
	h.Write(domainBytes)
	h.Write(data)
	return h.Sum(nil)
}
