package utils

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"math/big"
	"runtime"

	knapsack "github.com/wizardkids/knapsack"
)

// RandReader is the process entropy source used when a caller does not inject one.
var RandReader io.Reader = rand.Reader

var bigOne = big.NewInt(1)

// SecureRandomBytes generates n cryptographically secure random bytes.
// It uses crypto/rand, which relies on the operating system's CSPRNG.
func SecureRandomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(RandReader, buf); err != nil {
		return nil, fmt.Errorf("%w: %v", knapsack.ErrEntropy, err)
	}
	return buf, nil
}

// RandomIntRange returns an integer drawn uniformly from [lo, hi] using the
// bytes of entropy. crypto/rand.Int rejection-samples, so the distribution is
// uniform for any reader that yields uniform bytes.
func RandomIntRange(entropy io.Reader, lo, hi *big.Int) (*big.Int, error) {
	if entropy == nil {
		return nil, fmt.Errorf("%w: nil entropy source", knapsack.ErrEntropy)
	}
	if lo.Cmp(hi) > 0 {
		return nil, fmt.Errorf("%w: empty range [%s, %s]", knapsack.ErrEntropy, lo, hi)
	}

	span := new(big.Int).Sub(hi, lo)
	span.Add(span, bigOne)
	n, err := rand.Int(entropy, span)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", knapsack.ErrEntropy, err)
	}
	return n.Add(n, lo), nil
}

// ValidateSeedEntropy checks if a seed has sufficient entropy.
// It performs basic statistical tests to reject obviously weak seeds (e.g., all zeros, sequential).
// This is a sanity check, not a rigorous randomness test.
func ValidateSeedEntropy(seed []byte) error {
	if len(seed) < MinSeedLength {
		return fmt.Errorf("seed must be at least %d bytes", MinSeedLength)
	}

	first := seed[0]
	allSame := true
	for i := 1; i < len(seed); i++ {
		if seed[i] != first {
			allSame = false
			break
		}
	}
	if allSame {
		return errors.New("seed has low entropy: all bytes are identical")
	}

	isAscending := true
	isDescending := true
	for i := 1; i < len(seed); i++ {
		if seed[i] != seed[i-1]+1 {
			isAscending = false
		}
		if seed[i] != seed[i-1]-1 {
			isDescending = false
		}
		if !isAscending && !isDescending {
			break
		}
	}
	if isAscending || isDescending {
		return errors.New("seed has low entropy: sequential pattern detected")
	}

	unique := make(map[byte]struct{})
	for _, b := range seed {
		unique[b] = struct{}{}
		if len(unique) >= 8 {
			break
		}
	}
	if len(unique) < 8 {
		return errors.New("seed has low entropy: insufficient byte diversity")
	}

	return nil
}

// ConstantTimeEqual compares two byte slices in constant time.
// It returns true if the slices are equal, false otherwise.
// This function leaks only the length of the slices.
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	if len(a) == 0 {
		return true
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// Zeroize overwrites a byte slice with zeros.
// Uses runtime.KeepAlive to prevent compiler optimization from eliminating the stores.
func Zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}

// ZeroizeBigInts sets every element of xs to zero.
func ZeroizeBigInts(xs []*big.Int) {
	for _, x := range xs {
		if x != nil {
			x.SetInt64(0)
		}
	}
	runtime.KeepAlive(xs)
}
