// Package knapsack implements the Merkle-Hellman knapsack cryptosystem.
//
// WARNING: Merkle-Hellman is broken (Shamir, 1982) and is implemented here for
// teaching purposes. The keys are small, there is no padding or authentication,
// and no attempt is made at side-channel hardening. DO NOT use it to protect data.
package knapsack

import (
	"errors"
	"math/big"
)

// ByteWidth is the number of bits encrypted per ciphertext element. Keys used
// for encryption and decryption must have exactly this many elements.
const ByteWidth = 8

// DefaultKeyLength is the length of generated private sequences.
const DefaultKeyLength = ByteWidth

var (
	// ErrInvalidKey indicates key parameters that violate the cryptosystem's
	// invariants: q <= sum(s), gcd(r, q) != 1, a non-superincreasing s or a
	// key of the wrong length.
	ErrInvalidKey = errors.New("invalid key parameters")

	// ErrDecryptionFailed indicates that a ciphertext element could not be
	// decomposed against the private sequence. This happens when the wrong
	// private key is used or the ciphertext was corrupted.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrMalformedCiphertext indicates ciphertext that is not a sequence of
	// non-negative integers.
	ErrMalformedCiphertext = errors.New("malformed ciphertext")

	// ErrEntropy indicates the entropy source could not produce random values.
	ErrEntropy = errors.New("entropy source failure")
)

// =============================================================================
// Parameter Types
// =============================================================================

// Params controls key generation.
type Params struct {
	KeyLength  int `json:"key_length"`  // Number of elements in s
	InitialMin int `json:"initial_min"` // Lower bound of s[0], inclusive
	InitialMax int `json:"initial_max"` // Upper bound of s[0], inclusive
}

// =============================================================================
// Key Types
// =============================================================================

// PublicKey is the trapdoor sequence public[i] = s[i]*r mod q.
// The zero value is an empty key. A PublicKey is never modified after
// construction; accessors return copies.
type PublicKey struct {
	elems []*big.Int
}

// NewPublicKey returns a PublicKey holding copies of elems.
func NewPublicKey(elems []*big.Int) PublicKey {
	return PublicKey{elems: copyInts(elems)}
}

// Len returns the number of elements in the key.
func (pk PublicKey) Len() int { return len(pk.elems) }

// Elements returns a copy of the key elements.
func (pk PublicKey) Elements() []*big.Int { return copyInts(pk.elems) }

// Sum returns the sum of all key elements, which bounds every ciphertext element.
func (pk PublicKey) Sum() *big.Int { return sumInts(pk.elems) }

// Equal reports whether two public keys hold the same sequence.
func (pk PublicKey) Equal(other PublicKey) bool { return equalInts(pk.elems, other.elems) }

// PrivateKey is the triple (s, q, r): a superincreasing sequence s, a modulus
// q > sum(s) and a multiplier r coprime to q.
type PrivateKey struct {
	s []*big.Int
	q *big.Int
	r *big.Int
}

// NewPrivateKey returns a PrivateKey holding copies of its arguments.
// It does not validate them; see core.ValidatePrivateKey.
func NewPrivateKey(s []*big.Int, q, r *big.Int) PrivateKey {
	return PrivateKey{s: copyInts(s), q: copyInt(q), r: copyInt(r)}
}

// Len returns the length of the private sequence.
func (sk PrivateKey) Len() int { return len(sk.s) }

// S returns a copy of the superincreasing sequence.
func (sk PrivateKey) S() []*big.Int { return copyInts(sk.s) }

// Q returns a copy of the modulus.
func (sk PrivateKey) Q() *big.Int { return copyInt(sk.q) }

// R returns a copy of the multiplier.
func (sk PrivateKey) R() *big.Int { return copyInt(sk.r) }

// Sum returns sum(s).
func (sk PrivateKey) Sum() *big.Int { return sumInts(sk.s) }

// Equal reports whether two private keys hold the same parameters.
func (sk PrivateKey) Equal(other PrivateKey) bool {
	return equalInts(sk.s, other.s) && equalInt(sk.q, other.q) && equalInt(sk.r, other.r)
}

// KeyPair contains both the public key and the private key of one party.
type KeyPair struct {
	PublicKey  PublicKey
	PrivateKey PrivateKey
}

// Equal reports whether two key pairs are identical.
func (kp KeyPair) Equal(other KeyPair) bool {
	return kp.PublicKey.Equal(other.PublicKey) && kp.PrivateKey.Equal(other.PrivateKey)
}

// =============================================================================
// Ciphertext
// =============================================================================

// Ciphertext holds one subset sum per plaintext byte, in plaintext order.
type Ciphertext []*big.Int

// Equal reports whether two ciphertexts hold the same sequence.
func (ct Ciphertext) Equal(other Ciphertext) bool { return equalInts(ct, other) }

// =============================================================================
// Helpers
// =============================================================================

func copyInt(x *big.Int) *big.Int {
	if x == nil {
		return nil
	}
	return new(big.Int).Set(x)
}

func copyInts(xs []*big.Int) []*big.Int {
	if xs == nil {
		return nil
	}
	out := make([]*big.Int, len(xs))
	for i, x := range xs {
		out[i] = copyInt(x)
	}
	return out
}

func sumInts(xs []*big.Int) *big.Int {
	sum := new(big.Int)
	for _, x := range xs {
		if x != nil {
			sum.Add(sum, x)
		}
	}
	return sum
}

func equalInt(a, b *big.Int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Cmp(b) == 0
}

func equalInts(a, b []*big.Int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !equalInt(a[i], b[i]) {
			return false
		}
	}
	return true
}
