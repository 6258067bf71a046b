// Package core provides parameter sets and key validation for the knapsack cryptosystem.
package core

import (
	"errors"
	"fmt"
	"math/big"

	knapsack "github.com/wizardkids/knapsack"
	"github.com/wizardkids/knapsack/modarith"
	"github.com/wizardkids/knapsack/utils"
)

// DefaultParams generates 8-element keys, one element per bit of a byte.
var DefaultParams = knapsack.Params{
	KeyLength:  knapsack.DefaultKeyLength,
	InitialMin: 2,
	InitialMax: 10,
}

// GetParams returns DefaultParams with the key length replaced by length.
// A length of 0 selects the default.
func GetParams(length int) (knapsack.Params, error) {
	params := DefaultParams
	if length != 0 {
		params.KeyLength = length
	}
	if err := ValidateParams(params); err != nil {
		return knapsack.Params{}, err
	}
	return params, nil
}

// ValidateParams validates the parameter set for consistency.
func ValidateParams(params knapsack.Params) error {
	if params.KeyLength <= 0 {
		return errors.New("key length must be positive")
	}
	if params.KeyLength > utils.MaxKeyLength {
		return fmt.Errorf("key length %d exceeds maximum %d", params.KeyLength, utils.MaxKeyLength)
	}
	if params.InitialMin < 1 {
		return errors.New("initial element must be at least 1")
	}
	if params.InitialMax < params.InitialMin {
		return errors.New("initial element range is empty")
	}
	// q is drawn from [sum+1, 2*sum] and r from [2, q-1]; with sum >= 2 both
	// ranges are non-empty.
	if params.KeyLength == 1 && params.InitialMin < 2 {
		return errors.New("single-element keys need an initial element of at least 2")
	}
	return nil
}

// IsSuperincreasing reports whether every element of s is positive and
// exceeds the sum of all elements before it.
func IsSuperincreasing(s []*big.Int) bool {
	sum := new(big.Int)
	for _, x := range s {
		if x == nil || x.Sign() <= 0 || x.Cmp(sum) <= 0 {
			return false
		}
		sum.Add(sum, x)
	}
	return true
}

// ValidatePrivateKey checks the private key invariants: s is superincreasing,
// q > sum(s) and 1 < r < q with gcd(r, q) == 1.
func ValidatePrivateKey(sk knapsack.PrivateKey) error {
	s, q, r := sk.S(), sk.Q(), sk.R()
	if len(s) == 0 {
		return fmt.Errorf("%w: empty private sequence", knapsack.ErrInvalidKey)
	}
	if len(s) > utils.MaxKeyLength {
		return fmt.Errorf("%w: private sequence length %d exceeds maximum %d", knapsack.ErrInvalidKey, len(s), utils.MaxKeyLength)
	}
	if !IsSuperincreasing(s) {
		return fmt.Errorf("%w: private sequence is not superincreasing", knapsack.ErrInvalidKey)
	}
	if q == nil || r == nil {
		return fmt.Errorf("%w: missing modulus or multiplier", knapsack.ErrInvalidKey)
	}
	if q.Cmp(sk.Sum()) <= 0 {
		return fmt.Errorf("%w: modulus %s must exceed sum(s) = %s", knapsack.ErrInvalidKey, q, sk.Sum())
	}
	if r.Cmp(big.NewInt(1)) <= 0 || r.Cmp(q) >= 0 {
		return fmt.Errorf("%w: multiplier %s must lie in (1, %s)", knapsack.ErrInvalidKey, r, q)
	}
	if !modarith.IsCoprime(r, q) {
		return fmt.Errorf("%w: multiplier %s is not coprime to modulus %s", knapsack.ErrInvalidKey, r, q)
	}
	return nil
}

// ValidatePublicKey checks that pk has exactly length elements, each non-negative.
func ValidatePublicKey(pk knapsack.PublicKey, length int) error {
	if pk.Len() != length {
		return fmt.Errorf("%w: public key has %d elements, want %d", knapsack.ErrInvalidKey, pk.Len(), length)
	}
	for i, x := range pk.Elements() {
		if x == nil || x.Sign() < 0 {
			return fmt.Errorf("%w: public key element %d is negative or missing", knapsack.ErrInvalidKey, i)
		}
	}
	return nil
}

// ValidateKeyPair validates the private key and checks that the public key is
// exactly s[i]*r mod q for every i. It is run on every key record loaded from
// storage, so a tampered or mismatched record is rejected before use.
func ValidateKeyPair(kp knapsack.KeyPair) error {
	if err := ValidatePrivateKey(kp.PrivateKey); err != nil {
		return err
	}
	if err := ValidatePublicKey(kp.PublicKey, kp.PrivateKey.Len()); err != nil {
		return err
	}

	q, r := kp.PrivateKey.Q(), kp.PrivateKey.R()
	pub := kp.PublicKey.Elements()
	for i, si := range kp.PrivateKey.S() {
		if modarith.MulMod(si, r, q).Cmp(pub[i]) != 0 {
			return fmt.Errorf("%w: public key element %d does not match the private key", knapsack.ErrInvalidKey, i)
		}
	}
	return nil
}

// DerivePublicKey computes public[i] = s[i]*r mod q.
func DerivePublicKey(sk knapsack.PrivateKey) knapsack.PublicKey {
	q, r := sk.Q(), sk.R()
	s := sk.S()
	pub := make([]*big.Int, len(s))
	for i, si := range s {
		pub[i] = modarith.MulMod(si, r, q)
	}
	return knapsack.NewPublicKey(pub)
}
