package cipher

import (
	"fmt"
	"math/big"

	knapsack "github.com/wizardkids/knapsack"
	"github.com/wizardkids/knapsack/core"
	"github.com/wizardkids/knapsack/modarith"
	"github.com/wizardkids/knapsack/utils"
)

// Decompose writes target as a subset sum of the superincreasing sequence s
// and returns the selected indices in ascending order. Scanning s from its
// largest element down, each element that fits is taken; a superincreasing
// sequence makes this choice the only possible one. A non-zero remainder
// means target is not a subset sum of s and yields ErrDecryptionFailed.
func Decompose(target *big.Int, s []*big.Int) ([]int, error) {
	if target.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative target %s", knapsack.ErrDecryptionFailed, target)
	}

	rem := new(big.Int).Set(target)
	var picked []int
	for i := len(s) - 1; i >= 0 && rem.Sign() > 0; i-- {
		if s[i].Cmp(rem) <= 0 {
			rem.Sub(rem, s[i])
			picked = append(picked, i)
		}
	}
	if rem.Sign() != 0 {
		return nil, fmt.Errorf("%w: %s leaves remainder %s", knapsack.ErrDecryptionFailed, target, rem)
	}

	// Reverse into ascending order.
	for i, j := 0, len(picked)-1; i < j; i, j = i+1, j-1 {
		picked[i], picked[j] = picked[j], picked[i]
	}
	return picked, nil
}

// IndicesToByte sets bit i (0 = most significant of width bits) for every index.
func IndicesToByte(indices []int, width int) byte {
	var b byte
	for _, i := range indices {
		b |= 1 << uint(width-1-i)
	}
	return b
}

// Decrypt recovers the plaintext of ct with the private key (s, q, r).
// Any element that does not decompose aborts the whole decryption with
// ErrDecryptionFailed; no partial plaintext is returned.
func Decrypt(ct knapsack.Ciphertext, s []*big.Int, q, r *big.Int) ([]byte, error) {
	sk := knapsack.NewPrivateKey(s, q, r)
	if err := core.ValidatePrivateKey(sk); err != nil {
		return nil, err
	}
	if sk.Len() != knapsack.ByteWidth {
		return nil, fmt.Errorf("%w: private sequence has %d elements, want %d", knapsack.ErrInvalidKey, sk.Len(), knapsack.ByteWidth)
	}
	if err := utils.CheckLength(len(ct), utils.MaxCiphertextElements); err != nil {
		return nil, fmt.Errorf("%w: %v", knapsack.ErrMalformedCiphertext, err)
	}

	rInv, err := modarith.ModularInverse(sk.Q(), sk.R())
	if err != nil {
		return nil, err
	}

	seq := sk.S()
	modulus := sk.Q()
	defer utils.ZeroizeBigInts(append(seq, rInv, modulus))
	plaintext := make([]byte, len(ct))
	err = forEachRange(len(ct), func(lo, hi int) error {
		target := new(big.Int)
		for i := lo; i < hi; i++ {
			c := ct[i]
			if c == nil || c.Sign() < 0 {
				return fmt.Errorf("%w: element %d is negative or missing", knapsack.ErrMalformedCiphertext, i)
			}
			target.Mul(c, rInv)
			target.Mod(target, modulus)

			indices, err := Decompose(target, seq)
			if err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
			plaintext[i] = IndicesToByte(indices, knapsack.ByteWidth)
		}
		return nil
	})
	if err != nil {
		utils.Zeroize(plaintext)
		return nil, err
	}
	return plaintext, nil
}

// DecryptWithKey is Decrypt with the private key passed as one value.
func DecryptWithKey(ct knapsack.Ciphertext, sk knapsack.PrivateKey) ([]byte, error) {
	return Decrypt(ct, sk.S(), sk.Q(), sk.R())
}
