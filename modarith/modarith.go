// Package modarith provides the integer arithmetic used by the knapsack
// cryptosystem: GCD, coprimality and modular inverses on arbitrary-precision
// integers.
package modarith

import (
	"fmt"
	"math/big"

	knapsack "github.com/wizardkids/knapsack"
)

var one = big.NewInt(1)

// GCD returns the greatest common divisor of a and b using the Euclidean
// algorithm. The result is non-negative; GCD(0, 0) is 0.
func GCD(a, b *big.Int) *big.Int {
	x := new(big.Int).Abs(a)
	y := new(big.Int).Abs(b)
	t := new(big.Int)
	for y.Sign() != 0 {
		t.Mod(x, y)
		x, y, t = y, t, x
	}
	return x
}

// IsCoprime reports whether gcd(a, b) == 1.
func IsCoprime(a, b *big.Int) bool {
	return GCD(a, b).Cmp(one) == 0
}

// ExtendedGCD returns (g, x, y) such that a*x + b*y = g = gcd(a, b).
func ExtendedGCD(a, b *big.Int) (g, x, y *big.Int) {
	oldR, r := new(big.Int).Set(a), new(big.Int).Set(b)
	oldS, s := big.NewInt(1), big.NewInt(0)
	oldT, t := big.NewInt(0), big.NewInt(1)

	quo := new(big.Int)
	tmp := new(big.Int)
	for r.Sign() != 0 {
		quo.Quo(oldR, r)

		// (oldR, r) = (r, oldR - quo*r), likewise for s and t.
		tmp.Mul(quo, r)
		oldR, r = r, new(big.Int).Sub(oldR, tmp)
		tmp.Mul(quo, s)
		oldS, s = s, new(big.Int).Sub(oldS, tmp)
		tmp.Mul(quo, t)
		oldT, t = t, new(big.Int).Sub(oldT, tmp)
	}

	if oldR.Sign() < 0 {
		oldR.Neg(oldR)
		oldS.Neg(oldS)
		oldT.Neg(oldT)
	}
	return oldR, oldS, oldT
}

// ModularInverse returns x in [0, q) such that (r * x) mod q == 1.
// It fails with knapsack.ErrInvalidKey when q <= 1 or gcd(q, r) != 1.
func ModularInverse(q, r *big.Int) (*big.Int, error) {
	if q == nil || r == nil {
		return nil, fmt.Errorf("%w: missing modulus or multiplier", knapsack.ErrInvalidKey)
	}
	if q.Cmp(one) <= 0 {
		return nil, fmt.Errorf("%w: modulus %s must be greater than 1", knapsack.ErrInvalidKey, q)
	}

	g, x, _ := ExtendedGCD(r, q)
	if g.Cmp(one) != 0 {
		return nil, fmt.Errorf("%w: gcd(%s, %s) = %s, multiplier has no inverse", knapsack.ErrInvalidKey, r, q, g)
	}

	// big.Int.Mod is Euclidean, so the result is already in [0, q).
	return x.Mod(x, q), nil
}

// MulMod returns (a * b) mod m in [0, m).
func MulMod(a, b, m *big.Int) *big.Int {
	z := new(big.Int).Mul(a, b)
	return z.Mod(z, m)
}
