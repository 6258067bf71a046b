// Package keygen generates Merkle-Hellman key pairs.
package keygen

import (
	"fmt"
	"io"
	"math/big"

	knapsack "github.com/wizardkids/knapsack"
	"github.com/wizardkids/knapsack/core"
	"github.com/wizardkids/knapsack/modarith"
	"github.com/wizardkids/knapsack/utils"
)

// DomainKeyGen separates key-generation seeds from other uses of a seed.
const DomainKeyGen = "knapsack-keygen-v1"

var (
	bigOne = big.NewInt(1)
	bigTwo = big.NewInt(2)
)

// GenerateKeyPair generates a key pair whose private sequence has length
// elements (0 selects knapsack.DefaultKeyLength), drawing randomness from
// entropy. A nil entropy uses utils.RandReader.
func GenerateKeyPair(length int, entropy io.Reader) (*knapsack.KeyPair, error) {
	params, err := core.GetParams(length)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", knapsack.ErrInvalidKey, err)
	}
	if entropy == nil {
		entropy = utils.RandReader
	}
	return generate(params, entropy)
}

// GenerateKeyPairFromSeed generates a deterministic key pair from seed.
// The seed is expanded with HKDF and fed to a SHAKE256 stream, so equal seeds
// always produce equal key pairs.
func GenerateKeyPairFromSeed(length int, seed []byte) (*knapsack.KeyPair, error) {
	if err := utils.ValidateSeedEntropy(seed); err != nil {
		return nil, err
	}
	derived, err := utils.DeriveSeed(seed, DomainKeyGen)
	if err != nil {
		return nil, err
	}
	defer utils.Zeroize(derived)
	return GenerateKeyPair(length, utils.NewShakeReader(derived))
}

func generate(params knapsack.Params, entropy io.Reader) (*knapsack.KeyPair, error) {
	s, err := superincreasingSequence(params, entropy)
	if err != nil {
		return nil, err
	}

	// q is drawn from [sum+1, 2*sum], so q > sum(s).
	sum := sumOf(s)
	q, err := utils.RandomIntRange(entropy, new(big.Int).Add(sum, bigOne), new(big.Int).Mul(sum, bigTwo))
	if err != nil {
		return nil, err
	}

	r, err := coprimeMultiplier(q, entropy)
	if err != nil {
		return nil, err
	}

	sk := knapsack.NewPrivateKey(s, q, r)
	if err := core.ValidatePrivateKey(sk); err != nil {
		return nil, err
	}

	return &knapsack.KeyPair{
		PublicKey:  core.DerivePublicKey(sk),
		PrivateKey: sk,
	}, nil
}

// superincreasingSequence seeds s with a random initial element, then
// alternately appends sum(s)+1 and 2*sum(s) until s has params.KeyLength
// elements. Both values exceed the running sum, so s stays superincreasing.
func superincreasingSequence(params knapsack.Params, entropy io.Reader) ([]*big.Int, error) {
	initial, err := utils.RandomIntRange(entropy, big.NewInt(int64(params.InitialMin)), big.NewInt(int64(params.InitialMax)))
	if err != nil {
		return nil, err
	}

	s := make([]*big.Int, 0, params.KeyLength)
	s = append(s, initial)
	sum := new(big.Int).Set(initial)

	for len(s) < params.KeyLength {
		next := new(big.Int).Add(sum, bigOne)
		s = append(s, next)
		sum.Add(sum, next)

		if len(s) < params.KeyLength {
			next = new(big.Int).Mul(sum, bigTwo)
			s = append(s, next)
			sum.Add(sum, next)
		}
	}
	return s, nil
}

// coprimeMultiplier draws r from [2, q-1] until gcd(r, q) == 1.
// q-1 is always coprime to q, so the loop terminates with probability 1.
func coprimeMultiplier(q *big.Int, entropy io.Reader) (*big.Int, error) {
	hi := new(big.Int).Sub(q, bigOne)
	for {
		r, err := utils.RandomIntRange(entropy, bigTwo, hi)
		if err != nil {
			return nil, err
		}
		if modarith.IsCoprime(r, q) {
			return r, nil
		}
	}
}

func sumOf(xs []*big.Int) *big.Int {
	sum := new(big.Int)
	for _, x := range xs {
		sum.Add(sum, x)
	}
	return sum
}
