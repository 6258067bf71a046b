package cipher

import (
	"fmt"
	"math/big"

	knapsack "github.com/wizardkids/knapsack"
	"github.com/wizardkids/knapsack/core"
	"github.com/wizardkids/knapsack/utils"
)

// ByteBits returns the low width bits of b, most significant first.
// ByteBits(0b101101, 6) is [1 0 1 1 0 1].
func ByteBits(b byte, width int) []byte {
	bits := make([]byte, width)
	for i := 0; i < width; i++ {
		bits[i] = (b >> uint(width-1-i)) & 1
	}
	return bits
}

// SubsetSum returns the sum of pub[i] over every i with bits[i] == 1.
func SubsetSum(pub []*big.Int, bits []byte) (*big.Int, error) {
	if len(pub) != len(bits) {
		return nil, fmt.Errorf("%w: %d key elements for %d bits", knapsack.ErrInvalidKey, len(pub), len(bits))
	}
	sum := new(big.Int)
	for i, bit := range bits {
		if bit == 1 {
			sum.Add(sum, pub[i])
		}
	}
	return sum, nil
}

// Encrypt returns one subset sum of pk per byte of message, in message order.
// pk must have exactly knapsack.ByteWidth elements.
func Encrypt(message []byte, pk knapsack.PublicKey) (knapsack.Ciphertext, error) {
	if err := core.ValidatePublicKey(pk, knapsack.ByteWidth); err != nil {
		return nil, err
	}
	if err := utils.CheckLength(len(message), utils.MaxMessageSize); err != nil {
		return nil, fmt.Errorf("message too large: %w", err)
	}

	table, err := byteTable(pk.Elements())
	if err != nil {
		return nil, err
	}

	ct := make(knapsack.Ciphertext, len(message))
	for i, b := range message {
		ct[i] = new(big.Int).Set(table[b])
	}
	return ct, nil
}

// byteTable precomputes the ciphertext of every byte value.
func byteTable(pub []*big.Int) (*[256]*big.Int, error) {
	var table [256]*big.Int
	for b := 0; b < 256; b++ {
		sum, err := SubsetSum(pub, ByteBits(byte(b), knapsack.ByteWidth))
		if err != nil {
			return nil, err
		}
		table[b] = sum
	}
	return &table, nil
}
