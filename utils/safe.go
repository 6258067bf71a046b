// Package utils provides utility functions for the knapsack cryptosystem.
// This file contains length limits and checks that bound allocations made
// while parsing untrusted records.

package utils

import (
	"errors"
	"fmt"
)

// Maximum allowed lengths to prevent DoS via large allocations.
const (
	// MaxKeyLength is the longest private sequence accepted by key generation and parsing.
	MaxKeyLength = 1 << 12

	// MaxMessageSize is the maximum allowed message size in bytes.
	MaxMessageSize = 1 << 20 // 1MB

	// MaxCiphertextElements is the maximum number of ciphertext elements; one per message byte.
	MaxCiphertextElements = MaxMessageSize

	// MaxRecordSize is the largest serialized key or ciphertext record read from disk.
	MaxRecordSize = 100 * 1024 * 1024 // 100 MB
)

var (
	// ErrExceedsLimit indicates a value exceeds the allowed limit.
	ErrExceedsLimit = errors.New("value exceeds allowed limit")

	// ErrInvalidLength indicates an invalid length value.
	ErrInvalidLength = errors.New("invalid length")
)

// CheckLength validates that length is within [0, maxAllowed].
func CheckLength(length, maxAllowed int) error {
	if length < 0 {
		return ErrInvalidLength
	}
	if length > maxAllowed {
		return fmt.Errorf("%w: %d > %d", ErrExceedsLimit, length, maxAllowed)
	}
	return nil
}

// CheckPositive validates that value is > 0.
func CheckPositive(value int, name string) error {
	if value <= 0 {
		return errors.New(name + " must be positive")
	}
	return nil
}
