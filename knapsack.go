// Package knapsack implements the Merkle-Hellman knapsack cryptosystem.
// This package holds the shared value types and error kinds; the operations
// live in the sub-packages listed below.
package knapsack

// Version of the knapsack Go implementation.
const Version = "0.2.0"

// API summary:
//
// Key Generation:
//   - keygen.GenerateKeyPair(length, entropy) - Generate a key pair from an entropy source
//   - keygen.GenerateKeyPairFromSeed(length, seed) - Deterministic key pair from a seed
//
// Encryption:
//   - cipher.Encrypt(message, pk) - Map each byte to a subset sum of the public key
//   - cipher.Decrypt(ct, s, q, r) - Invert the trapdoor and decompose greedily
//   - cipher.DecryptWithKey(ct, sk) - Same as Decrypt, taking a PrivateKey
//
// Modular Arithmetic:
//   - modarith.GCD(a, b), modarith.IsCoprime(a, b), modarith.ModularInverse(q, r)
//
// Records:
//   - encoding.MarshalKeyRecord / UnmarshalKeyRecord - JSON key record
//   - encoding.FormatCiphertext / ParseCiphertext - space-joined ciphertext text
//   - encoding.EncodeKeyPairCBOR / DecodeKeyPairCBOR - compact binary key record
//   - encoding.Fingerprint(pk) - SHA3-256 fingerprint of a public key
//   - keystore.Open(dir, format) - key records addressed by party name
