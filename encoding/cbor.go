package encoding

import (
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"

	knapsack "github.com/wizardkids/knapsack"
	"github.com/wizardkids/knapsack/utils"
)

// DomainFingerprint separates public-key fingerprints from other hashes.
const DomainFingerprint = "knapsack-pk-fingerprint-v1"

// rawKeyPair is the CBOR shape of a key pair. Integer keys keep the
// encoding compact; big integers are encoded as CBOR bignums when they do not
// fit in 64 bits.
type rawKeyPair struct {
	PublicKey []*big.Int `cbor:"1,keyasint"`
	S         []*big.Int `cbor:"2,keyasint"`
	Q         *big.Int   `cbor:"3,keyasint"`
	R         *big.Int   `cbor:"4,keyasint"`
}

type rawPublicKey struct {
	PublicKey []*big.Int `cbor:"1,keyasint"`
}

var (
	cborEnc = mustEncMode(cbor.CoreDetEncOptions())
	cborDec = mustDecMode(cbor.DecOptions{
		MaxArrayElements: utils.MaxKeyLength,
		MaxMapPairs:      16,
		MaxNestedLevels:  4,
	})
)

func mustEncMode(opts cbor.EncOptions) cbor.EncMode {
	em, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}

func mustDecMode(opts cbor.DecOptions) cbor.DecMode {
	dm, err := opts.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}

// EncodeKeyPairCBOR encodes a key pair as deterministic CBOR.
func EncodeKeyPairCBOR(kp *knapsack.KeyPair) ([]byte, error) {
	rec := NewKeyRecord(kp)
	return cborEnc.Marshal(rawKeyPair{
		PublicKey: rec.PublicKey,
		S:         rec.S,
		Q:         rec.Q,
		R:         rec.R,
	})
}

// DecodeKeyPairCBOR decodes and validates a CBOR key pair.
func DecodeKeyPairCBOR(data []byte) (*knapsack.KeyPair, error) {
	if err := utils.CheckLength(len(data), utils.MaxRecordSize); err != nil {
		return nil, err
	}
	var raw rawKeyPair
	if err := cborDec.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", knapsack.ErrInvalidKey, err)
	}
	return KeyRecord{
		PublicKey: raw.PublicKey,
		S:         raw.S,
		Q:         raw.Q,
		R:         raw.R,
	}.KeyPair()
}

// Fingerprint returns the domain-separated SHA3-256 hash of the canonical
// CBOR encoding of pk.
func Fingerprint(pk knapsack.PublicKey) ([]byte, error) {
	data, err := cborEnc.Marshal(rawPublicKey{PublicKey: pk.Elements()})
	if err != nil {
		return nil, err
	}
	return utils.HashWithDomain(DomainFingerprint, data), nil
}

// VerifyFingerprint reports whether pk hashes to want.
func VerifyFingerprint(pk knapsack.PublicKey, want []byte) bool {
	got, err := Fingerprint(pk)
	if err != nil {
		return false
	}
	return utils.ConstantTimeEqual(got, want)
}
