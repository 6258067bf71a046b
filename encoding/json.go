// Package encoding converts keys and ciphertexts to and from their record
// formats: JSON key records, space-joined ciphertext text, the combined
// bundle record and a compact CBOR key record.
package encoding

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	knapsack "github.com/wizardkids/knapsack"
	"github.com/wizardkids/knapsack/core"
	"github.com/wizardkids/knapsack/utils"
)

// maxElementDigits bounds the decimal length of a single ciphertext element.
const maxElementDigits = 1 << 14

// KeyRecord is the JSON shape of a key pair:
// {"public_key": [...], "s": [...], "q": n, "r": n}.
type KeyRecord struct {
	PublicKey []*big.Int `json:"public_key"`
	S         []*big.Int `json:"s"`
	Q         *big.Int   `json:"q"`
	R         *big.Int   `json:"r"`
}

// PublicKeyRecord is the JSON shape of a public key shared with other parties.
type PublicKeyRecord struct {
	PublicKey []*big.Int `json:"public_key"`
}

// CiphertextRecord is the JSON shape of a ciphertext: the elements joined by spaces.
type CiphertextRecord struct {
	EncryptedMsg string `json:"encrypted_msg"`
}

// BundleRecord stores a ciphertext together with the key pair that decrypts it.
type BundleRecord struct {
	EncryptedMsg string `json:"encrypted_msg"`
	KeyRecord
}

// NewKeyRecord converts a key pair to its record form.
func NewKeyRecord(kp *knapsack.KeyPair) KeyRecord {
	return KeyRecord{
		PublicKey: kp.PublicKey.Elements(),
		S:         kp.PrivateKey.S(),
		Q:         kp.PrivateKey.Q(),
		R:         kp.PrivateKey.R(),
	}
}

// KeyPair converts the record to a key pair and validates it.
func (rec KeyRecord) KeyPair() (*knapsack.KeyPair, error) {
	if err := utils.CheckLength(len(rec.S), utils.MaxKeyLength); err != nil {
		return nil, fmt.Errorf("%w: %v", knapsack.ErrInvalidKey, err)
	}
	kp := &knapsack.KeyPair{
		PublicKey:  knapsack.NewPublicKey(rec.PublicKey),
		PrivateKey: knapsack.NewPrivateKey(rec.S, rec.Q, rec.R),
	}
	if err := core.ValidateKeyPair(*kp); err != nil {
		return nil, err
	}
	return kp, nil
}

// MarshalKeyRecord encodes a key pair as an indented JSON key record.
func MarshalKeyRecord(kp *knapsack.KeyPair) ([]byte, error) {
	return json.MarshalIndent(NewKeyRecord(kp), "", "  ")
}

// UnmarshalKeyRecord decodes and validates a JSON key record. Unknown fields
// are ignored, so a bundle record also decodes as a key record.
func UnmarshalKeyRecord(data []byte) (*knapsack.KeyPair, error) {
	if err := utils.CheckLength(len(data), utils.MaxRecordSize); err != nil {
		return nil, err
	}
	var rec KeyRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", knapsack.ErrInvalidKey, err)
	}
	return rec.KeyPair()
}

// MarshalPublicKey encodes only the public half of a key pair.
func MarshalPublicKey(pk knapsack.PublicKey) ([]byte, error) {
	return json.MarshalIndent(PublicKeyRecord{PublicKey: pk.Elements()}, "", "  ")
}

// UnmarshalPublicKey decodes the public_key field of a public key, key or
// bundle record. The key must have knapsack.ByteWidth elements.
func UnmarshalPublicKey(data []byte) (knapsack.PublicKey, error) {
	if err := utils.CheckLength(len(data), utils.MaxRecordSize); err != nil {
		return knapsack.PublicKey{}, err
	}
	var rec PublicKeyRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return knapsack.PublicKey{}, fmt.Errorf("%w: %v", knapsack.ErrInvalidKey, err)
	}
	pk := knapsack.NewPublicKey(rec.PublicKey)
	if err := core.ValidatePublicKey(pk, knapsack.ByteWidth); err != nil {
		return knapsack.PublicKey{}, err
	}
	return pk, nil
}

// FormatCiphertext joins the ciphertext elements with single spaces.
func FormatCiphertext(ct knapsack.Ciphertext) string {
	parts := make([]string, len(ct))
	for i, c := range ct {
		parts[i] = c.String()
	}
	return strings.Join(parts, " ")
}

// ParseCiphertext parses whitespace-separated non-negative decimal integers.
// Empty input, signs, non-digits and oversized elements are rejected with
// knapsack.ErrMalformedCiphertext.
func ParseCiphertext(text string) (knapsack.Ciphertext, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no elements", knapsack.ErrMalformedCiphertext)
	}
	if err := utils.CheckLength(len(fields), utils.MaxCiphertextElements); err != nil {
		return nil, fmt.Errorf("%w: %v", knapsack.ErrMalformedCiphertext, err)
	}

	ct := make(knapsack.Ciphertext, len(fields))
	for i, f := range fields {
		if len(f) > maxElementDigits || !isDigits(f) {
			return nil, fmt.Errorf("%w: element %d %q is not a non-negative integer", knapsack.ErrMalformedCiphertext, i, truncate(f))
		}
		c, ok := new(big.Int).SetString(f, 10)
		if !ok {
			return nil, fmt.Errorf("%w: element %d %q is not a non-negative integer", knapsack.ErrMalformedCiphertext, i, truncate(f))
		}
		ct[i] = c
	}
	return ct, nil
}

// MarshalCiphertext encodes a ciphertext record.
func MarshalCiphertext(ct knapsack.Ciphertext) ([]byte, error) {
	return json.MarshalIndent(CiphertextRecord{EncryptedMsg: FormatCiphertext(ct)}, "", "  ")
}

// UnmarshalCiphertext decodes the encrypted_msg field of a ciphertext or bundle record.
func UnmarshalCiphertext(data []byte) (knapsack.Ciphertext, error) {
	if err := utils.CheckLength(len(data), utils.MaxRecordSize); err != nil {
		return nil, fmt.Errorf("%w: %v", knapsack.ErrMalformedCiphertext, err)
	}
	var rec CiphertextRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", knapsack.ErrMalformedCiphertext, err)
	}
	return ParseCiphertext(rec.EncryptedMsg)
}

// MarshalBundle encodes a ciphertext with the key pair that produced it.
func MarshalBundle(ct knapsack.Ciphertext, kp *knapsack.KeyPair) ([]byte, error) {
	return json.MarshalIndent(BundleRecord{
		EncryptedMsg: FormatCiphertext(ct),
		KeyRecord:    NewKeyRecord(kp),
	}, "", "  ")
}

// UnmarshalBundle decodes a bundle record into its ciphertext and key pair.
func UnmarshalBundle(data []byte) (knapsack.Ciphertext, *knapsack.KeyPair, error) {
	kp, err := UnmarshalKeyRecord(data)
	if err != nil {
		return nil, nil, err
	}
	ct, err := UnmarshalCiphertext(data)
	if err != nil {
		return nil, nil, err
	}
	return ct, kp, nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}

func truncate(s string) string {
	if len(s) > 32 {
		return s[:32] + "..."
	}
	return s
}
