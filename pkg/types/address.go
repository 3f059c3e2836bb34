package types

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/base58"
)

// AddressSize is the length of an address payload (hash160) in bytes.
const AddressSize = 20

// Address version bytes for base58check encoding.
const (
	MainnetP2PKHVersion byte = 0x28
	TestnetP2PKHVersion byte = 0x49
)

// activeVersion is the address version byte used by String() and
// MarshalJSON(). Set once at startup via SetAddressVersion(). Default is
// mainnet.
var activeVersion = MainnetP2PKHVersion

// SetAddressVersion sets the active address version byte (call once at startup).
func SetAddressVersion(version byte) {
	activeVersion = version
}

// GetAddressVersion returns the currently active address version byte.
func GetAddressVersion() byte {
	return activeVersion
}

// Address represents a 160-bit address (public key hash).
type Address [AddressSize]byte

// IsZero returns true if the address is all zeros.
func (a Address) IsZero() bool {
	return a == Address{}
}

// String returns the base58check-encoded address with the active version byte.
func (a Address) String() string {
	return base58.CheckEncode(a[:], activeVersion)
}

// MarshalJSON encodes the address as its base58check string.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes a base58check string into an address.
func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*a = Address{}
		return nil
	}
	addr, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*a = addr
	return nil
}

// ParseAddress decodes a base58check address string. The version byte must
// match the active network version.
func ParseAddress(s string) (Address, error) {
	payload, version, err := base58.CheckDecode(s)
	if err != nil {
		return Address{}, fmt.Errorf("decode address %q: %w", s, err)
	}
	if version != activeVersion {
		return Address{}, fmt.Errorf("address %q has version 0x%02x, want 0x%02x", s, version, activeVersion)
	}
	if len(payload) != AddressSize {
		return Address{}, fmt.Errorf("address payload must be %d bytes, got %d", AddressSize, len(payload))
	}
	var a Address
	copy(a[:], payload)
	return a, nil
}

// AddressFromHash160 builds an Address from a raw 20-byte hash.
func AddressFromHash160(b []byte) (Address, error) {
	if len(b) != AddressSize {
		return Address{}, fmt.Errorf("hash160 must be %d bytes, got %d", AddressSize, len(b))
	}
	var a Address
	copy(a[:], b)
	return a, nil
}

// Checksum returns the first 4 bytes of sha256d over data. Exposed for
// script-level address validation.
func Checksum(data []byte) [4]byte {
	first := sha256.Sum256(data)
	second := sha256.Sum256(first[:])
	var out [4]byte
	copy(out[:], second[:4])
	return out
}
