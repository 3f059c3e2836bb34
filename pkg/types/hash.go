// Package types defines core primitive types for the Hathor wallet engine.
package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// HashSize is the length of a transaction hash in bytes.
const HashSize = 32

// Hash represents a 256-bit transaction id.
type Hash [HashSize]byte

// TokenID identifies a token. The zero value is the native token (HTR),
// which the network renders as "00". Custom tokens use the 32-byte id of
// the transaction that created them.
type TokenID Hash

// NativeTokenID is the id of the native token (HTR).
var NativeTokenID = TokenID{}

// nativeTokenString is the wire representation of the native token uid.
const nativeTokenString = "00"

// IsZero returns true if the hash is all zeros.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// String returns the hex-encoded hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Bytes returns a copy of the hash as a byte slice.
func (h Hash) Bytes() []byte {
	b := make([]byte, HashSize)
	copy(b, h[:])
	return b
}

// MarshalJSON encodes the hash as a hex string.
func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// UnmarshalJSON decodes a hex string into a hash.
func (h *Hash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*h = Hash{}
		return nil
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid hash hex: %w", err)
	}
	if len(decoded) != HashSize {
		return fmt.Errorf("hash must be %d bytes, got %d", HashSize, len(decoded))
	}
	copy(h[:], decoded)
	return nil
}

// HexToHash converts a hex string to a Hash.
// Returns an error if the string is not exactly 64 hex characters.
func HexToHash(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("invalid hex: %w", err)
	}
	if len(b) != HashSize {
		return Hash{}, fmt.Errorf("hash must be %d bytes, got %d", HashSize, len(b))
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

// IsNative returns true if this is the native token (HTR).
func (t TokenID) IsNative() bool {
	return Hash(t).IsZero()
}

// String returns the token uid: "00" for the native token, hex otherwise.
func (t TokenID) String() string {
	if t.IsNative() {
		return nativeTokenString
	}
	return Hash(t).String()
}

// MarshalJSON encodes the token uid string.
func (t TokenID) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes a token uid string.
func (t *TokenID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	id, err := ParseTokenID(s)
	if err != nil {
		return err
	}
	*t = id
	return nil
}

// ParseTokenID converts a token uid string to a TokenID.
// "00" (or empty) maps to the native token.
func ParseTokenID(s string) (TokenID, error) {
	if s == "" || s == nativeTokenString {
		return NativeTokenID, nil
	}
	h, err := HexToHash(s)
	if err != nil {
		return TokenID{}, fmt.Errorf("invalid token uid: %w", err)
	}
	return TokenID(h), nil
}
