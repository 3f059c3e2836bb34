package types

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
)

// Script opcodes used by wallet P2PKH outputs.
const (
	OpGreaterThanTimestamp byte = 0x6f
	OpDup                  byte = 0x76
	OpEqualVerify          byte = 0x88
	OpHash160              byte = 0xa9
	OpCheckSig             byte = 0xac
)

// Script is a raw locking script attached to an output.
type Script []byte

// BuildP2PKH builds a pay-to-public-key-hash locking script for addr.
// When timelock is non-zero the script is prefixed with a 4-byte big-endian
// timestamp and OP_GREATERTHAN_TIMESTAMP, making the output unspendable
// before that time.
func BuildP2PKH(addr Address, timelock uint32) Script {
	var s []byte
	if timelock > 0 {
		s = append(s, 4)
		s = binary.BigEndian.AppendUint32(s, timelock)
		s = append(s, OpGreaterThanTimestamp)
	}
	s = append(s, OpDup, OpHash160, byte(AddressSize))
	s = append(s, addr[:]...)
	s = append(s, OpEqualVerify, OpCheckSig)
	return s
}

// ParseP2PKH decodes a P2PKH locking script, returning the destination
// address and timelock (0 when absent). ok is false for any other script
// shape.
func ParseP2PKH(s Script) (addr Address, timelock uint32, ok bool) {
	rest := []byte(s)

	// Optional timelock prefix: push(4) + timestamp + OP_GREATERTHAN_TIMESTAMP.
	if len(rest) >= 6 && rest[0] == 4 && rest[5] == OpGreaterThanTimestamp {
		timelock = binary.BigEndian.Uint32(rest[1:5])
		rest = rest[6:]
	}

	if len(rest) != 3+AddressSize+2 {
		return Address{}, 0, false
	}
	if rest[0] != OpDup || rest[1] != OpHash160 || rest[2] != byte(AddressSize) {
		return Address{}, 0, false
	}
	tail := rest[3+AddressSize:]
	if tail[0] != OpEqualVerify || tail[1] != OpCheckSig {
		return Address{}, 0, false
	}
	copy(addr[:], rest[3:3+AddressSize])
	return addr, timelock, true
}

// BuildInputData assembles the signature script for a signed P2PKH input:
// push(signature) + push(pubkey).
func BuildInputData(signature, pubKey []byte) []byte {
	data := make([]byte, 0, 2+len(signature)+len(pubKey))
	data = append(data, byte(len(signature)))
	data = append(data, signature...)
	data = append(data, byte(len(pubKey)))
	data = append(data, pubKey...)
	return data
}

// ParseScriptHex decodes a hex-encoded script.
func ParseScriptHex(s string) (Script, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return Script(b), nil
}

// MarshalJSON encodes the script as hex.
func (s Script) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(s))
}

// UnmarshalJSON decodes a hex string into a script.
func (s *Script) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	if str == "" {
		*s = nil
		return nil
	}
	b, err := hex.DecodeString(str)
	if err != nil {
		return err
	}
	*s = b
	return nil
}
