// Package tx defines the transaction model, its wire serialization and the
// transaction builder.
package tx

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/HathorNetwork/hathor-wallet-lib-sub010/pkg/crypto"
	"github.com/HathorNetwork/hathor-wallet-lib-sub010/pkg/types"
)

// Token authority masks carried in the value field of authority outputs.
// Authority outputs never hold a monetary amount: their value IS the mask.
const (
	AuthorityMint uint64 = 0b01
	AuthorityMelt uint64 = 0b10
	AuthorityAll  uint64 = AuthorityMint | AuthorityMelt
)

// Token-data byte layout: authorityBit<<7 | tokenIndex.
const (
	TokenDataAuthorityBit byte = 0x80
	TokenIndexMask        byte = 0x7f
)

// DefaultVersion is the transaction version emitted by this wallet.
const DefaultVersion uint16 = 1

// TokenCreationVersion marks a token creation transaction. Its outputs at
// token index 1 refer to the token being created, whose uid becomes the
// transaction id itself.
const TokenCreationVersion uint16 = 2

// maxCompactValue is the largest output value that serializes in 4 bytes.
// Larger values use 8 bytes with the top bit of the first byte set.
const maxCompactValue = 1<<31 - 1

// Deserialization errors.
var (
	ErrTruncated      = errors.New("tx: serialized transaction truncated")
	ErrTrailingBytes  = errors.New("tx: trailing bytes after transaction")
	ErrUnknownToken   = errors.New("tx: token not in transaction token list")
	ErrInputIndexWide = errors.New("tx: input output-index exceeds one byte")
)

// Input references a UTXO being spent. Data holds the signature script
// (push(sig) + push(pubkey)), empty until signing.
type Input struct {
	PrevOut types.Outpoint `json:"prev_out"`
	Data    []byte         `json:"data,omitempty"`
}

// Output defines a new UTXO. For authority outputs Value carries the
// authority mask and TokenData has the authority bit set.
type Output struct {
	Value     uint64       `json:"value"`
	TokenData byte         `json:"token_data"`
	Script    types.Script `json:"script"`
}

// IsAuthority returns true if the output grants a token authority.
func (o Output) IsAuthority() bool {
	return o.TokenData&TokenDataAuthorityBit != 0
}

// TokenIndex returns the output's position in the transaction token list:
// 0 for the native token, 1-based into Tokens otherwise.
func (o Output) TokenIndex() int {
	return int(o.TokenData & TokenIndexMask)
}

// FeeEntry declares a fee owed in the token at TokenIndex, recorded in the
// transaction's fee header.
type FeeEntry struct {
	TokenIndex byte   `json:"token_index"`
	Amount     uint64 `json:"amount"`
}

// Transaction is a wallet-built transaction. Tokens lists custom token ids
// in first-seen order; the native token is implicit at index 0 and never
// appears in the list.
type Transaction struct {
	Version   uint16          `json:"version"`
	Tokens    []types.TokenID `json:"tokens"`
	Inputs    []Input         `json:"inputs"`
	Outputs   []Output        `json:"outputs"`
	Fees      []FeeEntry      `json:"fees,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Token returns the token id for a token-list index as used in token-data
// bytes (0 = native).
func (t *Transaction) Token(index int) (types.TokenID, error) {
	if index == 0 {
		return types.NativeTokenID, nil
	}
	if index < 1 || index > len(t.Tokens) {
		return types.TokenID{}, fmt.Errorf("%w: index %d of %d", ErrUnknownToken, index, len(t.Tokens))
	}
	return t.Tokens[index-1], nil
}

// TokenIndex resolves a token id to its token-data index, appending it to
// the token list on first sight.
func (t *Transaction) TokenIndex(id types.TokenID) byte {
	if id.IsNative() {
		return 0
	}
	for i, existing := range t.Tokens {
		if existing == id {
			return byte(i + 1)
		}
	}
	t.Tokens = append(t.Tokens, id)
	return byte(len(t.Tokens))
}

// ID computes the transaction id: sha256d over the signable serialization.
func (t *Transaction) ID() types.Hash {
	return crypto.Sha256d(t.SigningBytes())
}

// SigningBytes returns the canonical byte representation used for signing.
// Input signature scripts are omitted so every party signs the same digest.
func (t *Transaction) SigningBytes() []byte {
	return t.serialize(false)
}

// Serialize returns the full wire bytes including input signature scripts.
func (t *Transaction) Serialize() []byte {
	return t.serialize(true)
}

// Wire layout (all integers big-endian):
//
//	version(2) | tokenCount(1) | inputCount(1) | outputCount(1)
//	| tokens(32 each)
//	| inputs: txid(32) + outputIndex(1) + dataLen(2) + data
//	| outputs: value(4 or 8) + tokenData(1) + scriptLen(2) + script
//	| fee header (when fees present): feeCount(1) + [tokenIndex(1) + amount(8)]...
func (t *Transaction) serialize(withInputData bool) []byte {
	var buf []byte

	buf = binary.BigEndian.AppendUint16(buf, t.Version)
	buf = append(buf, byte(len(t.Tokens)), byte(len(t.Inputs)), byte(len(t.Outputs)))

	for _, id := range t.Tokens {
		buf = append(buf, id[:]...)
	}

	for _, in := range t.Inputs {
		buf = append(buf, in.PrevOut.TxID[:]...)
		buf = append(buf, byte(in.PrevOut.Index))
		if withInputData {
			buf = binary.BigEndian.AppendUint16(buf, uint16(len(in.Data)))
			buf = append(buf, in.Data...)
		} else {
			buf = binary.BigEndian.AppendUint16(buf, 0)
		}
	}

	for _, out := range t.Outputs {
		buf = appendValue(buf, out.Value)
		buf = append(buf, out.TokenData)
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(out.Script)))
		buf = append(buf, out.Script...)
	}

	if len(t.Fees) > 0 {
		buf = append(buf, byte(len(t.Fees)))
		for _, fee := range t.Fees {
			buf = append(buf, fee.TokenIndex)
			buf = binary.BigEndian.AppendUint64(buf, fee.Amount)
		}
	}

	return buf
}

// appendValue writes an output value: 4 bytes when it fits in 31 bits,
// otherwise 8 bytes with the top bit set as a wide-value flag.
func appendValue(buf []byte, value uint64) []byte {
	if value <= maxCompactValue {
		return binary.BigEndian.AppendUint32(buf, uint32(value))
	}
	wide := value | 1<<63
	return binary.BigEndian.AppendUint64(buf, wide)
}

// readValue reads a value written by appendValue, returning the remaining
// bytes.
func readValue(buf []byte) (uint64, []byte, error) {
	if len(buf) < 4 {
		return 0, nil, ErrTruncated
	}
	if buf[0]&0x80 == 0 {
		return uint64(binary.BigEndian.Uint32(buf[:4])), buf[4:], nil
	}
	if len(buf) < 8 {
		return 0, nil, ErrTruncated
	}
	wide := binary.BigEndian.Uint64(buf[:8])
	return wide &^ (1 << 63), buf[8:], nil
}

// Deserialize decodes wire bytes produced by Serialize. The fee header is
// consumed when trailing bytes remain after the outputs.
func Deserialize(data []byte) (*Transaction, error) {
	if len(data) < 5 {
		return nil, ErrTruncated
	}
	t := &Transaction{
		Version: binary.BigEndian.Uint16(data[:2]),
	}
	tokenCount := int(data[2])
	inputCount := int(data[3])
	outputCount := int(data[4])
	rest := data[5:]

	for i := 0; i < tokenCount; i++ {
		if len(rest) < types.HashSize {
			return nil, ErrTruncated
		}
		var id types.TokenID
		copy(id[:], rest[:types.HashSize])
		t.Tokens = append(t.Tokens, id)
		rest = rest[types.HashSize:]
	}

	for i := 0; i < inputCount; i++ {
		if len(rest) < types.HashSize+1+2 {
			return nil, ErrTruncated
		}
		var in Input
		copy(in.PrevOut.TxID[:], rest[:types.HashSize])
		in.PrevOut.Index = uint32(rest[types.HashSize])
		dataLen := int(binary.BigEndian.Uint16(rest[types.HashSize+1 : types.HashSize+3]))
		rest = rest[types.HashSize+3:]
		if len(rest) < dataLen {
			return nil, ErrTruncated
		}
		if dataLen > 0 {
			in.Data = make([]byte, dataLen)
			copy(in.Data, rest[:dataLen])
		}
		t.Inputs = append(t.Inputs, in)
		rest = rest[dataLen:]
	}

	for i := 0; i < outputCount; i++ {
		var out Output
		var err error
		out.Value, rest, err = readValue(rest)
		if err != nil {
			return nil, err
		}
		if len(rest) < 3 {
			return nil, ErrTruncated
		}
		out.TokenData = rest[0]
		scriptLen := int(binary.BigEndian.Uint16(rest[1:3]))
		rest = rest[3:]
		if len(rest) < scriptLen {
			return nil, ErrTruncated
		}
		out.Script = append(types.Script(nil), rest[:scriptLen]...)
		t.Outputs = append(t.Outputs, out)
		rest = rest[scriptLen:]
	}

	if len(rest) > 0 {
		feeCount := int(rest[0])
		rest = rest[1:]
		for i := 0; i < feeCount; i++ {
			if len(rest) < 9 {
				return nil, ErrTruncated
			}
			t.Fees = append(t.Fees, FeeEntry{
				TokenIndex: rest[0],
				Amount:     binary.BigEndian.Uint64(rest[1:9]),
			})
			rest = rest[9:]
		}
		if len(rest) > 0 {
			return nil, ErrTrailingBytes
		}
	}

	return t, nil
}

// SerializeHex returns the hex encoding of the full wire bytes.
func (t *Transaction) SerializeHex() string {
	return hex.EncodeToString(t.Serialize())
}

// DeserializeHex decodes a transaction from its hex wire encoding.
func DeserializeHex(s string) (*Transaction, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("tx hex: %w", err)
	}
	return Deserialize(raw)
}

// inputJSON mirrors Input with hex-encoded signature data.
type inputJSON struct {
	PrevOut types.Outpoint `json:"prev_out"`
	Data    string         `json:"data,omitempty"`
}

// MarshalJSON encodes the input with hex-encoded signature data.
func (in Input) MarshalJSON() ([]byte, error) {
	return json.Marshal(inputJSON{
		PrevOut: in.PrevOut,
		Data:    hex.EncodeToString(in.Data),
	})
}

// UnmarshalJSON decodes an input with hex-encoded signature data.
func (in *Input) UnmarshalJSON(data []byte) error {
	var j inputJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	in.PrevOut = j.PrevOut
	if j.Data != "" {
		b, err := hex.DecodeString(j.Data)
		if err != nil {
			return err
		}
		in.Data = b
	} else {
		in.Data = nil
	}
	return nil
}
