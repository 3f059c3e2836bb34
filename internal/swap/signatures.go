package swap

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/HathorNetwork/hathor-wallet-lib-sub010/pkg/tx"
)

// Signature collection errors.
var (
	ErrSlotOutOfRange    = errors.New("swap: signature slot out of range")
	ErrSignatureConflict = errors.New("swap: conflicting signature for filled slot")
	ErrMalformedSigData  = errors.New("swap: malformed serialized signature data")
)

const sigPrefix = "PartialTxInputData"

// SignatureSet tracks one signature-script slot per transaction input.
// Parties fill their own slots and merge sets by union; a filled slot is
// never overwritten, so no cosigner's signature can be silently dropped.
type SignatureSet struct {
	slots [][]byte
}

// NewSignatureSet creates a set with one empty slot per input.
func NewSignatureSet(inputs int) *SignatureSet {
	return &SignatureSet{slots: make([][]byte, inputs)}
}

// Add fills slot index with data. Re-adding identical data is a no-op;
// different data for a filled slot is a conflict.
func (s *SignatureSet) Add(index int, data []byte) error {
	if index < 0 || index >= len(s.slots) {
		return fmt.Errorf("%w: %d of %d", ErrSlotOutOfRange, index, len(s.slots))
	}
	if existing := s.slots[index]; existing != nil {
		if string(existing) == string(data) {
			return nil
		}
		return fmt.Errorf("%w: slot %d", ErrSignatureConflict, index)
	}
	s.slots[index] = append([]byte(nil), data...)
	return nil
}

// Merge unions another party's signatures into this set.
func (s *SignatureSet) Merge(other *SignatureSet) error {
	if len(other.slots) != len(s.slots) {
		return fmt.Errorf("%w: merging %d slots into %d", ErrSlotOutOfRange, len(other.slots), len(s.slots))
	}
	for i, data := range other.slots {
		if data == nil {
			continue
		}
		if err := s.Add(i, data); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of filled slots.
func (s *SignatureSet) Count() int {
	n := 0
	for _, data := range s.slots {
		if data != nil {
			n++
		}
	}
	return n
}

// IsComplete reports whether every slot is filled.
func (s *SignatureSet) IsComplete() bool {
	return len(s.slots) > 0 && s.Count() == len(s.slots)
}

// Apply copies the collected signature scripts onto the transaction's
// inputs.
func (s *SignatureSet) Apply(t *tx.Transaction) error {
	if len(t.Inputs) != len(s.slots) {
		return fmt.Errorf("%w: %d slots for %d inputs", ErrSlotOutOfRange, len(s.slots), len(t.Inputs))
	}
	for i, data := range s.slots {
		if data == nil {
			continue
		}
		t.Inputs[i].Data = append([]byte(nil), data...)
	}
	return nil
}

// Serialize encodes the filled slots for out-of-band exchange:
//
//	PartialTxInputData|<slots>|<index>:<dataHex>|...
func (s *SignatureSet) Serialize() string {
	parts := []string{sigPrefix, strconv.Itoa(len(s.slots))}
	for i, data := range s.slots {
		if data == nil {
			continue
		}
		parts = append(parts, strconv.Itoa(i)+":"+hex.EncodeToString(data))
	}
	return strings.Join(parts, "|")
}

// DeserializeSignatures reconstructs a signature set from its serialized
// form.
func DeserializeSignatures(s string) (*SignatureSet, error) {
	parts := strings.Split(s, "|")
	if len(parts) < 2 || parts[0] != sigPrefix {
		return nil, ErrMalformedSigData
	}
	slots, err := strconv.Atoi(parts[1])
	if err != nil || slots < 0 {
		return nil, ErrMalformedSigData
	}
	set := NewSignatureSet(slots)
	for _, pair := range parts[2:] {
		idx, dataHex, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, ErrMalformedSigData
		}
		i, err := strconv.Atoi(idx)
		if err != nil {
			return nil, ErrMalformedSigData
		}
		data, err := hex.DecodeString(dataHex)
		if err != nil {
			return nil, ErrMalformedSigData
		}
		if err := set.Add(i, data); err != nil {
			return nil, err
		}
	}
	return set, nil
}
