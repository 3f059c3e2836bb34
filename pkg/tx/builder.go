package tx

import (
	"errors"
	"fmt"
	"time"

	"github.com/HathorNetwork/hathor-wallet-lib-sub010/pkg/crypto"
	"github.com/HathorNetwork/hathor-wallet-lib-sub010/pkg/types"
)

// Per-transaction structural limits. The network reports the effective
// values at runtime; these are the protocol defaults.
const (
	DefaultMaxInputs  = 255
	DefaultMaxOutputs = 255
)

// Builder errors.
var (
	ErrMaximumInputsExceeded  = errors.New("tx: too many inputs for one transaction")
	ErrMaximumOutputsExceeded = errors.New("tx: too many outputs for one transaction")
	ErrNoOutputs              = errors.New("tx: transaction has no outputs")
	ErrZeroValueOutput        = errors.New("tx: output value must be positive")
)

// OutputSpec describes a requested value output.
type OutputSpec struct {
	Address  types.Address
	Value    uint64
	Token    types.TokenID
	Timelock uint32
}

// Builder assembles a transaction incrementally: outputs resolve their
// token-data bytes against the accumulating token list, inputs reference
// selected UTXOs, and Build enforces the structural limits.
type Builder struct {
	t          *Transaction
	maxInputs  int
	maxOutputs int
}

// NewBuilder creates a builder with the protocol default limits.
func NewBuilder() *Builder {
	return &Builder{
		t: &Transaction{
			Version:   DefaultVersion,
			Timestamp: time.Now().Unix(),
		},
		maxInputs:  DefaultMaxInputs,
		maxOutputs: DefaultMaxOutputs,
	}
}

// SetLimits overrides the per-transaction input/output count limits with the
// server-reported values.
func (b *Builder) SetLimits(maxInputs, maxOutputs int) *Builder {
	b.maxInputs = maxInputs
	b.maxOutputs = maxOutputs
	return b
}

// SetTimestamp sets the transaction timestamp.
func (b *Builder) SetTimestamp(ts int64) *Builder {
	b.t.Timestamp = ts
	return b
}

// AddOutput appends a value output for spec, registering its token in the
// token list on first sight.
func (b *Builder) AddOutput(spec OutputSpec) error {
	if spec.Value == 0 {
		return ErrZeroValueOutput
	}
	if len(b.t.Outputs) >= b.maxOutputs {
		return fmt.Errorf("%w: limit %d", ErrMaximumOutputsExceeded, b.maxOutputs)
	}
	b.t.Outputs = append(b.t.Outputs, Output{
		Value:     spec.Value,
		TokenData: b.t.TokenIndex(spec.Token),
		Script:    types.BuildP2PKH(spec.Address, spec.Timelock),
	})
	return nil
}

// AddAuthorityOutput appends an authority output granting mask (mint, melt
// or both) for token to addr. The output value is the mask itself.
func (b *Builder) AddAuthorityOutput(addr types.Address, token types.TokenID, mask uint64) error {
	if mask == 0 || mask&^AuthorityAll != 0 {
		return fmt.Errorf("tx: invalid authority mask %#b", mask)
	}
	if len(b.t.Outputs) >= b.maxOutputs {
		return fmt.Errorf("%w: limit %d", ErrMaximumOutputsExceeded, b.maxOutputs)
	}
	b.t.Outputs = append(b.t.Outputs, Output{
		Value:     mask,
		TokenData: b.t.TokenIndex(token) | TokenDataAuthorityBit,
		Script:    types.BuildP2PKH(addr, 0),
	})
	return nil
}

// AddInput appends an input spending prevOut. The signature script stays
// empty until signing.
func (b *Builder) AddInput(prevOut types.Outpoint) error {
	if prevOut.Index > 255 {
		return fmt.Errorf("%w: index %d", ErrInputIndexWide, prevOut.Index)
	}
	if len(b.t.Inputs) >= b.maxInputs {
		return fmt.Errorf("%w: limit %d", ErrMaximumInputsExceeded, b.maxInputs)
	}
	b.t.Inputs = append(b.t.Inputs, Input{PrevOut: prevOut})
	return nil
}

// SetFees attaches the fee declaration header.
func (b *Builder) SetFees(fees []FeeEntry) *Builder {
	b.t.Fees = fees
	return b
}

// Build returns the assembled, unsigned transaction. A transaction without
// outputs is only valid when it declares fees: a fee-consuming withdrawal
// can net to zero visible outputs.
func (b *Builder) Build() (*Transaction, error) {
	if len(b.t.Outputs) == 0 && len(b.t.Fees) == 0 {
		return nil, ErrNoOutputs
	}
	return b.t, nil
}

// SignInput fills input i's signature script using the signer that owns the
// spent output. All inputs sign the same digest over SigningBytes.
func (t *Transaction) SignInput(i int, signer crypto.Signer) error {
	if i < 0 || i >= len(t.Inputs) {
		return fmt.Errorf("tx: no input at index %d", i)
	}
	digest := crypto.Sha256d(t.SigningBytes())
	sig, err := signer.Sign(digest[:])
	if err != nil {
		return fmt.Errorf("sign input %d: %w", i, err)
	}
	t.Inputs[i].Data = types.BuildInputData(sig, signer.PublicKey())
	return nil
}

// IsFullySigned reports whether every input carries a signature script.
func (t *Transaction) IsFullySigned() bool {
	for _, in := range t.Inputs {
		if len(in.Data) == 0 {
			return false
		}
	}
	return len(t.Inputs) > 0
}
