// Package nano plans wallet-side transactions that interact with nano
// contracts: deposit and withdrawal actions, authority grants, and the
// native-token fee owed for moving fee-policy tokens.
package nano

import (
	"errors"

	"github.com/HathorNetwork/hathor-wallet-lib-sub010/internal/token"
	"github.com/HathorNetwork/hathor-wallet-lib-sub010/internal/utxo"
	"github.com/HathorNetwork/hathor-wallet-lib-sub010/pkg/types"
)

// Fee calculation errors.
var (
	ErrFeeExceedsMaximum         = errors.New("fee exceeds the maximum set")
	ErrInsufficientFeeWithdrawal = errors.New("withdrawal amount does not cover the fee")
	ErrInsufficientFeeFunds      = errors.New("not enough HTR utxos to pay the fee")
	ErrNoNativeWithdrawal        = errors.New("contract fee payment requires a native token withdrawal action")
)

// ActionType enumerates the contract actions a wallet can take part in.
type ActionType string

const (
	// ActionDeposit moves tokens from the wallet into the contract. The
	// wallet funds it with its own inputs.
	ActionDeposit ActionType = "deposit"
	// ActionWithdrawal moves tokens from the contract to a wallet
	// address, materialized as a transaction output.
	ActionWithdrawal ActionType = "withdrawal"
	// ActionGrantAuthority hands a mint or melt authority to the
	// contract, spending one of the wallet's authority utxos.
	ActionGrantAuthority ActionType = "grant_authority"
	// ActionAcquireAuthority receives a mint or melt authority from the
	// contract as an authority output.
	ActionAcquireAuthority ActionType = "acquire_authority"
)

// Action is one contract interaction step.
type Action struct {
	Type      ActionType
	Token     types.TokenID
	Amount    uint64
	Address   types.Address
	Timelock  uint32
	Authority utxo.AuthorityKind
}

// FeePayer selects who settles the native-token fee.
type FeePayer int

const (
	// WalletPaysFee selects extra native-token inputs from the wallet.
	WalletPaysFee FeePayer = iota
	// ContractPaysFee deducts the fee from the contract's native-token
	// withdrawal action.
	ContractPaysFee
)

// Options tune a contract plan.
type Options struct {
	// MaxFee caps the computed fee; zero means no cap. Exceeding it
	// fails before any inputs are selected.
	MaxFee uint64
	// Payer decides whether the wallet or the contract settles the fee.
	Payer FeePayer
	// ChangeAddress receives deposit change and, for WalletPaysFee, fee
	// change.
	ChangeAddress types.Address
}

// Fee is a computed fee declaration, always denominated in the native
// token.
type Fee struct {
	Token  types.TokenID
	Amount uint64
}

// PolicyFunc reports whether a token was issued under the fee policy.
// The wallet wires its token registry in here.
type PolicyFunc func(types.TokenID) (bool, error)

// ComputeFee returns the native-token fee owed for the given actions, or
// nil when no fee-policy token produces an output. Each withdrawal of a
// fee-policy token contributes one fee unit per output it materializes;
// authority actions and native-token movements never contribute.
func ComputeFee(actions []Action, isFeePolicy PolicyFunc) (*Fee, error) {
	var outputs uint64
	for _, a := range actions {
		if a.Type != ActionWithdrawal || a.Token.IsNative() {
			continue
		}
		feePolicy, err := isFeePolicy(a.Token)
		if err != nil {
			return nil, err
		}
		if feePolicy {
			outputs++
		}
	}
	if outputs == 0 {
		return nil, nil
	}
	return &Fee{Token: types.NativeTokenID, Amount: outputs * token.FeePerOutput}, nil
}
