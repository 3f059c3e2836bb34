package nano

import (
	"errors"
	"fmt"
	"sort"

	"github.com/HathorNetwork/hathor-wallet-lib-sub010/internal/utxo"
	"github.com/HathorNetwork/hathor-wallet-lib-sub010/pkg/tx"
	"github.com/HathorNetwork/hathor-wallet-lib-sub010/pkg/types"
)

// ErrNoAuthorityAvailable is returned when a grant action needs a mint or
// melt authority the wallet does not hold.
var ErrNoAuthorityAvailable = errors.New("no matching authority utxo available")

// Plan is the wallet-side half of a contract transaction: the inputs the
// wallet funds, the outputs it receives, and the fee declaration.
type Plan struct {
	// Inputs are the wallet utxos spent into the transaction, deposits
	// and authority grants first, fee inputs last.
	Inputs []*utxo.Utxo
	// Outputs are the withdrawal and change outputs, in action order
	// with change appended per token.
	Outputs []tx.OutputSpec
	// Authorities are the acquire-authority actions, to become authority
	// outputs on the built transaction.
	Authorities []Action
	// Fee is the native-token fee declaration, nil when no fee is owed.
	Fee *Fee
}

// Outpoints returns the outpoints of every planned input, for reservation.
func (p *Plan) Outpoints() []types.Outpoint {
	ops := make([]types.Outpoint, len(p.Inputs))
	for i, u := range p.Inputs {
		ops[i] = u.Outpoint()
	}
	return ops
}

// Planner turns contract actions into a funded plan against the wallet's
// UTXO index. Planning only reads the index; reserving the selected inputs
// is the caller's step.
type Planner struct {
	index       *utxo.Index
	isFeePolicy PolicyFunc
}

// NewPlanner creates a planner over the given index.
func NewPlanner(index *utxo.Index, isFeePolicy PolicyFunc) *Planner {
	return &Planner{index: index, isFeePolicy: isFeePolicy}
}

// Plan funds the given actions. The fee is computed and checked against
// opts.MaxFee before any selection happens; a failed plan leaves the index
// untouched.
func (p *Planner) Plan(actions []Action, opts Options) (*Plan, error) {
	fee, err := ComputeFee(actions, p.isFeePolicy)
	if err != nil {
		return nil, err
	}
	if fee != nil && opts.MaxFee > 0 && fee.Amount > opts.MaxFee {
		return nil, fmt.Errorf("%w: fee %d, maximum %d", ErrFeeExceedsMaximum, fee.Amount, opts.MaxFee)
	}

	plan := &Plan{Fee: fee}
	deposits := make(map[types.TokenID]uint64)
	feeSettled := fee == nil

	for _, a := range actions {
		switch a.Type {
		case ActionWithdrawal:
			value := a.Amount
			if a.Token.IsNative() && !feeSettled && opts.Payer == ContractPaysFee {
				if value < fee.Amount {
					return nil, fmt.Errorf("%w: withdrawal %d, fee %d",
						ErrInsufficientFeeWithdrawal, value, fee.Amount)
				}
				value -= fee.Amount
				feeSettled = true
				if value == 0 {
					// The whole withdrawal went to the fee; no
					// visible output, but the declaration stays.
					continue
				}
			}
			plan.Outputs = append(plan.Outputs, tx.OutputSpec{
				Address:  a.Address,
				Value:    value,
				Token:    a.Token,
				Timelock: a.Timelock,
			})

		case ActionDeposit:
			deposits[a.Token] += a.Amount

		case ActionGrantAuthority:
			auths, err := p.index.SelectAuthorities(a.Token, a.Authority, 1, utxo.Filter{})
			if err != nil {
				return nil, err
			}
			if len(auths) == 0 {
				return nil, fmt.Errorf("%w: token %s %s",
					ErrNoAuthorityAvailable, a.Token, a.Authority)
			}
			plan.Inputs = append(plan.Inputs, auths[0])

		case ActionAcquireAuthority:
			plan.Authorities = append(plan.Authorities, a)

		default:
			return nil, fmt.Errorf("unknown action type %q", a.Type)
		}
	}

	if !feeSettled && opts.Payer == ContractPaysFee {
		return nil, fmt.Errorf("%w: fee %d", ErrNoNativeWithdrawal, fee.Amount)
	}

	// Fold the wallet-paid fee into the native deposit so one selection
	// covers both and never double-picks a utxo.
	var feeFunded uint64
	if !feeSettled && opts.Payer == WalletPaysFee {
		feeFunded = fee.Amount
		deposits[types.NativeTokenID] += feeFunded
	}

	for _, tok := range sortedTokens(deposits) {
		amount := deposits[tok]
		sel, err := p.index.SelectInputs(int64(amount), tok, utxo.SelectOptions{})
		if err != nil {
			if tok.IsNative() && feeFunded > 0 && errors.Is(err, utxo.ErrInsufficientFunds) {
				return nil, p.classifyNativeShortfall(amount, feeFunded, err)
			}
			return nil, err
		}
		plan.Inputs = append(plan.Inputs, sel.Utxos...)
		if sel.ChangeAmount > 0 {
			plan.Outputs = append(plan.Outputs, tx.OutputSpec{
				Address: opts.ChangeAddress,
				Value:   sel.ChangeAmount,
				Token:   tok,
			})
		}
	}

	return plan, nil
}

// classifyNativeShortfall distinguishes "cannot fund the deposit" from
// "cannot fund the fee on top of the deposit".
func (p *Planner) classifyNativeShortfall(total, feePart uint64, cause error) error {
	depositPart := int64(total - feePart)
	if depositPart > 0 {
		if _, err := p.index.SelectInputs(depositPart, types.NativeTokenID, utxo.SelectOptions{}); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: %v", ErrInsufficientFeeFunds, cause)
}

// BuildTransaction assembles the plan into an unsigned transaction with the
// fee declaration in its header.
func (p *Plan) BuildTransaction(timestamp int64) (*tx.Transaction, error) {
	b := tx.NewBuilder().SetTimestamp(timestamp)
	for _, spec := range p.Outputs {
		if err := b.AddOutput(spec); err != nil {
			return nil, err
		}
	}
	for _, a := range p.Authorities {
		mask, err := authorityMask(a.Authority)
		if err != nil {
			return nil, err
		}
		if err := b.AddAuthorityOutput(a.Address, a.Token, mask); err != nil {
			return nil, err
		}
	}
	for _, u := range p.Inputs {
		if err := b.AddInput(u.Outpoint()); err != nil {
			return nil, err
		}
	}
	if p.Fee != nil {
		b.SetFees([]tx.FeeEntry{{TokenIndex: 0, Amount: p.Fee.Amount}})
	}
	return b.Build()
}

func authorityMask(kind utxo.AuthorityKind) (uint64, error) {
	switch kind {
	case utxo.AuthorityMint:
		return tx.AuthorityMint, nil
	case utxo.AuthorityMelt:
		return tx.AuthorityMelt, nil
	default:
		return 0, fmt.Errorf("invalid authority kind %s", kind)
	}
}

func sortedTokens(m map[types.TokenID]uint64) []types.TokenID {
	tokens := make([]types.TokenID, 0, len(m))
	for tok := range m {
		tokens = append(tokens, tok)
	}
	sort.Slice(tokens, func(i, j int) bool {
		if tokens[i].IsNative() != tokens[j].IsNative() {
			return tokens[i].IsNative()
		}
		return tokens[i].String() < tokens[j].String()
	})
	return tokens
}
