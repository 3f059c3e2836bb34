package utxo

import (
	"errors"
	"fmt"

	"github.com/HathorNetwork/hathor-wallet-lib-sub010/pkg/types"
)

// Selection errors.
var (
	ErrInvalidAmount     = errors.New("utxo: amount must be a positive integer")
	ErrInsufficientFunds = errors.New("utxo: not enough utxos to fill total amount")
	ErrInputLimitReached = errors.New("utxo: input count limit reached before target amount")
)

// Selection is the result of input selection.
type Selection struct {
	Utxos        []*Utxo
	Amount       uint64 // Sum of selected values.
	ChangeAmount uint64 // Amount - target.
}

// SelectOptions constrain SelectInputs beyond the base filter.
type SelectOptions struct {
	Filter Filter
	// MaxCount caps how many inputs may be selected; 0 = no cap.
	MaxCount int
}

// SelectInputs chooses unlocked, unspent, unselected value utxos for token
// summing to at least amount, walking candidates in deterministic query
// order. If the first candidate alone covers the amount only it is
// selected. No partial result is ever returned: exhausting the candidates
// fails with ErrInsufficientFunds.
func (ix *Index) SelectInputs(amount int64, token types.TokenID, opts SelectOptions) (*Selection, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidAmount, amount)
	}
	target := uint64(amount)

	filter := opts.Filter
	filter.Token = TokenFilter(token)
	filter.Authority = KindFilter(AuthorityNone)
	filter.IncludeLocked = false
	filter.IncludeSpent = false
	filter.IncludeSelected = false

	sel := &Selection{}
	err := ix.Query(filter, func(u *Utxo) error {
		if opts.MaxCount > 0 && len(sel.Utxos) >= opts.MaxCount {
			return ErrInputLimitReached
		}
		sel.Utxos = append(sel.Utxos, u)
		sel.Amount += u.Value
		if sel.Amount >= target {
			return errStopIteration
		}
		return nil
	})
	switch {
	case err == nil:
		// Candidates exhausted below the target.
		return nil, fmt.Errorf("%w: need %d, have %d for token %s",
			ErrInsufficientFunds, target, sel.Amount, token)
	case errors.Is(err, errStopIteration):
		sel.ChangeAmount = sel.Amount - target
		return sel, nil
	default:
		return nil, err
	}
}

// errStopIteration terminates a Query scan once the target is reached.
var errStopIteration = errors.New("utxo: stop iteration")

// SelectAuthorities returns available authority utxos of the requested kind
// for token: unspent, unlocked, not reserved. count caps how many are
// returned; count <= 0 returns every match.
func (ix *Index) SelectAuthorities(token types.TokenID, kind AuthorityKind, count int, filter Filter) ([]*Utxo, error) {
	if kind == AuthorityNone {
		return nil, fmt.Errorf("utxo: authority selection requires mint or melt kind")
	}
	filter.Token = TokenFilter(token)
	filter.Authority = KindFilter(kind)
	filter.IncludeLocked = false
	filter.IncludeSpent = false
	filter.IncludeSelected = false

	var matches []*Utxo
	err := ix.Query(filter, func(u *Utxo) error {
		matches = append(matches, u)
		if count > 0 && len(matches) >= count {
			return errStopIteration
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopIteration) {
		return nil, err
	}
	return matches, nil
}

// Reserve marks every utxo in sel as selected so concurrent build attempts
// cannot double-spend them before submission.
func (ix *Index) Reserve(sel *Selection) error {
	for _, u := range sel.Utxos {
		if err := ix.SetSelected(u.Outpoint(), true); err != nil {
			return err
		}
	}
	return nil
}

// ReserveOutpoints marks the given outpoints as selected. Partial failure
// rolls back the marks already set.
func (ix *Index) ReserveOutpoints(ops []types.Outpoint) error {
	for i, op := range ops {
		if err := ix.SetSelected(op, true); err != nil {
			if rerr := ix.Release(ops[:i]); rerr != nil {
				return rerr
			}
			return err
		}
	}
	return nil
}

// Release clears the reservation on every utxo in ops. Called when a build
// fails or is abandoned; reservations must never be left dangling.
func (ix *Index) Release(ops []types.Outpoint) error {
	for _, op := range ops {
		err := ix.SetSelected(op, false)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	return nil
}
