package wallet

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/HathorNetwork/hathor-wallet-lib-sub010/internal/utxo"
	"github.com/HathorNetwork/hathor-wallet-lib-sub010/pkg/tx"
	"github.com/HathorNetwork/hathor-wallet-lib-sub010/pkg/types"
)

// ErrNoAvailableUtxos is returned when consolidation finds no eligible
// utxos.
var ErrNoAvailableUtxos = errors.New("no utxos available to consolidate")

// ConsolidateOptions select the utxos to merge. Amount bounds are strict
// inequalities; zero disables a bound.
type ConsolidateOptions struct {
	Token             types.TokenID
	FilterAddress     *types.Address
	AmountSmallerThan uint64
	AmountBiggerThan  uint64
	// MaxAmount caps the total value consolidated. With it set, smaller
	// utxos are preferred so as many as possible fit under the cap;
	// ties break on (txid, index).
	MaxAmount uint64
}

// ConsolidateResult reports exactly the set that was consolidated.
type ConsolidateResult struct {
	TotalConsolidated int
	TotalAmount       uint64
	TxID              types.Hash
	Utxos             []*utxo.Utxo
}

// ConsolidateUtxos merges the eligible utxos of one token into a single
// output at dest, which must be wallet-owned. When more candidates exist
// than fit in one transaction, the excess is deterministically left behind
// for a later pass.
func (w *Wallet) ConsolidateUtxos(ctx context.Context, dest types.Address, opts ConsolidateOptions) (*ConsolidateResult, error) {
	w.mu.Lock()
	built, selected, total, err := w.buildConsolidationLocked(dest, opts)
	w.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if _, err := w.submit(ctx, built, selected); err != nil {
		return nil, err
	}
	return &ConsolidateResult{
		TotalConsolidated: len(selected),
		TotalAmount:       total,
		TxID:              built.ID(),
		Utxos:             selected,
	}, nil
}

func (w *Wallet) buildConsolidationLocked(dest types.Address, opts ConsolidateOptions) (*tx.Transaction, []*utxo.Utxo, uint64, error) {
	if !w.book.IsOwned(dest) {
		return nil, nil, 0, fmt.Errorf("%w: %s", ErrForeignAddress, dest)
	}

	filter := utxo.Filter{
		Token:     utxo.TokenFilter(opts.Token),
		Address:   opts.FilterAddress,
		Authority: utxo.KindFilter(utxo.AuthorityNone),
		Now:       w.now(),
		Height:    w.height,
	}
	if opts.AmountBiggerThan > 0 {
		filter.MinValue = opts.AmountBiggerThan + 1
	}
	if opts.AmountSmallerThan > 0 {
		filter.MaxValue = opts.AmountSmallerThan - 1
	}

	candidates, err := w.index.QueryAll(filter)
	if err != nil {
		return nil, nil, 0, err
	}
	if len(candidates) == 0 {
		return nil, nil, 0, ErrNoAvailableUtxos
	}

	selected, total := pickConsolidation(candidates, opts.MaxAmount, w.maxInputs)
	if len(selected) == 0 {
		return nil, nil, 0, ErrNoAvailableUtxos
	}

	sel := &utxo.Selection{Utxos: selected}
	if err := w.index.Reserve(sel); err != nil {
		return nil, nil, 0, err
	}

	b := tx.NewBuilder().
		SetLimits(w.maxInputs, w.maxOutputs).
		SetTimestamp(w.now())
	if err := b.AddOutput(tx.OutputSpec{Address: dest, Value: total, Token: opts.Token}); err != nil {
		w.releaseLocked(selected)
		return nil, nil, 0, err
	}
	for _, u := range selected {
		if err := b.AddInput(u.Outpoint()); err != nil {
			w.releaseLocked(selected)
			return nil, nil, 0, err
		}
	}
	built, err := b.Build()
	if err != nil {
		w.releaseLocked(selected)
		return nil, nil, 0, err
	}
	if err := w.signAll(built, selected); err != nil {
		w.releaseLocked(selected)
		return nil, nil, 0, err
	}
	return built, selected, total, nil
}

// pickConsolidation truncates the candidate list to the input limit. The
// candidates arrive in (txid, index) order; under a MaxAmount cap they are
// re-ranked ascending by value so the cap packs as many as possible.
func pickConsolidation(candidates []*utxo.Utxo, maxAmount uint64, maxInputs int) ([]*utxo.Utxo, uint64) {
	if maxAmount > 0 {
		sorted := make([]*utxo.Utxo, len(candidates))
		copy(sorted, candidates)
		sort.SliceStable(sorted, func(i, j int) bool {
			if sorted[i].Value != sorted[j].Value {
				return sorted[i].Value < sorted[j].Value
			}
			return sorted[i].Outpoint().Less(sorted[j].Outpoint())
		})
		candidates = sorted
	}

	var selected []*utxo.Utxo
	var total uint64
	for _, u := range candidates {
		if len(selected) >= maxInputs {
			break
		}
		if maxAmount > 0 && total+u.Value > maxAmount {
			continue
		}
		selected = append(selected, u)
		total += u.Value
	}
	return selected, total
}
