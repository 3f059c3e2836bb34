package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/HathorNetwork/hathor-wallet-lib-sub010/internal/token"
	"github.com/HathorNetwork/hathor-wallet-lib-sub010/internal/utxo"
	"github.com/HathorNetwork/hathor-wallet-lib-sub010/pkg/tx"
	"github.com/HathorNetwork/hathor-wallet-lib-sub010/pkg/types"
)

// ErrNoAuthority is returned when a mint or melt operation needs an
// authority utxo the wallet does not hold.
var ErrNoAuthority = errors.New("wallet holds no matching authority")

// CreateTokenOptions tune token creation. Unset addresses default to the
// wallet's current receiving address.
type CreateTokenOptions struct {
	Address       *types.Address
	ChangeAddress *types.Address
	Policy        token.Policy
	// CreateMint and CreateMelt control whether the wallet keeps
	// authority outputs for later supply changes.
	CreateMint bool
	CreateMelt bool
}

// CreateToken builds, signs and submits a token creation transaction
// minting amount units of a new token. Deposit-policy tokens lock the
// native-token deposit; fee-policy tokens declare the creation fee
// instead. The created token's uid is the transaction id.
func (w *Wallet) CreateToken(ctx context.Context, name, symbol string, amount uint64, opts CreateTokenOptions) (*tx.Transaction, types.TokenID, error) {
	if err := token.ValidateName(name); err != nil {
		return nil, types.TokenID{}, err
	}
	if err := token.ValidateSymbol(symbol); err != nil {
		return nil, types.TokenID{}, err
	}
	if amount == 0 {
		return nil, types.TokenID{}, utxo.ErrInvalidAmount
	}
	if opts.Policy == "" {
		opts.Policy = token.PolicyDeposit
	}

	w.mu.Lock()
	built, inputs, err := w.buildCreateTokenLocked(amount, opts)
	w.mu.Unlock()
	if err != nil {
		return nil, types.TokenID{}, err
	}

	if _, err := w.submit(ctx, built, inputs); err != nil {
		return nil, types.TokenID{}, err
	}

	id := types.TokenID(built.ID())
	meta := &token.Metadata{Name: name, Symbol: symbol, Policy: opts.Policy}
	if err := w.tokens.Put(id, meta); err != nil {
		return nil, types.TokenID{}, fmt.Errorf("register created token: %w", err)
	}
	return built, id, nil
}

func (w *Wallet) buildCreateTokenLocked(amount uint64, opts CreateTokenOptions) (*tx.Transaction, []*utxo.Utxo, error) {
	var cost uint64
	if opts.Policy == token.PolicyFee {
		cost = token.FeePerOutput
	} else {
		cost = token.MintDeposit(amount)
	}

	sel, err := w.selectLocked(int64(cost), types.NativeTokenID, utxo.Filter{})
	if err != nil {
		return nil, nil, err
	}
	if err := w.index.Reserve(sel); err != nil {
		return nil, nil, err
	}

	built, err := w.assembleCreateToken(amount, cost, sel, opts)
	if err != nil {
		w.releaseLocked(sel.Utxos)
		return nil, nil, err
	}
	if err := w.signAll(built, sel.Utxos); err != nil {
		w.releaseLocked(sel.Utxos)
		return nil, nil, err
	}
	return built, sel.Utxos, nil
}

// assembleCreateToken constructs the creation transaction by hand: the
// builder cannot register the new token's uid because it does not exist
// until the transaction is hashed, so its outputs carry token index 1
// against an empty token list.
func (w *Wallet) assembleCreateToken(amount, cost uint64, sel *utxo.Selection, opts CreateTokenOptions) (*tx.Transaction, error) {
	dest, err := w.changeAddress(opts.Address)
	if err != nil {
		return nil, err
	}

	t := &tx.Transaction{
		Version:   tx.TokenCreationVersion,
		Timestamp: w.now(),
	}
	t.Outputs = append(t.Outputs, tx.Output{
		Value:     amount,
		TokenData: 1,
		Script:    types.BuildP2PKH(dest, 0),
	})
	if opts.CreateMint {
		t.Outputs = append(t.Outputs, tx.Output{
			Value:     tx.AuthorityMint,
			TokenData: 1 | tx.TokenDataAuthorityBit,
			Script:    types.BuildP2PKH(dest, 0),
		})
	}
	if opts.CreateMelt {
		t.Outputs = append(t.Outputs, tx.Output{
			Value:     tx.AuthorityMelt,
			TokenData: 1 | tx.TokenDataAuthorityBit,
			Script:    types.BuildP2PKH(dest, 0),
		})
	}
	if sel.ChangeAmount > 0 {
		change, err := w.changeAddress(opts.ChangeAddress)
		if err != nil {
			return nil, err
		}
		t.Outputs = append(t.Outputs, tx.Output{
			Value:  sel.ChangeAmount,
			Script: types.BuildP2PKH(change, 0),
		})
	}
	for _, u := range sel.Utxos {
		t.Inputs = append(t.Inputs, tx.Input{PrevOut: u.Outpoint()})
	}
	if opts.Policy == token.PolicyFee {
		t.Fees = []tx.FeeEntry{{TokenIndex: 0, Amount: cost}}
	}
	return t, nil
}

// MintTokens mints more supply of an existing token by spending a mint
// authority. The authority is re-created so the wallet keeps it.
func (w *Wallet) MintTokens(ctx context.Context, id types.TokenID, amount uint64, dest *types.Address) (*tx.Transaction, error) {
	if amount == 0 {
		return nil, utxo.ErrInvalidAmount
	}

	w.mu.Lock()
	built, inputs, err := w.buildSupplyChangeLocked(id, amount, dest, utxo.AuthorityMint)
	w.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return w.submit(ctx, built, inputs)
}

// MeltTokens destroys amount units of a token by spending a melt
// authority together with token inputs, releasing the proportional
// native-token deposit back to the wallet.
func (w *Wallet) MeltTokens(ctx context.Context, id types.TokenID, amount uint64) (*tx.Transaction, error) {
	if amount == 0 {
		return nil, utxo.ErrInvalidAmount
	}

	w.mu.Lock()
	built, inputs, err := w.buildMeltLocked(id, amount)
	w.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return w.submit(ctx, built, inputs)
}

func (w *Wallet) buildSupplyChangeLocked(id types.TokenID, amount uint64, dest *types.Address, kind utxo.AuthorityKind) (*tx.Transaction, []*utxo.Utxo, error) {
	auths, err := w.index.SelectAuthorities(id, kind, 1, utxo.Filter{Now: w.now(), Height: w.height})
	if err != nil {
		return nil, nil, err
	}
	if len(auths) == 0 {
		return nil, nil, fmt.Errorf("%w: %s %s", ErrNoAuthority, kind, id)
	}

	deposit := token.MintDeposit(amount)
	sel, err := w.selectLocked(int64(deposit), types.NativeTokenID, utxo.Filter{})
	if err != nil {
		return nil, nil, err
	}

	inputs := append([]*utxo.Utxo{auths[0]}, sel.Utxos...)
	if err := w.index.ReserveOutpoints(outpointsOf(inputs)); err != nil {
		return nil, nil, err
	}

	fail := func(err error) (*tx.Transaction, []*utxo.Utxo, error) {
		w.releaseLocked(inputs)
		return nil, nil, err
	}

	destAddr, err := w.changeAddress(dest)
	if err != nil {
		return fail(err)
	}

	b := tx.NewBuilder().
		SetLimits(w.maxInputs, w.maxOutputs).
		SetTimestamp(w.now())
	if err := b.AddOutput(tx.OutputSpec{Address: destAddr, Value: amount, Token: id}); err != nil {
		return fail(err)
	}
	if err := b.AddAuthorityOutput(destAddr, id, tx.AuthorityMint); err != nil {
		return fail(err)
	}
	if sel.ChangeAmount > 0 {
		change, err := w.changeAddress(nil)
		if err != nil {
			return fail(err)
		}
		if err := b.AddOutput(tx.OutputSpec{Address: change, Value: sel.ChangeAmount}); err != nil {
			return fail(err)
		}
	}
	for _, u := range inputs {
		if err := b.AddInput(u.Outpoint()); err != nil {
			return fail(err)
		}
	}
	built, err := b.Build()
	if err != nil {
		return fail(err)
	}
	if err := w.signAll(built, inputs); err != nil {
		return fail(err)
	}
	return built, inputs, nil
}

func (w *Wallet) buildMeltLocked(id types.TokenID, amount uint64) (*tx.Transaction, []*utxo.Utxo, error) {
	auths, err := w.index.SelectAuthorities(id, utxo.AuthorityMelt, 1, utxo.Filter{Now: w.now(), Height: w.height})
	if err != nil {
		return nil, nil, err
	}
	if len(auths) == 0 {
		return nil, nil, fmt.Errorf("%w: melt %s", ErrNoAuthority, id)
	}

	sel, err := w.selectLocked(int64(amount), id, utxo.Filter{})
	if err != nil {
		return nil, nil, err
	}

	inputs := append([]*utxo.Utxo{auths[0]}, sel.Utxos...)
	if err := w.index.ReserveOutpoints(outpointsOf(inputs)); err != nil {
		return nil, nil, err
	}

	fail := func(err error) (*tx.Transaction, []*utxo.Utxo, error) {
		w.releaseLocked(inputs)
		return nil, nil, err
	}

	dest, err := w.changeAddress(nil)
	if err != nil {
		return fail(err)
	}

	b := tx.NewBuilder().
		SetLimits(w.maxInputs, w.maxOutputs).
		SetTimestamp(w.now())
	// The melted units are simply not re-created; the freed deposit and
	// the authority come back to the wallet.
	if withdraw := token.MeltWithdraw(amount); withdraw > 0 {
		if err := b.AddOutput(tx.OutputSpec{Address: dest, Value: withdraw}); err != nil {
			return fail(err)
		}
	}
	if err := b.AddAuthorityOutput(dest, id, tx.AuthorityMelt); err != nil {
		return fail(err)
	}
	if sel.ChangeAmount > 0 {
		if err := b.AddOutput(tx.OutputSpec{Address: dest, Value: sel.ChangeAmount, Token: id}); err != nil {
			return fail(err)
		}
	}
	for _, u := range inputs {
		if err := b.AddInput(u.Outpoint()); err != nil {
			return fail(err)
		}
	}
	built, err := b.Build()
	if err != nil {
		return fail(err)
	}
	if err := w.signAll(built, inputs); err != nil {
		return fail(err)
	}
	return built, inputs, nil
}

func outpointsOf(utxos []*utxo.Utxo) []types.Outpoint {
	ops := make([]types.Outpoint, len(utxos))
	for i, u := range utxos {
		ops[i] = u.Outpoint()
	}
	return ops
}
