package history

import (
	"fmt"

	"github.com/HathorNetwork/hathor-wallet-lib-sub010/internal/log"
	"github.com/HathorNetwork/hathor-wallet-lib-sub010/internal/utxo"
	"github.com/HathorNetwork/hathor-wallet-lib-sub010/pkg/tx"
	"github.com/HathorNetwork/hathor-wallet-lib-sub010/pkg/types"
	"github.com/rs/zerolog"
)

// Reconciler applies history events to the record store and UTXO index.
// Per transaction it drives unknown -> pending -> finished, with the voided
// flag orthogonal: voiding reverts the transaction's UTXO effects,
// un-voiding re-applies them.
//
// The reconciler itself is not goroutine-safe; the wallet serializes calls
// through its event queue (single writer per wallet).
type Reconciler struct {
	records *Store
	index   *utxo.Index
	owns    func(types.Address) bool

	// Optional hooks, invoked while applying owned outputs.
	tokenSeen   func(types.TokenID)
	addressUsed func(types.Address)

	logger zerolog.Logger
}

// NewReconciler creates a reconciler over the given stores. owns is the
// wallet's address-ownership predicate: outputs to foreign addresses never
// mutate local state.
func NewReconciler(records *Store, index *utxo.Index, owns func(types.Address) bool) *Reconciler {
	return &Reconciler{
		records: records,
		index:   index,
		owns:    owns,
		logger:  log.Sync,
	}
}

// OnTokenSeen registers a hook called once per owned output's token id,
// letting the wallet keep its token registry current.
func (r *Reconciler) OnTokenSeen(fn func(types.TokenID)) {
	r.tokenSeen = fn
}

// OnAddressUsed registers a hook called for every owned address touched by
// an applied transaction, driving gap-limit extension.
func (r *Reconciler) OnAddressUsed(fn func(types.Address)) {
	r.addressUsed = fn
}

// ProcessEvent applies one history event. Malformed events fail with
// ErrHistoryValidation before any state is touched; valid events are
// applied all-or-nothing. Replaying an identical event for a finished
// transaction is a no-op.
func (r *Reconciler) ProcessEvent(ev *TxEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}

	existing, err := r.records.Get(ev.TxID)
	if err == nil {
		return r.processKnown(existing, ev)
	}

	rec := &Record{
		TxID:      ev.TxID,
		Inputs:    ev.Inputs,
		Outputs:   ev.Outputs,
		Tokens:    ev.Tokens,
		Timestamp: ev.Timestamp,
		Height:    ev.Height,
		Voided:    ev.Voided,
		Status:    StatusPending,
	}
	if err := r.checkSpendBounds(rec); err != nil {
		return err
	}
	if err := r.records.Put(rec); err != nil {
		return err
	}

	if !rec.Voided {
		if err := r.apply(rec); err != nil {
			return err
		}
	}

	rec.Status = StatusFinished
	if err := r.records.Put(rec); err != nil {
		return err
	}

	r.logger.Debug().
		Str("tx_id", ev.TxID.String()).
		Int("outputs", len(ev.Outputs)).
		Bool("voided", ev.Voided).
		Msg("transaction reconciled")
	return nil
}

// processKnown handles metadata updates and replays for an existing record.
func (r *Reconciler) processKnown(rec *Record, ev *TxEvent) error {
	switch {
	case rec.Status == StatusFinished && rec.Voided == ev.Voided:
		// Idempotent replay.
		return nil

	case !rec.Voided && ev.Voided:
		// Void: undo every UTXO effect attributable to this transaction.
		if err := r.index.Revert(rec.TxID); err != nil {
			return err
		}
		rec.Voided = true
		rec.Status = StatusFinished
		if err := r.records.Put(rec); err != nil {
			return err
		}
		r.logger.Info().Str("tx_id", rec.TxID.String()).Msg("transaction voided, effects reverted")
		return nil

	default:
		// Un-void, or a pending record being completed: (re-)apply.
		if err := r.checkSpendBounds(rec); err != nil {
			return err
		}
		if err := r.apply(rec); err != nil {
			return err
		}
		rec.Voided = false
		rec.Status = StatusFinished
		return r.records.Put(rec)
	}
}

// apply indexes the record's owned outputs and marks its spends. Replays
// overwrite rather than duplicate: IndexOutput is keyed by (txid, index).
func (r *Reconciler) apply(rec *Record) error {
	if err := r.applyOutputs(rec); err != nil {
		return err
	}
	return r.applySpends(rec)
}

// outputAuthority derives the authority kind from the token-data byte and
// the value mask.
func outputAuthority(out EventOutput) utxo.AuthorityKind {
	if out.TokenData&tx.TokenDataAuthorityBit == 0 {
		return utxo.AuthorityNone
	}
	if out.Value&tx.AuthorityMelt != 0 {
		return utxo.AuthorityMelt
	}
	return utxo.AuthorityMint
}

// ProcessHistory deterministically rebuilds the UTXO index from the full
// record set: clear, index every non-voided record's owned outputs, then
// mark every non-voided record's spends. Two passes make the result
// independent of event arrival order.
func (r *Reconciler) ProcessHistory() error {
	if err := r.index.Clear(); err != nil {
		return err
	}

	var applyErr error
	err := r.records.ForEach(func(rec *Record) error {
		if rec.Voided {
			return nil
		}
		saved := *rec
		if err := r.applyOutputs(rec); err != nil {
			applyErr = err
			return err
		}
		if saved.Status != rec.Status {
			return r.records.Put(rec)
		}
		return nil
	})
	if err != nil {
		return firstErr(applyErr, err)
	}

	err = r.records.ForEach(func(rec *Record) error {
		if rec.Voided {
			return nil
		}
		return r.applySpends(rec)
	})
	if err != nil {
		return err
	}

	r.logger.Info().Msg("history reprocessed")
	return nil
}

// applyOutputs is the output half of apply, used by the rebuild passes.
func (r *Reconciler) applyOutputs(rec *Record) error {
	walletTokens := make(map[types.TokenID]struct{})
	for i, out := range rec.Outputs {
		addr, timelock, ok := types.ParseP2PKH(out.Script)
		if !ok || !r.owns(addr) {
			continue
		}
		token := rec.outputToken(out)
		u := &utxo.Utxo{
			TxID:       rec.TxID,
			Index:      uint32(i),
			Address:    addr,
			Token:      token,
			Value:      out.Value,
			Authority:  outputAuthority(out),
			Timelock:   timelock,
			Heightlock: out.Heightlock,
		}
		if err := r.index.IndexOutput(u); err != nil {
			return err
		}
		walletTokens[token] = struct{}{}
		if r.tokenSeen != nil && !token.IsNative() {
			r.tokenSeen(token)
		}
		if r.addressUsed != nil {
			r.addressUsed(addr)
		}
	}
	for token := range walletTokens {
		if !containsToken(rec.WalletTokens, token) {
			rec.WalletTokens = append(rec.WalletTokens, token)
		}
	}
	return nil
}

// checkSpendBounds rejects inputs that reference an output index past the
// end of a transaction we hold the record for. Run before any index
// mutation so a rejected event leaves no state behind. Spends of unknown
// transactions pass: they are someone else's funds.
func (r *Reconciler) checkSpendBounds(rec *Record) error {
	for _, in := range rec.Inputs {
		src, err := r.records.Get(in.TxID)
		if err != nil {
			continue
		}
		if int(in.Index) >= len(src.Outputs) {
			return fmt.Errorf("%w: %s spends %s:%d but it has %d outputs",
				utxo.ErrInvalidOutputIndex, rec.TxID, in.TxID, in.Index, len(src.Outputs))
		}
	}
	return nil
}

// applySpends is the input half of apply, used by the rebuild passes.
func (r *Reconciler) applySpends(rec *Record) error {
	for _, in := range rec.Inputs {
		op := types.Outpoint{TxID: in.TxID, Index: in.Index}
		if spent, err := r.index.Get(op); err == nil {
			if !containsToken(rec.WalletTokens, spent.Token) {
				rec.WalletTokens = append(rec.WalletTokens, spent.Token)
			}
			if r.addressUsed != nil {
				r.addressUsed(spent.Address)
			}
		}
		if err := r.index.MarkSpent(op, rec.TxID); err != nil {
			return err
		}
	}
	return nil
}

// Balance composes the index fold with the per-token transaction counter.
func (r *Reconciler) Balance(token types.TokenID, now int64, height uint64) (*utxo.TokenBalance, error) {
	bal, err := r.index.Balance(token, now, height)
	if err != nil {
		return nil, err
	}
	count, err := r.records.CountForToken(token)
	if err != nil {
		return nil, err
	}
	bal.Transactions = count
	return bal, nil
}

func containsToken(list []types.TokenID, token types.TokenID) bool {
	for _, t := range list {
		if t == token {
			return true
		}
	}
	return false
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
