package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/HathorNetwork/hathor-wallet-lib-sub010/internal/history"
	"github.com/HathorNetwork/hathor-wallet-lib-sub010/internal/log"
	"github.com/HathorNetwork/hathor-wallet-lib-sub010/internal/nano"
	"github.com/HathorNetwork/hathor-wallet-lib-sub010/internal/storage"
	"github.com/HathorNetwork/hathor-wallet-lib-sub010/internal/swap"
	"github.com/HathorNetwork/hathor-wallet-lib-sub010/internal/token"
	"github.com/HathorNetwork/hathor-wallet-lib-sub010/internal/utxo"
	"github.com/HathorNetwork/hathor-wallet-lib-sub010/pkg/crypto"
	"github.com/HathorNetwork/hathor-wallet-lib-sub010/pkg/tx"
	"github.com/HathorNetwork/hathor-wallet-lib-sub010/pkg/types"
	"github.com/rs/zerolog"
)

// ErrForeignAddress is returned when an operation requires a wallet-owned
// address but was given someone else's.
var ErrForeignAddress = errors.New("address does not belong to this wallet")

// Submitter pushes signed transactions to the network.
type Submitter interface {
	// PushTransaction submits a serialized transaction and returns the
	// accepted transaction id.
	PushTransaction(ctx context.Context, rawTx string) (types.Hash, error)
	// WaitConfirmation blocks until txID is confirmed or timeout
	// elapses. A zero timeout returns immediately after submission.
	WaitConfirmation(ctx context.Context, txID types.Hash, timeout time.Duration) error
}

// Options tune a wallet instance.
type Options struct {
	GapLimit   int
	MaxInputs  int
	MaxOutputs int
	Submitter  Submitter
	// Now overrides the clock, for tests.
	Now func() int64
}

// Wallet is the engine facade. All state mutation (history reconciliation,
// input selection, building) runs under one mutex: a single writer per
// wallet. Network submission happens outside the lock.
type Wallet struct {
	mu sync.Mutex

	db      storage.DB
	index   *utxo.Index
	records *history.Store
	rec     *history.Reconciler
	queue   *history.Queue
	tokens  *token.Store
	book    *AddressBook

	submitter Submitter
	logger    zerolog.Logger

	maxInputs  int
	maxOutputs int
	height     uint64
	now        func() int64
}

// Open assembles a wallet over its scoped database and account key.
func Open(db storage.DB, account *HDKey, opts Options) (*Wallet, error) {
	book, err := NewAddressBook(db, account, opts.GapLimit)
	if err != nil {
		return nil, fmt.Errorf("open address book: %w", err)
	}

	w := &Wallet{
		db:         db,
		index:      utxo.NewIndex(db),
		records:    history.NewStore(db),
		tokens:     token.NewStore(db),
		book:       book,
		submitter:  opts.Submitter,
		logger:     log.Wallet,
		maxInputs:  opts.MaxInputs,
		maxOutputs: opts.MaxOutputs,
		now:        opts.Now,
	}
	if w.maxInputs <= 0 {
		w.maxInputs = tx.DefaultMaxInputs
	}
	if w.maxOutputs <= 0 {
		w.maxOutputs = tx.DefaultMaxOutputs
	}
	if w.now == nil {
		w.now = func() int64 { return time.Now().Unix() }
	}

	w.rec = history.NewReconciler(w.records, w.index, book.IsOwned)
	w.rec.OnAddressUsed(func(addr types.Address) {
		if err := book.MarkUsed(addr); err != nil {
			w.logger.Error().Err(err).Str("address", addr.String()).Msg("mark address used")
		}
	})
	w.rec.OnTokenSeen(func(id types.TokenID) {
		if err := w.tokens.Register(id, &token.Metadata{}); err != nil {
			w.logger.Error().Err(err).Str("token", id.String()).Msg("register token")
		}
	})
	w.queue = history.NewQueue(w.rec, 0)
	return w, nil
}

// Run consumes the wallet's history event queue until ctx is cancelled.
func (w *Wallet) Run(ctx context.Context) {
	w.queue.Run(ctx)
}

// ProcessEvent applies one history event through the serialized queue.
func (w *Wallet) ProcessEvent(ctx context.Context, ev *history.TxEvent) error {
	return w.queue.Submit(ctx, ev)
}

// ApplyEvent applies an event directly under the wallet lock, bypassing
// the queue. Intended for the initial full sync, where events arrive from
// a single loop anyway.
func (w *Wallet) ApplyEvent(ev *history.TxEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rec.ProcessEvent(ev)
}

// ProcessHistory rebuilds the UTXO index from the stored transaction
// records. Run it after a bulk sync: events that arrived with a spend ahead
// of its funding transaction are corrected by the rebuild.
func (w *Wallet) ProcessHistory() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rec.ProcessHistory()
}

// SetServerLimits installs the node-reported per-transaction input and
// output count limits.
func (w *Wallet) SetServerLimits(maxInputs, maxOutputs int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if maxInputs > 0 {
		w.maxInputs = maxInputs
	}
	if maxOutputs > 0 {
		w.maxOutputs = maxOutputs
	}
}

// SetHeight records the latest known chain height, used to evaluate
// heightlocked utxos.
func (w *Wallet) SetHeight(height uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.height = height
}

// Addresses returns the derived address entries.
func (w *Wallet) Addresses() []AddressEntry {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.book.Entries()
}

// CurrentAddress returns the first unused receiving address.
func (w *Wallet) CurrentAddress() (AddressEntry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.book.NextUnused()
}

// IsOwned reports whether addr belongs to this wallet.
func (w *Wallet) IsOwned(addr types.Address) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.book.IsOwned(addr)
}

// GetBalance returns the balance for a token: unlocked and locked sums,
// authority counts and the distinct transaction count.
func (w *Wallet) GetBalance(id types.TokenID) (*utxo.TokenBalance, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rec.Balance(id, w.now(), w.height)
}

// GetUtxos returns the utxos matching filter.
func (w *Wallet) GetUtxos(filter utxo.Filter) ([]*utxo.Utxo, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if filter.Now == 0 {
		filter.Now = w.now()
	}
	if filter.Height == 0 {
		filter.Height = w.height
	}
	return w.index.QueryAll(filter)
}

// GetUtxosForAmount selects utxos covering amount of the given token and
// reports the change. The selection is not reserved.
func (w *Wallet) GetUtxosForAmount(amount int64, id types.TokenID, filter utxo.Filter) (*utxo.Selection, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.selectLocked(amount, id, filter)
}

func (w *Wallet) selectLocked(amount int64, id types.TokenID, filter utxo.Filter) (*utxo.Selection, error) {
	if filter.Now == 0 {
		filter.Now = w.now()
	}
	if filter.Height == 0 {
		filter.Height = w.height
	}
	return w.index.SelectInputs(amount, id, utxo.SelectOptions{
		Filter:   filter,
		MaxCount: w.maxInputs,
	})
}

// SendOptions tune a simple send.
type SendOptions struct {
	Token         types.TokenID
	Timelock      uint32
	ChangeAddress *types.Address
}

// SendTransaction builds, signs and submits a single-output send of amount
// to addr. Change returns to the wallet. A failed build releases every
// reservation; the index is never left half-mutated.
func (w *Wallet) SendTransaction(ctx context.Context, addr types.Address, amount int64, opts SendOptions) (*tx.Transaction, error) {
	w.mu.Lock()
	built, inputs, err := w.buildSendLocked(addr, amount, opts)
	w.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return w.submit(ctx, built, inputs)
}

func (w *Wallet) buildSendLocked(addr types.Address, amount int64, opts SendOptions) (*tx.Transaction, []*utxo.Utxo, error) {
	sel, err := w.selectLocked(amount, opts.Token, utxo.Filter{})
	if err != nil {
		return nil, nil, err
	}
	if err := w.index.Reserve(sel); err != nil {
		return nil, nil, err
	}

	built, err := w.assembleSend(addr, uint64(amount), sel, opts)
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

func (w *Wallet) assembleSend(addr types.Address, amount uint64, sel *utxo.Selection, opts SendOptions) (*tx.Transaction, error) {
	b := tx.NewBuilder().
		SetLimits(w.maxInputs, w.maxOutputs).
		SetTimestamp(w.now())
	if err := b.AddOutput(tx.OutputSpec{
		Address:  addr,
		Value:    amount,
		Token:    opts.Token,
		Timelock: opts.Timelock,
	}); err != nil {
		return nil, err
	}
	if sel.ChangeAmount > 0 {
		change, err := w.changeAddress(opts.ChangeAddress)
		if err != nil {
			return nil, err
		}
		if err := b.AddOutput(tx.OutputSpec{
			Address: change,
			Value:   sel.ChangeAmount,
			Token:   opts.Token,
		}); err != nil {
			return nil, err
		}
	}
	for _, u := range sel.Utxos {
		if err := b.AddInput(u.Outpoint()); err != nil {
			return nil, err
		}
	}
	return b.Build()
}

// changeAddress resolves the change destination: a caller-specified owned
// address, or the current receiving address.
func (w *Wallet) changeAddress(requested *types.Address) (types.Address, error) {
	if requested != nil {
		if !w.book.IsOwned(*requested) {
			return types.Address{}, fmt.Errorf("%w: change address %s", ErrForeignAddress, *requested)
		}
		return *requested, nil
	}
	entry, err := w.book.NextUnused()
	if err != nil {
		return types.Address{}, err
	}
	return entry.Address, nil
}

// signAll signs input i with the key owning inputs[i]'s address. The input
// order must match the selection order used during assembly.
func (w *Wallet) signAll(t *tx.Transaction, inputs []*utxo.Utxo) error {
	for i, u := range inputs {
		key, err := w.book.KeyFor(u.Address)
		if err != nil {
			return err
		}
		signer, err := key.Signer()
		if err != nil {
			return err
		}
		if err := t.SignInput(i, signer); err != nil {
			return err
		}
	}
	return nil
}

func (w *Wallet) releaseLocked(utxos []*utxo.Utxo) {
	ops := make([]types.Outpoint, len(utxos))
	for i, u := range utxos {
		ops[i] = u.Outpoint()
	}
	if err := w.index.Release(ops); err != nil {
		w.logger.Error().Err(err).Msg("release reserved utxos")
	}
}

// submit pushes a signed transaction. Submission failure releases the
// reservations; on success they stay until the history event marks the
// inputs spent.
func (w *Wallet) submit(ctx context.Context, built *tx.Transaction, inputs []*utxo.Utxo) (*tx.Transaction, error) {
	if w.submitter == nil {
		return built, nil
	}
	txID, err := w.submitter.PushTransaction(ctx, built.SerializeHex())
	if err != nil {
		w.mu.Lock()
		w.releaseLocked(inputs)
		w.mu.Unlock()
		return nil, fmt.Errorf("submit transaction: %w", err)
	}
	w.logger.Info().Str("tx_id", txID.String()).Msg("transaction submitted")
	return built, nil
}

// PlanContract funds nano-contract actions against the wallet's utxo set
// and reserves the selected inputs. The returned plan is ready for
// BuildTransaction.
func (w *Wallet) PlanContract(actions []nano.Action, opts nano.Options) (*nano.Plan, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if opts.ChangeAddress.IsZero() {
		entry, err := w.book.NextUnused()
		if err != nil {
			return nil, err
		}
		opts.ChangeAddress = entry.Address
	}

	planner := nano.NewPlanner(w.index, func(id types.TokenID) (bool, error) {
		policy, err := w.tokens.Policy(id)
		if err != nil {
			return false, err
		}
		return policy == token.PolicyFee, nil
	})
	plan, err := planner.Plan(actions, opts)
	if err != nil {
		return nil, err
	}
	if err := w.index.ReserveOutpoints(plan.Outpoints()); err != nil {
		return nil, err
	}
	return plan, nil
}

// ReleasePlan undoes a contract plan's reservations after an abandoned
// build.
func (w *Wallet) ReleasePlan(plan *nano.Plan) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.releaseLocked(plan.Inputs)
}

// NewProposal starts an empty swap proposal.
func (w *Wallet) NewProposal() *swap.Proposal {
	return swap.NewProposal()
}

// FundProposal attaches this wallet's side to a proposal: inputs covering
// every declared send (with change back to the wallet) and outputs for
// every declared receive.
func (w *Wallet) FundProposal(p *swap.Proposal, sends []swap.Entry, receives []swap.Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	t := p.Transaction()
	var reserved []*utxo.Utxo
	fail := func(err error) error {
		w.releaseLocked(reserved)
		return err
	}

	for _, e := range sends {
		sel, err := w.selectLocked(int64(e.Amount), e.Token, utxo.Filter{})
		if err != nil {
			return fail(err)
		}
		if err := w.index.Reserve(sel); err != nil {
			return fail(err)
		}
		reserved = append(reserved, sel.Utxos...)
		for _, u := range sel.Utxos {
			if u.Outpoint().Index > 255 {
				return fail(tx.ErrInputIndexWide)
			}
			t.Inputs = append(t.Inputs, tx.Input{PrevOut: u.Outpoint()})
		}
		if sel.ChangeAmount > 0 {
			change, err := w.changeAddress(nil)
			if err != nil {
				return fail(err)
			}
			t.Outputs = append(t.Outputs, tx.Output{
				Value:     sel.ChangeAmount,
				TokenData: t.TokenIndex(e.Token),
				Script:    types.BuildP2PKH(change, 0),
			})
		}
		p.AddSend(e.Token, e.Amount)
	}

	for _, e := range receives {
		dest, err := w.changeAddress(nil)
		if err != nil {
			return fail(err)
		}
		t.Outputs = append(t.Outputs, tx.Output{
			Value:     e.Amount,
			TokenData: t.TokenIndex(e.Token),
			Script:    types.BuildP2PKH(dest, 0),
		})
		p.AddReceive(e.Token, e.Amount)
	}
	return nil
}

// SignProposal contributes this wallet's signatures to a balanced
// proposal, filling the slots for inputs it owns.
func (w *Wallet) SignProposal(p *swap.Proposal) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	sigs, err := p.Signatures()
	if err != nil {
		return err
	}
	t := p.Transaction()
	for i, in := range t.Inputs {
		u, err := w.index.Get(in.PrevOut)
		if err != nil {
			continue // Not ours to sign.
		}
		key, err := w.book.KeyFor(u.Address)
		if err != nil {
			return err
		}
		signer, err := key.Signer()
		if err != nil {
			return err
		}
		digest := crypto.Sha256d(t.SigningBytes())
		sig, err := signer.Sign(digest[:])
		if err != nil {
			return fmt.Errorf("sign proposal input %d: %w", i, err)
		}
		if err := sigs.Add(i, types.BuildInputData(sig, signer.PublicKey())); err != nil {
			return err
		}
	}
	return nil
}

// SubmitProposal finalizes a fully signed proposal and pushes it.
func (w *Wallet) SubmitProposal(ctx context.Context, p *swap.Proposal) (types.Hash, error) {
	built, err := p.Finalize()
	if err != nil {
		return types.Hash{}, err
	}
	if w.submitter == nil {
		return built.ID(), nil
	}
	return w.submitter.PushTransaction(ctx, built.SerializeHex())
}
