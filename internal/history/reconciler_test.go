package history

import (
	"errors"
	"testing"

	"github.com/HathorNetwork/hathor-wallet-lib-sub010/internal/storage"
	"github.com/HathorNetwork/hathor-wallet-lib-sub010/internal/utxo"
	"github.com/HathorNetwork/hathor-wallet-lib-sub010/pkg/tx"
	"github.com/HathorNetwork/hathor-wallet-lib-sub010/pkg/types"
)

var (
	ownedAddr   = types.Address{0xaa}
	foreignAddr = types.Address{0xbb}
)

func ownsTest(addr types.Address) bool { return addr == ownedAddr }

func newTestReconciler() (*Reconciler, *utxo.Index, *Store) {
	db := storage.NewMemory()
	index := utxo.NewIndex(db)
	records := NewStore(db)
	return NewReconciler(records, index, ownsTest), index, records
}

func valueOutput(addr types.Address, value uint64) EventOutput {
	return EventOutput{
		Value:  value,
		Script: types.BuildP2PKH(addr, 0),
	}
}

func receiveEvent(txByte byte, addr types.Address, value uint64) *TxEvent {
	return &TxEvent{
		TxID:      types.Hash{txByte},
		Outputs:   []EventOutput{valueOutput(addr, value)},
		Timestamp: 1000,
	}
}

func TestReconciler_ReceiveUpdatesBalance(t *testing.T) {
	rec, _, _ := newTestReconciler()

	if err := rec.ProcessEvent(receiveEvent(0x01, ownedAddr, 10)); err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}

	bal, err := rec.Balance(types.NativeTokenID, 2000, 0)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if bal.Unlocked != 10 {
		t.Errorf("Unlocked = %d, want 10", bal.Unlocked)
	}
	if bal.Locked != 0 {
		t.Errorf("Locked = %d, want 0", bal.Locked)
	}
	if bal.Transactions != 1 {
		t.Errorf("Transactions = %d, want 1", bal.Transactions)
	}
}

func TestReconciler_ForeignOutputsIgnored(t *testing.T) {
	rec, index, _ := newTestReconciler()

	if err := rec.ProcessEvent(receiveEvent(0x01, foreignAddr, 10)); err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}

	all, err := index.QueryAll(utxo.Filter{})
	if err != nil {
		t.Fatalf("QueryAll: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("foreign output indexed: %v", all)
	}
}

func TestReconciler_ReplayIsIdempotent(t *testing.T) {
	rec, _, _ := newTestReconciler()

	ev := receiveEvent(0x01, ownedAddr, 10)
	for i := 0; i < 3; i++ {
		if err := rec.ProcessEvent(ev); err != nil {
			t.Fatalf("ProcessEvent replay %d: %v", i, err)
		}
	}

	bal, err := rec.Balance(types.NativeTokenID, 2000, 0)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if bal.Unlocked != 10 || bal.Transactions != 1 {
		t.Errorf("after replay: unlocked=%d txs=%d, want 10 and 1", bal.Unlocked, bal.Transactions)
	}
}

func TestReconciler_VoidRollsBack(t *testing.T) {
	rec, index, _ := newTestReconciler()

	ev := receiveEvent(0x01, ownedAddr, 10)
	if err := rec.ProcessEvent(ev); err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}

	voided := *ev
	voided.Voided = true
	if err := rec.ProcessEvent(&voided); err != nil {
		t.Fatalf("ProcessEvent void: %v", err)
	}

	bal, err := rec.Balance(types.NativeTokenID, 2000, 0)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if bal.Unlocked != 0 || bal.Locked != 0 || bal.Transactions != 0 {
		t.Errorf("after void: %+v, want all zero", bal)
	}

	all, err := index.QueryAll(utxo.Filter{IncludeSpent: true, IncludeLocked: true})
	if err != nil {
		t.Fatalf("QueryAll: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("utxo set not empty after void: %v", all)
	}
}

func TestReconciler_VoidRestoresSpentInputs(t *testing.T) {
	rec, index, _ := newTestReconciler()

	if err := rec.ProcessEvent(receiveEvent(0x01, ownedAddr, 10)); err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}

	// Spend the output in a second transaction, then void the spender.
	spend := &TxEvent{
		TxID:      types.Hash{0x02},
		Inputs:    []EventInput{{TxID: types.Hash{0x01}, Index: 0}},
		Outputs:   []EventOutput{valueOutput(foreignAddr, 10)},
		Timestamp: 1100,
	}
	if err := rec.ProcessEvent(spend); err != nil {
		t.Fatalf("ProcessEvent spend: %v", err)
	}

	bal, _ := rec.Balance(types.NativeTokenID, 2000, 0)
	if bal.Unlocked != 0 {
		t.Fatalf("after spend: Unlocked = %d, want 0", bal.Unlocked)
	}

	voided := *spend
	voided.Voided = true
	if err := rec.ProcessEvent(&voided); err != nil {
		t.Fatalf("ProcessEvent void: %v", err)
	}

	u, err := index.Get(types.Outpoint{TxID: types.Hash{0x01}, Index: 0})
	if err != nil {
		t.Fatalf("Get after void: %v", err)
	}
	if u.SpentBy != nil {
		t.Errorf("input not restored: SpentBy = %s", *u.SpentBy)
	}
	bal, _ = rec.Balance(types.NativeTokenID, 2000, 0)
	if bal.Unlocked != 10 {
		t.Errorf("after void: Unlocked = %d, want 10", bal.Unlocked)
	}
}

func TestReconciler_UnvoidReapplies(t *testing.T) {
	rec, _, _ := newTestReconciler()

	ev := receiveEvent(0x01, ownedAddr, 10)
	if err := rec.ProcessEvent(ev); err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}
	voided := *ev
	voided.Voided = true
	if err := rec.ProcessEvent(&voided); err != nil {
		t.Fatalf("ProcessEvent void: %v", err)
	}
	if err := rec.ProcessEvent(ev); err != nil {
		t.Fatalf("ProcessEvent un-void: %v", err)
	}

	bal, err := rec.Balance(types.NativeTokenID, 2000, 0)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if bal.Unlocked != 10 || bal.Transactions != 1 {
		t.Errorf("after un-void: unlocked=%d txs=%d, want 10 and 1", bal.Unlocked, bal.Transactions)
	}
}

func TestReconciler_VoidedEventNeverApplied(t *testing.T) {
	rec, index, _ := newTestReconciler()

	ev := receiveEvent(0x01, ownedAddr, 10)
	ev.Voided = true
	if err := rec.ProcessEvent(ev); err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}

	all, err := index.QueryAll(utxo.Filter{})
	if err != nil {
		t.Fatalf("QueryAll: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("voided event created utxos: %v", all)
	}
}

func TestReconciler_InvalidOutputIndexRejected(t *testing.T) {
	rec, _, _ := newTestReconciler()

	if err := rec.ProcessEvent(receiveEvent(0x01, ownedAddr, 10)); err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}

	bad := &TxEvent{
		TxID:      types.Hash{0x02},
		Inputs:    []EventInput{{TxID: types.Hash{0x01}, Index: 7}},
		Outputs:   []EventOutput{valueOutput(foreignAddr, 10)},
		Timestamp: 1100,
	}
	if err := rec.ProcessEvent(bad); !errors.Is(err, utxo.ErrInvalidOutputIndex) {
		t.Fatalf("got %v, want ErrInvalidOutputIndex", err)
	}
}

func TestReconciler_RejectedEventLeavesNoState(t *testing.T) {
	rec, index, records := newTestReconciler()

	if err := rec.ProcessEvent(receiveEvent(0x01, ownedAddr, 10)); err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}

	// A valid spend of 01:0 alongside an out-of-bounds input: the whole
	// event must be rejected without partial effects.
	bad := &TxEvent{
		TxID: types.Hash{0x02},
		Inputs: []EventInput{
			{TxID: types.Hash{0x01}, Index: 0},
			{TxID: types.Hash{0x01}, Index: 7},
		},
		Outputs:   []EventOutput{valueOutput(ownedAddr, 10)},
		Timestamp: 1100,
	}
	if err := rec.ProcessEvent(bad); !errors.Is(err, utxo.ErrInvalidOutputIndex) {
		t.Fatalf("got %v, want ErrInvalidOutputIndex", err)
	}

	u, err := index.Get(types.Outpoint{TxID: types.Hash{0x01}, Index: 0})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if u.SpentBy != nil {
		t.Error("rejected event's valid input was marked spent")
	}
	if _, err := index.Get(types.Outpoint{TxID: types.Hash{0x02}, Index: 0}); !errors.Is(err, utxo.ErrNotFound) {
		t.Error("rejected event's output was indexed")
	}
	if _, err := records.Get(types.Hash{0x02}); err == nil {
		t.Error("rejected event left a record behind")
	}

	bal, err := rec.Balance(types.NativeTokenID, 2000, 0)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if bal.Unlocked != 10 || bal.Transactions != 1 {
		t.Errorf("balance = {unlocked %d, transactions %d}, want {10, 1}", bal.Unlocked, bal.Transactions)
	}
}

func TestReconciler_ValidationErrors(t *testing.T) {
	rec, _, _ := newTestReconciler()

	cases := []struct {
		name string
		ev   *TxEvent
	}{
		{"nil", nil},
		{"zero tx id", &TxEvent{Outputs: []EventOutput{valueOutput(ownedAddr, 1)}, Timestamp: 1}},
		{"no outputs", &TxEvent{TxID: types.Hash{0x01}, Timestamp: 1}},
		{"no timestamp", &TxEvent{TxID: types.Hash{0x01}, Outputs: []EventOutput{valueOutput(ownedAddr, 1)}}},
		{"empty script", &TxEvent{TxID: types.Hash{0x01}, Outputs: []EventOutput{{Value: 1}}, Timestamp: 1}},
		{"token index out of range", &TxEvent{
			TxID:      types.Hash{0x01},
			Outputs:   []EventOutput{{Value: 1, TokenData: 2, Script: types.BuildP2PKH(ownedAddr, 0)}},
			Tokens:    []types.TokenID{{0x42}},
			Timestamp: 1,
		}},
		{"input missing source", &TxEvent{
			TxID:      types.Hash{0x01},
			Inputs:    []EventInput{{}},
			Outputs:   []EventOutput{valueOutput(ownedAddr, 1)},
			Timestamp: 1,
		}},
	}
	for _, tc := range cases {
		if err := rec.ProcessEvent(tc.ev); !errors.Is(err, ErrHistoryValidation) {
			t.Errorf("%s: got %v, want ErrHistoryValidation", tc.name, err)
		}
	}
}

func TestReconciler_CustomTokenOutput(t *testing.T) {
	rec, index, _ := newTestReconciler()

	custom := types.TokenID{0x42}
	var seen []types.TokenID
	rec.OnTokenSeen(func(id types.TokenID) { seen = append(seen, id) })

	ev := &TxEvent{
		TxID: types.Hash{0x01},
		Outputs: []EventOutput{
			{Value: 100, TokenData: 1, Script: types.BuildP2PKH(ownedAddr, 0)},
		},
		Tokens:    []types.TokenID{custom},
		Timestamp: 1000,
	}
	if err := rec.ProcessEvent(ev); err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}

	u, err := index.Get(types.Outpoint{TxID: types.Hash{0x01}, Index: 0})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if u.Token != custom {
		t.Errorf("Token = %s, want %s", u.Token, custom)
	}
	if len(seen) != 1 || seen[0] != custom {
		t.Errorf("token hook saw %v, want [%s]", seen, custom)
	}

	// Native balance must be untouched.
	bal, _ := rec.Balance(types.NativeTokenID, 2000, 0)
	if bal.Unlocked != 0 || bal.Transactions != 0 {
		t.Errorf("native balance leaked: %+v", bal)
	}
}

func TestReconciler_AuthorityOutput(t *testing.T) {
	rec, index, _ := newTestReconciler()

	custom := types.TokenID{0x42}
	ev := &TxEvent{
		TxID: types.Hash{0x01},
		Outputs: []EventOutput{
			{Value: tx.AuthorityMint, TokenData: 1 | tx.TokenDataAuthorityBit, Script: types.BuildP2PKH(ownedAddr, 0)},
			{Value: tx.AuthorityMelt, TokenData: 1 | tx.TokenDataAuthorityBit, Script: types.BuildP2PKH(ownedAddr, 0)},
		},
		Tokens:    []types.TokenID{custom},
		Timestamp: 1000,
	}
	if err := rec.ProcessEvent(ev); err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}

	mint, err := index.Get(types.Outpoint{TxID: types.Hash{0x01}, Index: 0})
	if err != nil {
		t.Fatalf("Get mint: %v", err)
	}
	if mint.Authority != utxo.AuthorityMint {
		t.Errorf("output 0 authority = %s, want mint", mint.Authority)
	}
	melt, err := index.Get(types.Outpoint{TxID: types.Hash{0x01}, Index: 1})
	if err != nil {
		t.Fatalf("Get melt: %v", err)
	}
	if melt.Authority != utxo.AuthorityMelt {
		t.Errorf("output 1 authority = %s, want melt", melt.Authority)
	}

	// Authority values never count toward the balance.
	bal, _ := rec.Balance(custom, 2000, 0)
	if bal.Unlocked != 0 {
		t.Errorf("authority leaked into balance: %d", bal.Unlocked)
	}
	if bal.UnlockedAuthorities.Mint != 1 || bal.UnlockedAuthorities.Melt != 1 {
		t.Errorf("authority counts = %+v, want 1/1", bal.UnlockedAuthorities)
	}
}

func TestReconciler_TimelockedOutput(t *testing.T) {
	rec, _, _ := newTestReconciler()

	ev := &TxEvent{
		TxID: types.Hash{0x01},
		Outputs: []EventOutput{
			{Value: 10, Script: types.BuildP2PKH(ownedAddr, 5000)},
		},
		Timestamp: 1000,
	}
	if err := rec.ProcessEvent(ev); err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}

	bal, _ := rec.Balance(types.NativeTokenID, 2000, 0)
	if bal.Unlocked != 0 || bal.Locked != 10 {
		t.Errorf("before timelock: unlocked=%d locked=%d, want 0/10", bal.Unlocked, bal.Locked)
	}

	bal, _ = rec.Balance(types.NativeTokenID, 6000, 0)
	if bal.Unlocked != 10 || bal.Locked != 0 {
		t.Errorf("after timelock: unlocked=%d locked=%d, want 10/0", bal.Unlocked, bal.Locked)
	}
}

func TestReconciler_AddressUsedHook(t *testing.T) {
	rec, _, _ := newTestReconciler()

	var used []types.Address
	rec.OnAddressUsed(func(addr types.Address) { used = append(used, addr) })

	if err := rec.ProcessEvent(receiveEvent(0x01, ownedAddr, 10)); err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}
	if len(used) != 1 || used[0] != ownedAddr {
		t.Errorf("address hook saw %v, want [%s]", used, ownedAddr)
	}
}

func TestProcessHistory_OrderIndependent(t *testing.T) {
	// The spend arrives before the transaction that created the output.
	// A full rebuild must converge to the same state as in-order delivery.
	rec, index, records := newTestReconciler()

	create := receiveEvent(0x01, ownedAddr, 10)
	spend := &TxEvent{
		TxID:      types.Hash{0x02},
		Inputs:    []EventInput{{TxID: types.Hash{0x01}, Index: 0}},
		Outputs:   []EventOutput{valueOutput(ownedAddr, 4)},
		Timestamp: 1100,
	}

	if err := rec.ProcessEvent(spend); err != nil {
		t.Fatalf("ProcessEvent spend-first: %v", err)
	}
	if err := rec.ProcessEvent(create); err != nil {
		t.Fatalf("ProcessEvent create: %v", err)
	}

	if err := rec.ProcessHistory(); err != nil {
		t.Fatalf("ProcessHistory: %v", err)
	}

	// 10 received and spent, 4 back as change: unlocked must be 4.
	bal, err := rec.Balance(types.NativeTokenID, 2000, 0)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if bal.Unlocked != 4 {
		t.Errorf("Unlocked = %d, want 4", bal.Unlocked)
	}
	if bal.Transactions != 2 {
		t.Errorf("Transactions = %d, want 2", bal.Transactions)
	}

	spent, err := index.Get(types.Outpoint{TxID: types.Hash{0x01}, Index: 0})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if spent.SpentBy == nil || *spent.SpentBy != (types.Hash{0x02}) {
		t.Errorf("spend mark missing after rebuild: %v", spent.SpentBy)
	}

	// Every record settles as finished.
	err = records.ForEach(func(r *Record) error {
		if r.Status != StatusFinished {
			t.Errorf("record %s status = %s, want finished", r.TxID, r.Status)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ForEach: %v", err)
	}
}

func TestProcessHistory_SkipsVoided(t *testing.T) {
	rec, _, _ := newTestReconciler()

	if err := rec.ProcessEvent(receiveEvent(0x01, ownedAddr, 10)); err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}
	voided := receiveEvent(0x02, ownedAddr, 99)
	voided.Voided = true
	if err := rec.ProcessEvent(voided); err != nil {
		t.Fatalf("ProcessEvent voided: %v", err)
	}

	if err := rec.ProcessHistory(); err != nil {
		t.Fatalf("ProcessHistory: %v", err)
	}

	bal, _ := rec.Balance(types.NativeTokenID, 2000, 0)
	if bal.Unlocked != 10 || bal.Transactions != 1 {
		t.Errorf("rebuild included voided tx: unlocked=%d txs=%d", bal.Unlocked, bal.Transactions)
	}
}
