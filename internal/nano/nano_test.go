package nano

import (
	"errors"
	"testing"

	"github.com/HathorNetwork/hathor-wallet-lib-sub010/internal/storage"
	"github.com/HathorNetwork/hathor-wallet-lib-sub010/internal/utxo"
	"github.com/HathorNetwork/hathor-wallet-lib-sub010/pkg/types"
)

var (
	feeToken     = types.TokenID{0x0f}
	depositToken = types.TokenID{0x0d}
	destAddr     = types.Address{0xcc}
	changeAddr   = types.Address{0xdd}
)

func testPolicy(id types.TokenID) (bool, error) {
	return id == feeToken, nil
}

func TestComputeFee_FeePolicyWithdrawal(t *testing.T) {
	fee, err := ComputeFee([]Action{
		{Type: ActionWithdrawal, Token: feeToken, Amount: 100, Address: destAddr},
	}, testPolicy)
	if err != nil {
		t.Fatalf("ComputeFee: %v", err)
	}
	if fee == nil {
		t.Fatal("fee is nil, want one unit")
	}
	if !fee.Token.IsNative() {
		t.Errorf("fee token = %s, want native", fee.Token)
	}
	if fee.Amount != 1 {
		t.Errorf("fee = %d, want 1", fee.Amount)
	}
}

func TestComputeFee_PerOutputNotPerAmount(t *testing.T) {
	// Two withdrawals of the same fee-policy token are two outputs.
	fee, err := ComputeFee([]Action{
		{Type: ActionWithdrawal, Token: feeToken, Amount: 1, Address: destAddr},
		{Type: ActionWithdrawal, Token: feeToken, Amount: 99999, Address: changeAddr},
	}, testPolicy)
	if err != nil {
		t.Fatalf("ComputeFee: %v", err)
	}
	if fee.Amount != 2 {
		t.Errorf("fee = %d, want 2", fee.Amount)
	}
}

func TestComputeFee_NoFeeCases(t *testing.T) {
	cases := []struct {
		name    string
		actions []Action
	}{
		{"deposit-policy withdrawal", []Action{
			{Type: ActionWithdrawal, Token: depositToken, Amount: 100},
		}},
		{"native withdrawal", []Action{
			{Type: ActionWithdrawal, Token: types.NativeTokenID, Amount: 100},
		}},
		{"fee-token deposit", []Action{
			{Type: ActionDeposit, Token: feeToken, Amount: 100},
		}},
		{"authority actions", []Action{
			{Type: ActionGrantAuthority, Token: feeToken, Authority: utxo.AuthorityMint},
			{Type: ActionAcquireAuthority, Token: feeToken, Authority: utxo.AuthorityMelt},
		}},
		{"no actions", nil},
	}
	for _, tc := range cases {
		fee, err := ComputeFee(tc.actions, testPolicy)
		if err != nil {
			t.Errorf("%s: %v", tc.name, err)
		}
		if fee != nil {
			t.Errorf("%s: fee = %+v, want nil", tc.name, fee)
		}
	}
}

func plannerWithNative(t *testing.T, values ...uint64) (*Planner, *utxo.Index) {
	t.Helper()
	ix := utxo.NewIndex(storage.NewMemory())
	for i, v := range values {
		u := &utxo.Utxo{
			TxID:    types.Hash{byte(i + 1)},
			Index:   0,
			Address: types.Address{0xaa},
			Token:   types.NativeTokenID,
			Value:   v,
		}
		if err := ix.IndexOutput(u); err != nil {
			t.Fatalf("IndexOutput: %v", err)
		}
	}
	return NewPlanner(ix, testPolicy), ix
}

func TestPlan_MaxFeeCheckedBeforeSelection(t *testing.T) {
	p, _ := plannerWithNative(t) // empty index: selection would fail

	actions := []Action{
		{Type: ActionWithdrawal, Token: feeToken, Amount: 10, Address: destAddr},
		{Type: ActionWithdrawal, Token: feeToken, Amount: 10, Address: destAddr},
	}
	_, err := p.Plan(actions, Options{MaxFee: 1, Payer: WalletPaysFee})
	if !errors.Is(err, ErrFeeExceedsMaximum) {
		t.Fatalf("got %v, want ErrFeeExceedsMaximum", err)
	}
}

func TestPlan_ContractPaysFee(t *testing.T) {
	p, _ := plannerWithNative(t)

	actions := []Action{
		{Type: ActionWithdrawal, Token: feeToken, Amount: 100, Address: destAddr},
		{Type: ActionWithdrawal, Token: types.NativeTokenID, Amount: 10, Address: destAddr},
	}
	plan, err := p.Plan(actions, Options{Payer: ContractPaysFee, ChangeAddress: changeAddr})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plan.Fee == nil || plan.Fee.Amount != 1 {
		t.Fatalf("Fee = %+v, want 1", plan.Fee)
	}
	if len(plan.Inputs) != 0 {
		t.Errorf("contract-paid plan selected %d inputs, want 0", len(plan.Inputs))
	}
	// The native withdrawal shrinks by the fee.
	var nativeOut uint64
	for _, o := range plan.Outputs {
		if o.Token.IsNative() {
			nativeOut += o.Value
		}
	}
	if nativeOut != 9 {
		t.Errorf("native output = %d, want 9", nativeOut)
	}
}

func TestPlan_WithdrawalExactlyFeeHasNoOutput(t *testing.T) {
	p, _ := plannerWithNative(t)

	actions := []Action{
		{Type: ActionWithdrawal, Token: feeToken, Amount: 100, Address: destAddr},
		{Type: ActionWithdrawal, Token: types.NativeTokenID, Amount: 1, Address: destAddr},
	}
	plan, err := p.Plan(actions, Options{Payer: ContractPaysFee})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	for _, o := range plan.Outputs {
		if o.Token.IsNative() {
			t.Errorf("unexpected native output of %d", o.Value)
		}
	}

	// The fee declaration still rides in the transaction header.
	built, err := plan.BuildTransaction(1000)
	if err != nil {
		t.Fatalf("BuildTransaction: %v", err)
	}
	if len(built.Fees) != 1 || built.Fees[0].Amount != 1 {
		t.Errorf("Fees = %+v, want one native entry of 1", built.Fees)
	}
	for _, o := range built.Outputs {
		if o.TokenIndex() == 0 {
			t.Errorf("built transaction has a native output of %d", o.Value)
		}
	}
}

func TestPlan_ContractPaysInsufficientWithdrawal(t *testing.T) {
	p, _ := plannerWithNative(t)

	actions := []Action{
		{Type: ActionWithdrawal, Token: feeToken, Amount: 100, Address: destAddr},
		{Type: ActionWithdrawal, Token: feeToken, Amount: 100, Address: destAddr},
		{Type: ActionWithdrawal, Token: types.NativeTokenID, Amount: 1, Address: destAddr},
	}
	_, err := p.Plan(actions, Options{Payer: ContractPaysFee})
	if !errors.Is(err, ErrInsufficientFeeWithdrawal) {
		t.Fatalf("got %v, want ErrInsufficientFeeWithdrawal", err)
	}
}

func TestPlan_ContractPaysRequiresNativeWithdrawal(t *testing.T) {
	p, _ := plannerWithNative(t)

	actions := []Action{
		{Type: ActionWithdrawal, Token: feeToken, Amount: 100, Address: destAddr},
	}
	_, err := p.Plan(actions, Options{Payer: ContractPaysFee})
	if !errors.Is(err, ErrNoNativeWithdrawal) {
		t.Fatalf("got %v, want ErrNoNativeWithdrawal", err)
	}
}

func TestPlan_WalletPaysFee(t *testing.T) {
	p, _ := plannerWithNative(t, 5)

	actions := []Action{
		{Type: ActionWithdrawal, Token: feeToken, Amount: 100, Address: destAddr},
	}
	plan, err := p.Plan(actions, Options{Payer: WalletPaysFee, ChangeAddress: changeAddr})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Inputs) != 1 {
		t.Fatalf("selected %d inputs, want 1", len(plan.Inputs))
	}
	// 5-unit input covering a 1-unit fee: 4 units of native change.
	var change uint64
	for _, o := range plan.Outputs {
		if o.Token.IsNative() && o.Address == changeAddr {
			change = o.Value
		}
	}
	if change != 4 {
		t.Errorf("native change = %d, want 4", change)
	}
}

func TestPlan_WalletPaysFeeFoldedIntoDeposit(t *testing.T) {
	// One 10-unit utxo must cover a 9-unit deposit plus the 1-unit fee in
	// a single selection.
	p, _ := plannerWithNative(t, 10)

	actions := []Action{
		{Type: ActionWithdrawal, Token: feeToken, Amount: 100, Address: destAddr},
		{Type: ActionDeposit, Token: types.NativeTokenID, Amount: 9},
	}
	plan, err := p.Plan(actions, Options{Payer: WalletPaysFee, ChangeAddress: changeAddr})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Inputs) != 1 {
		t.Errorf("selected %d inputs, want 1", len(plan.Inputs))
	}
	for _, o := range plan.Outputs {
		if o.Token.IsNative() {
			t.Errorf("unexpected change output of %d", o.Value)
		}
	}
}

func TestPlan_FeeShortfallClassified(t *testing.T) {
	// Enough for the deposit alone, not for deposit plus fee.
	p, _ := plannerWithNative(t, 9)

	actions := []Action{
		{Type: ActionWithdrawal, Token: feeToken, Amount: 100, Address: destAddr},
		{Type: ActionDeposit, Token: types.NativeTokenID, Amount: 9},
	}
	_, err := p.Plan(actions, Options{Payer: WalletPaysFee})
	if !errors.Is(err, ErrInsufficientFeeFunds) {
		t.Fatalf("got %v, want ErrInsufficientFeeFunds", err)
	}
}

func TestPlan_DepositShortfallStaysGeneric(t *testing.T) {
	p, _ := plannerWithNative(t, 3)

	actions := []Action{
		{Type: ActionWithdrawal, Token: feeToken, Amount: 100, Address: destAddr},
		{Type: ActionDeposit, Token: types.NativeTokenID, Amount: 9},
	}
	_, err := p.Plan(actions, Options{Payer: WalletPaysFee})
	if errors.Is(err, ErrInsufficientFeeFunds) {
		t.Fatalf("deposit shortfall misclassified as a fee shortfall: %v", err)
	}
	if !errors.Is(err, utxo.ErrInsufficientFunds) {
		t.Fatalf("got %v, want ErrInsufficientFunds", err)
	}
}

func TestPlan_GrantAuthority(t *testing.T) {
	p, ix := plannerWithNative(t)

	mint := &utxo.Utxo{
		TxID:      types.Hash{0x20},
		Address:   types.Address{0xaa},
		Token:     depositToken,
		Value:     1,
		Authority: utxo.AuthorityMint,
	}
	if err := ix.IndexOutput(mint); err != nil {
		t.Fatalf("IndexOutput: %v", err)
	}

	plan, err := p.Plan([]Action{
		{Type: ActionGrantAuthority, Token: depositToken, Authority: utxo.AuthorityMint},
	}, Options{})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Inputs) != 1 || plan.Inputs[0].Authority != utxo.AuthorityMint {
		t.Errorf("Inputs = %v, want the mint authority", plan.Inputs)
	}

	// No melt authority held.
	_, err = p.Plan([]Action{
		{Type: ActionGrantAuthority, Token: depositToken, Authority: utxo.AuthorityMelt},
	}, Options{})
	if err == nil {
		t.Error("grant without authority should fail")
	}
}

func TestPlan_AcquireAuthorityBuildsOutput(t *testing.T) {
	p, _ := plannerWithNative(t)

	plan, err := p.Plan([]Action{
		{Type: ActionAcquireAuthority, Token: depositToken, Authority: utxo.AuthorityMelt, Address: destAddr},
	}, Options{})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Authorities) != 1 {
		t.Fatalf("Authorities = %d, want 1", len(plan.Authorities))
	}

	built, err := plan.BuildTransaction(1000)
	if err != nil {
		t.Fatalf("BuildTransaction: %v", err)
	}
	if len(built.Outputs) != 1 {
		t.Fatalf("outputs = %d, want 1", len(built.Outputs))
	}
	out := built.Outputs[0]
	if !out.IsAuthority() {
		t.Error("output missing authority bit")
	}
	if out.Value != 0b10 {
		t.Errorf("authority mask = %b, want melt", out.Value)
	}
}
