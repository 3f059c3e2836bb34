package token

import (
	"errors"
	"testing"

	"github.com/HathorNetwork/hathor-wallet-lib-sub010/internal/storage"
	"github.com/HathorNetwork/hathor-wallet-lib-sub010/pkg/types"
)

func TestStore_PutGet(t *testing.T) {
	s := NewStore(storage.NewMemory())
	id := types.TokenID{0x42}

	meta := &Metadata{Name: "My Token", Symbol: "TKN", Policy: PolicyDeposit}
	if err := s.Put(id, meta); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "My Token" || got.Symbol != "TKN" || got.Policy != PolicyDeposit {
		t.Errorf("got %+v", got)
	}

	_, err = s.Get(types.TokenID{0x99})
	if !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("unknown token: got %v, want ErrTokenNotFound", err)
	}
}

func TestStore_NativeImplicit(t *testing.T) {
	s := NewStore(storage.NewMemory())

	got, err := s.Get(types.NativeTokenID)
	if err != nil {
		t.Fatalf("Get native: %v", err)
	}
	if got.Symbol != "HTR" || got.Policy != PolicyDeposit {
		t.Errorf("native metadata = %+v", got)
	}
}

func TestStore_RegisterDoesNotOverwrite(t *testing.T) {
	s := NewStore(storage.NewMemory())
	id := types.TokenID{0x42}

	if err := s.Put(id, &Metadata{Name: "Original", Symbol: "ORI", Policy: PolicyFee}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	// The reconciler registers bare ids for tokens it discovers; a
	// pre-existing entry must survive.
	if err := s.Register(id, &Metadata{}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "Original" {
		t.Errorf("Register overwrote: %+v", got)
	}
}

func TestStore_PolicyDefaultsToDeposit(t *testing.T) {
	s := NewStore(storage.NewMemory())

	// Unregistered tokens follow the deposit policy until told otherwise.
	p, err := s.Policy(types.TokenID{0x99})
	if err != nil {
		t.Fatalf("Policy: %v", err)
	}
	if p != PolicyDeposit {
		t.Errorf("default policy = %s, want deposit", p)
	}

	id := types.TokenID{0x42}
	if err := s.Put(id, &Metadata{Name: "Fee Token", Symbol: "FEE", Policy: PolicyFee}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	p, err = s.Policy(id)
	if err != nil {
		t.Fatalf("Policy: %v", err)
	}
	if p != PolicyFee {
		t.Errorf("policy = %s, want fee", p)
	}
}

func TestStore_List(t *testing.T) {
	s := NewStore(storage.NewMemory())

	ids := []types.TokenID{{0x01}, {0x02}, {0x03}}
	for i, id := range ids {
		if err := s.Put(id, &Metadata{Symbol: string(rune('A' + i))}); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	entries, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
}
