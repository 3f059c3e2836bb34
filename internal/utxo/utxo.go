// Package utxo maintains the wallet's view of its unspent outputs: the
// index keyed by (txid, output index), the balance fold over it, and input
// selection for new transactions.
package utxo

import (
	"github.com/HathorNetwork/hathor-wallet-lib-sub010/pkg/types"
)

// AuthorityKind classifies an output as a value output or a token
// authority.
type AuthorityKind uint8

const (
	AuthorityNone AuthorityKind = iota
	AuthorityMint
	AuthorityMelt
)

// String returns a human-readable name for the authority kind.
func (k AuthorityKind) String() string {
	switch k {
	case AuthorityMint:
		return "mint"
	case AuthorityMelt:
		return "melt"
	default:
		return "none"
	}
}

// Utxo is one unspent (or spent-but-tracked) wallet output. For authority
// outputs Value holds the authority mask, not a monetary amount.
type Utxo struct {
	TxID       types.Hash    `json:"tx_id"`
	Index      uint32        `json:"index"`
	Address    types.Address `json:"address"`
	Token      types.TokenID `json:"token"`
	Value      uint64        `json:"value"`
	Authority  AuthorityKind `json:"authority,omitempty"`
	Timelock   uint32        `json:"timelock,omitempty"`
	Heightlock uint64        `json:"heightlock,omitempty"`
	SpentBy    *types.Hash   `json:"spent_by,omitempty"`
	Selected   bool          `json:"selected,omitempty"`
}

// Outpoint returns the (txid, index) identity of this utxo.
func (u *Utxo) Outpoint() types.Outpoint {
	return types.Outpoint{TxID: u.TxID, Index: u.Index}
}

// IsLocked reports whether the utxo is time- or height-locked as of the
// given clock time and chain height.
func (u *Utxo) IsLocked(now int64, height uint64) bool {
	if u.Timelock != 0 && int64(u.Timelock) > now {
		return true
	}
	if u.Heightlock != 0 && u.Heightlock > height {
		return true
	}
	return false
}

// Available reports whether the utxo can be offered to the input selector:
// unspent, unlocked and not reserved by a concurrent build.
func (u *Utxo) Available(now int64, height uint64) bool {
	return u.SpentBy == nil && !u.Selected && !u.IsLocked(now, height)
}

// Filter restricts an index query. Nil pointer fields mean "any".
type Filter struct {
	Token   *types.TokenID
	Address *types.Address
	// Authority filters by kind; nil matches both value and authority
	// outputs, a pointer to AuthorityNone matches value outputs only.
	Authority       *AuthorityKind
	MinValue        uint64
	MaxValue        uint64 // 0 = no maximum
	IncludeLocked   bool
	IncludeSpent    bool
	IncludeSelected bool
	// Lock evaluation inputs, supplied by the caller.
	Now    int64
	Height uint64
}

// matches applies every filter predicate to u.
func (f *Filter) matches(u *Utxo) bool {
	if f.Token != nil && u.Token != *f.Token {
		return false
	}
	if f.Address != nil && u.Address != *f.Address {
		return false
	}
	if f.Authority != nil && u.Authority != *f.Authority {
		return false
	}
	if u.Authority == AuthorityNone {
		if f.MinValue > 0 && u.Value < f.MinValue {
			return false
		}
		if f.MaxValue > 0 && u.Value > f.MaxValue {
			return false
		}
	}
	if !f.IncludeSpent && u.SpentBy != nil {
		return false
	}
	if !f.IncludeSelected && u.Selected {
		return false
	}
	if !f.IncludeLocked && u.IsLocked(f.Now, f.Height) {
		return false
	}
	return true
}

// tokenPtr and friends help build filters inline.

// TokenFilter returns a pointer to id for use in Filter.Token.
func TokenFilter(id types.TokenID) *types.TokenID {
	return &id
}

// AddressFilter returns a pointer to addr for use in Filter.Address.
func AddressFilter(addr types.Address) *types.Address {
	return &addr
}

// KindFilter returns a pointer to kind for use in Filter.Authority.
func KindFilter(kind AuthorityKind) *AuthorityKind {
	return &kind
}
