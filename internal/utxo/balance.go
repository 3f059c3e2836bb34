package utxo

import (
	"github.com/HathorNetwork/hathor-wallet-lib-sub010/pkg/types"
)

// AuthorityCounts totals mint/melt authority utxos in one lock state.
type AuthorityCounts struct {
	Mint uint64 `json:"mint"`
	Melt uint64 `json:"melt"`
}

// TokenBalance is the derived balance for one token. It is never stored:
// it must always equal the fold over current unspent wallet utxos.
type TokenBalance struct {
	Unlocked            uint64          `json:"unlocked"`
	Locked              uint64          `json:"locked"`
	UnlockedAuthorities AuthorityCounts `json:"unlocked_authorities"`
	LockedAuthorities   AuthorityCounts `json:"locked_authorities"`
	// Transactions counts distinct non-voided transactions touching the
	// wallet for this token. Filled by the history layer, which owns the
	// record store.
	Transactions int `json:"transactions"`
}

// CanMint reports whether any unlocked mint authority is held.
func (b *TokenBalance) CanMint() bool {
	return b.UnlockedAuthorities.Mint > 0
}

// CanMelt reports whether any unlocked melt authority is held.
func (b *TokenBalance) CanMelt() bool {
	return b.UnlockedAuthorities.Melt > 0
}

// Total returns unlocked + locked value.
func (b *TokenBalance) Total() uint64 {
	return b.Unlocked + b.Locked
}

// Balance folds the current unspent utxos for token into a TokenBalance.
// Value utxos accumulate into Unlocked or Locked depending on their lock
// state as of (now, height); authority utxos count into the authority
// totals and never into value. Tokens with no history produce a zero
// balance, never an error.
func (ix *Index) Balance(token types.TokenID, now int64, height uint64) (*TokenBalance, error) {
	bal := &TokenBalance{}
	filter := Filter{
		Token:           TokenFilter(token),
		IncludeLocked:   true,
		IncludeSelected: true,
		Now:             now,
		Height:          height,
	}
	err := ix.Query(filter, func(u *Utxo) error {
		locked := u.IsLocked(now, height)
		switch u.Authority {
		case AuthorityNone:
			if locked {
				bal.Locked += u.Value
			} else {
				bal.Unlocked += u.Value
			}
		case AuthorityMint:
			if locked {
				bal.LockedAuthorities.Mint++
			} else {
				bal.UnlockedAuthorities.Mint++
			}
		case AuthorityMelt:
			if locked {
				bal.LockedAuthorities.Melt++
			} else {
				bal.UnlockedAuthorities.Melt++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bal, nil
}
