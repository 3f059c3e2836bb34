package wallet

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/HathorNetwork/hathor-wallet-lib-sub010/internal/storage"
	"github.com/HathorNetwork/hathor-wallet-lib-sub010/pkg/types"
)

// DefaultGapLimit is the number of consecutive unused addresses kept
// derived ahead of the last used one, per BIP-44 account discovery.
const DefaultGapLimit = 20

var prefixAddrBook = []byte("d/") // d/<index(4 BE)> -> AddressEntry JSON

// ErrAddressNotOwned is returned when a key is requested for an address
// outside the wallet's derived set.
var ErrAddressNotOwned = errors.New("address is not owned by this wallet")

// AddressEntry is one derived address and its usage state.
type AddressEntry struct {
	Index   uint32        `json:"index"`
	Address types.Address `json:"address"`
	Used    bool          `json:"used"`
}

// Path returns the entry's full BIP-44 derivation path on the external
// chain.
func (e AddressEntry) Path() string {
	return fmt.Sprintf("m/44'/280'/0'/0/%d", e.Index)
}

// AddressBook tracks the wallet's derived address space on the external
// chain (m/44'/280'/0'/0/index). It keeps a gap-limit window of unused
// addresses derived ahead, marks addresses used as history arrives, and
// answers ownership queries from an in-memory map.
type AddressBook struct {
	db       storage.DB
	account  *HDKey // account-level key, m/44'/280'/0'
	gapLimit int

	entries []AddressEntry
	byAddr  map[types.Address]uint32
}

// NewAddressBook loads the persisted address set and tops the derivation
// window up to the gap limit. account may be a neutered key for watch-only
// wallets; derivation of addresses needs only public material.
func NewAddressBook(db storage.DB, account *HDKey, gapLimit int) (*AddressBook, error) {
	if gapLimit <= 0 {
		gapLimit = DefaultGapLimit
	}
	b := &AddressBook{
		db:       db,
		account:  account,
		gapLimit: gapLimit,
		byAddr:   make(map[types.Address]uint32),
	}
	if err := b.load(); err != nil {
		return nil, err
	}
	if err := b.extend(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *AddressBook) load() error {
	return b.db.ForEach(prefixAddrBook, func(_, value []byte) error {
		var e AddressEntry
		if err := json.Unmarshal(value, &e); err != nil {
			return fmt.Errorf("address entry unmarshal: %w", err)
		}
		b.entries = append(b.entries, e)
		b.byAddr[e.Address] = e.Index
		return nil
	})
}

func (b *AddressBook) persist(e AddressEntry) error {
	key := make([]byte, len(prefixAddrBook)+4)
	copy(key, prefixAddrBook)
	binary.BigEndian.PutUint32(key[len(prefixAddrBook):], e.Index)
	data, err := json.Marshal(&e)
	if err != nil {
		return fmt.Errorf("address entry marshal: %w", err)
	}
	return b.db.Put(key, data)
}

// extend derives addresses until gapLimit unused ones trail the last used
// index.
func (b *AddressBook) extend() error {
	for b.trailingUnused() < b.gapLimit {
		index := uint32(len(b.entries))
		key, err := b.account.DerivePath(ChangeExternal, index)
		if err != nil {
			return fmt.Errorf("derive address %d: %w", index, err)
		}
		e := AddressEntry{Index: index, Address: key.Address()}
		if err := b.persist(e); err != nil {
			return err
		}
		b.entries = append(b.entries, e)
		b.byAddr[e.Address] = e.Index
	}
	return nil
}

func (b *AddressBook) trailingUnused() int {
	n := 0
	for i := len(b.entries) - 1; i >= 0 && !b.entries[i].Used; i-- {
		n++
	}
	return n
}

// IsOwned reports whether addr belongs to this wallet.
func (b *AddressBook) IsOwned(addr types.Address) bool {
	_, ok := b.byAddr[addr]
	return ok
}

// MarkUsed flags addr as used and re-extends the derivation window.
// Unknown addresses are ignored.
func (b *AddressBook) MarkUsed(addr types.Address) error {
	index, ok := b.byAddr[addr]
	if !ok || b.entries[index].Used {
		return nil
	}
	b.entries[index].Used = true
	if err := b.persist(b.entries[index]); err != nil {
		return err
	}
	return b.extend()
}

// Entries returns the derived addresses in index order.
func (b *AddressBook) Entries() []AddressEntry {
	out := make([]AddressEntry, len(b.entries))
	copy(out, b.entries)
	return out
}

// NextUnused returns the first unused address, the wallet's current
// receiving address.
func (b *AddressBook) NextUnused() (AddressEntry, error) {
	for _, e := range b.entries {
		if !e.Used {
			return e, nil
		}
	}
	// The gap window guarantees unused entries exist after extend.
	return AddressEntry{}, fmt.Errorf("no unused address available")
}

// KeyFor derives the private key for an owned address. Fails for foreign
// addresses and for watch-only wallets.
func (b *AddressBook) KeyFor(addr types.Address) (*HDKey, error) {
	index, ok := b.byAddr[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAddressNotOwned, addr)
	}
	if !b.account.IsPrivate() {
		return nil, fmt.Errorf("derive key for %s: wallet is watch-only", addr)
	}
	return b.account.DerivePath(ChangeExternal, index)
}
