package utxo

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/HathorNetwork/hathor-wallet-lib-sub010/internal/storage"
	"github.com/HathorNetwork/hathor-wallet-lib-sub010/pkg/types"
)

// Key prefixes for the UTXO index.
var (
	prefixUtxo  = []byte("u/") // u/<txid(32)><index(4)> -> Utxo JSON
	prefixAddr  = []byte("a/") // a/<addr(20)><txid(32)><index(4)> -> empty (address index)
	prefixSpent = []byte("s/") // s/<spender(32)><txid(32)><index(4)> -> empty (spend attribution)
)

// Index errors.
var (
	// ErrInvalidOutputIndex signals a spend reference beyond the bounds of
	// the referenced transaction's output list.
	ErrInvalidOutputIndex = errors.New("utxo: output index out of bounds")

	// ErrNotFound is returned when a requested utxo is not in the index.
	ErrNotFound = errors.New("utxo: not found")
)

// Index is the wallet's UTXO index backed by a storage.DB. Keys sort by
// (txid, output index), so every scan yields the same deterministic
// sequence over unchanged state.
//
// Index methods only mutate UTXO state; callers feed it outputs already
// known to belong to the wallet and register new token ids with the token
// registry themselves.
type Index struct {
	db storage.DB
}

// NewIndex creates a UTXO index backed by the given database.
func NewIndex(db storage.DB) *Index {
	return &Index{db: db}
}

// utxoKey builds the primary key for an outpoint: "u/" + txid(32) + index(4).
func utxoKey(op types.Outpoint) []byte {
	key := make([]byte, len(prefixUtxo)+types.HashSize+4)
	copy(key, prefixUtxo)
	copy(key[len(prefixUtxo):], op.TxID[:])
	binary.BigEndian.PutUint32(key[len(prefixUtxo)+types.HashSize:], op.Index)
	return key
}

// addrKey builds an address index key: "a/" + addr(20) + txid(32) + index(4).
func addrKey(addr types.Address, op types.Outpoint) []byte {
	key := make([]byte, len(prefixAddr)+types.AddressSize+types.HashSize+4)
	copy(key, prefixAddr)
	copy(key[len(prefixAddr):], addr[:])
	off := len(prefixAddr) + types.AddressSize
	copy(key[off:], op.TxID[:])
	binary.BigEndian.PutUint32(key[off+types.HashSize:], op.Index)
	return key
}

// spentKey builds a spend attribution key: "s/" + spender(32) + txid(32) + index(4).
func spentKey(spender types.Hash, op types.Outpoint) []byte {
	key := make([]byte, len(prefixSpent)+types.HashSize+types.HashSize+4)
	copy(key, prefixSpent)
	copy(key[len(prefixSpent):], spender[:])
	off := len(prefixSpent) + types.HashSize
	copy(key[off:], op.TxID[:])
	binary.BigEndian.PutUint32(key[off+types.HashSize:], op.Index)
	return key
}

// outpointFromKey recovers an outpoint from the tail of an index key.
func outpointFromKey(key []byte, off int) (types.Outpoint, bool) {
	if len(key) < off+types.HashSize+4 {
		return types.Outpoint{}, false
	}
	var op types.Outpoint
	copy(op.TxID[:], key[off:off+types.HashSize])
	op.Index = binary.BigEndian.Uint32(key[off+types.HashSize:])
	return op, true
}

// Get retrieves a utxo by its outpoint.
func (ix *Index) Get(op types.Outpoint) (*Utxo, error) {
	data, err := ix.db.Get(utxoKey(op))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, op)
		}
		return nil, fmt.Errorf("utxo get: %w", err)
	}
	var u Utxo
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("utxo unmarshal: %w", err)
	}
	return &u, nil
}

// Has checks whether an outpoint is in the index.
func (ix *Index) Has(op types.Outpoint) (bool, error) {
	return ix.db.Has(utxoKey(op))
}

// put writes a utxo and its address index entry through batch.
func putUtxo(batch storage.Batch, u *Utxo) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("utxo marshal: %w", err)
	}
	if err := batch.Put(utxoKey(u.Outpoint()), data); err != nil {
		return fmt.Errorf("utxo put: %w", err)
	}
	if err := batch.Put(addrKey(u.Address, u.Outpoint()), []byte{}); err != nil {
		return fmt.Errorf("utxo index put: %w", err)
	}
	return nil
}

// IndexOutput inserts or overwrites a utxo entry. Re-indexing an existing
// outpoint replaces it, so replaying a transaction cannot duplicate
// entries.
func (ix *Index) IndexOutput(u *Utxo) error {
	batch := storage.NewBatch(ix.db)
	if err := putUtxo(batch, u); err != nil {
		return err
	}
	return batch.Commit()
}

// MarkSpent sets SpentBy on the referenced utxo and records the spend
// attribution so Revert(spender) can undo it. Absent entries are a no-op:
// the output belongs to a foreign address. Callers validate the output
// index against the referenced transaction's record before calling;
// out-of-bounds references are ErrInvalidOutputIndex at that layer.
func (ix *Index) MarkSpent(op types.Outpoint, spender types.Hash) error {
	u, err := ix.Get(op)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	spentBy := spender
	u.SpentBy = &spentBy
	u.Selected = false // A confirmed spend supersedes any build reservation.

	batch := storage.NewBatch(ix.db)
	if err := putUtxo(batch, u); err != nil {
		return err
	}
	if err := batch.Put(spentKey(spender, op), []byte{}); err != nil {
		return fmt.Errorf("spent index put: %w", err)
	}
	return batch.Commit()
}

// Revert undoes every effect attributable to txID in one atomic commit:
// outputs it created are removed (with their address index entries) and
// outputs it spent are restored to unspent.
func (ix *Index) Revert(txID types.Hash) error {
	batch := storage.NewBatch(ix.db)

	// Remove created outputs. They sit contiguously under "u/"+txid.
	createdPrefix := utxoKey(types.Outpoint{TxID: txID})[:len(prefixUtxo)+types.HashSize]
	err := ix.db.ForEach(createdPrefix, func(key, value []byte) error {
		var u Utxo
		if err := json.Unmarshal(value, &u); err != nil {
			return fmt.Errorf("utxo unmarshal: %w", err)
		}
		if err := batch.Delete(addrKey(u.Address, u.Outpoint())); err != nil {
			return err
		}
		k := make([]byte, len(key))
		copy(k, key)
		return batch.Delete(k)
	})
	if err != nil {
		return fmt.Errorf("revert created outputs of %s: %w", txID, err)
	}

	// Un-spend outputs this transaction consumed.
	spenderPrefix := spentKey(txID, types.Outpoint{})[:len(prefixSpent)+types.HashSize]
	err = ix.db.ForEach(spenderPrefix, func(key, _ []byte) error {
		op, ok := outpointFromKey(key, len(prefixSpent)+types.HashSize)
		if !ok {
			return nil // Malformed key, skip.
		}
		u, err := ix.Get(op)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				// The spent output's own transaction was reverted first.
				k := make([]byte, len(key))
				copy(k, key)
				return batch.Delete(k)
			}
			return err
		}
		// Only clear the mark if this transaction owns it; a later spend
		// may have superseded it during replay.
		if u.SpentBy != nil && *u.SpentBy == txID {
			u.SpentBy = nil
			if err := putUtxo(batch, u); err != nil {
				return err
			}
		}
		k := make([]byte, len(key))
		copy(k, key)
		return batch.Delete(k)
	})
	if err != nil {
		return fmt.Errorf("revert spends of %s: %w", txID, err)
	}

	return batch.Commit()
}

// SetSelected toggles the advisory input reservation flag on op.
// Returns ErrNotFound for unknown outpoints.
func (ix *Index) SetSelected(op types.Outpoint, selected bool) error {
	u, err := ix.Get(op)
	if err != nil {
		return err
	}
	if u.Selected == selected {
		return nil
	}
	u.Selected = selected
	batch := storage.NewBatch(ix.db)
	if err := putUtxo(batch, u); err != nil {
		return err
	}
	return batch.Commit()
}

// Query streams utxos matching filter in deterministic (txid, index) order.
// The sequence is lazy and restartable: calling Query again over unchanged
// state replays the identical sequence. Return a non-nil error from fn to
// stop early.
func (ix *Index) Query(filter Filter, fn func(*Utxo) error) error {
	return ix.db.ForEach(prefixUtxo, func(_, value []byte) error {
		var u Utxo
		if err := json.Unmarshal(value, &u); err != nil {
			return fmt.Errorf("utxo unmarshal: %w", err)
		}
		if !filter.matches(&u) {
			return nil
		}
		return fn(&u)
	})
}

// QueryAll collects the matching utxos into a slice.
func (ix *Index) QueryAll(filter Filter) ([]*Utxo, error) {
	var utxos []*Utxo
	err := ix.Query(filter, func(u *Utxo) error {
		utxos = append(utxos, u)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return utxos, nil
}

// ByAddress returns all utxos currently indexed for addr via the address
// index.
func (ix *Index) ByAddress(addr types.Address) ([]*Utxo, error) {
	prefix := addrKey(addr, types.Outpoint{})[:len(prefixAddr)+types.AddressSize]
	var utxos []*Utxo
	err := ix.db.ForEach(prefix, func(key, _ []byte) error {
		op, ok := outpointFromKey(key, len(prefixAddr)+types.AddressSize)
		if !ok {
			return nil // Malformed key, skip.
		}
		u, err := ix.Get(op)
		if err != nil {
			return nil // Entry removed under us, skip.
		}
		utxos = append(utxos, u)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan address index: %w", err)
	}
	return utxos, nil
}

// Clear removes every entry. Used before a deterministic full-history
// rebuild.
func (ix *Index) Clear() error {
	batch := storage.NewBatch(ix.db)
	for _, prefix := range [][]byte{prefixUtxo, prefixAddr, prefixSpent} {
		err := ix.db.ForEach(prefix, func(key, _ []byte) error {
			k := make([]byte, len(key))
			copy(k, key)
			return batch.Delete(k)
		})
		if err != nil {
			return fmt.Errorf("scan prefix %s: %w", prefix, err)
		}
	}
	return batch.Commit()
}
