package history

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/HathorNetwork/hathor-wallet-lib-sub010/internal/storage"
	"github.com/HathorNetwork/hathor-wallet-lib-sub010/pkg/types"
)

// Status tracks a record through the reconciler state machine. The voided
// flag is orthogonal to it.
type Status string

const (
	StatusPending  Status = "pending"
	StatusFinished Status = "finished"
)

// Key prefixes for the record store.
var (
	prefixRecord = []byte("r/") // r/<txid(32)> -> Record JSON
	prefixCount  = []byte("c/") // c/<token(32)><txid(32)> -> empty (per-token tx counter)
)

// ErrRecordNotFound is returned for unknown transaction ids.
var ErrRecordNotFound = errors.New("history: transaction record not found")

// Record is the stored form of a reconciled transaction.
type Record struct {
	TxID      types.Hash      `json:"tx_id"`
	Inputs    []EventInput    `json:"inputs"`
	Outputs   []EventOutput   `json:"outputs"`
	Tokens    []types.TokenID `json:"tokens"`
	Timestamp int64           `json:"timestamp"`
	Height    uint64          `json:"height"`
	Voided    bool            `json:"is_voided"`
	Status    Status          `json:"status"`
	// WalletTokens lists the tokens for which this transaction touches the
	// wallet (owned output or spent owned input). Drives the per-token
	// transaction counter.
	WalletTokens []types.TokenID `json:"wallet_tokens,omitempty"`
}

// outputToken resolves an output's token id against the record token list.
func (rec *Record) outputToken(out EventOutput) types.TokenID {
	idx := int(out.TokenData & 0x7f)
	if idx == 0 {
		return types.NativeTokenID
	}
	return rec.Tokens[idx-1]
}

// Store persists transaction records.
type Store struct {
	db storage.DB
}

// NewStore creates a record store backed by the given database.
func NewStore(db storage.DB) *Store {
	return &Store{db: db}
}

func recordKey(txID types.Hash) []byte {
	key := make([]byte, len(prefixRecord)+types.HashSize)
	copy(key, prefixRecord)
	copy(key[len(prefixRecord):], txID[:])
	return key
}

func countKey(token types.TokenID, txID types.Hash) []byte {
	key := make([]byte, len(prefixCount)+types.HashSize+types.HashSize)
	copy(key, prefixCount)
	copy(key[len(prefixCount):], token[:])
	copy(key[len(prefixCount)+types.HashSize:], txID[:])
	return key
}

// Get retrieves a record by transaction id.
func (s *Store) Get(txID types.Hash) (*Record, error) {
	data, err := s.db.Get(recordKey(txID))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, txID)
		}
		return nil, fmt.Errorf("record get: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("record unmarshal: %w", err)
	}
	return &rec, nil
}

// Has checks whether a record exists.
func (s *Store) Has(txID types.Hash) (bool, error) {
	return s.db.Has(recordKey(txID))
}

// Put stores a record and synchronizes its per-token counter entries:
// present for every WalletTokens entry while not voided, absent otherwise.
func (s *Store) Put(rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("record marshal: %w", err)
	}
	batch := storage.NewBatch(s.db)
	if err := batch.Put(recordKey(rec.TxID), data); err != nil {
		return fmt.Errorf("record put: %w", err)
	}
	for _, token := range rec.WalletTokens {
		key := countKey(token, rec.TxID)
		if rec.Voided {
			if err := batch.Delete(key); err != nil {
				return err
			}
		} else {
			if err := batch.Put(key, []byte{}); err != nil {
				return err
			}
		}
	}
	return batch.Commit()
}

// ForEach iterates over all records in ascending txid order.
func (s *Store) ForEach(fn func(*Record) error) error {
	return s.db.ForEach(prefixRecord, func(_, value []byte) error {
		var rec Record
		if err := json.Unmarshal(value, &rec); err != nil {
			return fmt.Errorf("record unmarshal: %w", err)
		}
		return fn(&rec)
	})
}

// CountForToken returns the number of distinct non-voided transactions
// touching the wallet for token, counted once per transaction.
func (s *Store) CountForToken(token types.TokenID) (int, error) {
	prefix := countKey(token, types.Hash{})[:len(prefixCount)+types.HashSize]
	count := 0
	err := s.db.ForEach(prefix, func(_, _ []byte) error {
		count++
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan token counter: %w", err)
	}
	return count, nil
}
