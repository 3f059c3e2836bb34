package token

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/HathorNetwork/hathor-wallet-lib-sub010/internal/storage"
	"github.com/HathorNetwork/hathor-wallet-lib-sub010/pkg/types"
)

var prefixToken = []byte("t/") // t/<tokenID(32)> -> Metadata JSON

// ErrTokenNotFound is returned for tokens the wallet has never registered.
var ErrTokenNotFound = errors.New("token not registered")

// Store persists the wallet's token registry. The native token is implicit
// and never stored.
type Store struct {
	db storage.DB
}

// NewStore creates a token registry over the given database.
func NewStore(db storage.DB) *Store {
	return &Store{db: db}
}

// Put stores metadata for a token, overwriting any previous entry.
func (s *Store) Put(id types.TokenID, meta *Metadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("token marshal: %w", err)
	}
	return s.db.Put(tokenKey(id), data)
}

// Register stores metadata for a token only if it is not yet known. Used by
// the history reconciler, which learns token ids before their metadata.
func (s *Store) Register(id types.TokenID, meta *Metadata) error {
	ok, err := s.db.Has(tokenKey(id))
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return s.Put(id, meta)
}

// Get retrieves metadata for a token.
func (s *Store) Get(id types.TokenID) (*Metadata, error) {
	if id.IsNative() {
		meta := NativeMetadata()
		return &meta, nil
	}
	data, err := s.db.Get(tokenKey(id))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTokenNotFound, id)
		}
		return nil, fmt.Errorf("token get: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("token unmarshal: %w", err)
	}
	return &meta, nil
}

// Has checks if metadata exists for a token.
func (s *Store) Has(id types.TokenID) (bool, error) {
	if id.IsNative() {
		return true, nil
	}
	return s.db.Has(tokenKey(id))
}

// Policy returns the economic policy of a token. Unregistered tokens
// default to the deposit policy.
func (s *Store) Policy(id types.TokenID) (Policy, error) {
	meta, err := s.Get(id)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return PolicyDeposit, nil
		}
		return "", err
	}
	if meta.Policy == "" {
		return PolicyDeposit, nil
	}
	return meta.Policy, nil
}

// Entry pairs a token id with its metadata.
type Entry struct {
	ID types.TokenID
	Metadata
}

// ForEach iterates over all registered tokens in ascending id order.
// Return a non-nil error from fn to stop iteration early.
func (s *Store) ForEach(fn func(types.TokenID, *Metadata) error) error {
	return s.db.ForEach(prefixToken, func(key, value []byte) error {
		if len(key) < len(prefixToken)+types.HashSize {
			return nil // Malformed key, skip.
		}
		var id types.TokenID
		copy(id[:], key[len(prefixToken):])

		var meta Metadata
		if err := json.Unmarshal(value, &meta); err != nil {
			return nil // Skip corrupt entries.
		}
		return fn(id, &meta)
	})
}

// List returns all registered tokens.
func (s *Store) List() ([]Entry, error) {
	entries := []Entry{}
	err := s.ForEach(func(id types.TokenID, meta *Metadata) error {
		entries = append(entries, Entry{ID: id, Metadata: *meta})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func tokenKey(id types.TokenID) []byte {
	key := make([]byte, len(prefixToken)+types.HashSize)
	copy(key, prefixToken)
	copy(key[len(prefixToken):], id[:])
	return key
}
