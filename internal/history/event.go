// Package history ingests transaction history from the remote node and
// reconciles it into the wallet's UTXO index and transaction records.
package history

import (
	"errors"
	"fmt"

	"github.com/HathorNetwork/hathor-wallet-lib-sub010/pkg/types"
)

// ErrHistoryValidation rejects malformed history entries. A rejected entry
// is never partially applied.
var ErrHistoryValidation = errors.New("history: invalid history entry")

// EventInput references a prior output consumed by a transaction.
type EventInput struct {
	TxID  types.Hash `json:"tx_id"`
	Index uint32     `json:"index"`
}

// EventOutput is one output as delivered by the history source.
type EventOutput struct {
	Value     uint64       `json:"value"`
	TokenData byte         `json:"token_data"`
	Script    types.Script `json:"script"`
	// Heightlock is nonzero for block reward outputs, which only become
	// spendable once the chain passes that height.
	Heightlock uint64 `json:"heightlock,omitempty"`
}

// TxEvent is a history event: either a previously unseen transaction or a
// metadata update (the void flag) for a known one. The reconciler tolerates
// duplicate and out-of-order delivery.
type TxEvent struct {
	TxID      types.Hash      `json:"tx_id"`
	Inputs    []EventInput    `json:"inputs"`
	Outputs   []EventOutput   `json:"outputs"`
	Tokens    []types.TokenID `json:"tokens"`
	Timestamp int64           `json:"timestamp"`
	Height    uint64          `json:"height"`
	Voided    bool            `json:"is_voided"`
}

// Validate checks the structural requirements before any state is touched.
func (e *TxEvent) Validate() error {
	if e == nil {
		return fmt.Errorf("%w: nil event", ErrHistoryValidation)
	}
	if e.TxID.IsZero() {
		return fmt.Errorf("%w: missing tx id", ErrHistoryValidation)
	}
	if len(e.Outputs) == 0 {
		return fmt.Errorf("%w: transaction %s has no outputs", ErrHistoryValidation, e.TxID)
	}
	if e.Timestamp <= 0 {
		return fmt.Errorf("%w: transaction %s has no timestamp", ErrHistoryValidation, e.TxID)
	}
	for i, out := range e.Outputs {
		// Token index 0 is the implicit native token; anything else must
		// resolve into the event's token list.
		idx := int(out.TokenData & 0x7f)
		if idx > len(e.Tokens) {
			return fmt.Errorf("%w: output %d of %s references token index %d of %d",
				ErrHistoryValidation, i, e.TxID, idx, len(e.Tokens))
		}
		if len(out.Script) == 0 {
			return fmt.Errorf("%w: output %d of %s has no script", ErrHistoryValidation, i, e.TxID)
		}
	}
	for i, in := range e.Inputs {
		if in.TxID.IsZero() {
			return fmt.Errorf("%w: input %d of %s missing source tx", ErrHistoryValidation, i, e.TxID)
		}
	}
	return nil
}
