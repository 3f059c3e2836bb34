package types

import "fmt"

// Outpoint references a specific output in a transaction.
type Outpoint struct {
	TxID  Hash   `json:"tx_id"`
	Index uint32 `json:"index"`
}

// IsZero returns true if the outpoint has a zero TxID and zero index.
func (o Outpoint) IsZero() bool {
	return o.TxID.IsZero() && o.Index == 0
}

// String returns "txid:index" in hex.
func (o Outpoint) String() string {
	return fmt.Sprintf("%s:%d", o.TxID.String(), o.Index)
}

// Less orders outpoints by txid bytes, then index. Used wherever a
// deterministic UTXO ordering is required.
func (o Outpoint) Less(other Outpoint) bool {
	for i := 0; i < HashSize; i++ {
		if o.TxID[i] != other.TxID[i] {
			return o.TxID[i] < other.TxID[i]
		}
	}
	return o.Index < other.Index
}
