// Package swap implements multi-party atomic token swaps built from
// partial transaction proposals exchanged out-of-band.
//
// Each party declares what it sends and what it receives, attaches funded
// inputs and outputs to the shared partial transaction, and contributes
// signatures once the proposal balances. Serialized proposals carry a
// fingerprint so tampering during hand-off is detected on import.
package swap

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/HathorNetwork/hathor-wallet-lib-sub010/pkg/crypto"
	"github.com/HathorNetwork/hathor-wallet-lib-sub010/pkg/tx"
	"github.com/HathorNetwork/hathor-wallet-lib-sub010/pkg/types"
)

// Proposal errors.
var (
	ErrMalformedProposal = errors.New("swap: malformed serialized proposal")
	ErrFingerprint       = errors.New("swap: proposal fingerprint mismatch")
	ErrNotBalanced       = errors.New("swap: proposal is not balanced")
	ErrNotFullySigned    = errors.New("swap: proposal is not fully signed")
)

// State is the proposal lifecycle position. Only fully-signed proposals
// may be submitted.
type State string

const (
	StateDraft           State = "draft"
	StateBalanced        State = "balanced"
	StatePartiallySigned State = "partially-signed"
	StateFullySigned     State = "fully-signed"
	StateSubmitted       State = "submitted"
)

const serializePrefix = "PartialTx"

// Entry is one declared token movement.
type Entry struct {
	Token  types.TokenID
	Amount uint64
}

// Proposal accumulates a not-yet-balanced swap: per-token send and receive
// declarations plus the shared partial transaction being assembled.
type Proposal struct {
	sends     []Entry
	receives  []Entry
	tx        *tx.Transaction
	sigs      *SignatureSet
	submitted bool
}

// NewProposal creates an empty draft proposal.
func NewProposal() *Proposal {
	return &Proposal{tx: &tx.Transaction{Version: tx.DefaultVersion}}
}

// Transaction exposes the shared partial transaction for input/output
// attachment by the wallet.
func (p *Proposal) Transaction() *tx.Transaction {
	return p.tx
}

// AddSend declares that this party sends amount of token into the swap.
func (p *Proposal) AddSend(token types.TokenID, amount uint64) {
	p.sends = append(p.sends, Entry{Token: token, Amount: amount})
}

// AddReceive declares that this party receives amount of token from the
// swap.
func (p *Proposal) AddReceive(token types.TokenID, amount uint64) {
	p.receives = append(p.receives, Entry{Token: token, Amount: amount})
}

// IsComplete reports whether, for every token referenced, declared sends
// equal declared receives.
func (p *Proposal) IsComplete() bool {
	totals := make(map[types.TokenID]int64)
	for _, e := range p.sends {
		totals[e.Token] += int64(e.Amount)
	}
	for _, e := range p.receives {
		totals[e.Token] -= int64(e.Amount)
	}
	for _, v := range totals {
		if v != 0 {
			return false
		}
	}
	return true
}

// State derives the proposal's lifecycle position.
func (p *Proposal) State() State {
	switch {
	case p.submitted:
		return StateSubmitted
	case !p.IsComplete():
		return StateDraft
	case p.sigs == nil || p.sigs.Count() == 0:
		return StateBalanced
	case p.sigs.IsComplete():
		return StateFullySigned
	default:
		return StatePartiallySigned
	}
}

// Signatures returns the signature collection, creating it sized to the
// current input count on first use. Callable only once the proposal
// balances, since signing a draft would bind a transaction still in flux.
func (p *Proposal) Signatures() (*SignatureSet, error) {
	if !p.IsComplete() {
		return nil, ErrNotBalanced
	}
	if p.sigs == nil {
		p.sigs = NewSignatureSet(len(p.tx.Inputs))
	}
	return p.sigs, nil
}

// Finalize applies the collected signatures to the transaction and marks
// the proposal submitted. It fails unless every slot is filled.
func (p *Proposal) Finalize() (*tx.Transaction, error) {
	if !p.IsComplete() {
		return nil, ErrNotBalanced
	}
	if p.sigs == nil || !p.sigs.IsComplete() {
		return nil, ErrNotFullySigned
	}
	if err := p.sigs.Apply(p.tx); err != nil {
		return nil, err
	}
	p.submitted = true
	return p.tx, nil
}

// Serialize encodes the proposal for out-of-band exchange:
//
//	PartialTx|<txHex>|<sends>|<receives>|<fingerprint>
//
// where sends/receives are comma-separated token:amount pairs and the
// fingerprint covers everything before it.
func (p *Proposal) Serialize() string {
	payload := strings.Join([]string{
		serializePrefix,
		p.tx.SerializeHex(),
		encodeEntries(p.sends),
		encodeEntries(p.receives),
	}, "|")
	sum := crypto.Fingerprint([]byte(payload))
	return payload + "|" + hex.EncodeToString(sum[:8])
}

// Deserialize reconstructs a proposal from its serialized form, verifying
// the fingerprint.
func Deserialize(s string) (*Proposal, error) {
	parts := strings.Split(s, "|")
	if len(parts) != 5 || parts[0] != serializePrefix {
		return nil, ErrMalformedProposal
	}
	payload := strings.Join(parts[:4], "|")
	sum := crypto.Fingerprint([]byte(payload))
	if hex.EncodeToString(sum[:8]) != parts[4] {
		return nil, ErrFingerprint
	}

	transaction, err := tx.DeserializeHex(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedProposal, err)
	}
	sends, err := decodeEntries(parts[2])
	if err != nil {
		return nil, err
	}
	receives, err := decodeEntries(parts[3])
	if err != nil {
		return nil, err
	}
	return &Proposal{tx: transaction, sends: sends, receives: receives}, nil
}

func encodeEntries(entries []Entry) string {
	pairs := make([]string, len(entries))
	for i, e := range entries {
		pairs[i] = e.Token.String() + ":" + strconv.FormatUint(e.Amount, 10)
	}
	return strings.Join(pairs, ",")
}

func decodeEntries(s string) ([]Entry, error) {
	if s == "" {
		return nil, nil
	}
	var entries []Entry
	for _, pair := range strings.Split(s, ",") {
		tok, amt, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, ErrMalformedProposal
		}
		token, err := types.ParseTokenID(tok)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedProposal, err)
		}
		amount, err := strconv.ParseUint(amt, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedProposal, err)
		}
		entries = append(entries, Entry{Token: token, Amount: amount})
	}
	return entries, nil
}
