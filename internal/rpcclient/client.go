// Package rpcclient is a thin HTTP client for a remote Hathor node: it
// fetches address history, pushes signed transactions and polls for
// confirmation. It is the wallet's only network boundary.
package rpcclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/HathorNetwork/hathor-wallet-lib-sub010/internal/history"
	"github.com/HathorNetwork/hathor-wallet-lib-sub010/internal/log"
	"github.com/HathorNetwork/hathor-wallet-lib-sub010/pkg/types"
)

// Client talks to a node's wallet-facing HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client targeting the given base URL.
func New(baseURL string) *Client {
	return NewWithTimeout(baseURL, 10*time.Second)
}

// NewWithTimeout creates a client with a custom HTTP timeout.
func NewWithTimeout(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// APIError is returned when the node rejects a request.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("node error %d: %s", e.Status, e.Message)
}

func (c *Client) get(ctx context.Context, path string, query url.Values, result interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, result)
}

func (c *Client) post(ctx context.Context, path string, body interface{}, result interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(string(data)))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, result)
}

func (c *Client) do(req *http.Request, result interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}
	if result != nil {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// ServerInfo carries the node-reported network parameters.
type ServerInfo struct {
	Network    string `json:"network"`
	Version    string `json:"version"`
	MaxInputs  int    `json:"max_number_inputs"`
	MaxOutputs int    `json:"max_number_outputs"`
	Height     uint64 `json:"best_block_height"`
}

// Version fetches the node's network parameters, including the effective
// per-transaction input and output limits.
func (c *Client) Version(ctx context.Context) (*ServerInfo, error) {
	var info ServerInfo
	if err := c.get(ctx, "/v1a/version", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// historyEntry is the node's wire form of one transaction.
type historyEntry struct {
	TxID   string `json:"tx_id"`
	Inputs []struct {
		TxID  string `json:"tx_id"`
		Index uint32 `json:"index"`
	} `json:"inputs"`
	Outputs []struct {
		Value      uint64 `json:"value"`
		TokenData  byte   `json:"token_data"`
		Script     string `json:"script"`
		Heightlock uint64 `json:"heightlock,omitempty"`
	} `json:"outputs"`
	Tokens    []string `json:"tokens"`
	Timestamp int64    `json:"timestamp"`
	Height    uint64   `json:"height"`
	IsVoided  bool     `json:"is_voided"`
}

func (e *historyEntry) toEvent() (*history.TxEvent, error) {
	txID, err := types.HexToHash(e.TxID)
	if err != nil {
		return nil, fmt.Errorf("history tx id: %w", err)
	}
	ev := &history.TxEvent{
		TxID:      txID,
		Timestamp: e.Timestamp,
		Height:    e.Height,
		Voided:    e.IsVoided,
	}
	for _, in := range e.Inputs {
		srcID, err := types.HexToHash(in.TxID)
		if err != nil {
			return nil, fmt.Errorf("history input tx id: %w", err)
		}
		ev.Inputs = append(ev.Inputs, history.EventInput{TxID: srcID, Index: in.Index})
	}
	for _, out := range e.Outputs {
		script, err := types.ParseScriptHex(out.Script)
		if err != nil {
			return nil, fmt.Errorf("history output script: %w", err)
		}
		ev.Outputs = append(ev.Outputs, history.EventOutput{
			Value:      out.Value,
			TokenData:  out.TokenData,
			Script:     script,
			Heightlock: out.Heightlock,
		})
	}
	for _, uid := range e.Tokens {
		id, err := types.ParseTokenID(uid)
		if err != nil {
			return nil, fmt.Errorf("history token uid: %w", err)
		}
		ev.Tokens = append(ev.Tokens, id)
	}
	return ev, nil
}

type historyPage struct {
	Success   bool           `json:"success"`
	History   []historyEntry `json:"history"`
	HasMore   bool           `json:"has_more"`
	FirstHash string         `json:"first_hash"`
}

// AddressHistory fetches the full transaction history for a set of
// addresses, following pagination until exhausted.
func (c *Client) AddressHistory(ctx context.Context, addresses []string) ([]*history.TxEvent, error) {
	var events []*history.TxEvent
	cursor := ""
	for {
		query := url.Values{}
		for _, addr := range addresses {
			query.Add("addresses[]", addr)
		}
		if cursor != "" {
			query.Set("hash", cursor)
		}
		var page historyPage
		if err := c.get(ctx, "/v1a/thin_wallet/address_history", query, &page); err != nil {
			return nil, err
		}
		if !page.Success {
			return nil, &APIError{Status: http.StatusOK, Message: "address history request refused"}
		}
		for i := range page.History {
			ev, err := page.History[i].toEvent()
			if err != nil {
				log.RPC.Warn().Err(err).Str("tx_id", page.History[i].TxID).Msg("skipping undecodable history entry")
				continue
			}
			events = append(events, ev)
		}
		if !page.HasMore {
			return events, nil
		}
		cursor = page.FirstHash
	}
}

type pushResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	TxID    string `json:"tx_id"`
}

// PushTransaction submits a serialized signed transaction and returns the
// accepted transaction id.
func (c *Client) PushTransaction(ctx context.Context, rawTx string) (types.Hash, error) {
	var resp pushResponse
	err := c.post(ctx, "/v1a/push_tx", map[string]string{"hex_tx": rawTx}, &resp)
	if err != nil {
		return types.Hash{}, err
	}
	if !resp.Success {
		return types.Hash{}, &APIError{Status: http.StatusOK, Message: resp.Message}
	}
	return types.HexToHash(resp.TxID)
}

type txStatus struct {
	Success bool `json:"success"`
	Meta    struct {
		Voided     []string `json:"voided_by"`
		FirstBlock string   `json:"first_block"`
	} `json:"meta"`
}

// confirmPollInterval is how often WaitConfirmation re-queries the node.
const confirmPollInterval = 2 * time.Second

// WaitConfirmation polls until txID lands in a block or timeout elapses.
// A zero timeout returns immediately without waiting.
func (c *Client) WaitConfirmation(ctx context.Context, txID types.Hash, timeout time.Duration) error {
	if timeout == 0 {
		return nil
	}
	deadline := time.Now().Add(timeout)
	for {
		var status txStatus
		query := url.Values{"id": []string{txID.String()}}
		if err := c.get(ctx, "/v1a/transaction", query, &status); err != nil {
			return err
		}
		if status.Success && status.Meta.FirstBlock != "" && len(status.Meta.Voided) == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("transaction %s not confirmed after %s", txID, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(confirmPollInterval):
		}
	}
}
