package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	pkgerrors "github.com/angelmondragon/adboard-backend/pkg/errors"
)

const (
	defaultCommitment           = "confirmed"
	defaultTimeout              = 10 * time.Second
	responseBodyReadLimit int64 = 1024
)

var (
	errRPCURLRequired = errors.New("solana rpc url is required")

	// ErrTransactionNotFound is returned when the node has no record of the signature yet.
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrAccountNotFound is returned when getAccountInfo yields a null value.
	ErrAccountNotFound = errors.New("account not found")
)

// RPCError mirrors a JSON-RPC error object returned by the node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Client is a minimal Solana JSON-RPC client.
type Client struct {
	httpClient *http.Client
	rpcURL     string
	commitment string
	requestID  atomic.Uint64
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithCommitment overrides the commitment level sent with reads.
func WithCommitment(commitment string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(commitment)
		if trimmed != "" {
			c.commitment = trimmed
		}
	}
}

// WithTimeout sets the per-request timeout on the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 && c.httpClient != nil {
			c.httpClient.Timeout = timeout
		}
	}
}

// NewClient builds a JSON-RPC client for the given node URL.
func NewClient(rpcURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(rpcURL)
	if trimmed == "" {
		return nil, errRPCURLRequired
	}

	client := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		rpcURL:     trimmed,
		commitment: defaultCommitment,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return client, nil
}

// Transaction is the subset of a jsonParsed getTransaction result the platform reads.
type Transaction struct {
	Slot        uint64           `json:"slot"`
	BlockTime   *int64           `json:"blockTime"`
	Meta        *TransactionMeta `json:"meta"`
	Transaction struct {
		Signatures []string `json:"signatures"`
		Message    struct {
			AccountKeys []AccountKey `json:"accountKeys"`
		} `json:"message"`
	} `json:"transaction"`
}

// TransactionMeta carries execution status and token balances.
type TransactionMeta struct {
	Err               json.RawMessage `json:"err"`
	Fee               uint64          `json:"fee"`
	PreTokenBalances  []TokenBalance  `json:"preTokenBalances"`
	PostTokenBalances []TokenBalance  `json:"postTokenBalances"`
}

// TokenBalance is an SPL token balance keyed by account index.
type TokenBalance struct {
	AccountIndex  int         `json:"accountIndex"`
	Mint          string      `json:"mint"`
	Owner         string      `json:"owner"`
	UITokenAmount TokenAmount `json:"uiTokenAmount"`
}

// TokenAmount keeps the raw integer amount as a string.
type TokenAmount struct {
	Amount         string `json:"amount"`
	Decimals       int    `json:"decimals"`
	UIAmountString string `json:"uiAmountString"`
}

// AccountKey accepts both the jsonParsed object form and the plain base58 string form.
type AccountKey struct {
	Pubkey   string `json:"pubkey"`
	Signer   bool   `json:"signer"`
	Writable bool   `json:"writable"`
}

func (k *AccountKey) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var key string
		if err := json.Unmarshal(trimmed, &key); err != nil {
			return err
		}
		*k = AccountKey{Pubkey: key}
		return nil
	}
	type plain AccountKey
	var decoded plain
	if err := json.Unmarshal(trimmed, &decoded); err != nil {
		return err
	}
	*k = AccountKey(decoded)
	return nil
}

// Failed reports whether the transaction carries an on-chain execution error.
func (t *Transaction) Failed() bool {
	if t == nil || t.Meta == nil {
		return false
	}
	raw := bytes.TrimSpace(t.Meta.Err)
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

// AccountKeys returns the transaction's account keys in message order.
func (t *Transaction) AccountKeys() []AccountKey {
	if t == nil {
		return nil
	}
	return t.Transaction.Message.AccountKeys
}

// AccountKeyAt returns the pubkey at index, if present.
func (t *Transaction) AccountKeyAt(index int) (string, bool) {
	keys := t.AccountKeys()
	if index < 0 || index >= len(keys) {
		return "", false
	}
	return keys[index].Pubkey, keys[index].Pubkey != ""
}

// AccountInfo is the jsonParsed view of an account.
type AccountInfo struct {
	Lamports   uint64 `json:"lamports"`
	Owner      string `json:"owner"`
	Executable bool   `json:"executable"`
	Data       struct {
		Program string `json:"program"`
		Parsed  struct {
			Type string `json:"type"`
			Info struct {
				Mint        string      `json:"mint"`
				Owner       string      `json:"owner"`
				TokenAmount TokenAmount `json:"tokenAmount"`
			} `json:"info"`
		} `json:"parsed"`
	} `json:"data"`
}

// IsTokenAccount reports whether the account parsed as an SPL token account.
func (a *AccountInfo) IsTokenAccount() bool {
	return a != nil && a.Data.Parsed.Type == "account" && a.Data.Parsed.Info.Mint != ""
}

// GetTransaction fetches a confirmed transaction by signature.
func (c *Client) GetTransaction(ctx context.Context, signature string) (*Transaction, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "solana client not configured")
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "signature is required")
	}

	params := []any{
		signature,
		map[string]any{
			"encoding":                       "jsonParsed",
			"commitment":                     c.commitment,
			"maxSupportedTransactionVersion": 0,
		},
	}
	var result *Transaction
	if err := c.call(ctx, "getTransaction", params, &result); err != nil {
		return nil, err
	}
	if result == nil {
		return nil, ErrTransactionNotFound
	}
	return result, nil
}

// GetAccountInfo fetches the jsonParsed account data for address.
func (c *Client) GetAccountInfo(ctx context.Context, address string) (*AccountInfo, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "solana client not configured")
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "address is required")
	}

	params := []any{
		address,
		map[string]any{
			"encoding":   "jsonParsed",
			"commitment": c.commitment,
		},
	}
	var result struct {
		Value *AccountInfo `json:"value"`
	}
	if err := c.call(ctx, "getAccountInfo", params, &result); err != nil {
		return nil, err
	}
	if result.Value == nil {
		return nil, ErrAccountNotFound
	}
	return result.Value, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, params []any, out any) error {
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal "+method+" request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(payload))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build "+method+" request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute "+method+" request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), method+" request failed")
	}

	var envelope rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode "+method+" response")
	}
	if envelope.Error != nil {
		return envelope.Error
	}
	if len(envelope.Result) == 0 || bytes.Equal(bytes.TrimSpace(envelope.Result), []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode "+method+" result")
	}
	return nil
}
