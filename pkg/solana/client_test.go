package solana

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{},
	}
}

func newTestClient(t *testing.T, rt roundTripFunc) *Client {
	t.Helper()
	client, err := NewClient("http://rpc.test", WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

const parsedTransaction = `{"jsonrpc":"2.0","id":1,"result":{
  "slot": 123,
  "blockTime": 1700000000,
  "meta": {
    "err": null,
    "fee": 5000,
    "preTokenBalances": [{"accountIndex": 2, "mint": "Mint111", "owner": "Owner", "uiTokenAmount": {"amount": "1000", "decimals": 6}}],
    "postTokenBalances": [{"accountIndex": 2, "mint": "Mint111", "owner": "Owner", "uiTokenAmount": {"amount": "101000", "decimals": 6}}]
  },
  "transaction": {
    "signatures": ["sig1"],
    "message": {"accountKeys": [
      {"pubkey": "Payer111", "signer": true, "writable": true},
      {"pubkey": "Source111", "signer": false, "writable": true},
      {"pubkey": "Treasury111", "signer": false, "writable": true}
    ]}
  }
}}`

func TestGetTransactionRequest(t *testing.T) {
	var payload rpcRequest
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		if req.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", req.Method)
		}
		body, err := io.ReadAll(req.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Fatalf("unmarshal body: %v", err)
		}
		return jsonResponse(http.StatusOK, parsedTransaction), nil
	})

	tx, err := client.GetTransaction(context.Background(), "sig1")
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	if payload.Method != "getTransaction" || payload.JSONRPC != "2.0" {
		t.Fatalf("unexpected envelope %+v", payload)
	}
	opts, ok := payload.Params[1].(map[string]any)
	if !ok {
		t.Fatalf("expected options object, got %T", payload.Params[1])
	}
	if opts["encoding"] != "jsonParsed" || opts["commitment"] != "confirmed" {
		t.Fatalf("unexpected options %+v", opts)
	}
	if opts["maxSupportedTransactionVersion"] != float64(0) {
		t.Fatalf("expected maxSupportedTransactionVersion 0, got %v", opts["maxSupportedTransactionVersion"])
	}

	if tx.Slot != 123 || tx.Failed() {
		t.Fatalf("unexpected transaction %+v", tx)
	}
	payer, ok := tx.AccountKeyAt(0)
	if !ok || payer != "Payer111" {
		t.Fatalf("unexpected payer %q", payer)
	}
	if len(tx.Meta.PostTokenBalances) != 1 || tx.Meta.PostTokenBalances[0].UITokenAmount.Amount != "101000" {
		t.Fatalf("unexpected post balances %+v", tx.Meta.PostTokenBalances)
	}
}

func TestGetTransactionNullResult(t *testing.T) {
	client := newTestClient(t, func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":null}`), nil
	})

	_, err := client.GetTransaction(context.Background(), "missing")
	if !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}
}

func TestGetTransactionRPCError(t *testing.T) {
	client := newTestClient(t, func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"Invalid param"}}`), nil
	})

	_, err := client.GetTransaction(context.Background(), "bad")
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected RPCError, got %v", err)
	}
	if rpcErr.Code != -32602 {
		t.Fatalf("unexpected code %d", rpcErr.Code)
	}
}

func TestGetTransactionHTTPFailure(t *testing.T) {
	client := newTestClient(t, func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusTooManyRequests, "slow down"), nil
	})

	_, err := client.GetTransaction(context.Background(), "sig")
	if err == nil || !strings.Contains(err.Error(), "status 429") {
		t.Fatalf("expected status error, got %v", err)
	}
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		t.Fatal("http failures must not surface as rpc errors")
	}
}

func TestTransactionFailedFlag(t *testing.T) {
	tx := &Transaction{Meta: &TransactionMeta{Err: json.RawMessage(`{"InstructionError":[0,"Custom"]}`)}}
	if !tx.Failed() {
		t.Fatal("expected failed transaction")
	}
	tx.Meta.Err = json.RawMessage(`null`)
	if tx.Failed() {
		t.Fatal("expected null err to be success")
	}
}

func TestAccountKeyAcceptsStringForm(t *testing.T) {
	var keys []AccountKey
	if err := json.Unmarshal([]byte(`["Payer111", {"pubkey":"Other111","signer":false}]`), &keys); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(keys) != 2 || keys[0].Pubkey != "Payer111" || keys[1].Pubkey != "Other111" {
		t.Fatalf("unexpected keys %+v", keys)
	}
}

func TestGetAccountInfo(t *testing.T) {
	body := `{"jsonrpc":"2.0","id":1,"result":{"context":{"slot":1},"value":{
	  "lamports": 2039280, "owner": "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA", "executable": false,
	  "data": {"program": "spl-token", "parsed": {"type": "account", "info": {"mint": "Mint111", "owner": "Owner", "tokenAmount": {"amount": "42", "decimals": 6}}}}
	}}}`
	client := newTestClient(t, func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, body), nil
	})

	info, err := client.GetAccountInfo(context.Background(), "Treasury111")
	if err != nil {
		t.Fatalf("get account info: %v", err)
	}
	if !info.IsTokenAccount() || info.Data.Parsed.Info.Mint != "Mint111" {
		t.Fatalf("unexpected account %+v", info)
	}
}

func TestGetAccountInfoMissing(t *testing.T) {
	client := newTestClient(t, func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":{"context":{"slot":1},"value":null}}`), nil
	})

	if _, err := client.GetAccountInfo(context.Background(), "Nothing"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestNewClientRequiresURL(t *testing.T) {
	if _, err := NewClient("  "); err == nil {
		t.Fatal("expected error for empty rpc url")
	}
}
