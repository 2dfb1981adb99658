package vectorize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/adboard-backend/pkg/errors"
)

const (
	defaultBaseURL              = "https://api.cloudflare.com/client/v4"
	defaultTimeout              = 10 * time.Second
	responseBodyReadLimit int64 = 1024

	// MaxTopK is the largest fan-out the index serves when metadata is returned.
	MaxTopK = 50
)

var (
	errAccountIDRequired = errors.New("vectorize account id is required")
	errAPITokenRequired  = errors.New("vectorize api token is required")
	errIndexRequired     = errors.New("vectorize index name is required")
)

// Client talks to a Vectorize index over REST.
type Client struct {
	httpClient *http.Client
	baseURL    string
	accountID  string
	apiToken   string
	index      string
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

// WithBaseURL overrides the API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithTimeout sets the request timeout on the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 && c.httpClient != nil {
			c.httpClient.Timeout = timeout
		}
	}
}

// NewClient builds a client bound to one index.
func NewClient(accountID, apiToken, index string, opts ...Option) (*Client, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, errAccountIDRequired
	}
	apiToken = strings.TrimSpace(apiToken)
	if apiToken == "" {
		return nil, errAPITokenRequired
	}
	index = strings.TrimSpace(index)
	if index == "" {
		return nil, errIndexRequired
	}

	client := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    defaultBaseURL,
		accountID:  accountID,
		apiToken:   apiToken,
		index:      index,
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

// Vector is one upserted record.
type Vector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// QueryRequest describes a similarity query.
type QueryRequest struct {
	Vector []float32
	TopK   int
	// Filter is passed through as the index metadata filter.
	Filter map[string]any
}

// Match is one similarity hit.
type Match struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata"`
}

// Upsert inserts or replaces vectors. The body is newline-delimited JSON.
func (c *Client) Upsert(ctx context.Context, vectors []Vector) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "vectorize client not configured")
	}
	if len(vectors) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, v := range vectors {
		if strings.TrimSpace(v.ID) == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "vector id is required")
		}
		if len(v.Values) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "vector values are required")
		}
		if err := enc.Encode(v); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "encode vector")
		}
	}

	return c.do(ctx, "upsert", "application/x-ndjson", &buf, nil)
}

// Query returns the nearest matches, capped at MaxTopK.
func (c *Client) Query(ctx context.Context, req QueryRequest) ([]Match, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "vectorize client not configured")
	}
	if len(req.Vector) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "query vector is required")
	}
	topK := req.TopK
	if topK <= 0 || topK > MaxTopK {
		topK = MaxTopK
	}

	body := map[string]any{
		"vector":         req.Vector,
		"topK":           topK,
		"returnMetadata": "all",
		"returnValues":   false,
	}
	if len(req.Filter) > 0 {
		body["filter"] = req.Filter
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal vectorize query")
	}

	var result struct {
		Count   int     `json:"count"`
		Matches []Match `json:"matches"`
	}
	if err := c.do(ctx, "query", "application/json", bytes.NewReader(payload), &result); err != nil {
		return nil, err
	}
	return result.Matches, nil
}

// DeleteByIDs removes vectors. Unknown ids are ignored by the index.
func (c *Client) DeleteByIDs(ctx context.Context, ids []string) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "vectorize client not configured")
	}
	if len(ids) == 0 {
		return nil
	}
	payload, err := json.Marshal(map[string]any{"ids": ids})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal vectorize delete")
	}
	return c.do(ctx, "delete_by_ids", "application/json", bytes.NewReader(payload), nil)
}

func (c *Client) endpoint(action string) string {
	return fmt.Sprintf("%s/accounts/%s/vectorize/v2/indexes/%s/%s",
		strings.TrimRight(c.baseURL, "/"), url.PathEscape(c.accountID), url.PathEscape(c.index), action)
}

func (c *Client) do(ctx context.Context, action, contentType string, body io.Reader, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(action), body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build vectorize "+action+" request")
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Authorization", "Bearer "+c.apiToken)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute vectorize "+action+" request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "vectorize "+action+" failed")
	}

	var envelope struct {
		Result  json.RawMessage `json:"result"`
		Success *bool           `json:"success"`
		Errors  []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode vectorize "+action+" response")
	}
	if envelope.Success != nil && !*envelope.Success {
		msgs := make([]string, 0, len(envelope.Errors))
		for _, e := range envelope.Errors {
			msgs = append(msgs, e.Message)
		}
		return pkgerrors.New(pkgerrors.CodeDependency, "vectorize "+action+" unsuccessful: "+strings.Join(msgs, "; "))
	}
	if out == nil || len(envelope.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode vectorize "+action+" result")
	}
	return nil
}
