package workersai

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
	defaultTextModel            = "@cf/meta/llama-3.1-8b-instruct"
	defaultEmbeddingModel       = "@cf/baai/bge-base-en-v1.5"
	defaultTimeout              = 30 * time.Second
	responseBodyReadLimit int64 = 1024
)

var (
	errAccountIDRequired = errors.New("workers ai account id is required")
	errAPITokenRequired  = errors.New("workers ai api token is required")
)

// Client calls text-generation and embedding models over the Workers AI REST API.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	accountID      string
	apiToken       string
	textModel      string
	embeddingModel string
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

// WithTextModel selects the text-generation model.
func WithTextModel(model string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(model); trimmed != "" {
			c.textModel = trimmed
		}
	}
}

// WithEmbeddingModel selects the embedding model.
func WithEmbeddingModel(model string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(model); trimmed != "" {
			c.embeddingModel = trimmed
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

// NewClient builds a Workers AI client for the given account.
func NewClient(accountID, apiToken string, opts ...Option) (*Client, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, errAccountIDRequired
	}
	apiToken = strings.TrimSpace(apiToken)
	if apiToken == "" {
		return nil, errAPITokenRequired
	}

	client := &Client{
		httpClient:     &http.Client{Timeout: defaultTimeout},
		baseURL:        defaultBaseURL,
		accountID:      accountID,
		apiToken:       apiToken,
		textModel:      defaultTextModel,
		embeddingModel: defaultEmbeddingModel,
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

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateRequest is a system+user message pair with a token budget.
type GenerateRequest struct {
	System    string
	User      string
	MaxTokens int
}

// Generate runs the text model and returns its free-form output.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if c == nil {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "workers ai client not configured")
	}
	if strings.TrimSpace(req.User) == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "user message is required")
	}

	messages := make([]Message, 0, 2)
	if strings.TrimSpace(req.System) != "" {
		messages = append(messages, Message{Role: "system", Content: req.System})
	}
	messages = append(messages, Message{Role: "user", Content: req.User})

	body := map[string]any{"messages": messages}
	if req.MaxTokens > 0 {
		body["max_tokens"] = req.MaxTokens
	}

	raw, err := c.run(ctx, c.textModel, body)
	if err != nil {
		return "", err
	}
	text, err := ExtractText(raw)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "extract generated text")
	}
	return text, nil
}

// Embed returns one embedding per input text, in order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "workers ai client not configured")
	}
	if len(texts) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one text is required")
	}

	raw, err := c.run(ctx, c.embeddingModel, map[string]any{"text": texts})
	if err != nil {
		return nil, err
	}
	var result struct {
		Shape []int       `json:"shape"`
		Data  [][]float32 `json:"data"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode embedding result")
	}
	if len(result.Data) != len(texts) {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(result.Data)))
	}
	return result.Data, nil
}

// EmbedOne embeds a single text.
func (c *Client) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

type apiEnvelope struct {
	Result  json.RawMessage `json:"result"`
	Success *bool           `json:"success"`
	Errors  []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

func (c *Client) run(ctx context.Context, model string, body any) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal workers ai request")
	}

	endpoint := fmt.Sprintf("%s/accounts/%s/ai/run/%s", strings.TrimRight(c.baseURL, "/"), url.PathEscape(c.accountID), model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build workers ai request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiToken)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute workers ai request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "workers ai request failed")
	}

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode workers ai response")
	}
	if envelope.Success != nil && !*envelope.Success {
		msgs := make([]string, 0, len(envelope.Errors))
		for _, e := range envelope.Errors {
			msgs = append(msgs, fmt.Sprintf("%d: %s", e.Code, e.Message))
		}
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "workers ai call unsuccessful: "+strings.Join(msgs, "; "))
	}
	if len(envelope.Result) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "workers ai response missing result")
	}
	return envelope.Result, nil
}
