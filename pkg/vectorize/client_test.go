package vectorize

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func okResponse(body string) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{},
	}
}

func newTestClient(t *testing.T, rt roundTripFunc) *Client {
	t.Helper()
	client, err := NewClient("acct", "token", "ads", WithBaseURL("http://vec.test/v4"), WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestUpsertSendsNDJSON(t *testing.T) {
	var lines []Vector
	var contentType, path string
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		contentType = req.Header.Get("Content-Type")
		path = req.URL.Path
		scanner := bufio.NewScanner(req.Body)
		for scanner.Scan() {
			var v Vector
			if err := json.Unmarshal(scanner.Bytes(), &v); err != nil {
				t.Fatalf("decode line: %v", err)
			}
			lines = append(lines, v)
		}
		return okResponse(`{"result":{"mutationId":"m1"},"success":true}`), nil
	})

	err := client.Upsert(context.Background(), []Vector{
		{ID: "a", Values: []float32{0.1, 0.2}, Metadata: map[string]any{"visible": true}},
		{ID: "b", Values: []float32{0.3, 0.4}},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if contentType != "application/x-ndjson" {
		t.Fatalf("unexpected content type %q", contentType)
	}
	if path != "/v4/accounts/acct/vectorize/v2/indexes/ads/upsert" {
		t.Fatalf("unexpected path %q", path)
	}
	if len(lines) != 2 || lines[0].ID != "a" || lines[0].Metadata["visible"] != true {
		t.Fatalf("unexpected lines %+v", lines)
	}
}

func TestUpsertRejectsEmptyValues(t *testing.T) {
	client := newTestClient(t, func(*http.Request) (*http.Response, error) {
		t.Fatal("no request expected")
		return nil, nil
	})
	if err := client.Upsert(context.Background(), []Vector{{ID: "a"}}); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestQueryCapsTopKAndPassesFilter(t *testing.T) {
	var payload map[string]any
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		body, _ := io.ReadAll(req.Body)
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return okResponse(`{"result":{"count":2,"matches":[{"id":"a","score":0.9,"metadata":{"visible":true}},{"id":"b","score":0.5}]},"success":true}`), nil
	})

	matches, err := client.Query(context.Background(), QueryRequest{
		Vector: []float32{0.1},
		TopK:   500,
		Filter: map[string]any{"visible": map[string]any{"$eq": true}},
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if payload["topK"] != float64(MaxTopK) {
		t.Fatalf("expected topK capped at %d, got %v", MaxTopK, payload["topK"])
	}
	if _, ok := payload["filter"].(map[string]any); !ok {
		t.Fatalf("expected filter in payload, got %v", payload["filter"])
	}
	if len(matches) != 2 || matches[0].ID != "a" || matches[0].Score != 0.9 {
		t.Fatalf("unexpected matches %+v", matches)
	}
}

func TestQueryPropagatesFailure(t *testing.T) {
	client := newTestClient(t, func(*http.Request) (*http.Response, error) {
		return okResponse(`{"result":null,"success":false,"errors":[{"message":"index not found"}]}`), nil
	})
	_, err := client.Query(context.Background(), QueryRequest{Vector: []float32{0.1}})
	if err == nil || !strings.Contains(err.Error(), "index not found") {
		t.Fatalf("expected index error, got %v", err)
	}
}

func TestDeleteByIDs(t *testing.T) {
	var payload struct {
		IDs []string `json:"ids"`
	}
	var path string
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		path = req.URL.Path
		body, _ := io.ReadAll(req.Body)
		_ = json.Unmarshal(body, &payload)
		return okResponse(`{"result":{"mutationId":"m2"},"success":true}`), nil
	})

	if err := client.DeleteByIDs(context.Background(), []string{"a", "b"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !strings.HasSuffix(path, "/delete_by_ids") {
		t.Fatalf("unexpected path %q", path)
	}
	if len(payload.IDs) != 2 {
		t.Fatalf("unexpected ids %v", payload.IDs)
	}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient("acct", "token", ""); err == nil {
		t.Fatal("expected index error")
	}
}
