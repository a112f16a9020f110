// Package client talks to a lumenkv server over its REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// KV is implemented by the HTTP client here and by the gRPC client in
// internal/rpc.
type KV interface {
	Put(ctx context.Context, key, value []byte) error
	Get(ctx context.Context, key []byte) ([]byte, bool, error)
	Delete(ctx context.Context, key []byte) (bool, error)
	Close() error
}

// StatusError is returned for any non-success HTTP status.
type StatusError struct {
	Op     string
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed: %d: %s", e.Op, e.Code, e.Detail)
}

type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClient(baseURL string) *HTTPClient {
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type apiResp struct {
	Status  string `json:"status"`
	Existed *bool  `json:"existed"`
	Error   string `json:"error"`
}

func (c *HTTPClient) kvURL(key []byte) string {
	return c.baseURL + "/v1/kv?key=" + url.QueryEscape(string(key))
}

func (c *HTTPClient) Put(ctx context.Context, key, value []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.kvURL(key), bytes.NewReader(value))
	if err != nil {
		return fmt.Errorf("create PUT request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("PUT do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError("PUT", resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *HTTPClient) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.kvURL(key), nil)
	if err != nil {
		return nil, false, fmt.Errorf("create GET request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("GET do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, statusError("GET", resp)
	}

	value, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("read GET body: %w", err)
	}
	return value, true, nil
}

func (c *HTTPClient) Delete(ctx context.Context, key []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.kvURL(key), nil)
	if err != nil {
		return false, fmt.Errorf("create DELETE request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("DELETE do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, statusError("DELETE", resp)
	}

	var dr apiResp
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return false, fmt.Errorf("decode DELETE body: %w", err)
	}
	return dr.Existed != nil && *dr.Existed, nil
}

func (c *HTTPClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

func statusError(op string, resp *http.Response) error {
	b, _ := io.ReadAll(resp.Body)
	detail := strings.TrimSpace(string(b))
	var ar apiResp
	if json.Unmarshal(b, &ar) == nil && ar.Error != "" {
		detail = ar.Error
	}
	return &StatusError{Op: op, Code: resp.StatusCode, Detail: detail}
}
