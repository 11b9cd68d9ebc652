package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jmerrifield20/powchain/internal/chain"
)

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Overview is the chain summary returned by GET /api/v1/chain.
type Overview struct {
	Length     int    `json:"length"`
	Tip        string `json:"tip"`
	Conforming int    `json:"conforming"`
	Difficulty int    `json:"difficulty"`
	AttemptCap uint64 `json:"attempt_cap"`
	Algorithm  string `json:"algorithm"`
}

// Report is the result of a server-side integrity walk.
type Report struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// AppendResult is returned by Append.
type AppendResult struct {
	Record   chain.Record `json:"record"`
	Outcome  string       `json:"outcome"`
	Attempts uint64       `json:"attempts"`
}

// Client talks to a powchain server.
type Client struct {
	base        string
	httpClient  *http.Client
	bearerToken string
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return errors.New("http client must not be nil")
		}
		c.httpClient = hc
		return nil
	}
}

// WithBearerToken attaches a write token to every request.
func WithBearerToken(token string) Option {
	return func(c *Client) error {
		c.bearerToken = token
		return nil
	}
}

// New creates a Client for the server at base, e.g. "http://localhost:8080".
func New(base string, opts ...Option) (*Client, error) {
	if base == "" {
		return nil, errors.New("server URL is required")
	}
	c := &Client{
		base:       strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error. Useful in tests and program init.
func MustNew(base string, opts ...Option) *Client {
	c, err := New(base, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Overview fetches the chain summary.
func (c *Client) Overview(ctx context.Context) (*Overview, error) {
	var out Overview
	if err := c.getJSON(ctx, "/api/v1/chain", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Verify asks the server to walk the chain and report its integrity.
func (c *Client) Verify(ctx context.Context) (*Report, error) {
	var out Report
	if err := c.getJSON(ctx, "/api/v1/chain/verify", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Records lists every record in append order.
func (c *Client) Records(ctx context.Context) ([]chain.Record, error) {
	var out struct {
		Records []chain.Record `json:"records"`
	}
	if err := c.getJSON(ctx, "/api/v1/chain/records", &out); err != nil {
		return nil, err
	}
	return out.Records, nil
}

// Record fetches the record at position idx.
func (c *Client) Record(ctx context.Context, idx int) (*chain.Record, error) {
	var out chain.Record
	if err := c.getJSON(ctx, "/api/v1/chain/records/"+strconv.Itoa(idx), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Append submits payload for mining and returns the appended record.
// Requires WithBearerToken when the server enforces write tokens.
func (c *Client) Append(ctx context.Context, payload string) (*AppendResult, error) {
	body, err := json.Marshal(map[string]string{"payload": payload})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/v1/chain/records", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	respBody, err := c.do(req)
	if err != nil {
		return nil, err
	}
	var out AppendResult
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	body, err := c.do(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<22))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, req.URL.Path)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("unauthorized: %s", string(body))
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("server error %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
