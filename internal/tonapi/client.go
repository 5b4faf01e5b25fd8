// Package tonapi is the HTTP client for the TON network services the wallet
// talks to: a toncenter-style JSON-RPC endpoint for seqno, fees and
// broadcast, and a REST API for emulation, balances, rates, DNS and app
// lists.
package tonapi

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

	"github.com/tonkeeper/tonkeeper-core/internal/log"
)

// DefaultTimeout is used when Options.Timeout is zero.
const DefaultTimeout = 10 * time.Second

// maxBody caps every response body read by the client.
const maxBody = 4 << 20

// Network errors.
var (
	// ErrNetwork wraps transport failures: DNS, refused connections,
	// timeouts, truncated bodies.
	ErrNetwork = errors.New("network error")
	// ErrNotFound is returned for 404 responses.
	ErrNotFound = errors.New("not found")
)

// RPCError is returned when the JSON-RPC server responds with an error.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// HTTPError is returned for non-2xx REST responses.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// Is makes errors.Is(err, ErrNotFound) match 404 responses.
func (e *HTTPError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// Options configures a Client.
type Options struct {
	// Endpoint is the REST base URL, e.g. https://tonapi.io.
	Endpoint string
	// RPCEndpoint is the JSON-RPC URL, e.g. https://toncenter.com/api/v2/jsonRPC.
	RPCEndpoint string
	APIKey      string
	Timeout     time.Duration
}

// Client talks to the network services.
type Client struct {
	endpoint    string
	rpcEndpoint string
	apiKey      string
	http        *http.Client
	nextID      atomic.Int64
}

// New creates a client.
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		endpoint:    strings.TrimRight(opts.Endpoint, "/"),
		rpcEndpoint: opts.RPCEndpoint,
		apiKey:      opts.APIKey,
		http: &http.Client{
			Timeout: timeout,
		},
	}
}

// request is a JSON-RPC 2.0 request.
type request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	ID      int64       `json:"id"`
}

// response is a JSON-RPC 2.0 response. toncenter adds "ok" and may report
// the error as a bare string with a separate code.
type response struct {
	OK     *bool           `json:"ok,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  json.RawMessage `json:"error,omitempty"`
	Code   int             `json:"code,omitempty"`
	ID     int64           `json:"id"`
}

func (r *response) err() error {
	if len(r.Error) == 0 || string(r.Error) == "null" {
		if r.OK != nil && !*r.OK {
			return &RPCError{Code: r.Code, Message: "request failed"}
		}
		return nil
	}
	var obj struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(r.Error, &obj); err == nil {
		return &RPCError{Code: obj.Code, Message: obj.Message}
	}
	var msg string
	if err := json.Unmarshal(r.Error, &msg); err == nil {
		return &RPCError{Code: r.Code, Message: msg}
	}
	return &RPCError{Code: r.Code, Message: string(r.Error)}
}

// Call invokes a JSON-RPC method and unmarshals the result into the provided pointer.
// If result is nil, the response result is discarded.
func (c *Client) Call(ctx context.Context, method string, params, result interface{}) error {
	req := request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID.Add(1),
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcEndpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("X-API-Key", c.apiKey)
	}

	start := time.Now()
	data, status, err := c.do(httpReq)
	log.API.Debug().Str("method", method).Int("status", status).Dur("took", time.Since(start)).Err(err).Msg("rpc call")
	if err != nil {
		return err
	}

	var rpcResp response
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		if status/100 != 2 {
			return &HTTPError{Status: status, Body: truncate(data)}
		}
		return fmt.Errorf("decode response: %w", err)
	}
	if err := rpcResp.err(); err != nil {
		return err
	}

	if result != nil && rpcResp.Result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}
	return nil
}

// Get fetches a REST path (relative to the endpoint) or an absolute URL and
// decodes the JSON body into out.
func (c *Client) Get(ctx context.Context, pathOrURL string, out interface{}) error {
	return c.rest(ctx, http.MethodGet, pathOrURL, nil, out)
}

// Post sends in as JSON and decodes the response into out.
func (c *Client) Post(ctx context.Context, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.rest(ctx, http.MethodPost, path, body, out)
}

func (c *Client) rest(ctx context.Context, method, pathOrURL string, body []byte, out interface{}) error {
	url := pathOrURL
	external := strings.HasPrefix(pathOrURL, "http://") || strings.HasPrefix(pathOrURL, "https://")
	if !external {
		url = c.endpoint + pathOrURL
	}

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	// Never leak the key to third-party hosts such as dApp manifests.
	if c.apiKey != "" && !external {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	data, status, err := c.do(req)
	log.API.Debug().Str("method", method).Str("url", url).Int("status", status).Dur("took", time.Since(start)).Err(err).Msg("rest call")
	if err != nil {
		return err
	}
	if status/100 != 2 {
		return &HTTPError{Status: status, Body: truncate(data)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", pathOrURL, err)
	}
	return nil
}

func (c *Client) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, 0, ctxErr
		}
		return nil, 0, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: read response: %v", ErrNetwork, err)
	}
	return data, resp.StatusCode, nil
}

func truncate(b []byte) string {
	const n = 256
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
