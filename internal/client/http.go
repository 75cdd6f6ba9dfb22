// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Basalt Contributors

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/basalt-chat/basalt/internal/message"
	basalterr "github.com/basalt-chat/basalt/pkg/errors"
)

const (
	messagesPath = "/messages"
	streamPath   = "/stream"
	healthPath   = "/health"

	// maxErrorBody bounds how much of a failed response body ends up in an error.
	maxErrorBody = 512
)

// HTTPConfig configures an HTTPClient.
type HTTPConfig struct {
	BaseURL string
	APIKey  string
	// Timeout bounds Send and Health. Streams are bounded only by their context.
	Timeout time.Duration
	// HTTPClient overrides the underlying client, mostly for tests.
	HTTPClient *http.Client
}

// HTTPClient talks to the gateway over JSON and server-sent events.
type HTTPClient struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	http    *http.Client
}

var (
	_ ResponseClient = (*HTTPClient)(nil)
	_ StreamClient   = (*HTTPClient)(nil)
	_ HealthChecker  = (*HTTPClient)(nil)
)

// NewHTTPClient creates a gateway client. The base URL must be absolute.
func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		return nil, basalterr.Errorf(basalterr.CodeClientRequestInvalid, "gateway base url must be http(s): %q", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &HTTPClient{
		baseURL: base,
		apiKey:  cfg.APIKey,
		timeout: cfg.Timeout,
		http:    httpClient,
	}, nil
}

// Send posts the request to the messages endpoint and decodes the reply.
func (c *HTTPClient) Send(ctx context.Context, req Request) (*Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	httpReq, err := c.newJSONRequest(ctx, messagesPath, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, transportError(err, "sending message")
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, basalterr.Wrap(err, basalterr.CodeClientResponseInvalid, "decoding gateway response",
			basalterr.FieldStatus(resp.StatusCode))
	}
	if out.Role == "" {
		out.Role = message.RoleAssistant
	}
	return &out, nil
}

// Start opens a fragment stream. Connection failures and non-2xx responses
// are returned here; failures after the stream is established surface
// through Stream.Err.
func (c *HTTPClient) Start(ctx context.Context, req Request) (*Stream, error) {
	ctx, cancel := context.WithCancel(ctx)

	httpReq, err := c.newJSONRequest(ctx, streamPath, req)
	if err != nil {
		cancel()
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		cancel()
		return nil, transportError(err, "opening stream")
	}
	if err := checkStatus(resp); err != nil {
		_ = resp.Body.Close()
		cancel()
		return nil, err
	}

	return newStream(ctx, cancel, newSSESource(resp)), nil
}

// Health probes the gateway health endpoint.
func (c *HTTPClient) Health(ctx context.Context) (HealthStatus, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return HealthStatus{}, basalterr.Errorf(basalterr.CodeClientRequestInvalid, "building health request: %w", err)
	}
	c.setHeaders(httpReq)

	started := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return HealthStatus{}, basalterr.Wrap(err, basalterr.CodeClientHealthUnavailable, "probing gateway health")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return HealthStatus{}, basalterr.New(basalterr.CodeClientHealthUnavailable,
			fmt.Sprintf("gateway health returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
			basalterr.FieldStatus(resp.StatusCode))
	}

	var status HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return HealthStatus{}, basalterr.Wrap(err, basalterr.CodeClientHealthUnavailable, "decoding health response")
	}
	status.Latency = time.Since(started)
	return status, nil
}

func (c *HTTPClient) newJSONRequest(ctx context.Context, path string, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, basalterr.Errorf(basalterr.CodeClientRequestInvalid, "encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, basalterr.Errorf(basalterr.CodeClientRequestInvalid, "building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setHeaders(req)
	return req, nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return basalterr.New(basalterr.CodeClientTransportFailure,
		fmt.Sprintf("gateway returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		basalterr.FieldStatus(resp.StatusCode))
}

func transportError(err error, op string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return basalterr.Wrap(err, basalterr.CodeClientTransportTimeout, op+": timed out")
	}
	if isDialError(err) {
		return basalterr.Wrap(err, basalterr.CodeClientTransportFailure, op+": gateway unreachable")
	}
	return basalterr.Wrap(err, basalterr.CodeClientTransportFailure, op)
}

// isDialError returns true if err is a net dial error (connection refused, etc.).
func isDialError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	return false
}
