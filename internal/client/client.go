// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Basalt Contributors

// Package client talks to the chat gateway. It offers a one-shot
// request/response exchange and a pull-based, cancellable stream of text
// fragments.
package client

import (
	"context"
	"time"

	"github.com/basalt-chat/basalt/internal/message"
)

// Request is the payload sent to the gateway for one user turn.
type Request struct {
	Content   string `json:"content"`
	SessionID string `json:"session_id"`
}

// Response is a complete assistant reply.
type Response struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Role      message.Role      `json:"role"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  *message.Metadata `json:"metadata,omitempty"`
}

// ResponseClient performs a single request/response exchange.
type ResponseClient interface {
	Send(ctx context.Context, req Request) (*Response, error)
}

// StreamClient opens a fragment stream for a request.
type StreamClient interface {
	Start(ctx context.Context, req Request) (*Stream, error)
}

// Transport is implemented by clients that support both modes.
type Transport interface {
	ResponseClient
	StreamClient
}

// HealthStatus is the result of a gateway health probe.
type HealthStatus struct {
	Status  string        `json:"status"`
	Latency time.Duration `json:"-"`
}

// HealthChecker is implemented by transports that can probe their endpoint.
type HealthChecker interface {
	Health(ctx context.Context) (HealthStatus, error)
}
