// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Basalt Contributors

package client

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/basalt-chat/basalt/internal/message"
)

// MockModel is reported in the metadata of mock replies.
const MockModel = "echo"

// MockClient answers every request in-process by echoing it back. It stands
// in for the gateway in offline use and demos.
type MockClient struct {
	// Delay is slept before each streamed fragment.
	Delay time.Duration
}

var (
	_ Transport     = (*MockClient)(nil)
	_ HealthChecker = (*MockClient)(nil)
)

func NewMockClient(delay time.Duration) *MockClient {
	return &MockClient{Delay: delay}
}

func echo(content string) string {
	return "Echo: " + content
}

func (m *MockClient) Send(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reply := echo(req.Content)
	tokens := len(strings.Fields(reply))
	return &Response{
		ID:        uuid.NewString(),
		Content:   reply,
		Role:      message.RoleAssistant,
		Timestamp: time.Now().UTC(),
		Metadata: &message.Metadata{
			Tokens: &tokens,
			Model:  message.Ptr(MockModel),
		},
	}, nil
}

// Start streams the echoed reply word by word, keeping the separating spaces
// so the fragments concatenate back to the full reply.
func (m *MockClient) Start(ctx context.Context, req Request) (*Stream, error) {
	ctx, cancel := context.WithCancel(ctx)
	return newStream(ctx, cancel, &delayedSource{
		inner: &sliceSource{fragments: splitWords(echo(req.Content))},
		delay: m.Delay,
	}), nil
}

func (m *MockClient) Health(context.Context) (HealthStatus, error) {
	return HealthStatus{Status: "healthy"}, nil
}

func splitWords(s string) []string {
	var out []string
	start := 0
	for i := 1; i < len(s); i++ {
		if s[i] == ' ' && s[i-1] != ' ' {
			out = append(out, s[start:i])
			start = i
		}
	}
	return append(out, s[start:])
}

type delayedSource struct {
	inner FragmentSource
	delay time.Duration
}

func (d *delayedSource) Recv(ctx context.Context) (string, error) {
	if d.delay > 0 {
		timer := time.NewTimer(d.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	return d.inner.Recv(ctx)
}

func (d *delayedSource) Close() error { return d.inner.Close() }
