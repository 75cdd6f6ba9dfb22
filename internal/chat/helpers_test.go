// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Basalt Contributors

package chat_test

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/basalt-chat/basalt/internal/chat"
	"github.com/basalt-chat/basalt/internal/client"
	basalterr "github.com/basalt-chat/basalt/pkg/errors"
	"github.com/stretchr/testify/require"
)

// fragmentSource yields fragments, then blocks on hold (if set) and finally
// returns end.
type fragmentSource struct {
	fragments []string
	end       error
	hold      <-chan struct{}
	n         int
}

func (s *fragmentSource) Recv(ctx context.Context) (string, error) {
	if s.n < len(s.fragments) {
		f := s.fragments[s.n]
		s.n++
		return f, nil
	}
	if s.hold != nil {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-s.hold:
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.end == nil {
		return "", io.EOF
	}
	return "", s.end
}

func (s *fragmentSource) Close() error { return nil }

// fakeStreamer hands out a fresh fragmentSource per call.
type fakeStreamer struct {
	mu        sync.Mutex
	fragments []string
	end       error
	hold      <-chan struct{}
	startErr  error
	requests  []client.Request
	// blockStart makes Start wait for cancellation before failing.
	blockStart bool
}

func (f *fakeStreamer) Start(ctx context.Context, req client.Request) (*client.Stream, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.blockStart {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.startErr != nil {
		return nil, f.startErr
	}
	return client.NewStream(ctx, &fragmentSource{fragments: f.fragments, end: f.end, hold: f.hold}), nil
}

func (f *fakeStreamer) Requests() []client.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]client.Request(nil), f.requests...)
}

type fakeResponder struct {
	resp *client.Response
	err  error
}

func (f *fakeResponder) Send(ctx context.Context, _ client.Request) (*client.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.resp, f.err
}

// blockingResponder holds each send until its context ends, then fails the
// way the HTTP transport does.
type blockingResponder struct {
	started chan struct{}
}

func (b *blockingResponder) Send(ctx context.Context, _ client.Request) (*client.Response, error) {
	close(b.started)
	<-ctx.Done()
	return nil, basalterr.Wrap(ctx.Err(), basalterr.CodeClientTransportFailure, "sending message")
}

func newStreamingCoordinator(t *testing.T, s client.StreamClient, opts ...func(*chat.Config)) *chat.Coordinator {
	t.Helper()
	cfg := chat.Config{Mode: chat.ModeStreaming, Streamer: s, MaxMessages: 100}
	for _, opt := range opts {
		opt(&cfg)
	}
	c, err := chat.New(cfg)
	require.NoError(t, err)
	return c
}

func newRequestCoordinator(t *testing.T, r client.ResponseClient, opts ...func(*chat.Config)) *chat.Coordinator {
	t.Helper()
	cfg := chat.Config{Mode: chat.ModeRequest, Responder: r, MaxMessages: 100}
	for _, opt := range opts {
		opt(&cfg)
	}
	c, err := chat.New(cfg)
	require.NoError(t, err)
	return c
}

// recorder collects observer events.
type recorder struct {
	mu     sync.Mutex
	events []chat.Event
}

func (r *recorder) observe(ev chat.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) Events() []chat.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]chat.Event(nil), r.events...)
}
