// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Basalt Contributors

package client

import (
	"context"
	"io"
)

// Adapter exposes a ResponseClient as a StreamClient. The whole reply is
// delivered as a single fragment.
type Adapter struct {
	client ResponseClient
}

var _ StreamClient = (*Adapter)(nil)

func NewAdapter(c ResponseClient) *Adapter {
	return &Adapter{client: c}
}

func (a *Adapter) Start(ctx context.Context, req Request) (*Stream, error) {
	ctx, cancel := context.WithCancel(ctx)
	resp, err := a.client.Send(ctx, req)
	if err != nil {
		cancel()
		return nil, err
	}
	return newStream(ctx, cancel, &sliceSource{fragments: []string{resp.Content}}), nil
}

// sliceSource replays a fixed list of fragments.
type sliceSource struct {
	fragments []string
	next      int
}

func (s *sliceSource) Recv(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.next >= len(s.fragments) {
		return "", io.EOF
	}
	f := s.fragments[s.next]
	s.next++
	return f, nil
}

func (s *sliceSource) Close() error { return nil }

// FragmentsSource returns a source that yields fragments in order and then
// completes.
func FragmentsSource(fragments ...string) FragmentSource {
	return &sliceSource{fragments: fragments}
}
