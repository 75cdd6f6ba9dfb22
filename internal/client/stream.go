// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Basalt Contributors

package client

import (
	"context"
	"errors"
	"io"
	"sync"

	basalterr "github.com/basalt-chat/basalt/pkg/errors"
)

// StreamState reports where a stream is in its lifecycle.
type StreamState int

const (
	StreamOpen StreamState = iota
	StreamCompleted
	StreamCancelled
	StreamErrored
)

func (s StreamState) String() string {
	switch s {
	case StreamOpen:
		return "open"
	case StreamCompleted:
		return "completed"
	case StreamCancelled:
		return "cancelled"
	case StreamErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further fragments can be produced.
func (s StreamState) Terminal() bool {
	return s != StreamOpen
}

// FragmentSource produces the raw fragments behind a Stream. Recv returns
// io.EOF after the last fragment.
type FragmentSource interface {
	Recv(ctx context.Context) (string, error)
	Close() error
}

// Stream is a finite, non-restartable sequence of text fragments. It is
// consumed scanner style:
//
//	for s.Next() {
//		buf += s.Fragment()
//	}
//	if err := s.Err(); err != nil { ... }
//
// Cancel may be called from any goroutine. It takes effect before the next
// read; a fragment that was already read is still delivered.
type Stream struct {
	ctx    context.Context
	cancel context.CancelFunc
	src    FragmentSource

	mu       sync.Mutex
	state    StreamState
	fragment string
	err      error
	closed   bool
}

// NewStream wraps src in a Stream bound to ctx. Cancelling ctx or calling
// Cancel ends the stream.
func NewStream(ctx context.Context, src FragmentSource) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	return newStream(ctx, cancel, src)
}

func newStream(ctx context.Context, cancel context.CancelFunc, src FragmentSource) *Stream {
	return &Stream{ctx: ctx, cancel: cancel, src: src}
}

// Next advances to the next fragment. It returns false once the stream has
// reached a terminal state and keeps returning false afterwards.
func (s *Stream) Next() bool {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()

	if err := s.ctx.Err(); err != nil {
		s.finish(stateForContext(err), contextError(err))
		return false
	}

	fragment, err := s.src.Recv(s.ctx)
	switch {
	case err == nil:
		s.mu.Lock()
		s.fragment = fragment
		s.mu.Unlock()
		return true
	case errors.Is(err, io.EOF):
		s.finish(StreamCompleted, nil)
	case s.ctx.Err() != nil:
		s.finish(stateForContext(s.ctx.Err()), contextError(s.ctx.Err()))
	default:
		s.finish(StreamErrored, err)
	}
	return false
}

// Fragment returns the fragment read by the last successful Next.
func (s *Stream) Fragment() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fragment
}

// Err returns the error that ended the stream, if any. Cancellation is not an
// error.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Stream) State() StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Cancel requests the stream to stop. It is idempotent.
func (s *Stream) Cancel() {
	s.cancel()
}

// Close releases the underlying source. It is safe to call more than once.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if !s.state.Terminal() {
		s.state = StreamCancelled
	}
	s.mu.Unlock()

	s.cancel()
	return s.src.Close()
}

func (s *Stream) finish(state StreamState, err error) {
	s.mu.Lock()
	if !s.state.Terminal() {
		s.state = state
		s.err = err
		s.fragment = ""
	}
	s.mu.Unlock()

	// Release the source as soon as the stream is done.
	_ = s.Close()
}

func stateForContext(err error) StreamState {
	if errors.Is(err, context.DeadlineExceeded) {
		return StreamErrored
	}
	return StreamCancelled
}

func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return basalterr.Wrap(err, basalterr.CodeClientStreamInterrupted, "stream deadline exceeded")
	}
	return nil
}
