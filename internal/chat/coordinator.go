// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Basalt Contributors

// Package chat drives one chat session: it records the user's message,
// obtains the assistant's reply over the configured transport, and keeps the
// transcript consistent under cancellation and failure.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/basalt-chat/basalt/internal/client"
	"github.com/basalt-chat/basalt/internal/message"
	basalterr "github.com/basalt-chat/basalt/pkg/errors"
)

const (
	streamErrorPrefix  = "Error: "
	requestErrorPrefix = "Sorry, I encountered an error: "
)

// State is the coordinator's position in the send lifecycle.
type State int

const (
	StateIdle State = iota
	StateUserAppended
	StateStreaming
	StateNonStreaming
	StateSettling
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateUserAppended:
		return "user_appended"
	case StateStreaming:
		return "streaming"
	case StateNonStreaming:
		return "non_streaming"
	case StateSettling:
		return "settling"
	default:
		return "unknown"
	}
}

// Mode selects how replies are obtained.
type Mode string

const (
	ModeStreaming Mode = "streaming"
	ModeRequest   Mode = "request"
)

// ParseMode converts a config string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeStreaming, "":
		return ModeStreaming, nil
	case ModeRequest:
		return ModeRequest, nil
	default:
		return "", basalterr.Errorf(basalterr.CodeConfigValidateInvalidValue, "unknown session mode %q", s)
	}
}

// Outcome describes how a send ended.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeCancelled
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Reply is the result of a send. Assistant is nil when no assistant message
// was produced.
type Reply struct {
	Outcome   Outcome
	User      message.Message
	Assistant *message.Message
}

// Validator vets user input before anything is recorded. It should return
// plain errors; the coordinator classifies them.
type Validator func(content string) error

// Hooks are optional callbacks run synchronously during a send.
type Hooks struct {
	// OnFragment runs after each streamed fragment has been applied.
	OnFragment func(index int, fragment string)
}

// Config configures a Coordinator.
type Config struct {
	Mode Mode
	// Streamer is required in streaming mode.
	Streamer client.StreamClient
	// Responder is required in request mode.
	Responder client.ResponseClient
	// MaxMessages bounds the transcript; zero or less means unbounded.
	MaxMessages int
	Validator   Validator
	Observers   []Observer
	// SessionID overrides the generated session id, e.g. to resume.
	SessionID string
	Hooks     *Hooks
}

// Coordinator owns a session's messages and runs at most one send at a time.
type Coordinator struct {
	sessionID string
	mode      Mode
	streamer  client.StreamClient
	responder client.ResponseClient
	validator Validator
	hooks     *Hooks
	store     *message.Store

	mu        sync.Mutex
	state     State
	cancel    context.CancelFunc
	observers []Observer
}

// New creates a Coordinator.
func New(cfg Config) (*Coordinator, error) {
	mode := cfg.Mode
	if mode == "" {
		mode = ModeStreaming
	}

	switch mode {
	case ModeStreaming:
		if cfg.Streamer == nil {
			return nil, basalterr.New(basalterr.CodeConfigValidateInvalidValue, "streaming mode requires a stream client")
		}
	case ModeRequest:
		if cfg.Responder == nil {
			return nil, basalterr.New(basalterr.CodeConfigValidateInvalidValue, "request mode requires a response client")
		}
	default:
		return nil, basalterr.Errorf(basalterr.CodeConfigValidateInvalidValue, "unknown session mode %q", mode)
	}

	sessionID := cfg.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	return &Coordinator{
		sessionID: sessionID,
		mode:      mode,
		streamer:  cfg.Streamer,
		responder: cfg.Responder,
		validator: cfg.Validator,
		hooks:     cfg.Hooks,
		store:     message.NewStore(cfg.MaxMessages),
		observers: append([]Observer(nil), cfg.Observers...),
	}, nil
}

func (c *Coordinator) SessionID() string { return c.sessionID }

func (c *Coordinator) Mode() Mode { return c.mode }

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Messages returns a snapshot of the session transcript.
func (c *Coordinator) Messages() []message.Message {
	return c.store.Messages()
}

// Clear empties the transcript. It does not interrupt a send in progress;
// later updates to the vanished assistant message are dropped.
func (c *Coordinator) Clear() {
	c.store.Clear()
}

// Subscribe registers an observer for subsequent events.
func (c *Coordinator) Subscribe(o Observer) {
	if o == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, o)
}

// Stop cancels the stream of the send in progress. It is a no-op unless the
// coordinator is streaming and may be called from any goroutine.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateStreaming || c.cancel == nil {
		return
	}
	slog.Debug("stopping stream", "session_id", c.sessionID)
	c.cancel()
}

// Send records content as a user message and obtains the assistant's reply.
// Only one send may be in progress; a concurrent call fails immediately.
// A cancelled stream is not an error: the partial reply is kept and the
// returned Reply reports OutcomeCancelled. A cancelled request-mode send
// also returns a nil error and OutcomeCancelled, but appends no assistant
// message.
func (c *Coordinator) Send(ctx context.Context, content string) (Reply, error) {
	sendCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return Reply{}, basalterr.New(basalterr.CodeChatSendConflict, "a message is already being sent",
			basalterr.FieldSessionID(c.sessionID))
	}
	c.state = StateUserAppended
	c.cancel = cancel
	c.mu.Unlock()
	defer c.finish()

	if c.validator != nil {
		if err := c.validator(content); err != nil {
			return Reply{}, basalterr.Wrap(err, basalterr.CodeChatSendInvalidInput, "message rejected",
				basalterr.FieldSessionID(c.sessionID))
		}
	}

	user := message.New(message.RoleUser, content)
	c.store.Append(user)
	c.notify(Event{Kind: EventMessageSent, SessionID: c.sessionID, Message: user})

	req := client.Request{Content: content, SessionID: c.sessionID}

	var (
		reply Reply
		err   error
	)
	if c.mode == ModeStreaming {
		reply, err = c.streamReply(sendCtx, req)
	} else {
		reply, err = c.requestReply(sendCtx, req)
	}
	reply.User = user

	c.setState(StateSettling)
	if reply.Assistant != nil {
		c.notify(Event{
			Kind:      EventResponseReceived,
			SessionID: c.sessionID,
			Message:   *reply.Assistant,
			Outcome:   reply.Outcome,
		})
	}

	if err != nil {
		err = basalterr.With(err, basalterr.FieldSessionID(c.sessionID))
		slog.Warn("send failed", "session_id", c.sessionID, "mode", string(c.mode), "error", err)
	}
	return reply, err
}

func (c *Coordinator) streamReply(ctx context.Context, req client.Request) (Reply, error) {
	assistant := message.New(message.RoleAssistant, "")
	assistant.Metadata = &message.Metadata{Streaming: message.Ptr(true)}
	c.store.Append(assistant)
	c.setState(StateStreaming)

	stream, err := c.streamer.Start(ctx, req)
	if err != nil {
		if cancelled(ctx) {
			return c.settleStream(assistant, OutcomeCancelled, nil), nil
		}
		return c.failStream(assistant, err)
	}
	defer func() { _ = stream.Close() }()

	var buf strings.Builder
	index := 0
	for stream.Next() {
		fragment := stream.Fragment()
		buf.WriteString(fragment)
		c.store.Update(assistant.ID, message.Patch{Content: message.Ptr(buf.String())})
		if c.hooks != nil && c.hooks.OnFragment != nil {
			c.hooks.OnFragment(index, fragment)
		}
		index++
	}
	assistant.Content = buf.String()

	switch stream.State() {
	case client.StreamCompleted:
		return c.settleStream(assistant, OutcomeCompleted, nil), nil
	case client.StreamCancelled:
		slog.Debug("stream cancelled", "session_id", c.sessionID, "fragments", index)
		return c.settleStream(assistant, OutcomeCancelled, nil), nil
	default:
		err := stream.Err()
		if err == nil {
			err = basalterr.New(basalterr.CodeClientStreamInterrupted, "stream ended unexpectedly")
		}
		return c.failStream(assistant, err)
	}
}

// settleStream clears the streaming flag, optionally marking an error.
func (c *Coordinator) settleStream(assistant message.Message, outcome Outcome, errFlag *bool) Reply {
	patch := message.Patch{Metadata: &message.Metadata{Streaming: message.Ptr(false), Error: errFlag}}
	if outcome == OutcomeFailed {
		patch.Content = message.Ptr(assistant.Content)
	}
	c.store.Update(assistant.ID, patch)

	settled, ok := c.store.Get(assistant.ID)
	if !ok {
		// Cleared or evicted while streaming; report what we know.
		settled = assistant.Clone()
		if settled.Metadata == nil {
			settled.Metadata = &message.Metadata{}
		}
		settled.Metadata.Merge(patch.Metadata)
	}
	return Reply{Outcome: outcome, Assistant: &settled}
}

func (c *Coordinator) failStream(assistant message.Message, err error) (Reply, error) {
	assistant.Content = streamErrorPrefix + err.Error()
	return c.settleStream(assistant, OutcomeFailed, message.Ptr(true)), err
}

func (c *Coordinator) requestReply(ctx context.Context, req client.Request) (Reply, error) {
	c.setState(StateNonStreaming)

	resp, err := c.responder.Send(ctx, req)
	if err != nil {
		if cancelled(ctx) {
			return Reply{Outcome: OutcomeCancelled}, nil
		}
		failed := message.New(message.RoleAssistant, requestErrorPrefix+err.Error())
		failed.Metadata = &message.Metadata{Error: message.Ptr(true)}
		c.store.Append(failed)
		return Reply{Outcome: OutcomeFailed, Assistant: &failed}, err
	}

	assistant := message.Message{
		ID:        uuid.NewString(),
		Content:   resp.Content,
		Role:      message.RoleAssistant,
		Timestamp: resp.Timestamp,
		Metadata:  resp.Metadata.Clone(),
	}
	if assistant.Timestamp.IsZero() {
		assistant.Timestamp = time.Now().UTC()
	}
	c.store.Append(assistant)
	return Reply{Outcome: OutcomeCompleted, Assistant: &assistant}, nil
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

func (c *Coordinator) finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateIdle
	c.cancel = nil
}

func cancelled(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.Canceled)
}
