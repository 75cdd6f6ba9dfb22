// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Basalt Contributors

package chat

import (
	"log/slog"
	"runtime/debug"

	"github.com/basalt-chat/basalt/internal/message"
)

// EventKind identifies a lifecycle event.
type EventKind string

const (
	// EventMessageSent fires after the user message is recorded.
	EventMessageSent EventKind = "message_sent"
	// EventResponseReceived fires once the assistant message has settled,
	// whatever the outcome.
	EventResponseReceived EventKind = "response_received"
)

// Event is delivered to observers. Message is a private copy.
type Event struct {
	Kind      EventKind
	SessionID string
	Message   message.Message
	Outcome   Outcome
}

// Observer receives lifecycle events synchronously, in registration order.
type Observer func(Event)

func (c *Coordinator) notify(ev Event) {
	c.mu.Lock()
	observers := append([]Observer(nil), c.observers...)
	c.mu.Unlock()

	for _, o := range observers {
		c.deliver(o, Event{
			Kind:      ev.Kind,
			SessionID: ev.SessionID,
			Message:   ev.Message.Clone(),
			Outcome:   ev.Outcome,
		})
	}
}

// deliver runs one observer, recovering a panic so it cannot break the send.
func (c *Coordinator) deliver(o Observer, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("chat observer panic recovered",
				"session_id", c.sessionID,
				"event", string(ev.Kind),
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	o(ev)
}
