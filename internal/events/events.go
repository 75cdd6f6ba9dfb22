// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Basalt Contributors

// Package events publishes chat lifecycle events on a watermill bus.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmessage "github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/basalt-chat/basalt/internal/chat"
	"github.com/basalt-chat/basalt/internal/message"
	basalterr "github.com/basalt-chat/basalt/pkg/errors"
)

// Topic carries every chat lifecycle event.
const Topic = "basalt.chat"

// Payload is the JSON body of a published event.
type Payload struct {
	Kind      chat.EventKind `json:"kind"`
	SessionID string         `json:"session_id"`
	MessageID string         `json:"message_id"`
	Role      message.Role   `json:"role"`
	Content   string         `json:"content"`
	Outcome   string         `json:"outcome,omitempty"`
	Error     bool           `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// FromEvent converts a chat event into its published form.
func FromEvent(ev chat.Event) Payload {
	p := Payload{
		Kind:      ev.Kind,
		SessionID: ev.SessionID,
		MessageID: ev.Message.ID,
		Role:      ev.Message.Role,
		Content:   ev.Message.Content,
		Error:     ev.Message.Metadata.IsError(),
		Timestamp: ev.Message.Timestamp,
	}
	if ev.Kind == chat.EventResponseReceived {
		p.Outcome = ev.Outcome.String()
	}
	return p
}

// Decode reads a Payload from a watermill message.
func Decode(msg *wmessage.Message) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return Payload{}, basalterr.Wrapf(err, basalterr.CodeEventsPublishFailure, "decoding event %s", msg.UUID)
	}
	return p, nil
}

// Observer returns a chat observer publishing each event to topic.
// Publish failures are logged; they never affect the send.
func Observer(pub wmessage.Publisher, topic string) chat.Observer {
	return func(ev chat.Event) {
		payload, err := json.Marshal(FromEvent(ev))
		if err != nil {
			slog.Warn("encoding chat event", "session_id", ev.SessionID, "error", err)
			return
		}

		msg := wmessage.NewMessage(watermill.NewUUID(), payload)
		msg.Metadata.Set("kind", string(ev.Kind))
		msg.Metadata.Set("session_id", ev.SessionID)

		if err := pub.Publish(topic, msg); err != nil {
			slog.Warn("publishing chat event",
				"session_id", ev.SessionID,
				"kind", string(ev.Kind),
				"error", basalterr.Wrap(err, basalterr.CodeEventsPublishFailure, "publish failed"))
		}
	}
}

// Bus is an in-process publisher and subscriber.
type Bus struct {
	pubsub *gochannel.GoChannel
}

// NewBus creates an in-process bus. Events published before anyone
// subscribes are dropped. Publish waits for subscribers to ack, which keeps
// events in order.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 64, BlockPublishUntilSubscriberAck: true},
			watermill.NewSlogLogger(logger),
		),
	}
}

func (b *Bus) Publisher() wmessage.Publisher { return b.pubsub }

// Observer publishes chat events on the bus under Topic.
func (b *Bus) Observer() chat.Observer { return Observer(b.pubsub, Topic) }

// Subscribe returns the channel of messages published to Topic. It is
// closed when ctx ends or the bus closes.
func (b *Bus) Subscribe(ctx context.Context) (<-chan *wmessage.Message, error) {
	ch, err := b.pubsub.Subscribe(ctx, Topic)
	if err != nil {
		return nil, basalterr.Wrapf(err, basalterr.CodeEventsPublishFailure, "subscribing to %s", Topic)
	}
	return ch, nil
}

func (b *Bus) Close() error {
	return b.pubsub.Close()
}

// Consume acks and decodes every message from ch and hands it to handle
// until ch closes or ctx ends. Undecodable messages are logged and skipped.
func Consume(ctx context.Context, ch <-chan *wmessage.Message, handle func(Payload)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			p, err := Decode(msg)
			msg.Ack()
			if err != nil {
				slog.Warn("skipping chat event", "error", err)
				continue
			}
			handle(p)
		}
	}
}
