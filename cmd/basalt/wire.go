// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Basalt Contributors

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/basalt-chat/basalt/internal/chat"
	"github.com/basalt-chat/basalt/internal/client"
	"github.com/basalt-chat/basalt/internal/client/openai"
	"github.com/basalt-chat/basalt/internal/config"
	"github.com/basalt-chat/basalt/internal/events"
	"github.com/basalt-chat/basalt/internal/transcript"
	basalterr "github.com/basalt-chat/basalt/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// buildTransport creates the client selected by gateway.transport.
func buildTransport(cfg *config.Config) (client.Transport, error) {
	switch cfg.Gateway.Transport {
	case config.TransportHTTP:
		return client.NewHTTPClient(client.HTTPConfig{
			BaseURL: cfg.Gateway.BaseURL,
			APIKey:  cfg.Gateway.APIKey,
			Timeout: cfg.Gateway.Timeout,
		})
	case config.TransportMock:
		return client.NewMockClient(cfg.Gateway.MockDelay), nil
	case config.TransportOpenAI:
		return openai.New(openai.Config{
			APIKey:       cfg.OpenAI.APIKey,
			BaseURL:      cfg.OpenAI.BaseURL,
			Model:        cfg.OpenAI.Model,
			SystemPrompt: cfg.OpenAI.SystemPrompt,
			MaxTokens:    cfg.OpenAI.MaxTokens,
			Temperature:  cfg.OpenAI.Temperature,
			TopP:         cfg.OpenAI.TopP,
		})
	default:
		return nil, basalterr.New(basalterr.CodeClientTransportUnknown,
			fmt.Sprintf("unknown transport %q", cfg.Gateway.Transport),
			basalterr.FieldTransport(cfg.Gateway.Transport))
	}
}

// session bundles a coordinator with the optional transcript archive and
// event bus observing it.
type session struct {
	coord   *chat.Coordinator
	archive *transcript.Archive
	bus     *events.Bus

	stopConsumer context.CancelFunc
	consumers    *errgroup.Group
}

type sessionOptions struct {
	sessionID string
	hooks     *chat.Hooks
}

// openSession wires transport, validator, transcript and events into a
// coordinator according to cfg.
func openSession(ctx context.Context, cfg *config.Config, opts sessionOptions) (*session, error) {
	transport, err := buildTransport(cfg)
	if err != nil {
		return nil, err
	}

	mode, err := chat.ParseMode(cfg.Session.Mode)
	if err != nil {
		return nil, err
	}

	s := &session{}
	var observers []chat.Observer

	if cfg.Transcript.Path != "" {
		archive, err := transcript.Open(cfg.Transcript.Path)
		if err != nil {
			return nil, err
		}
		s.archive = archive
		observers = append(observers, archive.Observer())
	}

	if cfg.Events.Enabled {
		s.bus = events.NewBus(slog.Default())
		ch, err := s.bus.Subscribe(ctx)
		if err != nil {
			_ = s.Close()
			return nil, err
		}

		consumerCtx, cancel := context.WithCancel(ctx)
		s.stopConsumer = cancel
		s.consumers, consumerCtx = errgroup.WithContext(consumerCtx)
		s.consumers.Go(func() error {
			return events.Consume(consumerCtx, ch, logEvent)
		})
		observers = append(observers, s.bus.Observer())
	}

	coord, err := chat.New(chat.Config{
		Mode:        mode,
		Streamer:    transport,
		Responder:   transport,
		MaxMessages: cfg.Session.MaxMessages,
		Validator:   chat.LengthValidator(cfg.Session.MaxContentLength),
		Observers:   observers,
		SessionID:   opts.sessionID,
		Hooks:       opts.hooks,
	})
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.coord = coord

	slog.Debug("chat session ready",
		"session_id", coord.SessionID(),
		"transport", cfg.Gateway.Transport,
		"mode", string(mode),
		"transcript", cfg.Transcript.Path != "",
		"events", cfg.Events.Enabled)
	return s, nil
}

func logEvent(p events.Payload) {
	slog.Info("chat event",
		"kind", string(p.Kind),
		"session_id", p.SessionID,
		"message_id", p.MessageID,
		"role", string(p.Role),
		"outcome", p.Outcome)
}

// Close shuts down the event bus and archive.
func (s *session) Close() error {
	var errs []error
	if s.bus != nil {
		if err := s.bus.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.consumers != nil {
		s.stopConsumer()
		if err := s.consumers.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, err)
		}
	}
	if s.archive != nil {
		if err := s.archive.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
