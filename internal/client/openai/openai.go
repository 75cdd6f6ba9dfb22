// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Basalt Contributors

// Package openai answers chat requests directly against an OpenAI-compatible
// chat completions endpoint, bypassing the gateway.
package openai

import (
	"context"
	"errors"
	"io"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/openai/openai-go/shared"

	"github.com/basalt-chat/basalt/internal/client"
	"github.com/basalt-chat/basalt/internal/message"
	basalterr "github.com/basalt-chat/basalt/pkg/errors"
)

const (
	DefaultModel        = "gpt-4.1-mini"
	DefaultSystemPrompt = "You are a helpful assistant."
	DefaultMaxTokens    = 512
	DefaultTopP         = 1.0
)

// Config holds direct OpenAI transport configuration.
type Config struct {
	APIKey       string
	BaseURL      string // optional, useful for testing against a mock server
	Model        string
	SystemPrompt string
	MaxTokens    int
	Temperature  float64 // sent as given, including zero
	TopP         float64 // DefaultTopP when zero or negative
}

// Client implements client.ResponseClient and client.StreamClient using the
// Chat Completions API. Each request is answered as a single turn.
type Client struct {
	sdk    openaisdk.Client
	config Config
}

var _ client.Transport = (*Client)(nil)

// New creates a direct client. Returns an error if the API key is missing.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, basalterr.New(basalterr.CodeClientProviderKeyMissing, "openai: missing api_key in config")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.TopP <= 0 {
		cfg.TopP = DefaultTopP
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Client{sdk: openaisdk.NewClient(opts...), config: cfg}, nil
}

func (c *Client) Model() string { return c.config.Model }

// Send requests a full completion.
func (c *Client) Send(ctx context.Context, req client.Request) (*client.Response, error) {
	completion, err := c.sdk.Chat.Completions.New(ctx, c.buildParams(req))
	if err != nil {
		return nil, upstreamError(err, "requesting completion")
	}
	if len(completion.Choices) == 0 {
		return nil, basalterr.New(basalterr.CodeClientTransportFailure, "openai: completion has no choices")
	}

	tokens := int(completion.Usage.CompletionTokens)
	model := completion.Model
	if model == "" {
		model = c.config.Model
	}

	ts := time.Now().UTC()
	if completion.Created > 0 {
		ts = time.Unix(completion.Created, 0).UTC()
	}

	return &client.Response{
		ID:        completion.ID,
		Content:   completion.Choices[0].Message.Content,
		Role:      message.RoleAssistant,
		Timestamp: ts,
		Metadata: &message.Metadata{
			Tokens: &tokens,
			Model:  &model,
		},
	}, nil
}

// Start opens a streaming completion. The SDK sends the request before
// returning, so establishment failures are reported here.
func (c *Client) Start(ctx context.Context, req client.Request) (*client.Stream, error) {
	reqCtx, cancel := context.WithCancel(ctx)
	sdkStream := c.sdk.Chat.Completions.NewStreaming(reqCtx, c.buildParams(req))
	if err := sdkStream.Err(); err != nil {
		cancel()
		return nil, upstreamError(err, "opening completion stream")
	}

	return client.NewStream(ctx, &chunkSource{stream: sdkStream, cancel: cancel}), nil
}

func (c *Client) buildParams(req client.Request) openaisdk.ChatCompletionNewParams {
	params := openaisdk.ChatCompletionNewParams{
		Model: shared.ChatModel(c.config.Model),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(c.config.SystemPrompt),
			openaisdk.UserMessage(req.Content),
		},
		MaxCompletionTokens: param.NewOpt(int64(c.config.MaxTokens)),
		Temperature:         param.NewOpt(c.config.Temperature),
		TopP:                param.NewOpt(c.config.TopP),
	}
	if req.SessionID != "" {
		params.User = param.NewOpt(req.SessionID)
	}
	return params
}

// chunkSource turns completion chunks into text fragments.
type chunkSource struct {
	stream *ssestream.Stream[openaisdk.ChatCompletionChunk]
	cancel context.CancelFunc
}

func (s *chunkSource) Recv(ctx context.Context) (string, error) {
	// Abort the in-flight body read when the stream is cancelled.
	stop := context.AfterFunc(ctx, s.cancel)
	defer stop()

	for s.stream.Next() {
		chunk := s.stream.Current()
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				return choice.Delta.Content, nil
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := s.stream.Err(); err != nil {
		var apiErr *openaisdk.Error
		if errors.As(err, &apiErr) {
			return "", upstreamError(err, "reading completion stream")
		}
		return "", basalterr.Wrap(err, basalterr.CodeClientStreamInterrupted, "reading completion stream")
	}
	return "", io.EOF
}

func (s *chunkSource) Close() error {
	s.cancel()
	return s.stream.Close()
}

func upstreamError(err error, op string) error {
	var apiErr *openaisdk.Error
	if errors.As(err, &apiErr) {
		return basalterr.Wrap(err, basalterr.CodeClientTransportFailure, "openai: "+op,
			basalterr.FieldStatus(apiErr.StatusCode))
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return basalterr.Wrap(err, basalterr.CodeClientTransportTimeout, "openai: "+op)
	}
	return basalterr.Wrap(err, basalterr.CodeClientTransportFailure, "openai: "+op)
}
