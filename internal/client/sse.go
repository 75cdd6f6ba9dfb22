// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Basalt Contributors

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/openai/openai-go/packages/ssestream"

	basalterr "github.com/basalt-chat/basalt/pkg/errors"
)

// doneMarker terminates a gateway stream.
const doneMarker = "[DONE]"

type fragmentPayload struct {
	Content *string `json:"content"`
}

// sseSource reads `data: {"content": "..."}` lines from a gateway stream
// response until the done marker or the end of the body. Each data line is
// one payload, whether or not blank lines separate them.
type sseSource struct {
	decoder ssestream.Decoder
	body    io.Closer
	pending [][]byte
}

type terminatedBody struct {
	io.Reader
	io.Closer
}

func newSSESource(resp *http.Response) *sseSource {
	// The decoder only dispatches an event on a blank line, so one is
	// appended to flush a final event the server left unterminated.
	wrapped := *resp
	wrapped.Body = terminatedBody{
		Reader: io.MultiReader(resp.Body, strings.NewReader("\n\n")),
		Closer: resp.Body,
	}
	return &sseSource{
		decoder: ssestream.NewDecoder(&wrapped),
		body:    resp.Body,
	}
}

func (s *sseSource) Recv(ctx context.Context) (string, error) {
	for {
		for len(s.pending) > 0 {
			line := s.pending[0]
			s.pending = s.pending[1:]

			fragment, done, ok := parsePayload(line)
			if done {
				s.pending = nil
				return "", io.EOF
			}
			if ok {
				return fragment, nil
			}
		}

		if !s.decoder.Next() {
			break
		}
		s.pending = bytes.Split(s.decoder.Event().Data, []byte("\n"))
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := s.decoder.Err(); err != nil {
		return "", basalterr.Wrap(err, basalterr.CodeClientStreamInterrupted, "reading stream")
	}
	slog.Debug("stream closed without done marker")
	return "", io.EOF
}

// parsePayload interprets one data line. Blank and malformed lines report
// ok=false and are skipped.
func parsePayload(line []byte) (fragment string, done, ok bool) {
	data := bytes.TrimSpace(line)
	if len(data) == 0 {
		return "", false, false
	}
	if string(data) == doneMarker {
		return "", true, false
	}

	var payload fragmentPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.Content == nil {
		slog.Debug("skipping malformed stream fragment", "data", string(data), "error", err)
		return "", false, false
	}
	return *payload.Content, false, true
}

func (s *sseSource) Close() error {
	return s.body.Close()
}
