// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Basalt Contributors

// Package clienttest provides a scriptable fake gateway for tests.
package clienttest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/basalt-chat/basalt/internal/client"
	"github.com/basalt-chat/basalt/internal/message"
)

// APIPrefix is the path the fake gateway mounts its routes under.
const APIPrefix = "/api/v1"

// StreamScript describes how the fake gateway answers a stream request.
type StreamScript struct {
	// Status, when non-zero and not 200, is returned instead of a stream.
	Status int
	// Events are raw data payloads, each written as one `data:` event.
	Events []string
	// HoldAfter pauses the stream once that many events were written, until
	// the client disconnects or Release is called. Zero disables holding.
	HoldAfter int
}

// Fragments builds stream events for the given fragments followed by the
// done marker.
func Fragments(fragments ...string) []string {
	events := make([]string, 0, len(fragments)+1)
	for _, f := range fragments {
		raw, _ := json.Marshal(map[string]string{"content": f})
		events = append(events, string(raw))
	}
	return append(events, "[DONE]")
}

// ReplyFunc computes the answer for a messages request. A non-200 status is
// returned as an error response with the reply ignored.
type ReplyFunc func(req client.Request) (client.Response, int)

// EchoReply answers with "Echo: <content>".
func EchoReply(req client.Request) (client.Response, int) {
	return client.Response{
		ID:        uuid.NewString(),
		Content:   "Echo: " + req.Content,
		Role:      message.RoleAssistant,
		Timestamp: time.Now().UTC(),
	}, http.StatusOK
}

// Recorded is a request the fake gateway received.
type Recorded struct {
	Path          string
	Authorization string
	Body          client.Request
}

// Gateway is an httptest server speaking the gateway wire protocol.
type Gateway struct {
	server  *httptest.Server
	release chan struct{}

	mu           sync.Mutex
	reply        ReplyFunc
	stream       StreamScript
	healthStatus int
	requests     []Recorded
}

// New starts a fake gateway that echoes messages and streams nothing until
// scripted. It is closed when the test ends.
func New(t testing.TB) *Gateway {
	t.Helper()

	g := &Gateway{
		release:      make(chan struct{}),
		reply:        EchoReply,
		stream:       StreamScript{Events: Fragments()},
		healthStatus: http.StatusOK,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Route(APIPrefix, func(r chi.Router) {
		r.Get("/health", g.handleHealth)
		r.Post("/messages", g.handleMessages)
		r.Post("/stream", g.handleStream)
	})

	g.server = httptest.NewServer(r)
	t.Cleanup(func() {
		g.Release()
		g.server.Close()
	})
	return g
}

// BaseURL returns the URL clients should be configured with.
func (g *Gateway) BaseURL() string {
	return g.server.URL + APIPrefix
}

func (g *Gateway) SetReply(fn ReplyFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reply = fn
}

func (g *Gateway) SetStream(script StreamScript) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stream = script
}

func (g *Gateway) SetHealthStatus(status int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.healthStatus = status
}

// Release unblocks every held stream. It is safe to call more than once.
func (g *Gateway) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	select {
	case <-g.release:
	default:
		close(g.release)
	}
}

// Requests returns the requests received so far.
func (g *Gateway) Requests() []Recorded {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Recorded(nil), g.requests...)
}

func (g *Gateway) record(r *http.Request) (client.Request, bool) {
	var body client.Request
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return body, false
	}
	g.mu.Lock()
	g.requests = append(g.requests, Recorded{
		Path:          r.URL.Path,
		Authorization: r.Header.Get("Authorization"),
		Body:          body,
	})
	g.mu.Unlock()
	return body, true
}

func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	g.mu.Lock()
	status := g.healthStatus
	g.mu.Unlock()

	if status != http.StatusOK {
		http.Error(w, `{"error":"unhealthy"}`, status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

func (g *Gateway) handleMessages(w http.ResponseWriter, r *http.Request) {
	req, ok := g.record(r)
	if !ok {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}

	g.mu.Lock()
	reply := g.reply
	g.mu.Unlock()

	resp, status := reply(req)
	if status != http.StatusOK {
		http.Error(w, `{"error":"scripted failure"}`, status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (g *Gateway) handleStream(w http.ResponseWriter, r *http.Request) {
	if _, ok := g.record(r); !ok {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}

	g.mu.Lock()
	script := g.stream
	g.mu.Unlock()

	if script.Status != 0 && script.Status != http.StatusOK {
		http.Error(w, `{"error":"scripted failure"}`, script.Status)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	for i, event := range script.Events {
		if script.HoldAfter > 0 && i == script.HoldAfter {
			select {
			case <-r.Context().Done():
				return
			case <-g.release:
			}
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", event); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}
