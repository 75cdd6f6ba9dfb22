// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Basalt Contributors

package chat_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/basalt-chat/basalt/internal/chat"
	"github.com/basalt-chat/basalt/internal/client"
	"github.com/basalt-chat/basalt/internal/client/clienttest"
	"github.com/basalt-chat/basalt/internal/message"
	basalterr "github.com/basalt-chat/basalt/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RequiresClientForMode(t *testing.T) {
	_, err := chat.New(chat.Config{Mode: chat.ModeStreaming})
	require.Error(t, err)
	assert.True(t, basalterr.IsInvalidInput(err))

	_, err = chat.New(chat.Config{Mode: chat.ModeRequest})
	require.Error(t, err)

	_, err = chat.New(chat.Config{Mode: "carrier-pigeon", Streamer: &fakeStreamer{}})
	require.Error(t, err)
}

func TestNew_SessionID(t *testing.T) {
	a := newStreamingCoordinator(t, &fakeStreamer{})
	b := newStreamingCoordinator(t, &fakeStreamer{})
	assert.NotEmpty(t, a.SessionID())
	assert.NotEqual(t, a.SessionID(), b.SessionID())

	resumed := newStreamingCoordinator(t, &fakeStreamer{}, func(c *chat.Config) { c.SessionID = "sess-fixed" })
	assert.Equal(t, "sess-fixed", resumed.SessionID())
	assert.Equal(t, chat.ModeStreaming, resumed.Mode())
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]chat.Mode{"": chat.ModeStreaming, "streaming": chat.ModeStreaming, "Request": chat.ModeRequest} {
		got, err := chat.ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := chat.ParseMode("batch")
	assert.Error(t, err)
}

func TestSend_StreamingHelloWorld(t *testing.T) {
	streamer := &fakeStreamer{fragments: []string{"Hello", " ", "world"}}
	rec := &recorder{}
	c := newStreamingCoordinator(t, streamer, func(cfg *chat.Config) { cfg.Observers = []chat.Observer{rec.observe} })

	reply, err := c.Send(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, chat.OutcomeCompleted, reply.Outcome)

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, message.RoleUser, msgs[0].Role)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.Equal(t, message.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Hello world", msgs[1].Content)
	require.NotNil(t, msgs[1].Metadata)
	assert.False(t, msgs[1].Metadata.IsStreaming())
	assert.False(t, msgs[1].Metadata.IsError())

	require.NotNil(t, reply.Assistant)
	assert.Equal(t, msgs[1].ID, reply.Assistant.ID)
	assert.Equal(t, msgs[0].ID, reply.User.ID)
	assert.Equal(t, chat.StateIdle, c.State())

	reqs := streamer.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, client.Request{Content: "hi", SessionID: c.SessionID()}, reqs[0])

	events := rec.Events()
	require.Len(t, events, 2)
	assert.Equal(t, chat.EventMessageSent, events[0].Kind)
	assert.Equal(t, "hi", events[0].Message.Content)
	assert.Equal(t, chat.EventResponseReceived, events[1].Kind)
	assert.Equal(t, "Hello world", events[1].Message.Content)
	assert.Equal(t, chat.OutcomeCompleted, events[1].Outcome)
	assert.Equal(t, c.SessionID(), events[1].SessionID)
}

func TestSend_StreamingContentGrowsPerFragment(t *testing.T) {
	var seen []string
	var c *chat.Coordinator
	c = newStreamingCoordinator(t, &fakeStreamer{fragments: []string{"a", "b", "c"}}, func(cfg *chat.Config) {
		cfg.Hooks = &chat.Hooks{OnFragment: func(int, string) {
			msgs := c.Messages()
			last := msgs[len(msgs)-1]
			assert.True(t, last.Metadata.IsStreaming(), "flag stays set while streaming")
			seen = append(seen, last.Content)
			assert.Equal(t, chat.StateStreaming, c.State())
		}}
	})

	_, err := c.Send(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "ab", "abc"}, seen)
}

func TestSend_StopAfterTwoOfFiveFragments(t *testing.T) {
	var c *chat.Coordinator
	c = newStreamingCoordinator(t, &fakeStreamer{fragments: []string{"A", "B", "C", "D", "E"}}, func(cfg *chat.Config) {
		cfg.Hooks = &chat.Hooks{OnFragment: func(index int, _ string) {
			if index == 1 {
				c.Stop()
			}
		}}
	})

	reply, err := c.Send(context.Background(), "count")
	require.NoError(t, err, "cancellation is not an error")
	assert.Equal(t, chat.OutcomeCancelled, reply.Outcome)

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "AB", msgs[1].Content)
	assert.False(t, msgs[1].Metadata.IsStreaming())
	assert.False(t, msgs[1].Metadata.IsError())
	assert.Nil(t, msgs[1].Metadata.Error, "cancellation does not set the error flag")
	assert.Equal(t, chat.StateIdle, c.State())
}

func TestSend_ConcurrentSendRejected(t *testing.T) {
	hold := make(chan struct{})
	c := newStreamingCoordinator(t, &fakeStreamer{fragments: []string{"partial"}, hold: hold})

	done := make(chan error, 1)
	go func() {
		_, err := c.Send(context.Background(), "first")
		done <- err
	}()

	require.Eventually(t, func() bool { return c.State() == chat.StateStreaming }, time.Second, time.Millisecond)
	before := c.Messages()

	_, err := c.Send(context.Background(), "second")
	require.Error(t, err)
	assert.True(t, basalterr.IsConcurrentSend(err))
	assert.True(t, basalterr.IsConflict(err))
	assert.Len(t, c.Messages(), len(before), "rejected send must not touch the transcript")

	close(hold)
	require.NoError(t, <-done)

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "partial", msgs[1].Content)
}

func TestSend_OnlyOneOfManyConcurrentSendsRuns(t *testing.T) {
	hold := make(chan struct{})
	c := newStreamingCoordinator(t, &fakeStreamer{hold: hold})

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Send(context.Background(), "x")
			errs <- err
		}()
	}

	require.Eventually(t, func() bool { return len(errs) == n-1 }, time.Second, time.Millisecond)
	close(hold)
	wg.Wait()
	close(errs)

	var conflicts, ok int
	for err := range errs {
		if err == nil {
			ok++
		} else if basalterr.IsConcurrentSend(err) {
			conflicts++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, conflicts)
	assert.Len(t, c.Messages(), 2)
}

func TestSend_StreamErrorMidway(t *testing.T) {
	streamErr := basalterr.New(basalterr.CodeClientStreamInterrupted, "connection reset")
	c := newStreamingCoordinator(t, &fakeStreamer{fragments: []string{"par", "tial"}, end: streamErr})

	reply, err := c.Send(context.Background(), "hi")
	require.Error(t, err)
	assert.True(t, basalterr.IsStreamInterrupted(err))
	assert.Equal(t, chat.OutcomeFailed, reply.Outcome)

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "Error: "+err.Error(), msgs[1].Content)
	assert.True(t, msgs[1].Metadata.IsError())
	assert.False(t, msgs[1].Metadata.IsStreaming())
	assert.Equal(t, chat.StateIdle, c.State())
}

func TestSend_StreamStartFailure(t *testing.T) {
	startErr := basalterr.New(basalterr.CodeClientTransportFailure, "gateway returned status 502", basalterr.FieldStatus(http.StatusBadGateway))
	c := newStreamingCoordinator(t, &fakeStreamer{startErr: startErr})

	reply, err := c.Send(context.Background(), "hi")
	require.Error(t, err)
	assert.True(t, basalterr.IsTransport(err))
	assert.Equal(t, chat.OutcomeFailed, reply.Outcome)

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.True(t, strings.HasPrefix(msgs[1].Content, "Error: "))
	assert.True(t, msgs[1].Metadata.IsError())
	assert.False(t, msgs[1].Metadata.IsStreaming())
}

func TestSend_StopWhileConnecting(t *testing.T) {
	c := newStreamingCoordinator(t, &fakeStreamer{blockStart: true})

	done := make(chan chat.Reply, 1)
	go func() {
		reply, err := c.Send(context.Background(), "hi")
		assert.NoError(t, err)
		done <- reply
	}()

	require.Eventually(t, func() bool { return c.State() == chat.StateStreaming }, time.Second, time.Millisecond)
	c.Stop()

	reply := <-done
	assert.Equal(t, chat.OutcomeCancelled, reply.Outcome)
	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Empty(t, msgs[1].Content)
	assert.False(t, msgs[1].Metadata.IsStreaming())
	assert.False(t, msgs[1].Metadata.IsError())
}

func TestSend_ValidationFailureAppendsNothing(t *testing.T) {
	streamer := &fakeStreamer{fragments: []string{"never"}}
	c := newStreamingCoordinator(t, streamer, func(cfg *chat.Config) { cfg.Validator = chat.LengthValidator(5) })

	for _, content := range []string{"", "   ", "too long by far"} {
		_, err := c.Send(context.Background(), content)
		require.Error(t, err, "%q", content)
		assert.True(t, basalterr.IsValidation(err))
		assert.True(t, basalterr.IsInvalidInput(err))
	}

	assert.Empty(t, c.Messages())
	assert.Empty(t, streamer.Requests(), "no network attempt after validation failure")
	assert.Equal(t, chat.StateIdle, c.State())

	_, err := c.Send(context.Background(), "ok")
	assert.NoError(t, err)
}

func TestSend_RequestModeSuccess(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tokens := 3
	resp := &client.Response{
		ID:        "srv-1",
		Content:   "Echo: hi",
		Role:      message.RoleAssistant,
		Timestamp: ts,
		Metadata:  &message.Metadata{Tokens: &tokens, Model: message.Ptr("echo")},
	}
	rec := &recorder{}
	c := newRequestCoordinator(t, &fakeResponder{resp: resp}, func(cfg *chat.Config) { cfg.Observers = []chat.Observer{rec.observe} })

	reply, err := c.Send(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, chat.OutcomeCompleted, reply.Outcome)

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "Echo: hi", msgs[1].Content)
	assert.Equal(t, ts, msgs[1].Timestamp)
	assert.Equal(t, 3, *msgs[1].Metadata.Tokens)
	assert.Equal(t, "echo", *msgs[1].Metadata.Model)
	assert.NotEqual(t, msgs[0].ID, msgs[1].ID)

	*resp.Metadata.Tokens = 99
	assert.Equal(t, 3, *c.Messages()[1].Metadata.Tokens, "response metadata is copied")

	events := rec.Events()
	require.Len(t, events, 2)
	assert.Equal(t, chat.EventResponseReceived, events[1].Kind)
}

func TestSend_RequestModeFailureProducesTwoMessages(t *testing.T) {
	sendErr := basalterr.New(basalterr.CodeClientTransportFailure, "gateway returned status 500", basalterr.FieldStatus(500))
	c := newRequestCoordinator(t, &fakeResponder{err: sendErr})

	reply, err := c.Send(context.Background(), "hi")
	require.Error(t, err)
	assert.True(t, basalterr.IsTransport(err))
	assert.Equal(t, chat.OutcomeFailed, reply.Outcome)

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.Equal(t, "Sorry, I encountered an error: "+sendErr.Error(), msgs[1].Content)
	assert.Equal(t, c.SessionID(), basalterr.FieldsOf(err)["session_id"])
	status, ok := basalterr.StatusOf(err)
	require.True(t, ok)
	assert.Equal(t, 500, status)
	assert.True(t, msgs[1].Metadata.IsError())
	assert.Equal(t, chat.StateIdle, c.State())
}

func TestSend_RequestModeCancelled(t *testing.T) {
	c := newRequestCoordinator(t, &fakeResponder{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reply, err := c.Send(ctx, "hi")
	require.NoError(t, err)
	assert.Equal(t, chat.OutcomeCancelled, reply.Outcome)
	assert.Nil(t, reply.Assistant)
	assert.Len(t, c.Messages(), 1)
}

func TestSend_RequestModeCancelledInFlight(t *testing.T) {
	responder := &blockingResponder{started: make(chan struct{})}
	rec := &recorder{}
	c := newRequestCoordinator(t, responder, func(cfg *chat.Config) { cfg.Observers = []chat.Observer{rec.observe} })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-responder.started
		cancel()
	}()

	reply, err := c.Send(ctx, "hi")
	require.NoError(t, err)
	assert.Equal(t, chat.OutcomeCancelled, reply.Outcome)
	assert.Nil(t, reply.Assistant)

	msgs := c.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Content)

	for _, ev := range rec.Events() {
		assert.NotEqual(t, chat.EventResponseReceived, ev.Kind)
	}
	assert.Equal(t, chat.StateIdle, c.State())
}

func TestStop_IdleIsNoOp(t *testing.T) {
	c := newStreamingCoordinator(t, &fakeStreamer{fragments: []string{"x"}})
	c.Stop()
	assert.Equal(t, chat.StateIdle, c.State())

	reply, err := c.Send(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, chat.OutcomeCompleted, reply.Outcome)
}

func TestClear_IsIdempotent(t *testing.T) {
	c := newStreamingCoordinator(t, &fakeStreamer{fragments: []string{"x"}})
	_, err := c.Send(context.Background(), "hi")
	require.NoError(t, err)

	c.Clear()
	assert.Empty(t, c.Messages())
	c.Clear()
	assert.Empty(t, c.Messages())
}

func TestClear_DuringStreamDropsLaterUpdates(t *testing.T) {
	var c *chat.Coordinator
	c = newStreamingCoordinator(t, &fakeStreamer{fragments: []string{"a", "b", "c"}}, func(cfg *chat.Config) {
		cfg.Hooks = &chat.Hooks{OnFragment: func(index int, _ string) {
			if index == 0 {
				c.Clear()
			}
		}}
	})

	reply, err := c.Send(context.Background(), "hi")
	require.NoError(t, err)
	assert.Empty(t, c.Messages())
	require.NotNil(t, reply.Assistant)
	assert.Equal(t, "abc", reply.Assistant.Content)
	assert.False(t, reply.Assistant.Metadata.IsStreaming())
}

func TestSend_EvictsOldestMessages(t *testing.T) {
	c := newStreamingCoordinator(t, &fakeStreamer{fragments: []string{"ok"}}, func(cfg *chat.Config) { cfg.MaxMessages = 3 })

	for _, content := range []string{"one", "two", "three"} {
		_, err := c.Send(context.Background(), content)
		require.NoError(t, err)
	}

	msgs := c.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"ok", "three", "ok"}, []string{msgs[0].Content, msgs[1].Content, msgs[2].Content})
}

func TestObserver_PanicDoesNotBreakSend(t *testing.T) {
	rec := &recorder{}
	c := newStreamingCoordinator(t, &fakeStreamer{fragments: []string{"fine"}}, func(cfg *chat.Config) {
		cfg.Observers = []chat.Observer{
			func(chat.Event) { panic("observer bug") },
			rec.observe,
		}
	})

	reply, err := c.Send(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, chat.OutcomeCompleted, reply.Outcome)
	assert.Len(t, rec.Events(), 2, "later observers still run")
}

func TestObserver_ReceivesCopies(t *testing.T) {
	c := newStreamingCoordinator(t, &fakeStreamer{fragments: []string{"orig"}})
	c.Subscribe(func(ev chat.Event) {
		ev.Message.Content = "tampered"
		if ev.Message.Metadata != nil {
			ev.Message.Metadata.Error = message.Ptr(true)
		}
	})
	c.Subscribe(nil)

	_, err := c.Send(context.Background(), "hi")
	require.NoError(t, err)

	msgs := c.Messages()
	assert.Equal(t, "hi", msgs[0].Content)
	assert.Equal(t, "orig", msgs[1].Content)
	assert.False(t, msgs[1].Metadata.IsError())
}

func TestSend_OverHTTPGatewayWithStop(t *testing.T) {
	gw := clienttest.New(t)
	gw.SetStream(clienttest.StreamScript{
		Events:    clienttest.Fragments("A", "B", "C", "D", "E"),
		HoldAfter: 2,
	})
	httpClient, err := client.NewHTTPClient(client.HTTPConfig{BaseURL: gw.BaseURL(), Timeout: time.Second})
	require.NoError(t, err)

	var c *chat.Coordinator
	c = newStreamingCoordinator(t, httpClient, func(cfg *chat.Config) {
		cfg.Hooks = &chat.Hooks{OnFragment: func(index int, _ string) {
			if index == 1 {
				go func() {
					time.Sleep(10 * time.Millisecond)
					c.Stop()
				}()
			}
		}}
	})

	reply, err := c.Send(context.Background(), "count")
	require.NoError(t, err)
	assert.Equal(t, chat.OutcomeCancelled, reply.Outcome)
	assert.Equal(t, "AB", c.Messages()[1].Content)
}

func TestSend_OverHTTPGatewayRequestMode(t *testing.T) {
	gw := clienttest.New(t)
	httpClient, err := client.NewHTTPClient(client.HTTPConfig{BaseURL: gw.BaseURL(), Timeout: time.Second})
	require.NoError(t, err)
	c := newRequestCoordinator(t, httpClient)

	_, err = c.Send(context.Background(), "ping")
	require.NoError(t, err)
	assert.Equal(t, "Echo: ping", c.Messages()[1].Content)

	gw.SetReply(func(client.Request) (client.Response, int) { return client.Response{}, http.StatusBadGateway })
	_, err = c.Send(context.Background(), "ping")
	require.Error(t, err)
	status, ok := basalterr.StatusOf(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Len(t, c.Messages(), 4)
}

func TestLengthValidator(t *testing.T) {
	v := chat.LengthValidator(3)
	assert.NoError(t, v("abc"))
	assert.NoError(t, v("äöü"), "length counts characters, not bytes")
	assert.Error(t, v("abcd"))
	assert.Error(t, v(" \t\n"))
	assert.NoError(t, chat.LengthValidator(0)(strings.Repeat("x", 10000)))
}

func TestSend_OverHTTPStreamWithUnterminatedDone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: {\"content\":\"Hel\"}\n\ndata: {\"content\":\"lo\"}\n\ndata: [DONE]\n")
	}))
	t.Cleanup(srv.Close)
	httpClient, err := client.NewHTTPClient(client.HTTPConfig{BaseURL: srv.URL, Timeout: time.Second})
	require.NoError(t, err)
	c := newStreamingCoordinator(t, httpClient)

	reply, err := c.Send(context.Background(), "greet")
	require.NoError(t, err)
	assert.Equal(t, chat.OutcomeCompleted, reply.Outcome)
	require.NotNil(t, reply.Assistant)
	assert.Equal(t, "Hello", reply.Assistant.Content)
	assert.False(t, reply.Assistant.Metadata.IsError())
	assert.False(t, reply.Assistant.Metadata.IsStreaming())
}
