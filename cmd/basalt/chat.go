// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Basalt Contributors

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/basalt-chat/basalt/internal/chat"
	basalterr "github.com/basalt-chat/basalt/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// interruptContext returns a context cancelled on Ctrl-C. Tests replace it
// to simulate an interrupt.
var interruptContext = func(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt)
}

func (c *cli) newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Chat with the assistant",
		Long: "Send a message and print the reply. Starts an interactive session if no message is provided.\n" +
			"Interactive commands: /clear, /stop, /quit. Ctrl-C stops a reply in progress.",
		RunE: c.runChat,
	}

	cmd.Flags().StringP("session", "s", "", "session id to continue (used for transcripts)")

	return cmd
}

func (c *cli) runChat(cmd *cobra.Command, args []string) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	sessionID, _ := cmd.Flags().GetString("session")

	out := cmd.OutOrStdout()
	r := &renderer{out: out}

	sess, err := openSession(cmd.Context(), cfg, sessionOptions{
		sessionID: sessionID,
		hooks:     &chat.Hooks{OnFragment: r.fragment},
	})
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()

	if len(args) > 0 {
		_, err := sendInterruptible(cmd.Context(), sess.coord, strings.Join(args, " "), r)
		return err
	}
	return repl(cmd.Context(), sess.coord, cmd.InOrStdin(), r)
}

// renderer prints streamed fragments as they arrive and the settled reply
// when nothing was streamed.
type renderer struct {
	out      io.Writer
	streamed bool
}

func (r *renderer) fragment(_ int, fragment string) {
	r.streamed = true
	_, _ = fmt.Fprint(r.out, fragment)
}

func (r *renderer) reply(reply chat.Reply, err error) {
	switch {
	case reply.Outcome == chat.OutcomeCancelled:
		_, _ = fmt.Fprintln(r.out, " [stopped]")
	case err != nil && r.streamed:
		_, _ = fmt.Fprintln(r.out)
		_, _ = fmt.Fprintln(r.out, reply.Assistant.Content)
	case r.streamed:
		_, _ = fmt.Fprintln(r.out)
	case reply.Assistant != nil:
		_, _ = fmt.Fprintln(r.out, reply.Assistant.Content)
	}
	if hint := failureHint(err); hint != "" {
		_, _ = fmt.Fprintln(r.out, hint)
	}
	r.streamed = false
}

func failureHint(err error) string {
	switch {
	case err == nil:
		return ""
	case basalterr.IsTimeout(err):
		return "Hint: the gateway did not answer in time; raise gateway.timeout or try again."
	case basalterr.IsUpstreamFailure(err):
		return "Hint: run 'basalt doctor' to check the gateway."
	}
	return ""
}

// sendInterruptible sends content while watching for an interrupt, which
// stops the reply in progress instead of killing the process.
func sendInterruptible(ctx context.Context, coord *chat.Coordinator, content string, r *renderer) (chat.Reply, error) {
	sigCtx, stopSignals := interruptContext(ctx)
	defer stopSignals()

	sendCtx, cancelSend := context.WithCancel(ctx)
	defer cancelSend()

	var (
		g     errgroup.Group
		reply chat.Reply
		done  = make(chan struct{})
	)
	g.Go(func() error {
		defer close(done)
		var err error
		reply, err = coord.Send(sendCtx, content)
		return err
	})
	g.Go(func() error {
		select {
		case <-sigCtx.Done():
			coord.Stop()
			cancelSend()
		case <-done:
		}
		return nil
	})
	err := g.Wait()

	r.reply(reply, err)
	return reply, err
}

func repl(ctx context.Context, coord *chat.Coordinator, in io.Reader, r *renderer) error {
	_, _ = fmt.Fprintf(r.out, "Session %s. Type /quit to exit.\n", coord.SessionID())

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		_, _ = fmt.Fprint(r.out, "> ")
		if !scanner.Scan() {
			_, _ = fmt.Fprintln(r.out)
			if err := scanner.Err(); err != nil {
				return basalterr.Errorf(basalterr.CodeCLIInputInvalid, "reading input: %w", err)
			}
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/clear":
			coord.Clear()
			_, _ = fmt.Fprintln(r.out, "Conversation cleared.")
			continue
		case "/stop":
			// Sends run to completion before the next line is read.
			continue
		}

		_, err := sendInterruptible(ctx, coord, line, r)
		switch {
		case err == nil:
		case basalterr.IsValidation(err):
			_, _ = fmt.Fprintf(r.out, "Not sent: %v\n", err)
		case ctx.Err() != nil:
			return ctx.Err()
		}
	}
}
