// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Basalt Contributors

package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/basalt-chat/basalt/internal/transcript"
	basalterr "github.com/basalt-chat/basalt/pkg/errors"
	"github.com/spf13/cobra"
)

func (c *cli) newTranscriptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcript",
		Short: "Inspect archived chat sessions",
		Long:  "List and export sessions recorded in the transcript archive (transcript.path).",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List archived sessions, or the messages of one session",
		Args:  cobra.NoArgs,
		RunE:  c.runTranscriptList,
	}
	list.Flags().StringP("session", "s", "", "session id to show")

	export := &cobra.Command{
		Use:   "export",
		Short: "Export a session as JSON or YAML",
		Args:  cobra.NoArgs,
		RunE:  c.runTranscriptExport,
	}
	export.Flags().StringP("session", "s", "", "session id to export (required)")
	export.Flags().StringP("format", "f", transcript.FormatJSON, "output format: json or yaml")
	_ = export.MarkFlagRequired("session")

	cmd.AddCommand(list, export)
	return cmd
}

func (c *cli) openArchive() (*transcript.Archive, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Transcript.Path == "" {
		return nil, basalterr.New(basalterr.CodeCLIInputInvalid, "transcript archiving is disabled; set transcript.path")
	}
	return transcript.Open(cfg.Transcript.Path)
}

func (c *cli) runTranscriptList(cmd *cobra.Command, _ []string) error {
	archive, err := c.openArchive()
	if err != nil {
		return err
	}
	defer func() { _ = archive.Close() }()

	sessionID, _ := cmd.Flags().GetString("session")
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)

	if sessionID == "" {
		sessions, err := archive.Sessions(cmd.Context())
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No sessions archived.")
			return nil
		}
		_, _ = fmt.Fprintln(tw, "SESSION\tMESSAGES\tLAST ACTIVE")
		for _, s := range sessions {
			_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\n", s.ID, s.Messages, s.LastAt.Local().Format(time.DateTime))
		}
		return tw.Flush()
	}

	entries, err := archive.List(cmd.Context(), sessionID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return basalterr.Errorf(basalterr.CodeTranscriptInvalidInput, "no messages archived for session %q", sessionID)
	}
	for _, e := range entries {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Timestamp.Local().Format(time.TimeOnly), e.Role, e.Content)
	}
	return tw.Flush()
}

func (c *cli) runTranscriptExport(cmd *cobra.Command, _ []string) error {
	sessionID, _ := cmd.Flags().GetString("session")
	format, _ := cmd.Flags().GetString("format")

	archive, err := c.openArchive()
	if err != nil {
		return err
	}
	defer func() { _ = archive.Close() }()

	entries, err := archive.List(cmd.Context(), sessionID)
	if err != nil {
		return err
	}
	return transcript.Export(cmd.OutOrStdout(), sessionID, entries, format)
}
