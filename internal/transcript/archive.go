// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Basalt Contributors

// Package transcript archives settled chat messages in SQLite so sessions
// can be listed and exported after the process exits.
package transcript

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/basalt-chat/basalt/internal/chat"
	"github.com/basalt-chat/basalt/internal/message"
	basalterr "github.com/basalt-chat/basalt/pkg/errors"
)

// Entry is one archived message.
type Entry struct {
	SessionID string            `json:"session_id" yaml:"session_id"`
	ID        string            `json:"id" yaml:"id"`
	Role      message.Role      `json:"role" yaml:"role"`
	Content   string            `json:"content" yaml:"content"`
	Timestamp time.Time         `json:"timestamp" yaml:"timestamp"`
	Outcome   string            `json:"outcome,omitempty" yaml:"outcome,omitempty"`
	Metadata  *message.Metadata `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Session summarises the archived messages of one session.
type Session struct {
	ID       string    `json:"id" yaml:"id"`
	Messages int       `json:"messages" yaml:"messages"`
	FirstAt  time.Time `json:"first_at" yaml:"first_at"`
	LastAt   time.Time `json:"last_at" yaml:"last_at"`
}

// Archive is a SQLite-backed transcript store.
type Archive struct {
	db *sql.DB
}

// Open opens (or creates) the archive at path and applies the schema.
func Open(path string) (*Archive, error) {
	if path == "" {
		return nil, basalterr.New(basalterr.CodeTranscriptInvalidInput, "transcript path must not be empty")
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, basalterr.Wrapf(err, basalterr.CodeTranscriptOpenFailure, "opening transcript db %s", path)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, basalterr.Wrapf(err, basalterr.CodeTranscriptOpenFailure, "pinging transcript db %s", path)
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, basalterr.Wrapf(err, basalterr.CodeTranscriptOpenFailure, "migrating transcript db %s", path)
	}

	return &Archive{db: db}, nil
}

func migrate(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS transcript (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL,
	role        TEXT NOT NULL,
	content     TEXT NOT NULL DEFAULT '',
	outcome     TEXT NOT NULL DEFAULT '',
	metadata    TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL,
	seq         INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transcript_session ON transcript(session_id, seq);
`
	_, err := db.Exec(ddl)
	return err
}

func (a *Archive) Close() error {
	return a.db.Close()
}

// Save records msg under sessionID. Saving an id again replaces the stored
// content, metadata and outcome but keeps its original position.
func (a *Archive) Save(ctx context.Context, sessionID string, msg message.Message, outcome string) error {
	if sessionID == "" || msg.ID == "" {
		return basalterr.Errorf(basalterr.CodeTranscriptInvalidInput,
			"transcript save: session id and message id are required")
	}

	meta := ""
	if msg.Metadata != nil {
		raw, err := json.Marshal(msg.Metadata)
		if err != nil {
			return basalterr.Wrapf(err, basalterr.CodeTranscriptWriteFailure, "encoding metadata for %s", msg.ID)
		}
		meta = string(raw)
	}

	const q = `INSERT INTO transcript (id, session_id, role, content, outcome, metadata, created_at, seq)
VALUES (?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM transcript))
ON CONFLICT(id) DO UPDATE SET content = excluded.content, outcome = excluded.outcome, metadata = excluded.metadata`

	_, err := a.db.ExecContext(ctx, q,
		msg.ID,
		sessionID,
		string(msg.Role),
		msg.Content,
		outcome,
		meta,
		formatTime(msg.Timestamp),
	)
	if err != nil {
		return basalterr.Wrap(err, basalterr.CodeTranscriptWriteFailure, "saving transcript entry",
			basalterr.FieldSessionID(sessionID), basalterr.FieldMessageID(msg.ID))
	}
	return nil
}

// List returns the entries of sessionID in the order they were first saved.
func (a *Archive) List(ctx context.Context, sessionID string) ([]Entry, error) {
	const q = `SELECT id, session_id, role, content, outcome, metadata, created_at
FROM transcript WHERE session_id = ? ORDER BY seq`

	rows, err := a.db.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, basalterr.Wrap(err, basalterr.CodeTranscriptQueryFailure, "listing transcript",
			basalterr.FieldSessionID(sessionID))
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			role      string
			meta      string
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &role, &e.Content, &e.Outcome, &meta, &createdAt); err != nil {
			return nil, basalterr.Wrapf(err, basalterr.CodeTranscriptQueryFailure, "scanning transcript row")
		}
		e.Role = message.Role(role)
		e.Timestamp = parseTime(createdAt)
		if meta != "" {
			var m message.Metadata
			if err := json.Unmarshal([]byte(meta), &m); err != nil {
				slog.Warn("skipping unreadable transcript metadata", "message_id", e.ID, "error", err)
			} else {
				e.Metadata = &m
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, basalterr.Wrapf(err, basalterr.CodeTranscriptQueryFailure, "iterating transcript rows")
	}
	return entries, nil
}

// Sessions lists every archived session, most recently active first.
func (a *Archive) Sessions(ctx context.Context) ([]Session, error) {
	const q = `SELECT session_id, COUNT(*), MIN(created_at), MAX(created_at), MAX(seq) AS last_seq
FROM transcript GROUP BY session_id ORDER BY last_seq DESC`

	rows, err := a.db.QueryContext(ctx, q)
	if err != nil {
		return nil, basalterr.Wrapf(err, basalterr.CodeTranscriptQueryFailure, "listing transcript sessions")
	}
	defer func() { _ = rows.Close() }()

	var sessions []Session
	for rows.Next() {
		var (
			s           Session
			first, last string
			lastSeq     int64
		)
		if err := rows.Scan(&s.ID, &s.Messages, &first, &last, &lastSeq); err != nil {
			return nil, basalterr.Wrapf(err, basalterr.CodeTranscriptQueryFailure, "scanning session row")
		}
		s.FirstAt = parseTime(first)
		s.LastAt = parseTime(last)
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, basalterr.Wrapf(err, basalterr.CodeTranscriptQueryFailure, "iterating session rows")
	}
	return sessions, nil
}

// Observer returns a chat observer that archives every user message and
// every settled assistant message. Write failures are logged, never raised.
func (a *Archive) Observer() chat.Observer {
	return func(ev chat.Event) {
		outcome := ""
		if ev.Kind == chat.EventResponseReceived {
			outcome = ev.Outcome.String()
		}
		if err := a.Save(context.Background(), ev.SessionID, ev.Message, outcome); err != nil {
			slog.Warn("transcript write failed",
				"session_id", ev.SessionID,
				"message_id", ev.Message.ID,
				"error", err)
		}
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
