// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Basalt Contributors

// Package message holds the chat transcript of a single session.
package message

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Metadata carries optional per-message annotations. A nil field is unset.
type Metadata struct {
	Tokens    *int    `json:"tokens,omitempty" yaml:"tokens,omitempty"`
	Model     *string `json:"model,omitempty" yaml:"model,omitempty"`
	Error     *bool   `json:"error,omitempty" yaml:"error,omitempty"`
	Streaming *bool   `json:"streaming,omitempty" yaml:"streaming,omitempty"`
}

// Clone returns a deep copy of m.
func (m *Metadata) Clone() *Metadata {
	if m == nil {
		return nil
	}
	return &Metadata{
		Tokens:    clonePtr(m.Tokens),
		Model:     clonePtr(m.Model),
		Error:     clonePtr(m.Error),
		Streaming: clonePtr(m.Streaming),
	}
}

// Merge overwrites the fields of m that are set in other.
func (m *Metadata) Merge(other *Metadata) {
	if other == nil {
		return
	}
	if other.Tokens != nil {
		m.Tokens = clonePtr(other.Tokens)
	}
	if other.Model != nil {
		m.Model = clonePtr(other.Model)
	}
	if other.Error != nil {
		m.Error = clonePtr(other.Error)
	}
	if other.Streaming != nil {
		m.Streaming = clonePtr(other.Streaming)
	}
}

// IsError reports whether the error flag is set and true.
func (m *Metadata) IsError() bool {
	return m != nil && m.Error != nil && *m.Error
}

// IsStreaming reports whether the streaming flag is set and true.
func (m *Metadata) IsStreaming() bool {
	return m != nil && m.Streaming != nil && *m.Streaming
}

// Message is one entry in a conversation.
type Message struct {
	ID        string    `json:"id" yaml:"id"`
	Content   string    `json:"content" yaml:"content"`
	Role      Role      `json:"role" yaml:"role"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Metadata  *Metadata `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// New creates a message with a fresh id and the current time.
func New(role Role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Content:   content,
		Role:      role,
		Timestamp: time.Now().UTC(),
	}
}

// Clone returns a copy of msg that shares no pointers with it.
func (msg Message) Clone() Message {
	msg.Metadata = msg.Metadata.Clone()
	return msg
}

// Patch describes a partial update. Nil fields are left untouched.
type Patch struct {
	Content  *string
	Metadata *Metadata
}

// Ptr returns a pointer to v. It keeps metadata literals short.
func Ptr[T any](v T) *T {
	return &v
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
