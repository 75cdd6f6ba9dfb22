// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Basalt Contributors

package message

import "sync"

// Store is an ordered, optionally bounded list of messages. When the
// capacity is exceeded the oldest messages are dropped first. Callers only
// ever receive copies.
type Store struct {
	mu       sync.RWMutex
	capacity int
	messages []Message
}

// NewStore creates a store holding at most capacity messages. A capacity of
// zero or less means unbounded.
func NewStore(capacity int) *Store {
	return &Store{capacity: capacity}
}

// Capacity returns the configured bound, or zero when unbounded.
func (s *Store) Capacity() int {
	if s.capacity < 0 {
		return 0
	}
	return s.capacity
}

// Append adds msg at the end of the store, evicting from the front when the
// store is over capacity.
func (s *Store) Append(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, msg.Clone())
	if s.capacity > 0 && len(s.messages) > s.capacity {
		overflow := len(s.messages) - s.capacity
		clear(s.messages[:overflow])
		s.messages = s.messages[overflow:]
	}
}

// Update applies patch to the message with the given id. An unknown id is a
// no-op; the return value reports whether a message was changed.
func (s *Store) Update(id string, patch Patch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return false
	}

	msg := &s.messages[idx]
	if patch.Content != nil {
		msg.Content = *patch.Content
	}
	if patch.Metadata != nil {
		if msg.Metadata == nil {
			msg.Metadata = &Metadata{}
		}
		msg.Metadata.Merge(patch.Metadata)
	}
	return true
}

// Clear removes every message.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
}

// Last returns the most recent message.
func (s *Store) Last() (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.messages) == 0 {
		return Message{}, false
	}
	return s.messages[len(s.messages)-1].Clone(), true
}

// Get returns the message with the given id.
func (s *Store) Get(id string) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return Message{}, false
	}
	return s.messages[idx].Clone(), true
}

// Messages returns a snapshot of the store in insertion order.
func (s *Store) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Message, len(s.messages))
	for i, msg := range s.messages {
		out[i] = msg.Clone()
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// indexOf searches from the end because updates almost always target the
// newest message. Callers must hold the lock.
func (s *Store) indexOf(id string) int {
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].ID == id {
			return i
		}
	}
	return -1
}
