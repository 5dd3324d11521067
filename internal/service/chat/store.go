// Package chat holds dialog transcripts and the registry of live dialogs.
package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yyc3/yunshu/backend/internal/model/chat"
)

// Store is an append-only in-memory transcript.
type Store struct {
	mu       sync.RWMutex
	messages []chat.Message
}

// NewStore creates an empty transcript.
func NewStore() *Store {
	return &Store{messages: make([]chat.Message, 0, 16)}
}

// Append adds message at the end, filling ID and CreatedAt when empty.
func (s *Store) Append(message chat.Message) chat.Message {
	if message.ID == "" {
		message.ID = NewID()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	s.messages = append(s.messages, message)
	s.mu.Unlock()
	return message
}

// All returns a copy of the transcript in append order.
func (s *Store) All() []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	copied := make([]chat.Message, len(s.messages))
	copy(copied, s.messages)
	return copied
}

// Len returns the number of stored messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Reset drops every message.
func (s *Store) Reset() {
	s.mu.Lock()
	s.messages = make([]chat.Message, 0, 16)
	s.mu.Unlock()
}

// NewID returns a time-ordered identifier.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
