// Package history keeps a short, in-memory transcript per chat so clients can
// poll recent messages. Nothing survives a restart.
package history

import (
	"sync"
	"time"
)

const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Entry is one recorded message.
type Entry struct {
	ID          string    `json:"id"`
	Chat        string    `json:"chat"`
	Sender      string    `json:"sender,omitempty"`
	Direction   string    `json:"direction"`
	Content     string    `json:"content"`
	ContentType string    `json:"contentType"`
	IsGroup     bool      `json:"isGroup"`
	Timestamp   time.Time `json:"timestamp"`
}

type Store struct {
	mu      sync.RWMutex
	perChat int
	chats   map[string][]Entry
}

// NewStore keeps at most perChat entries for each chat.
func NewStore(perChat int) *Store {
	if perChat <= 0 {
		perChat = 200
	}
	return &Store{
		perChat: perChat,
		chats:   make(map[string][]Entry),
	}
}

func (s *Store) Append(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := append(s.chats[e.Chat], e)
	if over := len(entries) - s.perChat; over > 0 {
		entries = append([]Entry(nil), entries[over:]...)
	}
	s.chats[e.Chat] = entries
}

// Recent returns up to limit entries for chat, oldest first.
func (s *Store) Recent(chat string, limit int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.chats[chat]
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}

// Reset drops every chat.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats = make(map[string][]Entry)
}
