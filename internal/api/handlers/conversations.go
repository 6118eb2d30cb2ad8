package handlers

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ramonehamilton/commander-deckgen/internal/deck"
)

// DefaultMaxConversations bounds the store when no size is configured.
const DefaultMaxConversations = 1000

// maxStoredTurns caps the history kept per conversation. The prompt builder
// only sends a short window of it.
const maxStoredTurns = 20

// Conversation is what the server remembers between requests.
type Conversation struct {
	ID        string       `json:"id"`
	Turns     []deck.Turn  `json:"turns"`
	Deck      *deck.Record `json:"deck,omitempty"`
	Theme     string       `json:"theme,omitempty"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// ConversationStore keeps the most recently used conversations in memory.
type ConversationStore struct {
	mu    sync.Mutex
	cache *lru.Cache[string, *Conversation]
}

// NewConversationStore creates a store holding at most size conversations.
func NewConversationStore(size int) (*ConversationStore, error) {
	if size <= 0 {
		size = DefaultMaxConversations
	}
	cache, err := lru.New[string, *Conversation](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation cache: %w", err)
	}
	return &ConversationStore{cache: cache}, nil
}

// Get returns a copy of the conversation, or an empty one for unknown ids.
func (s *ConversationStore) Get(id string) Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cache.Get(id)
	if !ok {
		return Conversation{ID: id}
	}
	return Conversation{
		ID:        c.ID,
		Turns:     append([]deck.Turn(nil), c.Turns...),
		Deck:      c.Deck.Clone(),
		Theme:     c.Theme,
		UpdatedAt: c.UpdatedAt,
	}
}

// Record appends an exchange to the conversation. A nil record keeps the
// previous deck.
func (s *ConversationStore) Record(id string, user, assistant deck.Turn, rec *deck.Record, theme string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cache.Get(id)
	if !ok {
		c = &Conversation{ID: id}
	}
	c.Turns = append(c.Turns, user, assistant)
	if len(c.Turns) > maxStoredTurns {
		c.Turns = append([]deck.Turn(nil), c.Turns[len(c.Turns)-maxStoredTurns:]...)
	}
	if rec != nil {
		c.Deck = rec.Clone()
	}
	if theme != "" {
		c.Theme = theme
	}
	c.UpdatedAt = time.Now().UTC()
	s.cache.Add(id, c)
}

// Reset forgets a conversation. It reports whether one existed.
func (s *ConversationStore) Reset(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Remove(id)
}

// Len returns the number of stored conversations.
func (s *ConversationStore) Len() int {
	return s.cache.Len()
}
