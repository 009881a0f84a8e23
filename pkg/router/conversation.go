package router

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/herald-crm/herald/pkg/chat"
	"github.com/herald-crm/herald/pkg/tokens"
)

// Conversation is a bounded message history shared across requests. Its
// token count never exceeds MaxContextTokens; appends drop the oldest
// non-system messages first and system messages are never dropped.
type Conversation struct {
	ID       string
	UserID   string
	Metadata map[string]string

	CreatedAt time.Time

	maxContextTokens int
	est              tokens.Estimator

	mu         sync.Mutex
	messages   []chat.Message
	tokenCount int
	updatedAt  time.Time
}

// MaxContextTokens returns the conversation's token budget.
func (c *Conversation) MaxContextTokens() int {
	return c.maxContextTokens
}

// Messages returns a copy of the stored history.
func (c *Conversation) Messages() []chat.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return chat.Clone(c.messages)
}

// TokenCount returns the estimated cost of the stored history.
func (c *Conversation) TokenCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokenCount
}

// UpdatedAt returns the time of the last append.
func (c *Conversation) UpdatedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updatedAt
}

// Len returns the number of stored messages.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

// append adds a message and re-truncates the history to the budget.
// The per-conversation lock serializes appends so concurrent callers
// cannot interleave message order.
func (c *Conversation) append(msg chat.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.messages = append(c.messages, msg)
	c.messages = tokens.Truncate(c.est, c.messages, c.maxContextTokens)
	c.tokenCount = c.est.EstimateMessages(c.messages)
	c.updatedAt = time.Now()
}

// conversationStore holds conversations by id.
type conversationStore struct {
	maxContextTokens int
	est              tokens.Estimator

	mu    sync.RWMutex
	convs map[string]*Conversation
}

func newConversationStore(maxContextTokens int, est tokens.Estimator) *conversationStore {
	return &conversationStore{
		maxContextTokens: maxContextTokens,
		est:              est,
		convs:            make(map[string]*Conversation),
	}
}

// create registers a new conversation. An empty id gets a generated one;
// reusing a live id is an error.
func (s *conversationStore) create(id, userID string, metadata map[string]string) (*Conversation, error) {
	if id == "" {
		id = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.convs[id]; exists {
		return nil, fmt.Errorf("conversation %q already exists", id)
	}

	now := time.Now()
	conv := &Conversation{
		ID:               id,
		UserID:           userID,
		Metadata:         metadata,
		CreatedAt:        now,
		maxContextTokens: s.maxContextTokens,
		est:              s.est,
		updatedAt:        now,
	}
	s.convs[id] = conv
	return conv, nil
}

func (s *conversationStore) get(id string) (*Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.convs[id]
	return conv, ok
}

func (s *conversationStore) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.convs, id)
}
