package store

import (
	"context"
	"sort"
	"sync"

	"github.com/modai-platform/message-service/internal/apperr"
	"github.com/modai-platform/message-service/internal/model"
)

// MemoryStore is a mutex-guarded in-memory Store used by tests and
// local development. Entities are copied on the way in and out so
// callers never share state with the store.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*model.Conversation
	messages      map[string]*model.Message
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*model.Conversation),
		messages:      make(map[string]*model.Message),
	}
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

// CreateConversation stores a new conversation.
func (s *MemoryStore) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations[conv.ID] = cloneConversation(conv)
	return nil
}

// GetConversation fetches a conversation by id.
func (s *MemoryStore) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, apperr.NotFound("conversation")
	}
	return cloneConversation(conv), nil
}

// ListConversationsByTeen lists a teen's conversations, most recently
// active first with never-messaged conversations last.
func (s *MemoryStore) ListConversationsByTeen(ctx context.Context, teenID string, status *model.ConversationStatus, limit, offset int) ([]*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var convs []*model.Conversation
	for _, conv := range s.conversations {
		if conv.TeenID != teenID {
			continue
		}
		if status != nil && conv.Status != *status {
			continue
		}
		convs = append(convs, cloneConversation(conv))
	}

	sort.Slice(convs, func(i, j int) bool {
		a, b := convs[i].LastMessageAt, convs[j].LastMessageAt
		switch {
		case a != nil && b != nil && !a.Equal(*b):
			return a.After(*b)
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return convs[i].CreatedAt.After(convs[j].CreatedAt)
	})

	return page(convs, limit, offset), nil
}

// UpdateConversation replaces an existing conversation.
func (s *MemoryStore) UpdateConversation(ctx context.Context, conv *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[conv.ID]; !ok {
		return apperr.NotFound("conversation")
	}
	s.conversations[conv.ID] = cloneConversation(conv)
	return nil
}

// DeleteConversation hard deletes a conversation and its messages.
func (s *MemoryStore) DeleteConversation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[id]; !ok {
		return apperr.NotFound("conversation")
	}
	delete(s.conversations, id)
	for msgID, msg := range s.messages {
		if msg.ConversationID == id {
			delete(s.messages, msgID)
		}
	}
	return nil
}

// CountConversationsByTeen counts a teen's conversations.
func (s *MemoryStore) CountConversationsByTeen(ctx context.Context, teenID string, status *model.ConversationStatus) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, conv := range s.conversations {
		if conv.TeenID != teenID {
			continue
		}
		if status != nil && conv.Status != *status {
			continue
		}
		count++
	}
	return count, nil
}

// CreateMessage stores a new message.
func (s *MemoryStore) CreateMessage(ctx context.Context, msg *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages[msg.ID] = cloneMessage(msg)
	return nil
}

// GetMessage fetches a message by id.
func (s *MemoryStore) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.messages[id]
	if !ok {
		return nil, apperr.NotFound("message")
	}
	return cloneMessage(msg), nil
}

// ListMessages lists a conversation's messages oldest first.
func (s *MemoryStore) ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var msgs []*model.Message
	for _, msg := range s.messages {
		if msg.ConversationID == conversationID {
			msgs = append(msgs, cloneMessage(msg))
		}
	}

	sort.Slice(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})

	return page(msgs, limit, offset), nil
}

// UpdateMessage replaces an existing message.
func (s *MemoryStore) UpdateMessage(ctx context.Context, msg *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[msg.ID]; !ok {
		return apperr.NotFound("message")
	}
	s.messages[msg.ID] = cloneMessage(msg)
	return nil
}

// CountMessages counts messages in a conversation.
func (s *MemoryStore) CountMessages(ctx context.Context, conversationID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, msg := range s.messages {
		if msg.ConversationID == conversationID {
			count++
		}
	}
	return count, nil
}

// DeleteMessagesByConversation removes a conversation's messages.
func (s *MemoryStore) DeleteMessagesByConversation(ctx context.Context, conversationID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for id, msg := range s.messages {
		if msg.ConversationID == conversationID {
			delete(s.messages, id)
			deleted++
		}
	}
	return deleted, nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if limit <= 0 || end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func cloneConversation(conv *model.Conversation) *model.Conversation {
	dup := *conv
	if conv.LastMessageAt != nil {
		t := *conv.LastMessageAt
		dup.LastMessageAt = &t
	}
	dup.Metadata = cloneMap(conv.Metadata)
	return &dup
}

func cloneMessage(msg *model.Message) *model.Message {
	dup := *msg
	if msg.TopicTier != nil {
		t := *msg.TopicTier
		dup.TopicTier = &t
	}
	dup.TopicCategories = append([]string(nil), msg.TopicCategories...)
	dup.SafetyFlags = cloneMap(msg.SafetyFlags)
	dup.Metadata = cloneMap(msg.Metadata)
	return &dup
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	dup := make(map[string]any, len(m))
	for k, v := range m {
		dup[k] = v
	}
	return dup
}
