// Package store provides persistence for conversations and messages.
// The PostgreSQL backend is the production implementation; the memory
// backend serves tests and local development.
package store

import (
	"context"

	"github.com/modai-platform/message-service/internal/model"
)

// ConversationStore is the persistence contract for conversations.
type ConversationStore interface {
	CreateConversation(ctx context.Context, conv *model.Conversation) error
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
	// ListConversationsByTeen returns conversations ordered by
	// last_message_at descending with nulls last, created_at as tiebreak.
	// A nil status returns every non-filtered conversation.
	ListConversationsByTeen(ctx context.Context, teenID string, status *model.ConversationStatus, limit, offset int) ([]*model.Conversation, error)
	// UpdateConversation replaces all mutable fields of an existing row.
	UpdateConversation(ctx context.Context, conv *model.Conversation) error
	// DeleteConversation hard deletes a conversation and cascades to its
	// messages.
	DeleteConversation(ctx context.Context, id string) error
	CountConversationsByTeen(ctx context.Context, teenID string, status *model.ConversationStatus) (int, error)
}

// MessageStore is the persistence contract for messages.
type MessageStore interface {
	CreateMessage(ctx context.Context, msg *model.Message) error
	GetMessage(ctx context.Context, id string) (*model.Message, error)
	// ListMessages returns messages ordered by created_at ascending.
	ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]*model.Message, error)
	// UpdateMessage persists classification and safety-flag mutations.
	// Content is immutable and never rewritten.
	UpdateMessage(ctx context.Context, msg *model.Message) error
	CountMessages(ctx context.Context, conversationID string) (int, error)
	DeleteMessagesByConversation(ctx context.Context, conversationID string) (int, error)
}

// Store combines both contracts with connection lifecycle.
type Store interface {
	ConversationStore
	MessageStore

	Ping(ctx context.Context) error
	Close() error
}
