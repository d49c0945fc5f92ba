// Package model defines the domain entities for the message service.
package model

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/modai-platform/message-service/internal/apperr"
)

// ConversationStatus represents the lifecycle state of a conversation.
type ConversationStatus string

const (
	ConversationActive   ConversationStatus = "active"
	ConversationArchived ConversationStatus = "archived"
	ConversationDeleted  ConversationStatus = "deleted"
)

// ParseConversationStatus validates a status string.
func ParseConversationStatus(s string) (ConversationStatus, error) {
	switch ConversationStatus(s) {
	case ConversationActive, ConversationArchived, ConversationDeleted:
		return ConversationStatus(s), nil
	}
	return "", apperr.Validation("invalid conversation status: %q", s)
}

const (
	// MaxTitleLength is the maximum conversation title length in runes.
	MaxTitleLength = 200

	// DefaultTitle is used when a conversation is created without a title.
	DefaultTitle = "New Conversation"
)

// Conversation represents a conversation thread between a teen and the
// AI assistant. MessageCount and LastMessageAt are bookkeeping owned by
// AddMessage; callers must not advance them directly.
type Conversation struct {
	ID            string             `json:"id"`
	TeenID        string             `json:"teen_id"`
	Title         string             `json:"title"`
	Status        ConversationStatus `json:"status"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
	LastMessageAt *time.Time         `json:"last_message_at"`
	MessageCount  int                `json:"message_count"`
	Metadata      map[string]any     `json:"metadata"`
}

// NewConversation creates an active conversation for a teen. An empty
// title is substituted with DefaultTitle; an oversized title is rejected,
// never truncated.
func NewConversation(teenID, title string) (*Conversation, error) {
	if teenID == "" {
		return nil, apperr.Validation("teen ID cannot be empty")
	}
	if title == "" {
		title = DefaultTitle
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return nil, apperr.Validation("title exceeds %d characters", MaxTitleLength)
	}

	now := time.Now().UTC()
	return &Conversation{
		ID:        uuid.Must(uuid.NewV7()).String(),
		TeenID:    teenID,
		Title:     title,
		Status:    ConversationActive,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  map[string]any{},
	}, nil
}

// IsActive reports whether the conversation is active.
func (c *Conversation) IsActive() bool { return c.Status == ConversationActive }

// IsArchived reports whether the conversation is archived.
func (c *Conversation) IsArchived() bool { return c.Status == ConversationArchived }

// IsDeleted reports whether the conversation is soft deleted.
func (c *Conversation) IsDeleted() bool { return c.Status == ConversationDeleted }

// CanAddMessages reports whether new messages may be appended.
func (c *Conversation) CanAddMessages() bool { return c.Status == ConversationActive }

// AddMessage records that msg was appended to the conversation. It is the
// only operation that advances MessageCount and must be invoked exactly
// once per successfully persisted message. LastMessageAt takes the
// message's CreatedAt rather than the storage write time so ordering
// stays stable under clock skew between application and database.
func (c *Conversation) AddMessage(msg *Message) error {
	if !c.CanAddMessages() {
		return apperr.InvalidState("cannot add messages to a %s conversation", c.Status)
	}

	c.MessageCount++
	at := msg.CreatedAt
	c.LastMessageAt = &at
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// SetTitle updates the conversation title.
func (c *Conversation) SetTitle(title string) error {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return apperr.Validation("title cannot be empty")
	}
	if utf8.RuneCountInString(trimmed) > MaxTitleLength {
		return apperr.Validation("title exceeds %d characters", MaxTitleLength)
	}

	c.Title = trimmed
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// Archive moves an active conversation to archived.
func (c *Conversation) Archive() error {
	switch c.Status {
	case ConversationDeleted:
		return apperr.InvalidState("cannot archive a deleted conversation")
	case ConversationArchived:
		return apperr.InvalidState("conversation is already archived")
	}

	c.Status = ConversationArchived
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// Restore moves an archived conversation back to active.
func (c *Conversation) Restore() error {
	switch c.Status {
	case ConversationDeleted:
		return apperr.InvalidState("cannot restore a deleted conversation")
	case ConversationActive:
		return apperr.InvalidState("conversation is already active")
	}

	c.Status = ConversationActive
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// Delete soft deletes the conversation. Deleted is terminal: no
// transition leaves it.
func (c *Conversation) Delete() error {
	if c.Status == ConversationDeleted {
		return apperr.InvalidState("conversation is already deleted")
	}

	c.Status = ConversationDeleted
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// CreateConversationRequest is the request to create a new conversation.
type CreateConversationRequest struct {
	TeenID   string         `json:"teen_id"`
	Title    string         `json:"title,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// UpdateConversationRequest is the request to update a conversation.
// Status, when set, drives a state-machine transition.
type UpdateConversationRequest struct {
	Title  string `json:"title,omitempty"`
	Status string `json:"status,omitempty"`
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []*Conversation `json:"conversations"`
	Total         int             `json:"total"`
	HasMore       bool            `json:"has_more"`
}

// ConversationWithMessagesResponse bundles a conversation with one page
// of its messages.
type ConversationWithMessagesResponse struct {
	Conversation  *Conversation `json:"conversation"`
	Messages      []*Message    `json:"messages"`
	TotalMessages int           `json:"total_messages"`
}
