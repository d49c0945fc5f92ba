// Package service provides the use-case layer orchestrating entities,
// the store, and the surrounding collaborators.
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/modai-platform/message-service/internal/model"
	"github.com/modai-platform/message-service/internal/store"
	"github.com/modai-platform/message-service/pkg/logger"
	"github.com/modai-platform/message-service/pkg/metrics"
)

// Config carries tunables for the service layer. Passed explicitly at
// construction; there is no process-wide settings object.
type Config struct {
	ConversationPageSize int
	MessagePageSize      int
}

// defaults applied when a field is unset.
func (c Config) withDefaults() Config {
	if c.ConversationPageSize <= 0 {
		c.ConversationPageSize = 50
	}
	if c.MessagePageSize <= 0 {
		c.MessagePageSize = 100
	}
	return c
}

const (
	maxConversationPageSize = 100
	maxMessagePageSize      = 500
)

// ConversationService handles conversation operations.
type ConversationService struct {
	store  store.Store
	cfg    Config
	logger *logger.Logger
}

// NewConversationService creates a new conversation service.
func NewConversationService(st store.Store, cfg Config, log *logger.Logger) *ConversationService {
	return &ConversationService{
		store:  st,
		cfg:    cfg.withDefaults(),
		logger: log,
	}
}

// Create creates a new conversation for a teen.
func (s *ConversationService) Create(ctx context.Context, req *model.CreateConversationRequest) (*model.Conversation, error) {
	conv, err := model.NewConversation(req.TeenID, req.Title)
	if err != nil {
		return nil, err
	}
	if req.Metadata != nil {
		conv.Metadata = req.Metadata
	}

	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("persisting conversation: %w", err)
	}

	metrics.ConversationsTotal.Inc()
	s.logger.Info("conversation created",
		zap.String("conversation_id", conv.ID),
		zap.String("teen_id", conv.TeenID),
	)

	return conv, nil
}

// Get retrieves a conversation by ID.
func (s *ConversationService) Get(ctx context.Context, id string) (*model.Conversation, error) {
	return s.store.GetConversation(ctx, id)
}

// ListByTeen retrieves a teen's conversations, most recently active
// first. statusFilter may be a status name or empty for all statuses.
func (s *ConversationService) ListByTeen(ctx context.Context, teenID, statusFilter string, limit, offset int) (*model.ListConversationsResponse, error) {
	var status *model.ConversationStatus
	if statusFilter != "" {
		parsed, err := model.ParseConversationStatus(statusFilter)
		if err != nil {
			return nil, err
		}
		status = &parsed
	}

	limit = clampLimit(limit, s.cfg.ConversationPageSize, maxConversationPageSize)
	if offset < 0 {
		offset = 0
	}

	convs, err := s.store.ListConversationsByTeen(ctx, teenID, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}

	total, err := s.store.CountConversationsByTeen(ctx, teenID, status)
	if err != nil {
		return nil, fmt.Errorf("counting conversations: %w", err)
	}

	if convs == nil {
		convs = []*model.Conversation{}
	}
	return &model.ListConversationsResponse{
		Conversations: convs,
		Total:         total,
		HasMore:       offset+len(convs) < total,
	}, nil
}

// Update applies a title change and/or a status transition.
func (s *ConversationService) Update(ctx context.Context, id string, req *model.UpdateConversationRequest) (*model.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Title != "" {
		if err := conv.SetTitle(req.Title); err != nil {
			return nil, err
		}
	}

	if req.Status != "" {
		status, err := model.ParseConversationStatus(req.Status)
		if err != nil {
			return nil, err
		}

		switch status {
		case model.ConversationArchived:
			err = conv.Archive()
		case model.ConversationActive:
			err = conv.Restore()
		case model.ConversationDeleted:
			err = conv.Delete()
		}
		if err != nil {
			return nil, err
		}
		metrics.ConversationTransitionsTotal.WithLabelValues(string(status)).Inc()
	}

	if err := s.store.UpdateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("persisting conversation: %w", err)
	}

	return conv, nil
}

// Delete hard deletes a conversation; its messages go with it.
func (s *ConversationService) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteConversation(ctx, id); err != nil {
		return err
	}

	s.logger.Info("conversation deleted", zap.String("conversation_id", id))
	return nil
}

// GetWithMessages returns a conversation with one page of its messages
// and the total message count.
func (s *ConversationService) GetWithMessages(ctx context.Context, id string, limit, offset int) (*model.ConversationWithMessagesResponse, error) {
	conv, err := s.store.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}

	limit = clampLimit(limit, s.cfg.MessagePageSize, maxMessagePageSize)
	if offset < 0 {
		offset = 0
	}

	msgs, err := s.store.ListMessages(ctx, id, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}

	total, err := s.store.CountMessages(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("counting messages: %w", err)
	}

	if msgs == nil {
		msgs = []*model.Message{}
	}
	return &model.ConversationWithMessagesResponse{
		Conversation:  conv,
		Messages:      msgs,
		TotalMessages: total,
	}, nil
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
