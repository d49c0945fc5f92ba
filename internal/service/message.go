package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/modai-platform/message-service/internal/apperr"
	"github.com/modai-platform/message-service/internal/model"
	"github.com/modai-platform/message-service/internal/queue"
	"github.com/modai-platform/message-service/internal/store"
	"github.com/modai-platform/message-service/internal/usage"
	"github.com/modai-platform/message-service/pkg/logger"
	"github.com/modai-platform/message-service/pkg/metrics"
)

// MessageService handles message operations.
type MessageService struct {
	store     store.Store
	publisher queue.Publisher
	usage     usage.Tracker
	cfg       Config
	logger    *logger.Logger
}

// NewMessageService creates a new message service.
func NewMessageService(st store.Store, pub queue.Publisher, tracker usage.Tracker, cfg Config, log *logger.Logger) *MessageService {
	return &MessageService{
		store:     st,
		publisher: pub,
		usage:     tracker,
		cfg:       cfg.withDefaults(),
		logger:    log,
	}
}

// Append adds a message to a conversation. The append is logically two
// writes: the message row, then the conversation counters. If the second
// write fails after the first succeeded the error is surfaced to the
// caller and counted; the message is NOT rolled back and the counters
// must be reconciled out of band.
func (s *MessageService) Append(ctx context.Context, conversationID string, req *model.CreateMessageRequest) (*model.Message, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.CanAddMessages() {
		return nil, apperr.InvalidState("cannot add messages to a %s conversation", conv.Status)
	}

	msg, err := model.NewMessage(conversationID, model.Role(req.Role), req.Content)
	if err != nil {
		return nil, err
	}

	// Write-through slot for a classification the caller already has.
	if req.TopicTier != nil {
		tier, err := model.TierFromLevel(*req.TopicTier)
		if err != nil {
			return nil, err
		}
		if err := msg.SetTopicClassification(tier, req.TopicCategories, nil); err != nil {
			return nil, err
		}
	}

	// Defense-in-depth: the gateway enforces the daily limit too.
	if msg.IsUserMessage() {
		if err := s.checkDailyLimit(ctx, conv.TeenID); err != nil {
			return nil, err
		}
	}

	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("persisting message: %w", err)
	}

	if err := conv.AddMessage(msg); err != nil {
		return nil, err
	}
	if err := s.store.UpdateConversation(ctx, conv); err != nil {
		// The message is persisted but the conversation counters are
		// stale. Recognized failure mode: surface it, never hide it.
		metrics.CounterReconciliationFailures.Inc()
		s.logger.Error("message persisted but conversation counters not updated",
			zap.String("message_id", msg.ID),
			zap.String("conversation_id", conv.ID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("updating conversation counters: %w", err)
	}

	metrics.MessagesTotal.WithLabelValues(string(msg.Role)).Inc()

	switch {
	case msg.IsUserMessage():
		s.publishForClassification(ctx, conv, msg)
		s.recordMessageUsage(ctx, conv, req)
	case msg.IsAssistantMessage() && req.TotalTokens != nil:
		s.recordTokenUsage(ctx, conv, req)
	}

	return msg, nil
}

// Get retrieves a message by ID.
func (s *MessageService) Get(ctx context.Context, id string) (*model.Message, error) {
	return s.store.GetMessage(ctx, id)
}

// List retrieves a conversation's messages oldest first.
func (s *MessageService) List(ctx context.Context, conversationID string, limit, offset int) (*model.ListMessagesResponse, error) {
	if _, err := s.store.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}

	limit = clampLimit(limit, s.cfg.MessagePageSize, maxMessagePageSize)
	if offset < 0 {
		offset = 0
	}

	msgs, err := s.store.ListMessages(ctx, conversationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}

	total, err := s.store.CountMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("counting messages: %w", err)
	}

	if msgs == nil {
		msgs = []*model.Message{}
	}
	return &model.ListMessagesResponse{
		Messages: msgs,
		Total:    total,
		HasMore:  offset+len(msgs) < total,
	}, nil
}

// Classify stores the topic classifier's result on a message. Fails if
// the message is already classified.
func (s *MessageService) Classify(ctx context.Context, messageID string, req *model.ClassifyMessageRequest) (*model.Message, error) {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	tier, err := model.TierFromLevel(req.Tier)
	if err != nil {
		return nil, err
	}
	if err := msg.SetTopicClassification(tier, req.Categories, req.Confidence); err != nil {
		return nil, err
	}

	if err := s.store.UpdateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("persisting classification: %w", err)
	}

	metrics.MessagesClassifiedTotal.WithLabelValues(string(tier)).Inc()
	return msg, nil
}

// AddSafetyFlag appends one safety flag to a message.
func (s *MessageService) AddSafetyFlag(ctx context.Context, messageID, flag string, details any) (*model.Message, error) {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	if err := msg.AddSafetyFlag(flag, details); err != nil {
		return nil, err
	}

	if err := s.store.UpdateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("persisting safety flag: %w", err)
	}
	return msg, nil
}

// Block marks a message as blocked (tier 4) with a reason.
func (s *MessageService) Block(ctx context.Context, messageID, reason string) (*model.Message, error) {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	msg.MarkAsBlocked(reason)

	if err := s.store.UpdateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("persisting block: %w", err)
	}

	s.logger.Warn("message blocked",
		zap.String("message_id", msg.ID),
		zap.String("reason", reason),
	)
	return msg, nil
}

func (s *MessageService) checkDailyLimit(ctx context.Context, teenID string) error {
	if !s.usage.Enabled() {
		return nil
	}

	result, err := s.usage.CheckDailyMessageLimit(ctx, teenID)
	if err != nil {
		// An unreachable user service must not take messaging down.
		s.logger.Warn("daily limit check failed",
			zap.String("teen_id", teenID),
			zap.Error(err),
		)
		return nil
	}
	if !result.Allowed {
		metrics.DailyLimitRejections.Inc()
		return apperr.LimitExceeded("daily message limit reached (%d/%d)",
			result.MessagesSent, result.MessagesLimit)
	}
	return nil
}

func (s *MessageService) publishForClassification(ctx context.Context, conv *model.Conversation, msg *model.Message) {
	job := &queue.ClassificationJob{
		MessageID:      msg.ID,
		ConversationID: conv.ID,
		TeenID:         conv.TeenID,
		Content:        msg.Content,
		EnqueuedAt:     time.Now().UTC(),
	}

	if err := s.publisher.PublishClassificationJob(ctx, job); err != nil {
		// Classification happens asynchronously; a publish failure must
		// not fail the append.
		metrics.ClassificationPublishesTotal.WithLabelValues("error").Inc()
		s.logger.Error("failed to publish message for classification",
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
		return
	}
	metrics.ClassificationPublishesTotal.WithLabelValues("ok").Inc()
}

func (s *MessageService) recordMessageUsage(ctx context.Context, conv *model.Conversation, req *model.CreateMessageRequest) {
	var category *string
	if len(req.TopicCategories) > 0 {
		category = &req.TopicCategories[0]
	}

	err := s.usage.RecordMessage(ctx, usage.MessageRecord{
		UserID:         conv.TeenID,
		ConversationID: conv.ID,
		TopicCategory:  category,
		TopicTier:      req.TopicTier,
	})
	if err != nil {
		s.logger.Warn("failed to record message usage",
			zap.String("conversation_id", conv.ID),
			zap.Error(err),
		)
	}
}

func (s *MessageService) recordTokenUsage(ctx context.Context, conv *model.Conversation, req *model.CreateMessageRequest) {
	rec := usage.TokenUsageRecord{
		UserID:      conv.TeenID,
		Provider:    orUnknown(req.Provider),
		Model:       orUnknown(req.Model),
		TotalTokens: *req.TotalTokens,
		CostUSD:     req.CostUSD,
	}
	if req.InputTokens != nil {
		rec.InputTokens = *req.InputTokens
	}
	if req.OutputTokens != nil {
		rec.OutputTokens = *req.OutputTokens
	}

	if err := s.usage.RecordTokenUsage(ctx, rec); err != nil {
		s.logger.Warn("failed to record token usage",
			zap.String("conversation_id", conv.ID),
			zap.Error(err),
		)
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
