package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/modai-platform/message-service/internal/apperr"
)

// Role represents who sent a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ParseRole validates a role string.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleUser, RoleAssistant, RoleSystem:
		return Role(s), nil
	}
	return "", apperr.Validation("invalid message role: %q", s)
}

// TopicTier is the safety tier assigned to a message by the topic
// classifier. Tier 1 is always allowed, tier 4 is auto-blocked.
type TopicTier string

const (
	TierOne   TopicTier = "tier_1"
	TierTwo   TopicTier = "tier_2"
	TierThree TopicTier = "tier_3"
	TierFour  TopicTier = "tier_4"
)

// TierFromLevel maps the numeric tier used on the wire (1-4) to a
// TopicTier.
func TierFromLevel(level int) (TopicTier, error) {
	switch level {
	case 1:
		return TierOne, nil
	case 2:
		return TierTwo, nil
	case 3:
		return TierThree, nil
	case 4:
		return TierFour, nil
	}
	return "", apperr.Validation("invalid topic tier: %d", level)
}

// Safety flag keys written by MarkAsBlocked.
const (
	FlagBlocked     = "blocked"
	FlagBlockReason = "block_reason"
)

// MetaClassificationConfidence is the metadata key holding the
// classifier's confidence score.
const MetaClassificationConfidence = "classification_confidence"

// Message represents a single turn in a conversation. Role and Content
// are immutable after creation; only classification results and safety
// flags may be added later.
type Message struct {
	ID              string         `json:"id"`
	ConversationID  string         `json:"conversation_id"`
	Role            Role           `json:"role"`
	Content         string         `json:"content"`
	TopicTier       *TopicTier     `json:"topic_tier"`
	TopicCategories []string       `json:"topic_categories"`
	SafetyFlags     map[string]any `json:"safety_flags"`
	CreatedAt       time.Time      `json:"created_at"`
	Metadata        map[string]any `json:"metadata"`
}

// NewMessage creates an unclassified message in a conversation.
func NewMessage(conversationID string, role Role, content string) (*Message, error) {
	if conversationID == "" {
		return nil, apperr.Validation("conversation ID cannot be empty")
	}
	if _, err := ParseRole(string(role)); err != nil {
		return nil, err
	}
	if content == "" {
		return nil, apperr.Validation("content cannot be empty")
	}

	return &Message{
		ID:              uuid.Must(uuid.NewV7()).String(),
		ConversationID:  conversationID,
		Role:            role,
		Content:         content,
		TopicCategories: []string{},
		SafetyFlags:     map[string]any{},
		CreatedAt:       time.Now().UTC(),
		Metadata:        map[string]any{},
	}, nil
}

// IsUserMessage reports whether this is a teen's message.
func (m *Message) IsUserMessage() bool { return m.Role == RoleUser }

// IsAssistantMessage reports whether this is an AI response.
func (m *Message) IsAssistantMessage() bool { return m.Role == RoleAssistant }

// IsSystemMessage reports whether this is a system message.
func (m *Message) IsSystemMessage() bool { return m.Role == RoleSystem }

// SetTopicClassification records the classifier's result. A message can
// be classified at most once; re-classification is a caller error. The
// confidence score is informational and lands in Metadata, it does not
// constrain the tier.
func (m *Message) SetTopicClassification(tier TopicTier, categories []string, confidence *float64) error {
	if m.TopicTier != nil {
		return apperr.InvalidState("message is already classified")
	}
	switch tier {
	case TierOne, TierTwo, TierThree, TierFour:
	default:
		return apperr.Validation("invalid topic tier: %q", tier)
	}

	m.TopicTier = &tier
	if categories == nil {
		categories = []string{}
	}
	m.TopicCategories = categories
	if confidence != nil {
		m.Metadata[MetaClassificationConfidence] = *confidence
	}
	return nil
}

// AddSafetyFlag merges one flag into SafetyFlags. Flags are append-only;
// existing entries are never removed.
func (m *Message) AddSafetyFlag(key string, value any) error {
	if key == "" {
		return apperr.Validation("safety flag key cannot be empty")
	}
	m.SafetyFlags[key] = value
	return nil
}

// MarkAsBlocked forces the message to tier 4 and records the reason as a
// safety flag. Blocking overrides any prior classification and is
// terminal with respect to the tier.
func (m *Message) MarkAsBlocked(reason string) {
	tier := TierFour
	m.TopicTier = &tier
	m.SafetyFlags[FlagBlocked] = true
	m.SafetyFlags[FlagBlockReason] = reason
}

// IsSafe reports whether the message has no safety flags and is not
// tier 4.
func (m *Message) IsSafe() bool {
	return len(m.SafetyFlags) == 0 && !m.IsTier4()
}

// NeedsApproval reports whether the message requires parental approval
// (tier 2 or 3).
func (m *Message) NeedsApproval() bool {
	if m.TopicTier == nil {
		return false
	}
	return *m.TopicTier == TierTwo || *m.TopicTier == TierThree
}

// IsTier4 reports whether the message is blocked.
func (m *Message) IsTier4() bool {
	return m.TopicTier != nil && *m.TopicTier == TierFour
}

// Preview returns the content truncated to maxLen runes, with an
// ellipsis marker when truncated.
func (m *Message) Preview(maxLen int) string {
	runes := []rune(m.Content)
	if len(runes) <= maxLen {
		return m.Content
	}
	return string(runes[:maxLen]) + "..."
}

// CreateMessageRequest is the request to append a message to a
// conversation. The safety fields are optional write-through slots for
// results the caller already has; the token fields carry assistant usage
// for tracking.
type CreateMessageRequest struct {
	Role            string   `json:"role"`
	Content         string   `json:"content"`
	TopicTier       *int     `json:"topic_tier,omitempty"`
	TopicCategories []string `json:"topic_categories,omitempty"`

	Provider     string   `json:"provider,omitempty"`
	Model        string   `json:"model,omitempty"`
	InputTokens  *int     `json:"input_tokens,omitempty"`
	OutputTokens *int     `json:"output_tokens,omitempty"`
	TotalTokens  *int     `json:"total_tokens,omitempty"`
	CostUSD      *float64 `json:"cost_usd,omitempty"`
}

// ClassifyMessageRequest is the classifier's write-back of a topic
// classification result.
type ClassifyMessageRequest struct {
	Tier       int      `json:"tier"`
	Categories []string `json:"categories,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// AddSafetyFlagRequest adds one safety flag to a message.
type AddSafetyFlagRequest struct {
	Flag    string `json:"flag"`
	Details any    `json:"details,omitempty"`
}

// BlockMessageRequest marks a message as blocked.
type BlockMessageRequest struct {
	Reason string `json:"reason"`
}

// ListMessagesResponse is the response for listing messages.
type ListMessagesResponse struct {
	Messages []*Message `json:"messages"`
	Total    int        `json:"total"`
	HasMore  bool       `json:"has_more"`
}
