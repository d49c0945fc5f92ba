// Package usage integrates with the user service's usage tracking API.
// Tracking calls are best-effort: failures are logged by the caller and
// never fail the original request, except for an explicit over-limit
// answer from the daily message check.
package usage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/modai-platform/message-service/pkg/logger"
)

// Tracker is the usage tracking capability consumed by the services.
type Tracker interface {
	Enabled() bool
	CheckDailyMessageLimit(ctx context.Context, userID string) (*LimitResult, error)
	RecordMessage(ctx context.Context, rec MessageRecord) error
	RecordTokenUsage(ctx context.Context, rec TokenUsageRecord) error
}

// LimitResult is the user service's answer to a daily limit check.
type LimitResult struct {
	Allowed       bool `json:"allowed"`
	MessagesSent  int  `json:"messages_sent"`
	MessagesLimit int  `json:"messages_limit"`
}

// MessageRecord reports one teen message for usage accounting.
type MessageRecord struct {
	UserID         string  `json:"user_id"`
	ConversationID string  `json:"conversation_id"`
	TopicCategory  *string `json:"topic_category,omitempty"`
	TopicTier      *int    `json:"topic_tier,omitempty"`
}

// TokenUsageRecord reports LLM token consumption for one assistant
// message.
type TokenUsageRecord struct {
	UserID       string   `json:"user_id"`
	Provider     string   `json:"provider"`
	Model        string   `json:"model"`
	InputTokens  int      `json:"input_tokens"`
	OutputTokens int      `json:"output_tokens"`
	TotalTokens  int      `json:"total_tokens"`
	CostUSD      *float64 `json:"cost_usd,omitempty"`
}

// Client talks to the user service usage endpoints. A client with an
// empty base URL is disabled and answers every check as allowed.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *logger.Logger
}

// NewClient creates a usage tracking client.
func NewClient(baseURL string, timeout time.Duration, log *logger.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  log,
	}
}

// Enabled reports whether a user service URL is configured.
func (c *Client) Enabled() bool {
	return c.baseURL != ""
}

// CheckDailyMessageLimit asks whether the user may send another message
// today.
func (c *Client) CheckDailyMessageLimit(ctx context.Context, userID string) (*LimitResult, error) {
	if !c.Enabled() {
		return &LimitResult{Allowed: true}, nil
	}

	url := fmt.Sprintf("%s/api/v1/usage/%s/daily-limit", c.baseURL, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building limit check request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("checking daily limit: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("checking daily limit: user service returned %d", resp.StatusCode)
	}

	var result LimitResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding limit check response: %w", err)
	}
	return &result, nil
}

// RecordMessage reports one teen message.
func (c *Client) RecordMessage(ctx context.Context, rec MessageRecord) error {
	return c.post(ctx, "/api/v1/usage/messages", rec)
}

// RecordTokenUsage reports token consumption for one assistant message.
func (c *Client) RecordTokenUsage(ctx context.Context, rec TokenUsageRecord) error {
	return c.post(ctx, "/api/v1/usage/tokens", rec)
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	if !c.Enabled() {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling usage payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building usage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("posting usage record: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("posting usage record: user service returned %d", resp.StatusCode)
	}
	return nil
}
