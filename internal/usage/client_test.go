package usage

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modai-platform/message-service/pkg/logger"
)

const testUserID = "0190b9f9-9c7a-7cc8-b2d1-6d6a2b3c4d5e"

func TestDisabledClient(t *testing.T) {
	c := NewClient("", time.Second, logger.NewNop())
	ctx := context.Background()

	assert.False(t, c.Enabled())

	result, err := c.CheckDailyMessageLimit(ctx, testUserID)
	require.NoError(t, err)
	assert.True(t, result.Allowed, "disabled client answers allowed")

	assert.NoError(t, c.RecordMessage(ctx, MessageRecord{UserID: testUserID}))
	assert.NoError(t, c.RecordTokenUsage(ctx, TokenUsageRecord{UserID: testUserID}))
}

func TestCheckDailyMessageLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/usage/"+testUserID+"/daily-limit", r.URL.Path)
		json.NewEncoder(w).Encode(LimitResult{Allowed: false, MessagesSent: 50, MessagesLimit: 50})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, logger.NewNop())
	result, err := c.CheckDailyMessageLimit(context.Background(), testUserID)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, 50, result.MessagesSent)
	assert.Equal(t, 50, result.MessagesLimit)
}

func TestCheckDailyMessageLimit_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, logger.NewNop())
	_, err := c.CheckDailyMessageLimit(context.Background(), testUserID)
	assert.Error(t, err)
}

func TestRecordMessage(t *testing.T) {
	var got MessageRecord
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/usage/messages", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	tier := 2
	c := NewClient(srv.URL, time.Second, logger.NewNop())
	err := c.RecordMessage(context.Background(), MessageRecord{
		UserID:         testUserID,
		ConversationID: "conv-1",
		TopicTier:      &tier,
	})
	require.NoError(t, err)
	assert.Equal(t, testUserID, got.UserID)
	require.NotNil(t, got.TopicTier)
	assert.Equal(t, 2, *got.TopicTier)
}

func TestRecordTokenUsage(t *testing.T) {
	var got TokenUsageRecord
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/usage/tokens", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, logger.NewNop())
	err := c.RecordTokenUsage(context.Background(), TokenUsageRecord{
		UserID:      testUserID,
		Provider:    "anthropic",
		Model:       "claude-sonnet",
		TotalTokens: 512,
	})
	require.NoError(t, err)
	assert.Equal(t, 512, got.TotalTokens)
	assert.Equal(t, "anthropic", got.Provider)
}

func TestRecordMessage_RejectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, logger.NewNop())
	err := c.RecordMessage(context.Background(), MessageRecord{UserID: testUserID})
	assert.Error(t, err)
}
