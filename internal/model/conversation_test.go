package model

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modai-platform/message-service/internal/apperr"
)

const testTeenID = "0190b9f9-9c7a-7cc8-b2d1-6d6a2b3c4d5e"

func TestNewConversation(t *testing.T) {
	tests := []struct {
		name      string
		teenID    string
		title     string
		wantTitle string
		wantErr   bool
	}{
		{
			name:      "custom title",
			teenID:    testTeenID,
			title:     "Math Help",
			wantTitle: "Math Help",
		},
		{
			name:      "default title when absent",
			teenID:    testTeenID,
			title:     "",
			wantTitle: DefaultTitle,
		},
		{
			name:    "empty teen ID",
			teenID:  "",
			title:   "Math Help",
			wantErr: true,
		},
		{
			name:    "oversized title rejected, not truncated",
			teenID:  testTeenID,
			title:   strings.Repeat("x", MaxTitleLength+1),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conv, err := NewConversation(tt.teenID, tt.title)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperr.IsValidation(err))
				return
			}

			require.NoError(t, err)
			assert.NotEmpty(t, conv.ID)
			assert.Equal(t, tt.wantTitle, conv.Title)
			assert.Equal(t, ConversationActive, conv.Status)
			assert.Zero(t, conv.MessageCount)
			assert.Nil(t, conv.LastMessageAt)
		})
	}
}

func TestConversation_AddMessage(t *testing.T) {
	conv, err := NewConversation(testTeenID, "Math Help")
	require.NoError(t, err)

	var last *Message
	for i := 0; i < 3; i++ {
		msg, err := NewMessage(conv.ID, RoleUser, "Help me solve 2x+5=15")
		require.NoError(t, err)
		require.NoError(t, conv.AddMessage(msg))
		last = msg
	}

	assert.Equal(t, 3, conv.MessageCount)
	require.NotNil(t, conv.LastMessageAt)
	assert.True(t, conv.LastMessageAt.Equal(last.CreatedAt),
		"last_message_at must come from the message, not the write time")
}

func TestConversation_AddMessageRejectedWhenNotActive(t *testing.T) {
	conv, err := NewConversation(testTeenID, "Math Help")
	require.NoError(t, err)

	msg, err := NewMessage(conv.ID, RoleUser, "hello")
	require.NoError(t, err)
	require.NoError(t, conv.AddMessage(msg))
	require.NoError(t, conv.Archive())

	msg2, err := NewMessage(conv.ID, RoleUser, "still there?")
	require.NoError(t, err)

	err = conv.AddMessage(msg2)
	require.Error(t, err)
	assert.True(t, apperr.IsInvalidState(err))
	assert.Equal(t, 1, conv.MessageCount, "count must not move on a rejected append")
}

func TestConversation_StateMachine(t *testing.T) {
	t.Run("archive then restore round-trips", func(t *testing.T) {
		conv, err := NewConversation(testTeenID, "")
		require.NoError(t, err)

		for i := 0; i < 2; i++ {
			require.NoError(t, conv.Archive())
			assert.True(t, conv.IsArchived())
			require.NoError(t, conv.Restore())
			assert.True(t, conv.IsActive())
		}
	})

	t.Run("archive requires active", func(t *testing.T) {
		conv, err := NewConversation(testTeenID, "")
		require.NoError(t, err)
		require.NoError(t, conv.Archive())

		err = conv.Archive()
		assert.True(t, apperr.IsInvalidState(err))
	})

	t.Run("restore requires archived", func(t *testing.T) {
		conv, err := NewConversation(testTeenID, "")
		require.NoError(t, err)

		err = conv.Restore()
		assert.True(t, apperr.IsInvalidState(err))
	})

	t.Run("delete from active and archived", func(t *testing.T) {
		conv, err := NewConversation(testTeenID, "")
		require.NoError(t, err)
		require.NoError(t, conv.Delete())

		conv2, err := NewConversation(testTeenID, "")
		require.NoError(t, err)
		require.NoError(t, conv2.Archive())
		require.NoError(t, conv2.Delete())
	})

	t.Run("deleted is terminal", func(t *testing.T) {
		conv, err := NewConversation(testTeenID, "")
		require.NoError(t, err)
		require.NoError(t, conv.Delete())

		assert.True(t, apperr.IsInvalidState(conv.Archive()))
		assert.True(t, apperr.IsInvalidState(conv.Restore()))
		assert.True(t, apperr.IsInvalidState(conv.Delete()))
		assert.True(t, conv.IsDeleted())
	})
}

func TestConversation_SetTitle(t *testing.T) {
	conv, err := NewConversation(testTeenID, "")
	require.NoError(t, err)
	before := conv.UpdatedAt

	time.Sleep(time.Millisecond)
	require.NoError(t, conv.SetTitle("  Chemistry Notes  "))
	assert.Equal(t, "Chemistry Notes", conv.Title)
	assert.True(t, conv.UpdatedAt.After(before))

	assert.True(t, apperr.IsValidation(conv.SetTitle("   ")))
	assert.True(t, apperr.IsValidation(conv.SetTitle(strings.Repeat("x", MaxTitleLength+1))))
}

func TestParseConversationStatus(t *testing.T) {
	for _, valid := range []string{"active", "archived", "deleted"} {
		status, err := ParseConversationStatus(valid)
		require.NoError(t, err)
		assert.Equal(t, ConversationStatus(valid), status)
	}

	_, err := ParseConversationStatus("paused")
	assert.True(t, apperr.IsValidation(err))
}
