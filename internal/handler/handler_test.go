package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modai-platform/message-service/internal/model"
	"github.com/modai-platform/message-service/internal/queue"
	"github.com/modai-platform/message-service/internal/service"
	"github.com/modai-platform/message-service/internal/store"
	"github.com/modai-platform/message-service/internal/usage"
	"github.com/modai-platform/message-service/pkg/logger"
)

const testTeenID = "0190b9f9-9c7a-7cc8-b2d1-6d6a2b3c4d5e"

// newTestRouter wires real services on the memory store behind the same
// route tree the server mounts, minus auth and rate limiting.
func newTestRouter(t *testing.T) chi.Router {
	t.Helper()

	st := store.NewMemoryStore()
	log := logger.NewNop()
	convSvc := service.NewConversationService(st, service.Config{}, log)
	msgSvc := service.NewMessageService(st, queue.NewNoopPublisher(), usage.NewClient("", 0, log), service.Config{}, log)

	convs := NewConversationHandler(convSvc, log)
	msgs := NewMessageHandler(msgSvc, log)
	health := NewHealthHandler(st)

	r := chi.NewRouter()
	r.Get("/health", health.Health)
	r.Get("/ready", health.Ready)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/conversations", convs.Create)
		r.Route("/conversations/{id}", func(r chi.Router) {
			r.Get("/", convs.Get)
			r.Patch("/", convs.Update)
			r.Delete("/", convs.Delete)
			r.Get("/with-messages", convs.GetWithMessages)
			r.Get("/messages", msgs.List)
			r.Post("/messages", msgs.Create)
		})
		r.Get("/teens/{teenID}/conversations", convs.ListByTeen)
		r.Route("/messages/{id}", func(r chi.Router) {
			r.Get("/", msgs.Get)
			r.Put("/classification", msgs.Classify)
			r.Post("/safety-flags", msgs.AddSafetyFlag)
			r.Post("/block", msgs.Block)
		})
	})
	return r
}

func doJSON(t *testing.T, r chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func createConversation(t *testing.T, r chi.Router) *model.Conversation {
	t.Helper()
	rec := doJSON(t, r, http.MethodPost, "/api/v1/conversations", model.CreateConversationRequest{TeenID: testTeenID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[*model.Conversation](t, rec)
}

func appendMessage(t *testing.T, r chi.Router, conversationID, role, content string) *model.Message {
	t.Helper()
	rec := doJSON(t, r, http.MethodPost, "/api/v1/conversations/"+conversationID+"/messages",
		model.CreateMessageRequest{Role: role, Content: content})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[*model.Message](t, rec)
}

func TestHealthEndpoints(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(t, r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, r, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestCreateConversation(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/conversations", model.CreateConversationRequest{
		TeenID: testTeenID,
		Title:  "Chemistry",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	conv := decodeBody[*model.Conversation](t, rec)
	assert.Equal(t, "Chemistry", conv.Title)
	assert.Equal(t, model.ConversationActive, conv.Status)
	assert.NotEmpty(t, conv.ID)
}

func TestCreateConversation_Validation(t *testing.T) {
	r := newTestRouter(t)

	tests := []struct {
		name string
		body any
		want int
	}{
		{"bad teen id", model.CreateConversationRequest{TeenID: "not-a-uuid"}, http.StatusBadRequest},
		{"missing teen id", model.CreateConversationRequest{}, http.StatusBadRequest},
		{"oversized title", model.CreateConversationRequest{TeenID: testTeenID, Title: strings.Repeat("x", 201)}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, r, http.MethodPost, "/api/v1/conversations", tt.body)
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/conversations", strings.NewReader("{broken"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetConversation_NotFound(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(t, r, http.MethodGet, "/api/v1/conversations/0190b9f9-0000-7000-8000-000000000000", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, r, http.MethodGet, "/api/v1/conversations/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAppendAndListMessages(t *testing.T) {
	r := newTestRouter(t)
	conv := createConversation(t, r)

	appendMessage(t, r, conv.ID, "user", "what is osmosis")
	appendMessage(t, r, conv.ID, "assistant", "osmosis is diffusion of water")

	rec := doJSON(t, r, http.MethodGet, "/api/v1/conversations/"+conv.ID+"/messages", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[model.ListMessagesResponse](t, rec)
	require.Len(t, list.Messages, 2)
	assert.Equal(t, "what is osmosis", list.Messages[0].Content)
	assert.Equal(t, 2, list.Total)
	assert.False(t, list.HasMore)

	rec = doJSON(t, r, http.MethodGet, "/api/v1/conversations/"+conv.ID+"/messages?limit=1&offset=0", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list = decodeBody[model.ListMessagesResponse](t, rec)
	assert.Len(t, list.Messages, 1)
	assert.True(t, list.HasMore)
}

func TestAppendMessage_Validation(t *testing.T) {
	r := newTestRouter(t)
	conv := createConversation(t, r)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages",
		model.CreateMessageRequest{Role: "user", Content: ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, r, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages",
		model.CreateMessageRequest{Role: "wizard", Content: "hi"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAppendMessage_ArchivedConflict(t *testing.T) {
	r := newTestRouter(t)
	conv := createConversation(t, r)

	rec := doJSON(t, r, http.MethodPatch, "/api/v1/conversations/"+conv.ID, model.UpdateConversationRequest{Status: "archived"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, r, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages",
		model.CreateMessageRequest{Role: "user", Content: "hi"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUpdateConversation_Lifecycle(t *testing.T) {
	r := newTestRouter(t)
	conv := createConversation(t, r)

	rec := doJSON(t, r, http.MethodPatch, "/api/v1/conversations/"+conv.ID, model.UpdateConversationRequest{Title: "Renamed"})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decodeBody[*model.Conversation](t, rec)
	assert.Equal(t, "Renamed", updated.Title)

	rec = doJSON(t, r, http.MethodPatch, "/api/v1/conversations/"+conv.ID, model.UpdateConversationRequest{Status: "deleted"})
	require.Equal(t, http.StatusOK, rec.Code)

	// Deleted is terminal.
	rec = doJSON(t, r, http.MethodPatch, "/api/v1/conversations/"+conv.ID, model.UpdateConversationRequest{Status: "active"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, r, http.MethodPatch, "/api/v1/conversations/"+conv.ID, model.UpdateConversationRequest{Status: "bogus"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteConversation(t *testing.T) {
	r := newTestRouter(t)
	conv := createConversation(t, r)
	msg := appendMessage(t, r, conv.ID, "user", "hi")

	rec := doJSON(t, r, http.MethodDelete, "/api/v1/conversations/"+conv.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, r, http.MethodGet, "/api/v1/conversations/"+conv.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, r, http.MethodGet, "/api/v1/messages/"+msg.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "hard delete cascades to messages")
}

func TestListConversationsByTeen(t *testing.T) {
	r := newTestRouter(t)
	for i := 0; i < 3; i++ {
		createConversation(t, r)
	}

	rec := doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/v1/teens/%s/conversations?limit=2", testTeenID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[model.ListConversationsResponse](t, rec)
	assert.Len(t, list.Conversations, 2)
	assert.Equal(t, 3, list.Total)
	assert.True(t, list.HasMore)

	rec = doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/v1/teens/%s/conversations?status=archived", testTeenID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list = decodeBody[model.ListConversationsResponse](t, rec)
	assert.Empty(t, list.Conversations)
	assert.Zero(t, list.Total)
}

func TestGetConversationWithMessages(t *testing.T) {
	r := newTestRouter(t)
	conv := createConversation(t, r)
	appendMessage(t, r, conv.ID, "user", "hi")
	appendMessage(t, r, conv.ID, "assistant", "hello")

	rec := doJSON(t, r, http.MethodGet, "/api/v1/conversations/"+conv.ID+"/with-messages", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[model.ConversationWithMessagesResponse](t, rec)
	assert.Equal(t, conv.ID, resp.Conversation.ID)
	assert.Len(t, resp.Messages, 2)
	assert.Equal(t, 2, resp.TotalMessages)
}

func TestClassifyMessage(t *testing.T) {
	r := newTestRouter(t)
	conv := createConversation(t, r)
	msg := appendMessage(t, r, conv.ID, "user", "hi")

	conf := 0.88
	rec := doJSON(t, r, http.MethodPut, "/api/v1/messages/"+msg.ID+"/classification",
		model.ClassifyMessageRequest{Tier: 2, Categories: []string{"Relationships"}, Confidence: &conf})
	require.Equal(t, http.StatusOK, rec.Code)
	classified := decodeBody[*model.Message](t, rec)
	require.NotNil(t, classified.TopicTier)
	assert.Equal(t, model.TierTwo, *classified.TopicTier)

	rec = doJSON(t, r, http.MethodPut, "/api/v1/messages/"+msg.ID+"/classification",
		model.ClassifyMessageRequest{Tier: 1})
	assert.Equal(t, http.StatusConflict, rec.Code, "classification is write once")

	rec = doJSON(t, r, http.MethodPut, "/api/v1/messages/"+msg.ID+"/classification",
		model.ClassifyMessageRequest{Tier: 9})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSafetyFlagAndBlock(t *testing.T) {
	r := newTestRouter(t)
	conv := createConversation(t, r)
	msg := appendMessage(t, r, conv.ID, "user", "hi")

	rec := doJSON(t, r, http.MethodPost, "/api/v1/messages/"+msg.ID+"/safety-flags",
		model.AddSafetyFlagRequest{Flag: "pii_detected", Details: map[string]any{"kind": "address"}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, r, http.MethodPost, "/api/v1/messages/"+msg.ID+"/safety-flags",
		model.AddSafetyFlagRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, r, http.MethodPost, "/api/v1/messages/"+msg.ID+"/block",
		model.BlockMessageRequest{Reason: "explicit content"})
	require.Equal(t, http.StatusOK, rec.Code)
	blocked := decodeBody[*model.Message](t, rec)
	assert.True(t, blocked.IsTier4())

	rec = doJSON(t, r, http.MethodPost, "/api/v1/messages/"+msg.ID+"/block",
		model.BlockMessageRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
