package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/modai-platform/message-service/internal/middleware"
	"github.com/modai-platform/message-service/internal/model"
	"github.com/modai-platform/message-service/internal/service"
	"github.com/modai-platform/message-service/pkg/logger"
)

// MessageHandler handles message endpoints.
type MessageHandler struct {
	service *service.MessageService
	logger  *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(svc *service.MessageService, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		service: svc,
		logger:  log,
	}
}

// Create handles POST /api/v1/conversations/{id}/messages
func (h *MessageHandler) Create(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.CreateMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := h.service.Append(r.Context(), conversationID, &req)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to create message")
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

// List handles GET /api/v1/conversations/{id}/messages
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit, offset := pagination(r)

	resp, err := h.service.List(r.Context(), conversationID, limit, offset)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to list messages")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/messages/{id}
func (h *MessageHandler) Get(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "id")
	if err := middleware.ValidateID(messageID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := h.service.Get(r.Context(), messageID)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to get message")
		return
	}

	writeJSON(w, http.StatusOK, msg)
}

// Classify handles PUT /api/v1/messages/{id}/classification. This is
// the topic classifier's write-back endpoint.
func (h *MessageHandler) Classify(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "id")
	if err := middleware.ValidateID(messageID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.ClassifyMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := h.service.Classify(r.Context(), messageID, &req)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to classify message")
		return
	}

	writeJSON(w, http.StatusOK, msg)
}

// AddSafetyFlag handles POST /api/v1/messages/{id}/safety-flags
func (h *MessageHandler) AddSafetyFlag(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "id")
	if err := middleware.ValidateID(messageID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.AddSafetyFlagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Flag == "" {
		writeError(w, http.StatusBadRequest, "flag cannot be empty")
		return
	}

	msg, err := h.service.AddSafetyFlag(r.Context(), messageID, req.Flag, req.Details)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to add safety flag")
		return
	}

	writeJSON(w, http.StatusOK, msg)
}

// Block handles POST /api/v1/messages/{id}/block
func (h *MessageHandler) Block(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "id")
	if err := middleware.ValidateID(messageID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.BlockMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Reason == "" {
		writeError(w, http.StatusBadRequest, "reason cannot be empty")
		return
	}

	msg, err := h.service.Block(r.Context(), messageID, req.Reason)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to block message")
		return
	}

	writeJSON(w, http.StatusOK, msg)
}
