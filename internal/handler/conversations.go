// Package handler provides HTTP handlers for the API.
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/modai-platform/message-service/internal/middleware"
	"github.com/modai-platform/message-service/internal/model"
	"github.com/modai-platform/message-service/internal/service"
	"github.com/modai-platform/message-service/pkg/logger"
)

// ConversationHandler handles conversation endpoints.
type ConversationHandler struct {
	service *service.ConversationService
	logger  *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(svc *service.ConversationService, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		service: svc,
		logger:  log,
	}
}

// Create handles POST /api/v1/conversations
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateID(req.TeenID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid teen ID format")
		return
	}
	if req.Title != "" {
		if err := middleware.ValidateTitle(req.Title); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	conv, err := h.service.Create(r.Context(), &req)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to create conversation")
		return
	}

	writeJSON(w, http.StatusCreated, conv)
}

// Get handles GET /api/v1/conversations/{id}
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv, err := h.service.Get(r.Context(), conversationID)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to get conversation")
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// ListByTeen handles GET /api/v1/teens/{teenID}/conversations
func (h *ConversationHandler) ListByTeen(w http.ResponseWriter, r *http.Request) {
	teenID := chi.URLParam(r, "teenID")
	if err := middleware.ValidateID(teenID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid teen ID format")
		return
	}

	status := r.URL.Query().Get("status")
	limit, offset := pagination(r)

	resp, err := h.service.ListByTeen(r.Context(), teenID, status, limit, offset)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to list conversations")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Update handles PATCH /api/v1/conversations/{id}
func (h *ConversationHandler) Update(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.UpdateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Title != "" {
		if err := middleware.ValidateTitle(req.Title); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	conv, err := h.service.Update(r.Context(), conversationID, &req)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to update conversation")
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// Delete handles DELETE /api/v1/conversations/{id} (hard delete)
func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.Delete(r.Context(), conversationID); err != nil {
		writeServiceError(w, h.logger, err, "failed to delete conversation")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetWithMessages handles GET /api/v1/conversations/{id}/with-messages
func (h *ConversationHandler) GetWithMessages(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit, offset := pagination(r)

	resp, err := h.service.GetWithMessages(r.Context(), conversationID, limit, offset)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to get conversation")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// pagination reads limit/offset query params; zero values defer to the
// service defaults.
func pagination(r *http.Request) (limit, offset int) {
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}
