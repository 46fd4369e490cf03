package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/support-desk/internal/middleware"
	"github.com/capitalize-ai/support-desk/internal/model"
	"github.com/capitalize-ai/support-desk/internal/service"
	"github.com/capitalize-ai/support-desk/pkg/logger"
)

// ChatHandler handles the customer-facing REST endpoints.
type ChatHandler struct {
	service *service.ChatService
	logger  *logger.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(svc *service.ChatService, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		service: svc,
		logger:  log,
	}
}

// Chat handles POST /api/v1/chat
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req model.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateSessionID(req.SessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateMessageContent(req.Message); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reply, err := h.service.SubmitUserMessage(r.Context(), req)
	if err != nil {
		h.logger.WithSession(req.SessionID).Error("chat turn failed",
			zap.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			zap.Error(err),
		)
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, reply)
}

// Status handles GET /api/v1/sessions/{id}/status
func (h *ChatHandler) Status(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	status, err := h.service.Status(sessionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// History handles GET /api/v1/sessions/{id}/history
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	history, err := h.service.History(sessionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// Summary handles GET /api/v1/sessions/{id}/summary
func (h *ChatHandler) Summary(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	summary, err := h.service.Summary(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// EventSchemas handles GET /api/v1/schema/events
func (h *ChatHandler) EventSchemas(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.EventSchemas())
}
