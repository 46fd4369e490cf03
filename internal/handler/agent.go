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

// AgentHandler handles the agent console REST endpoints.
type AgentHandler struct {
	service *service.ChatService
	logger  *logger.Logger
}

// NewAgentHandler creates a new agent handler.
func NewAgentHandler(svc *service.ChatService, log *logger.Logger) *AgentHandler {
	return &AgentHandler{
		service: svc,
		logger:  log,
	}
}

// ListWaiting handles GET /api/v1/agent/sessions
func (h *AgentHandler) ListWaiting(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.ListWaiting())
}

// Take handles POST /api/v1/agent/sessions/{agentID}/take
func (h *AgentHandler) Take(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")

	agent, err := h.service.ClaimSession(r.Context(), agentID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	h.logger.WithAgent(agent.AgentID, agent.SessionID).Info("agent session taken",
		zap.String("operator", middleware.GetUserID(r.Context())),
	)
	writeJSON(w, http.StatusOK, model.StatusResponse{
		Status:    "success",
		Message:   "Session taken",
		AgentID:   agent.AgentID,
		SessionID: agent.SessionID,
	})
}

// SendMessage handles POST /api/v1/agent/messages
func (h *AgentHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req model.AgentMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessageContent(req.Message); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.service.SubmitAgentMessage(r.Context(), req); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, model.StatusResponse{
		Status:    "success",
		Message:   "Message sent",
		AgentID:   req.AgentID,
		SessionID: req.SessionID,
	})
}
