package handler

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/support-desk/internal/middleware"
	"github.com/capitalize-ai/support-desk/internal/model"
	"github.com/capitalize-ai/support-desk/internal/relay"
	"github.com/capitalize-ai/support-desk/internal/service"
	"github.com/capitalize-ai/support-desk/pkg/logger"
	"github.com/capitalize-ai/support-desk/pkg/metrics"
)

const wsReadLimit = 64 * 1024

// wsConn adapts websocket.Conn to relay.Conn.
type wsConn struct {
	conn    *websocket.Conn
	timeout time.Duration
}

func (c *wsConn) Send(ctx context.Context, frame []byte) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()
	return c.conn.Write(ctx, websocket.MessageText, frame)
}

// WSHandler serves the customer and agent duplex channels.
type WSHandler struct {
	service        *service.ChatService
	router         *relay.Router
	logger         *logger.Logger
	originPatterns []string
	writeTimeout   time.Duration
}

// NewWSHandler creates a WebSocket handler. allowedOrigins are full origins as
// configured for CORS.
func NewWSHandler(svc *service.ChatService, router *relay.Router, allowedOrigins []string, log *logger.Logger) *WSHandler {
	return &WSHandler{
		service:        svc,
		router:         router,
		logger:         log,
		originPatterns: originPatterns(allowedOrigins),
		writeTimeout:   10 * time.Second,
	}
}

// originPatterns turns "https://host:port" origins into the host patterns the
// websocket library matches against.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			out = append(out, "*")
			continue
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
			continue
		}
		out = append(out, o)
	}
	return out
}

func (h *WSHandler) accept(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		return nil, err
	}
	ws.SetReadLimit(wsReadLimit)
	return ws, nil
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func closedByPeer(err error) bool {
	return websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled)
}

// Customer handles GET /ws/session/{id}
func (h *WSHandler) Customer(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	log := h.logger.WithSession(sessionID)

	ws, err := h.accept(w, r)
	if err != nil {
		log.Warn("failed to accept websocket", zap.Error(err))
		return
	}
	defer ws.Close(websocket.StatusNormalClosure, "session ended")

	connID := "session_" + sessionID + "_" + shortID()
	h.router.Register(connID, &wsConn{conn: ws, timeout: h.writeTimeout})
	h.router.BindSession(sessionID, connID)
	metrics.IncrementConnections("customer")
	defer func() {
		h.router.Unregister(connID)
		metrics.DecrementConnections("customer")
	}()

	ctx := r.Context()
	log.Info("customer connected", zap.String("conn_id", connID))

	status := model.SessionStatusEvent{Type: model.EventSessionStatus}
	if sess, err := h.service.Session(sessionID); err == nil {
		status.Escalated = sess.Escalated
		status.AgentID = sess.AgentID
		status.MessageCount = len(sess.History)
	}
	h.router.SendToConn(ctx, connID, status)

	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if closedByPeer(err) {
				log.Info("customer disconnected", zap.String("conn_id", connID))
			} else {
				log.Warn("customer read error", zap.Error(err))
			}
			return
		}

		ev, err := model.ParseCustomerEvent(data)
		if err != nil {
			h.router.SendToConn(ctx, connID, model.NewErrorEvent(err.Error()))
			continue
		}

		switch ev := ev.(type) {
		case model.CustomerUserMessage:
			h.customerMessage(ctx, connID, sessionID, ev.Message, log)
		case model.CustomerTyping:
			h.service.CustomerTyping(ctx, sessionID)
		}
	}
}

func (h *WSHandler) customerMessage(ctx context.Context, connID, sessionID, text string, log *logger.Logger) {
	reply, err := h.service.SubmitUserMessage(ctx, model.ChatRequest{SessionID: sessionID, Message: text})
	if err != nil {
		log.Error("duplex chat turn failed", zap.Error(err))
		h.router.SendToConn(ctx, connID, model.NewErrorEvent(publicMessage(err)))
		return
	}

	// Forwarded messages reach the agent directly and get no bot notice.
	if reply.Forwarded {
		return
	}

	h.router.SendToConn(ctx, connID, model.BotMessageEvent{
		Type:       model.EventBotMessage,
		Message:    reply.Reply,
		Escalated:  reply.Escalated,
		AgentID:    reply.AgentID,
		Confidence: reply.Confidence,
		Timestamp:  reply.Timestamp,
	})
}

// Agent handles GET /ws/agent/{agentID}
func (h *WSHandler) Agent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	if err := middleware.ValidateAgentID(agentID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	agent, err := h.service.Agent(agentID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	log := h.logger.WithAgent(agentID, agent.SessionID)

	ws, err := h.accept(w, r)
	if err != nil {
		log.Warn("failed to accept websocket", zap.Error(err))
		return
	}
	defer ws.Close(websocket.StatusNormalClosure, "session ended")

	connID := agentID + "_" + shortID()
	h.router.Register(connID, &wsConn{conn: ws, timeout: h.writeTimeout})
	h.router.BindAgent(agentID, connID)
	metrics.IncrementConnections("agent")
	defer func() {
		h.router.Unregister(connID)
		metrics.DecrementConnections("agent")
	}()

	ctx := r.Context()
	log.Info("agent connected",
		zap.String("conn_id", connID),
		zap.String("operator", middleware.GetUserID(ctx)),
	)

	h.router.SendToConn(ctx, connID, model.AgentStatusEvent{
		Type:              model.EventAgentStatus,
		AgentID:           agentID,
		EscalatedSessions: h.service.ListWaiting().EscalatedSessions,
	})

	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if closedByPeer(err) {
				log.Info("agent disconnected", zap.String("conn_id", connID))
			} else {
				log.Warn("agent read error", zap.Error(err))
			}
			return
		}

		ev, err := model.ParseAgentEvent(data)
		if err != nil {
			h.router.SendToConn(ctx, connID, model.NewErrorEvent(err.Error()))
			continue
		}

		switch ev := ev.(type) {
		case model.AgentChatMessage:
			_, err := h.service.SubmitAgentMessage(ctx, model.AgentMessageRequest{
				SessionID: ev.SessionID,
				AgentID:   agentID,
				Message:   ev.Message,
			})
			if err != nil {
				h.router.SendToConn(ctx, connID, model.NewErrorEvent(publicMessage(err)))
				continue
			}
			h.router.SendToConn(ctx, connID, model.MessageSentEvent{
				Type:      model.EventMessageSent,
				SessionID: ev.SessionID,
				Message:   ev.Message,
			})

		case model.AgentRelayMessage:
			if err := h.service.Authorize(agentID, ev.SessionID); err != nil {
				h.router.SendToConn(ctx, connID, model.NewErrorEvent(publicMessage(err)))
				continue
			}
			at := time.Now().UTC()
			if ev.Timestamp != nil {
				at = *ev.Timestamp
			}
			h.router.SendToConn(ctx, connID, model.UserMessageEvent{
				Type:      model.EventUserMessage,
				SessionID: ev.SessionID,
				Message:   ev.Message,
				Timestamp: at,
			})

		case model.AgentTyping:
			if ev.SessionID != "" {
				if err := h.service.Authorize(agentID, ev.SessionID); err != nil {
					h.router.SendToConn(ctx, connID, model.NewErrorEvent(publicMessage(err)))
					continue
				}
			}
			h.service.AgentTyping(ctx, agentID, ev.SessionID)
		}
	}
}

var _ relay.Conn = (*wsConn)(nil)
