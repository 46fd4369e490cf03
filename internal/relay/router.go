// Package relay routes events to the live duplex connection of a customer or agent.
package relay

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/capitalize-ai/support-desk/pkg/logger"
	"github.com/capitalize-ai/support-desk/pkg/metrics"
)

// Conn is a live connection able to carry one frame.
type Conn interface {
	Send(ctx context.Context, frame []byte) error
}

// Router holds three registries: connection id to connection, and session id and
// agent id to connection id. Delivery to an unregistered target is a silent drop.
type Router struct {
	mu       sync.RWMutex
	conns    map[string]Conn
	sessions map[string]string
	agents   map[string]string

	logger *logger.Logger
}

// NewRouter creates an empty router.
func NewRouter(log *logger.Logger) *Router {
	if log == nil {
		log = logger.Nop()
	}
	return &Router{
		conns:    make(map[string]Conn),
		sessions: make(map[string]string),
		agents:   make(map[string]string),
		logger:   log,
	}
}

// Register adds a connection under connID, replacing any previous one.
func (r *Router) Register(connID string, c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[connID] = c
}

// BindSession points a conversation id at a registered connection.
func (r *Router) BindSession(sessionID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sessionID] = connID
}

// BindAgent points an agent id at a registered connection.
func (r *Router) BindAgent(agentID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[agentID] = connID
}

// Unregister removes the connection and every mapping that still points to it.
func (r *Router) Unregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.conns, connID)
	for id, c := range r.sessions {
		if c == connID {
			delete(r.sessions, id)
		}
	}
	for id, c := range r.agents {
		if c == connID {
			delete(r.agents, id)
		}
	}
}

// SendToSession delivers v to the customer connection of sessionID.
func (r *Router) SendToSession(ctx context.Context, sessionID string, v any) bool {
	r.mu.RLock()
	connID, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		metrics.RecordDelivery("session", false)
		return false
	}
	return r.deliver(ctx, "session", connID, v)
}

// SendToAgent delivers v to the connection of agentID.
func (r *Router) SendToAgent(ctx context.Context, agentID string, v any) bool {
	r.mu.RLock()
	connID, ok := r.agents[agentID]
	r.mu.RUnlock()
	if !ok {
		metrics.RecordDelivery("agent", false)
		return false
	}
	return r.deliver(ctx, "agent", connID, v)
}

// SendToConn delivers v directly to a connection.
func (r *Router) SendToConn(ctx context.Context, connID string, v any) bool {
	return r.deliver(ctx, "conn", connID, v)
}

// HasSession reports whether the conversation has a live connection.
func (r *Router) HasSession(sessionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[sessionID]
	return ok
}

// HasAgent reports whether the agent has a live connection.
func (r *Router) HasAgent(agentID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.agents[agentID]
	return ok
}

func (r *Router) deliver(ctx context.Context, target, connID string, v any) bool {
	r.mu.RLock()
	c, ok := r.conns[connID]
	r.mu.RUnlock()
	if !ok {
		metrics.RecordDelivery(target, false)
		return false
	}

	frame, err := json.Marshal(v)
	if err != nil {
		r.logger.Error("failed to encode relay frame", zap.String("conn_id", connID), zap.Error(err))
		metrics.RecordDelivery(target, false)
		return false
	}

	if err := c.Send(ctx, frame); err != nil {
		r.logger.Warn("relay send failed", zap.String("conn_id", connID), zap.String("target", target), zap.Error(err))
		metrics.RecordDelivery(target, false)
		return false
	}

	metrics.RecordDelivery(target, true)
	return true
}
