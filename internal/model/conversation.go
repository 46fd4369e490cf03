// Package model defines data structures for the support chat service.
package model

import (
	"time"
)

// AgentStatus is the lifecycle state of an agent session.
type AgentStatus string

const (
	AgentStatusWaiting AgentStatus = "waiting"
	AgentStatusActive  AgentStatus = "active"
)

// Contact holds optional customer contact fields.
type Contact struct {
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// ConversationSession is the canonical state of one customer conversation.
type ConversationSession struct {
	ID                  string     `json:"session_id"`
	History             []Message  `json:"history"`
	Escalated           bool       `json:"escalated"`
	AgentID             string     `json:"agent_id,omitempty"`
	EscalatedAt         *time.Time `json:"escalated_at,omitempty"`
	ConfidenceHistory   []float64  `json:"confidence_scores"`
	LowConfidenceStreak int        `json:"low_confidence_streak"`
	Contact             Contact    `json:"contact"`
}

// AgentSession is the human-agent side of one escalation.
type AgentSession struct {
	AgentID     string      `json:"agent_id"`
	SessionID   string      `json:"session_id"`
	History     []Message   `json:"history"`
	Status      AgentStatus `json:"status"`
	EscalatedAt time.Time   `json:"escalated_at"`
}

// ChatRequest is the body of submit-user-message.
type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// ChatReply is the outcome of submit-user-message.
type ChatReply struct {
	SessionID  string   `json:"session_id"`
	Reply      string   `json:"reply"`
	Escalated  bool     `json:"escalated"`
	AgentID    string   `json:"agent_id,omitempty"`
	Confidence *float64 `json:"confidence_score,omitempty"`

	// Forwarded is true when the message bypassed the assistant and went to the agent.
	Forwarded bool      `json:"forwarded,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// AgentMessageRequest is the body of submit-agent-message.
type AgentMessageRequest struct {
	SessionID string `json:"session_id"`
	AgentID   string `json:"agent_id"`
	Message   string `json:"message"`
}

// StatusResponse is a generic status envelope.
type StatusResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	AgentID   string `json:"agent_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// SessionStatus is the payload of get-session-status.
type SessionStatus struct {
	SessionID           string     `json:"session_id"`
	IsEscalated         bool       `json:"is_escalated"`
	AgentID             string     `json:"agent_id,omitempty"`
	EscalatedAt         *time.Time `json:"escalated_at,omitempty"`
	MessageCount        int        `json:"message_count"`
	ConfidenceScores    []float64  `json:"confidence_scores"`
	LowConfidenceStreak int        `json:"low_confidence_streak"`
	ConfidenceThreshold float64    `json:"confidence_threshold"`
	CustomerConnected   bool       `json:"customer_connected"`
	AgentConnected      bool       `json:"agent_connected"`
}

// SessionHistory is the payload of get-session-history.
type SessionHistory struct {
	SessionID   string     `json:"session_id"`
	History     []Message  `json:"history"`
	Escalated   bool       `json:"escalated"`
	AgentID     string     `json:"agent_id,omitempty"`
	EscalatedAt *time.Time `json:"escalated_at,omitempty"`
}

// SessionSummary is the payload of get-session-summary.
type SessionSummary struct {
	Status       string     `json:"status"`
	Summary      string     `json:"summary"`
	MessageCount int        `json:"message_count"`
	Escalated    bool       `json:"escalated"`
	AgentID      string     `json:"agent_id,omitempty"`
	EscalatedAt  *time.Time `json:"escalated_at,omitempty"`
}

// WaitingSession is one entry of list-waiting-sessions.
type WaitingSession struct {
	AgentID      string    `json:"agent_id"`
	SessionID    string    `json:"session_id"`
	EscalatedAt  time.Time `json:"escalated_at"`
	MessageCount int       `json:"message_count"`
}

// WaitingSessionsResponse is the payload of list-waiting-sessions.
type WaitingSessionsResponse struct {
	EscalatedSessions []WaitingSession `json:"escalated_sessions"`
	TotalWaiting      int              `json:"total_waiting"`
}
