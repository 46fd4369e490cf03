package model

import (
	"time"
)

// EscalationRecord is the durable row written once per escalation.
type EscalationRecord struct {
	ID          int64      `json:"id"`
	Summary     string     `json:"summary"`
	Email       string     `json:"email,omitempty"`
	Phone       string     `json:"phone,omitempty"`
	AgentID     string     `json:"agent_id"`
	SessionID   string     `json:"session_id"`
	Escalated   bool       `json:"escalated"`
	EscalatedAt *time.Time `json:"escalated_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// EventType represents the type of support lifecycle event.
type EventType string

const (
	EventTypeEscalated EventType = "escalated"
	EventTypeClaimed   EventType = "claimed"
)

// SupportEvent is published to the event log on lifecycle transitions.
type SupportEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	AgentID   string    `json:"agent_id"`
	Reason    string    `json:"reason,omitempty"`
	Summary   string    `json:"summary,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
