package model

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleAgent     Role = "agent"
	RoleSystem    Role = "system"
)

// Message is one entry of a conversation transcript. It is never edited once appended.
type Message struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// Confidence is set only for assistant messages.
	Confidence *float64 `json:"confidence,omitempty"`
	// AgentID is set only for agent messages.
	AgentID string `json:"agent_id,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// NewUserMessage builds a customer-authored message.
func NewUserMessage(content string, at time.Time) Message {
	return Message{
		ID:        ulid.Make().String(),
		Role:      RoleUser,
		Content:   content,
		Timestamp: at,
	}
}

// NewAssistantMessage builds an assistant-authored message carrying its confidence.
func NewAssistantMessage(content string, confidence float64, at time.Time) Message {
	return Message{
		ID:         ulid.Make().String(),
		Role:       RoleAssistant,
		Content:    content,
		Confidence: &confidence,
		Timestamp:  at,
	}
}

// NewAgentMessage builds a human-agent-authored message.
func NewAgentMessage(content, agentID string, at time.Time) Message {
	return Message{
		ID:        ulid.Make().String(),
		Role:      RoleAgent,
		Content:   content,
		AgentID:   agentID,
		Timestamp: at,
	}
}

// CopyMessages returns a copy of msgs that shares no backing array.
func CopyMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}
