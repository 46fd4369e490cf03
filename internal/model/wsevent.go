package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
)

// Duplex channel event types.
const (
	EventUserMessage         = "user_message"
	EventTyping              = "typing"
	EventAgentMessage        = "agent_message"
	EventBotMessage          = "bot_message"
	EventSessionStatus       = "session_status"
	EventAgentTyping         = "agent_typing"
	EventUserTyping          = "user_typing"
	EventAgentStatus         = "agent_status"
	EventNewEscalatedSession = "new_escalated_session"
	EventMessageSent         = "message_sent"
	EventError               = "error"
)

var (
	// ErrMalformedEvent is returned when an inbound frame fails to decode or validate.
	ErrMalformedEvent = errors.New("malformed event")
	// ErrUnknownEvent is returned for an inbound frame with an unsupported type.
	ErrUnknownEvent = errors.New("unknown event type")
)

// Inbound customer events.

// CustomerEvent is an event emitted by the customer widget.
type CustomerEvent interface {
	customerEvent()
}

// CustomerUserMessage carries a customer chat message.
type CustomerUserMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// CustomerTyping signals the customer is typing.
type CustomerTyping struct {
	Type string `json:"type"`
}

func (CustomerUserMessage) customerEvent() {}
func (CustomerTyping) customerEvent()      {}

// Inbound agent events.

// AgentEvent is an event emitted by the agent console.
type AgentEvent interface {
	agentEvent()
}

// AgentChatMessage carries an agent reply for a session.
type AgentChatMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// AgentRelayMessage asks the server to echo a customer message to the agent console.
type AgentRelayMessage struct {
	Type      string     `json:"type"`
	SessionID string     `json:"session_id"`
	Message   string     `json:"message"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// AgentTyping signals the agent is typing.
type AgentTyping struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
}

func (AgentChatMessage) agentEvent()  {}
func (AgentRelayMessage) agentEvent() {}
func (AgentTyping) agentEvent()       {}

type envelope struct {
	Type string `json:"type"`
}

// ParseCustomerEvent decodes one customer frame into its variant.
func ParseCustomerEvent(data []byte) (CustomerEvent, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	switch env.Type {
	case EventUserMessage:
		var ev CustomerUserMessage
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		if strings.TrimSpace(ev.Message) == "" {
			return nil, fmt.Errorf("%w: message is required", ErrMalformedEvent)
		}
		return ev, nil
	case EventTyping:
		return CustomerTyping{Type: EventTyping}, nil
	case "":
		return nil, fmt.Errorf("%w: type is required", ErrMalformedEvent)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
}

// ParseAgentEvent decodes one agent frame into its variant.
func ParseAgentEvent(data []byte) (AgentEvent, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	switch env.Type {
	case EventAgentMessage:
		var ev AgentChatMessage
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		if ev.SessionID == "" || strings.TrimSpace(ev.Message) == "" {
			return nil, fmt.Errorf("%w: session_id and message are required", ErrMalformedEvent)
		}
		return ev, nil
	case EventUserMessage:
		var ev AgentRelayMessage
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		if ev.SessionID == "" || ev.Message == "" {
			return nil, fmt.Errorf("%w: session_id and message are required", ErrMalformedEvent)
		}
		return ev, nil
	case EventTyping:
		var ev AgentTyping
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		return ev, nil
	case "":
		return nil, fmt.Errorf("%w: type is required", ErrMalformedEvent)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
}

// Outbound events.

// BotMessageEvent delivers an assistant reply to the customer.
type BotMessageEvent struct {
	Type       string    `json:"type"`
	Message    string    `json:"message"`
	Escalated  bool      `json:"escalated"`
	AgentID    string    `json:"agent_id,omitempty"`
	Confidence *float64  `json:"confidence_score,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// AgentMessageEvent delivers an agent reply to the customer.
type AgentMessageEvent struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	AgentID   string    `json:"agent_id"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionStatusEvent is sent to a customer when their socket opens.
type SessionStatusEvent struct {
	Type         string `json:"type"`
	Escalated    bool   `json:"escalated"`
	AgentID      string `json:"agent_id,omitempty"`
	MessageCount int    `json:"message_count"`
}

// TypingEvent is a typing indicator relayed to the other party.
type TypingEvent struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
}

// AgentStatusEvent is sent to an agent when their socket opens.
type AgentStatusEvent struct {
	Type              string           `json:"type"`
	AgentID           string           `json:"agent_id"`
	EscalatedSessions []WaitingSession `json:"escalated_sessions"`
}

// NewEscalatedSessionEvent notifies an agent about a fresh escalation.
type NewEscalatedSessionEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	AgentID   string `json:"agent_id"`
	Message   string `json:"message"`
}

// UserMessageEvent delivers a customer message to the agent.
type UserMessageEvent struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageSentEvent acknowledges an agent reply.
type MessageSentEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// ErrorEvent reports a non-fatal error on the duplex channel.
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewErrorEvent builds an error event.
func NewErrorEvent(message string) ErrorEvent {
	return ErrorEvent{Type: EventError, Message: message}
}

// EventSchemas returns the JSON schema of every duplex variant keyed by direction and type.
func EventSchemas() map[string]*jsonschema.Schema {
	r := &jsonschema.Reflector{DoNotReference: true}

	return map[string]*jsonschema.Schema{
		"customer.in." + EventUserMessage:        r.Reflect(&CustomerUserMessage{}),
		"customer.in." + EventTyping:             r.Reflect(&CustomerTyping{}),
		"customer.out." + EventBotMessage:        r.Reflect(&BotMessageEvent{}),
		"customer.out." + EventAgentMessage:      r.Reflect(&AgentMessageEvent{}),
		"customer.out." + EventSessionStatus:     r.Reflect(&SessionStatusEvent{}),
		"customer.out." + EventAgentTyping:       r.Reflect(&TypingEvent{}),
		"agent.in." + EventAgentMessage:          r.Reflect(&AgentChatMessage{}),
		"agent.in." + EventUserMessage:           r.Reflect(&AgentRelayMessage{}),
		"agent.in." + EventTyping:                r.Reflect(&AgentTyping{}),
		"agent.out." + EventAgentStatus:          r.Reflect(&AgentStatusEvent{}),
		"agent.out." + EventNewEscalatedSession:  r.Reflect(&NewEscalatedSessionEvent{}),
		"agent.out." + EventUserMessage:          r.Reflect(&UserMessageEvent{}),
		"agent.out." + EventUserTyping:           r.Reflect(&TypingEvent{}),
		"agent.out." + EventMessageSent:          r.Reflect(&MessageSentEvent{}),
		"agent.out." + EventError:                r.Reflect(&ErrorEvent{}),
	}
}
