package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCustomerEvent(t *testing.T) {
	ev, err := ParseCustomerEvent([]byte(`{"type":"user_message","message":"hello"}`))
	require.NoError(t, err)
	assert.Equal(t, CustomerUserMessage{Type: EventUserMessage, Message: "hello"}, ev)

	ev, err = ParseCustomerEvent([]byte(`{"type":"typing"}`))
	require.NoError(t, err)
	assert.IsType(t, CustomerTyping{}, ev)
}

func TestParseCustomerEventRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"not json", `hello`, ErrMalformedEvent},
		{"missing type", `{"message":"hi"}`, ErrMalformedEvent},
		{"empty message", `{"type":"user_message","message":"  "}`, ErrMalformedEvent},
		{"wrong field type", `{"type":"user_message","message":42}`, ErrMalformedEvent},
		{"unknown type", `{"type":"agent_message","message":"x"}`, ErrUnknownEvent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCustomerEvent([]byte(tt.raw))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseAgentEvent(t *testing.T) {
	ev, err := ParseAgentEvent([]byte(`{"type":"agent_message","session_id":"s1","message":"on it"}`))
	require.NoError(t, err)
	assert.Equal(t, AgentChatMessage{Type: EventAgentMessage, SessionID: "s1", Message: "on it"}, ev)

	ev, err = ParseAgentEvent([]byte(`{"type":"user_message","session_id":"s1","message":"x","timestamp":"2026-01-02T03:04:05Z"}`))
	require.NoError(t, err)
	relay, ok := ev.(AgentRelayMessage)
	require.True(t, ok)
	require.NotNil(t, relay.Timestamp)

	ev, err = ParseAgentEvent([]byte(`{"type":"typing"}`))
	require.NoError(t, err)
	assert.Equal(t, AgentTyping{Type: EventTyping}, ev)

	_, err = ParseAgentEvent([]byte(`{"type":"agent_message","message":"no session"}`))
	assert.ErrorIs(t, err, ErrMalformedEvent)

	_, err = ParseAgentEvent([]byte(`{"type":"bot_message"}`))
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestEventSchemasCoverEveryVariant(t *testing.T) {
	schemas := EventSchemas()
	assert.Len(t, schemas, 15)
	for key, s := range schemas {
		require.NotNil(t, s, key)
		_, ok := s.Properties.Get("type")
		assert.True(t, ok, key)
	}
}
