package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitSystem(t *testing.T) {
	system, turns := splitSystem([]ChatMessage{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "hi"},
		{Role: "agent", Content: "hello from a human"},
		{Role: RoleAssistant, Content: "hello"},
	})

	assert.Equal(t, "be brief", system)
	require.Len(t, turns, 3)
	assert.Equal(t, RoleUser, turns[0].Role)
	assert.Equal(t, RoleAssistant, turns[1].Role)
	assert.Equal(t, RoleAssistant, turns[2].Role)
}

func TestNewClient(t *testing.T) {
	_, err := NewClient(Options{Provider: ProviderOpenAI})
	assert.Error(t, err)

	_, err = NewClient(Options{Provider: "cohere", APIKey: "k"})
	assert.Error(t, err)

	c, err := NewClient(Options{Provider: ProviderAnthropic, APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", c.Name())

	c, err = NewClient(Options{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "openai", c.Name())
}

func TestOpenAICompleteAgainstCompatibleServer(t *testing.T) {
	var got struct {
		Model    string        `json:"model"`
		Messages []ChatMessage `json:"messages"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "cmpl-1",
			"object": "chat.completion",
			"model": "llama3-8b-8192",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Hello! [CONFIDENCE: 0.9]"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 5, "total_tokens": 17}
		}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIClient("test-key", srv.URL, "llama3-8b-8192")
	require.NoError(t, err)

	resp, err := c.Complete(context.Background(), &CompletionRequest{Messages: []ChatMessage{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "hello"},
	}})
	require.NoError(t, err)

	assert.Equal(t, "Hello! [CONFIDENCE: 0.9]", resp.Content)
	assert.Equal(t, 12, resp.TokensIn)
	assert.Equal(t, 5, resp.TokensOut)
	assert.Equal(t, "stop", resp.StopReason)
	assert.Equal(t, "llama3-8b-8192", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, RoleSystem, got.Messages[0].Role)
}

func TestOpenAIUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": {"message": "boom", "type": "server_error"}}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIClient("k", srv.URL, "")
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), &CompletionRequest{Messages: []ChatMessage{{Role: RoleUser, Content: "x"}}})
	assert.Error(t, err)
}
