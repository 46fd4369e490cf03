package service

import (
	"fmt"
	"strings"

	"github.com/capitalize-ai/support-desk/internal/llm"
	"github.com/capitalize-ai/support-desk/internal/model"
)

// DefaultPersona describes the business the assistant speaks for.
const DefaultPersona = "SupportSages (DevOps, CloudOps, SRE, Helpdesk & VAPT services)"

const (
	noContext = "NO CONTEXT AVAILABLE"

	summaryPrompt   = "Summarize the following conversation briefly and clearly."
	summaryMaxChars = 5000
	noHistory       = "No conversation history available."
)

// BuildSystemPrompt renders the assistant instructions around the retrieved context.
func BuildSystemPrompt(persona, contextText string) string {
	if persona == "" {
		persona = DefaultPersona
	}
	if strings.TrimSpace(contextText) == "" {
		contextText = noContext
	}

	return fmt.Sprintf(`You are a professional assistant for %s.

Rules:
- Use the provided context when possible.
- If the question is a simple greeting, respond warmly and proceed.
- If context is empty or insufficient, answer with general, safe info about the company (no prices/guesses).
- Do NOT suggest escalation to a human unless the user explicitly asks. Never write "I'll connect you to a human" on your own.
- Never invent specific prices/SLAs not in context.

Context:
%s

End your reply with a confidence score tag exactly like: [CONFIDENCE: 0.85]
- Greeting/basic overview: 0.8-0.95
- Answer grounded in context: 0.7-0.9
- General but plausible without context: 0.5-0.7
- Can't help: 0.1-0.3`, persona, contextText)
}

// chatMessages converts history into completion turns after the system prompt.
// Agent replies are presented to the model as assistant turns.
func chatMessages(system string, history []model.Message) []llm.ChatMessage {
	out := make([]llm.ChatMessage, 0, len(history)+1)
	out = append(out, llm.ChatMessage{Role: llm.RoleSystem, Content: system})
	for _, m := range history {
		switch m.Role {
		case model.RoleUser:
			out = append(out, llm.ChatMessage{Role: llm.RoleUser, Content: m.Content})
		case model.RoleAssistant, model.RoleAgent:
			out = append(out, llm.ChatMessage{Role: llm.RoleAssistant, Content: m.Content})
		}
	}
	return out
}

// transcript renders user and assistant turns as "Role: content" lines, capped at
// summaryMaxChars.
func transcript(history []model.Message) string {
	lines := make([]string, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case model.RoleUser:
			lines = append(lines, "User: "+m.Content)
		case model.RoleAssistant:
			lines = append(lines, "Assistant: "+m.Content)
		}
	}
	return truncate(strings.Join(lines, "\n"), summaryMaxChars)
}

// excerptSummary is the summary used when the completion call fails.
func excerptSummary(history []model.Message) string {
	first := ""
	for _, m := range history {
		if m.Role == model.RoleUser {
			first = m.Content
			break
		}
	}
	return fmt.Sprintf("Conversation of %d messages. Customer opened with: %q", len(history), truncate(first, 200))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
