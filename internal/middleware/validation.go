package middleware

import (
	"errors"
	"regexp"
	"unicode/utf8"
)

const maxMessageBytes = 16 * 1024

var (
	sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.:\-]{1,128}$`)
	agentIDPattern   = regexp.MustCompile(`^agent_[A-Za-z0-9]{1,32}$`)
)

// ValidateMessageContent validates chat message text.
func ValidateMessageContent(content string) error {
	if len(content) == 0 {
		return errors.New("message cannot be empty")
	}
	if len(content) > maxMessageBytes {
		return errors.New("message exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("message must be valid UTF-8")
	}
	return nil
}

// ValidateSessionID validates a client-supplied conversation ID.
func ValidateSessionID(id string) error {
	if !sessionIDPattern.MatchString(id) {
		return errors.New("invalid session ID format")
	}
	return nil
}

// ValidateAgentID validates a generated agent ID.
func ValidateAgentID(id string) error {
	if !agentIDPattern.MatchString(id) {
		return errors.New("invalid agent ID format")
	}
	return nil
}
