// Package intent detects explicit requests to reach a human agent.
package intent

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultBrand is stripped before matching so that "SupportSages" never reads as "support".
const DefaultBrand = "supportsages"

// greetingSlack is how many characters may follow a greeting prefix.
const greetingSlack = 5

var greetings = []string{
	"hello", "hi", "hey", "good morning", "good afternoon", "good evening",
	"morning", "afternoon", "evening", "yo", "sup", "hey there", "hiya",
}

var humanIntent = regexp.MustCompile(`(?i)` + strings.Join([]string{
	`\b(connect|talk|speak)\s+((me|us)\s+)?(to|with)\s+(a\s+)?(human|agent|person|representative|rep)\b`,
	`\b(human|live)\s+(agent|person|representative|rep)\b`,
	`\b(escalate|escalation|supervisor|manager)\b`,
	`\b(contact|reach)\s+(customer\s+service|support\s*team|help\s*desk)\b`,
	`\bneed\s+(help|assistance)\s+from\s+(a\s+)?(person|human|agent)\b`,
}, "|"))

// Classifier decides whether a customer message asks for a human.
type Classifier struct {
	brand string
}

// NewClassifier creates a classifier that ignores the given brand token.
func NewClassifier(brand string) *Classifier {
	if brand == "" {
		brand = DefaultBrand
	}
	return &Classifier{brand: strings.ToLower(brand)}
}

// WantsHuman reports explicit intent to reach a human agent.
func (c *Classifier) WantsHuman(message string) bool {
	if strings.TrimSpace(message) == "" {
		return false
	}
	if IsGreeting(message) {
		return false
	}

	msg := strings.ReplaceAll(strings.ToLower(message), c.brand, "")
	return humanIntent.MatchString(msg)
}

// IsGreeting reports whether message is a bare greeting, optionally followed by a
// few characters such as punctuation or a name.
func IsGreeting(message string) bool {
	msg := strings.ToLower(strings.TrimSpace(message))
	for _, g := range greetings {
		if msg == g {
			return true
		}
		if strings.HasPrefix(msg, g) && utf8.RuneCountInString(msg) <= utf8.RuneCountInString(g)+greetingSlack {
			return true
		}
	}
	return false
}
