package confidence

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractTag(t *testing.T) {
	tests := []struct {
		name      string
		reply     string
		wantScore float64
		wantText  string
	}{
		{"trailing tag", "Hello! How can I help? [CONFIDENCE: 0.9]", 0.9, "Hello! How can I help?"},
		{"no space", "Sure.[CONFIDENCE:0.75]", 0.75, "Sure."},
		{"leading dot", "Maybe. [CONFIDENCE: .4]", 0.4, "Maybe."},
		{"clamped high", "Yes. [CONFIDENCE: 7]", 1, "Yes."},
		{"zero", "No idea. [CONFIDENCE: 0.0]", 0, "No idea."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, text := Extract(tt.reply)
			assert.InDelta(t, tt.wantScore, score, 1e-9)
			assert.Equal(t, tt.wantText, text)
		})
	}
}

func TestExtractFallsBackToHeuristic(t *testing.T) {
	long := strings.Repeat("We provide managed cloud operations. ", 4)

	tests := []struct {
		name  string
		reply string
		want  float64
	}{
		{"cannot help", "I'm not sure about that, sorry.", ScoreCannotHelp},
		{"mentions escalation", "Let me escalate this for you right away please.", ScoreCannotHelp},
		{"very short", "Yes, we do.", ScoreVeryShort},
		{"short", "We offer DevOps consulting and round-the-clock monitoring.", ScoreShort},
		{"substantial", long, ScoreDefault},
		{"malformed tag", "Yes. [CONFIDENCE: high]", ScoreVeryShort},
		{"short CJK counts characters", "こんにちは、お元気ですか", ScoreVeryShort},
		{"emoji counts characters", "Done ✅✅✅✅✅✅✅✅✅✅", ScoreVeryShort},
		{"medium CJK", strings.Repeat("クラウド運用を提供します。", 3), ScoreShort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, _ := Extract(tt.reply)
			assert.Equal(t, tt.want, score)
		})
	}
}

func TestExtractIsCaseInsensitiveForIndicators(t *testing.T) {
	assert.Equal(t, ScoreCannotHelp, Heuristic("A HUMAN AGENT will know more about this topic than I do."))
}
