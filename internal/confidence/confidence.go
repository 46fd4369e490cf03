// Package confidence extracts the assistant's self-reported confidence from a reply.
package confidence

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Fallback scores used when the reply carries no parseable tag.
const (
	ScoreCannotHelp = 0.1
	ScoreVeryShort  = 0.3
	ScoreShort      = 0.5
	ScoreDefault    = 0.7
	ScoreParseError = 0.3
)

var tagPattern = regexp.MustCompile(`\[CONFIDENCE:\s*([0-9]*\.?[0-9]+)\]`)

// lowConfidenceIndicators mark replies where the assistant could not help.
var lowConfidenceIndicators = []string{
	"i'm not sure",
	"not sure",
	"i don't know",
	"i can't",
	"unfortunately",
	"i don't have",
	"i'm unable",
	"i cannot",
	"i'm sorry but",
	"don't have enough information",
	"not enough information",
	"connect you to a human agent",
	"escalate",
	"human agent",
}

// Extract returns the confidence score in [0,1] and the reply with every tag removed.
// It never fails; replies without a usable tag are scored heuristically.
func Extract(reply string) (float64, string) {
	cleaned := strings.TrimSpace(tagPattern.ReplaceAllString(reply, ""))

	match := tagPattern.FindStringSubmatch(reply)
	if match == nil {
		return Heuristic(cleaned), cleaned
	}

	score, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return ScoreParseError, cleaned
	}
	return clamp(score), cleaned
}

// Heuristic scores a reply that has no confidence tag.
func Heuristic(reply string) float64 {
	lower := strings.ToLower(reply)
	for _, indicator := range lowConfidenceIndicators {
		if strings.Contains(lower, indicator) {
			return ScoreCannotHelp
		}
	}

	switch n := utf8.RuneCountInString(strings.TrimSpace(reply)); {
	case n < 30:
		return ScoreVeryShort
	case n < 100:
		return ScoreShort
	default:
		return ScoreDefault
	}
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
