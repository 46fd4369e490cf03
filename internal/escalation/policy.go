// Package escalation decides when a conversation is handed off to a human agent.
package escalation

// Reason labels why a conversation escalated.
type Reason string

const (
	ReasonNone          Reason = ""
	ReasonExplicit      Reason = "explicit_user_request"
	ReasonLowConfidence Reason = "auto_low_confidence"
)

// Policy holds the thresholds of the escalation rule.
type Policy struct {
	// GroundedFloor is the minimum confidence of a reply grounded in retrieved context.
	GroundedFloor float64
	// StreakThreshold is the confidence below which the low-confidence streak grows.
	StreakThreshold float64
	// EscalateBelow is the confidence below which an ungrounded reply may escalate.
	EscalateBelow float64
	// MinStreak is the streak length required for automatic escalation.
	MinStreak int
}

// DefaultPolicy returns the production thresholds.
func DefaultPolicy() Policy {
	return Policy{
		GroundedFloor:   0.35,
		StreakThreshold: 0.25,
		EscalateBelow:   0.2,
		MinStreak:       2,
	}
}

// Input is everything the policy looks at for one assistant turn.
type Input struct {
	Confidence     float64
	ContextEmpty   bool
	RetrievedCount int
	ExplicitIntent bool
	Greeting       bool
	Streak         int
	Escalated      bool
}

// Decision is the outcome of one evaluation.
type Decision struct {
	Escalate bool
	Reason   Reason
	// Confidence is the score after the grounding floor.
	Confidence float64
	// Streak must be stored on the session whether or not the turn escalates.
	Streak int
}

// Grounded reports whether the turn had usable retrieved context.
func (in Input) Grounded() bool {
	return !in.ContextEmpty && in.RetrievedCount > 0
}

// Decide evaluates one turn. It never escalates a session that already is.
func (p Policy) Decide(in Input) Decision {
	conf := in.Confidence
	if in.Grounded() && conf < p.GroundedFloor {
		conf = p.GroundedFloor
	}

	streak := 0
	if conf < p.StreakThreshold {
		streak = in.Streak + 1
	}

	d := Decision{Confidence: conf, Streak: streak}
	if in.Escalated {
		return d
	}

	switch {
	case in.ExplicitIntent:
		d.Escalate, d.Reason = true, ReasonExplicit
	case in.Greeting:
		// greetings never auto-escalate
	case conf < p.EscalateBelow && !in.Grounded() && streak >= p.MinStreak:
		d.Escalate, d.Reason = true, ReasonLowConfidence
	}
	return d
}
