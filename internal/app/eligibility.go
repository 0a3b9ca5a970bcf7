package app

import (
	"context"
	"time"
)

// DefaultCooldown is the re-attempt window applied when none is configured.
const DefaultCooldown = 24 * time.Hour

// EligibilityGate rejects re-attempts of a quiz inside the cooldown window.
// It only reads attempt history.
type EligibilityGate struct {
	attempts AttemptHistory
	now      func() time.Time
}

func NewEligibilityGate(attempts AttemptHistory) *EligibilityGate {
	return NewEligibilityGateWithClock(attempts, time.Now)
}

// NewEligibilityGateWithClock allows deterministic time in tests.
func NewEligibilityGateWithClock(attempts AttemptHistory, now func() time.Time) *EligibilityGate {
	return &EligibilityGate{attempts: attempts, now: now}
}

// CanUserStartQuiz is true iff the user has no attempt on the quiz completed
// within the last cooldown. A user who finished at T may start again at
// exactly T+cooldown.
func (g *EligibilityGate) CanUserStartQuiz(ctx context.Context, userID, quizID int64, cooldown time.Duration) (bool, error) {
	if cooldown <= 0 {
		return true, nil
	}
	recent, err := g.attempts.HasAttemptSince(ctx, userID, quizID, g.now().Add(-cooldown))
	if err != nil {
		return false, err
	}
	return !recent, nil
}
