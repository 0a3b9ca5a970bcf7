package domain

import "errors"

var (
	// ErrQuizNotFound is returned when a quiz is absent or soft-deleted.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrAttemptNotFound is returned when an attempt is absent or owned by another user.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrQuizExpired indicates the quiz is past its expiry date.
	ErrQuizExpired = errors.New("quiz has expired")
	// ErrRateLimited is returned while the re-attempt cooldown is active.
	ErrRateLimited = errors.New("quiz attempted recently, cooldown active")
	// ErrTimeExceeded is returned when a submission is past the quiz time limit.
	ErrTimeExceeded = errors.New("quiz submission exceeded time limit")
	// ErrValidation wraps malformed input; callers add detail with fmt.Errorf("%w: ...").
	ErrValidation = errors.New("invalid input")
	// ErrNoQuestions indicates the quiz has no eligible questions.
	ErrNoQuestions = errors.New("no questions available for this quiz")
)
