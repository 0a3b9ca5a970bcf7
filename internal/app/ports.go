package app

import (
	"context"
	"time"

	"quiz-ranking-service/internal/domain"
)

// QuizRepository reads quizzes and questions owned by the authoring service.
// Soft-deleted rows are invisible: GetQuiz returns domain.ErrQuizNotFound for
// them and ActiveQuestions never lists them.
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID int64) (domain.Quiz, error)
	ActiveQuestions(ctx context.Context, quizID int64) ([]domain.Question, error)
}

// AttemptTx is the transactional view a submission runs against.
type AttemptTx interface {
	QuizRepository
	InsertAttempt(ctx context.Context, attempt *domain.Attempt) error
}

// AttemptHistory answers the cooldown question for the eligibility gate.
type AttemptHistory interface {
	// HasAttemptSince reports whether the user completed the quiz strictly after since.
	HasAttemptSince(ctx context.Context, userID, quizID int64, since time.Time) (bool, error)
}

// AttemptRepository persists attempts (in-memory, Postgres, etc).
type AttemptRepository interface {
	QuizRepository
	AttemptHistory
	// InTx runs fn atomically; an error from fn rolls everything back.
	InTx(ctx context.Context, fn func(ctx context.Context, tx AttemptTx) error) error
	ListAttempts(ctx context.Context, q domain.AttemptQuery) ([]domain.AttemptSummary, error)
	// GetAttempt returns domain.ErrAttemptNotFound unless userID owns the attempt.
	GetAttempt(ctx context.Context, attemptID, userID int64) (domain.AttemptSummary, error)
	UserStatistics(ctx context.Context, userID int64) (domain.UserStatistics, error)
}

// Ranker computes leaderboards from persisted attempts, skipping soft-deleted
// users and quizzes.
type Ranker interface {
	QuizStandings(ctx context.Context, quizID int64) ([]domain.QuizStanding, error)
	GlobalStandings(ctx context.Context, filter domain.GlobalFilter) ([]domain.GlobalStanding, error)
}

// LeaderboardCache holds fully ranked per-quiz standings keyed by quiz id.
// It is never a source of truth; every method may fail without affecting
// correctness.
type LeaderboardCache interface {
	Get(ctx context.Context, quizID int64) ([]domain.QuizStanding, bool, error)
	Set(ctx context.Context, quizID int64, standings []domain.QuizStanding) error
	Invalidate(ctx context.Context, quizID int64) error
}

// NoopCache is a LeaderboardCache that stores nothing.
type NoopCache struct{}

func (NoopCache) Get(context.Context, int64) ([]domain.QuizStanding, bool, error) {
	return nil, false, nil
}

func (NoopCache) Set(context.Context, int64, []domain.QuizStanding) error { return nil }

func (NoopCache) Invalidate(context.Context, int64) error { return nil }
