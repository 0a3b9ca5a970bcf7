package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"quiz-ranking-service/internal/app"
	"quiz-ranking-service/internal/domain"
)

// Store persists attempts with bun and reads the quiz catalogue written by
// the authoring service.
type Store struct {
	db *bun.DB
	queries
}

var _ app.AttemptRepository = (*Store)(nil)

func NewStore(db *bun.DB) *Store {
	return &Store{db: db, queries: queries{db: db}}
}

// InTx runs fn in a read committed transaction. The quiz row is share-locked
// for the duration so a concurrent soft delete waits for the submission.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx app.AttemptTx) error) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, txQueries{queries{db: tx}})
	})
}

func (s *Store) HasAttemptSince(ctx context.Context, userID, quizID int64, since time.Time) (bool, error) {
	ok, err := s.db.NewSelect().
		Model((*AttemptModel)(nil)).
		Where("a.user_id = ?", userID).
		Where("a.quiz_id = ?", quizID).
		Where("a.completed_at > ?", since).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check recent attempt: %w", err)
	}
	return ok, nil
}

func (s *Store) ListAttempts(ctx context.Context, q domain.AttemptQuery) ([]domain.AttemptSummary, error) {
	var rows []attemptRow
	sel := s.selectAttempts().
		Join("JOIN quizzes AS q ON q.id = a.quiz_id").
		Where("a.user_id = ?", q.UserID).
		Where(Active("q"))
	if q.QuizID != 0 {
		sel = sel.Where("a.quiz_id = ?", q.QuizID)
	}
	if q.From != nil {
		sel = sel.Where("a.completed_at >= ?", *q.From)
	}
	if q.To != nil {
		sel = sel.Where("a.completed_at <= ?", *q.To)
	}
	err := sel.OrderExpr("a.completed_at DESC, a.id DESC").
		Limit(q.Limit).
		Offset(q.Offset).
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	out := make([]domain.AttemptSummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// GetAttempt still resolves attempts on soft-deleted quizzes so a user can
// read their own record.
func (s *Store) GetAttempt(ctx context.Context, attemptID, userID int64) (domain.AttemptSummary, error) {
	var row attemptRow
	err := s.selectAttempts().
		Join("LEFT JOIN quizzes AS q ON q.id = a.quiz_id").
		Where("a.id = ?", attemptID).
		Where("a.user_id = ?", userID).
		Limit(1).
		Scan(ctx, &row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AttemptSummary{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.AttemptSummary{}, fmt.Errorf("get attempt: %w", err)
	}
	return row.toDomain(), nil
}

type statsRow struct {
	TotalAttempts int             `bun:"total_attempts"`
	AverageScore  decimal.Decimal `bun:"average_score"`
	BestScore     decimal.Decimal `bun:"best_score"`
	UniqueQuizzes int             `bun:"unique_quizzes"`
}

func (s *Store) UserStatistics(ctx context.Context, userID int64) (domain.UserStatistics, error) {
	var row statsRow
	err := s.db.NewSelect().
		TableExpr("attempts AS a").
		ColumnExpr("COUNT(*) AS total_attempts").
		ColumnExpr("COALESCE(ROUND(AVG(a.score), 2), 0) AS average_score").
		ColumnExpr("COALESCE(MAX(a.score), 0) AS best_score").
		ColumnExpr("COUNT(DISTINCT a.quiz_id) AS unique_quizzes").
		Where("a.user_id = ?", userID).
		Scan(ctx, &row)
	if err != nil {
		return domain.UserStatistics{}, fmt.Errorf("user statistics: %w", err)
	}
	return domain.UserStatistics{
		TotalAttempts: row.TotalAttempts,
		AverageScore:  row.AverageScore,
		BestScore:     row.BestScore,
		UniqueQuizzes: row.UniqueQuizzes,
	}, nil
}

func (s *Store) selectAttempts() *bun.SelectQuery {
	return s.db.NewSelect().
		TableExpr("attempts AS a").
		ColumnExpr("a.id, a.user_id, a.quiz_id, a.score, a.max_score, a.answers, a.time_taken, a.completed_at").
		ColumnExpr("COALESCE(q.title, '') AS quiz_title").
		ColumnExpr("COALESCE(q.category, '') AS quiz_category")
}

// queries holds the reads shared by the store and its transactions.
type queries struct {
	db bun.IDB
}

func (q queries) GetQuiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	return q.getQuiz(ctx, quizID, false)
}

func (q queries) getQuiz(ctx context.Context, quizID int64, lock bool) (domain.Quiz, error) {
	var m QuizModel
	sel := q.db.NewSelect().Model(&m).Where("q.id = ?", quizID)
	if lock {
		sel = sel.For("SHARE")
	}
	if err := sel.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Quiz{}, domain.ErrQuizNotFound
		}
		return domain.Quiz{}, fmt.Errorf("get quiz %d: %w", quizID, err)
	}
	return m.toDomain(), nil
}

func (q queries) ActiveQuestions(ctx context.Context, quizID int64) ([]domain.Question, error) {
	var models []QuestionModel
	err := q.db.NewSelect().
		Model(&models).
		Where("qn.quiz_id = ?", quizID).
		OrderExpr("qn.id").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list questions of quiz %d: %w", quizID, err)
	}
	out := make([]domain.Question, 0, len(models))
	for _, m := range models {
		out = append(out, m.toDomain())
	}
	return out, nil
}

type txQueries struct {
	queries
}

func (t txQueries) GetQuiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	return t.getQuiz(ctx, quizID, true)
}

func (t txQueries) InsertAttempt(ctx context.Context, attempt *domain.Attempt) error {
	m := attemptModelFrom(*attempt)
	if _, err := t.db.NewInsert().Model(&m).Returning("id").Exec(ctx); err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	attempt.ID = m.ID
	return nil
}
