package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-ranking-service/internal/app"
	"quiz-ranking-service/internal/domain"
)

// Ranker runs the leaderboard aggregations in Postgres over a pgx pool.
type Ranker struct {
	pool *pgxpool.Pool
}

var _ app.Ranker = (*Ranker)(nil)

func NewRanker(pool *pgxpool.Pool) *Ranker {
	return &Ranker{pool: pool}
}

// Each user's best score is paired with the smallest max_score among the
// attempts that reached it; the ratio breaks ties between equal scores.
var quizStandingsSQL = `
WITH per_user AS (
    SELECT a.user_id,
           u.name,
           MAX(a.score)        AS best_score,
           MIN(a.completed_at) AS first_completed_at,
           COUNT(*)            AS attempt_count
    FROM attempts a
    JOIN users u   ON u.id = a.user_id
    JOIN quizzes q ON q.id = a.quiz_id
    WHERE a.quiz_id = $1 AND ` + Active("u") + ` AND ` + Active("q") + `
    GROUP BY a.user_id, u.name
), best AS (
    SELECT p.*,
           (SELECT MIN(b.max_score) FROM attempts b
             WHERE b.quiz_id = $1 AND b.user_id = p.user_id AND b.score = p.best_score) AS max_score
    FROM per_user p
)
SELECT DENSE_RANK() OVER (
           ORDER BY best_score DESC, best_score / NULLIF(max_score, 0) DESC NULLS LAST
       ) AS rank,
       user_id, name, best_score, max_score, first_completed_at, attempt_count
FROM best
ORDER BY rank, first_completed_at, user_id`

func (r *Ranker) QuizStandings(ctx context.Context, quizID int64) ([]domain.QuizStanding, error) {
	rows, err := r.pool.Query(ctx, quizStandingsSQL, quizID)
	if err != nil {
		return nil, fmt.Errorf("quiz standings: %w", err)
	}
	defer rows.Close()

	var out []domain.QuizStanding
	for rows.Next() {
		var (
			s            domain.QuizStanding
			rank, nTries int64
		)
		if err := rows.Scan(&rank, &s.UserID, &s.UserName, &s.BestScore, &s.MaxScore, &s.FirstCompletedAt, &nTries); err != nil {
			return nil, fmt.Errorf("scan quiz standing: %w", err)
		}
		s.Rank = int(rank)
		s.AttemptCount = int(nTries)
		s.Percentage = domain.Percentage(s.BestScore, s.MaxScore)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("quiz standings: %w", err)
	}
	return out, nil
}

var globalStandingsSQL = `
SELECT ROW_NUMBER() OVER (
           ORDER BY average_percentage DESC, quizzes_completed DESC, user_id
       ) AS rank,
       user_id, name, quizzes_completed, total_attempts, average_percentage,
       total_score, total_max_score, last_attempt_at
FROM (
    SELECT a.user_id,
           u.name,
           COUNT(DISTINCT a.quiz_id) AS quizzes_completed,
           COUNT(*)                  AS total_attempts,
           COALESCE(ROUND(AVG(a.score / NULLIF(a.max_score, 0) * 100), 2), 0) AS average_percentage,
           SUM(a.score)              AS total_score,
           SUM(a.max_score)          AS total_max_score,
           MAX(a.completed_at)       AS last_attempt_at
    FROM attempts a
    JOIN users u   ON u.id = a.user_id
    JOIN quizzes q ON q.id = a.quiz_id
    WHERE ` + Active("u") + ` AND ` + Active("q") + `
      AND ($1::text = '' OR q.category = $1)
      AND ($2::timestamptz IS NULL OR a.completed_at >= $2)
    GROUP BY a.user_id, u.name
    HAVING COUNT(DISTINCT a.quiz_id) >= 1
) totals
ORDER BY rank
LIMIT NULLIF($3::bigint, 0) OFFSET $4`

func (r *Ranker) GlobalStandings(ctx context.Context, filter domain.GlobalFilter) ([]domain.GlobalStanding, error) {
	rows, err := r.pool.Query(ctx, globalStandingsSQL,
		filter.Category, filter.Since, int64(filter.Limit), int64(filter.Offset))
	if err != nil {
		return nil, fmt.Errorf("global standings: %w", err)
	}
	defer rows.Close()

	var out []domain.GlobalStanding
	for rows.Next() {
		var (
			s                        domain.GlobalStanding
			rank, quizzes, nAttempts int64
		)
		err := rows.Scan(&rank, &s.UserID, &s.UserName, &quizzes, &nAttempts, &s.AveragePercentage,
			&s.TotalScore, &s.TotalMaxScore, &s.LastAttemptAt)
		if err != nil {
			return nil, fmt.Errorf("scan global standing: %w", err)
		}
		s.Rank = int(rank)
		s.QuizzesCompleted = int(quizzes)
		s.TotalAttempts = int(nAttempts)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("global standings: %w", err)
	}
	return out, nil
}
