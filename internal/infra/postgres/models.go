package postgres

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"quiz-ranking-service/internal/domain"
)

// Soft-deleted rows are filtered by bun's soft_delete tag for model queries
// and by Active for hand-written SQL.

type UserModel struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID        int64     `bun:"id,pk,autoincrement"`
	Name      string    `bun:"name,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	DeletedAt time.Time `bun:"deleted_at,soft_delete,nullzero"`
}

type QuizModel struct {
	bun.BaseModel `bun:"table:quizzes,alias:q"`

	ID          int64      `bun:"id,pk,autoincrement"`
	Title       string     `bun:"title,notnull"`
	Category    string     `bun:"category,notnull"`
	Description string     `bun:"description,notnull"`
	TimeLimit   *int       `bun:"time_limit"`
	ExpiresAt   *time.Time `bun:"expires_at"`
	CreatedAt   time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	DeletedAt   time.Time  `bun:"deleted_at,soft_delete,nullzero"`
}

func (m QuizModel) toDomain() domain.Quiz {
	return domain.Quiz{
		ID:          m.ID,
		Title:       m.Title,
		Category:    m.Category,
		Description: m.Description,
		TimeLimit:   m.TimeLimit,
		ExpiresAt:   m.ExpiresAt,
	}
}

// QuestionModel stores multiple choice answer keys comma-separated in
// correct_answer, the format the authoring service writes.
type QuestionModel struct {
	bun.BaseModel `bun:"table:questions,alias:qn"`

	ID            int64     `bun:"id,pk,autoincrement"`
	QuizID        int64     `bun:"quiz_id,notnull"`
	Question      string    `bun:"question,notnull"`
	Options       []string  `bun:"options,type:jsonb,notnull"`
	CorrectAnswer string    `bun:"correct_answer,notnull"`
	QuestionType  string    `bun:"question_type,notnull"`
	Points        int       `bun:"points,notnull"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	DeletedAt     time.Time `bun:"deleted_at,soft_delete,nullzero"`
}

func (m QuestionModel) toDomain() domain.Question {
	q := domain.Question{
		ID:      m.ID,
		QuizID:  m.QuizID,
		Text:    m.Question,
		Options: m.Options,
		Type:    domain.QuestionType(m.QuestionType),
		Points:  m.Points,
	}
	if q.Type == domain.QuestionMultiple {
		q.CorrectAnswer = domain.MultipleAnswer(strings.Split(m.CorrectAnswer, ",")...)
	} else {
		q.Type = domain.QuestionSingle
		q.CorrectAnswer = domain.SingleAnswer(m.CorrectAnswer)
	}
	return q
}

// QuestionModelFrom maps a domain question to its row.
func QuestionModelFrom(q domain.Question) QuestionModel {
	return QuestionModel{
		ID:            q.ID,
		QuizID:        q.QuizID,
		Question:      q.Text,
		Options:       q.Options,
		CorrectAnswer: q.CorrectAnswer.Text(),
		QuestionType:  string(q.Type),
		Points:        q.Points,
	}
}

type AttemptModel struct {
	bun.BaseModel `bun:"table:attempts,alias:a"`

	ID          int64           `bun:"id,pk,autoincrement"`
	UserID      int64           `bun:"user_id,notnull"`
	QuizID      int64           `bun:"quiz_id,notnull"`
	Score       decimal.Decimal `bun:"score,type:numeric(7,2),notnull"`
	MaxScore    decimal.Decimal `bun:"max_score,type:numeric(7,2),notnull"`
	Answers     domain.Answers  `bun:"answers,type:jsonb,notnull"`
	TimeTaken   int             `bun:"time_taken,notnull"`
	CompletedAt time.Time       `bun:"completed_at,notnull"`
}

func attemptModelFrom(a domain.Attempt) AttemptModel {
	return AttemptModel{
		UserID:      a.UserID,
		QuizID:      a.QuizID,
		Score:       a.Score,
		MaxScore:    a.MaxScore,
		Answers:     a.Answers,
		TimeTaken:   a.TimeTaken,
		CompletedAt: a.CompletedAt,
	}
}

// attemptRow is an attempt joined with its quiz for history listings.
type attemptRow struct {
	ID           int64           `bun:"id"`
	UserID       int64           `bun:"user_id"`
	QuizID       int64           `bun:"quiz_id"`
	Score        decimal.Decimal `bun:"score"`
	MaxScore     decimal.Decimal `bun:"max_score"`
	Answers      domain.Answers  `bun:"answers,type:jsonb"`
	TimeTaken    int             `bun:"time_taken"`
	CompletedAt  time.Time       `bun:"completed_at"`
	QuizTitle    string          `bun:"quiz_title"`
	QuizCategory string          `bun:"quiz_category"`
}

func (r attemptRow) toDomain() domain.AttemptSummary {
	a := domain.Attempt{
		ID:          r.ID,
		UserID:      r.UserID,
		QuizID:      r.QuizID,
		Score:       r.Score,
		MaxScore:    r.MaxScore,
		Answers:     r.Answers,
		TimeTaken:   r.TimeTaken,
		CompletedAt: r.CompletedAt,
	}
	return domain.AttemptSummary{
		Attempt:      a,
		QuizTitle:    r.QuizTitle,
		QuizCategory: r.QuizCategory,
		Percentage:   a.Percentage(),
	}
}

// Active is the soft-delete predicate for a table alias in hand-written SQL.
func Active(alias string) string {
	return alias + ".deleted_at IS NULL"
}
