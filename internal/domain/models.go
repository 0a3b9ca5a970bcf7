package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// QuestionType distinguishes single from multiple choice questions.
type QuestionType string

const (
	QuestionSingle   QuestionType = "single"
	QuestionMultiple QuestionType = "multiple"
)

// Quiz is the read-only view of a quiz owned by the authoring service.
type Quiz struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Category    string     `json:"category"`
	Description string     `json:"description,omitempty"`
	TimeLimit   *int       `json:"timeLimit"` // minutes
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
}

// IsExpired reports whether the quiz is past its expiry at now.
func (q Quiz) IsExpired(now time.Time) bool {
	return q.ExpiresAt != nil && !q.ExpiresAt.After(now)
}

// TimeLimitSeconds returns the limit in seconds and whether one is set.
func (q Quiz) TimeLimitSeconds() (int, bool) {
	if q.TimeLimit == nil || *q.TimeLimit <= 0 {
		return 0, false
	}
	return *q.TimeLimit * 60, true
}

// Question is a scoreable question. CorrectAnswer is a single answer for
// single choice questions and a set for multiple choice ones.
type Question struct {
	ID            int64        `json:"id"`
	QuizID        int64        `json:"quizId"`
	Text          string       `json:"question"`
	Options       []string     `json:"options"`
	Type          QuestionType `json:"questionType"`
	CorrectAnswer Answer       `json:"correctAnswer"`
	Points        int          `json:"points"`
}

// Public strips the correct answer for delivery to quiz takers.
func (q Question) Public() PublicQuestion {
	return PublicQuestion{
		ID:      q.ID,
		Text:    q.Text,
		Options: q.Options,
		Type:    q.Type,
		Points:  q.Points,
	}
}

// PublicQuestion is a question without its answer key.
type PublicQuestion struct {
	ID      int64        `json:"id"`
	Text    string       `json:"question"`
	Options []string     `json:"options"`
	Type    QuestionType `json:"questionType"`
	Points  int          `json:"points"`
}

// User is the minimal user projection used for ranking.
type User struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Attempt is an immutable scored submission.
type Attempt struct {
	ID          int64           `json:"id"`
	UserID      int64           `json:"userId"`
	QuizID      int64           `json:"quizId"`
	Score       decimal.Decimal `json:"score"`
	MaxScore    decimal.Decimal `json:"maxScore"`
	Answers     Answers         `json:"answers"`
	TimeTaken   int             `json:"timeTaken"`
	CompletedAt time.Time       `json:"completedAt"`
}

// Percentage returns the attempt score as a percentage of its max score.
func (a Attempt) Percentage() decimal.Decimal {
	return Percentage(a.Score, a.MaxScore)
}

// AttemptSummary is an attempt joined with its quiz, as listed in history.
type AttemptSummary struct {
	Attempt
	QuizTitle    string          `json:"quizTitle"`
	QuizCategory string          `json:"quizCategory"`
	Percentage   decimal.Decimal `json:"percentageScore"`
}

// AttemptState is the lifecycle position of a quiz attempt.
type AttemptState uint8

const (
	AttemptNotStarted AttemptState = iota
	AttemptInProgress
	AttemptSubmitted
	AttemptExpired
)

func (s AttemptState) String() string {
	switch s {
	case AttemptNotStarted:
		return "not_started"
	case AttemptInProgress:
		return "in_progress"
	case AttemptSubmitted:
		return "submitted"
	case AttemptExpired:
		return "expired"
	default:
		return fmt.Sprintf("attempt_state(%d)", s)
	}
}

func (s AttemptState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *AttemptState) UnmarshalText(text []byte) error {
	for _, st := range []AttemptState{AttemptNotStarted, AttemptInProgress, AttemptSubmitted, AttemptExpired} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown attempt state %q", text)
}

// QuestionResult is the per-question breakdown returned after submission.
type QuestionResult struct {
	QuestionID    int64           `json:"questionId"`
	Question      string          `json:"question"`
	UserAnswer    Answer          `json:"userAnswer"`
	CorrectAnswer Answer          `json:"correctAnswer"`
	Score         decimal.Decimal `json:"score"`
	MaxScore      int             `json:"maxScore"`
	IsCorrect     bool            `json:"isCorrect"`
	QuestionType  QuestionType    `json:"questionType"`
	Options       []string        `json:"options"`
}

// QuizStanding is one user's row on a per-quiz leaderboard.
type QuizStanding struct {
	Rank             int             `json:"rank"`
	UserID           int64           `json:"userId"`
	UserName         string          `json:"userName"`
	BestScore        decimal.Decimal `json:"bestScore"`
	MaxScore         decimal.Decimal `json:"maxScore"`
	Percentage       decimal.Decimal `json:"percentage"`
	FirstCompletedAt time.Time       `json:"firstCompletedAt"`
	AttemptCount     int             `json:"attemptCount"`
}

// GlobalStanding is one user's row on the cross-quiz leaderboard.
type GlobalStanding struct {
	Rank              int             `json:"rank"`
	UserID            int64           `json:"userId"`
	UserName          string          `json:"userName"`
	QuizzesCompleted  int             `json:"quizzesCompleted"`
	TotalAttempts     int             `json:"totalAttempts"`
	AveragePercentage decimal.Decimal `json:"averagePercentage"`
	TotalScore        decimal.Decimal `json:"totalScore"`
	TotalMaxScore     decimal.Decimal `json:"totalMaxScore"`
	LastAttemptAt     time.Time       `json:"lastAttemptAt"`
}

// UserStatistics summarises a user's attempt history.
type UserStatistics struct {
	TotalAttempts  int              `json:"totalAttempts"`
	AverageScore   decimal.Decimal  `json:"averageScore"`
	BestScore      decimal.Decimal  `json:"bestScore"`
	UniqueQuizzes  int              `json:"uniqueQuizzes"`
	RecentAttempts []AttemptSummary `json:"recentAttempts"`
}

// Timeframe restricts the global leaderboard to recent attempts.
type Timeframe string

const (
	TimeframeAll   Timeframe = ""
	TimeframeWeek  Timeframe = "week"
	TimeframeMonth Timeframe = "month"
	TimeframeYear  Timeframe = "year"
)

// ParseTimeframe accepts "", week, month and year.
func ParseTimeframe(raw string) (Timeframe, error) {
	switch tf := Timeframe(raw); tf {
	case TimeframeAll, TimeframeWeek, TimeframeMonth, TimeframeYear:
		return tf, nil
	default:
		return TimeframeAll, fmt.Errorf("%w: timeframe must be one of: week, month, year", ErrValidation)
	}
}

// Since returns the start of the window ending at now, or nil for no window.
func (t Timeframe) Since(now time.Time) *time.Time {
	var days int
	switch t {
	case TimeframeWeek:
		days = 7
	case TimeframeMonth:
		days = 30
	case TimeframeYear:
		days = 365
	default:
		return nil
	}
	since := now.Add(-time.Duration(days) * 24 * time.Hour)
	return &since
}

var hundred = decimal.NewFromInt(100)

// Percentage returns score/max*100 rounded to two decimals, or zero when max is zero.
func Percentage(score, maxScore decimal.Decimal) decimal.Decimal {
	if maxScore.IsZero() {
		return decimal.Zero
	}
	return score.Mul(hundred).DivRound(maxScore, 2)
}

// GlobalFilter selects and pages the global leaderboard.
type GlobalFilter struct {
	Category string
	Since    *time.Time
	Limit    int
	Offset   int
}

// RankedAttempt is an attempt of an active user on an active quiz, the input
// row of the ranking engine.
type RankedAttempt struct {
	UserID      int64
	UserName    string
	QuizID      int64
	Category    string
	Score       decimal.Decimal
	MaxScore    decimal.Decimal
	CompletedAt time.Time
}

// AttemptQuery filters a user's attempt history. Zero values mean no filter.
type AttemptQuery struct {
	UserID int64
	QuizID int64
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}
