package app

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"quiz-ranking-service/internal/domain"
	"quiz-ranking-service/internal/logging"
	"quiz-ranking-service/internal/scoring"
)

const (
	// DefaultQuestionCount is how many questions a started attempt draws.
	DefaultQuestionCount = 10
	// MaxTimeTaken caps any reported attempt duration (3 hours).
	MaxTimeTaken = 10800

	recentWindow      = 30 * 24 * time.Hour
	recentLimit       = 5
	startTimeLeeway   = time.Minute
	defaultHistoryCap = 50
)

// AttemptOptions tunes an AttemptService. Zero values fall back to defaults.
type AttemptOptions struct {
	Cooldown      time.Duration
	QuestionCount int
	Now           func() time.Time
	Rand          *rand.Rand
}

// AttemptService runs the attempt lifecycle: start, time-bounded fill, submit,
// score, persist and cache invalidation.
type AttemptService struct {
	repo          AttemptRepository
	gate          *EligibilityGate
	cache         LeaderboardCache
	cooldown      time.Duration
	questionCount int
	now           func() time.Time

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewAttemptService(repo AttemptRepository, cache LeaderboardCache, opts AttemptOptions) *AttemptService {
	if cache == nil {
		cache = NoopCache{}
	}
	if opts.Cooldown == 0 {
		opts.Cooldown = DefaultCooldown
	}
	if opts.QuestionCount <= 0 {
		opts.QuestionCount = DefaultQuestionCount
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &AttemptService{
		repo:          repo,
		gate:          NewEligibilityGateWithClock(repo, opts.Now),
		cache:         cache,
		cooldown:      opts.Cooldown,
		questionCount: opts.QuestionCount,
		now:           opts.Now,
		rnd:           opts.Rand,
	}
}

// StartedAttempt is handed to the quiz taker; questions carry no answer key.
type StartedAttempt struct {
	SessionID string                  `json:"sessionId"`
	Quiz      domain.Quiz             `json:"quiz"`
	Questions []domain.PublicQuestion `json:"questions"`
	StartTime time.Time               `json:"startTime"`
	TimeLimit *int                    `json:"timeLimit"`
	State     domain.AttemptState     `json:"state"`
}

// Submission is a completed answer sheet.
type Submission struct {
	UserID    int64
	QuizID    int64
	Answers   domain.Answers
	TimeTaken int
	StartTime time.Time
}

// SubmitResult is the scored outcome of a submission.
type SubmitResult struct {
	AttemptID   int64                   `json:"attemptId"`
	Score       decimal.Decimal         `json:"score"`
	MaxScore    decimal.Decimal         `json:"maxScore"`
	Percentage  decimal.Decimal         `json:"percentage"`
	Results     []domain.QuestionResult `json:"results"`
	TimeTaken   int                     `json:"timeTaken"`
	CompletedAt time.Time               `json:"completedAt"`
	State       domain.AttemptState     `json:"state"`
}

// StartAttempt checks the quiz is active and the user is eligible, then draws
// a random subset of the quiz's active questions.
func (s *AttemptService) StartAttempt(ctx context.Context, userID, quizID int64) (StartedAttempt, error) {
	log := logging.WithContext(ctx).WithFields(logrus.Fields{"user_id": userID, "quiz_id": quizID})

	quiz, err := s.repo.GetQuiz(ctx, quizID)
	if err != nil {
		return StartedAttempt{}, err
	}
	now := s.now()
	if quiz.IsExpired(now) {
		return StartedAttempt{}, domain.ErrQuizExpired
	}

	ok, err := s.gate.CanUserStartQuiz(ctx, userID, quizID, s.cooldown)
	if err != nil {
		return StartedAttempt{}, fmt.Errorf("check eligibility: %w", err)
	}
	if !ok {
		log.Info("attempt rejected by cooldown")
		return StartedAttempt{}, domain.ErrRateLimited
	}

	questions, err := s.repo.ActiveQuestions(ctx, quizID)
	if err != nil {
		return StartedAttempt{}, err
	}
	if len(questions) == 0 {
		return StartedAttempt{}, domain.ErrNoQuestions
	}

	picked := s.pick(questions)
	public := make([]domain.PublicQuestion, len(picked))
	for i, q := range picked {
		public[i] = q.Public()
	}

	started := StartedAttempt{
		SessionID: uuid.NewString(),
		Quiz:      quiz,
		Questions: public,
		StartTime: now,
		TimeLimit: quiz.TimeLimit,
		State:     domain.AttemptInProgress,
	}
	log.WithField("session_id", started.SessionID).Info("attempt started")
	return started, nil
}

// SubmitAttempt scores and persists a submission in one transaction, then
// invalidates the quiz leaderboard. Invalidation failures are logged only.
func (s *AttemptService) SubmitAttempt(ctx context.Context, sub Submission) (SubmitResult, error) {
	log := logging.WithContext(ctx).WithFields(logrus.Fields{"user_id": sub.UserID, "quiz_id": sub.QuizID})

	if len(sub.Answers) == 0 {
		return SubmitResult{}, fmt.Errorf("%w: at least one answer must be provided", domain.ErrValidation)
	}
	if sub.TimeTaken < 1 {
		return SubmitResult{}, fmt.Errorf("%w: valid time taken is required", domain.ErrValidation)
	}
	now := s.now()
	if !sub.StartTime.IsZero() && sub.StartTime.After(now.Add(startTimeLeeway)) {
		return SubmitResult{}, fmt.Errorf("%w: start time is in the future", domain.ErrValidation)
	}

	var result SubmitResult
	err := s.repo.InTx(ctx, func(ctx context.Context, tx AttemptTx) error {
		quiz, err := tx.GetQuiz(ctx, sub.QuizID)
		if err != nil {
			return err
		}
		state := submissionState(quiz, sub.TimeTaken)
		if state == domain.AttemptExpired {
			return domain.ErrTimeExceeded
		}
		if sub.TimeTaken > MaxTimeTaken {
			return fmt.Errorf("%w: time taken cannot exceed %d seconds", domain.ErrValidation, MaxTimeTaken)
		}

		questions, err := tx.ActiveQuestions(ctx, sub.QuizID)
		if err != nil {
			return err
		}
		if len(questions) == 0 {
			return domain.ErrNoQuestions
		}

		results, earned := grade(questions, sub.Answers)
		score, maxScore := scoring.Total(earned, questions)

		attempt := domain.Attempt{
			UserID:      sub.UserID,
			QuizID:      sub.QuizID,
			Score:       score,
			MaxScore:    maxScore,
			Answers:     sub.Answers,
			TimeTaken:   sub.TimeTaken,
			CompletedAt: now,
		}
		if err := tx.InsertAttempt(ctx, &attempt); err != nil {
			return fmt.Errorf("insert attempt: %w", err)
		}

		result = SubmitResult{
			AttemptID:   attempt.ID,
			Score:       attempt.Score,
			MaxScore:    attempt.MaxScore,
			Percentage:  attempt.Percentage(),
			Results:     results,
			TimeTaken:   attempt.TimeTaken,
			CompletedAt: attempt.CompletedAt,
			State:       state,
		}
		return nil
	})
	if err != nil {
		return SubmitResult{}, err
	}

	if err := s.cache.Invalidate(ctx, sub.QuizID); err != nil {
		log.WithError(err).Warn("failed to invalidate leaderboard cache")
	}
	log.WithFields(logrus.Fields{
		"attempt_id": result.AttemptID,
		"score":      result.Score.String(),
		"max_score":  result.MaxScore.String(),
	}).Info("attempt submitted")
	return result, nil
}

// History lists the user's attempts, newest first.
func (s *AttemptService) History(ctx context.Context, q domain.AttemptQuery) ([]domain.AttemptSummary, error) {
	if q.Limit <= 0 {
		q.Limit = defaultHistoryCap
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return s.repo.ListAttempts(ctx, q)
}

// Attempt returns one of the user's own attempts.
func (s *AttemptService) Attempt(ctx context.Context, attemptID, userID int64) (domain.AttemptSummary, error) {
	return s.repo.GetAttempt(ctx, attemptID, userID)
}

// Statistics summarises the user's attempts and lists the most recent ones
// from the last thirty days.
func (s *AttemptService) Statistics(ctx context.Context, userID int64) (domain.UserStatistics, error) {
	stats, err := s.repo.UserStatistics(ctx, userID)
	if err != nil {
		return domain.UserStatistics{}, err
	}
	from := s.now().Add(-recentWindow)
	recent, err := s.repo.ListAttempts(ctx, domain.AttemptQuery{UserID: userID, From: &from, Limit: recentLimit})
	if err != nil {
		return domain.UserStatistics{}, err
	}
	stats.RecentAttempts = recent
	return stats, nil
}

// submissionState resolves the lifecycle state of an in-progress attempt at
// submit time. Expiry is checked lazily against the reported duration.
func submissionState(quiz domain.Quiz, timeTaken int) domain.AttemptState {
	if limit, ok := quiz.TimeLimitSeconds(); ok && timeTaken > limit {
		return domain.AttemptExpired
	}
	return domain.AttemptSubmitted
}

func grade(questions []domain.Question, answers domain.Answers) ([]domain.QuestionResult, []decimal.Decimal) {
	results := make([]domain.QuestionResult, len(questions))
	earned := make([]decimal.Decimal, len(questions))
	for i, q := range questions {
		answer := answers[q.ID]
		points, correct := scoring.Score(q, answer)
		earned[i] = points
		results[i] = domain.QuestionResult{
			QuestionID:    q.ID,
			Question:      q.Text,
			UserAnswer:    answer,
			CorrectAnswer: q.CorrectAnswer,
			Score:         points,
			MaxScore:      q.Points,
			IsCorrect:     correct,
			QuestionType:  q.Type,
			Options:       q.Options,
		}
	}
	return results, earned
}

func (s *AttemptService) pick(questions []domain.Question) []domain.Question {
	shuffled := make([]domain.Question, len(questions))
	copy(shuffled, questions)

	s.rndMu.Lock()
	s.rnd.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	s.rndMu.Unlock()

	if len(shuffled) > s.questionCount {
		shuffled = shuffled[:s.questionCount]
	}
	return shuffled
}
