package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"quiz-ranking-service/internal/app"
	"quiz-ranking-service/internal/domain"
	"quiz-ranking-service/internal/ranking"
)

type quizRecord struct {
	quiz      domain.Quiz
	deletedAt *time.Time
}

type questionRecord struct {
	question  domain.Question
	deletedAt *time.Time
}

type userRecord struct {
	user      domain.User
	deletedAt *time.Time
}

// Store is an in-memory implementation of app.AttemptRepository and
// app.Ranker (useful for tests/demos). Quizzes, questions and users are
// seeded through the Put/Delete methods that stand in for the authoring service.
type Store struct {
	mu        sync.RWMutex
	quizzes   map[int64]*quizRecord
	questions map[int64]*questionRecord
	users     map[int64]*userRecord
	attempts  []domain.Attempt
	nextID    int64
}

func NewStore() *Store {
	return &Store{
		quizzes:   make(map[int64]*quizRecord),
		questions: make(map[int64]*questionRecord),
		users:     make(map[int64]*userRecord),
	}
}

var (
	_ app.AttemptRepository = (*Store)(nil)
	_ app.Ranker            = (*Store)(nil)
)

func (s *Store) PutQuiz(q domain.Quiz) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quizzes[q.ID] = &quizRecord{quiz: q}
}

func (s *Store) PutQuestion(q domain.Question) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.questions[q.ID] = &questionRecord{question: q}
}

func (s *Store) PutUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = &userRecord{user: u}
}

// DeleteQuiz soft-deletes a quiz; its attempts stay in place.
func (s *Store) DeleteQuiz(id int64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.quizzes[id]; ok {
		r.deletedAt = &at
	}
}

func (s *Store) DeleteQuestion(id int64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.questions[id]; ok {
		r.deletedAt = &at
	}
}

func (s *Store) DeleteUser(id int64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.users[id]; ok {
		r.deletedAt = &at
	}
}

// Attempts returns a copy of every stored attempt in insertion order.
func (s *Store) Attempts() []domain.Attempt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Attempt, len(s.attempts))
	copy(out, s.attempts)
	return out
}

func (s *Store) GetQuiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	if err := ctx.Err(); err != nil {
		return domain.Quiz{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getQuizLocked(quizID)
}

func (s *Store) ActiveQuestions(ctx context.Context, quizID int64) ([]domain.Question, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeQuestionsLocked(quizID), nil
}

func (s *Store) HasAttemptSince(ctx context.Context, userID, quizID int64, since time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.attempts {
		if a.UserID == userID && a.QuizID == quizID && a.CompletedAt.After(since) {
			return true, nil
		}
	}
	return false, nil
}

// InTx holds the write lock for the whole of fn. Inserts become visible only
// when fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx app.AttemptTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &storeTx{store: s, nextID: s.nextID}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.attempts = append(s.attempts, tx.pending...)
	s.nextID = tx.nextID
	return nil
}

func (s *Store) ListAttempts(ctx context.Context, q domain.AttemptQuery) ([]domain.AttemptSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.AttemptSummary
	for _, a := range s.attempts {
		if a.UserID != q.UserID || (q.QuizID != 0 && a.QuizID != q.QuizID) {
			continue
		}
		if q.From != nil && a.CompletedAt.Before(*q.From) {
			continue
		}
		if q.To != nil && a.CompletedAt.After(*q.To) {
			continue
		}
		quiz, ok := s.quizzes[a.QuizID]
		if !ok || quiz.deletedAt != nil {
			continue
		}
		out = append(out, summarize(a, quiz.quiz))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CompletedAt.Equal(out[j].CompletedAt) {
			return out[i].CompletedAt.After(out[j].CompletedAt)
		}
		return out[i].ID > out[j].ID
	})
	start, end := ranking.Page(len(out), q.Limit, q.Offset)
	return out[start:end], nil
}

func (s *Store) GetAttempt(ctx context.Context, attemptID, userID int64) (domain.AttemptSummary, error) {
	if err := ctx.Err(); err != nil {
		return domain.AttemptSummary{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.attempts {
		if a.ID != attemptID || a.UserID != userID {
			continue
		}
		var quiz domain.Quiz
		if r, ok := s.quizzes[a.QuizID]; ok {
			quiz = r.quiz
		}
		return summarize(a, quiz), nil
	}
	return domain.AttemptSummary{}, domain.ErrAttemptNotFound
}

func (s *Store) UserStatistics(ctx context.Context, userID int64) (domain.UserStatistics, error) {
	if err := ctx.Err(); err != nil {
		return domain.UserStatistics{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := domain.UserStatistics{AverageScore: decimal.Zero, BestScore: decimal.Zero}
	sum := decimal.Zero
	quizzes := make(map[int64]struct{})
	for _, a := range s.attempts {
		if a.UserID != userID {
			continue
		}
		stats.TotalAttempts++
		sum = sum.Add(a.Score)
		if a.Score.GreaterThan(stats.BestScore) {
			stats.BestScore = a.Score
		}
		quizzes[a.QuizID] = struct{}{}
	}
	if stats.TotalAttempts > 0 {
		stats.AverageScore = sum.DivRound(decimal.NewFromInt(int64(stats.TotalAttempts)), 2)
	}
	stats.UniqueQuizzes = len(quizzes)
	return stats, nil
}

// QuizStandings ranks the quiz's attempts in process.
func (s *Store) QuizStandings(ctx context.Context, quizID int64) ([]domain.QuizStanding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	rows := s.rankedAttemptsLocked(func(a domain.Attempt) bool { return a.QuizID == quizID })
	s.mu.RUnlock()
	return ranking.QuizStandings(rows), nil
}

func (s *Store) GlobalStandings(ctx context.Context, filter domain.GlobalFilter) ([]domain.GlobalStanding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	rows := s.rankedAttemptsLocked(func(domain.Attempt) bool { return true })
	s.mu.RUnlock()
	return ranking.GlobalStandings(rows, filter), nil
}

// rankedAttemptsLocked joins attempts to their active user and active quiz.
func (s *Store) rankedAttemptsLocked(keep func(domain.Attempt) bool) []domain.RankedAttempt {
	rows := make([]domain.RankedAttempt, 0, len(s.attempts))
	for _, a := range s.attempts {
		if !keep(a) {
			continue
		}
		user, ok := s.users[a.UserID]
		if !ok || user.deletedAt != nil {
			continue
		}
		quiz, ok := s.quizzes[a.QuizID]
		if !ok || quiz.deletedAt != nil {
			continue
		}
		rows = append(rows, domain.RankedAttempt{
			UserID:      a.UserID,
			UserName:    user.user.Name,
			QuizID:      a.QuizID,
			Category:    quiz.quiz.Category,
			Score:       a.Score,
			MaxScore:    a.MaxScore,
			CompletedAt: a.CompletedAt,
		})
	}
	return rows
}

func (s *Store) getQuizLocked(quizID int64) (domain.Quiz, error) {
	r, ok := s.quizzes[quizID]
	if !ok || r.deletedAt != nil {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return r.quiz, nil
}

func (s *Store) activeQuestionsLocked(quizID int64) []domain.Question {
	var out []domain.Question
	for _, r := range s.questions {
		if r.question.QuizID == quizID && r.deletedAt == nil {
			out = append(out, r.question)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type storeTx struct {
	store   *Store
	pending []domain.Attempt
	nextID  int64
}

func (t *storeTx) GetQuiz(_ context.Context, quizID int64) (domain.Quiz, error) {
	return t.store.getQuizLocked(quizID)
}

func (t *storeTx) ActiveQuestions(_ context.Context, quizID int64) ([]domain.Question, error) {
	return t.store.activeQuestionsLocked(quizID), nil
}

func (t *storeTx) InsertAttempt(_ context.Context, attempt *domain.Attempt) error {
	t.nextID++
	attempt.ID = t.nextID
	t.pending = append(t.pending, *attempt)
	return nil
}

func summarize(a domain.Attempt, quiz domain.Quiz) domain.AttemptSummary {
	return domain.AttemptSummary{
		Attempt:      a,
		QuizTitle:    quiz.Title,
		QuizCategory: quiz.Category,
		Percentage:   a.Percentage(),
	}
}
