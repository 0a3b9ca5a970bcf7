package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"quiz-ranking-service/internal/app"
	"quiz-ranking-service/internal/domain"
)

var base = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func seeded() *Store {
	s := NewStore()
	s.PutUser(domain.User{ID: 1, Name: "alice"})
	s.PutUser(domain.User{ID: 2, Name: "bob"})
	s.PutQuiz(domain.Quiz{ID: 1, Title: "One", Category: "general"})
	s.PutQuiz(domain.Quiz{ID: 2, Title: "Two", Category: "science"})
	s.PutQuestion(domain.Question{ID: 3, QuizID: 1, Points: 1})
	s.PutQuestion(domain.Question{ID: 1, QuizID: 1, Points: 1})
	s.PutQuestion(domain.Question{ID: 2, QuizID: 2, Points: 1})
	return s
}

func insert(t *testing.T, s *Store, a domain.Attempt) int64 {
	t.Helper()
	err := s.InTx(context.Background(), func(ctx context.Context, tx app.AttemptTx) error {
		return tx.InsertAttempt(ctx, &a)
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	return a.ID
}

func scored(userID, quizID, score int64, at time.Time) domain.Attempt {
	return domain.Attempt{
		UserID:      userID,
		QuizID:      quizID,
		Score:       decimal.NewFromInt(score),
		MaxScore:    decimal.NewFromInt(10),
		TimeTaken:   30,
		CompletedAt: at,
	}
}

func TestActiveQuestionsSortedAndFiltered(t *testing.T) {
	s := seeded()
	s.PutQuestion(domain.Question{ID: 4, QuizID: 1, Points: 1})
	s.DeleteQuestion(4, base)

	qs, err := s.ActiveQuestions(context.Background(), 1)
	if err != nil {
		t.Fatalf("active questions: %v", err)
	}
	if len(qs) != 2 || qs[0].ID != 1 || qs[1].ID != 3 {
		t.Fatalf("questions = %+v", qs)
	}
}

func TestInTxRollsBackOnError(t *testing.T) {
	s := seeded()
	boom := errors.New("boom")
	err := s.InTx(context.Background(), func(ctx context.Context, tx app.AttemptTx) error {
		a := scored(1, 1, 5, base)
		if err := tx.InsertAttempt(ctx, &a); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if n := len(s.Attempts()); n != 0 {
		t.Fatalf("expected rollback, found %d attempts", n)
	}

	if id := insert(t, s, scored(1, 1, 5, base)); id != 1 {
		t.Fatalf("id after rollback = %d, want 1", id)
	}
}

func TestHasAttemptSinceIsStrict(t *testing.T) {
	s := seeded()
	insert(t, s, scored(1, 1, 5, base))
	ctx := context.Background()

	if ok, _ := s.HasAttemptSince(ctx, 1, 1, base.Add(-time.Second)); !ok {
		t.Fatalf("expected attempt after since")
	}
	if ok, _ := s.HasAttemptSince(ctx, 1, 1, base); ok {
		t.Fatalf("attempt at exactly since must not count")
	}
	if ok, _ := s.HasAttemptSince(ctx, 2, 1, base.Add(-time.Hour)); ok {
		t.Fatalf("other user's attempt must not count")
	}
}

func TestListAttemptsFiltersAndOrders(t *testing.T) {
	s := seeded()
	insert(t, s, scored(1, 1, 5, base))
	insert(t, s, scored(1, 2, 7, base.Add(time.Hour)))
	insert(t, s, scored(1, 1, 9, base.Add(2*time.Hour)))
	insert(t, s, scored(2, 1, 9, base))
	ctx := context.Background()

	all, err := s.ListAttempts(ctx, domain.AttemptQuery{UserID: 1})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || !all[0].Score.Equal(decimal.NewFromInt(9)) || all[2].QuizTitle != "One" {
		t.Fatalf("all = %+v", all)
	}

	from := base.Add(30 * time.Minute)
	windowed, _ := s.ListAttempts(ctx, domain.AttemptQuery{UserID: 1, QuizID: 1, From: &from})
	if len(windowed) != 1 || !windowed[0].CompletedAt.Equal(base.Add(2*time.Hour)) {
		t.Fatalf("windowed = %+v", windowed)
	}

	paged, _ := s.ListAttempts(ctx, domain.AttemptQuery{UserID: 1, Limit: 1, Offset: 1})
	if len(paged) != 1 || paged[0].QuizID != 2 {
		t.Fatalf("paged = %+v", paged)
	}

	s.DeleteQuiz(2, base)
	afterDelete, _ := s.ListAttempts(ctx, domain.AttemptQuery{UserID: 1})
	if len(afterDelete) != 2 {
		t.Fatalf("deleted quiz attempts should be hidden, got %d", len(afterDelete))
	}
}

func TestRankersSkipDeletedRows(t *testing.T) {
	s := seeded()
	insert(t, s, scored(1, 1, 5, base))
	insert(t, s, scored(2, 1, 8, base))
	insert(t, s, scored(2, 2, 10, base))
	ctx := context.Background()

	s.DeleteUser(2, base)
	standings, err := s.QuizStandings(ctx, 1)
	if err != nil {
		t.Fatalf("standings: %v", err)
	}
	if len(standings) != 1 || standings[0].UserID != 1 {
		t.Fatalf("standings = %+v", standings)
	}

	global, err := s.GlobalStandings(ctx, domain.GlobalFilter{})
	if err != nil {
		t.Fatalf("global: %v", err)
	}
	if len(global) != 1 || global[0].UserName != "alice" {
		t.Fatalf("global = %+v", global)
	}

	if _, err := s.GetQuiz(ctx, 2); err != nil {
		t.Fatalf("quiz 2 should still exist: %v", err)
	}
	s.DeleteQuiz(2, base)
	if _, err := s.GetQuiz(ctx, 2); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("err = %v, want ErrQuizNotFound", err)
	}
}

func TestUserStatistics(t *testing.T) {
	s := seeded()
	insert(t, s, scored(1, 1, 5, base))
	insert(t, s, scored(1, 1, 8, base))
	insert(t, s, scored(1, 2, 6, base))

	stats, err := s.UserStatistics(context.Background(), 1)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalAttempts != 3 || stats.UniqueQuizzes != 2 {
		t.Fatalf("stats = %+v", stats)
	}
	if !stats.AverageScore.Equal(decimal.RequireFromString("6.33")) || !stats.BestScore.Equal(decimal.NewFromInt(8)) {
		t.Fatalf("average=%s best=%s", stats.AverageScore, stats.BestScore)
	}

	empty, _ := s.UserStatistics(context.Background(), 2)
	if empty.TotalAttempts != 0 || !empty.AverageScore.IsZero() {
		t.Fatalf("empty stats = %+v", empty)
	}
}
