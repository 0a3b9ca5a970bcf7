package app

import (
	"context"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"quiz-ranking-service/internal/domain"
	"quiz-ranking-service/internal/logging"
	"quiz-ranking-service/internal/ranking"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// LeaderboardService serves rank-ordered leaderboards. Per-quiz standings go
// through the cache; the global board is always computed.
type LeaderboardService struct {
	quizzes QuizRepository
	ranker  Ranker
	cache   LeaderboardCache
	now     func() time.Time
	sf      singleflight.Group
}

func NewLeaderboardService(quizzes QuizRepository, ranker Ranker, cache LeaderboardCache) *LeaderboardService {
	return NewLeaderboardServiceWithClock(quizzes, ranker, cache, time.Now)
}

// NewLeaderboardServiceWithClock allows deterministic timeframes in tests.
func NewLeaderboardServiceWithClock(quizzes QuizRepository, ranker Ranker, cache LeaderboardCache, now func() time.Time) *LeaderboardService {
	if cache == nil {
		cache = NoopCache{}
	}
	return &LeaderboardService{quizzes: quizzes, ranker: ranker, cache: cache, now: now}
}

// LeaderboardQuery selects a page of a quiz leaderboard. UserID is only used
// when IncludeUserRank is set.
type LeaderboardQuery struct {
	QuizID          int64
	Limit           int
	Offset          int
	IncludeUserRank bool
	UserID          int64
}

// QuizLeaderboard is a page of a quiz leaderboard plus the caller's rank,
// which is looked up over the whole board, not just the page.
type QuizLeaderboard struct {
	QuizID      int64                 `json:"quizId"`
	Leaderboard []domain.QuizStanding `json:"leaderboard"`
	UserRank    *int                  `json:"userRank"`
	Total       int                   `json:"total"`
}

// GlobalQuery selects a page of the global leaderboard.
type GlobalQuery struct {
	Category  string
	Timeframe domain.Timeframe
	Limit     int
	Offset    int
}

// GlobalLeaderboard is a page of the global leaderboard.
type GlobalLeaderboard struct {
	Leaderboard []domain.GlobalStanding `json:"leaderboard"`
	Filters     GlobalFilters           `json:"filters"`
	Pagination  Pagination              `json:"pagination"`
}

type GlobalFilters struct {
	Category  string           `json:"category,omitempty"`
	Timeframe domain.Timeframe `json:"timeframe,omitempty"`
}

type Pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// QuizLeaderboard returns the requested page of a quiz's best-score board.
func (s *LeaderboardService) QuizLeaderboard(ctx context.Context, q LeaderboardQuery) (QuizLeaderboard, error) {
	limit, offset := normalizePage(q.Limit, q.Offset)

	standings, err := s.standings(ctx, q.QuizID)
	if err != nil {
		return QuizLeaderboard{}, err
	}

	start, end := ranking.Page(len(standings), limit, offset)
	page := make([]domain.QuizStanding, end-start)
	copy(page, standings[start:end])

	lb := QuizLeaderboard{
		QuizID:      q.QuizID,
		Leaderboard: page,
		Total:       len(standings),
	}
	if q.IncludeUserRank && q.UserID != 0 {
		lb.UserRank = ranking.RankOf(standings, q.UserID)
	}
	return lb, nil
}

// GlobalLeaderboard ranks users across quizzes by average percentage.
func (s *LeaderboardService) GlobalLeaderboard(ctx context.Context, q GlobalQuery) (GlobalLeaderboard, error) {
	limit, offset := normalizePage(q.Limit, q.Offset)

	standings, err := s.ranker.GlobalStandings(ctx, domain.GlobalFilter{
		Category: q.Category,
		Since:    q.Timeframe.Since(s.now()),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		return GlobalLeaderboard{}, err
	}
	if standings == nil {
		standings = []domain.GlobalStanding{}
	}
	return GlobalLeaderboard{
		Leaderboard: standings,
		Filters:     GlobalFilters{Category: q.Category, Timeframe: q.Timeframe},
		Pagination:  Pagination{Limit: limit, Offset: offset},
	}, nil
}

// Invalidate drops the cached standings of a quiz.
func (s *LeaderboardService) Invalidate(ctx context.Context, quizID int64) error {
	return s.cache.Invalidate(ctx, quizID)
}

// standings reads through the cache. Concurrent misses for one quiz share a
// single recompute.
func (s *LeaderboardService) standings(ctx context.Context, quizID int64) ([]domain.QuizStanding, error) {
	log := logging.WithContext(ctx).WithField("quiz_id", quizID)

	cached, ok, err := s.cache.Get(ctx, quizID)
	if err != nil {
		log.WithError(err).Warn("leaderboard cache read failed")
	} else if ok {
		return cached, nil
	}

	result, err, _ := s.sf.Do(strconv.FormatInt(quizID, 10), func() (interface{}, error) {
		if _, err := s.quizzes.GetQuiz(ctx, quizID); err != nil {
			return nil, err
		}
		standings, err := s.ranker.QuizStandings(ctx, quizID)
		if err != nil {
			return nil, err
		}
		if standings == nil {
			standings = []domain.QuizStanding{}
		}
		if err := s.cache.Set(ctx, quizID, standings); err != nil {
			log.WithError(err).Warn("leaderboard cache write failed")
		}
		return standings, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.QuizStanding), nil
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
