// Package ranking orders attempt history into leaderboards. It is the
// in-process counterpart of the SQL window-function queries used by the
// Postgres ranker, and both must agree on ordering and rank values.
package ranking

import (
	"sort"

	"github.com/shopspring/decimal"

	"quiz-ranking-service/internal/domain"
)

var hundred = decimal.NewFromInt(100)

type bestEntry struct {
	standing domain.QuizStanding
	ratio    decimal.Decimal
}

// QuizStandings ranks users on one quiz by their best score. Users with equal
// best scores share a dense rank; when max scores differ between attempts the
// better percentage breaks the tie. Rows sharing a rank are listed by first
// completion, earliest first.
func QuizStandings(rows []domain.RankedAttempt) []domain.QuizStanding {
	byUser := make(map[int64]*bestEntry)
	for _, row := range rows {
		ratio := ratioOf(row.Score, row.MaxScore)
		entry, ok := byUser[row.UserID]
		if !ok {
			byUser[row.UserID] = &bestEntry{
				standing: domain.QuizStanding{
					UserID:           row.UserID,
					UserName:         row.UserName,
					BestScore:        row.Score,
					MaxScore:         row.MaxScore,
					FirstCompletedAt: row.CompletedAt,
					AttemptCount:     1,
				},
				ratio: ratio,
			}
			continue
		}

		s := &entry.standing
		s.AttemptCount++
		if row.CompletedAt.Before(s.FirstCompletedAt) {
			s.FirstCompletedAt = row.CompletedAt
		}
		if row.Score.GreaterThan(s.BestScore) ||
			(row.Score.Equal(s.BestScore) && ratio.GreaterThan(entry.ratio)) {
			s.BestScore = row.Score
			s.MaxScore = row.MaxScore
			entry.ratio = ratio
		}
	}

	entries := make([]*bestEntry, 0, len(byUser))
	for _, e := range byUser {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if c := a.standing.BestScore.Cmp(b.standing.BestScore); c != 0 {
			return c > 0
		}
		if c := a.ratio.Cmp(b.ratio); c != 0 {
			return c > 0
		}
		if !a.standing.FirstCompletedAt.Equal(b.standing.FirstCompletedAt) {
			return a.standing.FirstCompletedAt.Before(b.standing.FirstCompletedAt)
		}
		return a.standing.UserID < b.standing.UserID
	})

	out := make([]domain.QuizStanding, len(entries))
	rank := 0
	for i, e := range entries {
		if i == 0 ||
			!e.standing.BestScore.Equal(entries[i-1].standing.BestScore) ||
			!e.ratio.Equal(entries[i-1].ratio) {
			rank++
		}
		e.standing.Rank = rank
		e.standing.Percentage = domain.Percentage(e.standing.BestScore, e.standing.MaxScore)
		out[i] = e.standing
	}
	return out
}

type globalEntry struct {
	standing   domain.GlobalStanding
	quizzes    map[int64]struct{}
	percentSum decimal.Decimal
	average    decimal.Decimal
}

// GlobalStandings aggregates every user's attempts across quizzes and ranks
// users by average percentage, then by number of distinct quizzes. Ranks are
// row numbers over the whole ordering; Limit and Offset select the page.
func GlobalStandings(rows []domain.RankedAttempt, filter domain.GlobalFilter) []domain.GlobalStanding {
	byUser := make(map[int64]*globalEntry)
	for _, row := range rows {
		if filter.Category != "" && row.Category != filter.Category {
			continue
		}
		if filter.Since != nil && row.CompletedAt.Before(*filter.Since) {
			continue
		}
		entry, ok := byUser[row.UserID]
		if !ok {
			entry = &globalEntry{
				standing: domain.GlobalStanding{
					UserID:        row.UserID,
					UserName:      row.UserName,
					TotalScore:    decimal.Zero,
					TotalMaxScore: decimal.Zero,
					LastAttemptAt: row.CompletedAt,
				},
				quizzes:    make(map[int64]struct{}),
				percentSum: decimal.Zero,
			}
			byUser[row.UserID] = entry
		}
		s := &entry.standing
		entry.quizzes[row.QuizID] = struct{}{}
		entry.percentSum = entry.percentSum.Add(ratioOf(row.Score, row.MaxScore).Mul(hundred))
		s.TotalAttempts++
		s.TotalScore = s.TotalScore.Add(row.Score)
		s.TotalMaxScore = s.TotalMaxScore.Add(row.MaxScore)
		if row.CompletedAt.After(s.LastAttemptAt) {
			s.LastAttemptAt = row.CompletedAt
		}
	}

	entries := make([]*globalEntry, 0, len(byUser))
	for _, e := range byUser {
		e.standing.QuizzesCompleted = len(e.quizzes)
		if e.standing.QuizzesCompleted < 1 {
			continue
		}
		e.average = e.percentSum.DivRound(decimal.NewFromInt(int64(e.standing.TotalAttempts)), 2)
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if c := a.average.Cmp(b.average); c != 0 {
			return c > 0
		}
		if a.standing.QuizzesCompleted != b.standing.QuizzesCompleted {
			return a.standing.QuizzesCompleted > b.standing.QuizzesCompleted
		}
		return a.standing.UserID < b.standing.UserID
	})

	start, end := Page(len(entries), filter.Limit, filter.Offset)
	out := make([]domain.GlobalStanding, 0, end-start)
	for i := start; i < end; i++ {
		s := entries[i].standing
		s.Rank = i + 1
		s.AveragePercentage = entries[i].average
		out = append(out, s)
	}
	return out
}

// Page converts limit/offset into slice bounds over n items. A non-positive
// limit selects everything after offset.
func Page(n, limit, offset int) (start, end int) {
	if offset < 0 {
		offset = 0
	}
	if offset > n {
		offset = n
	}
	end = n
	if limit > 0 && offset+limit < n {
		end = offset + limit
	}
	return offset, end
}

// RankOf returns the caller's rank in standings, or nil when absent.
func RankOf(standings []domain.QuizStanding, userID int64) *int {
	for i := range standings {
		if standings[i].UserID == userID {
			rank := standings[i].Rank
			return &rank
		}
	}
	return nil
}

func ratioOf(score, maxScore decimal.Decimal) decimal.Decimal {
	if maxScore.IsZero() {
		return decimal.Zero
	}
	return score.Div(maxScore)
}
