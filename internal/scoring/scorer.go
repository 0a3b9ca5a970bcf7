// Package scoring grades submitted answers against question definitions.
// Everything here is pure: no I/O, no clocks, no shared state.
package scoring

import (
	"github.com/shopspring/decimal"

	"quiz-ranking-service/internal/domain"
)

// Score grades a single answer. Single choice questions are all-or-nothing.
// Multiple choice questions earn partial credit of max(0, (C-I)/N) * points,
// where C and I count submitted options inside and outside the correct set
// and N is the size of the correct set. Missing or malformed answers earn
// zero; Score never fails.
func Score(q domain.Question, answer domain.Answer) (decimal.Decimal, bool) {
	if answer.IsEmpty() || q.Points <= 0 {
		return decimal.Zero, false
	}
	points := decimal.NewFromInt(int64(q.Points))

	switch q.Type {
	case domain.QuestionMultiple:
		return scoreMultiple(q, answer, points)
	default:
		return scoreSingle(q, answer, points)
	}
}

func scoreSingle(q domain.Question, answer domain.Answer, points decimal.Decimal) (decimal.Decimal, bool) {
	if answer.Kind() != domain.AnswerSingle || q.CorrectAnswer.Kind() != domain.AnswerSingle {
		return decimal.Zero, false
	}
	if answer.Text() != q.CorrectAnswer.Text() {
		return decimal.Zero, false
	}
	return points, true
}

func scoreMultiple(q domain.Question, answer domain.Answer, points decimal.Decimal) (decimal.Decimal, bool) {
	correct := q.CorrectAnswer.Choices()
	if len(correct) == 0 {
		return decimal.Zero, false
	}
	correctSet := make(map[string]struct{}, len(correct))
	for _, c := range correct {
		correctSet[c] = struct{}{}
	}

	submitted := answer.Choices()
	var hits, misses int64
	for _, s := range submitted {
		if _, ok := correctSet[s]; ok {
			hits++
		} else {
			misses++
		}
	}

	isCorrect := misses == 0 && hits == int64(len(correct))
	if hits <= misses {
		return decimal.Zero, isCorrect
	}
	earned := decimal.NewFromInt(hits - misses).
		Mul(points).
		DivRound(decimal.NewFromInt(int64(len(correct))), 2)
	if earned.GreaterThan(points) {
		earned = points
	}
	return earned, isCorrect
}

// Total sums earned and available points and clamps the earned total into
// [0, max], rounded to two decimals.
func Total(earned []decimal.Decimal, questions []domain.Question) (score, maxScore decimal.Decimal) {
	score, maxScore = decimal.Zero, decimal.Zero
	for _, e := range earned {
		score = score.Add(e)
	}
	for _, q := range questions {
		maxScore = maxScore.Add(decimal.NewFromInt(int64(q.Points)))
	}
	return Clamp(score, maxScore), maxScore
}

// Clamp bounds score into [0, max] and rounds it to two decimals.
func Clamp(score, maxScore decimal.Decimal) decimal.Decimal {
	if score.IsNegative() {
		return decimal.Zero
	}
	if score.GreaterThan(maxScore) {
		score = maxScore
	}
	return score.Round(2)
}
