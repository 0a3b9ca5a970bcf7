package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"quiz-ranking-service/internal/app"
	"quiz-ranking-service/internal/domain"
)

// Handler exposes the attempt and leaderboard use cases over JSON.
type Handler struct {
	attempts     *app.AttemptService
	leaderboards *app.LeaderboardService
}

func NewHandler(attempts *app.AttemptService, leaderboards *app.LeaderboardService) *Handler {
	return &Handler{attempts: attempts, leaderboards: leaderboards}
}

type submitRequest struct {
	Answers   json.RawMessage `json:"answers"`
	StartTime *time.Time      `json:"startTime"`
	TimeTaken int             `json:"timeTaken"`
}

func (h *Handler) StartAttempt(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	quizID, err := pathID(r, "quizID")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	started, err := h.attempts.StartAttempt(r.Context(), userID, quizID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, started)
}

func (h *Handler) SubmitAttempt(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	quizID, err := pathID(r, "quizID")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeServiceError(w, r, fmt.Errorf("%w: invalid request body", domain.ErrValidation))
		return
	}
	answers, err := domain.ParseAnswers(req.Answers)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	sub := app.Submission{
		UserID:    userID,
		QuizID:    quizID,
		Answers:   answers,
		TimeTaken: req.TimeTaken,
	}
	if req.StartTime != nil {
		sub.StartTime = *req.StartTime
	}

	result, err := h.attempts.SubmitAttempt(r.Context(), sub)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, result)
}

func (h *Handler) QuizLeaderboard(w http.ResponseWriter, r *http.Request) {
	quizID, err := pathID(r, "quizID")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	limit, offset, err := page(r, app.DefaultPageSize)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	includeRank, err := boolParam(r, "includeUserRank")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	q := app.LeaderboardQuery{QuizID: quizID, Limit: limit, Offset: offset}
	if userID, ok := UserID(r.Context()); ok && includeRank {
		q.IncludeUserRank = true
		q.UserID = userID
	}
	lb, err := h.leaderboards.QuizLeaderboard(r.Context(), q)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, lb)
}

func (h *Handler) GlobalLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := page(r, app.DefaultPageSize)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	timeframe, err := domain.ParseTimeframe(r.URL.Query().Get("timeframe"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	category := r.URL.Query().Get("category")
	if n := utf8.RuneCountInString(category); category != "" && (n < 2 || n > 100) {
		writeServiceError(w, r, fmt.Errorf("%w: category must be between 2 and 100 characters", domain.ErrValidation))
		return
	}

	lb, err := h.leaderboards.GlobalLeaderboard(r.Context(), app.GlobalQuery{
		Category:  category,
		Timeframe: timeframe,
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, lb)
}

func (h *Handler) ListAttempts(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	limit, offset, err := page(r, 0)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	q := domain.AttemptQuery{UserID: userID, Limit: limit, Offset: offset}
	if raw := r.URL.Query().Get("quizId"); raw != "" {
		if q.QuizID, err = parseID(raw, "quizId"); err != nil {
			writeServiceError(w, r, err)
			return
		}
	}
	if q.From, err = timeParam(r, "from"); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if q.To, err = timeParam(r, "to"); err != nil {
		writeServiceError(w, r, err)
		return
	}

	attempts, err := h.attempts.History(r.Context(), q)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if attempts == nil {
		attempts = []domain.AttemptSummary{}
	}
	writeJSON(w, r, http.StatusOK, attempts)
}

func (h *Handler) GetAttempt(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	attemptID, err := pathID(r, "attemptID")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	attempt, err := h.attempts.Attempt(r.Context(), attemptID, userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, attempt)
}

func (h *Handler) Statistics(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	stats, err := h.attempts.Statistics(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, stats)
}

func pathID(r *http.Request, name string) (int64, error) {
	return parseID(chi.URLParam(r, name), name)
}

func parseID(raw, name string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", domain.ErrValidation, name)
	}
	return id, nil
}

// page reads limit and offset. An absent limit yields fallback; a present one
// must lie in [1, app.MaxPageSize].
func page(r *http.Request, fallback int) (int, int, error) {
	limit, offset := fallback, 0
	query := r.URL.Query()
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > app.MaxPageSize {
			return 0, 0, fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrValidation, app.MaxPageSize)
		}
		limit = n
	}
	if raw := query.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return 0, 0, fmt.Errorf("%w: offset must be non-negative", domain.ErrValidation)
		}
		offset = n
	}
	return limit, offset, nil
}

func boolParam(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean", domain.ErrValidation, name)
	}
	return v, nil
}

func timeParam(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be an RFC 3339 timestamp", domain.ErrValidation, name)
	}
	return &t, nil
}
